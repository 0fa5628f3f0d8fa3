package api

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/okian/yap/pkg/metrics"
)

// HandleHealth serves GET /healthz as a Prometheus exposition of the
// service registry. A successful scrape doubles as liveness.
func HandleHealth() http.HandlerFunc {
	h := promhttp.HandlerFor(metrics.GetRegistry(), promhttp.HandlerOpts{})
	return h.ServeHTTP
}
