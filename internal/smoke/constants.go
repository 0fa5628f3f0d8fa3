package smoke

import "time"

// Queue status values reported by auto-process.
const (
	statusQueued    = "queued"
	statusDuplicate = "duplicate"
	statusInvalid   = "invalid"
	statusRejected  = "rejected"
)

// maxURLsPerRequest is the server's per-request URL limit.
const maxURLsPerRequest = 50

// Defaults applied by Run when the Config leaves a field zero.
const (
	DefaultTopN         = 50
	DefaultTimeout      = 30 * time.Second
	DefaultWait         = 5 * time.Minute
	DefaultPollInterval = 2 * time.Second
)

const workerChannelMultiplier = 2
