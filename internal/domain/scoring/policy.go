package scoring

import (
	"fmt"
	"math"
	"strings"
)

// Default thresholds for qualifying as a yap.
const (
	DefaultMinKnownCommenters = 1
	DefaultMinWeightedScore   = 50.0
)

// Policy bundles the pluggable parts of the score formula.
type Policy struct {
	Name string
	// Damping turns a comment's like count into a multiplier >= 1.
	// It must be monotonic non-decreasing.
	Damping func(likes int64) float64
	// Normalize maps the weighted sum and coverage to the final yap score.
	// It must never return a negative value for non-negative input.
	Normalize func(weighted float64, known, total int) float64

	MinKnownCommenters int
	MinWeightedScore   float64
}

// LogLikes is 1+ln(1+likes).
func LogLikes(likes int64) float64 {
	if likes < 0 {
		likes = 0
	}
	return 1 + math.Log1p(float64(likes))
}

// FlatLikes ignores likes.
func FlatLikes(int64) float64 { return 1 }

// CoverageBoost is weighted*(1+known/total). The boost rewards videos where
// a large share of the audience is known.
func CoverageBoost(weighted float64, known, total int) float64 {
	if weighted <= 0 {
		return 0
	}
	if total <= 0 {
		return weighted
	}
	return weighted * (1 + float64(known)/float64(total))
}

// WeightedOnly returns the weighted sum unchanged.
func WeightedOnly(weighted float64, _, _ int) float64 {
	return math.Max(0, weighted)
}

// DefaultPolicy is the production formula.
var DefaultPolicy = Policy{
	Name:               "coverage",
	Damping:            LogLikes,
	Normalize:          CoverageBoost,
	MinKnownCommenters: DefaultMinKnownCommenters,
	MinWeightedScore:   DefaultMinWeightedScore,
}

// RawPolicy scores by the weighted sum alone and ignores likes.
var RawPolicy = Policy{
	Name:               "raw",
	Damping:            FlatLikes,
	Normalize:          WeightedOnly,
	MinKnownCommenters: DefaultMinKnownCommenters,
	MinWeightedScore:   DefaultMinWeightedScore,
}

// PolicyByName resolves a configured formula name.
func PolicyByName(name string) (Policy, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", DefaultPolicy.Name:
		return DefaultPolicy, nil
	case RawPolicy.Name:
		return RawPolicy, nil
	default:
		return Policy{}, fmt.Errorf("%w: %q", ErrUnknownPolicy, name)
	}
}

// Qualifies applies the thresholds.
func (p Policy) Qualifies(known int, weighted float64) bool {
	return known >= p.MinKnownCommenters || weighted >= p.MinWeightedScore
}
