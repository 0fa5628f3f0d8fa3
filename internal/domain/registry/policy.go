package registry

import (
	"fmt"
	"math"
	"strings"
)

// Policy combines the per-seed contributions reaching one profile into its
// rank score.
type Policy interface {
	Name() string
	Combine(contributions []float64) float64
}

// MaxPolicy keeps the strongest single seed contribution.
type MaxPolicy struct{}

func (MaxPolicy) Name() string { return "max" }

func (MaxPolicy) Combine(c []float64) float64 {
	best := 0.0
	for _, v := range c {
		if v > best {
			best = v
		}
	}
	return best
}

// SumPolicy adds contributions, so profiles close to many seeds rank higher.
type SumPolicy struct{}

func (SumPolicy) Name() string { return "sum" }

func (SumPolicy) Combine(c []float64) float64 {
	total := 0.0
	for _, v := range c {
		if v > 0 {
			total += v
		}
	}
	return total
}

// PolicyByName resolves a configured policy name.
func PolicyByName(name string) (Policy, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "max":
		return MaxPolicy{}, nil
	case "sum":
		return SumPolicy{}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownPolicy, name)
	}
}

// Decay maps a seed weight and the hop distance from that seed to a
// contribution. Depth 0 is the seed itself.
type Decay struct {
	Name string
	Fn   func(weight float64, depth int) float64
}

// Apply evaluates the decay.
func (d Decay) Apply(weight float64, depth int) float64 { return d.Fn(weight, depth) }

// Named decay functions.
var (
	// InverseDepth is w/(depth+1).
	InverseDepth = Decay{Name: "inverse", Fn: func(w float64, d int) float64 {
		return w / float64(d+1)
	}}
	// Halving is w/2^depth.
	Halving = Decay{Name: "halving", Fn: func(w float64, d int) float64 {
		return w / math.Pow(2, float64(d))
	}}
)

// DecayByName resolves a configured decay name.
func DecayByName(name string) (Decay, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", InverseDepth.Name:
		return InverseDepth, nil
	case Halving.Name:
		return Halving, nil
	default:
		return Decay{}, fmt.Errorf("%w: %q", ErrUnknownDecay, name)
	}
}
