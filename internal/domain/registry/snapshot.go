package registry

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/okian/yap/internal/domain/model"
	"github.com/okian/yap/internal/domain/types"
)

// DefaultMaxDepth bounds trust propagation from each seed.
const DefaultMaxDepth = 3

// Seed is a curated root of the trust network. Handle is used when
// ProfileID is empty.
type Seed struct {
	ProfileID string  `json:"profile_id" yaml:"profile_id" db:"profile_id"`
	Handle    string  `json:"handle,omitempty" yaml:"handle" db:"handle"`
	Weight    float64 `json:"weight" yaml:"weight" db:"weight"`
}

// Edge says From follows To. Trust flows along it from From to To.
type Edge struct {
	From string `json:"from" yaml:"from" db:"follower_id"`
	To   string `json:"to" yaml:"to" db:"followee_id"`
}

// Graph is the raw input a Source loads.
type Graph struct {
	Seeds    []Seed
	Profiles []model.Profile
	Follows  []Edge
}

// Snapshot is an immutable view of the trust network. Never mutate one after
// it has been published.
type Snapshot struct {
	version  uint64
	builtAt  time.Time
	maxDepth int
	policy   string
	decay    string

	profiles  map[string]model.Profile
	byHandle  map[string]string
	seeds     int
	reachable int
}

// Empty returns a version-0 snapshot that knows nobody.
func Empty() *Snapshot {
	return &Snapshot{
		profiles: map[string]model.Profile{},
		byHandle: map[string]string{},
		maxDepth: DefaultMaxDepth,
		policy:   MaxPolicy{}.Name(),
		decay:    InverseDepth.Name,
	}
}

// BuildConfig holds the propagation parameters.
type BuildConfig struct {
	MaxDepth int
	Policy   Policy
	Decay    Decay
}

func (c BuildConfig) withDefaults() BuildConfig {
	if c.MaxDepth < 0 {
		c.MaxDepth = DefaultMaxDepth
	}
	if c.Policy == nil {
		c.Policy = MaxPolicy{}
	}
	if c.Decay.Fn == nil {
		c.Decay = InverseDepth
	}
	return c
}

// Build computes trust depth and rank score for every profile in g by a
// breadth-first walk from each seed along follow edges, up to MaxDepth hops.
// Profiles referenced only by seeds or edges are added with just an id.
func Build(g Graph, version uint64, cfg BuildConfig) (*Snapshot, error) {
	cfg = cfg.withDefaults()

	profiles := make(map[string]model.Profile, len(g.Profiles))
	byHandle := make(map[string]string, len(g.Profiles))
	for _, p := range g.Profiles {
		if p.ID == "" {
			continue
		}
		p.TrustDepth, p.RankScore, p.IsSeedAccount, p.SeedWeight = nil, 0, false, nil
		profiles[p.ID] = p
		if p.Handle != "" {
			byHandle[strings.ToLower(p.Handle)] = p.ID
		}
	}
	ensure := func(id string) {
		if _, ok := profiles[id]; !ok {
			profiles[id] = model.Profile{ID: id}
		}
	}

	adj := make(map[string][]string)
	for _, e := range g.Follows {
		if e.From == "" || e.To == "" {
			return nil, fmt.Errorf("%w: %q -> %q", ErrInvalidEdge, e.From, e.To)
		}
		if e.From == e.To {
			continue
		}
		ensure(e.From)
		ensure(e.To)
		adj[e.From] = append(adj[e.From], e.To)
	}

	// A seed listed twice keeps its highest weight.
	seedWeights := make(map[string]float64, len(g.Seeds))
	for _, s := range g.Seeds {
		id := s.ProfileID
		if id == "" && s.Handle != "" {
			id = byHandle[strings.ToLower(strings.TrimPrefix(s.Handle, "@"))]
		}
		if id == "" {
			return nil, fmt.Errorf("%w: seed %q has no resolvable profile", ErrInvalidSeed, s.Handle)
		}
		if s.Weight <= 0 {
			return nil, fmt.Errorf("%w: seed %q weight %v must be positive", ErrInvalidSeed, id, s.Weight)
		}
		ensure(id)
		if w, ok := seedWeights[id]; !ok || s.Weight > w {
			seedWeights[id] = s.Weight
		}
	}

	contributions := make(map[string][]float64)
	depth := make(map[string]int)
	for seedID, w := range seedWeights {
		for id, d := range bfs(seedID, adj, cfg.MaxDepth) {
			contributions[id] = append(contributions[id], cfg.Decay.Apply(w, d))
			if cur, ok := depth[id]; !ok || d < cur {
				depth[id] = d
			}
		}
	}

	snap := &Snapshot{
		version:  version,
		builtAt:  time.Now().UTC(),
		maxDepth: cfg.MaxDepth,
		policy:   cfg.Policy.Name(),
		decay:    cfg.Decay.Name,
		profiles: profiles,
		byHandle: byHandle,
		seeds:    len(seedWeights),
	}
	for id, d := range depth {
		p := profiles[id]
		p.TrustDepth = &d
		p.RankScore = cfg.Policy.Combine(contributions[id])
		if w, ok := seedWeights[id]; ok {
			p.IsSeedAccount = true
			p.SeedWeight = &w
		}
		profiles[id] = p
		snap.reachable++
	}
	return snap, nil
}

// bfs returns the hop distance from seed to every profile within maxDepth.
func bfs(seed string, adj map[string][]string, maxDepth int) map[string]int {
	dist := map[string]int{seed: 0}
	queue := []string{seed}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		d := dist[cur]
		if d == maxDepth {
			continue
		}
		for _, next := range adj[cur] {
			if _, seen := dist[next]; seen {
				continue
			}
			dist[next] = d + 1
			queue = append(queue, next)
		}
	}
	return dist
}

// Version is the monotonically increasing snapshot number.
func (s *Snapshot) Version() uint64 { return s.version }

// BuiltAt is when the snapshot was computed.
func (s *Snapshot) BuiltAt() time.Time { return s.builtAt }

// Lookup returns the profile with id. found is false for ids the snapshot
// has never seen; use Reachable on the result to test trust.
func (s *Snapshot) Lookup(id string) (model.Profile, bool) {
	p, ok := s.profiles[id]
	return detach(p), ok
}

// detach copies the pointer fields so callers cannot write into the
// snapshot.
func detach(p model.Profile) model.Profile {
	if p.TrustDepth != nil {
		d := *p.TrustDepth
		p.TrustDepth = &d
	}
	if p.SeedWeight != nil {
		w := *p.SeedWeight
		p.SeedWeight = &w
	}
	return p
}

// LookupHandle finds a profile by handle, case-insensitively, with or
// without a leading '@'.
func (s *Snapshot) LookupHandle(handle string) (model.Profile, bool) {
	id, ok := s.byHandle[strings.ToLower(strings.TrimPrefix(handle, "@"))]
	if !ok {
		return model.Profile{}, false
	}
	return s.Lookup(id)
}

// IsKnown reports whether id is reachable from any seed.
func (s *Snapshot) IsKnown(id string) bool {
	p, ok := s.profiles[id]
	return ok && p.Reachable()
}

// RankScore returns id's rank score, 0 when unknown.
func (s *Snapshot) RankScore(id string) float64 {
	return s.profiles[id].RankScore
}

// Len is the number of profiles, reachable or not.
func (s *Snapshot) Len() int { return len(s.profiles) }

// Profiles returns every profile ordered by rank score desc, then id.
func (s *Snapshot) Profiles() []model.Profile {
	out := make([]model.Profile, 0, len(s.profiles))
	for _, p := range s.profiles {
		out = append(out, detach(p))
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].RankScore != out[j].RankScore {
			return out[i].RankScore > out[j].RankScore
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// Info summarizes the snapshot.
func (s *Snapshot) Info() types.RegistryInfo {
	info := types.RegistryInfo{
		Version:   s.version,
		Seeds:     s.seeds,
		Profiles:  len(s.profiles),
		Reachable: s.reachable,
		MaxDepth:  s.maxDepth,
		Policy:    s.policy,
		Decay:     s.decay,
	}
	if !s.builtAt.IsZero() {
		info.BuiltAt = s.builtAt.Format(time.RFC3339)
	}
	return info
}
