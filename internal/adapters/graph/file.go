// Package graph loads the trust network (seeds, profiles and follow edges)
// that the registry builds snapshots from.
package graph

import (
	"context"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/okian/yap/internal/domain/model"
	"github.com/okian/yap/internal/domain/registry"
)

// fileGraph is the on-disk layout:
//
//	seeds:
//	  - handle: leomessi
//	    weight: 90
//	profiles:
//	  - id: "1"
//	    handle: leomessi
//	follows:
//	  - from: "1"
//	    to: "2"
type fileGraph struct {
	Seeds    []registry.Seed `yaml:"seeds"`
	Profiles []fileProfile   `yaml:"profiles"`
	Follows  []registry.Edge `yaml:"follows"`
}

type fileProfile struct {
	ID            string `yaml:"id"`
	Handle        string `yaml:"handle"`
	Nickname      string `yaml:"nickname"`
	FollowerCount int64  `yaml:"follower_count"`
}

// FileSource reads the graph from a YAML (or JSON) file on every Load, so
// edits are picked up by the next registry refresh.
type FileSource struct {
	path string
}

// NewFileSource returns a source for path.
func NewFileSource(path string) (*FileSource, error) {
	if path == "" {
		return nil, ErrNoPath
	}
	return &FileSource{path: path}, nil
}

// Load implements registry.Source.
func (s *FileSource) Load(ctx context.Context) (registry.Graph, error) {
	f, err := os.Open(s.path)
	if err != nil {
		return registry.Graph{}, fmt.Errorf("open graph file: %w", err)
	}
	defer f.Close()
	g, err := Decode(f)
	if err != nil {
		return registry.Graph{}, fmt.Errorf("%s: %w", s.path, err)
	}
	return g, nil
}

// Decode parses the file layout into a registry graph.
func Decode(r io.Reader) (registry.Graph, error) {
	var fg fileGraph
	if err := yaml.NewDecoder(r).Decode(&fg); err != nil && err != io.EOF {
		return registry.Graph{}, fmt.Errorf("decode graph: %w", err)
	}
	g := registry.Graph{Seeds: fg.Seeds, Follows: fg.Follows}
	for _, p := range fg.Profiles {
		g.Profiles = append(g.Profiles, model.Profile{
			ID:            p.ID,
			Handle:        p.Handle,
			Nickname:      p.Nickname,
			FollowerCount: p.FollowerCount,
		})
	}
	return g, nil
}

// Encode writes g in the file layout.
func Encode(w io.Writer, g registry.Graph) error {
	fg := fileGraph{Seeds: g.Seeds, Follows: g.Follows}
	for _, p := range g.Profiles {
		fg.Profiles = append(fg.Profiles, fileProfile{
			ID:            p.ID,
			Handle:        p.Handle,
			Nickname:      p.Nickname,
			FollowerCount: p.FollowerCount,
		})
	}
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(fg); err != nil {
		return fmt.Errorf("encode graph: %w", err)
	}
	return enc.Close()
}
