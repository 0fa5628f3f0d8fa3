package graph

import (
	"context"
	"fmt"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/okian/yap/internal/domain/model"
	"github.com/okian/yap/internal/domain/registry"
)

// Cypher reads. Profiles are (:Profile {id, handle, nickname,
// follower_count, seed_weight}); a non-null seed_weight marks a seed.
const (
	cypherSeeds = `MATCH (s:Profile) WHERE s.seed_weight IS NOT NULL
RETURN s.id AS id, coalesce(s.handle, '') AS handle, s.seed_weight AS weight`
	cypherProfiles = `MATCH (p:Profile)
RETURN p.id AS id, coalesce(p.handle, '') AS handle, coalesce(p.nickname, '') AS nickname,
       coalesce(p.follower_count, 0) AS follower_count`
	cypherFollows = `MATCH (a:Profile)-[:FOLLOWS]->(b:Profile) RETURN a.id AS from, b.id AS to`
)

const neo4jConnectTimeout = 10 * time.Second

// Neo4jSource reads the graph from Neo4j.
type Neo4jSource struct {
	driver   neo4j.DriverWithContext
	database string
}

// NewNeo4jSource connects and verifies connectivity.
func NewNeo4jSource(ctx context.Context, uri, user, password, database string) (*Neo4jSource, error) {
	if user == "" {
		user = "neo4j"
	}
	driver, err := neo4j.NewDriverWithContext(uri, neo4j.BasicAuth(user, password, ""), func(cfg *neo4j.Config) {
		cfg.MaxConnectionPoolSize = 10
		cfg.SocketConnectTimeout = neo4jConnectTimeout
	})
	if err != nil {
		return nil, fmt.Errorf("neo4j: init driver: %w", err)
	}
	vctx, cancel := context.WithTimeout(ctx, neo4jConnectTimeout)
	defer cancel()
	if err := driver.VerifyConnectivity(vctx); err != nil {
		_ = driver.Close(ctx)
		return nil, fmt.Errorf("neo4j: verify connectivity: %w", err)
	}
	return &Neo4jSource{driver: driver, database: database}, nil
}

// Close closes the driver.
func (s *Neo4jSource) Close(ctx context.Context) error {
	if s == nil || s.driver == nil {
		return nil
	}
	return s.driver.Close(ctx)
}

func (s *Neo4jSource) query(ctx context.Context, cypher string) ([]*neo4j.Record, error) {
	opts := []neo4j.ExecuteQueryConfigurationOption{neo4j.ExecuteQueryWithReadersRouting()}
	if s.database != "" {
		opts = append(opts, neo4j.ExecuteQueryWithDatabase(s.database))
	}
	res, err := neo4j.ExecuteQuery(ctx, s.driver, cypher, nil, neo4j.EagerResultTransformer, opts...)
	if err != nil {
		return nil, err
	}
	return res.Records, nil
}

// Load implements registry.Source.
func (s *Neo4jSource) Load(ctx context.Context) (registry.Graph, error) {
	var g registry.Graph

	recs, err := s.query(ctx, cypherSeeds)
	if err != nil {
		return registry.Graph{}, fmt.Errorf("neo4j: load seeds: %w", err)
	}
	for _, rec := range recs {
		sd, err := seedFromRecord(rec)
		if err != nil {
			return registry.Graph{}, err
		}
		g.Seeds = append(g.Seeds, sd)
	}

	if recs, err = s.query(ctx, cypherProfiles); err != nil {
		return registry.Graph{}, fmt.Errorf("neo4j: load profiles: %w", err)
	}
	for _, rec := range recs {
		p, err := profileFromRecord(rec)
		if err != nil {
			return registry.Graph{}, err
		}
		g.Profiles = append(g.Profiles, p)
	}

	if recs, err = s.query(ctx, cypherFollows); err != nil {
		return registry.Graph{}, fmt.Errorf("neo4j: load follows: %w", err)
	}
	for _, rec := range recs {
		e, err := edgeFromRecord(rec)
		if err != nil {
			return registry.Graph{}, err
		}
		g.Follows = append(g.Follows, e)
	}
	return g, nil
}

func seedFromRecord(rec *neo4j.Record) (registry.Seed, error) {
	id, err := stringField(rec, "id")
	if err != nil {
		return registry.Seed{}, err
	}
	handle, _ := stringField(rec, "handle")
	w, err := numberField(rec, "weight")
	if err != nil {
		return registry.Seed{}, err
	}
	return registry.Seed{ProfileID: id, Handle: handle, Weight: w}, nil
}

func profileFromRecord(rec *neo4j.Record) (model.Profile, error) {
	id, err := stringField(rec, "id")
	if err != nil {
		return model.Profile{}, err
	}
	handle, _ := stringField(rec, "handle")
	nickname, _ := stringField(rec, "nickname")
	followers, _ := numberField(rec, "follower_count")
	return model.Profile{ID: id, Handle: handle, Nickname: nickname, FollowerCount: int64(followers)}, nil
}

func edgeFromRecord(rec *neo4j.Record) (registry.Edge, error) {
	from, err := stringField(rec, "from")
	if err != nil {
		return registry.Edge{}, err
	}
	to, err := stringField(rec, "to")
	if err != nil {
		return registry.Edge{}, err
	}
	return registry.Edge{From: from, To: to}, nil
}

func stringField(rec *neo4j.Record, key string) (string, error) {
	v, ok := rec.Get(key)
	if !ok || v == nil {
		return "", fmt.Errorf("%w: missing %s", ErrBadRecord, key)
	}
	switch t := v.(type) {
	case string:
		return t, nil
	case int64:
		return fmt.Sprint(t), nil
	default:
		return "", fmt.Errorf("%w: %s is %T", ErrBadRecord, key, v)
	}
}

func numberField(rec *neo4j.Record, key string) (float64, error) {
	v, ok := rec.Get(key)
	if !ok || v == nil {
		return 0, fmt.Errorf("%w: missing %s", ErrBadRecord, key)
	}
	switch t := v.(type) {
	case float64:
		return t, nil
	case int64:
		return float64(t), nil
	default:
		return 0, fmt.Errorf("%w: %s is %T", ErrBadRecord, key, v)
	}
}
