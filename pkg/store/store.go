// Package store holds the persistent vector indexes: a directory-backed
// SQLite index and a Postgres/pgvector table.
package store

import (
	"context"
	"fmt"

	"github.com/xhad/docuchat/internal/types"
)

const (
	BackendLocal    = "local"
	BackendPGVector = "pgvector"

	MetricCosine = "cosine"
	MetricL2     = "l2"

	DefaultCollection = "docuchat_collection"
)

// OpenResult tells whether OpenOrCreate found an existing index.
type OpenResult int

const (
	Created OpenResult = iota
	Loaded
)

func (r OpenResult) String() string {
	if r == Loaded {
		return "loaded"
	}
	return "created"
}

type VectorStoreConfig struct {
	Backend    string
	Path       string // index directory, or table name for pgvector
	Collection string
	Dimension  int // 0 lets the first added record decide
	Metric     string
	ConnString string
}

func (c *VectorStoreConfig) applyDefaults() {
	if c.Backend == "" {
		c.Backend = BackendLocal
	}
	if c.Collection == "" {
		c.Collection = DefaultCollection
	}
	if c.Metric == "" {
		c.Metric = MetricCosine
	}
}

func (c VectorStoreConfig) validate() error {
	if c.Path == "" {
		return fmt.Errorf("index path is required")
	}
	if c.Dimension < 0 {
		return fmt.Errorf("dimension cannot be negative")
	}
	if c.Metric != MetricCosine && c.Metric != MetricL2 {
		return fmt.Errorf("unknown similarity metric %q", c.Metric)
	}
	return nil
}

// OpenOrCreate opens the configured backend, creating an empty index when
// none exists yet.
func OpenOrCreate(ctx context.Context, config VectorStoreConfig) (types.VectorIndex, OpenResult, error) {
	config.applyDefaults()

	switch config.Backend {
	case BackendLocal:
		idx, result, err := OpenOrCreateLocal(ctx, config)
		if err != nil {
			return nil, result, err
		}
		return idx, result, nil
	case BackendPGVector:
		idx, result, err := OpenOrCreatePG(ctx, config)
		if err != nil {
			return nil, result, err
		}
		return idx, result, nil
	}
	return nil, Created, fmt.Errorf("unknown index backend %q", config.Backend)
}

// Open loads an existing index and fails with *errs.IndexNotFoundError
// when there is none.
func Open(ctx context.Context, config VectorStoreConfig) (types.VectorIndex, error) {
	config.applyDefaults()

	switch config.Backend {
	case BackendLocal:
		idx, err := OpenLocal(ctx, config)
		if err != nil {
			return nil, err
		}
		return idx, nil
	case BackendPGVector:
		idx, err := OpenPG(ctx, config)
		if err != nil {
			return nil, err
		}
		return idx, nil
	}
	return nil, fmt.Errorf("unknown index backend %q", config.Backend)
}
