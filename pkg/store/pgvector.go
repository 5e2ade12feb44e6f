package store

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"

	"github.com/xhad/docuchat/internal/logger"
	"github.com/xhad/docuchat/internal/models"
	"github.com/xhad/docuchat/pkg/errs"
)

// PGIndex keeps records in a Postgres table with a pgvector column.
// Config.Path names the table. Added records are staged in memory until
// Persist inserts them in one transaction.
type PGIndex struct {
	mu              sync.RWMutex
	config          VectorStoreConfig
	pool            *pgxpool.Pool
	table           string
	collections     string
	dimension       int
	dimensionStored bool
	count           int
	pending         []*entry
	closed          bool
}

// OpenOrCreatePG connects to config.ConnString and opens the table named by
// config.Path, creating it when missing.
func OpenOrCreatePG(ctx context.Context, config VectorStoreConfig) (*PGIndex, OpenResult, error) {
	idx, found, err := openPG(ctx, config, true)
	if err != nil {
		return nil, Created, err
	}
	result := Created
	if found {
		result = Loaded
	}
	logger.Debug("opened pgvector index", "table", config.Path, "collection", idx.config.Collection,
		"result", result.String(), "records", idx.count, "dimension", idx.dimension)
	return idx, result, nil
}

// OpenPG opens an existing table.
func OpenPG(ctx context.Context, config VectorStoreConfig) (*PGIndex, error) {
	idx, found, err := openPG(ctx, config, false)
	if err != nil {
		return nil, err
	}
	if !found {
		idx.Close()
		return nil, &errs.IndexNotFoundError{Path: config.Path}
	}
	return idx, nil
}

func openPG(ctx context.Context, config VectorStoreConfig, create bool) (*PGIndex, bool, error) {
	config.applyDefaults()
	if err := config.validate(); err != nil {
		return nil, false, err
	}
	if config.ConnString == "" {
		return nil, false, fmt.Errorf("database connection string is required")
	}

	pool, err := pgxpool.New(ctx, config.ConnString)
	if err != nil {
		return nil, false, fmt.Errorf("failed to connect to database: %v", err)
	}

	idx := &PGIndex{
		config:      config,
		pool:        pool,
		table:       pgx.Identifier{config.Path}.Sanitize(),
		collections: pgx.Identifier{config.Path + "_collections"}.Sanitize(),
		dimension:   config.Dimension,
	}

	found, err := idx.initialize(ctx, create)
	if err != nil {
		pool.Close()
		return nil, false, err
	}
	return idx, found, nil
}

func (idx *PGIndex) initialize(ctx context.Context, create bool) (bool, error) {
	var exists bool
	err := idx.pool.QueryRow(ctx, "SELECT to_regclass($1) IS NOT NULL", idx.config.Path+"_collections").Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to look up index table: %v", err)
	}
	if !exists && !create {
		return false, nil
	}

	if create {
		if err := idx.createSchema(ctx); err != nil {
			return false, err
		}
	}

	var (
		stored int
		metric string
	)
	err = idx.pool.QueryRow(ctx,
		fmt.Sprintf("SELECT dimension, metric FROM %s WHERE name = $1", idx.collections),
		idx.config.Collection,
	).Scan(&stored, &metric)

	switch {
	case errors.Is(err, pgx.ErrNoRows):
		if !create {
			return false, nil
		}
		_, err = idx.pool.Exec(ctx,
			fmt.Sprintf("INSERT INTO %s (name, dimension, metric) VALUES ($1, $2, $3)", idx.collections),
			idx.config.Collection, idx.config.Dimension, idx.config.Metric)
		if err != nil {
			return false, fmt.Errorf("failed to create collection: %v", err)
		}
		idx.dimensionStored = idx.config.Dimension > 0
		return false, nil
	case err != nil:
		return false, fmt.Errorf("failed to read collection: %v", err)
	}

	if stored > 0 && idx.config.Dimension > 0 && stored != idx.config.Dimension {
		return true, &errs.IncompatibleIndexError{Path: idx.config.Path, Stored: stored, Requested: idx.config.Dimension}
	}
	if metric != idx.config.Metric {
		return true, fmt.Errorf("index %q uses metric %q, requested %q", idx.config.Path, metric, idx.config.Metric)
	}
	if stored > 0 {
		idx.dimension = stored
		idx.dimensionStored = true
	}

	err = idx.pool.QueryRow(ctx,
		fmt.Sprintf("SELECT count(*) FROM %s WHERE collection = $1", idx.table),
		idx.config.Collection,
	).Scan(&idx.count)
	if err != nil {
		return true, fmt.Errorf("failed to count records: %v", err)
	}
	return true, nil
}

func (idx *PGIndex) createSchema(ctx context.Context) error {
	if _, err := idx.pool.Exec(ctx, "CREATE EXTENSION IF NOT EXISTS vector"); err != nil {
		return fmt.Errorf("failed to create vector extension: %v", err)
	}

	statements := []string{
		fmt.Sprintf(`
			CREATE TABLE IF NOT EXISTS %s (
				name TEXT PRIMARY KEY,
				dimension INTEGER NOT NULL DEFAULT 0,
				metric TEXT NOT NULL,
				created_at TIMESTAMPTZ NOT NULL DEFAULT now()
			)`, idx.collections),
		fmt.Sprintf(`
			CREATE TABLE IF NOT EXISTS %s (
				seq BIGSERIAL PRIMARY KEY,
				id TEXT NOT NULL,
				collection TEXT NOT NULL,
				document_id TEXT NOT NULL,
				source TEXT NOT NULL DEFAULT '',
				page INTEGER NOT NULL DEFAULT 0,
				sequence_index INTEGER NOT NULL,
				start INTEGER NOT NULL DEFAULT 0,
				char_length INTEGER NOT NULL,
				content TEXT NOT NULL,
				embedding vector NOT NULL,
				metadata JSONB
			)`, idx.table),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s ON %s (collection, seq)`,
			pgx.Identifier{idx.config.Path + "_collection_idx"}.Sanitize(), idx.table),
	}

	for _, stmt := range statements {
		if _, err := idx.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("failed to create table: %v", err)
		}
	}
	return nil
}

func (idx *PGIndex) Add(_ context.Context, records []models.IndexRecord) error {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	if idx.closed {
		return &errs.IndexNotFoundError{Path: idx.config.Path}
	}
	if len(records) == 0 {
		return nil
	}

	dim := idx.dimension
	if dim == 0 {
		dim = len(records[0].Embedding)
	}
	if dim == 0 {
		return fmt.Errorf("cannot add records with empty embeddings")
	}
	for _, rec := range records {
		if len(rec.Embedding) != dim {
			return &errs.IncompatibleIndexError{Path: idx.config.Path, Stored: dim, Requested: len(rec.Embedding)}
		}
	}

	idx.dimension = dim
	for _, rec := range records {
		if rec.ID == "" {
			rec.ID = uuid.NewString()
		}
		idx.pending = append(idx.pending, &entry{record: rec, magnitude: magnitude(rec.Embedding)})
	}
	return nil
}

func (idx *PGIndex) distanceOperator() string {
	if idx.config.Metric == MetricL2 {
		return "<->"
	}
	return "<=>"
}

func (idx *PGIndex) score(distance float64) float64 {
	if idx.config.Metric == MetricL2 {
		return -distance
	}
	return 1 - distance
}

// Query orders committed rows in Postgres and merges them with staged
// records scored in memory.
func (idx *PGIndex) Query(ctx context.Context, vector []float32, k int) ([]models.ScoredSegment, error) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	if idx.closed {
		return nil, &errs.IndexNotFoundError{Path: idx.config.Path}
	}
	if idx.count+len(idx.pending) == 0 || k <= 0 {
		return []models.ScoredSegment{}, nil
	}
	if len(vector) != idx.dimension {
		return nil, &errs.IncompatibleIndexError{Path: idx.config.Path, Stored: idx.dimension, Requested: len(vector)}
	}

	hits := make([]models.ScoredSegment, 0, k)
	if idx.count > 0 {
		query := fmt.Sprintf(`
			SELECT document_id, source, page, sequence_index, start, char_length, content, embedding %s $1
			FROM %s
			WHERE collection = $2
			ORDER BY embedding %s $1, seq
			LIMIT $3`,
			idx.distanceOperator(), idx.table, idx.distanceOperator())

		rows, err := idx.pool.Query(ctx, query, pgvector.NewVector(vector), idx.config.Collection, k)
		if err != nil {
			return nil, fmt.Errorf("failed to query records: %v", err)
		}
		defer rows.Close()

		for rows.Next() {
			var (
				seg      models.Segment
				distance float64
			)
			err := rows.Scan(&seg.SourceDocumentID, &seg.Source, &seg.Page, &seg.SequenceIndex,
				&seg.Start, &seg.CharLength, &seg.Text, &distance)
			if err != nil {
				return nil, fmt.Errorf("failed to scan row: %v", err)
			}
			hits = append(hits, models.ScoredSegment{Segment: seg, Score: idx.score(distance)})
		}
		if err := rows.Err(); err != nil {
			return nil, fmt.Errorf("failed to query records: %v", err)
		}
	}

	if len(idx.pending) > 0 {
		hits = append(hits, rank(idx.pending, vector, k, idx.config.Metric)...)
		sort.SliceStable(hits, func(i, j int) bool { return hits[i].Score > hits[j].Score })
		if len(hits) > k {
			hits = hits[:k]
		}
	}
	return hits, nil
}

func (idx *PGIndex) Persist(ctx context.Context) error {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	if idx.closed {
		return &errs.IndexNotFoundError{Path: idx.config.Path}
	}
	if len(idx.pending) == 0 && (idx.dimensionStored || idx.dimension == 0) {
		return nil
	}

	tx, err := idx.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %v", err)
	}
	defer tx.Rollback(ctx)

	if !idx.dimensionStored {
		_, err = tx.Exec(ctx, fmt.Sprintf("UPDATE %s SET dimension = $1 WHERE name = $2", idx.collections),
			idx.dimension, idx.config.Collection)
		if err != nil {
			return fmt.Errorf("failed to store dimension: %v", err)
		}
	}

	stmt := fmt.Sprintf(`
		INSERT INTO %s (id, collection, document_id, source, page, sequence_index, start, char_length, content, embedding, metadata)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		idx.table)

	batch := &pgx.Batch{}
	for _, e := range idx.pending {
		rec := e.record
		batch.Queue(stmt,
			rec.ID,
			idx.config.Collection,
			rec.Segment.SourceDocumentID,
			rec.Segment.Source,
			rec.Segment.Page,
			rec.Segment.SequenceIndex,
			rec.Segment.Start,
			rec.Segment.CharLength,
			rec.Segment.Text,
			pgvector.NewVector(rec.Embedding),
			rec.Metadata,
		)
	}
	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("failed to insert records: %v", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %v", err)
	}

	logger.Debug("persisted pgvector index", "table", idx.config.Path, "records", len(idx.pending))
	idx.count += len(idx.pending)
	idx.pending = nil
	idx.dimensionStored = true
	return nil
}

func (idx *PGIndex) Discard() {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	idx.pending = nil
	if !idx.dimensionStored {
		idx.dimension = idx.config.Dimension
	}
}

func (idx *PGIndex) Dimension() int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return idx.dimension
}

func (idx *PGIndex) Count() int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return idx.count + len(idx.pending)
}

func (idx *PGIndex) Path() string { return idx.config.Path }

func (idx *PGIndex) Closed() bool {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return idx.closed
}

func (idx *PGIndex) Close() error {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	if idx.closed {
		return nil
	}
	idx.closed = true
	idx.pending = nil
	if idx.pool != nil {
		idx.pool.Close()
	}
	return nil
}
