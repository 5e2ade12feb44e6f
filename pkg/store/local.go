package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite" // register pure-Go SQLite driver

	"github.com/xhad/docuchat/internal/logger"
	"github.com/xhad/docuchat/internal/models"
	"github.com/xhad/docuchat/pkg/errs"
)

// IndexFile is the SQLite database inside an index directory.
const IndexFile = "index.db"

const localSchema = `
CREATE TABLE IF NOT EXISTS collections (
	name       TEXT PRIMARY KEY,
	dimension  INTEGER NOT NULL DEFAULT 0,
	metric     TEXT NOT NULL,
	created_at TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS records (
	seq            INTEGER PRIMARY KEY AUTOINCREMENT,
	id             TEXT NOT NULL,
	collection     TEXT NOT NULL REFERENCES collections(name),
	document_id    TEXT NOT NULL,
	source         TEXT NOT NULL DEFAULT '',
	page           INTEGER NOT NULL DEFAULT 0,
	sequence_index INTEGER NOT NULL,
	start          INTEGER NOT NULL DEFAULT 0,
	char_length    INTEGER NOT NULL,
	text           TEXT NOT NULL,
	metadata       TEXT,
	embedding      BLOB NOT NULL
);
CREATE INDEX IF NOT EXISTS records_collection_seq ON records(collection, seq);
`

// LocalIndex is a vector index persisted as a SQLite file inside a
// directory. All records are held in memory and searched exhaustively;
// added records stay staged until Persist writes them in one transaction.
type LocalIndex struct {
	mu              sync.RWMutex
	config          VectorStoreConfig
	db              *sql.DB
	dimension       int
	dimensionStored bool
	committed       []*entry
	pending         []*entry
	closed          bool
}

// OpenOrCreateLocal loads the index directory at config.Path or creates it.
func OpenOrCreateLocal(ctx context.Context, config VectorStoreConfig) (*LocalIndex, OpenResult, error) {
	config.applyDefaults()
	if err := config.validate(); err != nil {
		return nil, Created, err
	}

	result := Loaded
	if !exists(filepath.Join(config.Path, IndexFile)) {
		result = Created
		if err := os.MkdirAll(config.Path, 0o755); err != nil {
			return nil, Created, fmt.Errorf("failed to create index directory: %v", err)
		}
	}

	idx, found, err := openLocal(ctx, config, true)
	if err != nil {
		return nil, result, err
	}
	if !found {
		result = Created
	}

	logger.Debug("opened local index", "path", config.Path, "collection", config.Collection,
		"result", result.String(), "records", idx.Count(), "dimension", idx.Dimension())
	return idx, result, nil
}

// OpenLocal loads an existing index directory.
func OpenLocal(ctx context.Context, config VectorStoreConfig) (*LocalIndex, error) {
	config.applyDefaults()
	if err := config.validate(); err != nil {
		return nil, err
	}
	if !exists(filepath.Join(config.Path, IndexFile)) {
		return nil, &errs.IndexNotFoundError{Path: config.Path}
	}

	idx, found, err := openLocal(ctx, config, false)
	if err != nil {
		return nil, err
	}
	if !found {
		idx.Close()
		return nil, &errs.IndexNotFoundError{Path: config.Path}
	}
	return idx, nil
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// openLocal opens the database and loads the collection. found reports
// whether the collection already existed.
func openLocal(ctx context.Context, config VectorStoreConfig, create bool) (*LocalIndex, bool, error) {
	db, err := sql.Open("sqlite", filepath.Join(config.Path, IndexFile))
	if err != nil {
		return nil, false, fmt.Errorf("failed to open index database: %v", err)
	}
	db.SetMaxOpenConns(1)

	idx := &LocalIndex{config: config, db: db, dimension: config.Dimension}

	found, err := idx.initialize(ctx, create)
	if err != nil {
		db.Close()
		return nil, false, err
	}
	if found {
		if err := idx.load(ctx); err != nil {
			db.Close()
			return nil, false, err
		}
	}
	return idx, found, nil
}

func (idx *LocalIndex) initialize(ctx context.Context, create bool) (bool, error) {
	if _, err := idx.db.ExecContext(ctx, "PRAGMA busy_timeout = 5000"); err != nil {
		return false, fmt.Errorf("failed to configure index database: %v", err)
	}
	if _, err := idx.db.ExecContext(ctx, localSchema); err != nil {
		return false, fmt.Errorf("failed to create index schema: %v", err)
	}

	var (
		stored int
		metric string
	)
	err := idx.db.QueryRowContext(ctx,
		"SELECT dimension, metric FROM collections WHERE name = ?", idx.config.Collection,
	).Scan(&stored, &metric)

	switch {
	case errors.Is(err, sql.ErrNoRows):
		if !create {
			return false, nil
		}
		_, err = idx.db.ExecContext(ctx,
			"INSERT INTO collections(name, dimension, metric, created_at) VALUES(?, ?, ?, ?)",
			idx.config.Collection, idx.config.Dimension, idx.config.Metric, time.Now().UTC().Format(time.RFC3339))
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
		return true, fmt.Errorf("index at %q uses metric %q, requested %q", idx.config.Path, metric, idx.config.Metric)
	}
	if stored > 0 {
		idx.dimension = stored
		idx.dimensionStored = true
	}
	return true, nil
}

func (idx *LocalIndex) load(ctx context.Context) error {
	rows, err := idx.db.QueryContext(ctx, `
		SELECT id, document_id, source, page, sequence_index, start, char_length, text, metadata, embedding
		FROM records
		WHERE collection = ?
		ORDER BY seq`, idx.config.Collection)
	if err != nil {
		return fmt.Errorf("failed to load records: %v", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			rec      models.IndexRecord
			metadata sql.NullString
			blob     []byte
		)
		err := rows.Scan(&rec.ID, &rec.Segment.SourceDocumentID, &rec.Segment.Source, &rec.Segment.Page,
			&rec.Segment.SequenceIndex, &rec.Segment.Start, &rec.Segment.CharLength, &rec.Segment.Text,
			&metadata, &blob)
		if err != nil {
			return fmt.Errorf("failed to scan record: %v", err)
		}
		if rec.Embedding, err = decodeEmbedding(blob); err != nil {
			return err
		}
		if len(rec.Embedding) != idx.dimension {
			return &errs.IncompatibleIndexError{Path: idx.config.Path, Stored: idx.dimension, Requested: len(rec.Embedding)}
		}
		if metadata.Valid && metadata.String != "" {
			if err := json.Unmarshal([]byte(metadata.String), &rec.Metadata); err != nil {
				return fmt.Errorf("failed to decode metadata of %s: %v", rec.ID, err)
			}
		}
		idx.committed = append(idx.committed, &entry{record: rec, magnitude: magnitude(rec.Embedding)})
	}
	return rows.Err()
}

// Add stages records. Nothing is staged unless every record has the index
// dimensionality. Records are never deduplicated.
func (idx *LocalIndex) Add(_ context.Context, records []models.IndexRecord) error {
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

// Query searches committed and staged records.
func (idx *LocalIndex) Query(_ context.Context, vector []float32, k int) ([]models.ScoredSegment, error) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	if idx.closed {
		return nil, &errs.IndexNotFoundError{Path: idx.config.Path}
	}
	total := len(idx.committed) + len(idx.pending)
	if total == 0 || k <= 0 {
		return []models.ScoredSegment{}, nil
	}
	if len(vector) != idx.dimension {
		return nil, &errs.IncompatibleIndexError{Path: idx.config.Path, Stored: idx.dimension, Requested: len(vector)}
	}

	entries := make([]*entry, 0, total)
	entries = append(entries, idx.committed...)
	entries = append(entries, idx.pending...)

	return rank(entries, vector, k, idx.config.Metric), nil
}

// Persist writes staged records and the collection dimensionality in a
// single transaction.
func (idx *LocalIndex) Persist(ctx context.Context) error {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	if idx.closed {
		return &errs.IndexNotFoundError{Path: idx.config.Path}
	}
	if len(idx.pending) == 0 && (idx.dimensionStored || idx.dimension == 0) {
		return nil
	}

	tx, err := idx.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %v", err)
	}
	defer func() { _ = tx.Rollback() }()

	if !idx.dimensionStored {
		_, err = tx.ExecContext(ctx, "UPDATE collections SET dimension = ? WHERE name = ?", idx.dimension, idx.config.Collection)
		if err != nil {
			return fmt.Errorf("failed to store dimension: %v", err)
		}
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO records(id, collection, document_id, source, page, sequence_index, start, char_length, text, metadata, embedding)
		VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare insert: %v", err)
	}
	defer stmt.Close()

	for _, e := range idx.pending {
		rec := e.record
		var metadata []byte
		if len(rec.Metadata) > 0 {
			if metadata, err = json.Marshal(rec.Metadata); err != nil {
				return fmt.Errorf("failed to encode metadata of %s: %v", rec.ID, err)
			}
		}
		_, err = stmt.ExecContext(ctx, rec.ID, idx.config.Collection, rec.Segment.SourceDocumentID, rec.Segment.Source,
			rec.Segment.Page, rec.Segment.SequenceIndex, rec.Segment.Start, rec.Segment.CharLength, rec.Segment.Text,
			string(metadata), encodeEmbedding(rec.Embedding))
		if err != nil {
			return fmt.Errorf("failed to insert record: %v", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %v", err)
	}

	logger.Debug("persisted local index", "path", idx.config.Path, "records", len(idx.pending))
	idx.committed = append(idx.committed, idx.pending...)
	idx.pending = nil
	idx.dimensionStored = true
	return nil
}

// Discard drops staged records.
func (idx *LocalIndex) Discard() {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	idx.pending = nil
	if !idx.dimensionStored {
		idx.dimension = idx.config.Dimension
	}
}

func (idx *LocalIndex) Dimension() int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return idx.dimension
}

func (idx *LocalIndex) Count() int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return len(idx.committed) + len(idx.pending)
}

func (idx *LocalIndex) Path() string { return idx.config.Path }

func (idx *LocalIndex) Closed() bool {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return idx.closed
}

// Close releases the database. Staged records are dropped.
func (idx *LocalIndex) Close() error {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	if idx.closed {
		return nil
	}
	idx.closed = true
	idx.pending = nil
	return idx.db.Close()
}
