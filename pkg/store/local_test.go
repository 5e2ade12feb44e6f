package store_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xhad/docuchat/internal/models"
	"github.com/xhad/docuchat/pkg/errs"
	"github.com/xhad/docuchat/pkg/store"
)

func record(text string, seq int, embedding ...float32) models.IndexRecord {
	return models.IndexRecord{
		Segment: models.Segment{
			Text:             text,
			SourceDocumentID: "doc1",
			Source:           "doc1.txt",
			SequenceIndex:    seq,
			CharLength:       len(text),
		},
		Embedding: embedding,
		Metadata:  map[string]interface{}{"source": "doc1.txt"},
	}
}

func localConfig(t *testing.T) store.VectorStoreConfig {
	return store.VectorStoreConfig{Path: filepath.Join(t.TempDir(), "index")}
}

func texts(hits []models.ScoredSegment) []string {
	out := make([]string, len(hits))
	for i, h := range hits {
		out[i] = h.Segment.Text
	}
	return out
}

func TestOpenOrCreate_CreatesThenLoads(t *testing.T) {
	ctx := context.Background()
	config := localConfig(t)

	idx, result, err := store.OpenOrCreate(ctx, config)
	require.NoError(t, err)
	assert.Equal(t, store.Created, result)
	assert.Zero(t, idx.Count())
	require.NoError(t, idx.Add(ctx, []models.IndexRecord{record("alpha", 0, 1, 0, 0)}))
	require.NoError(t, idx.Persist(ctx))
	require.NoError(t, idx.Close())

	_, err = os.Stat(filepath.Join(config.Path, store.IndexFile))
	require.NoError(t, err)

	idx, result, err = store.OpenOrCreate(ctx, config)
	require.NoError(t, err)
	defer idx.Close()
	assert.Equal(t, store.Loaded, result)
	assert.Equal(t, 1, idx.Count())
	assert.Equal(t, 3, idx.Dimension())
}

func TestQuery_EmptyIndex(t *testing.T) {
	ctx := context.Background()
	idx, _, err := store.OpenOrCreate(ctx, localConfig(t))
	require.NoError(t, err)
	defer idx.Close()

	hits, err := idx.Query(ctx, []float32{1, 0, 0}, 3)
	require.NoError(t, err)
	assert.Empty(t, hits)
}

func TestQuery_OrderingAndTies(t *testing.T) {
	ctx := context.Background()
	idx, _, err := store.OpenOrCreate(ctx, localConfig(t))
	require.NoError(t, err)
	defer idx.Close()

	require.NoError(t, idx.Add(ctx, []models.IndexRecord{
		record("far", 0, 0, 1, 0),
		record("tie-first", 1, 1, 1, 0),
		record("best", 2, 1, 0, 0),
		record("tie-second", 3, 1, 1, 0),
	}))

	tests := []struct {
		name string
		k    int
		want []string
	}{
		{"top one", 1, []string{"best"}},
		{"ties keep insertion order", 3, []string{"best", "tie-first", "tie-second"}},
		{"k larger than index", 10, []string{"best", "tie-first", "tie-second", "far"}},
		{"zero k", 0, []string{}},
		{"negative k", -1, []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			hits, err := idx.Query(ctx, []float32{1, 0, 0}, tt.k)
			require.NoError(t, err)
			assert.Equal(t, tt.want, texts(hits))
		})
	}
}

func TestPersist_ReopenReturnsSameNeighbors(t *testing.T) {
	ctx := context.Background()
	config := localConfig(t)

	idx, _, err := store.OpenOrCreate(ctx, config)
	require.NoError(t, err)
	require.NoError(t, idx.Add(ctx, []models.IndexRecord{
		record("north", 0, 0, 1),
		record("east", 1, 1, 0),
		record("north-east", 2, 1, 1),
	}))
	require.NoError(t, idx.Persist(ctx))

	query := []float32{0.9, 0.2}
	before, err := idx.Query(ctx, query, 3)
	require.NoError(t, err)
	require.NoError(t, idx.Close())

	reopened, err := store.Open(ctx, config)
	require.NoError(t, err)
	defer reopened.Close()

	after, err := reopened.Query(ctx, query, 3)
	require.NoError(t, err)
	assert.Equal(t, texts(before), texts(after))
	assert.Equal(t, before[0].Segment, after[0].Segment)
}

func TestAdd_IncompatibleDimension(t *testing.T) {
	ctx := context.Background()
	idx, _, err := store.OpenOrCreate(ctx, localConfig(t))
	require.NoError(t, err)
	defer idx.Close()

	require.NoError(t, idx.Add(ctx, []models.IndexRecord{record("a", 0, 1, 0, 0)}))

	err = idx.Add(ctx, []models.IndexRecord{record("b", 1, 1, 0, 0), record("c", 2, 1, 0)})
	var incompatible *errs.IncompatibleIndexError
	require.ErrorAs(t, err, &incompatible)
	assert.Equal(t, 3, incompatible.Stored)
	assert.Equal(t, 2, incompatible.Requested)
	assert.Equal(t, 1, idx.Count())
}

func TestOpenOrCreate_RequestedDimensionMismatch(t *testing.T) {
	ctx := context.Background()
	config := localConfig(t)

	idx, _, err := store.OpenOrCreate(ctx, config)
	require.NoError(t, err)
	require.NoError(t, idx.Add(ctx, []models.IndexRecord{record("a", 0, 1, 0, 0)}))
	require.NoError(t, idx.Persist(ctx))
	require.NoError(t, idx.Close())

	config.Dimension = 768
	_, _, err = store.OpenOrCreate(ctx, config)
	var incompatible *errs.IncompatibleIndexError
	assert.ErrorAs(t, err, &incompatible)
}

func TestDiscard_DropsStagedRecords(t *testing.T) {
	ctx := context.Background()
	config := localConfig(t)

	idx, _, err := store.OpenOrCreate(ctx, config)
	require.NoError(t, err)
	require.NoError(t, idx.Add(ctx, []models.IndexRecord{record("kept", 0, 1, 0)}))
	require.NoError(t, idx.Persist(ctx))

	require.NoError(t, idx.Add(ctx, []models.IndexRecord{record("dropped", 1, 0, 1)}))
	assert.Equal(t, 2, idx.Count())
	idx.Discard()
	assert.Equal(t, 1, idx.Count())
	require.NoError(t, idx.Close())

	reopened, err := store.Open(ctx, config)
	require.NoError(t, err)
	defer reopened.Close()

	hits, err := reopened.Query(ctx, []float32{0, 1}, 5)
	require.NoError(t, err)
	assert.Equal(t, []string{"kept"}, texts(hits))
}

func TestUnpersistedRecordsAreLostOnClose(t *testing.T) {
	ctx := context.Background()
	config := localConfig(t)

	idx, _, err := store.OpenOrCreate(ctx, config)
	require.NoError(t, err)
	require.NoError(t, idx.Add(ctx, []models.IndexRecord{record("staged", 0, 1, 0)}))
	require.NoError(t, idx.Close())

	reopened, result, err := store.OpenOrCreate(ctx, config)
	require.NoError(t, err)
	defer reopened.Close()
	assert.Equal(t, store.Loaded, result)
	assert.Zero(t, reopened.Count())
}

func TestQuery_L2Metric(t *testing.T) {
	ctx := context.Background()
	config := localConfig(t)
	config.Metric = store.MetricL2

	idx, _, err := store.OpenOrCreate(ctx, config)
	require.NoError(t, err)
	defer idx.Close()

	// Cosine would rank "scaled" first; Euclidean distance prefers "near".
	require.NoError(t, idx.Add(ctx, []models.IndexRecord{
		record("scaled", 0, 10, 0),
		record("near", 1, 0.9, 0.3),
	}))

	hits, err := idx.Query(ctx, []float32{1, 0}, 2)
	require.NoError(t, err)
	assert.Equal(t, []string{"near", "scaled"}, texts(hits))
	assert.Greater(t, hits[0].Score, hits[1].Score)
}

func TestClosedIndex(t *testing.T) {
	ctx := context.Background()
	idx, _, err := store.OpenOrCreate(ctx, localConfig(t))
	require.NoError(t, err)
	require.NoError(t, idx.Close())
	assert.True(t, idx.Closed())

	_, err = idx.Query(ctx, []float32{1}, 1)
	var notFound *errs.IndexNotFoundError
	assert.ErrorAs(t, err, &notFound)

	err = idx.Add(ctx, []models.IndexRecord{record("a", 0, 1)})
	assert.ErrorAs(t, err, &notFound)
}

func TestOpen_Missing(t *testing.T) {
	_, err := store.Open(context.Background(), localConfig(t))
	var notFound *errs.IndexNotFoundError
	assert.ErrorAs(t, err, &notFound)
}

func TestOpenOrCreate_InvalidConfig(t *testing.T) {
	tests := []struct {
		name   string
		config store.VectorStoreConfig
	}{
		{"missing path", store.VectorStoreConfig{}},
		{"unknown metric", store.VectorStoreConfig{Path: t.TempDir(), Metric: "manhattan"}},
		{"unknown backend", store.VectorStoreConfig{Path: t.TempDir(), Backend: "redis"}},
		{"negative dimension", store.VectorStoreConfig{Path: t.TempDir(), Dimension: -1}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := store.OpenOrCreate(context.Background(), tt.config)
			assert.Error(t, err)
		})
	}
}

func TestAdd_AssignsIDs(t *testing.T) {
	ctx := context.Background()
	idx, _, err := store.OpenOrCreate(ctx, localConfig(t))
	require.NoError(t, err)
	defer idx.Close()

	require.NoError(t, idx.Add(ctx, []models.IndexRecord{record("a", 0, 1, 0)}))
	require.NoError(t, idx.Add(ctx, []models.IndexRecord{record("a", 0, 1, 0)}))
	assert.Equal(t, 2, idx.Count())
	require.NoError(t, idx.Persist(ctx))
}
