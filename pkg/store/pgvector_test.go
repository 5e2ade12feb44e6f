package store_test

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xhad/docuchat/internal/models"
	"github.com/xhad/docuchat/pkg/errs"
	"github.com/xhad/docuchat/pkg/store"
)

func getTestConfig(t *testing.T) store.VectorStoreConfig {
	conn := os.Getenv("DOCUCHAT_TEST_DATABASE_URL")
	if conn == "" {
		t.Skip("DOCUCHAT_TEST_DATABASE_URL not set")
	}
	return store.VectorStoreConfig{
		Backend:    store.BackendPGVector,
		ConnString: conn,
		Path:       fmt.Sprintf("test_documents_%d", time.Now().UnixNano()),
	}
}

func TestPGIndex(t *testing.T) {
	ctx := context.Background()
	config := getTestConfig(t)

	idx, result, err := store.OpenOrCreate(ctx, config)
	require.NoError(t, err)
	assert.Equal(t, store.Created, result)

	require.NoError(t, idx.Add(ctx, []models.IndexRecord{
		record("This is chunk 1", 0, 1, 0, 0),
		record("This is chunk 2", 1, 0, 1, 0),
		record("This is chunk 3", 2, 0.9, 0.1, 0),
	}))

	// staged records are visible before Persist
	hits, err := idx.Query(ctx, []float32{1, 0, 0}, 1)
	require.NoError(t, err)
	assert.Equal(t, []string{"This is chunk 1"}, texts(hits))

	require.NoError(t, idx.Persist(ctx))
	require.NoError(t, idx.Close())

	reopened, err := store.Open(ctx, config)
	require.NoError(t, err)
	defer reopened.Close()

	assert.Equal(t, 3, reopened.Count())
	assert.Equal(t, 3, reopened.Dimension())

	hits, err = reopened.Query(ctx, []float32{1, 0, 0}, 2)
	require.NoError(t, err)
	assert.Equal(t, []string{"This is chunk 1", "This is chunk 3"}, texts(hits))
}

func TestPGIndex_DiscardAndMismatch(t *testing.T) {
	ctx := context.Background()
	config := getTestConfig(t)

	idx, _, err := store.OpenOrCreate(ctx, config)
	require.NoError(t, err)
	defer idx.Close()

	require.NoError(t, idx.Add(ctx, []models.IndexRecord{record("a", 0, 1, 0)}))
	require.NoError(t, idx.Persist(ctx))

	require.NoError(t, idx.Add(ctx, []models.IndexRecord{record("b", 1, 0, 1)}))
	idx.Discard()
	assert.Equal(t, 1, idx.Count())

	err = idx.Add(ctx, []models.IndexRecord{record("c", 2, 1, 0, 0)})
	var incompatible *errs.IncompatibleIndexError
	assert.ErrorAs(t, err, &incompatible)
}

func TestPGIndex_OpenMissing(t *testing.T) {
	config := getTestConfig(t)

	_, err := store.Open(context.Background(), config)
	var notFound *errs.IndexNotFoundError
	assert.ErrorAs(t, err, &notFound)
}
