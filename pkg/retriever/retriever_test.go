package retriever_test

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xhad/docuchat/internal/models"
	"github.com/xhad/docuchat/internal/testutil"
	"github.com/xhad/docuchat/internal/types"
	"github.com/xhad/docuchat/pkg/errs"
	"github.com/xhad/docuchat/pkg/retriever"
	"github.com/xhad/docuchat/pkg/store"
)

func newIndex(t *testing.T, emb types.Embedder, texts ...string) types.VectorIndex {
	ctx := context.Background()
	idx, _, err := store.OpenOrCreate(ctx, store.VectorStoreConfig{Path: filepath.Join(t.TempDir(), "index")})
	require.NoError(t, err)
	t.Cleanup(func() { idx.Close() })

	if len(texts) == 0 {
		return idx
	}
	vectors, err := emb.Embed(ctx, texts)
	require.NoError(t, err)

	records := make([]models.IndexRecord, len(texts))
	for i, text := range texts {
		records[i] = models.IndexRecord{
			Segment:   models.Segment{Text: text, SourceDocumentID: "doc", SequenceIndex: i, CharLength: len(text)},
			Embedding: vectors[i],
		}
	}
	require.NoError(t, idx.Add(ctx, records))
	require.NoError(t, idx.Persist(ctx))
	return idx
}

func TestRetrieve(t *testing.T) {
	emb := &testutil.KeywordEmbedder{Keywords: []string{"cat", "dog", "bird", "fish"}}
	idx := newIndex(t, emb,
		"dogs bark at the mailman",
		"a cat sleeps all day, the cat purrs",
		"fish swim in the pond",
		"the bird sings",
		"my cat chased a bird",
	)

	r, err := retriever.New(emb, idx)
	require.NoError(t, err)
	assert.Equal(t, retriever.DefaultK, r.Config().K)

	segments, err := r.Retrieve(context.Background(), "where is the cat?", 0)
	require.NoError(t, err)
	require.Len(t, segments, 3)
	assert.Equal(t, "a cat sleeps all day, the cat purrs", segments[0].Text)
	assert.Equal(t, "my cat chased a bird", segments[1].Text)

	segments, err = r.Retrieve(context.Background(), "fish", 1)
	require.NoError(t, err)
	require.Len(t, segments, 1)
	assert.Equal(t, "fish swim in the pond", segments[0].Text)
}

func TestRetrieve_EmptyIndex(t *testing.T) {
	emb := &testutil.KeywordEmbedder{Keywords: []string{"cat"}}
	r, err := retriever.New(emb, newIndex(t, emb))
	require.NoError(t, err)

	segments, err := r.Retrieve(context.Background(), "anything", 3)
	require.NoError(t, err)
	assert.Empty(t, segments)
}

func TestRetrieve_EmbeddingErrorPropagates(t *testing.T) {
	emb := &testutil.KeywordEmbedder{Keywords: []string{"cat"}}
	idx := newIndex(t, emb, "cat")

	emb.Err = &errs.EmbeddingError{Kind: errs.Retryable, Err: errors.New("connection refused")}
	r, err := retriever.New(emb, idx)
	require.NoError(t, err)

	_, err = r.Retrieve(context.Background(), "cat", 3)
	var embErr *errs.EmbeddingError
	require.ErrorAs(t, err, &embErr)
	assert.True(t, embErr.Retryable())
}

func TestRetrieve_ClosedIndex(t *testing.T) {
	emb := &testutil.KeywordEmbedder{Keywords: []string{"cat"}}
	idx := newIndex(t, emb, "cat")
	require.NoError(t, idx.Close())

	r, err := retriever.New(emb, idx)
	require.NoError(t, err)

	_, err = r.Retrieve(context.Background(), "cat", 3)
	var notFound *errs.IndexNotFoundError
	assert.ErrorAs(t, err, &notFound)
}

func TestNewWithConfig_Validation(t *testing.T) {
	emb := &testutil.KeywordEmbedder{}
	_, err := retriever.NewWithConfig(nil, newIndex(t, emb), retriever.RetrieverConfig{})
	assert.Error(t, err)
	_, err = retriever.NewWithConfig(emb, nil, retriever.RetrieverConfig{})
	assert.Error(t, err)

	r, err := retriever.NewWithConfig(emb, newIndex(t, emb), retriever.RetrieverConfig{K: 7})
	require.NoError(t, err)
	assert.Equal(t, 7, r.Config().K)
}
