package llm_test

import (
	"context"
	"errors"
	"fmt"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tmc/langchaingo/embeddings"

	"github.com/xhad/docuchat/pkg/errs"
	"github.com/xhad/docuchat/pkg/llm"
)

var config = llm.EmbedderConfig{
	ProviderConfig: llm.ProviderConfig{
		Model:   "nomic-embed-text:latest",
		BaseURL: "http://localhost:11434",
	},
	BatchSize: 2,
}

// lengthClient embeds a text as [len(text), 1, 0].
func lengthClient(calls *int) embeddings.EmbedderClientFunc {
	return func(_ context.Context, texts []string) ([][]float32, error) {
		*calls++
		out := make([][]float32, len(texts))
		for i, text := range texts {
			out[i] = []float32{float32(len(text)), 1, 0}
		}
		return out, nil
	}
}

func TestNewEmbedderWithConfig(t *testing.T) {
	emb, err := llm.NewEmbedderWithConfig(config)
	require.NoError(t, err)
	assert.NotNil(t, emb)
	assert.Equal(t, llm.ProviderOllama, emb.Config.Provider)

	_, err = llm.NewEmbedderWithConfig(llm.EmbedderConfig{ProviderConfig: llm.ProviderConfig{Provider: llm.ProviderOpenAI}})
	assert.Error(t, err)
}

func TestEmbed_PreservesOrderAcrossBatches(t *testing.T) {
	calls := 0
	emb, err := llm.NewEmbedderFromClient(lengthClient(&calls), config)
	require.NoError(t, err)

	texts := []string{"a", "bb", "ccc", "dddd", "eeeee"}
	vectors, err := emb.Embed(context.Background(), texts)
	require.NoError(t, err)
	require.Len(t, vectors, len(texts))

	for i, v := range vectors {
		assert.Equal(t, float32(len(texts[i])), v[0])
	}
	assert.Equal(t, 3, calls)
}

func TestEmbed_Empty(t *testing.T) {
	calls := 0
	emb, err := llm.NewEmbedderFromClient(lengthClient(&calls), config)
	require.NoError(t, err)

	vectors, err := emb.Embed(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, vectors)
	assert.Zero(t, calls)
}

func TestEmbedQuery(t *testing.T) {
	calls := 0
	emb, err := llm.NewEmbedderFromClient(lengthClient(&calls), config)
	require.NoError(t, err)

	v, err := emb.EmbedQuery(context.Background(), "hello")
	require.NoError(t, err)
	assert.Equal(t, []float32{5, 1, 0}, v)
}

func TestEmbed_ErrorKinds(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		retryable bool
	}{
		{"rate limited", errors.New("API returned unexpected status code: 429: Rate limit reached"), true},
		{"server error", errors.New("API returned unexpected status code: 503"), true},
		{"deadline", fmt.Errorf("send request: %w", context.DeadlineExceeded), true},
		{"connection refused", errors.New("dial tcp 127.0.0.1:11434: connect: connection refused"), true},
		{"unauthorized", errors.New("API returned unexpected status code: 401: Incorrect API key provided"), false},
		{"bad request", errors.New("API returned unexpected status code: 400: invalid input"), false},
		{"dropped connection", fmt.Errorf("read body: %w", io.ErrUnexpectedEOF), true},
		{"eof from http client", errors.New(`Post "http://localhost:11434/api/embed": EOF`), true},
		{"eof inside a word", errors.New("API returned unexpected status code: 400: input thereof is too long"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := embeddings.EmbedderClientFunc(func(context.Context, []string) ([][]float32, error) {
				return nil, tt.err
			})
			emb, err := llm.NewEmbedderFromClient(client, config)
			require.NoError(t, err)

			_, err = emb.Embed(context.Background(), []string{"text"})
			require.Error(t, err)

			var embErr *errs.EmbeddingError
			require.ErrorAs(t, err, &embErr)
			assert.Equal(t, tt.retryable, embErr.Retryable())
		})
	}
}

func TestEmbed_CountMismatchIsFatal(t *testing.T) {
	client := embeddings.EmbedderClientFunc(func(_ context.Context, texts []string) ([][]float32, error) {
		return [][]float32{{1, 2}}, nil
	})
	emb, err := llm.NewEmbedderFromClient(client, llm.EmbedderConfig{BatchSize: 10})
	require.NoError(t, err)

	_, err = emb.Embed(context.Background(), []string{"one", "two"})
	var embErr *errs.EmbeddingError
	require.ErrorAs(t, err, &embErr)
	assert.False(t, embErr.Retryable())
}
