package types

import (
	"context"

	"github.com/tmc/langchaingo/llms"
	"github.com/xhad/docuchat/internal/models"
)

// Core interfaces
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

type VectorIndex interface {
	Add(ctx context.Context, records []models.IndexRecord) error
	Query(ctx context.Context, vector []float32, k int) ([]models.ScoredSegment, error)
	Persist(ctx context.Context) error
	Discard()
	Dimension() int
	Count() int
	Path() string
	Closed() bool
	Close() error
}

type Retriever interface {
	Retrieve(ctx context.Context, question string, k int) ([]models.Segment, error)
}

type LanguageModel interface {
	Generate(ctx context.Context, messages []llms.MessageContent) (string, error)
}

type Chunker interface {
	Split(text string, chunkSize, overlap int) ([]models.Segment, error)
}
