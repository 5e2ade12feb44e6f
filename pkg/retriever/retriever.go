// Package retriever finds the indexed segments most relevant to a question.
package retriever

import (
	"context"
	"fmt"

	"github.com/xhad/docuchat/internal/logger"
	"github.com/xhad/docuchat/internal/models"
	"github.com/xhad/docuchat/internal/types"
)

const DefaultK = 3

type RetrieverConfig struct {
	K int
}

// Retriever embeds a question and looks up its nearest segments. It has no
// side effects.
type Retriever struct {
	config   RetrieverConfig
	embedder types.Embedder
	index    types.VectorIndex
}

func NewWithConfig(embedder types.Embedder, index types.VectorIndex, config RetrieverConfig) (*Retriever, error) {
	if embedder == nil {
		return nil, fmt.Errorf("embedder is required")
	}
	if index == nil {
		return nil, fmt.Errorf("index is required")
	}
	if config.K <= 0 {
		config.K = DefaultK
	}
	return &Retriever{config: config, embedder: embedder, index: index}, nil
}

func New(embedder types.Embedder, index types.VectorIndex) (*Retriever, error) {
	return NewWithConfig(embedder, index, RetrieverConfig{})
}

func (r *Retriever) Config() RetrieverConfig {
	return r.config
}

// Retrieve returns up to k segments, best first. A k of zero or less uses
// the configured default.
func (r *Retriever) Retrieve(ctx context.Context, question string, k int) ([]models.Segment, error) {
	if k <= 0 {
		k = r.config.K
	}

	vector, err := r.embedder.EmbedQuery(ctx, question)
	if err != nil {
		return nil, err
	}

	hits, err := r.index.Query(ctx, vector, k)
	if err != nil {
		return nil, err
	}

	segments := make([]models.Segment, len(hits))
	for i, hit := range hits {
		segments[i] = hit.Segment
	}

	logger.Debug("retrieved segments", "k", k, "found", len(segments))
	return segments, nil
}
