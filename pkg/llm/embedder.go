package llm

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"

	"github.com/tmc/langchaingo/embeddings"
	"github.com/xhad/docuchat/pkg/errs"
)

// EmbedderConfig represents the configuration for an embedder.
type EmbedderConfig struct {
	ProviderConfig
	BatchSize int
}

// Embedder maps texts to vectors through an embedding provider. It never
// retries; every failure comes back as *errs.EmbeddingError.
type Embedder struct {
	Config   EmbedderConfig
	embedder embeddings.Embedder
}

func defaultEmbeddingModel(provider string) string {
	if provider == ProviderOpenAI {
		return "text-embedding-ada-002"
	}
	return "nomic-embed-text:latest"
}

func NewEmbedderWithConfig(config EmbedderConfig) (*Embedder, error) {
	if config.Provider == "" {
		config.Provider = ProviderOllama
	}
	config.applyDefaults(defaultEmbeddingModel(config.Provider))

	var client embeddings.EmbedderClient
	switch config.Provider {
	case ProviderOllama:
		llm, err := newOllama(config.ProviderConfig)
		if err != nil {
			return nil, err
		}
		client = llm
	case ProviderOpenAI:
		llm, err := newOpenAI(config.ProviderConfig, true)
		if err != nil {
			return nil, err
		}
		client = llm
	default:
		return nil, fmt.Errorf("unknown embedding provider %q", config.Provider)
	}

	return NewEmbedderFromClient(client, config)
}

// NewEmbedderFromClient builds an Embedder over any langchaingo client.
func NewEmbedderFromClient(client embeddings.EmbedderClient, config EmbedderConfig) (*Embedder, error) {
	config.applyDefaults(defaultEmbeddingModel(config.Provider))
	if config.BatchSize <= 0 {
		config.BatchSize = 64
	}

	emb, err := embeddings.NewEmbedder(client,
		embeddings.WithBatchSize(config.BatchSize),
		embeddings.WithStripNewLines(false),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize embedder: %w", err)
	}

	return &Embedder{Config: config, embedder: emb}, nil
}

// Embed returns one vector per text, in input order.
func (e *Embedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	ctx, cancel := context.WithTimeout(ctx, e.Config.Timeout)
	defer cancel()

	vectors, err := e.embedder.EmbedDocuments(ctx, texts)
	if err != nil {
		return nil, &errs.EmbeddingError{Kind: classify(err), Err: err}
	}
	if len(vectors) != len(texts) {
		return nil, &errs.EmbeddingError{
			Kind: errs.Fatal,
			Err:  fmt.Errorf("provider returned %d vectors for %d texts", len(vectors), len(texts)),
		}
	}
	for i, v := range vectors {
		if len(v) == 0 {
			return nil, &errs.EmbeddingError{Kind: errs.Fatal, Err: fmt.Errorf("empty vector for text %d", i)}
		}
	}

	return vectors, nil
}

func (e *Embedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	vectors, err := e.Embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

// Substrings of provider error messages that indicate a transient failure.
var retryableMarkers = []string{
	"status code: 429",
	"status code: 500",
	"status code: 502",
	"status code: 503",
	"status code: 504",
	"rate limit",
	"too many requests",
	"connection refused",
	"connection reset",
	"timeout",
	"unexpected eof",
}

func classify(err error) errs.EmbeddingKind {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return errs.Retryable
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return errs.Retryable
	}

	msg := strings.ToLower(err.Error())
	// net/http reports a dropped connection as `Post "...": EOF`.
	if msg == "eof" || strings.HasSuffix(msg, ": eof") {
		return errs.Retryable
	}
	for _, marker := range retryableMarkers {
		if strings.Contains(msg, marker) {
			return errs.Retryable
		}
	}
	return errs.Fatal
}
