// Package ingest turns uploaded documents and web pages into persisted
// index records.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/xhad/docuchat/internal/logger"
	"github.com/xhad/docuchat/internal/models"
	"github.com/xhad/docuchat/internal/types"
	"github.com/xhad/docuchat/pkg/processor"
	"github.com/xhad/docuchat/pkg/scraper"
)

const DefaultBatchSize = 32

// Stage names reported to OnProgress.
const (
	StageLoad    = "load"
	StageSplit   = "split"
	StageEmbed   = "embed"
	StagePersist = "persist"
)

type PipelineConfig struct {
	// BatchSize is the number of segments embedded per call.
	BatchSize int
	// Locker, when set, is held for the whole of each ingestion.
	Locker     sync.Locker
	OnProgress func(stage string, done, total int)
}

// Result describes one ingested document.
type Result struct {
	DocumentID string `json:"document_id"`
	Source     string `json:"source"`
	Pages      int    `json:"pages"`
	Segments   int    `json:"segments"`
	Message    string `json:"message"`
}

type Pipeline struct {
	config    PipelineConfig
	processor processor.Processor
	embedder  types.Embedder
	index     types.VectorIndex
	scraper   *scraper.Scraper
}

func NewWithConfig(proc processor.Processor, embedder types.Embedder, index types.VectorIndex, config PipelineConfig) (*Pipeline, error) {
	if embedder == nil {
		return nil, errors.New("embedder is required")
	}
	if index == nil {
		return nil, errors.New("index is required")
	}
	if config.BatchSize <= 0 {
		config.BatchSize = DefaultBatchSize
	}
	return &Pipeline{config: config, processor: proc, embedder: embedder, index: index, scraper: scraper.New()}, nil
}

func New(embedder types.Embedder, index types.VectorIndex) (*Pipeline, error) {
	return NewWithConfig(processor.New(), embedder, index, PipelineConfig{})
}

// WithScraper sets the scraper used by ProcessURL.
func (p *Pipeline) WithScraper(s *scraper.Scraper) *Pipeline {
	p.scraper = s
	return p
}

// ScraperConfig returns the configuration of the pipeline's scraper.
func (p *Pipeline) ScraperConfig() scraper.ScraperConfig {
	return p.scraper.Config()
}

func (p *Pipeline) progress(stage string, done, total int) {
	if p.config.OnProgress != nil {
		p.config.OnProgress(stage, done, total)
	}
}

// ProcessDocument loads, splits, embeds, adds and persists a document.
// Either every segment of the document is persisted or none is.
func (p *Pipeline) ProcessDocument(ctx context.Context, doc models.Document) (Result, error) {
	if p.config.Locker != nil {
		p.config.Locker.Lock()
		defer p.config.Locker.Unlock()
	}
	return p.process(ctx, doc)
}

func (p *Pipeline) process(ctx context.Context, doc models.Document) (result Result, err error) {
	result = Result{DocumentID: doc.ID, Source: doc.Filename}

	p.progress(StageLoad, 0, 1)
	pages, err := processor.Load(ctx, doc)
	if err != nil {
		return result, fmt.Errorf("failed to load %s: %w", doc.Filename, err)
	}
	result.Pages = len(pages)
	p.progress(StageLoad, 1, 1)
	logger.Info("loaded document", "document", doc.Filename, "pages", len(pages))

	segments, err := p.processor.Process(doc, pages)
	if err != nil {
		return result, fmt.Errorf("failed to split %s: %w", doc.Filename, err)
	}
	p.progress(StageSplit, len(segments), len(segments))
	logger.Info("split document", "document", doc.Filename, "segments", len(segments))

	if len(segments) == 0 {
		result.Message = "Document contains no text, nothing was indexed."
		return result, nil
	}

	defer func() {
		if err != nil {
			p.index.Discard()
			logger.Warn("discarded staged records", "document", doc.Filename, "error", err)
		}
	}()

	for start := 0; start < len(segments); start += p.config.BatchSize {
		end := min(start+p.config.BatchSize, len(segments))
		batch := segments[start:end]

		texts := make([]string, len(batch))
		for i, seg := range batch {
			texts[i] = seg.Text
		}

		vectors, err := p.embedder.Embed(ctx, texts)
		if err != nil {
			return result, fmt.Errorf("failed to embed %s: %w", doc.Filename, err)
		}
		if len(vectors) != len(batch) {
			return result, fmt.Errorf("failed to embed %s: got %d vectors for %d segments", doc.Filename, len(vectors), len(batch))
		}

		records := make([]models.IndexRecord, len(batch))
		for i, seg := range batch {
			records[i] = models.IndexRecord{
				ID:        uuid.NewString(),
				Segment:   seg,
				Embedding: vectors[i],
				Metadata:  recordMetadata(doc, seg),
			}
		}
		if err := p.index.Add(ctx, records); err != nil {
			return result, fmt.Errorf("failed to add %s to index: %w", doc.Filename, err)
		}
		p.progress(StageEmbed, end, len(segments))
	}

	p.progress(StagePersist, 0, 1)
	if err := p.index.Persist(ctx); err != nil {
		return result, fmt.Errorf("failed to persist index: %w", err)
	}
	p.progress(StagePersist, 1, 1)

	result.Segments = len(segments)
	result.Message = fmt.Sprintf("Document processed successfully! Indexed %d segments from %d pages.", len(segments), len(pages))
	logger.Info("indexed document", "document", doc.Filename, "segments", len(segments), "records", p.index.Count())
	return result, nil
}

func recordMetadata(doc models.Document, seg models.Segment) map[string]interface{} {
	metadata := map[string]interface{}{
		"source":         seg.Source,
		"page":           seg.Page,
		"document_id":    doc.ID,
		"format":         string(doc.Format),
		"sequence_index": seg.SequenceIndex,
	}
	for _, key := range []string{"url", "title"} {
		if v, ok := doc.Metadata[key]; ok {
			metadata[key] = v
		}
	}
	return metadata
}

// ProcessURL fetches a page, and its same-host links when the scraper is
// configured to crawl, and ingests every page as html. Pages are ingested
// one by one: a failure stops the run and keeps what was already indexed.
func (p *Pipeline) ProcessURL(ctx context.Context, url string) ([]Result, error) {
	return p.ProcessURLWith(ctx, p.scraper, url)
}

// ProcessURLWith is ProcessURL with a specific scraper, for callers that
// need their own progress reporting.
func (p *Pipeline) ProcessURLWith(ctx context.Context, s *scraper.Scraper, url string) ([]Result, error) {
	docs, err := s.Scrape(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch %s: %w", url, err)
	}

	results := make([]Result, 0, len(docs))
	for _, doc := range docs {
		result, err := p.ProcessDocument(ctx, doc)
		if err != nil {
			return results, err
		}
		results = append(results, result)
	}
	return results, nil
}
