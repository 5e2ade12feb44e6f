package main

import (
	"context"
	"fmt"

	"github.com/xhad/docuchat/internal/logger"
	"github.com/xhad/docuchat/internal/types"
	"github.com/xhad/docuchat/pkg/archive"
	"github.com/xhad/docuchat/pkg/config"
	"github.com/xhad/docuchat/pkg/conversation"
	"github.com/xhad/docuchat/pkg/ingest"
	"github.com/xhad/docuchat/pkg/llm"
	"github.com/xhad/docuchat/pkg/processor"
	"github.com/xhad/docuchat/pkg/scraper"
	"github.com/xhad/docuchat/pkg/store"
)

type openMode int

const (
	// openExisting fails when there is no index yet.
	openExisting openMode = iota
	openOrCreate
)

// app is the set of components shared by every command.
type app struct {
	config   *config.Config
	index    types.VectorIndex
	session  *conversation.Session
	pipeline *ingest.Pipeline
}

type appOptions struct {
	mode       openMode
	onProgress func(stage string, done, total int)
	onPage     func(url string)
}

func newApp(ctx context.Context, c *config.Config, opts appOptions) (*app, error) {
	model, err := llm.NewWithConfig(c.ChatConfig())
	if err != nil {
		return nil, fmt.Errorf("failed to initialize language model: %w", err)
	}

	embedder, err := llm.NewEmbedderWithConfig(c.EmbedderConfig())
	if err != nil {
		return nil, fmt.Errorf("failed to initialize embedder: %w", err)
	}

	proc, err := processor.NewWithConfig(c.ProcessorConfig())
	if err != nil {
		return nil, fmt.Errorf("failed to initialize processor: %w", err)
	}

	scraperConfig := c.ScraperConfig()
	scraperConfig.OnProgress = opts.onPage
	s, err := scraper.NewWithConfig(scraperConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize scraper: %w", err)
	}

	index, err := openIndex(ctx, c, opts.mode)
	if err != nil {
		return nil, err
	}

	session, err := conversation.NewWithConfig(model, embedder, conversation.SessionConfig{K: c.Retriever.K})
	if err != nil {
		index.Close()
		return nil, err
	}
	if err := session.Initialize(index); err != nil {
		index.Close()
		return nil, err
	}

	pipeline, err := ingest.NewWithConfig(proc, embedder, index, ingest.PipelineConfig{
		BatchSize:  c.Embedder.BatchSize,
		Locker:     session.Locker(),
		OnProgress: opts.onProgress,
	})
	if err != nil {
		session.Close()
		return nil, err
	}
	pipeline.WithScraper(s)

	return &app{config: c, index: index, session: session, pipeline: pipeline}, nil
}

func openIndex(ctx context.Context, c *config.Config, mode openMode) (types.VectorIndex, error) {
	if mode == openExisting {
		index, err := store.Open(ctx, c.StoreConfig())
		if err != nil {
			return nil, err
		}
		logger.Debug("loaded index", "path", index.Path(), "records", index.Count())
		return index, nil
	}

	index, result, err := store.OpenOrCreate(ctx, c.StoreConfig())
	if err != nil {
		return nil, err
	}
	logger.Debug("opened index", "path", index.Path(), "result", result.String(), "records", index.Count())
	return index, nil
}

func (a *app) Close() error {
	return a.session.Close()
}

// newArchive builds the archive client. Only the directory-backed index
// can be archived.
func newArchive(ctx context.Context, c *config.Config) (*archive.Archive, error) {
	if c.Index.Backend != store.BackendLocal {
		return nil, fmt.Errorf("archive sync needs the %q index backend, got %q", store.BackendLocal, c.Index.Backend)
	}
	a, err := archive.NewWithConfig(ctx, c.ArchiveConfig())
	if err != nil {
		return nil, fmt.Errorf("failed to initialize archive: %w", err)
	}
	return a, nil
}

// pullIndex replaces the local index files with the archived ones.
func pullIndex(ctx context.Context, c *config.Config) (int, error) {
	a, err := newArchive(ctx, c)
	if err != nil {
		return 0, err
	}
	return a.Pull(ctx, c.Index.Path)
}

// autoPush uploads the index when the archive is enabled for it.
func autoPush(ctx context.Context, c *config.Config) (int, error) {
	if !c.Archive.Enabled || !c.Archive.AutoPush || c.Index.Backend != store.BackendLocal {
		return 0, nil
	}
	a, err := newArchive(ctx, c)
	if err != nil {
		return 0, err
	}
	return a.Push(ctx, c.Index.Path)
}
