package config

import (
	"github.com/xhad/docuchat/pkg/archive"
	"github.com/xhad/docuchat/pkg/llm"
	"github.com/xhad/docuchat/pkg/processor"
	"github.com/xhad/docuchat/pkg/scraper"
	"github.com/xhad/docuchat/pkg/store"
)

func (c *Config) ChatConfig() llm.ChatConfig {
	return llm.ChatConfig{
		ProviderConfig: llm.ProviderConfig{
			Provider: c.LLM.Provider,
			Model:    c.LLM.Model,
			BaseURL:  c.LLM.BaseURL,
			APIKey:   c.LLM.APIKey,
			Timeout:  c.LLM.Timeout,
		},
		MaxTokens: c.LLM.MaxTokens,
	}
}

func (c *Config) EmbedderConfig() llm.EmbedderConfig {
	return llm.EmbedderConfig{
		ProviderConfig: llm.ProviderConfig{
			Provider: c.Embedder.Provider,
			Model:    c.Embedder.Model,
			BaseURL:  c.Embedder.BaseURL,
			APIKey:   c.Embedder.APIKey,
			Timeout:  c.Embedder.Timeout,
		},
		BatchSize: c.Embedder.BatchSize,
	}
}

// StoreConfig maps the index section. For pgvector the table name takes
// the place of the path.
func (c *Config) StoreConfig() store.VectorStoreConfig {
	config := store.VectorStoreConfig{
		Backend:    c.Index.Backend,
		Path:       c.Index.Path,
		Collection: c.Index.Collection,
		Dimension:  c.Index.Dimension,
		Metric:     c.Index.Metric,
		ConnString: c.Index.DatabaseURL,
	}
	if config.Backend == store.BackendPGVector {
		config.Path = c.Index.TableName
	}
	return config
}

func (c *Config) ProcessorConfig() processor.ProcessorConfig {
	return processor.ProcessorConfig{
		ChunkSize:          c.Processor.ChunkSize,
		ChunkOverlap:       c.Processor.ChunkOverlap,
		CollapseWhitespace: c.Processor.CollapseWhitespace,
	}
}

func (c *Config) ScraperConfig() scraper.ScraperConfig {
	return scraper.ScraperConfig{
		MaxDepth:          c.Scraper.MaxDepth,
		MaxPages:          c.Scraper.MaxPages,
		RateLimit:         c.Scraper.RateLimit,
		IgnorePatterns:    c.Scraper.IgnorePatterns,
		AllowedExtensions: c.Scraper.AllowedExtensions,
		Timeout:           c.Scraper.Timeout,
	}
}

func (c *Config) ArchiveConfig() archive.ArchiveConfig {
	return archive.ArchiveConfig{
		Bucket:          c.Archive.Bucket,
		Prefix:          c.Archive.Prefix,
		CredentialsFile: c.Archive.CredentialsFile,
		AccessToken:     c.Archive.AccessToken,
		Endpoint:        c.Archive.Endpoint,
	}
}
