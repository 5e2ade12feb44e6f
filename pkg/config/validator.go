package config

import (
	"fmt"
	"net/url"
	"strings"
)

type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func validURL(raw string) bool {
	u, err := url.Parse(raw)
	return err == nil && u.Scheme != "" && u.Host != ""
}

func validateProvider(field, provider, baseURL, apiKey string) []ValidationError {
	var errors []ValidationError

	switch provider {
	case "ollama":
		if baseURL == "" {
			errors = append(errors, ValidationError{Field: field + ".base_url", Message: "Ollama base URL is required"})
		}
	case "openai":
		if apiKey == "" {
			errors = append(errors, ValidationError{Field: field + ".api_key", Message: "OpenAI API key is required (set OPENAI_API_KEY)"})
		}
	default:
		errors = append(errors, ValidationError{Field: field + ".provider", Message: fmt.Sprintf("unknown provider %q", provider)})
	}

	if baseURL != "" && !validURL(baseURL) {
		errors = append(errors, ValidationError{Field: field + ".base_url", Message: "invalid base URL"})
	}
	return errors
}

func (c *Config) Validate() []ValidationError {
	var errors []ValidationError

	errors = append(errors, validateProvider("llm", c.LLM.Provider, c.LLM.BaseURL, c.LLM.APIKey)...)

	if c.LLM.MaxTokens < 1 || c.LLM.MaxTokens > 4096 {
		errors = append(errors, ValidationError{
			Field:   "llm.max_tokens",
			Message: "max_tokens must be between 1 and 4096",
		})
	}

	errors = append(errors, validateProvider("embedder", c.Embedder.Provider, c.Embedder.BaseURL, c.Embedder.APIKey)...)

	if c.Embedder.BatchSize < 1 {
		errors = append(errors, ValidationError{
			Field:   "embedder.batch_size",
			Message: "batch_size must be positive",
		})
	}

	switch c.Index.Backend {
	case "local":
		if c.Index.Path == "" {
			errors = append(errors, ValidationError{Field: "index.path", Message: "index path is required"})
		}
	case "pgvector":
		if c.Index.DatabaseURL == "" {
			errors = append(errors, ValidationError{Field: "index.database_url", Message: "database URL is required (set DATABASE_URL)"})
		} else if !validURL(c.Index.DatabaseURL) {
			errors = append(errors, ValidationError{Field: "index.database_url", Message: "invalid database URL"})
		}
	default:
		errors = append(errors, ValidationError{
			Field:   "index.backend",
			Message: fmt.Sprintf("unknown backend %q", c.Index.Backend),
		})
	}

	if c.Index.Dimension < 0 {
		errors = append(errors, ValidationError{
			Field:   "index.dimension",
			Message: "dimension cannot be negative",
		})
	}

	if c.Index.Metric != "cosine" && c.Index.Metric != "l2" {
		errors = append(errors, ValidationError{
			Field:   "index.metric",
			Message: "metric must be cosine or l2",
		})
	}

	if c.Processor.ChunkSize < 1 {
		errors = append(errors, ValidationError{
			Field:   "processor.chunk_size",
			Message: "chunk_size must be positive",
		})
	}

	if c.Processor.ChunkOverlap < 0 || c.Processor.ChunkOverlap >= c.Processor.ChunkSize {
		errors = append(errors, ValidationError{
			Field:   "processor.chunk_overlap",
			Message: "chunk_overlap must be non-negative and less than chunk_size",
		})
	}

	if c.Retriever.K < 1 {
		errors = append(errors, ValidationError{
			Field:   "retriever.k",
			Message: "k must be positive",
		})
	}

	if c.Archive.Enabled && c.Archive.Bucket == "" {
		errors = append(errors, ValidationError{
			Field:   "archive.bucket",
			Message: "bucket is required when the archive is enabled",
		})
	}

	if c.Scraper.MaxDepth < 0 {
		errors = append(errors, ValidationError{
			Field:   "scraper.max_depth",
			Message: "max_depth cannot be negative",
		})
	}

	if c.Scraper.RateLimit <= 0 {
		errors = append(errors, ValidationError{
			Field:   "scraper.rate_limit",
			Message: "rate_limit must be positive",
		})
	}

	for _, ext := range c.Scraper.AllowedExtensions {
		if !strings.HasPrefix(ext, ".") && ext != "" && ext != "/" {
			errors = append(errors, ValidationError{
				Field:   "scraper.allowed_extensions",
				Message: fmt.Sprintf("invalid extension format: %s", ext),
			})
		}
	}

	if c.Server.MaxUploadMB < 1 {
		errors = append(errors, ValidationError{
			Field:   "server.max_upload_mb",
			Message: "max_upload_mb must be positive",
		})
	}

	return errors
}
