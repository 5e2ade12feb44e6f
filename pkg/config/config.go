package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type LLMConfig struct {
	Provider  string        `yaml:"provider"`
	BaseURL   string        `yaml:"base_url"`
	Model     string        `yaml:"model"`
	APIKey    string        `yaml:"api_key"`
	MaxTokens int           `yaml:"max_tokens"`
	Timeout   time.Duration `yaml:"timeout"`
}

type EmbedderConfig struct {
	Provider  string        `yaml:"provider"`
	BaseURL   string        `yaml:"base_url"`
	Model     string        `yaml:"model"`
	APIKey    string        `yaml:"api_key"`
	BatchSize int           `yaml:"batch_size"`
	Timeout   time.Duration `yaml:"timeout"`
}

type IndexConfig struct {
	Backend     string `yaml:"backend"`
	Path        string `yaml:"path"`
	Collection  string `yaml:"collection"`
	Dimension   int    `yaml:"dimension"`
	Metric      string `yaml:"metric"`
	DatabaseURL string `yaml:"database_url"`
	TableName   string `yaml:"table_name"`
}

type ProcessorConfig struct {
	ChunkSize          int  `yaml:"chunk_size"`
	ChunkOverlap       int  `yaml:"chunk_overlap"`
	CollapseWhitespace bool `yaml:"collapse_whitespace"`
}

type RetrieverConfig struct {
	K int `yaml:"k"`
}

type ArchiveConfig struct {
	Enabled         bool   `yaml:"enabled"`
	Bucket          string `yaml:"bucket"`
	Prefix          string `yaml:"prefix"`
	CredentialsFile string `yaml:"credentials_file"`
	AccessToken     string `yaml:"access_token"`
	Endpoint        string `yaml:"endpoint"`
	// AutoPush uploads the index after every successful ingestion.
	AutoPush bool `yaml:"auto_push"`
}

type ScraperConfig struct {
	MaxDepth          int           `yaml:"max_depth"`
	MaxPages          int           `yaml:"max_pages"`
	RateLimit         float64       `yaml:"rate_limit"`
	IgnorePatterns    []string      `yaml:"ignore_patterns"`
	AllowedExtensions []string      `yaml:"allowed_extensions"`
	Timeout           time.Duration `yaml:"timeout"`
}

type ServerConfig struct {
	Addr        string `yaml:"addr"`
	MaxUploadMB int    `yaml:"max_upload_mb"`
}

type UIConfig struct {
	Color   bool `yaml:"color"`
	Verbose bool `yaml:"verbose"`
}

type Config struct {
	LLM       LLMConfig       `yaml:"llm"`
	Embedder  EmbedderConfig  `yaml:"embedder"`
	Index     IndexConfig     `yaml:"index"`
	Processor ProcessorConfig `yaml:"processor"`
	Retriever RetrieverConfig `yaml:"retriever"`
	Archive   ArchiveConfig   `yaml:"archive"`
	Scraper   ScraperConfig   `yaml:"scraper"`
	Server    ServerConfig    `yaml:"server"`
	UI        UIConfig        `yaml:"ui"`
}

// SearchPaths lists the config file locations tried when no path is given.
func SearchPaths() []string {
	paths := []string{"config.yaml", "config.yml"}
	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".config", "docuchat", "config.yaml"))
	}
	return append(paths, "/etc/docuchat/config.yaml")
}

// LoadEnv loads variables from the given .env files, or ./.env, without
// overriding variables that are already set. Missing files are ignored.
func LoadEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, file := range files {
		if _, err := os.Stat(file); err != nil {
			continue
		}
		if err := godotenv.Load(file); err != nil {
			return fmt.Errorf("error loading %s: %v", file, err)
		}
	}
	return nil
}

func LoadConfig(path string) (*Config, error) {
	if path == "" {
		for _, loc := range SearchPaths() {
			if _, err := os.Stat(loc); err == nil {
				path = loc
				break
			}
		}
	}

	if path == "" {
		return getDefaultConfig()
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %v", err)
	}

	config := defaultToggles()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("error parsing config file: %v", err)
	}

	mergeWithEnv(config)
	applyDefaults(config)

	return config, nil
}

// defaultToggles returns a config whose boolean defaults are true, so a
// file that omits them keeps them on.
func defaultToggles() *Config {
	config := &Config{}
	config.UI.Color = true
	return config
}

func getDefaultConfig() (*Config, error) {
	config := defaultToggles()
	mergeWithEnv(config)
	applyDefaults(config)
	return config, nil
}

func applyDefaults(config *Config) {
	if config.LLM.Provider == "" {
		config.LLM.Provider = "ollama"
	}
	if config.LLM.Model == "" {
		if config.LLM.Provider == "openai" {
			config.LLM.Model = "gpt-4"
		} else {
			config.LLM.Model = "mistral"
		}
	}
	if config.LLM.MaxTokens == 0 {
		config.LLM.MaxTokens = 2000
	}
	if config.LLM.Provider == "ollama" && config.LLM.BaseURL == "" {
		config.LLM.BaseURL = "http://localhost:11434"
	}
	if config.LLM.Timeout == 0 {
		config.LLM.Timeout = 60 * time.Second
	}

	if config.Embedder.Provider == "" {
		config.Embedder.Provider = config.LLM.Provider
	}
	if config.Embedder.Model == "" {
		if config.Embedder.Provider == "openai" {
			config.Embedder.Model = "text-embedding-ada-002"
		} else {
			config.Embedder.Model = "nomic-embed-text:latest"
		}
	}
	if config.Embedder.BaseURL == "" && config.Embedder.Provider == config.LLM.Provider {
		config.Embedder.BaseURL = config.LLM.BaseURL
	}
	if config.Embedder.APIKey == "" && config.Embedder.Provider == config.LLM.Provider {
		config.Embedder.APIKey = config.LLM.APIKey
	}
	if config.Embedder.BatchSize == 0 {
		config.Embedder.BatchSize = 64
	}
	if config.Embedder.Timeout == 0 {
		config.Embedder.Timeout = 60 * time.Second
	}

	if config.Index.Backend == "" {
		config.Index.Backend = "local"
	}
	if config.Index.Path == "" {
		config.Index.Path = "./local_index"
	}
	if config.Index.Collection == "" {
		config.Index.Collection = "docuchat_collection"
	}
	if config.Index.Metric == "" {
		config.Index.Metric = "cosine"
	}
	if config.Index.TableName == "" {
		config.Index.TableName = "documents"
	}

	if config.Processor.ChunkSize == 0 {
		config.Processor.ChunkSize = 1000
		if config.Processor.ChunkOverlap == 0 {
			config.Processor.ChunkOverlap = 100
		}
	}

	if config.Retriever.K == 0 {
		config.Retriever.K = 3
	}

	if config.Archive.Bucket == "" {
		config.Archive.Bucket = "docuchat_storage"
	}
	if config.Archive.Prefix == "" {
		config.Archive.Prefix = "persistentdb"
	}

	if config.Scraper.MaxPages == 0 {
		config.Scraper.MaxPages = 50
	}
	if config.Scraper.RateLimit == 0 {
		config.Scraper.RateLimit = 2.0
	}
	if len(config.Scraper.AllowedExtensions) == 0 {
		config.Scraper.AllowedExtensions = []string{".html", ".htm", "/", ""}
	}
	if config.Scraper.Timeout == 0 {
		config.Scraper.Timeout = 30 * time.Second
	}

	if config.Server.Addr == "" {
		config.Server.Addr = ":8080"
	}
	if config.Server.MaxUploadMB == 0 {
		config.Server.MaxUploadMB = 32
	}
}

func mergeWithEnv(config *Config) {
	if apiKey := os.Getenv("OPENAI_API_KEY"); apiKey != "" {
		if config.LLM.APIKey == "" {
			config.LLM.APIKey = apiKey
		}
		if config.Embedder.APIKey == "" {
			config.Embedder.APIKey = apiKey
		}
	}
	if baseURL := os.Getenv("OLLAMA_BASE_URL"); baseURL != "" {
		config.LLM.BaseURL = baseURL
	}
	if dbURL := os.Getenv("DATABASE_URL"); dbURL != "" {
		config.Index.DatabaseURL = dbURL
	}
	if bucket := os.Getenv("GCS_BUCKET_NAME"); bucket != "" {
		config.Archive.Bucket = bucket
	}
	if collection := os.Getenv("COLLECTION_NAME"); collection != "" {
		config.Index.Collection = collection
	}
	if path := os.Getenv("DOCUCHAT_INDEX_PATH"); path != "" {
		config.Index.Path = path
	}
	if creds := os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"); creds != "" && config.Archive.CredentialsFile == "" {
		config.Archive.CredentialsFile = creds
	}
}
