package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	LLM       LLMConfig       `yaml:"llm"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	Corpus    CorpusConfig    `yaml:"corpus"`
	Index     IndexConfig     `yaml:"index"`
	Database  DatabaseConfig  `yaml:"database"`
	Retrieval RetrievalConfig `yaml:"retrieval"`
	Scraper   ScraperConfig   `yaml:"scraper"`
	Processor ProcessorConfig `yaml:"processor"`
	Server    ServerConfig    `yaml:"server"`
	Telegram  TelegramConfig  `yaml:"telegram"`
	Log       LogConfig       `yaml:"log"`
}

type LLMConfig struct {
	Provider       string        `yaml:"provider"`
	BaseURL        string        `yaml:"base_url"`
	Model          string        `yaml:"model"`
	APIKeyEnv      string        `yaml:"api_key_env"`
	APIKey         string        `yaml:"-"`
	MaxTokens      int           `yaml:"max_tokens"`
	Temperature    float64       `yaml:"temperature"`
	Timeout        time.Duration `yaml:"timeout"`
	MaxConcurrency int           `yaml:"max_concurrency"`
	// Classifier is "keyword" or "llm".
	Classifier string `yaml:"classifier"`
}

type EmbeddingConfig struct {
	Provider  string        `yaml:"provider"`
	BaseURL   string        `yaml:"base_url"`
	Model     string        `yaml:"model"`
	APIKeyEnv string        `yaml:"api_key_env"`
	APIKey    string        `yaml:"-"`
	Dimension int           `yaml:"dimension"`
	BatchSize int           `yaml:"batch_size"`
	Workers   int           `yaml:"workers"`
	Timeout   time.Duration `yaml:"timeout"`
}

type CorpusConfig struct {
	Path string `yaml:"path"`
}

type IndexConfig struct {
	// Backend is "flat" or "pgvector".
	Backend string `yaml:"backend"`
	Dir     string `yaml:"dir"`
}

type DatabaseConfig struct {
	URL       string `yaml:"url"`
	TableName string `yaml:"table_name"`
	BatchSize int    `yaml:"batch_size"`
}

type RetrievalConfig struct {
	TopK             int  `yaml:"top_k"`
	ContextChars     int  `yaml:"context_chars"`
	EnableValidation bool `yaml:"enable_validation"`
}

type ScraperConfig struct {
	IndexURL         string        `yaml:"index_url"`
	MaxArticles      int           `yaml:"max_articles"`
	RateLimit        float64       `yaml:"rate_limit"`
	Timeout          time.Duration `yaml:"timeout"`
	UserAgent        string        `yaml:"user_agent"`
	IgnorePatterns   []string      `yaml:"ignore_patterns"`
	MinContentLength int           `yaml:"min_content_length"`
}

type ProcessorConfig struct {
	ChunkSize        int `yaml:"chunk_size"`
	ChunkOverlap     int `yaml:"chunk_overlap"`
	MinContentLength int `yaml:"min_content_length"`
}

type ServerConfig struct {
	Addr           string   `yaml:"addr"`
	AllowedOrigins []string `yaml:"allowed_origins"`
}

type TelegramConfig struct {
	TokenEnv string `yaml:"token_env"`
	Token    string `yaml:"-"`
	Debug    bool   `yaml:"debug"`
}

type LogConfig struct {
	Level       string `yaml:"level"`
	Development bool   `yaml:"development"`
}

func LoadConfig(path string) (*Config, error) {
	// If no path provided, try default locations
	if path == "" {
		locations := []string{
			"config.yaml",
			"config.yml",
			filepath.Join(os.Getenv("HOME"), ".config/printdesk/config.yaml"),
			"/etc/printdesk/config.yaml",
		}

		for _, loc := range locations {
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
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	config := Config{Retrieval: RetrievalConfig{EnableValidation: true}}
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}

	applyDefaults(&config)
	mergeWithEnv(&config)

	return &config, nil
}

func getDefaultConfig() (*Config, error) {
	config := &Config{Retrieval: RetrievalConfig{EnableValidation: true}}
	applyDefaults(config)
	mergeWithEnv(config)
	return config, nil
}

func applyDefaults(config *Config) {
	if config.LLM.Provider == "" {
		config.LLM.Provider = "ollama"
	}
	if config.LLM.Model == "" {
		config.LLM.Model = "mistral"
	}
	if config.LLM.BaseURL == "" && config.LLM.Provider == "ollama" {
		config.LLM.BaseURL = "http://localhost:11434"
	}
	if config.LLM.APIKeyEnv == "" {
		config.LLM.APIKeyEnv = "PERPLEXITY_API_KEY"
	}
	if config.LLM.MaxTokens == 0 {
		config.LLM.MaxTokens = 1200
	}
	if config.LLM.Temperature == 0 {
		config.LLM.Temperature = 0.4
	}
	if config.LLM.Timeout == 0 {
		config.LLM.Timeout = 60 * time.Second
	}
	if config.LLM.MaxConcurrency == 0 {
		config.LLM.MaxConcurrency = 4
	}
	if config.LLM.Classifier == "" {
		config.LLM.Classifier = "keyword"
	}

	if config.Embedding.Provider == "" {
		config.Embedding.Provider = "ollama"
	}
	if config.Embedding.Model == "" {
		config.Embedding.Model = "all-minilm"
	}
	if config.Embedding.BaseURL == "" && config.Embedding.Provider == "ollama" {
		config.Embedding.BaseURL = "http://localhost:11434"
	}
	if config.Embedding.APIKeyEnv == "" {
		config.Embedding.APIKeyEnv = "OPENAI_API_KEY"
	}
	if config.Embedding.Dimension == 0 {
		config.Embedding.Dimension = 384
	}
	if config.Embedding.BatchSize == 0 {
		config.Embedding.BatchSize = 32
	}
	if config.Embedding.Workers == 0 {
		config.Embedding.Workers = 4
	}
	if config.Embedding.Timeout == 0 {
		config.Embedding.Timeout = 30 * time.Second
	}

	if config.Corpus.Path == "" {
		config.Corpus.Path = "data/processed/chunks.jsonl"
	}
	if config.Index.Backend == "" {
		config.Index.Backend = "flat"
	}
	if config.Index.Dir == "" {
		config.Index.Dir = "data/index"
	}

	if config.Database.TableName == "" {
		config.Database.TableName = "chunk_embeddings"
	}
	if config.Database.BatchSize == 0 {
		config.Database.BatchSize = 100
	}

	if config.Retrieval.TopK == 0 {
		config.Retrieval.TopK = 3
	}
	if config.Retrieval.ContextChars == 0 {
		config.Retrieval.ContextChars = 800
	}

	if config.Scraper.IndexURL == "" {
		config.Scraper.IndexURL = "https://3dtoday.ru/wiki/"
	}
	if config.Scraper.MaxArticles == 0 {
		config.Scraper.MaxArticles = 100
	}
	if config.Scraper.RateLimit == 0 {
		config.Scraper.RateLimit = 0.5
	}
	if config.Scraper.Timeout == 0 {
		config.Scraper.Timeout = 10 * time.Second
	}
	if config.Scraper.UserAgent == "" {
		config.Scraper.UserAgent = "Mozilla/5.0 (compatible; printdesk/1.0)"
	}
	if config.Scraper.MinContentLength == 0 {
		config.Scraper.MinContentLength = 100
	}

	if config.Processor.ChunkSize == 0 {
		config.Processor.ChunkSize = 500
	}
	if config.Processor.ChunkOverlap == 0 {
		config.Processor.ChunkOverlap = 100
	}
	if config.Processor.MinContentLength == 0 {
		config.Processor.MinContentLength = 100
	}

	if config.Server.Addr == "" {
		config.Server.Addr = ":8080"
	}
	if config.Telegram.TokenEnv == "" {
		config.Telegram.TokenEnv = "TELEGRAM_BOT_TOKEN"
	}
	if config.Log.Level == "" {
		config.Log.Level = "info"
	}
}

func mergeWithEnv(config *Config) {
	if baseURL := os.Getenv("OLLAMA_BASE_URL"); baseURL != "" {
		if config.LLM.Provider == "ollama" {
			config.LLM.BaseURL = baseURL
		}
		if config.Embedding.Provider == "ollama" {
			config.Embedding.BaseURL = baseURL
		}
	}
	if baseURL := os.Getenv("LLM_BASE_URL"); baseURL != "" {
		config.LLM.BaseURL = baseURL
	}
	if dbURL := os.Getenv("DATABASE_URL"); dbURL != "" {
		config.Database.URL = dbURL
	}
	if level := os.Getenv("LOG_LEVEL"); level != "" {
		config.Log.Level = level
	}
	if os.Getenv("ENV") == "development" {
		config.Log.Development = true
	}

	config.LLM.APIKey = os.Getenv(config.LLM.APIKeyEnv)
	config.Embedding.APIKey = os.Getenv(config.Embedding.APIKeyEnv)
	config.Telegram.Token = os.Getenv(config.Telegram.TokenEnv)
}
