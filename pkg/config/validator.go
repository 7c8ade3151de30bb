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

func (c *Config) Validate() []ValidationError {
	var errors []ValidationError

	// Validate LLM config
	switch c.LLM.Provider {
	case "ollama":
		if c.LLM.BaseURL == "" {
			errors = append(errors, ValidationError{
				Field:   "llm.base_url",
				Message: "Ollama base URL is required",
			})
		}
	case "openai":
		if c.LLM.APIKey == "" {
			errors = append(errors, ValidationError{
				Field:   "llm.api_key_env",
				Message: fmt.Sprintf("environment variable %s is not set", c.LLM.APIKeyEnv),
			})
		}
	default:
		errors = append(errors, ValidationError{
			Field:   "llm.provider",
			Message: fmt.Sprintf("unknown provider: %s", c.LLM.Provider),
		})
	}

	if c.LLM.BaseURL != "" {
		if _, err := url.ParseRequestURI(c.LLM.BaseURL); err != nil {
			errors = append(errors, ValidationError{
				Field:   "llm.base_url",
				Message: "invalid base URL",
			})
		}
	}

	if c.LLM.MaxTokens < 1 || c.LLM.MaxTokens > 4096 {
		errors = append(errors, ValidationError{
			Field:   "llm.max_tokens",
			Message: "max_tokens must be between 1 and 4096",
		})
	}

	if c.LLM.Temperature < 0 || c.LLM.Temperature > 2 {
		errors = append(errors, ValidationError{
			Field:   "llm.temperature",
			Message: "temperature must be between 0 and 2",
		})
	}

	if c.LLM.MaxConcurrency < 1 {
		errors = append(errors, ValidationError{
			Field:   "llm.max_concurrency",
			Message: "max_concurrency must be positive",
		})
	}

	if c.LLM.Classifier != "keyword" && c.LLM.Classifier != "llm" {
		errors = append(errors, ValidationError{
			Field:   "llm.classifier",
			Message: "classifier must be keyword or llm",
		})
	}

	// Validate embedding config
	switch c.Embedding.Provider {
	case "ollama", "hash":
	case "openai":
		if c.Embedding.APIKey == "" {
			errors = append(errors, ValidationError{
				Field:   "embedding.api_key_env",
				Message: fmt.Sprintf("environment variable %s is not set", c.Embedding.APIKeyEnv),
			})
		}
	default:
		errors = append(errors, ValidationError{
			Field:   "embedding.provider",
			Message: fmt.Sprintf("unknown provider: %s", c.Embedding.Provider),
		})
	}

	if c.Embedding.Dimension < 1 {
		errors = append(errors, ValidationError{
			Field:   "embedding.dimension",
			Message: "dimension must be positive",
		})
	}

	if c.Embedding.BatchSize < 1 {
		errors = append(errors, ValidationError{
			Field:   "embedding.batch_size",
			Message: "batch_size must be positive",
		})
	}

	// Validate index and database config
	switch c.Index.Backend {
	case "flat":
	case "pgvector":
		if c.Database.URL == "" {
			errors = append(errors, ValidationError{
				Field:   "database.url",
				Message: "database URL is required for the pgvector backend",
			})
		}
	default:
		errors = append(errors, ValidationError{
			Field:   "index.backend",
			Message: fmt.Sprintf("unknown backend: %s", c.Index.Backend),
		})
	}

	if c.Database.URL != "" {
		if _, err := url.Parse(c.Database.URL); err != nil {
			errors = append(errors, ValidationError{
				Field:   "database.url",
				Message: "invalid database URL",
			})
		}
	}

	if c.Database.BatchSize < 1 {
		errors = append(errors, ValidationError{
			Field:   "database.batch_size",
			Message: "batch_size must be positive",
		})
	}

	if c.Retrieval.TopK < 1 || c.Retrieval.TopK > 50 {
		errors = append(errors, ValidationError{
			Field:   "retrieval.top_k",
			Message: "top_k must be between 1 and 50",
		})
	}

	// Validate scraper config
	if c.Scraper.RateLimit <= 0 {
		errors = append(errors, ValidationError{
			Field:   "scraper.rate_limit",
			Message: "rate_limit must be positive",
		})
	}

	if !strings.HasPrefix(c.Scraper.IndexURL, "http://") && !strings.HasPrefix(c.Scraper.IndexURL, "https://") {
		errors = append(errors, ValidationError{
			Field:   "scraper.index_url",
			Message: "index_url must be an http(s) URL",
		})
	}

	// Validate processor config
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

	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "error":
	default:
		errors = append(errors, ValidationError{
			Field:   "log.level",
			Message: fmt.Sprintf("unknown level: %s", c.Log.Level),
		})
	}

	return errors
}
