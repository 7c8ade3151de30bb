package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"

	"github.com/xhad/printdesk/internal/types"
)

var (
	ErrBackendUnavailable = errors.New("llm: backend unavailable")
	ErrBackendTimeout     = errors.New("llm: backend timed out")
	ErrMalformedResponse  = errors.New("llm: malformed backend response")
)

// ChatConfig represents the configuration for a chat engine.
type ChatConfig struct {
	Provider string // "ollama" or "openai" (any OpenAI-compatible API, e.g. Perplexity)
	Model    string
	BaseURL  string
	APIKey   string
	Timeout  time.Duration
}

// ChatEngine sends chat completions to a langchaingo model.
type ChatEngine struct {
	config ChatConfig
	llm    llms.Model
}

// NewWithConfig creates a new ChatEngine with the given configuration.
func NewWithConfig(config ChatConfig) (*ChatEngine, error) {
	if config.Provider == "" {
		config.Provider = "ollama"
	}
	if config.Timeout == 0 {
		config.Timeout = 60 * time.Second
	}

	var (
		model llms.Model
		err   error
	)
	switch strings.ToLower(config.Provider) {
	case "ollama":
		if config.Model == "" {
			config.Model = "mistral"
		}
		if config.BaseURL == "" {
			config.BaseURL = "http://localhost:11434"
		}
		model, err = ollama.New(ollama.WithModel(config.Model), ollama.WithServerURL(config.BaseURL))
	case "openai":
		if config.APIKey == "" {
			return nil, fmt.Errorf("openai provider requires an API key")
		}
		opts := []openai.Option{openai.WithToken(config.APIKey)}
		if config.Model != "" {
			opts = append(opts, openai.WithModel(config.Model))
		}
		if config.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(config.BaseURL))
		}
		model, err = openai.New(opts...)
	default:
		return nil, fmt.Errorf("unknown llm provider %q", config.Provider)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to initialize LLM: %w", err)
	}

	return NewWithModel(model, config), nil
}

// NewWithModel wraps an already constructed model.
func NewWithModel(model llms.Model, config ChatConfig) *ChatEngine {
	return &ChatEngine{config: config, llm: model}
}

// Complete sends messages to the backend and returns the first choice. Every
// failure is reported as one of ErrBackendUnavailable, ErrBackendTimeout or
// ErrMalformedResponse.
func (ce *ChatEngine) Complete(ctx context.Context, messages []types.Message, temperature float64, maxTokens int) (string, error) {
	if ce.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, ce.config.Timeout)
		defer cancel()
	}

	content := make([]llms.MessageContent, 0, len(messages))
	for _, m := range messages {
		content = append(content, llms.TextParts(messageType(m.Role), m.Content))
	}

	opts := []llms.CallOption{llms.WithTemperature(temperature)}
	if maxTokens > 0 {
		opts = append(opts, llms.WithMaxTokens(maxTokens))
	}

	response, err := ce.llm.GenerateContent(ctx, content, opts...)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return "", fmt.Errorf("%w: %v", ErrBackendTimeout, err)
		}
		return "", fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}

	if response == nil || len(response.Choices) == 0 || response.Choices[0] == nil {
		return "", fmt.Errorf("%w: no choices", ErrMalformedResponse)
	}
	text := strings.TrimSpace(response.Choices[0].Content)
	if text == "" {
		return "", fmt.Errorf("%w: empty content", ErrMalformedResponse)
	}
	return text, nil
}

func messageType(role types.Role) llms.ChatMessageType {
	switch role {
	case types.RoleSystem:
		return llms.ChatMessageTypeSystem
	case types.RoleAssistant:
		return llms.ChatMessageTypeAI
	default:
		return llms.ChatMessageTypeHuman
	}
}
