package llm

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"math"
	"sort"
	"strings"
	"time"

	goopenai "github.com/sashabaranov/go-openai"
	"github.com/tmc/langchaingo/llms/ollama"

	"github.com/xhad/printdesk/internal/types"
)

// EmbedderConfig configures the embedding function. Dimension is the length
// every returned vector must have.
type EmbedderConfig struct {
	Provider  string // "ollama", "openai" or "hash"
	Model     string
	BaseURL   string
	APIKey    string
	Dimension int
	Timeout   time.Duration
}

// NewEmbedderWithConfig builds the embedder named by config.Provider.
func NewEmbedderWithConfig(config EmbedderConfig) (types.Embedder, error) {
	switch strings.ToLower(config.Provider) {
	case "", "ollama":
		e, err := NewOllamaEmbedder(config)
		if err != nil {
			return nil, err
		}
		return e, nil
	case "openai":
		e, err := NewOpenAIEmbedder(config)
		if err != nil {
			return nil, err
		}
		return e, nil
	case "hash":
		return NewHashEmbedder(config.Dimension), nil
	default:
		return nil, fmt.Errorf("unknown embedding provider %q", config.Provider)
	}
}

// embeddingCreator is the part of a langchaingo client used for embeddings.
type embeddingCreator interface {
	CreateEmbedding(ctx context.Context, inputTexts []string) ([][]float32, error)
}

// LangchainEmbedder embeds through a langchaingo client such as ollama.
type LangchainEmbedder struct {
	config EmbedderConfig
	client embeddingCreator
}

func NewOllamaEmbedder(config EmbedderConfig) (*LangchainEmbedder, error) {
	if config.Model == "" {
		config.Model = "nomic-embed-text:latest"
	}
	if config.BaseURL == "" {
		config.BaseURL = "http://localhost:11434"
	}
	if config.Dimension <= 0 {
		return nil, errors.New("embedding dimension must be positive")
	}

	client, err := ollama.New(ollama.WithModel(config.Model), ollama.WithServerURL(config.BaseURL))
	if err != nil {
		return nil, fmt.Errorf("failed to initialize embedder: %w", err)
	}
	return &LangchainEmbedder{config: config, client: client}, nil
}

func (e *LangchainEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	if e.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.config.Timeout)
		defer cancel()
	}

	vectors, err := e.client.CreateEmbedding(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("create embeddings: %w", err)
	}
	if err := checkVectors(vectors, len(texts), e.config.Dimension); err != nil {
		return nil, err
	}
	return vectors, nil
}

func (e *LangchainEmbedder) Dimension() int { return e.config.Dimension }

func (e *LangchainEmbedder) ModelInfo() string { return "ollama-" + e.config.Model }

// OpenAIEmbedder uses an OpenAI-compatible embeddings endpoint.
type OpenAIEmbedder struct {
	config EmbedderConfig
	client *goopenai.Client
}

func NewOpenAIEmbedder(config EmbedderConfig) (*OpenAIEmbedder, error) {
	if config.APIKey == "" {
		return nil, errors.New("openai embedder requires an API key")
	}
	if config.Model == "" {
		config.Model = string(goopenai.SmallEmbedding3)
	}
	if config.Dimension <= 0 {
		return nil, errors.New("embedding dimension must be positive")
	}

	clientConfig := goopenai.DefaultConfig(config.APIKey)
	if config.BaseURL != "" {
		clientConfig.BaseURL = config.BaseURL
	}
	return &OpenAIEmbedder{config: config, client: goopenai.NewClientWithConfig(clientConfig)}, nil
}

func (e *OpenAIEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	if e.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.config.Timeout)
		defer cancel()
	}

	req := goopenai.EmbeddingRequest{
		Model: goopenai.EmbeddingModel(e.config.Model),
		Input: texts,
	}
	// Only the v3 models can shorten their output.
	if strings.HasPrefix(e.config.Model, "text-embedding-3") {
		req.Dimensions = e.config.Dimension
	}

	resp, err := e.client.CreateEmbeddings(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("OpenAI API error: %w", err)
	}

	data := resp.Data
	sort.SliceStable(data, func(i, j int) bool { return data[i].Index < data[j].Index })

	vectors := make([][]float32, len(data))
	for i, d := range data {
		v := make([]float32, len(d.Embedding))
		for j := range d.Embedding {
			v[j] = float32(d.Embedding[j])
		}
		vectors[i] = v
	}
	if err := checkVectors(vectors, len(texts), e.config.Dimension); err != nil {
		return nil, err
	}
	return vectors, nil
}

func (e *OpenAIEmbedder) Dimension() int { return e.config.Dimension }

func (e *OpenAIEmbedder) ModelInfo() string { return "openai-" + e.config.Model }

// HashEmbedder is an offline embedder that hashes lower-cased words into
// buckets and L2-normalizes the result. It needs no model and is fully
// deterministic, which makes it useful for local runs and tests.
type HashEmbedder struct {
	dim int
}

func NewHashEmbedder(dimension int) *HashEmbedder {
	if dimension <= 0 {
		dimension = 384
	}
	return &HashEmbedder{dim: dimension}
}

func (e *HashEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		v := make([]float32, e.dim)
		for _, word := range strings.Fields(strings.ToLower(text)) {
			word = strings.Trim(word, ".,!?;:()\"'«»")
			if word == "" {
				continue
			}
			h := fnv.New32a()
			h.Write([]byte(word))
			v[h.Sum32()%uint32(e.dim)]++
		}
		l2normalize(v)
		out[i] = v
	}
	return out, nil
}

func (e *HashEmbedder) Dimension() int { return e.dim }

func (e *HashEmbedder) ModelInfo() string { return fmt.Sprintf("hash-%d", e.dim) }

func checkVectors(vectors [][]float32, want, dim int) error {
	if len(vectors) != want {
		return fmt.Errorf("embedding backend returned %d vectors for %d texts", len(vectors), want)
	}
	for i, v := range vectors {
		if len(v) != dim {
			return fmt.Errorf("embedding %d has dimension %d, want %d", i, len(v), dim)
		}
	}
	return nil
}

// l2normalize normalizes a vector to unit length
func l2normalize(v []float32) {
	var sum float32
	for _, x := range v {
		sum += x * x
	}
	if sum == 0 {
		return
	}
	inv := float32(1.0 / math.Sqrt(float64(sum)))
	for i := range v {
		v[i] *= inv
	}
}
