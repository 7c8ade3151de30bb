package types

import "context"

// Role distinguishes system instructions from user turns.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

type Message struct {
	Role    Role
	Content string
}

// Completer is the text generation backend.
type Completer interface {
	Complete(ctx context.Context, messages []Message, temperature float64, maxTokens int) (string, error)
}

// Embedder is the embedding function. It must be deterministic for a fixed
// model and always return Dimension()-long vectors.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	Dimension() int
	ModelInfo() string
}
