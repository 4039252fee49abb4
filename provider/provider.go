package provider

import (
	"context"
)

// Role values for chat messages.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message represents a message in a conversation
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// CompletionOptions carries the sampling parameters for a single completion.
type CompletionOptions struct {
	MaxTokens   int
	Temperature float64
	TopP        float64
}

// Provider is the interface all LLM/embedding implementations must satisfy.
// CreateEmbedding is assumed deterministic for identical input within a session.
type Provider interface {
	Complete(ctx context.Context, messages []Message, opts CompletionOptions) (string, error)
	CreateEmbedding(ctx context.Context, texts []string) ([][]float32, error)
}
