// Package llm defines the Provider interface for the short, single-shot
// chat completions Partline performs: part-mention extraction and candidate
// arbitration. Streaming and tool calling are deliberately not part of the
// contract — both call sites need exactly one text reply.
//
// Implementors must be safe for concurrent use and must propagate context
// cancellation promptly.
package llm

import "context"

// Request carries one completion request.
type Request struct {
	// SystemPrompt is the instruction block. Arbitration sends its full
	// prompt here with no user message, mirroring the upstream contract.
	SystemPrompt string

	// UserPrompt is the optional user-role message (the raw transcript for
	// extraction). Empty means no user message is sent.
	UserPrompt string

	// Temperature controls output randomness. Zero means provider default.
	Temperature float64

	// MaxTokens caps the completion length. Zero means provider default.
	MaxTokens int
}

// Provider is the abstraction over any chat-completion backend.
type Provider interface {
	// Complete sends req and returns the model's full text reply.
	Complete(ctx context.Context, req Request) (string, error)

	// ModelID returns the configured model identifier, for logging.
	ModelID() string
}
