// Package embeddings defines the Provider interface for text embedding
// backends. Partline embeds part-mention strings in one batch per
// resolution round; the response must preserve input order so vectors stay
// aligned with their mentions.
//
// Implementors must be safe for concurrent use.
package embeddings

import "context"

// Provider is the abstraction over any embedding backend.
type Provider interface {
	// EmbedBatch returns one fixed-dimension vector per input text, in the
	// same order. An empty input yields a nil result and no error.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Dimensions returns the vector dimension this provider produces. It
	// must match the dimension of the loaded catalog index.
	Dimensions() int

	// ModelID returns the configured model identifier, for logging.
	ModelID() string
}
