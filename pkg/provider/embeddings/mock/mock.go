// Package mock provides a deterministic embeddings.Provider for tests.
package mock

import (
	"context"
	"sync"

	"github.com/partline/partline/pkg/provider/embeddings"
)

var _ embeddings.Provider = (*Provider)(nil)

// Provider is a test double for embeddings.Provider. Texts present in
// Vectors get their fixed vector; everything else gets Default (or the
// zero vector of the configured dimension).
type Provider struct {
	// Dims is the vector dimension reported and produced. Required.
	Dims int

	// Vectors maps input text to its fixed embedding.
	Vectors map[string][]float32

	// Default is returned for texts absent from Vectors. When nil, a zero
	// vector of Dims is returned instead.
	Default []float32

	// Err, when set, is returned by every EmbedBatch call.
	Err error

	mu     sync.Mutex
	inputs [][]string
}

// EmbedBatch implements embeddings.Provider.
func (p *Provider) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	p.mu.Lock()
	p.inputs = append(p.inputs, texts)
	p.mu.Unlock()

	if p.Err != nil {
		return nil, p.Err
	}
	if len(texts) == 0 {
		return nil, nil
	}

	out := make([][]float32, len(texts))
	for i, text := range texts {
		if v, ok := p.Vectors[text]; ok {
			out[i] = v
			continue
		}
		if p.Default != nil {
			out[i] = p.Default
			continue
		}
		out[i] = make([]float32, p.Dims)
	}
	return out, nil
}

// Dimensions implements embeddings.Provider.
func (p *Provider) Dimensions() int { return p.Dims }

// ModelID implements embeddings.Provider.
func (p *Provider) ModelID() string { return "mock" }

// Inputs returns a copy of all recorded batch inputs.
func (p *Provider) Inputs() [][]string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([][]string, len(p.inputs))
	copy(out, p.inputs)
	return out
}
