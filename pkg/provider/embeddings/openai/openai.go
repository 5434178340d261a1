// Package openai provides an embeddings provider backed by the OpenAI API.
package openai

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/partline/partline/pkg/provider/embeddings"
)

// DefaultModel is the embeddings model used when none is configured.
const DefaultModel = oai.EmbeddingModelTextEmbedding3Small

var _ embeddings.Provider = (*Provider)(nil)

// Option is a functional option for Provider.
type Option func(*settings)

type settings struct {
	requestOpts []option.RequestOption
}

// WithBaseURL points the client at a compatible non-default endpoint.
func WithBaseURL(url string) Option {
	return func(s *settings) {
		s.requestOpts = append(s.requestOpts, option.WithBaseURL(url))
	}
}

// WithTimeout bounds each embedding request.
func WithTimeout(d time.Duration) Option {
	return func(s *settings) {
		s.requestOpts = append(s.requestOpts, option.WithHTTPClient(&http.Client{Timeout: d}))
	}
}

// Provider turns part-name batches into embedding vectors via the OpenAI
// embeddings endpoint.
type Provider struct {
	client oai.Client
	model  string
}

// New creates a Provider. An empty model selects [DefaultModel].
func New(apiKey, model string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("openai embeddings: apiKey must not be empty")
	}
	if model == "" {
		model = DefaultModel
	}
	s := settings{requestOpts: []option.RequestOption{option.WithAPIKey(apiKey)}}
	for _, o := range opts {
		o(&s)
	}
	return &Provider{client: oai.NewClient(s.requestOpts...), model: model}, nil
}

// EmbedBatch implements embeddings.Provider. Output order follows input
// order regardless of the order the API reports.
func (p *Provider) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	resp, err := p.client.Embeddings.New(ctx, oai.EmbeddingNewParams{
		Model: p.model,
		Input: oai.EmbeddingNewParamsInputUnion{OfArrayOfStrings: texts},
	})
	if err != nil {
		return nil, fmt.Errorf("openai embeddings: embed batch: %w", err)
	}
	if len(resp.Data) != len(texts) {
		return nil, fmt.Errorf("openai embeddings: expected %d embeddings, got %d", len(texts), len(resp.Data))
	}

	vectors := make([][]float32, len(texts))
	for _, item := range resp.Data {
		if int(item.Index) >= len(texts) {
			return nil, fmt.Errorf("openai embeddings: unexpected index %d", item.Index)
		}
		vec := make([]float32, len(item.Embedding))
		for i, v := range item.Embedding {
			vec[i] = float32(v)
		}
		vectors[item.Index] = vec
	}
	return vectors, nil
}

// modelDims maps known model families to their native output width.
var modelDims = map[string]int{
	"text-embedding-3-large": 3072,
	"text-embedding-3-small": 1536,
	"text-embedding-ada-002": 1536,
}

// Dimensions implements embeddings.Provider. Unknown models fall back to
// 1536, the width of every current small OpenAI embedding model.
func (p *Provider) Dimensions() int {
	lower := strings.ToLower(p.model)
	for family, d := range modelDims {
		if strings.Contains(lower, family) {
			return d
		}
	}
	return 1536
}

// ModelID implements embeddings.Provider.
func (p *Provider) ModelID() string { return p.model }
