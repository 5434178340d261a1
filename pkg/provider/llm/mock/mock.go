// Package mock provides a scripted llm.Provider for tests.
package mock

import (
	"context"
	"sync"

	"github.com/partline/partline/pkg/provider/llm"
)

var _ llm.Provider = (*Provider)(nil)

// Provider is a test double for llm.Provider. Configure either a fixed
// Response/Err pair or a CompleteFunc for per-request behaviour. Requests
// are recorded and retrievable via Requests.
type Provider struct {
	// Response is returned by Complete when CompleteFunc is nil.
	Response string

	// Err is returned by Complete when CompleteFunc is nil.
	Err error

	// CompleteFunc, when set, fully controls Complete.
	CompleteFunc func(ctx context.Context, req llm.Request) (string, error)

	mu       sync.Mutex
	requests []llm.Request
}

// Complete implements llm.Provider.
func (p *Provider) Complete(ctx context.Context, req llm.Request) (string, error) {
	p.mu.Lock()
	p.requests = append(p.requests, req)
	p.mu.Unlock()

	if p.CompleteFunc != nil {
		return p.CompleteFunc(ctx, req)
	}
	return p.Response, p.Err
}

// ModelID implements llm.Provider.
func (p *Provider) ModelID() string { return "mock" }

// Requests returns a copy of all recorded requests.
func (p *Provider) Requests() []llm.Request {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]llm.Request, len(p.requests))
	copy(out, p.requests)
	return out
}
