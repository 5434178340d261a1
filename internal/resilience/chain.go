package resilience

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/partline/partline/pkg/provider/llm"
)

// ErrExhausted is returned when every backend in a [Chain] fails or sits
// behind an open breaker.
var ErrExhausted = errors.New("all llm backends failed")

var _ llm.Provider = (*Chain)(nil)

type backend struct {
	name     string
	provider llm.Provider
	breaker  *Breaker
}

// Chain implements llm.Provider with failover across multiple backends.
// Each backend gets its own [Breaker]; backends are tried in registration
// order, skipping any whose breaker is open.
type Chain struct {
	backends []backend
	logger   *slog.Logger
	opts     []BreakerOption
}

// NewChain creates a Chain with primary as the preferred backend. The
// breaker options apply to every backend, current and future.
func NewChain(name string, primary llm.Provider, logger *slog.Logger, opts ...BreakerOption) *Chain {
	if logger == nil {
		logger = slog.Default()
	}
	c := &Chain{logger: logger, opts: opts}
	c.backends = append(c.backends, backend{
		name:     name,
		provider: primary,
		breaker:  NewBreaker(name, logger, opts...),
	})
	return c
}

// AddFallback registers another backend, tried after all earlier ones.
func (c *Chain) AddFallback(name string, provider llm.Provider) {
	c.backends = append(c.backends, backend{
		name:     name,
		provider: provider,
		breaker:  NewBreaker(name, c.logger, c.opts...),
	})
}

// Complete sends the request to the first healthy backend.
func (c *Chain) Complete(ctx context.Context, req llm.Request) (string, error) {
	var lastErr error
	for i := range c.backends {
		be := &c.backends[i]
		var reply string
		err := be.breaker.Do(func() error {
			var callErr error
			reply, callErr = be.provider.Complete(ctx, req)
			return callErr
		})
		if err == nil {
			return reply, nil
		}
		lastErr = err
		if errors.Is(err, ErrOpen) {
			c.logger.Debug("skipping llm backend", "backend", be.name, "reason", "breaker open")
		} else {
			c.logger.Warn("llm backend failed, trying next", "backend", be.name, "error", err)
		}
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
	}
	return "", fmt.Errorf("%w: %v", ErrExhausted, lastErr)
}

// Healthy reports whether at least one backend's breaker would admit a call.
func (c *Chain) Healthy() bool {
	for i := range c.backends {
		if !c.backends[i].breaker.Open() {
			return true
		}
	}
	return false
}

// ModelID reports the primary backend's model.
func (c *Chain) ModelID() string {
	return c.backends[0].provider.ModelID()
}
