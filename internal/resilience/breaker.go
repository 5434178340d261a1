// Package resilience protects the LLM backends behind extraction and
// arbitration. A [Breaker] is a three-state circuit breaker, and a [Chain]
// composes several llm.Provider backends with per-backend breakers so a
// failing primary is bypassed in favour of healthy fallbacks.
//
// All types are safe for concurrent use.
package resilience

import (
	"errors"
	"log/slog"
	"sync"
	"time"
)

// ErrOpen is returned by [Breaker.Do] while the breaker is open and the
// cooldown has not elapsed.
var ErrOpen = errors.New("breaker open")

type breakerState int

const (
	stateClosed breakerState = iota
	stateOpen
	stateHalfOpen
)

func (s breakerState) String() string {
	switch s {
	case stateClosed:
		return "closed"
	case stateOpen:
		return "open"
	case stateHalfOpen:
		return "half-open"
	}
	return "unknown"
}

const (
	defaultTripAfter = 5
	defaultCooldown  = 30 * time.Second
	defaultProbes    = 3
)

// BreakerOption is a functional option for Breaker.
type BreakerOption func(*Breaker)

// WithTripAfter sets how many consecutive failures open the breaker.
// Default 5.
func WithTripAfter(n int) BreakerOption {
	return func(b *Breaker) { b.tripAfter = n }
}

// WithCooldown sets how long the breaker stays open before probing again.
// Default 30s.
func WithCooldown(d time.Duration) BreakerOption {
	return func(b *Breaker) { b.cooldown = d }
}

// WithProbes sets the probe budget in the half-open state. Default 3.
func WithProbes(n int) BreakerOption {
	return func(b *Breaker) { b.probes = n }
}

// Breaker is a three-state circuit breaker: closed forwards every call, open
// rejects with [ErrOpen] until the cooldown elapses, half-open lets a probe
// budget through and closes again only if all probes succeed.
type Breaker struct {
	name      string
	tripAfter int
	cooldown  time.Duration
	probes    int
	logger    *slog.Logger

	mu         sync.Mutex
	state      breakerState
	failures   int
	openedAt   time.Time
	probeCalls int
	probeFails int
}

// NewBreaker creates a Breaker. The name only labels log lines.
func NewBreaker(name string, logger *slog.Logger, opts ...BreakerOption) *Breaker {
	if logger == nil {
		logger = slog.Default()
	}
	b := &Breaker{
		name:      name,
		tripAfter: defaultTripAfter,
		cooldown:  defaultCooldown,
		probes:    defaultProbes,
		logger:    logger,
	}
	for _, o := range opts {
		o(b)
	}
	return b
}

// Do runs fn if the breaker allows it, recording the outcome.
func (b *Breaker) Do(fn func() error) error {
	b.mu.Lock()
	switch b.state {
	case stateOpen:
		if time.Since(b.openedAt) < b.cooldown {
			b.mu.Unlock()
			return ErrOpen
		}
		b.state = stateHalfOpen
		b.probeCalls = 0
		b.probeFails = 0
		b.logger.Info("breaker probing", "name", b.name)
	case stateHalfOpen:
		if b.probeCalls >= b.probes {
			b.mu.Unlock()
			return ErrOpen
		}
	}
	probing := b.state == stateHalfOpen
	if probing {
		b.probeCalls++
	}
	b.mu.Unlock()

	err := fn()

	b.mu.Lock()
	defer b.mu.Unlock()
	if err != nil {
		b.onFailure(probing)
	} else {
		b.onSuccess(probing)
	}
	return err
}

// onFailure must be called with b.mu held.
func (b *Breaker) onFailure(probing bool) {
	b.openedAt = time.Now()
	if probing {
		// One failed probe is enough to re-open.
		b.state = stateOpen
		b.failures = b.tripAfter
		b.probeFails++
		b.logger.Warn("breaker re-opened", "name", b.name)
		return
	}
	b.failures++
	if b.failures >= b.tripAfter && b.state == stateClosed {
		b.state = stateOpen
		b.logger.Warn("breaker opened", "name", b.name, "failures", b.failures)
	}
}

// onSuccess must be called with b.mu held.
func (b *Breaker) onSuccess(probing bool) {
	if probing {
		if b.probeCalls-b.probeFails >= b.probes {
			b.state = stateClosed
			b.failures = 0
			b.logger.Info("breaker closed", "name", b.name)
		}
		return
	}
	b.failures = 0
}

// Open reports whether calls would currently be rejected outright.
func (b *Breaker) Open() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state == stateOpen && time.Since(b.openedAt) < b.cooldown
}

// Reset forces the breaker back to closed.
func (b *Breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.state = stateClosed
	b.failures = 0
	b.probeCalls = 0
	b.probeFails = 0
}
