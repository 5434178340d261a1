// Package mock provides an in-memory realtime.Provider for tests.
package mock

import (
	"context"
	"sync"

	"github.com/partline/partline/pkg/provider/realtime"
)

var _ realtime.Provider = (*Provider)(nil)
var _ realtime.Session = (*Session)(nil)

// Provider hands out a prepared Session. When Sess is nil, Connect builds a
// fresh one via NewSession.
type Provider struct {
	// Sess, when set, is returned by every Connect call.
	Sess *Session

	// ConnectErr, when set, is returned by Connect instead of a session.
	ConnectErr error

	mu       sync.Mutex
	connects int
}

// Connect implements realtime.Provider.
func (p *Provider) Connect(_ context.Context) (realtime.Session, error) {
	p.mu.Lock()
	p.connects++
	p.mu.Unlock()

	if p.ConnectErr != nil {
		return nil, p.ConnectErr
	}
	if p.Sess != nil {
		return p.Sess, nil
	}
	return NewSession(), nil
}

// Connects returns how many times Connect was called.
func (p *Provider) Connects() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.connects
}

// Session is a scripted realtime.Session. Tests drive it with Emit and
// inspect forwarded audio with Sent.
type Session struct {
	// SendErr, when set, is returned by every SendAudio call.
	SendErr error

	events chan realtime.Event

	mu     sync.Mutex
	sent   [][]byte
	errVal error
	closed bool
}

// NewSession returns a Session ready for Emit and SendAudio.
func NewSession() *Session {
	return &Session{events: make(chan realtime.Event, 64)}
}

// Emit queues one event for the consumer.
func (s *Session) Emit(ev realtime.Event) { s.events <- ev }

// Finish closes the event channel, optionally recording a fatal error first.
func (s *Session) Finish(err error) {
	s.mu.Lock()
	s.errVal = err
	s.mu.Unlock()
	close(s.events)
}

// SendAudio implements realtime.Session.
func (s *Session) SendAudio(chunk []byte) error {
	if s.SendErr != nil {
		return s.SendErr
	}
	cp := make([]byte, len(chunk))
	copy(cp, chunk)
	s.mu.Lock()
	s.sent = append(s.sent, cp)
	s.mu.Unlock()
	return nil
}

// Events implements realtime.Session.
func (s *Session) Events() <-chan realtime.Event { return s.events }

// Err implements realtime.Session.
func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.errVal
}

// Close implements realtime.Session.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// Closed reports whether Close was called.
func (s *Session) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Sent returns a copy of all audio chunks forwarded so far.
func (s *Session) Sent() [][]byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([][]byte, len(s.sent))
	copy(out, s.sent)
	return out
}
