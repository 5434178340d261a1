// Package realtime defines the Provider interface for streaming
// transcription channels: a bidirectional connection that accepts raw
// PCM16 audio and emits incremental transcript events.
//
// The receive side of a Session is a blocking network read; implementations
// run it on their own goroutine and surface results on the Events channel,
// which they close when the transport closes. Callers own the pacing of
// SendAudio and must not assume any coupling between sends and events.
package realtime

import "context"

// EventType discriminates Session events.
type EventType string

const (
	// EventReady signals the upstream session was created and the session
	// configuration directive has been sent.
	EventReady EventType = "ready"

	// EventDelta carries an incremental transcript fragment in Text.
	EventDelta EventType = "delta"

	// EventCompleted signals the current utterance was finalized. Text
	// carries the upstream's own rendering of the finished utterance.
	EventCompleted EventType = "completed"

	// EventError carries a non-fatal upstream error in Err. The session
	// stays usable.
	EventError EventType = "error"
)

// Event is one upstream occurrence.
type Event struct {
	Type EventType
	Text string
	Err  error
}

// Session is one live transcription connection.
type Session interface {
	// SendAudio forwards one raw little-endian PCM16 chunk upstream.
	SendAudio(chunk []byte) error

	// Events returns the upstream event channel. It is closed when the
	// transport closes, whether cleanly or not; check Err afterwards.
	Events() <-chan Event

	// Err returns the fatal error that terminated the session, or nil
	// after a clean close.
	Err() error

	// Close tears the session down. Idempotent.
	Close() error
}

// Provider dials new transcription sessions.
type Provider interface {
	Connect(ctx context.Context) (Session, error)
}
