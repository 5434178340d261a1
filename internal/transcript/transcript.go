// Package transcript accumulates the text of one listening session.
//
// The buffer is append-only for the life of the session: extraction always
// runs over everything said so far, so a later utterance can revise an
// earlier one ("make that three of those"). Deltas within an utterance are
// kept separately until the utterance is finalized.
package transcript

import (
	"strings"
	"sync"
)

// Aggregator collects transcript deltas into a growing session transcript.
// Safe for concurrent use.
type Aggregator struct {
	mu      sync.Mutex
	final   strings.Builder
	pending strings.Builder
}

// New returns an empty Aggregator.
func New() *Aggregator {
	return &Aggregator{}
}

// Append adds an incremental fragment of the in-progress utterance.
func (a *Aggregator) Append(delta string) {
	a.mu.Lock()
	a.pending.WriteString(delta)
	a.mu.Unlock()
}

// Complete finalizes the current utterance. When text is non-empty it is
// taken as the authoritative rendering of the utterance and replaces the
// accumulated deltas; otherwise the deltas stand. It returns the full
// session transcript including the just-finished utterance.
func (a *Aggregator) Complete(text string) string {
	a.mu.Lock()
	defer a.mu.Unlock()

	utterance := text
	if strings.TrimSpace(utterance) == "" {
		utterance = a.pending.String()
	}
	a.pending.Reset()

	if strings.TrimSpace(utterance) != "" {
		if a.final.Len() > 0 {
			a.final.WriteString(" ")
		}
		a.final.WriteString(strings.TrimSpace(utterance))
	}
	return a.final.String()
}

// Text returns the finalized session transcript so far, without any
// in-progress utterance.
func (a *Aggregator) Text() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.final.String()
}

// Pending returns the accumulated deltas of the in-progress utterance.
func (a *Aggregator) Pending() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.pending.String()
}
