// Package session wires one client connection to the matching pipeline: it
// forwards the client's audio upstream, folds transcription events into a
// session transcript, extracts and matches part mentions after every
// finalized utterance, and queues deduplicated results for delivery.
package session

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/partline/partline/internal/match"
	"github.com/partline/partline/internal/observe"
	"github.com/partline/partline/internal/transcript"
	"github.com/partline/partline/pkg/provider/realtime"
	"github.com/partline/partline/pkg/types"
)

// Message types delivered to the client.
const (
	MessageTranscript = "transcript"
	MessageParts      = "parts"
)

// Message is one outbound client frame.
type Message struct {
	Type  string           `json:"type"`
	Text  string           `json:"text,omitempty"`
	Items []map[string]any `json:"items,omitempty"`
}

// Extractor pulls part mentions from a transcript. Implemented by
// [extract.Extractor].
type Extractor interface {
	Extract(ctx context.Context, transcript string) ([]types.Mention, error)
}

// Matcher resolves mentions against the catalog. Implemented by
// [match.Engine].
type Matcher interface {
	Match(ctx context.Context, mentions []types.Mention) ([]match.Result, error)
}

// Option is a functional option for Pipeline.
type Option func(*Pipeline)

// WithIncludeUnmatched also reports mentions that resolved to no catalog
// row, flagged with "matched": false. Default off.
func WithIncludeUnmatched(include bool) Option {
	return func(p *Pipeline) { p.includeUnmatched = include }
}

// WithMatchTimeout bounds one extract-and-match round. Default 30s.
func WithMatchTimeout(d time.Duration) Option {
	return func(p *Pipeline) { p.matchTimeout = d }
}

// WithMetrics sets the metrics instance. Default [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(p *Pipeline) { p.metrics = m }
}

const defaultMatchTimeout = 30 * time.Second

// Pipeline is one client session.
type Pipeline struct {
	upstream  realtime.Session
	extractor Extractor
	matcher   Matcher
	agg       *transcript.Aggregator
	queue     *Queue
	logger    *slog.Logger
	metrics   *observe.Metrics

	includeUnmatched bool
	matchTimeout     time.Duration

	mu   sync.Mutex
	seen map[string]bool

	closeOnce sync.Once
}

// New creates a Pipeline over an already-connected upstream session.
func New(upstream realtime.Session, extractor Extractor, matcher Matcher, logger *slog.Logger, opts ...Option) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	p := &Pipeline{
		upstream:     upstream,
		extractor:    extractor,
		matcher:      matcher,
		agg:          transcript.New(),
		queue:        NewQueue(),
		logger:       logger,
		seen:         make(map[string]bool),
		matchTimeout: defaultMatchTimeout,
	}
	for _, o := range opts {
		o(p)
	}
	if p.metrics == nil {
		p.metrics = observe.DefaultMetrics()
	}
	return p
}

// Messages returns the outbound queue. The connection owner pops from it
// until it reports closed.
func (p *Pipeline) Messages() *Queue { return p.queue }

// ForwardAudio relays one raw PCM16 chunk to the transcription upstream.
func (p *Pipeline) ForwardAudio(chunk []byte) error {
	return p.upstream.SendAudio(chunk)
}

// SubmitText feeds pasted text straight into one extract-and-match round,
// synchronously in the caller's goroutine. The transcript buffer is left
// untouched, so speech still in progress keeps its pending deltas.
func (p *Pipeline) SubmitText(ctx context.Context, text string) {
	p.process(ctx, text)
}

// Run consumes upstream events until the upstream closes or ctx is done.
// It returns the upstream's fatal error, if any. The outbound queue is
// closed on return.
func (p *Pipeline) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		defer p.queue.Close()
		for {
			select {
			case ev, ok := <-p.upstream.Events():
				if !ok {
					return p.upstream.Err()
				}
				p.handleEvent(gctx, ev)
			case <-gctx.Done():
				return gctx.Err()
			}
		}
	})

	return g.Wait()
}

func (p *Pipeline) handleEvent(ctx context.Context, ev realtime.Event) {
	switch ev.Type {
	case realtime.EventReady:
		p.logger.Info("transcription session configured")

	case realtime.EventDelta:
		p.agg.Append(ev.Text)
		p.queue.Push(Message{Type: MessageTranscript, Text: ev.Text})

	case realtime.EventCompleted:
		full := p.agg.Complete(ev.Text)
		p.process(ctx, full)

	case realtime.EventError:
		p.logger.Warn("transcription error", "error", ev.Err)
	}
}

// process runs one extract-and-match round over the full transcript and
// queues any newly matched parts. All failures are logged and swallowed;
// a bad round must not end the session.
func (p *Pipeline) process(ctx context.Context, transcriptText string) {
	if transcriptText == "" {
		return
	}

	ctx, cancel := context.WithTimeout(ctx, p.matchTimeout)
	defer cancel()

	extractStart := time.Now()
	mentions, err := p.extractor.Extract(ctx, transcriptText)
	p.metrics.ExtractDuration.Record(ctx, time.Since(extractStart).Seconds())
	if err != nil {
		p.logger.Warn("extraction aborted", "error", err)
		return
	}
	if len(mentions) == 0 {
		return
	}
	p.metrics.MentionsExtracted.Add(ctx, int64(len(mentions)))

	results, err := p.matcher.Match(ctx, mentions)
	if err != nil {
		p.logger.Warn("matching failed", "error", err)
		return
	}

	items := p.collectNew(ctx, results)
	if len(items) > 0 {
		p.queue.Push(Message{Type: MessageParts, Items: items})
	}
}

// collectNew converts match results to wire items, suppressing item IDs
// already reported in this session.
func (p *Pipeline) collectNew(ctx context.Context, results []match.Result) []map[string]any {
	p.mu.Lock()
	defer p.mu.Unlock()

	var items []map[string]any
	for _, res := range results {
		if !res.Matched() {
			if p.includeUnmatched {
				items = append(items, map[string]any{
					"item_id":   nil,
					"part_name": res.Mention.PartName,
					"quantity":  res.Mention.Quantity,
					"matched":   false,
				})
			}
			continue
		}

		if res.Row.ItemID == "" || p.seen[res.Row.ItemID] {
			if res.Row.ItemID != "" {
				p.metrics.DedupSuppressed.Add(ctx, 1)
			}
			continue
		}
		p.seen[res.Row.ItemID] = true

		item := res.Row.Wire()
		item["quantity"] = res.Mention.Quantity
		if len(res.CrossSell) > 0 {
			cross := make([]map[string]any, len(res.CrossSell))
			for i, cs := range res.CrossSell {
				cross[i] = cs.Wire()
			}
			item["cross_sell"] = cross
		}
		items = append(items, item)
	}
	return items
}

// Close tears down the upstream connection and closes the outbound queue.
// Idempotent.
func (p *Pipeline) Close() error {
	var err error
	p.closeOnce.Do(func() {
		err = p.upstream.Close()
		p.queue.Close()
	})
	return err
}
