package session_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/partline/partline/internal/catalog"
	"github.com/partline/partline/internal/match"
	"github.com/partline/partline/internal/session"
	"github.com/partline/partline/pkg/provider/realtime"
	"github.com/partline/partline/pkg/provider/realtime/mock"
	"github.com/partline/partline/pkg/types"
)

// stubExtractor returns fixed mentions and records transcripts.
type stubExtractor struct {
	mentions []types.Mention
	err      error

	mu    sync.Mutex
	calls []string
}

func (s *stubExtractor) Extract(_ context.Context, transcript string) ([]types.Mention, error) {
	s.mu.Lock()
	s.calls = append(s.calls, transcript)
	s.mu.Unlock()
	return s.mentions, s.err
}

func (s *stubExtractor) transcripts() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.calls...)
}

// stubMatcher maps part names to fixed results.
type stubMatcher struct {
	rows map[string]*catalog.Row
	err  error
}

func (s *stubMatcher) Match(_ context.Context, mentions []types.Mention) ([]match.Result, error) {
	if s.err != nil {
		return nil, s.err
	}
	out := make([]match.Result, len(mentions))
	for i, m := range mentions {
		out[i] = match.Result{Mention: m, Row: s.rows[m.PartName]}
	}
	return out, nil
}

func runPipeline(t *testing.T, p *session.Pipeline) {
	t.Helper()
	done := make(chan error, 1)
	go func() { done <- p.Run(context.Background()) }()
	t.Cleanup(func() {
		select {
		case <-done:
		case <-time.After(3 * time.Second):
			t.Error("pipeline did not stop")
		}
	})
}

func popMessage(t *testing.T, q *session.Queue) session.Message {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	msg, ok, err := q.Pop(ctx)
	if err != nil {
		t.Fatalf("Pop: %v", err)
	}
	if !ok {
		t.Fatal("queue closed unexpectedly")
	}
	return msg
}

func TestPipeline_DeltaForwardedAsTranscript(t *testing.T) {
	t.Parallel()

	up := mock.NewSession()
	p := session.New(up, &stubExtractor{}, &stubMatcher{}, nil)
	runPipeline(t, p)

	up.Emit(realtime.Event{Type: realtime.EventDelta, Text: "two fire"})

	msg := popMessage(t, p.Messages())
	if msg.Type != session.MessageTranscript || msg.Text != "two fire" {
		t.Fatalf("message = %+v; want transcript with delta text", msg)
	}

	up.Finish(nil)
}

func TestPipeline_CompletionTriggersMatchAndParts(t *testing.T) {
	t.Parallel()

	up := mock.NewSession()
	ext := &stubExtractor{mentions: []types.Mention{{PartName: "firelock tee", Quantity: 2}}}
	m := &stubMatcher{rows: map[string]*catalog.Row{
		"firelock tee": {ItemID: "P-005", Description: "2 1/2 FIRELOCK TEE"},
	}}
	p := session.New(up, ext, m, nil)
	runPipeline(t, p)

	up.Emit(realtime.Event{Type: realtime.EventCompleted, Text: "I need two firelock tees"})

	msg := popMessage(t, p.Messages())
	if msg.Type != session.MessageParts {
		t.Fatalf("message type = %q; want parts", msg.Type)
	}
	if len(msg.Items) != 1 {
		t.Fatalf("got %d items; want 1", len(msg.Items))
	}
	item := msg.Items[0]
	if item["item_id"] != "P-005" {
		t.Errorf("item_id = %v; want P-005", item["item_id"])
	}
	if item["quantity"] != 2 {
		t.Errorf("quantity = %v; want 2", item["quantity"])
	}

	calls := ext.transcripts()
	if len(calls) != 1 || calls[0] != "I need two firelock tees" {
		t.Errorf("extractor saw %v; want the completed utterance", calls)
	}

	up.Finish(nil)
}

func TestPipeline_DedupAcrossCompletions(t *testing.T) {
	t.Parallel()

	up := mock.NewSession()
	ext := &stubExtractor{mentions: []types.Mention{{PartName: "tee", Quantity: 1}}}
	m := &stubMatcher{rows: map[string]*catalog.Row{
		"tee": {ItemID: "P-001", Description: "TEE"},
	}}
	p := session.New(up, ext, m, nil)
	runPipeline(t, p)

	up.Emit(realtime.Event{Type: realtime.EventCompleted, Text: "a tee"})
	if msg := popMessage(t, p.Messages()); msg.Type != session.MessageParts {
		t.Fatalf("first completion: message type = %q; want parts", msg.Type)
	}

	// Same item again: suppressed, so no second parts message. A later
	// delta proves the queue stayed live and empty in between.
	up.Emit(realtime.Event{Type: realtime.EventCompleted, Text: "another tee"})
	up.Emit(realtime.Event{Type: realtime.EventDelta, Text: "marker"})

	msg := popMessage(t, p.Messages())
	if msg.Type != session.MessageTranscript || msg.Text != "marker" {
		t.Fatalf("got %+v; want the marker transcript (duplicate parts suppressed)", msg)
	}

	up.Finish(nil)
}

func TestPipeline_TranscriptAccumulates(t *testing.T) {
	t.Parallel()

	up := mock.NewSession()
	ext := &stubExtractor{}
	p := session.New(up, ext, &stubMatcher{}, nil)
	runPipeline(t, p)

	up.Emit(realtime.Event{Type: realtime.EventCompleted, Text: "first utterance."})
	up.Emit(realtime.Event{Type: realtime.EventCompleted, Text: "second utterance."})
	up.Finish(nil)

	waitClosed(t, p.Messages())

	calls := ext.transcripts()
	if len(calls) != 2 {
		t.Fatalf("extractor called %d times; want 2", len(calls))
	}
	if calls[1] != "first utterance. second utterance." {
		t.Errorf("second round transcript = %q; want both utterances", calls[1])
	}
}

func TestPipeline_UnmatchedExcludedByDefault(t *testing.T) {
	t.Parallel()

	up := mock.NewSession()
	ext := &stubExtractor{mentions: []types.Mention{{PartName: "mystery part", Quantity: 1}}}
	p := session.New(up, ext, &stubMatcher{}, nil)
	runPipeline(t, p)

	up.Emit(realtime.Event{Type: realtime.EventCompleted, Text: "a mystery part"})
	up.Emit(realtime.Event{Type: realtime.EventDelta, Text: "marker"})

	msg := popMessage(t, p.Messages())
	if msg.Type != session.MessageTranscript {
		t.Fatalf("got %+v; unmatched mention should produce no parts message", msg)
	}

	up.Finish(nil)
}

func TestPipeline_IncludeUnmatched(t *testing.T) {
	t.Parallel()

	up := mock.NewSession()
	ext := &stubExtractor{mentions: []types.Mention{{PartName: "mystery part", Quantity: 3}}}
	p := session.New(up, ext, &stubMatcher{}, nil, session.WithIncludeUnmatched(true))
	runPipeline(t, p)

	up.Emit(realtime.Event{Type: realtime.EventCompleted, Text: "three mystery parts"})

	msg := popMessage(t, p.Messages())
	if msg.Type != session.MessageParts || len(msg.Items) != 1 {
		t.Fatalf("message = %+v; want one unmatched item", msg)
	}
	item := msg.Items[0]
	if item["part_name"] != "mystery part" || item["matched"] != false {
		t.Errorf("item = %v; want unmatched marker", item)
	}
	if id, ok := item["item_id"]; !ok || id != nil {
		t.Errorf("item_id = %v; want explicit null", id)
	}

	up.Finish(nil)
}

func TestPipeline_ExtractionFailure_NoParts(t *testing.T) {
	t.Parallel()

	up := mock.NewSession()
	ext := &stubExtractor{err: errors.New("llm down")}
	p := session.New(up, ext, &stubMatcher{}, nil)
	runPipeline(t, p)

	up.Emit(realtime.Event{Type: realtime.EventCompleted, Text: "a tee"})
	up.Emit(realtime.Event{Type: realtime.EventDelta, Text: "marker"})

	msg := popMessage(t, p.Messages())
	if msg.Type != session.MessageTranscript {
		t.Fatalf("got %+v; failed extraction should produce no parts message", msg)
	}

	up.Finish(nil)
}

func TestPipeline_SubmitText(t *testing.T) {
	t.Parallel()

	up := mock.NewSession()
	ext := &stubExtractor{mentions: []types.Mention{{PartName: "gate valve", Quantity: 1}}}
	m := &stubMatcher{rows: map[string]*catalog.Row{
		"gate valve": {ItemID: "P-003", Description: "GATE VLV"},
	}}
	p := session.New(up, ext, m, nil)
	runPipeline(t, p)

	p.SubmitText(context.Background(), "1x gate valve")

	msg := popMessage(t, p.Messages())
	if msg.Type != session.MessageParts || len(msg.Items) != 1 {
		t.Fatalf("message = %+v; want one matched item from pasted text", msg)
	}
	if msg.Items[0]["item_id"] != "P-003" {
		t.Errorf("item_id = %v; want P-003", msg.Items[0]["item_id"])
	}

	up.Finish(nil)
}

func TestPipeline_PasteLeavesPendingDeltas(t *testing.T) {
	t.Parallel()

	up := mock.NewSession()
	ext := &stubExtractor{}
	p := session.New(up, ext, &stubMatcher{}, nil)
	runPipeline(t, p)

	// Speech in progress: the delta sits in the transcript buffer.
	up.Emit(realtime.Event{Type: realtime.EventDelta, Text: "two firelock"})
	if msg := popMessage(t, p.Messages()); msg.Type != session.MessageTranscript {
		t.Fatalf("message = %+v; want transcript", msg)
	}

	p.SubmitText(context.Background(), "3x gate valve")

	// A blank completion finalizes the buffered deltas afterwards.
	up.Emit(realtime.Event{Type: realtime.EventCompleted})
	up.Finish(nil)
	waitClosed(t, p.Messages())

	got := ext.transcripts()
	if len(got) != 2 {
		t.Fatalf("extractor saw %d rounds; want 2 (paste, then completion)", len(got))
	}
	if got[0] != "3x gate valve" {
		t.Errorf("paste round saw %q; want only the pasted text", got[0])
	}
	if got[1] != "two firelock" {
		t.Errorf("completion round saw %q; want the buffered delta intact", got[1])
	}
}

func TestPipeline_ForwardAudio(t *testing.T) {
	t.Parallel()

	up := mock.NewSession()
	p := session.New(up, &stubExtractor{}, &stubMatcher{}, nil)

	chunk := []byte{1, 2, 3, 4}
	if err := p.ForwardAudio(chunk); err != nil {
		t.Fatalf("ForwardAudio: %v", err)
	}
	sent := up.Sent()
	if len(sent) != 1 || string(sent[0]) != string(chunk) {
		t.Fatalf("upstream received %v; want the forwarded chunk", sent)
	}
}

func TestPipeline_UpstreamErrorSurfacesFromRun(t *testing.T) {
	t.Parallel()

	up := mock.NewSession()
	p := session.New(up, &stubExtractor{}, &stubMatcher{}, nil)

	done := make(chan error, 1)
	go func() { done <- p.Run(context.Background()) }()

	wantErr := errors.New("connection reset")
	up.Finish(wantErr)

	select {
	case err := <-done:
		if !errors.Is(err, wantErr) {
			t.Fatalf("Run returned %v; want the upstream error", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("Run did not return")
	}
}

func TestPipeline_CloseIdempotent(t *testing.T) {
	t.Parallel()

	up := mock.NewSession()
	p := session.New(up, &stubExtractor{}, &stubMatcher{}, nil)

	if err := p.Close(); err != nil {
		t.Fatalf("first Close: %v", err)
	}
	if err := p.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
	if !up.Closed() {
		t.Error("upstream session should be closed")
	}
}

func waitClosed(t *testing.T, q *session.Queue) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	for {
		_, ok, err := q.Pop(ctx)
		if err != nil {
			t.Fatalf("Pop while draining: %v", err)
		}
		if !ok {
			return
		}
	}
}
