package extract_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/partline/partline/internal/extract"
	"github.com/partline/partline/pkg/provider/llm/mock"
)

func TestExtract_ObjectArray(t *testing.T) {
	t.Parallel()

	p := &mock.Provider{Response: `[{"part_name":"firelock tee","quantity":2},{"part_name":"gate valve","quantity":1}]`}
	e := extract.New(p, nil)

	got, err := e.Extract(context.Background(), "I need two firelock tees and a gate valve")
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d mentions; want 2", len(got))
	}
	if got[0].PartName != "firelock tee" || got[0].Quantity != 2 {
		t.Errorf("mention[0] = %+v", got[0])
	}
	if got[1].PartName != "gate valve" || got[1].Quantity != 1 {
		t.Errorf("mention[1] = %+v", got[1])
	}
}

func TestExtract_StringArrayFallback(t *testing.T) {
	t.Parallel()

	p := &mock.Provider{Response: `["escutcheon", "ball valve"]`}
	e := extract.New(p, nil)

	got, err := e.Extract(context.Background(), "escutcheon and a ball valve")
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d mentions; want 2", len(got))
	}
	for i, m := range got {
		if m.Quantity != 1 {
			t.Errorf("mention[%d].Quantity = %d; want default 1", i, m.Quantity)
		}
	}
}

func TestExtract_CodeFencedResponse(t *testing.T) {
	t.Parallel()

	p := &mock.Provider{Response: "```json\n[{\"part_name\":\"tee\",\"quantity\":3}]\n```"}
	e := extract.New(p, nil)

	got, err := e.Extract(context.Background(), "three tees")
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if len(got) != 1 || got[0].PartName != "tee" || got[0].Quantity != 3 {
		t.Fatalf("got %+v; want one tee x3", got)
	}
}

func TestExtract_MalformedResponse_YieldsNothing(t *testing.T) {
	t.Parallel()

	p := &mock.Provider{Response: `Sure! Here are the parts I found: tee, valve.`}
	e := extract.New(p, nil)

	got, err := e.Extract(context.Background(), "tee and valve")
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("got %d mentions from prose response; want 0", len(got))
	}
}

func TestExtract_ProviderError_YieldsNothing(t *testing.T) {
	t.Parallel()

	p := &mock.Provider{Err: errors.New("rate limited")}
	e := extract.New(p, nil)

	got, err := e.Extract(context.Background(), "a tee")
	if err != nil {
		t.Fatalf("Extract should swallow provider errors, got %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("got %d mentions; want 0", len(got))
	}
}

func TestExtract_EmptyTranscript_SkipsProvider(t *testing.T) {
	t.Parallel()

	p := &mock.Provider{Response: `[]`}
	e := extract.New(p, nil)

	got, err := e.Extract(context.Background(), "   ")
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if got != nil {
		t.Fatalf("got %v; want nil", got)
	}
	if len(p.Requests()) != 0 {
		t.Fatal("provider should not be called for a blank transcript")
	}
}

func TestExtract_NormalizesMentions(t *testing.T) {
	t.Parallel()

	p := &mock.Provider{Response: `[{"part_name":"  tee  ","quantity":0},{"part_name":"","quantity":5}]`}
	e := extract.New(p, nil)

	got, err := e.Extract(context.Background(), "a tee")
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("got %d mentions; want 1 (blank name dropped)", len(got))
	}
	if got[0].PartName != "tee" || got[0].Quantity != 1 {
		t.Errorf("mention = %+v; want trimmed name with quantity 1", got[0])
	}
}

func TestExtract_SendsFullTranscript(t *testing.T) {
	t.Parallel()

	p := &mock.Provider{Response: `[]`}
	e := extract.New(p, nil)

	transcript := "first utterance. second utterance about a tee."
	if _, err := e.Extract(context.Background(), transcript); err != nil {
		t.Fatalf("Extract: %v", err)
	}

	reqs := p.Requests()
	if len(reqs) != 1 {
		t.Fatalf("provider called %d times; want 1", len(reqs))
	}
	if !strings.Contains(reqs[0].UserPrompt, transcript) {
		t.Errorf("user prompt %q does not carry the transcript", reqs[0].UserPrompt)
	}
}
