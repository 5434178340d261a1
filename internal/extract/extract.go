// Package extract pulls catalog-part mentions out of free-form speech
// transcripts using an LLM.
//
// Extraction runs on the full accumulated transcript after every finalized
// utterance, so the model sees prior context ("make that three" refers to
// the part named two sentences ago). Failures never stop the pipeline: a
// broken response or provider error yields zero mentions and a log line.
package extract

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"

	"github.com/partline/partline/pkg/provider/llm"
	"github.com/partline/partline/pkg/types"
)

const systemPrompt = `You extract industrial part mentions from speech transcripts.

The transcript comes from a contractor reading off parts they need, possibly
with filler speech in between. Identify every distinct part the speaker asks
for, together with the quantity they want.

Respond with ONLY a JSON array, no prose and no code fences. Each element is
an object with exactly two keys:
  "part_name": the part as spoken, cleaned of filler words
  "quantity":  the integer quantity requested (1 if unstated)

If a later statement revises an earlier quantity, report only the revised
quantity. If no parts are mentioned, respond with [].`

const (
	temperature = 0.0
	maxTokens   = 1024
)

// Extractor turns transcripts into part mentions.
type Extractor struct {
	provider llm.Provider
	logger   *slog.Logger
}

// New creates an Extractor backed by the given LLM provider.
func New(provider llm.Provider, logger *slog.Logger) *Extractor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Extractor{provider: provider, logger: logger}
}

// Extract returns the part mentions found in transcript. Provider errors
// and malformed responses are logged and reported as zero mentions; the
// error return is reserved for context cancellation.
func (e *Extractor) Extract(ctx context.Context, transcript string) ([]types.Mention, error) {
	if strings.TrimSpace(transcript) == "" {
		return nil, nil
	}

	raw, err := e.provider.Complete(ctx, llm.Request{
		SystemPrompt: systemPrompt,
		UserPrompt:   "Transcript:\n" + transcript,
		Temperature:  temperature,
		MaxTokens:    maxTokens,
	})
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		e.logger.Warn("mention extraction failed", "model", e.provider.ModelID(), "error", err)
		return nil, nil
	}

	mentions, err := parseMentions(raw)
	if err != nil {
		e.logger.Warn("unparseable extraction response",
			"model", e.provider.ModelID(),
			"response", truncate(raw, 200),
			"error", err)
		return nil, nil
	}
	return mentions, nil
}

// parseMentions decodes the model response. The primary shape is a JSON
// array of {part_name, quantity} objects; a bare array of strings is
// accepted for models that ignore the quantity instruction.
func parseMentions(raw string) ([]types.Mention, error) {
	cleaned := stripCodeFence(strings.TrimSpace(raw))

	var mentions []types.Mention
	if err := json.Unmarshal([]byte(cleaned), &mentions); err == nil {
		return normalize(mentions), nil
	}

	var names []string
	if err := json.Unmarshal([]byte(cleaned), &names); err != nil {
		return nil, err
	}
	mentions = make([]types.Mention, 0, len(names))
	for _, n := range names {
		mentions = append(mentions, types.Mention{PartName: n})
	}
	return normalize(mentions), nil
}

func normalize(in []types.Mention) []types.Mention {
	out := in[:0]
	for _, m := range in {
		m.PartName = strings.TrimSpace(m.PartName)
		if m.PartName == "" {
			continue
		}
		if m.Quantity < 1 {
			m.Quantity = 1
		}
		out = append(out, m)
	}
	return out
}

// stripCodeFence removes a surrounding markdown fence, which some models
// emit despite instructions.
func stripCodeFence(s string) string {
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
