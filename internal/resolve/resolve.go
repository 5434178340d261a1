// Package resolve arbitrates which top-ranked catalog candidate, if any, a
// spoken part mention actually refers to.
//
// Vector similarity retrieves plausible rows but cannot reject them: the
// nearest neighbour of a generic or garbled mention is still some row. An
// LLM gets the candidate list and must either commit to one index or refuse
// with a sentinel token. Every failure mode — provider error, unparseable
// reply, out-of-range index — resolves to "no match", never to a guess.
package resolve

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/partline/partline/internal/catalog"
	"github.com/partline/partline/internal/phonetic"
	"github.com/partline/partline/pkg/provider/llm"
	"github.com/partline/partline/pkg/types"
)

// noMatchToken is the reply the model gives to refuse all candidates.
const noMatchToken = "NONE"

const (
	temperature = 0.0
	maxTokens   = 16
)

// Resolver arbitrates mention-to-candidate matches.
type Resolver struct {
	provider llm.Provider
	logger   *slog.Logger
}

// New creates a Resolver backed by the given LLM provider.
func New(provider llm.Provider, logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{provider: provider, logger: logger}
}

// candidateRecord is one candidate as presented to the model. The index is
// local to the candidate list, not the catalog.
type candidateRecord struct {
	Index            int     `json:"index"`
	ItemID           string  `json:"item_id"`
	Description      string  `json:"description"`
	ManufacturerName string  `json:"manufacturer_name"`
	SoundsLikeScore  float64 `json:"sounds_like_score"`
}

// Resolve returns the position within candidates that the mention refers
// to, or ok=false when nothing matches. Provider failures and malformed
// replies are logged and reported as no match; the error return is reserved
// for context cancellation.
func (r *Resolver) Resolve(ctx context.Context, mention types.Mention, candidates []catalog.Row) (int, bool, error) {
	if len(candidates) == 0 {
		return 0, false, nil
	}

	prompt, err := r.buildPrompt(mention, candidates)
	if err != nil {
		r.logger.Warn("resolution prompt build failed", "mention", mention.PartName, "error", err)
		return 0, false, nil
	}

	raw, err := r.provider.Complete(ctx, llm.Request{
		SystemPrompt: prompt,
		Temperature:  temperature,
		MaxTokens:    maxTokens,
	})
	if err != nil {
		if ctx.Err() != nil {
			return 0, false, ctx.Err()
		}
		r.logger.Warn("resolution failed", "mention", mention.PartName, "model", r.provider.ModelID(), "error", err)
		return 0, false, nil
	}

	reply := strings.TrimSpace(raw)
	if strings.EqualFold(reply, noMatchToken) {
		return 0, false, nil
	}

	idx, err := strconv.Atoi(reply)
	if err != nil || idx < 0 || idx >= len(candidates) {
		r.logger.Warn("resolution reply rejected", "mention", mention.PartName, "reply", reply)
		return 0, false, nil
	}
	return idx, true, nil
}

// buildPrompt renders the arbitration instruction. Candidates are listed as
// JSON records indexed from zero, each annotated with a phonetic similarity
// score so the model has a sound-alike signal alongside the text.
func (r *Resolver) buildPrompt(mention types.Mention, candidates []catalog.Row) (string, error) {
	records := make([]candidateRecord, len(candidates))
	for i, row := range candidates {
		records[i] = candidateRecord{
			Index:            i,
			ItemID:           row.ItemID,
			Description:      row.Description,
			ManufacturerName: row.Manufacturer,
			SoundsLikeScore:  phonetic.Similarity(mention.PartName, row.Description),
		}
	}
	listing, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return "", err
	}

	return fmt.Sprintf(`We are a manufacturing automation business. We extracted that the customer asked for %q. We similarity matched it to the following top items:

%s

If one of them is what the user asked for, output its index as an int, 0-%d. Otherwise, output the string %q. E.g., the user could have said "two-and-a-half inch fire lock T", and that would match "2 1/2 FIRELOCK TEE", so if it had index=5, you would output 5. Please don't output an index unless there is a strong semantic match. Other examples: query "three-quarter inch chrome up cut chin" would match "3/4 Chrome Cup 401 Escutcheon" because they sound the same (transcription isn't perfect), query "half-inch gate valve whole part" would match "1/2 BRZ GATE VLV TE FULL PRT". One bug that you run into is matching user query "b" to part name "2 1/2 FIRELOCK TEE", which doesn't make sense, don't do that. The sounds_like_score field estimates how phonetically close the query is to each description; treat it as a hint, not a verdict. Output only the index or %q, nothing else.`,
		mention.PartName, listing, len(candidates)-1, noMatchToken, noMatchToken), nil
}
