package phonetic_test

import (
	"testing"

	"github.com/partline/partline/internal/phonetic"
)

func TestSimilarity_ExactMatch(t *testing.T) {
	t.Parallel()

	got := phonetic.Similarity("firelock tee", "FIRELOCK TEE")
	if got < 0.9 {
		t.Errorf("Similarity(exact, case-folded) = %v; want >= 0.9", got)
	}
}

func TestSimilarity_FusedWords(t *testing.T) {
	t.Parallel()

	// Speech often splits catalog compounds.
	got := phonetic.Similarity("fire lock tee", "FIRELOCK TEE 2x1")
	if got < 0.8 {
		t.Errorf("Similarity(split compound) = %v; want >= 0.8", got)
	}
}

func TestSimilarity_SoundAlikeRespelling(t *testing.T) {
	t.Parallel()

	soundAlike := phonetic.Similarity("eskushion", "Escutcheon plate")
	unrelated := phonetic.Similarity("eskushion", "BALL VALVE 3IN")
	if soundAlike <= unrelated {
		t.Errorf("sound-alike score %v should beat unrelated score %v", soundAlike, unrelated)
	}
}

func TestSimilarity_RanksRelatedAboveUnrelated(t *testing.T) {
	t.Parallel()

	descriptions := []string{
		"FIRELOCK TEE 2x1",
		"GATE VLV 3IN BRONZE",
		"ESCUTCHEON CHROME 1/2",
	}
	scores := make([]float64, len(descriptions))
	for i, d := range descriptions {
		scores[i] = phonetic.Similarity("gate valve", d)
	}
	if scores[1] <= scores[0] || scores[1] <= scores[2] {
		t.Errorf("gate valve scores = %v; index 1 should win", scores)
	}
}

func TestSimilarity_BlankInputs(t *testing.T) {
	t.Parallel()

	if got := phonetic.Similarity("", "FIRELOCK TEE"); got != 0 {
		t.Errorf("Similarity(blank, desc) = %v; want 0", got)
	}
	if got := phonetic.Similarity("tee", "   "); got != 0 {
		t.Errorf("Similarity(mention, blank) = %v; want 0", got)
	}
}

func TestSimilarity_Bounded(t *testing.T) {
	t.Parallel()

	got := phonetic.Similarity("firelock tee", "firelock tee")
	if got < 0 || got > 1 {
		t.Errorf("Similarity = %v; want within [0, 1]", got)
	}
}

func TestSoundsAlike(t *testing.T) {
	t.Parallel()

	if !phonetic.SoundsAlike("tee", "FIRELOCK TEE 2x1") {
		t.Error("tee should sound like a token of FIRELOCK TEE 2x1")
	}
	if phonetic.SoundsAlike("valve", "ESCUTCHEON CHROME") {
		t.Error("valve should not sound like any token of ESCUTCHEON CHROME")
	}
}
