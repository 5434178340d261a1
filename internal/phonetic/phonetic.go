// Package phonetic scores how plausibly a spoken part mention sounds like a
// catalog description. Transcribed speech mangles part jargon ("fire lock
// tee" for FIRELOCK TEE, "ask uchin" for Escutcheon), so plain substring
// checks fail where sound-alike comparison succeeds.
//
// Scoring combines two signals:
//
//  1. Double Metaphone code overlap between any mention token and any
//     description token, which catches sound-alike respellings.
//  2. Jaro-Winkler similarity computed over several token arrangements
//     (full strings, space-stripped strings, best token pair), which ranks
//     near-misses that phonetic codes alone cannot order.
//
// The package is stateless; all functions are safe for concurrent use.
package phonetic

import (
	"strings"

	"github.com/antzucaro/matchr"
)

// phoneticBonus is added to the similarity score when the mention and the
// description share a Double Metaphone code. It keeps a sound-alike
// candidate ahead of a merely letter-similar one.
const phoneticBonus = 0.10

// Similarity returns a score in [0, 1] estimating how likely spoken refers
// to description. Either input being blank yields 0.
func Similarity(spoken, description string) float64 {
	spokenLower := strings.ToLower(strings.TrimSpace(spoken))
	descLower := strings.ToLower(strings.TrimSpace(description))
	if spokenLower == "" || descLower == "" {
		return 0
	}

	spokenTokens := strings.Fields(spokenLower)
	descTokens := strings.Fields(descLower)

	score := bestJaroWinkler(spokenTokens, descTokens, spokenLower, descLower)

	if codesOverlap(codesFor(spokenTokens), codesFor(descTokens)) {
		score += phoneticBonus
		if score > 1 {
			score = 1
		}
	}
	return score
}

// SoundsAlike reports whether any token of spoken shares a Double Metaphone
// code with any token of description.
func SoundsAlike(spoken, description string) bool {
	spokenTokens := strings.Fields(strings.ToLower(strings.TrimSpace(spoken)))
	descTokens := strings.Fields(strings.ToLower(strings.TrimSpace(description)))
	return codesOverlap(codesFor(spokenTokens), codesFor(descTokens))
}

// codesFor returns the union of Double Metaphone codes over all tokens.
// Empty codes (short or vowel-only tokens) are excluded.
func codesFor(tokens []string) map[string]struct{} {
	codes := make(map[string]struct{}, len(tokens)*2)
	for _, t := range tokens {
		p, s := matchr.DoubleMetaphone(t)
		if p != "" {
			codes[p] = struct{}{}
		}
		if s != "" {
			codes[s] = struct{}{}
		}
	}
	return codes
}

func codesOverlap(a, b map[string]struct{}) bool {
	if len(a) > len(b) {
		a, b = b, a
	}
	for code := range a {
		if _, ok := b[code]; ok {
			return true
		}
	}
	return false
}

// bestJaroWinkler takes the maximum Jaro-Winkler score over three token
// arrangements: the full strings, the space-stripped strings, and the best
// individual token pair. Spoken mentions often fuse or split words relative
// to catalog text ("fire lock" vs "FIRELOCK"), so no single arrangement
// works for all inputs.
func bestJaroWinkler(spokenTokens, descTokens []string, spokenFull, descFull string) float64 {
	score := matchr.JaroWinkler(spokenFull, descFull, false)

	if len(spokenTokens) > 1 || len(descTokens) > 1 {
		joinedSpoken := strings.Join(spokenTokens, "")
		joinedDesc := strings.Join(descTokens, "")
		if s := matchr.JaroWinkler(joinedSpoken, joinedDesc, false); s > score {
			score = s
		}
	}

	for _, st := range spokenTokens {
		for _, dt := range descTokens {
			if s := matchr.JaroWinkler(st, dt, false); s > score {
				score = s
			}
		}
	}
	return score
}
