package catalog

import (
	"math"
	"strconv"
	"strings"
)

// Wire returns the row as a map of field name to wire-safe scalar, ready for
// JSON serialization. The lifted string fields are emitted as strings; every
// Extra column goes through one canonical conversion: empty and NaN-like
// values become nil, numeric strings become float64, everything else stays a
// trimmed string. This is the only place loosely-typed catalog values are
// coerced — all serialization boundaries must go through it.
func (r Row) Wire() map[string]any {
	out := map[string]any{
		"row_index":         r.Index,
		"item_id":           r.ItemID,
		"description":       r.Description,
		"manufacturer_name": r.Manufacturer,
	}
	for k, v := range r.Extra {
		out[k] = wireScalar(v)
	}
	return out
}

// nullTokens are source values that denote a missing cell.
var nullTokens = map[string]struct{}{
	"nan": {}, "null": {}, "none": {}, "na": {}, "n/a": {},
}

func wireScalar(s string) any {
	trimmed := strings.TrimSpace(s)
	if trimmed == "" {
		return nil
	}
	if _, ok := nullTokens[strings.ToLower(trimmed)]; ok {
		return nil
	}
	if f, err := strconv.ParseFloat(trimmed, 64); err == nil {
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return nil
		}
		return f
	}
	return trimmed
}
