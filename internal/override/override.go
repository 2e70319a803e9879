// Package override reads per-message dues overrides written as "meta:<amount>".
package override

import (
	"strconv"
	"strings"
)

const prefix = "meta:"

// Target returns the amount requested by the last valid "meta:" token in text,
// or def when there is none. The amount may be attached ("meta:450") or be the
// next token ("meta: 450"). Malformed amounts are skipped.
func Target(text string, def int64) int64 {
	target := def
	tokens := strings.Fields(strings.ToLower(text))

	for i := 0; i < len(tokens); i++ {
		tok := tokens[i]
		if !strings.HasPrefix(tok, prefix) {
			continue
		}
		raw := strings.TrimPrefix(tok, prefix)
		if raw == "" && i+1 < len(tokens) {
			raw = tokens[i+1]
		}
		if v, ok := parseAmount(raw); ok {
			target = v
		}
	}
	return target
}

func parseAmount(raw string) (int64, bool) {
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || v <= 0 {
		return 0, false
	}
	return v, true
}
