// Package abi implements the boundary conversion rule for the sandboxed
// compute ABI. The compute module itself (a
// linear-memory module invoked through a string-array ABI) is out of
// scope; this package only implements the host-side lowering and lifting
// of domain objects across that boundary.
package abi

import (
	"fmt"
	"sort"
	"strconv"
)

// Pair is one [key, value] entry of the lowered representation.
type Pair [2]string

// ToPairs lowers a domain object to [[key, string(value)], ...], keeping
// only fields of type string, number (any numeric kind) or boolean.
// Keys are emitted in sorted order for a deterministic wire shape.
func ToPairs(obj map[string]any) []Pair {
	keys := make([]string, 0, len(obj))
	for k, v := range obj {
		if !isScalar(v) {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	pairs := make([]Pair, 0, len(keys))
	for _, k := range keys {
		pairs = append(pairs, Pair{k, scalarToString(obj[k])})
	}
	return pairs
}

// FromPairs lifts a [[key, value], ...] slice back into a domain object,
// coercing each value by attempting, in order: integer parse, float
// parse, boolean match, string fallback.
func FromPairs(pairs []Pair) map[string]any {
	out := make(map[string]any, len(pairs))
	for _, p := range pairs {
		out[p[0]] = coerce(p[1])
	}
	return out
}

func isScalar(v any) bool {
	switch v.(type) {
	case string, bool,
		int, int8, int16, int32, int64,
		uint, uint8, uint16, uint32, uint64,
		float32, float64:
		return true
	default:
		return false
	}
}

func scalarToString(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case bool:
		return strconv.FormatBool(t)
	case float64:
		return strconv.FormatFloat(t, 'g', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(t), 'g', -1, 32)
	default:
		return fmt.Sprintf("%v", t)
	}
}

func coerce(s string) any {
	if i, err := strconv.ParseInt(s, 10, 64); err == nil {
		return i
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return f
	}
	if b, err := strconv.ParseBool(s); err == nil {
		return b
	}
	return s
}
