package abi

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestToPairsDropsNonScalarFields(t *testing.T) {
	obj := map[string]any{
		"name":   "widget",
		"count":  int64(3),
		"active": true,
		"nested": map[string]any{"a": 1},
		"list":   []string{"x", "y"},
	}

	pairs := ToPairs(obj)

	keys := make(map[string]string, len(pairs))
	for _, p := range pairs {
		keys[p[0]] = p[1]
	}

	assert.Equal(t, "widget", keys["name"])
	assert.Equal(t, "3", keys["count"])
	assert.Equal(t, "true", keys["active"])
	_, hasNested := keys["nested"]
	_, hasList := keys["list"]
	assert.False(t, hasNested)
	assert.False(t, hasList)
	assert.Len(t, pairs, 3)
}

func TestToPairsIsOrderedByKey(t *testing.T) {
	obj := map[string]any{"zebra": "z", "alpha": "a", "mid": "m"}
	pairs := ToPairs(obj)
	assert.Equal(t, []Pair{{"alpha", "a"}, {"mid", "m"}, {"zebra", "z"}}, pairs)
}

func TestRoundTripPreservesScalarValues(t *testing.T) {
	obj := map[string]any{
		"label":   "order-created",
		"amount":  float64(19.99),
		"enabled": false,
		"count":   int64(42),
	}

	lifted := FromPairs(ToPairs(obj))

	assert.Equal(t, "order-created", lifted["label"])
	assert.Equal(t, 19.99, lifted["amount"])
	assert.Equal(t, false, lifted["enabled"])
	assert.Equal(t, int64(42), lifted["count"])
}

func TestCoercionOrderIntegerBeforeFloatBeforeBool(t *testing.T) {
	assert.Equal(t, int64(7), coerce("7"))
	assert.Equal(t, 7.5, coerce("7.5"))
	assert.Equal(t, true, coerce("true"))
	assert.Equal(t, "hello", coerce("hello"))
}
