package jsonutil

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCanonical(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		input    any
		expected string
	}{
		{
			name:     "map keys are sorted",
			input:    map[string]any{"zebra": 1, "alpha": 2, "mid": 3},
			expected: `{"alpha":2,"mid":3,"zebra":1}`,
		},
		{
			name:     "nested maps are sorted recursively",
			input:    map[string]any{"b": map[string]any{"y": 1, "x": 2}, "a": true},
			expected: `{"a":true,"b":{"x":2,"y":1}}`,
		},
		{
			name:     "json.Number keeps its exact source text",
			input:    map[string]any{"amount": json.Number("42.999999999999999999")},
			expected: `{"amount":42.999999999999999999}`,
		},
		{
			name:     "NaN becomes a stable token",
			input:    map[string]any{"val": math.NaN()},
			expected: `{"val":"NaN"}`,
		},
		{
			name:     "positive infinity",
			input:    []any{math.Inf(1)},
			expected: `["Infinity"]`,
		},
		{
			name:     "negative infinity",
			input:    []any{math.Inf(-1)},
			expected: `["-Infinity"]`,
		},
		{
			name:     "scalars pass through",
			input:    "hello",
			expected: `"hello"`,
		},
		{
			name:     "nil encodes as null",
			input:    nil,
			expected: `null`,
		},
		{
			name: "struct input is normalized like a map",
			input: struct {
				B int    `json:"b"`
				A string `json:"a"`
			}{B: 7, A: "x"},
			expected: `{"a":"x","b":7}`,
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got, err := Canonical(tt.input)

			require.NoError(t, err)
			assert.Equal(t, tt.expected, string(got))
		})
	}
}

func TestCanonicalIsOrderIndependent(t *testing.T) {
	t.Parallel()

	// Two documents with the same content must serialize identically even if
	// they were built in different key order.
	a, err := Decode([]byte(`{"first":1,"second":{"x":true,"y":"z"}}`))
	require.NoError(t, err)
	b, err := Decode([]byte(`{"second":{"y":"z","x":true},"first":1}`))
	require.NoError(t, err)

	canonA, err := Canonical(a)
	require.NoError(t, err)
	canonB, err := Canonical(b)
	require.NoError(t, err)

	assert.Equal(t, string(canonA), string(canonB))
}

func TestDecodePreservesPrecision(t *testing.T) {
	t.Parallel()

	doc, err := Decode([]byte(`{"decimal":2.500000000000000000001}`))
	require.NoError(t, err)

	m, ok := doc.(map[string]any)
	require.True(t, ok)

	num, ok := m["decimal"].(json.Number)
	require.True(t, ok, "numbers must decode as json.Number")
	assert.Equal(t, "2.500000000000000000001", num.String())
}

func TestDecodeRejectsInvalidJSON(t *testing.T) {
	t.Parallel()

	_, err := Decode([]byte(`{"unterminated":`))
	assert.Error(t, err)
}
