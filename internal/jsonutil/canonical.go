// Package jsonutil provides deterministic JSON encoding for values that must
// hash identically regardless of their source representation.
//
// Two inputs that describe the same logical document always produce the same
// bytes: map keys are emitted in sorted order, numbers keep their original
// decimal text (no float round-trip), and non-finite floats are replaced by
// stable string tokens.
package jsonutil

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
)

// Tokens used for non-finite floats, which standard JSON cannot represent.
// They are applied both when hashing request payloads and when serializing
// handler responses, so a NaN survives persistence as the string "NaN" rather
// than failing to encode.
const (
	TokenNaN         = "NaN"
	TokenInfinity    = "Infinity"
	TokenNegInfinity = "-Infinity"
)

// Canonical encodes v into deterministic JSON.
//
// Maps are encoded with keys in lexical order (encoding/json guarantees this
// for map types). json.Number values pass through verbatim, which preserves
// arbitrary-precision decimals decoded with Decode. Structs and other typed
// values are normalized through a JSON round-trip first so that field order
// and numeric representation cannot influence the output.
func Canonical(v any) ([]byte, error) {
	n, err := normalize(v)
	if err != nil {
		return nil, err
	}
	return json.Marshal(n)
}

// Decode parses data into the generic document shape used throughout the
// module (map[string]any / []any / json.Number / string / bool / nil).
// Numbers are kept as json.Number so values like 42.999999999999999999 retain
// their exact source text.
func Decode(data []byte) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, fmt.Errorf("jsonutil: decode: %w", err)
	}
	return v, nil
}

// normalize rewrites v into a shape json.Marshal can encode deterministically.
func normalize(v any) (any, error) {
	switch t := v.(type) {
	case nil, string, bool, json.Number:
		return t, nil

	case float64:
		return normalizeFloat(t), nil

	case float32:
		return normalizeFloat(float64(t)), nil

	case map[string]any:
		out := make(map[string]any, len(t))
		for k, elem := range t {
			n, err := normalize(elem)
			if err != nil {
				return nil, err
			}
			out[k] = n
		}
		return out, nil

	case []any:
		out := make([]any, len(t))
		for i, elem := range t {
			n, err := normalize(elem)
			if err != nil {
				return nil, err
			}
			out[i] = n
		}
		return out, nil

	default:
		// Structs, typed maps, integers, etc. Round-trip through JSON to
		// flatten them into the generic shape, then normalize the result.
		raw, err := json.Marshal(t)
		if err != nil {
			return nil, fmt.Errorf("jsonutil: marshal %T: %w", t, err)
		}
		decoded, err := Decode(raw)
		if err != nil {
			return nil, err
		}
		return normalize(decoded)
	}
}

// normalizeFloat maps non-finite floats to their string tokens.
func normalizeFloat(f float64) any {
	switch {
	case math.IsNaN(f):
		return TokenNaN
	case math.IsInf(f, 1):
		return TokenInfinity
	case math.IsInf(f, -1):
		return TokenNegInfinity
	default:
		return f
	}
}
