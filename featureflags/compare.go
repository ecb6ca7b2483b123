package featureflags

import (
	"encoding/json"
	"strings"
)

// compareFunc decides whether a condition matches. conditionValue comes from
// the schema document, contextValue from the caller's evaluation attributes.
type compareFunc func(conditionValue, contextValue any) bool

// actionDispatch maps every Action to its comparison. The validator guarantees
// that only members of this table reach evaluation, so lookups never miss for
// a validated schema.
var actionDispatch = map[Action]compareFunc{
	ActionEquals: looseEqual,
	ActionStartsWith: func(conditionValue, contextValue any) bool {
		prefix, ok1 := conditionValue.(string)
		s, ok2 := contextValue.(string)
		return ok1 && ok2 && strings.HasPrefix(s, prefix)
	},
	ActionEndsWith: func(conditionValue, contextValue any) bool {
		suffix, ok1 := conditionValue.(string)
		s, ok2 := contextValue.(string)
		return ok1 && ok2 && strings.HasSuffix(s, suffix)
	},
	ActionIn:    contains,
	ActionNotIn: func(conditionValue, contextValue any) bool { return !contains(conditionValue, contextValue) },
}

// contains reports whether contextValue equals any element of the condition's
// list value.
func contains(conditionValue, contextValue any) bool {
	list, ok := conditionValue.([]any)
	if !ok {
		return false
	}
	for _, elem := range list {
		if looseEqual(elem, contextValue) {
			return true
		}
	}
	return false
}

// looseEqual compares two scalar values ignoring numeric representation:
// a json.Number from a decoded document equals the float64 a caller passes in
// attributes. No reflection; only the scalar types JSON can produce.
func looseEqual(a, b any) bool {
	if na, ok := toFloat(a); ok {
		nb, ok := toFloat(b)
		return ok && na == nb
	}

	switch typedA := a.(type) {
	case string:
		typedB, ok := b.(string)
		return ok && typedA == typedB
	case bool:
		typedB, ok := b.(bool)
		return ok && typedA == typedB
	case nil:
		return b == nil
	default:
		return false
	}
}

// toFloat normalizes the numeric types that appear in decoded documents and
// caller attributes.
func toFloat(v any) (float64, bool) {
	switch typed := v.(type) {
	case float64:
		return typed, true
	case float32:
		return float64(typed), true
	case int:
		return float64(typed), true
	case int64:
		return float64(typed), true
	case json.Number:
		f, err := typed.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}
