// Package featureflags implements declarative feature flag evaluation for
// request handlers. A flag document maps feature names to a boolean default
// plus optional targeting rules; each rule carries a set of conditions that
// are matched against caller-supplied attributes.
//
// Documents are plain JSON mappings (typically loaded from a config store or
// file), so the package operates on the generic map[string]any shape and
// validates structure at runtime before any evaluation happens.
package featureflags

// Schema is the top-level feature flag document: feature name -> definition.
type Schema = map[string]any

// Keys that make up a feature definition inside a Schema.
const (
	// DefaultValueKey holds the feature's boolean fallback value. Required.
	DefaultValueKey = "default_value"

	// RulesKey holds the optional mapping of rule name -> rule definition.
	RulesKey = "rules"

	// MatchValueKey holds the boolean value a feature resolves to when every
	// condition of a rule matches. Required per rule.
	MatchValueKey = "match_value"

	// ConditionsKey holds the non-empty list of conditions of a rule.
	ConditionsKey = "conditions"

	// ConditionActionKey, ConditionKeyKey and ConditionValueKey are the three
	// required fields of a single condition.
	ConditionActionKey = "action"
	ConditionKeyKey    = "key"
	ConditionValueKey  = "value"
)

// Action identifies the comparison a condition applies between its configured
// value and the attribute looked up from the evaluation context.
type Action string

// The closed set of supported condition actions. Membership checks are
// case-sensitive: "equals" is not a valid action.
const (
	ActionEquals     Action = "EQUALS"
	ActionStartsWith Action = "STARTSWITH"
	ActionEndsWith   Action = "ENDSWITH"
	ActionIn         Action = "IN"
	ActionNotIn      Action = "NOT_IN"
)

// allActions is used both for membership validation and for error messages
// listing the allowed values. Order is fixed so messages stay deterministic.
var allActions = []Action{ActionEquals, ActionStartsWith, ActionEndsWith, ActionIn, ActionNotIn}

// validActions is the membership set derived from allActions.
var validActions = func() map[Action]struct{} {
	m := make(map[Action]struct{}, len(allActions))
	for _, a := range allActions {
		m[a] = struct{}{}
	}
	return m
}()
