package featureflags

import (
	"sort"
)

// Validator checks a raw feature flag document for structural correctness.
// It walks the tree top-down (schema -> rules -> conditions) and stops at the
// first violation, returning a *SchemaValidationError that names the offending
// field. A valid document produces no side effects.
type Validator struct {
	schema any
}

// NewValidator wraps a raw document for validation. The document is accepted
// as any because invalid inputs (lists, scalars) must be reported as schema
// errors, not type errors at the call site.
func NewValidator(schema any) *Validator {
	return &Validator{schema: schema}
}

// Validate checks the whole document. An empty mapping is valid: it simply
// declares no features.
func (v *Validator) Validate() error {
	features, ok := v.schema.(map[string]any)
	if !ok {
		return schemaErrorf("invalid schema detected, root must be a mapping of features, got=%T", v.schema)
	}

	// Sorted iteration keeps error attribution deterministic when more than
	// one feature is malformed.
	names := make([]string, 0, len(features))
	for name := range features {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		if err := validateFeature(name, features[name]); err != nil {
			return err
		}
	}
	return nil
}

// validateFeature checks a single feature definition and delegates its rules
// downward.
func validateFeature(featureName string, feature any) error {
	def, ok := feature.(map[string]any)
	if !ok {
		return schemaErrorf("feature must be a mapping, feature=%s", featureName)
	}

	defaultValue, present := def[DefaultValueKey]
	if !present {
		return schemaErrorf("'default_value' boolean key must be present, feature=%s", featureName)
	}
	if _, isBool := defaultValue.(bool); !isBool {
		return schemaErrorf("'default_value' key must be boolean, feature=%s", featureName)
	}

	return validateRules(def[RulesKey], featureName)
}

// validateRules checks the optional rules block of a feature. A missing block
// or an empty sequence both mean "no rules" and are valid.
func validateRules(rules any, featureName string) error {
	if rules == nil {
		return nil
	}

	switch typed := rules.(type) {
	case []any:
		if len(typed) == 0 {
			return nil
		}
		// A non-empty sequence cannot carry rule names.
		return schemaErrorf("'rules' key must be a mapping of rule names, feature=%s", featureName)

	case map[string]any:
		names := make([]string, 0, len(typed))
		for name := range typed {
			names = append(names, name)
		}
		sort.Strings(names)

		for _, ruleName := range names {
			if err := ValidateRuleName(ruleName, featureName); err != nil {
				return err
			}
			if err := ValidateRule(typed[ruleName], ruleName, featureName); err != nil {
				return err
			}
		}
		return nil

	default:
		return schemaErrorf("'rules' key must be a mapping, feature=%s", featureName)
	}
}

// ValidateRuleName checks that a rule is keyed by a non-empty string.
func ValidateRuleName(ruleName, featureName string) error {
	if ruleName == "" {
		return schemaErrorf("rule name key must have a non-empty string, feature=%s", featureName)
	}
	return nil
}

// ValidateRule checks a single rule body: it must be a mapping with a boolean
// match value and a non-empty list of conditions.
func ValidateRule(rule any, ruleName, featureName string) error {
	body, ok := rule.(map[string]any)
	if !ok {
		return schemaErrorf("feature rule must be a mapping, feature=%s, rule=%s", featureName, ruleName)
	}

	matchValue, present := body[MatchValueKey]
	if !present {
		return schemaErrorf("'match_value' boolean key must be present, rule=%s", ruleName)
	}
	if _, isBool := matchValue.(bool); !isBool {
		return schemaErrorf("'match_value' key must be boolean, rule=%s", ruleName)
	}

	conditions, ok := body[ConditionsKey].([]any)
	if !ok || len(conditions) == 0 {
		return schemaErrorf("'conditions' key must be a non-empty list, rule=%s", ruleName)
	}

	for _, condition := range conditions {
		if err := ValidateCondition(condition, ruleName); err != nil {
			return err
		}
	}
	return nil
}

// ValidateCondition checks a single condition: shape, action, key and value.
func ValidateCondition(condition any, ruleName string) error {
	cond, ok := condition.(map[string]any)
	if !ok || len(cond) == 0 {
		return schemaErrorf("feature rule condition must be a mapping, rule=%s", ruleName)
	}

	if err := ValidateConditionAction(cond, ruleName); err != nil {
		return err
	}
	if err := ValidateConditionKey(cond, ruleName); err != nil {
		return err
	}
	return ValidateConditionValue(cond, ruleName)
}

// ValidateConditionAction checks that the condition action belongs to the
// closed Action set. The check is case-sensitive.
func ValidateConditionAction(condition map[string]any, ruleName string) error {
	action, _ := condition[ConditionActionKey].(string)
	if _, ok := validActions[Action(action)]; !ok {
		return schemaErrorf("'action' value must be either %v, rule=%s", allActions, ruleName)
	}
	return nil
}

// ValidateConditionKey checks that the condition key is a non-empty string.
func ValidateConditionKey(condition map[string]any, ruleName string) error {
	key, ok := condition[ConditionKeyKey].(string)
	if !ok || key == "" {
		return schemaErrorf("'key' value must be a non empty string, rule=%s", ruleName)
	}
	return nil
}

// ValidateConditionValue checks that the condition value is present and
// non-empty. Booleans and numbers are always accepted; strings, lists and
// mappings must be non-empty.
func ValidateConditionValue(condition map[string]any, ruleName string) error {
	value, present := condition[ConditionValueKey]
	if !present || isEmptyValue(value) {
		return schemaErrorf("'value' key must not be empty, rule=%s", ruleName)
	}
	return nil
}

// isEmptyValue reports whether a condition value carries no usable content.
func isEmptyValue(value any) bool {
	switch typed := value.(type) {
	case nil:
		return true
	case string:
		return typed == ""
	case []any:
		return len(typed) == 0
	case map[string]any:
		return len(typed) == 0
	default:
		return false
	}
}
