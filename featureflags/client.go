package featureflags

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"github.com/julianobarbosa/lambdakit/internal/logger"
)

// Client evaluates feature flags against caller-supplied attributes.
//
// The schema document is fetched from a SchemaStore on every evaluation and
// validated before use; stores are expected to cache the raw document (see
// FileStore), so validation cost is bounded by the store's refresh interval.
type Client struct {
	store SchemaStore
}

// NewClient builds an evaluation client on top of a schema store.
// Panics if store is nil: a client without a schema source is a programming
// error, not a runtime condition.
func NewClient(store SchemaStore) *Client {
	if store == nil {
		panic("featureflags: schema store cannot be nil")
	}
	return &Client{store: store}
}

// Evaluate resolves a single feature for the given attributes.
//
// Resolution order:
//  1. unknown feature        -> defaultValue (the caller's fallback)
//  2. feature without rules  -> the feature's own default_value
//  3. first rule whose conditions ALL match -> the rule's match_value
//  4. no rule matched        -> the feature's own default_value
//
// Rules are visited in lexical name order so evaluation is deterministic.
func (c *Client) Evaluate(ctx context.Context, name string, attributes map[string]any, defaultValue bool) (bool, error) {
	schema, err := c.fetchValidated(ctx)
	if err != nil {
		return defaultValue, err
	}

	feature, ok := schema[name].(map[string]any)
	if !ok {
		logger.FromContext(ctx).Debug("feature not found in schema, returning caller default",
			slog.String("feature", name), slog.Bool("default", defaultValue))
		return defaultValue, nil
	}

	// Validation guarantees the assertion below holds.
	featureDefault := feature[DefaultValueKey].(bool)

	rules, ok := feature[RulesKey].(map[string]any)
	if !ok || len(rules) == 0 {
		return featureDefault, nil
	}

	if value, matched := evaluateRules(ctx, name, rules, attributes); matched {
		return value, nil
	}
	return featureDefault, nil
}

// EnabledFeatures returns the names of all features that evaluate to true for
// the given attributes, in lexical order.
func (c *Client) EnabledFeatures(ctx context.Context, attributes map[string]any) ([]string, error) {
	schema, err := c.fetchValidated(ctx)
	if err != nil {
		return nil, err
	}

	var enabled []string
	for name := range schema {
		value, err := c.Evaluate(ctx, name, attributes, false)
		if err != nil {
			return nil, err
		}
		if value {
			enabled = append(enabled, name)
		}
	}
	sort.Strings(enabled)
	return enabled, nil
}

// fetchValidated loads the current schema and verifies its structure before
// any rule is consulted. An invalid document aborts evaluation.
func (c *Client) fetchValidated(ctx context.Context) (map[string]any, error) {
	raw, err := c.store.GetSchema(ctx)
	if err != nil {
		return nil, fmt.Errorf("featureflags: fetch schema: %w", err)
	}
	if err := NewValidator(raw).Validate(); err != nil {
		return nil, err
	}
	return raw, nil
}

// evaluateRules walks the rules in lexical name order and returns the match
// value of the first rule whose conditions all hold.
func evaluateRules(ctx context.Context, featureName string, rules map[string]any, attributes map[string]any) (bool, bool) {
	names := make([]string, 0, len(rules))
	for name := range rules {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, ruleName := range names {
		rule := rules[ruleName].(map[string]any)
		if ruleMatches(rule, attributes) {
			logger.FromContext(ctx).Debug("rule matched",
				slog.String("feature", featureName), slog.String("rule", ruleName))
			return rule[MatchValueKey].(bool), true
		}
	}
	return false, false
}

// ruleMatches reports whether every condition of the rule holds for the given
// attributes. A condition on an attribute that is absent never matches.
func ruleMatches(rule map[string]any, attributes map[string]any) bool {
	conditions := rule[ConditionsKey].([]any)

	for _, raw := range conditions {
		cond := raw.(map[string]any)

		key := cond[ConditionKeyKey].(string)
		contextValue, present := attributes[key]
		if !present {
			return false
		}

		action := Action(cond[ConditionActionKey].(string))
		if !actionDispatch[action](cond[ConditionValueKey], contextValue) {
			return false
		}
	}
	return true
}
