package featureflags

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// tenantSchema is a small but complete document exercising every action.
func tenantSchema() Schema {
	return map[string]any{
		"premium_checkout": map[string]any{
			DefaultValueKey: false,
			RulesKey: map[string]any{
				"premium tenants": map[string]any{
					MatchValueKey: true,
					ConditionsKey: []any{
						map[string]any{
							ConditionActionKey: string(ActionEquals),
							ConditionKeyKey:    "tier",
							ConditionValueKey:  "premium",
						},
						map[string]any{
							ConditionActionKey: string(ActionIn),
							ConditionKeyKey:    "region",
							ConditionValueKey:  []any{"eu-west-1", "us-east-1"},
						},
					},
				},
			},
		},
		"new_ui": map[string]any{
			DefaultValueKey: true,
		},
	}
}

func TestEvaluate(t *testing.T) {
	t.Parallel()

	client := NewClient(NewStaticStore(tenantSchema()))
	ctx := context.Background()

	tests := []struct {
		name       string
		feature    string
		attributes map[string]any
		fallback   bool
		expected   bool
	}{
		{
			name:    "all conditions match",
			feature: "premium_checkout",
			attributes: map[string]any{
				"tier":   "premium",
				"region": "eu-west-1",
			},
			expected: true,
		},
		{
			name:    "one condition fails",
			feature: "premium_checkout",
			attributes: map[string]any{
				"tier":   "premium",
				"region": "ap-south-1",
			},
			expected: false,
		},
		{
			name:       "missing attribute never matches",
			feature:    "premium_checkout",
			attributes: map[string]any{"tier": "premium"},
			expected:   false,
		},
		{
			name:       "feature without rules uses its default",
			feature:    "new_ui",
			attributes: map[string]any{},
			expected:   true,
		},
		{
			name:       "unknown feature uses caller fallback",
			feature:    "does_not_exist",
			attributes: map[string]any{},
			fallback:   true,
			expected:   true,
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got, err := client.Evaluate(ctx, tt.feature, tt.attributes, tt.fallback)

			require.NoError(t, err)
			assert.Equal(t, tt.expected, got)
		})
	}
}

func TestEvaluateStringActions(t *testing.T) {
	t.Parallel()

	schema := map[string]any{
		"beta": map[string]any{
			DefaultValueKey: false,
			RulesKey: map[string]any{
				"usernames starting with a and not blocked": map[string]any{
					MatchValueKey: true,
					ConditionsKey: []any{
						map[string]any{
							ConditionActionKey: string(ActionStartsWith),
							ConditionKeyKey:    "username",
							ConditionValueKey:  "a",
						},
						map[string]any{
							ConditionActionKey: string(ActionEndsWith),
							ConditionKeyKey:    "username",
							ConditionValueKey:  "e",
						},
						map[string]any{
							ConditionActionKey: string(ActionNotIn),
							ConditionKeyKey:    "username",
							ConditionValueKey:  []any{"abuse"},
						},
					},
				},
			},
		},
	}

	client := NewClient(NewStaticStore(schema))
	ctx := context.Background()

	got, err := client.Evaluate(ctx, "beta", map[string]any{"username": "alice"}, false)
	require.NoError(t, err)
	assert.True(t, got)

	got, err = client.Evaluate(ctx, "beta", map[string]any{"username": "abuse"}, false)
	require.NoError(t, err)
	assert.False(t, got)
}

func TestEvaluateInvalidSchemaFails(t *testing.T) {
	t.Parallel()

	client := NewClient(NewStaticStore(map[string]any{
		"broken": map[string]any{DefaultValueKey: "not-a-bool"},
	}))

	_, err := client.Evaluate(context.Background(), "broken", nil, false)

	var schemaErr *SchemaValidationError
	require.ErrorAs(t, err, &schemaErr)
}

func TestEnabledFeatures(t *testing.T) {
	t.Parallel()

	client := NewClient(NewStaticStore(tenantSchema()))

	enabled, err := client.EnabledFeatures(context.Background(), map[string]any{
		"tier":   "premium",
		"region": "us-east-1",
	})

	require.NoError(t, err)
	assert.Equal(t, []string{"new_ui", "premium_checkout"}, enabled)
}

func TestFileStore(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "flags.json")
	doc := []byte(`{"new_ui": {"default_value": true}}`)
	require.NoError(t, os.WriteFile(path, doc, 0o600))

	store := NewFileStore(path, time.Minute)
	client := NewClient(store)

	got, err := client.Evaluate(context.Background(), "new_ui", nil, false)
	require.NoError(t, err)
	assert.True(t, got)

	// Within the TTL the cached document is served, so a file change is not
	// visible yet.
	require.NoError(t, os.WriteFile(path, []byte(`{"new_ui": {"default_value": false}}`), 0o600))

	got, err = client.Evaluate(context.Background(), "new_ui", nil, false)
	require.NoError(t, err)
	assert.True(t, got, "cached schema must be immutable until the TTL elapses")
}

func TestFileStoreWithoutCacheRereads(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "flags.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"new_ui": {"default_value": true}}`), 0o600))

	store := NewFileStore(path, 0)
	client := NewClient(store)

	got, err := client.Evaluate(context.Background(), "new_ui", nil, false)
	require.NoError(t, err)
	assert.True(t, got)

	require.NoError(t, os.WriteFile(path, []byte(`{"new_ui": {"default_value": false}}`), 0o600))

	got, err = client.Evaluate(context.Background(), "new_ui", nil, false)
	require.NoError(t, err)
	assert.False(t, got)
}

func TestFileStoreMissingFile(t *testing.T) {
	t.Parallel()

	store := NewFileStore(filepath.Join(t.TempDir(), "absent.json"), time.Minute)
	_, err := store.GetSchema(context.Background())
	assert.Error(t, err)
}
