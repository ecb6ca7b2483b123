package config

import (
	"fmt"
	"time"
)

// Idempotency backend identifiers.
const (
	BackendRedis    = "redis"
	BackendPostgres = "postgres"
	BackendDynamo   = "dynamo"
)

// IdempotencyConfig configures the idempotency layer of the demo service.
type IdempotencyConfig struct {
	// Backend selects the persistence layer behind the idempotency store.
	Backend string `envconfig:"BACKEND" default:"redis" validate:"oneof=redis postgres dynamo"`

	// KeyPrefix namespaces idempotency keys per handler.
	KeyPrefix string `envconfig:"KEY_PREFIX" default:"orders"`

	// EventKeyQuery selects the part of the request payload that identifies
	// a logical operation. Empty means the whole payload.
	EventKeyQuery string `envconfig:"EVENT_KEY_QUERY"`

	// PayloadQuery selects the part of the payload guarded against tampering
	// between retries. Empty disables payload validation.
	PayloadQuery string `envconfig:"PAYLOAD_QUERY"`

	// ExpiresAfter bounds how long a completed operation shields its key.
	ExpiresAfter time.Duration `envconfig:"EXPIRES_AFTER" default:"1h"`

	// RaiseOnNoKey makes an empty key selection an error instead of a bypass.
	RaiseOnNoKey bool `envconfig:"RAISE_ON_NO_KEY" default:"false"`

	// Local cache settings
	LocalCache         bool `envconfig:"LOCAL_CACHE" default:"true"`
	LocalCacheMaxItems int  `envconfig:"LOCAL_CACHE_MAX_ITEMS" default:"256" validate:"min=1"`

	// Table is the records table (postgres) or DynamoDB table name.
	Table string `envconfig:"TABLE"`
}

// Validate checks if the idempotency configuration is valid.
func (c *IdempotencyConfig) Validate() error {
	if err := validateNoWhitespace(c.KeyPrefix, "idempotency key prefix"); err != nil {
		return err
	}

	if c.ExpiresAfter <= 0 {
		return fmt.Errorf("idempotency expires_after must be positive, got %s", c.ExpiresAfter)
	}

	if c.Backend == BackendDynamo && c.Table == "" {
		return fmt.Errorf("idempotency table is required for the dynamo backend")
	}

	return nil
}
