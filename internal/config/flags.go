package config

import (
	"fmt"
	"time"
)

// Flag schema source identifiers.
const (
	FlagSourceFile  = "file"
	FlagSourceRedis = "redis"
)

// FlagsConfig configures the feature flag layer of the demo service.
type FlagsConfig struct {
	// Source selects where the schema document lives.
	Source string `envconfig:"SOURCE" default:"file" validate:"oneof=file redis"`

	// SchemaPath points at the JSON flag schema file (file source). Empty
	// disables the flag-gated endpoints.
	SchemaPath string `envconfig:"SCHEMA_PATH"`

	// SchemaKey is the Redis key holding the schema document (redis source).
	SchemaKey string `envconfig:"SCHEMA_KEY" default:"featureflags:schema"`

	// CacheTTL bounds how long a fetched schema is reused before the source
	// is consulted again.
	CacheTTL time.Duration `envconfig:"CACHE_TTL" default:"5s"`
}

// Validate checks if the flags configuration is valid.
func (c *FlagsConfig) Validate() error {
	if c.CacheTTL < 0 {
		return fmt.Errorf("flags cache_ttl cannot be negative, got %s", c.CacheTTL)
	}
	return nil
}

// IsConfigured returns true if a schema source is set.
func (c *FlagsConfig) IsConfigured() bool {
	if c.Source == FlagSourceRedis {
		return true
	}
	return c.SchemaPath != ""
}
