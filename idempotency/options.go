package idempotency

import "time"

// Defaults applied by NewStore when the corresponding option is not set.
const (
	// DefaultExpiry keeps a record authoritative for one hour.
	DefaultExpiry = time.Hour

	// DefaultKeyPrefix scopes derived keys when the caller does not name the
	// handler.
	DefaultKeyPrefix = "handler"

	// DefaultLocalCacheMaxItems bounds the in-process record cache.
	DefaultLocalCacheMaxItems = 256
)

// Extractor selects the event subset that feeds key derivation. It is the
// substitution point for callers whose selection logic goes beyond a path
// expression, such as decoding an envelope before picking fields.
type Extractor func(event any) (any, error)

// config collects everything an Option can tune.
type config struct {
	eventKeyExpr       string
	eventKeyFn         Extractor
	payloadExpr        string
	payloadFn          Extractor
	keyPrefix          string
	expiresAfter       time.Duration
	useLocalCache      bool
	localCacheMaxItems int
	raiseOnNoKey       bool
	now                func() time.Time
}

// Option customizes a Store.
type Option func(*config)

// WithEventKeyQuery sets the JMESPath expression selecting the event subset
// that is hashed into the idempotency key. Unset means the whole event.
func WithEventKeyQuery(expr string) Option {
	return func(c *config) {
		c.eventKeyExpr = expr
	}
}

// WithEventKeyExtractor replaces the event key query with a caller-supplied
// function. It takes precedence over WithEventKeyQuery. A nil result counts
// as an empty selection, same as a query that matches nothing.
func WithEventKeyExtractor(fn Extractor) Option {
	return func(c *config) {
		c.eventKeyFn = fn
	}
}

// WithPayloadValidationQuery sets the JMESPath expression selecting a
// secondary payload subset. Its hash is stored with the record and compared
// on retries, catching two different requests that collide on one key.
func WithPayloadValidationQuery(expr string) Option {
	return func(c *config) {
		c.payloadExpr = expr
	}
}

// WithPayloadValidationExtractor replaces the payload validation query with a
// caller-supplied function. It takes precedence over
// WithPayloadValidationQuery and enables payload validation on its own.
func WithPayloadValidationExtractor(fn Extractor) Option {
	return func(c *config) {
		c.payloadFn = fn
	}
}

// WithKeyPrefix scopes derived keys, typically to the handler or function
// name, so two handlers sharing a backend table never collide.
func WithKeyPrefix(prefix string) Option {
	return func(c *config) {
		c.keyPrefix = prefix
	}
}

// WithExpiresAfter sets how long a record stays authoritative. Once elapsed
// the key can be reclaimed by a fresh execution.
func WithExpiresAfter(d time.Duration) Option {
	return func(c *config) {
		c.expiresAfter = d
	}
}

// WithLocalCache enables the bounded in-process record cache. maxItems <= 0
// uses DefaultLocalCacheMaxItems. The cache only short-circuits reads of
// completed records; claiming a key always goes to the backend.
func WithLocalCache(maxItems int) Option {
	return func(c *config) {
		c.useLocalCache = true
		if maxItems > 0 {
			c.localCacheMaxItems = maxItems
		}
	}
}

// WithRaiseOnNoIdempotencyKey makes key derivation fail with
// ErrNoIdempotencyKey when the event key query selects nothing. Without it
// an empty selection is hashed as null, so byte-identical empty events still
// deduplicate.
func WithRaiseOnNoIdempotencyKey() Option {
	return func(c *config) {
		c.raiseOnNoKey = true
	}
}

// withClock overrides the time source. Test hook.
func withClock(now func() time.Time) Option {
	return func(c *config) {
		c.now = now
	}
}

// defaultConfig returns the baseline configuration.
func defaultConfig() config {
	return config{
		keyPrefix:          DefaultKeyPrefix,
		expiresAfter:       DefaultExpiry,
		localCacheMaxItems: DefaultLocalCacheMaxItems,
		now:                time.Now,
	}
}
