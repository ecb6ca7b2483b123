package idempotency

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"

	"github.com/julianobarbosa/lambdakit/internal/jsonutil"
)

// deriveKey extracts the configured event subset, serializes it canonically
// and returns "{prefix}#{md5hex}". Determinism is the only requirement of the
// digest: two logically equal events must always produce the same key, so the
// serialization sorts mapping keys and normalizes numeric representation
// before hashing. md5 is used for its stable fixed width, not for collision
// resistance.
func (s *Store) deriveKey(event any) (string, error) {
	selected, err := s.extractKey(event)
	if err != nil {
		return "", fmt.Errorf("idempotency: extract event key data: %w", err)
	}

	if isEmptySelection(selected) && s.cfg.raiseOnNoKey {
		return "", fmt.Errorf("%w: source=%s", ErrNoIdempotencyKey, s.keySource)
	}

	digest, err := hashData(selected)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s#%s", s.cfg.keyPrefix, digest), nil
}

// payloadHash computes the validation hash of the secondary payload subset.
// Returns "" when payload validation is not configured.
func (s *Store) payloadHash(event any) (string, error) {
	if s.extractPayload == nil {
		return "", nil
	}

	selected, err := s.extractPayload(event)
	if err != nil {
		return "", fmt.Errorf("idempotency: extract validation data: %w", err)
	}
	return hashData(selected)
}

// hashData canonically serializes data and returns the hex md5 digest.
func hashData(data any) (string, error) {
	canonical, err := jsonutil.Canonical(data)
	if err != nil {
		return "", fmt.Errorf("idempotency: serialize for hashing: %w", err)
	}

	sum := md5.Sum(canonical)
	return hex.EncodeToString(sum[:]), nil
}

// isEmptySelection reports whether a path query selected nothing usable.
// JMESPath returns nil for a missing path; a multi-select of missing paths
// yields a list of nils.
func isEmptySelection(v any) bool {
	switch typed := v.(type) {
	case nil:
		return true
	case []any:
		for _, elem := range typed {
			if !isEmptySelection(elem) {
				return false
			}
		}
		return true
	default:
		return false
	}
}
