// Package validation provides helpers for contract enforcement in
// constructors and wiring code.
package validation

import "fmt"

// AssertNotNil panics if the provided pointer is nil. It is intended for
// constructors and configuration phases where a dependency is mandatory and
// a missing one is a programmer error, not a runtime condition.
//
// Usage:
//
//	validation.AssertNotNil(pool, "database pool")
func AssertNotNil[T any](ptr *T, name string) {
	if ptr == nil {
		panic(fmt.Sprintf("critical error: %s cannot be nil", name))
	}
}
