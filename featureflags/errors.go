package featureflags

import "fmt"

// SchemaValidationError reports the first structural defect found in a feature
// flag document. The message names the offending field and its location so the
// document author can fix it without guessing.
//
// Validation errors are caller-authored configuration defects: they are never
// transient and must not be retried.
type SchemaValidationError struct {
	Message string
}

// Error implements the error interface.
func (e *SchemaValidationError) Error() string {
	return e.Message
}

// schemaErrorf builds a *SchemaValidationError with a formatted message.
func schemaErrorf(format string, args ...any) *SchemaValidationError {
	return &SchemaValidationError{Message: fmt.Sprintf(format, args...)}
}
