// Package pathquery wraps JMESPath expression evaluation behind a small,
// precompiled query type. An empty expression compiles to the identity query,
// which returns the input document unchanged.
package pathquery

import (
	"fmt"

	"github.com/jmespath/go-jmespath"
)

// Query is a compiled path expression ready for repeated evaluation.
// The zero value behaves as the identity query.
type Query struct {
	expr     string
	compiled *jmespath.JMESPath
}

// Compile parses expr into a reusable Query. An empty expression yields the
// identity query rather than an error, so callers can treat "no expression
// configured" and "select the whole document" the same way.
func Compile(expr string) (*Query, error) {
	if expr == "" {
		return &Query{}, nil
	}

	compiled, err := jmespath.Compile(expr)
	if err != nil {
		return nil, fmt.Errorf("pathquery: compile %q: %w", expr, err)
	}

	return &Query{expr: expr, compiled: compiled}, nil
}

// MustCompile is Compile for expressions known valid at build time.
// It panics on error and is intended for tests and package-level defaults.
func MustCompile(expr string) *Query {
	q, err := Compile(expr)
	if err != nil {
		panic(err)
	}
	return q
}

// Search evaluates the query against doc and returns the extracted sub-value.
// A missing path returns nil with no error, mirroring JMESPath semantics.
func (q *Query) Search(doc any) (any, error) {
	if q == nil || q.compiled == nil {
		return doc, nil
	}

	result, err := q.compiled.Search(doc)
	if err != nil {
		return nil, fmt.Errorf("pathquery: search %q: %w", q.expr, err)
	}
	return result, nil
}

// String returns the source expression, or "@" for the identity query.
func (q *Query) String() string {
	if q == nil || q.expr == "" {
		return "@"
	}
	return q.expr
}
