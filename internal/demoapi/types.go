package demoapi

import "encoding/json"

// ErrorResponse is the JSON error envelope returned by all endpoints.
type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// OrderResponse is the payload produced by a successful order submission.
// Replays of the same request return the stored copy of this payload.
type OrderResponse struct {
	OrderID string          `json:"order_id"`
	Status  string          `json:"status"`
	Request json.RawMessage `json:"request"`
}

// FeatureResponse is the result of evaluating a single feature.
type FeatureResponse struct {
	Feature string `json:"feature"`
	Enabled bool   `json:"enabled"`
}

// FeaturesResponse lists all features enabled for the caller's attributes.
type FeaturesResponse struct {
	Features []string `json:"features"`
}

// SchemaValidationResponse reports the outcome of a schema validation call.
type SchemaValidationResponse struct {
	Valid bool   `json:"valid"`
	Error string `json:"error,omitempty"`
}
