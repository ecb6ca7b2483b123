package demoapi

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"

	"github.com/julianobarbosa/lambdakit/featureflags"
	"github.com/julianobarbosa/lambdakit/internal/logger"
	"github.com/julianobarbosa/lambdakit/internal/observability"
)

// attributesFromQuery turns the request's query parameters into the attribute
// document matched against flag rule conditions. Repeated parameters keep only
// the first value.
func attributesFromQuery(r *http.Request) map[string]any {
	attributes := make(map[string]any)
	for key, values := range r.URL.Query() {
		if len(values) > 0 {
			attributes[key] = values[0]
		}
	}
	return attributes
}

// handleEvaluateFeature processes the GET /api/v1/features/{name} request.
// Query parameters are the caller's attributes, e.g. ?tier=premium.
func (a *API) handleEvaluateFeature(w http.ResponseWriter, r *http.Request) {
	if a.flags == nil {
		a.renderFlagsDisabled(w, r)
		return
	}

	log := logger.FromContext(r.Context())
	name := chi.URLParam(r, "name")

	enabled, err := a.flags.Evaluate(r.Context(), name, attributesFromQuery(r), false)
	if err != nil {
		a.renderFlagsError(w, r, err)
		return
	}

	observability.FlagEvaluations.WithLabelValues(name, strconv.FormatBool(enabled)).Inc()
	log.Debug("feature evaluated", slog.String("feature", name), slog.Bool("enabled", enabled))

	render.Status(r, http.StatusOK)
	render.JSON(w, r, FeatureResponse{Feature: name, Enabled: enabled})
}

// handleEnabledFeatures processes the GET /api/v1/features request and lists
// every feature enabled for the caller's attributes.
func (a *API) handleEnabledFeatures(w http.ResponseWriter, r *http.Request) {
	if a.flags == nil {
		a.renderFlagsDisabled(w, r)
		return
	}

	features, err := a.flags.EnabledFeatures(r.Context(), attributesFromQuery(r))
	if err != nil {
		a.renderFlagsError(w, r, err)
		return
	}

	if features == nil {
		features = []string{}
	}
	render.Status(r, http.StatusOK)
	render.JSON(w, r, FeaturesResponse{Features: features})
}

// handleValidateSchema processes the POST /api/v1/schema/validate request.
// It lets operators check a flag schema document before pushing it live.
func (a *API) handleValidateSchema(w http.ResponseWriter, r *http.Request) {
	var schema any
	if err := render.DecodeJSON(r.Body, &schema); err != nil {
		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, ErrorResponse{
			Code:    "ERR_INVALID_JSON",
			Message: "Invalid JSON payload: " + err.Error(),
		})
		return
	}

	if err := featureflags.NewValidator(schema).Validate(); err != nil {
		render.Status(r, http.StatusUnprocessableEntity)
		render.JSON(w, r, SchemaValidationResponse{Valid: false, Error: err.Error()})
		return
	}

	render.Status(r, http.StatusOK)
	render.JSON(w, r, SchemaValidationResponse{Valid: true})
}

func (a *API) renderFlagsDisabled(w http.ResponseWriter, r *http.Request) {
	render.Status(r, http.StatusNotFound)
	render.JSON(w, r, ErrorResponse{
		Code:    "ERR_FLAGS_DISABLED",
		Message: "Feature flags are not configured for this deployment",
	})
}

func (a *API) renderFlagsError(w http.ResponseWriter, r *http.Request, err error) {
	log := logger.FromContext(r.Context())

	var schemaErr *featureflags.SchemaValidationError
	if errors.As(err, &schemaErr) {
		observability.SchemaValidationFailures.Inc()
		log.Error("flag schema rejected", slog.String("error", schemaErr.Message))
		render.Status(r, http.StatusInternalServerError)
		render.JSON(w, r, ErrorResponse{
			Code:    "ERR_SCHEMA_INVALID",
			Message: "The configured flag schema failed validation",
		})
		return
	}

	log.Error("feature evaluation failed", slog.Any("error", err))
	render.Status(r, http.StatusInternalServerError)
	render.JSON(w, r, ErrorResponse{
		Code:    "ERR_INTERNAL",
		Message: "Failed to evaluate feature flags",
	})
}
