// Package demoapi implements the REST API of the lambdakit demo service. It
// fronts the idempotency and feature flag layers with a small order-taking
// surface: order submission is idempotent, and feature endpoints expose flag
// evaluation for a caller's attributes.
package demoapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/render"

	"github.com/julianobarbosa/lambdakit/featureflags"
	"github.com/julianobarbosa/lambdakit/idempotency"
	"github.com/julianobarbosa/lambdakit/internal/validation"
)

// API holds the router and the dependencies of the demo service.
type API struct {
	// Router is the Chi multiplexer that handles HTTP requests.
	Router *chi.Mux

	// orders runs order submissions through the idempotency layer.
	orders *idempotency.Idempotent

	// flags evaluates feature flags. May be nil when no schema source is
	// configured; the feature endpoints then answer 404.
	flags *featureflags.Client
}

// NewAPI creates a new API instance. The flags client is optional.
func NewAPI(orders *idempotency.Idempotent, flags *featureflags.Client) *API {
	validation.AssertNotNil(orders, "idempotency layer")

	api := &API{
		Router: chi.NewRouter(),
		orders: orders,
		flags:  flags,
	}

	api.configureRoutes()
	return api
}

// configureRoutes registers the global middleware stack and API endpoints.
func (a *API) configureRoutes() {
	// RequestID: Adds a unique ID to each request context (essential for tracing).
	a.Router.Use(middleware.RequestID)
	// RealIP: correctly sets the IP if behind a proxy/LB.
	a.Router.Use(middleware.RealIP)
	// Logger: Logs request method, path, status, and duration.
	a.Router.Use(RequestLogger)
	// Metrics: Records request counts and latencies.
	a.Router.Use(Metrics)
	// Recoverer: Prevents the server from crashing on panics, returning 500 instead.
	a.Router.Use(middleware.Recoverer)
	// Content-Type: Forces JSON content type for API responses.
	a.Router.Use(render.SetContentType(render.ContentTypeJSON))

	a.Router.Get("/health", a.handleHealthCheck)

	a.Router.Route("/api/v1", func(r chi.Router) {
		r.Post("/orders", a.handleSubmitOrder)

		r.Route("/features", func(r chi.Router) {
			r.Get("/", a.handleEnabledFeatures)
			r.Get("/{name}", a.handleEvaluateFeature)
		})

		r.Post("/schema/validate", a.handleValidateSchema)
	})
}

// handleHealthCheck verifies that the service is serving HTTP. Deep checks
// live on the observability server's readiness probe.
func (a *API) handleHealthCheck(w http.ResponseWriter, r *http.Request) {
	render.Status(r, http.StatusOK)
	render.JSON(w, r, map[string]string{"status": "ok"})
}
