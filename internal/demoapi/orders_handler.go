package demoapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/render"
	"github.com/google/uuid"

	"github.com/julianobarbosa/lambdakit/idempotency"
	"github.com/julianobarbosa/lambdakit/internal/logger"
	"github.com/julianobarbosa/lambdakit/internal/observability"
)

// maxOrderBytes caps the accepted request body size.
const maxOrderBytes = 1 << 20 // 1MB

// handleSubmitOrder processes the POST /api/v1/orders request.
//
// The raw JSON body is the idempotency event: the first submission executes
// the order handler, concurrent duplicates are rejected with 409, and later
// retries of the same payload get the stored response back with 200 instead
// of creating a second order.
func (a *API) handleSubmitOrder(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContext(r.Context())

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxOrderBytes))
	if err != nil {
		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, ErrorResponse{
			Code:    "ERR_BODY_READ",
			Message: "Failed to read request body: " + err.Error(),
		})
		return
	}

	if !json.Valid(body) {
		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, ErrorResponse{
			Code:    "ERR_INVALID_JSON",
			Message: "Request body must be valid JSON",
		})
		return
	}

	executed := false
	response, err := a.orders.Process(r.Context(), body, func(ctx context.Context, event any) (any, error) {
		executed = true
		return OrderResponse{
			OrderID: uuid.NewString(),
			Status:  "confirmed",
			Request: body,
		}, nil
	})
	if err != nil {
		a.renderOrderError(w, r, err)
		return
	}

	if executed {
		observability.IdempotencyOutcomes.WithLabelValues(observability.OutcomeExecuted).Inc()
		log.Info("order accepted")
		render.Status(r, http.StatusCreated)
	} else {
		observability.IdempotencyOutcomes.WithLabelValues(observability.OutcomeReplayed).Inc()
		log.Info("order replayed from idempotency store")
		render.Status(r, http.StatusOK)
	}

	w.Header().Set("Content-Type", "application/json")
	if status, ok := r.Context().Value(render.StatusCtxKey).(int); ok {
		w.WriteHeader(status)
	}
	_, _ = w.Write(response)
}

// renderOrderError maps idempotency failures onto the HTTP error contract.
func (a *API) renderOrderError(w http.ResponseWriter, r *http.Request, err error) {
	log := logger.FromContext(r.Context())

	switch {
	case errors.Is(err, idempotency.ErrAlreadyInProgress):
		observability.IdempotencyOutcomes.WithLabelValues(observability.OutcomeInProgress).Inc()
		render.Status(r, http.StatusConflict)
		render.JSON(w, r, ErrorResponse{
			Code:    "ERR_IN_PROGRESS",
			Message: "An identical order is currently being processed",
		})

	case errors.Is(err, idempotency.ErrValidation):
		observability.IdempotencyOutcomes.WithLabelValues(observability.OutcomeError).Inc()
		render.Status(r, http.StatusUnprocessableEntity)
		render.JSON(w, r, ErrorResponse{
			Code:    "ERR_PAYLOAD_MISMATCH",
			Message: "Order payload differs from the original request with this idempotency key",
		})

	case errors.Is(err, idempotency.ErrNoIdempotencyKey):
		observability.IdempotencyOutcomes.WithLabelValues(observability.OutcomeError).Inc()
		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, ErrorResponse{
			Code:    "ERR_NO_KEY",
			Message: "No idempotency key could be derived from the order payload",
		})

	default:
		observability.IdempotencyOutcomes.WithLabelValues(observability.OutcomeError).Inc()
		log.Error("order submission failed", slog.Any("error", err))
		render.Status(r, http.StatusInternalServerError)
		render.JSON(w, r, ErrorResponse{
			Code:    "ERR_INTERNAL",
			Message: "Failed to process order",
		})
	}
}
