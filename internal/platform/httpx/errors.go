// Package httpx provides HTTP response utilities.
package httpx

import (
	"errors"
	"net/http"

	"github.com/odyssey-erp/odyssey-textile/internal/shared"
)

// RespondError maps domain errors to HTTP responses using RFC7807.
func RespondError(w http.ResponseWriter, err error) {
	var guardErr *shared.GuardError
	switch {
	case errors.As(err, &guardErr):
		JSON(w, http.StatusUnprocessableEntity, ProblemDetail{
			Title:  "Guard Violation",
			Status: http.StatusUnprocessableEntity,
			Detail: err.Error(),
			Unmet:  guardErr.Unmet,
		})
	case errors.Is(err, shared.ErrNotFound):
		Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, shared.ErrValidation):
		Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	case errors.Is(err, shared.ErrUnauthorized):
		Problem(w, http.StatusForbidden, "Unauthorized", err.Error())
	case errors.Is(err, shared.ErrInvalidTransition):
		Problem(w, http.StatusConflict, "Invalid Transition", err.Error())
	case errors.Is(err, shared.ErrAlreadyProcessed):
		Problem(w, http.StatusConflict, "Already Processed", err.Error())
	case errors.Is(err, shared.ErrStatusConflict):
		Problem(w, http.StatusConflict, "Status Conflict", err.Error())
	case errors.Is(err, shared.ErrInsufficientStock):
		Problem(w, http.StatusConflict, "Insufficient Stock", err.Error())
	case errors.Is(err, shared.ErrRecoverable):
		w.Header().Set("Retry-After", "1")
		Problem(w, http.StatusServiceUnavailable, "Temporarily Unavailable", "")
	case errors.Is(err, shared.ErrLedgerImbalance):
		Problem(w, http.StatusInternalServerError, "Ledger Imbalance", "")
	default:
		Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}
