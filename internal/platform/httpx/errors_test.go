package httpx

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-textile/internal/shared"
)

func TestRespondErrorMapsDomainErrors(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		status int
		title  string
	}{
		{"not found", fmt.Errorf("po 7: %w", shared.ErrNotFound), http.StatusNotFound, "Not Found"},
		{"validation", shared.Validation("quantity must be positive"), http.StatusBadRequest, "Validation Failed"},
		{"unauthorized", shared.ErrUnauthorized, http.StatusForbidden, "Unauthorized"},
		{"transition", &shared.TransitionError{Entity: "purchase_order", From: "CLOSED", Event: "confirm"}, http.StatusConflict, "Invalid Transition"},
		{"already processed", shared.Conflict("purchase_orders", 3, "APPROVED", "APPROVED"), http.StatusConflict, "Already Processed"},
		{"status conflict", shared.Conflict("purchase_orders", 3, "CANCELLED", "APPROVED"), http.StatusConflict, "Status Conflict"},
		{"stock", &shared.StockError{ProductID: 1, WarehouseID: 2}, http.StatusConflict, "Insufficient Stock"},
		{"imbalance", &shared.ImbalanceError{Reference: "GRN-1", Kind: "grn"}, http.StatusInternalServerError, "Ledger Imbalance"},
		{"other", errors.New("boom"), http.StatusInternalServerError, "Internal Error"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			RespondError(rec, tc.err)
			require.Equal(t, tc.status, rec.Code)

			var body ProblemDetail
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			require.Equal(t, tc.title, body.Title)
			require.Equal(t, tc.status, body.Status)
		})
	}
}

func TestRespondErrorGuardListsUnmet(t *testing.T) {
	rec := httptest.NewRecorder()
	RespondError(rec, fmt.Errorf("wrap: %w", &shared.GuardError{
		Entity: "purchase_request",
		Event:  "submit",
		Unmet:  []string{"at least one item", "department set"},
	}))

	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	var body ProblemDetail
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, []string{"at least one item", "department set"}, body.Unmet)
}

func TestRespondErrorRecoverableSetsRetryAfter(t *testing.T) {
	rec := httptest.NewRecorder()
	RespondError(rec, shared.Recoverable(errors.New("serialization failure")))

	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	require.Equal(t, "1", rec.Header().Get("Retry-After"))
	require.NotContains(t, rec.Body.String(), "serialization")
}

type bindTarget struct {
	Supplier string `json:"supplier" validate:"required"`
	Quantity int    `json:"quantity" validate:"gt=0"`
}

func TestBinderDecodesAndValidates(t *testing.T) {
	binder := NewBinder()

	var ok bindTarget
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"supplier":"PT Kain","quantity":4}`))
	require.NoError(t, binder.Bind(req, &ok))
	require.Equal(t, "PT Kain", ok.Supplier)

	var unknown bindTarget
	req = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"supplier":"PT Kain","quantity":4,"rush":true}`))
	err := binder.Bind(req, &unknown)
	require.ErrorIs(t, err, shared.ErrValidation)

	var invalid bindTarget
	req = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"quantity":0}`))
	err = binder.Bind(req, &invalid)
	require.ErrorIs(t, err, shared.ErrValidation)
	require.Contains(t, err.Error(), "bindTarget.Supplier failed required")
	require.Contains(t, err.Error(), "bindTarget.Quantity failed gt")
}
