package shared

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/require"
)

type execCall struct {
	sql  string
	args []any
}

type fakeExecer struct {
	calls []execCall
	tag   string
	err   error
}

func (f *fakeExecer) Exec(_ context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	f.calls = append(f.calls, execCall{sql: sql, args: args})
	if f.err != nil {
		return pgconn.CommandTag{}, f.err
	}
	return pgconn.NewCommandTag(f.tag), nil
}

func TestIdempotencyClaim(t *testing.T) {
	ctx := context.Background()
	db := &fakeExecer{tag: "INSERT 0 1"}
	store := NewIdempotencyStore(db)

	require.NoError(t, store.Claim(ctx, "pay-001", "payout"))
	require.Len(t, db.calls, 1)
	require.Contains(t, db.calls[0].sql, "ON CONFLICT (key, module) DO NOTHING")
	require.Equal(t, "pay-001", db.calls[0].args[0])

	db.tag = "INSERT 0 0"
	err := store.Claim(ctx, "pay-001", "payout")
	require.ErrorIs(t, err, ErrIdempotencyConflict)
	require.ErrorIs(t, err, ErrAlreadyProcessed)

	require.Error(t, store.Claim(ctx, "", "payout"))
	require.Error(t, store.Claim(ctx, "pay-002", ""))
	require.Len(t, db.calls, 2)

	db.err = errors.New("conn reset")
	require.EqualError(t, store.Claim(ctx, "pay-003", "payout"), "conn reset")
}

func TestIdempotencyCleanupUsesRetentionCutoff(t *testing.T) {
	now := time.Date(2026, 3, 31, 12, 0, 0, 0, time.UTC)
	db := &fakeExecer{tag: "DELETE 3"}
	store := NewIdempotencyStore(db)
	store.now = func() time.Time { return now }

	require.NoError(t, store.Cleanup(context.Background(), 720*time.Hour))
	require.Len(t, db.calls, 1)
	require.Equal(t, now.Add(-720*time.Hour), db.calls[0].args[0])

	var nilStore *IdempotencyStore
	require.NoError(t, nilStore.Cleanup(context.Background(), time.Hour))
}

func TestAuditLoggerValidatesAndWrites(t *testing.T) {
	db := &fakeExecer{tag: "INSERT 0 1"}
	logger := NewAuditLogger(db)

	require.Error(t, logger.Record(context.Background(), AuditLog{Action: "po.confirm"}))
	require.Empty(t, db.calls)

	require.NoError(t, logger.Record(context.Background(), AuditLog{
		ActorID:  7,
		Action:   "po.confirm",
		Entity:   "purchase_order",
		EntityID: "PO-2026-0001",
		Meta:     map[string]any{"from": "PENDING_APPROVAL"},
	}))
	require.Len(t, db.calls, 1)
	require.JSONEq(t, `{"from":"PENDING_APPROVAL"}`, string(db.calls[0].args[4].([]byte)))
	require.Nil(t, db.calls[0].args[5])
}

func TestApprovalRecorder(t *testing.T) {
	db := &fakeExecer{tag: "INSERT 0 1"}
	recorder := NewApprovalRecorder(db)
	ref := DocumentRef("purchase_request", "PR-2026-0004")
	require.Equal(t, ref, DocumentRef("purchase_request", "PR-2026-0004"))
	require.NotEqual(t, ref, DocumentRef("purchase_order", "PR-2026-0004"))

	require.Error(t, recorder.Record(context.Background(), ApprovalLog{Module: "purchase_request", RefID: ref, Action: ApprovalApprove}))

	at := time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC)
	require.NoError(t, recorder.Record(context.Background(), ApprovalLog{
		Module:  "purchase_request",
		RefID:   ref,
		ActorID: 3,
		Action:  ApprovalApprove,
		At:      at,
	}))
	require.Len(t, db.calls, 1)
	require.Equal(t, "APPROVE", db.calls[0].args[3])
	require.Equal(t, at, db.calls[0].args[5])
}

func TestErrorKinds(t *testing.T) {
	guard := &GuardError{Entity: "purchase_request", Event: "submit", Unmet: []string{"items", "department"}}
	require.ErrorIs(t, fmt.Errorf("wrap: %w", guard), ErrGuardViolation)
	require.Equal(t, "purchase_request submit: guard violation: items; department", guard.Error())

	require.ErrorIs(t, &TransitionError{Entity: "grn", From: "POSTED", Event: "post"}, ErrInvalidTransition)
	require.ErrorIs(t, &StockError{ProductID: 1, WarehouseID: 1}, ErrInsufficientStock)
	require.ErrorIs(t, &ImbalanceError{Reference: "INV-1", Kind: "invoice"}, ErrLedgerImbalance)

	err := Validation("quantity %s must be positive", "-1")
	require.ErrorIs(t, err, ErrValidation)
	require.True(t, strings.HasSuffix(err.Error(), "quantity -1 must be positive"))

	require.ErrorIs(t, Conflict("purchase_orders", 1, "OPEN", "OPEN"), ErrAlreadyProcessed)
	require.ErrorIs(t, Conflict("purchase_orders", 1, "CLOSED", "OPEN"), ErrStatusConflict)
}

func TestRecoverableWrapsOnce(t *testing.T) {
	require.NoError(t, Recoverable(nil))

	base := errors.New("deadlock")
	err := Recoverable(base)
	require.ErrorIs(t, err, ErrRecoverable)
	require.ErrorIs(t, err, base)
	require.Equal(t, err, Recoverable(err))
	require.Equal(t, "recoverable: deadlock", err.Error())
}

func TestOptional(t *testing.T) {
	var unset Optional[string]
	note := "keep"
	unset.Apply(&note)
	require.Equal(t, "keep", note)
	require.Equal(t, "fallback", unset.Or("fallback"))

	zero := Some(0)
	qty := 12
	zero.Apply(&qty)
	require.Equal(t, 0, qty)
	require.Equal(t, 0, zero.Or(5))

	Some("x").Apply(nil)
}
