package db

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-textile/internal/shared"
)

func TestIsUniqueViolation(t *testing.T) {
	require.True(t, IsUniqueViolation(fmt.Errorf("insert: %w", &pgconn.PgError{Code: "23505"})))
	require.False(t, IsUniqueViolation(&pgconn.PgError{Code: "23503"}))
	require.False(t, IsUniqueViolation(errors.New("plain")))
}

func TestClassifyMarksTransientFailures(t *testing.T) {
	require.NoError(t, Classify(nil))

	for _, code := range []string{"40001", "40P01"} {
		err := Classify(&pgconn.PgError{Code: code})
		require.ErrorIs(t, err, shared.ErrRecoverable, code)
	}

	err := Classify(fmt.Errorf("query: %w", context.DeadlineExceeded))
	require.ErrorIs(t, err, shared.ErrRecoverable)
	require.ErrorIs(t, err, context.DeadlineExceeded)

	constraint := &pgconn.PgError{Code: "23514"}
	require.Same(t, error(constraint), Classify(constraint))

	plain := errors.New("boom")
	require.Equal(t, plain, Classify(plain))
	require.False(t, errors.Is(Classify(plain), shared.ErrRecoverable))
}

type statusRow struct {
	status string
	err    error
}

func (r statusRow) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	*(dest[0].(*string)) = r.status
	return nil
}

type fakeQuerier struct {
	affected int64
	row      statusRow
	execSQL  string
}

func (q *fakeQuerier) Exec(_ context.Context, sql string, _ ...any) (pgconn.CommandTag, error) {
	q.execSQL = sql
	return pgconn.NewCommandTag(fmt.Sprintf("UPDATE %d", q.affected)), nil
}

func (q *fakeQuerier) Query(context.Context, string, ...any) (pgx.Rows, error) {
	return nil, errors.New("not used")
}

func (q *fakeQuerier) QueryRow(context.Context, string, ...any) pgx.Row { return q.row }

func TestCompareAndSetStatus(t *testing.T) {
	ctx := context.Background()

	q := &fakeQuerier{affected: 1}
	require.NoError(t, CompareAndSetStatus(ctx, q, "purchase_orders", 9, "DRAFT", "PENDING_APPROVAL"))
	require.Contains(t, q.execSQL, "UPDATE purchase_orders SET status=$3")

	q = &fakeQuerier{row: statusRow{status: "PENDING_APPROVAL"}}
	err := CompareAndSetStatus(ctx, q, "purchase_orders", 9, "DRAFT", "PENDING_APPROVAL")
	require.ErrorIs(t, err, shared.ErrAlreadyProcessed)

	q = &fakeQuerier{row: statusRow{status: "CANCELLED"}}
	err = CompareAndSetStatus(ctx, q, "purchase_orders", 9, "DRAFT", "PENDING_APPROVAL")
	require.ErrorIs(t, err, shared.ErrStatusConflict)

	q = &fakeQuerier{row: statusRow{err: pgx.ErrNoRows}}
	err = CompareAndSetStatus(ctx, q, "purchase_orders", 9, "DRAFT", "PENDING_APPROVAL")
	require.ErrorIs(t, err, shared.ErrNotFound)
}
