package shared

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

var (
	// ErrNotFound indicates resource not found.
	ErrNotFound = errors.New("not found")
	// ErrValidation indicates the caller supplied an unusable payload.
	ErrValidation = errors.New("validation failed")
	// ErrInvalidTransition is returned when a document has no edge for the requested event.
	ErrInvalidTransition = errors.New("invalid transition")
	// ErrGuardViolation is returned when the edge exists but its preconditions are unmet.
	ErrGuardViolation = errors.New("guard violation")
	// ErrUnauthorized is returned when the actor may not perform the action.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrAlreadyProcessed is returned to the loser of a race that the winner already applied.
	ErrAlreadyProcessed = errors.New("already processed")
	// ErrStatusConflict is returned when the document moved to an unexpected status concurrently.
	ErrStatusConflict = errors.New("status conflict")
	// ErrLedgerImbalance signals a journal whose debits and credits differ. Always fatal.
	ErrLedgerImbalance = errors.New("ledger imbalance")
	// ErrInsufficientStock is returned when a reservation exceeds on-hand quantity.
	ErrInsufficientStock = errors.New("insufficient stock")
	// ErrRecoverable marks transient store failures; the unit of work was rolled back.
	ErrRecoverable = errors.New("recoverable failure")
)

// GuardError lists every precondition that blocked a transition.
type GuardError struct {
	Entity string
	Event  string
	Unmet  []string
}

func (e *GuardError) Error() string {
	return fmt.Sprintf("%s %s: guard violation: %s", e.Entity, e.Event, strings.Join(e.Unmet, "; "))
}

// Is matches ErrGuardViolation.
func (e *GuardError) Is(target error) bool { return target == ErrGuardViolation }

// TransitionError reports an event that has no edge from the current status.
type TransitionError struct {
	Entity string
	From   string
	Event  string
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("%s: no transition %q from %s", e.Entity, e.Event, e.From)
}

// Is matches ErrInvalidTransition.
func (e *TransitionError) Is(target error) bool { return target == ErrInvalidTransition }

// ImbalanceError carries the totals of a rejected journal.
type ImbalanceError struct {
	Reference string
	Kind      string
	Debit     decimal.Decimal
	Credit    decimal.Decimal
}

func (e *ImbalanceError) Error() string {
	return fmt.Sprintf("ledger imbalance on %s/%s: debit %s credit %s", e.Reference, e.Kind, e.Debit.StringFixed(2), e.Credit.StringFixed(2))
}

// Is matches ErrLedgerImbalance.
func (e *ImbalanceError) Is(target error) bool { return target == ErrLedgerImbalance }

// StockError describes a failed stock guard.
type StockError struct {
	ProductID   int64
	WarehouseID int64
	Requested   decimal.Decimal
}

func (e *StockError) Error() string {
	return fmt.Sprintf("insufficient stock for product %d in warehouse %d: requested %s", e.ProductID, e.WarehouseID, e.Requested.String())
}

// Is matches ErrInsufficientStock.
func (e *StockError) Is(target error) bool { return target == ErrInsufficientStock }

type recoverableError struct {
	err error
}

func (e recoverableError) Error() string { return "recoverable: " + e.err.Error() }
func (e recoverableError) Unwrap() error { return e.err }
func (e recoverableError) Is(target error) bool {
	return target == ErrRecoverable
}

// Recoverable wraps err so that errors.Is(err, ErrRecoverable) holds.
func Recoverable(err error) error {
	if err == nil || errors.Is(err, ErrRecoverable) {
		return err
	}
	return recoverableError{err: err}
}

// Validation wraps ErrValidation with a message.
func Validation(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

// Conflict reports a lost optimistic-concurrency race. When the document already
// sits in want the winner applied the same change and ErrAlreadyProcessed is used.
func Conflict(entity string, id int64, current, want string) error {
	if current == want {
		return fmt.Errorf("%s %d already %s: %w", entity, id, want, ErrAlreadyProcessed)
	}
	return fmt.Errorf("%s %d is %s, expected transition to %s: %w", entity, id, current, want, ErrStatusConflict)
}
