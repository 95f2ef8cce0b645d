package inventory

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-textile/internal/shared"
)

// Store is the transaction bound persistence used by Engine. Quantity changes
// are additive statements evaluated by the database, never read-modify-write.
type Store interface {
	Level(ctx context.Context, key Key) (StockLevel, error)
	// AddOnHand increases quantity, creating the row when missing.
	AddOnHand(ctx context.Context, key Key, qty decimal.Decimal) error
	// ReserveIfAvailable raises reserved_qty by qty only while it stays within
	// quantity. It reports whether the row was updated.
	ReserveIfAvailable(ctx context.Context, key Key, qty decimal.Decimal) (bool, error)
	// Unreserve lowers reserved_qty by at most qty and returns the amount released.
	Unreserve(ctx context.Context, key Key, qty decimal.Decimal) (decimal.Decimal, error)
	// AddOnOrder shifts on_order_qty by delta, clamped at zero, and returns
	// the applied change.
	AddOnOrder(ctx context.Context, key Key, delta decimal.Decimal) (decimal.Decimal, error)
	RecordMovement(ctx context.Context, m Movement) error
	Thresholds(ctx context.Context, productID int64) (Thresholds, error)
	ProductTotals(ctx context.Context, productID int64) (onHand, reserved decimal.Decimal, err error)
	// TrackedProducts lists products that carry replenishment thresholds.
	TrackedProducts(ctx context.Context) ([]int64, error)
}

// Engine applies stock side effects of document transitions.
type Engine struct {
	logger *slog.Logger
	now    func() time.Time
}

// NewEngine constructs the stock engine.
func NewEngine(logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{logger: logger, now: time.Now}
}

// WithNow overrides the clock for testing.
func (e *Engine) WithNow(now func() time.Time) {
	if now != nil {
		e.now = now
	}
}

// Receive adds accepted goods to on-hand stock. Receipts only ever increase quantity.
func (e *Engine) Receive(ctx context.Context, st Store, key Key, qty decimal.Decimal, reference string) error {
	if qty.IsZero() {
		return nil
	}
	if qty.IsNegative() {
		return fmt.Errorf("receive %s: %w", qty, ErrNonPositiveQty)
	}
	if err := st.AddOnHand(ctx, key, qty); err != nil {
		return fmt.Errorf("inventory: receive: %w", err)
	}
	return st.RecordMovement(ctx, Movement{Key: key, Kind: MovementReceipt, Reference: reference, QtyDelta: qty, At: e.now()})
}

// ExpectIncoming records qty as ordered from a supplier and not yet received.
func (e *Engine) ExpectIncoming(ctx context.Context, st Store, key Key, qty decimal.Decimal, reference string) error {
	if !qty.IsPositive() {
		return fmt.Errorf("expect %s: %w", qty, ErrNonPositiveQty)
	}
	applied, err := st.AddOnOrder(ctx, key, qty)
	if err != nil {
		return fmt.Errorf("inventory: expect incoming: %w", err)
	}
	return st.RecordMovement(ctx, Movement{Key: key, Kind: MovementOnOrder, Reference: reference, OnOrderDelta: applied, At: e.now()})
}

// ClearIncoming lowers the on-order quantity by at most qty, on receipt or
// when the order is cancelled, and returns what was cleared.
func (e *Engine) ClearIncoming(ctx context.Context, st Store, key Key, qty decimal.Decimal, reference string) (decimal.Decimal, error) {
	if !qty.IsPositive() {
		return decimal.Zero, nil
	}
	applied, err := st.AddOnOrder(ctx, key, qty.Neg())
	if err != nil {
		return decimal.Zero, fmt.Errorf("inventory: clear incoming: %w", err)
	}
	if applied.IsZero() {
		return decimal.Zero, nil
	}
	if err := st.RecordMovement(ctx, Movement{Key: key, Kind: MovementOnOrderCleared, Reference: reference, OnOrderDelta: applied, At: e.now()}); err != nil {
		return decimal.Zero, err
	}
	return applied.Neg(), nil
}

// Reserve holds qty for approved demand or fails with ErrInsufficientStock.
func (e *Engine) Reserve(ctx context.Context, st Store, key Key, qty decimal.Decimal, reference string) error {
	if !qty.IsPositive() {
		return fmt.Errorf("reserve %s: %w", qty, ErrNonPositiveQty)
	}
	ok, err := st.ReserveIfAvailable(ctx, key, qty)
	if err != nil {
		return fmt.Errorf("inventory: reserve: %w", err)
	}
	if !ok {
		return &shared.StockError{ProductID: key.ProductID, WarehouseID: key.WarehouseID, Requested: qty}
	}
	return st.RecordMovement(ctx, Movement{Key: key, Kind: MovementReserve, Reference: reference, ReservedDelta: qty, At: e.now()})
}

// Allocate reserves as much of requested as is available and returns the
// reserved amount. The remainder is the shortfall to be purchased.
func (e *Engine) Allocate(ctx context.Context, st Store, key Key, requested decimal.Decimal, reference string) (decimal.Decimal, error) {
	if !requested.IsPositive() {
		return decimal.Zero, nil
	}
	const attempts = 3
	for i := 0; i < attempts; i++ {
		level, err := st.Level(ctx, key)
		if err != nil {
			return decimal.Zero, fmt.Errorf("inventory: allocate: %w", err)
		}
		take := decimal.Min(requested, level.Available())
		if !take.IsPositive() {
			return decimal.Zero, nil
		}
		err = e.Reserve(ctx, st, key, take, reference)
		if err == nil {
			return take, nil
		}
		if !errors.Is(err, shared.ErrInsufficientStock) {
			return decimal.Zero, err
		}
		e.logger.Debug("allocation raced, retrying", slog.Int64("product_id", key.ProductID), slog.Int("attempt", i+1))
	}
	return decimal.Zero, nil
}

// Release ends up to qty of a reservation and returns what was released.
// The reserved quantity never drops below zero.
func (e *Engine) Release(ctx context.Context, st Store, key Key, qty decimal.Decimal, reason ReleaseReason, reference string) (decimal.Decimal, error) {
	kind, err := reason.movement()
	if err != nil {
		return decimal.Zero, err
	}
	if !qty.IsPositive() {
		return decimal.Zero, nil
	}
	released, err := st.Unreserve(ctx, key, qty)
	if err != nil {
		return decimal.Zero, fmt.Errorf("inventory: release: %w", err)
	}
	if !released.IsPositive() {
		return decimal.Zero, nil
	}
	if err := st.RecordMovement(ctx, Movement{Key: key, Kind: kind, Reference: reference, ReservedDelta: released.Neg(), At: e.now()}); err != nil {
		return decimal.Zero, err
	}
	return released, nil
}

// Status classifies a product over all warehouses.
func (e *Engine) Status(ctx context.Context, st Store, productID int64) (ProductStatus, error) {
	th, err := st.Thresholds(ctx, productID)
	if err != nil {
		return ProductStatus{}, err
	}
	onHand, reserved, err := st.ProductTotals(ctx, productID)
	if err != nil {
		return ProductStatus{}, err
	}
	return ProductStatus{
		ProductID:  productID,
		Total:      onHand,
		Reserved:   reserved,
		Thresholds: th,
		Status:     Classify(onHand, th),
	}, nil
}
