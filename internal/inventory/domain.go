package inventory

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-textile/internal/shared"
)

// Key addresses one stock row.
type Key struct {
	ProductID   int64
	WarehouseID int64
}

// StockLevel is the on-hand and reserved quantity of a product in a warehouse.
// Quantity never drops below zero and ReservedQty never exceeds Quantity.
// OnOrderQty is what confirmed purchase orders still expect to arrive.
type StockLevel struct {
	ProductID   int64           `json:"product_id"`
	WarehouseID int64           `json:"warehouse_id"`
	Quantity    decimal.Decimal `json:"quantity"`
	ReservedQty decimal.Decimal `json:"reserved_qty"`
	OnOrderQty  decimal.Decimal `json:"on_order_qty"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// Available is the unreserved on-hand quantity.
func (l StockLevel) Available() decimal.Decimal {
	avail := l.Quantity.Sub(l.ReservedQty)
	if avail.IsNegative() {
		return decimal.Zero
	}
	return avail
}

// Thresholds are the per product replenishment settings.
type Thresholds struct {
	MinStock     decimal.Decimal `json:"min_stock"`
	ReorderLevel decimal.Decimal `json:"reorder_level"`
	ManualAlert  bool            `json:"manual_alert"`
}

// MovementKind tags a stock journal row.
type MovementKind string

const (
	MovementReceipt          MovementKind = "RECEIPT"
	MovementOnOrder          MovementKind = "ON_ORDER"
	MovementOnOrderCleared   MovementKind = "ON_ORDER_CLEARED"
	MovementReserve          MovementKind = "RESERVE"
	MovementReleaseFulfilled MovementKind = "RELEASE_FULFILLED"
	MovementReleaseCancelled MovementKind = "RELEASE_CANCELLED"
)

// Movement is an append-only record of a quantity or reservation change.
type Movement struct {
	Key
	Kind          MovementKind
	Reference     string
	QtyDelta      decimal.Decimal
	ReservedDelta decimal.Decimal
	OnOrderDelta  decimal.Decimal
	At            time.Time
}

// ReleaseReason says why a reservation ends.
type ReleaseReason string

const (
	ReleaseFulfilled ReleaseReason = "FULFILLED"
	ReleaseCancelled ReleaseReason = "CANCELLED"
)

func (r ReleaseReason) movement() (MovementKind, error) {
	switch r {
	case ReleaseFulfilled:
		return MovementReleaseFulfilled, nil
	case ReleaseCancelled:
		return MovementReleaseCancelled, nil
	}
	return "", ErrInvalidReason
}

var (
	// ErrNonPositiveQty is returned for zero or negative deltas.
	ErrNonPositiveQty = fmt.Errorf("inventory: quantity must be positive: %w", shared.ErrValidation)
	// ErrInvalidReason is returned for an unknown release reason.
	ErrInvalidReason = fmt.Errorf("inventory: unknown release reason: %w", shared.ErrValidation)
)
