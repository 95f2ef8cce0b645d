package inventory

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-textile/internal/platform/db"
	"github.com/odyssey-erp/odyssey-textile/internal/shared"
)

// Repository persists stock levels in PostgreSQL.
type Repository struct {
	db db.Querier
}

// NewRepository binds the repository to a pool or transaction.
func NewRepository(q db.Querier) *Repository {
	return &Repository{db: q}
}

var _ Store = (*Repository)(nil)

// Level returns the stock row, or a zero level when none exists yet.
func (r *Repository) Level(ctx context.Context, key Key) (StockLevel, error) {
	level := StockLevel{ProductID: key.ProductID, WarehouseID: key.WarehouseID}
	err := r.db.QueryRow(ctx, `SELECT quantity, reserved_qty, on_order_qty, updated_at FROM stock_levels
WHERE product_id=$1 AND warehouse_id=$2`, key.ProductID, key.WarehouseID).
		Scan(&level.Quantity, &level.ReservedQty, &level.OnOrderQty, &level.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return level, nil
	}
	return level, err
}

// AddOnHand increases quantity in a single additive statement.
func (r *Repository) AddOnHand(ctx context.Context, key Key, qty decimal.Decimal) error {
	_, err := r.db.Exec(ctx, `INSERT INTO stock_levels (product_id, warehouse_id, quantity, reserved_qty, updated_at)
VALUES ($1, $2, $3, 0, NOW())
ON CONFLICT (product_id, warehouse_id) DO UPDATE SET quantity = stock_levels.quantity + EXCLUDED.quantity, updated_at = NOW()`,
		key.ProductID, key.WarehouseID, qty)
	return err
}

// ReserveIfAvailable raises reserved_qty when the result stays within quantity.
func (r *Repository) ReserveIfAvailable(ctx context.Context, key Key, qty decimal.Decimal) (bool, error) {
	tag, err := r.db.Exec(ctx, `UPDATE stock_levels SET reserved_qty = reserved_qty + $3, updated_at = NOW()
WHERE product_id=$1 AND warehouse_id=$2 AND reserved_qty + $3 <= quantity`, key.ProductID, key.WarehouseID, qty)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// Unreserve lowers reserved_qty, clamped at zero, and returns the released amount.
func (r *Repository) Unreserve(ctx context.Context, key Key, qty decimal.Decimal) (decimal.Decimal, error) {
	var released decimal.Decimal
	err := r.db.QueryRow(ctx, `WITH prev AS (
	SELECT reserved_qty FROM stock_levels WHERE product_id=$1 AND warehouse_id=$2 FOR UPDATE
)
UPDATE stock_levels s SET reserved_qty = GREATEST(s.reserved_qty - $3, 0), updated_at = NOW()
FROM prev
WHERE s.product_id=$1 AND s.warehouse_id=$2
RETURNING prev.reserved_qty - s.reserved_qty`, key.ProductID, key.WarehouseID, qty).Scan(&released)
	if errors.Is(err, pgx.ErrNoRows) {
		return decimal.Zero, nil
	}
	return released, err
}

// AddOnOrder shifts on_order_qty, clamped at zero, creating the row when missing.
func (r *Repository) AddOnOrder(ctx context.Context, key Key, delta decimal.Decimal) (decimal.Decimal, error) {
	var applied decimal.Decimal
	err := r.db.QueryRow(ctx, `WITH prev AS (
	SELECT COALESCE((SELECT on_order_qty FROM stock_levels WHERE product_id=$1 AND warehouse_id=$2 FOR UPDATE), 0) AS on_order_qty
)
INSERT INTO stock_levels (product_id, warehouse_id, quantity, reserved_qty, on_order_qty, updated_at)
VALUES ($1, $2, 0, 0, GREATEST($3, 0), NOW())
ON CONFLICT (product_id, warehouse_id) DO UPDATE SET on_order_qty = GREATEST(stock_levels.on_order_qty + $3, 0), updated_at = NOW()
RETURNING on_order_qty - (SELECT on_order_qty FROM prev)`, key.ProductID, key.WarehouseID, delta).Scan(&applied)
	return applied, err
}

// RecordMovement appends to the stock journal.
func (r *Repository) RecordMovement(ctx context.Context, m Movement) error {
	_, err := r.db.Exec(ctx, `INSERT INTO stock_movements (product_id, warehouse_id, kind, reference, qty_delta, reserved_delta, on_order_delta, occurred_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`, m.ProductID, m.WarehouseID, string(m.Kind), m.Reference, m.QtyDelta, m.ReservedDelta, m.OnOrderDelta, m.At)
	return err
}

// Thresholds reads the product replenishment settings.
func (r *Repository) Thresholds(ctx context.Context, productID int64) (Thresholds, error) {
	var th Thresholds
	err := r.db.QueryRow(ctx, `SELECT min_stock, reorder_level, manual_alert FROM products WHERE id=$1`, productID).
		Scan(&th.MinStock, &th.ReorderLevel, &th.ManualAlert)
	if errors.Is(err, pgx.ErrNoRows) {
		return Thresholds{}, fmt.Errorf("product %d: %w", productID, shared.ErrNotFound)
	}
	return th, err
}

// ProductTotals sums stock over every warehouse.
func (r *Repository) ProductTotals(ctx context.Context, productID int64) (decimal.Decimal, decimal.Decimal, error) {
	var onHand, reserved decimal.Decimal
	err := r.db.QueryRow(ctx, `SELECT COALESCE(SUM(quantity), 0), COALESCE(SUM(reserved_qty), 0)
FROM stock_levels WHERE product_id=$1`, productID).Scan(&onHand, &reserved)
	return onHand, reserved, err
}

// TrackedProducts lists products with a threshold or manual alert configured.
func (r *Repository) TrackedProducts(ctx context.Context) ([]int64, error) {
	rows, err := r.db.Query(ctx, `SELECT id FROM products
WHERE min_stock > 0 OR reorder_level > 0 OR manual_alert ORDER BY id`)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowTo[int64])
}
