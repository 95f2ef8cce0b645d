package memstore

import (
	"context"
	"fmt"
	"maps"
	"slices"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-textile/internal/inventory"
	"github.com/odyssey-erp/odyssey-textile/internal/shared"
)

type inventoryStore struct {
	db *DB
}

var _ inventory.Store = inventoryStore{}

func (s inventoryStore) level(key inventory.Key) inventory.StockLevel {
	level, ok := s.db.st.stock[key]
	if !ok {
		return inventory.StockLevel{ProductID: key.ProductID, WarehouseID: key.WarehouseID, Quantity: decimal.Zero, ReservedQty: decimal.Zero, OnOrderQty: decimal.Zero}
	}
	return level
}

func (s inventoryStore) Level(ctx context.Context, key inventory.Key) (inventory.StockLevel, error) {
	return s.level(key), nil
}

func (s inventoryStore) AddOnHand(ctx context.Context, key inventory.Key, qty decimal.Decimal) error {
	if err := s.db.fail("inventory.AddOnHand"); err != nil {
		return err
	}
	level := s.level(key)
	level.Quantity = level.Quantity.Add(qty)
	level.UpdatedAt = s.db.now()
	s.db.st.stock[key] = level
	return nil
}

func (s inventoryStore) ReserveIfAvailable(ctx context.Context, key inventory.Key, qty decimal.Decimal) (bool, error) {
	level, ok := s.db.st.stock[key]
	if !ok || level.ReservedQty.Add(qty).GreaterThan(level.Quantity) {
		return false, nil
	}
	level.ReservedQty = level.ReservedQty.Add(qty)
	level.UpdatedAt = s.db.now()
	s.db.st.stock[key] = level
	return true, nil
}

func (s inventoryStore) Unreserve(ctx context.Context, key inventory.Key, qty decimal.Decimal) (decimal.Decimal, error) {
	level, ok := s.db.st.stock[key]
	if !ok {
		return decimal.Zero, nil
	}
	released := decimal.Min(qty, level.ReservedQty)
	level.ReservedQty = level.ReservedQty.Sub(released)
	level.UpdatedAt = s.db.now()
	s.db.st.stock[key] = level
	return released, nil
}

func (s inventoryStore) AddOnOrder(ctx context.Context, key inventory.Key, delta decimal.Decimal) (decimal.Decimal, error) {
	level := s.level(key)
	next := decimal.Max(level.OnOrderQty.Add(delta), decimal.Zero)
	applied := next.Sub(level.OnOrderQty)
	level.OnOrderQty = next
	level.UpdatedAt = s.db.now()
	s.db.st.stock[key] = level
	return applied, nil
}

func (s inventoryStore) RecordMovement(ctx context.Context, m inventory.Movement) error {
	s.db.st.movements = append(s.db.st.movements, m)
	return nil
}

func (s inventoryStore) Thresholds(ctx context.Context, productID int64) (inventory.Thresholds, error) {
	th, ok := s.db.st.thresholds[productID]
	if !ok {
		return inventory.Thresholds{}, fmt.Errorf("product %d: %w", productID, shared.ErrNotFound)
	}
	return th, nil
}

func (s inventoryStore) ProductTotals(ctx context.Context, productID int64) (decimal.Decimal, decimal.Decimal, error) {
	onHand, reserved := decimal.Zero, decimal.Zero
	for key, level := range s.db.st.stock {
		if key.ProductID == productID {
			onHand = onHand.Add(level.Quantity)
			reserved = reserved.Add(level.ReservedQty)
		}
	}
	return onHand, reserved, nil
}

func (s inventoryStore) TrackedProducts(ctx context.Context) ([]int64, error) {
	return slices.Sorted(maps.Keys(s.db.st.thresholds)), nil
}
