package inventory_test

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-textile/internal/inventory"
	"github.com/odyssey-erp/odyssey-textile/internal/shared"
	"github.com/odyssey-erp/odyssey-textile/internal/testing/memstore"
)

var benang = inventory.Key{ProductID: 10, WarehouseID: 1}

func q(v string) decimal.Decimal { return decimal.RequireFromString(v) }

func inTx(t *testing.T, db *memstore.DB, fn func(st inventory.Store) error) error {
	t.Helper()
	return db.WithTx(context.Background(), func(tx *memstore.Tx) error { return fn(tx.Inventory()) })
}

func TestReceiveOnlyIncreases(t *testing.T) {
	db := memstore.New()
	engine := inventory.NewEngine(nil)

	require.NoError(t, inTx(t, db, func(st inventory.Store) error {
		return engine.Receive(context.Background(), st, benang, q("40"), "GRN-1")
	}))
	require.True(t, db.Stock(benang).Quantity.Equal(q("40")))

	err := inTx(t, db, func(st inventory.Store) error {
		return engine.Receive(context.Background(), st, benang, q("-1"), "GRN-2")
	})
	require.ErrorIs(t, err, inventory.ErrNonPositiveQty)
	require.True(t, db.Stock(benang).Quantity.Equal(q("40")))
	require.Len(t, db.Movements(), 1)
}

func TestReserveRespectsOnHand(t *testing.T) {
	db := memstore.New()
	db.SetStock(benang, q("10"), q("4"))
	engine := inventory.NewEngine(nil)

	err := inTx(t, db, func(st inventory.Store) error {
		return engine.Reserve(context.Background(), st, benang, q("7"), "PR-1")
	})
	require.ErrorIs(t, err, shared.ErrInsufficientStock)
	var stockErr *shared.StockError
	require.ErrorAs(t, err, &stockErr)
	require.Equal(t, int64(10), stockErr.ProductID)

	require.NoError(t, inTx(t, db, func(st inventory.Store) error {
		return engine.Reserve(context.Background(), st, benang, q("6"), "PR-1")
	}))
	level := db.Stock(benang)
	require.True(t, level.ReservedQty.Equal(q("10")))
	require.True(t, level.Available().IsZero())
}

func TestAllocateReservesWhatIsAvailable(t *testing.T) {
	db := memstore.New()
	db.SetStock(benang, q("25"), q("5"))
	engine := inventory.NewEngine(nil)

	var got decimal.Decimal
	require.NoError(t, inTx(t, db, func(st inventory.Store) error {
		var err error
		got, err = engine.Allocate(context.Background(), st, benang, q("50"), "PR-2")
		return err
	}))
	require.True(t, got.Equal(q("20")))

	require.NoError(t, inTx(t, db, func(st inventory.Store) error {
		var err error
		got, err = engine.Allocate(context.Background(), st, benang, q("5"), "PR-3")
		return err
	}))
	require.True(t, got.IsZero())
	require.True(t, db.Stock(benang).ReservedQty.Equal(q("25")))
}

func TestReleaseNeverGoesNegative(t *testing.T) {
	db := memstore.New()
	db.SetStock(benang, q("10"), q("3"))
	engine := inventory.NewEngine(nil)

	var released decimal.Decimal
	require.NoError(t, inTx(t, db, func(st inventory.Store) error {
		var err error
		released, err = engine.Release(context.Background(), st, benang, q("5"), inventory.ReleaseCancelled, "PR-1")
		return err
	}))
	require.True(t, released.Equal(q("3")))
	require.True(t, db.Stock(benang).ReservedQty.IsZero())

	err := inTx(t, db, func(st inventory.Store) error {
		_, err := engine.Release(context.Background(), st, benang, q("1"), inventory.ReleaseReason("LOST"), "PR-1")
		return err
	})
	require.ErrorIs(t, err, inventory.ErrInvalidReason)
}

func TestStatusAggregatesWarehouses(t *testing.T) {
	db := memstore.New()
	db.SetThresholds(10, inventory.Thresholds{MinStock: q("50"), ReorderLevel: q("100")})
	db.SetStock(benang, q("30"), q("0"))
	db.SetStock(inventory.Key{ProductID: 10, WarehouseID: 2}, q("40"), q("10"))
	engine := inventory.NewEngine(nil)

	var status inventory.ProductStatus
	require.NoError(t, inTx(t, db, func(st inventory.Store) error {
		var err error
		status, err = engine.Status(context.Background(), st, 10)
		return err
	}))
	require.True(t, status.Total.Equal(q("70")))
	require.Equal(t, inventory.StatusLowStock, status.Status)

	err := inTx(t, db, func(st inventory.Store) error {
		_, err := engine.Status(context.Background(), st, 99)
		return err
	})
	require.ErrorIs(t, err, shared.ErrNotFound)
}

func TestFailedTransactionRollsBackStock(t *testing.T) {
	db := memstore.New()
	db.SetStock(benang, q("10"), q("0"))
	engine := inventory.NewEngine(nil)

	err := inTx(t, db, func(st inventory.Store) error {
		if err := engine.Reserve(context.Background(), st, benang, q("4"), "PR-1"); err != nil {
			return err
		}
		return engine.Reserve(context.Background(), st, benang, q("7"), "PR-1")
	})
	require.ErrorIs(t, err, shared.ErrInsufficientStock)
	require.True(t, db.Stock(benang).ReservedQty.IsZero())
}

func TestIncomingIsClampedAtZero(t *testing.T) {
	db := memstore.New()
	engine := inventory.NewEngine(nil)

	require.NoError(t, inTx(t, db, func(st inventory.Store) error {
		return engine.ExpectIncoming(context.Background(), st, benang, q("50"), "PO-1")
	}))
	require.True(t, db.Stock(benang).OnOrderQty.Equal(q("50")))
	require.True(t, db.Stock(benang).Quantity.IsZero())

	var cleared decimal.Decimal
	require.NoError(t, inTx(t, db, func(st inventory.Store) error {
		var err error
		cleared, err = engine.ClearIncoming(context.Background(), st, benang, q("60"), "PO-1")
		return err
	}))
	require.True(t, cleared.Equal(q("50")))
	require.True(t, db.Stock(benang).OnOrderQty.IsZero())

	err := inTx(t, db, func(st inventory.Store) error {
		return engine.ExpectIncoming(context.Background(), st, benang, q("0"), "PO-2")
	})
	require.ErrorIs(t, err, shared.ErrValidation)

	moves := db.Movements()
	require.Len(t, moves, 2)
	require.Equal(t, inventory.MovementOnOrder, moves[0].Kind)
	require.Equal(t, inventory.MovementOnOrderCleared, moves[1].Kind)
	require.True(t, moves[1].OnOrderDelta.Equal(q("-50")))
}
