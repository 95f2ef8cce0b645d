package workflow_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-textile/internal/inventory"
	"github.com/odyssey-erp/odyssey-textile/internal/procurement"
	"github.com/odyssey-erp/odyssey-textile/internal/shared"
	"github.com/odyssey-erp/odyssey-textile/internal/testing/memstore"
	"github.com/odyssey-erp/odyssey-textile/internal/workflow"
)

// pendingPO converts an approved request without confirming the order.
func (f *fixture) pendingPO(t *testing.T) procurement.PurchaseOrder {
	t.Helper()
	pr := f.approvedPR(t, yarnLine("50"))
	conv, err := f.svc.ConvertPurchaseRequest(context.Background(), purchasing, pr.ID, workflow.ConvertPRInput{ItemIDs: itemIDs(pr)})
	require.NoError(t, err)
	require.Len(t, conv.Orders, 1)
	return conv.Orders[0]
}

func TestConfirmLosingToCommittedConfirmLeavesNoTrace(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	po := f.pendingPO(t)

	f.db.Interleave("procurement.UpdatePOStatus", func(tx *memstore.Tx) {
		require.NoError(t, tx.Procurement().UpdatePOStatus(ctx, po.ID, procurement.POStatusPendingApproval, procurement.POStatusOpen))
	})
	_, err := f.svc.ConfirmPurchaseOrder(ctx, director, po.ID)
	require.ErrorIs(t, err, shared.ErrAlreadyProcessed)

	require.Empty(t, f.db.Entries())
	for _, m := range f.db.Movements() {
		require.NotEqual(t, inventory.MovementOnOrder, m.Kind)
	}
	require.True(t, f.db.Stock(key(yarn)).OnOrderQty.IsZero())
	view, err := f.svc.GetPurchaseOrder(ctx, po.ID)
	require.NoError(t, err)
	require.Equal(t, procurement.POStatusOpen, view.Status)
	require.Equal(t, 0, f.dispatcher.count(workflow.ModulePurchaseOrder, "confirm"))
	require.Equal(t, 1, f.observer.get("purchase_order/confirm/conflict"))
}

func TestConfirmLosingToCancellationIsConflict(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	po := f.pendingPO(t)

	f.db.Interleave("procurement.UpdatePOStatus", func(tx *memstore.Tx) {
		require.NoError(t, tx.Procurement().UpdatePOStatus(ctx, po.ID, procurement.POStatusPendingApproval, procurement.POStatusCancelled))
	})
	_, err := f.svc.ConfirmPurchaseOrder(ctx, director, po.ID)
	require.ErrorIs(t, err, shared.ErrStatusConflict)
	require.Empty(t, f.db.Entries())

	view, err := f.svc.GetPurchaseOrder(ctx, po.ID)
	require.NoError(t, err)
	require.Equal(t, procurement.POStatusCancelled, view.Status)
}

func TestConversionLosingToConcurrentConversionCreatesNoOrder(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	pr := f.approvedPR(t, yarnLine("50"))
	itemID := pr.Items[0].ID

	f.db.Interleave("procurement.MarkPRItemConverted", func(tx *memstore.Tx) {
		require.NoError(t, tx.Procurement().MarkPRItemConverted(ctx, itemID))
	})
	_, err := f.svc.ConvertPurchaseRequest(ctx, purchasing, pr.ID, workflow.ConvertPRInput{ItemIDs: itemIDs(pr)})
	require.ErrorIs(t, err, shared.ErrAlreadyProcessed)
	require.Empty(t, f.db.PurchaseOrders())

	got, err := f.svc.GetPurchaseRequest(ctx, pr.ID)
	require.NoError(t, err)
	require.Equal(t, procurement.PRItemConverted, got.Items[0].Status)
	require.Equal(t, procurement.PRStatusApproved, got.Status)
}

func TestConvertedItemCannotBeConvertedAgain(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	pr := f.approvedPR(t, yarnLine("50"))
	_, err := f.svc.ConvertPurchaseRequest(ctx, purchasing, pr.ID, workflow.ConvertPRInput{ItemIDs: itemIDs(pr)})
	require.NoError(t, err)

	err = f.db.WithTx(ctx, func(tx *memstore.Tx) error {
		return tx.Procurement().MarkPRItemConverted(ctx, pr.Items[0].ID)
	})
	require.ErrorIs(t, err, shared.ErrAlreadyProcessed)
}

func TestReleaseLosingToConcurrentReleaseUnreservesOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.db.SetStock(key(yarn), d("30"), d("0"))
	pr := f.approvedPR(t, yarnLine("50"))
	itemID := pr.Items[0].ID
	require.True(t, f.db.Stock(key(yarn)).ReservedQty.Equal(d("30")))
	movements := len(f.db.Movements())

	f.db.Interleave("procurement.ReleasePRItemReservation", func(tx *memstore.Tx) {
		claimed, err := tx.Procurement().ReleasePRItemReservation(ctx, itemID, d("30"))
		require.NoError(t, err)
		require.True(t, claimed)
		_, err = tx.Inventory().Unreserve(ctx, key(yarn), d("30"))
		require.NoError(t, err)
	})
	_, err := f.svc.ReleaseReservation(ctx, manager, pr.ID, workflow.ReleaseInput{
		ItemID: itemID, Reason: inventory.ReleaseCancelled,
	})
	require.ErrorIs(t, err, shared.ErrStatusConflict)

	level := f.db.Stock(key(yarn))
	require.True(t, level.ReservedQty.IsZero(), "reserved %s", level.ReservedQty)
	require.True(t, level.Quantity.Equal(d("30")))
	require.Len(t, f.db.Movements(), movements)

	got, err := f.svc.GetPurchaseRequest(ctx, pr.ID)
	require.NoError(t, err)
	require.True(t, got.Items[0].ReservedQty.IsZero())
}
