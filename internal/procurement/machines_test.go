package procurement

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-textile/internal/shared"
)

func qty(v string) decimal.Decimal { return decimal.RequireFromString(v) }

func openOrder() PurchaseOrder {
	return PurchaseOrder{
		ID: 1, Number: "PO-1", SupplierID: 7, Status: POStatusOpen, PaymentStatus: PaymentUnpaid,
		Items: []POItem{
			{ID: 10, ProductID: 100, WarehouseID: 1, Category: CategoryInventory, Quantity: qty("100"), UnitPrice: qty("20000"), ReceivedQty: decimal.Zero},
			{ID: 11, ProductID: 101, WarehouseID: 1, Category: CategoryExpense, Quantity: qty("2"), UnitPrice: qty("150000.50"), ReceivedQty: decimal.Zero},
		},
	}
}

func TestPRMachine(t *testing.T) {
	pr := PurchaseRequest{Status: PRStatusDraft}
	_, err := PRMachine.Fire(pr, pr.Status, EventSubmitPR)
	var guard *shared.GuardError
	require.ErrorAs(t, err, &guard)
	require.Equal(t, []string{"request has no items"}, guard.Unmet)

	pr.Items = []PRItem{{ID: 1, Quantity: qty("5"), Status: PRItemPending}, {ID: 2, Quantity: qty("0"), Status: PRItemPending}}
	_, err = PRMachine.Fire(pr, pr.Status, EventSubmitPR)
	require.ErrorIs(t, err, shared.ErrGuardViolation)

	pr.Items[1].Quantity = qty("3")
	next, err := PRMachine.Fire(pr, pr.Status, EventSubmitPR)
	require.NoError(t, err)
	require.Equal(t, PRStatusPending, next)

	_, err = PRMachine.Fire(pr, PRStatusPending, EventApprovePR)
	require.ErrorAs(t, err, &guard)
	require.Len(t, guard.Unmet, 3)

	pr.Items[0].Status = PRItemApproved
	pr.Items[1].Status = PRItemRejected
	next, err = PRMachine.Fire(pr, PRStatusPending, EventApprovePR)
	require.NoError(t, err)
	require.Equal(t, PRStatusApproved, next)

	_, err = PRMachine.Fire(pr, PRStatusApproved, EventConvertPR)
	require.ErrorIs(t, err, shared.ErrGuardViolation)
	pr.Items[0].Status = PRItemConverted
	next, err = PRMachine.Fire(pr, PRStatusApproved, EventConvertPR)
	require.NoError(t, err)
	require.Equal(t, PRStatusPOCreated, next)

	require.True(t, PRMachine.Terminal(PRStatusPOCreated))
	require.True(t, PRMachine.Terminal(PRStatusRejected))
	_, err = PRMachine.Fire(pr, PRStatusRejected, EventApprovePR)
	require.ErrorIs(t, err, shared.ErrInvalidTransition)
}

func TestPOMachineConfirmOnlyFromPendingApproval(t *testing.T) {
	po := openOrder()
	_, err := POMachine.Fire(po, POStatusDraft, EventConfirmPO)
	require.ErrorIs(t, err, shared.ErrInvalidTransition)

	next, err := POMachine.Fire(po, POStatusPendingApproval, EventConfirmPO)
	require.NoError(t, err)
	require.Equal(t, POStatusOpen, next)
	require.True(t, POMachine.Reached(POStatusOpen, EventConfirmPO))
	require.False(t, POMachine.Reached(POStatusPendingApproval, EventConfirmPO))

	po.SupplierID = 0
	_, err = POMachine.Fire(po, POStatusDraft, EventSubmitPO)
	var guard *shared.GuardError
	require.ErrorAs(t, err, &guard)
	require.Equal(t, "supplier required", guard.Unmet[0])
}

func TestPOMachineReceiving(t *testing.T) {
	po := openOrder()
	_, err := POMachine.Fire(po, po.Status, EventReceivePartial)
	require.ErrorIs(t, err, shared.ErrGuardViolation)

	po.Items[0].ReceivedQty = qty("40")
	require.Equal(t, EventReceivePartial, ReceiptEvent(po))
	next, err := POMachine.Fire(po, po.Status, ReceiptEvent(po))
	require.NoError(t, err)
	require.Equal(t, POStatusPartial, next)

	_, err = POMachine.Fire(po, POStatusPartial, EventCancelPO)
	require.ErrorIs(t, err, shared.ErrInvalidTransition)
	_, err = POMachine.Fire(po, POStatusOpen, EventCancelPO)
	require.ErrorIs(t, err, shared.ErrGuardViolation)

	po.Items[0].ReceivedQty = qty("100")
	po.Items[1].ReceivedQty = qty("2")
	require.Equal(t, EventReceiveFull, ReceiptEvent(po))
	next, err = POMachine.Fire(po, POStatusPartial, EventReceiveFull)
	require.NoError(t, err)
	require.Equal(t, POStatusReceived, next)

	_, err = POMachine.Fire(po, POStatusReceived, EventCompletePO)
	require.ErrorIs(t, err, shared.ErrGuardViolation)
	po.PaymentStatus = PaymentPaid
	next, err = POMachine.Fire(po, POStatusReceived, EventCompletePO)
	require.NoError(t, err)
	require.Equal(t, POStatusCompleted, next)
	require.True(t, POMachine.Terminal(POStatusCompleted))
}

func TestGRNMachine(t *testing.T) {
	grn := GoodsReceipt{Status: GRNStatusDraft, Items: []GRNItem{
		{ID: 1, OrderedQty: qty("100"), ReceivedQty: qty("120"), AcceptedQty: decimal.Zero, RejectedQty: decimal.Zero},
	}}
	_, err := GRNMachine.Fire(grn, grn.Status, EventInspect)
	require.ErrorIs(t, err, shared.ErrGuardViolation)

	grn.Items[0].ReceivedQty = qty("100")
	next, err := GRNMachine.Fire(grn, grn.Status, EventInspect)
	require.NoError(t, err)
	require.Equal(t, GRNStatusInspecting, next)

	back, err := GRNMachine.Fire(grn, GRNStatusInspecting, EventRework)
	require.NoError(t, err)
	require.Equal(t, GRNStatusDraft, back)

	_, err = GRNMachine.Fire(grn, GRNStatusInspecting, EventAccept)
	require.ErrorIs(t, err, shared.ErrGuardViolation)

	grn.Items[0].Inspected = true
	grn.Items[0].AcceptedQty = qty("95")
	grn.Items[0].RejectedQty = qty("5")
	require.Equal(t, EventAcceptPartial, InspectionEvent(grn))
	_, err = GRNMachine.Fire(grn, GRNStatusInspecting, EventAccept)
	require.ErrorIs(t, err, shared.ErrGuardViolation)
	next, err = GRNMachine.Fire(grn, GRNStatusInspecting, EventAcceptPartial)
	require.NoError(t, err)
	require.Equal(t, GRNStatusPartialAccepted, next)

	_, err = GRNMachine.Fire(grn, GRNStatusPartialAccepted, EventRework)
	require.ErrorIs(t, err, shared.ErrInvalidTransition)
}

func TestOrderAmounts(t *testing.T) {
	po := openOrder()
	require.True(t, po.NetAmount().Equal(qty("2300001")))
	split := po.CategoryAmounts()
	require.True(t, split[CategoryInventory].Equal(qty("2000000")))
	require.True(t, split[CategoryExpense].Equal(qty("300001")))
}
