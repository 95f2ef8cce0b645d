package procurement

import (
	"fmt"

	"github.com/odyssey-erp/odyssey-textile/internal/fsm"
)

// Purchase request events.
const (
	EventSubmitPR  fsm.Event = "submit"
	EventApprovePR fsm.Event = "approve"
	EventRejectPR  fsm.Event = "reject"
	EventConvertPR fsm.Event = "convert"
)

// Purchase order events.
const (
	EventSubmitPO       fsm.Event = "submit"
	EventConfirmPO      fsm.Event = "confirm"
	EventReceivePartial fsm.Event = "receive_partial"
	EventReceiveFull    fsm.Event = "receive_full"
	EventCompletePO     fsm.Event = "complete"
	EventCancelPO       fsm.Event = "cancel"
)

// Goods receipt events.
const (
	EventInspect       fsm.Event = "inspect"
	EventRework        fsm.Event = "rework"
	EventAccept        fsm.Event = "accept"
	EventAcceptPartial fsm.Event = "accept_partial"
)

// PRMachine drives purchase request headers.
var PRMachine = fsm.MustBuild(fsm.Definition[PRStatus, PurchaseRequest]{
	Entity:   "purchase request",
	Order:    []PRStatus{PRStatusDraft, PRStatusPending, PRStatusApproved, PRStatusPOCreated, PRStatusRejected},
	Terminal: []PRStatus{PRStatusPOCreated, PRStatusRejected},
	Edges: []fsm.Edge[PRStatus, PurchaseRequest]{
		{From: []PRStatus{PRStatusDraft}, Event: EventSubmitPR, To: PRStatusPending, Guard: prSubmittable},
		{From: []PRStatus{PRStatusPending}, Event: EventApprovePR, To: PRStatusApproved, Guard: prDecided},
		{From: []PRStatus{PRStatusPending}, Event: EventRejectPR, To: PRStatusRejected},
		{From: []PRStatus{PRStatusApproved}, Event: EventConvertPR, To: PRStatusPOCreated, Guard: prFullyConverted},
	},
})

// POMachine drives purchase orders.
var POMachine = fsm.MustBuild(fsm.Definition[POStatus, PurchaseOrder]{
	Entity: "purchase order",
	Order: []POStatus{
		POStatusDraft, POStatusPendingApproval, POStatusOpen, POStatusPartial,
		POStatusReceived, POStatusCompleted, POStatusCancelled,
	},
	Terminal: []POStatus{POStatusCompleted, POStatusCancelled},
	Edges: []fsm.Edge[POStatus, PurchaseOrder]{
		{From: []POStatus{POStatusDraft}, Event: EventSubmitPO, To: POStatusPendingApproval, Guard: poSubmittable},
		{From: []POStatus{POStatusPendingApproval}, Event: EventConfirmPO, To: POStatusOpen, Guard: poConfirmable},
		{From: []POStatus{POStatusOpen, POStatusPartial}, Event: EventReceivePartial, To: POStatusPartial, Guard: poPartlyReceived},
		{From: []POStatus{POStatusOpen, POStatusPartial}, Event: EventReceiveFull, To: POStatusReceived, Guard: poFullyReceived},
		{From: []POStatus{POStatusReceived}, Event: EventCompletePO, To: POStatusCompleted, Guard: poPaid},
		{From: []POStatus{POStatusDraft, POStatusPendingApproval, POStatusOpen}, Event: EventCancelPO, To: POStatusCancelled, Guard: poNothingReceived},
	},
})

// GRNMachine drives goods receipts. Inspection may be sent back to DRAFT once
// to correct received quantities.
var GRNMachine = fsm.MustBuild(fsm.Definition[GRNStatus, GoodsReceipt]{
	Entity:      "goods receipt",
	Order:       []GRNStatus{GRNStatusDraft, GRNStatusInspecting, GRNStatusPartialAccepted, GRNStatusAccepted},
	Terminal:    []GRNStatus{GRNStatusPartialAccepted, GRNStatusAccepted},
	AllowRework: true,
	Edges: []fsm.Edge[GRNStatus, GoodsReceipt]{
		{From: []GRNStatus{GRNStatusDraft}, Event: EventInspect, To: GRNStatusInspecting, Guard: grnInspectable},
		{From: []GRNStatus{GRNStatusInspecting}, Event: EventRework, To: GRNStatusDraft, Rework: true},
		{From: []GRNStatus{GRNStatusInspecting}, Event: EventAccept, To: GRNStatusAccepted, Guard: grnFullyAccepted},
		{From: []GRNStatus{GRNStatusInspecting}, Event: EventAcceptPartial, To: GRNStatusPartialAccepted, Guard: grnPartlyAccepted},
	},
})

func prSubmittable(pr PurchaseRequest) []string {
	var unmet []string
	if len(pr.Items) == 0 {
		unmet = append(unmet, "request has no items")
	}
	for _, it := range pr.Items {
		if !it.Quantity.IsPositive() {
			unmet = append(unmet, fmt.Sprintf("item %d quantity must be positive", it.ID))
		}
	}
	return unmet
}

func prDecided(pr PurchaseRequest) []string {
	var unmet []string
	approved := 0
	for _, it := range pr.Items {
		switch it.Status {
		case PRItemPending:
			unmet = append(unmet, fmt.Sprintf("item %d has no decision", it.ID))
		case PRItemApproved:
			approved++
		}
	}
	if approved == 0 {
		unmet = append(unmet, "no item approved")
	}
	return unmet
}

func prFullyConverted(pr PurchaseRequest) []string {
	var unmet []string
	for _, it := range pr.Items {
		if it.Status == PRItemApproved {
			unmet = append(unmet, fmt.Sprintf("item %d not converted", it.ID))
		}
	}
	return unmet
}

func orderBasics(po PurchaseOrder) []string {
	var unmet []string
	if len(po.Items) == 0 {
		unmet = append(unmet, "order has no items")
	}
	for _, it := range po.Items {
		if !it.Quantity.IsPositive() {
			unmet = append(unmet, fmt.Sprintf("product %d quantity must be positive", it.ProductID))
		}
		if it.UnitPrice.IsNegative() {
			unmet = append(unmet, fmt.Sprintf("product %d unit price is negative", it.ProductID))
		}
	}
	if !po.NetAmount().IsPositive() {
		unmet = append(unmet, "order total must be positive")
	}
	return unmet
}

func poSubmittable(po PurchaseOrder) []string {
	unmet := orderBasics(po)
	if po.SupplierID == 0 {
		unmet = append([]string{"supplier required"}, unmet...)
	}
	return unmet
}

func poConfirmable(po PurchaseOrder) []string {
	return poSubmittable(po)
}

func poPartlyReceived(po PurchaseOrder) []string {
	some, all := po.ReceivedTotals()
	var unmet []string
	if !some {
		unmet = append(unmet, "nothing received")
	}
	if all {
		unmet = append(unmet, "every line fully received")
	}
	return unmet
}

func poFullyReceived(po PurchaseOrder) []string {
	var unmet []string
	for _, it := range po.Items {
		if it.ReceivedQty.LessThan(it.Quantity) {
			unmet = append(unmet, fmt.Sprintf("product %d received %s of %s", it.ProductID, it.ReceivedQty, it.Quantity))
		}
	}
	if len(po.Items) == 0 {
		unmet = append(unmet, "order has no items")
	}
	return unmet
}

func poPaid(po PurchaseOrder) []string {
	if po.PaymentStatus != PaymentPaid {
		return []string{fmt.Sprintf("payment status is %s", po.PaymentStatus)}
	}
	return nil
}

func poNothingReceived(po PurchaseOrder) []string {
	if some, _ := po.ReceivedTotals(); some {
		return []string{"goods already received"}
	}
	return nil
}

func grnInspectable(g GoodsReceipt) []string {
	var unmet []string
	if len(g.Items) == 0 {
		unmet = append(unmet, "receipt has no lines")
	}
	received := false
	for _, it := range g.Items {
		if it.ReceivedQty.IsNegative() {
			unmet = append(unmet, fmt.Sprintf("line %d received quantity is negative", it.ID))
		}
		if it.ReceivedQty.GreaterThan(it.OrderedQty) {
			unmet = append(unmet, fmt.Sprintf("line %d received %s exceeds ordered %s", it.ID, it.ReceivedQty, it.OrderedQty))
		}
		if it.ReceivedQty.IsPositive() {
			received = true
		}
	}
	if len(g.Items) > 0 && !received {
		unmet = append(unmet, "nothing received")
	}
	return unmet
}

func inspectionComplete(g GoodsReceipt) []string {
	var unmet []string
	for _, it := range g.Items {
		if !it.Inspected {
			unmet = append(unmet, fmt.Sprintf("line %d not inspected", it.ID))
			continue
		}
		if !it.AcceptedQty.Add(it.RejectedQty).Equal(it.ReceivedQty) {
			unmet = append(unmet, fmt.Sprintf("line %d accepted plus rejected must equal received %s", it.ID, it.ReceivedQty))
		}
	}
	return unmet
}

func grnFullyAccepted(g GoodsReceipt) []string {
	unmet := inspectionComplete(g)
	if _, rejected := g.Totals(); rejected.IsPositive() {
		unmet = append(unmet, "lines have rejections")
	}
	return unmet
}

func grnPartlyAccepted(g GoodsReceipt) []string {
	unmet := inspectionComplete(g)
	accepted, rejected := g.Totals()
	if !rejected.IsPositive() {
		unmet = append(unmet, "nothing rejected")
	}
	if !accepted.IsPositive() {
		unmet = append(unmet, "nothing accepted")
	}
	return unmet
}

// ReceiptEvent picks the PO event implied by its received quantities.
func ReceiptEvent(po PurchaseOrder) fsm.Event {
	if _, all := po.ReceivedTotals(); all {
		return EventReceiveFull
	}
	return EventReceivePartial
}

// InspectionEvent picks the GRN closing event implied by the inspection.
func InspectionEvent(g GoodsReceipt) fsm.Event {
	if _, rejected := g.Totals(); rejected.IsPositive() {
		return EventAcceptPartial
	}
	return EventAccept
}
