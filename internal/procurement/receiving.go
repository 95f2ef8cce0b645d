package procurement

import (
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-textile/internal/shared"
)

// ReceiptLine is the quantity delivered for one PO line.
type ReceiptLine struct {
	POItemID    int64           `json:"po_item_id" validate:"required"`
	ReceivedQty decimal.Decimal `json:"received_qty"`
}

// InspectionResult is the outcome of checking one GRN line.
type InspectionResult struct {
	GRNItemID   int64           `json:"grn_item_id" validate:"required"`
	AcceptedQty decimal.Decimal `json:"accepted_qty"`
	RejectedQty decimal.Decimal `json:"rejected_qty"`
}

// NewGoodsReceipt drafts a receipt against an open order. The ordered
// quantity of each line is what the order still expects.
func NewGoodsReceipt(po PurchaseOrder, number string, lines []ReceiptLine) (GoodsReceipt, error) {
	if po.Status != POStatusOpen && po.Status != POStatusPartial {
		return GoodsReceipt{}, &shared.TransitionError{Entity: "purchase order", From: string(po.Status), Event: "receive"}
	}
	if len(lines) == 0 {
		return GoodsReceipt{}, shared.Validation("receipt needs at least one line")
	}
	grn := GoodsReceipt{Number: number, POID: po.ID, Status: GRNStatusDraft}
	seen := make(map[int64]bool, len(lines))
	for _, l := range lines {
		if seen[l.POItemID] {
			return GoodsReceipt{}, shared.Validation("order line %d listed twice", l.POItemID)
		}
		seen[l.POItemID] = true
		item, ok := po.Item(l.POItemID)
		if !ok {
			return GoodsReceipt{}, shared.Validation("order line %d does not belong to %s", l.POItemID, po.Number)
		}
		if l.ReceivedQty.IsNegative() {
			return GoodsReceipt{}, shared.Validation("order line %d received quantity is negative", l.POItemID)
		}
		if l.ReceivedQty.GreaterThan(item.Remaining()) {
			return GoodsReceipt{}, shared.Validation("order line %d received %s exceeds remaining %s", l.POItemID, l.ReceivedQty, item.Remaining())
		}
		if grn.WarehouseID == 0 {
			grn.WarehouseID = item.WarehouseID
		}
		grn.Items = append(grn.Items, GRNItem{
			POItemID:    item.ID,
			ProductID:   item.ProductID,
			UnitPrice:   item.UnitPrice,
			OrderedQty:  item.Remaining(),
			ReceivedQty: l.ReceivedQty,
			AcceptedQty: decimal.Zero,
			RejectedQty: decimal.Zero,
		})
	}
	return grn, nil
}

// ApplyReceived corrects received quantities while the receipt is a draft.
// Inspection results are cleared because they no longer describe the goods.
func ApplyReceived(grn *GoodsReceipt, lines []ReceiptLine) error {
	if grn.Status != GRNStatusDraft {
		return &shared.TransitionError{Entity: "goods receipt", From: string(grn.Status), Event: "update_received"}
	}
	index := make(map[int64]int, len(grn.Items))
	for i, it := range grn.Items {
		index[it.POItemID] = i
	}
	for _, l := range lines {
		i, ok := index[l.POItemID]
		if !ok {
			return shared.Validation("order line %d is not on receipt %s", l.POItemID, grn.Number)
		}
		item := &grn.Items[i]
		if l.ReceivedQty.IsNegative() || l.ReceivedQty.GreaterThan(item.OrderedQty) {
			return shared.Validation("line %d received %s must be between 0 and ordered %s", item.ID, l.ReceivedQty, item.OrderedQty)
		}
		item.ReceivedQty = l.ReceivedQty
		item.AcceptedQty = decimal.Zero
		item.RejectedQty = decimal.Zero
		item.Inspected = false
	}
	return nil
}

// ApplyInspection records accepted and rejected quantities during inspection.
func ApplyInspection(grn *GoodsReceipt, results []InspectionResult) error {
	if grn.Status != GRNStatusInspecting {
		return &shared.TransitionError{Entity: "goods receipt", From: string(grn.Status), Event: "inspect_line"}
	}
	index := make(map[int64]int, len(grn.Items))
	for i, it := range grn.Items {
		index[it.ID] = i
	}
	for _, r := range results {
		i, ok := index[r.GRNItemID]
		if !ok {
			return shared.Validation("line %d is not on receipt %s", r.GRNItemID, grn.Number)
		}
		item := &grn.Items[i]
		if r.AcceptedQty.IsNegative() || r.RejectedQty.IsNegative() {
			return shared.Validation("line %d quantities must not be negative", item.ID)
		}
		if r.AcceptedQty.Add(r.RejectedQty).GreaterThan(item.ReceivedQty) {
			return shared.Validation("line %d accepted plus rejected exceeds received %s", item.ID, item.ReceivedQty)
		}
		item.AcceptedQty = r.AcceptedQty
		item.RejectedQty = r.RejectedQty
		item.Inspected = true
	}
	return nil
}
