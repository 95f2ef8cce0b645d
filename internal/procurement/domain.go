package procurement

import (
	"time"

	"github.com/shopspring/decimal"
)

// PRStatus is the purchase request lifecycle status.
type PRStatus string

const (
	PRStatusDraft     PRStatus = "DRAFT"
	PRStatusPending   PRStatus = "PENDING"
	PRStatusApproved  PRStatus = "APPROVED"
	PRStatusPOCreated PRStatus = "PO_CREATED"
	PRStatusRejected  PRStatus = "REJECTED"
)

// PRItemStatus tracks each requested line independently of its header.
type PRItemStatus string

const (
	PRItemPending   PRItemStatus = "PENDING"
	PRItemApproved  PRItemStatus = "APPROVED"
	PRItemRejected  PRItemStatus = "REJECTED"
	PRItemConverted PRItemStatus = "CONVERTED"
)

// ItemCategory decides which bucket a purchase is debited to.
type ItemCategory string

const (
	CategoryInventory ItemCategory = "INVENTORY"
	CategoryExpense   ItemCategory = "EXPENSE"
)

// PurchaseRequest is owned by the requesting department.
type PurchaseRequest struct {
	ID          int64     `json:"id"`
	Number      string    `json:"number"`
	Department  string    `json:"department"`
	RequesterID int64     `json:"requester_id"`
	Status      PRStatus  `json:"status"`
	Note        string    `json:"note"`
	CreatedAt   time.Time `json:"created_at"`
	Items       []PRItem  `json:"items"`
}

// Item returns the line with id.
func (pr PurchaseRequest) Item(id int64) (PRItem, bool) {
	for _, it := range pr.Items {
		if it.ID == id {
			return it, true
		}
	}
	return PRItem{}, false
}

// PRItem is a requested line. Its status moves on its own so a request can
// be partially approved and converted in several batches.
type PRItem struct {
	ID                  int64           `json:"id"`
	PRID                int64           `json:"pr_id"`
	ProductID           int64           `json:"product_id"`
	WarehouseID         int64           `json:"warehouse_id"`
	Category            ItemCategory    `json:"category"`
	Quantity            decimal.Decimal `json:"quantity"`
	EstimatedUnitPrice  decimal.Decimal `json:"estimated_unit_price"`
	PreferredSupplierID int64           `json:"preferred_supplier_id"`
	ReservedQty         decimal.Decimal `json:"reserved_qty"`
	Status              PRItemStatus    `json:"status"`
	Note                string          `json:"note"`
}

// Shortfall is the quantity not covered by reserved stock.
func (it PRItem) Shortfall() decimal.Decimal {
	s := it.Quantity.Sub(it.ReservedQty)
	if s.IsNegative() {
		return decimal.Zero
	}
	return s
}

// POStatus is the purchase order lifecycle status.
type POStatus string

const (
	POStatusDraft           POStatus = "DRAFT"
	POStatusPendingApproval POStatus = "PENDING_APPROVAL"
	POStatusOpen            POStatus = "OPEN"
	POStatusPartial         POStatus = "PARTIAL"
	POStatusReceived        POStatus = "RECEIVED"
	POStatusCompleted       POStatus = "COMPLETED"
	POStatusCancelled       POStatus = "CANCELLED"
)

// PaymentStatus summarises supplier payments against a PO.
type PaymentStatus string

const (
	PaymentUnpaid  PaymentStatus = "UNPAID"
	PaymentPartial PaymentStatus = "PARTIAL"
	PaymentPaid    PaymentStatus = "PAID"
)

// PurchaseOrder is owned by procurement.
type PurchaseOrder struct {
	ID            int64         `json:"id"`
	Number        string        `json:"number"`
	SupplierID    int64         `json:"supplier_id"`
	Department    string        `json:"department"`
	Status        POStatus      `json:"status"`
	PaymentStatus PaymentStatus `json:"payment_status"`
	SourcePRID    *int64        `json:"source_pr_id,omitempty"`
	Note          string        `json:"note"`
	CreatedAt     time.Time     `json:"created_at"`
	Items         []POItem      `json:"items"`
}

// NetAmount sums the rounded line totals.
func (po PurchaseOrder) NetAmount() decimal.Decimal {
	total := decimal.Zero
	for _, it := range po.Items {
		total = total.Add(it.LineTotal())
	}
	return total
}

// RejectedValue sums the value credited back for rejected goods.
func (po PurchaseOrder) RejectedValue() decimal.Decimal {
	total := decimal.Zero
	for _, it := range po.Items {
		total = total.Add(it.RejectedValue)
	}
	return total
}

// PayableAmount is what the supplier may still bill: the net amount less the
// value of rejected goods.
func (po PurchaseOrder) PayableAmount() decimal.Decimal {
	return po.NetAmount().Sub(po.RejectedValue())
}

// CategoryAmounts splits the net amount by item category.
func (po PurchaseOrder) CategoryAmounts() map[ItemCategory]decimal.Decimal {
	out := make(map[ItemCategory]decimal.Decimal, 2)
	for _, it := range po.Items {
		cat := it.Category
		if cat == "" {
			cat = CategoryInventory
		}
		out[cat] = out[cat].Add(it.LineTotal())
	}
	return out
}

// Item returns the line with id.
func (po PurchaseOrder) Item(id int64) (POItem, bool) {
	for _, it := range po.Items {
		if it.ID == id {
			return it, true
		}
	}
	return POItem{}, false
}

// ReceivedTotals reports whether anything, and everything, has been received.
func (po PurchaseOrder) ReceivedTotals() (any, all bool) {
	all = len(po.Items) > 0
	for _, it := range po.Items {
		if it.ReceivedQty.IsPositive() {
			any = true
		}
		if it.ReceivedQty.LessThan(it.Quantity) {
			all = false
		}
	}
	return any, all
}

// POItem is an ordered line.
type POItem struct {
	ID          int64           `json:"id"`
	POID        int64           `json:"po_id"`
	ProductID   int64           `json:"product_id"`
	WarehouseID int64           `json:"warehouse_id"`
	Category    ItemCategory    `json:"category"`
	Quantity    decimal.Decimal `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	ReceivedQty decimal.Decimal `json:"received_qty"`

	// RejectedValue is the value of rejected goods credited back to the
	// supplier for this line.
	RejectedValue decimal.Decimal `json:"rejected_value"`
}

// LineTotal is quantity times unit price rounded to cents.
func (it POItem) LineTotal() decimal.Decimal {
	return it.Quantity.Mul(it.UnitPrice).Round(2)
}

// Remaining is the quantity still expected from the supplier.
func (it POItem) Remaining() decimal.Decimal {
	r := it.Quantity.Sub(it.ReceivedQty)
	if r.IsNegative() {
		return decimal.Zero
	}
	return r
}

// PRItemLink ties a PR item to the PO item that orders it. It is a reference;
// editing the PO item never touches the PR item.
type PRItemLink struct {
	PRItemID int64           `json:"pr_item_id"`
	POItemID int64           `json:"po_item_id"`
	Quantity decimal.Decimal `json:"quantity"`
}

// POEvent is one row of the append-only purchase order history.
type POEvent struct {
	ID      int64          `json:"id"`
	POID    int64          `json:"po_id"`
	Event   string         `json:"event"`
	From    POStatus       `json:"from"`
	To      POStatus       `json:"to"`
	ActorID int64          `json:"actor_id"`
	Meta    map[string]any `json:"meta,omitempty"`
	At      time.Time      `json:"at"`
}

// GRNStatus is the goods receipt lifecycle status.
type GRNStatus string

const (
	GRNStatusDraft           GRNStatus = "DRAFT"
	GRNStatusInspecting      GRNStatus = "INSPECTING"
	GRNStatusPartialAccepted GRNStatus = "PARTIAL_ACCEPTED"
	GRNStatusAccepted        GRNStatus = "ACCEPTED"
)

// GoodsReceipt is owned by the purchase order it receives against.
type GoodsReceipt struct {
	ID          int64     `json:"id"`
	Number      string    `json:"number"`
	POID        int64     `json:"po_id"`
	WarehouseID int64     `json:"warehouse_id"`
	Status      GRNStatus `json:"status"`
	ReceivedAt  time.Time `json:"received_at"`
	Note        string    `json:"note"`
	Items       []GRNItem `json:"items"`
}

// GRNItem holds the quantities of one received product. For every line
// accepted + rejected <= received <= ordered.
type GRNItem struct {
	ID          int64           `json:"id"`
	GRNID       int64           `json:"grn_id"`
	POItemID    int64           `json:"po_item_id"`
	ProductID   int64           `json:"product_id"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	OrderedQty  decimal.Decimal `json:"ordered_qty"`
	ReceivedQty decimal.Decimal `json:"received_qty"`
	AcceptedQty decimal.Decimal `json:"accepted_qty"`
	RejectedQty decimal.Decimal `json:"rejected_qty"`
	Inspected   bool            `json:"inspected"`
}

// RejectedValue prices the rejected quantity rounded to cents.
func (it GRNItem) RejectedValue() decimal.Decimal {
	return it.RejectedQty.Mul(it.UnitPrice).Round(2)
}

// Totals sums accepted and rejected quantities over all lines.
func (g GoodsReceipt) Totals() (accepted, rejected decimal.Decimal) {
	accepted, rejected = decimal.Zero, decimal.Zero
	for _, it := range g.Items {
		accepted = accepted.Add(it.AcceptedQty)
		rejected = rejected.Add(it.RejectedQty)
	}
	return accepted, rejected
}

// RejectedValue prices the rejected quantity at the ordered unit price.
func (g GoodsReceipt) RejectedValue() decimal.Decimal {
	total := decimal.Zero
	for _, it := range g.Items {
		total = total.Add(it.RejectedValue())
	}
	return total
}
