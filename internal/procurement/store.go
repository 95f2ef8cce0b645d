package procurement

import (
	"context"

	"github.com/shopspring/decimal"
)

// Store is the transaction bound persistence used by the orchestrating
// service. Status changes are conditional on the expected current status and
// report shared.ErrAlreadyProcessed or shared.ErrStatusConflict when they lose.
type Store interface {
	CreatePR(ctx context.Context, pr PurchaseRequest) (PurchaseRequest, error)
	GetPR(ctx context.Context, id int64) (PurchaseRequest, error)
	UpdatePRStatus(ctx context.Context, id int64, from, to PRStatus) error
	UpdatePRItem(ctx context.Context, item PRItem) error
	// MarkPRItemConverted moves an APPROVED item to CONVERTED.
	MarkPRItemConverted(ctx context.Context, id int64) error
	// ReleasePRItemReservation lowers reserved_qty by qty only while enough is
	// reserved and reports whether the item was updated.
	ReleasePRItemReservation(ctx context.Context, id int64, qty decimal.Decimal) (bool, error)

	CreatePO(ctx context.Context, po PurchaseOrder) (PurchaseOrder, error)
	GetPO(ctx context.Context, id int64) (PurchaseOrder, error)
	// GetPOForUpdate locks the order header until the transaction ends.
	GetPOForUpdate(ctx context.Context, id int64) (PurchaseOrder, error)
	UpdatePOStatus(ctx context.Context, id int64, from, to POStatus) error
	SetPOPaymentStatus(ctx context.Context, id int64, status PaymentStatus) error
	// AddReceivedQty raises received_qty only while it stays within the
	// ordered quantity and reports whether the line was updated.
	AddReceivedQty(ctx context.Context, poItemID int64, qty decimal.Decimal) (bool, error)
	AddRejectedValue(ctx context.Context, poItemID int64, value decimal.Decimal) error
	LinkPRItem(ctx context.Context, link PRItemLink) error
	LinksForPR(ctx context.Context, prID int64) ([]PRItemLink, error)
	AppendPOEvent(ctx context.Context, ev POEvent) error
	POEvents(ctx context.Context, poID int64) ([]POEvent, error)

	CreateGRN(ctx context.Context, grn GoodsReceipt) (GoodsReceipt, error)
	GetGRN(ctx context.Context, id int64) (GoodsReceipt, error)
	// GetGRNForUpdate locks the receipt header until the transaction ends.
	GetGRNForUpdate(ctx context.Context, id int64) (GoodsReceipt, error)
	UpdateGRNStatus(ctx context.Context, id int64, from, to GRNStatus) error
	UpdateGRNItem(ctx context.Context, item GRNItem) error
}
