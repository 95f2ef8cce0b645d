package procurement

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-textile/internal/platform/db"
	"github.com/odyssey-erp/odyssey-textile/internal/shared"
)

// Repository provides PostgreSQL backed persistence.
type Repository struct {
	db db.Querier
}

// NewRepository binds the repository to a pool or transaction.
func NewRepository(q db.Querier) *Repository {
	return &Repository{db: q}
}

var _ Store = (*Repository)(nil)

// CreatePR inserts the header and its items.
func (r *Repository) CreatePR(ctx context.Context, pr PurchaseRequest) (PurchaseRequest, error) {
	err := r.db.QueryRow(ctx, `INSERT INTO purchase_requests (number, department, requester_id, status, note)
VALUES ($1, $2, $3, $4, $5) RETURNING id, created_at`,
		pr.Number, pr.Department, pr.RequesterID, string(pr.Status), pr.Note).Scan(&pr.ID, &pr.CreatedAt)
	if err != nil {
		if db.IsUniqueViolation(err) {
			return PurchaseRequest{}, shared.Validation("purchase request number %s already used", pr.Number)
		}
		return PurchaseRequest{}, fmt.Errorf("procurement: insert pr: %w", err)
	}
	for i := range pr.Items {
		it := &pr.Items[i]
		it.PRID = pr.ID
		if err := r.db.QueryRow(ctx, `INSERT INTO purchase_request_items
(pr_id, product_id, warehouse_id, category, quantity, estimated_unit_price, preferred_supplier_id, reserved_qty, status, note)
VALUES ($1, $2, $3, $4, $5, $6, NULLIF($7, 0), $8, $9, $10) RETURNING id`,
			it.PRID, it.ProductID, it.WarehouseID, string(it.Category), it.Quantity, it.EstimatedUnitPrice,
			it.PreferredSupplierID, it.ReservedQty, string(it.Status), it.Note).Scan(&it.ID); err != nil {
			return PurchaseRequest{}, fmt.Errorf("procurement: insert pr item: %w", err)
		}
	}
	return pr, nil
}

// GetPR loads a request with its items.
func (r *Repository) GetPR(ctx context.Context, id int64) (PurchaseRequest, error) {
	var pr PurchaseRequest
	err := r.db.QueryRow(ctx, `SELECT id, number, department, requester_id, status, note, created_at
FROM purchase_requests WHERE id=$1`, id).
		Scan(&pr.ID, &pr.Number, &pr.Department, &pr.RequesterID, &pr.Status, &pr.Note, &pr.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return PurchaseRequest{}, fmt.Errorf("purchase request %d: %w", id, shared.ErrNotFound)
		}
		return PurchaseRequest{}, err
	}
	rows, err := r.db.Query(ctx, `SELECT id, pr_id, product_id, warehouse_id, category, quantity, estimated_unit_price,
COALESCE(preferred_supplier_id, 0), reserved_qty, status, note
FROM purchase_request_items WHERE pr_id=$1 ORDER BY id`, id)
	if err != nil {
		return PurchaseRequest{}, err
	}
	pr.Items, err = pgx.CollectRows(rows, func(row pgx.CollectableRow) (PRItem, error) {
		var it PRItem
		err := row.Scan(&it.ID, &it.PRID, &it.ProductID, &it.WarehouseID, &it.Category, &it.Quantity,
			&it.EstimatedUnitPrice, &it.PreferredSupplierID, &it.ReservedQty, &it.Status, &it.Note)
		return it, err
	})
	return pr, err
}

// UpdatePRStatus moves the header from one status to another.
func (r *Repository) UpdatePRStatus(ctx context.Context, id int64, from, to PRStatus) error {
	return db.CompareAndSetStatus(ctx, r.db, "purchase_requests", id, string(from), string(to))
}

// UpdatePRItem stores the item decision and its reservation.
func (r *Repository) UpdatePRItem(ctx context.Context, item PRItem) error {
	tag, err := r.db.Exec(ctx, `UPDATE purchase_request_items SET status=$2, reserved_qty=$3 WHERE id=$1`,
		item.ID, string(item.Status), item.ReservedQty)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("purchase request item %d: %w", item.ID, shared.ErrNotFound)
	}
	return nil
}

// MarkPRItemConverted flips an approved item to CONVERTED.
func (r *Repository) MarkPRItemConverted(ctx context.Context, id int64) error {
	tag, err := r.db.Exec(ctx, `UPDATE purchase_request_items SET status=$2 WHERE id=$1 AND status=$3`,
		id, string(PRItemConverted), string(PRItemApproved))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 1 {
		return nil
	}
	var current string
	if err := r.db.QueryRow(ctx, `SELECT status FROM purchase_request_items WHERE id=$1`, id).Scan(&current); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("purchase request item %d: %w", id, shared.ErrNotFound)
		}
		return err
	}
	return shared.Conflict("purchase_request_items", id, current, string(PRItemConverted))
}

// ReleasePRItemReservation lowers reserved_qty while enough remains.
func (r *Repository) ReleasePRItemReservation(ctx context.Context, id int64, qty decimal.Decimal) (bool, error) {
	tag, err := r.db.Exec(ctx, `UPDATE purchase_request_items SET reserved_qty = reserved_qty - $2
WHERE id=$1 AND reserved_qty >= $2`, id, qty)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// CreatePO inserts the order and its lines.
func (r *Repository) CreatePO(ctx context.Context, po PurchaseOrder) (PurchaseOrder, error) {
	err := r.db.QueryRow(ctx, `INSERT INTO purchase_orders (number, supplier_id, department, status, payment_status, source_pr_id, note)
VALUES ($1, $2, $3, $4, $5, $6, $7) RETURNING id, created_at`,
		po.Number, po.SupplierID, po.Department, string(po.Status), string(po.PaymentStatus), po.SourcePRID, po.Note).
		Scan(&po.ID, &po.CreatedAt)
	if err != nil {
		if db.IsUniqueViolation(err) {
			return PurchaseOrder{}, shared.Validation("purchase order number %s already used", po.Number)
		}
		return PurchaseOrder{}, fmt.Errorf("procurement: insert po: %w", err)
	}
	for i := range po.Items {
		it := &po.Items[i]
		it.POID = po.ID
		if err := r.db.QueryRow(ctx, `INSERT INTO purchase_order_items (po_id, product_id, warehouse_id, category, quantity, unit_price, received_qty)
VALUES ($1, $2, $3, $4, $5, $6, $7) RETURNING id`,
			it.POID, it.ProductID, it.WarehouseID, string(it.Category), it.Quantity, it.UnitPrice, it.ReceivedQty).Scan(&it.ID); err != nil {
			return PurchaseOrder{}, fmt.Errorf("procurement: insert po item: %w", err)
		}
	}
	return po, nil
}

// GetPO loads an order with its lines.
func (r *Repository) GetPO(ctx context.Context, id int64) (PurchaseOrder, error) {
	return r.getPO(ctx, id, "")
}

// GetPOForUpdate loads and locks an order.
func (r *Repository) GetPOForUpdate(ctx context.Context, id int64) (PurchaseOrder, error) {
	return r.getPO(ctx, id, " FOR UPDATE")
}

func (r *Repository) getPO(ctx context.Context, id int64, lock string) (PurchaseOrder, error) {
	var po PurchaseOrder
	err := r.db.QueryRow(ctx, `SELECT id, number, supplier_id, department, status, payment_status, source_pr_id, note, created_at
FROM purchase_orders WHERE id=$1`+lock, id).
		Scan(&po.ID, &po.Number, &po.SupplierID, &po.Department, &po.Status, &po.PaymentStatus, &po.SourcePRID, &po.Note, &po.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return PurchaseOrder{}, fmt.Errorf("purchase order %d: %w", id, shared.ErrNotFound)
		}
		return PurchaseOrder{}, err
	}
	rows, err := r.db.Query(ctx, `SELECT id, po_id, product_id, warehouse_id, category, quantity, unit_price, received_qty, rejected_value
FROM purchase_order_items WHERE po_id=$1 ORDER BY id`, id)
	if err != nil {
		return PurchaseOrder{}, err
	}
	po.Items, err = pgx.CollectRows(rows, func(row pgx.CollectableRow) (POItem, error) {
		var it POItem
		err := row.Scan(&it.ID, &it.POID, &it.ProductID, &it.WarehouseID, &it.Category, &it.Quantity, &it.UnitPrice, &it.ReceivedQty, &it.RejectedValue)
		return it, err
	})
	return po, err
}

// UpdatePOStatus moves the order from one status to another.
func (r *Repository) UpdatePOStatus(ctx context.Context, id int64, from, to POStatus) error {
	return db.CompareAndSetStatus(ctx, r.db, "purchase_orders", id, string(from), string(to))
}

// SetPOPaymentStatus records the supplier payment progress.
func (r *Repository) SetPOPaymentStatus(ctx context.Context, id int64, status PaymentStatus) error {
	tag, err := r.db.Exec(ctx, `UPDATE purchase_orders SET payment_status=$2, updated_at=NOW() WHERE id=$1`, id, string(status))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("purchase order %d: %w", id, shared.ErrNotFound)
	}
	return nil
}

// AddReceivedQty raises received_qty within the ordered quantity.
func (r *Repository) AddReceivedQty(ctx context.Context, poItemID int64, qty decimal.Decimal) (bool, error) {
	tag, err := r.db.Exec(ctx, `UPDATE purchase_order_items SET received_qty = received_qty + $2
WHERE id=$1 AND received_qty + $2 <= quantity`, poItemID, qty)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// AddRejectedValue accumulates the value credited back for rejected goods.
func (r *Repository) AddRejectedValue(ctx context.Context, poItemID int64, value decimal.Decimal) error {
	tag, err := r.db.Exec(ctx, `UPDATE purchase_order_items SET rejected_value = rejected_value + $2 WHERE id=$1`, poItemID, value)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("purchase order item %d: %w", poItemID, shared.ErrNotFound)
	}
	return nil
}

// LinkPRItem records which order line covers a request item.
func (r *Repository) LinkPRItem(ctx context.Context, link PRItemLink) error {
	_, err := r.db.Exec(ctx, `INSERT INTO pr_po_links (pr_item_id, po_item_id, quantity) VALUES ($1, $2, $3)`,
		link.PRItemID, link.POItemID, link.Quantity)
	return err
}

// LinksForPR lists the links of every item of a request.
func (r *Repository) LinksForPR(ctx context.Context, prID int64) ([]PRItemLink, error) {
	rows, err := r.db.Query(ctx, `SELECT l.pr_item_id, l.po_item_id, l.quantity FROM pr_po_links l
JOIN purchase_request_items i ON i.id = l.pr_item_id
WHERE i.pr_id=$1 ORDER BY l.pr_item_id, l.po_item_id`, prID)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (PRItemLink, error) {
		var l PRItemLink
		err := row.Scan(&l.PRItemID, &l.POItemID, &l.Quantity)
		return l, err
	})
}

// AppendPOEvent adds a row to the order history.
func (r *Repository) AppendPOEvent(ctx context.Context, ev POEvent) error {
	meta, err := json.Marshal(ev.Meta)
	if err != nil {
		return err
	}
	_, err = r.db.Exec(ctx, `INSERT INTO po_events (po_id, event, from_status, to_status, actor_id, meta, occurred_at)
VALUES ($1, $2, $3, $4, NULLIF($5, 0), $6, $7)`,
		ev.POID, ev.Event, string(ev.From), string(ev.To), ev.ActorID, meta, ev.At)
	return err
}

// POEvents returns the order history oldest first.
func (r *Repository) POEvents(ctx context.Context, poID int64) ([]POEvent, error) {
	rows, err := r.db.Query(ctx, `SELECT id, po_id, event, from_status, to_status, COALESCE(actor_id, 0), meta, occurred_at
FROM po_events WHERE po_id=$1 ORDER BY id`, poID)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (POEvent, error) {
		var (
			ev   POEvent
			meta []byte
		)
		if err := row.Scan(&ev.ID, &ev.POID, &ev.Event, &ev.From, &ev.To, &ev.ActorID, &meta, &ev.At); err != nil {
			return ev, err
		}
		var err error
		ev.Meta, err = decodeEventMeta(ev.ID, meta)
		return ev, err
	})
}

func decodeEventMeta(id int64, raw []byte) (map[string]any, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var meta map[string]any
	if err := json.Unmarshal(raw, &meta); err != nil {
		return nil, fmt.Errorf("procurement: decode po event %d meta: %w", id, err)
	}
	return meta, nil
}

// CreateGRN inserts the receipt and its lines.
func (r *Repository) CreateGRN(ctx context.Context, grn GoodsReceipt) (GoodsReceipt, error) {
	err := r.db.QueryRow(ctx, `INSERT INTO goods_receipts (number, po_id, warehouse_id, status, note)
VALUES ($1, $2, $3, $4, $5) RETURNING id, received_at`,
		grn.Number, grn.POID, grn.WarehouseID, string(grn.Status), grn.Note).Scan(&grn.ID, &grn.ReceivedAt)
	if err != nil {
		if db.IsUniqueViolation(err) {
			return GoodsReceipt{}, shared.Validation("goods receipt number %s already used", grn.Number)
		}
		return GoodsReceipt{}, fmt.Errorf("procurement: insert grn: %w", err)
	}
	for i := range grn.Items {
		it := &grn.Items[i]
		it.GRNID = grn.ID
		if err := r.db.QueryRow(ctx, `INSERT INTO goods_receipt_items
(grn_id, po_item_id, product_id, unit_price, ordered_qty, received_qty, accepted_qty, rejected_qty, inspected)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9) RETURNING id`,
			it.GRNID, it.POItemID, it.ProductID, it.UnitPrice, it.OrderedQty, it.ReceivedQty,
			it.AcceptedQty, it.RejectedQty, it.Inspected).Scan(&it.ID); err != nil {
			return GoodsReceipt{}, fmt.Errorf("procurement: insert grn item: %w", err)
		}
	}
	return grn, nil
}

// GetGRN loads a receipt with its lines.
func (r *Repository) GetGRN(ctx context.Context, id int64) (GoodsReceipt, error) {
	return r.getGRN(ctx, id, "")
}

// GetGRNForUpdate loads and locks a receipt.
func (r *Repository) GetGRNForUpdate(ctx context.Context, id int64) (GoodsReceipt, error) {
	return r.getGRN(ctx, id, " FOR UPDATE")
}

func (r *Repository) getGRN(ctx context.Context, id int64, lock string) (GoodsReceipt, error) {
	var grn GoodsReceipt
	err := r.db.QueryRow(ctx, `SELECT id, number, po_id, warehouse_id, status, received_at, note
FROM goods_receipts WHERE id=$1`+lock, id).
		Scan(&grn.ID, &grn.Number, &grn.POID, &grn.WarehouseID, &grn.Status, &grn.ReceivedAt, &grn.Note)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return GoodsReceipt{}, fmt.Errorf("goods receipt %d: %w", id, shared.ErrNotFound)
		}
		return GoodsReceipt{}, err
	}
	rows, err := r.db.Query(ctx, `SELECT id, grn_id, po_item_id, product_id, unit_price, ordered_qty, received_qty,
accepted_qty, rejected_qty, inspected
FROM goods_receipt_items WHERE grn_id=$1 ORDER BY id`, id)
	if err != nil {
		return GoodsReceipt{}, err
	}
	grn.Items, err = pgx.CollectRows(rows, func(row pgx.CollectableRow) (GRNItem, error) {
		var it GRNItem
		err := row.Scan(&it.ID, &it.GRNID, &it.POItemID, &it.ProductID, &it.UnitPrice, &it.OrderedQty,
			&it.ReceivedQty, &it.AcceptedQty, &it.RejectedQty, &it.Inspected)
		return it, err
	})
	return grn, err
}

// UpdateGRNStatus moves the receipt from one status to another.
func (r *Repository) UpdateGRNStatus(ctx context.Context, id int64, from, to GRNStatus) error {
	return db.CompareAndSetStatus(ctx, r.db, "goods_receipts", id, string(from), string(to))
}

// UpdateGRNItem stores the quantities of one line.
func (r *Repository) UpdateGRNItem(ctx context.Context, item GRNItem) error {
	tag, err := r.db.Exec(ctx, `UPDATE goods_receipt_items
SET received_qty=$2, accepted_qty=$3, rejected_qty=$4, inspected=$5 WHERE id=$1`,
		item.ID, item.ReceivedQty, item.AcceptedQty, item.RejectedQty, item.Inspected)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("goods receipt item %d: %w", item.ID, shared.ErrNotFound)
	}
	return nil
}
