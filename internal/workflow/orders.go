package workflow

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-textile/internal/authz"
	"github.com/odyssey-erp/odyssey-textile/internal/inventory"
	"github.com/odyssey-erp/odyssey-textile/internal/ledger"
	"github.com/odyssey-erp/odyssey-textile/internal/procurement"
	"github.com/odyssey-erp/odyssey-textile/internal/shared"
)

// POItemInput describes an ordered line.
type POItemInput struct {
	ProductID   int64                    `json:"product_id" validate:"required"`
	WarehouseID int64                    `json:"warehouse_id" validate:"required"`
	Category    procurement.ItemCategory `json:"category" validate:"omitempty,oneof=INVENTORY EXPENSE"`
	Quantity    decimal.Decimal          `json:"quantity"`
	UnitPrice   decimal.Decimal          `json:"unit_price"`
}

// CreatePOInput describes a purchase order entered directly by procurement.
type CreatePOInput struct {
	Number     string        `json:"number"`
	SupplierID int64         `json:"supplier_id" validate:"required"`
	Department string        `json:"department"`
	Note       string        `json:"note"`
	Items      []POItemInput `json:"items" validate:"required,min=1,dive"`
}

// CreatePurchaseOrder stores a DRAFT order.
func (s *Service) CreatePurchaseOrder(ctx context.Context, actor authz.Actor, input CreatePOInput) (procurement.PurchaseOrder, error) {
	department := defaultString(input.Department, actor.Department)
	if err := s.authorize(actor, authz.ActionCreatePO, department); err != nil {
		return procurement.PurchaseOrder{}, err
	}
	if input.SupplierID == 0 {
		return procurement.PurchaseOrder{}, shared.Validation("purchase order needs a supplier")
	}
	if len(input.Items) == 0 {
		return procurement.PurchaseOrder{}, shared.Validation("purchase order needs at least one item")
	}
	now := s.now()
	po := procurement.PurchaseOrder{
		Number:        defaultString(input.Number, generateNumber("PO", now)),
		SupplierID:    input.SupplierID,
		Department:    department,
		Status:        procurement.POStatusDraft,
		PaymentStatus: procurement.PaymentUnpaid,
		Note:          input.Note,
	}
	for i, it := range input.Items {
		if it.ProductID == 0 || it.WarehouseID == 0 {
			return procurement.PurchaseOrder{}, shared.Validation("item %d needs product and warehouse", i+1)
		}
		if !it.Quantity.IsPositive() {
			return procurement.PurchaseOrder{}, shared.Validation("item %d quantity must be positive", i+1)
		}
		if it.UnitPrice.IsNegative() {
			return procurement.PurchaseOrder{}, shared.Validation("item %d price must not be negative", i+1)
		}
		category := it.Category
		if category == "" {
			category = procurement.CategoryInventory
		}
		po.Items = append(po.Items, procurement.POItem{
			ProductID:   it.ProductID,
			WarehouseID: it.WarehouseID,
			Category:    category,
			Quantity:    it.Quantity,
			UnitPrice:   it.UnitPrice,
			ReceivedQty: decimal.Zero,
		})
	}

	var created procurement.PurchaseOrder
	_, err := s.transact(ctx, ModulePurchaseOrder, "create", func(ctx context.Context, st Stores, box *outbox) error {
		var err error
		created, err = st.Procurement().CreatePO(ctx, po)
		if err != nil {
			return err
		}
		if err := s.poEvent(ctx, st, created, "create", "", actor, nil); err != nil {
			return err
		}
		box.add(ModulePurchaseOrder, created.ID, created.Number, "create", string(created.Status), created.Department, actor, now)
		return s.audit(ctx, st, actor, "po.create", ModulePurchaseOrder, created.ID, map[string]any{
			"number": created.Number, "supplier_id": created.SupplierID, "net_amount": created.NetAmount().StringFixed(2),
		})
	})
	if err != nil {
		return procurement.PurchaseOrder{}, err
	}
	return created, nil
}

// SubmitPurchaseOrder requests approval of a DRAFT order.
func (s *Service) SubmitPurchaseOrder(ctx context.Context, actor authz.Actor, poID int64) (Result[procurement.PurchaseOrder], error) {
	var out procurement.PurchaseOrder
	replayed, err := s.transact(ctx, ModulePurchaseOrder, procurement.EventSubmitPO, func(ctx context.Context, st Stores, box *outbox) error {
		po, err := st.Procurement().GetPO(ctx, poID)
		if err != nil {
			return err
		}
		if err := s.authorize(actor, authz.ActionSubmitPO, po.Department); err != nil {
			return err
		}
		out = po
		if procurement.POMachine.Reached(po.Status, procurement.EventSubmitPO) {
			box.replayed = true
			return nil
		}
		from := po.Status
		if po.Status, err = procurement.POMachine.Fire(po, from, procurement.EventSubmitPO); err != nil {
			return err
		}
		if err := st.Procurement().UpdatePOStatus(ctx, po.ID, from, po.Status); err != nil {
			return err
		}
		out = po
		if err := s.poEvent(ctx, st, po, string(procurement.EventSubmitPO), from, actor, nil); err != nil {
			return err
		}
		if err := s.approval(ctx, st, ModulePurchaseOrder, po.Number, actor, shared.ApprovalSubmit, ""); err != nil {
			return err
		}
		box.add(ModulePurchaseOrder, po.ID, po.Number, procurement.EventSubmitPO, string(po.Status), po.Department, actor, s.now())
		return s.audit(ctx, st, actor, "po.submit", ModulePurchaseOrder, po.ID, map[string]any{"number": po.Number})
	})
	return Result[procurement.PurchaseOrder]{Document: out, Replayed: replayed}, err
}

// ConfirmPurchaseOrder commits the order to the supplier. It books the
// payable and puts inventory lines on order. A retried confirmation of an
// order that is already OPEN returns the order without repeating either.
func (s *Service) ConfirmPurchaseOrder(ctx context.Context, actor authz.Actor, poID int64) (Result[procurement.PurchaseOrder], error) {
	var out procurement.PurchaseOrder
	replayed, err := s.transact(ctx, ModulePurchaseOrder, procurement.EventConfirmPO, func(ctx context.Context, st Stores, box *outbox) error {
		po, err := st.Procurement().GetPO(ctx, poID)
		if err != nil {
			return err
		}
		if err := s.authorize(actor, authz.ActionConfirmPO, po.Department); err != nil {
			return err
		}
		out = po
		if procurement.POMachine.Reached(po.Status, procurement.EventConfirmPO) {
			box.replayed = true
			return nil
		}
		from := po.Status
		if po.Status, err = procurement.POMachine.Fire(po, from, procurement.EventConfirmPO); err != nil {
			return err
		}
		if err := st.Procurement().UpdatePOStatus(ctx, po.ID, from, po.Status); err != nil {
			return err
		}
		out = po

		for _, it := range po.Items {
			if it.Category == procurement.CategoryExpense {
				continue
			}
			key := inventory.Key{ProductID: it.ProductID, WarehouseID: it.WarehouseID}
			if err := s.stock.ExpectIncoming(ctx, st.Inventory(), key, it.Quantity, po.Number); err != nil {
				return err
			}
		}
		posted, err := s.post(ctx, st, actor, po.Number, ledger.KindPOConfirm, "Purchase order "+po.Number+" confirmed", confirmationAmounts(po))
		if err != nil {
			return err
		}

		if err := s.poEvent(ctx, st, po, string(procurement.EventConfirmPO), from, actor, map[string]any{"entry_id": posted.Entry.ID}); err != nil {
			return err
		}
		if err := s.approval(ctx, st, ModulePurchaseOrder, po.Number, actor, shared.ApprovalConfirm, ""); err != nil {
			return err
		}
		box.add(ModulePurchaseOrder, po.ID, po.Number, procurement.EventConfirmPO, string(po.Status), po.Department, actor, s.now())
		return s.audit(ctx, st, actor, "po.confirm", ModulePurchaseOrder, po.ID, map[string]any{
			"number": po.Number, "net_amount": po.NetAmount().StringFixed(2), "entry_id": posted.Entry.ID,
		})
	})
	return Result[procurement.PurchaseOrder]{Document: out, Replayed: replayed}, err
}

// CancelPurchaseOrder cancels an order that has received nothing. A confirmed
// order has its journal reversed and its on-order quantities cleared.
func (s *Service) CancelPurchaseOrder(ctx context.Context, actor authz.Actor, poID int64, reason string) (Result[procurement.PurchaseOrder], error) {
	var out procurement.PurchaseOrder
	replayed, err := s.transact(ctx, ModulePurchaseOrder, procurement.EventCancelPO, func(ctx context.Context, st Stores, box *outbox) error {
		po, err := st.Procurement().GetPO(ctx, poID)
		if err != nil {
			return err
		}
		if err := s.authorize(actor, authz.ActionCancelPO, po.Department); err != nil {
			return err
		}
		out = po
		if procurement.POMachine.Reached(po.Status, procurement.EventCancelPO) {
			box.replayed = true
			return nil
		}
		from := po.Status
		if po.Status, err = procurement.POMachine.Fire(po, from, procurement.EventCancelPO); err != nil {
			return err
		}
		if err := st.Procurement().UpdatePOStatus(ctx, po.ID, from, po.Status); err != nil {
			return err
		}
		out = po

		meta := map[string]any{"number": po.Number, "from": string(from), "reason": reason}
		if from == procurement.POStatusOpen {
			for _, it := range po.Items {
				if it.Category == procurement.CategoryExpense {
					continue
				}
				key := inventory.Key{ProductID: it.ProductID, WarehouseID: it.WarehouseID}
				if _, err := s.stock.ClearIncoming(ctx, st.Inventory(), key, it.Remaining(), po.Number); err != nil {
					return err
				}
			}
			reversed, err := s.reverse(ctx, st, actor, po.Number, ledger.KindPOConfirm, ledger.KindPOCancel)
			if err != nil {
				return err
			}
			if !reversed.Skipped {
				meta["entry_id"] = reversed.Entry.ID
			}
		}
		if err := s.poEvent(ctx, st, po, string(procurement.EventCancelPO), from, actor, map[string]any{"reason": reason}); err != nil {
			return err
		}
		box.add(ModulePurchaseOrder, po.ID, po.Number, procurement.EventCancelPO, string(po.Status), po.Department, actor, s.now())
		return s.audit(ctx, st, actor, "po.cancel", ModulePurchaseOrder, po.ID, meta)
	})
	return Result[procurement.PurchaseOrder]{Document: out, Replayed: replayed}, err
}
