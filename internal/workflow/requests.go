package workflow

import (
	"context"
	"fmt"
	"strconv"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-textile/internal/authz"
	"github.com/odyssey-erp/odyssey-textile/internal/inventory"
	"github.com/odyssey-erp/odyssey-textile/internal/procurement"
	"github.com/odyssey-erp/odyssey-textile/internal/shared"
)

// PRItemInput describes a requested line.
type PRItemInput struct {
	ProductID           int64                    `json:"product_id" validate:"required"`
	WarehouseID         int64                    `json:"warehouse_id" validate:"required"`
	Category            procurement.ItemCategory `json:"category" validate:"omitempty,oneof=INVENTORY EXPENSE"`
	Quantity            decimal.Decimal          `json:"quantity"`
	EstimatedUnitPrice  decimal.Decimal          `json:"estimated_unit_price"`
	PreferredSupplierID int64                    `json:"preferred_supplier_id"`
	Note                string                   `json:"note"`
}

// CreatePRInput describes a new purchase request. Department defaults to the
// actor's own department.
type CreatePRInput struct {
	Number     string        `json:"number"`
	Department string        `json:"department"`
	Note       string        `json:"note"`
	Items      []PRItemInput `json:"items" validate:"required,min=1,dive"`
}

// ItemDecision approves or rejects one PR item.
type ItemDecision struct {
	ItemID  int64  `json:"item_id" validate:"required"`
	Approve bool   `json:"approve"`
	Note    string `json:"note"`
}

// ApprovePRInput carries the per item decisions. Every pending item must be
// decided and at least one approved.
type ApprovePRInput struct {
	Decisions []ItemDecision `json:"decisions" validate:"required,min=1,dive"`
	Note      string         `json:"note"`
}

// ConvertPRInput selects the approved items to order.
type ConvertPRInput struct {
	ItemIDs []int64 `json:"item_ids" validate:"required,min=1"`
}

// ConversionResult is the request after conversion and the orders created.
type ConversionResult struct {
	PurchaseRequest procurement.PurchaseRequest `json:"purchase_request"`
	Orders          []procurement.PurchaseOrder `json:"orders"`
	Links           []procurement.PRItemLink    `json:"links"`
}

// ReleaseInput ends part of a PR item reservation.
type ReleaseInput struct {
	ItemID   int64                   `json:"item_id" validate:"required"`
	Quantity decimal.Decimal         `json:"quantity"`
	Reason   inventory.ReleaseReason `json:"reason" validate:"required,oneof=FULFILLED CANCELLED"`
}

// CreatePurchaseRequest files a DRAFT request. Filing for another department
// needs approval rights over it.
func (s *Service) CreatePurchaseRequest(ctx context.Context, actor authz.Actor, input CreatePRInput) (procurement.PurchaseRequest, error) {
	department := defaultString(input.Department, actor.Department)
	if department == "" {
		return procurement.PurchaseRequest{}, shared.Validation("purchase request needs a department")
	}
	if !authz.SameDepartment(actor.Department, department) {
		if err := s.authorize(actor, authz.ActionApprovePR, department); err != nil {
			return procurement.PurchaseRequest{}, err
		}
	}
	if len(input.Items) == 0 {
		return procurement.PurchaseRequest{}, shared.Validation("purchase request needs at least one item")
	}
	now := s.now()
	pr := procurement.PurchaseRequest{
		Number:      defaultString(input.Number, generateNumber("PR", now)),
		Department:  department,
		RequesterID: actor.EmployeeID,
		Status:      procurement.PRStatusDraft,
		Note:        input.Note,
	}
	for i, it := range input.Items {
		if it.ProductID == 0 || it.WarehouseID == 0 {
			return procurement.PurchaseRequest{}, shared.Validation("item %d needs product and warehouse", i+1)
		}
		if !it.Quantity.IsPositive() {
			return procurement.PurchaseRequest{}, shared.Validation("item %d quantity must be positive", i+1)
		}
		if it.EstimatedUnitPrice.IsNegative() {
			return procurement.PurchaseRequest{}, shared.Validation("item %d price must not be negative", i+1)
		}
		category := it.Category
		if category == "" {
			category = procurement.CategoryInventory
		}
		pr.Items = append(pr.Items, procurement.PRItem{
			ProductID:           it.ProductID,
			WarehouseID:         it.WarehouseID,
			Category:            category,
			Quantity:            it.Quantity,
			EstimatedUnitPrice:  it.EstimatedUnitPrice,
			PreferredSupplierID: it.PreferredSupplierID,
			ReservedQty:         decimal.Zero,
			Status:              procurement.PRItemPending,
			Note:                it.Note,
		})
	}

	var created procurement.PurchaseRequest
	_, err := s.transact(ctx, ModulePurchaseRequest, "create", func(ctx context.Context, st Stores, box *outbox) error {
		var err error
		created, err = st.Procurement().CreatePR(ctx, pr)
		if err != nil {
			return err
		}
		box.add(ModulePurchaseRequest, created.ID, created.Number, "create", string(created.Status), created.Department, actor, now)
		return s.audit(ctx, st, actor, "pr.create", ModulePurchaseRequest, created.ID, map[string]any{
			"number": created.Number, "department": created.Department, "items": len(created.Items),
		})
	})
	if err != nil {
		return procurement.PurchaseRequest{}, err
	}
	return created, nil
}

// SubmitPurchaseRequest sends a DRAFT request for approval. Only the requester
// or someone allowed to approve it may submit.
func (s *Service) SubmitPurchaseRequest(ctx context.Context, actor authz.Actor, prID int64) (Result[procurement.PurchaseRequest], error) {
	var out procurement.PurchaseRequest
	replayed, err := s.transact(ctx, ModulePurchaseRequest, procurement.EventSubmitPR, func(ctx context.Context, st Stores, box *outbox) error {
		pr, err := st.Procurement().GetPR(ctx, prID)
		if err != nil {
			return err
		}
		if actor.EmployeeID != pr.RequesterID {
			if err := s.authorize(actor, authz.ActionApprovePR, pr.Department); err != nil {
				return err
			}
		}
		out = pr
		if procurement.PRMachine.Reached(pr.Status, procurement.EventSubmitPR) {
			box.replayed = true
			return nil
		}
		to, err := procurement.PRMachine.Fire(pr, pr.Status, procurement.EventSubmitPR)
		if err != nil {
			return err
		}
		if err := st.Procurement().UpdatePRStatus(ctx, pr.ID, pr.Status, to); err != nil {
			return err
		}
		out.Status = to
		if err := s.approval(ctx, st, ModulePurchaseRequest, pr.Number, actor, shared.ApprovalSubmit, pr.Note); err != nil {
			return err
		}
		box.add(ModulePurchaseRequest, pr.ID, pr.Number, procurement.EventSubmitPR, string(to), pr.Department, actor, s.now())
		return s.audit(ctx, st, actor, "pr.submit", ModulePurchaseRequest, pr.ID, map[string]any{"number": pr.Number})
	})
	return Result[procurement.PurchaseRequest]{Document: out, Replayed: replayed}, err
}

// ApprovePurchaseRequest applies the item decisions and approves the request.
// Approved inventory items reserve what stock is available; the rest is the
// shortfall to be ordered.
func (s *Service) ApprovePurchaseRequest(ctx context.Context, actor authz.Actor, prID int64, input ApprovePRInput) (Result[procurement.PurchaseRequest], error) {
	var out procurement.PurchaseRequest
	replayed, err := s.transact(ctx, ModulePurchaseRequest, procurement.EventApprovePR, func(ctx context.Context, st Stores, box *outbox) error {
		pr, err := st.Procurement().GetPR(ctx, prID)
		if err != nil {
			return err
		}
		if err := s.authorize(actor, authz.ActionApprovePR, pr.Department); err != nil {
			return err
		}
		out = pr
		if procurement.PRMachine.Reached(pr.Status, procurement.EventApprovePR) {
			box.replayed = true
			return nil
		}
		if _, err := procurement.PRMachine.Next(pr.Status, procurement.EventApprovePR); err != nil {
			return err
		}
		decided, err := applyDecisions(&pr, input.Decisions)
		if err != nil {
			return err
		}
		to, err := procurement.PRMachine.Fire(pr, pr.Status, procurement.EventApprovePR)
		if err != nil {
			return err
		}

		reserved := make(map[string]string)
		for _, idx := range decided {
			item := &pr.Items[idx]
			if item.Status == procurement.PRItemApproved && item.Category != procurement.CategoryExpense {
				key := inventory.Key{ProductID: item.ProductID, WarehouseID: item.WarehouseID}
				qty, err := s.stock.Allocate(ctx, st.Inventory(), key, item.Quantity, pr.Number)
				if err != nil {
					return err
				}
				item.ReservedQty = qty
				if qty.IsPositive() {
					reserved[strconv.FormatInt(item.ID, 10)] = qty.String()
				}
			}
			if err := st.Procurement().UpdatePRItem(ctx, *item); err != nil {
				return err
			}
		}
		if err := st.Procurement().UpdatePRStatus(ctx, pr.ID, pr.Status, to); err != nil {
			return err
		}
		pr.Status = to
		out = pr
		if err := s.approval(ctx, st, ModulePurchaseRequest, pr.Number, actor, shared.ApprovalApprove, input.Note); err != nil {
			return err
		}
		box.add(ModulePurchaseRequest, pr.ID, pr.Number, procurement.EventApprovePR, string(to), pr.Department, actor, s.now())
		return s.audit(ctx, st, actor, "pr.approve", ModulePurchaseRequest, pr.ID, map[string]any{
			"number": pr.Number, "decided": len(decided), "reserved": reserved,
		})
	})
	return Result[procurement.PurchaseRequest]{Document: out, Replayed: replayed}, err
}

func applyDecisions(pr *procurement.PurchaseRequest, decisions []ItemDecision) ([]int, error) {
	if len(decisions) == 0 {
		return nil, shared.Validation("no item decisions")
	}
	index := make(map[int64]int, len(pr.Items))
	for i, it := range pr.Items {
		index[it.ID] = i
	}
	decided := make([]int, 0, len(decisions))
	seen := make(map[int64]bool, len(decisions))
	for _, d := range decisions {
		idx, ok := index[d.ItemID]
		if !ok {
			return nil, shared.Validation("item %d does not belong to %s", d.ItemID, pr.Number)
		}
		if seen[d.ItemID] {
			return nil, shared.Validation("item %d decided twice", d.ItemID)
		}
		seen[d.ItemID] = true
		item := &pr.Items[idx]
		if item.Status != procurement.PRItemPending {
			return nil, shared.Validation("item %d is already %s", d.ItemID, item.Status)
		}
		item.Status = procurement.PRItemRejected
		if d.Approve {
			item.Status = procurement.PRItemApproved
		}
		if d.Note != "" {
			item.Note = d.Note
		}
		decided = append(decided, idx)
	}
	return decided, nil
}

// RejectPurchaseRequest rejects a pending request with all its pending items.
func (s *Service) RejectPurchaseRequest(ctx context.Context, actor authz.Actor, prID int64, note string) (Result[procurement.PurchaseRequest], error) {
	var out procurement.PurchaseRequest
	replayed, err := s.transact(ctx, ModulePurchaseRequest, procurement.EventRejectPR, func(ctx context.Context, st Stores, box *outbox) error {
		pr, err := st.Procurement().GetPR(ctx, prID)
		if err != nil {
			return err
		}
		if err := s.authorize(actor, authz.ActionRejectPR, pr.Department); err != nil {
			return err
		}
		out = pr
		if procurement.PRMachine.Reached(pr.Status, procurement.EventRejectPR) {
			box.replayed = true
			return nil
		}
		to, err := procurement.PRMachine.Fire(pr, pr.Status, procurement.EventRejectPR)
		if err != nil {
			return err
		}
		for i := range pr.Items {
			if pr.Items[i].Status != procurement.PRItemPending {
				continue
			}
			pr.Items[i].Status = procurement.PRItemRejected
			if err := st.Procurement().UpdatePRItem(ctx, pr.Items[i]); err != nil {
				return err
			}
		}
		if err := st.Procurement().UpdatePRStatus(ctx, pr.ID, pr.Status, to); err != nil {
			return err
		}
		pr.Status = to
		out = pr
		if err := s.approval(ctx, st, ModulePurchaseRequest, pr.Number, actor, shared.ApprovalReject, note); err != nil {
			return err
		}
		box.add(ModulePurchaseRequest, pr.ID, pr.Number, procurement.EventRejectPR, string(to), pr.Department, actor, s.now())
		return s.audit(ctx, st, actor, "pr.reject", ModulePurchaseRequest, pr.ID, map[string]any{"number": pr.Number, "note": note})
	})
	return Result[procurement.PurchaseRequest]{Document: out, Replayed: replayed}, err
}

// ConvertPurchaseRequest turns approved items into one PENDING_APPROVAL order
// per preferred supplier. The selection is validated as a whole; any invalid
// item aborts the conversion before anything is written.
func (s *Service) ConvertPurchaseRequest(ctx context.Context, actor authz.Actor, prID int64, input ConvertPRInput) (ConversionResult, error) {
	var out ConversionResult
	_, err := s.transact(ctx, ModulePurchaseRequest, procurement.EventConvertPR, func(ctx context.Context, st Stores, box *outbox) error {
		out = ConversionResult{}
		pr, err := st.Procurement().GetPR(ctx, prID)
		if err != nil {
			return err
		}
		if err := s.authorize(actor, authz.ActionConvertPR, pr.Department); err != nil {
			return err
		}
		plan, err := s.converter.Plan(pr, input.ItemIDs)
		if err != nil {
			return err
		}
		now := s.now()
		for _, planned := range plan.Orders {
			po, err := st.Procurement().CreatePO(ctx, planned.Draft(pr.ID, generateNumber("PO", now)))
			if err != nil {
				return err
			}
			for i, line := range planned.Lines {
				for _, src := range line.Sources {
					link := procurement.PRItemLink{PRItemID: src.PRItemID, POItemID: po.Items[i].ID, Quantity: src.Quantity}
					if err := st.Procurement().LinkPRItem(ctx, link); err != nil {
						return err
					}
					out.Links = append(out.Links, link)
				}
			}
			if err := s.poEvent(ctx, st, po, "create", "", actor, map[string]any{"source_pr": pr.Number}); err != nil {
				return err
			}
			if err := s.audit(ctx, st, actor, "po.create", ModulePurchaseOrder, po.ID, map[string]any{
				"number": po.Number, "supplier_id": po.SupplierID, "source_pr": pr.Number, "net_amount": po.NetAmount().StringFixed(2),
			}); err != nil {
				return err
			}
			box.add(ModulePurchaseOrder, po.ID, po.Number, "create", string(po.Status), po.Department, actor, now)
			out.Orders = append(out.Orders, po)
		}

		converted := make(map[int64]bool, len(plan.Converted))
		for _, id := range plan.Converted {
			converted[id] = true
		}
		for i := range pr.Items {
			if !converted[pr.Items[i].ID] {
				continue
			}
			if err := st.Procurement().MarkPRItemConverted(ctx, pr.Items[i].ID); err != nil {
				return err
			}
			pr.Items[i].Status = procurement.PRItemConverted
		}
		if to, err := procurement.PRMachine.Fire(pr, pr.Status, procurement.EventConvertPR); err == nil {
			if err := st.Procurement().UpdatePRStatus(ctx, pr.ID, pr.Status, to); err != nil {
				return err
			}
			pr.Status = to
			box.add(ModulePurchaseRequest, pr.ID, pr.Number, procurement.EventConvertPR, string(to), pr.Department, actor, now)
		}
		out.PurchaseRequest = pr
		return s.audit(ctx, st, actor, "pr.convert", ModulePurchaseRequest, pr.ID, map[string]any{
			"number": pr.Number, "items": plan.Converted, "orders": len(out.Orders), "status": string(pr.Status),
		})
	})
	if err != nil {
		return ConversionResult{}, err
	}
	return out, nil
}

// ReleaseReservation ends up to Quantity of an item's stock reservation,
// either because the stock was handed over or because the demand was dropped.
// A zero quantity releases the whole reservation.
func (s *Service) ReleaseReservation(ctx context.Context, actor authz.Actor, prID int64, input ReleaseInput) (procurement.PRItem, error) {
	var out procurement.PRItem
	_, err := s.transact(ctx, ModuleStock, "release", func(ctx context.Context, st Stores, box *outbox) error {
		pr, err := st.Procurement().GetPR(ctx, prID)
		if err != nil {
			return err
		}
		if err := s.authorize(actor, authz.ActionReleaseStock, pr.Department); err != nil {
			return err
		}
		item, ok := pr.Item(input.ItemID)
		if !ok {
			return fmt.Errorf("purchase request item %d: %w", input.ItemID, shared.ErrNotFound)
		}
		if input.Quantity.IsNegative() {
			return shared.Validation("release quantity must not be negative")
		}
		qty := input.Quantity
		if qty.IsZero() || qty.GreaterThan(item.ReservedQty) {
			qty = item.ReservedQty
		}
		if !qty.IsPositive() {
			return shared.Validation("item %d holds no reservation", item.ID)
		}
		// The item's share is claimed before any stock is unreserved.
		claimed, err := st.Procurement().ReleasePRItemReservation(ctx, item.ID, qty)
		if err != nil {
			return err
		}
		if !claimed {
			return fmt.Errorf("purchase request item %d reservation changed: %w", item.ID, shared.ErrStatusConflict)
		}
		key := inventory.Key{ProductID: item.ProductID, WarehouseID: item.WarehouseID}
		released, err := s.stock.Release(ctx, st.Inventory(), key, qty, input.Reason, pr.Number)
		if err != nil {
			return err
		}
		item.ReservedQty = item.ReservedQty.Sub(qty)
		out = item
		return s.audit(ctx, st, actor, "stock.release", ModulePurchaseRequest, pr.ID, map[string]any{
			"number": pr.Number, "item_id": item.ID, "released": released.String(), "reason": string(input.Reason),
		})
	})
	if err != nil {
		return procurement.PRItem{}, err
	}
	return out, nil
}
