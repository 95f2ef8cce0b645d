package workflow

import (
	"context"
	"fmt"

	"github.com/odyssey-erp/odyssey-textile/internal/authz"
	"github.com/odyssey-erp/odyssey-textile/internal/fsm"
	"github.com/odyssey-erp/odyssey-textile/internal/inventory"
	"github.com/odyssey-erp/odyssey-textile/internal/ledger"
	"github.com/odyssey-erp/odyssey-textile/internal/procurement"
	"github.com/odyssey-erp/odyssey-textile/internal/shared"
)

// CreateGRNInput records a delivery against an open order.
type CreateGRNInput struct {
	Number string                    `json:"number"`
	Note   string                    `json:"note"`
	Lines  []procurement.ReceiptLine `json:"lines" validate:"required,min=1,dive"`
}

// CreateGoodsReceipt drafts a receipt for a delivery.
func (s *Service) CreateGoodsReceipt(ctx context.Context, actor authz.Actor, poID int64, input CreateGRNInput) (procurement.GoodsReceipt, error) {
	var created procurement.GoodsReceipt
	_, err := s.transact(ctx, ModuleGoodsReceipt, "create", func(ctx context.Context, st Stores, box *outbox) error {
		po, err := st.Procurement().GetPO(ctx, poID)
		if err != nil {
			return err
		}
		if err := s.authorize(actor, authz.ActionReceiveGoods, po.Department); err != nil {
			return err
		}
		now := s.now()
		grn, err := procurement.NewGoodsReceipt(po, defaultString(input.Number, generateNumber("GRN", now)), input.Lines)
		if err != nil {
			return err
		}
		grn.ReceivedAt = now
		grn.Note = input.Note
		if created, err = st.Procurement().CreateGRN(ctx, grn); err != nil {
			return err
		}
		box.add(ModuleGoodsReceipt, created.ID, created.Number, "create", string(created.Status), po.Department, actor, now)
		return s.audit(ctx, st, actor, "grn.create", ModuleGoodsReceipt, created.ID, map[string]any{
			"number": created.Number, "po_number": po.Number,
		})
	})
	if err != nil {
		return procurement.GoodsReceipt{}, err
	}
	return created, nil
}

// UpdateReceivedQuantities corrects the delivered quantities of a draft.
func (s *Service) UpdateReceivedQuantities(ctx context.Context, actor authz.Actor, grnID int64, lines []procurement.ReceiptLine) (procurement.GoodsReceipt, error) {
	var out procurement.GoodsReceipt
	_, err := s.transact(ctx, ModuleGoodsReceipt, "update_received", func(ctx context.Context, st Stores, box *outbox) error {
		grn, po, err := s.loadReceipt(ctx, st, grnID)
		if err != nil {
			return err
		}
		if err := s.authorize(actor, authz.ActionReceiveGoods, po.Department); err != nil {
			return err
		}
		if err := procurement.ApplyReceived(&grn, lines); err != nil {
			return err
		}
		if err := s.saveItems(ctx, st, grn); err != nil {
			return err
		}
		out = grn
		return s.audit(ctx, st, actor, "grn.update_received", ModuleGoodsReceipt, grn.ID, map[string]any{"number": grn.Number, "lines": len(lines)})
	})
	return out, err
}

// StartInspection moves a draft receipt into quality inspection.
func (s *Service) StartInspection(ctx context.Context, actor authz.Actor, grnID int64) (Result[procurement.GoodsReceipt], error) {
	return s.moveReceipt(ctx, actor, grnID, procurement.EventInspect, authz.ActionInspectGoods)
}

// ReworkGoodsReceipt sends a receipt under inspection back to draft so the
// received quantities can be corrected.
func (s *Service) ReworkGoodsReceipt(ctx context.Context, actor authz.Actor, grnID int64) (Result[procurement.GoodsReceipt], error) {
	return s.moveReceipt(ctx, actor, grnID, procurement.EventRework, authz.ActionInspectGoods)
}

func (s *Service) moveReceipt(ctx context.Context, actor authz.Actor, grnID int64, ev fsm.Event, action authz.Action) (Result[procurement.GoodsReceipt], error) {
	var out procurement.GoodsReceipt
	replayed, err := s.transact(ctx, ModuleGoodsReceipt, ev, func(ctx context.Context, st Stores, box *outbox) error {
		grn, po, err := s.loadReceipt(ctx, st, grnID)
		if err != nil {
			return err
		}
		if err := s.authorize(actor, action, po.Department); err != nil {
			return err
		}
		out = grn
		if procurement.GRNMachine.Reached(grn.Status, ev) {
			box.replayed = true
			return nil
		}
		from := grn.Status
		if grn.Status, err = procurement.GRNMachine.Fire(grn, from, ev); err != nil {
			return err
		}
		if err := st.Procurement().UpdateGRNStatus(ctx, grn.ID, from, grn.Status); err != nil {
			return err
		}
		out = grn
		box.add(ModuleGoodsReceipt, grn.ID, grn.Number, ev, string(grn.Status), po.Department, actor, s.now())
		return s.audit(ctx, st, actor, "grn."+string(ev), ModuleGoodsReceipt, grn.ID, map[string]any{
			"number": grn.Number, "from": string(from), "to": string(grn.Status),
		})
	})
	return Result[procurement.GoodsReceipt]{Document: out, Replayed: replayed}, err
}

// RecordInspection stores accepted and rejected quantities per line.
func (s *Service) RecordInspection(ctx context.Context, actor authz.Actor, grnID int64, results []procurement.InspectionResult) (procurement.GoodsReceipt, error) {
	var out procurement.GoodsReceipt
	_, err := s.transact(ctx, ModuleGoodsReceipt, "inspect_line", func(ctx context.Context, st Stores, box *outbox) error {
		grn, po, err := s.loadReceipt(ctx, st, grnID)
		if err != nil {
			return err
		}
		if err := s.authorize(actor, authz.ActionInspectGoods, po.Department); err != nil {
			return err
		}
		if err := procurement.ApplyInspection(&grn, results); err != nil {
			return err
		}
		if err := s.saveItems(ctx, st, grn); err != nil {
			return err
		}
		out = grn
		accepted, rejected := grn.Totals()
		return s.audit(ctx, st, actor, "grn.inspect_line", ModuleGoodsReceipt, grn.ID, map[string]any{
			"number": grn.Number, "accepted": accepted.String(), "rejected": rejected.String(),
		})
	})
	return out, err
}

// AcceptGoodsReceipt closes inspection. Accepted goods enter stock, the
// order's received quantities and status advance, and rejected goods are
// credited back against the payable. The receipt row stays locked for the
// whole unit of work so a concurrent accept waits and then replays.
func (s *Service) AcceptGoodsReceipt(ctx context.Context, actor authz.Actor, grnID int64) (Result[procurement.GoodsReceipt], error) {
	var out procurement.GoodsReceipt
	replayed, err := s.transact(ctx, ModuleGoodsReceipt, procurement.EventAccept, func(ctx context.Context, st Stores, box *outbox) error {
		grn, err := st.Procurement().GetGRNForUpdate(ctx, grnID)
		if err != nil {
			return err
		}
		po, err := st.Procurement().GetPO(ctx, grn.POID)
		if err != nil {
			return err
		}
		if err := s.authorize(actor, authz.ActionAcceptGoods, po.Department); err != nil {
			return err
		}
		out = grn
		if procurement.GRNMachine.Terminal(grn.Status) {
			box.replayed = true
			return nil
		}
		ev := procurement.InspectionEvent(grn)
		from := grn.Status
		if grn.Status, err = procurement.GRNMachine.Fire(grn, from, ev); err != nil {
			return err
		}
		if err := st.Procurement().UpdateGRNStatus(ctx, grn.ID, from, grn.Status); err != nil {
			return err
		}
		out = grn

		for _, it := range grn.Items {
			line, ok := po.Item(it.POItemID)
			if !ok {
				return fmt.Errorf("receipt %s line %d: order line %d: %w", grn.Number, it.ID, it.POItemID, shared.ErrNotFound)
			}
			if it.ReceivedQty.IsZero() {
				continue
			}
			if line.Category != procurement.CategoryExpense {
				key := inventory.Key{ProductID: it.ProductID, WarehouseID: line.WarehouseID}
				if it.AcceptedQty.IsPositive() {
					if err := s.stock.Receive(ctx, st.Inventory(), key, it.AcceptedQty, grn.Number); err != nil {
						return err
					}
				}
				if _, err := s.stock.ClearIncoming(ctx, st.Inventory(), key, it.ReceivedQty, grn.Number); err != nil {
					return err
				}
			}
			added, err := st.Procurement().AddReceivedQty(ctx, it.POItemID, it.ReceivedQty)
			if err != nil {
				return err
			}
			if !added {
				return shared.Validation("order line %d cannot take %s more", it.POItemID, it.ReceivedQty)
			}
			if value := it.RejectedValue(); value.IsPositive() {
				if err := st.Procurement().AddRejectedValue(ctx, it.POItemID, value); err != nil {
					return err
				}
			}
		}

		meta := map[string]any{"number": grn.Number, "po_number": po.Number, "status": string(grn.Status)}
		if value := grn.RejectedValue(); value.IsPositive() {
			posted, err := s.post(ctx, st, actor, grn.Number, ledger.KindGRNReject, "Goods rejected on "+grn.Number, rejectionAmounts(po, grn))
			if err != nil {
				return err
			}
			meta["rejected_value"] = value.StringFixed(2)
			meta["entry_id"] = posted.Entry.ID
		}

		if po, err = st.Procurement().GetPO(ctx, po.ID); err != nil {
			return err
		}
		receiptEv := procurement.ReceiptEvent(po)
		poFrom := po.Status
		if po.Status, err = procurement.POMachine.Fire(po, poFrom, receiptEv); err != nil {
			return err
		}
		if err := st.Procurement().UpdatePOStatus(ctx, po.ID, poFrom, po.Status); err != nil {
			return err
		}
		if err := s.poEvent(ctx, st, po, string(receiptEv), poFrom, actor, map[string]any{"grn_number": grn.Number}); err != nil {
			return err
		}

		now := s.now()
		box.add(ModuleGoodsReceipt, grn.ID, grn.Number, ev, string(grn.Status), po.Department, actor, now)
		box.add(ModulePurchaseOrder, po.ID, po.Number, receiptEv, string(po.Status), po.Department, actor, now)
		if err := s.rollPOPayment(ctx, st, actor, po.ID, box); err != nil {
			return err
		}
		return s.audit(ctx, st, actor, "grn."+string(ev), ModuleGoodsReceipt, grn.ID, meta)
	})
	return Result[procurement.GoodsReceipt]{Document: out, Replayed: replayed}, err
}

func (s *Service) loadReceipt(ctx context.Context, st Stores, grnID int64) (procurement.GoodsReceipt, procurement.PurchaseOrder, error) {
	grn, err := st.Procurement().GetGRN(ctx, grnID)
	if err != nil {
		return procurement.GoodsReceipt{}, procurement.PurchaseOrder{}, err
	}
	po, err := st.Procurement().GetPO(ctx, grn.POID)
	if err != nil {
		return procurement.GoodsReceipt{}, procurement.PurchaseOrder{}, err
	}
	return grn, po, nil
}

func (s *Service) saveItems(ctx context.Context, st Stores, grn procurement.GoodsReceipt) error {
	for _, it := range grn.Items {
		if err := st.Procurement().UpdateGRNItem(ctx, it); err != nil {
			return err
		}
	}
	return nil
}
