package memstore

import (
	"context"
	"fmt"
	"slices"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-textile/internal/procurement"
	"github.com/odyssey-erp/odyssey-textile/internal/shared"
)

type procurementStore struct {
	db *DB
}

var _ procurement.Store = procurementStore{}

func (s procurementStore) CreatePR(ctx context.Context, pr procurement.PurchaseRequest) (procurement.PurchaseRequest, error) {
	if err := s.db.fail("procurement.CreatePR"); err != nil {
		return procurement.PurchaseRequest{}, err
	}
	st := s.db.st
	for _, existing := range st.prs {
		if existing.Number == pr.Number {
			return procurement.PurchaseRequest{}, shared.Validation("purchase request number %s already used", pr.Number)
		}
	}
	pr.ID = st.next()
	pr.CreatedAt = s.db.now()
	pr.Items = slices.Clone(pr.Items)
	for i := range pr.Items {
		pr.Items[i].ID = st.next()
		pr.Items[i].PRID = pr.ID
	}
	st.prs[pr.ID] = pr
	pr.Items = slices.Clone(pr.Items)
	return pr, nil
}

func (s procurementStore) GetPR(ctx context.Context, id int64) (procurement.PurchaseRequest, error) {
	pr, ok := s.db.st.prs[id]
	if !ok {
		return procurement.PurchaseRequest{}, fmt.Errorf("purchase request %d: %w", id, shared.ErrNotFound)
	}
	pr.Items = slices.Clone(pr.Items)
	return pr, nil
}

func (s procurementStore) UpdatePRStatus(ctx context.Context, id int64, from, to procurement.PRStatus) error {
	if err := s.db.fail("procurement.UpdatePRStatus"); err != nil {
		return err
	}
	pr, ok := s.db.st.prs[id]
	if !ok {
		return fmt.Errorf("purchase request %d: %w", id, shared.ErrNotFound)
	}
	if err := conflict("purchase_requests", id, string(pr.Status), string(from), string(to)); err != nil {
		return err
	}
	pr.Status = to
	s.db.st.prs[id] = pr
	return nil
}

func (s procurementStore) UpdatePRItem(ctx context.Context, item procurement.PRItem) error {
	for id, pr := range s.db.st.prs {
		for i := range pr.Items {
			if pr.Items[i].ID == item.ID {
				pr.Items[i].Status = item.Status
				pr.Items[i].ReservedQty = item.ReservedQty
				s.db.st.prs[id] = pr
				return nil
			}
		}
	}
	return fmt.Errorf("purchase request item %d: %w", item.ID, shared.ErrNotFound)
}

func (s procurementStore) MarkPRItemConverted(ctx context.Context, id int64) error {
	if err := s.db.fail("procurement.MarkPRItemConverted"); err != nil {
		return err
	}
	for prID, pr := range s.db.st.prs {
		for i := range pr.Items {
			if pr.Items[i].ID != id {
				continue
			}
			if err := conflict("purchase_request_items", id, string(pr.Items[i].Status), string(procurement.PRItemApproved), string(procurement.PRItemConverted)); err != nil {
				return err
			}
			pr.Items[i].Status = procurement.PRItemConverted
			s.db.st.prs[prID] = pr
			return nil
		}
	}
	return fmt.Errorf("purchase request item %d: %w", id, shared.ErrNotFound)
}

func (s procurementStore) ReleasePRItemReservation(ctx context.Context, id int64, qty decimal.Decimal) (bool, error) {
	if err := s.db.fail("procurement.ReleasePRItemReservation"); err != nil {
		return false, err
	}
	for prID, pr := range s.db.st.prs {
		for i := range pr.Items {
			it := &pr.Items[i]
			if it.ID != id {
				continue
			}
			if it.ReservedQty.LessThan(qty) {
				return false, nil
			}
			it.ReservedQty = it.ReservedQty.Sub(qty)
			s.db.st.prs[prID] = pr
			return true, nil
		}
	}
	return false, nil
}

func (s procurementStore) CreatePO(ctx context.Context, po procurement.PurchaseOrder) (procurement.PurchaseOrder, error) {
	if err := s.db.fail("procurement.CreatePO"); err != nil {
		return procurement.PurchaseOrder{}, err
	}
	st := s.db.st
	for _, existing := range st.pos {
		if existing.Number == po.Number {
			return procurement.PurchaseOrder{}, shared.Validation("purchase order number %s already used", po.Number)
		}
	}
	po.ID = st.next()
	po.CreatedAt = s.db.now()
	po.Items = slices.Clone(po.Items)
	for i := range po.Items {
		po.Items[i].ID = st.next()
		po.Items[i].POID = po.ID
	}
	st.pos[po.ID] = po
	po.Items = slices.Clone(po.Items)
	return po, nil
}

func (s procurementStore) GetPO(ctx context.Context, id int64) (procurement.PurchaseOrder, error) {
	po, ok := s.db.st.pos[id]
	if !ok {
		return procurement.PurchaseOrder{}, fmt.Errorf("purchase order %d: %w", id, shared.ErrNotFound)
	}
	po.Items = slices.Clone(po.Items)
	return po, nil
}

func (s procurementStore) GetPOForUpdate(ctx context.Context, id int64) (procurement.PurchaseOrder, error) {
	return s.GetPO(ctx, id)
}

func (s procurementStore) UpdatePOStatus(ctx context.Context, id int64, from, to procurement.POStatus) error {
	if err := s.db.fail("procurement.UpdatePOStatus"); err != nil {
		return err
	}
	po, ok := s.db.st.pos[id]
	if !ok {
		return fmt.Errorf("purchase order %d: %w", id, shared.ErrNotFound)
	}
	if err := conflict("purchase_orders", id, string(po.Status), string(from), string(to)); err != nil {
		return err
	}
	po.Status = to
	s.db.st.pos[id] = po
	return nil
}

func (s procurementStore) SetPOPaymentStatus(ctx context.Context, id int64, status procurement.PaymentStatus) error {
	po, ok := s.db.st.pos[id]
	if !ok {
		return fmt.Errorf("purchase order %d: %w", id, shared.ErrNotFound)
	}
	po.PaymentStatus = status
	s.db.st.pos[id] = po
	return nil
}

func (s procurementStore) AddReceivedQty(ctx context.Context, poItemID int64, qty decimal.Decimal) (bool, error) {
	for id, po := range s.db.st.pos {
		for i := range po.Items {
			it := &po.Items[i]
			if it.ID != poItemID {
				continue
			}
			if it.ReceivedQty.Add(qty).GreaterThan(it.Quantity) {
				return false, nil
			}
			it.ReceivedQty = it.ReceivedQty.Add(qty)
			s.db.st.pos[id] = po
			return true, nil
		}
	}
	return false, nil
}

func (s procurementStore) AddRejectedValue(ctx context.Context, poItemID int64, value decimal.Decimal) error {
	for id, po := range s.db.st.pos {
		for i := range po.Items {
			if po.Items[i].ID == poItemID {
				po.Items[i].RejectedValue = po.Items[i].RejectedValue.Add(value)
				s.db.st.pos[id] = po
				return nil
			}
		}
	}
	return fmt.Errorf("purchase order item %d: %w", poItemID, shared.ErrNotFound)
}

func (s procurementStore) LinkPRItem(ctx context.Context, link procurement.PRItemLink) error {
	s.db.st.links = append(s.db.st.links, link)
	return nil
}

func (s procurementStore) LinksForPR(ctx context.Context, prID int64) ([]procurement.PRItemLink, error) {
	pr, ok := s.db.st.prs[prID]
	if !ok {
		return nil, nil
	}
	var out []procurement.PRItemLink
	for _, l := range s.db.st.links {
		if _, mine := pr.Item(l.PRItemID); mine {
			out = append(out, l)
		}
	}
	return out, nil
}

func (s procurementStore) AppendPOEvent(ctx context.Context, ev procurement.POEvent) error {
	ev.ID = s.db.st.next()
	s.db.st.poEvents = append(s.db.st.poEvents, ev)
	return nil
}

func (s procurementStore) POEvents(ctx context.Context, poID int64) ([]procurement.POEvent, error) {
	var out []procurement.POEvent
	for _, ev := range s.db.st.poEvents {
		if ev.POID == poID {
			out = append(out, ev)
		}
	}
	return out, nil
}

func (s procurementStore) CreateGRN(ctx context.Context, grn procurement.GoodsReceipt) (procurement.GoodsReceipt, error) {
	st := s.db.st
	grn.ID = st.next()
	grn.ReceivedAt = s.db.now()
	grn.Items = slices.Clone(grn.Items)
	for i := range grn.Items {
		grn.Items[i].ID = st.next()
		grn.Items[i].GRNID = grn.ID
	}
	st.grns[grn.ID] = grn
	grn.Items = slices.Clone(grn.Items)
	return grn, nil
}

func (s procurementStore) GetGRN(ctx context.Context, id int64) (procurement.GoodsReceipt, error) {
	grn, ok := s.db.st.grns[id]
	if !ok {
		return procurement.GoodsReceipt{}, fmt.Errorf("goods receipt %d: %w", id, shared.ErrNotFound)
	}
	grn.Items = slices.Clone(grn.Items)
	return grn, nil
}

func (s procurementStore) GetGRNForUpdate(ctx context.Context, id int64) (procurement.GoodsReceipt, error) {
	return s.GetGRN(ctx, id)
}

func (s procurementStore) UpdateGRNStatus(ctx context.Context, id int64, from, to procurement.GRNStatus) error {
	grn, ok := s.db.st.grns[id]
	if !ok {
		return fmt.Errorf("goods receipt %d: %w", id, shared.ErrNotFound)
	}
	if err := conflict("goods_receipts", id, string(grn.Status), string(from), string(to)); err != nil {
		return err
	}
	grn.Status = to
	s.db.st.grns[id] = grn
	return nil
}

func (s procurementStore) UpdateGRNItem(ctx context.Context, item procurement.GRNItem) error {
	grn, ok := s.db.st.grns[item.GRNID]
	if !ok {
		return fmt.Errorf("goods receipt %d: %w", item.GRNID, shared.ErrNotFound)
	}
	for i := range grn.Items {
		if grn.Items[i].ID == item.ID {
			grn.Items[i].ReceivedQty = item.ReceivedQty
			grn.Items[i].AcceptedQty = item.AcceptedQty
			grn.Items[i].RejectedQty = item.RejectedQty
			grn.Items[i].Inspected = item.Inspected
			s.db.st.grns[item.GRNID] = grn
			return nil
		}
	}
	return fmt.Errorf("goods receipt item %d: %w", item.ID, shared.ErrNotFound)
}
