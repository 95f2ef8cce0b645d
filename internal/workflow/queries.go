package workflow

import (
	"context"
	"time"

	"github.com/odyssey-erp/odyssey-textile/internal/inventory"
	"github.com/odyssey-erp/odyssey-textile/internal/invoicing"
	"github.com/odyssey-erp/odyssey-textile/internal/ledger"
	"github.com/odyssey-erp/odyssey-textile/internal/procurement"
)

// OrderView is a purchase order with its history and journal.
type OrderView struct {
	procurement.PurchaseOrder
	Events  []procurement.POEvent `json:"events"`
	Entries []ledger.Entry        `json:"entries"`
}

// GetPurchaseRequest loads a purchase request with its items.
func (s *Service) GetPurchaseRequest(ctx context.Context, id int64) (procurement.PurchaseRequest, error) {
	var pr procurement.PurchaseRequest
	err := s.uow.WithTx(ctx, func(ctx context.Context, st Stores) error {
		var err error
		pr, err = st.Procurement().GetPR(ctx, id)
		return err
	})
	return pr, err
}

// GetPurchaseOrder loads an order, its event history and the entries posted
// under its number.
func (s *Service) GetPurchaseOrder(ctx context.Context, id int64) (OrderView, error) {
	var view OrderView
	err := s.uow.WithTx(ctx, func(ctx context.Context, st Stores) error {
		po, err := st.Procurement().GetPO(ctx, id)
		if err != nil {
			return err
		}
		view.PurchaseOrder = po
		if view.Events, err = st.Procurement().POEvents(ctx, id); err != nil {
			return err
		}
		view.Entries, err = st.Ledger().EntriesByReference(ctx, po.Number)
		return err
	})
	return view, err
}

// GetGoodsReceipt loads a receipt with its lines.
func (s *Service) GetGoodsReceipt(ctx context.Context, id int64) (procurement.GoodsReceipt, error) {
	var grn procurement.GoodsReceipt
	err := s.uow.WithTx(ctx, func(ctx context.Context, st Stores) error {
		var err error
		grn, err = st.Procurement().GetGRN(ctx, id)
		return err
	})
	return grn, err
}

// GetInvoice loads an invoice.
func (s *Service) GetInvoice(ctx context.Context, id int64) (invoicing.Invoice, error) {
	var inv invoicing.Invoice
	err := s.uow.WithTx(ctx, func(ctx context.Context, st Stores) error {
		var err error
		inv, err = st.Invoicing().GetInvoice(ctx, id)
		return err
	})
	return inv, err
}

// StockStatus classifies a product over all warehouses.
func (s *Service) StockStatus(ctx context.Context, productID int64) (inventory.ProductStatus, error) {
	var status inventory.ProductStatus
	err := s.uow.WithTx(ctx, func(ctx context.Context, st Stores) error {
		var err error
		status, err = s.stock.Status(ctx, st.Inventory(), productID)
		return err
	})
	return status, err
}

// StockLevel returns one product and warehouse row.
func (s *Service) StockLevel(ctx context.Context, key inventory.Key) (inventory.StockLevel, error) {
	var level inventory.StockLevel
	err := s.uow.WithTx(ctx, func(ctx context.Context, st Stores) error {
		var err error
		level, err = st.Inventory().Level(ctx, key)
		return err
	})
	return level, err
}

// AccountBalance derives the balance of the account mapped to bucket.
func (s *Service) AccountBalance(ctx context.Context, bucket ledger.Bucket, asOf time.Time) (ledger.Balance, error) {
	var b ledger.Balance
	err := s.uow.WithTx(ctx, func(ctx context.Context, st Stores) error {
		var err error
		b, err = s.ledger.BucketBalance(ctx, st.Ledger(), bucket, asOf)
		return err
	})
	return b, err
}

// TrialBalance aggregates every account with activity up to asOf.
func (s *Service) TrialBalance(ctx context.Context, asOf time.Time) ([]ledger.Balance, error) {
	if asOf.IsZero() {
		asOf = s.now()
	}
	var rows []ledger.Balance
	err := s.uow.WithTx(ctx, func(ctx context.Context, st Stores) error {
		var err error
		rows, err = st.Ledger().TrialBalance(ctx, asOf)
		return err
	})
	return rows, err
}

// ScanStock classifies every product carrying replenishment thresholds.
func (s *Service) ScanStock(ctx context.Context) ([]inventory.ProductStatus, error) {
	var out []inventory.ProductStatus
	err := s.uow.WithTx(ctx, func(ctx context.Context, st Stores) error {
		out = nil
		products, err := st.Inventory().TrackedProducts(ctx)
		if err != nil {
			return err
		}
		for _, id := range products {
			status, err := s.stock.Status(ctx, st.Inventory(), id)
			if err != nil {
				return err
			}
			out = append(out, status)
		}
		return nil
	})
	return out, err
}

// UnbalancedEntries lists stored journals whose lines do not net to zero.
func (s *Service) UnbalancedEntries(ctx context.Context) ([]ledger.Imbalance, error) {
	var out []ledger.Imbalance
	err := s.uow.WithTx(ctx, func(ctx context.Context, st Stores) error {
		var err error
		out, err = st.Ledger().UnbalancedEntries(ctx)
		return err
	})
	return out, err
}
