package memstore

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-textile/internal/invoicing"
	"github.com/odyssey-erp/odyssey-textile/internal/shared"
)

type invoicingStore struct {
	db *DB
}

var _ invoicing.Store = invoicingStore{}

func (s invoicingStore) CreateInvoice(ctx context.Context, inv invoicing.Invoice) (invoicing.Invoice, error) {
	for _, existing := range s.db.st.invoices {
		if existing.Number == inv.Number {
			return invoicing.Invoice{}, shared.Validation("invoice number %s already used", inv.Number)
		}
	}
	inv.ID = s.db.st.next()
	inv.CreatedAt = s.db.now()
	s.db.st.invoices[inv.ID] = inv
	return inv, nil
}

func (s invoicingStore) GetInvoice(ctx context.Context, id int64) (invoicing.Invoice, error) {
	inv, ok := s.db.st.invoices[id]
	if !ok {
		return invoicing.Invoice{}, fmt.Errorf("invoice %d: %w", id, shared.ErrNotFound)
	}
	return inv, nil
}

func (s invoicingStore) UpdateInvoiceStatus(ctx context.Context, id int64, from, to invoicing.Status) error {
	inv, ok := s.db.st.invoices[id]
	if !ok {
		return fmt.Errorf("invoice %d: %w", id, shared.ErrNotFound)
	}
	if err := conflict("invoices", id, string(inv.Status), string(from), string(to)); err != nil {
		return err
	}
	inv.Status = to
	s.db.st.invoices[id] = inv
	return nil
}

func (s invoicingStore) MarkIssued(ctx context.Context, id int64, at time.Time) error {
	inv, ok := s.db.st.invoices[id]
	if !ok {
		return fmt.Errorf("invoice %d: %w", id, shared.ErrNotFound)
	}
	inv.IssuedAt = &at
	s.db.st.invoices[id] = inv
	return nil
}

func (s invoicingStore) ApplyPayment(ctx context.Context, id int64, from, to invoicing.Status, amount decimal.Decimal) error {
	inv, ok := s.db.st.invoices[id]
	if !ok {
		return fmt.Errorf("invoice %d: %w", id, shared.ErrNotFound)
	}
	if inv.Status != from {
		return shared.Conflict("invoices", id, string(inv.Status), string(to))
	}
	if inv.Paid.Add(amount).GreaterThan(inv.Total) {
		return shared.Validation("payment %s exceeds balance %s of invoice %s", amount.StringFixed(2), inv.BalanceDue().StringFixed(2), inv.Number)
	}
	inv.Paid = inv.Paid.Add(amount)
	inv.Status = to
	s.db.st.invoices[id] = inv
	return nil
}

func (s invoicingStore) InvoicesForPO(ctx context.Context, poID int64) ([]invoicing.Invoice, error) {
	var out []invoicing.Invoice
	for _, id := range slices.Sorted(maps.Keys(s.db.st.invoices)) {
		inv := s.db.st.invoices[id]
		if inv.Type == invoicing.Inbound && inv.POID != nil && *inv.POID == poID {
			out = append(out, inv)
		}
	}
	return out, nil
}

func (s invoicingStore) DueInvoices(ctx context.Context, asOf time.Time) ([]invoicing.Invoice, error) {
	var out []invoicing.Invoice
	for _, id := range slices.Sorted(maps.Keys(s.db.st.invoices)) {
		inv := s.db.st.invoices[id]
		if inv.Status != invoicing.StatusIssued && inv.Status != invoicing.StatusPartial {
			continue
		}
		if inv.DueDate != nil && inv.DueDate.Before(asOf) {
			out = append(out, inv)
		}
	}
	return out, nil
}

func (s invoicingStore) CreatePayment(ctx context.Context, p invoicing.Payment) (invoicing.Payment, error) {
	for _, existing := range s.db.st.payments {
		if existing.Reference == p.Reference {
			return invoicing.Payment{}, fmt.Errorf("payment %s: %w", p.Reference, shared.ErrAlreadyProcessed)
		}
	}
	p.ID = s.db.st.next()
	p.CreatedAt = s.db.now()
	s.db.st.payments[p.ID] = p
	return p, nil
}

func (s invoicingStore) PaymentByReference(ctx context.Context, reference string) (invoicing.Payment, error) {
	for _, p := range s.db.st.payments {
		if p.Reference == reference {
			return p, nil
		}
	}
	return invoicing.Payment{}, fmt.Errorf("payment %s: %w", reference, shared.ErrNotFound)
}

func (s invoicingStore) UpdatePaymentStatus(ctx context.Context, id int64, from, to invoicing.PaymentStatus) error {
	p, ok := s.db.st.payments[id]
	if !ok {
		return fmt.Errorf("payment %d: %w", id, shared.ErrNotFound)
	}
	if err := conflict("payments", id, string(p.Status), string(from), string(to)); err != nil {
		return err
	}
	p.Status = to
	if to == invoicing.PaymentSucceeded {
		at := s.db.now()
		p.SettledAt = &at
	}
	s.db.st.payments[id] = p
	return nil
}
