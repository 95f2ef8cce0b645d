package invoicing

import (
	"context"
	"errors"
	"fmt"
	"time"

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

const invoiceColumns = `id, number, type, counterparty_id, po_id, department, status, total_amount, paid_amount, due_date, issued_at, created_at`

func scanInvoice(row pgx.Row) (Invoice, error) {
	var inv Invoice
	err := row.Scan(&inv.ID, &inv.Number, &inv.Type, &inv.CounterpartyID, &inv.POID, &inv.Department, &inv.Status,
		&inv.Total, &inv.Paid, &inv.DueDate, &inv.IssuedAt, &inv.CreatedAt)
	return inv, err
}

// CreateInvoice inserts a draft invoice.
func (r *Repository) CreateInvoice(ctx context.Context, inv Invoice) (Invoice, error) {
	err := r.db.QueryRow(ctx, `INSERT INTO invoices (number, type, counterparty_id, po_id, department, status, total_amount, paid_amount, due_date)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9) RETURNING id, created_at`,
		inv.Number, string(inv.Type), inv.CounterpartyID, inv.POID, inv.Department, string(inv.Status), inv.Total, inv.Paid, inv.DueDate).
		Scan(&inv.ID, &inv.CreatedAt)
	if err != nil {
		if db.IsUniqueViolation(err) {
			return Invoice{}, shared.Validation("invoice number %s already used", inv.Number)
		}
		return Invoice{}, fmt.Errorf("invoicing: insert invoice: %w", err)
	}
	return inv, nil
}

// GetInvoice loads one invoice.
func (r *Repository) GetInvoice(ctx context.Context, id int64) (Invoice, error) {
	inv, err := scanInvoice(r.db.QueryRow(ctx, `SELECT `+invoiceColumns+` FROM invoices WHERE id=$1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return Invoice{}, fmt.Errorf("invoice %d: %w", id, shared.ErrNotFound)
	}
	return inv, err
}

// UpdateInvoiceStatus moves an invoice from one status to another.
func (r *Repository) UpdateInvoiceStatus(ctx context.Context, id int64, from, to Status) error {
	return db.CompareAndSetStatus(ctx, r.db, "invoices", id, string(from), string(to))
}

// MarkIssued stamps the issue time.
func (r *Repository) MarkIssued(ctx context.Context, id int64, at time.Time) error {
	_, err := r.db.Exec(ctx, `UPDATE invoices SET issued_at=$2 WHERE id=$1`, id, at)
	return err
}

// ApplyPayment adds to paid_amount while moving the status.
func (r *Repository) ApplyPayment(ctx context.Context, id int64, from, to Status, amount decimal.Decimal) error {
	tag, err := r.db.Exec(ctx, `UPDATE invoices SET paid_amount = paid_amount + $4, status=$3, updated_at=NOW()
WHERE id=$1 AND status=$2 AND paid_amount + $4 <= total_amount`, id, string(from), string(to), amount)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 1 {
		return nil
	}
	current, err := r.GetInvoice(ctx, id)
	if err != nil {
		return err
	}
	if current.Status == from {
		return shared.Validation("payment %s exceeds balance %s of invoice %s", amount.StringFixed(2), current.BalanceDue().StringFixed(2), current.Number)
	}
	return shared.Conflict("invoices", id, string(current.Status), string(to))
}

// InvoicesForPO lists the invoices raised against a purchase order.
func (r *Repository) InvoicesForPO(ctx context.Context, poID int64) ([]Invoice, error) {
	rows, err := r.db.Query(ctx, `SELECT `+invoiceColumns+` FROM invoices WHERE po_id=$1 AND type='INBOUND' ORDER BY id`, poID)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (Invoice, error) { return scanInvoice(row) })
}

// DueInvoices lists open invoices past their due date.
func (r *Repository) DueInvoices(ctx context.Context, asOf time.Time) ([]Invoice, error) {
	rows, err := r.db.Query(ctx, `SELECT `+invoiceColumns+` FROM invoices
WHERE status IN ('ISSUED', 'PARTIAL') AND due_date < $1::date ORDER BY due_date, id`, asOf)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (Invoice, error) { return scanInvoice(row) })
}

// CreatePayment registers a payment. A reused reference yields
// shared.ErrAlreadyProcessed.
func (r *Repository) CreatePayment(ctx context.Context, p Payment) (Payment, error) {
	err := r.db.QueryRow(ctx, `INSERT INTO payments (invoice_id, reference, amount, status, settled_at)
VALUES ($1, $2, $3, $4, $5) RETURNING id, created_at`,
		p.InvoiceID, p.Reference, p.Amount, string(p.Status), p.SettledAt).Scan(&p.ID, &p.CreatedAt)
	if err != nil {
		if db.IsUniqueViolation(err) {
			return Payment{}, fmt.Errorf("payment %s: %w", p.Reference, shared.ErrAlreadyProcessed)
		}
		return Payment{}, fmt.Errorf("invoicing: insert payment: %w", err)
	}
	return p, nil
}

// PaymentByReference finds a payment by its gateway reference.
func (r *Repository) PaymentByReference(ctx context.Context, reference string) (Payment, error) {
	var p Payment
	err := r.db.QueryRow(ctx, `SELECT id, invoice_id, reference, amount, status, created_at, settled_at
FROM payments WHERE reference=$1`, reference).
		Scan(&p.ID, &p.InvoiceID, &p.Reference, &p.Amount, &p.Status, &p.CreatedAt, &p.SettledAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Payment{}, fmt.Errorf("payment %s: %w", reference, shared.ErrNotFound)
	}
	return p, err
}

// UpdatePaymentStatus moves a payment from one status to another.
func (r *Repository) UpdatePaymentStatus(ctx context.Context, id int64, from, to PaymentStatus) error {
	if err := db.CompareAndSetStatus(ctx, r.db, "payments", id, string(from), string(to)); err != nil {
		return err
	}
	if to == PaymentSucceeded {
		_, err := r.db.Exec(ctx, `UPDATE payments SET settled_at=NOW() WHERE id=$1`, id)
		return err
	}
	return nil
}
