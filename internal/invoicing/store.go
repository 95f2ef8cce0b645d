package invoicing

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// Store is the transaction bound persistence for invoices and payments.
type Store interface {
	CreateInvoice(ctx context.Context, inv Invoice) (Invoice, error)
	GetInvoice(ctx context.Context, id int64) (Invoice, error)
	UpdateInvoiceStatus(ctx context.Context, id int64, from, to Status) error
	MarkIssued(ctx context.Context, id int64, at time.Time) error
	// ApplyPayment adds amount to the paid total and moves the status in one
	// conditional statement; it never lets paid exceed total.
	ApplyPayment(ctx context.Context, id int64, from, to Status, amount decimal.Decimal) error
	// InvoicesForPO lists inbound invoices of a purchase order.
	InvoicesForPO(ctx context.Context, poID int64) ([]Invoice, error)
	// DueInvoices lists ISSUED or PARTIAL invoices due before asOf.
	DueInvoices(ctx context.Context, asOf time.Time) ([]Invoice, error)

	CreatePayment(ctx context.Context, p Payment) (Payment, error)
	PaymentByReference(ctx context.Context, reference string) (Payment, error)
	UpdatePaymentStatus(ctx context.Context, id int64, from, to PaymentStatus) error
}
