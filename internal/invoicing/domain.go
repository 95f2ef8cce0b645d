// Package invoicing holds supplier and customer invoices and the payments
// settling them.
package invoicing

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// InvoiceType tells customer invoices from supplier invoices.
type InvoiceType string

const (
	// Outbound invoices are issued to customers.
	Outbound InvoiceType = "OUTBOUND"
	// Inbound invoices are received from suppliers against a purchase order.
	Inbound InvoiceType = "INBOUND"
)

// Status enumerates invoice statuses.
type Status string

const (
	StatusDraft     Status = "DRAFT"
	StatusIssued    Status = "ISSUED"
	StatusPartial   Status = "PARTIAL"
	StatusOverdue   Status = "OVERDUE"
	StatusPaid      Status = "PAID"
	StatusVoid      Status = "VOID"
	StatusCancelled Status = "CANCELLED"
)

// Invoice model.
type Invoice struct {
	ID             int64           `json:"id"`
	Number         string          `json:"number"`
	Type           InvoiceType     `json:"type"`
	CounterpartyID int64           `json:"counterparty_id"`
	POID           *int64          `json:"po_id,omitempty"`
	Department     string          `json:"department"`
	Status         Status          `json:"status"`
	Total          decimal.Decimal `json:"total"`
	Paid           decimal.Decimal `json:"paid"`
	DueDate        *time.Time      `json:"due_date,omitempty"`
	IssuedAt       *time.Time      `json:"issued_at,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
}

// BalanceDue is the unpaid remainder.
func (inv Invoice) BalanceDue() decimal.Decimal {
	return inv.Total.Sub(inv.Paid)
}

// PaymentStatus enumerates payment states.
type PaymentStatus string

const (
	PaymentPending   PaymentStatus = "PENDING"
	PaymentSucceeded PaymentStatus = "SUCCEEDED"
	PaymentFailed    PaymentStatus = "FAILED"
	PaymentVoided    PaymentStatus = "VOIDED"
)

// Payment is one settlement attempt. Reference is the gateway key and is unique.
type Payment struct {
	ID        int64           `json:"id"`
	InvoiceID int64           `json:"invoice_id"`
	Reference string          `json:"reference"`
	Amount    decimal.Decimal `json:"amount"`
	Status    PaymentStatus   `json:"status"`
	CreatedAt time.Time       `json:"created_at"`
	SettledAt *time.Time      `json:"settled_at,omitempty"`
}

// PayoutStatus is the status vocabulary of the payment gateway.
type PayoutStatus string

const (
	PayoutAccepted  PayoutStatus = "ACCEPTED"
	PayoutPending   PayoutStatus = "PENDING"
	PayoutSucceeded PayoutStatus = "SUCCEEDED"
	PayoutFailed    PayoutStatus = "FAILED"
	PayoutVoided    PayoutStatus = "VOIDED"
)

// ParsePayoutStatus accepts gateway statuses in any case.
func ParsePayoutStatus(raw string) (PayoutStatus, bool) {
	s := PayoutStatus(strings.ToUpper(strings.TrimSpace(raw)))
	switch s {
	case PayoutAccepted, PayoutPending, PayoutSucceeded, PayoutFailed, PayoutVoided:
		return s, true
	}
	return "", false
}

// PaymentStatus maps the gateway status onto the local payment status.
func (p PayoutStatus) PaymentStatus() PaymentStatus {
	switch p {
	case PayoutSucceeded:
		return PaymentSucceeded
	case PayoutFailed:
		return PaymentFailed
	case PayoutVoided:
		return PaymentVoided
	default:
		return PaymentPending
	}
}
