// Package ledger posts balanced double-entry journals for document transitions.
package ledger

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-textile/internal/shared"
)

// Bucket is a logical account resolved to a chart account through account_mappings.
type Bucket string

const (
	BucketInventory          Bucket = "inventory"
	BucketExpense            Bucket = "expense"
	BucketAccountsPayable    Bucket = "accounts_payable"
	BucketAccountsReceivable Bucket = "accounts_receivable"
	BucketRevenue            Bucket = "revenue"
	BucketCash               Bucket = "cash"
)

// Buckets lists every bucket a posting may use.
func Buckets() []Bucket {
	return []Bucket{BucketInventory, BucketExpense, BucketAccountsPayable, BucketAccountsReceivable, BucketRevenue, BucketCash}
}

// Kind names the transition that produced an entry. Together with the document
// reference it forms the idempotency key of the entry.
type Kind string

const (
	KindPOConfirm     Kind = "po.confirm"
	KindPOCancel      Kind = "po.cancel"
	KindGRNReject     Kind = "grn.reject"
	KindInvoiceIssue  Kind = "invoice.issue"
	KindInvoiceVoid   Kind = "invoice.void"
	KindPaymentSettle Kind = "payment.settle"
)

// Side is the column an amount lands in.
type Side string

const (
	Debit  Side = "DEBIT"
	Credit Side = "CREDIT"
)

// Amount is one bucket movement implied by a transition.
type Amount struct {
	Bucket Bucket
	Side   Side
	Value  decimal.Decimal
}

// Dr builds a debit amount.
func Dr(b Bucket, v decimal.Decimal) Amount { return Amount{Bucket: b, Side: Debit, Value: v} }

// Cr builds a credit amount.
func Cr(b Bucket, v decimal.Decimal) Amount { return Amount{Bucket: b, Side: Credit, Value: v} }

// PostingRequest is a validated transition and the amounts it implies.
type PostingRequest struct {
	Reference string
	Kind      Kind
	Date      time.Time
	Memo      string
	PostedBy  int64
	Amounts   []Amount
}

// ReversalRequest mirrors the entry posted for (Reference, Original).
type ReversalRequest struct {
	Reference string
	Original  Kind
	Kind      Kind
	Date      time.Time
	Memo      string
	PostedBy  int64
}

// Entry is an immutable journal entry.
type Entry struct {
	ID         int64     `json:"id"`
	Reference  string    `json:"reference"`
	Kind       Kind      `json:"kind"`
	PeriodID   int64     `json:"period_id"`
	Date       time.Time `json:"date"`
	Memo       string    `json:"memo"`
	PostedBy   int64     `json:"posted_by"`
	ReversalOf *int64    `json:"reversal_of,omitempty"`
	PostedAt   time.Time `json:"posted_at"`
	Lines      []Line    `json:"lines"`
}

// Totals sums both columns.
func (e Entry) Totals() (debit, credit decimal.Decimal) {
	debit, credit = decimal.Zero, decimal.Zero
	for _, l := range e.Lines {
		debit = debit.Add(l.Debit)
		credit = credit.Add(l.Credit)
	}
	return debit, credit
}

// Line is one account movement of an entry.
type Line struct {
	ID        int64           `json:"id"`
	EntryID   int64           `json:"entry_id"`
	AccountID int64           `json:"account_id"`
	Bucket    Bucket          `json:"bucket"`
	Debit     decimal.Decimal `json:"debit"`
	Credit    decimal.Decimal `json:"credit"`
}

// Result tells a fresh posting apart from a retried one.
type Result struct {
	Entry    Entry
	Replayed bool
	// Skipped is set by Reverse when there was nothing to reverse.
	Skipped bool
}

// PeriodStatus enumerates fiscal period states.
type PeriodStatus string

const (
	PeriodOpen   PeriodStatus = "OPEN"
	PeriodClosed PeriodStatus = "CLOSED"
	PeriodLocked PeriodStatus = "LOCKED"
)

// Period is a fiscal period.
type Period struct {
	ID        int64
	Code      string
	StartDate time.Time
	EndDate   time.Time
	Status    PeriodStatus
}

// Covers reports whether the calendar day of date falls within the period.
func (p Period) Covers(date time.Time) bool {
	d := day(date)
	return !d.Before(day(p.StartDate)) && !d.After(day(p.EndDate))
}

func day(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// Balance is an account balance derived from journal lines.
type Balance struct {
	AccountID int64           `json:"account_id"`
	Code      string          `json:"code"`
	Name      string          `json:"name"`
	Debit     decimal.Decimal `json:"debit"`
	Credit    decimal.Decimal `json:"credit"`
}

// Net is debit minus credit.
func (b Balance) Net() decimal.Decimal { return b.Debit.Sub(b.Credit) }

// Imbalance is an entry found unbalanced by the integrity check.
type Imbalance struct {
	EntryID   int64
	Reference string
	Kind      Kind
	Debit     decimal.Decimal
	Credit    decimal.Decimal
}

var (
	// ErrNoOpenPeriod is returned when no open period covers the posting date.
	ErrNoOpenPeriod = fmt.Errorf("ledger: no open period for posting date: %w", shared.ErrValidation)
	// ErrUnmappedBucket is returned when a bucket has no account mapping.
	ErrUnmappedBucket = errors.New("ledger: bucket has no account mapping")
)
