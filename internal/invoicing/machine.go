package invoicing

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-textile/internal/fsm"
)

// Invoice events.
const (
	EventIssue       fsm.Event = "issue"
	EventCancel      fsm.Event = "cancel"
	EventPayPartial  fsm.Event = "pay_partial"
	EventPayFull     fsm.Event = "pay_full"
	EventMarkOverdue fsm.Event = "mark_overdue"
	EventVoid        fsm.Event = "void"
)

// Payment events.
const (
	EventSucceed fsm.Event = "succeed"
	EventFail    fsm.Event = "fail"
	EventVoidPay fsm.Event = "void"
)

// Subject is what invoice guards inspect: the invoice plus the payment or
// clock driving the transition.
type Subject struct {
	Invoice Invoice
	Amount  decimal.Decimal
	AsOf    time.Time
}

// Machine drives invoices. An overdue invoice stays overdue until fully paid.
var Machine = fsm.MustBuild(fsm.Definition[Status, Subject]{
	Entity: "invoice",
	Order: []Status{
		StatusDraft, StatusIssued, StatusPartial, StatusOverdue,
		StatusPaid, StatusVoid, StatusCancelled,
	},
	Terminal: []Status{StatusPaid, StatusVoid, StatusCancelled},
	Edges: []fsm.Edge[Status, Subject]{
		{From: []Status{StatusDraft}, Event: EventIssue, To: StatusIssued, Guard: issuable},
		{From: []Status{StatusDraft}, Event: EventCancel, To: StatusCancelled},
		{From: []Status{StatusIssued, StatusPartial}, Event: EventPayPartial, To: StatusPartial, Guard: partialPayment},
		{From: []Status{StatusOverdue}, Event: EventPayPartial, To: StatusOverdue, Guard: partialPayment},
		{From: []Status{StatusIssued, StatusPartial, StatusOverdue}, Event: EventPayFull, To: StatusPaid, Guard: fullPayment},
		{From: []Status{StatusIssued, StatusPartial}, Event: EventMarkOverdue, To: StatusOverdue, Guard: pastDue},
		{From: []Status{StatusIssued}, Event: EventVoid, To: StatusVoid, Guard: unpaid},
	},
})

// PaymentMachine drives payments reported by the gateway.
var PaymentMachine = fsm.MustBuild(fsm.Definition[PaymentStatus, Payment]{
	Entity:   "payment",
	Order:    []PaymentStatus{PaymentPending, PaymentSucceeded, PaymentFailed, PaymentVoided},
	Terminal: []PaymentStatus{PaymentSucceeded, PaymentFailed, PaymentVoided},
	Edges: []fsm.Edge[PaymentStatus, Payment]{
		{From: []PaymentStatus{PaymentPending}, Event: EventSucceed, To: PaymentSucceeded},
		{From: []PaymentStatus{PaymentPending}, Event: EventFail, To: PaymentFailed},
		{From: []PaymentStatus{PaymentPending}, Event: EventVoidPay, To: PaymentVoided},
	},
})

// PaymentEvent maps a terminal payment status onto its event.
func PaymentEvent(status PaymentStatus) (fsm.Event, bool) {
	switch status {
	case PaymentSucceeded:
		return EventSucceed, true
	case PaymentFailed:
		return EventFail, true
	case PaymentVoided:
		return EventVoidPay, true
	}
	return "", false
}

// SettlementEvent picks the event for a payment of amount.
func SettlementEvent(inv Invoice, amount decimal.Decimal) fsm.Event {
	if amount.Equal(inv.BalanceDue()) {
		return EventPayFull
	}
	return EventPayPartial
}

func issuable(s Subject) []string {
	var unmet []string
	if !s.Invoice.Total.IsPositive() {
		unmet = append(unmet, "total must be positive")
	}
	if s.Invoice.DueDate == nil {
		unmet = append(unmet, "due date required")
	}
	return unmet
}

func partialPayment(s Subject) []string {
	var unmet []string
	if !s.Amount.IsPositive() {
		unmet = append(unmet, "payment must be positive")
	}
	if s.Amount.GreaterThanOrEqual(s.Invoice.BalanceDue()) {
		unmet = append(unmet, fmt.Sprintf("payment %s must be below balance %s", s.Amount.StringFixed(2), s.Invoice.BalanceDue().StringFixed(2)))
	}
	return unmet
}

func fullPayment(s Subject) []string {
	if !s.Amount.IsPositive() || !s.Amount.Equal(s.Invoice.BalanceDue()) {
		return []string{fmt.Sprintf("payment %s must equal balance %s", s.Amount.StringFixed(2), s.Invoice.BalanceDue().StringFixed(2))}
	}
	return nil
}

func pastDue(s Subject) []string {
	if s.Invoice.DueDate == nil {
		return []string{"due date required"}
	}
	if !s.Invoice.DueDate.Before(s.AsOf) {
		return []string{fmt.Sprintf("due %s is not before %s", s.Invoice.DueDate.Format(time.DateOnly), s.AsOf.Format(time.DateOnly))}
	}
	return nil
}

func unpaid(s Subject) []string {
	if s.Invoice.Paid.IsPositive() {
		return []string{"invoice has payments"}
	}
	return nil
}
