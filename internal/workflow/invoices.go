package workflow

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-textile/internal/authz"
	"github.com/odyssey-erp/odyssey-textile/internal/fsm"
	"github.com/odyssey-erp/odyssey-textile/internal/invoicing"
	"github.com/odyssey-erp/odyssey-textile/internal/ledger"
	"github.com/odyssey-erp/odyssey-textile/internal/procurement"
	"github.com/odyssey-erp/odyssey-textile/internal/shared"
)

// SystemActor performs scheduled and gateway driven transitions.
var SystemActor = authz.Actor{Name: "system", Role: authz.RoleAdmin, Department: "System"}

// CreateInvoiceInput describes a draft invoice. Inbound invoices reference the
// purchase order they bill.
type CreateInvoiceInput struct {
	Number         string                `json:"number"`
	Type           invoicing.InvoiceType `json:"type" validate:"required,oneof=INBOUND OUTBOUND"`
	CounterpartyID int64                 `json:"counterparty_id" validate:"required"`
	POID           *int64                `json:"po_id,omitempty"`
	Department     string                `json:"department"`
	Total          decimal.Decimal       `json:"total"`
	DueDate        *time.Time            `json:"due_date,omitempty"`
}

// PaymentInput is a settlement instruction keyed by the gateway reference.
type PaymentInput struct {
	Reference string          `json:"reference" validate:"required,max=64"`
	Amount    decimal.Decimal `json:"amount"`
}

// PayoutNotification is the body of a payment gateway callback.
type PayoutNotification struct {
	Reference string          `json:"reference" validate:"required"`
	Status    string          `json:"status" validate:"required"`
	Amount    decimal.Decimal `json:"amount"`
}

// CreateInvoice stores a DRAFT invoice.
func (s *Service) CreateInvoice(ctx context.Context, actor authz.Actor, input CreateInvoiceInput) (invoicing.Invoice, error) {
	if input.Type != invoicing.Inbound && input.Type != invoicing.Outbound {
		return invoicing.Invoice{}, shared.Validation("unknown invoice type %q", input.Type)
	}
	if input.CounterpartyID == 0 {
		return invoicing.Invoice{}, shared.Validation("invoice needs a counterparty")
	}
	if input.Total.IsNegative() {
		return invoicing.Invoice{}, shared.Validation("invoice total must not be negative")
	}
	if input.Type == invoicing.Inbound && input.POID == nil {
		return invoicing.Invoice{}, shared.Validation("supplier invoice needs a purchase order")
	}
	var created invoicing.Invoice
	_, err := s.transact(ctx, ModuleInvoice, "create", func(ctx context.Context, st Stores, box *outbox) error {
		department := defaultString(input.Department, actor.Department)
		if input.POID != nil {
			po, err := st.Procurement().GetPOForUpdate(ctx, *input.POID)
			if err != nil {
				return err
			}
			if err := billable(ctx, st, po, input.Total); err != nil {
				return err
			}
			department = po.Department
		}
		if err := s.authorize(actor, authz.ActionCreateInvoice, department); err != nil {
			return err
		}
		now := s.now()
		inv := invoicing.Invoice{
			Number:         defaultString(input.Number, generateNumber("INV", now)),
			Type:           input.Type,
			CounterpartyID: input.CounterpartyID,
			POID:           input.POID,
			Department:     department,
			Status:         invoicing.StatusDraft,
			Total:          input.Total.Round(2),
			Paid:           decimal.Zero,
			DueDate:        input.DueDate,
		}
		var err error
		if created, err = st.Invoicing().CreateInvoice(ctx, inv); err != nil {
			return err
		}
		box.add(ModuleInvoice, created.ID, created.Number, "create", string(created.Status), created.Department, actor, now)
		return s.audit(ctx, st, actor, "invoice.create", ModuleInvoice, created.ID, map[string]any{
			"number": created.Number, "type": string(created.Type), "total": created.Total.StringFixed(2),
		})
	})
	if err != nil {
		return invoicing.Invoice{}, err
	}
	return created, nil
}

// billable checks that a supplier invoice fits what the order still owes. The
// order must be locked so concurrent invoices are summed one after the other.
func billable(ctx context.Context, st Stores, po procurement.PurchaseOrder, total decimal.Decimal) error {
	switch po.Status {
	case procurement.POStatusOpen, procurement.POStatusPartial, procurement.POStatusReceived:
	default:
		return shared.Validation("purchase order %s is %s and cannot be invoiced", po.Number, po.Status)
	}
	existing, err := st.Invoicing().InvoicesForPO(ctx, po.ID)
	if err != nil {
		return err
	}
	billed := decimal.Zero
	for _, inv := range existing {
		if inv.Status == invoicing.StatusVoid || inv.Status == invoicing.StatusCancelled {
			continue
		}
		billed = billed.Add(inv.Total)
	}
	if billed.Add(total).GreaterThan(po.PayableAmount()) {
		return shared.Validation("invoices for %s would total %s above payable amount %s",
			po.Number, billed.Add(total).StringFixed(2), po.PayableAmount().StringFixed(2))
	}
	return nil
}

// IssueInvoice issues a draft. Customer invoices book the receivable.
func (s *Service) IssueInvoice(ctx context.Context, actor authz.Actor, invoiceID int64) (Result[invoicing.Invoice], error) {
	return s.moveInvoice(ctx, actor, invoiceID, invoicing.EventIssue, authz.ActionIssueInvoice, s.now(),
		func(ctx context.Context, st Stores, inv invoicing.Invoice, meta map[string]any) error {
			if err := st.Invoicing().MarkIssued(ctx, inv.ID, s.now()); err != nil {
				return err
			}
			if inv.Type != invoicing.Outbound {
				return nil
			}
			posted, err := s.post(ctx, st, actor, inv.Number, ledger.KindInvoiceIssue, "Invoice "+inv.Number+" issued", issueAmounts(inv))
			if err != nil {
				return err
			}
			meta["entry_id"] = posted.Entry.ID
			return nil
		})
}

// CancelInvoice discards a draft.
func (s *Service) CancelInvoice(ctx context.Context, actor authz.Actor, invoiceID int64) (Result[invoicing.Invoice], error) {
	return s.moveInvoice(ctx, actor, invoiceID, invoicing.EventCancel, authz.ActionCreateInvoice, s.now(), nil)
}

// VoidInvoice voids an issued invoice that has no payments and reverses its
// receivable.
func (s *Service) VoidInvoice(ctx context.Context, actor authz.Actor, invoiceID int64) (Result[invoicing.Invoice], error) {
	return s.moveInvoice(ctx, actor, invoiceID, invoicing.EventVoid, authz.ActionVoidInvoice, s.now(),
		func(ctx context.Context, st Stores, inv invoicing.Invoice, meta map[string]any) error {
			reversed, err := s.reverse(ctx, st, actor, inv.Number, ledger.KindInvoiceIssue, ledger.KindInvoiceVoid)
			if err != nil {
				return err
			}
			if !reversed.Skipped {
				meta["entry_id"] = reversed.Entry.ID
			}
			return nil
		})
}

// MarkInvoiceOverdue flags an invoice whose due date is before asOf.
func (s *Service) MarkInvoiceOverdue(ctx context.Context, actor authz.Actor, invoiceID int64, asOf time.Time) (Result[invoicing.Invoice], error) {
	if asOf.IsZero() {
		asOf = s.now()
	}
	return s.moveInvoice(ctx, actor, invoiceID, invoicing.EventMarkOverdue, authz.ActionMarkOverdue, asOf, nil)
}

// SweepOverdue marks every open invoice due before asOf. Each invoice moves in
// its own unit of work so one failure does not hold back the rest.
func (s *Service) SweepOverdue(ctx context.Context, asOf time.Time) (int, error) {
	var due []invoicing.Invoice
	err := s.uow.WithTx(ctx, func(ctx context.Context, st Stores) error {
		var err error
		due, err = st.Invoicing().DueInvoices(ctx, asOf)
		return err
	})
	if err != nil {
		return 0, err
	}
	marked := 0
	var errs []error
	for _, inv := range due {
		res, err := s.MarkInvoiceOverdue(ctx, SystemActor, inv.ID, asOf)
		switch {
		case err == nil && !res.Replayed:
			marked++
		case errors.Is(err, shared.ErrAlreadyProcessed), errors.Is(err, shared.ErrStatusConflict):
		case err != nil:
			s.logger.Warn("mark invoice overdue", slog.String("number", inv.Number), slog.Any("error", err))
			errs = append(errs, err)
		}
	}
	return marked, errors.Join(errs...)
}

type invoiceEffect func(ctx context.Context, st Stores, inv invoicing.Invoice, meta map[string]any) error

func (s *Service) moveInvoice(ctx context.Context, actor authz.Actor, invoiceID int64, ev fsm.Event, action authz.Action, asOf time.Time, effect invoiceEffect) (Result[invoicing.Invoice], error) {
	var out invoicing.Invoice
	replayed, err := s.transact(ctx, ModuleInvoice, ev, func(ctx context.Context, st Stores, box *outbox) error {
		inv, err := st.Invoicing().GetInvoice(ctx, invoiceID)
		if err != nil {
			return err
		}
		if err := s.authorize(actor, action, inv.Department); err != nil {
			return err
		}
		out = inv
		if invoicing.Machine.Reached(inv.Status, ev) {
			box.replayed = true
			return nil
		}
		from := inv.Status
		if inv.Status, err = invoicing.Machine.Fire(invoicing.Subject{Invoice: inv, AsOf: asOf}, from, ev); err != nil {
			return err
		}
		if err := st.Invoicing().UpdateInvoiceStatus(ctx, inv.ID, from, inv.Status); err != nil {
			return err
		}
		out = inv
		meta := map[string]any{"number": inv.Number, "from": string(from), "to": string(inv.Status)}
		if effect != nil {
			if err := effect(ctx, st, inv, meta); err != nil {
				return err
			}
		}
		box.add(ModuleInvoice, inv.ID, inv.Number, ev, string(inv.Status), inv.Department, actor, s.now())
		return s.audit(ctx, st, actor, "invoice."+string(ev), ModuleInvoice, inv.ID, meta)
	})
	return Result[invoicing.Invoice]{Document: out, Replayed: replayed}, err
}

// RegisterPayment records a PENDING payment the gateway will report on.
func (s *Service) RegisterPayment(ctx context.Context, actor authz.Actor, invoiceID int64, input PaymentInput) (invoicing.Payment, error) {
	if input.Reference == "" {
		return invoicing.Payment{}, shared.Validation("payment reference required")
	}
	if !input.Amount.IsPositive() {
		return invoicing.Payment{}, shared.Validation("payment amount must be positive")
	}
	var created invoicing.Payment
	_, err := s.transact(ctx, ModulePayment, "register", func(ctx context.Context, st Stores, box *outbox) error {
		inv, err := st.Invoicing().GetInvoice(ctx, invoiceID)
		if err != nil {
			return err
		}
		if err := s.authorize(actor, authz.ActionSettleInvoice, inv.Department); err != nil {
			return err
		}
		if err := payable(inv, input.Amount); err != nil {
			return err
		}
		if created, err = st.Invoicing().CreatePayment(ctx, invoicing.Payment{
			InvoiceID: inv.ID,
			Reference: input.Reference,
			Amount:    input.Amount.Round(2),
			Status:    invoicing.PaymentPending,
		}); err != nil {
			return err
		}
		return s.audit(ctx, st, actor, "payment.register", ModulePayment, created.ID, map[string]any{
			"reference": created.Reference, "invoice": inv.Number, "amount": created.Amount.StringFixed(2),
		})
	})
	if err != nil {
		return invoicing.Payment{}, err
	}
	return created, nil
}

// SettleInvoice applies a completed payment. A reference that already
// settled is answered as a replay.
func (s *Service) SettleInvoice(ctx context.Context, actor authz.Actor, invoiceID int64, input PaymentInput) (Result[invoicing.Invoice], error) {
	if input.Reference == "" {
		return Result[invoicing.Invoice]{}, shared.Validation("payment reference required")
	}
	var out invoicing.Invoice
	replayed, err := s.transact(ctx, ModuleInvoice, "settle", func(ctx context.Context, st Stores, box *outbox) error {
		inv, err := st.Invoicing().GetInvoice(ctx, invoiceID)
		if err != nil {
			return err
		}
		if err := s.authorize(actor, authz.ActionSettleInvoice, inv.Department); err != nil {
			return err
		}
		out = inv
		payment, err := st.Invoicing().PaymentByReference(ctx, input.Reference)
		switch {
		case err == nil:
			if payment.InvoiceID != inv.ID {
				return shared.Validation("payment %s belongs to another invoice", payment.Reference)
			}
			if payment.Status == invoicing.PaymentSucceeded {
				box.replayed = true
				return nil
			}
			if !input.Amount.IsZero() && !input.Amount.Equal(payment.Amount) {
				return shared.Validation("payment %s amount %s does not match registered %s",
					payment.Reference, input.Amount.StringFixed(2), payment.Amount.StringFixed(2))
			}
			if payment, err = s.completePayment(ctx, st, payment, invoicing.PaymentSucceeded); err != nil {
				return err
			}
		case errors.Is(err, shared.ErrNotFound):
			if !input.Amount.IsPositive() {
				return shared.Validation("payment amount must be positive")
			}
			now := s.now()
			if payment, err = st.Invoicing().CreatePayment(ctx, invoicing.Payment{
				InvoiceID: inv.ID,
				Reference: input.Reference,
				Amount:    input.Amount.Round(2),
				Status:    invoicing.PaymentSucceeded,
				SettledAt: &now,
			}); err != nil {
				return err
			}
		default:
			return err
		}
		out, err = s.settle(ctx, st, actor, inv, payment, box)
		return err
	})
	return Result[invoicing.Invoice]{Document: out, Replayed: replayed}, err
}

// HandlePayoutNotification applies a gateway callback. Each (reference,
// status) pair is processed once; the gateway may redeliver freely.
func (s *Service) HandlePayoutNotification(ctx context.Context, n PayoutNotification) (Result[invoicing.Payment], error) {
	status, ok := invoicing.ParsePayoutStatus(n.Status)
	if !ok {
		return Result[invoicing.Payment]{}, shared.Validation("unknown payout status %q", n.Status)
	}
	if n.Reference == "" {
		return Result[invoicing.Payment]{}, shared.Validation("payout reference required")
	}
	target := status.PaymentStatus()
	var out invoicing.Payment
	replayed, err := s.transact(ctx, ModulePayment, fsm.Event("payout_"+string(target)), func(ctx context.Context, st Stores, box *outbox) error {
		payment, err := st.Invoicing().PaymentByReference(ctx, n.Reference)
		if err != nil {
			return err
		}
		out = payment
		if target == invoicing.PaymentPending {
			box.replayed = true
			return nil
		}
		if err := st.Idempotency().Claim(ctx, n.Reference+":"+string(status), "payout"); err != nil {
			if errors.Is(err, shared.ErrIdempotencyConflict) {
				box.replayed = true
				return nil
			}
			return err
		}
		if payment.Status == target {
			box.replayed = true
			return nil
		}
		if target == invoicing.PaymentSucceeded && !n.Amount.IsZero() && !n.Amount.Equal(payment.Amount) {
			return shared.Validation("payout %s amount %s does not match registered %s",
				payment.Reference, n.Amount.StringFixed(2), payment.Amount.StringFixed(2))
		}
		if out, err = s.completePayment(ctx, st, payment, target); err != nil {
			return err
		}
		if target != invoicing.PaymentSucceeded {
			return s.audit(ctx, st, SystemActor, "payment."+string(status), ModulePayment, out.ID, map[string]any{
				"reference": out.Reference, "status": string(out.Status),
			})
		}
		inv, err := st.Invoicing().GetInvoice(ctx, out.InvoiceID)
		if err != nil {
			return err
		}
		_, err = s.settle(ctx, st, SystemActor, inv, out, box)
		return err
	})
	return Result[invoicing.Payment]{Document: out, Replayed: replayed}, err
}

func (s *Service) completePayment(ctx context.Context, st Stores, p invoicing.Payment, to invoicing.PaymentStatus) (invoicing.Payment, error) {
	ev, ok := invoicing.PaymentEvent(to)
	if !ok {
		return invoicing.Payment{}, shared.Validation("payment cannot move to %s", to)
	}
	from := p.Status
	next, err := invoicing.PaymentMachine.Fire(p, from, ev)
	if err != nil {
		return invoicing.Payment{}, err
	}
	if err := st.Invoicing().UpdatePaymentStatus(ctx, p.ID, from, next); err != nil {
		return invoicing.Payment{}, err
	}
	p.Status = next
	if next == invoicing.PaymentSucceeded {
		now := s.now()
		p.SettledAt = &now
	}
	return p, nil
}

// settle applies a succeeded payment to its invoice, books cash and rolls the
// payment status of a billed purchase order forward.
func (s *Service) settle(ctx context.Context, st Stores, actor authz.Actor, inv invoicing.Invoice, payment invoicing.Payment, box *outbox) (invoicing.Invoice, error) {
	if err := payable(inv, payment.Amount); err != nil {
		return invoicing.Invoice{}, err
	}
	ev := invoicing.SettlementEvent(inv, payment.Amount)
	from := inv.Status
	to, err := invoicing.Machine.Fire(invoicing.Subject{Invoice: inv, Amount: payment.Amount, AsOf: s.now()}, from, ev)
	if err != nil {
		return invoicing.Invoice{}, err
	}
	if err := st.Invoicing().ApplyPayment(ctx, inv.ID, from, to, payment.Amount); err != nil {
		return invoicing.Invoice{}, err
	}
	inv.Status = to
	inv.Paid = inv.Paid.Add(payment.Amount)

	posted, err := s.post(ctx, st, actor, payment.Reference, ledger.KindPaymentSettle,
		"Payment "+payment.Reference+" for "+inv.Number, settlementAmounts(inv, payment.Amount))
	if err != nil {
		return invoicing.Invoice{}, err
	}
	if inv.Type == invoicing.Inbound && inv.POID != nil {
		if err := s.rollPOPayment(ctx, st, actor, *inv.POID, box); err != nil {
			return invoicing.Invoice{}, err
		}
	}
	box.add(ModuleInvoice, inv.ID, inv.Number, ev, string(inv.Status), inv.Department, actor, s.now())
	return inv, s.audit(ctx, st, actor, "invoice."+string(ev), ModuleInvoice, inv.ID, map[string]any{
		"number": inv.Number, "reference": payment.Reference, "amount": payment.Amount.StringFixed(2),
		"paid": inv.Paid.StringFixed(2), "entry_id": posted.Entry.ID,
	})
}

func payable(inv invoicing.Invoice, amount decimal.Decimal) error {
	switch inv.Status {
	case invoicing.StatusIssued, invoicing.StatusPartial, invoicing.StatusOverdue:
	default:
		return &shared.TransitionError{Entity: "invoice", From: string(inv.Status), Event: string(invoicing.EventPayPartial)}
	}
	if !amount.IsPositive() {
		return shared.Validation("payment amount must be positive")
	}
	if amount.GreaterThan(inv.BalanceDue()) {
		return shared.Validation("payment %s exceeds balance %s", amount.StringFixed(2), inv.BalanceDue().StringFixed(2))
	}
	return nil
}

// rollPOPayment derives the order's payment status from its supplier
// invoices against the payable amount, and completes a fully received order
// once it is paid. An order with nothing paid and nothing rejected stays
// UNPAID.
func (s *Service) rollPOPayment(ctx context.Context, st Stores, actor authz.Actor, poID int64, box *outbox) error {
	po, err := st.Procurement().GetPO(ctx, poID)
	if err != nil {
		return err
	}
	invoices, err := st.Invoicing().InvoicesForPO(ctx, poID)
	if err != nil {
		return err
	}
	paid := decimal.Zero
	for _, inv := range invoices {
		if inv.Status == invoicing.StatusVoid || inv.Status == invoicing.StatusCancelled {
			continue
		}
		paid = paid.Add(inv.Paid)
	}
	status := procurement.PaymentUnpaid
	switch {
	case paid.GreaterThanOrEqual(po.PayableAmount()) && (paid.IsPositive() || po.RejectedValue().IsPositive()):
		status = procurement.PaymentPaid
	case paid.IsPositive():
		status = procurement.PaymentPartial
	}
	if status != po.PaymentStatus {
		if err := st.Procurement().SetPOPaymentStatus(ctx, po.ID, status); err != nil {
			return err
		}
		po.PaymentStatus = status
	}
	return s.completeIfSettled(ctx, st, actor, po, box)
}

// completeIfSettled closes an order that is both fully received and paid.
func (s *Service) completeIfSettled(ctx context.Context, st Stores, actor authz.Actor, po procurement.PurchaseOrder, box *outbox) error {
	if po.PaymentStatus != procurement.PaymentPaid || po.Status != procurement.POStatusReceived {
		return nil
	}
	from := po.Status
	var err error
	if po.Status, err = procurement.POMachine.Fire(po, from, procurement.EventCompletePO); err != nil {
		return err
	}
	if err := st.Procurement().UpdatePOStatus(ctx, po.ID, from, po.Status); err != nil {
		return err
	}
	if err := s.poEvent(ctx, st, po, string(procurement.EventCompletePO), from, actor, nil); err != nil {
		return err
	}
	box.add(ModulePurchaseOrder, po.ID, po.Number, procurement.EventCompletePO, string(po.Status), po.Department, actor, s.now())
	return nil
}
