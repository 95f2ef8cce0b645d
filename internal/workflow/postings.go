package workflow

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-textile/internal/authz"
	"github.com/odyssey-erp/odyssey-textile/internal/invoicing"
	"github.com/odyssey-erp/odyssey-textile/internal/ledger"
	"github.com/odyssey-erp/odyssey-textile/internal/procurement"
)

// confirmationAmounts debits inventory or expense per category and credits
// payables with the net amount of the order.
func confirmationAmounts(po procurement.PurchaseOrder) []ledger.Amount {
	split := po.CategoryAmounts()
	amounts := make([]ledger.Amount, 0, 3)
	if v, ok := split[procurement.CategoryInventory]; ok && v.IsPositive() {
		amounts = append(amounts, ledger.Dr(ledger.BucketInventory, v))
	}
	if v, ok := split[procurement.CategoryExpense]; ok && v.IsPositive() {
		amounts = append(amounts, ledger.Dr(ledger.BucketExpense, v))
	}
	return append(amounts, ledger.Cr(ledger.BucketAccountsPayable, po.NetAmount()))
}

// rejectionAmounts gives back the payable for goods sent back to the
// supplier, crediting the bucket each line was debited to on confirmation.
func rejectionAmounts(po procurement.PurchaseOrder, grn procurement.GoodsReceipt) []ledger.Amount {
	inventoryValue, expenseValue := decimal.Zero, decimal.Zero
	for _, it := range grn.Items {
		value := it.RejectedValue()
		if !value.IsPositive() {
			continue
		}
		if line, ok := po.Item(it.POItemID); ok && line.Category == procurement.CategoryExpense {
			expenseValue = expenseValue.Add(value)
			continue
		}
		inventoryValue = inventoryValue.Add(value)
	}
	amounts := []ledger.Amount{ledger.Dr(ledger.BucketAccountsPayable, inventoryValue.Add(expenseValue))}
	if inventoryValue.IsPositive() {
		amounts = append(amounts, ledger.Cr(ledger.BucketInventory, inventoryValue))
	}
	if expenseValue.IsPositive() {
		amounts = append(amounts, ledger.Cr(ledger.BucketExpense, expenseValue))
	}
	return amounts
}

func issueAmounts(inv invoicing.Invoice) []ledger.Amount {
	return []ledger.Amount{
		ledger.Dr(ledger.BucketAccountsReceivable, inv.Total),
		ledger.Cr(ledger.BucketRevenue, inv.Total),
	}
}

func settlementAmounts(inv invoicing.Invoice, amount decimal.Decimal) []ledger.Amount {
	if inv.Type == invoicing.Inbound {
		return []ledger.Amount{
			ledger.Dr(ledger.BucketAccountsPayable, amount),
			ledger.Cr(ledger.BucketCash, amount),
		}
	}
	return []ledger.Amount{
		ledger.Dr(ledger.BucketCash, amount),
		ledger.Cr(ledger.BucketAccountsReceivable, amount),
	}
}

func (s *Service) post(ctx context.Context, st Stores, actor authz.Actor, reference string, kind ledger.Kind, memo string, amounts []ledger.Amount) (ledger.Result, error) {
	res, err := s.ledger.Post(ctx, st.Ledger(), ledger.PostingRequest{
		Reference: reference,
		Kind:      kind,
		Date:      s.now(),
		Memo:      memo,
		PostedBy:  actor.EmployeeID,
		Amounts:   amounts,
	})
	if err != nil {
		return ledger.Result{}, fmt.Errorf("post %s %s: %w", kind, reference, err)
	}
	return res, nil
}

func (s *Service) reverse(ctx context.Context, st Stores, actor authz.Actor, reference string, original, kind ledger.Kind) (ledger.Result, error) {
	res, err := s.ledger.Reverse(ctx, st.Ledger(), ledger.ReversalRequest{
		Reference: reference,
		Original:  original,
		Kind:      kind,
		Date:      s.now(),
		PostedBy:  actor.EmployeeID,
	})
	if err != nil {
		return ledger.Result{}, fmt.Errorf("reverse %s %s: %w", original, reference, err)
	}
	return res, nil
}
