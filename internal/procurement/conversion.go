package procurement

import (
	"fmt"
	"sort"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-textile/internal/shared"
)

// ConversionPlan is the validated outcome of turning PR items into orders.
type ConversionPlan struct {
	PRID int64
	// Orders are grouped by supplier in ascending supplier order.
	Orders []PlannedOrder
	// Converted lists every item that becomes CONVERTED, including items fully
	// covered by reserved stock that need no order line.
	Converted []int64
}

// PlannedOrder is a PO draft for one supplier.
type PlannedOrder struct {
	SupplierID int64
	Department string
	Lines      []PlannedLine
}

// PlannedLine is one PO line and the PR items it merges.
type PlannedLine struct {
	ProductID   int64
	WarehouseID int64
	Category    ItemCategory
	UnitPrice   decimal.Decimal
	Quantity    decimal.Decimal
	Sources     []PRItemLink
}

type lineKey struct {
	productID   int64
	warehouseID int64
	category    ItemCategory
	price       string
}

// Converter plans PR to PO conversions.
type Converter struct{}

// Plan checks every selected item before producing any order. Any failing
// item aborts the whole batch with a guard error naming all failures.
func (Converter) Plan(pr PurchaseRequest, itemIDs []int64) (ConversionPlan, error) {
	if len(itemIDs) == 0 {
		return ConversionPlan{}, shared.Validation("no items selected for conversion")
	}
	var unmet []string
	if pr.Status != PRStatusApproved {
		unmet = append(unmet, fmt.Sprintf("request %s is %s", pr.Number, pr.Status))
	}

	seen := make(map[int64]bool, len(itemIDs))
	selected := make([]PRItem, 0, len(itemIDs))
	for _, id := range itemIDs {
		if seen[id] {
			return ConversionPlan{}, shared.Validation("item %d selected twice", id)
		}
		seen[id] = true
		it, ok := pr.Item(id)
		if !ok {
			unmet = append(unmet, fmt.Sprintf("item %d does not belong to %s", id, pr.Number))
			continue
		}
		if it.Status != PRItemApproved {
			unmet = append(unmet, fmt.Sprintf("item %d is %s", id, it.Status))
		}
		if it.Shortfall().IsPositive() && it.PreferredSupplierID == 0 {
			unmet = append(unmet, fmt.Sprintf("item %d has no preferred supplier", id))
		}
		selected = append(selected, it)
	}
	if len(unmet) > 0 {
		return ConversionPlan{}, &shared.GuardError{Entity: "purchase request", Event: string(EventConvertPR), Unmet: unmet}
	}

	plan := ConversionPlan{PRID: pr.ID}
	orders := make(map[int64]*PlannedOrder)
	lines := make(map[int64]map[lineKey]int)
	for _, it := range selected {
		plan.Converted = append(plan.Converted, it.ID)
		qty := it.Shortfall()
		if !qty.IsPositive() {
			continue
		}
		order, ok := orders[it.PreferredSupplierID]
		if !ok {
			order = &PlannedOrder{SupplierID: it.PreferredSupplierID, Department: pr.Department}
			orders[it.PreferredSupplierID] = order
			lines[it.PreferredSupplierID] = make(map[lineKey]int)
		}
		cat := it.Category
		if cat == "" {
			cat = CategoryInventory
		}
		key := lineKey{productID: it.ProductID, warehouseID: it.WarehouseID, category: cat, price: it.EstimatedUnitPrice.String()}
		link := PRItemLink{PRItemID: it.ID, Quantity: qty}
		if idx, merged := lines[it.PreferredSupplierID][key]; merged {
			line := &order.Lines[idx]
			line.Quantity = line.Quantity.Add(qty)
			line.Sources = append(line.Sources, link)
			continue
		}
		lines[it.PreferredSupplierID][key] = len(order.Lines)
		order.Lines = append(order.Lines, PlannedLine{
			ProductID:   it.ProductID,
			WarehouseID: it.WarehouseID,
			Category:    cat,
			UnitPrice:   it.EstimatedUnitPrice,
			Quantity:    qty,
			Sources:     []PRItemLink{link},
		})
	}

	suppliers := make([]int64, 0, len(orders))
	for id := range orders {
		suppliers = append(suppliers, id)
	}
	sort.Slice(suppliers, func(i, j int) bool { return suppliers[i] < suppliers[j] })
	for _, id := range suppliers {
		plan.Orders = append(plan.Orders, *orders[id])
	}
	return plan, nil
}

// Draft turns a planned order into an unsaved purchase order.
func (o PlannedOrder) Draft(prID int64, number string) PurchaseOrder {
	src := prID
	po := PurchaseOrder{
		Number:        number,
		SupplierID:    o.SupplierID,
		Department:    o.Department,
		Status:        POStatusPendingApproval,
		PaymentStatus: PaymentUnpaid,
		SourcePRID:    &src,
	}
	for _, l := range o.Lines {
		po.Items = append(po.Items, POItem{
			ProductID:   l.ProductID,
			WarehouseID: l.WarehouseID,
			Category:    l.Category,
			Quantity:    l.Quantity,
			UnitPrice:   l.UnitPrice,
			ReceivedQty: decimal.Zero,
		})
	}
	return po
}
