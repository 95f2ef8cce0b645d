package inventory

import "github.com/shopspring/decimal"

// Status is the derived health of a product's stock.
type Status string

const (
	StatusHealthy  Status = "HEALTHY"
	StatusLowStock Status = "LOW_STOCK"
	StatusCritical Status = "CRITICAL"
)

// Classify derives the stock status of a product from its total on-hand
// quantity across warehouses.
//
// A manual alert forces CRITICAL unless the stock is positive and above both
// thresholds. Zero stock is CRITICAL. A positive gap to the reorder level (or
// to the minimum when no reorder level is set), or stock at or below the
// minimum, is LOW_STOCK.
func Classify(total decimal.Decimal, th Thresholds) Status {
	clearlyHealthy := total.IsPositive() && total.GreaterThan(th.MinStock) && total.GreaterThan(th.ReorderLevel)
	if th.ManualAlert && !clearlyHealthy {
		return StatusCritical
	}
	if !total.IsPositive() {
		return StatusCritical
	}
	threshold := th.MinStock
	if th.ReorderLevel.IsPositive() {
		threshold = th.ReorderLevel
	}
	if threshold.Sub(total).IsPositive() || total.LessThanOrEqual(th.MinStock) {
		return StatusLowStock
	}
	return StatusHealthy
}

// ProductStatus is the classifier output with its inputs.
type ProductStatus struct {
	ProductID  int64           `json:"product_id"`
	Total      decimal.Decimal `json:"total"`
	Reserved   decimal.Decimal `json:"reserved"`
	Thresholds Thresholds      `json:"thresholds"`
	Status     Status          `json:"status"`
}
