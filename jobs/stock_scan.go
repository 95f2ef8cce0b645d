package jobs

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"github.com/odyssey-erp/odyssey-textile/internal/inventory"
	jobmetrics "github.com/odyssey-erp/odyssey-textile/internal/jobs"
)

// TaskStockScan classifies every tracked product.
const TaskStockScan = "inventory:stock_scan"

// StockScanner classifies tracked products.
type StockScanner interface {
	ScanStock(ctx context.Context) ([]inventory.ProductStatus, error)
}

// NewStockScanTask builds the periodic stock status task.
func NewStockScanTask() *asynq.Task {
	return asynq.NewTask(TaskStockScan, nil, asynq.Queue(QueueDefault), asynq.MaxRetry(3))
}

// StockScanJob logs products that fell below their replenishment thresholds.
type StockScanJob struct {
	Scanner StockScanner
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
}

// NewStockScanJob initialises the stock scan handler.
func NewStockScanJob(scanner StockScanner, logger *slog.Logger, metrics *jobmetrics.Metrics) *StockScanJob {
	return &StockScanJob{Scanner: scanner, Logger: logger, Metrics: metrics}
}

// Handle runs the scan.
func (j *StockScanJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Scanner == nil {
		return errors.New("stock scan: handler not configured")
	}
	start := time.Now()
	tracker := j.Metrics.Track(TaskStockScan)
	logger := loggerOr(j.Logger).With(slog.String("job", TaskStockScan))

	statuses, err := j.Scanner.ScanStock(ctx)
	if err != nil {
		logger.Error("stock scan failed", slog.Any("error", err))
		return tracker.End(err)
	}
	counts := make(map[inventory.Status]int)
	for _, s := range statuses {
		counts[s.Status]++
		if s.Status == inventory.StatusHealthy {
			continue
		}
		logger.Warn("product needs replenishment",
			slog.Int64("product_id", s.ProductID),
			slog.String("status", string(s.Status)),
			slog.String("total", s.Total.String()),
			slog.String("reserved", s.Reserved.String()),
			slog.String("reorder_level", s.Thresholds.ReorderLevel.String()),
		)
	}
	j.Metrics.AddFindings("stock_scan", string(inventory.StatusLowStock), counts[inventory.StatusLowStock])
	j.Metrics.AddFindings("stock_scan", string(inventory.StatusCritical), counts[inventory.StatusCritical])
	logger.Info("completed stock scan",
		slog.Int("products", len(statuses)),
		slog.Int("low_stock", counts[inventory.StatusLowStock]),
		slog.Int("critical", counts[inventory.StatusCritical]),
		slog.Duration("duration", time.Since(start)),
	)
	return tracker.End(nil)
}
