package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/odyssey-erp/odyssey-textile/internal/jobs"
)

// TaskOverdueSweep marks invoices past their due date.
const TaskOverdueSweep = "invoice:overdue_sweep"

// OverdueSweepPayload optionally pins the reference date.
type OverdueSweepPayload struct {
	AsOf time.Time `json:"as_of,omitempty"`
}

// OverdueSweeper marks open invoices due before asOf.
type OverdueSweeper interface {
	SweepOverdue(ctx context.Context, asOf time.Time) (int, error)
}

// NewOverdueSweepTask builds the sweep task. A zero asOf uses the time the
// task runs.
func NewOverdueSweepTask(asOf time.Time) (*asynq.Task, error) {
	body, err := json.Marshal(OverdueSweepPayload{AsOf: asOf})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskOverdueSweep, body, asynq.Queue(QueueDefault), asynq.MaxRetry(5)), nil
}

// OverdueSweepJob runs the overdue sweep. Invoices that could not be marked
// make the task fail so asynq retries; those already marked are skipped on
// the retry.
type OverdueSweepJob struct {
	Sweeper OverdueSweeper
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
	clock   func() time.Time
}

// NewOverdueSweepJob initialises the sweep handler.
func NewOverdueSweepJob(sweeper OverdueSweeper, logger *slog.Logger, metrics *jobmetrics.Metrics) *OverdueSweepJob {
	return &OverdueSweepJob{
		Sweeper: sweeper,
		Logger:  logger,
		Metrics: metrics,
		clock: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// Handle runs the sweep.
func (j *OverdueSweepJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Sweeper == nil {
		return errors.New("overdue sweep: handler not configured")
	}
	var payload OverdueSweepPayload
	if len(t.Payload()) > 0 {
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return fmt.Errorf("decode %s: %v: %w", TaskOverdueSweep, err, asynq.SkipRetry)
		}
	}
	asOf := payload.AsOf
	if asOf.IsZero() {
		asOf = j.now()
	}
	tracker := j.Metrics.Track(TaskOverdueSweep)
	logger := loggerOr(j.Logger).With(slog.String("job", TaskOverdueSweep), slog.Time("as_of", asOf))

	marked, err := j.Sweeper.SweepOverdue(ctx, asOf)
	if err != nil {
		logger.Warn("overdue sweep incomplete", slog.Int("marked", marked), slog.Any("error", err))
		return tracker.End(err)
	}
	logger.Info("completed overdue sweep", slog.Int("marked", marked))
	return tracker.End(nil)
}

func (j *OverdueSweepJob) now() time.Time {
	if j.clock == nil {
		return time.Now().UTC()
	}
	return j.clock()
}
