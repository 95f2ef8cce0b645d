package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"

	jobmetrics "github.com/odyssey-erp/odyssey-textile/internal/jobs"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// QueueCritical carries committed document notifications.
	QueueCritical = "critical"
	// TaskDocumentCommitted announces a committed document transition to
	// collaborators such as the PDF renderer and notifications.
	TaskDocumentCommitted = "document:committed"
)

var taskNamespace = uuid.MustParse("0b7f5c2e-4f4d-4a8e-9d0a-6c1f3f8e2a77")

// DocumentCommittedPayload describes a transition after its transaction committed.
type DocumentCommittedPayload struct {
	Module     string    `json:"module"`
	DocumentID int64     `json:"document_id"`
	Number     string    `json:"number"`
	Event      string    `json:"event"`
	Status     string    `json:"status"`
	Department string    `json:"department,omitempty"`
	ActorID    int64     `json:"actor_id"`
	OccurredAt time.Time `json:"occurred_at"`
}

// TaskID is stable per document transition so a retried dispatch is deduplicated.
func (p DocumentCommittedPayload) TaskID() string {
	return uuid.NewSHA1(taskNamespace, []byte(fmt.Sprintf("%s:%d:%s:%s", p.Module, p.DocumentID, p.Event, p.Status))).String()
}

// NewDocumentCommittedTask constructs an Asynq task.
func NewDocumentCommittedTask(payload DocumentCommittedPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskDocumentCommitted, data, asynq.Queue(QueueCritical), asynq.TaskID(payload.TaskID()), asynq.MaxRetry(10)), nil
}

// Collaborator consumes committed documents. Implementations read committed
// state only and never write back into the documents.
type Collaborator interface {
	Name() string
	DocumentCommitted(ctx context.Context, payload DocumentCommittedPayload) error
}

// DocumentCommittedHandler fans a committed document out to collaborators.
type DocumentCommittedHandler struct {
	collaborators []Collaborator
	logger        *slog.Logger
	metrics       *jobmetrics.Metrics
}

// NewDocumentCommittedHandler wires the collaborators.
func NewDocumentCommittedHandler(logger *slog.Logger, metrics *jobmetrics.Metrics, collaborators ...Collaborator) *DocumentCommittedHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &DocumentCommittedHandler{collaborators: collaborators, logger: logger, metrics: metrics}
}

// ProcessTask implements asynq.Handler.
func (h *DocumentCommittedHandler) ProcessTask(ctx context.Context, t *asynq.Task) error {
	tracker := h.metrics.Track(TaskDocumentCommitted)
	var payload DocumentCommittedPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return tracker.End(fmt.Errorf("decode %s: %v: %w", TaskDocumentCommitted, err, asynq.SkipRetry))
	}
	h.logger.Info("document committed",
		slog.String("module", payload.Module),
		slog.String("number", payload.Number),
		slog.String("event", payload.Event),
		slog.String("status", payload.Status),
	)
	for _, c := range h.collaborators {
		if err := c.DocumentCommitted(ctx, payload); err != nil {
			h.logger.Warn("collaborator failed", slog.String("collaborator", c.Name()), slog.String("number", payload.Number), slog.Any("error", err))
			return tracker.End(err)
		}
	}
	return tracker.End(nil)
}
