package jobs

import (
	"context"
	"errors"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-textile/internal/inventory"
	jobmetrics "github.com/odyssey-erp/odyssey-textile/internal/jobs"
	"github.com/odyssey-erp/odyssey-textile/internal/ledger"
)

type fakeAuditor struct {
	findings []ledger.Imbalance
	err      error
}

func (f fakeAuditor) UnbalancedEntries(ctx context.Context) ([]ledger.Imbalance, error) {
	return f.findings, f.err
}

type fakeScanner []inventory.ProductStatus

func (f fakeScanner) ScanStock(ctx context.Context) ([]inventory.ProductStatus, error) {
	return f, nil
}

type fakeSweeper struct {
	asOf   time.Time
	marked int
	err    error
}

func (f *fakeSweeper) SweepOverdue(ctx context.Context, asOf time.Time) (int, error) {
	f.asOf = asOf
	return f.marked, f.err
}

type fakePruner struct{ retention time.Duration }

func (f *fakePruner) Cleanup(ctx context.Context, olderThan time.Duration) error {
	f.retention = olderThan
	return nil
}

type recordingCollaborator struct {
	seen []DocumentCommittedPayload
	err  error
}

func (c *recordingCollaborator) Name() string { return "recorder" }

func (c *recordingCollaborator) DocumentCommitted(ctx context.Context, p DocumentCommittedPayload) error {
	c.seen = append(c.seen, p)
	return c.err
}

func count(t *testing.T, reg *prometheus.Registry, name string) int {
	t.Helper()
	families, err := reg.Gather()
	require.NoError(t, err)
	for _, f := range families {
		if f.GetName() == name {
			return len(f.GetMetric())
		}
	}
	return 0
}

func newMetrics(t *testing.T) (*jobmetrics.Metrics, *prometheus.Registry) {
	t.Helper()
	reg := prometheus.NewRegistry()
	return jobmetrics.NewMetrics(reg), reg
}

func TestLedgerIntegrityCountsFindings(t *testing.T) {
	metrics, reg := newMetrics(t)
	job := NewLedgerIntegrityJob(fakeAuditor{findings: []ledger.Imbalance{
		{EntryID: 7, Reference: "PO-1", Kind: ledger.KindPOConfirm, Debit: decimal.NewFromInt(100), Credit: decimal.NewFromInt(90)},
		{EntryID: 9, Reference: "PO-2", Kind: ledger.KindPOConfirm, Debit: decimal.NewFromInt(5), Credit: decimal.Zero},
	}}, nil, metrics)

	require.NoError(t, job.Handle(context.Background(), NewLedgerIntegrityTask()))
	require.Equal(t, 1, count(t, reg, "odyssey_consistency_findings_total"))

	job.Auditor = fakeAuditor{err: errors.New("connection reset")}
	require.Error(t, job.Handle(context.Background(), NewLedgerIntegrityTask()))
}

func TestLedgerIntegrityCleanRun(t *testing.T) {
	metrics, reg := newMetrics(t)
	job := NewLedgerIntegrityJob(fakeAuditor{}, nil, metrics)
	require.NoError(t, job.Handle(context.Background(), NewLedgerIntegrityTask()))
	require.Zero(t, count(t, reg, "odyssey_consistency_findings_total"))
}

func TestStockScanReportsLowStock(t *testing.T) {
	metrics, reg := newMetrics(t)
	job := NewStockScanJob(fakeScanner{
		{ProductID: 1, Status: inventory.StatusHealthy},
		{ProductID: 2, Status: inventory.StatusLowStock},
		{ProductID: 3, Status: inventory.StatusCritical},
		{ProductID: 4, Status: inventory.StatusCritical},
	}, nil, metrics)

	require.NoError(t, job.Handle(context.Background(), NewStockScanTask()))
	require.Equal(t, 2, count(t, reg, "odyssey_consistency_findings_total"))
}

func TestOverdueSweepUsesPayloadDate(t *testing.T) {
	sweeper := &fakeSweeper{marked: 3}
	job := NewOverdueSweepJob(sweeper, nil, nil)
	asOf := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)
	task, err := NewOverdueSweepTask(asOf)
	require.NoError(t, err)

	require.NoError(t, job.Handle(context.Background(), task))
	require.True(t, sweeper.asOf.Equal(asOf))

	fixed := time.Date(2026, 4, 1, 1, 0, 0, 0, time.UTC)
	job.clock = func() time.Time { return fixed }
	task, err = NewOverdueSweepTask(time.Time{})
	require.NoError(t, err)
	require.NoError(t, job.Handle(context.Background(), task))
	require.True(t, sweeper.asOf.Equal(fixed))

	sweeper.err = errors.New("invoice 4 conflict")
	require.Error(t, job.Handle(context.Background(), task))

	err = job.Handle(context.Background(), asynq.NewTask(TaskOverdueSweep, []byte("{")))
	require.ErrorIs(t, err, asynq.SkipRetry)
}

func TestIdempotencyCleanupDefaultsRetention(t *testing.T) {
	pruner := &fakePruner{}
	job := &IdempotencyCleanupJob{Pruner: pruner}
	require.NoError(t, job.Handle(context.Background(), NewIdempotencyCleanupTask()))
	require.Equal(t, DefaultIdempotencyRetention, pruner.retention)
}

func TestDocumentCommittedFansOut(t *testing.T) {
	metrics, reg := newMetrics(t)
	collaborator := &recordingCollaborator{}
	h := NewDocumentCommittedHandler(nil, metrics, collaborator)
	payload := DocumentCommittedPayload{Module: "purchase_order", DocumentID: 4, Number: "PO-4", Event: "confirm", Status: "OPEN"}
	task, err := NewDocumentCommittedTask(payload)
	require.NoError(t, err)

	require.NoError(t, h.ProcessTask(context.Background(), task))
	require.Len(t, collaborator.seen, 1)
	require.Equal(t, "PO-4", collaborator.seen[0].Number)

	collaborator.err = errors.New("renderer down")
	require.Error(t, h.ProcessTask(context.Background(), task))
	require.Equal(t, float64(1), counterTotal(t, reg, "odyssey_jobs_failures_total"))

	err = h.ProcessTask(context.Background(), asynq.NewTask(TaskDocumentCommitted, []byte("not json")))
	require.ErrorIs(t, err, asynq.SkipRetry)
}

func counterTotal(t *testing.T, reg *prometheus.Registry, name string) float64 {
	t.Helper()
	families, err := reg.Gather()
	require.NoError(t, err)
	total := 0.0
	for _, f := range families {
		if f.GetName() != name {
			continue
		}
		for _, m := range f.GetMetric() {
			total += m.GetCounter().GetValue()
		}
	}
	return total
}

func TestTaskIDIsStablePerTransition(t *testing.T) {
	a := DocumentCommittedPayload{Module: "invoice", DocumentID: 1, Event: "issue", Status: "ISSUED", OccurredAt: time.Now()}
	b := a
	b.OccurredAt = a.OccurredAt.Add(time.Minute)
	require.Equal(t, a.TaskID(), b.TaskID())
	b.Event = "void"
	require.NotEqual(t, a.TaskID(), b.TaskID())
}

func TestClientDispatchDeduplicates(t *testing.T) {
	mr := miniredis.RunT(t)
	client, err := NewClient(asynq.RedisClientOpt{Addr: mr.Addr()})
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	payload := DocumentCommittedPayload{Module: "purchase_order", DocumentID: 4, Number: "PO-4", Event: "confirm", Status: "OPEN"}
	ctx := context.Background()
	require.NoError(t, client.Dispatch(ctx, payload))
	require.NoError(t, client.Dispatch(ctx, payload))

	pending, err := mr.List("asynq:{" + QueueCritical + "}:pending")
	require.NoError(t, err)
	require.Len(t, pending, 1)
}

func TestActivityFeedKeepsLatestPerDepartment(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	feed := NewActivityFeed(client, "odyssey", 2, time.Hour)
	ctx := context.Background()
	base := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)

	for i, ev := range []string{"submit", "approve", "convert"} {
		p := DocumentCommittedPayload{Module: "purchase_request", DocumentID: 1, Number: "PR-1", Event: ev, Department: "Produksi", OccurredAt: base.Add(time.Duration(i) * time.Minute)}
		require.NoError(t, feed.DocumentCommitted(ctx, p))
		// redelivery of the same transition is absorbed
		require.NoError(t, feed.DocumentCommitted(ctx, p))
	}
	require.NoError(t, feed.DocumentCommitted(ctx, DocumentCommittedPayload{Module: "invoice", DocumentID: 3, Event: "issue", Department: "Finance", OccurredAt: base}))

	recent, err := feed.Recent(ctx, " produksi", 10)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	require.Equal(t, "convert", recent[0].Event)
	require.Equal(t, "approve", recent[1].Event)
	require.True(t, mr.Exists("odyssey:activity:finance"))
	require.Equal(t, time.Hour, mr.TTL("odyssey:activity:produksi"))
}
