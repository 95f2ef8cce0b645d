package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-textile/internal/shared"
)

// Store is the transaction bound persistence used by Engine.
type Store interface {
	// FindEntry returns shared.ErrNotFound when no entry has the key.
	FindEntry(ctx context.Context, reference string, kind Kind) (Entry, error)
	ResolveAccount(ctx context.Context, bucket Bucket) (int64, error)
	FindOpenPeriod(ctx context.Context, date time.Time) (Period, error)
	// InsertEntry stores header and lines. A duplicate (reference, kind)
	// yields shared.ErrAlreadyProcessed.
	InsertEntry(ctx context.Context, entry Entry) (Entry, error)
	EntriesByReference(ctx context.Context, reference string) ([]Entry, error)
	AccountBalance(ctx context.Context, accountID int64, asOf time.Time) (Balance, error)
	TrialBalance(ctx context.Context, asOf time.Time) ([]Balance, error)
	UnbalancedEntries(ctx context.Context) ([]Imbalance, error)
}

// ImbalanceObserver is notified of every rejected journal.
type ImbalanceObserver interface {
	ObserveImbalance(kind string)
}

// Engine converts transitions into balanced journal entries.
type Engine struct {
	logger   *slog.Logger
	observer ImbalanceObserver
	now      func() time.Time
}

// NewEngine constructs the posting engine. observer may be nil.
func NewEngine(logger *slog.Logger, observer ImbalanceObserver) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{logger: logger, observer: observer, now: time.Now}
}

// WithNow overrides the clock for testing.
func (e *Engine) WithNow(now func() time.Time) {
	if now != nil {
		e.now = now
	}
}

// Post records the entry implied by req. When an entry with the same
// (reference, kind) exists the call is a no-op and Result.Replayed is set.
func (e *Engine) Post(ctx context.Context, st Store, req PostingRequest) (Result, error) {
	if err := validateRequest(req); err != nil {
		return Result{}, err
	}
	existing, err := st.FindEntry(ctx, req.Reference, req.Kind)
	if err == nil {
		return Result{Entry: existing, Replayed: true}, nil
	}
	if !errors.Is(err, shared.ErrNotFound) {
		return Result{}, fmt.Errorf("ledger: find entry: %w", err)
	}

	lines, err := e.buildLines(ctx, st, req.Amounts)
	if err != nil {
		return Result{}, err
	}
	entry := Entry{
		Reference: req.Reference,
		Kind:      req.Kind,
		Date:      e.postingDate(req.Date),
		Memo:      req.Memo,
		PostedBy:  req.PostedBy,
		Lines:     lines,
	}
	return e.insert(ctx, st, entry)
}

// Reverse posts the mirror image of the entry recorded for (Reference,
// Original). Nothing to reverse yields Result.Skipped.
func (e *Engine) Reverse(ctx context.Context, st Store, req ReversalRequest) (Result, error) {
	if req.Reference == "" || req.Original == "" || req.Kind == "" {
		return Result{}, shared.Validation("ledger: reversal needs reference and kinds")
	}
	existing, err := st.FindEntry(ctx, req.Reference, req.Kind)
	if err == nil {
		return Result{Entry: existing, Replayed: true}, nil
	}
	if !errors.Is(err, shared.ErrNotFound) {
		return Result{}, fmt.Errorf("ledger: find reversal: %w", err)
	}
	original, err := st.FindEntry(ctx, req.Reference, req.Original)
	if errors.Is(err, shared.ErrNotFound) {
		return Result{Skipped: true}, nil
	}
	if err != nil {
		return Result{}, fmt.Errorf("ledger: find original: %w", err)
	}

	lines := make([]Line, 0, len(original.Lines))
	for _, l := range original.Lines {
		lines = append(lines, Line{AccountID: l.AccountID, Bucket: l.Bucket, Debit: l.Credit, Credit: l.Debit})
	}
	memo := req.Memo
	if memo == "" {
		memo = fmt.Sprintf("Reversal of %s %s", original.Kind, original.Reference)
	}
	reversalOf := original.ID
	return e.insert(ctx, st, Entry{
		Reference:  req.Reference,
		Kind:       req.Kind,
		Date:       e.postingDate(req.Date),
		Memo:       memo,
		PostedBy:   req.PostedBy,
		ReversalOf: &reversalOf,
		Lines:      lines,
	})
}

func (e *Engine) insert(ctx context.Context, st Store, entry Entry) (Result, error) {
	if len(entry.Lines) < 2 {
		return Result{}, shared.Validation("ledger: %s/%s needs at least two non-zero lines", entry.Reference, entry.Kind)
	}
	debit, credit := entry.Totals()
	if !debit.Equal(credit) {
		imbalance := &shared.ImbalanceError{Reference: entry.Reference, Kind: string(entry.Kind), Debit: debit, Credit: credit}
		e.logger.Error("LEDGER IMBALANCE: journal rejected",
			slog.String("reference", entry.Reference),
			slog.String("kind", string(entry.Kind)),
			slog.String("debit", debit.String()),
			slog.String("credit", credit.String()),
		)
		if e.observer != nil {
			e.observer.ObserveImbalance(string(entry.Kind))
		}
		return Result{}, imbalance
	}
	period, err := st.FindOpenPeriod(ctx, entry.Date)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return Result{}, fmt.Errorf("%w: %s", ErrNoOpenPeriod, entry.Date.Format(time.DateOnly))
		}
		return Result{}, fmt.Errorf("ledger: find period: %w", err)
	}
	if period.Status != PeriodOpen || !period.Covers(entry.Date) {
		return Result{}, fmt.Errorf("%w: %s", ErrNoOpenPeriod, entry.Date.Format(time.DateOnly))
	}
	entry.PeriodID = period.ID
	entry.PostedAt = e.now()
	stored, err := st.InsertEntry(ctx, entry)
	if err != nil {
		return Result{}, err
	}
	e.logger.Debug("journal posted",
		slog.String("reference", stored.Reference),
		slog.String("kind", string(stored.Kind)),
		slog.String("amount", debit.StringFixed(2)),
	)
	return Result{Entry: stored}, nil
}

// buildLines resolves buckets and nets amounts into one line per bucket, in
// the order buckets first appear.
func (e *Engine) buildLines(ctx context.Context, st Store, amounts []Amount) ([]Line, error) {
	net := make(map[Bucket]decimal.Decimal, len(amounts))
	order := make([]Bucket, 0, len(amounts))
	for _, a := range amounts {
		if _, seen := net[a.Bucket]; !seen {
			order = append(order, a.Bucket)
			net[a.Bucket] = decimal.Zero
		}
		switch a.Side {
		case Debit:
			net[a.Bucket] = net[a.Bucket].Add(a.Value)
		case Credit:
			net[a.Bucket] = net[a.Bucket].Sub(a.Value)
		}
	}
	lines := make([]Line, 0, len(order))
	for _, b := range order {
		v := net[b]
		if v.IsZero() {
			continue
		}
		accountID, err := st.ResolveAccount(ctx, b)
		if err != nil {
			if errors.Is(err, shared.ErrNotFound) {
				return nil, fmt.Errorf("%w: %s", ErrUnmappedBucket, b)
			}
			return nil, fmt.Errorf("ledger: resolve %s: %w", b, err)
		}
		line := Line{AccountID: accountID, Bucket: b, Debit: decimal.Zero, Credit: decimal.Zero}
		if v.IsPositive() {
			line.Debit = v
		} else {
			line.Credit = v.Neg()
		}
		lines = append(lines, line)
	}
	return lines, nil
}

func (e *Engine) postingDate(d time.Time) time.Time {
	if d.IsZero() {
		d = e.now()
	}
	return d
}

func validateRequest(req PostingRequest) error {
	if req.Reference == "" {
		return shared.Validation("ledger: reference required")
	}
	if req.Kind == "" {
		return shared.Validation("ledger: kind required")
	}
	if len(req.Amounts) == 0 {
		return shared.Validation("ledger: %s/%s has no amounts", req.Reference, req.Kind)
	}
	for _, a := range req.Amounts {
		if a.Side != Debit && a.Side != Credit {
			return shared.Validation("ledger: unknown side %q", a.Side)
		}
		if a.Value.IsNegative() {
			return shared.Validation("ledger: negative amount on %s", a.Bucket)
		}
	}
	return nil
}

// BucketBalance derives the balance of the account mapped to bucket from its
// journal lines as of asOf.
func (e *Engine) BucketBalance(ctx context.Context, st Store, bucket Bucket, asOf time.Time) (Balance, error) {
	accountID, err := st.ResolveAccount(ctx, bucket)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return Balance{}, fmt.Errorf("%w: %s", ErrUnmappedBucket, bucket)
		}
		return Balance{}, err
	}
	return st.AccountBalance(ctx, accountID, e.postingDate(asOf))
}
