package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/odyssey-erp/odyssey-textile/internal/platform/db"
	"github.com/odyssey-erp/odyssey-textile/internal/shared"
)

// Repository persists journals in PostgreSQL. Balances are always aggregated
// from journal_lines; no balance column exists to drift.
type Repository struct {
	db db.Querier
}

// NewRepository binds the repository to a pool or transaction.
func NewRepository(q db.Querier) *Repository {
	return &Repository{db: q}
}

var _ Store = (*Repository)(nil)

// FindEntry loads the entry keyed by (reference, kind).
func (r *Repository) FindEntry(ctx context.Context, reference string, kind Kind) (Entry, error) {
	var e Entry
	err := r.db.QueryRow(ctx, `SELECT id, reference, kind, period_id, date, memo, COALESCE(posted_by, 0), reversal_of, posted_at
FROM journal_entries WHERE reference=$1 AND kind=$2`, reference, string(kind)).
		Scan(&e.ID, &e.Reference, &e.Kind, &e.PeriodID, &e.Date, &e.Memo, &e.PostedBy, &e.ReversalOf, &e.PostedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Entry{}, shared.ErrNotFound
		}
		return Entry{}, err
	}
	lines, err := r.lines(ctx, e.ID)
	if err != nil {
		return Entry{}, err
	}
	e.Lines = lines
	return e, nil
}

// ResolveAccount maps a bucket onto its chart account.
func (r *Repository) ResolveAccount(ctx context.Context, bucket Bucket) (int64, error) {
	var id int64
	err := r.db.QueryRow(ctx, `SELECT m.account_id FROM account_mappings m
JOIN accounts a ON a.id = m.account_id AND a.is_active
WHERE m.bucket=$1`, string(bucket)).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, shared.ErrNotFound
	}
	return id, err
}

// FindOpenPeriod returns the open period covering date. The row is locked so a
// concurrent close waits for the posting transaction.
func (r *Repository) FindOpenPeriod(ctx context.Context, date time.Time) (Period, error) {
	var p Period
	err := r.db.QueryRow(ctx, `SELECT id, code, start_date, end_date, status FROM periods
WHERE status='OPEN' AND start_date <= $1::date AND end_date >= $1::date
ORDER BY start_date LIMIT 1 FOR SHARE`, date).
		Scan(&p.ID, &p.Code, &p.StartDate, &p.EndDate, &p.Status)
	if errors.Is(err, pgx.ErrNoRows) {
		return Period{}, shared.ErrNotFound
	}
	return p, err
}

// InsertEntry writes the header and its lines.
func (r *Repository) InsertEntry(ctx context.Context, entry Entry) (Entry, error) {
	err := r.db.QueryRow(ctx, `INSERT INTO journal_entries (reference, kind, period_id, date, memo, posted_by, reversal_of, posted_at)
VALUES ($1, $2, $3, $4, $5, NULLIF($6, 0), $7, $8) RETURNING id`,
		entry.Reference, string(entry.Kind), entry.PeriodID, entry.Date, entry.Memo, entry.PostedBy, entry.ReversalOf, entry.PostedAt).
		Scan(&entry.ID)
	if err != nil {
		if db.IsUniqueViolation(err) {
			return Entry{}, fmt.Errorf("journal %s/%s: %w", entry.Reference, entry.Kind, shared.ErrAlreadyProcessed)
		}
		return Entry{}, fmt.Errorf("ledger: insert entry: %w", err)
	}
	for i := range entry.Lines {
		line := &entry.Lines[i]
		line.EntryID = entry.ID
		if err := r.db.QueryRow(ctx, `INSERT INTO journal_lines (entry_id, account_id, bucket, debit, credit)
VALUES ($1, $2, $3, $4, $5) RETURNING id`, entry.ID, line.AccountID, string(line.Bucket), line.Debit, line.Credit).Scan(&line.ID); err != nil {
			return Entry{}, fmt.Errorf("ledger: insert line: %w", err)
		}
	}
	return entry, nil
}

// EntriesByReference lists every entry posted for a document.
func (r *Repository) EntriesByReference(ctx context.Context, reference string) ([]Entry, error) {
	rows, err := r.db.Query(ctx, `SELECT id, reference, kind, period_id, date, memo, COALESCE(posted_by, 0), reversal_of, posted_at
FROM journal_entries WHERE reference=$1 ORDER BY id`, reference)
	if err != nil {
		return nil, err
	}
	entries, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (Entry, error) {
		var e Entry
		err := row.Scan(&e.ID, &e.Reference, &e.Kind, &e.PeriodID, &e.Date, &e.Memo, &e.PostedBy, &e.ReversalOf, &e.PostedAt)
		return e, err
	})
	if err != nil {
		return nil, err
	}
	for i := range entries {
		if entries[i].Lines, err = r.lines(ctx, entries[i].ID); err != nil {
			return nil, err
		}
	}
	return entries, nil
}

// AccountBalance aggregates the lines of one account up to asOf.
func (r *Repository) AccountBalance(ctx context.Context, accountID int64, asOf time.Time) (Balance, error) {
	b := Balance{AccountID: accountID}
	err := r.db.QueryRow(ctx, `SELECT a.code, a.name, COALESCE(SUM(l.debit), 0), COALESCE(SUM(l.credit), 0)
FROM accounts a
LEFT JOIN journal_lines l ON l.account_id = a.id
LEFT JOIN journal_entries e ON e.id = l.entry_id
WHERE a.id=$1 AND (e.id IS NULL OR e.date <= $2::date)
GROUP BY a.code, a.name`, accountID, asOf).Scan(&b.Code, &b.Name, &b.Debit, &b.Credit)
	if errors.Is(err, pgx.ErrNoRows) {
		return Balance{}, fmt.Errorf("account %d: %w", accountID, shared.ErrNotFound)
	}
	return b, err
}

// TrialBalance aggregates every account with activity up to asOf.
func (r *Repository) TrialBalance(ctx context.Context, asOf time.Time) ([]Balance, error) {
	rows, err := r.db.Query(ctx, `SELECT a.id, a.code, a.name, SUM(l.debit), SUM(l.credit)
FROM journal_lines l
JOIN journal_entries e ON e.id = l.entry_id
JOIN accounts a ON a.id = l.account_id
WHERE e.date <= $1::date
GROUP BY a.id, a.code, a.name
ORDER BY a.code`, asOf)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (Balance, error) {
		var b Balance
		err := row.Scan(&b.AccountID, &b.Code, &b.Name, &b.Debit, &b.Credit)
		return b, err
	})
}

// UnbalancedEntries returns entries whose lines do not net to zero.
func (r *Repository) UnbalancedEntries(ctx context.Context) ([]Imbalance, error) {
	rows, err := r.db.Query(ctx, `SELECT e.id, e.reference, e.kind, COALESCE(SUM(l.debit), 0), COALESCE(SUM(l.credit), 0)
FROM journal_entries e
LEFT JOIN journal_lines l ON l.entry_id = e.id
GROUP BY e.id, e.reference, e.kind
HAVING COALESCE(SUM(l.debit), 0) <> COALESCE(SUM(l.credit), 0) OR COUNT(l.id) < 2`)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (Imbalance, error) {
		var im Imbalance
		err := row.Scan(&im.EntryID, &im.Reference, &im.Kind, &im.Debit, &im.Credit)
		return im, err
	})
}

func (r *Repository) lines(ctx context.Context, entryID int64) ([]Line, error) {
	rows, err := r.db.Query(ctx, `SELECT id, entry_id, account_id, bucket, debit, credit FROM journal_lines WHERE entry_id=$1 ORDER BY id`, entryID)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (Line, error) {
		var l Line
		err := row.Scan(&l.ID, &l.EntryID, &l.AccountID, &l.Bucket, &l.Debit, &l.Credit)
		return l, err
	})
}
