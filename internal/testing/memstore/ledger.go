package memstore

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-textile/internal/ledger"
	"github.com/odyssey-erp/odyssey-textile/internal/shared"
)

type ledgerStore struct {
	db *DB
}

var _ ledger.Store = ledgerStore{}

func (s ledgerStore) FindEntry(ctx context.Context, reference string, kind ledger.Kind) (ledger.Entry, error) {
	for _, e := range s.db.st.entries {
		if e.Reference == reference && e.Kind == kind {
			e.Lines = slices.Clone(e.Lines)
			return e, nil
		}
	}
	return ledger.Entry{}, shared.ErrNotFound
}

func (s ledgerStore) ResolveAccount(ctx context.Context, bucket ledger.Bucket) (int64, error) {
	id, ok := s.db.st.mappings[bucket]
	if !ok {
		return 0, shared.ErrNotFound
	}
	return id, nil
}

func (s ledgerStore) FindOpenPeriod(ctx context.Context, date time.Time) (ledger.Period, error) {
	for _, p := range s.db.st.periods {
		if p.Status == ledger.PeriodOpen && p.Covers(date) {
			return p, nil
		}
	}
	return ledger.Period{}, shared.ErrNotFound
}

func (s ledgerStore) InsertEntry(ctx context.Context, entry ledger.Entry) (ledger.Entry, error) {
	if err := s.db.fail("ledger.InsertEntry"); err != nil {
		return ledger.Entry{}, err
	}
	if _, err := s.FindEntry(ctx, entry.Reference, entry.Kind); err == nil {
		return ledger.Entry{}, fmt.Errorf("journal %s/%s: %w", entry.Reference, entry.Kind, shared.ErrAlreadyProcessed)
	}
	st := s.db.st
	entry.ID = st.next()
	entry.Lines = slices.Clone(entry.Lines)
	for i := range entry.Lines {
		entry.Lines[i].ID = st.next()
		entry.Lines[i].EntryID = entry.ID
	}
	st.entries = append(st.entries, entry)
	entry.Lines = slices.Clone(entry.Lines)
	return entry, nil
}

func (s ledgerStore) EntriesByReference(ctx context.Context, reference string) ([]ledger.Entry, error) {
	var out []ledger.Entry
	for _, e := range s.db.st.entries {
		if e.Reference == reference {
			e.Lines = slices.Clone(e.Lines)
			out = append(out, e)
		}
	}
	return out, nil
}

func (s ledgerStore) AccountBalance(ctx context.Context, accountID int64, asOf time.Time) (ledger.Balance, error) {
	acc, ok := s.db.st.accounts[accountID]
	if !ok {
		return ledger.Balance{}, fmt.Errorf("account %d: %w", accountID, shared.ErrNotFound)
	}
	b := ledger.Balance{AccountID: accountID, Code: acc.code, Name: acc.name, Debit: decimal.Zero, Credit: decimal.Zero}
	for _, e := range s.db.st.entries {
		if e.Date.After(asOf) {
			continue
		}
		for _, l := range e.Lines {
			if l.AccountID == accountID {
				b.Debit = b.Debit.Add(l.Debit)
				b.Credit = b.Credit.Add(l.Credit)
			}
		}
	}
	return b, nil
}

func (s ledgerStore) TrialBalance(ctx context.Context, asOf time.Time) ([]ledger.Balance, error) {
	totals := make(map[int64]*ledger.Balance)
	for _, e := range s.db.st.entries {
		if e.Date.After(asOf) {
			continue
		}
		for _, l := range e.Lines {
			b, ok := totals[l.AccountID]
			if !ok {
				acc := s.db.st.accounts[l.AccountID]
				b = &ledger.Balance{AccountID: l.AccountID, Code: acc.code, Name: acc.name, Debit: decimal.Zero, Credit: decimal.Zero}
				totals[l.AccountID] = b
			}
			b.Debit = b.Debit.Add(l.Debit)
			b.Credit = b.Credit.Add(l.Credit)
		}
	}
	out := make([]ledger.Balance, 0, len(totals))
	for _, b := range totals {
		out = append(out, *b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out, nil
}

func (s ledgerStore) UnbalancedEntries(ctx context.Context) ([]ledger.Imbalance, error) {
	var out []ledger.Imbalance
	for _, e := range s.db.st.entries {
		debit, credit := e.Totals()
		if !debit.Equal(credit) || len(e.Lines) < 2 {
			out = append(out, ledger.Imbalance{EntryID: e.ID, Reference: e.Reference, Kind: e.Kind, Debit: debit, Credit: credit})
		}
	}
	return out, nil
}
