// Package memstore is an in-memory implementation of every transaction bound
// store, for tests. A transaction holds the database lock from start to end and
// restores a snapshot when its callback fails.
package memstore

import (
	"context"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-textile/internal/inventory"
	"github.com/odyssey-erp/odyssey-textile/internal/invoicing"
	"github.com/odyssey-erp/odyssey-textile/internal/ledger"
	"github.com/odyssey-erp/odyssey-textile/internal/procurement"
	"github.com/odyssey-erp/odyssey-textile/internal/shared"
)

type account struct {
	code string
	name string
}

type state struct {
	seq int64

	prs      map[int64]procurement.PurchaseRequest
	pos      map[int64]procurement.PurchaseOrder
	grns     map[int64]procurement.GoodsReceipt
	links    []procurement.PRItemLink
	poEvents []procurement.POEvent

	stock      map[inventory.Key]inventory.StockLevel
	movements  []inventory.Movement
	thresholds map[int64]inventory.Thresholds

	accounts map[int64]account
	mappings map[ledger.Bucket]int64
	periods  []ledger.Period
	entries  []ledger.Entry

	invoices map[int64]invoicing.Invoice
	payments map[int64]invoicing.Payment

	audit     []shared.AuditLog
	approvals []shared.ApprovalLog
	idem      map[string]bool
}

func (s *state) next() int64 {
	s.seq++
	return s.seq
}

func (s *state) clone() *state {
	c := *s
	c.prs = make(map[int64]procurement.PurchaseRequest, len(s.prs))
	for id, pr := range s.prs {
		pr.Items = slices.Clone(pr.Items)
		c.prs[id] = pr
	}
	c.pos = make(map[int64]procurement.PurchaseOrder, len(s.pos))
	for id, po := range s.pos {
		po.Items = slices.Clone(po.Items)
		c.pos[id] = po
	}
	c.grns = make(map[int64]procurement.GoodsReceipt, len(s.grns))
	for id, g := range s.grns {
		g.Items = slices.Clone(g.Items)
		c.grns[id] = g
	}
	c.links = slices.Clone(s.links)
	c.poEvents = slices.Clone(s.poEvents)
	c.stock = maps.Clone(s.stock)
	c.movements = slices.Clone(s.movements)
	c.thresholds = maps.Clone(s.thresholds)
	c.accounts = maps.Clone(s.accounts)
	c.mappings = maps.Clone(s.mappings)
	c.periods = slices.Clone(s.periods)
	c.entries = slices.Clone(s.entries)
	c.invoices = maps.Clone(s.invoices)
	c.payments = maps.Clone(s.payments)
	c.audit = slices.Clone(s.audit)
	c.approvals = slices.Clone(s.approvals)
	c.idem = maps.Clone(s.idem)
	return &c
}

// DB is the shared in-memory database.
type DB struct {
	mu          sync.Mutex
	st          *state
	committed   *state
	failures    map[string]error
	interleaved map[string]func(*Tx)
	now         func() time.Time
}

// New returns an empty database.
func New() *DB {
	return &DB{
		st: &state{
			prs:        make(map[int64]procurement.PurchaseRequest),
			pos:        make(map[int64]procurement.PurchaseOrder),
			grns:       make(map[int64]procurement.GoodsReceipt),
			stock:      make(map[inventory.Key]inventory.StockLevel),
			thresholds: make(map[int64]inventory.Thresholds),
			accounts:   make(map[int64]account),
			mappings:   make(map[ledger.Bucket]int64),
			invoices:   make(map[int64]invoicing.Invoice),
			payments:   make(map[int64]invoicing.Payment),
			idem:       make(map[string]bool),
		},
		failures:    make(map[string]error),
		interleaved: make(map[string]func(*Tx)),
		now:         time.Now,
	}
}

// FailOn makes the named operation, e.g. "ledger.InsertEntry", return err
// until cleared with a nil err.
func (db *DB) FailOn(op string, err error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	if err == nil {
		delete(db.failures, op)
		return
	}
	db.failures[op] = err
}

// Interleave runs fn once, right before the next call of op inside a
// transaction, as another transaction that commits first. Its changes survive
// a rollback of the interrupted transaction.
func (db *DB) Interleave(op string, fn func(*Tx)) {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.interleaved[op] = fn
}

func (db *DB) fail(op string) error {
	if fn, ok := db.interleaved[op]; ok {
		delete(db.interleaved, op)
		if db.committed != nil {
			working := db.st
			db.st = db.committed
			fn(&Tx{db: db})
			db.st = working
		}
		fn(&Tx{db: db})
	}
	return db.failures[op]
}

// WithTx runs fn with exclusive access. State changes are discarded when fn
// returns an error.
func (db *DB) WithTx(ctx context.Context, fn func(*Tx) error) error {
	if err := ctx.Err(); err != nil {
		return shared.Recoverable(err)
	}
	db.mu.Lock()
	defer db.mu.Unlock()
	db.committed = db.st.clone()
	defer func() { db.committed = nil }()
	if err := fn(&Tx{db: db}); err != nil {
		db.st = db.committed
		return err
	}
	return nil
}

// Tx exposes the stores bound to a running transaction.
type Tx struct {
	db *DB
}

// Procurement returns the procurement store.
func (tx *Tx) Procurement() procurement.Store { return procurementStore{db: tx.db} }

// Inventory returns the stock store.
func (tx *Tx) Inventory() inventory.Store { return inventoryStore{db: tx.db} }

// Ledger returns the journal store.
func (tx *Tx) Ledger() ledger.Store { return ledgerStore{db: tx.db} }

// Invoicing returns the invoice store.
func (tx *Tx) Invoicing() invoicing.Store { return invoicingStore{db: tx.db} }

// Audit returns the audit recorder.
func (tx *Tx) Audit() shared.AuditRecorder { return auditStore{db: tx.db} }

// Approvals returns the approval recorder.
func (tx *Tx) Approvals() shared.ApprovalStore { return approvalStore{db: tx.db} }

// Idempotency returns the idempotency key store.
func (tx *Tx) Idempotency() shared.IdempotencyKeys { return idempotencyStore{db: tx.db} }

// Seeding and inspection helpers. They take the lock themselves and must not
// be called from inside WithTx.

// AddAccount creates an account and maps bucket onto it.
func (db *DB) AddAccount(id int64, code, name string, bucket ledger.Bucket) {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.st.accounts[id] = account{code: code, name: name}
	if bucket != "" {
		db.st.mappings[bucket] = id
	}
}

// AddPeriod registers a fiscal period.
func (db *DB) AddPeriod(code string, start, end time.Time, status ledger.PeriodStatus) int64 {
	db.mu.Lock()
	defer db.mu.Unlock()
	id := db.st.next()
	db.st.periods = append(db.st.periods, ledger.Period{ID: id, Code: code, StartDate: start, EndDate: end, Status: status})
	return id
}

// SetStock overwrites a stock row.
func (db *DB) SetStock(key inventory.Key, quantity, reserved decimal.Decimal) {
	db.mu.Lock()
	defer db.mu.Unlock()
	level := db.st.stock[key]
	level.ProductID, level.WarehouseID = key.ProductID, key.WarehouseID
	level.Quantity, level.ReservedQty = quantity, reserved
	db.st.stock[key] = level
}

// SetThresholds registers a product with its replenishment settings.
func (db *DB) SetThresholds(productID int64, th inventory.Thresholds) {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.st.thresholds[productID] = th
}

// Stock returns a stock row.
func (db *DB) Stock(key inventory.Key) inventory.StockLevel {
	db.mu.Lock()
	defer db.mu.Unlock()
	level, ok := db.st.stock[key]
	if !ok {
		return inventory.StockLevel{ProductID: key.ProductID, WarehouseID: key.WarehouseID, Quantity: decimal.Zero, ReservedQty: decimal.Zero, OnOrderQty: decimal.Zero}
	}
	return level
}

// Movements returns every stock movement.
func (db *DB) Movements() []inventory.Movement {
	db.mu.Lock()
	defer db.mu.Unlock()
	return slices.Clone(db.st.movements)
}

// Entries returns every journal entry in insertion order.
func (db *DB) Entries() []ledger.Entry {
	db.mu.Lock()
	defer db.mu.Unlock()
	return slices.Clone(db.st.entries)
}

// AuditLogs returns every audit record.
func (db *DB) AuditLogs() []shared.AuditLog {
	db.mu.Lock()
	defer db.mu.Unlock()
	return slices.Clone(db.st.audit)
}

// ApprovalLogs returns every approval record.
func (db *DB) ApprovalLogs() []shared.ApprovalLog {
	db.mu.Lock()
	defer db.mu.Unlock()
	return slices.Clone(db.st.approvals)
}

// PurchaseOrders returns every purchase order ordered by id.
func (db *DB) PurchaseOrders() []procurement.PurchaseOrder {
	db.mu.Lock()
	defer db.mu.Unlock()
	ids := slices.Sorted(maps.Keys(db.st.pos))
	out := make([]procurement.PurchaseOrder, 0, len(ids))
	for _, id := range ids {
		po := db.st.pos[id]
		po.Items = slices.Clone(po.Items)
		out = append(out, po)
	}
	return out
}

// InjectEntry stores an entry without any validation, for integrity checks.
func (db *DB) InjectEntry(entry ledger.Entry) {
	db.mu.Lock()
	defer db.mu.Unlock()
	entry.ID = db.st.next()
	for i := range entry.Lines {
		entry.Lines[i].ID = db.st.next()
		entry.Lines[i].EntryID = entry.ID
	}
	db.st.entries = append(db.st.entries, entry)
}

func conflict(table string, id int64, current, from, to string) error {
	if current == from {
		return nil
	}
	return shared.Conflict(table, id, current, to)
}
