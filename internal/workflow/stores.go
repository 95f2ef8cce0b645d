package workflow

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/odyssey-textile/internal/inventory"
	"github.com/odyssey-erp/odyssey-textile/internal/invoicing"
	"github.com/odyssey-erp/odyssey-textile/internal/ledger"
	"github.com/odyssey-erp/odyssey-textile/internal/platform/db"
	"github.com/odyssey-erp/odyssey-textile/internal/procurement"
	"github.com/odyssey-erp/odyssey-textile/internal/shared"
)

// Stores exposes every store bound to one transaction.
type Stores interface {
	Procurement() procurement.Store
	Inventory() inventory.Store
	Ledger() ledger.Store
	Invoicing() invoicing.Store
	Audit() shared.AuditRecorder
	Approvals() shared.ApprovalStore
	Idempotency() shared.IdempotencyKeys
}

// UnitOfWork runs fn atomically. Any error returned by fn rolls back every
// write it made.
type UnitOfWork interface {
	WithTx(ctx context.Context, fn func(ctx context.Context, st Stores) error) error
}

// PostgresUnitOfWork opens one READ COMMITTED transaction per call.
type PostgresUnitOfWork struct {
	pool *pgxpool.Pool
}

// NewPostgresUnitOfWork binds the unit of work to pool.
func NewPostgresUnitOfWork(pool *pgxpool.Pool) *PostgresUnitOfWork {
	return &PostgresUnitOfWork{pool: pool}
}

// WithTx implements UnitOfWork.
func (u *PostgresUnitOfWork) WithTx(ctx context.Context, fn func(ctx context.Context, st Stores) error) error {
	return db.WithTx(ctx, u.pool, func(tx pgx.Tx) error {
		return fn(ctx, pgStores{tx: tx})
	})
}

type pgStores struct {
	tx pgx.Tx
}

func (s pgStores) Procurement() procurement.Store {
	return procurement.NewRepository(s.tx)
}

func (s pgStores) Inventory() inventory.Store {
	return inventory.NewRepository(s.tx)
}

func (s pgStores) Ledger() ledger.Store {
	return ledger.NewRepository(s.tx)
}

func (s pgStores) Invoicing() invoicing.Store {
	return invoicing.NewRepository(s.tx)
}

func (s pgStores) Audit() shared.AuditRecorder {
	return shared.NewAuditLogger(s.tx)
}

func (s pgStores) Approvals() shared.ApprovalStore {
	return shared.NewApprovalRecorder(s.tx)
}

func (s pgStores) Idempotency() shared.IdempotencyKeys {
	return shared.NewIdempotencyStore(s.tx)
}
