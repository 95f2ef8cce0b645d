package memstore

import (
	"context"

	"github.com/odyssey-erp/odyssey-textile/internal/shared"
)

type auditStore struct {
	db *DB
}

func (s auditStore) Record(ctx context.Context, log shared.AuditLog) error {
	if err := log.Validate(); err != nil {
		return err
	}
	if err := s.db.fail("audit.Record"); err != nil {
		return err
	}
	if log.At.IsZero() {
		log.At = s.db.now()
	}
	s.db.st.audit = append(s.db.st.audit, log)
	return nil
}

type approvalStore struct {
	db *DB
}

func (s approvalStore) Record(ctx context.Context, log shared.ApprovalLog) error {
	if err := log.Validate(); err != nil {
		return err
	}
	log.ID = s.db.st.next()
	if log.At.IsZero() {
		log.At = s.db.now()
	}
	s.db.st.approvals = append(s.db.st.approvals, log)
	return nil
}

type idempotencyStore struct {
	db *DB
}

func (s idempotencyStore) Claim(ctx context.Context, key, module string) error {
	k := module + ":" + key
	if s.db.st.idem[k] {
		return shared.ErrIdempotencyConflict
	}
	s.db.st.idem[k] = true
	return nil
}
