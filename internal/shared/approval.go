package shared

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// ApprovalAction enumerates approval log actions.
type ApprovalAction string

const (
	// ApprovalSubmit marks a submit action.
	ApprovalSubmit ApprovalAction = "SUBMIT"
	// ApprovalApprove marks an approve action.
	ApprovalApprove ApprovalAction = "APPROVE"
	// ApprovalReject marks a reject action.
	ApprovalReject ApprovalAction = "REJECT"
	// ApprovalConfirm marks a purchase order confirmation.
	ApprovalConfirm ApprovalAction = "CONFIRM"
)

// approvalNamespace seeds deterministic document ids so approval history can be
// keyed by document number without a foreign key.
var approvalNamespace = uuid.MustParse("6f1c3a52-93a4-4c55-9a5e-0b8d0f6f2d11")

// DocumentRef derives the stable approval reference of a document number.
func DocumentRef(module, number string) uuid.UUID {
	return uuid.NewSHA1(approvalNamespace, []byte(module+":"+number))
}

// ApprovalLog represents a single approval record.
type ApprovalLog struct {
	ID      int64
	Module  string
	RefID   uuid.UUID
	ActorID int64
	Action  ApprovalAction
	Note    string
	At      time.Time
}

// Validate checks the mandatory fields.
func (l ApprovalLog) Validate() error {
	if l.Module == "" {
		return errors.New("approval module required")
	}
	if l.ActorID == 0 {
		return errors.New("approval actor required")
	}
	if l.RefID == uuid.Nil {
		return errors.New("approval ref id required")
	}
	if l.Action == "" {
		return errors.New("approval action required")
	}
	return nil
}

// ApprovalStore persists approval decisions inside the caller's transaction.
type ApprovalStore interface {
	Record(ctx context.Context, log ApprovalLog) error
}

// ApprovalRecorder persists approval history.
type ApprovalRecorder struct {
	db Execer
}

// NewApprovalRecorder constructs ApprovalRecorder.
func NewApprovalRecorder(db Execer) *ApprovalRecorder {
	return &ApprovalRecorder{db: db}
}

// Record writes approval entry to database.
func (r *ApprovalRecorder) Record(ctx context.Context, log ApprovalLog) error {
	if r == nil || r.db == nil {
		return errors.New("approval recorder not initialised")
	}
	if err := log.Validate(); err != nil {
		return err
	}
	var at any
	if !log.At.IsZero() {
		at = log.At
	}
	_, err := r.db.Exec(ctx, `INSERT INTO approvals (module, ref_id, actor_id, action, note, at)
VALUES ($1, $2, $3, $4, $5, COALESCE($6, NOW()))`, log.Module, log.RefID, log.ActorID, string(log.Action), log.Note, at)
	return err
}
