package workflow

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/odyssey-erp/odyssey-textile/internal/authz"
	"github.com/odyssey-erp/odyssey-textile/internal/fsm"
	"github.com/odyssey-erp/odyssey-textile/internal/shared"
	"github.com/odyssey-erp/odyssey-textile/jobs"
)

// Dispatcher hands committed documents to out-of-transaction collaborators.
type Dispatcher interface {
	Dispatch(ctx context.Context, payload jobs.DocumentCommittedPayload) error
}

// TransitionObserver counts transition outcomes.
type TransitionObserver interface {
	ObserveTransition(module, event, outcome string)
}

// Transition outcomes reported to the observer.
const (
	OutcomeApplied  = "applied"
	OutcomeReplayed = "replayed"
	OutcomeConflict = "conflict"
	OutcomeRejected = "rejected"
	OutcomeDenied   = "denied"
	OutcomeFailed   = "failed"
)

func outcomeOf(err error, replayed bool) string {
	switch {
	case err == nil && replayed:
		return OutcomeReplayed
	case err == nil:
		return OutcomeApplied
	case errors.Is(err, shared.ErrAlreadyProcessed), errors.Is(err, shared.ErrStatusConflict):
		return OutcomeConflict
	case errors.Is(err, shared.ErrInvalidTransition), errors.Is(err, shared.ErrGuardViolation),
		errors.Is(err, shared.ErrValidation), errors.Is(err, shared.ErrInsufficientStock):
		return OutcomeRejected
	case errors.Is(err, shared.ErrUnauthorized):
		return OutcomeDenied
	}
	return OutcomeFailed
}

// outbox collects the notifications of one unit of work. They are published
// only after commit.
type outbox struct {
	events   []jobs.DocumentCommittedPayload
	replayed bool
}

func (o *outbox) add(module string, id int64, number string, ev fsm.Event, status, department string, actor authz.Actor, at time.Time) {
	o.events = append(o.events, jobs.DocumentCommittedPayload{
		Module:     module,
		DocumentID: id,
		Number:     number,
		Event:      string(ev),
		Status:     status,
		Department: department,
		ActorID:    actor.EmployeeID,
		OccurredAt: at,
	})
}

func (s *Service) publish(ctx context.Context, events []jobs.DocumentCommittedPayload) {
	if s.dispatcher == nil {
		return
	}
	for _, ev := range events {
		if err := s.dispatcher.Dispatch(ctx, ev); err != nil {
			s.logger.Warn("dispatch committed document",
				slog.String("module", ev.Module),
				slog.String("number", ev.Number),
				slog.String("event", ev.Event),
				slog.Any("error", err),
			)
		}
	}
}

// transact runs fn in one unit of work and publishes its outbox after commit.
// A failed dispatch never affects the committed result.
func (s *Service) transact(ctx context.Context, module string, ev fsm.Event, fn func(ctx context.Context, st Stores, box *outbox) error) (bool, error) {
	var box outbox
	err := s.uow.WithTx(ctx, func(ctx context.Context, st Stores) error {
		box = outbox{}
		return fn(ctx, st, &box)
	})
	if s.observer != nil {
		s.observer.ObserveTransition(module, string(ev), outcomeOf(err, box.replayed))
	}
	if err != nil {
		if errors.Is(err, shared.ErrLedgerImbalance) {
			s.logger.Error("transition aborted by ledger imbalance", slog.String("module", module), slog.String("event", string(ev)), slog.Any("error", err))
		}
		return false, err
	}
	s.publish(ctx, box.events)
	return box.replayed, nil
}
