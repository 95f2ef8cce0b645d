// Package workflow orchestrates document transitions. Every operation
// authorizes the actor, applies the transition under its status precondition
// and runs stock, ledger and audit side effects in one unit of work.
package workflow

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/odyssey-erp/odyssey-textile/internal/authz"
	"github.com/odyssey-erp/odyssey-textile/internal/inventory"
	"github.com/odyssey-erp/odyssey-textile/internal/ledger"
	"github.com/odyssey-erp/odyssey-textile/internal/procurement"
	"github.com/odyssey-erp/odyssey-textile/internal/shared"
)

// Module names used in audit, approval, dispatch and metric records.
const (
	ModulePurchaseRequest = "purchase_request"
	ModulePurchaseOrder   = "purchase_order"
	ModuleGoodsReceipt    = "goods_receipt"
	ModuleInvoice         = "invoice"
	ModulePayment         = "payment"
	ModuleStock           = "stock"
)

// Deps are the collaborators of Service. UnitOfWork and Authz are required.
type Deps struct {
	UnitOfWork UnitOfWork
	Authz      *authz.Resolver
	Stock      *inventory.Engine
	Ledger     *ledger.Engine
	Dispatcher Dispatcher
	Observer   TransitionObserver
	Logger     *slog.Logger
	Now        func() time.Time
}

// Service is the orchestrating service.
type Service struct {
	uow        UnitOfWork
	authz      *authz.Resolver
	stock      *inventory.Engine
	ledger     *ledger.Engine
	converter  procurement.Converter
	dispatcher Dispatcher
	observer   TransitionObserver
	logger     *slog.Logger
	now        func() time.Time
}

// NewService wires the orchestrating service.
func NewService(deps Deps) *Service {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := deps.Now
	if now == nil {
		now = time.Now
	}
	resolver := deps.Authz
	if resolver == nil {
		resolver = authz.NewResolver(nil)
	}
	stock := deps.Stock
	if stock == nil {
		stock = inventory.NewEngine(logger)
		stock.WithNow(now)
	}
	engine := deps.Ledger
	if engine == nil {
		engine = ledger.NewEngine(logger, nil)
		engine.WithNow(now)
	}
	return &Service{
		uow:        deps.UnitOfWork,
		authz:      resolver,
		stock:      stock,
		ledger:     engine,
		dispatcher: deps.Dispatcher,
		observer:   deps.Observer,
		logger:     logger,
		now:        now,
	}
}

// Result carries the document after an operation. Replayed is set when the
// document already was in the requested state and nothing was changed.
type Result[T any] struct {
	Document T    `json:"document"`
	Replayed bool `json:"replayed"`
}

func (s *Service) authorize(actor authz.Actor, action authz.Action, department string) error {
	ok, reason := s.authz.Decision(actor, action, department)
	if !ok {
		return fmt.Errorf("%s on %q by %s: %s: %w", action, department, actor.Role, reason, shared.ErrUnauthorized)
	}
	return nil
}

func (s *Service) audit(ctx context.Context, st Stores, actor authz.Actor, action, entity string, id int64, meta map[string]any) error {
	err := st.Audit().Record(ctx, shared.AuditLog{
		ActorID:  actor.EmployeeID,
		Action:   action,
		Entity:   entity,
		EntityID: strconv.FormatInt(id, 10),
		Meta:     meta,
		At:       s.now(),
	})
	if err != nil {
		return fmt.Errorf("workflow: audit %s: %w", action, err)
	}
	return nil
}

func (s *Service) approval(ctx context.Context, st Stores, module, number string, actor authz.Actor, action shared.ApprovalAction, note string) error {
	err := st.Approvals().Record(ctx, shared.ApprovalLog{
		Module:  module,
		RefID:   shared.DocumentRef(module, number),
		ActorID: actor.EmployeeID,
		Action:  action,
		Note:    note,
		At:      s.now(),
	})
	if err != nil {
		return fmt.Errorf("workflow: approval %s: %w", action, err)
	}
	return nil
}

func (s *Service) poEvent(ctx context.Context, st Stores, po procurement.PurchaseOrder, event string, from procurement.POStatus, actor authz.Actor, meta map[string]any) error {
	return st.Procurement().AppendPOEvent(ctx, procurement.POEvent{
		POID:    po.ID,
		Event:   event,
		From:    from,
		To:      po.Status,
		ActorID: actor.EmployeeID,
		Meta:    meta,
		At:      s.now(),
	})
}

func generateNumber(prefix string, at time.Time) string {
	suffix := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:8])
	return fmt.Sprintf("%s-%s-%s", prefix, at.Format("20060102"), suffix)
}

func defaultString(value, fallback string) string {
	if strings.TrimSpace(value) == "" {
		return fallback
	}
	return strings.TrimSpace(value)
}
