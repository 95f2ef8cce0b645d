package authz

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"golang.org/x/sync/singleflight"

	"github.com/odyssey-erp/odyssey-textile/internal/platform/cache"
	"github.com/odyssey-erp/odyssey-textile/internal/shared"
)

// Employee is the directory record behind an actor.
type Employee struct {
	ID         int64  `json:"id"`
	UserID     string `json:"user_id"`
	Email      string `json:"email"`
	Name       string `json:"name"`
	Department string `json:"department"`
	Position   string `json:"position"`
}

// Directory looks employees up and provisions missing ones.
type Directory interface {
	FindByEmail(ctx context.Context, email string) (Employee, error)
	Provision(ctx context.Context, emp Employee) (Employee, error)
}

// ActorResolver turns an asserted identity into an Actor.
type ActorResolver struct {
	dir    Directory
	cache  *cache.JSONCache
	group  singleflight.Group
	logger *slog.Logger
}

// NewActorResolver wires the resolver. cache may be nil.
func NewActorResolver(dir Directory, c *cache.JSONCache, logger *slog.Logger) *ActorResolver {
	if logger == nil {
		logger = slog.Default()
	}
	return &ActorResolver{dir: dir, cache: c, logger: logger}
}

// Resolve looks up the employee behind id, provisioning a minimal record the
// first time a known identity shows up. The role always comes from the claim.
func (r *ActorResolver) Resolve(ctx context.Context, id Identity) (Actor, error) {
	email := strings.ToLower(strings.TrimSpace(id.Email))
	if email == "" {
		return Actor{}, fmt.Errorf("authz: identity without email: %w", shared.ErrUnauthorized)
	}
	key := r.cache.Key("actor", email)

	var emp Employee
	hit, err := r.cache.Get(ctx, key, &emp)
	if err != nil {
		r.logger.Warn("actor cache read", slog.String("email", email), slog.Any("error", err))
	}
	if !hit {
		v, err, _ := r.group.Do(key, func() (any, error) {
			return r.load(ctx, key, email, id)
		})
		if err != nil {
			return Actor{}, err
		}
		emp = v.(Employee)
	}
	return Actor{
		EmployeeID: emp.ID,
		UserID:     firstNonEmpty(id.UserID, emp.UserID),
		Email:      emp.Email,
		Name:       emp.Name,
		Role:       ParseRole(id.Role),
		Department: emp.Department,
		Position:   emp.Position,
	}, nil
}

// Forget evicts a cached employee after a directory change.
func (r *ActorResolver) Forget(ctx context.Context, email string) error {
	return r.cache.Delete(ctx, r.cache.Key("actor", strings.ToLower(strings.TrimSpace(email))))
}

func (r *ActorResolver) load(ctx context.Context, key, email string, id Identity) (Employee, error) {
	emp, err := r.dir.FindByEmail(ctx, email)
	if errors.Is(err, shared.ErrNotFound) {
		emp, err = r.dir.Provision(ctx, Employee{
			UserID: id.UserID,
			Email:  email,
			Name:   displayName(email),
		})
		if err == nil {
			r.logger.Info("employee auto-provisioned", slog.String("email", email), slog.Int64("employee_id", emp.ID))
		}
	}
	if err != nil {
		return Employee{}, fmt.Errorf("authz: resolve %s: %w", email, err)
	}
	if err := r.cache.Set(ctx, key, emp); err != nil {
		r.logger.Warn("actor cache write", slog.String("email", email), slog.Any("error", err))
	}
	return emp, nil
}

func displayName(email string) string {
	local, _, _ := strings.Cut(email, "@")
	return local
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
