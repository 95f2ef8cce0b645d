package authz

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/odyssey-erp/odyssey-textile/internal/platform/httpx"
	"github.com/odyssey-erp/odyssey-textile/internal/shared"
)

// Headers set by the trusted gateway after authenticating the caller.
const (
	HeaderActorID    = "X-Actor-Id"
	HeaderActorEmail = "X-Actor-Email"
	HeaderActorRole  = "X-Actor-Role"
)

// Middleware resolves the actor once per request.
type Middleware struct {
	Resolver *ActorResolver
	Logger   *slog.Logger
}

// RequireActor rejects requests without a resolvable identity.
func (m Middleware) RequireActor(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := Identity{
			UserID: r.Header.Get(HeaderActorID),
			Email:  r.Header.Get(HeaderActorEmail),
			Role:   r.Header.Get(HeaderActorRole),
		}
		actor, err := m.Resolver.Resolve(r.Context(), id)
		if err != nil {
			if errors.Is(err, shared.ErrUnauthorized) {
				httpx.Problem(w, http.StatusUnauthorized, "Unauthenticated", "actor identity required")
				return
			}
			if m.Logger != nil {
				m.Logger.Error("resolve actor", slog.Any("error", err))
			}
			httpx.RespondError(w, err)
			return
		}
		next.ServeHTTP(w, r.WithContext(ContextWithActor(r.Context(), actor)))
	})
}
