package rbac

import (
	"log/slog"
	"net/http"

	"github.com/coopledger/coopledger/internal/platform/httpx"
	"github.com/coopledger/coopledger/internal/shared"
)

// Middleware wires capability checks for HTTP handlers.
type Middleware struct {
	Logger *slog.Logger
}

// RequireAny ensures the current actor has at least one of the required permissions.
func (m Middleware) RequireAny(perms ...string) func(http.Handler) http.Handler {
	return m.require(func(granted []string) error { return CheckAny(granted, perms...) })
}

// RequireAll ensures the current actor has all required permissions.
func (m Middleware) RequireAll(perms ...string) func(http.Handler) http.Handler {
	return m.require(func(granted []string) error { return Check(granted, perms...) })
}

func (m Middleware) require(check func([]string) error) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			actor, ok := shared.ActorFromContext(r.Context())
			if !ok || actor.ID == 0 {
				httpx.RespondError(w, httpx.ErrUnauthorized)
				return
			}
			if err := check(actor.Permissions); err != nil {
				if m.Logger != nil {
					m.Logger.Warn("rbac denied", slog.Int64("actor", actor.ID), slog.String("path", r.URL.Path), slog.Any("error", err))
				}
				httpx.RespondError(w, err)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
