package journals

import (
	"github.com/go-chi/chi/v5"

	"github.com/coopledger/coopledger/internal/shared"
)

func (h *Handler) MountRoutes(r chi.Router) {
	r.With(h.rbac.RequireAny(shared.PermLedgerView)).Get("/", h.List)
	r.With(h.rbac.RequireAny(shared.PermLedgerView)).Get("/stats", h.Stats)
	r.With(h.rbac.RequireAny(shared.PermLedgerView)).Get("/{id}", h.Get)
	r.With(h.rbac.RequireAll(shared.PermLedgerPost)).Post("/", h.Create)
	r.With(h.rbac.RequireAll(shared.PermLedgerVoid)).Post("/{id}/void", h.Void)
}
