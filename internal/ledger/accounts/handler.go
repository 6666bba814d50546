package accounts

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/coopledger/coopledger/internal/platform/httpx"
	"github.com/coopledger/coopledger/internal/rbac"
	"github.com/coopledger/coopledger/internal/shared"
)

// Handler exposes the chart of accounts over HTTP.
type Handler struct {
	service   *Service
	logger    *slog.Logger
	validator *httpx.Validator
	rbac      rbac.Middleware
}

func NewHandler(logger *slog.Logger, service *Service, validator *httpx.Validator, rbac rbac.Middleware) *Handler {
	return &Handler{logger: logger, service: service, validator: validator, rbac: rbac}
}

func (h *Handler) MountRoutes(r chi.Router) {
	r.With(h.rbac.RequireAny(shared.PermLedgerView)).Get("/", h.list)
	r.With(h.rbac.RequireAny(shared.PermLedgerView)).Get("/{id}", h.get)
	r.With(h.rbac.RequireAll(shared.PermLedgerAccountsEdit)).Post("/", h.create)
	r.With(h.rbac.RequireAll(shared.PermLedgerAccountsEdit)).Patch("/{id}", h.update)
	r.With(h.rbac.RequireAll(shared.PermLedgerAccountsEdit)).Post("/{id}/deactivate", h.deactivate)
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	level, err := httpx.Int64Query(r, "level")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	filter := ListFilter{
		Type:         AccountType(q.Get("type")),
		Level:        int(level),
		ActiveOnly:   httpx.BoolQuery(r, "active"),
		PostableOnly: httpx.BoolQuery(r, "postable"),
	}
	if code := q.Get("code"); code != "" {
		account, err := h.service.GetByCode(r.Context(), code)
		if err != nil {
			h.fail(w, "get account by code", err)
			return
		}
		httpx.JSON(w, http.StatusOK, []Account{account})
		return
	}
	accounts, err := h.service.List(r.Context(), filter)
	if err != nil {
		h.fail(w, "list accounts", err)
		return
	}
	httpx.JSON(w, http.StatusOK, accounts)
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	account, err := h.service.Get(r.Context(), id)
	if err != nil {
		h.fail(w, "get account", err)
		return
	}
	httpx.JSON(w, http.StatusOK, account)
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var in CreateInput
	if err := h.validator.Decode(r, &in); err != nil {
		httpx.RespondError(w, err)
		return
	}
	in.ActorID = shared.ActorID(r.Context())
	account, err := h.service.Create(r.Context(), in)
	if err != nil {
		h.fail(w, "create account", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, account)
}

func (h *Handler) update(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var in UpdateInput
	if err := h.validator.Decode(r, &in); err != nil {
		httpx.RespondError(w, err)
		return
	}
	in.ActorID = shared.ActorID(r.Context())
	account, err := h.service.Update(r.Context(), id, in)
	if err != nil {
		h.fail(w, "update account", err)
		return
	}
	httpx.JSON(w, http.StatusOK, account)
}

func (h *Handler) deactivate(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	account, err := h.service.Deactivate(r.Context(), id, shared.ActorID(r.Context()))
	if err != nil {
		h.fail(w, "deactivate account", err)
		return
	}
	httpx.JSON(w, http.StatusOK, account)
}

func (h *Handler) fail(w http.ResponseWriter, op string, err error) {
	if httpx.Status(err) >= http.StatusInternalServerError {
		h.logger.Error(op, slog.Any("error", err))
	}
	httpx.RespondError(w, err)
}
