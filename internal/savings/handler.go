package savings

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/coopledger/coopledger/internal/platform/httpx"
	"github.com/coopledger/coopledger/internal/rbac"
	"github.com/coopledger/coopledger/internal/shared"
)

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
	r.With(h.rbac.RequireAny(shared.PermSavingsView)).Get("/", h.list)
	r.With(h.rbac.RequireAny(shared.PermSavingsView)).Get("/stats", h.stats)
	r.With(h.rbac.RequireAny(shared.PermSavingsView, shared.PermSavingsSettings)).Get("/settings", h.settings)
	r.With(h.rbac.RequireAll(shared.PermSavingsSettings)).Put("/settings", h.updateSettings)
	r.With(h.rbac.RequireAll(shared.PermSavingsManage)).Post("/interest/accrue", h.accrueInterest)
	r.With(h.rbac.RequireAll(shared.PermSavingsManage)).Post("/fees/charge", h.chargeFees)
	r.With(h.rbac.RequireAny(shared.PermSavingsView)).Get("/{id}", h.get)
	r.With(h.rbac.RequireAny(shared.PermSavingsView)).Get("/{id}/movements", h.movements)
	r.With(h.rbac.RequireAll(shared.PermSavingsOperate)).Post("/", h.open)
	r.With(h.rbac.RequireAll(shared.PermSavingsOperate)).Post("/{id}/deposit", h.deposit)
	r.With(h.rbac.RequireAll(shared.PermSavingsOperate)).Post("/{id}/withdraw", h.withdraw)
	r.With(h.rbac.RequireAll(shared.PermSavingsOperate)).Post("/{id}/transfer", h.transfer)
	r.With(h.rbac.RequireAll(shared.PermSavingsManage)).Patch("/{id}", h.update)
	r.With(h.rbac.RequireAll(shared.PermSavingsManage)).Post("/{id}/cancel", h.cancel)
	r.With(h.rbac.RequireAll(shared.PermSavingsManage)).Post("/{id}/block", h.block)
	r.With(h.rbac.RequireAll(shared.PermSavingsManage)).Post("/{id}/unblock", h.unblock)
}

type listResponse struct {
	Accounts   []Account         `json:"accounts"`
	Pagination shared.Pagination `json:"pagination"`
}

type movementsResponse struct {
	Movements  []Movement        `json:"movements"`
	Pagination shared.Pagination `json:"pagination"`
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	memberID, err := httpx.Int64Query(r, "member_id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	page := shared.PaginationFromRequest(r)
	accounts, total, err := h.service.List(r.Context(), ListFilter{
		MemberID: memberID,
		Type:     Type(strings.ToUpper(r.URL.Query().Get("type"))),
		State:    State(strings.ToUpper(r.URL.Query().Get("state"))),
		Limit:    page.PerPage,
		Offset:   page.Offset(),
	})
	if err != nil {
		h.fail(w, "list savings accounts", err)
		return
	}
	httpx.JSON(w, http.StatusOK, listResponse{Accounts: accounts, Pagination: shared.NewPagination(page.Page, page.PerPage, total)})
}

func (h *Handler) stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.service.Stats(r.Context())
	if err != nil {
		h.fail(w, "savings stats", err)
		return
	}
	httpx.JSON(w, http.StatusOK, stats)
}

func (h *Handler) settings(w http.ResponseWriter, r *http.Request) {
	settings, err := h.service.Settings(r.Context())
	if err != nil {
		h.fail(w, "savings settings", err)
		return
	}
	httpx.JSON(w, http.StatusOK, settings)
}

func (h *Handler) updateSettings(w http.ResponseWriter, r *http.Request) {
	var req SettingsUpdate
	if err := h.validator.Decode(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	settings, err := h.service.UpdateSettings(r.Context(), req, shared.ActorID(r.Context()))
	if err != nil {
		h.fail(w, "update savings settings", err)
		return
	}
	httpx.JSON(w, http.StatusOK, settings)
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	acct, err := h.service.Get(r.Context(), id)
	if err != nil {
		h.fail(w, "get savings account", err)
		return
	}
	httpx.JSON(w, http.StatusOK, acct)
}

func (h *Handler) movements(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	page := shared.PaginationFromRequest(r)
	rows, total, err := h.service.Movements(r.Context(), id, page.PerPage, page.Offset())
	if err != nil {
		h.fail(w, "savings movements", err)
		return
	}
	httpx.JSON(w, http.StatusOK, movementsResponse{Movements: rows, Pagination: shared.NewPagination(page.Page, page.PerPage, total)})
}

func (h *Handler) open(w http.ResponseWriter, r *http.Request) {
	var req OpenRequest
	if err := h.validator.Decode(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	in, err := req.ToInput(shared.ActorID(r.Context()))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	acct, err := h.service.Open(r.Context(), in)
	if err != nil {
		h.fail(w, "open savings account", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, acct)
}

func (h *Handler) deposit(w http.ResponseWriter, r *http.Request) {
	id, req, ok := h.decodeMovement(w, r)
	if !ok {
		return
	}
	mov, err := h.service.Deposit(r.Context(), req.ToInput(id, shared.ActorID(r.Context())))
	if err != nil {
		h.fail(w, "savings deposit", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, mov)
}

func (h *Handler) withdraw(w http.ResponseWriter, r *http.Request) {
	id, req, ok := h.decodeMovement(w, r)
	if !ok {
		return
	}
	out, err := h.service.Withdraw(r.Context(), req.ToInput(id, shared.ActorID(r.Context())))
	if err != nil {
		h.fail(w, "savings withdrawal", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, out)
}

func (h *Handler) decodeMovement(w http.ResponseWriter, r *http.Request) (int64, MovementRequest, bool) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return 0, MovementRequest{}, false
	}
	var req MovementRequest
	if err := h.validator.Decode(r, &req); err != nil {
		httpx.RespondError(w, err)
		return 0, MovementRequest{}, false
	}
	return id, req, true
}

func (h *Handler) transfer(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req TransferRequest
	if err := h.validator.Decode(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	out, in, err := h.service.Transfer(r.Context(), TransferInput{
		SourceID:      id,
		DestinationID: req.DestinationID,
		Value:         req.Value,
		Description:   req.Description,
		ActorID:       shared.ActorID(r.Context()),
	})
	if err != nil {
		h.fail(w, "savings transfer", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, transferResponse{Out: out, In: in})
}

func (h *Handler) update(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req UpdateRequest
	if err := h.validator.Decode(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	acct, err := h.service.Update(r.Context(), UpdateInput{
		ID:           id,
		AnnualRate:   req.AnnualRate,
		GoalAmount:   req.GoalAmount,
		MonthlyQuota: req.MonthlyQuota,
		Notes:        req.Notes,
		ActorID:      shared.ActorID(r.Context()),
	})
	if err != nil {
		h.fail(w, "update savings account", err)
		return
	}
	httpx.JSON(w, http.StatusOK, acct)
}

func (h *Handler) cancel(w http.ResponseWriter, r *http.Request) {
	h.stateChange(w, r, "cancel savings account", h.service.Cancel)
}

func (h *Handler) block(w http.ResponseWriter, r *http.Request) {
	h.stateChange(w, r, "block savings account", h.service.Block)
}

func (h *Handler) unblock(w http.ResponseWriter, r *http.Request) {
	h.stateChange(w, r, "unblock savings account", h.service.Unblock)
}

func (h *Handler) stateChange(w http.ResponseWriter, r *http.Request, op string, apply func(ctx context.Context, id, actorID int64) (Account, error)) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	acct, err := apply(r.Context(), id, shared.ActorID(r.Context()))
	if err != nil {
		h.fail(w, op, err)
		return
	}
	httpx.JSON(w, http.StatusOK, acct)
}

func (h *Handler) accrueInterest(w http.ResponseWriter, r *http.Request) {
	h.batch(w, r, "accrue savings interest", h.service.AccrueInterest)
}

func (h *Handler) chargeFees(w http.ResponseWriter, r *http.Request) {
	h.batch(w, r, "charge savings fees", h.service.ChargeManagementFee)
}

func (h *Handler) batch(w http.ResponseWriter, r *http.Request, op string, run func(ctx context.Context, asOf time.Time) (BatchResult, error)) {
	asOf, err := httpx.DateQuery(r, "as_of")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	date := h.service.now()
	if asOf != nil {
		date = *asOf
	}
	result, err := run(r.Context(), date)
	if err != nil {
		h.fail(w, op, err)
		return
	}
	httpx.JSON(w, http.StatusOK, result)
}

func (h *Handler) fail(w http.ResponseWriter, op string, err error) {
	if httpx.Status(err) >= http.StatusInternalServerError {
		h.logger.Error(op, slog.Any("error", err))
	}
	httpx.RespondError(w, err)
}
