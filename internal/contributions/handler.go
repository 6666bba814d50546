package contributions

import (
	"log/slog"
	"net/http"
	"strings"

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
	r.With(h.rbac.RequireAny(shared.PermContributionsView)).Get("/", h.list)
	r.With(h.rbac.RequireAny(shared.PermContributionsView)).Get("/{id}", h.get)
	r.With(h.rbac.RequireAny(shared.PermContributionsView)).Get("/members/{memberID}/total", h.memberTotal)
	r.With(h.rbac.RequireAll(shared.PermContributionsRecord)).Post("/", h.register)
	r.With(h.rbac.RequireAll(shared.PermContributionsVoid)).Post("/{id}/void", h.void)
}

type listResponse struct {
	Contributions []Contribution    `json:"contributions"`
	Pagination    shared.Pagination `json:"pagination"`
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	memberID, err := httpx.Int64Query(r, "member_id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	from, err := httpx.DateQuery(r, "from")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	to, err := httpx.DateQuery(r, "to")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	page := shared.PaginationFromRequest(r)
	items, total, err := h.service.List(r.Context(), ListFilter{
		MemberID: memberID,
		Status:   Status(strings.ToUpper(r.URL.Query().Get("status"))),
		From:     from,
		To:       to,
		Limit:    page.PerPage,
		Offset:   page.Offset(),
	})
	if err != nil {
		h.fail(w, "list contributions", err)
		return
	}
	httpx.JSON(w, http.StatusOK, listResponse{Contributions: items, Pagination: shared.NewPagination(page.Page, page.PerPage, total)})
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	c, err := h.service.Get(r.Context(), id)
	if err != nil {
		h.fail(w, "get contribution", err)
		return
	}
	httpx.JSON(w, http.StatusOK, c)
}

func (h *Handler) memberTotal(w http.ResponseWriter, r *http.Request) {
	memberID, err := httpx.IDParam(r, "memberID")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	total, err := h.service.MemberTotal(r.Context(), memberID)
	if err != nil {
		h.fail(w, "member contribution total", err)
		return
	}
	httpx.JSON(w, http.StatusOK, total)
}

func (h *Handler) register(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := h.validator.Decode(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	in, err := req.ToInput(shared.ActorID(r.Context()))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	c, err := h.service.Register(r.Context(), in)
	if err != nil {
		h.fail(w, "register contribution", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, c)
}

func (h *Handler) void(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var in VoidInput
	if err := h.validator.Decode(r, &in); err != nil {
		httpx.RespondError(w, err)
		return
	}
	in.ID = id
	in.ActorID = shared.ActorID(r.Context())
	c, err := h.service.Void(r.Context(), in)
	if err != nil {
		h.fail(w, "void contribution", err)
		return
	}
	httpx.JSON(w, http.StatusOK, c)
}

func (h *Handler) fail(w http.ResponseWriter, op string, err error) {
	if httpx.Status(err) >= http.StatusInternalServerError {
		h.logger.Error(op, slog.Any("error", err))
	}
	httpx.RespondError(w, err)
}
