package credit

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/coopledger/coopledger/internal/platform/httpx"
	"github.com/coopledger/coopledger/internal/rbac"
	"github.com/coopledger/coopledger/internal/shared"
)

// HeaderIdempotencyKey lets clients retry payments safely.
const HeaderIdempotencyKey = "Idempotency-Key"

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
	r.With(h.rbac.RequireAny(shared.PermCreditView)).Get("/", h.list)
	r.With(h.rbac.RequireAny(shared.PermCreditView)).Get("/stats", h.stats)
	r.With(h.rbac.RequireAny(shared.PermCreditView, shared.PermCreditRequest)).Post("/simulate", h.simulate)
	r.With(h.rbac.RequireAll(shared.PermCreditMoraRun)).Post("/mora/accrue", h.accrueMora)
	r.With(h.rbac.RequireAny(shared.PermCreditView)).Get("/{id}", h.get)
	r.With(h.rbac.RequireAny(shared.PermCreditView)).Get("/{id}/schedule", h.schedule)
	r.With(h.rbac.RequireAny(shared.PermCreditView)).Get("/{id}/payments", h.payments)
	r.With(h.rbac.RequireAll(shared.PermCreditRequest)).Post("/", h.request)
	r.With(h.rbac.RequireAll(shared.PermCreditApprove)).Post("/{id}/review", h.review)
	r.With(h.rbac.RequireAll(shared.PermCreditApprove)).Post("/{id}/approve", h.approve)
	r.With(h.rbac.RequireAll(shared.PermCreditApprove)).Post("/{id}/reject", h.reject)
	r.With(h.rbac.RequireAll(shared.PermCreditDisburse)).Post("/{id}/disburse", h.disburse)
	r.With(h.rbac.RequireAll(shared.PermCreditCollect)).Post("/{id}/payments", h.pay)
}

type listResponse struct {
	Loans      []Loan            `json:"loans"`
	Pagination shared.Pagination `json:"pagination"`
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	memberID, err := httpx.Int64Query(r, "member_id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	page := shared.PaginationFromRequest(r)
	loans, total, err := h.service.List(r.Context(), ListFilter{
		MemberID: memberID,
		State:    State(strings.ToUpper(r.URL.Query().Get("state"))),
		Type:     Type(strings.ToUpper(r.URL.Query().Get("type"))),
		Limit:    page.PerPage,
		Offset:   page.Offset(),
	})
	if err != nil {
		h.fail(w, "list loans", err)
		return
	}
	httpx.JSON(w, http.StatusOK, listResponse{Loans: loans, Pagination: shared.NewPagination(page.Page, page.PerPage, total)})
}

func (h *Handler) stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.service.Stats(r.Context())
	if err != nil {
		h.fail(w, "loan stats", err)
		return
	}
	httpx.JSON(w, http.StatusOK, stats)
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	loan, err := h.service.Get(r.Context(), id)
	if err != nil {
		h.fail(w, "get loan", err)
		return
	}
	httpx.JSON(w, http.StatusOK, loan)
}

func (h *Handler) schedule(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	rows, err := h.service.Schedule(r.Context(), id)
	if err != nil {
		h.fail(w, "loan schedule", err)
		return
	}
	httpx.JSON(w, http.StatusOK, rows)
}

func (h *Handler) payments(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	payments, err := h.service.Payments(r.Context(), id)
	if err != nil {
		h.fail(w, "loan payments", err)
		return
	}
	httpx.JSON(w, http.StatusOK, payments)
}

func (h *Handler) simulate(w http.ResponseWriter, r *http.Request) {
	var req SimulateRequest
	if err := h.validator.Decode(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	terms, err := req.ToTerms()
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	sim, err := h.service.Simulate(terms)
	if err != nil {
		h.fail(w, "simulate loan", err)
		return
	}
	httpx.JSON(w, http.StatusOK, sim)
}

func (h *Handler) request(w http.ResponseWriter, r *http.Request) {
	var req RequestRequest
	if err := h.validator.Decode(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	loan, err := h.service.Request(r.Context(), req.ToInput(shared.ActorID(r.Context())))
	if err != nil {
		h.fail(w, "request loan", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, loan)
}

func (h *Handler) review(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	loan, err := h.service.StartReview(r.Context(), id, shared.ActorID(r.Context()))
	if err != nil {
		h.fail(w, "review loan", err)
		return
	}
	httpx.JSON(w, http.StatusOK, loan)
}

func (h *Handler) approve(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req ApproveRequest
	if err := h.validator.Decode(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	loan, err := h.service.Approve(r.Context(), ApproveInput{
		LoanID:     id,
		Amount:     req.Amount,
		AnnualRate: req.AnnualRate,
		TermMonths: req.TermMonths,
		Notes:      req.Notes,
		ActorID:    shared.ActorID(r.Context()),
	})
	if err != nil {
		h.fail(w, "approve loan", err)
		return
	}
	httpx.JSON(w, http.StatusOK, loan)
}

func (h *Handler) reject(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req RejectRequest
	if err := h.validator.Decode(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	loan, err := h.service.Reject(r.Context(), id, req.Reason, shared.ActorID(r.Context()))
	if err != nil {
		h.fail(w, "reject loan", err)
		return
	}
	httpx.JSON(w, http.StatusOK, loan)
}

func (h *Handler) disburse(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req DisburseRequest
	if err := h.validator.Decode(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	in, err := req.ToInput(id, shared.ActorID(r.Context()))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	loan, err := h.service.Disburse(r.Context(), in)
	if err != nil {
		h.fail(w, "disburse loan", err)
		return
	}
	httpx.JSON(w, http.StatusOK, loan)
}

func (h *Handler) pay(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req PaymentRequest
	if err := h.validator.Decode(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	in, err := req.ToInput(id, shared.ActorID(r.Context()), r.Header.Get(HeaderIdempotencyKey))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	payment, err := h.service.RegisterPayment(r.Context(), in)
	if err != nil {
		h.fail(w, "register payment", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, payment)
}

func (h *Handler) accrueMora(w http.ResponseWriter, r *http.Request) {
	asOf, err := httpx.DateQuery(r, "as_of")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	date := h.service.today()
	if asOf != nil {
		date = *asOf
	}
	result, err := h.service.AccrueMora(r.Context(), date)
	if err != nil {
		h.fail(w, "accrue mora", err)
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
