package audit

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/coopledger/coopledger/internal/platform/httpx"
	"github.com/coopledger/coopledger/internal/rbac"
	"github.com/coopledger/coopledger/internal/shared"
)

const (
	defaultDateRange = 7 * 24 * time.Hour
	maxDateRange     = 90 * 24 * time.Hour
)

// TimelineService is the read contract the handler needs.
type TimelineService interface {
	Timeline(ctx context.Context, filters TimelineFilters) (Result, error)
	Export(ctx context.Context, filters TimelineFilters) ([]TimelineRow, error)
}

type Handler struct {
	logger  *slog.Logger
	service TimelineService
	rbac    rbac.Middleware
	now     func() time.Time
}

func NewHandler(logger *slog.Logger, service TimelineService, rbac rbac.Middleware) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service, rbac: rbac, now: time.Now}
}

func (h *Handler) MountRoutes(r chi.Router) {
	r.With(h.rbac.RequireAny(shared.PermAuditView)).Get("/", h.timeline)
	r.With(h.rbac.RequireAny(shared.PermAuditExport)).Get("/export.csv", h.export)
	r.With(h.rbac.RequireAny(shared.PermAuditView)).Get("/{entity}/{entityID}", h.history)
}

func (h *Handler) timeline(w http.ResponseWriter, r *http.Request) {
	filters, err := h.parseFilters(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	result, err := h.service.Timeline(r.Context(), filters)
	if err != nil {
		h.fail(w, "load audit timeline", err)
		return
	}
	httpx.JSON(w, http.StatusOK, result)
}

func (h *Handler) export(w http.ResponseWriter, r *http.Request) {
	filters, err := h.parseFilters(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	rows, err := h.service.Export(r.Context(), filters)
	if err != nil {
		h.fail(w, "export audit timeline", err)
		return
	}
	body, err := WriteCSV(rows)
	if err != nil {
		h.fail(w, "encode csv", err)
		return
	}
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="audit-timeline.csv"`)
	if _, err := w.Write(body); err != nil {
		h.logger.Warn("write csv", slog.Any("error", err))
	}
}

// history lists every change of one entity regardless of date.
func (h *Handler) history(w http.ResponseWriter, r *http.Request) {
	filters := TimelineFilters{
		Entity:   chi.URLParam(r, "entity"),
		EntityID: chi.URLParam(r, "entityID"),
	}
	filters.Page, filters.PageSize = pageParams(r)
	result, err := h.service.Timeline(r.Context(), filters)
	if err != nil {
		h.fail(w, "load entity history", err)
		return
	}
	httpx.JSON(w, http.StatusOK, result)
}

func (h *Handler) parseFilters(r *http.Request) (TimelineFilters, error) {
	q := r.URL.Query()
	to, err := httpx.DateQuery(r, "to")
	if err != nil {
		return TimelineFilters{}, err
	}
	from, err := httpx.DateQuery(r, "from")
	if err != nil {
		return TimelineFilters{}, err
	}
	actorID, err := httpx.Int64Query(r, "actor_id")
	if err != nil {
		return TimelineFilters{}, err
	}
	today := h.now().UTC().Truncate(24 * time.Hour)
	if to == nil {
		to = &today
	}
	if from == nil {
		f := to.Add(-defaultDateRange)
		from = &f
	}
	if from.After(*to) {
		return TimelineFilters{}, fmt.Errorf("%w: from must not be after to", shared.ErrValidation)
	}
	if to.Sub(*from) > maxDateRange {
		return TimelineFilters{}, fmt.Errorf("%w: range exceeds 90 days", shared.ErrValidation)
	}
	filters := TimelineFilters{
		From:    *from,
		To:      to.AddDate(0, 0, 1),
		ActorID: actorID,
		Entity:  strings.TrimSpace(q.Get("entity")),
		Action:  strings.TrimSpace(q.Get("action")),
	}
	filters.Page, filters.PageSize = pageParams(r)
	return filters, nil
}

func pageParams(r *http.Request) (int, int) {
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	size, _ := strconv.Atoi(r.URL.Query().Get("page_size"))
	return page, size
}

func (h *Handler) fail(w http.ResponseWriter, op string, err error) {
	if httpx.Status(err) >= http.StatusInternalServerError {
		h.logger.Error(op, slog.Any("error", err))
	}
	httpx.RespondError(w, err)
}
