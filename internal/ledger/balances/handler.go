package balances

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/coopledger/coopledger/internal/platform/httpx"
	"github.com/coopledger/coopledger/internal/rbac"
	"github.com/coopledger/coopledger/internal/shared"
)

type Handler struct {
	calc   *Calculator
	logger *slog.Logger
	rbac   rbac.Middleware
}

func NewHandler(logger *slog.Logger, calc *Calculator, rbac rbac.Middleware) *Handler {
	return &Handler{logger: logger, calc: calc, rbac: rbac}
}

func (h *Handler) MountRoutes(r chi.Router) {
	r.With(h.rbac.RequireAny(shared.PermLedgerView, shared.PermReportsView)).Get("/{accountID}", h.balance)
}

func (h *Handler) balance(w http.ResponseWriter, r *http.Request) {
	accountID, err := httpx.IDParam(r, "accountID")
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
	thirdPartyID, err := httpx.Int64Query(r, "third_party_id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var balance Balance
	if thirdPartyType := r.URL.Query().Get("third_party_type"); thirdPartyType != "" || thirdPartyID != 0 {
		balance, err = h.calc.ThirdPartyBalance(r.Context(), accountID, thirdPartyType, thirdPartyID, from, to)
	} else {
		balance, err = h.calc.Balance(r.Context(), accountID, from, to)
	}
	if err != nil {
		if httpx.Status(err) >= http.StatusInternalServerError {
			h.logger.Error("account balance", slog.Int64("account", accountID), slog.Any("error", err))
		}
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, balance)
}
