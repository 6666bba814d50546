package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/coopledger/coopledger/internal/audit"
	"github.com/coopledger/coopledger/internal/contributions"
	"github.com/coopledger/coopledger/internal/credit"
	"github.com/coopledger/coopledger/internal/ledger/accounts"
	"github.com/coopledger/coopledger/internal/ledger/balances"
	"github.com/coopledger/coopledger/internal/ledger/journals"
	"github.com/coopledger/coopledger/internal/ledger/reports"
	"github.com/coopledger/coopledger/internal/observability"
	"github.com/coopledger/coopledger/internal/platform/httpx"
	"github.com/coopledger/coopledger/internal/rbac"
	"github.com/coopledger/coopledger/internal/savings"
	"github.com/coopledger/coopledger/jobs"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger  *slog.Logger
	Config  *Config
	Metrics *observability.Metrics

	AccountsHandler      *accounts.Handler
	JournalsHandler      *journals.Handler
	BalancesHandler      *balances.Handler
	ReportsHandler       *reports.Handler
	ContributionsHandler *contributions.Handler
	CreditHandler        *credit.Handler
	SavingsHandler       *savings.Handler
	AuditHandler         *audit.Handler
	PermissionsHandler   *rbac.PermissionsHandler
	JobHandler           *jobs.Handler
}

// NewRouter constructs the chi.Router with the cooperative API defaults.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:  params.Logger,
		Config:  params.Config,
		Metrics: params.Metrics,
	}) {
		r.Use(mw)
	}

	if params.Config == nil || !params.Config.IsProduction() {
		r.Use(chimw.Logger)
	}

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	r.Route("/api/v1", func(r chi.Router) {
		if params.AccountsHandler != nil {
			r.Route("/accounts", params.AccountsHandler.MountRoutes)
		}
		if params.JournalsHandler != nil {
			r.Route("/journals", params.JournalsHandler.MountRoutes)
		}
		if params.BalancesHandler != nil {
			r.Route("/balances", params.BalancesHandler.MountRoutes)
		}
		if params.ReportsHandler != nil {
			r.Route("/reports", params.ReportsHandler.MountRoutes)
		}
		if params.ContributionsHandler != nil {
			r.Route("/contributions", params.ContributionsHandler.MountRoutes)
		}
		if params.CreditHandler != nil {
			r.Route("/credits", params.CreditHandler.MountRoutes)
		}
		if params.SavingsHandler != nil {
			r.Route("/savings", params.SavingsHandler.MountRoutes)
		}
		if params.AuditHandler != nil {
			r.Route("/audit", params.AuditHandler.MountRoutes)
		}
		if params.PermissionsHandler != nil {
			r.Route("/permissions", params.PermissionsHandler.MountRoutes)
		}
	})

	if params.JobHandler != nil {
		r.Route("/jobs", params.JobHandler.MountRoutes)
	}
	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}

	return r
}

// NewHandlers builds every API handler over core.
func NewHandlers(params RouterParams, core *Core, rbacMiddleware rbac.Middleware) RouterParams {
	validator := httpx.NewValidator()
	logger := params.Logger
	params.AccountsHandler = accounts.NewHandler(logger, core.Accounts, validator, rbacMiddleware)
	params.JournalsHandler = journals.NewHandler(logger, core.Journals, validator, rbacMiddleware)
	params.BalancesHandler = balances.NewHandler(logger, core.Balances, rbacMiddleware)
	params.ReportsHandler = reports.NewHandler(logger, core.Reports, rbacMiddleware)
	params.ContributionsHandler = contributions.NewHandler(logger, core.Contributions, validator, rbacMiddleware)
	params.CreditHandler = credit.NewHandler(logger, core.Credit, validator, rbacMiddleware)
	params.SavingsHandler = savings.NewHandler(logger, core.Savings, validator, rbacMiddleware)
	params.AuditHandler = audit.NewHandler(logger, core.Audit, rbacMiddleware)
	params.PermissionsHandler = rbac.NewPermissionsHandler(rbacMiddleware)
	return params
}
