package app

import (
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/coopledger/coopledger/internal/audit"
	"github.com/coopledger/coopledger/internal/contributions"
	"github.com/coopledger/coopledger/internal/credit"
	"github.com/coopledger/coopledger/internal/integration"
	"github.com/coopledger/coopledger/internal/ledger/accounts"
	"github.com/coopledger/coopledger/internal/ledger/balances"
	"github.com/coopledger/coopledger/internal/ledger/journals"
	"github.com/coopledger/coopledger/internal/ledger/mappings"
	"github.com/coopledger/coopledger/internal/ledger/reports"
	"github.com/coopledger/coopledger/internal/members"
	"github.com/coopledger/coopledger/internal/platform/cache"
	"github.com/coopledger/coopledger/internal/savings"
	"github.com/coopledger/coopledger/internal/shared"
)

// Core holds the domain services shared by the API server and the worker.
type Core struct {
	Accounts      *accounts.Service
	Journals      *journals.Service
	Balances      *balances.Calculator
	Reports       *reports.Service
	Contributions *contributions.Service
	Credit        *credit.Service
	Savings       *savings.Service
	Audit         *audit.Service
	Idempotency   *shared.IdempotencyStore
}

// NewCore wires repositories, ledger hooks and Redis backed helpers. A nil
// redis client disables the balance cache and batch locks.
func NewCore(cfg *Config, pool *pgxpool.Pool, redisClient *redis.Client, logger *slog.Logger) (*Core, error) {
	moraRate, err := cfg.MoraRate()
	if err != nil {
		return nil, err
	}

	auditLogger := shared.NewAuditLogger(pool)
	idempotencyStore := shared.NewIdempotencyStore(pool)
	locker := cache.NewLocker(redisClient, cfg.BatchLockTTL)
	directory := members.NewRepository(pool)

	accountService := accounts.NewService(accounts.NewRepository(pool), auditLogger)
	balanceCache := balances.NewCache(redisClient, cfg.BalanceCacheTTL)
	calculator := balances.NewCalculator(balances.NewRepository(pool), accountService, balanceCache)
	journalService := journals.NewService(journals.NewRepository(pool), auditLogger, balanceCache, logger)
	reportService := reports.NewService(calculator, logger)

	hooks := integration.NewHooks(journalService, mappings.NewRepository(pool))

	contributionService := contributions.NewService(contributions.NewRepository(pool), directory, hooks, journalService, auditLogger, logger)

	creditService := credit.NewService(credit.NewRepository(pool), directory, logger).
		WithLedger(hooks, journalService).
		WithAudit(auditLogger).
		WithLocker(locker).
		WithIdempotency(idempotencyStore).
		WithMoraRate(moraRate)

	savingsService := savings.NewService(savings.NewRepository(pool), directory, logger).
		WithAudit(auditLogger).
		WithLocker(locker)

	return &Core{
		Accounts:      accountService,
		Journals:      journalService,
		Balances:      calculator,
		Reports:       reportService,
		Contributions: contributionService,
		Credit:        creditService,
		Savings:       savingsService,
		Audit:         audit.NewService(audit.NewRepository(pool)),
		Idempotency:   idempotencyStore,
	}, nil
}
