package savings

import (
	"context"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/coopledger/coopledger/internal/members"
	"github.com/coopledger/coopledger/internal/shared"
)

// AuditPort receives before/after images of account changes.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Locker guards monthly batch runs across processes.
type Locker interface {
	Acquire(ctx context.Context, key string) (func(context.Context) error, error)
}

// Service is the savings ledger.
type Service struct {
	repo    Repository
	members members.Directory
	audit   AuditPort
	locker  Locker
	logger  *slog.Logger
	now     func() time.Time
}

func NewService(repo Repository, dir members.Directory, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, members: dir, logger: logger, now: time.Now}
}

func (s *Service) WithAudit(audit AuditPort) *Service {
	s.audit = audit
	return s
}

func (s *Service) WithLocker(locker Locker) *Service {
	s.locker = locker
	return s
}

func (s *Service) WithNow(now func() time.Time) *Service {
	if now != nil {
		s.now = now
	}
	return s
}

// OpenInput opens an account. Nil AnnualRate takes the product default.
type OpenInput struct {
	MemberID       int64
	Type           Type
	InitialAmount  decimal.Decimal
	AnnualRate     *decimal.Decimal
	GoalAmount     *decimal.Decimal
	MonthlyQuota   *decimal.Decimal
	ScheduledStart *time.Time
	ScheduledEnd   *time.Time
	TermDays       *int
	AutoRenew      bool
	Notes          string
	ActorID        int64
}

// Open creates an account with a zero balance and logs the OPENING movement
// that brings it to the initial amount.
func (s *Service) Open(ctx context.Context, in OpenInput) (Account, error) {
	if !in.Type.Valid() {
		return Account{}, ErrInvalidType
	}
	in.InitialAmount = shared.RoundMoney(in.InitialAmount)
	if !in.InitialAmount.IsPositive() {
		return Account{}, ErrInvalidAmount
	}
	if in.Type == TypeTermDeposit && (in.TermDays == nil || *in.TermDays <= 0) {
		return Account{}, ErrTermRequired
	}
	if _, err := members.RequireActive(ctx, s.members, in.MemberID); err != nil {
		return Account{}, err
	}
	now := s.now()
	var created Account
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		settings, err := tx.Settings(ctx)
		if err != nil {
			return err
		}
		if in.InitialAmount.LessThan(settings.MinOpening) {
			return ErrBelowMinimum
		}
		if in.Type == TypeTermDeposit && in.InitialAmount.LessThan(settings.MinTermDeposit) {
			return ErrBelowMinimum
		}
		number, err := tx.NextNumber(ctx, shared.SavingsAccountScope(in.Type.Code(), now))
		if err != nil {
			return err
		}
		acct := Account{
			Number:           number,
			MemberID:         in.MemberID,
			Type:             in.Type,
			State:            StateActive,
			AvailableBalance: decimal.Zero,
			BlockedBalance:   decimal.Zero,
			AnnualRate:       settings.RateFor(in.Type),
			ManagementFee:    settings.MonthlyManagementFee,
			Notes:            strings.TrimSpace(in.Notes),
			OpenedBy:         in.ActorID,
		}
		if in.AnnualRate != nil {
			acct.AnnualRate = *in.AnnualRate
		}
		if in.Type == TypeScheduled {
			acct.GoalAmount, acct.MonthlyQuota = in.GoalAmount, in.MonthlyQuota
			acct.ScheduledStart, acct.ScheduledEnd = in.ScheduledStart, in.ScheduledEnd
		}
		if in.Type == TypeTermDeposit {
			opened := dateOnly(now)
			maturity := opened.AddDate(0, 0, *in.TermDays)
			acct.TermDays, acct.OpenedOn, acct.MaturityDate = in.TermDays, &opened, &maturity
			acct.AutoRenew = in.AutoRenew
		}
		if created, err = tx.InsertAccount(ctx, acct); err != nil {
			return err
		}
		if _, err := s.post(ctx, tx, &created, MovementOpening, in.InitialAmount, "Apertura de cuenta "+created.Number, "", in.ActorID); err != nil {
			return err
		}
		return tx.UpdateAccount(ctx, created)
	})
	if err != nil {
		return Account{}, err
	}
	s.record(ctx, in.ActorID, "savings.open", created.ID, shared.Change(nil, created))
	return created, nil
}

// MovementInput is a deposit or withdrawal request.
type MovementInput struct {
	AccountID   int64
	Value       decimal.Decimal
	Description string
	Reference   string
	ActorID     int64
}

func (in *MovementInput) normalize() error {
	in.Value = shared.RoundMoney(in.Value)
	if !in.Value.IsPositive() {
		return ErrInvalidAmount
	}
	in.Description = strings.TrimSpace(in.Description)
	in.Reference = strings.TrimSpace(in.Reference)
	return nil
}

// Deposit credits an active account.
func (s *Service) Deposit(ctx context.Context, in MovementInput) (Movement, error) {
	if err := in.normalize(); err != nil {
		return Movement{}, err
	}
	var (
		mov           Movement
		before, after Account
	)
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		settings, err := tx.Settings(ctx)
		if err != nil {
			return err
		}
		if in.Value.LessThan(settings.MinDeposit) {
			return ErrBelowMinimum
		}
		if before, err = s.lockActive(ctx, tx, in.AccountID); err != nil {
			return err
		}
		after = before
		if mov, err = s.post(ctx, tx, &after, MovementDeposit, in.Value, describe(in.Description, "Consignacion"), in.Reference, in.ActorID); err != nil {
			return err
		}
		return tx.UpdateAccount(ctx, after)
	})
	if err != nil {
		return Movement{}, err
	}
	s.recordBalance(ctx, in.ActorID, "savings.deposit", before, after, mov)
	return mov, nil
}

// Withdrawal is a withdrawal movement and, when the tax applies, its GMF movement.
type Withdrawal struct {
	Withdrawal Movement  `json:"withdrawal"`
	Tax        *Movement `json:"tax,omitempty"`
}

// Withdraw debits an active account. When GMF is active the tax is charged as
// a second movement referencing the withdrawal, and funds must cover both.
func (s *Service) Withdraw(ctx context.Context, in MovementInput) (Withdrawal, error) {
	if err := in.normalize(); err != nil {
		return Withdrawal{}, err
	}
	var (
		out           Withdrawal
		before, after Account
	)
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		settings, err := tx.Settings(ctx)
		if err != nil {
			return err
		}
		if before, err = s.lockActive(ctx, tx, in.AccountID); err != nil {
			return err
		}
		tax := settings.GMF(in.Value)
		// Funds must cover the tax too, not only the withdrawn value, so the
		// GMF movement can never leave the balance negative.
		if in.Value.Add(tax).GreaterThan(before.AvailableBalance) {
			return ErrInsufficientFunds
		}
		after = before
		if out.Withdrawal, err = s.post(ctx, tx, &after, MovementWithdrawal, in.Value, describe(in.Description, "Retiro"), in.Reference, in.ActorID); err != nil {
			return err
		}
		if tax.IsPositive() {
			gmf, err := s.post(ctx, tx, &after, MovementGMF, tax, "GMF retiro "+out.Withdrawal.Number, out.Withdrawal.Number, in.ActorID)
			if err != nil {
				return err
			}
			out.Tax = &gmf
		}
		return tx.UpdateAccount(ctx, after)
	})
	if err != nil {
		return Withdrawal{}, err
	}
	s.recordBalance(ctx, in.ActorID, "savings.withdraw", before, after, out.Withdrawal)
	return out, nil
}

// TransferInput moves funds between two accounts.
type TransferInput struct {
	SourceID      int64
	DestinationID int64
	Value         decimal.Decimal
	Description   string
	ActorID       int64
}

// Transfer debits the source and credits the destination with movements that
// reference each other's number. Both rows are locked in ascending id order.
func (s *Service) Transfer(ctx context.Context, in TransferInput) (Movement, Movement, error) {
	in.Value = shared.RoundMoney(in.Value)
	if !in.Value.IsPositive() {
		return Movement{}, Movement{}, ErrInvalidAmount
	}
	if in.SourceID == in.DestinationID {
		return Movement{}, Movement{}, ErrSameAccount
	}
	var out, into Movement
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		locked := map[int64]Account{}
		first, second := in.SourceID, in.DestinationID
		if second < first {
			first, second = second, first
		}
		for _, id := range []int64{first, second} {
			acct, err := s.lockActive(ctx, tx, id)
			if err != nil {
				return err
			}
			locked[id] = acct
		}
		source, dest := locked[in.SourceID], locked[in.DestinationID]
		if in.Value.GreaterThan(source.AvailableBalance) {
			return ErrInsufficientFunds
		}
		scope := shared.DailyScope(shared.PrefixSavingsMovement, s.now())
		outNumber, err := tx.NextNumber(ctx, scope)
		if err != nil {
			return err
		}
		inNumber, err := tx.NextNumber(ctx, scope)
		if err != nil {
			return err
		}
		desc := strings.TrimSpace(in.Description)
		if out, err = s.insert(ctx, tx, &source, outNumber, MovementTransferOut, in.Value,
			describe(desc, "Transferencia a "+dest.Number), inNumber, in.ActorID); err != nil {
			return err
		}
		if into, err = s.insert(ctx, tx, &dest, inNumber, MovementTransferIn, in.Value,
			describe(desc, "Transferencia desde "+source.Number), outNumber, in.ActorID); err != nil {
			return err
		}
		if err := tx.UpdateAccount(ctx, source); err != nil {
			return err
		}
		return tx.UpdateAccount(ctx, dest)
	})
	if err != nil {
		return Movement{}, Movement{}, err
	}
	s.record(ctx, in.ActorID, "savings.transfer", in.SourceID, map[string]any{
		"out": out.Number, "in": into.Number, "destination_id": in.DestinationID, "value": in.Value,
	})
	return out, into, nil
}

// Cancel closes an account with zero balance, logging a zero-value movement.
func (s *Service) Cancel(ctx context.Context, id, actorID int64) (Account, error) {
	return s.transition(ctx, id, actorID, "savings.cancel", func(ctx context.Context, tx TxRepository, a *Account) error {
		if a.State == StateCancelled {
			return ErrAlreadyCancelled
		}
		if a.AvailableBalance.IsPositive() {
			return ErrNonZeroBalance
		}
		if _, err := s.post(ctx, tx, a, MovementCancellation, decimal.Zero, "Cancelacion de cuenta", "", actorID); err != nil {
			return err
		}
		at := s.now()
		a.State = StateCancelled
		a.CancelledAt = &at
		return nil
	})
}

// Block freezes an active account.
func (s *Service) Block(ctx context.Context, id, actorID int64) (Account, error) {
	return s.transition(ctx, id, actorID, "savings.block", func(_ context.Context, _ TxRepository, a *Account) error {
		if a.State != StateActive {
			return ErrAccountNotActive
		}
		a.State = StateBlocked
		return nil
	})
}

// Unblock reactivates a blocked account.
func (s *Service) Unblock(ctx context.Context, id, actorID int64) (Account, error) {
	return s.transition(ctx, id, actorID, "savings.unblock", func(_ context.Context, _ TxRepository, a *Account) error {
		if a.State != StateBlocked {
			return ErrNotBlocked
		}
		a.State = StateActive
		return nil
	})
}

// UpdateInput edits the mutable terms of an account. Nil fields are kept.
type UpdateInput struct {
	ID           int64
	AnnualRate   *decimal.Decimal
	GoalAmount   *decimal.Decimal
	MonthlyQuota *decimal.Decimal
	Notes        *string
	ActorID      int64
}

func (s *Service) Update(ctx context.Context, in UpdateInput) (Account, error) {
	for _, v := range []*decimal.Decimal{in.AnnualRate, in.GoalAmount, in.MonthlyQuota} {
		if v != nil && v.IsNegative() {
			return Account{}, ErrInvalidAmount
		}
	}
	return s.transition(ctx, in.ID, in.ActorID, "savings.update", func(_ context.Context, _ TxRepository, a *Account) error {
		if a.State == StateCancelled {
			return ErrAlreadyCancelled
		}
		if in.AnnualRate != nil {
			a.AnnualRate = *in.AnnualRate
		}
		if in.GoalAmount != nil {
			a.GoalAmount = in.GoalAmount
		}
		if in.MonthlyQuota != nil {
			a.MonthlyQuota = in.MonthlyQuota
		}
		if in.Notes != nil {
			a.Notes = strings.TrimSpace(*in.Notes)
		}
		return nil
	})
}

func (s *Service) Get(ctx context.Context, id int64) (Account, error) {
	return s.repo.Get(ctx, id)
}

func (s *Service) List(ctx context.Context, filter ListFilter) ([]Account, int, error) {
	return s.repo.List(ctx, filter)
}

// Movements returns an account's log, newest first.
func (s *Service) Movements(ctx context.Context, accountID int64, limit, offset int) ([]Movement, int, error) {
	if _, err := s.repo.Get(ctx, accountID); err != nil {
		return nil, 0, err
	}
	return s.repo.Movements(ctx, accountID, limit, offset)
}

func (s *Service) Stats(ctx context.Context) (Stats, error) {
	return s.repo.Stats(ctx)
}

func (s *Service) Settings(ctx context.Context) (Settings, error) {
	return s.repo.Settings(ctx)
}

// UpdateSettings saves the changed parameters. Existing accounts keep their rates.
func (s *Service) UpdateSettings(ctx context.Context, u SettingsUpdate, actorID int64) (Settings, error) {
	var before, after Settings
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		if before, err = tx.Settings(ctx); err != nil {
			return err
		}
		if after, err = u.apply(before); err != nil {
			return err
		}
		return tx.SaveSettings(ctx, after)
	})
	if err != nil {
		return Settings{}, err
	}
	s.record(ctx, actorID, "savings.settings", 0, shared.Change(before, after))
	return after, nil
}

func (s *Service) lockActive(ctx context.Context, tx TxRepository, id int64) (Account, error) {
	acct, err := tx.GetForUpdate(ctx, id)
	if err != nil {
		return Account{}, err
	}
	if acct.State != StateActive {
		return Account{}, ErrAccountNotActive
	}
	return acct, nil
}

// post numbers and logs a movement and applies it to acct. The caller persists acct.
func (s *Service) post(ctx context.Context, tx TxRepository, acct *Account, typ MovementType, value decimal.Decimal, desc, ref string, actorID int64) (Movement, error) {
	number, err := tx.NextNumber(ctx, shared.DailyScope(shared.PrefixSavingsMovement, s.now()))
	if err != nil {
		return Movement{}, err
	}
	return s.insert(ctx, tx, acct, number, typ, value, desc, ref, actorID)
}

func (s *Service) insert(ctx context.Context, tx TxRepository, acct *Account, number string, typ MovementType, value decimal.Decimal, desc, ref string, actorID int64) (Movement, error) {
	value = shared.RoundMoney(value)
	before := acct.AvailableBalance
	after := typ.Apply(before, value)
	if after.IsNegative() {
		return Movement{}, ErrInsufficientFunds
	}
	mov, err := tx.InsertMovement(ctx, Movement{
		Number:        number,
		AccountID:     acct.ID,
		Type:          typ,
		Value:         value,
		BalanceBefore: before,
		BalanceAfter:  after,
		Description:   desc,
		Reference:     ref,
		RecordedBy:    actorID,
	})
	if err != nil {
		return Movement{}, err
	}
	acct.AvailableBalance = after
	return mov, nil
}

func (s *Service) transition(ctx context.Context, id, actorID int64, action string, mutate func(context.Context, TxRepository, *Account) error) (Account, error) {
	var before, after Account
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		if before, err = tx.GetForUpdate(ctx, id); err != nil {
			return err
		}
		after = before
		if err := mutate(ctx, tx, &after); err != nil {
			return err
		}
		return tx.UpdateAccount(ctx, after)
	})
	if err != nil {
		return Account{}, err
	}
	s.record(ctx, actorID, action, after.ID, shared.Change(before, after))
	return after, nil
}

func describe(desc, fallback string) string {
	if desc == "" {
		return fallback
	}
	return desc
}

func dateOnly(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

func (s *Service) recordBalance(ctx context.Context, actorID int64, action string, before, after Account, mov Movement) {
	s.record(ctx, actorID, action, after.ID, shared.Change(
		map[string]any{"available_balance": before.AvailableBalance},
		map[string]any{"available_balance": after.AvailableBalance, "movement": mov.Number},
	))
}

func (s *Service) record(ctx context.Context, actorID int64, action string, id int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	if err := s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actorID,
		Action:   action,
		Entity:   "savings_account",
		EntityID: strconv.FormatInt(id, 10),
		Meta:     meta,
		At:       s.now(),
	}); err != nil {
		s.logger.Warn("record savings audit", slog.String("action", action), slog.Any("error", err))
	}
}
