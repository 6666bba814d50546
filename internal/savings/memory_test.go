package savings_test

import (
	"context"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/coopledger/coopledger/internal/savings"
	"github.com/coopledger/coopledger/internal/shared"
)

// memoryRepo implements savings.Repository and savings.TxRepository over maps.
type memoryRepo struct {
	accounts  map[int64]savings.Account
	movements []savings.Movement
	settings  *savings.Settings
	seq       map[string]int64
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{accounts: map[int64]savings.Account{}, seq: map[string]int64{}}
}

func (m *memoryRepo) WithTx(ctx context.Context, fn func(context.Context, savings.TxRepository) error) error {
	accounts := make(map[int64]savings.Account, len(m.accounts))
	for k, v := range m.accounts {
		accounts[k] = v
	}
	movements := append([]savings.Movement(nil), m.movements...)
	seq := make(map[string]int64, len(m.seq))
	for k, v := range m.seq {
		seq[k] = v
	}
	settings := m.settings
	if err := fn(ctx, m); err != nil {
		m.accounts, m.movements, m.seq, m.settings = accounts, movements, seq, settings
		return err
	}
	return nil
}

func (m *memoryRepo) Get(_ context.Context, id int64) (savings.Account, error) {
	a, ok := m.accounts[id]
	if !ok {
		return savings.Account{}, savings.ErrAccountNotFound
	}
	return a, nil
}

func (m *memoryRepo) List(_ context.Context, filter savings.ListFilter) ([]savings.Account, int, error) {
	var out []savings.Account
	for _, a := range m.accounts {
		if filter.MemberID > 0 && a.MemberID != filter.MemberID {
			continue
		}
		if filter.Type != "" && a.Type != filter.Type {
			continue
		}
		if filter.State != "" && a.State != filter.State {
			continue
		}
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, len(out), nil
}

func (m *memoryRepo) Movements(_ context.Context, accountID int64, _, _ int) ([]savings.Movement, int, error) {
	var out []savings.Movement
	for i := len(m.movements) - 1; i >= 0; i-- {
		if m.movements[i].AccountID == accountID {
			out = append(out, m.movements[i])
		}
	}
	return out, len(out), nil
}

func (m *memoryRepo) Stats(context.Context) (savings.Stats, error) {
	stats := savings.Stats{BalanceByType: map[savings.Type]decimal.Decimal{}, CountByState: map[savings.State]int{}}
	for _, a := range m.accounts {
		stats.Total++
		stats.CountByState[a.State]++
		if a.State == savings.StateActive {
			stats.Active++
		}
		stats.BalanceByType[a.Type] = stats.BalanceByType[a.Type].Add(a.AvailableBalance)
		stats.TotalBalance = stats.TotalBalance.Add(a.AvailableBalance)
	}
	return stats, nil
}

func (m *memoryRepo) Settings(context.Context) (savings.Settings, error) {
	if m.settings == nil {
		return savings.DefaultSettings(), nil
	}
	return *m.settings, nil
}

func (m *memoryRepo) SaveSettings(_ context.Context, s savings.Settings) error {
	m.settings = &s
	return nil
}

func (m *memoryRepo) NextNumber(_ context.Context, scope string) (string, error) {
	m.seq[scope]++
	return shared.FormatNumber(scope, m.seq[scope]), nil
}

func (m *memoryRepo) InsertAccount(_ context.Context, a savings.Account) (savings.Account, error) {
	a.ID = int64(len(m.accounts) + 1)
	a.CreatedAt = time.Now()
	a.UpdatedAt = a.CreatedAt
	m.accounts[a.ID] = a
	return a, nil
}

func (m *memoryRepo) GetForUpdate(ctx context.Context, id int64) (savings.Account, error) {
	return m.Get(ctx, id)
}

func (m *memoryRepo) UpdateAccount(_ context.Context, a savings.Account) error {
	m.accounts[a.ID] = a
	return nil
}

func (m *memoryRepo) InsertMovement(_ context.Context, mov savings.Movement) (savings.Movement, error) {
	mov.ID = int64(len(m.movements) + 1)
	mov.CreatedAt = time.Now()
	m.movements = append(m.movements, mov)
	return mov, nil
}

func (m *memoryRepo) ActiveAccountIDs(context.Context) ([]int64, error) {
	var ids []int64
	for id, a := range m.accounts {
		if a.State == savings.StateActive {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

func (m *memoryRepo) HasMovement(_ context.Context, accountID int64, typ savings.MovementType, reference string) (bool, error) {
	for _, mov := range m.movements {
		if mov.AccountID == accountID && mov.Type == typ && mov.Reference == reference {
			return true, nil
		}
	}
	return false, nil
}
