package accounts

import (
	"context"
	"errors"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coopledger/coopledger/internal/shared"
)

type memoryRepo struct {
	byID   map[int64]Account
	nextID int64
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{byID: map[int64]Account{}}
}

func (m *memoryRepo) Get(_ context.Context, id int64) (Account, error) {
	a, ok := m.byID[id]
	if !ok {
		return Account{}, ErrAccountNotFound
	}
	return a, nil
}

func (m *memoryRepo) GetByCode(_ context.Context, code string) (Account, error) {
	for _, a := range m.byID {
		if a.Code == code {
			return a, nil
		}
	}
	return Account{}, ErrAccountNotFound
}

func (m *memoryRepo) List(_ context.Context, filter ListFilter) ([]Account, error) {
	var out []Account
	for _, a := range m.byID {
		if filter.Type != "" && a.Type != filter.Type {
			continue
		}
		if filter.ActiveOnly && !a.IsActive {
			continue
		}
		if filter.PostableOnly && !a.IsPostable {
			continue
		}
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out, nil
}

func (m *memoryRepo) Insert(_ context.Context, a Account) (Account, error) {
	m.nextID++
	a.ID = m.nextID
	m.byID[a.ID] = a
	return a, nil
}

func (m *memoryRepo) Update(_ context.Context, a Account) (Account, error) {
	if _, ok := m.byID[a.ID]; !ok {
		return Account{}, ErrAccountNotFound
	}
	m.byID[a.ID] = a
	return a, nil
}

type auditSpy struct{ logs []shared.AuditLog }

func (a *auditSpy) Record(_ context.Context, log shared.AuditLog) error {
	a.logs = append(a.logs, log)
	return nil
}

func TestCreateBuildsHierarchy(t *testing.T) {
	ctx := context.Background()
	audit := &auditSpy{}
	svc := NewService(newMemoryRepo(), audit)

	class, err := svc.Create(ctx, CreateInput{Code: "1", Name: "Activo", Type: AccountTypeAsset})
	require.NoError(t, err)
	assert.Equal(t, 1, class.Level)
	assert.Equal(t, NormalSideDebit, class.NormalSide)

	group, err := svc.Create(ctx, CreateInput{Code: "11", Name: "Disponible", Type: AccountTypeAsset, ParentID: &class.ID})
	require.NoError(t, err)
	account, err := svc.Create(ctx, CreateInput{Code: "1110", Name: "Bancos", Type: AccountTypeAsset, ParentID: &group.ID, IsPostable: true})
	require.NoError(t, err)

	assert.Equal(t, 3, account.Level)
	assert.True(t, account.IsActive)
	assert.Len(t, audit.logs, 3)
	assert.Equal(t, "account.create", audit.logs[2].Action)
}

func TestCreateRejectsInvalidInput(t *testing.T) {
	ctx := context.Background()
	svc := NewService(newMemoryRepo(), nil)
	equity, err := svc.Create(ctx, CreateInput{Code: "3", Name: "Patrimonio", Type: AccountTypeEquity})
	require.NoError(t, err)
	assert.Equal(t, NormalSideCredit, equity.NormalSide)

	_, err = svc.Create(ctx, CreateInput{Code: "3", Name: "Otro", Type: AccountTypeEquity})
	assert.True(t, errors.Is(err, ErrDuplicateCode))
	assert.True(t, errors.Is(err, shared.ErrConflict))

	missing := int64(99)
	_, err = svc.Create(ctx, CreateInput{Code: "31", Name: "Capital", Type: AccountTypeEquity, ParentID: &missing})
	assert.True(t, errors.Is(err, ErrParentNotFound))

	_, err = svc.Create(ctx, CreateInput{Code: "41", Name: "Ingresos", Type: AccountTypeIncome, ParentID: &equity.ID})
	assert.True(t, errors.Is(err, ErrCodeOutOfParent))

	_, err = svc.Create(ctx, CreateInput{Code: "9", Name: "Otro", Type: "REVENUE"})
	assert.True(t, errors.Is(err, ErrInvalidType))
}

func TestCreateRejectsFifthLevel(t *testing.T) {
	ctx := context.Background()
	svc := NewService(newMemoryRepo(), nil)
	parent, err := svc.Create(ctx, CreateInput{Code: "1", Name: "Activo", Type: AccountTypeAsset})
	require.NoError(t, err)
	for _, code := range []string{"11", "1110", "111005"} {
		parent, err = svc.Create(ctx, CreateInput{Code: code, Name: "n" + code, Type: AccountTypeAsset, ParentID: &parent.ID})
		require.NoError(t, err)
	}
	assert.Equal(t, MaxLevel, parent.Level)

	_, err = svc.Create(ctx, CreateInput{Code: "11100501", Name: "deep", Type: AccountTypeAsset, ParentID: &parent.ID})
	assert.True(t, errors.Is(err, ErrInvalidLevel))
}

func TestDeactivateKeepsAccount(t *testing.T) {
	ctx := context.Background()
	audit := &auditSpy{}
	svc := NewService(newMemoryRepo(), audit)
	account, err := svc.Create(ctx, CreateInput{Code: "1110", Name: "Bancos", Type: AccountTypeAsset, IsPostable: true})
	require.NoError(t, err)

	updated, err := svc.Deactivate(ctx, account.ID, 5)
	require.NoError(t, err)
	assert.False(t, updated.IsActive)

	stored, err := svc.Get(ctx, account.ID)
	require.NoError(t, err)
	assert.False(t, stored.IsActive)

	active, err := svc.List(ctx, ListFilter{ActiveOnly: true})
	require.NoError(t, err)
	assert.Empty(t, active)

	last := audit.logs[len(audit.logs)-1]
	assert.Equal(t, "account.update", last.Action)
	assert.Equal(t, int64(5), last.ActorID)
	assert.Contains(t, last.Meta, "before")
}
