package integration

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coopledger/coopledger/internal/contributions"
	"github.com/coopledger/coopledger/internal/credit"
	"github.com/coopledger/coopledger/internal/ledger/accounts"
	"github.com/coopledger/coopledger/internal/ledger/journals"
	"github.com/coopledger/coopledger/internal/ledger/journals/journaltest"
	"github.com/coopledger/coopledger/internal/ledger/mappings"
	ledgershared "github.com/coopledger/coopledger/internal/ledger/shared"
)

func newLedger() (*journaltest.Store, *journals.Service) {
	store := journaltest.New(
		journaltest.Account(1, "111005", accounts.AccountTypeAsset),
		journaltest.Account(2, "141105", accounts.AccountTypeAsset),
		journaltest.Account(3, "310505", accounts.AccountTypeEquity),
	)
	return store, journals.NewService(store, nil, nil, nil)
}

func fullMapping() mappings.Static {
	return mappings.Static{
		"CREDIT/PORTFOLIO":    2,
		"CREDIT/CASH":         1,
		"CONTRIBUTION/CASH":   1,
		"CONTRIBUTION/EQUITY": 3,
	}
}

func disbursement() credit.DisbursedEvent {
	return credit.DisbursedEvent{
		LoanID:   12,
		Number:   "CR-202501-000003",
		MemberID: 40,
		Date:     time.Date(2025, 1, 15, 0, 0, 0, 0, time.UTC),
		Amount:   decimal.RequireFromString("1200000"),
		ActorID:  5,
	}
}

func TestPostLoanDisbursed(t *testing.T) {
	store, ledger := newLedger()
	hooks := NewHooks(ledger, fullMapping())

	var entry journals.JournalEntry
	err := store.WithTx(context.Background(), func(ctx context.Context, tx journals.TxRepository) error {
		var err error
		entry, err = hooks.PostLoanDisbursed(ctx, tx, disbursement())
		return err
	})
	require.NoError(t, err)

	assert.Equal(t, journals.MovementLoan, entry.MovementType)
	assert.Equal(t, SourceCredit, entry.SourceModule)
	assert.Equal(t, "CR-202501-000003", entry.Reference)
	assert.Contains(t, entry.Memo, "CR-202501-000003")
	require.NotNil(t, entry.SourceID)
	assert.Equal(t, credit.SourceID(12), *entry.SourceID)
	require.Len(t, entry.Lines, 2)
	assert.EqualValues(t, 2, entry.Lines[0].AccountID)
	assert.Equal(t, ThirdPartyMember, entry.Lines[0].ThirdPartyType)
	assert.EqualValues(t, 1, entry.Lines[1].AccountID)
	assert.True(t, entry.TotalDebit.Equal(entry.TotalCredit))
}

func TestPostLoanDisbursedTwiceConflicts(t *testing.T) {
	store, ledger := newLedger()
	hooks := NewHooks(ledger, fullMapping())
	post := func() error {
		return store.WithTx(context.Background(), func(ctx context.Context, tx journals.TxRepository) error {
			_, err := hooks.PostLoanDisbursed(ctx, tx, disbursement())
			return err
		})
	}

	require.NoError(t, post())
	require.ErrorIs(t, post(), ledgershared.ErrSourceAlreadyLinked)
	assert.Len(t, store.Entries(), 1)
}

func TestPostContributionMissingMapping(t *testing.T) {
	store, ledger := newLedger()
	hooks := NewHooks(ledger, mappings.Static{"CONTRIBUTION/CASH": 1})

	err := store.WithTx(context.Background(), func(ctx context.Context, tx journals.TxRepository) error {
		_, err := hooks.PostContribution(ctx, tx, contributions.RecordedEvent{
			ContributionID: 1,
			ReceiptNumber:  "REC-202503-000001",
			MemberID:       40,
			Date:           time.Date(2025, 3, 5, 0, 0, 0, 0, time.UTC),
			Value:          decimal.RequireFromString("1000"),
			Type:           contributions.TypeExtraordinary,
		})
		return err
	})
	require.ErrorIs(t, err, ledgershared.ErrMappingNotFound)
	assert.Contains(t, err.Error(), "CONTRIBUTION/EQUITY")
	assert.Empty(t, store.Entries())
}

func TestUnconfiguredHooks(t *testing.T) {
	var hooks *Hooks
	_, err := hooks.PostLoanDisbursed(context.Background(), nil, disbursement())
	require.Error(t, err)

	_, ledger := newLedger()
	evt := disbursement()
	evt.Date = time.Time{}
	_, err = NewHooks(ledger, fullMapping()).PostLoanDisbursed(context.Background(), nil, evt)
	require.Error(t, err)
}

func TestTypeLabel(t *testing.T) {
	assert.Equal(t, "ordinario", typeLabel(contributions.TypeOrdinary))
	assert.Equal(t, "extraordinario", typeLabel(contributions.TypeExtraordinary))
}
