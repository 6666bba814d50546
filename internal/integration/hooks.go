// Package integration posts the accounting effects of credit and contribution
// events to the general ledger.
package integration

import (
	"context"
	"errors"
	"fmt"

	"github.com/coopledger/coopledger/internal/contributions"
	"github.com/coopledger/coopledger/internal/credit"
	"github.com/coopledger/coopledger/internal/ledger/journals"
	"github.com/coopledger/coopledger/internal/ledger/mappings"
	"github.com/coopledger/coopledger/internal/shared"
)

// Ledger exposes the in-transaction posting the hooks need.
type Ledger interface {
	PostEntryTx(ctx context.Context, tx journals.TxRepository, in journals.PostingInput) (journals.JournalEntry, error)
}

// AccountMappingRepository provides mapping lookups.
type AccountMappingRepository interface {
	Get(ctx context.Context, module, key string) (mappings.AccountMapping, error)
}

// Source modules recorded on system-generated entries.
const (
	SourceCredit       = "CREDIT.DISBURSEMENT"
	SourceContribution = "CONTRIBUTION"
)

// ThirdPartyMember tags journal lines with the member they concern.
const ThirdPartyMember = "MEMBER"

// Hooks wires domain events from operational modules into the general ledger.
type Hooks struct {
	ledger      Ledger
	mappingRepo AccountMappingRepository
}

// NewHooks constructs integration hooks.
func NewHooks(ledger Ledger, mappingRepo AccountMappingRepository) *Hooks {
	return &Hooks{ledger: ledger, mappingRepo: mappingRepo}
}

var (
	_ credit.LedgerPoster        = (*Hooks)(nil)
	_ contributions.LedgerPoster = (*Hooks)(nil)
)

func (h *Hooks) resolveAccount(ctx context.Context, module, key string) (int64, error) {
	mapping, err := h.mappingRepo.Get(ctx, module, key)
	if err != nil {
		return 0, fmt.Errorf("integration: mapping %s/%s: %w", module, key, err)
	}
	return mapping.AccountID, nil
}

func (h *Hooks) ready() error {
	if h == nil || h.ledger == nil || h.mappingRepo == nil {
		return errors.New("integration: hooks not configured")
	}
	return nil
}

// PostLoanDisbursed debits the loan portfolio and credits cash for the
// disbursed amount.
func (h *Hooks) PostLoanDisbursed(ctx context.Context, tx journals.TxRepository, evt credit.DisbursedEvent) (journals.JournalEntry, error) {
	if err := h.ready(); err != nil {
		return journals.JournalEntry{}, err
	}
	if evt.Date.IsZero() {
		return journals.JournalEntry{}, errors.New("integration: disbursement date required")
	}
	portfolio, err := h.resolveAccount(ctx, mappings.ModuleCredit, mappings.KeyPortfolio)
	if err != nil {
		return journals.JournalEntry{}, err
	}
	cash, err := h.resolveAccount(ctx, mappings.ModuleCredit, mappings.KeyCash)
	if err != nil {
		return journals.JournalEntry{}, err
	}
	amount := shared.RoundMoney(evt.Amount)
	member := evt.MemberID
	return h.ledger.PostEntryTx(ctx, tx, journals.PostingInput{
		Date:         evt.Date,
		MovementType: journals.MovementLoan,
		Memo:         fmt.Sprintf("Desembolso credito %s por %s", evt.Number, shared.FormatMoney(amount)),
		Reference:    evt.Number,
		SourceModule: SourceCredit,
		SourceID:     credit.SourceID(evt.LoanID),
		PostedBy:     evt.ActorID,
		Lines: []journals.PostingLineInput{
			{AccountID: portfolio, Debit: amount, ThirdPartyType: ThirdPartyMember, ThirdPartyID: &member, Description: "Cartera " + evt.Number},
			{AccountID: cash, Credit: amount, Description: "Giro desembolso " + evt.Number},
		},
	})
}

// PostContribution debits cash and credits social contributions equity.
func (h *Hooks) PostContribution(ctx context.Context, tx journals.TxRepository, evt contributions.RecordedEvent) (journals.JournalEntry, error) {
	if err := h.ready(); err != nil {
		return journals.JournalEntry{}, err
	}
	cash, err := h.resolveAccount(ctx, mappings.ModuleContribution, mappings.KeyCash)
	if err != nil {
		return journals.JournalEntry{}, err
	}
	equity, err := h.resolveAccount(ctx, mappings.ModuleContribution, mappings.KeyEquity)
	if err != nil {
		return journals.JournalEntry{}, err
	}
	value := shared.RoundMoney(evt.Value)
	member := evt.MemberID
	return h.ledger.PostEntryTx(ctx, tx, journals.PostingInput{
		Date:         evt.Date,
		MovementType: journals.MovementContribution,
		Memo:         fmt.Sprintf("Aporte %s recibo %s", typeLabel(evt.Type), evt.ReceiptNumber),
		Reference:    evt.ReceiptNumber,
		SourceModule: SourceContribution,
		SourceID:     contributions.SourceID(evt.ContributionID),
		PostedBy:     evt.RecordedBy,
		Lines: []journals.PostingLineInput{
			{AccountID: cash, Debit: value, Description: "Recaudo aporte " + evt.ReceiptNumber},
			{AccountID: equity, Credit: value, ThirdPartyType: ThirdPartyMember, ThirdPartyID: &member, Description: "Aporte social " + evt.ReceiptNumber},
		},
	})
}

func typeLabel(t contributions.Type) string {
	if t == contributions.TypeExtraordinary {
		return "extraordinario"
	}
	return "ordinario"
}
