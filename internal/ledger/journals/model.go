package journals

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// MovementType classifies the business event behind an entry.
type MovementType string

const (
	MovementContribution MovementType = "CONTRIBUTION"
	MovementWithdrawal   MovementType = "WITHDRAWAL"
	MovementLoan         MovementType = "LOAN"
	MovementLoanPayment  MovementType = "LOAN_PAYMENT"
	MovementInterest     MovementType = "INTEREST"
	MovementAdjustment   MovementType = "ADJUSTMENT"
	MovementClosing      MovementType = "CLOSING"
	MovementOpening      MovementType = "OPENING"
	MovementOther        MovementType = "OTHER"
)

// Valid reports whether t is a known movement type.
func (t MovementType) Valid() bool {
	switch t {
	case MovementContribution, MovementWithdrawal, MovementLoan, MovementLoanPayment, MovementInterest,
		MovementAdjustment, MovementClosing, MovementOpening, MovementOther:
		return true
	}
	return false
}

// SourceManual marks entries keyed in by a person.
const SourceManual = "MANUAL"

// JournalEntry is a posted asiento. Only the void fields change after posting.
type JournalEntry struct {
	ID           int64           `json:"id"`
	Number       string          `json:"number"`
	Date         time.Time       `json:"date"`
	MovementType MovementType    `json:"movement_type"`
	Memo         string          `json:"memo"`
	Reference    string          `json:"reference,omitempty"`
	TotalDebit   decimal.Decimal `json:"total_debit"`
	TotalCredit  decimal.Decimal `json:"total_credit"`
	Balanced     bool            `json:"balanced"`
	Voided       bool            `json:"voided"`
	VoidReason   string          `json:"void_reason,omitempty"`
	VoidedBy     *int64          `json:"voided_by,omitempty"`
	VoidedAt     *time.Time      `json:"voided_at,omitempty"`
	PostedBy     int64           `json:"posted_by"`
	PostedAt     time.Time       `json:"posted_at"`
	SourceModule string          `json:"source_module"`
	SourceID     *uuid.UUID      `json:"source_id,omitempty"`
	Lines        []Movement      `json:"lines,omitempty"`
}

// Movement is one journal line. Exactly one of Debit and Credit is positive.
type Movement struct {
	ID             int64           `json:"id"`
	EntryID        int64           `json:"entry_id"`
	AccountID      int64           `json:"account_id"`
	Debit          decimal.Decimal `json:"debit"`
	Credit         decimal.Decimal `json:"credit"`
	ThirdPartyType string          `json:"third_party_type,omitempty"`
	ThirdPartyID   *int64          `json:"third_party_id,omitempty"`
	Description    string          `json:"description,omitempty"`
}

// Stats summarises the journal.
type Stats struct {
	Entries       int64      `json:"entries"`
	VoidedEntries int64      `json:"voided_entries"`
	Movements     int64      `json:"movements"`
	LastNumber    string     `json:"last_number,omitempty"`
	LastEntryDate *time.Time `json:"last_entry_date,omitempty"`
}

// Anomaly is an integrity violation found in stored entries.
type Anomaly struct {
	EntryID int64           `json:"entry_id"`
	Number  string          `json:"number"`
	Check   string          `json:"check"`
	Debit   decimal.Decimal `json:"debit"`
	Credit  decimal.Decimal `json:"credit"`
}

// Integrity checks reported by FindAnomalies.
const (
	CheckImbalanced     = "imbalanced_entry"
	CheckTotalsMismatch = "totals_mismatch"
	CheckMovementSides  = "movement_sides"
)
