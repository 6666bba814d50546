// Package contributions records members' social contributions (aportes) and
// posts them to the ledger.
package contributions

import (
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/coopledger/coopledger/internal/shared"
)

// Type of contribution.
type Type string

const (
	TypeOrdinary      Type = "ORDINARY"
	TypeExtraordinary Type = "EXTRAORDINARY"
)

func (t Type) Valid() bool { return t == TypeOrdinary || t == TypeExtraordinary }

// Status of a contribution.
type Status string

const (
	StatusPaid    Status = "PAID"
	StatusPending Status = "PENDING"
	StatusVoided  Status = "VOIDED"
)

// MinVoidReasonLength is the minimum trimmed length of a void reason.
const MinVoidReasonLength = 10

// Contribution is one payment of a member into social capital.
type Contribution struct {
	ID             int64           `json:"id"`
	ReceiptNumber  string          `json:"receipt_number"`
	MemberID       int64           `json:"member_id"`
	Date           time.Time       `json:"date"`
	Value          decimal.Decimal `json:"value"`
	Type           Type            `json:"type"`
	Status         Status          `json:"status"`
	JournalEntryID *int64          `json:"journal_entry_id,omitempty"`
	Notes          string          `json:"notes,omitempty"`
	RecordedBy     int64           `json:"recorded_by"`
	VoidReason     string          `json:"void_reason,omitempty"`
	VoidedBy       *int64          `json:"voided_by,omitempty"`
	VoidedAt       *time.Time      `json:"voided_at,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
}

// SourceID is the deterministic journal source reference of a contribution.
func SourceID(contributionID int64) uuid.UUID {
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte("CONTRIBUTION:"+strconv.FormatInt(contributionID, 10)))
}

// RecordedEvent is emitted inside the registering transaction so the ledger
// integration can post the accounting entry.
type RecordedEvent struct {
	ContributionID int64
	ReceiptNumber  string
	MemberID       int64
	Date           time.Time
	Value          decimal.Decimal
	Type           Type
	RecordedBy     int64
}

// RegisterInput is the request to record a contribution.
type RegisterInput struct {
	MemberID    int64
	Date        time.Time
	Value       decimal.Decimal
	Type        Type
	Notes       string
	PostJournal *bool
	ActorID     int64
}

// PostsJournal defaults to true when the caller does not say otherwise.
func (in RegisterInput) PostsJournal() bool {
	return in.PostJournal == nil || *in.PostJournal
}

func (in *RegisterInput) normalize() error {
	if in.MemberID <= 0 {
		return shared.NewError(shared.ErrValidation, "contributions: member required")
	}
	if in.Date.IsZero() {
		return shared.NewError(shared.ErrValidation, "contributions: date required")
	}
	in.Value = shared.RoundMoney(in.Value)
	if !in.Value.IsPositive() {
		return ErrInvalidValue
	}
	if in.Type == "" {
		in.Type = TypeOrdinary
	}
	if !in.Type.Valid() {
		return shared.NewError(shared.ErrValidation, "contributions: unknown contribution type")
	}
	in.Notes = strings.TrimSpace(in.Notes)
	return nil
}

// VoidInput voids a contribution and its linked journal entry.
type VoidInput struct {
	ID      int64  `json:"-"`
	Reason  string `json:"reason" validate:"required"`
	ActorID int64  `json:"-"`
}

// ListFilter narrows contribution listings.
type ListFilter struct {
	MemberID int64
	Status   Status
	From     *time.Time
	To       *time.Time
	Limit    int
	Offset   int
}

// MemberTotal summarises the paid contributions of one member.
type MemberTotal struct {
	MemberID int64           `json:"member_id"`
	Count    int             `json:"count"`
	Total    decimal.Decimal `json:"total"`
}

var (
	ErrNotFound           = shared.NewError(shared.ErrNotFound, "contributions: contribution not found")
	ErrInvalidValue       = shared.NewError(shared.ErrValidation, "contributions: value must be greater than zero")
	ErrAlreadyVoided      = shared.NewError(shared.ErrConflict, "contributions: contribution already voided")
	ErrVoidReasonTooShort = shared.NewError(shared.ErrValidation, "contributions: void reason must have at least 10 characters")
	ErrReceiptCollision   = shared.NewError(shared.ErrNumberConflict, "contributions: receipt number taken by a concurrent registration")
)
