package contributions

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/coopledger/coopledger/internal/shared"
)

// RegisterRequest is the HTTP body for recording a contribution.
type RegisterRequest struct {
	MemberID    int64           `json:"member_id" validate:"required,gt=0"`
	Date        string          `json:"date" validate:"required,datetime=2006-01-02"`
	Value       decimal.Decimal `json:"value" validate:"gt=0"`
	Type        string          `json:"type" validate:"omitempty,oneof=ORDINARY EXTRAORDINARY ordinary extraordinary"`
	Notes       string          `json:"notes" validate:"max=500"`
	PostJournal *bool           `json:"post_journal"`
}

func (r RegisterRequest) ToInput(actorID int64) (RegisterInput, error) {
	date, err := time.Parse("2006-01-02", r.Date)
	if err != nil {
		return RegisterInput{}, fmt.Errorf("%w: date must be YYYY-MM-DD", shared.ErrValidation)
	}
	return RegisterInput{
		MemberID:    r.MemberID,
		Date:        date,
		Value:       r.Value,
		Type:        Type(strings.ToUpper(r.Type)),
		Notes:       r.Notes,
		PostJournal: r.PostJournal,
		ActorID:     actorID,
	}, nil
}
