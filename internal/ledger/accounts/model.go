package accounts

import (
	"time"

	"github.com/coopledger/coopledger/internal/shared"
)

// AccountType enumerates CoA categories.
type AccountType string

const (
	AccountTypeAsset     AccountType = "ASSET"
	AccountTypeLiability AccountType = "LIABILITY"
	AccountTypeEquity    AccountType = "EQUITY"
	AccountTypeIncome    AccountType = "INCOME"
	AccountTypeExpense   AccountType = "EXPENSE"
)

// Valid reports whether t is a known account type.
func (t AccountType) Valid() bool {
	switch t {
	case AccountTypeAsset, AccountTypeLiability, AccountTypeEquity, AccountTypeIncome, AccountTypeExpense:
		return true
	}
	return false
}

// DefaultNormalSide is DEBIT for assets and expenses, CREDIT otherwise.
func (t AccountType) DefaultNormalSide() NormalSide {
	if t == AccountTypeAsset || t == AccountTypeExpense {
		return NormalSideDebit
	}
	return NormalSideCredit
}

// NormalSide is the side on which an account's balance increases.
type NormalSide string

const (
	NormalSideDebit  NormalSide = "DEBIT"
	NormalSideCredit NormalSide = "CREDIT"
)

// Levels of the PUC hierarchy: class, group, account, sub-account.
const (
	MinLevel = 1
	MaxLevel = 4
)

// Account models a chart of accounts node.
type Account struct {
	ID          int64       `json:"id"`
	Code        string      `json:"code"`
	Name        string      `json:"name"`
	Type        AccountType `json:"type"`
	NormalSide  NormalSide  `json:"normal_side"`
	ParentID    *int64      `json:"parent_id,omitempty"`
	Level       int         `json:"level"`
	IsPostable  bool        `json:"is_postable"`
	IsActive    bool        `json:"is_active"`
	Description string      `json:"description,omitempty"`
	CreatedAt   time.Time   `json:"created_at"`
	UpdatedAt   time.Time   `json:"updated_at"`
}

// CreateInput describes a new account.
type CreateInput struct {
	Code        string      `json:"code" validate:"required,numeric,max=10"`
	Name        string      `json:"name" validate:"required,max=200"`
	Type        AccountType `json:"type" validate:"required,oneof=ASSET LIABILITY EQUITY INCOME EXPENSE"`
	NormalSide  NormalSide  `json:"normal_side" validate:"omitempty,oneof=DEBIT CREDIT"`
	ParentID    *int64      `json:"parent_id" validate:"omitempty,gt=0"`
	IsPostable  bool        `json:"is_postable"`
	Description string      `json:"description" validate:"max=500"`
	ActorID     int64       `json:"-"`
}

// UpdateInput carries the mutable fields; nil leaves a field untouched.
type UpdateInput struct {
	Name        *string `json:"name" validate:"omitempty,min=1,max=200"`
	Description *string `json:"description" validate:"omitempty,max=500"`
	IsPostable  *bool   `json:"is_postable"`
	IsActive    *bool   `json:"is_active"`
	ActorID     int64   `json:"-"`
}

// ListFilter narrows account listings.
type ListFilter struct {
	Type         AccountType
	Level        int
	ActiveOnly   bool
	PostableOnly bool
}

var (
	ErrAccountNotFound = shared.NewError(shared.ErrNotFound, "ledger: account not found")
	ErrDuplicateCode   = shared.NewError(shared.ErrConflict, "ledger: account code already exists")
	ErrParentNotFound  = shared.NewError(shared.ErrValidation, "ledger: parent account not found")
	ErrInvalidLevel    = shared.NewError(shared.ErrValidation, "ledger: account level must be between 1 and 4")
	ErrInvalidType     = shared.NewError(shared.ErrValidation, "ledger: unknown account type")
	ErrCodeOutOfParent = shared.NewError(shared.ErrValidation, "ledger: account code must extend the parent code")
)
