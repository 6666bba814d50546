package savings

import "github.com/coopledger/coopledger/internal/shared"

var (
	ErrAccountNotFound   = shared.NewError(shared.ErrNotFound, "savings: account not found")
	ErrInvalidType       = shared.NewError(shared.ErrValidation, "savings: unknown savings type")
	ErrBelowMinimum      = shared.NewError(shared.ErrValidation, "savings: amount below the configured minimum")
	ErrInvalidAmount     = shared.NewError(shared.ErrValidation, "savings: amount must be greater than zero")
	ErrTermRequired      = shared.NewError(shared.ErrValidation, "savings: term deposits require term days")
	ErrSameAccount       = shared.NewError(shared.ErrValidation, "savings: source and destination must differ")
	ErrInvalidSettings   = shared.NewError(shared.ErrValidation, "savings: settings values must not be negative")
	ErrInsufficientFunds = shared.NewError(shared.ErrValidation, "savings: insufficient balance")
	ErrAccountNotActive  = shared.NewError(shared.ErrConflict, "savings: account is not active")
	ErrAlreadyCancelled  = shared.NewError(shared.ErrConflict, "savings: account already cancelled")
	ErrNonZeroBalance    = shared.NewError(shared.ErrConflict, "savings: account still holds a balance")
	ErrNotBlocked        = shared.NewError(shared.ErrConflict, "savings: account is not blocked")
	ErrBatchInProgress   = shared.NewError(shared.ErrConflict, "savings: monthly liquidation already running")
	ErrAccountCollision  = shared.NewError(shared.ErrNumberConflict, "savings: account number taken by a concurrent opening")
	ErrMovementCollision = shared.NewError(shared.ErrNumberConflict, "savings: movement number taken by a concurrent writer")
)
