// Package shared holds errors used across the ledger packages.
package shared

import (
	"github.com/coopledger/coopledger/internal/shared"
)

var (
	// ErrSourceAlreadyLinked indicates the source document already produced an entry.
	ErrSourceAlreadyLinked = shared.NewError(shared.ErrConflict, "ledger: source already linked")
	// ErrMappingNotFound indicates an integration key has no ledger account.
	ErrMappingNotFound = shared.NewError(shared.ErrValidation, "ledger: account mapping not found")
)
