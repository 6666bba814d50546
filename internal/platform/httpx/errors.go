// Package httpx provides HTTP response utilities.
package httpx

import (
	"errors"
	"net/http"

	"github.com/coopledger/coopledger/internal/shared"
)

// Boundary errors raised before a request reaches the domain layer.
var (
	ErrForbidden    = errors.New("forbidden")
	ErrUnauthorized = errors.New("unauthorized")
)

// Status returns the HTTP status RespondError uses for err.
func Status(err error) int {
	switch {
	case errors.Is(err, shared.ErrNotFound):
		return http.StatusNotFound
	case shared.IsRetryable(err), errors.Is(err, shared.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, shared.ErrValidation):
		return http.StatusUnprocessableEntity
	case errors.Is(err, ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, ErrUnauthorized):
		return http.StatusUnauthorized
	default:
		return http.StatusInternalServerError
	}
}

// RespondError maps domain errors to HTTP responses using RFC7807. Internal
// errors are reported without detail.
func RespondError(w http.ResponseWriter, err error) {
	status := Status(err)
	switch {
	case status == http.StatusInternalServerError:
		Problem(w, status, "Internal Error", "")
	case shared.IsRetryable(err):
		w.Header().Set("Retry-After", "1")
		ProblemType(w, status, "about:blank#retryable", "Concurrent Update", err.Error())
	default:
		Problem(w, status, http.StatusText(status), err.Error())
	}
}
