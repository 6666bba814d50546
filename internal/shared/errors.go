package shared

import "errors"

var (
	// ErrNotFound indicates resource not found.
	ErrNotFound = errors.New("not found")
	// ErrValidation indicates caller-fixable input.
	ErrValidation = errors.New("validation failed")
	// ErrConflict indicates the entity is not in the state the action requires.
	ErrConflict = errors.New("state conflict")
	// ErrNumberConflict indicates a document number collided with a concurrent writer.
	ErrNumberConflict = errors.New("document number conflict")
	// ErrConcurrentUpdate indicates the transaction lost a serialization race.
	ErrConcurrentUpdate = errors.New("concurrent update")
)

// Error is a domain sentinel tagged with one of the kinds above.
type Error struct {
	kind error
	msg  string
}

// NewError declares a domain sentinel that reports msg and unwraps to kind.
func NewError(kind error, msg string) error {
	return &Error{kind: kind, msg: msg}
}

func (e *Error) Error() string { return e.msg }

func (e *Error) Unwrap() error { return e.kind }

// IsRetryable reports whether repeating the whole operation may succeed.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrNumberConflict) || errors.Is(err, ErrConcurrentUpdate)
}
