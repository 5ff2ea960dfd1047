package errs

import "errors"

// Kinds of failure the core surfaces to callers. Transport layers map them to
// status codes; wrapped errors keep the kind reachable through errors.Is.
var (
	ErrUnauthenticated = errors.New("unauthenticated")
	ErrForbidden       = errors.New("forbidden")
	ErrNotFound        = errors.New("not found")
	ErrInvalidState    = errors.New("invalid state")
	ErrValidation      = errors.New("validation error")
	ErrUpstream        = errors.New("upstream service error")
)

// Error pairs a failure kind with a message meant for the caller.
type Error struct {
	Kind error
	Msg  string
}

func (e *Error) Error() string {
	if e.Msg == "" {
		return e.Kind.Error()
	}
	return e.Msg
}

func (e *Error) Unwrap() error { return e.Kind }

func newError(kind error, msg string) error {
	return &Error{Kind: kind, Msg: msg}
}

func Unauthenticated(msg string) error { return newError(ErrUnauthenticated, msg) }
func Forbidden(msg string) error       { return newError(ErrForbidden, msg) }
func NotFound(msg string) error        { return newError(ErrNotFound, msg) }
func InvalidState(msg string) error    { return newError(ErrInvalidState, msg) }
func Validation(msg string) error      { return newError(ErrValidation, msg) }
func Upstream(msg string) error        { return newError(ErrUpstream, msg) }

// Message returns the caller-facing text of err: the message of the nearest
// *Error in the chain, or err.Error() otherwise.
func Message(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Error()
	}
	return err.Error()
}
