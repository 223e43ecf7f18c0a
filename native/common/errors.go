package common

import "errors"

// Error classes. Every engine error wraps exactly one of them so transports and
// metrics can tell a bad request from a breached invariant without string
// matching.
var (
	ErrValidation = errors.New("validation")
	ErrInvariant  = errors.New("invariant")
	ErrStaleData  = errors.New("stale data")
	ErrArithmetic = errors.New("arithmetic")
)

// ErrDivisionByZero is raised as a panic by the fixed-point helpers. Callers
// that run engine code recover it with RecoverArithmetic.
var ErrDivisionByZero = NewError(ErrArithmetic, "fixed point: division by zero")

type classError struct {
	class error
	msg   string
}

func (e *classError) Error() string { return e.msg }

func (e *classError) Unwrap() error { return e.class }

// NewError returns a sentinel carrying msg that matches class under errors.Is.
func NewError(class error, msg string) error {
	return &classError{class: class, msg: msg}
}

// Class names the error class of err, or "internal" when none matches.
func Class(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrValidation):
		return "validation"
	case errors.Is(err, ErrInvariant):
		return "invariant"
	case errors.Is(err, ErrStaleData):
		return "stale"
	case errors.Is(err, ErrArithmetic):
		return "arithmetic"
	default:
		return "internal"
	}
}

// RecoverArithmetic turns a panic carrying an arithmetic-class error into *errp.
// Any other panic is re-raised. It must be deferred directly.
func RecoverArithmetic(errp *error) {
	r := recover()
	if r == nil {
		return
	}
	if err, ok := r.(error); ok && errors.Is(err, ErrArithmetic) {
		*errp = err
		return
	}
	panic(r)
}
