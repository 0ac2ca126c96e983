package domain

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound           = errors.New("not found")
	ErrBotNotFound        = errors.New("bot not found")
	ErrBotInactive        = errors.New("bot is not active")
	ErrCredentialsMissing = errors.New("exchange credentials not configured")
	ErrPriceUnavailable   = errors.New("reference price not available")
	ErrLeaseHeld          = errors.New("another run holds the bot lease")
	ErrLeaseLost          = errors.New("bot lease lost during run")
)

type ErrorKind string

const (
	KindConfiguration ErrorKind = "configuration"
	KindUpstream      ErrorKind = "upstream_unavailable"
	KindPlacement     ErrorKind = "placement"
	KindPersistence   ErrorKind = "persistence"
	KindConcurrency   ErrorKind = "concurrency"
)

// RunError tags a failure with its taxonomy kind and the step that produced it.
type RunError struct {
	Kind ErrorKind
	Op   string
	Err  error
}

func (e *RunError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *RunError) Unwrap() error {
	return e.Err
}

func NewRunError(kind ErrorKind, op string, err error) *RunError {
	return &RunError{Kind: kind, Op: op, Err: err}
}

// KindOf returns the kind of the outermost RunError in err's chain, or "" if none.
func KindOf(err error) ErrorKind {
	var re *RunError
	if errors.As(err, &re) {
		return re.Kind
	}
	return ""
}
