package provisioning

import (
	"context"
	"errors"
	"time"
)

// State is the outcome recorded on an operation.
type State string

// Operation result states.
const (
	StateNotExecuted State = "NOT_EXECUTED"
	StateExecuted    State = "EXECUTED"
	StateException   State = "EXCEPTION"
	StateBlocked     State = "BLOCKED"
	// StateCreated marks an operation queued for approval.
	StateCreated  State = "CREATED"
	StateCanceled State = "CANCELED"
)

// IsValid checks if the state is known.
func (s State) IsValid() bool {
	switch s {
	case StateNotExecuted, StateExecuted, StateException, StateBlocked, StateCreated, StateCanceled:
		return true
	default:
		return false
	}
}

// IsTerminal reports whether operations in this state leave the active queue.
func (s State) IsTerminal() bool { return s == StateExecuted || s == StateCanceled }

// Result is the outcome of the last pipeline run over an operation.
type Result struct {
	State State
	Code  Code
	// Model is a human readable description of the outcome.
	Model string
	// Cause is the root cause message of an EXCEPTION result.
	Cause     string
	CreatedAt time.Time
}

// NewResult builds a result stamped with the current time.
func NewResult(state State, code Code, model string) Result {
	return Result{State: state, Code: code, Model: model, CreatedAt: time.Now().UTC()}
}

// ExceptionResult converts err into an EXCEPTION result. The code is taken
// from a wrapped *Error when present, otherwise fallback is used. Target
// failures caused by an expired deadline are reported as timeouts.
func ExceptionResult(err error, fallback Code) Result {
	code := fallback
	var perr *Error
	if errors.As(err, &perr) {
		code = perr.Code
	}
	if code.Kind() == KindTarget && errors.Is(err, context.DeadlineExceeded) {
		code = CodeTargetTimeout
	}
	return Result{
		State:     StateException,
		Code:      code,
		Model:     code.Describe(),
		Cause:     rootCause(err).Error(),
		CreatedAt: time.Now().UTC(),
	}
}

func rootCause(err error) error {
	for {
		next := errors.Unwrap(err)
		if next == nil {
			return err
		}
		err = next
	}
}
