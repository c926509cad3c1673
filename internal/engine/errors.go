package engine

import (
	"errors"
	"fmt"

	"github.com/zulandar/padtest/internal/phase"
)

var (
	ErrConstructionFailed = errors.New("engine: construction did not converge")
	ErrInvalidIncrements  = errors.New("engine: load increments must be positive and strictly increasing")
	ErrDuplicateTest      = errors.New("engine: duplicate test id")
	ErrUnknownTest        = errors.New("engine: unknown test")
	ErrUnknownPhase       = errors.New("engine: unknown phase")
	ErrNotBuilt           = errors.New("engine: model not built")
	ErrNotConfirmed       = errors.New("engine: regeneration not confirmed")
	ErrInvalidOptions     = errors.New("engine: invalid test options")
)

// PhaseError ties a failure to the phase that caused it.
type PhaseError struct {
	Test    string
	Phase   string
	Kind    phase.Kind
	Message string
	Err     error
}

func (e *PhaseError) Error() string {
	msg := fmt.Sprintf("engine: %s phase %s", e.Kind, e.Phase)
	if e.Test != "" {
		msg = fmt.Sprintf("engine: test %s: %s phase %s", e.Test, e.Kind, e.Phase)
	}
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *PhaseError) Unwrap() error { return e.Err }
