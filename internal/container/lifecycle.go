package container

import (
	apperrors "github.com/jittakal/kafavrosink/internal/errors"
)

// State is the lifecycle position of a container writer.
type State int

const (
	StateUninitialized State = iota
	StateCreated
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateCreated:
		return "created"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Lifecycle enforces Uninitialized -> Created -> Closed. There is no way
// back to Created once closed.
type Lifecycle struct {
	state State
}

// State returns the current state.
func (l *Lifecycle) State() State {
	return l.state
}

// CanCreate reports whether create may run now.
func (l *Lifecycle) CanCreate() error {
	switch l.state {
	case StateUninitialized:
		return nil
	case StateCreated:
		return l.sequencing("create", apperrors.ErrAlreadyCreated)
	default:
		return l.sequencing("create", apperrors.ErrWriterClosed)
	}
}

// MarkCreated records a successful create.
func (l *Lifecycle) MarkCreated() {
	l.state = StateCreated
}

// Require checks that op may run on an open file.
func (l *Lifecycle) Require(op string) error {
	switch l.state {
	case StateCreated:
		return nil
	case StateUninitialized:
		return l.sequencing(op, apperrors.ErrNotCreated)
	default:
		return l.sequencing(op, apperrors.ErrWriterClosed)
	}
}

// MarkClosed records that the file has been released.
func (l *Lifecycle) MarkClosed() {
	l.state = StateClosed
}

// Reopen always fails; it never changes state.
func (l *Lifecycle) Reopen() error {
	return &apperrors.UnsupportedLifecycleError{Operation: "reopen"}
}

func (l *Lifecycle) sequencing(op string, err error) error {
	return &apperrors.SequencingError{
		Operation: op,
		State:     l.state.String(),
		Err:       err,
	}
}
