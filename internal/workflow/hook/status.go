package hook

import (
	"errors"
	"fmt"
)

// Status is the outcome a listener reports back to the engine.
type Status int

const (
	// Success means the engine proceeds normally.
	Success Status = iota
	// Failure is local to the node; the engine keeps running the workflow.
	Failure
	// Fatal stops the engine.
	Fatal
)

func (s Status) String() string {
	switch s {
	case Success:
		return "success"
	case Failure:
		return "failure"
	case Fatal:
		return "fatal"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

// fatal is implemented by errors that must stop the engine.
type fatal interface {
	Fatal() bool
}

// StatusOf maps a callback error to a Status. A nil error is Success; an
// error in the chain reporting Fatal() == true is Fatal; anything else is
// Failure.
func StatusOf(err error) Status {
	if err == nil {
		return Success
	}
	var f fatal
	if errors.As(err, &f) && f.Fatal() {
		return Fatal
	}
	return Failure
}

// FatalError marks err as fatal.
func FatalError(err error) error {
	if err == nil {
		return nil
	}
	return &fatalError{err: err}
}

type fatalError struct{ err error }

func (e *fatalError) Error() string { return e.err.Error() }
func (e *fatalError) Unwrap() error { return e.err }
func (e *fatalError) Fatal() bool   { return true }
