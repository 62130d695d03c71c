package monitor

import (
	"errors"
	"fmt"
)

// ConfigurationError is raised only while creating the monitor. It stops the
// engine before any node runs.
type ConfigurationError struct {
	Field  string
	Reason string
	Err    error
}

func (e *ConfigurationError) Error() string {
	msg := "resource monitor: invalid configuration"
	if e.Field != "" {
		msg += ": " + e.Field
	}
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ConfigurationError) Unwrap() error { return e.Err }
func (e *ConfigurationError) Fatal() bool   { return true }

// EnvironmentError is a node-local filesystem failure.
type EnvironmentError struct {
	Op   string
	Path string
	Err  error
}

func (e *EnvironmentError) Error() string {
	return fmt.Sprintf("resource monitor: %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *EnvironmentError) Unwrap() error { return e.Err }

// WrapError means the execution wrapper for a task could not be written.
type WrapError struct {
	TaskID string
	Err    error
}

func (e *WrapError) Error() string {
	return fmt.Sprintf("resource monitor: wrap task %s: %v", e.TaskID, e.Err)
}

func (e *WrapError) Unwrap() error { return e.Err }

var (
	// ErrMeasurementAbsent is logged when a summary cannot be read; it is
	// never returned from a callback.
	ErrMeasurementAbsent = errors.New("resource measurement absent")

	// ErrDiskExhausted means the task ran out of its disk allocation.
	ErrDiskExhausted = errors.New("disk allocation exhausted")
	// ErrAllocationExhausted means the task overflowed its limits and the
	// category has no larger allocation to offer.
	ErrAllocationExhausted = errors.New("resource allocation exhausted")
	// ErrResubmitted means the node was given a larger allocation and put
	// back in the waiting state for the engine to resubmit.
	ErrResubmitted = errors.New("node resubmitted with larger allocation")
)

// IsTerminal reports whether err from NodeFail means the node must not be
// retried by this monitor.
func IsTerminal(err error) bool {
	return errors.Is(err, ErrDiskExhausted) || errors.Is(err, ErrAllocationExhausted)
}
