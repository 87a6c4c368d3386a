package task

import (
	"errors"
	"fmt"
)

// Error codes carried by the coded error types below. Codes are stable
// machine-readable strings; messages are for humans.
const (
	CodeInvalidTask       = "invalid_task"
	CodeCyclicDependency  = "cyclic_dependency"
	CodeImmutableField    = "immutable_field"
	CodeUnknownTask       = "unknown_task"
	CodeUnknownOwner      = "unknown_owner"
	CodeBadStrategyConfig = "bad_strategy_config"
	CodeHandlerUnresolved = "handler_unresolved"
	CodeHandlerPanic      = "handler_panic"
	CodeHandlerTimeout    = "handler_timeout"
	CodeHandlerFailed     = "handler_failed"
	CodeStaleTransition   = "stale_transition"
)

// ValidationError rejects a malformed task, a cyclic dependency set, or an
// attempt to mutate an immutable field. It is returned synchronously from
// the registry boundary and is never partially applied.
type ValidationError struct {
	Code string
	Msg  string
	Err  error
}

func NewValidationError(code, msg string) *ValidationError {
	return &ValidationError{Code: code, Msg: msg}
}

func (e *ValidationError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("[%s] %s", e.Code, e.Msg)
	}
	return fmt.Sprintf("[%s] %s: %s", e.Code, e.Msg, e.Err.Error())
}

func (e *ValidationError) Unwrap() error { return e.Err }

// SchedulingError signals strategy misconfiguration. The task stays Pending.
type SchedulingError struct {
	Code string
	Msg  string
}

func NewSchedulingError(code, msg string) *SchedulingError {
	return &SchedulingError{Code: code, Msg: msg}
}

func (e *SchedulingError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Msg)
}

// ExecutionError captures a handler failure, timeout, panic, or an
// unresolved handler kind. One is recorded per failed attempt.
type ExecutionError struct {
	Code string
	Msg  string
	Err  error
}

func NewExecutionError(code, msg string, underlying error) *ExecutionError {
	return &ExecutionError{Code: code, Msg: msg, Err: underlying}
}

func (e *ExecutionError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("[%s] %s", e.Code, e.Msg)
	}
	return fmt.Sprintf("[%s] %s: %s", e.Code, e.Msg, e.Err.Error())
}

func (e *ExecutionError) Unwrap() error { return e.Err }

// ConcurrencyError signals a stale status transition: the task was not in
// the expected state. Callers treat it as a benign skip, not a failure.
type ConcurrencyError struct {
	TaskID   string
	Expected Status
	Actual   Status
}

func (e *ConcurrencyError) Error() string {
	return fmt.Sprintf("[%s] task %s is %s, expected %s",
		CodeStaleTransition, e.TaskID, e.Actual, e.Expected)
}

// IsConcurrency reports whether err wraps a ConcurrencyError.
func IsConcurrency(err error) bool {
	var ce *ConcurrencyError
	return errors.As(err, &ce)
}

// IsValidation reports whether err wraps a ValidationError, optionally
// narrowed to a specific code ("" matches any).
func IsValidation(err error, code string) bool {
	var ve *ValidationError
	if !errors.As(err, &ve) {
		return false
	}
	return code == "" || ve.Code == code
}
