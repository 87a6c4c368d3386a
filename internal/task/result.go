package task

import "time"

// ErrorInfo is the serializable failure detail attached to an attempt.
type ErrorInfo struct {
	Message string `json:"message"`
	Code    string `json:"code"`
}

// ExecutionResult records one execution attempt. It never mutates the task
// itself; the executor appends results to a bounded history.
type ExecutionResult struct {
	TaskID     string     `json:"taskId"`
	StartedAt  time.Time  `json:"startedAt"`
	FinishedAt time.Time  `json:"finishedAt"`
	Success    bool       `json:"success"`
	Output     any        `json:"output,omitempty"`
	Err        *ErrorInfo `json:"error,omitempty"`
	// Attempt is 1-based.
	Attempt int `json:"attempt"`
}

// Duration is the wall-clock span of the attempt.
func (r ExecutionResult) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}

// resultErrInfo converts an execution error to its wire shape.
func resultErrInfo(err error) *ErrorInfo {
	if err == nil {
		return nil
	}
	if ee, ok := err.(*ExecutionError); ok {
		return &ErrorInfo{Message: ee.Msg, Code: ee.Code}
	}
	return &ErrorInfo{Message: err.Error(), Code: CodeHandlerFailed}
}

// NewErrorInfo builds the wire shape for any error, preserving the code
// when err is an ExecutionError.
func NewErrorInfo(err error) *ErrorInfo { return resultErrInfo(err) }
