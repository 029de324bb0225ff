// Package errs defines the error taxonomy shared by every domain package.
//
// Callers classify failures with errors.Is against the sentinels below; the
// HTTP layer maps them to status codes. Messages stay human readable because
// they are returned to API clients verbatim.
package errs

import (
	"errors"
	"fmt"
)

var (
	// ErrValidation marks malformed input rejected before any side effect.
	ErrValidation = errors.New("validation failed")
	// ErrNotFound marks an unknown profile, proxy, workflow, session or execution.
	ErrNotFound = errors.New("not found")
	// ErrTransient marks infrastructure failures such as launch or probe errors.
	ErrTransient = errors.New("transient failure")
	// ErrExecution marks an action that failed while a workflow was running.
	ErrExecution = errors.New("execution failed")
)

// Kind is a sentinel paired with a human-readable message.
type Kind struct {
	kind error
	msg  string
}

func (e *Kind) Error() string { return e.msg }

// Unwrap lets errors.Is match the sentinel.
func (e *Kind) Unwrap() error { return e.kind }

// Validation returns an ErrValidation with a formatted message.
func Validation(format string, args ...any) error {
	return &Kind{kind: ErrValidation, msg: fmt.Sprintf(format, args...)}
}

// NotFound returns an ErrNotFound naming the missing resource.
func NotFound(resource string, id any) error {
	return &Kind{kind: ErrNotFound, msg: fmt.Sprintf("%s %v not found", resource, id)}
}

// Transient wraps cause as an ErrTransient.
func Transient(cause error, format string, args ...any) error {
	return &wrapped{kind: ErrTransient, cause: cause, msg: fmt.Sprintf(format, args...)}
}

// Execution wraps cause as an ErrExecution.
func Execution(cause error, format string, args ...any) error {
	return &wrapped{kind: ErrExecution, cause: cause, msg: fmt.Sprintf(format, args...)}
}

// wrapped matches both its sentinel and its cause.
type wrapped struct {
	kind  error
	cause error
	msg   string
}

func (e *wrapped) Error() string {
	if e.cause == nil {
		return e.msg
	}
	return e.msg + ": " + e.cause.Error()
}

func (e *wrapped) Unwrap() []error {
	if e.cause == nil {
		return []error{e.kind}
	}
	return []error{e.kind, e.cause}
}

// IsValidation reports whether err is an input validation error.
func IsValidation(err error) bool { return errors.Is(err, ErrValidation) }

// IsNotFound reports whether err is a not-found error.
func IsNotFound(err error) bool { return errors.Is(err, ErrNotFound) }
