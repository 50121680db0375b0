package engine

import (
	"errors"
	"fmt"
)

// ErrorCode categorizes orchestration failures.
type ErrorCode string

const (
	// ErrCodeEntrypointDeclined means the user cancelled the entrypoint
	// prompt. No entry was created; callers stay silent.
	ErrCodeEntrypointDeclined ErrorCode = "ENTRYPOINT_DECLINED"

	// ErrCodeInvalidEntrypoint means the supplied entrypoint failed the
	// identifier grammar.
	ErrCodeInvalidEntrypoint ErrorCode = "INVALID_ENTRYPOINT"

	// ErrCodeFirstCompilationFailed means the first compile after
	// registration failed and the entry was rolled back.
	ErrCodeFirstCompilationFailed ErrorCode = "FIRST_COMPILATION_FAILED"

	// ErrCodeCompilationFailed means a compile of an already registered
	// Source failed. The entry is retained.
	ErrCodeCompilationFailed ErrorCode = "COMPILATION_FAILED"

	// ErrCodeBackgroundCompilationFailed means an on-save compile failed.
	// The entry is retained.
	ErrCodeBackgroundCompilationFailed ErrorCode = "BACKGROUND_COMPILATION_FAILED"

	// ErrCodeNotSource means the document is not a tracked Source.
	ErrCodeNotSource ErrorCode = "NOT_SOURCE"

	// ErrCodeWorkspaceUnavailable means the project root is missing.
	ErrCodeWorkspaceUnavailable ErrorCode = "WORKSPACE_UNAVAILABLE"

	// ErrCodeArtifactIO means reading, writing or deleting an artifact failed.
	ErrCodeArtifactIO ErrorCode = "ARTIFACT_IO"

	// ErrCodeSessionUnsupported means verification sessions are reserved.
	ErrCodeSessionUnsupported ErrorCode = "SESSION_UNSUPPORTED"
)

// Error is an orchestration failure for one Source.
type Error struct {
	Code    ErrorCode
	Source  string
	Message string
	Err     error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Code, e.Message)
	if e.Source != "" {
		msg = fmt.Sprintf("%s (source=%s)", msg, e.Source)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// CodeOf returns the ErrorCode carried by err, or "".
func CodeOf(err error) ErrorCode {
	var ee *Error
	if errors.As(err, &ee) {
		return ee.Code
	}
	return ""
}

// IsDeclined reports whether err is a declined entrypoint prompt.
func IsDeclined(err error) bool {
	return CodeOf(err) == ErrCodeEntrypointDeclined
}

// IsFirstCompilationFailed reports whether err is a rolled-back first
// compilation.
func IsFirstCompilationFailed(err error) bool {
	return CodeOf(err) == ErrCodeFirstCompilationFailed
}

func newError(code ErrorCode, source, message string, err error) *Error {
	return &Error{Code: code, Source: source, Message: message, Err: err}
}
