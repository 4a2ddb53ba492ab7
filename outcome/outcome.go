package outcome

import (
	"errors"
	"fmt"
	"net/http"
	"unicode/utf8"
)

// Kind is the failure category reported to callers.
type Kind string

const (
	KindInvalidRequest  Kind = "invalid_request"
	KindRejected        Kind = "rejected"
	KindTimedOut        Kind = "timed_out"
	KindExecutionFailed Kind = "execution_failed"
	KindArtifactMissing Kind = "artifact_missing"
	KindInternalIO      Kind = "internal_io_error"
)

// MaxDiagnosticBytes bounds the diagnostic text carried by an ExecutionFailed error.
const MaxDiagnosticBytes = 8 * 1024

// Error is a classified failure. Detail is safe to show to the caller.
type Error struct {
	Kind   Kind
	Detail string
	Err    error
}

func (e *Error) Error() string {
	if e.Detail == "" {
		return string(e.Kind)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Detail)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// InvalidRequest reports a malformed request.
func InvalidRequest(format string, args ...any) *Error {
	return &Error{Kind: KindInvalidRequest, Detail: fmt.Sprintf(format, args...)}
}

// Rejected reports a filter match; keyword names the offending construct.
func Rejected(keyword string, err error) *Error {
	return &Error{Kind: KindRejected, Detail: keyword, Err: err}
}

// TimedOut reports that the run exceeded its budget.
func TimedOut(err error) *Error {
	return &Error{Kind: KindTimedOut, Detail: "script execution exceeded the time limit", Err: err}
}

// ExecutionFailed reports a nonzero exit, carrying the captured diagnostic.
func ExecutionFailed(exitCode int, stdout, stderr string) *Error {
	return &Error{Kind: KindExecutionFailed, Detail: Diagnostic(exitCode, stdout, stderr)}
}

// ArtifactMissing reports a successful exit that produced nothing usable.
func ArtifactMissing(err error) *Error {
	return &Error{Kind: KindArtifactMissing, Detail: "script produced no png or html output", Err: err}
}

// InternalIO reports a staging, launch or cleanup failure on the host.
func InternalIO(op string, err error) *Error {
	return &Error{Kind: KindInternalIO, Detail: op, Err: err}
}

// Diagnostic picks the most useful text for a failed run.
func Diagnostic(exitCode int, stdout, stderr string) string {
	text := stderr
	if text == "" {
		text = stdout
	}
	if text == "" {
		return fmt.Sprintf("script exited with code %d", exitCode)
	}
	if len(text) > MaxDiagnosticBytes {
		start := len(text) - MaxDiagnosticBytes
		for start < len(text) && !utf8.RuneStart(text[start]) {
			start++
		}
		text = text[start:]
	}
	return text
}

// KindOf returns the kind of err. Unclassified errors are internal.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternalIO
}

// HTTPStatus maps a kind to the status code used by the HTTP surface.
func HTTPStatus(kind Kind) int {
	switch kind {
	case KindInvalidRequest, KindRejected:
		return http.StatusBadRequest
	case KindTimedOut:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// IsClientError reports whether the caller can fix the failure by changing the request.
func IsClientError(kind Kind) bool {
	return kind == KindInvalidRequest || kind == KindRejected
}
