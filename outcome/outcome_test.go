package outcome

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorKinds(t *testing.T) {
	cause := errors.New("boom")

	tests := []struct {
		name   string
		err    *Error
		kind   Kind
		status int
		client bool
	}{
		{"InvalidRequest", InvalidRequest("unsupported language: %s", "julia"), KindInvalidRequest, http.StatusBadRequest, true},
		{"Rejected", Rejected("subprocess", cause), KindRejected, http.StatusBadRequest, true},
		{"TimedOut", TimedOut(cause), KindTimedOut, http.StatusGatewayTimeout, false},
		{"ExecutionFailed", ExecutionFailed(1, "", "Traceback"), KindExecutionFailed, http.StatusInternalServerError, false},
		{"ArtifactMissing", ArtifactMissing(cause), KindArtifactMissing, http.StatusInternalServerError, false},
		{"InternalIO", InternalIO("failed to stage script", cause), KindInternalIO, http.StatusInternalServerError, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			wrapped := fmt.Errorf("run abc: %w", tt.err)
			assert.Equal(t, tt.kind, KindOf(wrapped))
			assert.Equal(t, tt.status, HTTPStatus(tt.kind))
			assert.Equal(t, tt.client, IsClientError(tt.kind))
			assert.True(t, strings.HasPrefix(tt.err.Error(), string(tt.kind)))
		})
	}

	assert.Equal(t, KindInternalIO, KindOf(errors.New("unclassified")))
	assert.ErrorIs(t, TimedOut(cause), cause)
	assert.Equal(t, "invalid_request: unsupported language: julia", InvalidRequest("unsupported language: %s", "julia").Error())
	assert.Equal(t, "timed_out", (&Error{Kind: KindTimedOut}).Error())
}

func TestDiagnostic(t *testing.T) {
	assert.Equal(t, "stderr text", Diagnostic(1, "stdout text", "stderr text"))
	assert.Equal(t, "stdout text", Diagnostic(1, "stdout text", ""))
	assert.Equal(t, "script exited with code 2", Diagnostic(2, "", ""))

	long := strings.Repeat("a", MaxDiagnosticBytes) + "TAIL"
	got := Diagnostic(1, "", long)
	assert.Len(t, got, MaxDiagnosticBytes)
	assert.True(t, strings.HasSuffix(got, "TAIL"), "the tail of the stream is kept")

	multibyte := strings.Repeat("é", MaxDiagnosticBytes/2) + "x"
	got = Diagnostic(1, "", multibyte)
	assert.True(t, utf8.ValidString(got), "truncation must not split a rune")
	assert.Len(t, got, MaxDiagnosticBytes-1)
	assert.True(t, strings.HasSuffix(got, "éx"))
}

func TestClassify(t *testing.T) {
	t.Run("Success", func(t *testing.T) {
		o := Classify("a.png", nil)
		assert.True(t, o.OK())
		assert.Equal(t, Outcome{Status: StatusSuccess, ArtifactID: "a.png"}, o)
	})

	t.Run("RejectedIsClientSide", func(t *testing.T) {
		o := Classify("", Rejected("eval", nil))
		assert.False(t, o.OK())
		assert.Equal(t, StatusRejected, o.Status)
		assert.Equal(t, KindRejected, o.Kind)
		assert.Equal(t, "eval", o.Detail)
	})

	t.Run("InvalidRequestIsClientSide", func(t *testing.T) {
		o := Classify("", InvalidRequest("script is empty"))
		assert.Equal(t, StatusRejected, o.Status)
		assert.Equal(t, KindInvalidRequest, o.Kind)
	})

	t.Run("Failed", func(t *testing.T) {
		o := Classify("", fmt.Errorf("wrapped: %w", ExecutionFailed(1, "", "NameError")))
		assert.Equal(t, StatusFailed, o.Status)
		assert.Equal(t, KindExecutionFailed, o.Kind)
		assert.Equal(t, "NameError", o.Detail)
	})

	t.Run("UnclassifiedIsInternal", func(t *testing.T) {
		o := Classify("", errors.New("disk on fire"))
		require.Equal(t, StatusFailed, o.Status)
		assert.Equal(t, KindInternalIO, o.Kind)
		assert.Equal(t, "disk on fire", o.Detail)
	})
}
