package fault

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

// TestErrorsIs tests that errors.Is matches on the code only
func TestErrorsIs(t *testing.T) {
	testCases := []struct {
		name     string
		err      error
		sentinel error
		want     bool
	}{
		{"validation", NewValidation("volumes[1].width", "mismatch"), ErrValidation, true},
		{"validation is not stream", NewValidation("x", "y"), ErrStream, false},
		{"wrapped stream", fmt.Errorf("decode: %w", NewStream(nil, "eof")), ErrStream, true},
		{"worker", NewWorker("boom", "trace"), ErrWorker, true},
		{"cancelled", NewCancelled("disposed"), ErrCancelled, true},
		{"plain error", errors.New("plain"), ErrWorker, false},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if got := errors.Is(tc.err, tc.sentinel); got != tc.want {
				t.Errorf("errors.Is(%v, %v) = %v, want %v", tc.err, tc.sentinel, got, tc.want)
			}
		})
	}
}

// TestErrorMessageContainsPath tests that validation messages name the field path
func TestErrorMessageContainsPath(t *testing.T) {
	err := NewValidation("cases[0].dataset.chunkShape[4]", "must equal channels (2), got 3")
	if !strings.Contains(err.Error(), "chunkShape[4]") {
		t.Errorf("expected path in message, got %q", err.Error())
	}
	if CodeOf(err) != CodeValidation {
		t.Errorf("expected CodeValidation, got %s", CodeOf(err))
	}
}

// TestUnwrap tests that the cause is reachable
func TestUnwrap(t *testing.T) {
	cause := errors.New("connection reset")
	err := NewStream(cause, "reading chunk %d", 3)
	if !errors.Is(err, cause) {
		t.Errorf("expected cause to be reachable via errors.Is")
	}
	if CodeOf(errors.New("x")) != CodeUnknown {
		t.Errorf("expected CodeUnknown for plain errors")
	}
}

// TestDetail tests the message without the code prefix
func TestDetail(t *testing.T) {
	err := NewValidation("volumes[1].width", "expected %d, got %d", 64, 32)
	if got := err.Detail(); got != "volumes[1].width: expected 64, got 32" {
		t.Errorf("unexpected detail %q", got)
	}
	if got := err.Error(); got != "ValidationError at volumes[1].width: expected 64, got 32" {
		t.Errorf("unexpected message %q", got)
	}
	if got := NewStream(errors.New("eof"), "reading").Detail(); got != "reading: eof" {
		t.Errorf("unexpected detail %q", got)
	}
}
