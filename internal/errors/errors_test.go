package errors

import (
	stderrors "errors"
	"fmt"
	"testing"
)

func TestCodedErrors(t *testing.T) {
	err := New(ErrCodeAlreadyVoted, "board member has already voted")
	if !Is(err, ErrCodeAlreadyVoted) {
		t.Fatalf("expected already_voted code")
	}
	if CodeOf(err) != ErrCodeAlreadyVoted {
		t.Fatalf("unexpected code %s", CodeOf(err))
	}
	if MessageOf(err) != "board member has already voted" {
		t.Fatalf("unexpected message %q", MessageOf(err))
	}
}

func TestWrapPreservesCause(t *testing.T) {
	cause := fmt.Errorf("connection refused")
	err := Wrap(cause, ErrCodeInternal, "failed to persist review state")

	if !stderrors.Is(err, cause) {
		t.Fatalf("expected wrapped cause to survive errors.Is")
	}
	if CodeOf(err) != ErrCodeInternal {
		t.Fatalf("unexpected code %s", CodeOf(err))
	}
	// The caller-safe message never includes the cause.
	if MessageOf(err) != "failed to persist review state" {
		t.Fatalf("unexpected message %q", MessageOf(err))
	}
	// The full rendering does, for logs.
	if got := err.Error(); got != "internal: failed to persist review state: connection refused" {
		t.Fatalf("unexpected rendering %q", got)
	}
}

func TestUncodedErrorDefaults(t *testing.T) {
	err := fmt.Errorf("plain failure")
	if CodeOf(err) != ErrCodeInternal {
		t.Fatalf("expected internal for uncoded error, got %s", CodeOf(err))
	}
	if MessageOf(err) != "internal error" {
		t.Fatalf("expected generic message, got %q", MessageOf(err))
	}
	if Is(err, ErrCodeNotFound) {
		t.Fatalf("uncoded error must not match not_found")
	}
}

func TestConstructors(t *testing.T) {
	err := NotFound("application", "abc")
	if !Is(err, ErrCodeNotFound) {
		t.Fatalf("expected not_found code")
	}
	if MessageOf(err) != "application not found: abc" {
		t.Fatalf("unexpected message %q", MessageOf(err))
	}

	err = InvalidInput("email", "a valid email address is required")
	if !Is(err, ErrCodeInvalidInput) {
		t.Fatalf("expected invalid_input code")
	}
	if MessageOf(err) != "email: a valid email address is required" {
		t.Fatalf("unexpected message %q", MessageOf(err))
	}
}
