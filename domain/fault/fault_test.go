package fault

import (
	"errors"
	"fmt"
	"testing"
	"time"
)

func TestKindOf_WrappedChain(t *testing.T) {
	root := errors.New("connection reset")
	classified := Wrap(KindSourceUnavailable, "list branches", root)
	wrapped := fmt.Errorf("ingest acme/svc: %w", classified)

	if got := KindOf(wrapped); got != KindSourceUnavailable {
		t.Fatalf("KindOf = %v, want %v", got, KindSourceUnavailable)
	}
	if !errors.Is(wrapped, root) {
		t.Fatal("root cause lost through classification")
	}
}

func TestKindOf_Unclassified(t *testing.T) {
	if got := KindOf(errors.New("plain")); got != KindUnknown {
		t.Fatalf("KindOf = %v, want KindUnknown", got)
	}
}

func TestRetryable(t *testing.T) {
	tests := []struct {
		kind Kind
		want bool
	}{
		{KindTransientDependency, true},
		{KindSourceUnavailable, true},
		{KindRateLimited, true},
		{KindTimeout, true},
		{KindValidation, false},
		{KindInvalidTransition, false},
		{KindNotFound, false},
		{KindConflict, false},
		{KindSourceAuth, false},
		{KindSourceNotFound, false},
		{KindPermanentDependency, false},
		{KindQuotaExceeded, false},
	}
	for _, tt := range tests {
		t.Run(tt.kind.String(), func(t *testing.T) {
			err := New(tt.kind, "x")
			if got := Retryable(err); got != tt.want {
				t.Fatalf("Retryable(%v) = %v, want %v", tt.kind, got, tt.want)
			}
		})
	}
}

func TestRetryAfterHint(t *testing.T) {
	err := New(KindRateLimited, "throttled").WithRetryAfter(30 * time.Second)
	wrapped := fmt.Errorf("connect: %w", err)

	hint, ok := RetryAfterHint(wrapped)
	if !ok || hint != 30*time.Second {
		t.Fatalf("RetryAfterHint = %v, %v; want 30s, true", hint, ok)
	}

	if _, ok := RetryAfterHint(errors.New("plain")); ok {
		t.Fatal("unclassified error should carry no hint")
	}
}

func TestInvalidTransition_Message(t *testing.T) {
	err := InvalidTransition("repository", "ready", "connected")
	want := "invalid_transition: repository cannot transition from ready to connected"
	if err.Error() != want {
		t.Fatalf("Error() = %q, want %q", err.Error(), want)
	}
}
