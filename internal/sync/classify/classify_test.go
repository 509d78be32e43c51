package classify

import (
	"errors"
	"fmt"
	"testing"
	"time"
)

func TestClassify_KnownPatterns(t *testing.T) {
	cases := []struct {
		msg  string
		kind Kind
	}{
		{"pipedrive rate limit exceeded, retry later", KindRateLimit},
		{"HTTP 429 too many requests", KindRateLimit},
		{"unauthorized: invalid api token", KindAuthentication},
		{"request failed with status 401", KindAuthentication},
		{"dial tcp: connection refused", KindNetwork},
		{"context deadline exceeded: request timed out", KindNetwork},
		{"pq: duplicate key value violates unique constraint", KindDatabase},
		{"sql: no rows in result set", KindDatabase},
		{"validation failed: required field name", KindValidation},
		{"pipedrive returned bad gateway", KindExternalAPI},
		{"upstream service unavailable (503)", KindExternalAPI},
	}

	for _, tc := range cases {
		c := Classify(errors.New(tc.msg))
		if c.Kind != tc.kind {
			t.Errorf("Classify(%q) = %s, want %s", tc.msg, c.Kind, tc.kind)
		}
		wantRecoverable := tc.kind != KindAuthentication && tc.kind != KindValidation
		if c.Recoverable != wantRecoverable {
			t.Errorf("Classify(%q).Recoverable = %v, want %v", tc.msg, c.Recoverable, wantRecoverable)
		}
		if c.UserMessage == "" {
			t.Errorf("Classify(%q) has empty user message", tc.msg)
		}
	}
}

func TestClassify_TerminalKindsWinOverRetryable(t *testing.T) {
	// Message matches both AUTHENTICATION and NETWORK patterns; the canonical
	// order tests terminal kinds first.
	c := Classify(errors.New("unauthorized after connection reset"))
	if c.Kind != KindAuthentication {
		t.Fatalf("expected AUTHENTICATION, got %s", c.Kind)
	}
	if c.Recoverable {
		t.Error("AUTHENTICATION must not be recoverable")
	}
}

func TestClassify_Unknown(t *testing.T) {
	c := Classify(errors.New("something completely else happened"))
	if c.Kind != KindUnknown {
		t.Fatalf("expected UNKNOWN, got %s", c.Kind)
	}
	if !c.Recoverable {
		t.Error("UNKNOWN must be recoverable")
	}
	if c.RetryAfter != 0 {
		t.Errorf("UNKNOWN must carry no retry hint, got %v", c.RetryAfter)
	}
}

func TestClassify_RetryHints(t *testing.T) {
	if got := Classify(errors.New("rate limit hit")).RetryAfter; got != 60*time.Second {
		t.Errorf("RATE_LIMIT retry hint = %v, want 60s", got)
	}
	if got := Classify(errors.New("network unreachable")).RetryAfter; got != 5*time.Second {
		t.Errorf("NETWORK retry hint = %v, want 5s", got)
	}
	if got := Classify(errors.New("database is on fire")).RetryAfter; got != 0 {
		t.Errorf("DATABASE must carry no retry hint, got %v", got)
	}
}

func TestClassify_TaggedBypassesPatterns(t *testing.T) {
	// Tag says VALIDATION even though the text looks like a network error.
	err := NewTagged(KindValidation, "timed out reading field", nil)
	if c := Classify(err); c.Kind != KindValidation {
		t.Fatalf("expected tagged VALIDATION, got %s", c.Kind)
	}

	// Tags survive wrapping.
	wrapped := fmt.Errorf("processing contact: %w", Errorf(KindRateLimit, "burst exhausted"))
	if c := Classify(wrapped); c.Kind != KindRateLimit {
		t.Fatalf("expected tagged RATE_LIMIT through wrap, got %s", c.Kind)
	}
}
