package execution

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"unicode/utf8"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want OutcomeStatus
	}{
		{name: "nil", err: nil, want: OutcomeSuccess},
		{name: "may have executed", err: errors.New("Transaction may have executed but the RPC dropped"), want: OutcomeAmbiguousSuccess},
		{name: "timeout", err: errors.New("request Timeout after 10s"), want: OutcomeAmbiguousSuccess},
		{name: "nonce", err: errors.New("InvalidTxError: invalid nonce"), want: OutcomeAmbiguousSuccess},
		{name: "rejected", err: errors.New("User rejected the request"), want: OutcomeFailed},
		{name: "balance", err: errors.New("NotEnoughBalance"), want: OutcomeFailed},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := Classify(tc.err)
			if got.Status != tc.want {
				t.Fatalf("expected %s, got %s (%q)", tc.want, got.Status, got.Message)
			}
			if got.Message == "" {
				t.Fatal("expected a message")
			}
		})
	}
}

func TestClassifyTruncatesFailureMessage(t *testing.T) {
	long := "Smart contract panicked: ÉRROR the attached deposit is below the minimum accepted by this pool"
	got := Classify(errors.New(long))
	if got.Status != OutcomeFailed {
		t.Fatalf("expected failed, got %s", got.Status)
	}
	if n := utf8.RuneCountInString(got.Message); n != 50 {
		t.Fatalf("expected 50 runes, got %d (%q)", n, got.Message)
	}
	if !utf8.ValidString(got.Message) {
		t.Fatalf("truncated message is not valid utf8: %q", got.Message)
	}
}

func TestClassifyShortFailureKept(t *testing.T) {
	got := Classify(errors.New("User rejected"))
	if got.Message != "User rejected" {
		t.Fatalf("unexpected message %q", got.Message)
	}
}

func TestClassifyTransportErrors(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want OutcomeStatus
	}{
		{name: "not found", err: &TransportError{Err: errors.New("provider resource not found")}, want: OutcomeFailed},
		{name: "refused", err: &TransportError{Err: errors.New("provider request failed: connection refused")}, want: OutcomeFailed},
		{name: "timeout text", err: &TransportError{Err: errors.New("provider timeout")}, want: OutcomeAmbiguousSuccess},
		{name: "deadline", err: &TransportError{Err: fmt.Errorf("post: %w", context.DeadlineExceeded)}, want: OutcomeAmbiguousSuccess},
		{name: "wrapped", err: fmt.Errorf("submit: %w", &TransportError{Err: errors.New("provider resource not found")}), want: OutcomeFailed},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := Classify(tc.err); got.Status != tc.want {
				t.Fatalf("expected %s, got %s (%q)", tc.want, got.Status, got.Message)
			}
		})
	}
}

func TestClassifySignerReportedNotFoundIsAmbiguous(t *testing.T) {
	got := Classify(errors.New("Transaction 9abc not found after broadcast"))
	if got.Status != OutcomeAmbiguousSuccess {
		t.Fatalf("expected ambiguous, got %s", got.Status)
	}
}
