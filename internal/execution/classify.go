package execution

import (
	"context"
	"errors"
	"strings"
)

const maxFailureMessage = 50

// ambiguousMarkers are error fragments meaning the transaction may already
// be on chain even though the transport reported a failure.
var ambiguousMarkers = []string{
	"maybe executed",
	"may have executed",
	"might have executed",
	"not found",
	"already processed",
	"already known",
	"duplicate",
	"invalid nonce",
	"nonce too low",
	"timeout",
	"timed out",
	"deadline exceeded",
}

// timeoutMarkers are the subset of ambiguousMarkers that still apply when the
// signing service could not be reached at all.
var timeoutMarkers = []string{"timeout", "timed out", "deadline exceeded"}

// Classify maps a broadcast error to a terminal outcome. A nil error is
// success. Ambiguous errors are reported as success with a caveat because
// resubmitting a possibly executed deposit risks a double spend.
//
// A TransportError is only ambiguous when the request timed out. A refused
// connection or an HTTP error status from the signer is treated as not sent.
func Classify(err error) Outcome {
	if err == nil {
		return Outcome{Status: OutcomeSuccess, Message: "transaction confirmed; re-query balances to see the new position"}
	}
	msg := strings.TrimSpace(err.Error())
	markers := ambiguousMarkers
	var transport *TransportError
	if errors.As(err, &transport) {
		if errors.Is(err, context.DeadlineExceeded) {
			return ambiguous()
		}
		markers = timeoutMarkers
	}
	if containsAny(strings.ToLower(msg), markers) {
		return ambiguous()
	}
	return Outcome{Status: OutcomeFailed, Message: truncate(msg, maxFailureMessage)}
}

func ambiguous() Outcome {
	return Outcome{
		Status:  OutcomeAmbiguousSuccess,
		Message: "transaction may have executed; check your wallet history and re-query balances before retrying",
	}
}

func containsAny(s string, markers []string) bool {
	for _, marker := range markers {
		if strings.Contains(s, marker) {
			return true
		}
	}
	return false
}

func truncate(msg string, limit int) string {
	runes := []rune(msg)
	if len(runes) <= limit {
		return msg
	}
	return string(runes[:limit])
}
