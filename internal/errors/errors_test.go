package errors

import (
	"fmt"
	"testing"
)

func TestExitCodeFollowsWrappedCode(t *testing.T) {
	base := Wrap(CodeUnavailable, "ledger query", fmt.Errorf("dial tcp: refused"))
	wrapped := fmt.Errorf("scan linear-protocol.near: %w", base)
	if got := ExitCode(wrapped); got != int(CodeUnavailable) {
		t.Fatalf("expected exit %d, got %d", CodeUnavailable, got)
	}
	if !Is(wrapped, CodeUnavailable) {
		t.Fatal("expected Is to find wrapped code")
	}
	if Is(wrapped, CodeUsage) {
		t.Fatal("unexpected usage code match")
	}
}

func TestExitCodeDefaults(t *testing.T) {
	if ExitCode(nil) != 0 {
		t.Fatal("nil error must map to exit 0")
	}
	if ExitCode(fmt.Errorf("plain")) != int(CodeInternal) {
		t.Fatal("untyped error must map to internal")
	}
}

func TestTypeName(t *testing.T) {
	cases := map[Code]string{
		CodeUsage:     "usage_error",
		CodeAmbiguous: "ambiguous_result",
		CodeConflict:  "conflict",
		CodeBlocked:   "command_blocked",
	}
	for code, want := range cases {
		if got := TypeName(New(code, "x")); got != want {
			t.Fatalf("code %d: expected %s, got %s", code, want, got)
		}
	}
	if got := TypeName(fmt.Errorf("x")); got != "internal_error" {
		t.Fatalf("unexpected type for untyped error: %s", got)
	}
}

func TestHTTPStatus(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{New(CodeUsage, "bad"), 400},
		{Wrap(CodeNotFound, "missing", fmt.Errorf("x")), 404},
		{New(CodeConflict, "twice"), 409},
		{fmt.Errorf("outer: %w", New(CodeUnavailable, "down")), 503},
		{fmt.Errorf("plain"), 500},
	}
	for _, tc := range cases {
		if got := HTTPStatus(tc.err); got != tc.want {
			t.Fatalf("HTTPStatus(%v) = %d, want %d", tc.err, got, tc.want)
		}
	}
}
