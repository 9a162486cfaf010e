package portfolio

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"sync"
	"testing"

	clierr "github.com/ggonzalez94/safepilot/internal/errors"
)

type fakeLedger struct {
	mu       sync.Mutex
	balances map[string]string
	failing  map[string]bool
	broken   map[string]bool
	calls    []string
}

func (f *fakeLedger) ViewAccount(context.Context, string) (string, error) {
	return "", clierr.New(clierr.CodeUnsupported, "not used")
}

func (f *fakeLedger) CallViewMethod(_ context.Context, contractID, method string, args any, out any) error {
	f.mu.Lock()
	f.calls = append(f.calls, contractID+"."+method)
	f.mu.Unlock()
	if f.failing[contractID] {
		return clierr.New(clierr.CodeUnavailable, "rpc down")
	}
	if f.broken[contractID] {
		var decoded map[string]string
		decoded["balance"] = "1"
	}
	raw, ok := f.balances[contractID]
	if !ok {
		raw = "0"
	}
	buf, _ := json.Marshal(raw)
	return json.Unmarshal(buf, out)
}

func quiet() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func TestScanDustThresholdBoundary(t *testing.T) {
	ledger := &fakeLedger{balances: map[string]string{
		"linear-protocol.near": "1000000",
		"meta-pool.near":       "1000001",
	}}
	got := NewScanner(ledger, quiet()).Scan(context.Background(), "alice.near")
	if len(got) != 1 {
		t.Fatalf("expected only threshold+1 entry, got %+v", got)
	}
	if got[0].ProtocolID != "meta-pool.near" || got[0].RawAmount != "1000001" {
		t.Fatalf("unexpected position: %+v", got[0])
	}
}

func TestScanIsolatesFailuresAndKeepsOrder(t *testing.T) {
	ledger := &fakeLedger{
		balances: map[string]string{
			"linear-protocol.near":      "10000000000000000000000000",
			"meta-pool.near":            "5000000000000000000000000",
			"v2-nearx.stader-labs.near": "2500000000000000000000000",
		},
		failing: map[string]bool{"meta-pool.near": true},
	}
	got := NewScanner(ledger, quiet()).Scan(context.Background(), "alice.near")
	if len(got) != 2 {
		t.Fatalf("expected 2 positions, got %+v", got)
	}
	if got[0].DisplayName != "LiNEAR" || got[1].DisplayName != "Stader" {
		t.Fatalf("registry order not preserved: %+v", got)
	}
	if got[0].DisplayAmount != "10.000000" || got[0].NativeEquivalent != "11.50" {
		t.Fatalf("unexpected LiNEAR valuation: %+v", got[0])
	}
	if got[1].DisplayAmount != "2.500000" || got[1].NativeEquivalent != "2.90" {
		t.Fatalf("unexpected Stader valuation: %+v", got[1])
	}
	if len(ledger.calls) != 3 {
		t.Fatalf("expected one query per registry entry, got %v", ledger.calls)
	}
}

func TestScanIsolatesPanickingLookup(t *testing.T) {
	ledger := &fakeLedger{
		balances: map[string]string{
			"linear-protocol.near":      "10000000000000000000000000",
			"v2-nearx.stader-labs.near": "2500000000000000000000000",
		},
		broken: map[string]bool{"meta-pool.near": true},
	}
	got := NewScanner(ledger, quiet()).Scan(context.Background(), "alice.near")
	if len(got) != 2 {
		t.Fatalf("expected the two healthy positions, got %+v", got)
	}
	if got[0].ProtocolID != "linear-protocol.near" || got[1].ProtocolID != "v2-nearx.stader-labs.near" {
		t.Fatalf("registry order not preserved: %+v", got)
	}
}

func TestScanWithoutAccountSkipsLedger(t *testing.T) {
	ledger := &fakeLedger{}
	if got := NewScanner(ledger, quiet()).Scan(context.Background(), " "); got != nil {
		t.Fatalf("expected nil portfolio, got %+v", got)
	}
	if len(ledger.calls) != 0 {
		t.Fatalf("ledger must not be queried without account: %v", ledger.calls)
	}
}

func TestScanMalformedBalanceSkipped(t *testing.T) {
	ledger := &fakeLedger{balances: map[string]string{"linear-protocol.near": "not-a-number"}}
	if got := NewScanner(ledger, quiet()).Scan(context.Background(), "alice.near"); len(got) != 0 {
		t.Fatalf("expected malformed balance to be skipped, got %+v", got)
	}
}

func TestLookup(t *testing.T) {
	p, ok := Lookup("META-POOL.near")
	if !ok || p.Token != "stNEAR" {
		t.Fatalf("unexpected lookup: %+v %v", p, ok)
	}
	if _, ok := Lookup("unknown.near"); ok {
		t.Fatal("expected unknown contract miss")
	}
}
