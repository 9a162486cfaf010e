package intent

import (
	"encoding/json"
	"math/big"
	"testing"

	clierr "github.com/ggonzalez94/safepilot/internal/errors"
	"github.com/ggonzalez94/safepilot/internal/execution"
	"github.com/ggonzalez94/safepilot/internal/model"
)

const tenNear = "10000000000000000000000000"

func linear() model.PoolOption {
	return model.PoolOption{ID: "linear-stake", Name: "LiNEAR", ContractID: "linear-protocol.near", MethodName: "deposit_and_stake", MinDeposit: 0.1, Verified: true}
}

func TestBuildDeployFullBalanceWithholdsReserve(t *testing.T) {
	got, err := BuildDeploy(DeployRequest{SignerID: "alice.near", RawBalance: tenNear, Percent: 100, Option: linear()})
	if err != nil {
		t.Fatalf("BuildDeploy failed: %v", err)
	}
	if got.Deposit != "9950000000000000000000000" {
		t.Fatalf("unexpected deposit %s", got.Deposit)
	}
	dep, _ := new(big.Int).SetString(got.Deposit, 10)
	bal, _ := new(big.Int).SetString(tenNear, 10)
	if dep.Cmp(bal) >= 0 {
		t.Fatal("deposit must be strictly below balance at 100%")
	}
	if got.DisplayDeposit != "9.95" {
		t.Fatalf("unexpected display deposit %s", got.DisplayDeposit)
	}
	if got.ReceiverID != "linear-protocol.near" || got.MethodName != "deposit_and_stake" || got.Gas != GasLimit {
		t.Fatalf("unexpected intent: %+v", got)
	}
	if string(got.Args) != "{}" {
		t.Fatalf("expected empty args, got %s", got.Args)
	}
	if got.Kind != execution.IntentKindDeploy || got.Status != execution.IntentStatusPlanned {
		t.Fatalf("unexpected kind/status %s/%s", got.Kind, got.Status)
	}
}

func TestBuildDeployHalfIgnoresReserve(t *testing.T) {
	got, err := BuildDeploy(DeployRequest{RawBalance: tenNear, Percent: 50, Option: linear()})
	if err != nil {
		t.Fatalf("BuildDeploy failed: %v", err)
	}
	if got.Deposit != "5000000000000000000000000" {
		t.Fatalf("expected exactly half, got %s", got.Deposit)
	}
}

func TestDeployAmountFloorsAndSkipsReserveBelowIt(t *testing.T) {
	got, err := DeployAmount("999", 10)
	if err != nil {
		t.Fatalf("DeployAmount failed: %v", err)
	}
	if got.String() != "99" {
		t.Fatalf("expected floor 99, got %s", got)
	}
	small := "40000000000000000000000" // 0.04 NEAR, below the reserve
	got, err = DeployAmount(small, 100)
	if err != nil {
		t.Fatalf("DeployAmount failed: %v", err)
	}
	if got.String() != small {
		t.Fatalf("reserve must not apply below its own size, got %s", got)
	}
}

func TestDeployAmountRejectsBadPercent(t *testing.T) {
	for _, p := range []int{0, 5, 15, 110, -10} {
		if _, err := DeployAmount(tenNear, p); !clierr.Is(err, clierr.CodeUsage) {
			t.Fatalf("percent %d: expected usage error, got %v", p, err)
		}
	}
	if _, err := DeployAmount("1e24", 50); !clierr.Is(err, clierr.CodeUsage) {
		t.Fatalf("expected usage error for malformed balance, got %v", err)
	}
}

func TestBuildWithdrawUsesRawAmount(t *testing.T) {
	pos := model.ProtocolPosition{ProtocolID: "meta-pool.near", RawAmount: "1234567890123456789012345", DisplayAmount: "1.234568"}
	got, err := BuildWithdraw(WithdrawRequest{SignerID: "alice.near", Position: pos})
	if err != nil {
		t.Fatalf("BuildWithdraw failed: %v", err)
	}
	if got.Approximate {
		t.Fatal("raw amount must not be flagged approximate")
	}
	var args map[string]string
	if err := json.Unmarshal(got.Args, &args); err != nil {
		t.Fatalf("decode args: %v", err)
	}
	if args["amount"] != pos.RawAmount {
		t.Fatalf("unexpected amount arg %q", args["amount"])
	}
	if got.MethodName != "unstake" || got.Deposit != "0" || got.ReceiverID != "meta-pool.near" {
		t.Fatalf("unexpected intent: %+v", got)
	}
}

func TestBuildWithdrawReconstructsFromDisplay(t *testing.T) {
	pos := model.ProtocolPosition{ProtocolID: "linear-protocol.near", DisplayAmount: "2.500000"}
	got, err := BuildWithdraw(WithdrawRequest{Position: pos})
	if err != nil {
		t.Fatalf("BuildWithdraw failed: %v", err)
	}
	if !got.Approximate {
		t.Fatal("expected approximate flag")
	}
	if string(got.Args) != `{"amount":"2500000000000000000000000"}` {
		t.Fatalf("unexpected args %s", got.Args)
	}
}

func TestBuildWithdrawRejectsEmptyPosition(t *testing.T) {
	_, err := BuildWithdraw(WithdrawRequest{Position: model.ProtocolPosition{ProtocolID: "linear-protocol.near", DisplayAmount: "0.000000"}})
	if !clierr.Is(err, clierr.CodeUsage) {
		t.Fatalf("expected usage error, got %v", err)
	}
}
