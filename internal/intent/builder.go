// Package intent sizes deposits and builds signable deploy and withdraw
// intents. Validation against option policy is the caller's job; see
// internal/policy.
package intent

import (
	"encoding/json"
	"fmt"
	"math/big"
	"strings"

	"github.com/ggonzalez94/safepilot/internal/amount"
	clierr "github.com/ggonzalez94/safepilot/internal/errors"
	"github.com/ggonzalez94/safepilot/internal/execution"
	"github.com/ggonzalez94/safepilot/internal/metrics"
	"github.com/ggonzalez94/safepilot/internal/model"
)

const (
	// GasLimit is 300 Tgas, the protocol maximum for one function call.
	GasLimit = "300000000000000"

	withdrawMethod   = "unstake"
	displayPrecision = 2
)

// GasReserve is withheld on a 100% deposit: 0.05 NEAR in base units.
func GasReserve() *big.Int {
	return new(big.Int).Mul(big.NewInt(5), new(big.Int).Exp(big.NewInt(10), big.NewInt(22), nil))
}

type DeployRequest struct {
	SignerID   string
	RawBalance string
	Percent    int
	Option     model.PoolOption
}

type WithdrawRequest struct {
	SignerID string
	Position model.ProtocolPosition
}

// ValidPercent reports whether p is one of 10, 20, ..., 100.
func ValidPercent(p int) bool {
	return p >= 10 && p <= 100 && p%10 == 0
}

// DeployAmount returns floor(raw*percent/100), minus the gas reserve at 100%
// when the target covers it.
func DeployAmount(rawBalance string, percent int) (*big.Int, error) {
	if !ValidPercent(percent) {
		return nil, clierr.New(clierr.CodeUsage, fmt.Sprintf("percent must be one of 10,20,...,100 (got %d)", percent))
	}
	raw, ok := amount.ParseRaw(rawBalance)
	if !ok {
		return nil, clierr.New(clierr.CodeUsage, "balance must be a base-unit integer string")
	}
	target := amount.Percent(raw, int64(percent))
	if percent == 100 {
		reserve := GasReserve()
		if target.Cmp(reserve) >= 0 {
			target.Sub(target, reserve)
		}
	}
	return target, nil
}

// BuildDeploy sizes the deposit and returns a planned intent that calls the
// option's deposit method.
func BuildDeploy(req DeployRequest) (execution.Intent, error) {
	if strings.TrimSpace(req.Option.ContractID) == "" || strings.TrimSpace(req.Option.MethodName) == "" {
		return execution.Intent{}, clierr.New(clierr.CodeUsage, "option has no contract or method")
	}
	target, err := DeployAmount(req.RawBalance, req.Percent)
	if err != nil {
		return execution.Intent{}, err
	}
	deposit := target.String()

	out := execution.NewIntent(execution.NewIntentID(), execution.IntentKindDeploy)
	out.SignerID = strings.TrimSpace(req.SignerID)
	out.ReceiverID = req.Option.ContractID
	out.MethodName = req.Option.MethodName
	out.Args = json.RawMessage(`{}`)
	out.Deposit = deposit
	out.DisplayDeposit = amount.Format(deposit, displayPrecision)
	out.Gas = GasLimit
	out.OptionID = req.Option.ID
	out.Percent = req.Percent
	metrics.IntentsBuilt.WithLabelValues(string(out.Kind)).Inc()
	return out, nil
}

// BuildWithdraw returns a planned unstake intent for the whole position. The
// raw amount is used when known; otherwise it is rebuilt from the rounded
// display amount and the intent is flagged approximate.
func BuildWithdraw(req WithdrawRequest) (execution.Intent, error) {
	pos := req.Position
	if strings.TrimSpace(pos.ProtocolID) == "" {
		return execution.Intent{}, clierr.New(clierr.CodeUsage, "position has no protocol contract")
	}
	raw := strings.TrimSpace(pos.RawAmount)
	approximate := false
	if _, ok := amount.ParseRaw(raw); !ok {
		rebuilt, err := amount.FromDecimal(pos.DisplayAmount, amount.Scale)
		if err != nil {
			return execution.Intent{}, clierr.Wrap(clierr.CodeUsage, "position has no usable amount", err)
		}
		raw = rebuilt
		approximate = true
	}
	if n, _ := amount.ParseRaw(raw); n == nil || n.Sign() == 0 {
		return execution.Intent{}, clierr.New(clierr.CodeUsage, "nothing to withdraw")
	}
	args, err := json.Marshal(map[string]string{"amount": raw})
	if err != nil {
		return execution.Intent{}, clierr.Wrap(clierr.CodeInternal, "encode unstake args", err)
	}

	out := execution.NewIntent(execution.NewIntentID(), execution.IntentKindWithdraw)
	out.SignerID = strings.TrimSpace(req.SignerID)
	out.ReceiverID = pos.ProtocolID
	out.MethodName = withdrawMethod
	out.Args = args
	out.Deposit = "0"
	out.DisplayDeposit = amount.Zero(displayPrecision)
	out.Gas = GasLimit
	out.Approximate = approximate
	metrics.IntentsBuilt.WithLabelValues(string(out.Kind)).Inc()
	return out, nil
}
