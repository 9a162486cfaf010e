package intent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	clierr "github.com/ggonzalez94/safepilot/internal/errors"
	"github.com/ggonzalez94/safepilot/internal/execution"
	"github.com/ggonzalez94/safepilot/internal/model"
	"github.com/ggonzalez94/safepilot/internal/near"
	"github.com/ggonzalez94/safepilot/internal/policy"
	"github.com/ggonzalez94/safepilot/internal/portfolio"
	"github.com/ggonzalez94/safepilot/internal/ranking"
)

type OptionRanker interface {
	Options(ctx context.Context) ([]model.PoolOption, []model.ProviderStatus)
}

type PositionScanner interface {
	Scan(ctx context.Context, accountID string) []model.ProtocolPosition
}

// DeployInput is the caller-facing deploy request. RawBalance is looked up
// on the ledger when empty.
type DeployInput struct {
	AccountID  string `json:"accountId"`
	OptionID   string `json:"optionId"`
	Percent    int    `json:"percent"`
	RawBalance string `json:"rawBalance,omitempty"`
}

// WithdrawInput names a position by protocol contract. Amounts are scanned
// from the ledger when neither is given.
type WithdrawInput struct {
	AccountID     string `json:"accountId"`
	ProtocolID    string `json:"protocolId"`
	RawAmount     string `json:"rawAmount,omitempty"`
	DisplayAmount string `json:"amount,omitempty"`
}

// OutcomeInput is a result reported by a wallet running outside this process.
type OutcomeInput struct {
	TransactionHash string `json:"transactionHash"`
	Error           string `json:"error"`
}

// Service validates, builds, stores and dispatches intents.
type Service struct {
	Ledger     near.Reader
	Ranker     OptionRanker
	Scanner    PositionScanner
	Store      *execution.Store
	Dispatcher *execution.Dispatcher
	Logger     *slog.Logger
}

func (s *Service) logger() *slog.Logger {
	if s.Logger == nil {
		return slog.Default()
	}
	return s.Logger
}

func (s *Service) Deploy(ctx context.Context, in DeployInput) (execution.Intent, error) {
	account := strings.TrimSpace(in.AccountID)
	if account == "" {
		return execution.Intent{}, clierr.New(clierr.CodeUsage, "accountId is required")
	}
	if s.Ranker == nil {
		return execution.Intent{}, clierr.New(clierr.CodeInternal, "no option ranker configured")
	}
	opts, _ := s.Ranker.Options(ctx)
	option, ok := ranking.Find(opts, in.OptionID)
	if !ok {
		return execution.Intent{}, clierr.New(clierr.CodeNotFound, fmt.Sprintf("option not found: %s", in.OptionID))
	}

	raw := strings.TrimSpace(in.RawBalance)
	if raw == "" {
		if s.Ledger == nil {
			return execution.Intent{}, clierr.New(clierr.CodeUsage, "rawBalance is required without a ledger")
		}
		v, err := s.Ledger.ViewAccount(ctx, account)
		if err != nil {
			return execution.Intent{}, clierr.Wrap(clierr.CodeUnavailable, "balance unknown; cannot size deposit", err)
		}
		raw = v
	}

	built, err := BuildDeploy(DeployRequest{SignerID: account, RawBalance: raw, Percent: in.Percent, Option: option})
	if err != nil {
		return execution.Intent{}, err
	}
	if err := policy.CheckDeploy(option, built.Deposit); err != nil {
		return execution.Intent{}, err
	}
	return s.save(built)
}

func (s *Service) Withdraw(ctx context.Context, in WithdrawInput) (execution.Intent, error) {
	account := strings.TrimSpace(in.AccountID)
	if account == "" {
		return execution.Intent{}, clierr.New(clierr.CodeUsage, "accountId is required")
	}
	if strings.TrimSpace(in.ProtocolID) == "" {
		return execution.Intent{}, clierr.New(clierr.CodeUsage, "protocolId is required")
	}
	protocol, ok := portfolio.Lookup(in.ProtocolID)
	if !ok {
		return execution.Intent{}, clierr.New(clierr.CodeNotFound, fmt.Sprintf("unknown staking protocol %q", strings.TrimSpace(in.ProtocolID)))
	}
	pos := model.ProtocolPosition{
		ProtocolID:    protocol.ContractID,
		RawAmount:     strings.TrimSpace(in.RawAmount),
		DisplayAmount: strings.TrimSpace(in.DisplayAmount),
	}
	if pos.RawAmount == "" && pos.DisplayAmount == "" {
		found, err := s.position(ctx, account, pos.ProtocolID)
		if err != nil {
			return execution.Intent{}, err
		}
		pos = found
	}
	built, err := BuildWithdraw(WithdrawRequest{SignerID: account, Position: pos})
	if err != nil {
		return execution.Intent{}, err
	}
	if built.Approximate {
		s.logger().Warn("withdraw amount reconstructed from display value", "intent", built.IntentID, "protocol", pos.ProtocolID)
	}
	return s.save(built)
}

func (s *Service) position(ctx context.Context, account, protocolID string) (model.ProtocolPosition, error) {
	if s.Scanner == nil {
		return model.ProtocolPosition{}, clierr.New(clierr.CodeUsage, "amount is required without a scanner")
	}
	for _, p := range s.Scanner.Scan(ctx, account) {
		if strings.EqualFold(p.ProtocolID, protocolID) {
			return p, nil
		}
	}
	return model.ProtocolPosition{}, clierr.New(clierr.CodeNotFound, fmt.Sprintf("no %s position for %s", protocolID, account))
}

func (s *Service) save(built execution.Intent) (execution.Intent, error) {
	if s.Store == nil {
		return built, nil
	}
	if err := s.Store.Save(built); err != nil {
		return execution.Intent{}, clierr.Wrap(clierr.CodeInternal, "persist intent", err)
	}
	s.logger().Info("intent planned", "intent", built.IntentID, "kind", built.Kind, "receiver", built.ReceiverID, "deposit", built.Deposit)
	return built, nil
}

func (s *Service) Submit(ctx context.Context, intentID string) (execution.Intent, error) {
	if s.Dispatcher == nil {
		return execution.Intent{}, clierr.New(clierr.CodeInternal, "no dispatcher configured")
	}
	return s.Dispatcher.Submit(ctx, intentID)
}

func (s *Service) Record(intentID string, in OutcomeInput) (execution.Intent, error) {
	if s.Dispatcher == nil {
		return execution.Intent{}, clierr.New(clierr.CodeInternal, "no dispatcher configured")
	}
	var sendErr error
	if msg := strings.TrimSpace(in.Error); msg != "" {
		sendErr = errors.New(msg)
	}
	return s.Dispatcher.Record(intentID, in.TransactionHash, sendErr)
}

func (s *Service) Get(intentID string) (execution.Intent, error) {
	if s.Store == nil {
		return execution.Intent{}, clierr.New(clierr.CodeInternal, "no intent store configured")
	}
	return s.Store.Get(intentID)
}

func (s *Service) List(status string, limit int) ([]execution.Intent, error) {
	if s.Store == nil {
		return nil, clierr.New(clierr.CodeInternal, "no intent store configured")
	}
	return s.Store.List(status, limit)
}
