// Package portfolio values an account's liquid-staking receipt tokens.
package portfolio

import (
	"context"
	"log/slog"
	"math/big"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/ggonzalez94/safepilot/internal/amount"
	"github.com/ggonzalez94/safepilot/internal/model"
	"github.com/ggonzalez94/safepilot/internal/near"
)

// DustThreshold is the largest base-unit balance still treated as dust.
const DustThreshold = 1_000_000

const (
	displayPrecision = 6
	nativePrecision  = 2
	balanceMethod    = "ft_balance_of"
)

// Protocol is one liquid-staking registry entry.
type Protocol struct {
	ContractID   string
	DisplayName  string
	Token        string
	ExchangeRate float64
}

var registry = []Protocol{
	{ContractID: "linear-protocol.near", DisplayName: "LiNEAR", Token: "LiNEAR", ExchangeRate: 1.15},
	{ContractID: "meta-pool.near", DisplayName: "MetaPool", Token: "stNEAR", ExchangeRate: 1.18},
	{ContractID: "v2-nearx.stader-labs.near", DisplayName: "Stader", Token: "NearX", ExchangeRate: 1.16},
}

// Registry returns a copy of the protocol registry in display order.
func Registry() []Protocol {
	return append([]Protocol(nil), registry...)
}

// Lookup finds a registry entry by contract id.
func Lookup(contractID string) (Protocol, bool) {
	for _, p := range registry {
		if strings.EqualFold(p.ContractID, strings.TrimSpace(contractID)) {
			return p, true
		}
	}
	return Protocol{}, false
}

type Scanner struct {
	ledger    near.Reader
	protocols []Protocol
	logger    *slog.Logger
}

func NewScanner(ledger near.Reader, logger *slog.Logger) *Scanner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scanner{ledger: ledger, protocols: Registry(), logger: logger}
}

// Scan queries every registry entry concurrently. Entries that fail or hold
// only dust are skipped, including entries whose lookup panics; the result
// keeps registry order. Scan never fails.
func (s *Scanner) Scan(ctx context.Context, accountID string) []model.ProtocolPosition {
	accountID = strings.TrimSpace(accountID)
	if accountID == "" {
		return nil
	}
	slots := make([]*model.ProtocolPosition, len(s.protocols))
	var g errgroup.Group
	for i, p := range s.protocols {
		i, p := i, p
		g.Go(func() error {
			defer func() {
				if v := recover(); v != nil {
					s.logger.Error("protocol balance query panicked", "protocol", p.ContractID, "account", accountID, "panic", v)
					slots[i] = nil
				}
			}()
			slots[i] = s.position(ctx, p, accountID)
			return nil
		})
	}
	_ = g.Wait()

	var out []model.ProtocolPosition
	for _, pos := range slots {
		if pos != nil {
			out = append(out, *pos)
		}
	}
	return out
}

func (s *Scanner) position(ctx context.Context, p Protocol, accountID string) *model.ProtocolPosition {
	var raw string
	err := s.ledger.CallViewMethod(ctx, p.ContractID, balanceMethod, map[string]string{"account_id": accountID}, &raw)
	if err != nil {
		s.logger.Warn("protocol balance query failed", "protocol", p.ContractID, "account", accountID, "err", err)
		return nil
	}
	if !amount.Exceeds(raw, big.NewInt(DustThreshold)) {
		return nil
	}
	display := amount.Format(raw, displayPrecision)
	return &model.ProtocolPosition{
		ProtocolID:       p.ContractID,
		DisplayName:      p.DisplayName,
		Token:            p.Token,
		RawAmount:        strings.TrimSpace(raw),
		DisplayAmount:    display,
		NativeEquivalent: amount.MulRate(display, p.ExchangeRate, nativePrecision),
		ExchangeRate:     p.ExchangeRate,
	}
}
