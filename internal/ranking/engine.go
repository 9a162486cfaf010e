// Package ranking assembles the ordered list of deposit options: curated
// liquid-staking protocols first, then the deepest market pools.
package ranking

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/ggonzalez94/safepilot/internal/fallback"
	"github.com/ggonzalez94/safepilot/internal/model"
	"github.com/ggonzalez94/safepilot/internal/near"
	"github.com/ggonzalez94/safepilot/internal/providers"
	"github.com/ggonzalez94/safepilot/internal/providers/yieldutil"
)

const (
	DefaultTVLFloor = 500_000
	DefaultTopK     = 3

	defaultLinearAPY = "9.85%"
	linearContract   = "linear-protocol.near"
	marketContract   = "v2.ref-finance.near"
	marketMethod     = "mft_transfer_call"
)

var curated = []model.PoolOption{
	{
		ID: "linear-stake", Name: "LiNEAR", SubName: "Liquid Staking", APY: defaultLinearAPY, MinDeposit: 0.1, Risk: model.RiskLow,
		Description: "PROTOCOL: Top-tier liquid staking. Auto-compounding.",
		ContractID:  linearContract, MethodName: "deposit_and_stake", Verified: true,
	},
	{
		ID: "meta-stake", Name: "META POOL", SubName: "Liquid Staking", APY: "10.12%", MinDeposit: 1.0, Risk: model.RiskLow,
		Description: "GOVERNANCE: Receive stNEAR. DAO voting rights.",
		ContractID:  "meta-pool.near", MethodName: "deposit_and_stake", Verified: true,
	},
	{
		ID: "stader-stake", Name: "STADER", SubName: "NearX Yield", APY: "9.6%", MinDeposit: 1.0, Risk: model.RiskLow,
		Description: "STRATEGY: Multi-validator architecture. High security.",
		ContractID:  "v2-nearx.stader-labs.near", MethodName: "deposit_and_stake", Verified: true,
	},
}

// Curated returns a copy of the verified options with their default APYs.
func Curated() []model.PoolOption {
	return append([]model.PoolOption(nil), curated...)
}

type Config struct {
	TVLFloor    float64
	TopK        int
	PoolTimeout time.Duration
}

type Engine struct {
	ledger near.Reader
	pools  []providers.PoolProvider
	cfg    Config
	logger *slog.Logger
}

func New(ledger near.Reader, pools []providers.PoolProvider, cfg Config, logger *slog.Logger) *Engine {
	if cfg.TVLFloor <= 0 {
		cfg.TVLFloor = DefaultTVLFloor
	}
	if cfg.TopK <= 0 {
		cfg.TopK = DefaultTopK
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{ledger: ledger, pools: pools, cfg: cfg, logger: logger}
}

// Options never fails: curated entries are always present and precede any
// market pools, which are included on a best-effort basis.
func (e *Engine) Options(ctx context.Context) ([]model.PoolOption, []model.ProviderStatus) {
	out := Curated()
	out[0].APY = e.linearAPY(ctx)

	market, statuses := e.marketOptions(ctx)
	return append(out, market...), statuses
}

func (e *Engine) linearAPY(ctx context.Context) string {
	if e.ledger == nil {
		return defaultLinearAPY
	}
	var summary struct {
		APY json.RawMessage `json:"apy"`
	}
	if err := e.ledger.CallViewMethod(ctx, linearContract, "get_summary", map[string]any{}, &summary); err != nil {
		e.logger.Warn("linear summary unavailable, using default apy", "err", err)
		return defaultLinearAPY
	}
	v, ok := parseLooseFloat(summary.APY)
	if !ok {
		return defaultLinearAPY
	}
	return yieldutil.FormatAPY(v * 100)
}

func (e *Engine) marketOptions(ctx context.Context) ([]model.PoolOption, []model.ProviderStatus) {
	if len(e.pools) == 0 {
		return nil, nil
	}
	chain := fallback.Chain[[]model.Pool]{Lookup: "pools", Timeout: e.cfg.PoolTimeout, Logger: e.logger}
	for _, p := range e.pools {
		chain.Sources = append(chain.Sources, fallback.Source[[]model.Pool]{Name: p.Info().Name, Fetch: p.TopPools})
	}
	res, err := chain.Try(ctx)
	if err != nil {
		return nil, res.Statuses
	}
	top := yieldutil.TopByTVL(res.Value, e.cfg.TVLFloor, e.cfg.TopK)
	out := make([]model.PoolOption, 0, len(top))
	for _, pool := range top {
		out = append(out, MarketOption(pool))
	}
	return out, res.Statuses
}

// MarketOption maps a listed pool to an unverified deposit option.
func MarketOption(pool model.Pool) model.PoolOption {
	return model.PoolOption{
		ID:          "ref-" + pool.ID,
		Name:        "REF DEX",
		SubName:     strings.Join(pool.TokenSymbols, "-"),
		APY:         yieldutil.FormatAPY(yieldutil.EstimateAPY(pool)),
		MinDeposit:  0,
		Risk:        model.RiskMedium,
		Description: fmt.Sprintf("MARKET DATA: TVL $%.1fM. Requires wNEAR.", pool.TVL/1_000_000),
		ContractID:  marketContract,
		MethodName:  marketMethod,
		Verified:    false,
	}
}

// Find returns the option with the given id from opts.
func Find(opts []model.PoolOption, id string) (model.PoolOption, bool) {
	for _, o := range opts {
		if strings.EqualFold(o.ID, strings.TrimSpace(id)) {
			return o, true
		}
	}
	return model.PoolOption{}, false
}

func parseLooseFloat(raw json.RawMessage) (float64, bool) {
	s := strings.Trim(strings.TrimSpace(string(raw)), `"`)
	if s == "" || s == "null" {
		return 0, false
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || v <= 0 {
		return 0, false
	}
	return v, true
}
