// Package assistant assembles one chat response per request: prices, wallet
// balance, staking positions and ranked options, plus a formatted reply.
package assistant

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/ggonzalez94/safepilot/internal/amount"
	clierr "github.com/ggonzalez94/safepilot/internal/errors"
	"github.com/ggonzalez94/safepilot/internal/fallback"
	"github.com/ggonzalez94/safepilot/internal/formatter"
	"github.com/ggonzalez94/safepilot/internal/metrics"
	"github.com/ggonzalez94/safepilot/internal/model"
	"github.com/ggonzalez94/safepilot/internal/near"
)

const balancePrecision = 2

type PriceSource interface {
	Prices(ctx context.Context) (model.Price, []model.ProviderStatus)
}

type PositionScanner interface {
	Scan(ctx context.Context, accountID string) []model.ProtocolPosition
}

type OptionRanker interface {
	Options(ctx context.Context) ([]model.PoolOption, []model.ProviderStatus)
}

// Ledger is one RPC endpoint used for balance lookups, tried in order.
type Ledger struct {
	Name   string
	Reader near.Reader
}

type Deps struct {
	Prices    PriceSource
	Ledgers   []Ledger
	Scanner   PositionScanner
	Ranker    OptionRanker
	Formatter formatter.Formatter
	// RequestTimeout bounds the whole pipeline; zero means no bound.
	RequestTimeout time.Duration
	Logger         *slog.Logger
}

type Pipeline struct {
	deps   Deps
	logger *slog.Logger
}

func New(deps Deps) *Pipeline {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{deps: deps, logger: logger}
}

// requestContext is built once per request and only read afterwards.
type requestContext struct {
	message   string
	accountID string
	keyword   model.Intent
	greeting  bool
}

// snapshot is the merged result of every data component.
type snapshot struct {
	prices    model.Price
	balance   model.AccountBalance
	portfolio []model.ProtocolPosition
	options   []model.PoolOption
}

// Handle runs the pipeline. It never fails: component errors degrade to
// fallback values and a panic anywhere yields FailureResponse.
func (p *Pipeline) Handle(ctx context.Context, req model.ChatRequest) (resp model.ChatResponse) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("chat pipeline failed", "panic", fmt.Sprint(r), "stack", string(debug.Stack()))
			metrics.PipelineFailures.Inc()
			resp = FailureResponse()
		}
		metrics.PipelineDuration.WithLabelValues(string(resp.Intent)).Observe(time.Since(start).Seconds())
	}()

	if p.deps.RequestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.deps.RequestTimeout)
		defer cancel()
	}

	rc := requestContext{
		message:   req.Message,
		accountID: strings.TrimSpace(req.AccountID),
		keyword:   DetectIntent(req.Message),
		greeting:  req.Message == GreetingMessage,
	}
	snap := p.gather(ctx, rc)
	return p.assemble(ctx, rc, snap)
}

func (p *Pipeline) gather(ctx context.Context, rc requestContext) snapshot {
	var (
		snap   snapshot
		g      errgroup.Group
		panics = make([]any, 2)
	)
	g.Go(func() error {
		defer func() { panics[0] = recover() }()
		snap.prices = p.prices(ctx)
		return nil
	})
	g.Go(func() error {
		defer func() { panics[1] = recover() }()
		snap.balance = p.Balance(ctx, rc.accountID)
		return nil
	})
	_ = g.Wait()
	// Re-raise on the request goroutine so Handle's recover sees it.
	for _, v := range panics {
		if v != nil {
			panic(v)
		}
	}

	if rc.accountID != "" && p.deps.Scanner != nil {
		snap.portfolio = p.deps.Scanner.Scan(ctx, rc.accountID)
	}
	if p.deps.Ranker != nil {
		snap.options, _ = p.deps.Ranker.Options(ctx)
	}
	if snap.options == nil {
		snap.options = []model.PoolOption{}
	}
	return snap
}

func (p *Pipeline) prices(ctx context.Context) model.Price {
	if p.deps.Prices == nil {
		return model.Price{}
	}
	price, _ := p.deps.Prices.Prices(ctx)
	return price
}

// Balance queries the ledgers in order. Unknown balances are zero.
func (p *Pipeline) Balance(ctx context.Context, accountID string) model.AccountBalance {
	unknown := model.AccountBalance{RawAmount: "0", DisplayAmount: amount.Zero(balancePrecision)}
	if accountID == "" || len(p.deps.Ledgers) == 0 {
		return unknown
	}
	chain := fallback.Chain[string]{Lookup: "balance", Logger: p.logger}
	for _, l := range p.deps.Ledgers {
		reader := l.Reader
		chain.Sources = append(chain.Sources, fallback.Source[string]{
			Name: l.Name,
			Fetch: func(ctx context.Context) (string, error) {
				raw, err := reader.ViewAccount(ctx, accountID)
				if err != nil {
					return "", err
				}
				if _, ok := amount.ParseRaw(raw); !ok {
					return "", clierr.New(clierr.CodePayload, "account amount is not an integer")
				}
				return strings.TrimSpace(raw), nil
			},
		})
	}
	res, err := chain.Try(ctx)
	if err != nil {
		p.logger.Warn("balance unknown, defaulting to zero", "account", accountID, "err", err)
		return unknown
	}
	return model.AccountBalance{
		RawAmount:     res.Value,
		DisplayAmount: amount.Format(res.Value, balancePrecision),
		Known:         true,
	}
}

func (p *Pipeline) assemble(ctx context.Context, rc requestContext, snap snapshot) model.ChatResponse {
	resp := model.ChatResponse{
		Options:    snap.options,
		Portfolio:  snap.portfolio,
		RawBalance: snap.balance.RawAmount,
		Balance:    snap.balance.DisplayAmount,
	}
	if len(resp.Portfolio) == 0 {
		resp.Portfolio = nil
	}
	prices := snap.prices
	resp.Prices = &prices

	if rc.greeting {
		resp.Text = greetingText(rc.accountID, snap.prices, snap.balance.DisplayAmount, len(snap.options))
		resp.Intent = model.IntentGreeting
		return resp
	}

	reply, err := p.format(ctx, rc, snap)
	if err != nil {
		p.logger.Warn("formatter unavailable, using template", "err", err)
		metrics.FormatterFallbacks.Inc()
		resp.Text = acknowledgeText(rc.keyword)
		resp.Intent = rc.keyword
		return resp
	}
	resp.Text = reply.Text
	resp.Intent = resolveIntent(rc.keyword, reply.Intent)
	return resp
}

func (p *Pipeline) format(ctx context.Context, rc requestContext, snap snapshot) (formatter.Reply, error) {
	if p.deps.Formatter == nil {
		return formatter.Reply{}, clierr.New(clierr.CodeUnavailable, "no formatter configured")
	}
	names := make([]string, 0, len(snap.options))
	for _, o := range snap.options {
		names = append(names, o.Name)
	}
	return p.deps.Formatter.Format(ctx, formatter.Request{
		Message:     rc.message,
		NearAmount:  snap.balance.DisplayAmount,
		OptionNames: names,
	})
}
