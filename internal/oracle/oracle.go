// Package oracle resolves NEAR and BTC USD prices through an ordered
// waterfall of quote providers, ending in a static pair.
package oracle

import (
	"context"
	"log/slog"
	"time"

	"github.com/ggonzalez94/safepilot/internal/fallback"
	"github.com/ggonzalez94/safepilot/internal/model"
	"github.com/ggonzalez94/safepilot/internal/providers"
)

const DefaultAttemptTimeout = 3 * time.Second

// DefaultStatic is returned when every live source fails.
var DefaultStatic = model.Price{Native: 3.00, Reference: 100000, Source: "static"}

type Oracle struct {
	sources []providers.PriceProvider
	timeout time.Duration
	static  model.Price
	logger  *slog.Logger
}

func New(sources []providers.PriceProvider, attemptTimeout time.Duration, static model.Price, logger *slog.Logger) *Oracle {
	if attemptTimeout <= 0 {
		attemptTimeout = DefaultAttemptTimeout
	}
	if static.Native <= 0 || static.Reference <= 0 {
		static = DefaultStatic
	}
	static.Source = "static"
	if logger == nil {
		logger = slog.Default()
	}
	return &Oracle{sources: sources, timeout: attemptTimeout, static: static, logger: logger}
}

// Prices always returns a value. The first structurally valid provider
// response wins; quotes are never merged across providers.
func (o *Oracle) Prices(ctx context.Context) (model.Price, []model.ProviderStatus) {
	chain := fallback.Chain[model.Price]{
		Lookup:  "prices",
		Timeout: o.timeout,
		Logger:  o.logger,
	}
	for _, p := range o.sources {
		p := p
		chain.Sources = append(chain.Sources, fallback.Source[model.Price]{
			Name:  p.Info().Name,
			Fetch: p.Prices,
		})
	}
	res := chain.Or(ctx, o.static)
	return res.Value, res.Statuses
}
