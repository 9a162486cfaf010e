package defillama

import (
	"context"
	"net/http"
	"strings"

	clierr "github.com/ggonzalez94/safepilot/internal/errors"
	"github.com/ggonzalez94/safepilot/internal/httpx"
	"github.com/ggonzalez94/safepilot/internal/model"
	"github.com/ggonzalez94/safepilot/internal/providers/yieldutil"
)

const (
	defaultYieldsBase = "https://yields.llama.fi"
	nearChain         = "near"
	refProject        = "ref-finance"
)

// Client lists Ref Finance pools from the DefiLlama yields index. It is the
// secondary pool source when the Ref indexer is down.
type Client struct {
	http       *httpx.Client
	yieldsBase string
}

func New(httpClient *httpx.Client) *Client {
	return &Client{http: httpClient, yieldsBase: defaultYieldsBase}
}

func (c *Client) Info() model.ProviderInfo {
	return model.ProviderInfo{
		Name:         "defillama",
		Type:         "pools",
		RequiresKey:  false,
		Capabilities: []string{"pools.top"},
	}
}

type poolsEnvelope struct {
	Status string      `json:"status"`
	Data   []poolEntry `json:"data"`
}

type poolEntry struct {
	Pool        string   `json:"pool"`
	Chain       string   `json:"chain"`
	Project     string   `json:"project"`
	Symbol      string   `json:"symbol"`
	APY         *float64 `json:"apy"`
	APYBase     *float64 `json:"apyBase"`
	APYReward   *float64 `json:"apyReward"`
	TVLUSD      *float64 `json:"tvlUsd"`
	VolumeUSD1D *float64 `json:"volumeUsd1d"`
	PoolMeta    string   `json:"poolMeta"`
}

// TopPools returns every Ref Finance pool on NEAR that the index knows about.
// Ordering and the TVL floor are applied by the ranking engine.
func (c *Client) TopPools(ctx context.Context) ([]model.Pool, error) {
	entries, err := c.getPools(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]model.Pool, 0)
	for _, p := range entries {
		if !strings.EqualFold(p.Chain, nearChain) || !strings.EqualFold(p.Project, refProject) {
			continue
		}
		id := poolID(p)
		if id == "" {
			continue
		}
		out = append(out, model.Pool{
			ID:           id,
			TVL:          numOrZero(p.TVLUSD),
			Volume24h:    numOrZero(p.VolumeUSD1D),
			APY:          yieldutil.PositiveFirst(numOrZero(p.APY), numOrZero(p.APYBase)+numOrZero(p.APYReward)),
			TokenSymbols: splitSymbol(p.Symbol),
		})
	}
	if len(out) == 0 {
		return nil, clierr.New(clierr.CodeUnavailable, "defillama lists no ref-finance pools on near")
	}
	return out, nil
}

func (c *Client) getPools(ctx context.Context) ([]poolEntry, error) {
	url := c.yieldsBase + "/pools"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, clierr.Wrap(clierr.CodeInternal, "build yields request", err)
	}
	var env poolsEnvelope
	if _, err := c.http.DoJSON(ctx, req, &env); err != nil {
		return nil, err
	}
	if len(env.Data) == 0 {
		return nil, clierr.New(clierr.CodeUnavailable, "defillama yields returned no pools")
	}
	return env.Data, nil
}

// poolID prefers the numeric Ref pool id carried in poolMeta so option ids
// match the ones built from the Ref indexer.
func poolID(p poolEntry) string {
	meta := strings.TrimSpace(p.PoolMeta)
	if meta != "" && strings.Trim(meta, "0123456789") == "" {
		return meta
	}
	return strings.TrimSpace(p.Pool)
}

func splitSymbol(symbol string) []string {
	parts := strings.Split(symbol, "-")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		if s := strings.TrimSpace(part); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func numOrZero(v *float64) float64 {
	if v == nil {
		return 0
	}
	return *v
}
