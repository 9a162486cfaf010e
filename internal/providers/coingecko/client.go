package coingecko

import (
	"context"
	"net/url"
	"strings"

	clierr "github.com/ggonzalez94/safepilot/internal/errors"
	"github.com/ggonzalez94/safepilot/internal/httpx"
	"github.com/ggonzalez94/safepilot/internal/model"
)

const (
	defaultBase = "https://api.coingecko.com/api/v3"
	proBase     = "https://pro-api.coingecko.com/api/v3"
)

type Client struct {
	http    *httpx.Client
	baseURL string
	apiKey  string
}

func New(httpClient *httpx.Client, apiKey string) *Client {
	base := defaultBase
	if strings.TrimSpace(apiKey) != "" {
		base = proBase
	}
	return &Client{http: httpClient, baseURL: base, apiKey: strings.TrimSpace(apiKey)}
}

func (c *Client) Info() model.ProviderInfo {
	return model.ProviderInfo{
		Name:          "coingecko",
		Type:          "prices",
		RequiresKey:   false,
		Capabilities:  []string{"prices.near", "prices.btc"},
		KeyEnvVarName: "SAFEPILOT_COINGECKO_API_KEY",
	}
}

type quote struct {
	USD *float64 `json:"usd"`
}

func (c *Client) Prices(ctx context.Context) (model.Price, error) {
	q := url.Values{}
	q.Set("ids", "near,bitcoin")
	q.Set("vs_currencies", "usd")
	endpoint := c.baseURL + "/simple/price?" + q.Encode()

	var headers map[string]string
	if c.apiKey != "" {
		headers = map[string]string{"x-cg-pro-api-key": c.apiKey}
	}
	var resp map[string]quote
	if err := c.http.GetJSON(ctx, endpoint, headers, &resp); err != nil {
		return model.Price{}, err
	}
	near, okNear := resp["near"]
	btc, okBTC := resp["bitcoin"]
	if !okNear || !okBTC || near.USD == nil || btc.USD == nil {
		return model.Price{}, clierr.New(clierr.CodePayload, "coingecko response missing usd quotes")
	}
	if *near.USD <= 0 || *btc.USD <= 0 {
		return model.Price{}, clierr.New(clierr.CodePayload, "coingecko returned non-positive quote")
	}
	return model.Price{Native: *near.USD, Reference: *btc.USD, Source: "coingecko"}, nil
}
