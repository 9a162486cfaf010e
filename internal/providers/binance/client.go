package binance

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	clierr "github.com/ggonzalez94/safepilot/internal/errors"
	"github.com/ggonzalez94/safepilot/internal/httpx"
	"github.com/ggonzalez94/safepilot/internal/model"
)

const defaultBase = "https://api.binance.com"

type Client struct {
	http    *httpx.Client
	baseURL string
}

func New(httpClient *httpx.Client) *Client {
	return &Client{http: httpClient, baseURL: defaultBase}
}

func (c *Client) Info() model.ProviderInfo {
	return model.ProviderInfo{
		Name:         "binance",
		Type:         "prices",
		RequiresKey:  false,
		Capabilities: []string{"prices.near", "prices.btc"},
	}
}

type tickerResp struct {
	Symbol string `json:"symbol"`
	Price  string `json:"price"`
}

// Prices reads the NEARUSDT and BTCUSDT spot tickers. Both must succeed.
func (c *Client) Prices(ctx context.Context) (model.Price, error) {
	near, err := c.ticker(ctx, "NEARUSDT")
	if err != nil {
		return model.Price{}, err
	}
	btc, err := c.ticker(ctx, "BTCUSDT")
	if err != nil {
		return model.Price{}, err
	}
	return model.Price{Native: near, Reference: btc, Source: "binance"}, nil
}

func (c *Client) ticker(ctx context.Context, symbol string) (float64, error) {
	endpoint := fmt.Sprintf("%s/api/v3/ticker/price?symbol=%s", c.baseURL, symbol)
	var resp tickerResp
	if err := c.http.GetJSON(ctx, endpoint, nil, &resp); err != nil {
		return 0, err
	}
	v, err := strconv.ParseFloat(strings.TrimSpace(resp.Price), 64)
	if err != nil {
		return 0, clierr.Wrap(clierr.CodePayload, "parse binance "+symbol+" price", err)
	}
	if v <= 0 {
		return 0, clierr.New(clierr.CodePayload, "binance returned non-positive "+symbol+" price")
	}
	return v, nil
}
