package refinance

import (
	"bytes"
	"context"
	"strconv"
	"strings"

	clierr "github.com/ggonzalez94/safepilot/internal/errors"
	"github.com/ggonzalez94/safepilot/internal/httpx"
	"github.com/ggonzalez94/safepilot/internal/model"
)

const defaultBase = "https://api.ref.finance"

type Client struct {
	http    *httpx.Client
	baseURL string
}

func New(httpClient *httpx.Client) *Client {
	return &Client{http: httpClient, baseURL: defaultBase}
}

func (c *Client) Info() model.ProviderInfo {
	return model.ProviderInfo{
		Name:         "ref-finance",
		Type:         "pools",
		RequiresKey:  false,
		Capabilities: []string{"pools.top"},
	}
}

// flexFloat decodes numbers the indexer sometimes serializes as strings.
type flexFloat float64

func (f *flexFloat) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		*f = 0
		return nil
	}
	s := strings.Trim(string(b), `"`)
	if s == "" {
		*f = 0
		return nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return err
	}
	*f = flexFloat(v)
	return nil
}

// flexID accepts numeric or string pool ids.
type flexID string

func (id *flexID) UnmarshalJSON(b []byte) error {
	*id = flexID(strings.Trim(string(bytes.TrimSpace(b)), `"`))
	return nil
}

type poolResp struct {
	ID           flexID    `json:"id"`
	TVL          flexFloat `json:"tvl"`
	Volume24h    flexFloat `json:"vol24h"`
	APY          flexFloat `json:"apy"`
	TokenSymbols []string  `json:"token_symbols"`
}

func (c *Client) TopPools(ctx context.Context) ([]model.Pool, error) {
	var resp []poolResp
	if err := c.http.GetJSON(ctx, c.baseURL+"/list-top-pools", nil, &resp); err != nil {
		if cErr, ok := clierr.As(err); ok && cErr.Code == clierr.CodePayload {
			return nil, clierr.Wrap(clierr.CodePayload, "ref-finance pool listing is not an array", err)
		}
		return nil, err
	}
	out := make([]model.Pool, 0, len(resp))
	for _, p := range resp {
		if strings.TrimSpace(string(p.ID)) == "" {
			continue
		}
		out = append(out, model.Pool{
			ID:           string(p.ID),
			TVL:          float64(p.TVL),
			Volume24h:    float64(p.Volume24h),
			APY:          float64(p.APY),
			TokenSymbols: p.TokenSymbols,
		})
	}
	return out, nil
}
