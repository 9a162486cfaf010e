// Package near is a read-only client for the NEAR JSON-RPC "query" method.
package near

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	clierr "github.com/ggonzalez94/safepilot/internal/errors"
	"github.com/ggonzalez94/safepilot/internal/httpx"
	"github.com/ggonzalez94/safepilot/internal/model"
)

const (
	DefaultRPCURL  = "https://rpc.mainnet.near.org"
	defaultTimeout = 4 * time.Second
	requestID      = "safepilot"
)

// Reader is the ledger surface the scanner and ranking engine depend on.
type Reader interface {
	ViewAccount(ctx context.Context, accountID string) (string, error)
	CallViewMethod(ctx context.Context, contractID, method string, args any, out any) error
}

type Client struct {
	http    *httpx.Client
	rpcURL  string
	timeout time.Duration
}

// New returns a ledger client. timeout bounds each individual query and is
// independent of any deadline the caller's context already carries.
func New(httpClient *httpx.Client, rpcURL string, timeout time.Duration) *Client {
	if strings.TrimSpace(rpcURL) == "" {
		rpcURL = DefaultRPCURL
	}
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Client{http: httpClient, rpcURL: strings.TrimRight(rpcURL, "/"), timeout: timeout}
}

func (c *Client) Info() model.ProviderInfo {
	return model.ProviderInfo{
		Name:         "near-rpc",
		Type:         "ledger",
		RequiresKey:  false,
		Capabilities: []string{"account.view", "contract.view"},
	}
}

type rpcRequest struct {
	JSONRPC string      `json:"jsonrpc"`
	ID      string      `json:"id"`
	Method  string      `json:"method"`
	Params  queryParams `json:"params"`
}

type queryParams struct {
	RequestType string `json:"request_type"`
	Finality    string `json:"finality"`
	AccountID   string `json:"account_id"`
	MethodName  string `json:"method_name,omitempty"`
	ArgsBase64  string `json:"args_base64,omitempty"`
}

type rpcError struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Name    string          `json:"name"`
	Data    json.RawMessage `json:"data"`
}

type rpcResponse struct {
	Result *queryResult `json:"result"`
	Error  *rpcError    `json:"error"`
}

type queryResult struct {
	Amount string          `json:"amount"`
	Result json.RawMessage `json:"result"`
	Error  string          `json:"error"`
}

// ViewAccount returns the account's liquid balance in base units.
func (c *Client) ViewAccount(ctx context.Context, accountID string) (string, error) {
	accountID = strings.TrimSpace(accountID)
	if accountID == "" {
		return "", clierr.New(clierr.CodeUsage, "account id is required")
	}
	res, err := c.query(ctx, queryParams{
		RequestType: "view_account",
		Finality:    "final",
		AccountID:   accountID,
	})
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(res.Amount) == "" {
		return "", clierr.New(clierr.CodePayload, "view_account response missing amount")
	}
	return res.Amount, nil
}

// CallViewMethod runs a read-only contract method and JSON-decodes its return
// value into out.
func (c *Client) CallViewMethod(ctx context.Context, contractID, method string, args any, out any) error {
	if args == nil {
		args = map[string]any{}
	}
	encoded, err := json.Marshal(args)
	if err != nil {
		return clierr.Wrap(clierr.CodeInternal, "encode view args", err)
	}
	res, err := c.query(ctx, queryParams{
		RequestType: "call_function",
		Finality:    "final",
		AccountID:   contractID,
		MethodName:  method,
		ArgsBase64:  base64.StdEncoding.EncodeToString(encoded),
	})
	if err != nil {
		return err
	}
	if res.Error != "" {
		return clierr.New(clierr.CodeUnavailable, fmt.Sprintf("%s.%s: %s", contractID, method, res.Error))
	}
	raw, err := decodeResultBytes(res.Result)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return clierr.Wrap(clierr.CodePayload, fmt.Sprintf("parse %s.%s result", contractID, method), err)
	}
	return nil
}

func (c *Client) query(ctx context.Context, params queryParams) (*queryResult, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req := rpcRequest{JSONRPC: "2.0", ID: requestID, Method: "query", Params: params}
	var resp rpcResponse
	if err := c.http.PostJSON(ctx, c.rpcURL, req, nil, &resp); err != nil {
		return nil, err
	}
	if resp.Error != nil {
		msg := resp.Error.Message
		if resp.Error.Name != "" {
			msg = resp.Error.Name + ": " + msg
		}
		return nil, clierr.New(clierr.CodeUnavailable, fmt.Sprintf("rpc error %d: %s", resp.Error.Code, msg))
	}
	if resp.Result == nil {
		return nil, clierr.New(clierr.CodePayload, "rpc response missing result")
	}
	return resp.Result, nil
}

// decodeResultBytes accepts the u8 array NEAR nodes return as well as a
// base64 string form.
func decodeResultBytes(raw json.RawMessage) ([]byte, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil, clierr.New(clierr.CodePayload, "view call returned no result bytes")
	}
	if trimmed[0] == '"' {
		var s string
		if err := json.Unmarshal(trimmed, &s); err != nil {
			return nil, clierr.Wrap(clierr.CodePayload, "decode result string", err)
		}
		out, err := base64.StdEncoding.DecodeString(s)
		if err != nil {
			return nil, clierr.Wrap(clierr.CodePayload, "decode base64 result", err)
		}
		return out, nil
	}
	var ints []int
	if err := json.Unmarshal(trimmed, &ints); err != nil {
		return nil, clierr.Wrap(clierr.CodePayload, "decode result bytes", err)
	}
	out := make([]byte, len(ints))
	for i, v := range ints {
		if v < 0 || v > 255 {
			return nil, clierr.New(clierr.CodePayload, "result byte out of range")
		}
		out[i] = byte(v)
	}
	return out, nil
}
