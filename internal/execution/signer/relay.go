// Package signer holds wallet implementations. Keys never enter this
// process: the relay forwards the action descriptor to an external signing
// service that owns the account's keys.
package signer

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ggonzalez94/safepilot/internal/execution"
	"github.com/ggonzalez94/safepilot/internal/httpx"
)

const DefaultRelayTimeout = 60 * time.Second

// Relay is a wallet backed by an HTTP signing service. The service receives
// the transaction JSON and answers with {"transactionHash", "error"}.
type Relay struct {
	url     string
	account string
	token   string
	http    *httpx.Client
}

// NewRelay builds a relay wallet. Retries are disabled since a repeated
// broadcast could double-spend.
func NewRelay(url, account, token string, timeout time.Duration) (*Relay, error) {
	url = strings.TrimSpace(url)
	if url == "" {
		return nil, fmt.Errorf("signer url is required")
	}
	if !strings.HasPrefix(url, "http://") && !strings.HasPrefix(url, "https://") {
		return nil, fmt.Errorf("signer url must be http(s): %s", url)
	}
	if timeout <= 0 {
		timeout = DefaultRelayTimeout
	}
	return &Relay{
		url:     url,
		account: strings.TrimSpace(account),
		token:   strings.TrimSpace(token),
		http:    httpx.New(timeout, 0),
	}, nil
}

func (r *Relay) AccountID() string { return r.account }

type relayResponse struct {
	TransactionHash string `json:"transactionHash"`
	Error           string `json:"error"`
}

func (r *Relay) SignAndSendTransaction(ctx context.Context, tx execution.Transaction) (execution.BroadcastResult, error) {
	if tx.SignerID == "" {
		tx.SignerID = r.account
	}
	headers := map[string]string{}
	if r.token != "" {
		headers["Authorization"] = "Bearer " + r.token
	}
	var resp relayResponse
	if err := r.http.PostJSON(ctx, r.url, tx, headers, &resp); err != nil {
		return execution.BroadcastResult{}, &execution.TransportError{Err: err}
	}
	if msg := strings.TrimSpace(resp.Error); msg != "" {
		return execution.BroadcastResult{TxHash: resp.TransactionHash}, errors.New(msg)
	}
	return execution.BroadcastResult{TxHash: resp.TransactionHash}, nil
}
