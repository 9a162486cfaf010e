package near

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	clierr "github.com/ggonzalez94/safepilot/internal/errors"
	"github.com/ggonzalez94/safepilot/internal/httpx"
)

func byteArray(v string) string {
	parts := make([]string, 0, len(v))
	for _, b := range []byte(v) {
		parts = append(parts, fmt.Sprintf("%d", b))
	}
	return "[" + strings.Join(parts, ",") + "]"
}

func TestViewAccountReturnsAmount(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req rpcRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if req.Method != "query" || req.Params.RequestType != "view_account" || req.Params.Finality != "final" {
			t.Errorf("unexpected request: %+v", req)
		}
		if req.Params.AccountID != "alice.near" {
			t.Errorf("unexpected account id: %s", req.Params.AccountID)
		}
		_, _ = w.Write([]byte(`{"jsonrpc":"2.0","id":"safepilot","result":{"amount":"12345000000000000000000000","locked":"0"}}`))
	}))
	defer srv.Close()

	c := New(httpx.New(2*time.Second, 0), srv.URL, time.Second)
	got, err := c.ViewAccount(context.Background(), "alice.near")
	if err != nil {
		t.Fatalf("ViewAccount failed: %v", err)
	}
	if got != "12345000000000000000000000" {
		t.Fatalf("unexpected amount: %s", got)
	}
}

func TestViewAccountRPCError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"jsonrpc":"2.0","id":"safepilot","error":{"code":-32000,"message":"Server error","name":"HANDLER_ERROR"}}`))
	}))
	defer srv.Close()

	c := New(httpx.New(2*time.Second, 0), srv.URL, time.Second)
	if _, err := c.ViewAccount(context.Background(), "ghost.near"); !clierr.Is(err, clierr.CodeUnavailable) {
		t.Fatalf("expected unavailable error, got %v", err)
	}
}

func TestCallViewMethodDecodesByteArray(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req rpcRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		args, err := base64.StdEncoding.DecodeString(req.Params.ArgsBase64)
		if err != nil {
			t.Errorf("args not base64: %v", err)
		}
		if string(args) != `{"account_id":"alice.near"}` {
			t.Errorf("unexpected args: %s", args)
		}
		if req.Params.MethodName != "ft_balance_of" {
			t.Errorf("unexpected method: %s", req.Params.MethodName)
		}
		_, _ = fmt.Fprintf(w, `{"jsonrpc":"2.0","id":"safepilot","result":{"result":%s,"logs":[]}}`, byteArray(`"2000000"`))
	}))
	defer srv.Close()

	c := New(httpx.New(2*time.Second, 0), srv.URL, time.Second)
	var balance string
	err := c.CallViewMethod(context.Background(), "linear-protocol.near", "ft_balance_of", map[string]string{"account_id": "alice.near"}, &balance)
	if err != nil {
		t.Fatalf("CallViewMethod failed: %v", err)
	}
	if balance != "2000000" {
		t.Fatalf("unexpected balance: %s", balance)
	}
}

func TestCallViewMethodFailures(t *testing.T) {
	bodies := map[string]string{
		"missing result": `{"jsonrpc":"2.0","id":"safepilot","result":{"logs":[]}}`,
		"contract error": `{"jsonrpc":"2.0","id":"safepilot","result":{"error":"wasm execution failed"}}`,
		"bad json":       fmt.Sprintf(`{"jsonrpc":"2.0","id":"safepilot","result":{"result":%s}}`, byteArray(`{oops`)),
	}
	for name, body := range bodies {
		body := body
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(body))
		}))
		c := New(httpx.New(2*time.Second, 0), srv.URL, time.Second)
		var out map[string]any
		if err := c.CallViewMethod(context.Background(), "x.near", "get_summary", nil, &out); err == nil {
			t.Fatalf("%s: expected error", name)
		}
		srv.Close()
	}
}

func TestQueryHonorsPerCallTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer srv.Close()

	c := New(httpx.New(5*time.Second, 0), srv.URL, 50*time.Millisecond)
	start := time.Now()
	if _, err := c.ViewAccount(context.Background(), "alice.near"); err == nil {
		t.Fatal("expected timeout error")
	}
	if time.Since(start) > time.Second {
		t.Fatalf("per-call timeout not applied: %s", time.Since(start))
	}
}
