package refinance

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/ggonzalez94/safepilot/internal/httpx"
)

func TestTopPoolsParsesStringNumbers(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/list-top-pools", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[
			{"id":"3879","tvl":"912345.5","vol24h":"120000","apy":"4.2","token_symbols":["wNEAR","USDC"]},
			{"id":79,"tvl":600000,"vol24h":1000,"apy":2,"token_symbols":["REF","wNEAR"]},
			{"id":"","tvl":"1"}
		]`))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	c := New(httpx.New(2*time.Second, 0))
	c.baseURL = srv.URL
	pools, err := c.TopPools(context.Background())
	if err != nil {
		t.Fatalf("TopPools failed: %v", err)
	}
	if len(pools) != 2 {
		t.Fatalf("expected 2 pools, got %+v", pools)
	}
	if pools[0].ID != "3879" || pools[0].TVL != 912345.5 || pools[0].Volume24h != 120000 {
		t.Fatalf("unexpected first pool: %+v", pools[0])
	}
	if pools[1].ID != "79" || pools[1].TokenSymbols[0] != "REF" {
		t.Fatalf("unexpected second pool: %+v", pools[1])
	}
}

func TestTopPoolsRejectsNonArray(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"message":"maintenance"}`))
	}))
	defer srv.Close()

	c := New(httpx.New(2*time.Second, 0))
	c.baseURL = srv.URL
	if _, err := c.TopPools(context.Background()); err == nil {
		t.Fatal("expected error for object payload")
	}
}
