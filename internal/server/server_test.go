package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	clierr "github.com/ggonzalez94/safepilot/internal/errors"
	"github.com/ggonzalez94/safepilot/internal/execution"
	"github.com/ggonzalez94/safepilot/internal/intent"
	"github.com/ggonzalez94/safepilot/internal/logx"
	"github.com/ggonzalez94/safepilot/internal/model"
)

type stubChat struct{ got model.ChatRequest }

func (s *stubChat) Handle(_ context.Context, req model.ChatRequest) model.ChatResponse {
	s.got = req
	return model.ChatResponse{Text: "OK", Intent: model.IntentStake, Options: []model.PoolOption{{ID: "linear-stake", Verified: true}}, RawBalance: "0"}
}

type stubIntents struct {
	store map[string]execution.Intent
}

func (s *stubIntents) Deploy(_ context.Context, in intent.DeployInput) (execution.Intent, error) {
	if in.Percent == 0 {
		return execution.Intent{}, clierr.New(clierr.CodeUsage, "percent must be one of 10,20,...,100")
	}
	out := execution.NewIntent("int_1", execution.IntentKindDeploy)
	out.SignerID = in.AccountID
	s.store[out.IntentID] = out
	return out, nil
}

func (s *stubIntents) Withdraw(context.Context, intent.WithdrawInput) (execution.Intent, error) {
	return execution.Intent{}, clierr.New(clierr.CodeNotFound, "no position")
}

func (s *stubIntents) Submit(_ context.Context, id string) (execution.Intent, error) {
	it, ok := s.store[id]
	if !ok {
		return execution.Intent{}, clierr.New(clierr.CodeNotFound, "intent not found")
	}
	if it.Status != execution.IntentStatusPlanned {
		return execution.Intent{}, clierr.New(clierr.CodeConflict, "already dispatched")
	}
	it.Status = execution.IntentStatusSuccess
	s.store[id] = it
	return it, nil
}

func (s *stubIntents) Record(id string, in intent.OutcomeInput) (execution.Intent, error) {
	it := s.store[id]
	it.Outcome = &execution.Outcome{Status: execution.Classify(nil).Status, TxHash: in.TransactionHash}
	return it, nil
}

func (s *stubIntents) Get(id string) (execution.Intent, error) {
	it, ok := s.store[id]
	if !ok {
		return execution.Intent{}, clierr.New(clierr.CodeNotFound, "intent not found")
	}
	return it, nil
}

func (s *stubIntents) List(string, int) ([]execution.Intent, error) {
	out := make([]execution.Intent, 0, len(s.store))
	for _, it := range s.store {
		out = append(out, it)
	}
	return out, nil
}

func newTestServer() (*stubChat, *stubIntents, http.Handler) {
	chat := &stubChat{}
	intents := &stubIntents{store: map[string]execution.Intent{}}
	return chat, intents, New(chat, intents, 0, logx.Discard()).Router()
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestChatEndpoint(t *testing.T) {
	chat, _, h := newTestServer()
	rec := do(t, h, http.MethodPost, "/api/chat", `{"message":"find yield","accountId":"alice.near"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status %d: %s", rec.Code, rec.Body.String())
	}
	if chat.got.Message != "find yield" || chat.got.AccountID != "alice.near" {
		t.Fatalf("unexpected forwarded request: %+v", chat.got)
	}
	var resp model.ChatResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Intent != model.IntentStake || len(resp.Options) != 1 {
		t.Fatalf("unexpected response: %+v", resp)
	}
}

func TestChatEndpointBadBodyIsWellFormed(t *testing.T) {
	_, _, h := newTestServer()
	rec := do(t, h, http.MethodPost, "/api/chat", `{not json`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 for bad body, got %d", rec.Code)
	}
	body := rec.Body.String()
	if !strings.Contains(body, "SYSTEM ERROR: SCANNER FAILED.") || !strings.Contains(body, `"portfolio":[]`) {
		t.Fatalf("unexpected failure body: %s", body)
	}
}

func TestIntentLifecycleEndpoints(t *testing.T) {
	_, _, h := newTestServer()

	rec := do(t, h, http.MethodPost, "/api/intents/deploy", `{"accountId":"alice.near","optionId":"linear-stake","percent":50}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("deploy: unexpected status %d: %s", rec.Code, rec.Body.String())
	}

	rec = do(t, h, http.MethodPost, "/api/intents/int_1/submit", ``)
	if rec.Code != http.StatusOK {
		t.Fatalf("submit: unexpected status %d: %s", rec.Code, rec.Body.String())
	}
	rec = do(t, h, http.MethodPost, "/api/intents/int_1/submit", ``)
	if rec.Code != http.StatusConflict {
		t.Fatalf("resubmit: expected 409, got %d", rec.Code)
	}

	rec = do(t, h, http.MethodGet, "/api/intents/int_1", ``)
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"status":"success"`) {
		t.Fatalf("get: unexpected response %d: %s", rec.Code, rec.Body.String())
	}

	rec = do(t, h, http.MethodGet, "/api/intents?limit=5", ``)
	if rec.Code != http.StatusOK {
		t.Fatalf("list: unexpected status %d", rec.Code)
	}
	rec = do(t, h, http.MethodGet, "/api/intents?limit=zero", ``)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("list: expected 400 for bad limit, got %d", rec.Code)
	}
}

func TestIntentErrorsMapToStatus(t *testing.T) {
	_, _, h := newTestServer()
	cases := []struct {
		method, path, body string
		want               int
		typ                string
	}{
		{http.MethodPost, "/api/intents/deploy", `{"accountId":"a.near","optionId":"x"}`, http.StatusBadRequest, "usage_error"},
		{http.MethodPost, "/api/intents/deploy", `nope`, http.StatusBadRequest, "usage_error"},
		{http.MethodPost, "/api/intents/withdraw", `{"accountId":"a.near","protocolId":"meta-pool.near"}`, http.StatusNotFound, "not_found"},
		{http.MethodGet, "/api/intents/int_missing", ``, http.StatusNotFound, "not_found"},
	}
	for _, tc := range cases {
		rec := do(t, h, tc.method, tc.path, tc.body)
		if rec.Code != tc.want {
			t.Fatalf("%s %s: expected %d, got %d", tc.method, tc.path, tc.want, rec.Code)
		}
		var body map[string]string
		if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
			t.Fatalf("decode error body: %v", err)
		}
		if body["type"] != tc.typ {
			t.Fatalf("%s %s: expected type %s, got %s", tc.method, tc.path, tc.typ, body["type"])
		}
	}
}

func TestHealthAndMetrics(t *testing.T) {
	_, _, h := newTestServer()
	if rec := do(t, h, http.MethodGet, "/health", ``); rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"status":"ok"`) {
		t.Fatalf("unexpected health response %d: %s", rec.Code, rec.Body.String())
	}
	do(t, h, http.MethodPost, "/api/chat", `{"message":"hi"}`)
	rec := do(t, h, http.MethodGet, "/metrics", ``)
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "safepilot_http_requests_total") {
		t.Fatalf("expected http metrics, got %d", rec.Code)
	}
}

func TestListenAndServeStopsOnCancel(t *testing.T) {
	_, intents, _ := newTestServer()
	srv := New(&stubChat{}, intents, 0, logx.Discard())
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.ListenAndServe(ctx, "127.0.0.1:0") }()
	cancel()
	if err := <-done; err != nil {
		t.Fatalf("ListenAndServe returned %v", err)
	}
}
