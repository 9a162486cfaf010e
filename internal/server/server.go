// Package server exposes the chat pipeline and intent lifecycle over HTTP.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/ggonzalez94/safepilot/internal/assistant"
	clierr "github.com/ggonzalez94/safepilot/internal/errors"
	"github.com/ggonzalez94/safepilot/internal/execution"
	"github.com/ggonzalez94/safepilot/internal/intent"
	"github.com/ggonzalez94/safepilot/internal/metrics"
	"github.com/ggonzalez94/safepilot/internal/model"
)

const (
	shutdownGrace = 5 * time.Second
	maxBodyBytes  = 64 << 10
)

type ChatHandler interface {
	Handle(ctx context.Context, req model.ChatRequest) model.ChatResponse
}

type Intents interface {
	Deploy(ctx context.Context, in intent.DeployInput) (execution.Intent, error)
	Withdraw(ctx context.Context, in intent.WithdrawInput) (execution.Intent, error)
	Submit(ctx context.Context, intentID string) (execution.Intent, error)
	Record(intentID string, in intent.OutcomeInput) (execution.Intent, error)
	Get(intentID string) (execution.Intent, error)
	List(status string, limit int) ([]execution.Intent, error)
}

type Server struct {
	chat           ChatHandler
	intents        Intents
	logger         *slog.Logger
	requestTimeout time.Duration
}

func New(chat ChatHandler, intents Intents, requestTimeout time.Duration, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	if requestTimeout <= 0 {
		requestTimeout = 30 * time.Second
	}
	return &Server{chat: chat, intents: intents, logger: logger, requestTimeout: requestTimeout}
}

func (s *Server) Router() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(metrics.Middleware)
	r.Use(cors)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "service": "safepilot"})
	})
	r.Handle("/metrics", metrics.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(middleware.Timeout(s.requestTimeout))
			r.Post("/chat", s.handleChat)
			r.Post("/intents/deploy", s.handleDeploy)
			r.Post("/intents/withdraw", s.handleWithdraw)
			r.Post("/intents/{intentID}/outcome", s.handleOutcome)
			r.Get("/intents", s.handleList)
			r.Get("/intents/{intentID}", s.handleGet)
		})
		// Broadcasting waits on the wallet; a cut-off here would turn a
		// landed transaction into a spurious failure.
		r.Post("/intents/{intentID}/submit", s.handleSubmit)
	})
	return r
}

// ListenAndServe serves until ctx is cancelled, then drains in-flight
// requests.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("safepilot listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return clierr.Wrap(clierr.CodeUnavailable, "http server", err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()
	s.logger.Info("shutting down safepilot server")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return clierr.Wrap(clierr.CodeInternal, "shutdown http server", err)
	}
	return nil
}

// handleChat always answers 200 with a well-formed response. An unreadable
// body is treated as a pipeline failure.
func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req model.ChatRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		s.logger.Warn("invalid chat request body", "err", err)
		writeJSON(w, http.StatusOK, assistant.FailureResponse())
		return
	}
	writeJSON(w, http.StatusOK, s.chat.Handle(r.Context(), req))
}

func (s *Server) handleDeploy(w http.ResponseWriter, r *http.Request) {
	var in intent.DeployInput
	if !decode(w, r, &in) {
		return
	}
	out, err := s.intents.Deploy(r.Context(), in)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, out)
}

func (s *Server) handleWithdraw(w http.ResponseWriter, r *http.Request) {
	var in intent.WithdrawInput
	if !decode(w, r, &in) {
		return
	}
	out, err := s.intents.Withdraw(r.Context(), in)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, out)
}

func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	out, err := s.intents.Submit(r.Context(), chi.URLParam(r, "intentID"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleOutcome(w http.ResponseWriter, r *http.Request) {
	var in intent.OutcomeInput
	if !decode(w, r, &in) {
		return
	}
	out, err := s.intents.Record(chi.URLParam(r, "intentID"), in)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	out, err := s.intents.Get(chi.URLParam(r, "intentID"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	limit := 20
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeError(w, clierr.New(clierr.CodeUsage, "limit must be a positive integer"))
			return
		}
		limit = n
	}
	out, err := s.intents.List(r.URL.Query().Get("status"), limit)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(dst); err != nil {
		writeError(w, clierr.Wrap(clierr.CodeUsage, "invalid request body", err))
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	writeJSON(w, clierr.HTTPStatus(err), map[string]string{
		"error": err.Error(),
		"type":  clierr.TypeName(err),
	})
}

func cors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}
