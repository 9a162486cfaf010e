// Package fallback walks an ordered list of sources and returns the first
// successful answer. Sources are tried sequentially, never raced.
package fallback

import (
	"context"
	"log/slog"
	"time"

	clierr "github.com/ggonzalez94/safepilot/internal/errors"
	"github.com/ggonzalez94/safepilot/internal/metrics"
	"github.com/ggonzalez94/safepilot/internal/model"
)

// Source is one named way of producing a T.
type Source[T any] struct {
	Name  string
	Fetch func(ctx context.Context) (T, error)
}

// Result carries the winning value plus per-source diagnostics.
type Result[T any] struct {
	Value    T
	Source   string
	Static   bool
	Statuses []model.ProviderStatus
}

// Chain is an ordered set of sources with a per-attempt timeout.
type Chain[T any] struct {
	Lookup  string
	Sources []Source[T]
	Timeout time.Duration
	Logger  *slog.Logger
}

// Try returns the first successful source result, or the last error when
// every source failed. Each failure is logged at warn level.
func (c Chain[T]) Try(ctx context.Context) (Result[T], error) {
	logger := c.Logger
	if logger == nil {
		logger = slog.Default()
	}
	res := Result[T]{Statuses: make([]model.ProviderStatus, 0, len(c.Sources))}
	var lastErr error
	for _, src := range c.Sources {
		if err := ctx.Err(); err != nil {
			lastErr = clierr.Wrap(clierr.CodeUnavailable, "lookup cancelled", err)
			break
		}
		value, elapsed, err := c.attempt(ctx, src)
		status := Status(err)
		res.Statuses = append(res.Statuses, model.ProviderStatus{Name: src.Name, Status: status, LatencyMS: elapsed.Milliseconds()})
		metrics.ObserveProvider(src.Name, status, elapsed)
		if err != nil {
			logger.Warn("source failed, falling through", "lookup", c.Lookup, "source", src.Name, "err", err)
			lastErr = err
			continue
		}
		res.Value = value
		res.Source = src.Name
		return res, nil
	}
	if lastErr == nil {
		lastErr = clierr.New(clierr.CodeUnavailable, "no sources configured for "+c.Lookup)
	}
	return res, lastErr
}

// Or behaves like Try but substitutes static when every source failed.
// It never returns an error.
func (c Chain[T]) Or(ctx context.Context, static T) Result[T] {
	res, err := c.Try(ctx)
	if err == nil {
		return res
	}
	logger := c.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.Warn("all sources failed, using static fallback", "lookup", c.Lookup, "err", err)
	metrics.StaticFallbacks.WithLabelValues(c.Lookup).Inc()
	res.Value = static
	res.Source = "static"
	res.Static = true
	return res
}

func (c Chain[T]) attempt(ctx context.Context, src Source[T]) (T, time.Duration, error) {
	if c.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.Timeout)
		defer cancel()
	}
	start := time.Now()
	value, err := src.Fetch(ctx)
	return value, time.Since(start), err
}

// Status maps an error to the provider status label used in envelopes.
func Status(err error) string {
	if err == nil {
		return "ok"
	}
	if cErr, ok := clierr.As(err); ok {
		switch cErr.Code {
		case clierr.CodeAuth:
			return "auth_error"
		case clierr.CodeRateLimited:
			return "rate_limited"
		case clierr.CodeUnavailable:
			return "unavailable"
		case clierr.CodePayload:
			return "malformed"
		case clierr.CodeNotFound:
			return "not_found"
		default:
			return "error"
		}
	}
	return "error"
}
