package llm

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/pi-ai/llmrouter/internal/logger"
)

// Retry and fallback tuning (spec.md §4.4, §4.5).
const (
	maxRetriesPerModel  = 3
	retryBaseDelayMS    = 500
	maxFallbackAttempts = 4
)

// sleepFunc is overridden in tests to avoid real delays.
var sleepFunc = time.Sleep

// Engine drives bounded per-model retries with exponential backoff, then
// walks a model's configured fallback chain on exhaustion (spec.md §4.4,
// §4.5). It is the only component that writes to the RateLimitTracker.
type Engine struct {
	Invoker   *Invoker
	Routing   *RoutingConfig
	RateLimit *RateLimitTracker
	Metrics   MetricsRecorder
}

// NewEngine builds an Engine over the given invoker, routing table and
// shared rate-limit tracker. Metrics defaults to a no-op recorder.
func NewEngine(invoker *Invoker, routing *RoutingConfig, rateLimit *RateLimitTracker) *Engine {
	return &Engine{Invoker: invoker, Routing: routing, RateLimit: rateLimit, Metrics: noopMetricsRecorder{}}
}

// Complete drives one logical request through the primary model's retry
// budget, then through its fallback chain (cfg is resolved per candidate
// model by resolve). fullModelName is the "provider/model" identifier the
// caller asked for; its fallbacks come from the routing table keyed by that
// exact string. Mirrors original_source/src/llm/model.rs's `completion()`:
// at most MAX_FALLBACK_ATTEMPTS *fallbacks* are tried after the primary (the
// primary itself is never counted against that budget), and a model's
// rate-limit cooldown is only recorded once its retry budget is fully
// exhausted and the final error classifies as a rate limit — never on an
// attempt that a later retry in the same budget goes on to succeed.
func (e *Engine) Complete(ctx context.Context, resolve func(fullModelName string) (ProviderConfig, string, bool), fullModelName string, req *CompletionRequest) (*CompletionResponse, error) {
	cooldown := e.Routing.CooldownSecs()
	fallbacks := e.Routing.GetFallbacks(fullModelName)
	if len(fallbacks) > maxFallbackAttempts {
		fallbacks = fallbacks[:maxFallbackAttempts]
	}

	var lastErr error

	// The primary model is only skipped on cooldown when there's a fallback
	// to skip to; a lone candidate with nowhere else to go is tried anyway.
	skipPrimary := len(fallbacks) > 0 && e.RateLimit.IsRateLimited(fullModelName, cooldown)
	if skipPrimary {
		logger.Debug("llmrouter: %q in rate-limit cooldown, skipping to fallbacks", fullModelName)
	} else {
		resp, err, attempted := e.attemptCandidate(ctx, resolve, fullModelName, req)
		if err == nil {
			return resp, nil
		}
		if attempted && len(fallbacks) == 0 {
			return nil, err
		}
		lastErr = err
		if len(fallbacks) > 0 {
			logger.Warn("llmrouter: %q exhausted retries (%v), trying fallbacks", fullModelName, err)
		}
	}

	for _, fallback := range fallbacks {
		if e.RateLimit.IsRateLimited(fallback, cooldown) {
			logger.Debug("llmrouter: skipping fallback %q, still in rate-limit cooldown", fallback)
			continue
		}

		e.Metrics.RecordFallback(fullModelName, fallback)
		resp, err, _ := e.attemptCandidate(ctx, resolve, fallback, req)
		if err == nil {
			return resp, nil
		}
		lastErr = err
		logger.Warn("llmrouter: fallback %q exhausted retries (%v), continuing chain", fallback, err)
	}

	if lastErr == nil {
		lastErr = fmt.Errorf("llmrouter: all models in fallback chain failed")
	}
	return nil, fmt.Errorf("llmrouter: all candidates exhausted for %q: %w", fullModelName, lastErr)
}

// attemptCandidate resolves candidate to a provider config and runs its
// retry budget, recording a rate-limit cooldown only once the budget is
// exhausted and the final error is a rate limit. attempted reports whether
// the candidate was actually dispatched to the invoker (false when resolve
// itself failed), which Complete uses to decide whether an unresolvable
// primary with no fallbacks still counts as the terminal error.
func (e *Engine) attemptCandidate(ctx context.Context, resolve func(string) (ProviderConfig, string, bool), candidate string, req *CompletionRequest) (*CompletionResponse, error, bool) {
	cfg, model, ok := resolve(candidate)
	if !ok {
		return nil, fmt.Errorf("llmrouter: unknown provider/model %q", candidate), false
	}

	start := time.Now()
	resp, err, wasRateLimit := e.attemptWithRetries(ctx, cfg, model, candidate, req)
	e.Metrics.RecordCompletion(cfg.Name, model, err == nil, time.Since(start))
	if err == nil {
		return resp, nil, true
	}
	if wasRateLimit {
		e.RateLimit.RecordRateLimit(candidate)
		e.Metrics.RecordRateLimit(candidate)
	}
	return nil, err, true
}

// attemptWithRetries runs the bounded per-model retry loop with exponential
// backoff, returning the final error's rate-limit classification so the
// caller can decide whether to record a cooldown — mirroring
// original_source/src/llm/model.rs's attempt_with_retries, which only
// classifies was_rate_limit once the budget is exhausted rather than on
// every individual 429.
func (e *Engine) attemptWithRetries(ctx context.Context, cfg ProviderConfig, model, fullModelName string, req *CompletionRequest) (*CompletionResponse, error, bool) {
	var lastErr error
	for attempt := 0; attempt < maxRetriesPerModel; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, &Cancelled{Provider: cfg.Name}, false
		}

		resp, err := e.Invoker.Invoke(ctx, cfg, model, req)
		if err == nil {
			return resp, nil, false
		}
		lastErr = err

		if !isRetriableError(err) {
			return nil, err, false
		}
		if attempt == maxRetriesPerModel-1 {
			break
		}

		delay := backoffDelay(attempt)
		logger.Debug("llmrouter: %q attempt %d/%d failed (%v), retrying in %s", fullModelName, attempt+1, maxRetriesPerModel, err, delay)
		sleepFunc(delay)
	}
	return nil, lastErr, isRateLimitError(lastErr)
}

// backoffDelay returns the exponential backoff delay for a zero-indexed
// attempt number: base * 2^attempt.
func backoffDelay(attempt int) time.Duration {
	multiplier := math.Pow(2, float64(attempt))
	return time.Duration(float64(retryBaseDelayMS)*multiplier) * time.Millisecond
}
