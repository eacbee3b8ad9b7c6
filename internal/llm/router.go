package llm

import (
	"context"
	"fmt"
	"net/http"
)

// Router is the facade callers use: it resolves a "provider/model"
// identifier, drives the Retry/Fallback Engine, and emits metrics (spec.md
// §4.6). It carries no per-request state, so a single Router is safe to
// share across goroutines.
type Router struct {
	registry *ProviderRegistry
	engine   *Engine
}

// RouterOption configures a Router at construction time.
type RouterOption func(*routerConfig)

type routerConfig struct {
	routing    *RoutingConfig
	rateLimit  *RateLimitTracker
	metrics    MetricsRecorder
	httpClient *http.Client
	creds      CredentialSource
}

// WithRoutingConfig supplies the fallback chains and rate-limit cooldown
// the Engine consults. Defaults to an empty RoutingConfig (no fallbacks, 60s
// cooldown) when omitted.
func WithRoutingConfig(routing *RoutingConfig) RouterOption {
	return func(c *routerConfig) { c.routing = routing }
}

// WithMetrics overrides the default no-op MetricsRecorder.
func WithMetrics(recorder MetricsRecorder) RouterOption {
	return func(c *routerConfig) { c.metrics = recorder }
}

// WithCredentialSource supplies the OAuth token resolver used by providers
// configured without a static API key.
func WithCredentialSource(creds CredentialSource) RouterOption {
	return func(c *routerConfig) { c.creds = creds }
}

// WithRateLimitTracker overrides the tracker the Engine reads/writes. Useful
// for sharing one tracker across multiple Router instances.
func WithRateLimitTracker(tracker *RateLimitTracker) RouterOption {
	return func(c *routerConfig) { c.rateLimit = tracker }
}

// New builds a Router over registry using the shared HTTP client (spec.md
// §4.7); opts configure routing, metrics, and credentials.
func New(registry *ProviderRegistry, httpClient *http.Client, opts ...RouterOption) *Router {
	cfg := &routerConfig{
		routing:   &RoutingConfig{},
		rateLimit: NewRateLimitTracker(),
		metrics:   noopMetricsRecorder{},
	}
	for _, opt := range opts {
		opt(cfg)
	}

	if httpClient == nil {
		httpClient = NewSharedHTTPClient()
	}

	invoker := NewInvoker(httpClient, cfg.creds)
	engine := NewEngine(invoker, cfg.routing, cfg.rateLimit)
	engine.Metrics = cfg.metrics

	return &Router{registry: registry, engine: engine}
}

// Completion resolves fullModelName ("provider/model", or a bare model name
// defaulting to Anthropic per spec.md §3) and drives it through the
// Retry/Fallback Engine.
func (r *Router) Completion(ctx context.Context, fullModelName string, req *CompletionRequest) (*CompletionResponse, error) {
	return r.engine.Complete(ctx, r.resolve, fullModelName, req)
}

// Stream is declared for API completeness with providers that support
// incremental delivery, but streaming responses back to the caller is out
// of scope (spec.md Non-goals): every codec reads its response to
// completion internally before returning.
func (r *Router) Stream(ctx context.Context, fullModelName string, req *CompletionRequest) (*CompletionResponse, error) {
	return nil, fmt.Errorf("llmrouter: streaming delivery to the caller is not supported")
}

// resolve splits a full model name and looks up its provider config.
func (r *Router) resolve(fullModelName string) (ProviderConfig, string, bool) {
	providerName, model := ParseModelIdentifier(fullModelName)
	cfg, ok := r.registry.Resolve(providerName)
	if !ok {
		return ProviderConfig{}, "", false
	}
	return cfg, model, true
}
