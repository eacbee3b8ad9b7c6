package llm

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/pi-ai/llmrouter/internal/consts"
)

// CredentialSource resolves a bearer token for a provider that authenticates
// via OAuth rather than a static API key (spec.md §4.1). Providers with a
// non-empty ProviderConfig.APIKey never call through to this.
type CredentialSource interface {
	Token(ctx context.Context, provider string) (string, error)
}

// Invoker is the Provider Invoker (spec.md §4.3): it dispatches a neutral
// completion request to the wire codec matching a provider's APIType, drives
// the single HTTP round trip for the three request/response codecs, and
// defers to AntigravityCodec's own multi-attempt fan-out for the fourth.
type Invoker struct {
	HTTPClient  *http.Client
	Creds       CredentialSource
	Antigravity AntigravityCodec
}

// NewInvoker builds an Invoker sharing httpClient across all codecs,
// including the Antigravity fan-out.
func NewInvoker(httpClient *http.Client, creds CredentialSource) *Invoker {
	return &Invoker{
		HTTPClient:  httpClient,
		Creds:       creds,
		Antigravity: AntigravityCodec{HTTPClient: httpClient},
	}
}

// Invoke performs one attempt against cfg/model. It never retries or walks
// fallback chains itself — that is retry.go's job — but it does resolve
// OAuth credentials and classify the resulting HTTP status.
func (inv *Invoker) Invoke(ctx context.Context, cfg ProviderConfig, model string, req *CompletionRequest) (*CompletionResponse, error) {
	if req.MaxTokens <= 0 {
		req.MaxTokens = consts.DefaultMaxTokens
	}

	authToken, err := inv.resolveToken(ctx, cfg)
	if err != nil {
		return nil, err
	}

	if cfg.APIType == APITypeAntigravity {
		return inv.Antigravity.Invoke(ctx, cfg, model, authToken, req)
	}

	codec, toolNames, err := inv.codecFor(cfg, req)
	if err != nil {
		return nil, err
	}

	wireReq, err := codec.Encode(cfg, model, req, authToken)
	if err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, wireReq.Method, wireReq.URL, bytes.NewReader(wireReq.Body))
	if err != nil {
		return nil, fmt.Errorf("%s: build request: %w", cfg.Name, err)
	}
	httpReq.Header = wireReq.Headers
	httpReq.ContentLength = int64(len(wireReq.Body))

	httpResp, err := inv.httpClient().Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			return nil, &Cancelled{Provider: cfg.Name}
		}
		return nil, fmt.Errorf("%s: request failed: %w", cfg.Name, err)
	}
	defer httpResp.Body.Close()

	body, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, fmt.Errorf("%s: read response: %w", cfg.Name, err)
	}

	if httpResp.StatusCode == http.StatusUnauthorized {
		return nil, &AuthFailure{Provider: cfg.Name, Reason: "401 after sending credentials"}
	}
	if httpResp.StatusCode < 200 || httpResp.StatusCode >= 300 {
		return nil, NewProviderError(cfg.Name, httpResp.StatusCode, string(body))
	}

	return codec.Decode(cfg, body, toolNames)
}

// codecFor resolves which Codec implementation handles cfg by its APIType,
// setting Kimi's reasoning_content compatibility flag (spec.md §4.3) when
// base_url contains "kimi.com" per original_source/src/llm/model.rs's
// call_openai (`include_reasoning_content = base_url.contains("kimi.com")`).
// Gemini is its own api_type in the provider configuration enum but, per the
// original implementation's call_openai_compatible dispatch, speaks the
// OpenAI Chat Completions body shape against a bare "/chat/completions" path
// (no "/v1" prefix) rather than the Antigravity CodeAssist envelope/SSE
// dialect. The zai-coding-plan/zhipu forced-OpenAI-compatible rule is not
// applied here: ProviderRegistry.Resolve has already rewritten their APIType.
func (inv *Invoker) codecFor(cfg ProviderConfig, req *CompletionRequest) (Codec, *ToolNameTable, error) {
	var toolNames *ToolNameTable

	switch cfg.APIType {
	case APITypeAnthropic:
		if cfg.APIKey == "" { // OAuth path renames tools to Claude-Code form
			toolNames = BuildToolNameTable(req.Tools)
		}
		return AnthropicCodec{}, toolNames, nil
	case APITypeOpenAICompletions:
		return OpenAICompletionsCodec{KimiCompat: strings.Contains(cfg.BaseURL, "kimi.com")}, nil, nil
	case APITypeGemini:
		return OpenAICompletionsCodec{BarePath: true}, nil, nil
	case APITypeOpenAIResponses:
		return OpenAIResponsesCodec{}, nil, nil
	default:
		return nil, nil, fmt.Errorf("%s: unsupported api type %q", cfg.Name, cfg.APIType)
	}
}

// resolveToken returns the OAuth bearer token for cfg, or "" when cfg
// authenticates with a static API key and no credential lookup is needed.
func (inv *Invoker) resolveToken(ctx context.Context, cfg ProviderConfig) (string, error) {
	if cfg.APIKey != "" {
		return "", nil
	}
	if inv.Creds == nil {
		return "", MissingCredentials(cfg.Name)
	}
	return inv.Creds.Token(ctx, cfg.Name)
}

func (inv *Invoker) httpClient() *http.Client {
	if inv.HTTPClient != nil {
		return inv.HTTPClient
	}
	return http.DefaultClient
}
