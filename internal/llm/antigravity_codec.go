package llm

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pi-ai/llmrouter/internal/consts"
	"github.com/pi-ai/llmrouter/internal/logger"
)

const (
	antigravitySandboxEndpoint = "https://daria-autopush-pa.sandbox.googleapis.com"
	antigravityDefaultEndpoint = "https://cloudcode-pa.googleapis.com"

	antigravityVersionEnv    = "PI_AI_ANTIGRAVITY_VERSION"
	antigravityDefaultVersion = "1.15.8"

	// antigravityIdentityText and antigravityIgnoreTemplate form the
	// mandatory dual system instruction described in spec.md §4.2/§9: a
	// fixed identity part, plus a paired part asking the model to ignore
	// everything between [ignore]...[/ignore] tags. Preserved verbatim
	// once fixed; spec.md §9 explicitly calls out that the duplication is
	// present without further explanation and must not be "cleaned up".
	antigravityIdentityText  = "You are Antigravity, an AI coding assistant operating inside the user's editor."
	antigravityIgnoreTemplate = "Please ignore following [ignore]%s[/ignore]"
)

var antigravityAdvanceModelPattern = regexp.MustCompile(`(?i)not found|requested entity|unknown|unsupported|unavailable|no longer available`)

// antigravityModelAlias maps a requested model to its single newer-family
// replacement, per spec.md §4.2 "Model and endpoint resilience" and
// original_source/src/llm/model.rs's antigravity_model_alias.
var antigravityModelAlias = map[string]string{
	"claude-opus-4-5":            "claude-opus-4-6-thinking",
	"claude-opus-4-5-thinking":   "claude-opus-4-6-thinking",
	"claude-opus-4-6":            "claude-opus-4-6-thinking",
	"claude-sonnet-4-5":          "claude-sonnet-4-6",
	"claude-sonnet-4-5-thinking": "claude-sonnet-4-6",
	"claude-sonnet-4-6-thinking": "claude-sonnet-4-6",
	"gemini-3-pro":               "gemini-3-pro-high",
	"gemini-3.1-pro":             "gemini-3.1-pro-high",
}

// antigravityPreferAliasFirst lists requested models whose alias is tried
// before the requested name itself, matching original_source's
// prefer_alias_first set; every other requested model tries itself first,
// then its alias.
var antigravityPreferAliasFirst = map[string]bool{
	"claude-opus-4-5":            true,
	"claude-opus-4-5-thinking":   true,
	"claude-sonnet-4-5":          true,
	"claude-sonnet-4-5-thinking": true,
}

// AntigravityCodec implements the Google CodeAssist-style streaming-generate
// wire dialect (spec.md §4.2 "Antigravity codec"). Unlike the other three
// codecs it does not fit the single-round-trip Codec interface: it fans a
// single neutral request out across a candidate model list and a candidate
// endpoint list, so it is invoked directly by the Provider Invoker.
type AntigravityCodec struct {
	HTTPClient *http.Client
}

// candidateModels derives the ordered model candidate list for requested,
// mirroring original_source/src/llm/model.rs's antigravity_model_candidates:
// the requested model and its single alias (ordered per
// antigravityPreferAliasFirst), followed by family-wide fallbacks for the
// Claude Sonnet/Opus and Gemini 3 Pro families. Candidates are deduplicated
// in first-seen order.
func candidateModels(requested string) []string {
	var candidates []string
	add := func(model string) {
		for _, c := range candidates {
			if c == model {
				return
			}
		}
		candidates = append(candidates, model)
	}

	alias, hasAlias := antigravityModelAlias[requested]
	if antigravityPreferAliasFirst[requested] {
		if hasAlias {
			add(alias)
		}
		add(requested)
	} else {
		add(requested)
		if hasAlias {
			add(alias)
		}
	}

	if strings.HasPrefix(requested, "claude-sonnet-4-") || requested == "claude-sonnet-4-6-thinking" {
		add("claude-sonnet-4-6")
		add("claude-sonnet-4-5-thinking")
		add("claude-sonnet-4-5")
	}
	if strings.HasPrefix(requested, "claude-opus-4-") {
		add("claude-opus-4-6-thinking")
		add("claude-opus-4-5-thinking")
	}
	if strings.HasPrefix(requested, "gemini-3-pro") || strings.HasPrefix(requested, "gemini-3.1-pro") {
		add("gemini-3.1-pro-high")
		add("gemini-3.1-pro-low")
		add("gemini-3-pro-high")
		add("gemini-3-pro-low")
	}
	if requested == "gemini-3-pro" || requested == "gemini-3.1-pro" {
		add("gemini-3.1-pro-high")
		add("gemini-3-pro-high")
	}

	return candidates
}

// candidateEndpoints derives the ordered endpoint candidate list: sandbox
// first, then the configured base URL (if any), then the default.
func candidateEndpoints(cfg ProviderConfig) []string {
	endpoints := []string{antigravitySandboxEndpoint}
	if cfg.BaseURL != "" && cfg.BaseURL != antigravitySandboxEndpoint && cfg.BaseURL != antigravityDefaultEndpoint {
		endpoints = append(endpoints, cfg.BaseURL)
	}
	endpoints = append(endpoints, antigravityDefaultEndpoint)
	return endpoints
}

func antigravityUserAgent() string {
	version := os.Getenv(antigravityVersionEnv)
	if version == "" {
		version = antigravityDefaultVersion
	}
	return "antigravity-cli/" + version
}

func isClaudeThinkingModel(model string) bool {
	lower := strings.ToLower(model)
	return strings.Contains(lower, "claude") && strings.Contains(lower, "thinking")
}

// Invoke drives the full model/endpoint fan-out for one completion call.
// model is the already-resolved model name (the part of "provider/model"
// after the slash); it seeds the candidate model list.
func (c AntigravityCodec) Invoke(ctx context.Context, cfg ProviderConfig, model, authToken string, req *CompletionRequest) (*CompletionResponse, error) {
	if req == nil || len(req.Messages) == 0 {
		return nil, &DecodeError{Provider: "antigravity", Reason: "completion request has no messages"}
	}

	requested := model
	models := candidateModels(requested)
	endpoints := candidateEndpoints(cfg)

	var lastErr error
	for _, model := range models {
		body, err := c.buildInnerEnvelope(cfg, model, req)
		if err != nil {
			return nil, err
		}

		advanceToNextModel := false
		for _, endpoint := range endpoints {
			resp, err := c.attempt(ctx, cfg, endpoint, model, authToken, body)
			if err == nil {
				return resp, nil
			}

			lastErr = err

			var pe *ProviderError
			if !errors.As(err, &pe) {
				return nil, err // transport-level error: fail fast
			}

			switch {
			case pe.StatusCode == http.StatusNotFound:
				continue // next endpoint, same model
			case pe.StatusCode == http.StatusBadRequest || pe.StatusCode == http.StatusForbidden:
				if antigravityAdvanceModelPattern.MatchString(pe.Message) {
					advanceToNextModel = true
				}
				// else: fail fast with the provider message
				if !advanceToNextModel {
					return nil, err
				}
			default:
				return nil, err // fail fast
			}

			if advanceToNextModel {
				break
			}
		}
	}

	if lastErr != nil {
		return nil, lastErr
	}
	return nil, fmt.Errorf("antigravity: exhausted all model/endpoint candidates for %q", requested)
}

func (c AntigravityCodec) attempt(ctx context.Context, cfg ProviderConfig, endpoint, model, authToken string, inner map[string]interface{}) (*CompletionResponse, error) {
	requestID := fmt.Sprintf("agent-%d-%s", time.Now().UnixMilli(), uuid.NewString())

	envelope := map[string]interface{}{
		"project":     cfg.ProjectID,
		"model":       model,
		"request":     inner,
		"requestType": "agent",
		"userAgent":   antigravityUserAgent(),
		"requestId":   requestID,
	}

	payload, err := json.Marshal(envelope)
	if err != nil {
		return nil, fmt.Errorf("antigravity: marshal request: %w", err)
	}

	url := strings.TrimRight(endpoint, "/") + "/v1internal:streamGenerateContent?alt=sse"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("antigravity: build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+authToken)
	httpReq.Header.Set("User-Agent", antigravityUserAgent())
	httpReq.Header.Set("X-Goog-Api-Client", "gl-go/antigravity-router")
	httpReq.Header.Set("Client-Metadata", `{"ideType":"IDE_UNSPECIFIED","platform":"PLATFORM_UNSPECIFIED","pluginType":"GEMINI"}`)
	if isClaudeThinkingModel(model) {
		httpReq.Header.Set("anthropic-beta", "interleaved-thinking-2025-05-14")
	}

	client := c.HTTPClient
	if client == nil {
		client = http.DefaultClient
	}

	httpResp, err := client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("antigravity: request failed: %w", err)
	}
	defer httpResp.Body.Close()

	respBody, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, fmt.Errorf("antigravity: read response: %w", err)
	}

	if httpResp.StatusCode < 200 || httpResp.StatusCode >= 300 {
		return nil, NewProviderError("antigravity", httpResp.StatusCode, string(respBody))
	}

	return parseAntigravitySSE(respBody)
}

// buildInnerEnvelope builds the Gemini-style inner request (system
// instruction, contents, generationConfig).
func (c AntigravityCodec) buildInnerEnvelope(cfg ProviderConfig, model string, req *CompletionRequest) (map[string]interface{}, error) {
	systemParts := []map[string]interface{}{
		{"text": antigravityIdentityText},
		{"text": fmt.Sprintf(antigravityIgnoreTemplate, antigravityIdentityText)},
	}
	if req.System != "" {
		systemParts = append(systemParts, map[string]interface{}{"text": req.System})
	}

	toolNameByCallID := buildAntigravityToolNameIndex(req.Messages)

	contents := make([]map[string]interface{}, 0, len(req.Messages))
	for _, msg := range req.Messages {
		switch {
		case msg.User != nil:
			parts := antigravityUserParts(msg.User.Parts, toolNameByCallID)
			if len(parts) > 0 {
				contents = append(contents, map[string]interface{}{"role": "user", "parts": parts})
			}
		case msg.Assistant != nil:
			parts := antigravityAssistantParts(msg.Assistant.Parts)
			if len(parts) > 0 {
				contents = append(contents, map[string]interface{}{"role": "model", "parts": parts})
			}
		}
	}

	generationConfig := map[string]interface{}{}
	if req.MaxTokens > 0 {
		generationConfig["maxOutputTokens"] = req.MaxTokens
	}
	if req.Temperature > 0 {
		generationConfig["temperature"] = req.Temperature
	}

	inner := map[string]interface{}{
		"systemInstruction": map[string]interface{}{"parts": systemParts},
		"contents":          contents,
	}
	if len(generationConfig) > 0 {
		inner["generationConfig"] = generationConfig
	}
	if len(req.Tools) > 0 {
		inner["tools"] = []map[string]interface{}{{"functionDeclarations": antigravityToolDeclarations(req.Tools)}}
	}

	return inner, nil
}

// buildAntigravityToolNameIndex scans assistant tool calls so that a later
// tool-result part (which only carries the call id) can name the originating
// function in its functionResponse, as Gemini requires.
func buildAntigravityToolNameIndex(messages []Message) map[string]string {
	index := make(map[string]string)
	for _, msg := range messages {
		if msg.Assistant == nil {
			continue
		}
		for _, p := range msg.Assistant.Parts {
			if p.Type == AssistantPartToolCall {
				index[p.ToolCallID] = p.ToolName
			}
		}
	}
	return index
}

func antigravityUserParts(parts []UserPart, toolNameByCallID map[string]string) []map[string]interface{} {
	out := make([]map[string]interface{}, 0, len(parts))
	for _, p := range parts {
		switch p.Type {
		case UserPartText:
			out = append(out, map[string]interface{}{"text": p.Text})
		case UserPartImage:
			if p.IsImageURL() {
				out = append(out, map[string]interface{}{"fileData": map[string]interface{}{"fileUri": p.ImageURL}})
			} else {
				out = append(out, map[string]interface{}{
					"inlineData": map[string]interface{}{"mimeType": p.ImageMimeType, "data": p.ImageBase64},
				})
			}
		case UserPartToolResult:
			name := toolNameByCallID[p.ToolCallID]
			var response interface{}
			if err := json.Unmarshal([]byte(p.ToolText), &response); err != nil {
				response = map[string]interface{}{"result": p.ToolText}
			}
			out = append(out, map[string]interface{}{
				"functionResponse": map[string]interface{}{"name": name, "response": response},
			})
		}
	}
	return out
}

func antigravityAssistantParts(parts []AssistantPart) []map[string]interface{} {
	out := make([]map[string]interface{}, 0, len(parts))
	for _, p := range parts {
		switch p.Type {
		case AssistantPartText:
			if p.Text != "" {
				out = append(out, map[string]interface{}{"text": p.Text})
			}
		case AssistantPartToolCall:
			args := map[string]interface{}{}
			if p.ToolArgsJSON != "" {
				_ = json.Unmarshal([]byte(p.ToolArgsJSON), &args)
			}
			out = append(out, map[string]interface{}{
				"functionCall": map[string]interface{}{"name": p.ToolName, "args": args},
			})
		case AssistantPartReasoning:
			logger.Debug("antigravity codec: dropping reasoning part on replay")
		}
	}
	return out
}

func antigravityToolDeclarations(tools []ToolDefinition) []map[string]interface{} {
	out := make([]map[string]interface{}, 0, len(tools))
	for _, t := range tools {
		out = append(out, map[string]interface{}{
			"name":        t.Name,
			"description": t.Description,
			"parameters":  t.Parameters,
		})
	}
	return out
}

// --- SSE response aggregation ---

type antigravitySSEEvent struct {
	Candidates []struct {
		Content struct {
			Parts []struct {
				Text         string `json:"text"`
				FunctionCall *struct {
					Name string                 `json:"name"`
					Args map[string]interface{} `json:"args"`
				} `json:"functionCall"`
			} `json:"parts"`
		} `json:"content"`
	} `json:"candidates"`
	UsageMetadata *struct {
		PromptTokenCount     int `json:"promptTokenCount"`
		CandidatesTokenCount int `json:"candidatesTokenCount"`
	} `json:"usageMetadata"`
}

// parseAntigravitySSE splits the response into "data: <json>" events and
// aggregates them per spec.md §4.2: concatenate non-duplicate adjacent text
// fragments, dedupe identical (name, args) function calls, and take usage
// from the last event that carries it.
func parseAntigravitySSE(body []byte) (*CompletionResponse, error) {
	scanner := bufio.NewScanner(bytes.NewReader(body))
	scanner.Buffer(make([]byte, 0, consts.BufferSize64KB), consts.BufferSize10MB)

	var textBuilder strings.Builder
	lastFragment := ""
	type toolCall struct {
		name, argsJSON string
	}
	var toolCalls []toolCall
	seenToolCalls := make(map[string]bool)
	var usage Usage

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || !strings.HasPrefix(line, "data:") {
			continue
		}
		data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if data == "" || data == "[DONE]" {
			continue
		}

		var event antigravitySSEEvent
		if err := json.Unmarshal([]byte(data), &event); err != nil {
			logger.Debug("antigravity codec: skipping malformed SSE event: %v", err)
			continue
		}

		for _, cand := range event.Candidates {
			for _, part := range cand.Content.Parts {
				if part.Text != "" {
					if part.Text != lastFragment {
						textBuilder.WriteString(part.Text)
						lastFragment = part.Text
					}
					continue
				}
				if part.FunctionCall != nil {
					argsJSON, _ := json.Marshal(part.FunctionCall.Args)
					key := part.FunctionCall.Name + "|" + string(argsJSON)
					if !seenToolCalls[key] {
						seenToolCalls[key] = true
						toolCalls = append(toolCalls, toolCall{name: part.FunctionCall.Name, argsJSON: string(argsJSON)})
					}
				}
			}
		}

		if event.UsageMetadata != nil {
			usage.InputTokens = event.UsageMetadata.PromptTokenCount
			usage.OutputTokens = event.UsageMetadata.CandidatesTokenCount
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("antigravity: read SSE stream: %w", err)
	}

	var parts []AssistantPart
	if text := textBuilder.String(); text != "" {
		parts = append(parts, AssistantTextPart(text))
	}
	for i, tc := range toolCalls {
		parts = append(parts, ToolCallPart(fmt.Sprintf("call_%d", i+1), tc.name, tc.argsJSON))
	}
	if len(parts) == 0 {
		parts = append(parts, AssistantTextPart(""))
	}

	usage.TotalTokens = usage.InputTokens + usage.OutputTokens
	return &CompletionResponse{Parts: parts, Usage: usage, Raw: json.RawMessage(body)}, nil
}
