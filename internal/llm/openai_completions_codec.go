package llm

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
)

// OpenAICompletionsCodec implements Codec for the OpenAI Chat Completions
// API (spec.md §4.2 "OpenAI Chat Completions codec"). KimiCompat enables the
// reasoning_content attachment some OpenAI-compatible backends (Kimi /
// Moonshot) expect alongside tool calls. BarePath serves the Gemini api_type,
// whose OpenAI-compatible endpoint lives at "/chat/completions" rather than
// "/v1/chat/completions" (original_source/src/llm/model.rs
// call_openai_compatible).
type OpenAICompletionsCodec struct {
	KimiCompat bool
	BarePath   bool
}

func (c OpenAICompletionsCodec) Encode(cfg ProviderConfig, model string, req *CompletionRequest, authToken string) (*WireRequest, error) {
	if req == nil || len(req.Messages) == 0 {
		return nil, &DecodeError{Provider: "openai", Reason: "completion request has no messages"}
	}

	messages := make([]map[string]interface{}, 0, len(req.Messages)+1)
	if req.System != "" {
		messages = append(messages, map[string]interface{}{"role": "system", "content": req.System})
	}

	for _, msg := range req.Messages {
		switch {
		case msg.User != nil:
			messages = append(messages, openAICompletionsUserMessages(msg.User.Parts)...)
		case msg.Assistant != nil:
			messages = append(messages, openAICompletionsAssistantMessage(msg.Assistant.Parts, c.KimiCompat))
		}
	}

	body := map[string]interface{}{
		"model":    model,
		"messages": messages,
	}
	if req.MaxTokens > 0 {
		body["max_tokens"] = req.MaxTokens
	}
	if req.Temperature > 0 {
		body["temperature"] = req.Temperature
	}
	if len(req.Tools) > 0 {
		body["tools"] = openAICompletionsTools(req.Tools)
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("openai: marshal request: %w", err)
	}

	headers := http.Header{}
	headers.Set("Content-Type", "application/json")
	token := cfg.APIKey
	if token == "" {
		token = authToken
	}
	if token != "" {
		headers.Set("Authorization", "Bearer "+token)
	}
	if strings.Contains(cfg.BaseURL, "kimi.com") || strings.Contains(cfg.BaseURL, "moonshot.ai") {
		headers.Set("User-Agent", "KimiCLI/1.3")
	}

	path := "/v1/chat/completions"
	if c.BarePath {
		path = "/chat/completions"
	}
	url := strings.TrimRight(cfg.BaseURL, "/") + path
	if suffix, forced := zaiForcedProviders[cfg.Name]; forced {
		url = strings.TrimRight(cfg.BaseURL, "/") + suffix.pathSuffix
	}

	return &WireRequest{Method: http.MethodPost, URL: url, Headers: headers, Body: payload}, nil
}

// openAICompletionsUserMessages turns one neutral user message into zero or
// one "user" message (carrying its text/image parts) followed by one "tool"
// message per tool-result part — tool results are emitted *after* the user
// message they belonged to, per spec.md §4.2.
func openAICompletionsUserMessages(parts []UserPart) []map[string]interface{} {
	var content []map[string]interface{}
	var textOnly []string
	var toolMessages []map[string]interface{}
	multiPart := false

	for _, p := range parts {
		switch p.Type {
		case UserPartText:
			textOnly = append(textOnly, p.Text)
			content = append(content, map[string]interface{}{"type": "text", "text": p.Text})
		case UserPartImage:
			multiPart = true
			url := p.ImageURL
			if !p.IsImageURL() {
				url = fmt.Sprintf("data:%s;base64,%s", p.ImageMimeType, p.ImageBase64)
			}
			content = append(content, map[string]interface{}{
				"type":      "image_url",
				"image_url": map[string]interface{}{"url": url},
			})
		case UserPartToolResult:
			toolMessages = append(toolMessages, map[string]interface{}{
				"role":         "tool",
				"tool_call_id": p.ToolCallID,
				"content":      p.ToolText,
			})
		}
	}

	out := make([]map[string]interface{}, 0, 1+len(toolMessages))
	if len(content) > 0 {
		if !multiPart && len(textOnly) == 1 {
			out = append(out, map[string]interface{}{"role": "user", "content": textOnly[0]})
		} else {
			out = append(out, map[string]interface{}{"role": "user", "content": content})
		}
	}
	out = append(out, toolMessages...)
	return out
}

func openAICompletionsAssistantMessage(parts []AssistantPart, kimiCompat bool) map[string]interface{} {
	var textLines []string
	var toolCalls []map[string]interface{}

	for _, p := range parts {
		switch p.Type {
		case AssistantPartText:
			if p.Text != "" {
				textLines = append(textLines, p.Text)
			}
		case AssistantPartToolCall:
			args := p.ToolArgsJSON
			if args == "" {
				args = "{}"
			}
			toolCalls = append(toolCalls, map[string]interface{}{
				"id":   p.ToolCallID,
				"type": "function",
				"function": map[string]interface{}{
					"name":      p.ToolName,
					"arguments": args,
				},
			})
		}
	}

	msg := map[string]interface{}{"role": "assistant", "content": strings.Join(textLines, "\n")}
	if len(toolCalls) > 0 {
		msg["tool_calls"] = toolCalls
		if kimiCompat {
			msg["reasoning_content"] = ""
		}
	}
	return msg
}

func openAICompletionsTools(tools []ToolDefinition) []map[string]interface{} {
	out := make([]map[string]interface{}, 0, len(tools))
	for _, t := range tools {
		out = append(out, map[string]interface{}{
			"type": "function",
			"function": map[string]interface{}{
				"name":        t.Name,
				"description": t.Description,
				"parameters":  t.Parameters,
			},
		})
	}
	return out
}

type openAICompletionsResponseBody struct {
	Choices []struct {
		Message struct {
			Content          string          `json:"content"`
			ReasoningContent json.RawMessage `json:"reasoning_content"`
			ToolCalls        []struct {
				ID       string `json:"id"`
				Function struct {
					Name      string          `json:"name"`
					Arguments json.RawMessage `json:"arguments"`
				} `json:"function"`
			} `json:"tool_calls"`
		} `json:"message"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		PromptTokensDetails struct {
			CachedTokens int `json:"cached_tokens"`
		} `json:"prompt_tokens_details"`
	} `json:"usage"`
}

func (c OpenAICompletionsCodec) Decode(cfg ProviderConfig, body []byte, _ *ToolNameTable) (*CompletionResponse, error) {
	var parsed openAICompletionsResponseBody
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, &DecodeError{Provider: "openai", Reason: err.Error()}
	}
	if len(parsed.Choices) == 0 {
		return nil, &DecodeError{Provider: "openai", Reason: "response has no choices"}
	}

	choice := parsed.Choices[0].Message

	var parts []AssistantPart
	if choice.Content != "" {
		parts = append(parts, AssistantTextPart(choice.Content))
	}
	if reasoning := decodeReasoningContent(choice.ReasoningContent); reasoning != "" {
		parts = append(parts, ReasoningPart(reasoning))
	}
	for _, tc := range choice.ToolCalls {
		parts = append(parts, ToolCallPart(tc.ID, tc.Function.Name, decodeToolArguments(tc.Function.Arguments)))
	}

	if len(parts) == 0 {
		parts = append(parts, AssistantTextPart(""))
	}

	input := parsed.Usage.PromptTokens
	output := parsed.Usage.CompletionTokens
	return &CompletionResponse{
		Parts: parts,
		Usage: Usage{
			InputTokens:       input,
			OutputTokens:      output,
			CachedInputTokens: parsed.Usage.PromptTokensDetails.CachedTokens,
			TotalTokens:       input + output,
		},
		Raw: json.RawMessage(body),
	}, nil
}

// decodeReasoningContent handles reasoning_content being either a plain
// string or an array of strings, per spec.md §4.2.
func decodeReasoningContent(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var parts []string
	if err := json.Unmarshal(raw, &parts); err == nil {
		return strings.Join(parts, "")
	}
	return ""
}

// decodeToolArguments accepts an OpenAI tool_calls[].function.arguments
// value that is either a JSON string or an already-parsed object, and
// returns the arguments as JSON text either way (spec.md §8.8). The text is
// passed through as received, not re-encoded, so whitespace and key order
// are kept.
func decodeToolArguments(raw json.RawMessage) string {
	trimmed := strings.TrimSpace(string(raw))
	if trimmed == "" {
		return "{}"
	}

	var asString string
	if err := json.Unmarshal(raw, &asString); err == nil {
		// raw was a JSON string; its content may itself be a JSON object or
		// may need no further decoding, either way it's already what we
		// want to forward.
		return asString
	}

	return trimmed
}
