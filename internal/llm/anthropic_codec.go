package llm

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/pi-ai/llmrouter/internal/logger"
)

const anthropicAPIVersion = "2023-06-01"

// AnthropicCodec implements Codec for the Anthropic Messages API
// (spec.md §4.2 "Anthropic codec").
type AnthropicCodec struct{}

func (AnthropicCodec) Encode(cfg ProviderConfig, model string, req *CompletionRequest, authToken string) (*WireRequest, error) {
	if req == nil || len(req.Messages) == 0 {
		return nil, &DecodeError{Provider: "anthropic", Reason: "completion request has no messages"}
	}

	oauth := cfg.APIKey == ""
	var toolNames *ToolNameTable
	if oauth {
		toolNames = BuildToolNameTable(req.Tools)
	}

	body := map[string]interface{}{
		"model":    model,
		"messages": anthropicMessages(req.Messages, toolNames),
	}

	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 4096
	}
	body["max_tokens"] = maxTokens

	if req.System != "" {
		body["system"] = req.System
	}
	if req.Temperature > 0 {
		body["temperature"] = req.Temperature
	}
	if len(req.Tools) > 0 {
		body["tools"] = anthropicTools(req.Tools, toolNames)
	}
	if effort, ok := req.ProviderHints["thinking_effort"].(string); ok && effort != "" {
		body["thinking"] = map[string]interface{}{
			"type":          "enabled",
			"budget_tokens": anthropicThinkingBudget(effort),
		}
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("anthropic: marshal request: %w", err)
	}

	headers := http.Header{}
	headers.Set("Content-Type", "application/json")
	headers.Set("anthropic-version", anthropicAPIVersion)
	if oauth {
		headers.Set("Authorization", "Bearer "+authToken)
	} else {
		headers.Set("x-api-key", cfg.APIKey)
	}

	return &WireRequest{
		Method:  http.MethodPost,
		URL:     strings.TrimRight(cfg.BaseURL, "/") + "/v1/messages",
		Headers: headers,
		Body:    payload,
	}, nil
}

func anthropicThinkingBudget(effort string) int {
	switch strings.ToLower(effort) {
	case "low":
		return 2048
	case "high":
		return 32000
	default: // "medium" and anything unrecognized
		return 8000
	}
}

func anthropicMessages(messages []Message, toolNames *ToolNameTable) []map[string]interface{} {
	out := make([]map[string]interface{}, 0, len(messages))
	for _, msg := range messages {
		switch {
		case msg.User != nil:
			out = append(out, map[string]interface{}{
				"role":    "user",
				"content": anthropicUserBlocks(msg.User.Parts),
			})
		case msg.Assistant != nil:
			out = append(out, map[string]interface{}{
				"role":    "assistant",
				"content": anthropicAssistantBlocks(msg.Assistant.Parts, toolNames),
			})
		}
	}
	return out
}

func anthropicUserBlocks(parts []UserPart) []map[string]interface{} {
	blocks := make([]map[string]interface{}, 0, len(parts))
	for _, p := range parts {
		switch p.Type {
		case UserPartText:
			blocks = append(blocks, map[string]interface{}{"type": "text", "text": p.Text})
		case UserPartImage:
			if p.IsImageURL() {
				blocks = append(blocks, map[string]interface{}{
					"type":   "image",
					"source": map[string]interface{}{"type": "url", "url": p.ImageURL},
				})
			} else {
				blocks = append(blocks, map[string]interface{}{
					"type": "image",
					"source": map[string]interface{}{
						"type":       "base64",
						"media_type": p.ImageMimeType,
						"data":       p.ImageBase64,
					},
				})
			}
		case UserPartToolResult:
			blocks = append(blocks, map[string]interface{}{
				"type":        "tool_result",
				"tool_use_id": p.ToolCallID,
				"content":     p.ToolText,
			})
		}
	}
	return blocks
}

func anthropicAssistantBlocks(parts []AssistantPart, toolNames *ToolNameTable) []map[string]interface{} {
	blocks := make([]map[string]interface{}, 0, len(parts))
	for _, p := range parts {
		switch p.Type {
		case AssistantPartText:
			blocks = append(blocks, map[string]interface{}{"type": "text", "text": p.Text})
		case AssistantPartToolCall:
			name := p.ToolName
			if toolNames != nil {
				name = toolNames.ToCanonical(p.ToolName)
			}
			var input interface{} = json.RawMessage("{}")
			if p.ToolArgsJSON != "" {
				input = json.RawMessage(p.ToolArgsJSON)
			}
			blocks = append(blocks, map[string]interface{}{
				"type":  "tool_use",
				"id":    p.ToolCallID,
				"name":  name,
				"input": input,
			})
		case AssistantPartReasoning:
			// Anthropic only accepts "thinking" blocks back when extended
			// thinking is enabled for the target model; since that cannot
			// be asserted generically here, reasoning is not replayed into
			// the request (spec.md glossary: passed through, never fed
			// back unless the caller re-includes it — re-inclusion support
			// is left for a future extended-thinking-aware codec path).
			logger.Debug("anthropic codec: dropping reasoning part on replay")
		}
	}
	return blocks
}

func anthropicTools(tools []ToolDefinition, toolNames *ToolNameTable) []map[string]interface{} {
	out := make([]map[string]interface{}, 0, len(tools))
	for _, t := range tools {
		name := t.Name
		if toolNames != nil {
			name = toolNames.ToCanonical(t.Name)
		}
		out = append(out, map[string]interface{}{
			"name":         name,
			"description":  t.Description,
			"input_schema": t.Parameters,
		})
	}
	return out
}

type anthropicResponseBody struct {
	Content []struct {
		Type  string          `json:"type"`
		Text  string          `json:"text"`
		ID    string          `json:"id"`
		Name  string          `json:"name"`
		Input json.RawMessage `json:"input"`
	} `json:"content"`
	StopReason string `json:"stop_reason"`
	Usage      struct {
		InputTokens          int `json:"input_tokens"`
		OutputTokens         int `json:"output_tokens"`
		CacheReadInputTokens int `json:"cache_read_input_tokens"`
	} `json:"usage"`
}

func (AnthropicCodec) Decode(cfg ProviderConfig, body []byte, toolNames *ToolNameTable) (*CompletionResponse, error) {
	var parsed anthropicResponseBody
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, &DecodeError{Provider: "anthropic", Reason: err.Error()}
	}

	parts := make([]AssistantPart, 0, len(parsed.Content))
	for _, block := range parsed.Content {
		switch block.Type {
		case "text":
			parts = append(parts, AssistantTextPart(block.Text))
		case "tool_use":
			name := block.Name
			if toolNames != nil {
				name = toolNames.ToOriginal(block.Name)
			}
			parts = append(parts, ToolCallPart(block.ID, name, string(block.Input)))
		case "thinking", "redacted_thinking":
			logger.Debug("anthropic codec: ignoring %s block", block.Type)
		}
	}

	if len(parts) == 0 {
		// spec.md §4.2, §8.5: empty content with stop_reason end_turn still
		// yields a response, never an error, so agent loops terminate.
		parts = append(parts, AssistantTextPart(""))
	}

	input := parsed.Usage.InputTokens
	output := parsed.Usage.OutputTokens
	return &CompletionResponse{
		Parts: parts,
		Usage: Usage{
			InputTokens:       input,
			OutputTokens:      output,
			CachedInputTokens: parsed.Usage.CacheReadInputTokens,
			TotalTokens:       input + output,
		},
		Raw: json.RawMessage(body),
	}, nil
}
