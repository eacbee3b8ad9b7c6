package llm

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
)

// OpenAIResponsesCodec implements Codec for the OpenAI Responses API
// (spec.md §4.2 "OpenAI Responses codec").
type OpenAIResponsesCodec struct{}

func (OpenAIResponsesCodec) Encode(cfg ProviderConfig, model string, req *CompletionRequest, authToken string) (*WireRequest, error) {
	if req == nil || len(req.Messages) == 0 {
		return nil, &DecodeError{Provider: "openai_responses", Reason: "completion request has no messages"}
	}

	input := make([]map[string]interface{}, 0, len(req.Messages))
	for _, msg := range req.Messages {
		switch {
		case msg.User != nil:
			input = append(input, openAIResponsesUserItems(msg.User.Parts)...)
		case msg.Assistant != nil:
			input = append(input, openAIResponsesAssistantItems(msg.Assistant.Parts)...)
		}
	}

	body := map[string]interface{}{
		"model": model,
		"input": input,
	}
	if req.System != "" {
		body["instructions"] = req.System
	}
	if req.MaxTokens > 0 {
		body["max_output_tokens"] = req.MaxTokens
	}
	if req.Temperature > 0 {
		body["temperature"] = req.Temperature
	}
	if len(req.Tools) > 0 {
		body["tools"] = openAIResponsesTools(req.Tools)
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("openai_responses: marshal request: %w", err)
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

	return &WireRequest{
		Method:  http.MethodPost,
		URL:     strings.TrimRight(cfg.BaseURL, "/") + "/v1/responses",
		Headers: headers,
		Body:    payload,
	}, nil
}

func openAIResponsesUserItems(parts []UserPart) []map[string]interface{} {
	var content []map[string]interface{}
	var items []map[string]interface{}

	for _, p := range parts {
		switch p.Type {
		case UserPartText:
			content = append(content, map[string]interface{}{"type": "input_text", "text": p.Text})
		case UserPartImage:
			url := p.ImageURL
			if !p.IsImageURL() {
				url = fmt.Sprintf("data:%s;base64,%s", p.ImageMimeType, p.ImageBase64)
			}
			content = append(content, map[string]interface{}{"type": "input_image", "image_url": url})
		case UserPartToolResult:
			items = append(items, map[string]interface{}{
				"type":    "function_call_output",
				"call_id": p.ToolCallID,
				"output":  p.ToolText,
			})
		}
	}

	out := make([]map[string]interface{}, 0, 1+len(items))
	if len(content) > 0 {
		out = append(out, map[string]interface{}{"role": "user", "content": content})
	}
	out = append(out, items...)
	return out
}

func openAIResponsesAssistantItems(parts []AssistantPart) []map[string]interface{} {
	var content []map[string]interface{}
	var items []map[string]interface{}

	for _, p := range parts {
		switch p.Type {
		case AssistantPartText:
			content = append(content, map[string]interface{}{"type": "output_text", "text": p.Text})
		case AssistantPartToolCall:
			args := p.ToolArgsJSON
			if args == "" {
				args = "{}"
			}
			items = append(items, map[string]interface{}{
				"type":      "function_call",
				"name":      p.ToolName,
				"arguments": args,
				"call_id":   p.ToolCallID,
			})
		}
	}

	out := make([]map[string]interface{}, 0, 1+len(items))
	if len(content) > 0 {
		out = append(out, map[string]interface{}{"role": "assistant", "content": content})
	}
	out = append(out, items...)
	return out
}

func openAIResponsesTools(tools []ToolDefinition) []map[string]interface{} {
	out := make([]map[string]interface{}, 0, len(tools))
	for _, t := range tools {
		out = append(out, map[string]interface{}{
			"type":        "function",
			"name":        t.Name,
			"description": t.Description,
			"parameters":  t.Parameters,
		})
	}
	return out
}

type openAIResponsesBody struct {
	Output []struct {
		Type    string `json:"type"`
		Content []struct {
			Type string `json:"type"`
			Text string `json:"text"`
		} `json:"content"`
		Name      string          `json:"name"`
		Arguments json.RawMessage `json:"arguments"`
		CallID    string          `json:"call_id"`
	} `json:"output"`
	Usage struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
		InputTokensDetails struct {
			CachedTokens int `json:"cached_tokens"`
		} `json:"input_tokens_details"`
	} `json:"usage"`
}

func (OpenAIResponsesCodec) Decode(cfg ProviderConfig, body []byte, _ *ToolNameTable) (*CompletionResponse, error) {
	var parsed openAIResponsesBody
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, &DecodeError{Provider: "openai_responses", Reason: err.Error()}
	}

	var parts []AssistantPart
	for _, item := range parsed.Output {
		switch item.Type {
		case "message":
			for _, c := range item.Content {
				if c.Type == "output_text" {
					parts = append(parts, AssistantTextPart(c.Text))
				}
			}
		case "function_call":
			parts = append(parts, ToolCallPart(item.CallID, item.Name, string(item.Arguments)))
		}
	}

	if len(parts) == 0 {
		parts = append(parts, AssistantTextPart(""))
	}

	input := parsed.Usage.InputTokens
	output := parsed.Usage.OutputTokens
	return &CompletionResponse{
		Parts: parts,
		Usage: Usage{
			InputTokens:       input,
			OutputTokens:      output,
			CachedInputTokens: parsed.Usage.InputTokensDetails.CachedTokens,
			TotalTokens:       input + output,
		},
		Raw: json.RawMessage(body),
	}, nil
}
