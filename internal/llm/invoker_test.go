package llm

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"testing"
)

type fakeCredentialSource struct {
	token string
	err   error
}

func (f fakeCredentialSource) Token(ctx context.Context, provider string) (string, error) {
	return f.token, f.err
}

func TestInvoker_StaticAPIKeyPathNeverCallsCredentialSource(t *testing.T) {
	client := newTestHTTPClient(func(req *http.Request) (*http.Response, error) {
		if got := req.Header.Get("x-api-key"); got != "sk-ant-test" {
			t.Errorf("x-api-key = %q, want sk-ant-test", got)
		}
		return newTestHTTPResponse(req, http.StatusOK, "application/json",
			`{"content":[{"type":"text","text":"hi"}],"usage":{"input_tokens":1,"output_tokens":1}}`), nil
	})

	inv := NewInvoker(client, fakeCredentialSource{err: errAlwaysFail{}})
	cfg := ProviderConfig{Name: "anthropic", APIType: APITypeAnthropic, BaseURL: "https://api.anthropic.com", APIKey: "sk-ant-test"}
	req := &CompletionRequest{Messages: []Message{{User: &UserMessage{Parts: []UserPart{TextPart("hi")}}}}}

	resp, err := inv.Invoke(context.Background(), cfg, "claude-sonnet-4-5", req)
	if err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	if resp.Parts[0].Text != "hi" {
		t.Errorf("text = %q", resp.Parts[0].Text)
	}
}

type errAlwaysFail struct{}

func (errAlwaysFail) Error() string { return "credential source should not be consulted" }

func TestInvoker_OAuthPathUsesCredentialSource(t *testing.T) {
	client := newTestHTTPClient(func(req *http.Request) (*http.Response, error) {
		if got := req.Header.Get("Authorization"); got != "Bearer oauth-tok" {
			t.Errorf("Authorization = %q, want Bearer oauth-tok", got)
		}
		return newTestHTTPResponse(req, http.StatusOK, "application/json",
			`{"content":[{"type":"text","text":"hi"}],"usage":{"input_tokens":1,"output_tokens":1}}`), nil
	})

	inv := NewInvoker(client, fakeCredentialSource{token: "oauth-tok"})
	cfg := ProviderConfig{Name: "anthropic", APIType: APITypeAnthropic, BaseURL: "https://api.anthropic.com"}
	req := &CompletionRequest{Messages: []Message{{User: &UserMessage{Parts: []UserPart{TextPart("hi")}}}}}

	if _, err := inv.Invoke(context.Background(), cfg, "claude-sonnet-4-5", req); err != nil {
		t.Fatalf("Invoke: %v", err)
	}
}

func TestInvoker_MissingCredentialsWhenNoSourceConfigured(t *testing.T) {
	inv := NewInvoker(newTestHTTPClient(func(req *http.Request) (*http.Response, error) {
		t.Fatal("should not make an HTTP call without credentials")
		return nil, nil
	}), nil)
	cfg := ProviderConfig{Name: "anthropic", APIType: APITypeAnthropic, BaseURL: "https://api.anthropic.com"}
	req := &CompletionRequest{Messages: []Message{{User: &UserMessage{Parts: []UserPart{TextPart("hi")}}}}}

	_, err := inv.Invoke(context.Background(), cfg, "claude-sonnet-4-5", req)
	if err == nil {
		t.Fatal("expected a missing-credentials error")
	}
}

func TestInvoker_401MapsToAuthFailure(t *testing.T) {
	client := newTestHTTPClient(func(req *http.Request) (*http.Response, error) {
		return newTestHTTPResponse(req, http.StatusUnauthorized, "application/json", `{"error":"invalid api key"}`), nil
	})

	inv := NewInvoker(client, nil)
	cfg := ProviderConfig{Name: "anthropic", APIType: APITypeAnthropic, BaseURL: "https://api.anthropic.com", APIKey: "bad-key"}
	req := &CompletionRequest{Messages: []Message{{User: &UserMessage{Parts: []UserPart{TextPart("hi")}}}}}

	_, err := inv.Invoke(context.Background(), cfg, "claude-sonnet-4-5", req)
	var authErr *AuthFailure
	if err == nil {
		t.Fatal("expected an AuthFailure")
	}
	if !asAuthFailure(err, &authErr) {
		t.Fatalf("error = %v, want *AuthFailure", err)
	}
}

func asAuthFailure(err error, target **AuthFailure) bool {
	af, ok := err.(*AuthFailure)
	if !ok {
		return false
	}
	*target = af
	return true
}

// KimiCompat (the reasoning_content attachment) is keyed off base_url
// containing "kimi.com", matching original_source/src/llm/model.rs's
// call_openai (`include_reasoning_content = base_url.contains("kimi.com")`),
// not the provider's configured name.
func TestInvoker_KimiCompatFlagSetByBaseURL(t *testing.T) {
	var gotUserAgent string
	var gotBody []byte
	client := newTestHTTPClient(func(req *http.Request) (*http.Response, error) {
		gotUserAgent = req.Header.Get("User-Agent")
		gotBody, _ = io.ReadAll(req.Body)
		return newTestHTTPResponse(req, http.StatusOK, "application/json",
			`{"choices":[{"message":{"content":"hi","tool_calls":[{"id":"c1","function":{"name":"f","arguments":"{}"}}]}}]}`), nil
	})

	inv := NewInvoker(client, nil)
	cfg := ProviderConfig{Name: "kimi", APIType: APITypeOpenAICompletions, BaseURL: "https://api.kimi.com", APIKey: "k"}
	req := &CompletionRequest{
		Messages: []Message{
			{User: &UserMessage{Parts: []UserPart{TextPart("hi")}}},
			{Assistant: &AssistantMessage{Parts: []AssistantPart{ToolCallPart("c0", "f", "{}")}}},
			{User: &UserMessage{Parts: []UserPart{ToolResultPart("c0", "done")}}},
		},
		Tools: []ToolDefinition{{Name: "f"}},
	}

	resp, err := inv.Invoke(context.Background(), cfg, "kimi-k2", req)
	if err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	if len(resp.Parts) == 0 {
		t.Fatal("expected at least one part")
	}
	if gotUserAgent != "KimiCLI/1.3" {
		t.Errorf("User-Agent = %q, want KimiCLI/1.3", gotUserAgent)
	}

	var sent struct {
		Messages []map[string]interface{} `json:"messages"`
	}
	if err := json.Unmarshal(gotBody, &sent); err != nil {
		t.Fatalf("request body not valid JSON: %v", err)
	}
	hasReasoning := false
	for _, m := range sent.Messages {
		if m["role"] == "assistant" {
			_, hasReasoning = m["reasoning_content"]
		}
	}
	if !hasReasoning {
		t.Error("assistant tool-call message lacks reasoning_content on a kimi.com base URL")
	}
}

func TestInvoker_GeminiRoutesToOpenAICompletionsBarePath(t *testing.T) {
	var gotURL string
	client := newTestHTTPClient(func(req *http.Request) (*http.Response, error) {
		gotURL = req.URL.String()
		return newTestHTTPResponse(req, http.StatusOK, "application/json",
			`{"choices":[{"message":{"content":"hi"}}]}`), nil
	})

	inv := NewInvoker(client, nil)
	cfg := ProviderConfig{Name: "gemini", APIType: APITypeGemini, BaseURL: "https://generativelanguage.googleapis.com", APIKey: "g"}
	req := &CompletionRequest{
		Messages: []Message{{User: &UserMessage{Parts: []UserPart{TextPart("hi")}}}},
	}

	if _, err := inv.Invoke(context.Background(), cfg, "gemini-2.5-pro", req); err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	if want := "https://generativelanguage.googleapis.com/chat/completions"; gotURL != want {
		t.Fatalf("url = %q, want %q", gotURL, want)
	}
}
