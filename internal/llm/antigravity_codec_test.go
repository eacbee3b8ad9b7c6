package llm

import (
	"context"
	"net/http"
	"testing"
)

func TestCandidateModels(t *testing.T) {
	tests := []struct {
		requested string
		want      []string
	}{
		// claude-sonnet-4-5 is in the alias-first set: its alias
		// (claude-sonnet-4-6) is tried before the requested name, then the
		// claude-sonnet-4- family fallback adds the -thinking variant.
		{"claude-sonnet-4-5", []string{"claude-sonnet-4-6", "claude-sonnet-4-5", "claude-sonnet-4-5-thinking"}},
		// gemini-3-pro is not alias-first: requested name first, then its
		// alias, then the gemini-3-pro family fallback fills in the rest.
		{"gemini-3-pro", []string{"gemini-3-pro", "gemini-3-pro-high", "gemini-3.1-pro-high", "gemini-3.1-pro-low", "gemini-3-pro-low"}},
	}
	for _, tt := range tests {
		got := candidateModels(tt.requested)
		if len(got) != len(tt.want) {
			t.Fatalf("candidateModels(%q) = %v, want %v", tt.requested, got, tt.want)
		}
		for i := range got {
			if got[i] != tt.want[i] {
				t.Errorf("candidateModels(%q)[%d] = %q, want %q", tt.requested, i, got[i], tt.want[i])
			}
		}
	}
}

func TestCandidateEndpoints_SandboxFirstThenConfiguredThenDefault(t *testing.T) {
	got := candidateEndpoints(ProviderConfig{BaseURL: "https://custom.example.com"})
	want := []string{antigravitySandboxEndpoint, "https://custom.example.com", antigravityDefaultEndpoint}
	if len(got) != len(want) {
		t.Fatalf("candidateEndpoints = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("candidateEndpoints[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestAntigravityInvoke_AdvancesEndpointOn404ThenSucceeds(t *testing.T) {
	var seenURLs []string
	client := newTestHTTPClient(func(req *http.Request) (*http.Response, error) {
		seenURLs = append(seenURLs, req.URL.String())
		if len(seenURLs) == 1 {
			return newTestHTTPResponse(req, http.StatusNotFound, "application/json", `{"error":"not found"}`), nil
		}
		return newTestHTTPResponse(req, http.StatusOK, "text/event-stream",
			"data: "+`{"candidates":[{"content":{"parts":[{"text":"hi"}]}}],"usageMetadata":{"promptTokenCount":1,"candidatesTokenCount":2}}`+"\n\n"), nil
	})

	codec := AntigravityCodec{HTTPClient: client}
	req := &CompletionRequest{Messages: []Message{{User: &UserMessage{Parts: []UserPart{TextPart("hi")}}}}}

	resp, err := codec.Invoke(context.Background(), ProviderConfig{Name: "antigravity", ProjectID: "proj-1"}, "gemini-3-pro", "tok", req)
	if err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	if len(seenURLs) != 2 {
		t.Fatalf("expected 2 attempts (sandbox 404, default 200), got %d: %v", len(seenURLs), seenURLs)
	}
	if resp.Parts[0].Text != "hi" {
		t.Errorf("text = %q", resp.Parts[0].Text)
	}
	if resp.Usage.InputTokens != 1 || resp.Usage.OutputTokens != 2 {
		t.Errorf("usage = %+v", resp.Usage)
	}
}

func TestAntigravityInvoke_AdvancesModelOnNotFoundMessage(t *testing.T) {
	attempts := 0
	client := newTestHTTPClient(func(req *http.Request) (*http.Response, error) {
		attempts++
		if attempts == 1 { // first candidate model (the alias) doesn't exist on this backend
			return newTestHTTPResponse(req, http.StatusBadRequest, "application/json", `{"error":{"message":"model not found"}}`), nil
		}
		return newTestHTTPResponse(req, http.StatusOK, "text/event-stream",
			"data: "+`{"candidates":[{"content":{"parts":[{"text":"ok"}]}}]}`+"\n\n"), nil
	})

	codec := AntigravityCodec{HTTPClient: client}
	req := &CompletionRequest{Messages: []Message{{User: &UserMessage{Parts: []UserPart{TextPart("hi")}}}}}

	resp, err := codec.Invoke(context.Background(), ProviderConfig{Name: "antigravity"}, "claude-sonnet-4-5", "tok", req)
	if err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	if resp.Parts[0].Text != "ok" {
		t.Errorf("text = %q", resp.Parts[0].Text)
	}
	if attempts != 2 { // claude-sonnet-4-6 (aliased) fails, claude-sonnet-4-5 (requested) succeeds
		t.Fatalf("attempts = %d, want 2", attempts)
	}
}

func TestAntigravityInvoke_FailsFastOnUnrelatedBadRequest(t *testing.T) {
	client := newTestHTTPClient(func(req *http.Request) (*http.Response, error) {
		return newTestHTTPResponse(req, http.StatusBadRequest, "application/json", `{"error":{"message":"invalid generationConfig"}}`), nil
	})

	codec := AntigravityCodec{HTTPClient: client}
	req := &CompletionRequest{Messages: []Message{{User: &UserMessage{Parts: []UserPart{TextPart("hi")}}}}}

	_, err := codec.Invoke(context.Background(), ProviderConfig{Name: "antigravity"}, "claude-sonnet-4-5", "tok", req)
	if err == nil {
		t.Fatal("expected a fail-fast error for an unrelated 400")
	}
}

func TestParseAntigravitySSE_AggregatesTextAndDedupesToolCalls(t *testing.T) {
	stream := "" +
		"data: " + `{"candidates":[{"content":{"parts":[{"text":"Hello"}]}}]}` + "\n\n" +
		"data: " + `{"candidates":[{"content":{"parts":[{"text":"Hello"}]}}]}` + "\n\n" + // exact duplicate adjacent fragment
		"data: " + `{"candidates":[{"content":{"parts":[{"text":", world"}]}}]}` + "\n\n" +
		"data: " + `{"candidates":[{"content":{"parts":[{"functionCall":{"name":"read_file","args":{"path":"a.go"}}}]}}]}` + "\n\n" +
		"data: " + `{"candidates":[{"content":{"parts":[{"functionCall":{"name":"read_file","args":{"path":"a.go"}}}]}}]}` + "\n\n" + // exact duplicate call
		"data: " + `{"usageMetadata":{"promptTokenCount":10,"candidatesTokenCount":20}}` + "\n\n" +
		"data: [DONE]\n\n"

	resp, err := parseAntigravitySSE([]byte(stream))
	if err != nil {
		t.Fatalf("parseAntigravitySSE: %v", err)
	}

	var text string
	toolCalls := 0
	for _, p := range resp.Parts {
		if p.Type == AssistantPartText {
			text += p.Text
		}
		if p.Type == AssistantPartToolCall {
			toolCalls++
		}
	}
	if text != "Hello, world" {
		t.Errorf("aggregated text = %q, want %q", text, "Hello, world")
	}
	if toolCalls != 1 {
		t.Errorf("tool calls = %d, want 1 (deduped)", toolCalls)
	}
	if resp.Usage.InputTokens != 10 || resp.Usage.OutputTokens != 20 {
		t.Errorf("usage = %+v", resp.Usage)
	}
}

func TestIsClaudeThinkingModel(t *testing.T) {
	tests := []struct {
		model string
		want  bool
	}{
		{"claude-sonnet-4-6-thinking", true},
		{"claude-sonnet-4-6", false},
		{"gemini-3-pro-thinking", false},
	}
	for _, tt := range tests {
		if got := isClaudeThinkingModel(tt.model); got != tt.want {
			t.Errorf("isClaudeThinkingModel(%q) = %v, want %v", tt.model, got, tt.want)
		}
	}
}
