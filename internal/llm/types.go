package llm

import "encoding/json"

// Message is the neutral chat message: a closed sum type over the two
// conversational roles. Exactly one of User/Assistant is non-nil.
type Message struct {
	User      *UserMessage      `json:"user,omitempty"`
	Assistant *AssistantMessage `json:"assistant,omitempty"`
}

// UserMessage carries the parts a human (or tool runtime, for results)
// contributes to the conversation.
type UserMessage struct {
	Parts []UserPart `json:"parts"`
}

// UserPartType tags the variant carried by a UserPart.
type UserPartType string

const (
	UserPartText       UserPartType = "text"
	UserPartImage      UserPartType = "image"
	UserPartToolResult UserPartType = "tool_result"
)

// UserPart is a tagged union; only the field matching Type is populated.
type UserPart struct {
	Type UserPartType

	Text string

	// Image: either Base64+MimeType, or URL, never both.
	ImageBase64   string
	ImageMimeType string
	ImageURL      string

	// ToolResult references a tool-call id previously emitted by the
	// assistant in the same conversation.
	ToolCallID string
	ToolText   string
}

func TextPart(text string) UserPart {
	return UserPart{Type: UserPartText, Text: text}
}

func ImagePartBase64(data, mimeType string) UserPart {
	return UserPart{Type: UserPartImage, ImageBase64: data, ImageMimeType: mimeType}
}

func ImagePartURL(url string) UserPart {
	return UserPart{Type: UserPartImage, ImageURL: url}
}

func ToolResultPart(toolCallID, text string) UserPart {
	return UserPart{Type: UserPartToolResult, ToolCallID: toolCallID, ToolText: text}
}

func (p UserPart) IsImageURL() bool {
	return p.Type == UserPartImage && p.ImageURL != ""
}

// AssistantMessage carries the parts the model produced.
type AssistantMessage struct {
	Parts []AssistantPart `json:"parts"`
}

// AssistantPartType tags the variant carried by an AssistantPart.
type AssistantPartType string

const (
	AssistantPartText      AssistantPartType = "text"
	AssistantPartReasoning AssistantPartType = "reasoning"
	AssistantPartToolCall  AssistantPartType = "tool_call"
)

// AssistantPart is a tagged union; only the field matching Type is populated.
type AssistantPart struct {
	Type AssistantPartType

	Text      string
	Reasoning string

	ToolCallID   string
	ToolName     string
	ToolArgsJSON string // raw JSON object, opaque to the router
}

func AssistantTextPart(text string) AssistantPart {
	return AssistantPart{Type: AssistantPartText, Text: text}
}

func ReasoningPart(text string) AssistantPart {
	return AssistantPart{Type: AssistantPartReasoning, Reasoning: text}
}

func ToolCallPart(id, name, argsJSON string) AssistantPart {
	return AssistantPart{Type: AssistantPartToolCall, ToolCallID: id, ToolName: name, ToolArgsJSON: argsJSON}
}

// ToolDefinition describes a callable tool available to the assistant.
type ToolDefinition struct {
	Name        string
	Description string
	Parameters  map[string]interface{} // JSON-Schema
}

// CompletionRequest is the neutral, provider-agnostic request shape.
//
// Invariant: Messages is non-empty and alternates with a user-originated
// message first (after any System preamble); tool-result parts reference a
// ToolCallID previously emitted by the assistant earlier in Messages.
type CompletionRequest struct {
	System      string
	Messages    []Message
	Tools       []ToolDefinition
	MaxTokens   int
	Temperature float64

	// ProviderHints carries free-form, provider-specific knobs (e.g.
	// Anthropic "thinking effort") that do not belong in the neutral shape.
	ProviderHints map[string]interface{}
}

// Usage reports token accounting for a completed request.
//
// Invariant: TotalTokens == InputTokens + OutputTokens.
type Usage struct {
	InputTokens       int
	OutputTokens      int
	CachedInputTokens int
	TotalTokens       int
}

// CompletionResponse is the neutral, provider-agnostic response shape.
//
// Invariant: Parts is non-empty. A provider that returns no content yields
// a single empty text part rather than failing the call, so agent loops
// relying on "assistant said something" terminate cleanly.
type CompletionResponse struct {
	Parts []AssistantPart
	Usage Usage

	// Raw is the provider's raw response payload, kept for debugging only.
	Raw json.RawMessage
}
