package llm

import "net/http"

// WireRequest is everything a codec needs the invoker to send: the already
// host-resolved URL, method, headers, and a pre-encoded JSON body.
type WireRequest struct {
	Method  string
	URL     string
	Headers http.Header
	Body    []byte
}

// Codec serialises a neutral CompletionRequest into a provider's wire
// format and parses its wire response back into a neutral
// CompletionResponse (spec.md §4.2). Anthropic, OpenAI Chat Completions,
// and OpenAI Responses implement this directly: one HTTP round trip per
// call. Antigravity does not — its model/endpoint fan-out and SSE framing
// need several candidate round trips per call, so it is invoked directly
// by the Provider Invoker instead (see antigravity_codec.go).
type Codec interface {
	// Encode builds the wire request for one attempt against cfg/model.
	// authToken is the bearer token to use when cfg has no static APIKey
	// (OAuth path); it is ignored otherwise.
	Encode(cfg ProviderConfig, model string, req *CompletionRequest, authToken string) (*WireRequest, error)

	// Decode parses a 2xx response body into the neutral response shape.
	// toolNames is the table built for this request; codecs that don't
	// rename tools (everything but the Anthropic OAuth path) ignore it.
	Decode(cfg ProviderConfig, body []byte, toolNames *ToolNameTable) (*CompletionResponse, error)
}
