package consts

import "time"

// LLM default configurations
const (
	// DefaultMaxTokens is applied when a CompletionRequest doesn't set one
	// (spec.md §3 lists max_tokens as optional on the neutral request).
	DefaultMaxTokens = 1024
)

// Buffer sizes used when framing the Antigravity SSE response stream.
const (
	// BufferSize64KB is the scanner's initial token buffer.
	BufferSize64KB = 64 * 1024
	// BufferSize10MB is the scanner's maximum token buffer, large enough for
	// a single SSE event carrying a big tool-call argument payload.
	BufferSize10MB = 10 * 1024 * 1024
)

// Timeouts for the shared HTTP client (spec.md §4.7 "reasonable
// connect/read timeouts").
const (
	// DialTimeout bounds establishing the TCP connection.
	DialTimeout = 10 * time.Second
	// TLSHandshakeTimeout bounds the TLS handshake once connected.
	TLSHandshakeTimeout = 10 * time.Second
	// RequestTimeout bounds one full HTTP round trip, including a slow
	// provider generating a long completion.
	RequestTimeout = 120 * time.Second
	// IdleConnTimeout bounds how long a pooled connection sits idle before
	// the transport closes it.
	IdleConnTimeout = 90 * time.Second
)
