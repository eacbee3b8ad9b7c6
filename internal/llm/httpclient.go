package llm

import (
	"net"
	"net/http"
	"time"

	"github.com/pi-ai/llmrouter/internal/consts"
)

// NewSharedHTTPClient returns the single pooled HTTP client reused across all
// providers and codecs (spec.md §4.7). Callers of the router never construct
// their own client; this one carries provider-agnostic timeout defaults and
// connection pooling.
func NewSharedHTTPClient() *http.Client {
	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   consts.DialTimeout,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   20,
		IdleConnTimeout:       consts.IdleConnTimeout,
		TLSHandshakeTimeout:   consts.TLSHandshakeTimeout,
		ExpectContinueTimeout: 1 * time.Second,
	}

	return &http.Client{
		Transport: transport,
		Timeout:   consts.RequestTimeout,
	}
}
