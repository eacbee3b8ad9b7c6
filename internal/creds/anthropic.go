package creds

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// anthropicOAuthClientID and anthropicOAuthTokenURL mirror the values the
// Claude Code CLI itself uses for its OAuth app registration; a router
// acting as that CLI's drop-in replacement must refresh against the same
// endpoint.
const (
	anthropicOAuthClientID = "9d1c250a-e61b-44d9-88ed-5944d1962f5e"
	anthropicOAuthTokenURL = "https://console.anthropic.com/v1/oauth/token"
)

// AnthropicCredentials is the on-disk shape for a stored Anthropic OAuth
// grant.
type AnthropicCredentials struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token,omitempty"`
	ExpiresAt    int64  `json:"expires_at,omitempty"` // milliseconds since epoch
	Scope        string `json:"scope,omitempty"`
}

type anthropicTokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int64  `json:"expires_in"`
	Scope        string `json:"scope"`
}

// refreshAnthropic exchanges creds.RefreshToken for a new access token.
func refreshAnthropic(ctx context.Context, client *http.Client, creds *AnthropicCredentials) (*AnthropicCredentials, error) {
	payload, err := json.Marshal(map[string]string{
		"grant_type":    "refresh_token",
		"refresh_token": creds.RefreshToken,
		"client_id":     anthropicOAuthClientID,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal refresh request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, anthropicOAuthTokenURL, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("build refresh request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("refresh request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read refresh response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("refresh rejected (status %d): %s", resp.StatusCode, body)
	}

	var parsed anthropicTokenResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("parse refresh response: %w", err)
	}

	refreshToken := parsed.RefreshToken
	if refreshToken == "" {
		refreshToken = creds.RefreshToken // not every refresh rotates it
	}
	scope := parsed.Scope
	if scope == "" {
		scope = creds.Scope
	}

	return &AnthropicCredentials{
		AccessToken:  parsed.AccessToken,
		RefreshToken: refreshToken,
		ExpiresAt:    time.Now().Add(time.Duration(parsed.ExpiresIn) * time.Second).UnixMilli(),
		Scope:        scope,
	}, nil
}
