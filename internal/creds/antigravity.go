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

// antigravityOAuthTokenURL is Google's standard token endpoint; Antigravity
// credentials are ordinary Google OAuth grants scoped to the CodeAssist API.
const antigravityOAuthTokenURL = "https://oauth2.googleapis.com/token"

// AntigravityCredentials is the on-disk shape for a stored Antigravity
// (Google CodeAssist) OAuth grant (spec.md §6: "{access_token,
// refresh_token?, expires_at, token_type?, scope?, project_id}"). ProjectID,
// ClientID, and ClientSecret are populated once at login and are not
// returned by every refresh response, so a refresh must retain them rather
// than overwrite them with zero values.
type AntigravityCredentials struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token,omitempty"`
	ExpiresAt    int64  `json:"expires_at,omitempty"` // milliseconds since epoch
	TokenType    string `json:"token_type,omitempty"`
	Scope        string `json:"scope,omitempty"`
	ProjectID    string `json:"project_id,omitempty"`
	ClientID     string `json:"client_id,omitempty"`
	ClientSecret string `json:"client_secret,omitempty"`
}

type antigravityTokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int64  `json:"expires_in"`
	TokenType    string `json:"token_type"`
	Scope        string `json:"scope"`
}

// refreshAntigravity exchanges creds.RefreshToken for a new access token,
// preserving every field the response omits (spec.md §4.1).
func refreshAntigravity(ctx context.Context, client *http.Client, creds *AntigravityCredentials) (*AntigravityCredentials, error) {
	form := map[string]string{
		"grant_type":    "refresh_token",
		"refresh_token": creds.RefreshToken,
	}
	if creds.ClientID != "" {
		form["client_id"] = creds.ClientID
	}
	if creds.ClientSecret != "" {
		form["client_secret"] = creds.ClientSecret
	}

	payload, err := json.Marshal(form)
	if err != nil {
		return nil, fmt.Errorf("marshal refresh request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, antigravityOAuthTokenURL, bytes.NewReader(payload))
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

	var parsed antigravityTokenResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("parse refresh response: %w", err)
	}

	refreshToken := parsed.RefreshToken
	if refreshToken == "" {
		refreshToken = creds.RefreshToken // Google does not always rotate it
	}
	tokenType := parsed.TokenType
	if tokenType == "" {
		tokenType = creds.TokenType
	}
	scope := parsed.Scope
	if scope == "" {
		scope = creds.Scope
	}

	return &AntigravityCredentials{
		AccessToken:  parsed.AccessToken,
		RefreshToken: refreshToken,
		ExpiresAt:    time.Now().Add(time.Duration(parsed.ExpiresIn) * time.Second).UnixMilli(),
		TokenType:    tokenType,
		Scope:        scope,
		ProjectID:    creds.ProjectID,
		ClientID:     creds.ClientID,
		ClientSecret: creds.ClientSecret,
	}, nil
}
