// Package creds persists and refreshes the OAuth credentials the Anthropic
// and Antigravity wire codecs need (spec.md §4.1 "Credential Store").
package creds

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/pi-ai/llmrouter/internal/llm"
	"github.com/pi-ai/llmrouter/internal/logger"
)

// expiryBuffer is how long before the recorded expiry a token is treated as
// already stale, so a refresh started close to expiry never races a caller
// using the about-to-expire token.
const expiryBuffer = 5 * time.Minute

// Store loads and refreshes OAuth credentials for the providers that need
// them. It keeps no in-memory copy: every token request reads the
// credential file again. Refreshes for the same credential kind are serialized via
// singleflight so concurrent callers never send two refresh requests for
// the same token (spec.md §4.1: "refresh is serialized per credential
// kind").
type Store struct {
	dir        string
	httpClient *http.Client
	group      singleflight.Group
}

// NewStore returns a Store persisting credential files under dir (created
// if missing).
func NewStore(dir string, httpClient *http.Client) *Store {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Store{dir: dir, httpClient: httpClient}
}

// Token implements llm.CredentialSource: it resolves provider to a
// credential kind and returns a currently-valid bearer token, refreshing
// on-demand when the stored one is near expiry. A missing credential file
// is an error.
func (s *Store) Token(ctx context.Context, provider string) (string, error) {
	switch provider {
	case "anthropic":
		return s.AnthropicToken(ctx)
	case "antigravity", "gemini":
		return s.AntigravityToken(ctx)
	default:
		return "", fmt.Errorf("creds: no OAuth credential kind registered for provider %q", provider)
	}
}

// AnthropicToken returns a valid Anthropic OAuth access token, refreshing it
// first if it is near expiry. A missing credential file yields a
// MissingCredentials error.
func (s *Store) AnthropicToken(ctx context.Context) (string, error) {
	v, err, _ := s.group.Do("anthropic", func() (interface{}, error) {
		return s.loadOrRefreshAnthropic(ctx)
	})
	if err != nil {
		return "", err
	}
	return v.(*AnthropicCredentials).AccessToken, nil
}

// AntigravityToken returns a valid Antigravity OAuth access token, refreshing
// it first if it is near expiry. A missing credential file yields a
// MissingCredentials error.
func (s *Store) AntigravityToken(ctx context.Context) (string, error) {
	v, err, _ := s.group.Do("antigravity", func() (interface{}, error) {
		return s.loadOrRefreshAntigravity(ctx)
	})
	if err != nil {
		return "", err
	}
	return v.(*AntigravityCredentials).AccessToken, nil
}

func (s *Store) loadOrRefreshAnthropic(ctx context.Context) (*AnthropicCredentials, error) {
	path := s.credentialPath("anthropic")
	creds, err := readJSONFile[AnthropicCredentials](path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, missingCredentialsError("anthropic")
		}
		return nil, fmt.Errorf("creds: load anthropic credentials: %w", err)
	}

	if !tokenNeedsRefresh(creds.ExpiresAt) {
		return creds, nil
	}
	if creds.RefreshToken == "" {
		return nil, fmt.Errorf("creds: anthropic access token expired and no refresh token is stored")
	}

	logger.Debug("creds: refreshing anthropic OAuth token")
	refreshed, err := refreshAnthropic(ctx, s.httpClient, creds)
	if err != nil {
		return nil, fmt.Errorf("creds: refresh anthropic token: %w", err)
	}
	if err := writeJSONFileAtomic(path, refreshed); err != nil {
		logger.Warn("creds: failed to persist refreshed anthropic credentials: %v", err)
	}
	return refreshed, nil
}

func (s *Store) loadOrRefreshAntigravity(ctx context.Context) (*AntigravityCredentials, error) {
	path := s.credentialPath("antigravity")
	creds, err := readJSONFile[AntigravityCredentials](path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, missingCredentialsError("antigravity")
		}
		return nil, fmt.Errorf("creds: load antigravity credentials: %w", err)
	}

	if !tokenNeedsRefresh(creds.ExpiresAt) {
		return creds, nil
	}
	if creds.RefreshToken == "" {
		return nil, fmt.Errorf("creds: antigravity access token expired and no refresh token is stored")
	}

	logger.Debug("creds: refreshing antigravity OAuth token")
	refreshed, err := refreshAntigravity(ctx, s.httpClient, creds)
	if err != nil {
		return nil, fmt.Errorf("creds: refresh antigravity token: %w", err)
	}
	if err := writeJSONFileAtomic(path, refreshed); err != nil {
		logger.Warn("creds: failed to persist refreshed antigravity credentials: %v", err)
	}
	return refreshed, nil
}

func (s *Store) credentialPath(kind string) string {
	return filepath.Join(s.dir, kind+"_oauth.json")
}

// tokenNeedsRefresh implements spec.md §3's is_expired() invariant:
// "now + 5min >= expires_at", where expires_at is milliseconds since epoch.
func tokenNeedsRefresh(expiresAtMillis int64) bool {
	if expiresAtMillis == 0 {
		return false // no expiry recorded: treat as a long-lived key
	}
	return time.Now().Add(expiryBuffer).UnixMilli() >= expiresAtMillis
}

func missingCredentialsError(provider string) error {
	return llm.MissingCredentials(provider)
}

func readJSONFile[T any](path string) (*T, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, fmt.Errorf("creds: parse %s: %w", path, err)
	}
	return &v, nil
}

// writeJSONFileAtomic persists v to path via a temp-file-then-rename so a
// crash mid-write never leaves a truncated credential file, at 0600 since
// the file holds a bearer token (spec.md §4.1 "persisted at 0600").
func writeJSONFileAtomic(path string, v interface{}) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("creds: create credentials directory: %w", err)
	}

	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("creds: marshal credentials: %w", err)
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0600); err != nil {
		return fmt.Errorf("creds: write temp credentials file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("creds: rename credentials file: %w", err)
	}
	return nil
}
