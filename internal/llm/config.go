package llm

import "time"

// APIType identifies which wire codec a provider speaks.
type APIType string

const (
	APITypeAnthropic         APIType = "anthropic"
	APITypeOpenAICompletions APIType = "openai_completions"
	APITypeOpenAIResponses   APIType = "openai_responses"
	APITypeGemini            APIType = "gemini"
	APITypeAntigravity       APIType = "antigravity"
)

// ProviderConfig is the static configuration for one named provider.
type ProviderConfig struct {
	Name    string
	APIType APIType
	BaseURL string
	APIKey  string // may be empty when the provider authenticates via OAuth

	DisplayName string
	ProjectID   string // Antigravity only
}

// zaiForcedProviders force the OpenAI-compatible codec regardless of their
// declared APIType, per spec.md §4.3.
var zaiForcedProviders = map[string]struct {
	displayName string
	pathSuffix  string
}{
	"zai-coding-plan": {displayName: "Z.AI Coding Plan", pathSuffix: "/chat/completions"},
	"zhipu":           {displayName: "Zhipu", pathSuffix: "/chat/completions"},
}

// RoutingConfig maps model identifiers to ordered fallback chains and carries
// the cooldown window used by the Rate-Limit Tracker.
type RoutingConfig struct {
	Fallbacks map[string][]string

	RateLimitCooldown time.Duration

	// ThinkingEffort is an optional per-model hint forwarded to the
	// Anthropic codec via CompletionRequest.ProviderHints["thinking_effort"].
	ThinkingEffort map[string]string
}

// GetFallbacks returns the configured fallback chain for a full model name,
// or nil if none is configured.
func (r *RoutingConfig) GetFallbacks(fullModelName string) []string {
	if r == nil || r.Fallbacks == nil {
		return nil
	}
	return r.Fallbacks[fullModelName]
}

// CooldownSecs returns the configured cooldown, defaulting to 60s when unset.
func (r *RoutingConfig) CooldownSecs() int {
	if r == nil || r.RateLimitCooldown <= 0 {
		return 60
	}
	return int(r.RateLimitCooldown.Seconds())
}

// ProviderRegistry resolves a provider name to its configuration. It is
// read-only after construction (spec.md §5 "Configuration: read-only after
// construction").
type ProviderRegistry struct {
	providers map[string]ProviderConfig
}

// NewProviderRegistry builds a registry from a set of provider configs,
// keyed by their Name.
func NewProviderRegistry(configs ...ProviderConfig) *ProviderRegistry {
	reg := &ProviderRegistry{providers: make(map[string]ProviderConfig, len(configs))}
	for _, c := range configs {
		reg.providers[c.Name] = c
	}
	return reg
}

// Resolve returns the configuration for a provider name, applying the
// zai-coding-plan/zhipu forced-codec special case.
func (r *ProviderRegistry) Resolve(providerName string) (ProviderConfig, bool) {
	cfg, ok := r.providers[providerName]
	if !ok {
		return ProviderConfig{}, false
	}

	if forced, isForced := zaiForcedProviders[providerName]; isForced {
		cfg.APIType = APITypeOpenAICompletions
		if cfg.DisplayName == "" {
			cfg.DisplayName = forced.displayName
		}
	}

	return cfg, true
}
