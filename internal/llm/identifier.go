package llm

import "strings"

// defaultProvider is used when a bare model identifier carries no slash.
const defaultProvider = "anthropic"

// openrouterPrefix is special-cased: it consumes only its own segment, and
// the remainder (which itself may contain slashes, e.g. "openrouter/openai/gpt-5")
// is kept intact as the model name.
const openrouterPrefix = "openrouter/"

// ParseModelIdentifier splits a "provider/model" full model name per
// spec.md §3 and §8.1:
//   - "openrouter/<rest>" -> provider "openrouter", model "<rest>" (rest may
//     contain further slashes and is never split again)
//   - "<provider>/<model>" -> split at the first slash
//   - "<model>" (no slash) -> provider defaults to "anthropic"
func ParseModelIdentifier(full string) (provider, model string) {
	if strings.HasPrefix(full, openrouterPrefix) {
		return "openrouter", strings.TrimPrefix(full, openrouterPrefix)
	}

	if idx := strings.IndexByte(full, '/'); idx >= 0 {
		return full[:idx], full[idx+1:]
	}

	return defaultProvider, full
}

// FullModelName reconstructs the "provider/model" identifier.
func FullModelName(provider, model string) string {
	return provider + "/" + model
}
