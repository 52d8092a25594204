package catalog

import "strings"

// providerEnvExceptions covers provider names that don't make valid env var prefixes.
var providerEnvExceptions = map[string]string{
	"37signals": "THIRTY_SEVEN_SIGNALS",
}

// ProviderEnvName returns the env var prefix for provider, e.g. "GITHUB" or
// "THIRTY_SEVEN_SIGNALS". Credentials live in <prefix>_OAUTH_KEY and <prefix>_OAUTH_SECRET.
func ProviderEnvName(provider string) string {
	id := normalizeProviderID(provider)
	if name, ok := providerEnvExceptions[id]; ok {
		return name
	}
	replacer := strings.NewReplacer("-", "_", ".", "_", "/", "_", " ", "_")
	return replacer.Replace(strings.ToUpper(id))
}
