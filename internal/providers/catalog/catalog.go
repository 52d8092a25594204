// Package catalog resolves OAuth provider endpoints and client credentials.
//
// A Registry is built once at startup from a YAML file (or built-in defaults)
// plus environment overrides, then injected wherever provider metadata is needed.
package catalog

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// ErrUnknownProvider is returned when a provider has no registry entry.
var ErrUnknownProvider = errors.New("unknown provider")

var providerIDRegexp = regexp.MustCompile(`^[a-z0-9][a-z0-9_-]*$`)

type fileConfig struct {
	Providers []ProviderConfig `yaml:"providers"`
}

// ProviderConfig is one provider entry of the registry file.
type ProviderConfig struct {
	ID           string   `yaml:"id"`
	Site         string   `yaml:"site"`
	TokenURL     string   `yaml:"token_url"`
	AuthorizeURL string   `yaml:"authorize_url"`
	ProfileURL   string   `yaml:"profile_url"`
	Profile      string   `yaml:"profile"`
	Scopes       []string `yaml:"scopes"`
}

// Provider is a resolved registry entry.
type Provider struct {
	ID           string   `json:"id"`
	Site         string   `json:"site"`
	TokenURL     string   `json:"token_url"`
	AuthorizeURL string   `json:"authorize_url"`
	ProfileURL   string   `json:"profile_url"`
	Profile      string   `json:"profile,omitempty"`
	Scopes       []string `json:"scopes,omitempty"`
	KeyEnv       string   `json:"key_env"`
	SecretEnv    string   `json:"secret_env"`
	Configured   bool     `json:"configured"`

	clientID     string
	clientSecret string
}

// ClientID returns the OAuth client id read from the environment.
func (p Provider) ClientID() string { return p.clientID }

// ClientSecret returns the OAuth client secret read from the environment.
func (p Provider) ClientSecret() string { return p.clientSecret }

// Registry maps provider IDs to their endpoints and credentials.
// It is read-only after construction.
type Registry struct {
	byID  map[string]Provider
	order []string
}

// New builds a registry from configs, reading credentials through getenv.
// Invalid entries are skipped.
func New(configs []ProviderConfig, getenv func(string) string) *Registry {
	if getenv == nil {
		getenv = os.Getenv
	}
	r := &Registry{byID: make(map[string]Provider, len(configs))}
	for _, cfg := range configs {
		p, ok := normalizeConfig(cfg, getenv)
		if !ok {
			continue
		}
		if _, exists := r.byID[p.ID]; !exists {
			r.order = append(r.order, p.ID)
		}
		r.byID[p.ID] = p
	}
	sort.Strings(r.order)
	return r
}

// Load builds a registry from path, or from the first well-known location
// when path is empty. Without any file the built-in defaults are used.
func Load(path string) (*Registry, error) {
	configs, err := loadConfigProviders(path)
	if err != nil {
		return nil, err
	}
	if len(configs) == 0 {
		configs = DefaultProviders()
	}
	return New(configs, os.Getenv), nil
}

// Provider returns the entry for id.
func (r *Registry) Provider(id string) (Provider, bool) {
	p, ok := r.byID[normalizeProviderID(id)]
	if ok {
		p.Scopes = append([]string(nil), p.Scopes...)
	}
	return p, ok
}

// Providers returns all entries ordered by ID.
func (r *Registry) Providers() []Provider {
	result := make([]Provider, 0, len(r.order))
	for _, id := range r.order {
		p := r.byID[id]
		p.Scopes = append([]string(nil), p.Scopes...)
		result = append(result, p)
	}
	return result
}

// TokenEndpoint returns the provider's token URL, resolved against its site.
func (r *Registry) TokenEndpoint(provider string) (string, error) {
	p, ok := r.Provider(provider)
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownProvider, provider)
	}
	if p.TokenURL == "" {
		return "", fmt.Errorf("provider %q has no token endpoint", p.ID)
	}
	return p.TokenURL, nil
}

// ClientCredentials returns the OAuth client id and secret for provider.
func (r *Registry) ClientCredentials(provider string) (string, string) {
	p, _ := r.Provider(provider)
	return p.clientID, p.clientSecret
}

func loadConfigProviders(path string) ([]ProviderConfig, error) {
	path, err := resolveConfigPath(path)
	if err != nil {
		return nil, err
	}
	if path == "" {
		return nil, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read providers file %q: %w", path, err)
	}

	var cfg fileConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse providers file %q: %w", path, err)
	}
	return cfg.Providers, nil
}

func resolveConfigPath(explicit string) (string, error) {
	if explicit = strings.TrimSpace(explicit); explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return "", err
		}
		return explicit, nil
	}

	candidates := []string{
		"config/providers.yaml",
		"/etc/servicehub/providers.yaml",
	}
	if homeDir, err := os.UserHomeDir(); err == nil && homeDir != "" {
		candidates = append(candidates, filepath.Join(homeDir, ".config", "servicehub", "providers.yaml"))
	}

	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			return path, nil
		}
	}
	return "", nil
}

func normalizeConfig(cfg ProviderConfig, getenv func(string) string) (Provider, bool) {
	id := normalizeProviderID(cfg.ID)
	if !providerIDRegexp.MatchString(id) {
		return Provider{}, false
	}

	envName := ProviderEnvName(id)
	site := strings.TrimSpace(cfg.Site)
	if v := strings.TrimSpace(getenv(envName + "_OAUTH_SITE")); v != "" {
		site = v
	}

	tokenURL, err := joinURL(site, cfg.TokenURL)
	if err != nil {
		return Provider{}, false
	}
	authorizeURL, err := joinURL(site, cfg.AuthorizeURL)
	if err != nil {
		return Provider{}, false
	}
	profileURL, err := joinURL(site, cfg.ProfileURL)
	if err != nil {
		return Provider{}, false
	}

	scopes := make([]string, 0, len(cfg.Scopes))
	for _, s := range cfg.Scopes {
		if s = strings.TrimSpace(s); s != "" {
			scopes = append(scopes, s)
		}
	}

	p := Provider{
		ID:           id,
		Site:         site,
		TokenURL:     tokenURL,
		AuthorizeURL: authorizeURL,
		ProfileURL:   profileURL,
		Profile:      strings.ToLower(strings.TrimSpace(cfg.Profile)),
		Scopes:       scopes,
		KeyEnv:       envName + "_OAUTH_KEY",
		SecretEnv:    envName + "_OAUTH_SECRET",
	}
	p.clientID = strings.TrimSpace(getenv(p.KeyEnv))
	p.clientSecret = strings.TrimSpace(getenv(p.SecretEnv))
	p.Configured = p.clientID != "" && p.clientSecret != ""
	return p, true
}

// joinURL resolves ref against site the way browsers resolve links:
// absolute refs win, rooted refs replace the site's path.
func joinURL(site, ref string) (string, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return "", nil
	}
	refURL, err := url.Parse(ref)
	if err != nil {
		return "", err
	}
	if refURL.IsAbs() || site == "" {
		return refURL.String(), nil
	}
	base, err := url.Parse(site)
	if err != nil {
		return "", err
	}
	return base.ResolveReference(refURL).String(), nil
}

func normalizeProviderID(id string) string {
	return strings.ToLower(strings.TrimSpace(id))
}
