// Package flow runs the OAuth authorization-code flow that links a provider
// account to a user as a Service.
package flow

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/pysugar/oauth-service-hub/internal/auth/callback"
	"github.com/pysugar/oauth-service-hub/internal/providers/catalog"
	"golang.org/x/oauth2"
	"gorm.io/gorm"
)

// Handler serves the login and callback endpoints for every registered provider.
type Handler struct {
	db       *gorm.DB
	registry *catalog.Registry
	states   *StateStore
	client   *http.Client

	// PublicURL overrides the scheme and host used in redirect URLs.
	PublicURL string
}

// NewHandler creates a flow handler. A nil client uses a 30s timeout client.
func NewHandler(database *gorm.DB, registry *catalog.Registry, states *StateStore, client *http.Client) *Handler {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	if states == nil {
		states = NewStateStore(DefaultStateTTL)
	}
	return &Handler{db: database, registry: registry, states: states, client: client}
}

// oauthConfig returns the OAuth2 config for a registered provider.
func oauthConfig(p catalog.Provider, redirectURL string) *oauth2.Config {
	return &oauth2.Config{
		ClientID:     p.ClientID(),
		ClientSecret: p.ClientSecret(),
		RedirectURL:  redirectURL,
		Scopes:       p.Scopes,
		Endpoint: oauth2.Endpoint{
			AuthURL:  p.AuthorizeURL,
			TokenURL: p.TokenURL,
		},
	}
}

func (h *Handler) redirectURL(r *http.Request, provider string) string {
	base := strings.TrimRight(h.PublicURL, "/")
	if base == "" {
		// Dynamically construct redirect URL from the request
		scheme := "http"
		if r.TLS != nil || r.Header.Get("X-Forwarded-Proto") == "https" {
			scheme = "https"
		}
		base = fmt.Sprintf("%s://%s", scheme, r.Host)
	}
	return fmt.Sprintf("%s/auth/%s/callback", base, provider)
}

func (h *Handler) clientContext(ctx context.Context) context.Context {
	return context.WithValue(ctx, oauth2.HTTPClient, h.client)
}

func profileKind(p catalog.Provider) callback.Kind {
	if p.Profile != "" {
		return callback.KindOf(p.Profile)
	}
	return callback.KindOf(p.ID)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
