package flow

import (
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/pysugar/oauth-service-hub/internal/api/middleware"
	"github.com/pysugar/oauth-service-hub/internal/logging"
	"golang.org/x/oauth2"
)

// HandleLogin starts a connect flow for the authenticated user and returns the
// provider's consent page URL. The client sends the user's browser there; the
// provider then redirects to the public callback carrying the state.
func (h *Handler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFrom(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "missing user")
		return
	}

	p, ok := h.registry.Provider(chi.URLParam(r, "provider"))
	if !ok {
		writeError(w, http.StatusNotFound, "unknown provider")
		return
	}
	if !p.Configured {
		writeError(w, http.StatusServiceUnavailable, "provider credentials are not configured ("+p.KeyEnv+", "+p.SecretEnv+")")
		return
	}

	state := h.states.Issue(userID, p.ID)
	config := oauthConfig(p, h.redirectURL(r, p.ID))
	authorizeURL := config.AuthCodeURL(state, oauth2.AccessTypeOffline)

	log.Printf("%s🔐 Starting %s login for user %d", logging.Tag(r.Context()), p.ID, userID)
	writeJSON(w, http.StatusOK, map[string]string{
		"authorize_url": authorizeURL,
		"state":         state,
	})
}
