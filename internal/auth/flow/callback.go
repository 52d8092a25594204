package flow

import (
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/pysugar/oauth-service-hub/internal/auth/callback"
	"github.com/pysugar/oauth-service-hub/internal/db/models"
	"github.com/pysugar/oauth-service-hub/internal/logging"
	"github.com/pysugar/oauth-service-hub/internal/util"
	"golang.org/x/oauth2"
)

// HandleCallback completes the flow: verifies state, exchanges the code,
// reads the provider profile and links the account as a service.
func (h *Handler) HandleCallback(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	q := r.URL.Query()

	userID, provider, ok := h.states.Consume(q.Get("state"))
	if !ok || provider != chi.URLParam(r, "provider") {
		writeError(w, http.StatusBadRequest, "invalid state token")
		return
	}
	if e := q.Get("error"); e != "" {
		writeError(w, http.StatusBadRequest, "authorization denied: "+e)
		return
	}

	p, ok := h.registry.Provider(provider)
	if !ok {
		writeError(w, http.StatusNotFound, "unknown provider")
		return
	}
	config := oauthConfig(p, h.redirectURL(r, p.ID))

	clientCtx := h.clientContext(ctx)
	token, err := config.Exchange(clientCtx, q.Get("code"))
	if err != nil {
		log.Printf("%s❌ %s code exchange failed: %v", logging.Tag(ctx), provider, err)
		writeError(w, http.StatusBadGateway, fmt.Sprintf("token exchange failed: %v", err))
		return
	}

	body, err := fetchProfile(config.Client(clientCtx, token), p.ProfileURL)
	if err != nil {
		log.Printf("%s❌ %s profile fetch failed: %v", logging.Tag(ctx), provider, err)
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}

	payload, err := decodeProfile(profileKind(p), body)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	payload.Provider = p.ID
	payload.Credentials = credentialsFrom(token)

	svc, err := callback.Link(ctx, h.db, payload, userID)
	if err != nil {
		var verr *models.ValidationError
		switch {
		case errors.Is(err, callback.ErrMalformedPayload):
			writeError(w, http.StatusBadRequest, err.Error())
		case errors.As(err, &verr):
			writeError(w, http.StatusUnprocessableEntity, err.Error())
		default:
			writeError(w, http.StatusInternalServerError, "failed to save service")
		}
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"service": svc})
}

func credentialsFrom(token *oauth2.Token) *callback.Credentials {
	creds := &callback.Credentials{
		Token:        token.AccessToken,
		RefreshToken: token.RefreshToken,
	}
	if !token.Expiry.IsZero() {
		exp := token.Expiry.Unix()
		creds.ExpiresAt = &exp
	}
	return creds
}

func fetchProfile(client *http.Client, profileURL string) ([]byte, error) {
	if profileURL == "" {
		return nil, fmt.Errorf("provider has no profile url")
	}
	req, err := http.NewRequest(http.MethodGet, profileURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to get profile: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("failed to read profile: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("profile request returned %d: %s", resp.StatusCode, util.TruncateBytes(body))
	}
	return body, nil
}
