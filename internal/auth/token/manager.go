package token

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/pysugar/oauth-service-hub/internal/db"
	"github.com/pysugar/oauth-service-hub/internal/db/models"
	"github.com/pysugar/oauth-service-hub/internal/logging"
	"github.com/pysugar/oauth-service-hub/internal/metrics"
	"github.com/pysugar/oauth-service-hub/internal/util"
	"golang.org/x/sync/singleflight"
	"gorm.io/gorm"
)

const maxResponseBytes = 1 << 20

// ProviderResolver supplies the token endpoint and OAuth client for a provider.
type ProviderResolver interface {
	TokenEndpoint(provider string) (string, error)
	ClientCredentials(provider string) (clientID, clientSecret string)
}

// Manager handles token lifecycle: expiry checks and refresh on demand.
type Manager struct {
	db        *gorm.DB
	providers ProviderResolver
	client    *http.Client
	group     singleflight.Group

	// Now is the clock used for expiry decisions.
	Now func() time.Time
}

// NewManager creates a new token manager. A nil client uses a 30s timeout client.
func NewManager(database *gorm.DB, providers ProviderResolver, client *http.Client) *Manager {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &Manager{
		db:        database,
		providers: providers,
		client:    client,
		Now:       time.Now,
	}
}

type refreshed struct {
	token        string
	refreshToken string
	expiresAt    time.Time
}

type tokenResponse struct {
	ExpiresIn    *int64 `json:"expires_in"`
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

// PrepareForUse refreshes svc's token when it has expired. Services without
// an expiry, or not yet expired, are left alone.
func (m *Manager) PrepareForUse(ctx context.Context, svc *models.Service) error {
	if !svc.Expired(m.Now()) {
		return nil
	}
	log.Printf("%s⚠️ Token for service %d (%s) expired at %s, refreshing...",
		logging.Tag(ctx), svc.ID, svc.Provider, svc.ExpiresAt.Format(time.RFC3339))
	return m.RefreshToken(ctx, svc)
}

// RefreshToken exchanges svc's refresh token for a new access token and
// persists the result. Concurrent refreshes of the same service in this
// process share one round-trip. On failure svc is left unchanged.
func (m *Manager) RefreshToken(ctx context.Context, svc *models.Service) error {
	key := strconv.FormatUint(uint64(svc.ID), 10)

	// The shared refresh outlives any single caller; the client timeout bounds it.
	snapshot := *svc
	ch := m.group.DoChan(key, func() (any, error) {
		return m.refresh(context.WithoutCancel(ctx), snapshot)
	})

	var result singleflight.Result
	select {
	case <-ctx.Done():
		log.Printf("%s⚠️ Stopped waiting for refresh of service %d (%s): %v", logging.Tag(ctx), svc.ID, svc.Provider, ctx.Err())
		return &RefreshError{Provider: svc.Provider, ServiceID: svc.ID, Err: ctx.Err()}
	case result = <-ch:
	}
	if err := result.Err; err != nil {
		metrics.TokenRefreshes.WithLabelValues(svc.Provider, metrics.ResultFailure).Inc()
		log.Printf("%s❌ Refresh token failed for service %d (%s): %v", logging.Tag(ctx), svc.ID, svc.Provider, err)
		return err
	}

	res := result.Val.(refreshed)
	expiresAt := res.expiresAt
	svc.Token = res.token
	svc.RefreshToken = res.refreshToken
	svc.ExpiresAt = &expiresAt

	metrics.TokenRefreshes.WithLabelValues(svc.Provider, metrics.ResultSuccess).Inc()
	log.Printf("%s✅ Refreshed token for service %d (%s), token %s expires %s",
		logging.Tag(ctx), svc.ID, svc.Provider, util.MaskSecret(res.token), expiresAt.Format(time.RFC3339))
	return nil
}

func (m *Manager) refresh(ctx context.Context, svc models.Service) (refreshed, error) {
	fail := func(status int, err error) (refreshed, error) {
		return refreshed{}, &RefreshError{Provider: svc.Provider, ServiceID: svc.ID, StatusCode: status, Err: err}
	}

	endpoint, err := m.providers.TokenEndpoint(svc.Provider)
	if err != nil {
		return fail(0, err)
	}
	u, err := url.Parse(endpoint)
	if err != nil {
		return fail(0, fmt.Errorf("invalid token endpoint %q: %w", endpoint, err))
	}
	clientID, clientSecret := m.providers.ClientCredentials(svc.Provider)
	q := u.Query()
	q.Set("type", "refresh")
	q.Set("client_id", clientID)
	q.Set("client_secret", clientSecret)
	q.Set("refresh_token", svc.RefreshToken)
	redacted := *u
	redacted.RawQuery = ""
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.String(), nil)
	if err != nil {
		return fail(0, err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := m.client.Do(req)
	if err != nil {
		// the query carries the client secret and refresh token
		var uerr *url.Error
		if errors.As(err, &uerr) {
			uerr.URL = redacted.String()
		}
		return fail(0, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return fail(resp.StatusCode, err)
	}
	if resp.StatusCode != http.StatusOK {
		return fail(resp.StatusCode, fmt.Errorf("unexpected response: %s", util.TruncateBytes(body)))
	}

	var data tokenResponse
	if err := json.Unmarshal(body, &data); err != nil {
		return fail(resp.StatusCode, fmt.Errorf("%w: %v", ErrMalformedResponse, err))
	}
	switch {
	case data.ExpiresIn == nil:
		return fail(resp.StatusCode, fmt.Errorf("%w: missing expires_in", ErrMalformedResponse))
	case strings.TrimSpace(data.AccessToken) == "":
		return fail(resp.StatusCode, fmt.Errorf("%w: missing access_token", ErrMalformedResponse))
	}

	res := refreshed{
		token:        data.AccessToken,
		refreshToken: svc.RefreshToken,
		expiresAt:    m.Now().UTC().Add(time.Duration(*data.ExpiresIn) * time.Second),
	}
	// Persist rotated refresh token if provided
	if strings.TrimSpace(data.RefreshToken) != "" {
		res.refreshToken = data.RefreshToken
	}

	if err := db.UpdateCredentials(m.db.WithContext(ctx), svc.ID, res.token, res.refreshToken, &res.expiresAt); err != nil {
		return refreshed{}, &db.PersistenceError{Op: "save refreshed token", Err: err}
	}
	return res, nil
}

// RefreshExpired refreshes every expired service and returns the failures by service ID.
func (m *Manager) RefreshExpired(ctx context.Context) (int, map[uint]error, error) {
	services, err := db.ExpiredServices(m.db.WithContext(ctx), m.Now())
	if err != nil {
		return 0, nil, err
	}

	failures := make(map[uint]error)
	count := 0
	for i := range services {
		if err := m.RefreshToken(ctx, &services[i]); err != nil {
			failures[services[i].ID] = err
			continue
		}
		count++
	}
	log.Printf("%s🔄 Refreshed %d of %d expired services", logging.Tag(ctx), count, len(services))
	return count, failures, nil
}
