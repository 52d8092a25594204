package token

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/pysugar/oauth-service-hub/internal/db"
	"github.com/pysugar/oauth-service-hub/internal/db/dbtest"
	"github.com/pysugar/oauth-service-hub/internal/db/models"
	"github.com/pysugar/oauth-service-hub/internal/providers/catalog"
	"gorm.io/gorm"
)

var testNow = time.Date(2026, 10, 16, 12, 0, 0, 0, time.UTC)

type staticResolver struct {
	endpoint string
}

func (r staticResolver) TokenEndpoint(provider string) (string, error) {
	if provider == "unknown" {
		return "", fmt.Errorf("%w: %q", catalog.ErrUnknownProvider, provider)
	}
	return r.endpoint, nil
}

func (r staticResolver) ClientCredentials(string) (string, string) {
	return "client-id", "client-secret"
}

type tokenServer struct {
	*httptest.Server
	calls   atomic.Int32
	lastReq atomic.Pointer[http.Request]
}

func newTokenServer(t *testing.T, status int, body string) *tokenServer {
	t.Helper()
	ts := &tokenServer{}
	ts.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ts.calls.Add(1)
		ts.lastReq.Store(r)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		fmt.Fprint(w, body)
	}))
	t.Cleanup(ts.Close)
	return ts
}

// newBlockingTokenServer holds every request until release is called.
func newBlockingTokenServer(t *testing.T, body string) (*tokenServer, <-chan struct{}, func()) {
	t.Helper()
	started := make(chan struct{}, 8)
	hold := make(chan struct{})
	var once sync.Once
	release := func() { once.Do(func() { close(hold) }) }

	ts := &tokenServer{}
	ts.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ts.calls.Add(1)
		ts.lastReq.Store(r)
		started <- struct{}{}
		<-hold
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, body)
	}))
	t.Cleanup(ts.Close)
	t.Cleanup(release)
	return ts, started, release
}

func newTestManager(database *gorm.DB, endpoint string) *Manager {
	m := NewManager(database, staticResolver{endpoint: endpoint + "/authorization/token"}, nil)
	m.Now = func() time.Time { return testNow }
	return m
}

func expiringService(t *testing.T, database *gorm.DB, expiresAt *time.Time) *models.Service {
	t.Helper()
	svc := dbtest.CreateService(t, database, 1, "37signals", "9")
	svc.RefreshToken = "refresh-old"
	svc.ExpiresAt = expiresAt
	if err := db.SaveService(database, svc); err != nil {
		t.Fatalf("save service: %v", err)
	}
	return svc
}

func timePtr(t time.Time) *time.Time { return &t }

func TestPrepareForUse_RefreshesOnlyExpiredTokens(t *testing.T) {
	tests := []struct {
		name      string
		expiresAt *time.Time
		wantCalls int32
	}{
		{name: "no expiry", expiresAt: nil, wantCalls: 0},
		{name: "future expiry", expiresAt: timePtr(testNow.Add(time.Minute)), wantCalls: 0},
		{name: "exactly now", expiresAt: timePtr(testNow), wantCalls: 0},
		{name: "past expiry", expiresAt: timePtr(testNow.Add(-time.Second)), wantCalls: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			database := dbtest.Open(t)
			ts := newTokenServer(t, http.StatusOK, `{"expires_in": 3600, "access_token": "new-token", "refresh_token": "refresh-new"}`)
			m := newTestManager(database, ts.URL)
			svc := expiringService(t, database, tt.expiresAt)

			if err := m.PrepareForUse(context.Background(), svc); err != nil {
				t.Fatalf("prepare: %v", err)
			}
			if got := ts.calls.Load(); got != tt.wantCalls {
				t.Fatalf("expected %d refresh calls, got %d", tt.wantCalls, got)
			}
		})
	}
}

func TestRefreshToken_UpdatesAndPersists(t *testing.T) {
	database := dbtest.Open(t)
	ts := newTokenServer(t, http.StatusOK, `{"expires_in": 1209600, "access_token": "new-token", "refresh_token": "refresh-new"}`)
	m := newTestManager(database, ts.URL)
	svc := expiringService(t, database, timePtr(testNow.Add(-time.Hour)))

	if err := m.RefreshToken(context.Background(), svc); err != nil {
		t.Fatalf("refresh: %v", err)
	}

	wantExpiry := testNow.Add(1209600 * time.Second)
	if svc.Token != "new-token" || svc.RefreshToken != "refresh-new" || !svc.ExpiresAt.Equal(wantExpiry) {
		t.Fatalf("unexpected service after refresh: token=%s refresh=%s expires=%v", svc.Token, svc.RefreshToken, svc.ExpiresAt)
	}

	stored, err := db.FindService(database, svc.ID)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if stored.Token != "new-token" || stored.RefreshToken != "refresh-new" || !stored.ExpiresAt.Equal(wantExpiry) {
		t.Fatalf("expected refresh to be persisted, got %+v", stored)
	}

	req := ts.lastReq.Load()
	if req.Method != http.MethodPost || req.URL.Path != "/authorization/token" {
		t.Fatalf("unexpected request %s %s", req.Method, req.URL.Path)
	}
	q := req.URL.Query()
	if q.Get("type") != "refresh" || q.Get("client_id") != "client-id" ||
		q.Get("client_secret") != "client-secret" || q.Get("refresh_token") != "refresh-old" {
		t.Fatalf("unexpected refresh parameters %v", q)
	}
}

func TestRefreshToken_KeepsRefreshTokenWhenOmitted(t *testing.T) {
	for name, body := range map[string]string{
		"omitted": `{"expires_in": 60, "access_token": "new-token"}`,
		"empty":   `{"expires_in": 60, "access_token": "new-token", "refresh_token": ""}`,
	} {
		t.Run(name, func(t *testing.T) {
			database := dbtest.Open(t)
			ts := newTokenServer(t, http.StatusOK, body)
			m := newTestManager(database, ts.URL)
			svc := expiringService(t, database, timePtr(testNow.Add(-time.Hour)))

			if err := m.RefreshToken(context.Background(), svc); err != nil {
				t.Fatalf("refresh: %v", err)
			}
			if svc.Token != "new-token" || svc.RefreshToken != "refresh-old" {
				t.Fatalf("expected refresh token to be kept, got token=%s refresh=%s", svc.Token, svc.RefreshToken)
			}
		})
	}
}

func TestRefreshToken_Failures(t *testing.T) {
	tests := []struct {
		name          string
		status        int
		body          string
		wantStatus    int
		wantMalformed bool
	}{
		{name: "non-200", status: http.StatusUnauthorized, body: `{"error":"invalid_grant"}`, wantStatus: http.StatusUnauthorized},
		{name: "invalid json", status: http.StatusOK, body: `<html>`, wantStatus: http.StatusOK, wantMalformed: true},
		{name: "missing expires_in", status: http.StatusOK, body: `{"access_token":"x"}`, wantStatus: http.StatusOK, wantMalformed: true},
		{name: "missing access_token", status: http.StatusOK, body: `{"expires_in":60}`, wantStatus: http.StatusOK, wantMalformed: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			database := dbtest.Open(t)
			ts := newTokenServer(t, tt.status, tt.body)
			m := newTestManager(database, ts.URL)
			expired := testNow.Add(-time.Hour)
			svc := expiringService(t, database, &expired)
			before := *svc

			err := m.PrepareForUse(context.Background(), svc)

			var rerr *RefreshError
			if !errors.As(err, &rerr) {
				t.Fatalf("expected RefreshError, got %v", err)
			}
			if rerr.StatusCode != tt.wantStatus {
				t.Fatalf("expected status %d, got %d", tt.wantStatus, rerr.StatusCode)
			}
			if got := errors.Is(err, ErrMalformedResponse); got != tt.wantMalformed {
				t.Fatalf("expected malformed=%v, got %v (%v)", tt.wantMalformed, got, err)
			}
			if svc.Token != before.Token || svc.RefreshToken != before.RefreshToken || !svc.ExpiresAt.Equal(expired) {
				t.Fatalf("expected service to keep stale credentials, got %+v", svc)
			}
			stored, _ := db.FindService(database, svc.ID)
			if stored.Token != before.Token {
				t.Fatalf("expected no persisted update, got token %s", stored.Token)
			}
		})
	}
}

func TestRefreshToken_NetworkFailure(t *testing.T) {
	database := dbtest.Open(t)
	ts := newTokenServer(t, http.StatusOK, `{}`)
	ts.Close()
	m := newTestManager(database, ts.URL)
	svc := expiringService(t, database, timePtr(testNow.Add(-time.Hour)))

	err := m.RefreshToken(context.Background(), svc)
	var rerr *RefreshError
	if !errors.As(err, &rerr) || rerr.StatusCode != 0 {
		t.Fatalf("expected transport RefreshError, got %v", err)
	}
	for _, secret := range []string{"client-secret", "refresh-old", "client_secret="} {
		if strings.Contains(err.Error(), secret) {
			t.Fatalf("error exposes %q: %v", secret, err)
		}
	}
	if !strings.Contains(err.Error(), "/authorization/token") {
		t.Fatalf("expected endpoint path in error, got %v", err)
	}
}

func TestRefreshToken_ConcurrentCallersShareOneRequest(t *testing.T) {
	database := dbtest.Open(t)
	ts, started, release := newBlockingTokenServer(t, `{"expires_in": 60, "access_token": "new-token", "refresh_token": "refresh-new"}`)
	m := newTestManager(database, ts.URL)
	svc := expiringService(t, database, timePtr(testNow.Add(-time.Hour)))
	first, second := *svc, *svc

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	firstDone := make(chan error, 1)
	secondDone := make(chan error, 1)
	go func() { firstDone <- m.RefreshToken(ctx, &first) }()
	<-started
	go func() { secondDone <- m.RefreshToken(context.Background(), &second) }()
	time.Sleep(50 * time.Millisecond) // let the second caller join the in-flight refresh

	// the first caller goes away; the shared refresh carries on for the second
	cancel()
	err := <-firstDone
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected first caller to stop with context.Canceled, got %v", err)
	}
	if strings.Contains(err.Error(), "client-secret") {
		t.Fatalf("error exposes client secret: %v", err)
	}
	if first.Token != svc.Token {
		t.Fatalf("expected cancelled caller's service to be unchanged, got %s", first.Token)
	}

	release()
	if err := <-secondDone; err != nil {
		t.Fatalf("second caller: %v", err)
	}
	if got := ts.calls.Load(); got != 1 {
		t.Fatalf("expected one upstream request, got %d", got)
	}
	if second.Token != "new-token" || second.RefreshToken != "refresh-new" {
		t.Fatalf("unexpected second caller service token=%s refresh=%s", second.Token, second.RefreshToken)
	}
	stored, _ := db.FindService(database, svc.ID)
	if stored.Token != "new-token" {
		t.Fatalf("expected refresh to be persisted, got %s", stored.Token)
	}
}

func TestRefreshToken_KeepsConcurrentToggle(t *testing.T) {
	database := dbtest.Open(t)
	ts, started, release := newBlockingTokenServer(t, `{"expires_in": 60, "access_token": "new-token", "refresh_token": "refresh-new"}`)
	m := newTestManager(database, ts.URL)
	svc := expiringService(t, database, timePtr(testNow.Add(-time.Hour)))

	done := make(chan error, 1)
	go func() { done <- m.RefreshToken(context.Background(), svc) }()
	<-started

	other, err := db.FindService(database, svc.ID)
	if err != nil {
		t.Fatalf("find service: %v", err)
	}
	if err := db.ToggleAvailability(context.Background(), database, other); err != nil {
		t.Fatalf("toggle: %v", err)
	}

	release()
	if err := <-done; err != nil {
		t.Fatalf("refresh: %v", err)
	}

	stored, err := db.FindService(database, svc.ID)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if !stored.Global {
		t.Fatal("expected toggle made during the refresh to survive")
	}
	if stored.Token != "new-token" || stored.RefreshToken != "refresh-new" {
		t.Fatalf("expected refreshed credentials, got token=%s refresh=%s", stored.Token, stored.RefreshToken)
	}
}

func TestRefreshToken_DoesNotRecreateDestroyedService(t *testing.T) {
	database := dbtest.Open(t)
	ts, started, release := newBlockingTokenServer(t, `{"expires_in": 60, "access_token": "new-token"}`)
	m := newTestManager(database, ts.URL)
	svc := expiringService(t, database, timePtr(testNow.Add(-time.Hour)))
	before := *svc

	done := make(chan error, 1)
	go func() { done <- m.RefreshToken(context.Background(), svc) }()
	<-started

	if err := db.DestroyService(context.Background(), database, &before); err != nil {
		t.Fatalf("destroy: %v", err)
	}

	release()
	if err := <-done; !errors.Is(err, db.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	var count int64
	if err := database.Model(&models.Service{}).Where("id = ?", before.ID).Count(&count).Error; err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 0 {
		t.Fatalf("expected destroyed service to stay deleted, found %d rows", count)
	}
	if svc.Token != before.Token {
		t.Fatalf("expected service to keep its old token, got %s", svc.Token)
	}
}

func TestRefreshToken_UnknownProvider(t *testing.T) {
	database := dbtest.Open(t)
	m := newTestManager(database, "http://127.0.0.1:0")
	svc := dbtest.CreateService(t, database, 1, "unknown", "1")

	if err := m.RefreshToken(context.Background(), svc); !errors.Is(err, catalog.ErrUnknownProvider) {
		t.Fatalf("expected ErrUnknownProvider, got %v", err)
	}
}

func TestRefreshExpired(t *testing.T) {
	database := dbtest.Open(t)
	ts := newTokenServer(t, http.StatusOK, `{"expires_in": 60, "access_token": "new-token"}`)
	m := newTestManager(database, ts.URL)

	expired := expiringService(t, database, timePtr(testNow.Add(-time.Hour)))
	fresh := dbtest.CreateService(t, database, 1, "37signals", "10")
	fresh.ExpiresAt = timePtr(testNow.Add(time.Hour))
	if err := db.SaveService(database, fresh); err != nil {
		t.Fatalf("save: %v", err)
	}

	count, failures, err := m.RefreshExpired(context.Background())
	if err != nil {
		t.Fatalf("refresh expired: %v", err)
	}
	if count != 1 || len(failures) != 0 || ts.calls.Load() != 1 {
		t.Fatalf("expected one refresh, got count=%d failures=%v calls=%d", count, failures, ts.calls.Load())
	}
	stored, _ := db.FindService(database, expired.ID)
	if stored.Token != "new-token" {
		t.Fatalf("expected expired service to be refreshed, got %s", stored.Token)
	}
}
