package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/pysugar/oauth-service-hub/internal/auth/callback"
	"github.com/pysugar/oauth-service-hub/internal/auth/token"
	"github.com/pysugar/oauth-service-hub/internal/db"
	"github.com/pysugar/oauth-service-hub/internal/db/models"
	"github.com/pysugar/oauth-service-hub/internal/providers/catalog"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// statusFor maps domain errors to HTTP status codes.
func statusFor(err error) int {
	var (
		verr *models.ValidationError
		rerr *token.RefreshError
	)
	switch {
	case errors.Is(err, db.ErrNotFound):
		return http.StatusNotFound
	case errors.As(err, &verr):
		return http.StatusUnprocessableEntity
	case errors.Is(err, callback.ErrMalformedPayload):
		return http.StatusBadRequest
	case errors.Is(err, catalog.ErrUnknownProvider):
		return http.StatusNotFound
	case errors.As(err, &rerr):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func writeDomainError(w http.ResponseWriter, err error) {
	writeError(w, statusFor(err), err.Error())
}

func idParam(r *http.Request) (uint, bool) {
	id, err := strconv.ParseUint(chi.URLParam(r, "id"), 10, 32)
	if err != nil || id == 0 {
		return 0, false
	}
	return uint(id), true
}

// ServiceView is the API representation of a service.
type ServiceView struct {
	ID        uint           `json:"id"`
	Provider  string         `json:"provider"`
	Name      string         `json:"name"`
	UID       string         `json:"uid"`
	UserID    uint           `json:"user_id"`
	Global    bool           `json:"global"`
	Owned     bool           `json:"owned"`
	ExpiresAt *time.Time     `json:"expires_at,omitempty"`
	IsValid   bool           `json:"is_valid"`
	Options   map[string]any `json:"options,omitempty"`
}

func newServiceView(svc *models.Service, userID uint, now time.Time) ServiceView {
	return ServiceView{
		ID:        svc.ID,
		Provider:  svc.Provider,
		Name:      svc.Name,
		UID:       svc.UID,
		UserID:    svc.UserID,
		Global:    svc.Global,
		Owned:     svc.UserID == userID,
		ExpiresAt: svc.ExpiresAt,
		IsValid:   !svc.Expired(now),
		Options:   svc.Options,
	}
}
