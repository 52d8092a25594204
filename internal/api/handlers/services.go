package handlers

import (
	"net/http"
	"time"

	"github.com/pysugar/oauth-service-hub/internal/api/middleware"
	"github.com/pysugar/oauth-service-hub/internal/auth/token"
	"github.com/pysugar/oauth-service-hub/internal/db"
	"github.com/pysugar/oauth-service-hub/internal/db/models"
	"gorm.io/gorm"
)

// ServicesHandler handles GET /api/services
func ServicesHandler(database *gorm.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, _ := middleware.UserIDFrom(r.Context())
		services, err := db.ServicesAvailableToUser(database.WithContext(r.Context()), userID, r.URL.Query().Get("order"))
		if err != nil {
			writeDomainError(w, err)
			return
		}

		now := time.Now()
		views := make([]ServiceView, 0, len(services))
		for i := range services {
			views = append(views, newServiceView(&services[i], userID, now))
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"services": views,
			"count":    len(views),
		})
	}
}

// loadService resolves {id} to a service the acting user may see. With
// ownerOnly, services merely shared with the user are rejected.
func loadService(w http.ResponseWriter, r *http.Request, database *gorm.DB, ownerOnly bool) (*models.Service, uint, bool) {
	userID, _ := middleware.UserIDFrom(r.Context())
	id, ok := idParam(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid service id")
		return nil, 0, false
	}
	svc, err := db.FindService(database.WithContext(r.Context()), id)
	if err != nil {
		writeDomainError(w, err)
		return nil, 0, false
	}
	if !svc.AvailableTo(userID) {
		writeError(w, http.StatusNotFound, db.ErrNotFound.Error())
		return nil, 0, false
	}
	if ownerOnly && svc.UserID != userID {
		writeError(w, http.StatusForbidden, "only the owner can change this service")
		return nil, 0, false
	}
	return svc, userID, true
}

// ToggleServiceHandler handles POST /api/services/{id}/toggle
func ToggleServiceHandler(database *gorm.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		svc, userID, ok := loadService(w, r, database, true)
		if !ok {
			return
		}
		if err := db.ToggleAvailability(r.Context(), database, svc); err != nil {
			writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, newServiceView(svc, userID, time.Now()))
	}
}

// DeleteServiceHandler handles DELETE /api/services/{id}
func DeleteServiceHandler(database *gorm.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		svc, _, ok := loadService(w, r, database, true)
		if !ok {
			return
		}
		if err := db.DestroyService(r.Context(), database, svc); err != nil {
			writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"success": true})
	}
}

// PrepareServiceHandler handles POST /api/services/{id}/prepare, refreshing
// the token only when it has expired.
func PrepareServiceHandler(database *gorm.DB, tokenMgr *token.Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		svc, userID, ok := loadService(w, r, database, false)
		if !ok {
			return
		}
		if err := tokenMgr.PrepareForUse(r.Context(), svc); err != nil {
			writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, newServiceView(svc, userID, tokenMgr.Now()))
	}
}

// RefreshServiceHandler handles POST /api/services/{id}/refresh
func RefreshServiceHandler(database *gorm.DB, tokenMgr *token.Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		svc, userID, ok := loadService(w, r, database, true)
		if !ok {
			return
		}
		if err := tokenMgr.RefreshToken(r.Context(), svc); err != nil {
			writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, newServiceView(svc, userID, tokenMgr.Now()))
	}
}

// RefreshHandler handles POST /api/refresh, refreshing every expired service
func RefreshHandler(tokenMgr *token.Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		count, failures, err := tokenMgr.RefreshExpired(r.Context())
		if err != nil {
			writeDomainError(w, err)
			return
		}

		failed := make(map[uint]string, len(failures))
		for id, ferr := range failures {
			failed[id] = ferr.Error()
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"status":    "ok",
			"refreshed": count,
			"failed":    failed,
		})
	}
}
