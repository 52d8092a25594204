package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/pysugar/oauth-service-hub/internal/api/middleware"
	"github.com/pysugar/oauth-service-hub/internal/db/models"
	"gorm.io/gorm"
)

// AgentsHandler returns the acting user's agents
func AgentsHandler(database *gorm.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, _ := middleware.UserIDFrom(r.Context())

		var agents []models.Agent
		if err := database.WithContext(r.Context()).Where("user_id = ?", userID).Order("id").Find(&agents).Error; err != nil {
			writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"agents": agents,
			"count":  len(agents),
		})
	}
}

// CreateAgentHandler creates an agent owned by the acting user
func CreateAgentHandler(database *gorm.DB) http.HandlerFunc {
	type request struct {
		Name            string `json:"name"`
		Type            string `json:"type"`
		ServiceID       *uint  `json:"service_id"`
		RequiresService bool   `json:"requires_service"`
	}

	return func(w http.ResponseWriter, r *http.Request) {
		userID, _ := middleware.UserIDFrom(r.Context())

		var req request
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}

		agent := models.Agent{
			UserID:          userID,
			Name:            req.Name,
			Type:            req.Type,
			ServiceID:       req.ServiceID,
			RequiresService: req.RequiresService,
		}
		if err := database.WithContext(r.Context()).Create(&agent).Error; err != nil {
			writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, agent)
	}
}
