package handlers

import (
	"log"
	"net/http"
	"strings"

	"github.com/pysugar/oauth-service-hub/internal/db"
	"github.com/pysugar/oauth-service-hub/internal/providers/catalog"
	"github.com/pysugar/oauth-service-hub/internal/version"
	"gorm.io/gorm"
)

// GetAPIKeyHandler returns the current API key, masked unless reveal=true
func GetAPIKeyHandler(database *gorm.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		apiKey := db.GetAPIKey(database)
		masked := r.URL.Query().Get("reveal") != "true"
		if masked {
			apiKey = maskAPIKey(apiKey)
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"api_key": apiKey,
			"masked":  masked,
		})
	}
}

// RegenerateAPIKeyHandler generates a new API key
func RegenerateAPIKeyHandler(database *gorm.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		apiKey, err := db.RegenerateAPIKey(database)
		if err != nil {
			log.Printf("❌ Failed to regenerate API key: %v", err)
			writeError(w, http.StatusInternalServerError, "failed to regenerate API key")
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"api_key": apiKey,
			"masked":  false,
		})
	}
}

func maskAPIKey(apiKey string) string {
	if len(apiKey) <= 10 {
		return "***"
	}
	return apiKey[:6] + strings.Repeat("*", len(apiKey)-10) + apiKey[len(apiKey)-4:]
}

// ProvidersHandler lists registered providers and whether client credentials are set
func ProvidersHandler(registry *catalog.Registry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		providers := registry.Providers()
		writeJSON(w, http.StatusOK, map[string]any{
			"providers": providers,
			"count":     len(providers),
		})
	}
}

// VersionHandler reports build information
func VersionHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{
			"version":    version.Version,
			"commit":     version.Commit,
			"build_time": version.BuildTime,
		})
	}
}
