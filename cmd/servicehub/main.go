package main

import (
	"log"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/pysugar/oauth-service-hub/internal/api/handlers"
	"github.com/pysugar/oauth-service-hub/internal/api/middleware"
	"github.com/pysugar/oauth-service-hub/internal/auth/flow"
	"github.com/pysugar/oauth-service-hub/internal/auth/token"
	"github.com/pysugar/oauth-service-hub/internal/db"
	"github.com/pysugar/oauth-service-hub/internal/logging"
	"github.com/pysugar/oauth-service-hub/internal/metrics"
	"github.com/pysugar/oauth-service-hub/internal/providers/catalog"
	"github.com/pysugar/oauth-service-hub/internal/version"
	"github.com/rs/cors"
)

func getenv(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func main() {
	// Initialize database
	database, err := db.InitDB(getenv("HUB_DB_PATH", "servicehub.db"))
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}

	// Provider registry
	registry, err := catalog.Load(os.Getenv("HUB_PROVIDERS_FILE"))
	if err != nil {
		log.Fatalf("Failed to load providers: %v", err)
	}
	for _, p := range registry.Providers() {
		if !p.Configured {
			log.Printf("⚠️ Provider %s has no client credentials (%s / %s)", p.ID, p.KeyEnv, p.SecretEnv)
		}
	}

	refreshTimeout, err := time.ParseDuration(getenv("HUB_REFRESH_TIMEOUT", "30s"))
	if err != nil {
		log.Fatalf("Invalid HUB_REFRESH_TIMEOUT: %v", err)
	}
	client := &http.Client{Timeout: refreshTimeout}

	tokenManager := token.NewManager(database, registry, client)

	oauthFlow := flow.NewHandler(database, registry, flow.NewStateStore(flow.DefaultStateTTL), client)
	oauthFlow.PublicURL = os.Getenv("HUB_PUBLIC_URL")

	adminAuth := middleware.AdminAuth(os.Getenv("HUB_ADMIN_PASSWORD"))

	// Create router
	r := chi.NewRouter()
	r.Use(logging.Middleware)
	r.Use(chimiddleware.Logger)
	r.Use(chimiddleware.Recoverer)

	// OAuth flow: the provider redirects the browser here, the state identifies the user
	r.Get("/auth/{provider}/callback", oauthFlow.HandleCallback)

	r.With(adminAuth).Get("/metrics", metrics.Handler().ServeHTTP)

	r.Route("/api", func(r chi.Router) {
		r.Use(middleware.APIKeyAuth(database))

		r.Get("/version", handlers.VersionHandler())
		r.Get("/providers", handlers.ProvidersHandler(registry))
		r.Post("/refresh", handlers.RefreshHandler(tokenManager))

		// API Key management
		r.With(adminAuth).Get("/config/apikey", handlers.GetAPIKeyHandler(database))
		r.With(adminAuth).Post("/config/apikey/regenerate", handlers.RegenerateAPIKeyHandler(database))

		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireUser)

			r.Post("/auth/{provider}/login", oauthFlow.HandleLogin)

			r.Get("/services", handlers.ServicesHandler(database))
			r.Delete("/services/{id}", handlers.DeleteServiceHandler(database))
			r.Post("/services/{id}/toggle", handlers.ToggleServiceHandler(database))
			r.Post("/services/{id}/prepare", handlers.PrepareServiceHandler(database, tokenManager))
			r.Post("/services/{id}/refresh", handlers.RefreshServiceHandler(database, tokenManager))

			r.Get("/agents", handlers.AgentsHandler(database))
			r.Post("/agents", handlers.CreateAgentHandler(database))
		})
	})

	c := cors.New(cors.Options{
		AllowedOrigins: strings.Split(getenv("HUB_CORS_ORIGINS", "*"), ","),
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete},
		AllowedHeaders: []string{"Content-Type", "Authorization", "X-API-Key", middleware.HeaderUserID, logging.HeaderRequestID},
		ExposedHeaders: []string{logging.HeaderRequestID},
	})

	// Start server
	host := getenv("HOST", "127.0.0.1") // set HOST=0.0.0.0 for LAN access
	addr := host + ":" + getenv("PORT", "8080")

	log.Printf("🚀 Service hub %s starting on http://%s", version.String(), addr)
	log.Printf("🔌 Connect: POST http://%s/api/auth/{provider}/login", addr)
	log.Printf("📊 Metrics: http://%s/metrics", addr)

	if err := http.ListenAndServe(addr, c.Handler(r)); err != nil {
		log.Fatalf("Server failed: %v", err)
	}
}
