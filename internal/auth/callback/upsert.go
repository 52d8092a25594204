package callback

import (
	"context"
	"log"
	"strings"
	"time"

	"github.com/pysugar/oauth-service-hub/internal/db"
	"github.com/pysugar/oauth-service-hub/internal/db/models"
	"github.com/pysugar/oauth-service-hub/internal/logging"
	"gorm.io/gorm"
)

// InitializeOrUpdate finds the service for (provider, uid) or starts a new one,
// then assigns credentials, name and options from p. The result is not saved
// so the caller can attach an owner first.
func InitializeOrUpdate(database *gorm.DB, p Payload) (*models.Service, error) {
	provider := strings.TrimSpace(p.Provider)
	if provider == "" {
		return nil, malformed("payload has no provider")
	}
	if p.Credentials == nil {
		return nil, malformed("%s payload has no credentials", provider)
	}
	opts, err := ProviderSpecificOptions(p)
	if err != nil {
		return nil, err
	}

	uid := string(p.UID)
	svc, err := db.FindServiceByProviderUID(database, provider, uid)
	if err != nil {
		return nil, err
	}
	if svc == nil {
		svc = &models.Service{Provider: provider, UID: uid}
	}

	svc.Token = p.Credentials.Token
	svc.Secret = p.Credentials.Secret
	svc.Name = opts.Name
	svc.RefreshToken = p.Credentials.RefreshToken
	svc.ExpiresAt = nil
	if p.Credentials.ExpiresAt != nil {
		expiresAt := time.Unix(*p.Credentials.ExpiresAt, 0).UTC()
		svc.ExpiresAt = &expiresAt
	}
	svc.Options = opts.Map()
	return svc, nil
}

// Link upserts the service for p and saves it, making userID the owner when
// the service is new.
func Link(ctx context.Context, database *gorm.DB, p Payload, userID uint) (*models.Service, error) {
	svc, err := InitializeOrUpdate(database, p)
	if err != nil {
		return nil, err
	}
	created := svc.ID == 0
	if created {
		svc.UserID = userID
	}
	if err := db.SaveService(database.WithContext(ctx), svc); err != nil {
		return nil, err
	}

	if created {
		log.Printf("%s🔗 Linked new %s service %d for user %d", logging.Tag(ctx), svc.Provider, svc.ID, userID)
	} else {
		log.Printf("%s🔗 Updated %s service %d", logging.Tag(ctx), svc.Provider, svc.ID)
	}
	return svc, nil
}
