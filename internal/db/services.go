package db

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/pysugar/oauth-service-hub/internal/db/models"
	"github.com/pysugar/oauth-service-hub/internal/logging"
	"github.com/pysugar/oauth-service-hub/internal/metrics"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// KeepCriteria selects agents that survive a cascade. The zero value keeps none.
type KeepCriteria struct {
	UserID *uint
}

// KeepOwnedBy keeps agents belonging to userID.
func KeepOwnedBy(userID uint) KeepCriteria {
	return KeepCriteria{UserID: &userID}
}

// FindService loads a service by primary key.
func FindService(database *gorm.DB, id uint) (*models.Service, error) {
	var svc models.Service
	if err := database.First(&svc, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &svc, nil
}

// FindServiceByProviderUID looks a service up by its provider identity.
// A nil service with a nil error means no match.
func FindServiceByProviderUID(database *gorm.DB, provider, uid string) (*models.Service, error) {
	var svc models.Service
	err := database.Where("provider = ? AND uid = ?", provider, uid).Order("id").Take(&svc).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &svc, nil
}

// ServicesAvailableToUser returns services owned by userID or marked global,
// ordered by name ("asc" or "desc"; anything else is "desc").
func ServicesAvailableToUser(database *gorm.DB, userID uint, dir string) ([]models.Service, error) {
	var services []models.Service
	err := database.
		Scopes(AvailableToUser(userID), ByName(dir)).
		Find(&services).Error
	return services, err
}

// AvailableToUser restricts a query to services usable by userID.
func AvailableToUser(userID uint) func(*gorm.DB) *gorm.DB {
	return func(tx *gorm.DB) *gorm.DB {
		return tx.Where("services.user_id = ? OR services.global = ?", userID, true)
	}
}

// ByName orders services by name.
func ByName(dir string) func(*gorm.DB) *gorm.DB {
	desc := !strings.EqualFold(strings.TrimSpace(dir), "asc")
	return func(tx *gorm.DB) *gorm.DB {
		return tx.Order(clause.OrderByColumn{Column: clause.Column{Table: "services", Name: "name"}, Desc: desc})
	}
}

// ExpiredServices returns services whose tokens expired before now.
func ExpiredServices(database *gorm.DB, now time.Time) ([]models.Service, error) {
	var candidates []models.Service
	if err := database.Where("expires_at IS NOT NULL").Order("id").Find(&candidates).Error; err != nil {
		return nil, err
	}
	expired := candidates[:0]
	for _, svc := range candidates {
		if svc.Expired(now) {
			expired = append(expired, svc)
		}
	}
	return expired, nil
}

// SaveService validates and persists a service without touching its agents.
func SaveService(database *gorm.DB, svc *models.Service) error {
	return database.Omit(clause.Associations).Save(svc).Error
}

// DisableAgentsExcept detaches and disables every agent of svc that does not
// match keep. Validation hooks are skipped: a detached agent is normally invalid.
func DisableAgentsExcept(tx *gorm.DB, svc *models.Service, keep KeepCriteria) (int64, error) {
	q := tx.Session(&gorm.Session{SkipHooks: true}).
		Model(&models.Agent{}).
		Where("service_id = ?", svc.ID)
	if keep.UserID != nil {
		q = q.Where("user_id <> ?", *keep.UserID)
	}
	result := q.Updates(map[string]any{
		"service_id": nil,
		"disabled":   true,
		"updated_at": time.Now(),
	})
	if result.Error != nil {
		return 0, &PersistenceError{Op: "disable agents", Err: result.Error}
	}
	return result.RowsAffected, nil
}

// UpdateCredentials writes rotated credentials for service id. Other columns
// are left as stored, and a service deleted in the meantime is not recreated.
func UpdateCredentials(database *gorm.DB, id uint, token, refreshToken string, expiresAt *time.Time) error {
	if strings.TrimSpace(token) == "" {
		return &models.ValidationError{Model: "service", Field: "token"}
	}
	result := database.Session(&gorm.Session{SkipHooks: true}).
		Model(&models.Service{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"token":         token,
			"refresh_token": refreshToken,
			"expires_at":    expiresAt,
			"updated_at":    time.Now(),
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("service %d: %w", id, ErrNotFound)
	}
	return nil
}

// ToggleAvailability flips the stored global flag of svc. Going personal first
// disables agents of other users. Both effects commit together or not at all;
// svc is only updated on success. Only the flag is written, so credentials
// rotated since svc was loaded are kept.
func ToggleAvailability(ctx context.Context, database *gorm.DB, svc *models.Service) error {
	var (
		current  models.Service
		disabled int64
	)
	now := time.Now()
	err := database.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Select("id", "user_id", "global").First(&current, svc.ID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("service %d: %w", svc.ID, ErrNotFound)
			}
			return err
		}
		if current.Global {
			n, err := DisableAgentsExcept(tx, &current, KeepOwnedBy(current.UserID))
			if err != nil {
				return err
			}
			disabled = n
		}
		return tx.Session(&gorm.Session{SkipHooks: true}).
			Model(&models.Service{}).
			Where("id = ?", current.ID).
			Updates(map[string]any{"global": !current.Global, "updated_at": now}).Error
	})
	if err != nil {
		var perr *PersistenceError
		if errors.As(err, &perr) {
			return err
		}
		return &PersistenceError{Op: "toggle availability", Err: err}
	}

	svc.Global = !current.Global
	svc.UpdatedAt = now
	if disabled > 0 {
		metrics.AgentsDisabled.WithLabelValues(metrics.ReasonToggle).Add(float64(disabled))
		log.Printf("%s🔌 Service %d is now personal, disabled %d agents of other users", logging.Tag(ctx), svc.ID, disabled)
	}
	return nil
}

// DestroyService disables all agents of svc and deletes it in one transaction.
func DestroyService(ctx context.Context, database *gorm.DB, svc *models.Service) error {
	var disabled int64
	err := database.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		n, err := DisableAgentsExcept(tx, svc, KeepCriteria{})
		if err != nil {
			return err
		}
		disabled = n
		return tx.Delete(&models.Service{}, svc.ID).Error
	})
	if err != nil {
		var perr *PersistenceError
		if errors.As(err, &perr) {
			return err
		}
		return &PersistenceError{Op: "destroy service", Err: err}
	}

	if disabled > 0 {
		metrics.AgentsDisabled.WithLabelValues(metrics.ReasonDestroy).Add(float64(disabled))
	}
	log.Printf("%s🗑️ Destroyed service %d (%s), disabled %d agents", logging.Tag(ctx), svc.ID, svc.Provider, disabled)
	return nil
}
