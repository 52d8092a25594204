// Package dbtest opens isolated in-memory databases for tests.
package dbtest

import (
	"fmt"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/pysugar/oauth-service-hub/internal/db/models"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Open returns a migrated database private to the calling test.
func Open(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	database, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("failed to open db: %v", err)
	}
	sqlDB, err := database.DB()
	if err != nil {
		t.Fatalf("failed to get sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })

	if err := database.AutoMigrate(&models.Service{}, &models.Agent{}, &models.Config{}); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}
	return database
}

// CreateService inserts a valid service owned by userID.
func CreateService(t *testing.T, database *gorm.DB, userID uint, provider, uid string) *models.Service {
	t.Helper()
	svc := &models.Service{
		UserID:   userID,
		Provider: provider,
		UID:      uid,
		Name:     provider + "-" + uid,
		Token:    "token-" + uid,
	}
	if err := database.Create(svc).Error; err != nil {
		t.Fatalf("create service: %v", err)
	}
	return svc
}

// CreateAgent inserts an agent for userID, attached to serviceID when non-nil.
func CreateAgent(t *testing.T, database *gorm.DB, userID uint, name string, serviceID *uint) *models.Agent {
	t.Helper()
	agent := &models.Agent{
		UserID:          userID,
		Name:            name,
		Type:            "TwitterStreamAgent",
		RequiresService: true,
		ServiceID:       serviceID,
	}
	if err := database.Create(agent).Error; err != nil {
		t.Fatalf("create agent %s: %v", name, err)
	}
	return agent
}
