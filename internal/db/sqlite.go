package db

import (
	"crypto/rand"
	"encoding/hex"
	"log"

	"github.com/glebarez/sqlite"
	"github.com/pysugar/oauth-service-hub/internal/db/models"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const apiKeyConfigKey = "api_key"

// InitDB initializes the SQLite database connection and runs migrations.
func InitDB(dbPath string) (*gorm.DB, error) {
	db, err := gorm.Open(sqlite.Open(dbPath), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, err
	}

	if err := db.AutoMigrate(&models.Service{}, &models.Agent{}, &models.Config{}); err != nil {
		return nil, err
	}

	// Ensure API key exists (generate on first run)
	if err := ensureAPIKey(db); err != nil {
		return nil, err
	}

	return db, nil
}

func newAPIKey() string {
	keyBytes := make([]byte, 16)
	rand.Read(keyBytes)
	return "sk-" + hex.EncodeToString(keyBytes)
}

// ensureAPIKey generates the admin API key if none is stored yet
func ensureAPIKey(db *gorm.DB) error {
	var count int64
	if err := db.Model(&models.Config{}).Where("key = ?", apiKeyConfigKey).Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		return nil
	}

	apiKey := newAPIKey()
	if err := db.Create(&models.Config{Key: apiKeyConfigKey, Value: apiKey}).Error; err != nil {
		return err
	}
	log.Printf("🔑 Generated new API key: %s...", apiKey[:7])
	return nil
}

// GetAPIKey retrieves the API key from database
func GetAPIKey(db *gorm.DB) string {
	var config models.Config
	db.Where("key = ?", apiKeyConfigKey).First(&config)
	return config.Value
}

// RegenerateAPIKey creates a new API key
func RegenerateAPIKey(db *gorm.DB) (string, error) {
	apiKey := newAPIKey()
	err := db.Model(&models.Config{}).Where("key = ?", apiKeyConfigKey).Update("value", apiKey).Error
	if err != nil {
		return "", err
	}
	log.Printf("🔑 Regenerated API key")
	return apiKey, nil
}
