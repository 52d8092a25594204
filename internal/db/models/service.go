package models

import (
	"strings"
	"time"

	"gorm.io/gorm"
)

// Service stores a user's OAuth connection to a third-party provider
// (e.g., "twitter", "github", "37signals").
type Service struct {
	ID           uint           `gorm:"primaryKey" json:"id"`
	UserID       uint           `gorm:"index" json:"user_id"`
	Provider     string         `gorm:"index:idx_services_provider_uid" json:"provider"`
	UID          string         `gorm:"column:uid;index:idx_services_provider_uid" json:"uid"`
	Name         string         `json:"name"`
	Token        string         `json:"-"`
	Secret       string         `json:"-"`
	RefreshToken string         `json:"-"`
	ExpiresAt    *time.Time     `json:"expires_at,omitempty"` // nil: token does not expire
	Global       bool           `json:"global"`
	Options      map[string]any `gorm:"serializer:json" json:"options,omitempty"` // provider-specific extras
	Agents       []Agent        `gorm:"foreignKey:ServiceID" json:"-"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
}

// Expired reports whether the access token is past its expiry at now.
// Services without an expiry never expire.
func (s *Service) Expired(now time.Time) bool {
	return s.ExpiresAt != nil && now.After(*s.ExpiresAt)
}

// AvailableTo reports whether agents of userID may use the service.
func (s *Service) AvailableTo(userID uint) bool {
	return s.Global || s.UserID == userID
}

// BeforeSave rejects services missing required fields.
func (s *Service) BeforeSave(tx *gorm.DB) error {
	switch {
	case s.UserID == 0:
		return &ValidationError{Model: "service", Field: "user_id"}
	case strings.TrimSpace(s.Provider) == "":
		return &ValidationError{Model: "service", Field: "provider"}
	case strings.TrimSpace(s.Name) == "":
		return &ValidationError{Model: "service", Field: "name"}
	case strings.TrimSpace(s.Token) == "":
		return &ValidationError{Model: "service", Field: "token"}
	}
	return nil
}
