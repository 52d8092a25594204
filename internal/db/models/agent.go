package models

import (
	"strings"
	"time"

	"gorm.io/gorm"
)

// Agent is an automation owned by a user that acts through a Service's credentials.
type Agent struct {
	ID              uint      `gorm:"primaryKey" json:"id"`
	UserID          uint      `gorm:"index" json:"user_id"`
	ServiceID       *uint     `gorm:"index" json:"service_id"`
	Name            string    `json:"name"`
	Type            string    `json:"type"`
	RequiresService bool      `json:"requires_service"`
	Disabled        bool      `json:"disabled"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// BeforeSave validates ownership and, when a service is attached, that the
// service is available to the agent's owner.
func (a *Agent) BeforeSave(tx *gorm.DB) error {
	if a.UserID == 0 {
		return &ValidationError{Model: "agent", Field: "user_id"}
	}
	if strings.TrimSpace(a.Name) == "" {
		return &ValidationError{Model: "agent", Field: "name"}
	}
	if a.ServiceID == nil {
		if a.RequiresService {
			return &ValidationError{Model: "agent", Field: "service_id", Reason: "a service is required"}
		}
		return nil
	}

	var count int64
	err := tx.Session(&gorm.Session{NewDB: true}).
		Model(&Service{}).
		Where("id = ? AND (user_id = ? OR global = ?)", *a.ServiceID, a.UserID, true).
		Count(&count).Error
	if err != nil {
		return err
	}
	if count == 0 {
		return &ValidationError{Model: "agent", Field: "service_id", Reason: "service is not available to this user"}
	}
	return nil
}
