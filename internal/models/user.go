// Package models contains the persisted domain models and API error types.
package models

import (
	"time"

	"gorm.io/gorm"
)

// User is an account that can author and like posts.
type User struct {
	ID          uint           `gorm:"primaryKey" json:"id"`
	Username    string         `gorm:"uniqueIndex;not null" json:"username"`
	DisplayName string         `gorm:"not null" json:"name"`
	Email       string         `gorm:"index" json:"-"`
	Password    string         `gorm:"not null" json:"-"`
	Avatar      string         `json:"image,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"-"`
	DeletedAt   gorm.DeletedAt `gorm:"index" json:"-"`
}
