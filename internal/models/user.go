package models

import (
	"time"

	"github.com/google/uuid"
)

// User is the signed-in profile held by a session. Identity itself is issued
// by the external provider; this record only mirrors the profile row.
type User struct {
	ID          uuid.UUID   `json:"id"`
	Email       string      `json:"email"`
	FullName    *string     `json:"full_name"`
	AvatarURL   *string     `json:"avatar_url"`
	Bio         *string     `json:"bio"`
	APIKey      *string     `json:"-"`
	Preferences Preferences `json:"preferences"`
	UpdatedAt   *time.Time  `json:"updated_at"`
}

type Preferences struct {
	Theme                string `json:"theme"`        // "light" | "dark" | "system"
	MessageSize          string `json:"message_size"` // "small" | "medium" | "large"
	DefaultModel         string `json:"default_model"`
	NotificationsEnabled bool   `json:"notifications_enabled"`
	SidebarCollapsed     bool   `json:"sidebar_collapsed"`
	UseCustomAPI         bool   `json:"use_custom_api"`
}

func DefaultPreferences() Preferences {
	return Preferences{
		Theme:                "system",
		MessageSize:          "medium",
		DefaultModel:         DefaultModelID,
		NotificationsEnabled: true,
		UseCustomAPI:         true,
	}
}

// ProfileUpdates is a partial profile mutation; nil fields are left untouched.
type ProfileUpdates struct {
	FullName    *string      `json:"full_name"`
	AvatarURL   *string      `json:"avatar_url"`
	Bio         *string      `json:"bio"`
	APIKey      *string      `json:"api_key"`
	Preferences *Preferences `json:"preferences"`
}

// Apply folds the updates into u in place.
func (p ProfileUpdates) Apply(u *User) {
	if p.FullName != nil {
		u.FullName = p.FullName
	}
	if p.AvatarURL != nil {
		u.AvatarURL = p.AvatarURL
	}
	if p.Bio != nil {
		u.Bio = p.Bio
	}
	if p.APIKey != nil {
		u.APIKey = p.APIKey
	}
	if p.Preferences != nil {
		u.Preferences = *p.Preferences
	}
}
