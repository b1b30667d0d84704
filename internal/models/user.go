package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// User describes platform members. A user belongs to at most one team.
type User struct {
	ID       string `gorm:"primaryKey;type:uuid" json:"id"`
	Username string `gorm:"uniqueIndex;not null" json:"username"`
	Email    string `gorm:"uniqueIndex;not null" json:"email"`

	TeamID *string `gorm:"type:uuid;index" json:"team_id,omitempty"`
	Team   *Team   `json:"team,omitempty"`

	// ReferralToken lets the holder invite others into their team directly.
	// Minted on first membership, unique per user.
	ReferralToken *string `gorm:"uniqueIndex" json:"-"`

	// ReferredBy is write-once: the first successful referral wins.
	ReferredBy *string `json:"referred_by,omitempty"`

	// IsOperator marks global platform staff who bypass team admin checks.
	IsOperator bool `gorm:"default:false" json:"is_operator"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// BeforeCreate ensures a UUID is present before persisting.
func (u *User) BeforeCreate(tx *gorm.DB) error {
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	return nil
}

// BelongsTo reports whether the user is currently a member of the team.
func (u User) BelongsTo(teamID string) bool {
	return u.TeamID != nil && *u.TeamID == teamID
}
