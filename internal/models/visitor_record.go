package models

import (
	"time"

	"gorm.io/datatypes"
)

// VisitorRecord tracks an exit event from a team page, upserted per
// (team, visitor identity). The identity is a user ID for signed-in viewers
// and a session ID otherwise.
type VisitorRecord struct {
	BaseModel

	TeamID    string `gorm:"type:uuid;not null;uniqueIndex:idx_visitor_records_team_visitor" json:"team_id"`
	VisitorID string `gorm:"not null;uniqueIndex:idx_visitor_records_team_visitor" json:"visitor_id"`

	// UserID is set when the visitor identity resolves to a registered user.
	UserID *string `gorm:"type:uuid;index" json:"user_id,omitempty"`

	ExitURL        string `json:"exit_url"`
	ExitTargetType string `json:"exit_target_type"`
	ScrollDepth    string `json:"furthest_scrolled"`
	TimeSpent      int64  `json:"time_spent"`

	Metadata datatypes.JSON `json:"metadata,omitempty"`

	VisitedAt time.Time `gorm:"index" json:"visited_at"`
	Visits    int64     `gorm:"not null;default:1" json:"visits"`
}

// VisitorSummary is the deduplicated aggregation returned by the analytics
// dashboard.
type VisitorSummary struct {
	VisitorID      string    `json:"visitor_id"`
	UserID         *string   `json:"user_id,omitempty"`
	ExitURL        string    `json:"exit_url"`
	ExitTargetType string    `json:"exit_target_type"`
	ScrollDepth    string    `json:"furthest_scrolled"`
	TimeSpent      int64     `json:"time_spent"`
	FirstSeen      time.Time `json:"first_seen"`
	LastSeen       time.Time `json:"last_seen"`
	Visits         int64     `json:"visits"`
}
