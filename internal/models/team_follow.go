package models

// TeamFollow links a user to a team they follow. Following is independent of
// membership.
type TeamFollow struct {
	BaseModel

	UserID string `gorm:"type:uuid;not null;uniqueIndex:idx_team_follows_user_team" json:"user_id"`
	TeamID string `gorm:"type:uuid;not null;uniqueIndex:idx_team_follows_user_team" json:"team_id"`

	Team *Team `json:"team,omitempty"`
}
