package models

// Team represents a company page ranked on the leaderboard.
//
// LockVersion implements optimistic concurrency: every membership-mutating
// write is guarded by the version it read, and bumps it on commit.
type Team struct {
	BaseModel

	Slug    string `gorm:"uniqueIndex;not null" json:"slug" validate:"required,lowercase,min=2,max=64"`
	Name    string `gorm:"not null" json:"name" validate:"required,min=2,max=128"`
	Country string `gorm:"index" json:"country,omitempty"`

	Relevancy float64 `gorm:"index" json:"relevancy"`
	JobCount  int     `gorm:"not null;default:0" json:"job_count"`

	TotalViews  int64 `gorm:"not null;default:0" json:"total_views"`
	Impressions int64 `gorm:"not null;default:0" json:"impressions"`

	// Analytics gates the visitor dashboard for team admins.
	Analytics bool `gorm:"not null;default:false" json:"analytics"`

	LockVersion int64 `gorm:"not null;default:0" json:"-"`

	Admins []User `gorm:"many2many:team_admins;" json:"admins,omitempty"`
}

// PublicHash is the representation exposed on leaderboard and search payloads.
type PublicHash struct {
	ID        string  `json:"id"`
	Slug      string  `json:"slug"`
	Name      string  `json:"name"`
	Country   string  `json:"country,omitempty"`
	Relevancy float64 `json:"relevancy"`
	JobCount  int     `json:"job_count"`
	Rank      int     `json:"rank,omitempty"`
}

// Public converts the team into its external representation.
func (t Team) Public() PublicHash {
	return PublicHash{
		ID:        t.ID,
		Slug:      t.Slug,
		Name:      t.Name,
		Country:   t.Country,
		Relevancy: t.Relevancy,
		JobCount:  t.JobCount,
	}
}
