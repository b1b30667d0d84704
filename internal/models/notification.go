package models

import (
	"time"

	"gorm.io/datatypes"
)

// Notification is a persisted copy of a dispatched event so recipients who
// were offline can catch up. Delivery is fire-and-forget.
type Notification struct {
	BaseModel

	RecipientID string         `gorm:"type:uuid;not null;index" json:"recipient_id"`
	Kind        string         `gorm:"not null;index" json:"kind"`
	Fields      datatypes.JSON `json:"fields,omitempty"`
	ReadAt      *time.Time     `json:"read_at,omitempty"`
}
