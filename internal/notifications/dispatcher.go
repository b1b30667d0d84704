package notifications

import (
	"context"
	"encoding/json"

	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/hectorgon/coderwall/internal/models"
	"github.com/hectorgon/coderwall/pkg/logger"
)

// Dispatcher persists notifications and pushes them to live subscribers.
// Dispatch is fire-and-forget: failures are logged and never surfaced to the
// operation that triggered them.
type Dispatcher struct {
	db  *gorm.DB
	hub *Hub
	log *zap.Logger
}

// NewDispatcher constructs a Dispatcher. The hub may be nil when realtime
// delivery is disabled; notifications are still persisted.
func NewDispatcher(db *gorm.DB, hub *Hub) *Dispatcher {
	return &Dispatcher{
		db:  db,
		hub: hub,
		log: logger.WithModule("notifications"),
	}
}

// Send delivers an event of the given kind to every recipient.
func (d *Dispatcher) Send(kind string, recipientIDs []string, fields map[string]any) {
	if d == nil || len(recipientIDs) == 0 {
		return
	}

	payload, err := json.Marshal(fields)
	if err != nil {
		d.log.Warn("encode notification fields", zap.String("kind", kind), zap.Error(err))
		payload = nil
	}

	if d.db != nil {
		rows := make([]models.Notification, 0, len(recipientIDs))
		for _, recipientID := range recipientIDs {
			rows = append(rows, models.Notification{
				RecipientID: recipientID,
				Kind:        kind,
				Fields:      datatypes.JSON(payload),
			})
		}
		if err := d.db.WithContext(context.Background()).Create(&rows).Error; err != nil {
			d.log.Warn("persist notifications", zap.String("kind", kind), zap.Error(err))
		}
	}

	if d.hub != nil {
		d.hub.BroadcastMany(recipientIDs, Event{Kind: kind, Fields: fields})
	}
}
