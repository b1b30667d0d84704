package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/hectorgon/coderwall/internal/models"
	"github.com/hectorgon/coderwall/internal/notifications"
	apperrors "github.com/hectorgon/coderwall/pkg/errors"
	"github.com/hectorgon/coderwall/pkg/response"
)

type NotificationHandler struct {
	db  *gorm.DB
	hub *notifications.Hub
}

func NewNotificationHandler(db *gorm.DB, hub *notifications.Hub) *NotificationHandler {
	return &NotificationHandler{db: db, hub: hub}
}

// GET /api/notifications
func (h *NotificationHandler) List(c *gin.Context) {
	who := caller(c)

	query := h.db.WithContext(requestContext(c)).
		Where("recipient_id = ?", who.UserID).
		Order("created_at DESC").
		Limit(50)
	if parseBoolQuery(c, "unread") {
		query = query.Where("read_at IS NULL")
	}

	var rows []models.Notification
	if err := query.Find(&rows).Error; err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, rows)
}

// POST /api/notifications/:id/read
func (h *NotificationHandler) MarkRead(c *gin.Context) {
	who := caller(c)
	now := time.Now()

	res := h.db.WithContext(requestContext(c)).
		Model(&models.Notification{}).
		Where("id = ? AND recipient_id = ? AND read_at IS NULL", c.Param("id"), who.UserID).
		Update("read_at", &now)
	if res.Error != nil {
		response.Error(c, res.Error)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"read": res.RowsAffected > 0})
}

// GET /ws/notifications
func (h *NotificationHandler) Stream(c *gin.Context) {
	if h.hub == nil {
		response.Error(c, apperrors.ErrUnavailable)
		return
	}
	h.hub.Serve(caller(c).UserID, c.Writer, c.Request)
}
