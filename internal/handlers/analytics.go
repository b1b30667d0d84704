package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/hectorgon/coderwall/internal/cache"
	"github.com/hectorgon/coderwall/internal/services"
	"github.com/hectorgon/coderwall/pkg/response"
)

type AnalyticsHandler struct {
	visitors *services.VisitorService
}

type recordExitRequest struct {
	ExitURL          string `json:"exit_url" validate:"omitempty,url,max=2048"`
	ExitTargetType   string `json:"exit_target_type" validate:"omitempty,max=64"`
	FurthestScrolled string `json:"furthest_scrolled" validate:"omitempty,max=16"`
	TimeSpent        int64  `json:"time_spent" validate:"omitempty,min=0"`
}

func NewAnalyticsHandler(db *gorm.DB, store cache.Store, opts ...services.VisitorOption) (*AnalyticsHandler, error) {
	visitors, err := services.NewVisitorService(db, store, opts...)
	if err != nil {
		return nil, err
	}
	return &AnalyticsHandler{visitors: visitors}, nil
}

// POST /api/teams/:ref/visitors/exit
func (h *AnalyticsHandler) RecordExit(c *gin.Context) {
	var body recordExitRequest
	if !bindAndValidate(c, &body) {
		return
	}

	err := h.visitors.RecordExit(requestContext(c), caller(c), c.Param("ref"), services.ExitEvent{
		ExitURL:        body.ExitURL,
		ExitTargetType: body.ExitTargetType,
		ScrollDepth:    body.FurthestScrolled,
		TimeSpent:      body.TimeSpent,
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusAccepted, gin.H{"recorded": true})
}

// GET /api/teams/:ref/visitors
func (h *AnalyticsHandler) Visitors(c *gin.Context) {
	full := parseBoolQuery(c, "full")

	report, err := h.visitors.Aggregate(requestContext(c), caller(c), c.Param("ref"), full)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, report)
}
