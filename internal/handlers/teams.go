package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/hectorgon/coderwall/internal/cache"
	"github.com/hectorgon/coderwall/internal/services"
	"github.com/hectorgon/coderwall/pkg/logger"
	"github.com/hectorgon/coderwall/pkg/response"
)

type TeamHandler struct {
	teams      *services.TeamService
	membership *services.MembershipService
	visitors   *services.VisitorService
}

type acceptInviteRequest struct {
	ReferralToken string `json:"referral_token" validate:"omitempty,max=128"`
	Email         string `json:"email" validate:"omitempty,email"`
}

func NewTeamHandler(db *gorm.DB, dispatcher services.Dispatcher, store cache.Store) (*TeamHandler, error) {
	teams, err := services.NewTeamService(db)
	if err != nil {
		return nil, err
	}
	membership, err := services.NewMembershipService(db, dispatcher)
	if err != nil {
		return nil, err
	}
	visitors, err := services.NewVisitorService(db, store)
	if err != nil {
		return nil, err
	}
	return &TeamHandler{teams: teams, membership: membership, visitors: visitors}, nil
}

// GET /api/teams/:ref
func (h *TeamHandler) Show(c *gin.Context) {
	ref := c.Param("ref")

	team, err := h.teams.Get(requestContext(c), ref)
	if err != nil {
		response.Error(c, err)
		return
	}

	// Legacy references reach the canonical slug URL via redirect.
	if ref != team.Slug && ref != team.ID {
		response.Redirect(c, "/api/teams/"+team.Slug)
		return
	}

	who := caller(c)
	if err := h.visitors.TrackView(requestContext(c), who, team.ID); err != nil {
		logger.WithModule("teams").Warn("track view failed",
			zap.String("team_id", team.ID), zap.Error(err))
	}

	following := false
	if who.SignedIn() {
		following, _ = h.membership.IsFollowing(requestContext(c), who, team.ID)
	}

	response.Success(c, http.StatusOK, gin.H{
		"team":      team,
		"following": following,
	})
}

// GET /api/teams/:ref/members
func (h *TeamHandler) Members(c *gin.Context) {
	members, err := h.teams.Members(requestContext(c), c.Param("ref"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, members)
}

// POST /api/teams/:ref/join
func (h *TeamHandler) Join(c *gin.Context) {
	request, err := h.membership.RequestJoin(requestContext(c), caller(c), c.Param("ref"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusCreated, request)
}

// GET /api/teams/:ref/join-requests
func (h *TeamHandler) PendingJoinRequests(c *gin.Context) {
	requests, err := h.teams.PendingJoinRequests(requestContext(c), caller(c), c.Param("ref"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, requests)
}

// POST /api/teams/:ref/join/:userID/approve
func (h *TeamHandler) Approve(c *gin.Context) {
	err := h.membership.ApproveJoin(requestContext(c), caller(c), c.Param("ref"), c.Param("userID"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"approved": true})
}

// POST /api/teams/:ref/join/:userID/deny
func (h *TeamHandler) Deny(c *gin.Context) {
	err := h.membership.DenyJoin(requestContext(c), caller(c), c.Param("ref"), c.Param("userID"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"denied": true})
}

// POST /api/teams/:ref/accept
func (h *TeamHandler) AcceptInvite(c *gin.Context) {
	var body acceptInviteRequest
	if !bindAndValidate(c, &body) {
		return
	}

	team, err := h.membership.AcceptInvite(requestContext(c), caller(c), c.Param("ref"),
		strings.TrimSpace(body.ReferralToken), strings.TrimSpace(body.Email))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"team": team.Public(), "joined": true})
}

// POST /api/teams/:ref/follow
//
// Follow is a toggle: following when not, unfollowing when already following.
func (h *TeamHandler) ToggleFollow(c *gin.Context) {
	who := caller(c)
	ref := c.Param("ref")
	ctx := requestContext(c)

	following, err := h.membership.IsFollowing(ctx, who, ref)
	if err != nil {
		response.Error(c, err)
		return
	}

	if following {
		if err := h.membership.Unfollow(ctx, who, ref); err != nil {
			response.Error(c, err)
			return
		}
		response.Success(c, http.StatusOK, gin.H{"following": false})
		return
	}

	if _, err := h.membership.Follow(ctx, who, ref); err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"following": true})
}
