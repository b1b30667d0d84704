package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/hectorgon/coderwall/internal/cache"
	"github.com/hectorgon/coderwall/internal/models"
	"github.com/hectorgon/coderwall/internal/search"
	"github.com/hectorgon/coderwall/internal/services"
	"github.com/hectorgon/coderwall/pkg/logger"
	"github.com/hectorgon/coderwall/pkg/response"
)

type LeaderboardHandler struct {
	leaderboard *services.LeaderboardService
	search      *services.SearchService
	teams       *services.TeamService
}

func NewLeaderboardHandler(db *gorm.DB, gateway *cache.Gateway, index search.Index) (*LeaderboardHandler, error) {
	leaderboard, err := services.NewLeaderboardService(db, gateway)
	if err != nil {
		return nil, err
	}
	searchSvc, err := services.NewSearchService(db, index)
	if err != nil {
		return nil, err
	}
	teams, err := services.NewTeamService(db)
	if err != nil {
		return nil, err
	}
	return &LeaderboardHandler{leaderboard: leaderboard, search: searchSvc, teams: teams}, nil
}

// GET /api/teams
//
// The index serves the featured list, or ranked search results when a query
// is present.
func (h *LeaderboardHandler) Index(c *gin.Context) {
	if query := strings.TrimSpace(c.Query("q")); query != "" {
		h.searchTeams(c, query)
		return
	}

	featured, err := h.leaderboard.Featured(requestContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}

	h.recordImpressions(c, featured)
	response.Success(c, http.StatusOK, featured)
}

func (h *LeaderboardHandler) searchTeams(c *gin.Context, query string) {
	page := parseIntQuery(c, "page", 1)
	country := strings.TrimSpace(c.Query("country"))

	results, err := h.search.Search(requestContext(c), query, country, page)
	if err != nil {
		response.Error(c, err)
		return
	}

	h.recordImpressions(c, results)
	response.SuccessWithMeta(c, http.StatusOK, results, &response.Meta{
		Page:    page,
		PerPage: services.SearchPageSize,
	})
}

// GET /api/teams/leaderboard
func (h *LeaderboardHandler) Leaderboard(c *gin.Context) {
	who := caller(c)

	pageSize := services.AnonymousPageSize
	if who.SignedIn() {
		pageSize = services.SignedInPageSize
	}

	// A rank reference lands on the page containing it.
	if rank := parseIntQuery(c, "rank", -1); rank >= 0 {
		page := h.leaderboard.RankToPage(rank, pageSize)
		response.Redirect(c, fmt.Sprintf("/api/teams/leaderboard?page=%d", page))
		return
	}

	page := parseIntQuery(c, "page", 1)
	country := strings.TrimSpace(c.Query("country"))

	// Cache busting is a staff capability.
	forceRefresh := parseBoolQuery(c, "refresh") && who.Operator

	teams, err := h.leaderboard.Top(requestContext(c), page, pageSize, country, forceRefresh)
	if err != nil {
		if errors.Is(err, services.ErrPageOutOfRange) {
			response.Redirect(c, "/api/teams/leaderboard")
			return
		}
		response.Error(c, err)
		return
	}

	h.recordImpressions(c, teams)
	response.SuccessWithMeta(c, http.StatusOK, teams, &response.Meta{
		Page:    page,
		PerPage: pageSize,
	})
}

// recordImpressions counts listing renders best-effort; a failed write never
// fails the page.
func (h *LeaderboardHandler) recordImpressions(c *gin.Context, teams []models.PublicHash) {
	if len(teams) == 0 {
		return
	}

	ids := make([]string, 0, len(teams))
	for _, team := range teams {
		ids = append(ids, team.ID)
	}
	if err := h.teams.RecordImpression(requestContext(c), ids...); err != nil {
		logger.WithModule("leaderboard").Warn("record impressions failed", zap.Error(err))
	}
}
