package api

import (
	"fmt"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"gorm.io/gorm"

	"github.com/hectorgon/coderwall/internal/app"
	"github.com/hectorgon/coderwall/internal/cache"
	"github.com/hectorgon/coderwall/internal/handlers"
	"github.com/hectorgon/coderwall/internal/middleware"
	"github.com/hectorgon/coderwall/internal/notifications"
	"github.com/hectorgon/coderwall/internal/search"
	"github.com/hectorgon/coderwall/internal/services"
)

// NewRouter builds the Gin engine, wires middleware and registers all routes.
func NewRouter(db *gorm.DB, gateway *cache.Gateway, hub *notifications.Hub, cfg *app.Config) (*gin.Engine, error) {
	if db == nil {
		return nil, fmt.Errorf("database handle must be provided")
	}
	if gateway == nil {
		return nil, fmt.Errorf("cache gateway must be provided")
	}
	if cfg == nil {
		return nil, fmt.Errorf("config must be provided")
	}

	r := gin.New()

	// Global middleware
	r.Use(middleware.Recovery())
	r.Use(middleware.Logger())
	r.Use(middleware.Metrics())
	r.Use(middleware.Identity(db))
	r.NoRoute(middleware.NotFoundHandler)

	if cfg.Monitoring.Health.Enabled {
		r.GET("/health", handlers.Health())
	}
	if cfg.Monitoring.Prometheus.Enabled {
		endpoint := cfg.Monitoring.Prometheus.Endpoint
		if endpoint == "" {
			endpoint = "/metrics"
		}
		r.GET(endpoint, gin.WrapH(promhttp.Handler()))
	}

	dispatcher := notifications.NewDispatcher(db, hub)

	index, err := search.NewSQLIndex(db)
	if err != nil {
		return nil, err
	}

	teamHandler, err := handlers.NewTeamHandler(db, dispatcher, gateway.Store())
	if err != nil {
		return nil, err
	}
	leaderboardHandler, err := handlers.NewLeaderboardHandler(db, gateway, index)
	if err != nil {
		return nil, err
	}
	analyticsHandler, err := handlers.NewAnalyticsHandler(db, gateway.Store(),
		services.WithVisitorLookback(cfg.Analytics.Lookback),
		services.WithVisitorCap(cfg.Analytics.EntryCap),
	)
	if err != nil {
		return nil, err
	}
	notificationHandler := handlers.NewNotificationHandler(db, hub)

	api := r.Group("/api")

	// Leaderboard and search
	api.GET("/teams", leaderboardHandler.Index)
	api.GET("/teams/leaderboard", leaderboardHandler.Leaderboard)

	// Team pages
	teams := api.Group("/teams/:ref")
	{
		teams.GET("", teamHandler.Show)
		teams.GET("/members", teamHandler.Members)
		teams.POST("/visitors/exit", analyticsHandler.RecordExit)
	}

	// Membership lifecycle requires a signed-in caller.
	membership := teams.Group("", middleware.RequireSignIn())
	{
		membership.POST("/join", teamHandler.Join)
		membership.GET("/join-requests", teamHandler.PendingJoinRequests)
		membership.POST("/join/:userID/approve", teamHandler.Approve)
		membership.POST("/join/:userID/deny", teamHandler.Deny)
		membership.POST("/accept", teamHandler.AcceptInvite)
		membership.POST("/follow", teamHandler.ToggleFollow)
		membership.GET("/visitors", analyticsHandler.Visitors)
	}

	// Notifications
	notes := api.Group("/notifications", middleware.RequireSignIn())
	{
		notes.GET("", notificationHandler.List)
		notes.POST("/:id/read", notificationHandler.MarkRead)
	}
	if cfg.Features.Notifications.Enabled && hub != nil {
		r.GET("/ws/notifications", middleware.RequireSignIn(), notificationHandler.Stream)
	}

	return r, nil
}
