package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/hectorgon/coderwall/internal/cache"
	"github.com/hectorgon/coderwall/internal/models"
	apperrors "github.com/hectorgon/coderwall/pkg/errors"
	"github.com/hectorgon/coderwall/pkg/metrics"
)

const (
	defaultVisitorLookback = 14 * 24 * time.Hour
	defaultVisitorCap      = 75

	viewDedupeWindow = 24 * time.Hour
)

// ExitEvent describes a single visitor exit from a team page.
type ExitEvent struct {
	ExitURL        string `json:"exit_url"`
	ExitTargetType string `json:"exit_target_type"`
	ScrollDepth    string `json:"furthest_scrolled"`
	TimeSpent      int64  `json:"time_spent"`
}

// AnalyticsReport is the aggregated visitor dashboard payload.
type AnalyticsReport struct {
	Visitors    []models.VisitorSummary `json:"visitors"`
	TotalViews  int64                   `json:"total_views"`
	Impressions int64                   `json:"impressions"`
}

// VisitorService records exit events and aggregates visitor analytics.
type VisitorService struct {
	db    *gorm.DB
	store cache.Store

	lookback time.Duration
	cap      int
	now      func() time.Time
}

// VisitorOption customises VisitorService behaviour.
type VisitorOption func(*VisitorService)

// WithVisitorLookback overrides the history window for non-privileged callers.
func WithVisitorLookback(d time.Duration) VisitorOption {
	return func(s *VisitorService) {
		if d > 0 {
			s.lookback = d
		}
	}
}

// WithVisitorCap overrides the entry cap for capped aggregations.
func WithVisitorCap(n int) VisitorOption {
	return func(s *VisitorService) {
		if n > 0 {
			s.cap = n
		}
	}
}

// WithVisitorClock injects a custom clock, primarily for testing.
func WithVisitorClock(clock func() time.Time) VisitorOption {
	return func(s *VisitorService) {
		if clock != nil {
			s.now = clock
		}
	}
}

// NewVisitorService constructs a VisitorService. The cache store is used to
// deduplicate view counting and may be nil in tests that skip view tracking.
func NewVisitorService(db *gorm.DB, store cache.Store, opts ...VisitorOption) (*VisitorService, error) {
	if db == nil {
		return nil, errors.New("visitor service: db is required")
	}

	service := &VisitorService{
		db:       db,
		store:    store,
		lookback: defaultVisitorLookback,
		cap:      defaultVisitorCap,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(service)
	}
	return service, nil
}

// RecordExit upserts the visitor record for (team, identity), bumping the
// visit count and refreshing last-seen fields. Events from privileged
// operators are suppressed entirely so staff traffic never pollutes the
// analytics.
func (s *VisitorService) RecordExit(ctx context.Context, caller Caller, teamRef string, event ExitEvent) error {
	ctx = ensureContext(ctx)

	if caller.Operator {
		return nil
	}

	identity := caller.Identity()
	if identity == "" {
		return apperrors.NewBadRequest("visitor identity is required")
	}

	team, err := teamByRef(ctx, s.db, teamRef)
	if err != nil {
		return err
	}

	var userID *string
	if caller.SignedIn() {
		id := caller.UserID
		userID = &id
	}

	record := models.VisitorRecord{
		TeamID:         team.ID,
		VisitorID:      identity,
		UserID:         userID,
		ExitURL:        event.ExitURL,
		ExitTargetType: event.ExitTargetType,
		ScrollDepth:    event.ScrollDepth,
		TimeSpent:      event.TimeSpent,
		VisitedAt:      s.now(),
		Visits:         1,
	}

	err = s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "team_id"}, {Name: "visitor_id"}},
			DoUpdates: clause.Assignments(map[string]interface{}{
				"visits":           gorm.Expr("visits + 1"),
				"exit_url":         record.ExitURL,
				"exit_target_type": record.ExitTargetType,
				"scroll_depth":     record.ScrollDepth,
				"time_spent":       record.TimeSpent,
				"visited_at":       record.VisitedAt,
				"user_id":          record.UserID,
			}),
		}).Create(&record).Error
	if err != nil {
		return fmt.Errorf("visitor service: record exit: %w", err)
	}

	metrics.VisitorExits.Inc()
	return nil
}

// TrackView bumps the team's view counter, deduplicating repeat views from
// the same identity within a day. Operator views are not counted.
func (s *VisitorService) TrackView(ctx context.Context, caller Caller, teamRef string) error {
	ctx = ensureContext(ctx)

	if caller.Operator {
		return nil
	}
	identity := caller.Identity()
	if identity == "" {
		return nil
	}

	team, err := teamByRef(ctx, s.db, teamRef)
	if err != nil {
		return err
	}

	if s.store != nil {
		key := fmt.Sprintf("views:%s:%s", team.ID, identity)
		count, _, err := s.store.IncrementWithTTL(ctx, key, viewDedupeWindow)
		if err == nil && count > 1 {
			return nil
		}
	}

	err = s.db.WithContext(ctx).
		Model(&models.Team{}).
		Where("id = ?", team.ID).
		Update("total_views", gorm.Expr("total_views + 1")).Error
	if err != nil {
		return fmt.Errorf("visitor service: track view: %w", err)
	}
	return nil
}

// Aggregate returns deduplicated visitor summaries for events at or after the
// effective window start, excluding identities that are current members of
// the team. Non-privileged callers need analytics access and a team admin
// seat, see a two-week window and at most 75 entries; operators may request
// the full history.
func (s *VisitorService) Aggregate(ctx context.Context, caller Caller, teamRef string, full bool) (*AnalyticsReport, error) {
	ctx = ensureContext(ctx)

	team, err := teamByRef(ctx, s.db, teamRef)
	if err != nil {
		return nil, err
	}

	if !caller.Operator {
		admin, err := isTeamAdmin(ctx, s.db, team.ID, caller.UserID)
		if err != nil {
			return nil, err
		}
		if !team.Analytics || !admin {
			return nil, apperrors.ErrForbidden
		}
	}

	var since time.Time
	if !caller.Operator {
		since = s.now().Add(-s.lookback)
	}
	unrestricted := caller.Operator && full

	query := s.db.WithContext(ctx).
		Model(&models.VisitorRecord{}).
		Where("team_id = ?", team.ID).
		Where("user_id IS NULL OR user_id NOT IN (?)",
			s.db.Model(&models.User{}).Select("id").Where("team_id = ?", team.ID)).
		Order("visited_at DESC")
	if !since.IsZero() {
		query = query.Where("visited_at >= ?", since)
	}
	if !unrestricted {
		query = query.Limit(s.cap)
	}

	var records []models.VisitorRecord
	if err := query.Find(&records).Error; err != nil {
		return nil, fmt.Errorf("visitor service: aggregate visitors: %w", err)
	}

	summaries := make([]models.VisitorSummary, 0, len(records))
	for _, record := range records {
		summaries = append(summaries, models.VisitorSummary{
			VisitorID:      record.VisitorID,
			UserID:         record.UserID,
			ExitURL:        record.ExitURL,
			ExitTargetType: record.ExitTargetType,
			ScrollDepth:    record.ScrollDepth,
			TimeSpent:      record.TimeSpent,
			FirstSeen:      record.CreatedAt,
			LastSeen:       record.VisitedAt,
			Visits:         record.Visits,
		})
	}

	return &AnalyticsReport{
		Visitors:    summaries,
		TotalViews:  team.TotalViews,
		Impressions: team.Impressions,
	}, nil
}
