package services

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/hectorgon/coderwall/internal/models"
	apperrors "github.com/hectorgon/coderwall/pkg/errors"
)

// TeamService serves individual team pages.
type TeamService struct {
	db *gorm.DB
}

// NewTeamService constructs a TeamService instance.
func NewTeamService(db *gorm.DB) (*TeamService, error) {
	if db == nil {
		return nil, errors.New("team service: db is required")
	}
	return &TeamService{db: db}, nil
}

// Get resolves a team by identifier or slug. References that are neither come
// back as not found rather than a storage error.
func (s *TeamService) Get(ctx context.Context, ref string) (*models.Team, error) {
	return teamByRef(ensureContext(ctx), s.db, ref)
}

// Members lists the current members of the team, admins included.
func (s *TeamService) Members(ctx context.Context, teamRef string) ([]models.User, error) {
	ctx = ensureContext(ctx)

	team, err := teamByRef(ctx, s.db, teamRef)
	if err != nil {
		return nil, err
	}

	var members []models.User
	err = s.db.WithContext(ctx).
		Where("team_id = ?", team.ID).
		Order("created_at ASC").
		Find(&members).Error
	if err != nil {
		return nil, fmt.Errorf("team service: list members: %w", err)
	}
	return members, nil
}

// PendingJoinRequests lists unresolved join requests for the team's admin
// dashboard.
func (s *TeamService) PendingJoinRequests(ctx context.Context, caller Caller, teamRef string) ([]models.JoinRequest, error) {
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
		if !admin {
			return nil, apperrors.ErrForbidden
		}
	}

	var requests []models.JoinRequest
	err = s.db.WithContext(ctx).
		Where("team_id = ? AND status = ?", team.ID, models.JoinRequestPending).
		Order("created_at ASC").
		Find(&requests).Error
	if err != nil {
		return nil, fmt.Errorf("team service: list join requests: %w", err)
	}
	return requests, nil
}

// RecordImpression counts a leaderboard or search listing render.
func (s *TeamService) RecordImpression(ctx context.Context, teamIDs ...string) error {
	if len(teamIDs) == 0 {
		return nil
	}

	err := s.db.WithContext(ensureContext(ctx)).
		Model(&models.Team{}).
		Where("id IN ?", teamIDs).
		Update("impressions", gorm.Expr("impressions + 1")).Error
	if err != nil {
		return fmt.Errorf("team service: record impressions: %w", err)
	}
	return nil
}
