package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"gorm.io/gorm"

	"github.com/hectorgon/coderwall/internal/models"
	"github.com/hectorgon/coderwall/pkg/crypto"
	apperrors "github.com/hectorgon/coderwall/pkg/errors"
	"github.com/hectorgon/coderwall/pkg/metrics"
)

const referralTokenBytes = 16

// Dispatcher delivers fire-and-forget notifications. Failures are handled by
// the implementation, never by the calling operation.
type Dispatcher interface {
	Send(kind string, recipientIDs []string, fields map[string]any)
}

// MembershipService owns the team membership lifecycle: join requests,
// admin approval, invitation acceptance and follows.
//
// Membership mutations are optimistic read-modify-write against the team's
// lock version. A writer that loses the version race retries exactly once
// against fresh state before surfacing Conflict.
type MembershipService struct {
	db         *gorm.DB
	dispatcher Dispatcher
}

// NewMembershipService constructs a MembershipService instance.
func NewMembershipService(db *gorm.DB, dispatcher Dispatcher) (*MembershipService, error) {
	if db == nil {
		return nil, errors.New("membership service: db is required")
	}
	return &MembershipService{db: db, dispatcher: dispatcher}, nil
}

// RequestJoin files a pending join request for the caller. Submitting again
// while the first request is still pending returns the existing request
// unchanged; a caller who already belongs to the team gets Conflict.
func (s *MembershipService) RequestJoin(ctx context.Context, caller Caller, teamRef string) (*models.JoinRequest, error) {
	ctx = ensureContext(ctx)

	user, err := userByID(ctx, s.db, caller.UserID)
	if err != nil {
		return nil, err
	}

	team, err := teamByRef(ctx, s.db, teamRef)
	if err != nil {
		return nil, err
	}

	if user.BelongsTo(team.ID) {
		metrics.MembershipMutations.WithLabelValues("request", "conflict").Inc()
		return nil, ErrAlreadyMember
	}

	if existing, err := s.joinRequest(ctx, team.ID, user.ID); err == nil {
		if existing.Pending() {
			return existing, nil
		}
		metrics.MembershipMutations.WithLabelValues("request", "conflict").Inc()
		return nil, ErrJoinRequestResolved
	} else if !errors.Is(err, ErrJoinRequestNotFound) {
		return nil, err
	}

	request := &models.JoinRequest{
		TeamID: team.ID,
		UserID: user.ID,
		Status: models.JoinRequestPending,
	}
	if err := s.db.WithContext(ctx).Create(request).Error; err != nil {
		if isUniqueConstraintError(err) {
			// Lost a duplicate-submission race; the winner's request stands.
			existing, lookupErr := s.joinRequest(ctx, team.ID, user.ID)
			if lookupErr != nil {
				return nil, lookupErr
			}
			if existing.Pending() {
				return existing, nil
			}
			return nil, ErrJoinRequestResolved
		}
		return nil, fmt.Errorf("membership service: create join request: %w", err)
	}

	metrics.MembershipMutations.WithLabelValues("request", "success").Inc()
	s.notifyAdmins(ctx, team, "join_request.submitted", map[string]any{
		"team_id": team.ID,
		"user_id": user.ID,
	})

	return request, nil
}

// ApproveJoin resolves a pending join request in favour of membership. Only a
// team admin or a global operator may approve. An already-resolved request
// returns Conflict so the caller observes that the race was lost.
func (s *MembershipService) ApproveJoin(ctx context.Context, caller Caller, teamRef, userID string) error {
	return s.resolveJoin(ctx, caller, teamRef, userID, true)
}

// DenyJoin resolves a pending join request without granting membership, under
// the same guards as ApproveJoin.
func (s *MembershipService) DenyJoin(ctx context.Context, caller Caller, teamRef, userID string) error {
	return s.resolveJoin(ctx, caller, teamRef, userID, false)
}

func (s *MembershipService) resolveJoin(ctx context.Context, caller Caller, teamRef, userID string, approve bool) error {
	ctx = ensureContext(ctx)

	operation := "deny"
	if approve {
		operation = "approve"
	}

	team, err := teamByRef(ctx, s.db, teamRef)
	if err != nil {
		return err
	}

	if !caller.Operator {
		admin, err := isTeamAdmin(ctx, s.db, team.ID, caller.UserID)
		if err != nil {
			return err
		}
		if !admin {
			metrics.MembershipMutations.WithLabelValues(operation, "forbidden").Inc()
			return apperrors.ErrForbidden
		}
	}

	err = s.resolveJoinAttempt(ctx, team, userID, approve)
	if errors.Is(err, errStaleVersion) {
		// One retry against fresh state, then surface the conflict.
		fresh, reloadErr := teamByRef(ctx, s.db, team.ID)
		if reloadErr != nil {
			return reloadErr
		}
		err = s.resolveJoinAttempt(ctx, fresh, userID, approve)
		if errors.Is(err, errStaleVersion) {
			err = apperrors.ErrConflict
		}
	}
	if err != nil {
		result := "error"
		if apperrors.FromError(err).StatusCode == 409 {
			result = "conflict"
		}
		metrics.MembershipMutations.WithLabelValues(operation, result).Inc()
		return err
	}

	metrics.MembershipMutations.WithLabelValues(operation, "success").Inc()

	kind := "join_request.denied"
	if approve {
		kind = "join_request.approved"
	}
	s.dispatch(kind, []string{userID}, map[string]any{"team_id": team.ID})
	return nil
}

func (s *MembershipService) resolveJoinAttempt(ctx context.Context, team *models.Team, userID string, approve bool) error {
	newStatus := models.JoinRequestDenied
	if approve {
		newStatus = models.JoinRequestApproved
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var request models.JoinRequest
		err := tx.Take(&request, "team_id = ? AND user_id = ?", team.ID, userID).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrJoinRequestNotFound
		}
		if err != nil {
			return fmt.Errorf("membership service: load join request: %w", err)
		}
		if !request.Pending() {
			return ErrJoinRequestResolved
		}

		// The status flip is guarded so racing approve/deny writers resolve
		// to exactly one outcome.
		res := tx.Model(&models.JoinRequest{}).
			Where("id = ? AND status = ?", request.ID, models.JoinRequestPending).
			Update("status", newStatus)
		if res.Error != nil {
			return fmt.Errorf("membership service: resolve join request: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return ErrJoinRequestResolved
		}

		if approve {
			if err := grantMembership(tx, team.ID, userID); err != nil {
				return err
			}
		}

		return bumpTeamVersion(tx, team)
	})
}

// AcceptInvite redeems either a member's referral token or a pending email
// invitation. The token path is idempotent: a second call after success is a
// no-op that leaves referredBy untouched. The email path resolves every
// invitation the lookup surfaces, declining those for other teams.
func (s *MembershipService) AcceptInvite(ctx context.Context, caller Caller, teamRef, referralToken, accountEmail string) (*models.Team, error) {
	ctx = ensureContext(ctx)

	user, err := userByID(ctx, s.db, caller.UserID)
	if err != nil {
		return nil, err
	}

	team, err := teamByRef(ctx, s.db, teamRef)
	if err != nil {
		return nil, err
	}

	if token := strings.TrimSpace(referralToken); token != "" {
		granted, err := s.acceptByReferral(ctx, team, user, token)
		if err != nil {
			return nil, err
		}
		if granted {
			metrics.MembershipMutations.WithLabelValues("accept", "success").Inc()
			return team, nil
		}
	}

	if err := s.acceptByEmail(ctx, team, user, accountEmail); err != nil {
		metrics.MembershipMutations.WithLabelValues("accept", "conflict").Inc()
		return nil, err
	}

	metrics.MembershipMutations.WithLabelValues("accept", "success").Inc()
	return team, nil
}

// acceptByReferral grants membership when some member of the team issued the
// token. It reports false, nil when the token matches nobody so the caller
// can fall back to the email path.
func (s *MembershipService) acceptByReferral(ctx context.Context, team *models.Team, user *models.User, token string) (bool, error) {
	var sponsor models.User
	err := s.db.WithContext(ctx).
		Take(&sponsor, "referral_token = ? AND team_id = ?", token, team.ID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("membership service: lookup referral token: %w", err)
	}

	if user.BelongsTo(team.ID) {
		// Second redemption after success: membership already granted,
		// referredBy stays as it is.
		return true, nil
	}

	attempt := func(team *models.Team) error {
		return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			if err := grantMembership(tx, team.ID, user.ID); err != nil {
				return err
			}

			// First successful referral wins; later tokens never overwrite.
			err := tx.Model(&models.User{}).
				Where("id = ? AND referred_by IS NULL", user.ID).
				Update("referred_by", token).Error
			if err != nil {
				return fmt.Errorf("membership service: set referred_by: %w", err)
			}

			return bumpTeamVersion(tx, team)
		})
	}

	if err := s.retryOnStaleVersion(ctx, team, attempt); err != nil {
		return false, err
	}
	return true, nil
}

func (s *MembershipService) acceptByEmail(ctx context.Context, team *models.Team, user *models.User, accountEmail string) error {
	emails := uniqueEmails(accountEmail, user.Email)
	if len(emails) == 0 {
		return ErrMembershipNotResolved
	}

	var invites []models.Invitation
	err := s.db.WithContext(ctx).
		Where("invitee_email IN ? AND status = ?", emails, models.InvitationPending).
		Find(&invites).Error
	if err != nil {
		return fmt.Errorf("membership service: load invitations: %w", err)
	}

	granted := user.BelongsTo(team.ID)
	for _, invite := range invites {
		if invite.For(team.ID) {
			attempt := func(team *models.Team) error {
				return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
					if err := resolveInvitation(tx, invite.ID, models.InvitationAccepted); err != nil {
						return err
					}
					if err := grantMembership(tx, team.ID, user.ID); err != nil {
						return err
					}
					return bumpTeamVersion(tx, team)
				})
			}
			if err := s.retryOnStaleVersion(ctx, team, attempt); err != nil {
				return err
			}
			granted = true
			continue
		}

		// Invitations to other teams surfaced by the same lookup are
		// auto-declined, matching the historical accept flow.
		if err := resolveInvitation(s.db.WithContext(ctx), invite.ID, models.InvitationDeclined); err != nil {
			return err
		}
	}

	if !granted {
		return ErrMembershipNotResolved
	}
	return nil
}

// Follow subscribes the caller to a team's updates. Following twice is a
// no-op.
func (s *MembershipService) Follow(ctx context.Context, caller Caller, teamRef string) (*models.TeamFollow, error) {
	ctx = ensureContext(ctx)

	user, err := userByID(ctx, s.db, caller.UserID)
	if err != nil {
		return nil, err
	}
	team, err := teamByRef(ctx, s.db, teamRef)
	if err != nil {
		return nil, err
	}

	follow := &models.TeamFollow{UserID: user.ID, TeamID: team.ID}
	if err := s.db.WithContext(ctx).Create(follow).Error; err != nil {
		if isUniqueConstraintError(err) {
			var existing models.TeamFollow
			if err := s.db.WithContext(ctx).Take(&existing, "user_id = ? AND team_id = ?", user.ID, team.ID).Error; err != nil {
				return nil, fmt.Errorf("membership service: load follow: %w", err)
			}
			return &existing, nil
		}
		return nil, fmt.Errorf("membership service: create follow: %w", err)
	}
	return follow, nil
}

// Unfollow removes the caller's follow edge if present.
func (s *MembershipService) Unfollow(ctx context.Context, caller Caller, teamRef string) error {
	ctx = ensureContext(ctx)

	user, err := userByID(ctx, s.db, caller.UserID)
	if err != nil {
		return err
	}
	team, err := teamByRef(ctx, s.db, teamRef)
	if err != nil {
		return err
	}

	return s.db.WithContext(ctx).
		Where("user_id = ? AND team_id = ?", user.ID, team.ID).
		Delete(&models.TeamFollow{}).Error
}

// IsFollowing reports whether the caller follows the team.
func (s *MembershipService) IsFollowing(ctx context.Context, caller Caller, teamRef string) (bool, error) {
	ctx = ensureContext(ctx)

	team, err := teamByRef(ctx, s.db, teamRef)
	if err != nil {
		return false, err
	}

	var count int64
	err = s.db.WithContext(ctx).
		Model(&models.TeamFollow{}).
		Where("user_id = ? AND team_id = ?", caller.UserID, team.ID).
		Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("membership service: check follow: %w", err)
	}
	return count > 0, nil
}

func (s *MembershipService) retryOnStaleVersion(ctx context.Context, team *models.Team, attempt func(*models.Team) error) error {
	err := attempt(team)
	if !errors.Is(err, errStaleVersion) {
		return err
	}

	fresh, reloadErr := teamByRef(ctx, s.db, team.ID)
	if reloadErr != nil {
		return reloadErr
	}
	err = attempt(fresh)
	if errors.Is(err, errStaleVersion) {
		return apperrors.ErrConflict
	}
	return err
}

func (s *MembershipService) joinRequest(ctx context.Context, teamID, userID string) (*models.JoinRequest, error) {
	var request models.JoinRequest
	err := s.db.WithContext(ctx).Take(&request, "team_id = ? AND user_id = ?", teamID, userID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrJoinRequestNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("membership service: load join request: %w", err)
	}
	return &request, nil
}

func (s *MembershipService) notifyAdmins(ctx context.Context, team *models.Team, kind string, fields map[string]any) {
	adminIDs, err := teamAdminIDs(ctx, s.db, team.ID)
	if err != nil || len(adminIDs) == 0 {
		return
	}
	s.dispatch(kind, adminIDs, fields)
}

func (s *MembershipService) dispatch(kind string, recipientIDs []string, fields map[string]any) {
	if s.dispatcher == nil {
		return
	}
	s.dispatcher.Send(kind, recipientIDs, fields)
}

// grantMembership moves the user onto the team and mints a referral token on
// first membership.
func grantMembership(tx *gorm.DB, teamID, userID string) error {
	err := tx.Model(&models.User{}).
		Where("id = ?", userID).
		Update("team_id", teamID).Error
	if err != nil {
		return fmt.Errorf("membership service: grant membership: %w", err)
	}

	token, err := crypto.GenerateToken(referralTokenBytes)
	if err != nil {
		return fmt.Errorf("membership service: mint referral token: %w", err)
	}
	err = tx.Model(&models.User{}).
		Where("id = ? AND referral_token IS NULL", userID).
		Update("referral_token", token).Error
	if err != nil {
		return fmt.Errorf("membership service: store referral token: %w", err)
	}
	return nil
}

// bumpTeamVersion commits the optimistic write; a zero row count means the
// version the writer read is stale.
func bumpTeamVersion(tx *gorm.DB, team *models.Team) error {
	res := tx.Model(&models.Team{}).
		Where("id = ? AND lock_version = ?", team.ID, team.LockVersion).
		Update("lock_version", team.LockVersion+1)
	if res.Error != nil {
		return fmt.Errorf("membership service: bump team version: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return errStaleVersion
	}
	return nil
}

func resolveInvitation(tx *gorm.DB, inviteID, status string) error {
	res := tx.Model(&models.Invitation{}).
		Where("id = ? AND status = ?", inviteID, models.InvitationPending).
		Update("status", status)
	if res.Error != nil {
		return fmt.Errorf("membership service: resolve invitation: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return apperrors.ErrConflict
	}
	return nil
}
