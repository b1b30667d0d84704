package services

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/hectorgon/coderwall/internal/models"
	apperrors "github.com/hectorgon/coderwall/pkg/errors"
)

func TestRequestJoinCreatesPendingRequest(t *testing.T) {
	db := openTestDB(t)
	dispatcher := &recordingDispatcher{}
	service, err := NewMembershipService(db, dispatcher)
	require.NoError(t, err)

	team := createTeam(t, db, "initech")
	admin := createUser(t, db, "admin", func(u *models.User) { u.TeamID = &team.ID })
	makeAdmin(t, db, team, admin)
	applicant := createUser(t, db, "applicant")

	request, err := service.RequestJoin(context.Background(), Caller{UserID: applicant.ID}, team.Slug)
	require.NoError(t, err)
	require.Equal(t, models.JoinRequestPending, request.Status)

	// A second submission while the first is pending returns the same request.
	again, err := service.RequestJoin(context.Background(), Caller{UserID: applicant.ID}, team.ID)
	require.NoError(t, err)
	require.Equal(t, request.ID, again.ID)

	var count int64
	require.NoError(t, db.Model(&models.JoinRequest{}).Count(&count).Error)
	require.EqualValues(t, 1, count)

	require.Equal(t, []string{"join_request.submitted"}, dispatcher.kinds())
	require.Equal(t, []string{admin.ID}, dispatcher.events[0].Recipients)
}

func TestRequestJoinRejectsExistingMember(t *testing.T) {
	db := openTestDB(t)
	service, err := NewMembershipService(db, nil)
	require.NoError(t, err)

	team := createTeam(t, db, "initech")
	member := createUser(t, db, "member", func(u *models.User) { u.TeamID = &team.ID })

	_, err = service.RequestJoin(context.Background(), Caller{UserID: member.ID}, team.Slug)
	require.ErrorIs(t, err, ErrAlreadyMember)
}

func TestRequestJoinAfterResolutionConflicts(t *testing.T) {
	db := openTestDB(t)
	service, err := NewMembershipService(db, nil)
	require.NoError(t, err)

	team := createTeam(t, db, "initech")
	applicant := createUser(t, db, "applicant")
	require.NoError(t, db.Create(&models.JoinRequest{
		TeamID: team.ID,
		UserID: applicant.ID,
		Status: models.JoinRequestDenied,
	}).Error)

	_, err = service.RequestJoin(context.Background(), Caller{UserID: applicant.ID}, team.Slug)
	require.ErrorIs(t, err, ErrJoinRequestResolved)
}

func TestApproveJoinGrantsMembershipExactlyOnce(t *testing.T) {
	db := openTestDB(t)
	service, err := NewMembershipService(db, &recordingDispatcher{})
	require.NoError(t, err)

	team := createTeam(t, db, "initech")
	admin := createUser(t, db, "admin", func(u *models.User) { u.TeamID = &team.ID })
	makeAdmin(t, db, team, admin)
	applicant := createUser(t, db, "applicant")

	_, err = service.RequestJoin(context.Background(), Caller{UserID: applicant.ID}, team.Slug)
	require.NoError(t, err)

	require.NoError(t, service.ApproveJoin(context.Background(), Caller{UserID: admin.ID}, team.Slug, applicant.ID))

	var joined models.User
	require.NoError(t, db.Take(&joined, "id = ?", applicant.ID).Error)
	require.NotNil(t, joined.TeamID)
	require.Equal(t, team.ID, *joined.TeamID)
	require.NotNil(t, joined.ReferralToken, "first membership mints a referral token")

	var fresh models.Team
	require.NoError(t, db.Take(&fresh, "id = ?", team.ID).Error)
	require.EqualValues(t, team.LockVersion+1, fresh.LockVersion)

	// The request is terminal: a second resolution observes the lost race.
	err = service.ApproveJoin(context.Background(), Caller{UserID: admin.ID}, team.Slug, applicant.ID)
	require.ErrorIs(t, err, ErrJoinRequestResolved)
}

func TestDenyAfterApproveConflicts(t *testing.T) {
	db := openTestDB(t)
	service, err := NewMembershipService(db, nil)
	require.NoError(t, err)

	team := createTeam(t, db, "initech")
	admin := createUser(t, db, "admin", func(u *models.User) { u.TeamID = &team.ID })
	makeAdmin(t, db, team, admin)
	applicant := createUser(t, db, "applicant")

	_, err = service.RequestJoin(context.Background(), Caller{UserID: applicant.ID}, team.Slug)
	require.NoError(t, err)

	require.NoError(t, service.ApproveJoin(context.Background(), Caller{UserID: admin.ID}, team.Slug, applicant.ID))

	err = service.DenyJoin(context.Background(), Caller{UserID: admin.ID}, team.Slug, applicant.ID)
	require.ErrorIs(t, err, ErrJoinRequestResolved)

	// The approval outcome stands.
	var joined models.User
	require.NoError(t, db.Take(&joined, "id = ?", applicant.ID).Error)
	require.NotNil(t, joined.TeamID)
	require.Equal(t, team.ID, *joined.TeamID)
}

func TestResolveJoinRequiresAdminOrOperator(t *testing.T) {
	db := openTestDB(t)
	service, err := NewMembershipService(db, nil)
	require.NoError(t, err)

	team := createTeam(t, db, "initech")
	applicant := createUser(t, db, "applicant")
	bystander := createUser(t, db, "bystander")

	_, err = service.RequestJoin(context.Background(), Caller{UserID: applicant.ID}, team.Slug)
	require.NoError(t, err)

	err = service.ApproveJoin(context.Background(), Caller{UserID: bystander.ID}, team.Slug, applicant.ID)
	require.ErrorIs(t, err, apperrors.ErrForbidden)

	// Operators bypass the team admin check.
	require.NoError(t, service.ApproveJoin(context.Background(), Caller{UserID: bystander.ID, Operator: true}, team.Slug, applicant.ID))
}

func TestApproveJoinMissingRequest(t *testing.T) {
	db := openTestDB(t)
	service, err := NewMembershipService(db, nil)
	require.NoError(t, err)

	team := createTeam(t, db, "initech")
	stranger := createUser(t, db, "stranger")

	err = service.ApproveJoin(context.Background(), Caller{Operator: true}, team.Slug, stranger.ID)
	require.ErrorIs(t, err, ErrJoinRequestNotFound)
}

func TestApproveJoinRetriesStaleVersionOnce(t *testing.T) {
	db := openTestDB(t)
	service, err := NewMembershipService(db, nil)
	require.NoError(t, err)

	team := createTeam(t, db, "initech")
	applicant := createUser(t, db, "applicant")
	_, err = service.RequestJoin(context.Background(), Caller{UserID: applicant.ID}, team.Slug)
	require.NoError(t, err)

	// A concurrent writer moved the version past what any reader has seen.
	require.NoError(t, db.Model(&models.Team{}).
		Where("id = ?", team.ID).
		Update("lock_version", team.LockVersion+1).Error)

	// The retry reloads fresh state and succeeds.
	require.NoError(t, service.ApproveJoin(context.Background(), Caller{Operator: true}, team.ID, applicant.ID))

	var fresh models.Team
	require.NoError(t, db.Take(&fresh, "id = ?", team.ID).Error)
	require.EqualValues(t, team.LockVersion+2, fresh.LockVersion)
}

func TestAcceptInviteByReferralToken(t *testing.T) {
	db := openTestDB(t)
	service, err := NewMembershipService(db, nil)
	require.NoError(t, err)

	team := createTeam(t, db, "initech")
	token := "ref-sponsor-token"
	createUser(t, db, "sponsor", func(u *models.User) {
		u.TeamID = &team.ID
		u.ReferralToken = &token
	})
	invitee := createUser(t, db, "invitee")

	joined, err := service.AcceptInvite(context.Background(), Caller{UserID: invitee.ID}, team.Slug, token, "")
	require.NoError(t, err)
	require.Equal(t, team.ID, joined.ID)

	var fresh models.User
	require.NoError(t, db.Take(&fresh, "id = ?", invitee.ID).Error)
	require.NotNil(t, fresh.TeamID)
	require.Equal(t, team.ID, *fresh.TeamID)
	require.NotNil(t, fresh.ReferredBy)
	require.Equal(t, token, *fresh.ReferredBy)

	// Redeeming again is a no-op; referredBy is write-once.
	_, err = service.AcceptInvite(context.Background(), Caller{UserID: invitee.ID}, team.Slug, token, "")
	require.NoError(t, err)

	require.NoError(t, db.Take(&fresh, "id = ?", invitee.ID).Error)
	require.Equal(t, token, *fresh.ReferredBy)
}

func TestAcceptInviteUnknownTokenFallsBackToEmail(t *testing.T) {
	db := openTestDB(t)
	service, err := NewMembershipService(db, nil)
	require.NoError(t, err)

	team := createTeam(t, db, "initech")
	inviter := createUser(t, db, "inviter", func(u *models.User) { u.TeamID = &team.ID })
	invitee := createUser(t, db, "invitee")
	require.NoError(t, db.Create(&models.Invitation{
		InviterID:    inviter.ID,
		InviteeEmail: invitee.Email,
		TeamID:       team.ID,
		Status:       models.InvitationPending,
	}).Error)

	_, err = service.AcceptInvite(context.Background(), Caller{UserID: invitee.ID}, team.Slug, "no-such-token", "")
	require.NoError(t, err)

	var fresh models.User
	require.NoError(t, db.Take(&fresh, "id = ?", invitee.ID).Error)
	require.NotNil(t, fresh.TeamID)
	require.Equal(t, team.ID, *fresh.TeamID)
	require.Nil(t, fresh.ReferredBy)
}

func TestAcceptInviteDeclinesOtherTeamInvitations(t *testing.T) {
	db := openTestDB(t)
	service, err := NewMembershipService(db, nil)
	require.NoError(t, err)

	team := createTeam(t, db, "initech")
	other := createTeam(t, db, "hooli")
	inviter := createUser(t, db, "inviter", func(u *models.User) { u.TeamID = &team.ID })
	invitee := createUser(t, db, "invitee")

	target := &models.Invitation{
		InviterID:    inviter.ID,
		InviteeEmail: invitee.Email,
		TeamID:       team.ID,
		Status:       models.InvitationPending,
	}
	stray := &models.Invitation{
		InviterID:    inviter.ID,
		InviteeEmail: invitee.Email,
		TeamID:       other.ID,
		Status:       models.InvitationPending,
	}
	require.NoError(t, db.Create(target).Error)
	require.NoError(t, db.Create(stray).Error)

	_, err = service.AcceptInvite(context.Background(), Caller{UserID: invitee.ID}, team.Slug, "", "")
	require.NoError(t, err)

	var accepted, declined models.Invitation
	require.NoError(t, db.Take(&accepted, "id = ?", target.ID).Error)
	require.NoError(t, db.Take(&declined, "id = ?", stray.ID).Error)
	require.Equal(t, models.InvitationAccepted, accepted.Status)
	require.Equal(t, models.InvitationDeclined, declined.Status)

	var fresh models.User
	require.NoError(t, db.Take(&fresh, "id = ?", invitee.ID).Error)
	require.NotNil(t, fresh.TeamID)
	require.Equal(t, team.ID, *fresh.TeamID)
}

func TestAcceptInviteMatchesAccountEmail(t *testing.T) {
	db := openTestDB(t)
	service, err := NewMembershipService(db, nil)
	require.NoError(t, err)

	team := createTeam(t, db, "initech")
	inviter := createUser(t, db, "inviter", func(u *models.User) { u.TeamID = &team.ID })
	invitee := createUser(t, db, "invitee")
	require.NoError(t, db.Create(&models.Invitation{
		InviterID:    inviter.ID,
		InviteeEmail: "work@corp.example.com",
		TeamID:       team.ID,
		Status:       models.InvitationPending,
	}).Error)

	_, err = service.AcceptInvite(context.Background(), Caller{UserID: invitee.ID}, team.Slug, "", "Work@corp.example.com")
	require.NoError(t, err)

	var fresh models.User
	require.NoError(t, db.Take(&fresh, "id = ?", invitee.ID).Error)
	require.NotNil(t, fresh.TeamID)
	require.Equal(t, team.ID, *fresh.TeamID)
}

func TestAcceptInviteWithoutMatchIsNotResolved(t *testing.T) {
	db := openTestDB(t)
	service, err := NewMembershipService(db, nil)
	require.NoError(t, err)

	team := createTeam(t, db, "initech")
	invitee := createUser(t, db, "invitee")

	_, err = service.AcceptInvite(context.Background(), Caller{UserID: invitee.ID}, team.Slug, "", "")
	require.ErrorIs(t, err, ErrMembershipNotResolved)

	var fresh models.User
	require.NoError(t, db.Take(&fresh, "id = ?", invitee.ID).Error)
	require.Nil(t, fresh.TeamID)
}

func TestFollowIsIdempotent(t *testing.T) {
	db := openTestDB(t)
	service, err := NewMembershipService(db, nil)
	require.NoError(t, err)

	team := createTeam(t, db, "initech")
	user := createUser(t, db, "fan")

	first, err := service.Follow(context.Background(), Caller{UserID: user.ID}, team.Slug)
	require.NoError(t, err)

	second, err := service.Follow(context.Background(), Caller{UserID: user.ID}, team.Slug)
	require.NoError(t, err)
	require.Equal(t, first.ID, second.ID)

	following, err := service.IsFollowing(context.Background(), Caller{UserID: user.ID}, team.Slug)
	require.NoError(t, err)
	require.True(t, following)

	require.NoError(t, service.Unfollow(context.Background(), Caller{UserID: user.ID}, team.Slug))

	following, err = service.IsFollowing(context.Background(), Caller{UserID: user.ID}, team.Slug)
	require.NoError(t, err)
	require.False(t, following)
}

func TestTeamLookupBySlugAndID(t *testing.T) {
	db := openTestDB(t)
	service, err := NewMembershipService(db, nil)
	require.NoError(t, err)

	team := createTeam(t, db, "initech")
	user := createUser(t, db, "fan")

	_, err = service.Follow(context.Background(), Caller{UserID: user.ID}, "INITECH")
	require.NoError(t, err)

	_, err = service.Follow(context.Background(), Caller{UserID: user.ID}, team.ID)
	require.NoError(t, err)

	_, err = service.Follow(context.Background(), Caller{UserID: user.ID}, "no-such-team")
	require.ErrorIs(t, err, ErrTeamNotFound)

	var notFound *apperrors.AppError
	require.True(t, errors.As(err, &notFound))
}
