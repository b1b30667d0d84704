package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/hectorgon/coderwall/internal/cache"
	"github.com/hectorgon/coderwall/internal/models"
	apperrors "github.com/hectorgon/coderwall/pkg/errors"
)

func TestRecordExitUpsertsPerVisitor(t *testing.T) {
	db := openTestDB(t)
	service, err := NewVisitorService(db, nil)
	require.NoError(t, err)

	team := createTeam(t, db, "initech")
	viewer := createUser(t, db, "viewer")

	caller := Caller{UserID: viewer.ID}
	require.NoError(t, service.RecordExit(context.Background(), caller, team.Slug, ExitEvent{
		ExitURL:        "https://initech.example.com/jobs",
		ExitTargetType: "job",
		ScrollDepth:    "50%",
		TimeSpent:      30,
	}))
	require.NoError(t, service.RecordExit(context.Background(), caller, team.Slug, ExitEvent{
		ExitURL:        "https://initech.example.com/about",
		ExitTargetType: "website",
		ScrollDepth:    "100%",
		TimeSpent:      95,
	}))

	var records []models.VisitorRecord
	require.NoError(t, db.Where("team_id = ?", team.ID).Find(&records).Error)
	require.Len(t, records, 1, "repeat exits collapse onto one row per visitor")
	require.EqualValues(t, 2, records[0].Visits)
	require.Equal(t, "https://initech.example.com/about", records[0].ExitURL)
	require.Equal(t, "website", records[0].ExitTargetType)
	require.Equal(t, "100%", records[0].ScrollDepth)
	require.EqualValues(t, 95, records[0].TimeSpent)

	// A different identity gets its own row.
	require.NoError(t, service.RecordExit(context.Background(), Caller{SessionID: "anon-1"}, team.Slug, ExitEvent{}))
	require.NoError(t, db.Where("team_id = ?", team.ID).Find(&records).Error)
	require.Len(t, records, 2)
}

func TestRecordExitSkipsOperators(t *testing.T) {
	db := openTestDB(t)
	service, err := NewVisitorService(db, nil)
	require.NoError(t, err)

	team := createTeam(t, db, "initech")
	staff := createUser(t, db, "staff", func(u *models.User) { u.IsOperator = true })

	require.NoError(t, service.RecordExit(context.Background(), Caller{UserID: staff.ID, Operator: true}, team.Slug, ExitEvent{
		ExitURL: "https://initech.example.com",
	}))

	var count int64
	require.NoError(t, db.Model(&models.VisitorRecord{}).Count(&count).Error)
	require.Zero(t, count)
}

func TestRecordExitRequiresIdentity(t *testing.T) {
	db := openTestDB(t)
	service, err := NewVisitorService(db, nil)
	require.NoError(t, err)

	team := createTeam(t, db, "initech")

	err = service.RecordExit(context.Background(), Caller{}, team.Slug, ExitEvent{})
	require.Error(t, err)
	require.Equal(t, apperrors.ErrBadRequest.Code, apperrors.FromError(err).Code)
}

func TestAggregateExcludesCurrentMembers(t *testing.T) {
	db := openTestDB(t)
	service, err := NewVisitorService(db, nil)
	require.NoError(t, err)

	team := createTeam(t, db, "initech", func(tm *models.Team) {
		tm.Analytics = true
		tm.TotalViews = 120
		tm.Impressions = 800
	})
	admin := createUser(t, db, "admin", func(u *models.User) { u.TeamID = &team.ID })
	makeAdmin(t, db, team, admin)
	member := createUser(t, db, "member", func(u *models.User) { u.TeamID = &team.ID })
	outsider := createUser(t, db, "outsider")

	require.NoError(t, service.RecordExit(context.Background(), Caller{UserID: member.ID}, team.Slug, ExitEvent{}))
	require.NoError(t, service.RecordExit(context.Background(), Caller{UserID: outsider.ID}, team.Slug, ExitEvent{}))
	require.NoError(t, service.RecordExit(context.Background(), Caller{SessionID: "anon-1"}, team.Slug, ExitEvent{}))

	report, err := service.Aggregate(context.Background(), Caller{UserID: admin.ID}, team.Slug, false)
	require.NoError(t, err)
	require.Len(t, report.Visitors, 2, "the team's own members are not visitors")
	for _, visitor := range report.Visitors {
		require.NotEqual(t, member.ID, visitor.VisitorID)
	}
	require.EqualValues(t, 120, report.TotalViews)
	require.EqualValues(t, 800, report.Impressions)
}

func TestAggregateAuthorization(t *testing.T) {
	db := openTestDB(t)
	service, err := NewVisitorService(db, nil)
	require.NoError(t, err)

	gated := createTeam(t, db, "gated", func(tm *models.Team) { tm.Analytics = false })
	open := createTeam(t, db, "open", func(tm *models.Team) { tm.Analytics = true })

	admin := createUser(t, db, "admin", func(u *models.User) { u.TeamID = &gated.ID })
	makeAdmin(t, db, gated, admin)
	makeAdmin(t, db, open, admin)
	outsider := createUser(t, db, "outsider")

	// Analytics disabled blocks even the team admin.
	_, err = service.Aggregate(context.Background(), Caller{UserID: admin.ID}, gated.Slug, false)
	require.ErrorIs(t, err, apperrors.ErrForbidden)

	// Enabled analytics still requires an admin seat.
	_, err = service.Aggregate(context.Background(), Caller{UserID: outsider.ID}, open.Slug, false)
	require.ErrorIs(t, err, apperrors.ErrForbidden)

	_, err = service.Aggregate(context.Background(), Caller{UserID: admin.ID}, open.Slug, false)
	require.NoError(t, err)

	// Operators bypass both gates.
	_, err = service.Aggregate(context.Background(), Caller{UserID: outsider.ID, Operator: true}, gated.Slug, true)
	require.NoError(t, err)
}

func TestAggregateAppliesLookbackWindow(t *testing.T) {
	db := openTestDB(t)

	now := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)
	service, err := NewVisitorService(db, nil, WithVisitorClock(func() time.Time { return now }))
	require.NoError(t, err)

	team := createTeam(t, db, "initech", func(tm *models.Team) { tm.Analytics = true })
	admin := createUser(t, db, "admin", func(u *models.User) { u.TeamID = &team.ID })
	makeAdmin(t, db, team, admin)

	stale := models.VisitorRecord{
		TeamID:    team.ID,
		VisitorID: "anon-old",
		VisitedAt: now.Add(-15 * 24 * time.Hour),
		Visits:    4,
	}
	recent := models.VisitorRecord{
		TeamID:    team.ID,
		VisitorID: "anon-new",
		VisitedAt: now.Add(-24 * time.Hour),
		Visits:    1,
	}
	require.NoError(t, db.Create(&stale).Error)
	require.NoError(t, db.Create(&recent).Error)

	report, err := service.Aggregate(context.Background(), Caller{UserID: admin.ID}, team.Slug, false)
	require.NoError(t, err)
	require.Len(t, report.Visitors, 1)
	require.Equal(t, "anon-new", report.Visitors[0].VisitorID)

	// Operators see the full history.
	report, err = service.Aggregate(context.Background(), Caller{Operator: true}, team.Slug, true)
	require.NoError(t, err)
	require.Len(t, report.Visitors, 2)
}

func TestAggregateCapsEntriesUnlessFullHistory(t *testing.T) {
	db := openTestDB(t)

	now := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)
	service, err := NewVisitorService(db, nil,
		WithVisitorClock(func() time.Time { return now }),
		WithVisitorCap(2))
	require.NoError(t, err)

	team := createTeam(t, db, "initech", func(tm *models.Team) { tm.Analytics = true })
	admin := createUser(t, db, "admin", func(u *models.User) { u.TeamID = &team.ID })
	makeAdmin(t, db, team, admin)

	for i := 0; i < 4; i++ {
		require.NoError(t, db.Create(&models.VisitorRecord{
			TeamID:    team.ID,
			VisitorID: string(rune('a' + i)),
			VisitedAt: now.Add(-time.Duration(i) * time.Hour),
			Visits:    1,
		}).Error)
	}

	report, err := service.Aggregate(context.Background(), Caller{UserID: admin.ID}, team.Slug, false)
	require.NoError(t, err)
	require.Len(t, report.Visitors, 2)
	// Most recent first.
	require.Equal(t, "a", report.Visitors[0].VisitorID)
	require.Equal(t, "b", report.Visitors[1].VisitorID)

	// An operator without the full flag is still capped.
	report, err = service.Aggregate(context.Background(), Caller{Operator: true}, team.Slug, false)
	require.NoError(t, err)
	require.Len(t, report.Visitors, 2)

	report, err = service.Aggregate(context.Background(), Caller{Operator: true}, team.Slug, true)
	require.NoError(t, err)
	require.Len(t, report.Visitors, 4)
}

func TestTrackViewDeduplicatesRepeatViews(t *testing.T) {
	db := openTestDB(t)
	service, err := NewVisitorService(db, cache.NewDatabaseStore(db))
	require.NoError(t, err)

	team := createTeam(t, db, "initech")
	viewer := createUser(t, db, "viewer")

	require.NoError(t, service.TrackView(context.Background(), Caller{UserID: viewer.ID}, team.Slug))
	require.NoError(t, service.TrackView(context.Background(), Caller{UserID: viewer.ID}, team.Slug))
	require.NoError(t, service.TrackView(context.Background(), Caller{SessionID: "anon-1"}, team.Slug))
	require.NoError(t, service.TrackView(context.Background(), Caller{Operator: true, SessionID: "staff"}, team.Slug))

	var fresh models.Team
	require.NoError(t, db.Take(&fresh, "id = ?", team.ID).Error)
	require.EqualValues(t, 2, fresh.TotalViews, "one view per identity per window, operators excluded")
}
