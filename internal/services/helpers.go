package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/hectorgon/coderwall/internal/models"
)

func ensureContext(ctx context.Context) context.Context {
	if ctx == nil {
		return context.Background()
	}
	return ctx
}

// teamByRef resolves an identifier-or-slug reference. Malformed identifiers
// fall back to a lowercase slug lookup instead of propagating a storage
// error.
func teamByRef(ctx context.Context, db *gorm.DB, ref string) (*models.Team, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return nil, ErrTeamNotFound
	}

	var team models.Team
	if _, err := uuid.Parse(ref); err == nil {
		err := db.WithContext(ctx).Take(&team, "id = ?", ref).Error
		if err == nil {
			return &team, nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("load team: %w", err)
		}
	}

	err := db.WithContext(ctx).Take(&team, "slug = ?", strings.ToLower(ref)).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrTeamNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load team by slug: %w", err)
	}
	return &team, nil
}

func userByID(ctx context.Context, db *gorm.DB, id string) (*models.User, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, ErrUserNotFound
	}

	var user models.User
	err := db.WithContext(ctx).Take(&user, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load user: %w", err)
	}
	return &user, nil
}

// isTeamAdmin reports whether the user sits in the team's admin set.
func isTeamAdmin(ctx context.Context, db *gorm.DB, teamID, userID string) (bool, error) {
	if strings.TrimSpace(userID) == "" {
		return false, nil
	}

	var count int64
	err := db.WithContext(ctx).
		Table("team_admins").
		Where("team_id = ? AND user_id = ?", teamID, userID).
		Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("check team admin: %w", err)
	}
	return count > 0, nil
}

// teamAdminIDs lists the admin user IDs for notification fan-out.
func teamAdminIDs(ctx context.Context, db *gorm.DB, teamID string) ([]string, error) {
	var ids []string
	err := db.WithContext(ctx).
		Table("team_admins").
		Where("team_id = ?", teamID).
		Pluck("user_id", &ids).Error
	if err != nil {
		return nil, fmt.Errorf("list team admins: %w", err)
	}
	return ids, nil
}

func uniqueEmails(values ...string) []string {
	seen := make(map[string]struct{}, len(values))
	var out []string
	for _, value := range values {
		value = strings.ToLower(strings.TrimSpace(value))
		if value == "" {
			continue
		}
		if _, exists := seen[value]; exists {
			continue
		}
		seen[value] = struct{}{}
		out = append(out, value)
	}
	return out
}
