package search

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"gorm.io/gorm"

	"github.com/hectorgon/coderwall/internal/models"
)

// SQLIndex ranks teams with the primary database. It stands in for a
// dedicated search cluster on smaller deployments, the same way the database
// cache store stands in for Redis.
type SQLIndex struct {
	db *gorm.DB
}

// NewSQLIndex constructs a database-backed Index.
func NewSQLIndex(db *gorm.DB) (*SQLIndex, error) {
	if db == nil {
		return nil, errors.New("search: db is required")
	}
	return &SQLIndex{db: db}, nil
}

// Query returns team IDs ordered by relevancy for the requested page. Text
// matches against name and slug; a blank query falls back to the default
// ranking.
func (i *SQLIndex) Query(ctx context.Context, text string, filters Filters, page, pageSize int) ([]string, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		return nil, errors.New("search: page size must be positive")
	}

	query := i.db.WithContext(ctx).
		Model(&models.Team{}).
		Order("relevancy DESC").
		Order("created_at ASC")

	if text = strings.TrimSpace(text); text != "" {
		pattern := "%" + strings.ToLower(text) + "%"
		query = query.Where("LOWER(name) LIKE ? OR slug LIKE ?", pattern, pattern)
	}
	if country := strings.TrimSpace(filters.Country); country != "" {
		query = query.Where("country = ?", country)
	}

	var ids []string
	err := query.
		Limit(pageSize).
		Offset((page - 1) * pageSize).
		Pluck("id", &ids).Error
	if err != nil {
		return nil, fmt.Errorf("search: query teams: %w", err)
	}

	return ids, nil
}
