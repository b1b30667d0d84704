package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/hectorgon/coderwall/internal/cache"
	"github.com/hectorgon/coderwall/internal/models"
)

const (
	// SignedInPageSize is the leaderboard page size for authenticated callers.
	SignedInPageSize = 25
	// AnonymousPageSize is the page size served to anonymous callers.
	AnonymousPageSize = 10

	defaultPageTTL     = time.Hour
	defaultFeaturedTTL = 4 * time.Hour

	featuredCacheKey = "teams:featured"
)

// LeaderboardService ranks teams by relevancy and serves cached pages.
type LeaderboardService struct {
	db      *gorm.DB
	gateway *cache.Gateway

	pageTTL     time.Duration
	featuredTTL time.Duration
}

// LeaderboardOption customises LeaderboardService behaviour.
type LeaderboardOption func(*LeaderboardService)

// WithPageTTL overrides the leaderboard page cache lifetime.
func WithPageTTL(d time.Duration) LeaderboardOption {
	return func(s *LeaderboardService) {
		if d > 0 {
			s.pageTTL = d
		}
	}
}

// WithFeaturedTTL overrides the featured list cache lifetime.
func WithFeaturedTTL(d time.Duration) LeaderboardOption {
	return func(s *LeaderboardService) {
		if d > 0 {
			s.featuredTTL = d
		}
	}
}

// NewLeaderboardService constructs a LeaderboardService instance.
func NewLeaderboardService(db *gorm.DB, gateway *cache.Gateway, opts ...LeaderboardOption) (*LeaderboardService, error) {
	if db == nil {
		return nil, errors.New("leaderboard service: db is required")
	}
	if gateway == nil {
		return nil, errors.New("leaderboard service: cache gateway is required")
	}

	service := &LeaderboardService{
		db:          db,
		gateway:     gateway,
		pageTTL:     defaultPageTTL,
		featuredTTL: defaultFeaturedTTL,
	}
	for _, opt := range opts {
		opt(service)
	}
	return service, nil
}

// Top returns one leaderboard page ordered by descending relevancy, ties
// broken by creation order. The page is cached for an hour under a key
// derived from every effective parameter; a forced refresh bypasses the read
// but still writes the fresh value. An empty non-first page returns
// ErrPageOutOfRange so the boundary can redirect to the canonical first page.
func (s *LeaderboardService) Top(ctx context.Context, page, pageSize int, country string, forceRefresh bool) ([]models.PublicHash, error) {
	ctx = ensureContext(ctx)

	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = AnonymousPageSize
	}
	country = strings.TrimSpace(country)

	key := fmt.Sprintf("teams:leaderboard:%d:%d:%s", page, pageSize, strings.ToLower(country))
	payload, err := s.gateway.GetOrCompute(ctx, key, s.pageTTL, forceRefresh, func(ctx context.Context) ([]byte, error) {
		teams, err := s.rankedPage(ctx, page, pageSize, country)
		if err != nil {
			return nil, err
		}
		return json.Marshal(teams)
	})
	if err != nil {
		return nil, err
	}

	var teams []models.PublicHash
	if err := json.Unmarshal(payload, &teams); err != nil {
		return nil, fmt.Errorf("leaderboard service: decode cached page: %w", err)
	}

	if len(teams) == 0 && page > 1 {
		return nil, ErrPageOutOfRange
	}
	return teams, nil
}

// RankToPage maps a zero-based rank to the page containing it.
func (s *LeaderboardService) RankToPage(rank, pageSize int) int {
	if pageSize < 1 {
		pageSize = SignedInPageSize
	}
	if rank < 0 {
		rank = 0
	}
	return (rank / pageSize) + 1
}

// Featured returns the featured team list: sorted by relevancy descending,
// zero-job teams excluded, then reversed for display. The list is cached
// under one shared key for four hours with no manual invalidation path.
func (s *LeaderboardService) Featured(ctx context.Context) ([]models.PublicHash, error) {
	ctx = ensureContext(ctx)

	payload, err := s.gateway.GetOrCompute(ctx, featuredCacheKey, s.featuredTTL, false, func(ctx context.Context) ([]byte, error) {
		var teams []models.Team
		if err := s.db.WithContext(ctx).Find(&teams).Error; err != nil {
			return nil, fmt.Errorf("leaderboard service: load teams: %w", err)
		}

		sort.SliceStable(teams, func(i, j int) bool {
			return teams[i].Relevancy > teams[j].Relevancy
		})

		featured := make([]models.PublicHash, 0, len(teams))
		for _, team := range teams {
			if team.JobCount == 0 {
				continue
			}
			featured = append(featured, team.Public())
		}
		for i, j := 0, len(featured)-1; i < j; i, j = i+1, j-1 {
			featured[i], featured[j] = featured[j], featured[i]
		}

		return json.Marshal(featured)
	})
	if err != nil {
		return nil, err
	}

	var featured []models.PublicHash
	if err := json.Unmarshal(payload, &featured); err != nil {
		return nil, fmt.Errorf("leaderboard service: decode featured list: %w", err)
	}
	return featured, nil
}

func (s *LeaderboardService) rankedPage(ctx context.Context, page, pageSize int, country string) ([]models.PublicHash, error) {
	query := s.db.WithContext(ctx).
		Model(&models.Team{}).
		Order("relevancy DESC").
		Order("created_at ASC")
	if country != "" {
		query = query.Where("country = ?", country)
	}

	var teams []models.Team
	err := query.
		Limit(pageSize).
		Offset((page - 1) * pageSize).
		Find(&teams).Error
	if err != nil {
		return nil, fmt.Errorf("leaderboard service: rank teams: %w", err)
	}

	ranked := make([]models.PublicHash, 0, len(teams))
	for i, team := range teams {
		public := team.Public()
		public.Rank = (page-1)*pageSize + i + 1
		ranked = append(ranked, public)
	}
	return ranked, nil
}
