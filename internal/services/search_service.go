package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/hectorgon/coderwall/internal/models"
	"github.com/hectorgon/coderwall/internal/search"
	apperrors "github.com/hectorgon/coderwall/pkg/errors"
)

const (
	// SearchPageSize is the fixed page size for ranked search results.
	SearchPageSize = 30

	defaultIndexTimeout = 5 * time.Second
)

// SearchService delegates ranked team search to the search index. Results are
// not cached locally; the index owns its own caching.
type SearchService struct {
	db      *gorm.DB
	index   search.Index
	timeout time.Duration
}

// SearchOption customises SearchService behaviour.
type SearchOption func(*SearchService)

// WithIndexTimeout bounds how long an index query may run.
func WithIndexTimeout(d time.Duration) SearchOption {
	return func(s *SearchService) {
		if d > 0 {
			s.timeout = d
		}
	}
}

// NewSearchService constructs a SearchService instance.
func NewSearchService(db *gorm.DB, index search.Index, opts ...SearchOption) (*SearchService, error) {
	if db == nil {
		return nil, errors.New("search service: db is required")
	}
	if index == nil {
		return nil, errors.New("search service: index is required")
	}

	service := &SearchService{
		db:      db,
		index:   index,
		timeout: defaultIndexTimeout,
	}
	for _, opt := range opts {
		opt(service)
	}
	return service, nil
}

// Search returns one ranked page of teams. A blank query falls back to the
// index's default ranking; pages below one default to the first page. Index
// timeouts surface as Unavailable.
func (s *SearchService) Search(ctx context.Context, query, country string, page int) ([]models.PublicHash, error) {
	ctx = ensureContext(ctx)

	if page < 1 {
		page = 1
	}

	indexCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	ids, err := s.index.Query(indexCtx, query, search.Filters{Country: country}, page, SearchPageSize)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, apperrors.NewUnavailable(err)
		}
		return nil, fmt.Errorf("search service: query index: %w", err)
	}
	if len(ids) == 0 {
		return []models.PublicHash{}, nil
	}

	var teams []models.Team
	if err := s.db.WithContext(ctx).Where("id IN ?", ids).Find(&teams).Error; err != nil {
		return nil, fmt.Errorf("search service: load teams: %w", err)
	}

	byID := make(map[string]models.Team, len(teams))
	for _, team := range teams {
		byID[team.ID] = team
	}

	// Preserve the index's ranking order.
	ranked := make([]models.PublicHash, 0, len(ids))
	for i, id := range ids {
		team, ok := byID[id]
		if !ok {
			continue // deleted since the index last refreshed
		}
		public := team.Public()
		public.Rank = (page-1)*SearchPageSize + i + 1
		ranked = append(ranked, public)
	}
	return ranked, nil
}
