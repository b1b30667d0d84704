package search

import "context"

// Filters narrows a query before ranking.
type Filters struct {
	Country string
}

// Index is the ranked search collaborator. Implementations return team IDs in
// ranking order for the requested page; a blank query means the default
// ranking.
type Index interface {
	Query(ctx context.Context, text string, filters Filters, page, pageSize int) ([]string, error)
}
