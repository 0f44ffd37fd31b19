package api

import (
	"net/http"
	"strconv"
)

// PaginationParams holds parsed pagination values from query params.
type PaginationParams struct {
	Page   int
	Limit  int
	Offset int
}

// PaginationMeta contains pagination metadata for the response.
type PaginationMeta struct {
	Page    int  `json:"page"`
	Limit   int  `json:"limit"`
	HasMore bool `json:"has_more"`
}

// ParsePagination extracts page and limit from query params with defaults.
// maxLimit caps the maximum allowed limit.
func ParsePagination(r *http.Request, defaultLimit, maxLimit int) PaginationParams {
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = defaultLimit
	}
	if limit > maxLimit {
		limit = maxLimit
	}

	return PaginationParams{
		Page:   page,
		Limit:  limit,
		Offset: (page - 1) * limit,
	}
}

// fetchLimit returns the limit to query so one extra row reveals a next page.
func (p PaginationParams) fetchLimit() int { return p.Limit + 1 }

// trim cuts an over-fetched result back to the page size and reports whether more
// rows exist.
func trim[T any](rows []T, p PaginationParams) ([]T, PaginationMeta) {
	more := len(rows) > p.Limit
	if more {
		rows = rows[:p.Limit]
	}
	return rows, PaginationMeta{Page: p.Page, Limit: p.Limit, HasMore: more}
}
