package repository

import (
	"strings"

	"libris-backend/internal/errors"
)

// Pagination bounds used when a request leaves them unset. Overridable
// through PAGINATION_DEFAULT_LIMIT and PAGINATION_MAX_LIMIT.
const (
	DefaultPageLimit = 10
	MaxPageLimit     = 100
)

// Sort directions accepted by list queries.
const (
	SortAsc  = "asc"
	SortDesc = "desc"
)

// PaginationDefaults carries the configured bounds into request
// normalization.
type PaginationDefaults struct {
	DefaultLimit int
	MaxLimit     int
}

// PageRequest is offset pagination: page/limit, an optional explicit skip
// overriding the page computation, and a sort key restricted per entity.
type PageRequest struct {
	Page      int    `json:"page"`
	Limit     int    `json:"limit"`
	Skip      *int   `json:"skip,omitempty"`
	SortBy    string `json:"sortBy,omitempty"`
	SortOrder string `json:"sortOrder,omitempty"`
}

// Normalize clamps the request into the configured bounds and defaults the
// sort order. It never errors; out-of-range values are corrected silently.
func (p PageRequest) Normalize(defaults PaginationDefaults) PageRequest {
	if defaults.DefaultLimit <= 0 {
		defaults.DefaultLimit = DefaultPageLimit
	}
	if defaults.MaxLimit <= 0 {
		defaults.MaxLimit = MaxPageLimit
	}

	if p.Page < 1 {
		p.Page = 1
	}
	if p.Limit <= 0 {
		p.Limit = defaults.DefaultLimit
	}
	if p.Limit > defaults.MaxLimit {
		p.Limit = defaults.MaxLimit
	}
	switch strings.ToLower(p.SortOrder) {
	case SortDesc:
		p.SortOrder = SortDesc
	default:
		p.SortOrder = SortAsc
	}
	return p
}

// Offset returns the number of documents to skip. An explicit Skip wins
// over the page computation.
func (p PageRequest) Offset() int {
	if p.Skip != nil && *p.Skip >= 0 {
		return *p.Skip
	}
	return (p.Page - 1) * p.Limit
}

// ValidateSort checks the sort key against the entity's allow-list. An
// unknown key is a complexity violation, not a silent fallback.
func (p PageRequest) ValidateSort(allowed map[string]bool) error {
	if p.SortBy == "" {
		return nil
	}
	if !allowed[p.SortBy] {
		return errors.NewError(errors.CodeComplexityLimitExceeded, "unsupported sort key").
			WithDetails("sortBy=%s", p.SortBy).
			Build()
	}
	return nil
}

// Pagination is the response-side envelope block.
type Pagination struct {
	Total   int  `json:"total"`
	Page    int  `json:"page"`
	Limit   int  `json:"limit"`
	Pages   int  `json:"pages"`
	HasNext bool `json:"hasNext"`
	HasPrev bool `json:"hasPrev"`
}

// PageResponse wraps one page of documents with its pagination block.
type PageResponse[T any] struct {
	Data       []T        `json:"data"`
	Pagination Pagination `json:"pagination"`
}

// NewPageResponse assembles the envelope for a normalized request.
func NewPageResponse[T any](items []T, total int, req PageRequest) *PageResponse[T] {
	pages := 0
	if req.Limit > 0 {
		pages = (total + req.Limit - 1) / req.Limit
	}
	if items == nil {
		items = []T{}
	}
	return &PageResponse[T]{
		Data: items,
		Pagination: Pagination{
			Total:   total,
			Page:    req.Page,
			Limit:   req.Limit,
			Pages:   pages,
			HasNext: req.Page < pages,
			HasPrev: req.Page > 1 && total > 0,
		},
	}
}
