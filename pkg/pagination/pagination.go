package pagination

import (
	"fmt"
	"strconv"
)

// Params represents pagination query parameters
type Params struct {
	Page   int
	Limit  int
	Offset int
}

// Page is the paginated response envelope
type Page struct {
	Page       int   `json:"page"`
	Limit      int   `json:"limit"`
	Total      int64 `json:"total"`
	TotalPages int   `json:"total_pages"`
	Items      any   `json:"items"`
}

const (
	DefaultPage  = 1
	DefaultLimit = 50
	MaxLimit     = 200
	MinLimit     = 1
)

// Parse reads page and limit query values, clamping them into range
func Parse(pageStr, limitStr string) (*Params, error) {
	page := DefaultPage
	limit := DefaultLimit

	if pageStr != "" {
		p, err := strconv.Atoi(pageStr)
		if err != nil {
			return nil, fmt.Errorf("invalid page parameter: %w", err)
		}
		if p > 1 {
			page = p
		}
	}

	if limitStr != "" {
		l, err := strconv.Atoi(limitStr)
		if err != nil {
			return nil, fmt.Errorf("invalid limit parameter: %w", err)
		}
		switch {
		case l < MinLimit:
			limit = MinLimit
		case l > MaxLimit:
			limit = MaxLimit
		default:
			limit = l
		}
	}

	return &Params{
		Page:   page,
		Limit:  limit,
		Offset: (page - 1) * limit,
	}, nil
}

// Default returns the first page with the default limit
func Default() *Params {
	return &Params{Page: DefaultPage, Limit: DefaultLimit}
}

// TotalPages calculates total pages from total count and limit
func TotalPages(total int64, limit int) int {
	if limit <= 0 {
		return 0
	}
	pages := int(total) / limit
	if int(total)%limit > 0 {
		pages++
	}
	return pages
}

// NewPage builds the response envelope
func NewPage(params *Params, total int64, items any) *Page {
	return &Page{
		Page:       params.Page,
		Limit:      params.Limit,
		Total:      total,
		TotalPages: TotalPages(total, params.Limit),
		Items:      items,
	}
}
