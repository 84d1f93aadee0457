package types

// Default and maximum page sizes used by list endpoints.
const (
	DefaultPerPage = 20
	MaxPerPage     = 100
)

// Pagination describes one page of a list response.
type Pagination struct {
	Page    int  `json:"page"`
	Pages   int  `json:"pages"`
	PerPage int  `json:"per_page"`
	Total   int  `json:"total"`
	HasNext bool `json:"has_next"`
	HasPrev bool `json:"has_prev"`
}

// NewPagination computes page counts for total items split into pages of perPage.
// page is clamped to at least 1 and perPage to at least 1.
func NewPagination(page, perPage, total int) Pagination {
	if page < 1 {
		page = 1
	}
	if perPage < 1 {
		perPage = 1
	}
	if total < 0 {
		total = 0
	}

	pages := 0
	if total > 0 {
		pages = (total + perPage - 1) / perPage
	}

	return Pagination{
		Page:    page,
		Pages:   pages,
		PerPage: perPage,
		Total:   total,
		HasNext: page < pages,
		HasPrev: page > 1,
	}
}

// Offset returns the number of rows to skip for this page.
func (p Pagination) Offset() int {
	return (p.Page - 1) * p.PerPage
}

// PageRequest holds the page/per_page query parameters of a list call.
type PageRequest struct {
	Page    int
	PerPage int
}

// Normalize clamps the request: page >= 1, 1 <= per_page <= maxPerPage,
// with defaultPerPage substituted when per_page is unset.
func (r PageRequest) Normalize(defaultPerPage, maxPerPage int) PageRequest {
	if r.Page < 1 {
		r.Page = 1
	}
	if r.PerPage < 1 {
		r.PerPage = defaultPerPage
	}
	if r.PerPage > maxPerPage {
		r.PerPage = maxPerPage
	}
	return r
}

// Limit returns the SQL LIMIT for the request.
func (r PageRequest) Limit() int {
	return r.PerPage
}

// Offset returns the SQL OFFSET for the request.
func (r PageRequest) Offset() int {
	return (r.Page - 1) * r.PerPage
}
