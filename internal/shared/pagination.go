package shared

import "math"

// Pagination describes one page of an invoice or payment listing. Billing
// screens page at 20 rows unless the caller asks otherwise.
type Pagination struct {
	Page       int
	PerPage    int
	Total      int
	TotalPages int
}

// NewPagination normalizes the requested page and size and derives the page
// count from the unpaged total reported by the repository.
func NewPagination(page, perPage, total int) Pagination {
	if perPage <= 0 {
		perPage = 20
	}
	if page <= 0 {
		page = 1
	}
	totalPages := int(math.Ceil(float64(total) / float64(perPage)))
	return Pagination{Page: page, PerPage: perPage, Total: total, TotalPages: totalPages}
}
