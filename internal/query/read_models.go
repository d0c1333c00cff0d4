package query

// Page is one page of a listing with its totals
type Page[T any] struct {
	Data       []T `json:"data"`
	Page       int `json:"page"`
	Limit      int `json:"limit"`
	Total      int `json:"total"`
	TotalPages int `json:"total_pages"`
}

// NewPage computes TotalPages and never returns a nil Data slice
func NewPage[T any](data []T, page, limit, total int) Page[T] {
	if data == nil {
		data = []T{}
	}
	pages := 0
	if limit > 0 {
		pages = (total + limit - 1) / limit
	}
	return Page[T]{Data: data, Page: page, Limit: limit, Total: total, TotalPages: pages}
}
