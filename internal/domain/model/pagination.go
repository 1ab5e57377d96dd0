package model

// DefaultPageLimit applies when a search omits Limit.
const DefaultPageLimit = 25

// Pagination selects a page of results using an opaque vendor cursor.
type Pagination struct {
	Limit  int    `json:"limit,omitempty" validate:"omitempty,min=1,max=500"`
	Cursor string `json:"cursor,omitempty"`
}

// EffectiveLimit returns Limit or DefaultPageLimit when unset.
func (p Pagination) EffectiveLimit() int {
	if p.Limit <= 0 {
		return DefaultPageLimit
	}
	return p.Limit
}

// Page is one page of search results. NextCursor is empty on the last page.
type Page[T any] struct {
	Items      []T    `json:"items"`
	NextCursor string `json:"next_cursor,omitempty"`
	Total      int    `json:"total,omitempty"` // Zero when the vendor does not report totals.
}
