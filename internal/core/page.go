package core

// DefaultPageLimit is the page size the ledger view requests.
const DefaultPageLimit = 5

// PageWindow is the client-held pagination cursor plus the totals the server
// last reported for it.
type PageWindow struct {
	Page              int `json:"page"`
	Limit             int `json:"limit"`
	TotalPages        int `json:"totalPages"`
	TotalTransactions int `json:"totalTransactions"`
}

// NewPageWindow returns a window positioned on page 1.
func NewPageWindow(limit int) PageWindow {
	if limit < 1 {
		limit = DefaultPageLimit
	}
	return PageWindow{Page: 1, Limit: limit, TotalPages: 1}
}

// TotalPagesFor returns ceil(n/limit), or 0 when there is nothing to page.
func TotalPagesFor(n, limit int) int {
	if n <= 0 || limit <= 0 {
		return 0
	}
	return (n + limit - 1) / limit
}

// LastPageSize returns how many transactions the final page holds.
func LastPageSize(n, limit int) int {
	pages := TotalPagesFor(n, limit)
	if pages == 0 {
		return 0
	}
	return n - limit*(pages-1)
}

// PageBounds returns the half-open index range [start, end) of page within n
// items. Pages past the end yield an empty range.
func PageBounds(n, page, limit int) (start, end int) {
	if page < 1 || limit < 1 {
		return 0, 0
	}
	start = (page - 1) * limit
	if start >= n {
		return n, n
	}
	end = start + limit
	if end > n {
		end = n
	}
	return start, end
}

// CanGoTo reports whether page is inside [1, TotalPages].
func (w PageWindow) CanGoTo(page int) bool {
	return page >= 1 && page <= w.TotalPages
}

// HasPrev reports whether a previous page exists.
func (w PageWindow) HasPrev() bool {
	return w.CanGoTo(w.Page - 1)
}

// HasNext reports whether a next page exists.
func (w PageWindow) HasNext() bool {
	return w.CanGoTo(w.Page + 1)
}

// Apply records the server-reported totals for the current page.
func (w PageWindow) Apply(p Page) PageWindow {
	w.TotalPages = p.TotalPages
	w.TotalTransactions = p.TotalTransactions
	return w
}
