package domain

// ID is used across domain entities.
type ID int64

// Status represents a lightweight state value.
type Status string

// Pagination carries paging params and totals.
type Pagination struct {
	Page     int `json:"page"`
	PageSize int `json:"pageSize"`
	Total    int `json:"total,omitempty"`
}

// Clamp forces page bounds into a sane integer range. Pagination input
// never reaches SQL unclamped.
func (p *Pagination) Clamp() {
	if p.Page < 1 {
		p.Page = 1
	}
	if p.PageSize < 1 {
		p.PageSize = 20
	}
	if p.PageSize > 100 {
		p.PageSize = 100
	}
}

// Offset returns the SQL offset for the clamped page.
func (p Pagination) Offset() int {
	return (p.Page - 1) * p.PageSize
}

// RequestContext carries authenticated user info when available.
type RequestContext struct {
	UserID ID     `json:"userId"`
	Role   string `json:"role"`
}
