package pagination

// Pagination carries limit/offset query bounds.
type Pagination struct {
	Limit  int
	Offset int
}

const (
	DefaultLimit = 25
	MaxLimit     = 100
)

// Normalize clamps the pagination into safe bounds.
func (p Pagination) Normalize() Pagination {
	if p.Limit <= 0 {
		p.Limit = DefaultLimit
	}
	if p.Limit > MaxLimit {
		p.Limit = MaxLimit
	}
	if p.Offset < 0 {
		p.Offset = 0
	}
	return p
}
