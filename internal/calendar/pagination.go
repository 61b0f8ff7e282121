package calendar

const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)

// PageRequest is a normalized page/limit pair, page numbering starts at 1.
type PageRequest struct {
	Page  int
	Limit int
}

// NewPageRequest applies defaults to non-positive values and caps the limit.
func NewPageRequest(page, limit int) PageRequest {
	if page <= 0 {
		page = 1
	}
	if limit <= 0 {
		limit = DefaultPageSize
	}
	if limit > MaxPageSize {
		limit = MaxPageSize
	}
	return PageRequest{Page: page, Limit: limit}
}

func (r PageRequest) Offset() int {
	return (r.Page - 1) * r.Limit
}

// Page is one page of items plus navigation metadata.
type Page[T any] struct {
	Items    []T
	Page     int
	PageSize int
	HasNext  bool
	HasPrev  bool
	Total    int
}

// NewPage wraps items already cut by the store with metadata for req.
func NewPage[T any](items []T, total int64, req PageRequest) Page[T] {
	if items == nil {
		items = []T{}
	}
	return Page[T]{
		Items:    items,
		Page:     req.Page,
		PageSize: req.Limit,
		HasPrev:  req.Page > 1,
		HasNext:  int64(req.Offset()+len(items)) < total,
		Total:    int(total),
	}
}

// MapPage converts page items keeping the metadata.
func MapPage[T, U any](p Page[T], fn func(T) U) Page[U] {
	out := make([]U, 0, len(p.Items))
	for _, it := range p.Items {
		out = append(out, fn(it))
	}
	return Page[U]{
		Items:    out,
		Page:     p.Page,
		PageSize: p.PageSize,
		HasNext:  p.HasNext,
		HasPrev:  p.HasPrev,
		Total:    p.Total,
	}
}
