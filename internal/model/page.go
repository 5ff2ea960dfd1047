package model

const (
	DefaultPageSize    = 10
	DefaultMessagePage = 50
	MaxPageSize        = 100
)

// PageRequest is a zero-based page index and a page size.
type PageRequest struct {
	Page int
	Size int
}

// Normalize clamps the request: negative pages become 0, non-positive sizes
// take def, and sizes above MaxPageSize are capped.
func (p PageRequest) Normalize(def int) PageRequest {
	if p.Page < 0 {
		p.Page = 0
	}
	if p.Size <= 0 {
		p.Size = def
	}
	if p.Size > MaxPageSize {
		p.Size = MaxPageSize
	}
	return p
}

func (p PageRequest) Offset() int { return p.Page * p.Size }

type Page[T any] struct {
	Items      []T   `json:"items"`
	Page       int   `json:"page"`
	Size       int   `json:"size"`
	Total      int64 `json:"total"`
	TotalPages int   `json:"total_pages"`
}

func NewPage[T any](items []T, total int64, req PageRequest) Page[T] {
	if items == nil {
		items = []T{}
	}
	pages := 0
	if req.Size > 0 {
		pages = int((total + int64(req.Size) - 1) / int64(req.Size))
	}
	return Page[T]{Items: items, Page: req.Page, Size: req.Size, Total: total, TotalPages: pages}
}

// MapPage converts the items of p, keeping the paging fields.
func MapPage[T, U any](p Page[T], fn func(T) U) Page[U] {
	out := make([]U, len(p.Items))
	for i, it := range p.Items {
		out[i] = fn(it)
	}
	return Page[U]{Items: out, Page: p.Page, Size: p.Size, Total: p.Total, TotalPages: p.TotalPages}
}
