package pagination

import "context"

// Pagination parameter keys. They override caller parameters of the same name.
const (
	ParamTake     = "take"
	ParamSkip     = "skip"
	ParamPage     = "page"
	ParamPageSize = "page_size"
)

// Params are the keyword arguments passed to a page function.
type Params map[string]any

// Clone returns a shallow copy of p. The copy is never nil.
func (p Params) Clone() Params {
	out := make(Params, len(p)+2)
	for k, v := range p {
		out[k] = v
	}
	return out
}

// Merge returns a copy of p with every key of overrides set on top.
func (p Params) Merge(overrides Params) Params {
	out := p.Clone()
	for k, v := range overrides {
		out[k] = v
	}
	return out
}

// PageFunc fetches one page from the upstream.
type PageFunc[T any] func(ctx context.Context, params Params) (Page[T], error)

// Page is one response of a page function: either a list of records or a
// single record from an endpoint that ignores pagination. The zero Page is an
// empty list.
type Page[T any] struct {
	items  []T
	single bool
}

// List wraps a batch of records.
func List[T any](items []T) Page[T] {
	return Page[T]{items: items}
}

// Single wraps one record returned instead of a list.
func Single[T any](item T) Page[T] {
	return Page[T]{items: []T{item}, single: true}
}

// Items returns the records of the page.
func (p Page[T]) Items() []T {
	return p.items
}

// Len returns the number of records.
func (p Page[T]) Len() int {
	return len(p.items)
}

// IsSingle reports whether the page was built with Single.
func (p Page[T]) IsSingle() bool {
	return p.single
}

// pageParams builds the parameters for the page at index.
func pageParams(cfg Config, fixed Params, index int) Params {
	if !cfg.SupportsPagination {
		return fixed.Clone()
	}
	switch cfg.Style {
	case StylePageNumber:
		return fixed.Merge(Params{ParamPage: index, ParamPageSize: cfg.PageSize})
	default:
		return fixed.Merge(Params{ParamTake: cfg.PageSize, ParamSkip: index * cfg.PageSize})
	}
}
