// Package pagination computes offset windows and prev/next links for every
// collection endpoint. It is pure: callers fetch the window themselves.
package pagination

import (
	"math"
	"net/url"
	"strconv"
)

const (
	DefaultPageSize = 10
	MaxPageSize     = 30
)

// Config is shared by every collection endpoint.
type Config struct {
	DefaultPageSize int
	MaxPageSize     int
}

func DefaultConfig() Config {
	return Config{DefaultPageSize: DefaultPageSize, MaxPageSize: MaxPageSize}
}

// PageSize substitutes the default for zero and clamps anything above the maximum.
func (c Config) PageSize(requested int) int {
	switch {
	case requested <= 0:
		return c.DefaultPageSize
	case requested > c.MaxPageSize:
		return c.MaxPageSize
	default:
		return requested
	}
}

// Window is an offset/length slice of an ordered collection. Limit 0 means unbounded.
type Window struct {
	Offset int
	Limit  int
}

func All() Window { return Window{} }

func (w Window) Unbounded() bool { return w.Limit <= 0 }

// Bounds clamps the window to a sequence of length n and returns slice indexes.
func (w Window) Bounds(n int) (lo, hi int) {
	lo = min(max(w.Offset, 0), n)
	if w.Unbounded() {
		return lo, n
	}
	return lo, min(lo+w.Limit, n)
}

// Slice returns the part of items covered by w. The result shares memory with items.
func Slice[T any](items []T, w Window) []T {
	lo, hi := w.Bounds(len(items))
	return items[lo:hi]
}

// Page describes one window of a collection together with its navigation links.
type Page struct {
	Page          int
	PageSize      int
	Total         int
	PrevPageToken string
	NextPageToken string
}

// New computes the page for a 0-indexed page number. pageSize must already be
// normalised through Config.PageSize.
func New(path string, total, page, pageSize int) Page {
	p := Page{Page: page, PageSize: pageSize, Total: total}
	if prev, ok := PrevPage(total, page, pageSize); ok {
		p.PrevPageToken = Link(path, prev, pageSize)
	}
	if next, ok := NextPage(total, page, pageSize); ok {
		p.NextPageToken = Link(path, next, pageSize)
	}
	return p
}

func (p Page) Window() Window {
	return Window{Offset: offset(p.Page, p.PageSize), Limit: p.PageSize}
}

// PrevPage returns the page preceding page. When the caller is past the end of
// a collection that shrank, it points at the last page that still has items.
func PrevPage(total, page, pageSize int) (int, bool) {
	if page <= 0 {
		return 0, false
	}
	prev := page - 1
	if offset(page-1, pageSize) > total {
		if total%pageSize == 0 {
			prev = total/pageSize - 1
		} else {
			prev = total / pageSize
		}
	}
	return max(prev, 0), true
}

func NextPage(total, page, pageSize int) (int, bool) {
	start := offset(page, pageSize)
	if start >= total || total-start <= pageSize {
		return 0, false
	}
	return page + 1, true
}

// offset is page*pageSize, saturating at math.MaxInt so a huge page lands past
// any collection.
func offset(page, pageSize int) int {
	if pageSize > 0 && page > math.MaxInt/pageSize {
		return math.MaxInt
	}
	return page * pageSize
}

// Link renders a relative link carrying page and pageSize.
func Link(path string, page, pageSize int) string {
	q := url.Values{}
	q.Set("page", strconv.Itoa(page))
	q.Set("pageSize", strconv.Itoa(pageSize))
	return path + "?" + q.Encode()
}

// Numbered is the 1-indexed page shape used by the TMDB style endpoints.
type Numbered struct {
	Page         int
	TotalPages   int
	TotalResults int
	PageSize     int
}

// NewNumbered clamps page to at least 1. Pages past the end yield an empty window.
func NewNumbered(total, page, pageSize int) Numbered {
	return Numbered{
		Page:         max(page, 1),
		TotalPages:   (total + pageSize - 1) / pageSize,
		TotalResults: total,
		PageSize:     pageSize,
	}
}

func (n Numbered) Window() Window {
	return Window{Offset: offset(n.Page-1, n.PageSize), Limit: n.PageSize}
}
