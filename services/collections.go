package services

import (
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/justbri/marquee/models"
	"github.com/justbri/marquee/pagination"
)

// PageQuery is an already parsed collection request. Path is used to build
// the prev and next links.
type PageQuery struct {
	Page     int
	PageSize int
	Light    bool
	Path     string
}

// Envelope is the response shape of every collection endpoint. In light mode
// the paging fields are omitted and Results holds the whole collection.
type Envelope[T any] struct {
	UserDetails  *UserDetails  `json:"user_details,omitempty"`
	MovieDetails *models.Movie `json:"movie_details,omitempty"`
	Total        int           `json:"total"`
	PageSize     *int          `json:"page_size,omitempty"`
	Page         *int          `json:"page,omitempty"`
	PrevPage     *string       `json:"prev_page,omitempty"`
	NextPage     *string       `json:"next_page,omitempty"`
	Results      []T           `json:"results"`
}

func (e *Envelope[T]) Windowed() bool { return e.Page != nil }

// MovieView renders a movie in full, or as its summary in light mode.
type MovieView struct {
	models.Movie
	light bool
}

func (v MovieView) MarshalJSON() ([]byte, error) {
	if v.light {
		return json.Marshal(v.Summary())
	}
	return json.Marshal(v.Movie)
}

func movieViews(movies []models.Movie, light bool) []MovieView {
	views := make([]MovieView, len(movies))
	for i, m := range movies {
		views[i] = MovieView{Movie: m, light: light}
	}
	return views
}

type rateSummary struct {
	ID     uuid.UUID `json:"id"`
	Value  int       `json:"value"`
	Date   time.Time `json:"date"`
	IDTMDB int       `json:"idTMDB"`
}

func (e RateEntry) MarshalJSON() ([]byte, error) {
	if e.light {
		return json.Marshal(rateSummary{ID: e.ID, Value: e.Value, Date: e.Date, IDTMDB: idTMDBOf(e.Movie)})
	}
	type plain RateEntry
	return json.Marshal(plain(e))
}

// reviewSummary drops the review body and the movie summary.
type reviewSummary struct {
	ID     uuid.UUID `json:"id"`
	Title  string    `json:"title"`
	Date   time.Time `json:"date"`
	IDTMDB int       `json:"idTMDB"`
}

func (e ReviewEntry) MarshalJSON() ([]byte, error) {
	if e.light {
		return json.Marshal(reviewSummary{ID: e.ID, Title: e.Title, Date: e.Date, IDTMDB: idTMDBOf(e.Movie)})
	}
	type plain ReviewEntry
	return json.Marshal(plain(e))
}

// ListView renders a list in full, or in light mode as its name and size
// without the movie ids.
type ListView struct {
	models.List
	light bool
}

type listSummary struct {
	ID    uuid.UUID `json:"id"`
	Name  string    `json:"name"`
	Date  time.Time `json:"date"`
	Total int       `json:"listTotalIds"`
}

func (v ListView) MarshalJSON() ([]byte, error) {
	if v.light {
		return json.Marshal(listSummary{ID: v.ID, Name: v.Name, Date: v.Date, Total: len(v.Movies)})
	}
	return json.Marshal(v.List)
}

func idTMDBOf(m *models.MovieSummary) int {
	if m == nil {
		return 0
	}
	return m.IDTMDB
}

// paginate is the shared read template: in light mode fetch everything,
// otherwise compute the page and fetch its window.
func paginate[T any](q PageQuery, cfg pagination.Config, total int, fetch func(pagination.Window) ([]T, error)) (*Envelope[T], error) {
	if q.Light {
		items, err := fetch(pagination.All())
		if err != nil {
			return nil, err
		}
		return &Envelope[T]{Total: total, Results: nonNil(items)}, nil
	}

	p := pagination.New(q.Path, total, max(q.Page, 0), cfg.PageSize(q.PageSize))
	items, err := fetch(p.Window())
	if err != nil {
		return nil, err
	}
	return &Envelope[T]{
		Total:    total,
		PageSize: &p.PageSize,
		Page:     &p.Page,
		PrevPage: &p.PrevPageToken,
		NextPage: &p.NextPageToken,
		Results:  nonNil(items),
	}, nil
}

func nonNil[T any](items []T) []T {
	if items == nil {
		return []T{}
	}
	return items
}

// NumberedPage is the 1-indexed page shape used by the rated movies listing.
type NumberedPage[T any] struct {
	Page         int `json:"page"`
	TotalPages   int `json:"total_pages"`
	TotalResults int `json:"total_results"`
	Results      []T `json:"results"`
}
