// Package memstore is an in-memory services.Store for tests. Update works on
// a copy of the state that replaces the original only when the unit of work
// succeeds, so a failed unit of work leaves nothing behind.
package memstore

import (
	"bytes"
	"cmp"
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"sync"

	"github.com/google/uuid"

	"github.com/justbri/marquee/models"
	"github.com/justbri/marquee/pagination"
	"github.com/justbri/marquee/services"
)

var errReadOnly = errors.New("memstore: write in read-only unit of work")

type state struct {
	users      map[uuid.UUID]models.User
	photos     map[uuid.UUID]models.ProfilePhoto
	watchlists map[uuid.UUID]models.Watchlist
	movies     map[uuid.UUID]models.Movie
	rates      map[uuid.UUID]models.Rate
	reviews    map[uuid.UUID]models.Review
	lists      map[uuid.UUID]models.List
}

func newState() *state {
	return &state{
		users:      make(map[uuid.UUID]models.User),
		photos:     make(map[uuid.UUID]models.ProfilePhoto),
		watchlists: make(map[uuid.UUID]models.Watchlist),
		movies:     make(map[uuid.UUID]models.Movie),
		rates:      make(map[uuid.UUID]models.Rate),
		reviews:    make(map[uuid.UUID]models.Review),
		lists:      make(map[uuid.UUID]models.List),
	}
}

func (s *state) clone() *state {
	c := &state{
		users:      maps.Clone(s.users),
		photos:     maps.Clone(s.photos),
		watchlists: maps.Clone(s.watchlists),
		movies:     maps.Clone(s.movies),
		rates:      maps.Clone(s.rates),
		reviews:    maps.Clone(s.reviews),
		lists:      maps.Clone(s.lists),
	}
	for id, w := range c.watchlists {
		w.Movies = slices.Clone(w.Movies)
		c.watchlists[id] = w
	}
	for id, l := range c.lists {
		l.Movies = slices.Clone(l.Movies)
		c.lists[id] = l
	}
	return c
}

// Lock is one row lock requested by an Update unit of work.
type Lock struct {
	Collection services.Collection
	ID         uuid.UUID
}

type Store struct {
	mu     sync.RWMutex
	st     *state
	failOn map[services.Collection]error
	locks  []Lock
}

func New() *Store {
	return &Store{st: newState(), failOn: make(map[services.Collection]error)}
}

// FailOn makes every later write to c fail with err. A nil err clears it.
func (s *Store) FailOn(c services.Collection, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err == nil {
		delete(s.failOn, c)
		return
	}
	s.failOn[c] = err
}

func (s *Store) Update(ctx context.Context, fn func(services.Repo) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	next := s.st.clone()
	if err := fn(&repo{st: next, failOn: s.failOn, locks: &s.locks}); err != nil {
		return err
	}
	s.st = next
	return nil
}

func (s *Store) View(ctx context.Context, fn func(services.Repo) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	return fn(&repo{st: s.st, readOnly: true})
}

// Locks returns every row lock requested so far, in request order. Units of
// work are serialised, so nothing waits on them; the journal lets tests check
// the order writers lock rows in.
func (s *Store) Locks() []Lock {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.locks)
}

func (s *Store) ResetLocks() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.locks = nil
}

type repo struct {
	st       *state
	readOnly bool
	failOn   map[services.Collection]error
	locks    *[]Lock
}

func (r *repo) lock(c services.Collection, id uuid.UUID) error {
	if r.readOnly {
		return errReadOnly
	}
	*r.locks = append(*r.locks, Lock{Collection: c, ID: id})
	return nil
}

func (r *repo) writable(c services.Collection) error {
	if r.readOnly {
		return errReadOnly
	}
	return r.failOn[c]
}

func notFound(c services.Collection, id any) error {
	return fmt.Errorf("memstore: %s %v: %w", c, id, services.ErrNotFound)
}

func matches(f services.Filter, field func(string) (any, error)) (bool, error) {
	if f.IsZero() {
		return true, nil
	}
	actual, err := field(f.Field)
	if err != nil {
		return false, err
	}
	if f.Op == services.OpGt {
		a, ok1 := actual.(int)
		b, ok2 := f.Value.(int)
		return ok1 && ok2 && a > b, nil
	}
	return actual == f.Value, nil
}

func unknownField(c services.Collection, field string) error {
	return fmt.Errorf("memstore: unknown field %s.%s", c, field)
}

func (r *repo) ids(c services.Collection, f services.Filter) ([]uuid.UUID, error) {
	var out []uuid.UUID
	add := func(id uuid.UUID, field func(string) (any, error)) error {
		ok, err := matches(f, field)
		if ok {
			out = append(out, id)
		}
		return err
	}

	var err error
	switch c {
	case services.CollectionUsers:
		for id, u := range r.st.users {
			if err = add(id, userField(u)); err != nil {
				return nil, err
			}
		}
	case services.CollectionProfilePhotos:
		for id := range r.st.photos {
			if err = add(id, idField(c, id)); err != nil {
				return nil, err
			}
		}
	case services.CollectionWatchlists:
		for id, w := range r.st.watchlists {
			if err = add(id, ownedField(c, id, w.UserID)); err != nil {
				return nil, err
			}
		}
	case services.CollectionMovies:
		for id, m := range r.st.movies {
			if err = add(id, movieField(m)); err != nil {
				return nil, err
			}
		}
	case services.CollectionRates:
		for id, rt := range r.st.rates {
			if err = add(id, rateField(rt)); err != nil {
				return nil, err
			}
		}
	case services.CollectionReviews:
		for id, rv := range r.st.reviews {
			if err = add(id, reviewField(rv)); err != nil {
				return nil, err
			}
		}
	case services.CollectionLists:
		for id, l := range r.st.lists {
			if err = add(id, ownedField(c, id, l.UserID)); err != nil {
				return nil, err
			}
		}
	default:
		return nil, fmt.Errorf("memstore: unknown collection %q", c)
	}
	return out, nil
}

func idField(c services.Collection, id uuid.UUID) func(string) (any, error) {
	return func(field string) (any, error) {
		if field == "id" {
			return id, nil
		}
		return nil, unknownField(c, field)
	}
}

func ownedField(c services.Collection, id, userID uuid.UUID) func(string) (any, error) {
	return func(field string) (any, error) {
		switch field {
		case "id":
			return id, nil
		case "user_id":
			return userID, nil
		}
		return nil, unknownField(c, field)
	}
}

func userField(u models.User) func(string) (any, error) {
	return func(field string) (any, error) {
		switch field {
		case "id":
			return u.ID, nil
		case "username":
			return u.Username, nil
		}
		return nil, unknownField(services.CollectionUsers, field)
	}
}

func movieField(m models.Movie) func(string) (any, error) {
	return func(field string) (any, error) {
		switch field {
		case "id":
			return m.ID, nil
		case "id_tmdb":
			return m.IDTMDB, nil
		case "rate_count":
			return m.RateCount, nil
		}
		return nil, unknownField(services.CollectionMovies, field)
	}
}

func rateField(rt models.Rate) func(string) (any, error) {
	return func(field string) (any, error) {
		switch field {
		case "id":
			return rt.ID, nil
		case "user_id":
			return rt.UserID, nil
		case "movie_id":
			return rt.MovieID, nil
		}
		return nil, unknownField(services.CollectionRates, field)
	}
}

func reviewField(rv models.Review) func(string) (any, error) {
	return func(field string) (any, error) {
		switch field {
		case "id":
			return rv.ID, nil
		case "user_id":
			return rv.UserID, nil
		case "movie_id":
			return rv.MovieID, nil
		}
		return nil, unknownField(services.CollectionReviews, field)
	}
}

func (r *repo) Count(_ context.Context, c services.Collection, f services.Filter) (int, error) {
	ids, err := r.ids(c, f)
	return len(ids), err
}

func (r *repo) DeleteWhere(_ context.Context, c services.Collection, f services.Filter) (int64, error) {
	if err := r.writable(c); err != nil {
		return 0, err
	}
	ids, err := r.ids(c, f)
	if err != nil {
		return 0, err
	}
	for _, id := range ids {
		switch c {
		case services.CollectionUsers:
			delete(r.st.users, id)
		case services.CollectionProfilePhotos:
			delete(r.st.photos, id)
		case services.CollectionWatchlists:
			delete(r.st.watchlists, id)
		case services.CollectionMovies:
			delete(r.st.movies, id)
		case services.CollectionRates:
			delete(r.st.rates, id)
		case services.CollectionReviews:
			delete(r.st.reviews, id)
		case services.CollectionLists:
			delete(r.st.lists, id)
		}
	}
	return int64(len(ids)), nil
}

func (r *repo) InsertUser(_ context.Context, u *models.User) error {
	if err := r.writable(services.CollectionUsers); err != nil {
		return err
	}
	for _, existing := range r.st.users {
		if existing.Username == u.Username {
			return fmt.Errorf("memstore: username %q: %w", u.Username, services.ErrConflict)
		}
	}
	stored := *u
	stored.Lists = nil
	r.st.users[u.ID] = stored
	return nil
}

func (r *repo) User(_ context.Context, id uuid.UUID) (*models.User, error) {
	u, ok := r.st.users[id]
	if !ok {
		return nil, notFound(services.CollectionUsers, id)
	}
	return r.withLists(u), nil
}

func (r *repo) UserByUsername(_ context.Context, username string) (*models.User, error) {
	for _, u := range r.st.users {
		if u.Username == username {
			return r.withLists(u), nil
		}
	}
	return nil, notFound(services.CollectionUsers, username)
}

func (r *repo) withLists(u models.User) *models.User {
	u.Lists = []uuid.UUID{}
	for _, l := range sortedLists(r.st.lists, services.ByUser(u.ID)) {
		u.Lists = append(u.Lists, l.ID)
	}
	return &u
}

func (r *repo) UpdateUser(_ context.Context, u *models.User) error {
	if err := r.writable(services.CollectionUsers); err != nil {
		return err
	}
	if _, ok := r.st.users[u.ID]; !ok {
		return notFound(services.CollectionUsers, u.ID)
	}
	stored := *u
	stored.Lists = nil
	r.st.users[u.ID] = stored
	return nil
}

func (r *repo) InsertProfilePhoto(_ context.Context, p *models.ProfilePhoto) error {
	if err := r.writable(services.CollectionProfilePhotos); err != nil {
		return err
	}
	r.st.photos[p.ID] = *p
	return nil
}

func (r *repo) ProfilePhoto(_ context.Context, id uuid.UUID) (*models.ProfilePhoto, error) {
	p, ok := r.st.photos[id]
	if !ok {
		return nil, notFound(services.CollectionProfilePhotos, id)
	}
	return &p, nil
}

func (r *repo) UpdateProfilePhoto(_ context.Context, p *models.ProfilePhoto) error {
	if err := r.writable(services.CollectionProfilePhotos); err != nil {
		return err
	}
	if _, ok := r.st.photos[p.ID]; !ok {
		return notFound(services.CollectionProfilePhotos, p.ID)
	}
	r.st.photos[p.ID] = models.ProfilePhoto{ID: p.ID, Data: slices.Clone(p.Data), ContentType: p.ContentType}
	return nil
}

func (r *repo) InsertWatchlist(_ context.Context, w *models.Watchlist) error {
	if err := r.writable(services.CollectionWatchlists); err != nil {
		return err
	}
	stored := *w
	stored.Movies = slices.Clone(w.Movies)
	r.st.watchlists[w.ID] = stored
	return nil
}

func (r *repo) Watchlist(_ context.Context, id uuid.UUID) (*models.Watchlist, error) {
	w, ok := r.st.watchlists[id]
	if !ok {
		return nil, notFound(services.CollectionWatchlists, id)
	}
	w.Movies = slices.Clone(w.Movies)
	return &w, nil
}

func (r *repo) SetWatchlistMovies(_ context.Context, id uuid.UUID, movies []uuid.UUID) error {
	if err := r.writable(services.CollectionWatchlists); err != nil {
		return err
	}
	w, ok := r.st.watchlists[id]
	if !ok {
		return notFound(services.CollectionWatchlists, id)
	}
	w.Movies = slices.Clone(movies)
	r.st.watchlists[id] = w
	return nil
}

func (r *repo) InsertMovie(_ context.Context, m *models.Movie) error {
	if err := r.writable(services.CollectionMovies); err != nil {
		return err
	}
	for _, existing := range r.st.movies {
		if existing.IDTMDB == m.IDTMDB {
			return fmt.Errorf("memstore: movie %d: %w", m.IDTMDB, services.ErrConflict)
		}
	}
	r.st.movies[m.ID] = *m
	return nil
}

func (r *repo) Movie(_ context.Context, id uuid.UUID) (*models.Movie, error) {
	m, ok := r.st.movies[id]
	if !ok {
		return nil, notFound(services.CollectionMovies, id)
	}
	return &m, nil
}

func (r *repo) MovieForUpdate(ctx context.Context, id uuid.UUID) (*models.Movie, error) {
	if err := r.lock(services.CollectionMovies, id); err != nil {
		return nil, err
	}
	return r.Movie(ctx, id)
}

func (r *repo) MovieByTMDB(_ context.Context, idTMDB int) (*models.Movie, error) {
	for _, m := range r.st.movies {
		if m.IDTMDB == idTMDB {
			return &m, nil
		}
	}
	return nil, notFound(services.CollectionMovies, idTMDB)
}

func (r *repo) Movies(_ context.Context, f services.Filter, w pagination.Window) ([]models.Movie, error) {
	ids, err := r.ids(services.CollectionMovies, f)
	if err != nil {
		return nil, err
	}
	out := make([]models.Movie, 0, len(ids))
	for _, id := range ids {
		out = append(out, r.st.movies[id])
	}
	slices.SortFunc(out, func(a, b models.Movie) int {
		return cmp.Or(
			cmp.Compare(b.RateAverage, a.RateAverage),
			b.Date.Compare(a.Date),
			cmp.Compare(b.IDTMDB, a.IDTMDB),
		)
	})
	return pagination.Slice(out, w), nil
}

func (r *repo) MoviesByID(_ context.Context, ids []uuid.UUID) ([]models.Movie, error) {
	out := make([]models.Movie, 0, len(ids))
	for _, id := range ids {
		if m, ok := r.st.movies[id]; ok {
			out = append(out, m)
		}
	}
	return out, nil
}

func (r *repo) UpdateMovieRating(_ context.Context, m *models.Movie) error {
	if err := r.writable(services.CollectionMovies); err != nil {
		return err
	}
	stored, ok := r.st.movies[m.ID]
	if !ok {
		return notFound(services.CollectionMovies, m.ID)
	}
	stored.RateCount, stored.RateValue, stored.RateAverage = m.RateCount, m.RateValue, m.RateAverage
	r.st.movies[m.ID] = stored
	return nil
}

// InsertRate does not enforce one rate per user and movie; RateMovie does.
func (r *repo) InsertRate(_ context.Context, rt *models.Rate) error {
	if err := r.writable(services.CollectionRates); err != nil {
		return err
	}
	r.st.rates[rt.ID] = *rt
	return nil
}

func (r *repo) Rate(_ context.Context, id uuid.UUID) (*models.Rate, error) {
	rt, ok := r.st.rates[id]
	if !ok {
		return nil, notFound(services.CollectionRates, id)
	}
	return &rt, nil
}

func (r *repo) RateForUpdate(_ context.Context, userID, movieID uuid.UUID) (*models.Rate, error) {
	if r.readOnly {
		return nil, errReadOnly
	}
	for _, rt := range r.st.rates {
		if rt.UserID == userID && rt.MovieID == movieID {
			if err := r.lock(services.CollectionRates, rt.ID); err != nil {
				return nil, err
			}
			return &rt, nil
		}
	}
	return nil, notFound(services.CollectionRates, movieID)
}

func (r *repo) UpdateRate(_ context.Context, rt *models.Rate) error {
	if err := r.writable(services.CollectionRates); err != nil {
		return err
	}
	if _, ok := r.st.rates[rt.ID]; !ok {
		return notFound(services.CollectionRates, rt.ID)
	}
	r.st.rates[rt.ID] = *rt
	return nil
}

func (r *repo) Rates(_ context.Context, f services.Filter, w pagination.Window) ([]models.Rate, error) {
	ids, err := r.ids(services.CollectionRates, f)
	if err != nil {
		return nil, err
	}
	out := make([]models.Rate, 0, len(ids))
	for _, id := range ids {
		out = append(out, r.st.rates[id])
	}
	slices.SortFunc(out, func(a, b models.Rate) int {
		return cmp.Or(
			b.Date.Compare(a.Date),
			cmp.Compare(b.Value, a.Value),
			bytes.Compare(b.ID[:], a.ID[:]),
		)
	})
	return pagination.Slice(out, w), nil
}

func (r *repo) RatesForUpdate(ctx context.Context, f services.Filter) ([]models.Rate, error) {
	if r.readOnly {
		return nil, errReadOnly
	}
	rates, err := r.Rates(ctx, f, pagination.All())
	if err != nil {
		return nil, err
	}
	for _, rt := range rates {
		if err := r.lock(services.CollectionRates, rt.ID); err != nil {
			return nil, err
		}
	}
	return rates, nil
}

func (r *repo) InsertReview(_ context.Context, rv *models.Review) error {
	if err := r.writable(services.CollectionReviews); err != nil {
		return err
	}
	r.st.reviews[rv.ID] = *rv
	return nil
}

func (r *repo) Review(_ context.Context, id uuid.UUID) (*models.Review, error) {
	rv, ok := r.st.reviews[id]
	if !ok {
		return nil, notFound(services.CollectionReviews, id)
	}
	return &rv, nil
}

func (r *repo) Reviews(_ context.Context, f services.Filter, w pagination.Window) ([]models.Review, error) {
	ids, err := r.ids(services.CollectionReviews, f)
	if err != nil {
		return nil, err
	}
	out := make([]models.Review, 0, len(ids))
	for _, id := range ids {
		out = append(out, r.st.reviews[id])
	}
	slices.SortFunc(out, func(a, b models.Review) int {
		return cmp.Or(
			b.Date.Compare(a.Date),
			bytes.Compare(b.ID[:], a.ID[:]),
		)
	})
	return pagination.Slice(out, w), nil
}

func (r *repo) InsertList(_ context.Context, l *models.List) error {
	if err := r.writable(services.CollectionLists); err != nil {
		return err
	}
	stored := *l
	stored.Movies = slices.Clone(l.Movies)
	r.st.lists[l.ID] = stored
	return nil
}

func (r *repo) List(_ context.Context, id uuid.UUID) (*models.List, error) {
	l, ok := r.st.lists[id]
	if !ok {
		return nil, notFound(services.CollectionLists, id)
	}
	l.Movies = slices.Clone(l.Movies)
	return &l, nil
}

func (r *repo) UpdateList(_ context.Context, l *models.List) error {
	if err := r.writable(services.CollectionLists); err != nil {
		return err
	}
	if _, ok := r.st.lists[l.ID]; !ok {
		return notFound(services.CollectionLists, l.ID)
	}
	stored := *l
	stored.Movies = slices.Clone(l.Movies)
	r.st.lists[l.ID] = stored
	return nil
}

func (r *repo) Lists(_ context.Context, f services.Filter, w pagination.Window) ([]models.List, error) {
	if _, err := r.ids(services.CollectionLists, f); err != nil {
		return nil, err
	}
	return pagination.Slice(sortedLists(r.st.lists, f), w), nil
}

func sortedLists(lists map[uuid.UUID]models.List, f services.Filter) []models.List {
	out := make([]models.List, 0)
	for id, l := range lists {
		if ok, _ := matches(f, ownedField(services.CollectionLists, id, l.UserID)); ok {
			l.Movies = slices.Clone(l.Movies)
			out = append(out, l)
		}
	}
	slices.SortFunc(out, func(a, b models.List) int {
		return cmp.Or(
			b.Date.Compare(a.Date),
			cmp.Compare(b.Name, a.Name),
			bytes.Compare(b.ID[:], a.ID[:]),
		)
	})
	return out
}

var _ services.Store = (*Store)(nil)
