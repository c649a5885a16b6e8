package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/doug-martin/goqu/v9"
	_ "github.com/doug-martin/goqu/v9/dialect/postgres"
	"github.com/doug-martin/goqu/v9/exp"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jmoiron/sqlx"

	"github.com/justbri/marquee/models"
	"github.com/justbri/marquee/pagination"
	"github.com/justbri/marquee/services"
)

const (
	uniqueViolation     = "23505"
	foreignKeyViolation = "23503"
	deadlockDetected    = "40P01"
)

// Store runs units of work in PostgreSQL transactions. Update uses READ
// COMMITTED and relies on row locks: a movie row is always locked before any
// of its rates. View reads one REPEATABLE READ snapshot.
type Store struct {
	db      *sqlx.DB
	dialect goqu.DialectWrapper
}

func NewStore(db *sqlx.DB) *Store {
	return &Store{db: db, dialect: goqu.Dialect("postgres")}
}

func (s *Store) Update(ctx context.Context, fn func(services.Repo) error) error {
	return s.run(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted}, fn)
}

func (s *Store) View(ctx context.Context, fn func(services.Repo) error) error {
	return s.run(ctx, &sql.TxOptions{Isolation: sql.LevelRepeatableRead, ReadOnly: true}, fn)
}

func (s *Store) run(ctx context.Context, opts *sql.TxOptions, fn func(services.Repo) error) error {
	tx, err := s.db.BeginTxx(ctx, opts)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(&repo{tx: tx, dialect: s.dialect}); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", mapError(err))
	}
	return nil
}

type repo struct {
	tx      *sqlx.Tx
	dialect goqu.DialectWrapper
}

type builder interface {
	ToSQL() (string, []interface{}, error)
}

// mapError translates driver errors into the services error sentinels.
func mapError(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return services.ErrNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case uniqueViolation, foreignKeyViolation:
			return fmt.Errorf("%w: %s", services.ErrConflict, pgErr.ConstraintName)
		case deadlockDetected:
			return fmt.Errorf("%w: %s", services.ErrConflict, pgErr.Message)
		}
	}
	return err
}

// arg turns ids into their text form so goqu never expands them as arrays.
func arg(v any) any {
	if id, ok := v.(uuid.UUID); ok {
		return id.String()
	}
	return v
}

func idArgs(ids []uuid.UUID) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = id.String()
	}
	return out
}

func where(f services.Filter) []exp.Expression {
	if f.IsZero() {
		return nil
	}
	col := goqu.C(f.Field)
	if f.Op == services.OpGt {
		return []exp.Expression{col.Gt(arg(f.Value))}
	}
	return []exp.Expression{col.Eq(arg(f.Value))}
}

func window(ds *goqu.SelectDataset, w pagination.Window) *goqu.SelectDataset {
	if w.Offset > 0 {
		ds = ds.Offset(uint(w.Offset))
	}
	if !w.Unbounded() {
		ds = ds.Limit(uint(w.Limit))
	}
	return ds
}

func (r *repo) from(table services.Collection) *goqu.SelectDataset {
	return r.dialect.From(string(table)).Prepared(true)
}

func (r *repo) get(ctx context.Context, dest any, b builder) error {
	query, args, err := b.ToSQL()
	if err != nil {
		return fmt.Errorf("failed to build query: %w", err)
	}
	return mapError(r.tx.GetContext(ctx, dest, query, args...))
}

func (r *repo) selectAll(ctx context.Context, dest any, b builder) error {
	query, args, err := b.ToSQL()
	if err != nil {
		return fmt.Errorf("failed to build query: %w", err)
	}
	return mapError(r.tx.SelectContext(ctx, dest, query, args...))
}

func (r *repo) exec(ctx context.Context, b builder) (int64, error) {
	query, args, err := b.ToSQL()
	if err != nil {
		return 0, fmt.Errorf("failed to build statement: %w", err)
	}
	res, err := r.tx.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, mapError(err)
	}
	return res.RowsAffected()
}

// execOne runs a statement that must touch exactly one row.
func (r *repo) execOne(ctx context.Context, b builder, what string, id any) error {
	n, err := r.exec(ctx, b)
	if err != nil {
		return fmt.Errorf("%s %v: %w", what, id, err)
	}
	if n == 0 {
		return fmt.Errorf("%s %v: %w", what, id, services.ErrNotFound)
	}
	return nil
}

func (r *repo) Count(ctx context.Context, c services.Collection, f services.Filter) (int, error) {
	var n int
	err := r.get(ctx, &n, r.from(c).Select(goqu.COUNT(goqu.Star())).Where(where(f)...))
	return n, err
}

func (r *repo) DeleteWhere(ctx context.Context, c services.Collection, f services.Filter) (int64, error) {
	return r.exec(ctx, r.dialect.Delete(string(c)).Prepared(true).Where(where(f)...))
}

func (r *repo) InsertUser(ctx context.Context, u *models.User) error {
	_, err := r.exec(ctx, r.dialect.Insert(string(services.CollectionUsers)).Prepared(true).Rows(goqu.Record{
		"id":            arg(u.ID),
		"username":      u.Username,
		"password_hash": u.PasswordHash,
		"bio":           u.Bio,
		"date":          u.Date,
		"photo_id":      arg(u.PhotoID),
		"watchlist_id":  arg(u.WatchlistID),
	}))
	return err
}

func (r *repo) User(ctx context.Context, id uuid.UUID) (*models.User, error) {
	return r.user(ctx, goqu.C("id").Eq(arg(id)))
}

func (r *repo) UserByUsername(ctx context.Context, username string) (*models.User, error) {
	return r.user(ctx, goqu.C("username").Eq(username))
}

func (r *repo) user(ctx context.Context, cond exp.Expression) (*models.User, error) {
	var u models.User
	if err := r.get(ctx, &u, r.from(services.CollectionUsers).Where(cond)); err != nil {
		return nil, err
	}
	u.Lists = []uuid.UUID{}
	ds := r.from(services.CollectionLists).Select("id").
		Where(goqu.C("user_id").Eq(arg(u.ID))).
		Order(listOrder()...)
	if err := r.selectAll(ctx, &u.Lists, ds); err != nil {
		return nil, fmt.Errorf("failed to load lists of user %s: %w", u.ID, err)
	}
	return &u, nil
}

func (r *repo) UpdateUser(ctx context.Context, u *models.User) error {
	ds := r.dialect.Update(string(services.CollectionUsers)).Prepared(true).
		Set(goqu.Record{"password_hash": u.PasswordHash, "bio": u.Bio}).
		Where(goqu.C("id").Eq(arg(u.ID)))
	return r.execOne(ctx, ds, "user", u.ID)
}

func (r *repo) InsertProfilePhoto(ctx context.Context, p *models.ProfilePhoto) error {
	_, err := r.exec(ctx, r.dialect.Insert(string(services.CollectionProfilePhotos)).Prepared(true).Rows(goqu.Record{
		"id":           arg(p.ID),
		"data":         p.Data,
		"content_type": p.ContentType,
	}))
	return err
}

func (r *repo) ProfilePhoto(ctx context.Context, id uuid.UUID) (*models.ProfilePhoto, error) {
	var p models.ProfilePhoto
	if err := r.get(ctx, &p, r.from(services.CollectionProfilePhotos).Where(goqu.C("id").Eq(arg(id)))); err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *repo) UpdateProfilePhoto(ctx context.Context, p *models.ProfilePhoto) error {
	ds := r.dialect.Update(string(services.CollectionProfilePhotos)).Prepared(true).
		Set(goqu.Record{"data": p.Data, "content_type": p.ContentType}).
		Where(goqu.C("id").Eq(arg(p.ID)))
	return r.execOne(ctx, ds, "profile photo", p.ID)
}

func (r *repo) InsertWatchlist(ctx context.Context, w *models.Watchlist) error {
	_, err := r.exec(ctx, r.dialect.Insert(string(services.CollectionWatchlists)).Prepared(true).Rows(goqu.Record{
		"id":      arg(w.ID),
		"user_id": arg(w.UserID),
	}))
	if err != nil {
		return err
	}
	return r.writeSequence(ctx, "watchlist_movies", "watchlist_id", w.ID, w.Movies)
}

func (r *repo) Watchlist(ctx context.Context, id uuid.UUID) (*models.Watchlist, error) {
	var w models.Watchlist
	if err := r.get(ctx, &w, r.from(services.CollectionWatchlists).Where(goqu.C("id").Eq(arg(id)))); err != nil {
		return nil, err
	}
	movies, err := r.readSequence(ctx, "watchlist_movies", "watchlist_id", id)
	if err != nil {
		return nil, err
	}
	w.Movies = movies
	return &w, nil
}

func (r *repo) SetWatchlistMovies(ctx context.Context, id uuid.UUID, movies []uuid.UUID) error {
	var n int
	err := r.get(ctx, &n, r.from(services.CollectionWatchlists).Select(goqu.COUNT(goqu.Star())).Where(goqu.C("id").Eq(arg(id))))
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("watchlist %s: %w", id, services.ErrNotFound)
	}
	return r.writeSequence(ctx, "watchlist_movies", "watchlist_id", id, movies)
}

// writeSequence replaces the ordered movie ids stored under owner.
func (r *repo) writeSequence(ctx context.Context, table, ownerCol string, owner uuid.UUID, movies []uuid.UUID) error {
	_, err := r.exec(ctx, r.dialect.Delete(table).Prepared(true).Where(goqu.C(ownerCol).Eq(arg(owner))))
	if err != nil {
		return fmt.Errorf("failed to clear %s: %w", table, err)
	}
	if len(movies) == 0 {
		return nil
	}
	rows := make([]interface{}, len(movies))
	for i, m := range movies {
		rows[i] = goqu.Record{ownerCol: arg(owner), "position": i, "movie_id": arg(m)}
	}
	if _, err := r.exec(ctx, r.dialect.Insert(table).Prepared(true).Rows(rows...)); err != nil {
		return fmt.Errorf("failed to write %s: %w", table, err)
	}
	return nil
}

func (r *repo) readSequence(ctx context.Context, table, ownerCol string, owner uuid.UUID) ([]uuid.UUID, error) {
	movies := []uuid.UUID{}
	ds := r.dialect.From(table).Prepared(true).Select("movie_id").
		Where(goqu.C(ownerCol).Eq(arg(owner))).
		Order(goqu.C("position").Asc())
	if err := r.selectAll(ctx, &movies, ds); err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", table, err)
	}
	return movies, nil
}

func (r *repo) InsertMovie(ctx context.Context, m *models.Movie) error {
	_, err := r.exec(ctx, r.dialect.Insert(string(services.CollectionMovies)).Prepared(true).Rows(goqu.Record{
		"id":           arg(m.ID),
		"id_tmdb":      m.IDTMDB,
		"name":         m.Name,
		"description":  m.Description,
		"photo":        m.Photo,
		"date":         m.Date,
		"release_date": m.ReleaseDate,
		"rate_count":   m.RateCount,
		"rate_value":   m.RateValue,
		"rate_average": m.RateAverage,
	}))
	return err
}

func (r *repo) Movie(ctx context.Context, id uuid.UUID) (*models.Movie, error) {
	var m models.Movie
	if err := r.get(ctx, &m, r.from(services.CollectionMovies).Where(goqu.C("id").Eq(arg(id)))); err != nil {
		return nil, err
	}
	return &m, nil
}

func (r *repo) MovieForUpdate(ctx context.Context, id uuid.UUID) (*models.Movie, error) {
	var m models.Movie
	ds := r.from(services.CollectionMovies).Where(goqu.C("id").Eq(arg(id))).ForUpdate(exp.Wait)
	if err := r.get(ctx, &m, ds); err != nil {
		return nil, err
	}
	return &m, nil
}

func (r *repo) MovieByTMDB(ctx context.Context, idTMDB int) (*models.Movie, error) {
	var m models.Movie
	if err := r.get(ctx, &m, r.from(services.CollectionMovies).Where(goqu.C("id_tmdb").Eq(idTMDB))); err != nil {
		return nil, err
	}
	return &m, nil
}

func (r *repo) Movies(ctx context.Context, f services.Filter, w pagination.Window) ([]models.Movie, error) {
	movies := []models.Movie{}
	ds := r.from(services.CollectionMovies).Where(where(f)...).Order(
		goqu.C("rate_average").Desc(),
		goqu.C("date").Desc(),
		goqu.C("id_tmdb").Desc(),
	)
	err := r.selectAll(ctx, &movies, window(ds, w))
	return movies, err
}

func (r *repo) MoviesByID(ctx context.Context, ids []uuid.UUID) ([]models.Movie, error) {
	if len(ids) == 0 {
		return []models.Movie{}, nil
	}
	var found []models.Movie
	if err := r.selectAll(ctx, &found, r.from(services.CollectionMovies).Where(goqu.C("id").In(idArgs(ids)))); err != nil {
		return nil, err
	}
	byID := make(map[uuid.UUID]models.Movie, len(found))
	for _, m := range found {
		byID[m.ID] = m
	}
	out := make([]models.Movie, 0, len(ids))
	for _, id := range ids {
		if m, ok := byID[id]; ok {
			out = append(out, m)
		}
	}
	return out, nil
}

func (r *repo) UpdateMovieRating(ctx context.Context, m *models.Movie) error {
	ds := r.dialect.Update(string(services.CollectionMovies)).Prepared(true).
		Set(goqu.Record{"rate_count": m.RateCount, "rate_value": m.RateValue, "rate_average": m.RateAverage}).
		Where(goqu.C("id").Eq(arg(m.ID)))
	return r.execOne(ctx, ds, "movie", m.ID)
}

func (r *repo) InsertRate(ctx context.Context, rt *models.Rate) error {
	_, err := r.exec(ctx, r.dialect.Insert(string(services.CollectionRates)).Prepared(true).Rows(goqu.Record{
		"id":       arg(rt.ID),
		"user_id":  arg(rt.UserID),
		"movie_id": arg(rt.MovieID),
		"value":    rt.Value,
		"date":     rt.Date,
	}))
	return err
}

func (r *repo) Rate(ctx context.Context, id uuid.UUID) (*models.Rate, error) {
	var rt models.Rate
	if err := r.get(ctx, &rt, r.from(services.CollectionRates).Where(goqu.C("id").Eq(arg(id)))); err != nil {
		return nil, err
	}
	return &rt, nil
}

func (r *repo) RateForUpdate(ctx context.Context, userID, movieID uuid.UUID) (*models.Rate, error) {
	var rt models.Rate
	ds := r.from(services.CollectionRates).Where(
		goqu.C("user_id").Eq(arg(userID)),
		goqu.C("movie_id").Eq(arg(movieID)),
	).ForUpdate(exp.Wait)
	if err := r.get(ctx, &rt, ds); err != nil {
		return nil, err
	}
	return &rt, nil
}

func (r *repo) UpdateRate(ctx context.Context, rt *models.Rate) error {
	ds := r.dialect.Update(string(services.CollectionRates)).Prepared(true).
		Set(goqu.Record{"value": rt.Value, "date": rt.Date}).
		Where(goqu.C("id").Eq(arg(rt.ID)))
	return r.execOne(ctx, ds, "rate", rt.ID)
}

func (r *repo) rates(f services.Filter) *goqu.SelectDataset {
	return r.from(services.CollectionRates).Where(where(f)...).Order(
		goqu.C("date").Desc(),
		goqu.C("value").Desc(),
		goqu.C("id").Desc(),
	)
}

func (r *repo) Rates(ctx context.Context, f services.Filter, w pagination.Window) ([]models.Rate, error) {
	rates := []models.Rate{}
	err := r.selectAll(ctx, &rates, window(r.rates(f), w))
	return rates, err
}

func (r *repo) RatesForUpdate(ctx context.Context, f services.Filter) ([]models.Rate, error) {
	rates := []models.Rate{}
	err := r.selectAll(ctx, &rates, r.rates(f).ForUpdate(exp.Wait))
	return rates, err
}

func (r *repo) InsertReview(ctx context.Context, rv *models.Review) error {
	_, err := r.exec(ctx, r.dialect.Insert(string(services.CollectionReviews)).Prepared(true).Rows(goqu.Record{
		"id":       arg(rv.ID),
		"user_id":  arg(rv.UserID),
		"movie_id": arg(rv.MovieID),
		"title":    rv.Title,
		"body":     rv.Body,
		"date":     rv.Date,
	}))
	return err
}

func (r *repo) Review(ctx context.Context, id uuid.UUID) (*models.Review, error) {
	var rv models.Review
	if err := r.get(ctx, &rv, r.from(services.CollectionReviews).Where(goqu.C("id").Eq(arg(id)))); err != nil {
		return nil, err
	}
	return &rv, nil
}

func (r *repo) Reviews(ctx context.Context, f services.Filter, w pagination.Window) ([]models.Review, error) {
	reviews := []models.Review{}
	ds := r.from(services.CollectionReviews).Where(where(f)...).Order(
		goqu.C("date").Desc(),
		goqu.C("id").Desc(),
	)
	err := r.selectAll(ctx, &reviews, window(ds, w))
	return reviews, err
}

func listOrder() []exp.OrderedExpression {
	return []exp.OrderedExpression{
		goqu.C("date").Desc(),
		goqu.C("name").Desc(),
		goqu.C("id").Desc(),
	}
}

func (r *repo) InsertList(ctx context.Context, l *models.List) error {
	_, err := r.exec(ctx, r.dialect.Insert(string(services.CollectionLists)).Prepared(true).Rows(goqu.Record{
		"id":          arg(l.ID),
		"user_id":     arg(l.UserID),
		"name":        l.Name,
		"description": l.Description,
		"date":        l.Date,
	}))
	if err != nil {
		return err
	}
	return r.writeSequence(ctx, "list_movies", "list_id", l.ID, l.Movies)
}

func (r *repo) List(ctx context.Context, id uuid.UUID) (*models.List, error) {
	var l models.List
	if err := r.get(ctx, &l, r.from(services.CollectionLists).Where(goqu.C("id").Eq(arg(id)))); err != nil {
		return nil, err
	}
	movies, err := r.readSequence(ctx, "list_movies", "list_id", id)
	if err != nil {
		return nil, err
	}
	l.Movies = movies
	return &l, nil
}

func (r *repo) UpdateList(ctx context.Context, l *models.List) error {
	ds := r.dialect.Update(string(services.CollectionLists)).Prepared(true).
		Set(goqu.Record{"name": l.Name, "description": l.Description}).
		Where(goqu.C("id").Eq(arg(l.ID)))
	if err := r.execOne(ctx, ds, "list", l.ID); err != nil {
		return err
	}
	return r.writeSequence(ctx, "list_movies", "list_id", l.ID, l.Movies)
}

func (r *repo) Lists(ctx context.Context, f services.Filter, w pagination.Window) ([]models.List, error) {
	lists := []models.List{}
	ds := r.from(services.CollectionLists).Where(where(f)...).Order(listOrder()...)
	if err := r.selectAll(ctx, &lists, window(ds, w)); err != nil {
		return nil, err
	}
	if len(lists) == 0 {
		return lists, nil
	}

	ids := make([]uuid.UUID, len(lists))
	for i, l := range lists {
		ids[i] = l.ID
	}
	var entries []struct {
		ListID  uuid.UUID `db:"list_id"`
		MovieID uuid.UUID `db:"movie_id"`
	}
	seq := r.dialect.From("list_movies").Prepared(true).Select("list_id", "movie_id").
		Where(goqu.C("list_id").In(idArgs(ids))).
		Order(goqu.C("list_id").Asc(), goqu.C("position").Asc())
	if err := r.selectAll(ctx, &entries, seq); err != nil {
		return nil, fmt.Errorf("failed to read list_movies: %w", err)
	}
	movies := make(map[uuid.UUID][]uuid.UUID, len(lists))
	for _, e := range entries {
		movies[e.ListID] = append(movies[e.ListID], e.MovieID)
	}
	for i := range lists {
		lists[i].Movies = movies[lists[i].ID]
		if lists[i].Movies == nil {
			lists[i].Movies = []uuid.UUID{}
		}
	}
	return lists, nil
}

var _ services.Store = (*Store)(nil)
