package services_test

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"slices"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/justbri/marquee/models"
	"github.com/justbri/marquee/services"
	"github.com/justbri/marquee/testutil/memstore"
)

func Test_UserDeletionPlan_Step_Order(t *testing.T) {
	user := &models.User{ID: uuid.New(), PhotoID: uuid.New(), WatchlistID: uuid.New()}

	plan := services.UserDeletionPlan(user)

	require.Len(t, plan.Steps, 6)
	assert.Equal(t, services.CollectionReviews, plan.Steps[0].Collection)
	assert.Equal(t, services.CollectionLists, plan.Steps[1].Collection)
	assert.Equal(t, services.StepRetractRatings, plan.Steps[2].Kind)
	assert.Equal(t, services.ByID(user.WatchlistID), plan.Steps[3].Filter)
	assert.Equal(t, services.ByID(user.PhotoID), plan.Steps[4].Filter)
	assert.Equal(t, services.ByID(user.ID), plan.Steps[5].Filter)
	assert.Equal(t, "retract rates where user_id", plan.Steps[2].String())
}

func Test_DeleteUser_Folds_Rates_Per_Movie(t *testing.T) {
	// setup
	ctx := context.Background()
	svc, store := newService(t)
	movies := seedMovies(t, store, 3)
	victim := registerUser(t, svc, "victim")
	others := []*models.User{
		registerUser(t, svc, "alpha"),
		registerUser(t, svc, "bravo"),
		registerUser(t, svc, "charlie"),
		registerUser(t, svc, "delta"),
	}

	// arrange: ten rates by the other users
	for i, u := range others {
		_, _, err := svc.RateMovie(ctx, u.ID, movies[0].IDTMDB, 2+i)
		require.NoError(t, err)
		_, _, err = svc.RateMovie(ctx, u.ID, movies[1].IDTMDB, 7-i)
		require.NoError(t, err)
	}
	for _, u := range others[:2] {
		_, _, err := svc.RateMovie(ctx, u.ID, movies[2].IDTMDB, 9)
		require.NoError(t, err)
	}

	// arrange: three rates by the victim on two movies, written below the
	// service since a user normally holds one rate per movie
	victimRates := []models.Rate{
		{ID: uuid.New(), UserID: victim.ID, MovieID: movies[0].ID, Value: 4, Date: baseTime},
		{ID: uuid.New(), UserID: victim.ID, MovieID: movies[0].ID, Value: 6, Date: baseTime},
		{ID: uuid.New(), UserID: victim.ID, MovieID: movies[1].ID, Value: 8, Date: baseTime},
	}
	err := store.Update(ctx, func(repo services.Repo) error {
		for i := range victimRates {
			if err := repo.InsertRate(ctx, &victimRates[i]); err != nil {
				return err
			}
			d := services.Delta{Value: victimRates[i].Value, Count: 1}
			if _, err := svc.Ratings().Apply(ctx, repo, victimRates[i].MovieID, d, "create"); err != nil {
				return err
			}
		}
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, 13, count(t, store, services.CollectionRates, services.Filter{}))

	before := make([]*models.Movie, len(movies))
	for i, m := range movies {
		before[i] = loadMovie(t, store, m.ID)
	}

	// act
	report, err := svc.DeleteUser(ctx, victim.ID, victim.ID)

	// assert
	require.NoError(t, err)
	assert.Equal(t, int64(3), report.Deleted[services.CollectionRates])
	assert.ElementsMatch(t, []uuid.UUID{movies[0].ID, movies[1].ID}, report.Reaggregated)
	assert.Empty(t, report.Skipped)
	assert.Equal(t, 10, count(t, store, services.CollectionRates, services.Filter{}))

	m0 := loadMovie(t, store, movies[0].ID)
	assert.Equal(t, before[0].RateCount-2, m0.RateCount)
	assert.Equal(t, before[0].RateValue-10, m0.RateValue)
	m1 := loadMovie(t, store, movies[1].ID)
	assert.Equal(t, before[1].RateCount-1, m1.RateCount)
	assert.Equal(t, before[1].RateValue-8, m1.RateValue)
	assert.Equal(t, before[2], loadMovie(t, store, movies[2].ID))

	for _, m := range movies {
		requireAggregateConsistent(t, store, m.ID)
	}
}

func Test_DeleteUser_Removes_Everything_And_Ends_Sessions(t *testing.T) {
	// setup
	ctx := context.Background()
	sessions := services.NewSessionStore(
		services.NewMemorySessionBackend(),
		services.DefaultSessionOptions(3600, false),
		[]byte("0123456789abcdef0123456789abcdef"),
	)
	svc, store := newService(t, services.WithSessionInvalidator(sessions))
	movies := seedMovies(t, store, 2)
	user := registerUser(t, svc, "leaving")
	bystander := registerUser(t, svc, "staying")

	// arrange
	_, err := svc.UpdateUser(ctx, user.ID, user.ID, services.UpdateUserInput{
		Photo: &services.PhotoUpload{Data: []byte{0x89, 'P', 'N', 'G'}, ContentType: "image/png"},
	})
	require.NoError(t, err)
	_, err = svc.CreateReview(ctx, user.ID, movies[0].IDTMDB, "Great", "Loved it")
	require.NoError(t, err)
	_, err = svc.CreateReview(ctx, bystander.ID, movies[0].IDTMDB, "Fine", "It was fine")
	require.NoError(t, err)
	_, err = svc.CreateList(ctx, user.ID, user.ID, services.ListInput{Name: "Faves", Movies: []int{movies[0].IDTMDB, movies[1].IDTMDB}})
	require.NoError(t, err)
	_, _, err = svc.RateMovie(ctx, user.ID, movies[1].IDTMDB, 7)
	require.NoError(t, err)
	_, _, err = svc.RateMovie(ctx, bystander.ID, movies[1].IDTMDB, 3)
	require.NoError(t, err)
	_, err = svc.SetWatchlist(ctx, user.ID, user.ID, []int{movies[1].IDTMDB})
	require.NoError(t, err)

	login := httptest.NewRecorder()
	require.NoError(t, sessions.Login(login, httptest.NewRequest(http.MethodPost, "/", nil), user.ID))
	cookies := login.Result().Cookies()
	authed := func() bool {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		for _, c := range cookies {
			req.AddCookie(c)
		}
		id, ok := sessions.UserID(req)
		return ok && id == user.ID
	}
	require.True(t, authed())

	// act
	report, err := svc.DeleteUser(ctx, user.ID, user.ID)

	// assert
	require.NoError(t, err)
	assert.Equal(t, 0, count(t, store, services.CollectionReviews, services.ByUser(user.ID)))
	assert.Equal(t, 0, count(t, store, services.CollectionLists, services.ByUser(user.ID)))
	assert.Equal(t, 0, count(t, store, services.CollectionRates, services.ByUser(user.ID)))
	assert.Equal(t, 0, count(t, store, services.CollectionWatchlists, services.ByID(user.WatchlistID)))
	assert.Equal(t, 0, count(t, store, services.CollectionProfilePhotos, services.ByID(user.PhotoID)))
	assert.Equal(t, 0, count(t, store, services.CollectionUsers, services.ByID(user.ID)))
	assert.False(t, authed(), "session of a deleted user must not authenticate")

	assert.Equal(t, int64(1), report.Deleted[services.CollectionReviews])
	assert.Equal(t, int64(1), report.Deleted[services.CollectionLists])
	assert.Equal(t, int64(1), report.Deleted[services.CollectionUsers])

	assert.Equal(t, 1, count(t, store, services.CollectionReviews, services.ByUser(bystander.ID)))
	m1 := loadMovie(t, store, movies[1].ID)
	assert.Equal(t, 1, m1.RateCount)
	assert.Equal(t, 3, m1.RateAverage)

	_, err = svc.User(ctx, user.ID, bystander.ID)
	assert.ErrorIs(t, err, services.ErrNotFound)
}

func Test_DeleteUser_When_Not_Authorized(t *testing.T) {
	ctx := context.Background()
	svc, store := newService(t)
	user := registerUser(t, svc, "target")
	other := registerUser(t, svc, "intruder")

	t.Run("another user", func(t *testing.T) {
		_, err := svc.DeleteUser(ctx, user.ID, other.ID)
		assert.ErrorIs(t, err, services.ErrUnauthorized)
	})

	t.Run("anonymous", func(t *testing.T) {
		_, err := svc.DeleteUser(ctx, user.ID, uuid.Nil)
		assert.ErrorIs(t, err, services.ErrUnauthorized)
	})

	assert.Equal(t, 1, count(t, store, services.CollectionUsers, services.ByID(user.ID)))
}

func Test_DeleteUser_When_User_Missing(t *testing.T) {
	svc, _ := newService(t)
	ghost := uuid.New()

	_, err := svc.DeleteUser(context.Background(), ghost, ghost)

	var nf *services.NotFoundError
	require.ErrorAs(t, err, &nf)
	assert.Equal(t, "user", nf.Resource)
}

func Test_DeleteUser_When_Step_Fails_Rolls_Back(t *testing.T) {
	// setup
	ctx := context.Background()
	svc, store := newService(t)
	movie := seedMovies(t, store, 1)[0]
	user := registerUser(t, svc, "unlucky")
	_, err := svc.CreateReview(ctx, user.ID, movie.IDTMDB, "Title", "Body")
	require.NoError(t, err)
	_, _, err = svc.RateMovie(ctx, user.ID, movie.IDTMDB, 6)
	require.NoError(t, err)

	// arrange
	boom := errors.New("disk full")
	store.FailOn(services.CollectionProfilePhotos, boom)

	// act
	_, err = svc.DeleteUser(ctx, user.ID, user.ID)

	// assert
	require.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "cascade user step 5")
	assert.Equal(t, 1, count(t, store, services.CollectionUsers, services.ByID(user.ID)))
	assert.Equal(t, 1, count(t, store, services.CollectionReviews, services.ByUser(user.ID)))
	assert.Equal(t, 1, count(t, store, services.CollectionRates, services.ByUser(user.ID)))
	assert.Equal(t, 6, loadMovie(t, store, movie.ID).RateValue)

	// act
	store.FailOn(services.CollectionProfilePhotos, nil)
	_, err = svc.DeleteUser(ctx, user.ID, user.ID)

	// assert
	require.NoError(t, err)
	assert.Zero(t, loadMovie(t, store, movie.ID).RateCount)
}

// deleteMovie removes a movie behind the aggregator's back.
func deleteMovie(t *testing.T, store services.Store, id uuid.UUID) {
	t.Helper()
	err := store.Update(context.Background(), func(repo services.Repo) error {
		_, err := repo.DeleteWhere(context.Background(), services.CollectionMovies, services.ByID(id))
		return err
	})
	require.NoError(t, err)
}

func Test_DeleteUser_When_Rated_Movie_Vanished_Aborts(t *testing.T) {
	// setup
	ctx := context.Background()
	svc, store := newService(t)
	movies := seedMovies(t, store, 2)
	user := registerUser(t, svc, "orphan")
	for _, m := range movies {
		_, _, err := svc.RateMovie(ctx, user.ID, m.IDTMDB, 5)
		require.NoError(t, err)
	}
	deleteMovie(t, store, movies[0].ID)

	// act
	_, err := svc.DeleteUser(ctx, user.ID, user.ID)

	// assert
	var cerr *services.ConsistencyError
	require.ErrorAs(t, err, &cerr)
	assert.ErrorIs(t, err, services.ErrConsistency)
	assert.Equal(t, movies[0].ID, cerr.MovieID)
	assert.Equal(t, 1, count(t, store, services.CollectionUsers, services.ByID(user.ID)))
	assert.Equal(t, 2, count(t, store, services.CollectionRates, services.ByUser(user.ID)))
	assert.Equal(t, 1, loadMovie(t, store, movies[1].ID).RateCount)
}

func Test_DeleteUser_When_Rated_Movie_Vanished_Skips(t *testing.T) {
	// setup
	ctx := context.Background()
	svc, store := newService(t, services.WithMissingMoviePolicy(services.SkipMissingMovie))
	movies := seedMovies(t, store, 2)
	user := registerUser(t, svc, "orphan")
	for _, m := range movies {
		_, _, err := svc.RateMovie(ctx, user.ID, m.IDTMDB, 5)
		require.NoError(t, err)
	}
	deleteMovie(t, store, movies[0].ID)

	// act
	report, err := svc.DeleteUser(ctx, user.ID, user.ID)

	// assert
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{movies[0].ID}, report.Skipped)
	assert.Equal(t, []uuid.UUID{movies[1].ID}, report.Reaggregated)
	assert.Equal(t, 0, count(t, store, services.CollectionRates, services.ByUser(user.ID)))
	assert.Zero(t, loadMovie(t, store, movies[1].ID).RateCount)
}

func Test_DeleteList(t *testing.T) {
	// setup
	ctx := context.Background()
	svc, store := newService(t)
	movies := seedMovies(t, store, 2)
	owner := registerUser(t, svc, "curator")
	other := registerUser(t, svc, "visitor")
	list, err := svc.CreateList(ctx, owner.ID, owner.ID, services.ListInput{Name: "Keep", Movies: []int{movies[0].IDTMDB}})
	require.NoError(t, err)
	doomed, err := svc.CreateList(ctx, owner.ID, owner.ID, services.ListInput{Name: "Drop", Movies: []int{movies[1].IDTMDB}})
	require.NoError(t, err)

	// act & assert
	assert.ErrorIs(t, svc.DeleteList(ctx, owner.ID, doomed.ID, other.ID), services.ErrUnauthorized)
	assert.ErrorIs(t, svc.DeleteList(ctx, other.ID, doomed.ID, other.ID), services.ErrNotFound)
	require.NoError(t, svc.DeleteList(ctx, owner.ID, doomed.ID, owner.ID))
	assert.ErrorIs(t, svc.DeleteList(ctx, owner.ID, doomed.ID, owner.ID), services.ErrNotFound)

	details, err := svc.User(ctx, owner.ID, owner.ID)
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{list.ID}, details.Lists)
	assert.Equal(t, 2, count(t, store, services.CollectionMovies, services.Filter{}))
}

func Test_DeleteReview(t *testing.T) {
	// setup
	ctx := context.Background()
	svc, store := newService(t)
	movie := seedMovies(t, store, 1)[0]
	author := registerUser(t, svc, "author")
	other := registerUser(t, svc, "critic")
	review, err := svc.CreateReview(ctx, author.ID, movie.IDTMDB, "Title", "Body")
	require.NoError(t, err)

	// act & assert
	assert.ErrorIs(t, svc.DeleteReview(ctx, author.ID, review.ID, other.ID), services.ErrUnauthorized)
	assert.ErrorIs(t, svc.DeleteReview(ctx, other.ID, review.ID, other.ID), services.ErrNotFound)
	require.NoError(t, svc.DeleteReview(ctx, author.ID, review.ID, author.ID))
	assert.Equal(t, 0, count(t, store, services.CollectionReviews, services.ByMovie(movie.ID)))
}

func Test_DeleteUser_Locks_Movies_In_Order_Before_Rates(t *testing.T) {
	// setup
	ctx := context.Background()
	svc, store := newService(t)
	movies := seedMovies(t, store, 4)
	user := registerUser(t, svc, "leaver")
	other := registerUser(t, svc, "stayer")
	for _, m := range movies[:3] {
		_, _, err := svc.RateMovie(ctx, user.ID, m.IDTMDB, 7)
		require.NoError(t, err)
	}
	_, _, err := svc.RateMovie(ctx, other.ID, movies[3].IDTMDB, 4)
	require.NoError(t, err)
	store.ResetLocks()

	// act
	_, err = svc.DeleteUser(ctx, user.ID, user.ID)

	// assert
	require.NoError(t, err)
	locks := store.Locks()
	firstRate := slices.IndexFunc(locks, func(l memstore.Lock) bool {
		return l.Collection == services.CollectionRates
	})
	require.Equal(t, 3, firstRate, "three movie locks come before any rate lock")

	locked := make([]uuid.UUID, 0, 3)
	for _, l := range locks[:firstRate] {
		require.Equal(t, services.CollectionMovies, l.Collection)
		locked = append(locked, l.ID)
	}
	assert.True(t, slices.IsSortedFunc(locked, func(a, b uuid.UUID) int { return bytes.Compare(a[:], b[:]) }))
	assert.ElementsMatch(t, []uuid.UUID{movies[0].ID, movies[1].ID, movies[2].ID}, locked)
	assert.NotContains(t, locked, movies[3].ID)

	rateLocks := 0
	for _, l := range locks[firstRate:] {
		if l.Collection == services.CollectionRates {
			rateLocks++
		}
	}
	assert.Equal(t, 3, rateLocks)
	assert.Equal(t, 1, loadMovie(t, store, movies[3].ID).RateCount)
}
