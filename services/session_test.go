package services_test

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/justbri/marquee/services"
)

var sessionKey = []byte("fedcba9876543210fedcba9876543210")

func sessionBackends(t *testing.T) map[string]func() services.SessionBackend {
	return map[string]func() services.SessionBackend{
		"memory": func() services.SessionBackend { return services.NewMemorySessionBackend() },
		"badger": func() services.SessionBackend {
			b, err := services.OpenBadgerSessionBackend("")
			require.NoError(t, err)
			return b
		},
	}
}

// withCookies builds a request carrying the cookies set on rec.
func withCookies(rec *httptest.ResponseRecorder) *http.Request {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	for _, c := range rec.Result().Cookies() {
		req.AddCookie(c)
	}
	return req
}

func Test_SessionStore_Login_Logout(t *testing.T) {
	for name, open := range sessionBackends(t) {
		t.Run(name, func(t *testing.T) {
			// setup
			store := services.NewSessionStore(open(), services.DefaultSessionOptions(3600, false), sessionKey)
			defer store.Close()
			userID := uuid.New()

			// act
			login := httptest.NewRecorder()
			require.NoError(t, store.Login(login, httptest.NewRequest(http.MethodPost, "/", nil), userID))

			// assert
			cookies := login.Result().Cookies()
			require.Len(t, cookies, 1)
			assert.Equal(t, services.SessionName, cookies[0].Name)
			assert.True(t, cookies[0].HttpOnly)
			assert.NotContains(t, cookies[0].Value, userID.String())

			got, ok := store.UserID(withCookies(login))
			require.True(t, ok)
			assert.Equal(t, userID, got)

			// act
			logout := httptest.NewRecorder()
			require.NoError(t, store.Logout(logout, withCookies(login)))

			// assert
			_, ok = store.UserID(withCookies(login))
			assert.False(t, ok, "the old cookie no longer maps to a session")
			expired := logout.Result().Cookies()
			require.Len(t, expired, 1)
			assert.Negative(t, expired[0].MaxAge)
		})
	}
}

func Test_SessionStore_Login_Rotates_Session_Id(t *testing.T) {
	for name, open := range sessionBackends(t) {
		t.Run(name, func(t *testing.T) {
			store := services.NewSessionStore(open(), services.DefaultSessionOptions(3600, false), sessionKey)
			defer store.Close()

			first := httptest.NewRecorder()
			require.NoError(t, store.Login(first, httptest.NewRequest(http.MethodPost, "/", nil), uuid.New()))
			other := uuid.New()
			second := httptest.NewRecorder()
			require.NoError(t, store.Login(second, withCookies(first), other))

			_, ok := store.UserID(withCookies(first))
			assert.False(t, ok)
			got, ok := store.UserID(withCookies(second))
			require.True(t, ok)
			assert.Equal(t, other, got)
		})
	}
}

func Test_SessionStore_InvalidateUser(t *testing.T) {
	for name, open := range sessionBackends(t) {
		t.Run(name, func(t *testing.T) {
			// setup
			store := services.NewSessionStore(open(), services.DefaultSessionOptions(3600, false), sessionKey)
			defer store.Close()
			victim, bystander := uuid.New(), uuid.New()

			laptop, phone, other := httptest.NewRecorder(), httptest.NewRecorder(), httptest.NewRecorder()
			require.NoError(t, store.Login(laptop, httptest.NewRequest(http.MethodPost, "/", nil), victim))
			require.NoError(t, store.Login(phone, httptest.NewRequest(http.MethodPost, "/", nil), victim))
			require.NoError(t, store.Login(other, httptest.NewRequest(http.MethodPost, "/", nil), bystander))

			// act
			n, err := store.InvalidateUser(victim)

			// assert
			require.NoError(t, err)
			assert.Equal(t, 2, n)
			_, ok := store.UserID(withCookies(laptop))
			assert.False(t, ok)
			_, ok = store.UserID(withCookies(phone))
			assert.False(t, ok)
			_, ok = store.UserID(withCookies(other))
			assert.True(t, ok)
		})
	}
}

func Test_SessionStore_When_Cookie_Tampered(t *testing.T) {
	store := services.NewSessionStore(services.NewMemorySessionBackend(), services.DefaultSessionOptions(3600, false), sessionKey)
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: services.SessionName, Value: "forged"})

	_, ok := store.UserID(req)

	assert.False(t, ok)
}

func Test_SessionStore_When_Signed_With_Another_Key(t *testing.T) {
	backend := services.NewMemorySessionBackend()
	issuer := services.NewSessionStore(backend, services.DefaultSessionOptions(3600, false), sessionKey)
	verifier := services.NewSessionStore(backend, services.DefaultSessionOptions(3600, false), []byte("another-key-another-key-another!!"))

	login := httptest.NewRecorder()
	require.NoError(t, issuer.Login(login, httptest.NewRequest(http.MethodPost, "/", nil), uuid.New()))

	_, ok := verifier.UserID(withCookies(login))
	assert.False(t, ok)
}

func Test_SessionStore_When_Record_Expired(t *testing.T) {
	// setup
	backend := services.NewMemorySessionBackend()
	store := services.NewSessionStore(backend, services.DefaultSessionOptions(3600, false), sessionKey)
	userID := uuid.New()
	login := httptest.NewRecorder()
	require.NoError(t, store.Login(login, httptest.NewRequest(http.MethodPost, "/", nil), userID))

	// arrange
	n, err := backend.DeleteByUser(userID.String())
	require.NoError(t, err)
	require.Equal(t, 1, n)

	// act
	_, ok := store.UserID(withCookies(login))

	// assert
	assert.False(t, ok)
}

func Test_SessionRecord_Expired(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	assert.False(t, (&services.SessionRecord{}).Expired(now))
	assert.False(t, (&services.SessionRecord{ExpiresAt: now.Add(time.Minute)}).Expired(now))
	assert.True(t, (&services.SessionRecord{ExpiresAt: now.Add(-time.Minute)}).Expired(now))
}

func Test_BadgerSessionBackend_Drops_Already_Expired_Record(t *testing.T) {
	backend, err := services.OpenBadgerSessionBackend("")
	require.NoError(t, err)
	defer backend.Close()

	err = backend.Save(&services.SessionRecord{ID: "stale", UserID: "u", ExpiresAt: time.Now().Add(-time.Second)})
	require.NoError(t, err)

	_, err = backend.Load("stale")
	assert.ErrorIs(t, err, services.ErrSessionNotFound)
}
