package services

import (
	"encoding/base32"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/securecookie"
	"github.com/gorilla/sessions"
)

const (
	SessionName    = "marquee-session"
	sessionUserKey = "user_id"
)

// SessionStore is a gorilla sessions.Store that keeps session values on the
// server. The cookie only carries the signed session id, so every session of
// a user can be revoked at once.
type SessionStore struct {
	Codecs  []securecookie.Codec
	Options *sessions.Options
	backend SessionBackend
	now     func() time.Time
}

// NewSessionStore signs cookies with keyPairs, as securecookie.CodecsFromPairs expects them.
func NewSessionStore(backend SessionBackend, options sessions.Options, keyPairs ...[]byte) *SessionStore {
	codecs := securecookie.CodecsFromPairs(keyPairs...)
	for _, c := range codecs {
		if sc, ok := c.(*securecookie.SecureCookie); ok {
			sc.MaxAge(options.MaxAge)
		}
	}
	return &SessionStore{Codecs: codecs, Options: &options, backend: backend, now: time.Now}
}

// DefaultSessionOptions mirrors the cookie settings used across the app.
func DefaultSessionOptions(maxAge int, secure bool) sessions.Options {
	return sessions.Options{
		Path:     "/",
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	}
}

func (s *SessionStore) Get(r *http.Request, name string) (*sessions.Session, error) {
	return sessions.GetRegistry(r).Get(s, name)
}

func (s *SessionStore) New(r *http.Request, name string) (*sessions.Session, error) {
	session := sessions.NewSession(s, name)
	opts := *s.Options
	session.Options = &opts
	session.IsNew = true

	c, err := r.Cookie(name)
	if err != nil {
		return session, nil
	}
	if err := securecookie.DecodeMulti(name, c.Value, &session.ID, s.Codecs...); err != nil {
		session.ID = ""
		return session, nil
	}

	rec, err := s.backend.Load(session.ID)
	if errors.Is(err, ErrSessionNotFound) || (err == nil && rec.Expired(s.now())) {
		session.ID = ""
		return session, nil
	}
	if err != nil {
		return session, fmt.Errorf("failed to load session: %w", err)
	}
	if err := securecookie.DecodeMulti(name, rec.Data, &session.Values, s.Codecs...); err != nil {
		session.ID = ""
		return session, nil
	}
	session.IsNew = false
	return session, nil
}

func (s *SessionStore) Save(_ *http.Request, w http.ResponseWriter, session *sessions.Session) error {
	if session.Options.MaxAge < 0 {
		if session.ID != "" {
			if err := s.backend.Delete(session.ID); err != nil {
				return fmt.Errorf("failed to delete session: %w", err)
			}
		}
		http.SetCookie(w, sessions.NewCookie(session.Name(), "", session.Options))
		return nil
	}

	if session.ID == "" {
		session.ID = strings.TrimRight(base32.StdEncoding.EncodeToString(securecookie.GenerateRandomKey(32)), "=")
	}
	data, err := securecookie.EncodeMulti(session.Name(), session.Values, s.Codecs...)
	if err != nil {
		return fmt.Errorf("failed to encode session: %w", err)
	}
	userID, _ := session.Values[sessionUserKey].(string)
	rec := &SessionRecord{
		ID:        session.ID,
		UserID:    userID,
		Data:      data,
		ExpiresAt: s.now().Add(time.Duration(session.Options.MaxAge) * time.Second),
	}
	if err := s.backend.Save(rec); err != nil {
		return fmt.Errorf("failed to save session: %w", err)
	}

	encoded, err := securecookie.EncodeMulti(session.Name(), session.ID, s.Codecs...)
	if err != nil {
		return fmt.Errorf("failed to encode session id: %w", err)
	}
	http.SetCookie(w, sessions.NewCookie(session.Name(), encoded, session.Options))
	return nil
}

// Login binds a fresh session id to userID, discarding any previous session.
func (s *SessionStore) Login(w http.ResponseWriter, r *http.Request, userID uuid.UUID) error {
	session, err := s.Get(r, SessionName)
	if err != nil {
		return err
	}
	if session.ID != "" {
		if err := s.backend.Delete(session.ID); err != nil {
			return fmt.Errorf("failed to rotate session: %w", err)
		}
		session.ID = ""
	}
	session.Values = map[any]any{sessionUserKey: userID.String()}
	return session.Save(r, w)
}

// Logout removes the current session and expires its cookie.
func (s *SessionStore) Logout(w http.ResponseWriter, r *http.Request) error {
	session, err := s.Get(r, SessionName)
	if err != nil {
		return err
	}
	session.Values = map[any]any{}
	session.Options.MaxAge = -1
	return session.Save(r, w)
}

// UserID returns the user bound to the request's session.
func (s *SessionStore) UserID(r *http.Request) (uuid.UUID, bool) {
	session, err := s.Get(r, SessionName)
	if err != nil || session.IsNew {
		return uuid.Nil, false
	}
	raw, ok := session.Values[sessionUserKey].(string)
	if !ok {
		return uuid.Nil, false
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, false
	}
	return id, true
}

// InvalidateUser drops every session bound to userID.
func (s *SessionStore) InvalidateUser(userID uuid.UUID) (int, error) {
	return s.backend.DeleteByUser(userID.String())
}

func (s *SessionStore) Close() error {
	return s.backend.Close()
}
