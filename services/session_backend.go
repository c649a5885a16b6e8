package services

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/goccy/go-json"
)

var ErrSessionNotFound = errors.New("session not found")

// SessionRecord is the server side state of one session. Data holds the
// securecookie encoded session values.
type SessionRecord struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Data      string    `json:"data"`
	ExpiresAt time.Time `json:"expires_at"`
}

func (r *SessionRecord) Expired(now time.Time) bool {
	return !r.ExpiresAt.IsZero() && now.After(r.ExpiresAt)
}

// SessionBackend persists session records and indexes them by user.
type SessionBackend interface {
	Load(id string) (*SessionRecord, error)
	Save(rec *SessionRecord) error
	Delete(id string) error
	DeleteByUser(userID string) (int, error)
	Close() error
}

// MemorySessionBackend keeps sessions in process memory. Sessions do not
// survive a restart.
type MemorySessionBackend struct {
	mu       sync.RWMutex
	sessions map[string]SessionRecord
	byUser   map[string]map[string]struct{}
}

func NewMemorySessionBackend() *MemorySessionBackend {
	return &MemorySessionBackend{
		sessions: make(map[string]SessionRecord),
		byUser:   make(map[string]map[string]struct{}),
	}
}

func (m *MemorySessionBackend) Load(id string) (*SessionRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	rec, ok := m.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return &rec, nil
}

func (m *MemorySessionBackend) Save(rec *SessionRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.unindex(rec.ID)
	m.sessions[rec.ID] = *rec
	if rec.UserID != "" {
		if m.byUser[rec.UserID] == nil {
			m.byUser[rec.UserID] = make(map[string]struct{})
		}
		m.byUser[rec.UserID][rec.ID] = struct{}{}
	}
	return nil
}

func (m *MemorySessionBackend) Delete(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.unindex(id)
	delete(m.sessions, id)
	return nil
}

func (m *MemorySessionBackend) DeleteByUser(userID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	ids := m.byUser[userID]
	for id := range ids {
		delete(m.sessions, id)
	}
	delete(m.byUser, userID)
	return len(ids), nil
}

func (m *MemorySessionBackend) Close() error { return nil }

// unindex removes id from the user index. Callers hold mu.
func (m *MemorySessionBackend) unindex(id string) {
	old, ok := m.sessions[id]
	if !ok || old.UserID == "" {
		return
	}
	delete(m.byUser[old.UserID], id)
	if len(m.byUser[old.UserID]) == 0 {
		delete(m.byUser, old.UserID)
	}
}

const (
	sessionKeyPrefix     = "session:"
	sessionUserKeyPrefix = "session_user:"
)

// BadgerSessionBackend stores sessions in BadgerDB. Entries carry a TTL so
// expired sessions are dropped by badger itself.
type BadgerSessionBackend struct {
	db *badger.DB
}

// OpenBadgerSessionBackend opens a badger database at path. An empty path
// opens an in-memory database.
func OpenBadgerSessionBackend(path string) (*BadgerSessionBackend, error) {
	opts := badger.DefaultOptions(path)
	if path == "" {
		opts = opts.WithInMemory(true)
	}
	opts.Logger = nil

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open session database: %w", err)
	}
	return &BadgerSessionBackend{db: db}, nil
}

func (b *BadgerSessionBackend) Load(id string) (*SessionRecord, error) {
	var rec SessionRecord
	err := b.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(sessionKeyPrefix + id))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return ErrSessionNotFound
		}
		if err != nil {
			return fmt.Errorf("get session: %w", err)
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &rec)
		})
	})
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

func (b *BadgerSessionBackend) Save(rec *SessionRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}
	ttl := time.Until(rec.ExpiresAt)
	if ttl <= 0 {
		return b.Delete(rec.ID)
	}

	return b.db.Update(func(txn *badger.Txn) error {
		previous, err := loadRecord(txn, rec.ID)
		if err != nil {
			return err
		}
		if previous != nil && previous.UserID != "" && previous.UserID != rec.UserID {
			if err := txn.Delete(userSessionKey(previous.UserID, rec.ID)); err != nil {
				return fmt.Errorf("delete user mapping: %w", err)
			}
		}

		if err := txn.SetEntry(badger.NewEntry([]byte(sessionKeyPrefix+rec.ID), data).WithTTL(ttl)); err != nil {
			return fmt.Errorf("set session: %w", err)
		}
		if rec.UserID != "" {
			entry := badger.NewEntry(userSessionKey(rec.UserID, rec.ID), []byte(rec.ID)).WithTTL(ttl)
			if err := txn.SetEntry(entry); err != nil {
				return fmt.Errorf("set user mapping: %w", err)
			}
		}
		return nil
	})
}

func (b *BadgerSessionBackend) Delete(id string) error {
	return b.db.Update(func(txn *badger.Txn) error {
		return deleteSession(txn, id)
	})
}

func (b *BadgerSessionBackend) DeleteByUser(userID string) (int, error) {
	var ids []string
	err := b.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = true
		it := txn.NewIterator(opts)
		defer it.Close()

		prefix := []byte(sessionUserKeyPrefix + userID + ":")
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			err := it.Item().Value(func(val []byte) error {
				ids = append(ids, string(val))
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("list user sessions: %w", err)
	}

	err = b.db.Update(func(txn *badger.Txn) error {
		for _, id := range ids {
			if err := deleteSession(txn, id); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return len(ids), nil
}

func (b *BadgerSessionBackend) Close() error {
	return b.db.Close()
}

func userSessionKey(userID, id string) []byte {
	return []byte(sessionUserKeyPrefix + userID + ":" + id)
}

func loadRecord(txn *badger.Txn, id string) (*SessionRecord, error) {
	item, err := txn.Get([]byte(sessionKeyPrefix + id))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}
	var rec SessionRecord
	if err := item.Value(func(val []byte) error { return json.Unmarshal(val, &rec) }); err != nil {
		return nil, fmt.Errorf("unmarshal session: %w", err)
	}
	return &rec, nil
}

func deleteSession(txn *badger.Txn, id string) error {
	rec, err := loadRecord(txn, id)
	if err != nil || rec == nil {
		return err
	}
	if err := txn.Delete([]byte(sessionKeyPrefix + id)); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	if rec.UserID != "" {
		if err := txn.Delete(userSessionKey(rec.UserID, id)); err != nil {
			return fmt.Errorf("delete user mapping: %w", err)
		}
	}
	return nil
}
