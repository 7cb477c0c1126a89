// Package credentials persists the cached login (token plus minimal user
// identity) and enforces its maximum absolute age.
//
// Every failure in this package degrades to "no record": storage errors and
// corrupt values are logged and the caller simply sees a logged-out state.
package credentials

import (
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/wispberry-tech/sarao-auth/clock"
)

const (
	// DefaultKey is the storage key of the credential record.
	DefaultKey = "sarao_rt_auth"

	// DefaultMaxAge is how long a stored record stays valid.
	DefaultMaxAge = 8 * time.Hour
)

// Storage is a durable key-value store, the equivalent of browser local
// storage. GetItem returns ErrNotFound for a missing key.
type Storage interface {
	GetItem(key string) ([]byte, error)
	SetItem(key string, value []byte) error
	RemoveItem(key string) error
}

// Config configures a Store.
type Config struct {
	Storage Storage       // required
	Key     string        // defaults to DefaultKey
	MaxAge  time.Duration // defaults to DefaultMaxAge
	Clock   clock.Clock   // defaults to clock.Real()
}

// Store reads and writes the credential record.
type Store struct {
	storage Storage
	key     string
	maxAge  time.Duration
	clock   clock.Clock

	mu sync.Mutex
}

// NewStore creates a Store and immediately purges a stored record that has
// already outlived MaxAge.
func NewStore(cfg Config) (*Store, error) {
	if cfg.Storage == nil {
		return nil, errors.New("credential storage is required")
	}
	if cfg.Key == "" {
		cfg.Key = DefaultKey
	}
	if cfg.MaxAge <= 0 {
		cfg.MaxAge = DefaultMaxAge
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.Real()
	}

	s := &Store{
		storage: cfg.Storage,
		key:     cfg.Key,
		maxAge:  cfg.MaxAge,
		clock:   cfg.Clock,
	}

	s.PurgeExpired()
	return s, nil
}

// Key returns the storage key in use.
func (s *Store) Key() string { return s.key }

// MaxAge returns the configured maximum record age.
func (s *Store) MaxAge() time.Duration { return s.maxAge }

// Save writes {token, user{id,name,role}, timestamp: now}, replacing any
// previous record. A storage failure is logged and otherwise ignored.
func (s *Store) Save(token string, user User) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := EncodeRecord(Record{
		Token:     token,
		User:      user,
		Timestamp: s.clock.Now(),
	})
	if err != nil {
		slog.Error("Failed to encode credentials", "key", s.key, "error", err)
		return
	}

	if err := s.storage.SetItem(s.key, data); err != nil {
		slog.Error("Failed to store credentials",
			"error", &StorageError{Op: "set", Key: s.key, Err: err})
		return
	}

	slog.Debug("Credentials stored", "key", s.key, "user_id", user.ID)
}

// Retrieve returns the stored record. It reports false when there is no
// record, the value is malformed, the storage cannot be read, or the record
// is older than MaxAge. Malformed and expired records are removed.
func (s *Store) Retrieve() (*Record, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	record, err := s.load()
	if err != nil {
		var malformed *MalformedRecordError
		if errors.As(err, &malformed) {
			slog.Error("Failed to retrieve credentials", "error", err)
			s.remove()
		} else if !errors.Is(err, ErrNotFound) {
			slog.Error("Failed to retrieve credentials", "error", err)
		}
		return nil, false
	}

	if s.expired(record) {
		slog.Debug("Stored credentials expired",
			"key", s.key,
			"age", s.clock.Now().Sub(record.Timestamp),
			"max_age", s.maxAge)
		s.remove()
		return nil, false
	}

	return record, true
}

// Clear removes the stored record. Errors are logged, never returned.
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.remove()
}

// PurgeExpired removes the stored record if it has outlived MaxAge. It
// reports whether a record was removed.
func (s *Store) PurgeExpired() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	record, err := s.load()
	if err != nil || !s.expired(record) {
		return false
	}

	slog.Info("Purging expired credentials", "key", s.key, "stored_at", record.Timestamp)
	s.remove()
	return true
}

func (s *Store) load() (*Record, error) {
	data, err := s.storage.GetItem(s.key)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, &StorageError{Op: "get", Key: s.key, Err: err}
	}

	record, err := DecodeRecord(data)
	if err != nil {
		var malformed *MalformedRecordError
		if errors.As(err, &malformed) {
			malformed.Key = s.key
		}
		return nil, err
	}
	return record, nil
}

func (s *Store) expired(r *Record) bool {
	return s.clock.Now().Sub(r.Timestamp) > s.maxAge
}

func (s *Store) remove() {
	if err := s.storage.RemoveItem(s.key); err != nil && !errors.Is(err, ErrNotFound) {
		slog.Error("Failed to clear credentials",
			"error", &StorageError{Op: "remove", Key: s.key, Err: err})
	}
}
