package checkout

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/noah-isme/checkout-pricing/internal/lock"
	"github.com/noah-isme/checkout-pricing/internal/pricing"
)

var (
	// ErrSessionNotFound indicates the session never existed or has expired.
	ErrSessionNotFound = errors.New("checkout session not found")
	// ErrSessionClosed is returned when mutating a session that was already closed.
	ErrSessionClosed = errors.New("checkout session closed")
)

// Session is one customer's scanned basket.
type Session struct {
	ID        string       `json:"id"`
	Items     pricing.Cart `json:"items"`
	OpenedAt  time.Time    `json:"openedAt"`
	ExpiresAt time.Time    `json:"expiresAt"`
	ClosedAt  *time.Time   `json:"closedAt,omitempty"`
}

// Closed reports whether the session has been closed.
func (s Session) Closed() bool { return s.ClosedAt != nil }

// Store keeps sessions for a bounded time. Update runs fn against the stored
// session atomically and persists the result only when fn returns nil.
type Store interface {
	Create(ctx context.Context, s Session, ttl time.Duration) error
	Get(ctx context.Context, id string) (Session, error)
	Update(ctx context.Context, id string, ttl time.Duration, fn func(*Session) error) (Session, error)
}

// MemoryStore keeps sessions in process.
type MemoryStore struct {
	Now func() time.Time

	mu       sync.Mutex
	sessions map[string]memoryEntry
}

type memoryEntry struct {
	session Session
	expires time.Time
}

// NewMemoryStore constructs an empty in-process store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{sessions: map[string]memoryEntry{}}
}

func (m *MemoryStore) now() time.Time {
	if m.Now != nil {
		return m.Now()
	}
	return time.Now()
}

// Create stores s until ttl elapses.
func (m *MemoryStore) Create(_ context.Context, s Session, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sweepLocked()
	m.sessions[s.ID] = memoryEntry{session: cloneSession(s), expires: m.now().Add(ttl)}
	return nil
}

// Get returns a copy of the session.
func (m *MemoryStore) Get(_ context.Context, id string) (Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	entry, ok := m.liveLocked(id)
	if !ok {
		return Session{}, ErrSessionNotFound
	}
	return cloneSession(entry.session), nil
}

// Update applies fn under the store mutex and extends the session lifetime.
func (m *MemoryStore) Update(_ context.Context, id string, ttl time.Duration, fn func(*Session) error) (Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	entry, ok := m.liveLocked(id)
	if !ok {
		return Session{}, ErrSessionNotFound
	}
	next := cloneSession(entry.session)
	if err := fn(&next); err != nil {
		return Session{}, err
	}
	m.sessions[id] = memoryEntry{session: next, expires: m.now().Add(ttl)}
	return cloneSession(next), nil
}

// Len returns the number of unexpired sessions.
func (m *MemoryStore) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sweepLocked()
	return len(m.sessions)
}

func (m *MemoryStore) liveLocked(id string) (memoryEntry, bool) {
	entry, ok := m.sessions[id]
	if !ok {
		return memoryEntry{}, false
	}
	if !m.now().Before(entry.expires) {
		delete(m.sessions, id)
		return memoryEntry{}, false
	}
	return entry, true
}

func (m *MemoryStore) sweepLocked() {
	now := m.now()
	for id, entry := range m.sessions {
		if !now.Before(entry.expires) {
			delete(m.sessions, id)
		}
	}
}

// RedisStore keeps sessions as JSON documents so any API replica can serve them.
type RedisStore struct {
	R      *redis.Client
	Prefix string
	Locker lock.Locker
	// LockTTL bounds how long one update may hold a session.
	LockTTL time.Duration
}

// NewRedisStore constructs a RedisStore using client for both data and locks.
func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{
		R:       client,
		Prefix:  "checkout:session:",
		Locker:  lock.Locker{R: client, RetryBackoff: 10 * time.Millisecond},
		LockTTL: 5 * time.Second,
	}
}

func (s *RedisStore) key(id string) string { return s.Prefix + id }

// Create stores sess until ttl elapses.
func (s *RedisStore) Create(ctx context.Context, sess Session, ttl time.Duration) error {
	data, err := json.Marshal(sess)
	if err != nil {
		return err
	}
	return s.R.Set(ctx, s.key(sess.ID), data, ttl).Err()
}

// Get loads the session document.
func (s *RedisStore) Get(ctx context.Context, id string) (Session, error) {
	data, err := s.R.Get(ctx, s.key(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return Session{}, ErrSessionNotFound
		}
		return Session{}, err
	}
	var sess Session
	if err := json.Unmarshal(data, &sess); err != nil {
		return Session{}, err
	}
	if sess.Items == nil {
		sess.Items = pricing.Cart{}
	}
	return sess, nil
}

// Update performs a read-modify-write while holding the session lock.
func (s *RedisStore) Update(ctx context.Context, id string, ttl time.Duration, fn func(*Session) error) (Session, error) {
	var out Session
	err := s.Locker.WithLock(ctx, s.key(id)+":lock", s.LockTTL, func(ctx context.Context) error {
		sess, err := s.Get(ctx, id)
		if err != nil {
			return err
		}
		if err := fn(&sess); err != nil {
			return err
		}
		if err := s.Create(ctx, sess, ttl); err != nil {
			return err
		}
		out = sess
		return nil
	})
	return out, err
}

func cloneSession(s Session) Session {
	out := s
	out.Items = s.Items.Clone()
	if s.ClosedAt != nil {
		closed := *s.ClosedAt
		out.ClosedAt = &closed
	}
	return out
}
