// Package mem provides the in-process store backend. Session hashes expire
// as a whole via go-cache; subscription semantics mirror the redis backend
// so that consumers behave identically against either.
package mem

import (
	"context"
	"sync"
	"time"

	"github.com/patrickmn/go-cache"
	"github.com/viant/dispatchly/store"
)

const cleanupInterval = time.Minute

// Store is the in-memory store backend.
type Store struct {
	values   sync.Map // key -> []byte
	sessions *cache.Cache

	mu     sync.Mutex
	logs   map[string]*sessionLog
	pubsub *publisher
	closed bool
}

type sessionLog struct {
	mu      sync.Mutex
	entries []logEntry
}

type logEntry struct {
	id    string
	value []byte
}

// New creates an in-memory store.
func New() *Store {
	s := &Store{
		sessions: cache.New(cache.NoExpiration, cleanupInterval),
		logs:     map[string]*sessionLog{},
		pubsub:   newPublisher(),
	}
	s.sessions.OnEvicted(func(session string, _ interface{}) {
		s.mu.Lock()
		delete(s.logs, session)
		s.mu.Unlock()
	})
	return s
}

// ValueGet implements store.Store.
func (s *Store) ValueGet(ctx context.Context, key string) ([]byte, bool, error) {
	value, ok := s.values.Load(key)
	if !ok {
		return nil, false, nil
	}
	return value.([]byte), true, nil
}

// ValueSet implements store.Store.
func (s *Store) ValueSet(ctx context.Context, key string, value []byte) error {
	s.values.Store(key, append([]byte(nil), value...))
	return nil
}

// HashSet appends an event to the session log, refreshes the session TTL
// and optionally notifies subscribers. Duplicate event ids overwrite in
// place so redelivery stays idempotent.
func (s *Store) HashSet(ctx context.Context, session, eventID string, value []byte, ttl time.Duration, publish bool) error {
	log := s.sessionLog(session, true)
	stored := append([]byte(nil), value...)
	log.mu.Lock()
	replaced := false
	for i := range log.entries {
		if log.entries[i].id == eventID {
			log.entries[i].value = stored
			replaced = true
			break
		}
	}
	if !replaced {
		log.entries = append(log.entries, logEntry{id: eventID, value: stored})
	}
	log.mu.Unlock()
	// Refresh TTL for the session as a whole.
	if ttl <= 0 {
		ttl = cache.NoExpiration
	}
	s.sessions.Set(session, struct{}{}, ttl)
	if publish {
		s.pubsub.publish(session, eventID, stored)
	}
	return nil
}

// HashGet implements store.Store.
func (s *Store) HashGet(ctx context.Context, session, eventID string) ([]byte, bool, error) {
	log := s.sessionLog(session, false)
	if log == nil {
		return nil, false, nil
	}
	log.mu.Lock()
	defer log.mu.Unlock()
	for _, entry := range log.entries {
		if entry.id == eventID {
			return append([]byte(nil), entry.value...), true, nil
		}
	}
	return nil, false, nil
}

// HashGetAll implements store.Store.
func (s *Store) HashGetAll(ctx context.Context, session string) (map[string][]byte, error) {
	log := s.sessionLog(session, false)
	if log == nil {
		return map[string][]byte{}, nil
	}
	log.mu.Lock()
	defer log.mu.Unlock()
	out := make(map[string][]byte, len(log.entries))
	for _, entry := range log.entries {
		out[entry.id] = append([]byte(nil), entry.value...)
	}
	return out, nil
}

// Subscribe implements store.Store.
func (s *Store) Subscribe(ctx context.Context, session string, callback store.Callback) (func(), error) {
	return s.pubsub.subscribe(session, callback), nil
}

// CreateSubscription implements store.Store; the in-memory channel is the
// subscriber set itself, so creation just marks it live.
func (s *Store) CreateSubscription(ctx context.Context, session string) error {
	s.pubsub.create(session)
	return nil
}

// RemoveSubscription drops the session channel and all of its subscribers.
func (s *Store) RemoveSubscription(ctx context.Context, session string) error {
	s.pubsub.remove(session)
	return nil
}

// Close implements store.Store.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	s.sessions.Flush()
	s.pubsub.close()
	return nil
}

func (s *Store) sessionLog(session string, create bool) *sessionLog {
	s.mu.Lock()
	defer s.mu.Unlock()
	log, ok := s.logs[session]
	// An expired session reads as absent even before cleanup evicts it.
	if _, live := s.sessions.Get(session); ok && live {
		return log
	}
	if !create {
		return nil
	}
	log = &sessionLog{}
	s.logs[session] = log
	return log
}
