// Package redis provides the distributed store backend. Model state lives
// in plain keys, sessions in hashes with whole-session TTL, and live
// fan-out rides Redis pub/sub channels, one per session.
package redis

import (
	"context"
	"sync"
	"time"

	"github.com/goccy/go-json"
	goredis "github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/viant/dispatchly/fault"
	"github.com/viant/dispatchly/store"
)

const (
	sessionPrefix = "dispatchly:session:"
	channelPrefix = "dispatchly:events:"
)

// Store is the redis-backed store.
type Store struct {
	client *goredis.Client
	logger *logrus.Entry

	mu            sync.Mutex
	subscriptions map[string]*subscription
	closed        bool
}

type subscription struct {
	pubsub *goredis.PubSub
	mu     sync.RWMutex
	next   int
	subs   map[int]store.Callback
}

// envelope is the pub/sub message shape; Value carries the stored bytes
// verbatim.
type envelope struct {
	ID    string `json:"id"`
	Value string `json:"value"`
}

// New creates a redis store from a connection address, e.g. "127.0.0.1:6379".
func New(addr string, logger *logrus.Logger) *Store {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Store{
		client:        goredis.NewClient(&goredis.Options{Addr: addr}),
		logger:        logger.WithField("component", "store.redis"),
		subscriptions: map[string]*subscription{},
	}
}

// NewWithClient wraps an existing client; used by tests.
func NewWithClient(client *goredis.Client, logger *logrus.Logger) *Store {
	s := New("", logger)
	s.client = client
	return s
}

// ValueGet implements store.Store.
func (s *Store) ValueGet(ctx context.Context, key string) ([]byte, bool, error) {
	value, err := s.client.Get(ctx, key).Bytes()
	if err == goredis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fault.Wrap(fault.StorageGetError, "failed to get value "+key, err)
	}
	return value, true, nil
}

// ValueSet implements store.Store.
func (s *Store) ValueSet(ctx context.Context, key string, value []byte) error {
	if err := s.client.Set(ctx, key, value, 0).Err(); err != nil {
		return fault.Wrap(fault.StorageSetError, "failed to set value "+key, err)
	}
	return nil
}

// HashSet implements store.Store.
func (s *Store) HashSet(ctx context.Context, session, eventID string, value []byte, ttl time.Duration, publish bool) error {
	key := sessionPrefix + session
	if err := s.client.HSet(ctx, key, eventID, value).Err(); err != nil {
		return fault.Wrap(fault.StorageSetError, "failed to append event "+eventID, err)
	}
	if ttl > 0 {
		if err := s.client.Expire(ctx, key, ttl).Err(); err != nil {
			s.logger.WithError(err).Warn("failed to refresh session ttl")
		}
	}
	if publish {
		payload, err := json.Marshal(&envelope{ID: eventID, Value: string(value)})
		if err != nil {
			return fault.Wrap(fault.StorageSetError, "failed to marshal publication", err)
		}
		if err := s.client.Publish(ctx, channelPrefix+session, payload).Err(); err != nil {
			return fault.Wrap(fault.StorageSetError, "failed to publish event "+eventID, err)
		}
	}
	return nil
}

// HashGet implements store.Store.
func (s *Store) HashGet(ctx context.Context, session, eventID string) ([]byte, bool, error) {
	value, err := s.client.HGet(ctx, sessionPrefix+session, eventID).Bytes()
	if err == goredis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fault.Wrap(fault.StorageGetError, "failed to get event "+eventID, err)
	}
	return value, true, nil
}

// HashGetAll implements store.Store.
func (s *Store) HashGetAll(ctx context.Context, session string) (map[string][]byte, error) {
	values, err := s.client.HGetAll(ctx, sessionPrefix+session).Result()
	if err != nil {
		return nil, fault.Wrap(fault.StorageGetError, "failed to load session "+session, err)
	}
	out := make(map[string][]byte, len(values))
	for id, value := range values {
		out[id] = []byte(value)
	}
	return out, nil
}

// Subscribe implements store.Store.
func (s *Store) Subscribe(ctx context.Context, session string, callback store.Callback) (func(), error) {
	sub, err := s.subscription(ctx, session)
	if err != nil {
		return nil, err
	}
	sub.mu.Lock()
	token := sub.next
	sub.next++
	sub.subs[token] = callback
	sub.mu.Unlock()
	return func() {
		sub.mu.Lock()
		delete(sub.subs, token)
		sub.mu.Unlock()
	}, nil
}

// CreateSubscription implements store.Store.
func (s *Store) CreateSubscription(ctx context.Context, session string) error {
	_, err := s.subscription(ctx, session)
	return err
}

// RemoveSubscription implements store.Store.
func (s *Store) RemoveSubscription(ctx context.Context, session string) error {
	s.mu.Lock()
	sub, ok := s.subscriptions[session]
	delete(s.subscriptions, session)
	s.mu.Unlock()
	if !ok {
		return nil
	}
	return sub.pubsub.Close()
}

// Close implements store.Store.
func (s *Store) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	subs := s.subscriptions
	s.subscriptions = map[string]*subscription{}
	s.mu.Unlock()
	for _, sub := range subs {
		_ = sub.pubsub.Close()
	}
	return s.client.Close()
}

func (s *Store) subscription(ctx context.Context, session string) (*subscription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sub, ok := s.subscriptions[session]; ok {
		return sub, nil
	}
	pubsub := s.client.Subscribe(ctx, channelPrefix+session)
	// Force the SUBSCRIBE round-trip so ordering starts before any publish
	// that follows this call.
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, fault.Wrap(fault.StorageSubscribeError, "failed to subscribe to session "+session, err)
	}
	sub := &subscription{pubsub: pubsub, subs: map[int]store.Callback{}}
	s.subscriptions[session] = sub
	go s.dispatch(sub)
	return sub, nil
}

// dispatch pumps one session channel; the single goroutine per session
// preserves append order for every subscriber.
func (s *Store) dispatch(sub *subscription) {
	for message := range sub.pubsub.Channel() {
		var env envelope
		if err := json.Unmarshal([]byte(message.Payload), &env); err != nil {
			s.logger.WithError(err).Warn("skipping undecodable publication")
			continue
		}
		sub.mu.RLock()
		callbacks := make([]store.Callback, 0, len(sub.subs))
		for _, callback := range sub.subs {
			callbacks = append(callbacks, callback)
		}
		sub.mu.RUnlock()
		for _, callback := range callbacks {
			callback(env.ID, []byte(env.Value))
		}
	}
}
