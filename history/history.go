// Package history maintains the append-only per-session event log and
// derives chat transcripts from it.
package history

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/viant/dispatchly/event"
	"github.com/viant/dispatchly/fault"
	"github.com/viant/dispatchly/internal/clock"
	"github.com/viant/dispatchly/store"
)

// Pair is one completed prompt/response exchange of a chat transcript.
type Pair struct {
	Prompt   string `json:"prompt" yaml:"prompt"`
	Response string `json:"response" yaml:"response"`
}

// Service reads and appends session events through the shared store.
type Service struct {
	store  store.Store
	clock  clock.Clock
	logger *logrus.Entry

	mu     sync.Mutex
	lastTs map[string]int64
}

// New creates a history service.
func New(backing store.Store, clk clock.Clock, logger *logrus.Logger) *Service {
	if clk == nil {
		clk = clock.System
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Service{
		store:  backing,
		clock:  clk,
		logger: logger.WithField("component", "history"),
		lastTs: map[string]int64{},
	}
}

// Push appends an event to the session log, refreshing the session TTL and
// optionally publishing to subscribers. The event's timestamp is assigned
// here, kept strictly monotonic per session within this service so that
// reads order deterministically.
func (s *Service) Push(ctx context.Context, session string, ev *event.Event, ttl time.Duration, publish bool) error {
	if ev.ID == "" {
		ev.ID = event.NewID()
	}
	if ev.Timestamp == 0 {
		ev.Timestamp = s.nextTimestamp(session)
	}
	data, err := ev.Marshal()
	if err != nil {
		return err
	}
	return s.store.HashSet(ctx, session, ev.ID, data, ttl, publish)
}

func (s *Service) nextTimestamp(session string) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.clock.Now().UnixMilli()
	if last := s.lastTs[session]; now <= last {
		now = last + 1
	}
	s.lastTs[session] = now
	return now
}

// Range loads the session log sorted by timestamp; ties break by event id
// so ordering is deterministic across backends. Events that fail to decode
// are logged and skipped.
func (s *Service) Range(ctx context.Context, session string) ([]*event.Event, error) {
	values, err := s.store.HashGetAll(ctx, session)
	if err != nil {
		return nil, fault.Wrap(fault.HistoryGetError, "failed to load session "+session, err)
	}
	events := make([]*event.Event, 0, len(values))
	for id, value := range values {
		ev, err := event.Unmarshal(value)
		if err != nil {
			s.logger.WithError(err).WithField("event", id).Warn("skipping undecodable history event")
			continue
		}
		events = append(events, ev)
	}
	sort.SliceStable(events, func(i, j int) bool {
		if events[i].Timestamp != events[j].Timestamp {
			return events[i].Timestamp < events[j].Timestamp
		}
		return events[i].ID < events[j].ID
	})
	return events, nil
}

// RangeFromID returns the suffix of the log starting at fromID inclusive;
// empty when the id is not present.
func (s *Service) RangeFromID(ctx context.Context, session, fromID string) ([]*event.Event, error) {
	events, err := s.Range(ctx, session)
	if err != nil {
		return nil, err
	}
	for i, ev := range events {
		if ev.ID == fromID {
			return events[i:], nil
		}
	}
	return nil, nil
}
