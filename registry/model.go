// Package registry tracks per-model dispatch state: readiness, error
// reasons with restore windows, and fixed-window rate-limit accounting.
// State is persisted through the shared store so that engines sharing a
// backend also share model health.
package registry

import (
	"context"
	"fmt"
	"time"

	"github.com/goccy/go-json"
	"github.com/sirupsen/logrus"
	"github.com/viant/dispatchly/fault"
	"github.com/viant/dispatchly/internal/clock"
	"github.com/viant/dispatchly/store"
)

// Status is a model's dispatch status.
type Status string

const (
	StatusReady Status = "ready"
	StatusError Status = "error"
)

// ReasonNone marks a ready state.
const ReasonNone = "NONE"

// Settings carries a model's dispatch limits.
type Settings struct {
	MaxTokens int
	Rate      Rate
	Restore   Restore
}

// Rate is a fixed-window admission limit.
type Rate struct {
	Max    int
	Window time.Duration
}

// Restore holds minimum delays before an errored model is reconsidered,
// indexed by error reason.
type Restore struct {
	RateLimit             time.Duration
	Retry                 time.Duration
	Timeout               time.Duration
	ProviderCommError     time.Duration
	ProviderExceededError time.Duration
}

// Model identifies a configured (provider, model) pair.
type Model struct {
	Provider string
	Name     string
	Settings Settings
}

// Key returns the state key, provider:name.
func (m *Model) Key() string {
	return m.Provider + ":" + m.Name
}

func (m *Model) stateKey() string {
	return "model:" + m.Provider + ":" + m.Name
}

// State is the persisted model status.
type State struct {
	Status    Status `json:"status"`
	Timestamp int64  `json:"timestamp"` // ms epoch of the last transition
	Reason    string `json:"reason"`
}

// RateLimit is the persisted fixed-window counter.
type RateLimit struct {
	Count       int   `json:"count"`
	WindowStart int64 `json:"windowStart"` // ms epoch
}

// Record is the full persisted model entry.
type Record struct {
	State     State     `json:"state"`
	RateLimit RateLimit `json:"rateLimit"`
}

// Registry resolves models and mediates their persisted state.
type Registry struct {
	store  store.Store
	clock  clock.Clock
	logger *logrus.Entry
	models map[string]*Model
	order  []string
}

// New creates a registry over the given store.
func New(backing store.Store, clk clock.Clock, logger *logrus.Logger, models []*Model) *Registry {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	if clk == nil {
		clk = clock.System
	}
	r := &Registry{
		store:  backing,
		clock:  clk,
		logger: logger.WithField("component", "registry"),
		models: map[string]*Model{},
	}
	for _, model := range models {
		key := model.Key()
		if _, ok := r.models[key]; ok {
			continue
		}
		r.models[key] = model
		r.order = append(r.order, key)
	}
	return r
}

// Lookup resolves a configured model by provider:name key.
func (r *Registry) Lookup(key string) (*Model, bool) {
	model, ok := r.models[key]
	return model, ok
}

// Keys returns configured model keys in registration order.
func (r *Registry) Keys() []string {
	return r.order
}

// Init seeds absent model state to ready.
func (r *Registry) Init(ctx context.Context) error {
	now := r.clock.Now().UnixMilli()
	for _, key := range r.order {
		model := r.models[key]
		_, found, err := r.record(ctx, model)
		if err != nil {
			return err
		}
		if found {
			continue
		}
		record := &Record{State: State{Status: StatusReady, Timestamp: now, Reason: ReasonNone}}
		if err := r.write(ctx, model, record); err != nil {
			return err
		}
	}
	return nil
}

// Record reads the persisted entry; found is false when the model has no
// state yet.
func (r *Registry) Record(ctx context.Context, model *Model) (*Record, bool, error) {
	return r.record(ctx, model)
}

func (r *Registry) record(ctx context.Context, model *Model) (*Record, bool, error) {
	data, found, err := r.store.ValueGet(ctx, model.stateKey())
	if err != nil {
		return nil, false, fault.Wrap(fault.StorageGetError, "failed to read model state "+model.Key(), err)
	}
	if !found {
		return nil, false, nil
	}
	record := &Record{}
	if err := json.Unmarshal(data, record); err != nil {
		return nil, false, fmt.Errorf("failed to unmarshal model state %v: %w", model.Key(), err)
	}
	return record, true, nil
}

func (r *Registry) write(ctx context.Context, model *Model, record *Record) error {
	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to marshal model state %v: %w", model.Key(), err)
	}
	if err := r.store.ValueSet(ctx, model.stateKey(), data); err != nil {
		return fault.Wrap(fault.StorageSetError, "failed to write model state "+model.Key(), err)
	}
	return nil
}
