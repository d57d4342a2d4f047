// Package engine implements the dispatch pipeline: model selection,
// rate-limit admission, retry and fallback, stream piping, session history
// and resume.
package engine

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/viant/dispatchly/fault"
	"github.com/viant/dispatchly/history"
	"github.com/viant/dispatchly/internal/clock"
	"github.com/viant/dispatchly/llm"
	"github.com/viant/dispatchly/provider"
	"github.com/viant/dispatchly/registry"
	"github.com/viant/dispatchly/store"
	"github.com/viant/dispatchly/store/mem"
	redisstore "github.com/viant/dispatchly/store/redis"
)

// Engine dispatches prompts across configured models. Engines are
// self-contained; multiple instances may run concurrently, sharing model
// state only through a common store backend.
type Engine struct {
	config   *Config
	logger   *logrus.Logger
	clock    clock.Clock
	store    store.Store
	registry *registry.Registry
	history  *history.Service
	adapters map[string]llm.Adapter

	initialized bool
}

// New creates an engine from config; call Init before Request.
func New(config *Config, options ...Option) (*Engine, error) {
	if config == nil {
		return nil, fault.New(fault.OptionError, "config is required")
	}
	if err := config.Init(); err != nil {
		return nil, err
	}
	e := &Engine{
		config: config,
		logger: logrus.New(),
		clock:  clock.System,
	}
	for _, option := range options {
		option(e)
	}
	return e, nil
}

// Init builds the store, registry, history service and provider adapters.
func (e *Engine) Init(ctx context.Context) error {
	if e.initialized {
		return nil
	}
	if e.store == nil {
		switch e.config.Storage.Type {
		case StorageRedis:
			e.store = redisstore.New(e.config.Storage.Connection, e.logger)
		default:
			e.store = mem.New()
		}
	}
	models := make([]*registry.Model, 0, len(e.config.Models))
	for _, mc := range e.config.Models {
		models = append(models, &registry.Model{
			Provider: mc.Provider,
			Name:     mc.Model,
			Settings: e.config.settings(mc),
		})
	}
	e.registry = registry.New(e.store, e.clock, e.logger, models)
	e.history = history.New(e.store, e.clock, e.logger)
	e.adapters = map[string]llm.Adapter{}
	for name, cfg := range e.config.Providers {
		adapter, err := provider.New(name, cfg)
		if err != nil {
			return err
		}
		if err := adapter.Init(ctx); err != nil {
			return fmt.Errorf("failed to init provider %v: %w", name, err)
		}
		e.adapters[name] = adapter
	}
	if err := e.registry.Init(ctx); err != nil {
		return err
	}
	e.warnMissingMaxTokens()
	e.initialized = true
	return nil
}

// warnMissingMaxTokens is informational only: responses without a token cap
// can run long against per-request timeouts.
func (e *Engine) warnMissingMaxTokens() {
	if e.config.Limits.MaxTokens > 0 {
		return
	}
	for _, model := range e.config.Models {
		if model.Limits != nil && model.Limits.MaxTokens > 0 {
			return
		}
	}
	e.logger.Warn("no maxTokens configured; responses are bounded only by timeouts")
}

// Close releases adapters and the store.
func (e *Engine) Close() error {
	var firstErr error
	for name, adapter := range e.adapters {
		if err := adapter.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("failed to close provider %v: %w", name, err)
		}
	}
	if e.store != nil {
		if err := e.store.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
