package engine

import (
	"github.com/sirupsen/logrus"
	"github.com/viant/dispatchly/internal/clock"
	"github.com/viant/dispatchly/store"
)

// Option mutates an Engine at construction time.
type Option func(*Engine)

// WithLogger replaces the default logger.
func WithLogger(logger *logrus.Logger) Option {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithClock injects a clock; tests use it to control window arithmetic.
func WithClock(clk clock.Clock) Option {
	return func(e *Engine) {
		if clk != nil {
			e.clock = clk
		}
	}
}

// WithStore injects a pre-built store, overriding the storage config.
func WithStore(backing store.Store) Option {
	return func(e *Engine) {
		if backing != nil {
			e.store = backing
		}
	}
}
