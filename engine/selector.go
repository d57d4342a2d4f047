package engine

import (
	"context"

	"github.com/viant/dispatchly/fault"
	"github.com/viant/dispatchly/registry"
)

// selectModel walks the ordered candidates and returns the first usable
// one: ready, or errored past its restore window (optimistically flipped
// back to ready). Selection is deterministic; ties break by request order.
func (e *Engine) selectModel(ctx context.Context, candidates []*registry.Model, skip map[string]bool) (*registry.Model, error) {
	now := e.clock.Now().UnixMilli()
	for _, model := range candidates {
		if skip[model.Key()] {
			continue
		}
		if _, ok := e.adapters[model.Provider]; !ok {
			continue
		}
		record, found, err := e.registry.Record(ctx, model)
		if err != nil {
			e.logger.WithError(err).WithField("model", model.Key()).Warn("skipping model with unreadable state")
			continue
		}
		if !found {
			continue
		}
		if record.State.Status == registry.StatusReady {
			return model, nil
		}
		if model.Restorable(&record.State, now) {
			if err := e.registry.SetState(ctx, model, registry.StatusReady, registry.ReasonNone, now); err != nil {
				e.logger.WithError(err).WithField("model", model.Key()).Warn("failed to restore model")
				continue
			}
			return model, nil
		}
	}
	return nil, fault.New(fault.ProviderNoModelsAvailableError, "no models available")
}
