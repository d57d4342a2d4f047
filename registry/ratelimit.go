package registry

import (
	"context"
	"fmt"

	"github.com/viant/dispatchly/fault"
)

// Admit applies the fixed-window rate limit for one request and persists
// the outcome before the upstream call begins. On refusal the returned
// fault carries the seconds left in the current window.
func (r *Registry) Admit(ctx context.Context, model *Model) error {
	record, found, err := r.record(ctx, model)
	if err != nil {
		return err
	}
	if !found {
		record = &Record{}
	}
	now := r.clock.Now().UnixMilli()
	rl := record.RateLimit
	windowMs := model.Settings.Rate.Window.Milliseconds()
	switch {
	case now-rl.WindowStart >= windowMs:
		rl = RateLimit{Count: 1, WindowStart: now}
	case rl.Count >= model.Settings.Rate.Max:
		waitMs := rl.WindowStart + windowMs - now
		waitSeconds := int((waitMs + 999) / 1000)
		f := fault.Newf(fault.ProviderRateLimitError,
			"rate limit exceeded for %v, retry in %vs", model.Key(), waitSeconds)
		f.WaitSeconds = waitSeconds
		return f
	default:
		rl.Count++
	}
	if err := r.UpdateRateLimit(ctx, model, rl); err != nil {
		return fmt.Errorf("failed to persist admission for %v: %w", model.Key(), err)
	}
	return nil
}
