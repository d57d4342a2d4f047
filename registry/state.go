package registry

import (
	"context"

	"github.com/viant/dispatchly/fault"
)

// RestoreWindow returns the minimum delay before a model errored with the
// given reason may transition back to ready. ok is false for reasons that
// never restore automatically.
func (s *Settings) RestoreWindow(reason string) (window int64, ok bool) {
	switch fault.Code(reason) {
	case fault.ProviderRateLimitError:
		return s.Restore.RateLimit.Milliseconds(), true
	case fault.ProviderRequestTimeoutError, fault.ProviderRequestStreamTimeoutError:
		return s.Restore.Timeout.Milliseconds(), true
	case fault.ProviderResponseError, fault.ProviderResponseNoContent, fault.ProviderStreamError:
		return s.Restore.ProviderCommError.Milliseconds(), true
	case fault.ProviderExceededQuotaError:
		return s.Restore.ProviderExceededError.Milliseconds(), true
	}
	// PROVIDER_RESPONSE_MAX_TOKENS_ERROR and unknown reasons stay down
	// until an operator or a newer operation flips them.
	return 0, false
}

// Restorable reports whether an error record is past its restore window at
// nowMs.
func (m *Model) Restorable(state *State, nowMs int64) bool {
	if state.Status != StatusError {
		return false
	}
	window, ok := m.Settings.RestoreWindow(state.Reason)
	if !ok {
		return false
	}
	return state.Timestamp+window < nowMs
}

// SetState applies the transition rules:
//  1. absent state, or stored timestamp older than opTs: write.
//  2. new state is ready, stored is error past its restore window: write.
//  3. otherwise: no-op.
//
// Concurrent writers race last-writer-wins on opTs; the restore override is
// checked against the latest read within this operation only.
func (r *Registry) SetState(ctx context.Context, model *Model, status Status, reason string, opTs int64) error {
	record, found, err := r.record(ctx, model)
	if err != nil {
		return err
	}
	next := State{Status: status, Timestamp: opTs, Reason: reason}
	if next.Reason == "" {
		next.Reason = ReasonNone
	}
	switch {
	case !found:
		record = &Record{State: next}
	case record.State.Timestamp < opTs:
		record.State = next
	case status == StatusReady && model.Restorable(&record.State, r.clock.Now().UnixMilli()):
		record.State = next
	default:
		return nil
	}
	r.logger.WithField("model", model.Key()).
		WithField("status", status).
		WithField("reason", next.Reason).
		Debug("model state transition")
	return r.write(ctx, model, record)
}

// UpdateRateLimit writes only the rate-limit sub-field. The surrounding
// record is read-modify-written; the window can drift by at most one
// admission under contention, which admission math tolerates.
func (r *Registry) UpdateRateLimit(ctx context.Context, model *Model, rl RateLimit) error {
	record, found, err := r.record(ctx, model)
	if err != nil {
		return err
	}
	if !found {
		record = &Record{State: State{Status: StatusReady, Timestamp: r.clock.Now().UnixMilli(), Reason: ReasonNone}}
	}
	record.RateLimit = rl
	return r.write(ctx, model, record)
}
