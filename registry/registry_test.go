package registry

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/viant/dispatchly/fault"
	"github.com/viant/dispatchly/internal/clock"
	"github.com/viant/dispatchly/store/mem"
)

func testModel() *Model {
	return &Model{
		Provider: "openai",
		Name:     "gpt-4o-mini",
		Settings: Settings{
			Rate: Rate{Max: 2, Window: 10 * time.Second},
			Restore: Restore{
				RateLimit:             time.Minute,
				Retry:                 time.Minute,
				Timeout:               time.Minute,
				ProviderCommError:     time.Minute,
				ProviderExceededError: 10 * time.Minute,
			},
		},
	}
}

func newTestRegistry(t *testing.T) (*Registry, *Model, *clock.Fixed) {
	model := testModel()
	clk := clock.NewFixed(time.UnixMilli(1_000_000))
	r := New(mem.New(), clk, nil, []*Model{model})
	assert.NoError(t, r.Init(context.Background()))
	return r, model, clk
}

func TestInitSeedsReady(t *testing.T) {
	r, model, clk := newTestRegistry(t)
	record, found, err := r.Record(context.Background(), model)
	assert.NoError(t, err)
	assert.True(t, found)
	assert.EqualValues(t, StatusReady, record.State.Status)
	assert.EqualValues(t, ReasonNone, record.State.Reason)
	assert.EqualValues(t, clk.Now().UnixMilli(), record.State.Timestamp)
}

func TestAdmitFixedWindow(t *testing.T) {
	ctx := context.Background()
	r, model, clk := newTestRegistry(t)

	// Two admissions fill the window.
	assert.NoError(t, r.Admit(ctx, model))
	assert.NoError(t, r.Admit(ctx, model))

	// Third is refused with a wait hint.
	err := r.Admit(ctx, model)
	assert.EqualValues(t, fault.ProviderRateLimitError, fault.CodeOf(err))
	var f *fault.Fault
	assert.ErrorAs(t, err, &f)
	assert.GreaterOrEqual(t, f.WaitSeconds, 1)

	// Admission invariant: count never exceeds max within a live window.
	record, _, err := r.Record(ctx, model)
	assert.NoError(t, err)
	assert.EqualValues(t, 2, record.RateLimit.Count)

	// Past the window the counter resets.
	clk.Advance(10 * time.Second)
	assert.NoError(t, r.Admit(ctx, model))
	record, _, err = r.Record(ctx, model)
	assert.NoError(t, err)
	assert.EqualValues(t, 1, record.RateLimit.Count)
	assert.EqualValues(t, clk.Now().UnixMilli(), record.RateLimit.WindowStart)
}

func TestSetStateLastWriterWins(t *testing.T) {
	ctx := context.Background()
	r, model, clk := newTestRegistry(t)
	now := clk.Now().UnixMilli()

	// Newer operation timestamp wins.
	assert.NoError(t, r.SetState(ctx, model, StatusError, string(fault.ProviderResponseError), now+10))
	record, _, err := r.Record(ctx, model)
	assert.NoError(t, err)
	assert.EqualValues(t, StatusError, record.State.Status)

	// Older operation timestamp is a no-op.
	assert.NoError(t, r.SetState(ctx, model, StatusReady, ReasonNone, now+5))
	record, _, err = r.Record(ctx, model)
	assert.NoError(t, err)
	assert.EqualValues(t, StatusError, record.State.Status)
}

func TestSetStateRestoreWindow(t *testing.T) {
	ctx := context.Background()
	r, model, clk := newTestRegistry(t)
	errorTs := clk.Now().UnixMilli() + 1
	assert.NoError(t, r.SetState(ctx, model, StatusError, string(fault.ProviderResponseError), errorTs))

	// Within the restore window, a ready transition with an older opTs is
	// refused.
	clk.Advance(30 * time.Second)
	assert.NoError(t, r.SetState(ctx, model, StatusReady, ReasonNone, errorTs-1))
	record, _, err := r.Record(ctx, model)
	assert.NoError(t, err)
	assert.EqualValues(t, StatusError, record.State.Status)

	// Past the restore window the same transition is allowed.
	clk.Advance(31 * time.Second)
	assert.NoError(t, r.SetState(ctx, model, StatusReady, ReasonNone, errorTs-1))
	record, _, err = r.Record(ctx, model)
	assert.NoError(t, err)
	assert.EqualValues(t, StatusReady, record.State.Status)
}

func TestMaxTokensNotAutoRestorable(t *testing.T) {
	ctx := context.Background()
	r, model, clk := newTestRegistry(t)
	errorTs := clk.Now().UnixMilli() + 1
	assert.NoError(t, r.SetState(ctx, model, StatusError, string(fault.ProviderResponseMaxTokensError), errorTs))

	clk.Advance(24 * time.Hour)
	assert.NoError(t, r.SetState(ctx, model, StatusReady, ReasonNone, errorTs-1))
	record, _, err := r.Record(ctx, model)
	assert.NoError(t, err)
	assert.EqualValues(t, StatusError, record.State.Status)

	// A newer operation still wins.
	assert.NoError(t, r.SetState(ctx, model, StatusReady, ReasonNone, errorTs+1))
	record, _, err = r.Record(ctx, model)
	assert.NoError(t, err)
	assert.EqualValues(t, StatusReady, record.State.Status)
}

func TestRestoreWindowBuckets(t *testing.T) {
	settings := testModel().Settings
	testCases := []struct {
		reason string
		window time.Duration
		ok     bool
	}{
		{string(fault.ProviderRateLimitError), time.Minute, true},
		{string(fault.ProviderRequestTimeoutError), time.Minute, true},
		{string(fault.ProviderRequestStreamTimeoutError), time.Minute, true},
		{string(fault.ProviderResponseError), time.Minute, true},
		{string(fault.ProviderResponseNoContent), time.Minute, true},
		{string(fault.ProviderExceededQuotaError), 10 * time.Minute, true},
		{string(fault.ProviderResponseMaxTokensError), 0, false},
	}
	for _, tc := range testCases {
		window, ok := settings.RestoreWindow(tc.reason)
		assert.EqualValues(t, tc.ok, ok, tc.reason)
		if ok {
			assert.EqualValues(t, tc.window.Milliseconds(), window, tc.reason)
		}
	}
}
