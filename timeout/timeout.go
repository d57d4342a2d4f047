// Package timeout enforces per-request deadlines and inter-chunk stream
// deadlines on provider calls.
package timeout

import (
	"context"
	"time"

	"github.com/viant/dispatchly/fault"
	"github.com/viant/dispatchly/llm"
)

// Do races fn against a timer and returns a
// PROVIDER_REQUEST_TIMEOUT_ERROR on expiry. The race does not cancel fn:
// a successful stream handle must stay usable after Do returns, so an
// abandoned call runs to completion against its own context and its result
// is dropped.
func Do[T any](ctx context.Context, timeout time.Duration, fn func(ctx context.Context) (T, error)) (T, error) {
	type outcome struct {
		value T
		err   error
	}
	done := make(chan outcome, 1)
	go func() {
		value, err := fn(ctx)
		done <- outcome{value: value, err: err}
	}()
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case result := <-done:
		return result.value, result.err
	case <-timer.C:
		var zero T
		return zero, fault.Newf(fault.ProviderRequestTimeoutError,
			"request timed out after %vms", timeout.Milliseconds())
	}
}

// Stream wraps a provider stream so that the deadline resets on every
// chunk. When the timer fires before the next chunk arrives the wrapped
// stream is destroyed with a PROVIDER_REQUEST_STREAM_TIMEOUT_ERROR.
func Stream(upstream llm.Streamer, timeout time.Duration) llm.Streamer {
	g := &guarded{upstream: upstream, timeout: timeout, frames: make(chan frame, 1)}
	go g.pump()
	return g
}

type frame struct {
	chunk []byte
	err   error
}

type guarded struct {
	upstream llm.Streamer
	timeout  time.Duration
	frames   chan frame
	timedOut bool
}

func (g *guarded) pump() {
	for {
		chunk, err := g.upstream.Recv()
		g.frames <- frame{chunk: chunk, err: err}
		if err != nil {
			close(g.frames)
			return
		}
	}
}

// Recv implements llm.Streamer.
func (g *guarded) Recv() ([]byte, error) {
	if g.timedOut {
		return nil, fault.Newf(fault.ProviderRequestStreamTimeoutError,
			"stream timed out after %vms", g.timeout.Milliseconds())
	}
	timer := time.NewTimer(g.timeout)
	defer timer.Stop()
	select {
	case result, ok := <-g.frames:
		if !ok {
			return nil, fault.New(fault.ProviderStreamError, "stream already terminated")
		}
		return result.chunk, result.err
	case <-timer.C:
		g.timedOut = true
		_ = g.upstream.Close()
		return nil, fault.Newf(fault.ProviderRequestStreamTimeoutError,
			"stream timed out after %vms", g.timeout.Milliseconds())
	}
}

// Close implements llm.Streamer.
func (g *guarded) Close() error {
	return g.upstream.Close()
}
