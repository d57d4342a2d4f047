package timeout

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/viant/dispatchly/fault"
)

func TestDoCompletesInTime(t *testing.T) {
	value, err := Do(context.Background(), 100*time.Millisecond, func(ctx context.Context) (string, error) {
		return "done", nil
	})
	assert.NoError(t, err)
	assert.EqualValues(t, "done", value)
}

func TestDoTimesOut(t *testing.T) {
	started := time.Now()
	_, err := Do(context.Background(), 50*time.Millisecond, func(ctx context.Context) (string, error) {
		select {
		case <-time.After(time.Second):
			return "late", nil
		case <-ctx.Done():
			return "", ctx.Err()
		}
	})
	assert.EqualValues(t, fault.ProviderRequestTimeoutError, fault.CodeOf(err))
	assert.Less(t, time.Since(started), 500*time.Millisecond)
}

// scriptedStream emits chunks with per-chunk delays.
type scriptedStream struct {
	chunks []scriptedChunk
	index  int
	closed chan struct{}
}

type scriptedChunk struct {
	data  []byte
	delay time.Duration
}

func newScriptedStream(chunks ...scriptedChunk) *scriptedStream {
	return &scriptedStream{chunks: chunks, closed: make(chan struct{})}
}

func (s *scriptedStream) Recv() ([]byte, error) {
	if s.index >= len(s.chunks) {
		return nil, io.EOF
	}
	chunk := s.chunks[s.index]
	s.index++
	select {
	case <-time.After(chunk.delay):
		return chunk.data, nil
	case <-s.closed:
		return nil, io.EOF
	}
}

func (s *scriptedStream) Close() error {
	select {
	case <-s.closed:
	default:
		close(s.closed)
	}
	return nil
}

func TestStreamPassesChunksAndEOF(t *testing.T) {
	wrapped := Stream(newScriptedStream(
		scriptedChunk{data: []byte("one")},
		scriptedChunk{data: []byte("two"), delay: 10 * time.Millisecond},
	), 200*time.Millisecond)

	chunk, err := wrapped.Recv()
	assert.NoError(t, err)
	assert.EqualValues(t, "one", string(chunk))

	chunk, err = wrapped.Recv()
	assert.NoError(t, err)
	assert.EqualValues(t, "two", string(chunk))

	_, err = wrapped.Recv()
	assert.EqualValues(t, io.EOF, err)
}

func TestStreamInterChunkTimeout(t *testing.T) {
	upstream := newScriptedStream(
		scriptedChunk{data: []byte("first")},
		scriptedChunk{data: []byte("slow"), delay: 300 * time.Millisecond},
	)
	wrapped := Stream(upstream, 100*time.Millisecond)

	chunk, err := wrapped.Recv()
	assert.NoError(t, err)
	assert.EqualValues(t, "first", string(chunk))

	_, err = wrapped.Recv()
	assert.EqualValues(t, fault.ProviderRequestStreamTimeoutError, fault.CodeOf(err))

	// The wrapped stream stays destroyed.
	_, err = wrapped.Recv()
	assert.EqualValues(t, fault.ProviderRequestStreamTimeoutError, fault.CodeOf(err))
}
