// Package llm defines the uniform model-invocation contract the dispatch
// engine consumes and every provider adapter implements.
package llm

import (
	"context"

	"github.com/viant/dispatchly/event"
	"github.com/viant/dispatchly/history"
)

// ChunkTransform optionally rewrites each streamed content chunk before it
// is framed.
type ChunkTransform func(chunk []byte) []byte

// RequestOptions carries the per-request parameters an adapter honours.
type RequestOptions struct {
	// Context is the system instruction text.
	Context string

	// History is the prior chat transcript, oldest first.
	History []history.Pair

	// Temperature passes through to the upstream when set.
	Temperature *float64

	// MaxTokens caps the response when positive.
	MaxTokens int

	// OnStreamChunk transforms each streamed content chunk.
	OnStreamChunk ChunkTransform
}

// ContentResponse is a completed non-streaming generation.
type ContentResponse struct {
	Text   string
	Result event.ResultCode
}

// Streamer is a lazy, finite, non-restartable sequence of SSE frame bytes.
// Frames decode to content events plus exactly one terminator, an end or an
// error event. Recv returns io.EOF after the upstream closes.
type Streamer interface {
	Recv() ([]byte, error)
	Close() error
}

// Adapter is the uniform request contract over heterogeneous upstreams.
// Adapters translate upstream finish reasons and error shapes to the
// engine's result and fault codes.
type Adapter interface {
	// Init prepares the adapter; called once before the first request.
	Init(ctx context.Context) error

	// Generate performs a non-streaming completion.
	Generate(ctx context.Context, model, prompt string, options *RequestOptions) (*ContentResponse, error)

	// Stream performs a streaming completion.
	Stream(ctx context.Context, model, prompt string, options *RequestOptions) (Streamer, error)

	// Close releases adapter resources.
	Close() error
}
