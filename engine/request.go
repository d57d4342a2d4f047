package engine

import (
	"strings"

	"github.com/viant/dispatchly/event"
	"github.com/viant/dispatchly/fault"
	"github.com/viant/dispatchly/history"
	"github.com/viant/dispatchly/llm"
	"github.com/viant/dispatchly/registry"
)

// StreamResponseType selects what a resumed stream delivers.
type StreamResponseType string

const (
	// StreamResponseContent replays only the target exchange's responses.
	StreamResponseContent StreamResponseType = "content"

	// StreamResponseSession replays complete prompt/response tuples from
	// the resume anchor forward.
	StreamResponseSession StreamResponseType = "session"
)

// Request is one dispatch request.
type Request struct {
	// Prompt is the user prompt; optional when resuming.
	Prompt string

	// Models is the ordered candidate list, each "provider:model" or a bare
	// configured model name. Empty means all configured models in order.
	Models []string

	// Options tunes the request.
	Options *RequestOptions
}

// RequestOptions enumerates the per-request options.
type RequestOptions struct {
	// SessionID continues an existing session; mutually exclusive with
	// History.
	SessionID string

	// History is an inline transcript passed verbatim to the provider;
	// mutually exclusive with SessionID.
	History []history.Pair

	// ResumeEventID anchors a resume; requires SessionID and Stream.
	ResumeEventID string

	// Context is the system instruction text.
	Context string

	// Temperature passes through to the provider.
	Temperature *float64

	// MaxTokens caps the response; model settings take precedence.
	MaxTokens int

	// Stream requests a live event stream instead of a content response.
	Stream bool

	// StreamResponseType selects the resume delivery mode; default content.
	StreamResponseType StreamResponseType

	// OnStreamChunk transforms each streamed content chunk at the adapter.
	OnStreamChunk llm.ChunkTransform
}

// Response is a completed dispatch: either Text/Result for the
// non-streaming path, or Stream for the streaming path. SessionID is always
// set.
type Response struct {
	Text      string
	Result    event.ResultCode
	SessionID string
	Stream    *Stream
}

func (r *Request) options() *RequestOptions {
	if r.Options == nil {
		return &RequestOptions{}
	}
	return r.Options
}

func (e *Engine) validate(request *Request) (*RequestOptions, error) {
	options := request.options()
	if options.SessionID != "" && options.History != nil {
		return nil, fault.New(fault.OptionError, "history and sessionId are mutually exclusive")
	}
	if options.ResumeEventID != "" {
		if options.SessionID == "" {
			return nil, fault.New(fault.OptionError, "resumeEventId requires sessionId")
		}
		if !options.Stream {
			return nil, fault.New(fault.OptionError, "resumeEventId requires stream")
		}
	}
	if request.Prompt == "" && options.ResumeEventID == "" {
		return nil, fault.New(fault.OptionError, "prompt is required")
	}
	if options.MaxTokens < 0 {
		return nil, fault.New(fault.OptionError, "negative maxTokens")
	}
	switch options.StreamResponseType {
	case "":
		options.StreamResponseType = StreamResponseContent
	case StreamResponseContent, StreamResponseSession:
	default:
		return nil, fault.Newf(fault.OptionError, "unsupported streamResponseType: %v", options.StreamResponseType)
	}
	return options, nil
}

// candidates resolves the request's model names against the configured
// models, preserving request order.
func (e *Engine) candidates(names []string) ([]*registry.Model, error) {
	if len(names) == 0 {
		out := make([]*registry.Model, 0, len(e.registry.Keys()))
		for _, key := range e.registry.Keys() {
			model, _ := e.registry.Lookup(key)
			out = append(out, model)
		}
		return out, nil
	}
	out := make([]*registry.Model, 0, len(names))
	for _, name := range names {
		model, ok := e.lookupModel(name)
		if !ok {
			return nil, fault.Newf(fault.OptionError, "model %v is not configured", name)
		}
		out = append(out, model)
	}
	return out, nil
}

func (e *Engine) lookupModel(name string) (*registry.Model, bool) {
	if strings.Contains(name, ":") {
		return e.registry.Lookup(name)
	}
	for _, key := range e.registry.Keys() {
		model, _ := e.registry.Lookup(key)
		if model.Name == name {
			return model, true
		}
	}
	return nil, false
}
