package engine

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/viant/dispatchly/event"
	"github.com/viant/dispatchly/llm"
)

func seed(t *testing.T, e *Engine, sessionID string, events ...*event.Event) {
	ctx := context.Background()
	for _, ev := range events {
		assert.NoError(t, e.history.Push(ctx, sessionID, ev, time.Hour, false))
	}
}

func TestResumeContentCompleteExchange(t *testing.T) {
	ctx := context.Background()
	adapter := &fakeAdapter{streams: []func() (llm.Streamer, error){
		func() (llm.Streamer, error) {
			t.Fatal("no upstream call expected")
			return nil, nil
		},
	}}
	e, _ := newTestEngine(t, map[string]llm.Adapter{"openai": adapter},
		[]*ModelConfig{{Provider: "openai", Model: "gpt-4o-mini"}}, nil)

	promptID := event.NewID()
	seed(t, e, "sess",
		event.NewPrompt(promptID, "P1"),
		event.NewResponse(event.NewID(), "R1"),
		event.NewEnd(event.NewID(), event.ResultComplete),
	)

	response, err := e.Request(ctx, &Request{Options: &RequestOptions{
		Stream:             true,
		SessionID:          "sess",
		ResumeEventID:      promptID,
		StreamResponseType: StreamResponseContent,
	}})
	if !assert.NoError(t, err) {
		return
	}
	assert.EqualValues(t, "sess", response.Stream.SessionID())

	events, err := drainStream(t, response.Stream)
	assert.NoError(t, err)
	if !assert.Len(t, events, 2) {
		return
	}
	assert.EqualValues(t, "R1", events[0].Content.Response)
	assert.EqualValues(t, event.NameEnd, events[1].Name)
	_, streamCalls := adapter.calls()
	assert.EqualValues(t, 0, streamCalls)
}

func TestResumeContentErroredExchangeReplaysNothing(t *testing.T) {
	ctx := context.Background()
	adapter := &fakeAdapter{}
	e, _ := newTestEngine(t, map[string]llm.Adapter{"openai": adapter},
		[]*ModelConfig{{Provider: "openai", Model: "gpt-4o-mini"}}, nil)

	promptID := event.NewID()
	seed(t, e, "sess",
		event.NewPrompt(promptID, "P1"),
		event.NewResponse(event.NewID(), "doomed"),
		event.NewFailure(event.NewID(), "PROVIDER_STREAM_ERROR", "boom"),
	)

	response, err := e.Request(ctx, &Request{Options: &RequestOptions{
		Stream:        true,
		SessionID:     "sess",
		ResumeEventID: promptID,
	}})
	if !assert.NoError(t, err) {
		return
	}
	events, err := drainStream(t, response.Stream)
	assert.NoError(t, err)
	assert.Len(t, events, 0)
	// The errored exchange recovers no prompt: no upstream call is made.
	_, streamCalls := adapter.calls()
	assert.EqualValues(t, 0, streamCalls)
}

func TestResumeIncompleteExchangeContinues(t *testing.T) {
	ctx := context.Background()
	adapter := &fakeAdapter{streams: []func() (llm.Streamer, error){
		func() (llm.Streamer, error) {
			return newFakeStream([][]byte{
				contentFrame(t, "R1"),
				endFrame(t, event.ResultComplete),
			}, nil), nil
		},
	}}
	e, _ := newTestEngine(t, map[string]llm.Adapter{"openai": adapter},
		[]*ModelConfig{{Provider: "openai", Model: "gpt-4o-mini"}}, nil)

	promptID := event.NewID()
	// Prompt with no terminator: the exchange is incomplete and its prompt
	// is re-issued on resume.
	seed(t, e, "sess", event.NewPrompt(promptID, "P1"))

	response, err := e.Request(ctx, &Request{Options: &RequestOptions{
		Stream:        true,
		SessionID:     "sess",
		ResumeEventID: promptID,
	}})
	if !assert.NoError(t, err) {
		return
	}
	events, err := drainStream(t, response.Stream)
	assert.NoError(t, err)
	if !assert.Len(t, events, 2) {
		return
	}
	assert.EqualValues(t, "R1", events[0].Content.Response)
	_, streamCalls := adapter.calls()
	assert.EqualValues(t, 1, streamCalls)

	// The carried prompt was not re-appended: one prompt event only.
	logged, err := e.history.Range(ctx, "sess")
	assert.NoError(t, err)
	prompts := 0
	for _, ev := range logged {
		if ev.Type == event.TypePrompt {
			prompts++
		}
	}
	assert.EqualValues(t, 1, prompts)
}

func TestResumeChainsRecoveredAndNewPrompt(t *testing.T) {
	ctx := context.Background()
	adapter := &fakeAdapter{streams: []func() (llm.Streamer, error){
		func() (llm.Streamer, error) {
			return newFakeStream([][]byte{
				contentFrame(t, "R-recovered"),
				endFrame(t, event.ResultComplete),
			}, nil), nil
		},
		func() (llm.Streamer, error) {
			return newFakeStream([][]byte{
				contentFrame(t, "R-new"),
				endFrame(t, event.ResultComplete),
			}, nil), nil
		},
	}}
	e, _ := newTestEngine(t, map[string]llm.Adapter{"openai": adapter},
		[]*ModelConfig{{Provider: "openai", Model: "gpt-4o-mini"}}, nil)

	promptID := event.NewID()
	seed(t, e, "sess", event.NewPrompt(promptID, "P1"))

	response, err := e.Request(ctx, &Request{
		Prompt: "P2",
		Options: &RequestOptions{
			Stream:        true,
			SessionID:     "sess",
			ResumeEventID: promptID,
		},
	})
	if !assert.NoError(t, err) {
		return
	}
	events, err := drainStream(t, response.Stream)
	assert.NoError(t, err)

	var texts []string
	ends := 0
	for _, ev := range events {
		switch ev.Name {
		case event.NameContent:
			texts = append(texts, ev.Content.Response)
		case event.NameEnd:
			ends++
		}
	}
	assert.EqualValues(t, []string{"R-recovered", "R-new"}, texts)
	assert.EqualValues(t, 2, ends)
	_, streamCalls := adapter.calls()
	assert.EqualValues(t, 2, streamCalls)
}

func TestResumeSessionModeReplaysTuples(t *testing.T) {
	ctx := context.Background()
	adapter := &fakeAdapter{}
	e, _ := newTestEngine(t, map[string]llm.Adapter{"openai": adapter},
		[]*ModelConfig{{Provider: "openai", Model: "gpt-4o-mini"}}, nil)

	firstPromptID := event.NewID()
	seed(t, e, "sess",
		event.NewPrompt(firstPromptID, "P1"),
		event.NewResponse(event.NewID(), "R1"),
		event.NewEnd(event.NewID(), event.ResultComplete),
		event.NewPrompt(event.NewID(), "P2"),
		event.NewResponse(event.NewID(), "doomed"),
		event.NewFailure(event.NewID(), "PROVIDER_STREAM_ERROR", "boom"),
		event.NewPrompt(event.NewID(), "P3"),
		event.NewResponse(event.NewID(), "R3"),
		event.NewEnd(event.NewID(), event.ResultComplete),
	)

	response, err := e.Request(ctx, &Request{Options: &RequestOptions{
		Stream:             true,
		SessionID:          "sess",
		ResumeEventID:      firstPromptID,
		StreamResponseType: StreamResponseSession,
	}})
	if !assert.NoError(t, err) {
		return
	}
	events, err := drainStream(t, response.Stream)
	assert.NoError(t, err)

	var replayed []string
	for _, ev := range events {
		switch {
		case ev.Type == event.TypePrompt:
			replayed = append(replayed, "prompt:"+ev.Content.Prompt)
		case ev.Name == event.NameContent:
			replayed = append(replayed, "response:"+ev.Content.Response)
		case ev.Name == event.NameEnd:
			replayed = append(replayed, "end")
		}
	}
	// The errored P2 run is discarded entirely.
	assert.EqualValues(t, []string{
		"prompt:P1", "response:R1", "end",
		"prompt:P3", "response:R3", "end",
	}, replayed)
	_, streamCalls := adapter.calls()
	assert.EqualValues(t, 0, streamCalls)
}
