package engine

import (
	"context"
	"io"
	"time"

	"github.com/google/uuid"
	"github.com/viant/dispatchly/event"
	"github.com/viant/dispatchly/fault"
	"github.com/viant/dispatchly/history"
	"github.com/viant/dispatchly/llm"
	"github.com/viant/dispatchly/registry"
	"github.com/viant/dispatchly/timeout"
)

// Request dispatches one prompt. The non-streaming path blocks until a
// model answered or every candidate failed; the streaming path returns a
// live Stream immediately, with its SessionID already set.
func (e *Engine) Request(ctx context.Context, request *Request) (*Response, error) {
	if !e.initialized {
		return nil, fault.New(fault.OptionError, "engine is not initialized")
	}
	options, err := e.validate(request)
	if err != nil {
		return nil, err
	}
	candidates, err := e.candidates(request.Models)
	if err != nil {
		return nil, err
	}

	sessionID := options.SessionID
	var prior []*event.Event
	if sessionID != "" {
		prior, err = e.history.Range(ctx, sessionID)
		if err != nil {
			return nil, err
		}
		if len(prior) == 0 {
			return nil, fault.Newf(fault.OptionError, "session %v has no history", sessionID)
		}
	} else {
		sessionID = uuid.New().String()
	}

	chat := options.History
	if chat == nil && len(prior) > 0 {
		chat = history.Pairs(history.Compact(prior))
	}
	base := &llm.RequestOptions{
		Context:       options.Context,
		History:       chat,
		Temperature:   options.Temperature,
		MaxTokens:     options.MaxTokens,
		OnStreamChunk: options.OnStreamChunk,
	}

	if !options.Stream {
		content, _, err := e.dispatchContent(ctx, candidates, request.Prompt, base)
		if err != nil {
			return nil, err
		}
		e.finalize(ctx, sessionID, request.Prompt, content, prior)
		return &Response{Text: content.Text, Result: content.Result, SessionID: sessionID}, nil
	}

	stream := newStream(sessionID)
	// The pipe outlives the Request call; it stops via stream.Close.
	pipeCtx, cancel := context.WithCancel(context.Background())
	cancelSub, err := e.store.Subscribe(pipeCtx, sessionID, e.forwarder(stream))
	if err != nil {
		cancel()
		return nil, err
	}
	stream.onClose = func() {
		cancel()
		cancelSub()
		if err := e.store.RemoveSubscription(context.Background(), sessionID); err != nil {
			e.logger.WithError(err).Warn("failed to remove session subscription")
		}
	}
	job := &streamJob{
		prompt:     request.Prompt,
		options:    options,
		base:       base,
		candidates: candidates,
		sessionID:  sessionID,
	}
	go e.serveStream(pipeCtx, stream, job)
	return &Response{SessionID: sessionID, Stream: stream}, nil
}

// forwarder turns published store events back into SSE frames on the
// response stream.
func (e *Engine) forwarder(stream *Stream) func(eventID string, value []byte) {
	return func(eventID string, value []byte) {
		ev, err := event.Unmarshal(value)
		if err != nil {
			e.logger.WithError(err).WithField("event", eventID).Warn("skipping undecodable publication")
			return
		}
		frame, err := event.Encode(ev)
		if err != nil {
			e.logger.WithError(err).Warn("failed to encode event frame")
			return
		}
		stream.push(frame)
	}
}

// dispatchContent runs the selection, admission, retry and fallback loop
// for the non-streaming path.
func (e *Engine) dispatchContent(ctx context.Context, candidates []*registry.Model, prompt string, base *llm.RequestOptions) (*llm.ContentResponse, *registry.Model, error) {
	skip := map[string]bool{}
	var lastErr error
	for {
		model, selErr := e.selectModel(ctx, candidates, skip)
		if selErr != nil {
			if lastErr != nil {
				return nil, nil, lastErr
			}
			return nil, nil, selErr
		}
		if err := e.registry.Admit(ctx, model); err != nil {
			// A local admission refusal skips the model without marking it:
			// its window recovers by itself.
			lastErr = err
			skip[model.Key()] = true
			continue
		}
		content, err := e.generate(ctx, model, prompt, e.requestOptions(base, model))
		if err == nil {
			return content, model, nil
		}
		lastErr = err
		if !fault.UpdatesModelState(err) {
			return nil, nil, err
		}
		e.markModel(ctx, model, err)
		skip[model.Key()] = true
	}
}

// generate calls the adapter under the request timeout, retrying transient
// failures in place.
func (e *Engine) generate(ctx context.Context, model *registry.Model, prompt string, options *llm.RequestOptions) (*llm.ContentResponse, error) {
	adapter := e.adapters[model.Provider]
	requestTimeout := e.config.Limits.RequestTimeout.Duration()
	attempts := 0
	for {
		content, err := timeout.Do(ctx, requestTimeout, func(ctx context.Context) (*llm.ContentResponse, error) {
			return adapter.Generate(ctx, model.Name, prompt, options)
		})
		if err == nil {
			return content, nil
		}
		if fault.RetryableSameModel(err) && attempts < e.config.Limits.Retry.Max {
			attempts++
			e.logger.WithError(err).WithField("model", model.Key()).
				WithField("attempt", attempts).Warn("retrying request")
			time.Sleep(e.config.Limits.Retry.Interval.Duration())
			continue
		}
		return nil, err
	}
}

// openStream acquires the upstream stream handle under the request timeout,
// retrying transient failures in place, and wraps it with the inter-chunk
// guard.
func (e *Engine) openStream(ctx context.Context, model *registry.Model, prompt string, options *llm.RequestOptions) (llm.Streamer, error) {
	adapter := e.adapters[model.Provider]
	requestTimeout := e.config.Limits.RequestTimeout.Duration()
	attempts := 0
	for {
		streamer, err := timeout.Do(ctx, requestTimeout, func(ctx context.Context) (llm.Streamer, error) {
			return adapter.Stream(ctx, model.Name, prompt, options)
		})
		if err == nil {
			return timeout.Stream(streamer, requestTimeout), nil
		}
		if fault.RetryableSameModel(err) && attempts < e.config.Limits.Retry.Max {
			attempts++
			e.logger.WithError(err).WithField("model", model.Key()).
				WithField("attempt", attempts).Warn("retrying stream request")
			time.Sleep(e.config.Limits.Retry.Interval.Duration())
			continue
		}
		return nil, err
	}
}

// requestOptions clones the base options with the model's token cap:
// model settings take precedence, then the request, then engine limits.
func (e *Engine) requestOptions(base *llm.RequestOptions, model *registry.Model) *llm.RequestOptions {
	options := *base
	switch {
	case model.Settings.MaxTokens > 0:
		options.MaxTokens = model.Settings.MaxTokens
	case base.MaxTokens > 0:
	default:
		options.MaxTokens = e.config.Limits.MaxTokens
	}
	return &options
}

// markModel flips the failing model into the error state keyed by the
// fault code.
func (e *Engine) markModel(ctx context.Context, model *registry.Model, err error) {
	code := fault.CodeOf(err)
	if code == "" {
		code = fault.ProviderResponseError
	}
	opTs := e.clock.Now().UnixMilli()
	if serr := e.registry.SetState(ctx, model, registry.StatusError, string(code), opTs); serr != nil {
		e.logger.WithError(serr).WithField("model", model.Key()).Warn("failed to mark model state")
	}
}

// finalize appends the non-streaming exchange to history, best-effort: a
// failed write degrades durability, never the response.
func (e *Engine) finalize(ctx context.Context, sessionID, prompt string, content *llm.ContentResponse, prior []*event.Event) {
	ttl := e.config.Limits.HistoryExpiration.Duration()
	promptID := history.PromptEventID(prior)
	if promptID == "" {
		promptID = event.NewID()
	}
	for _, push := range []struct {
		ev      *event.Event
		publish bool
	}{
		{ev: event.NewPrompt(promptID, prompt)},
		{ev: event.NewResponse(event.NewID(), content.Text), publish: true},
		{ev: event.NewEnd(event.NewID(), content.Result), publish: true},
	} {
		if err := e.history.Push(ctx, sessionID, push.ev, ttl, push.publish); err != nil {
			e.logger.WithError(err).WithField("session", sessionID).Warn("failed to append history event")
		}
	}
}

// streamJob carries one streaming request through the background pipe.
type streamJob struct {
	prompt     string
	options    *RequestOptions
	base       *llm.RequestOptions
	candidates []*registry.Model
	sessionID  string
}

// exchange is one prompt the pipe must serve. carried marks a prompt
// recovered from history whose prompt event already exists.
type exchange struct {
	prompt  string
	carried bool
}

// serveStream is the background producer: it replays resumed events, then
// serves each queued prompt in turn, chaining the recovered prompt before a
// new one.
func (e *Engine) serveStream(ctx context.Context, stream *Stream, job *streamJob) {
	var queue []exchange
	if job.options.ResumeEventID != "" {
		summary, err := e.replay(ctx, stream, job)
		if err != nil {
			stream.fail(err)
			return
		}
		if !summary.complete && summary.prompt != "" {
			queue = append(queue, exchange{prompt: summary.prompt, carried: true})
		}
		if job.prompt != "" {
			queue = append(queue, exchange{prompt: job.prompt})
		}
	} else {
		queue = append(queue, exchange{prompt: job.prompt})
	}
	for i, ex := range queue {
		if err := e.streamExchange(ctx, stream, job, ex); err != nil {
			stream.fail(err)
			return
		}
		if i+1 < len(queue) {
			// Refresh the transcript so the chained prompt sees this
			// exchange's response.
			if events, err := e.history.Range(ctx, job.sessionID); err == nil {
				job.base.History = history.Pairs(history.Compact(events))
			}
		}
	}
	stream.finish()
}

// streamExchange serves one prompt: append its prompt event, then select,
// admit, stream and pipe, falling back across models on pre-delivery
// failures.
func (e *Engine) streamExchange(ctx context.Context, stream *Stream, job *streamJob, ex exchange) error {
	ttl := e.config.Limits.HistoryExpiration.Duration()
	if !ex.carried {
		promptEv := event.NewPrompt(event.NewID(), ex.prompt)
		if err := e.history.Push(ctx, job.sessionID, promptEv, ttl, false); err != nil {
			e.logger.WithError(err).WithField("session", job.sessionID).Warn("failed to append prompt event")
		}
	}
	skip := map[string]bool{}
	attempts := 0
	var lastErr error
	for {
		model, selErr := e.selectModel(ctx, job.candidates, skip)
		if selErr != nil {
			if lastErr != nil {
				return lastErr
			}
			return selErr
		}
		if err := e.registry.Admit(ctx, model); err != nil {
			lastErr = err
			skip[model.Key()] = true
			continue
		}
		streamer, err := e.openStream(ctx, model, ex.prompt, e.requestOptions(job.base, model))
		var delivered bool
		if err == nil {
			delivered, err = e.pipe(ctx, job.sessionID, streamer)
			if err == nil {
				return nil
			}
		}
		lastErr = err
		if fault.Has(err, fault.ProviderRequestEndError) {
			// The consumer went away: leave the exchange unterminated so it
			// stays eligible for resume.
			return err
		}
		if delivered {
			// Content already reached the consumer: surface the failure as
			// an error event and destroy the stream.
			code := fault.CodeOf(err)
			if code == "" {
				code = fault.ProviderStreamError
			}
			failure := event.NewFailure(event.NewID(), string(code), err.Error())
			if herr := e.history.Push(ctx, job.sessionID, failure, ttl, true); herr != nil {
				e.logger.WithError(herr).Warn("failed to append error event")
			}
			return err
		}
		if !fault.UpdatesModelState(err) {
			return err
		}
		e.markModel(ctx, model, err)
		skip[model.Key()] = true
		attempts++
		if attempts > e.config.Limits.Retry.Max {
			return err
		}
		time.Sleep(e.config.Limits.Retry.Interval.Duration())
	}
}

// pipe drains one upstream stream, appending a history event per decoded
// frame; publication fans the events out to the response stream through the
// session subscription. delivered reports whether any content reached the
// log before a failure.
func (e *Engine) pipe(ctx context.Context, sessionID string, streamer llm.Streamer) (delivered bool, err error) {
	defer streamer.Close()
	ttl := e.config.Limits.HistoryExpiration.Duration()
	decoder := event.NewDecoder(e.logger.WithField("component", "engine"))
	sawEnd := false
	handle := func(ev *event.Event) error {
		switch ev.Name {
		case event.NameContent:
			stored := event.NewResponse(ev.ID, ev.Content.Response)
			if stored.ID == "" {
				stored.ID = event.NewID()
			}
			if herr := e.history.Push(ctx, sessionID, stored, ttl, true); herr != nil {
				e.logger.WithError(herr).Warn("failed to append response event")
			}
			delivered = true
		case event.NameEnd:
			sawEnd = true
			stored := event.NewEnd(ev.ID, ev.End.Response)
			if stored.ID == "" {
				stored.ID = event.NewID()
			}
			if herr := e.history.Push(ctx, sessionID, stored, ttl, true); herr != nil {
				e.logger.WithError(herr).Warn("failed to append end event")
			}
		case event.NameError:
			return fault.Newf(fault.ProviderStreamError, "upstream stream error %v: %v", ev.Failure.Code, ev.Failure.Message)
		}
		return nil
	}
	for !sawEnd {
		select {
		case <-ctx.Done():
			return delivered, fault.Wrap(fault.ProviderRequestEndError, "stream closed before completion", ctx.Err())
		default:
		}
		chunk, rerr := streamer.Recv()
		if rerr == io.EOF {
			for _, ev := range decoder.Flush() {
				if herr := handle(ev); herr != nil {
					return delivered, herr
				}
			}
			break
		}
		if rerr != nil {
			return delivered, rerr
		}
		for _, ev := range decoder.Feed(chunk) {
			if herr := handle(ev); herr != nil {
				return delivered, herr
			}
		}
	}
	if !sawEnd {
		// The upstream closed without a terminator; synthesize one.
		end := event.NewEnd(event.NewID(), event.ResultComplete)
		if herr := e.history.Push(ctx, sessionID, end, ttl, true); herr != nil {
			e.logger.WithError(herr).Warn("failed to append synthesized end event")
		}
	}
	return delivered, nil
}
