package engine

import (
	"context"

	"github.com/viant/dispatchly/event"
)

// replaySummary captures what a resume walk recovered: the prompt of an
// unfinished exchange (if any) and whether the replayed suffix completed.
type replaySummary struct {
	prompt   string
	complete bool
}

// replay loads the session suffix anchored at resumeEventId and forwards
// the selected events to the response stream, preserving their original
// ids.
func (e *Engine) replay(ctx context.Context, stream *Stream, job *streamJob) (*replaySummary, error) {
	suffix, err := e.history.RangeFromID(ctx, job.sessionID, job.options.ResumeEventID)
	if err != nil {
		return nil, err
	}
	var events []*event.Event
	var summary *replaySummary
	if job.options.StreamResponseType == StreamResponseSession {
		events, summary = resumeSession(suffix)
	} else {
		events, summary = resumeContent(suffix)
	}
	for _, ev := range events {
		frame, err := event.Encode(ev)
		if err != nil {
			e.logger.WithError(err).WithField("event", ev.ID).Warn("failed to encode replay event")
			continue
		}
		if !stream.push(frame) {
			break
		}
	}
	return summary, nil
}

// resumeContent selects the events of a single response: responses are
// forwarded until the exchange's terminator. An error terminator drops the
// buffered events and recovers nothing; an end terminator completes the
// exchange when its result is COMPLETE, otherwise the walked prompt remains
// recoverable so the truncated exchange can continue.
func resumeContent(suffix []*event.Event) ([]*event.Event, *replaySummary) {
	var out []*event.Event
	summary := &replaySummary{}
	for _, ev := range suffix {
		switch ev.Name {
		case event.NameContent:
			if ev.Type == event.TypePrompt {
				summary.prompt = ev.Content.Prompt
				continue
			}
			out = append(out, ev)
		case event.NameError:
			return nil, &replaySummary{}
		case event.NameEnd:
			out = append(out, ev)
			if ev.End.Response == event.ResultComplete {
				summary.complete = true
				summary.prompt = ""
			}
			return out, summary
		}
	}
	return out, summary
}

// resumeSession forwards every well-formed prompt+responses+end tuple from
// the suffix; runs terminated by an error are discarded. A trailing
// incomplete run is dropped from the replay and recovered for a follow-up
// request instead.
func resumeSession(suffix []*event.Event) ([]*event.Event, *replaySummary) {
	var out []*event.Event
	var run []*event.Event
	var runPrompt string
	open := false
	for _, ev := range suffix {
		switch ev.Name {
		case event.NameContent:
			if ev.Type == event.TypePrompt {
				run = []*event.Event{ev}
				runPrompt = ev.Content.Prompt
				open = true
				continue
			}
			run = append(run, ev)
			open = true
		case event.NameEnd:
			out = append(out, run...)
			out = append(out, ev)
			run, runPrompt, open = nil, "", false
		case event.NameError:
			run, runPrompt, open = nil, "", false
		}
	}
	summary := &replaySummary{complete: !open}
	if open {
		summary.prompt = runPrompt
	}
	return out, summary
}
