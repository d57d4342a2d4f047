package history

import (
	"strings"

	"github.com/viant/dispatchly/event"
)

// Compact reduces a raw event log to a deterministic transcript: prompts
// are kept, buffered responses of an exchange are merged into a single
// response event when its end arrives, error-terminated and unterminated
// response runs are discarded. End events are kept so that the operation is
// idempotent: Compact(Compact(x)) == Compact(x).
func Compact(events []*event.Event) []*event.Event {
	var out []*event.Event
	var buffer []*event.Event
	for _, ev := range events {
		switch ev.Name {
		case event.NameContent:
			if ev.Type == event.TypePrompt {
				out = append(out, ev)
				continue
			}
			buffer = append(buffer, ev)
		case event.NameEnd:
			if len(buffer) > 0 {
				out = append(out, mergeResponses(buffer))
				buffer = nil
			}
			out = append(out, ev)
		case event.NameError:
			buffer = nil
		}
	}
	return out
}

// mergeResponses joins a run of response events into one, keeping the first
// event's identity and position.
func mergeResponses(run []*event.Event) *event.Event {
	if len(run) == 1 {
		return run[0]
	}
	var text strings.Builder
	for _, ev := range run {
		text.WriteString(ev.Content.Response)
	}
	merged := event.NewResponse(run[0].ID, text.String())
	merged.Timestamp = run[0].Timestamp
	return merged
}

// Pairs walks a compacted log accumulating the last prompt and response;
// whenever both are present a pair is emitted and both reset.
func Pairs(events []*event.Event) []Pair {
	var out []Pair
	var lastPrompt, lastResponse string
	for _, ev := range events {
		if ev.Name != event.NameContent {
			continue
		}
		if ev.Type == event.TypePrompt {
			lastPrompt = ev.Content.Prompt
		} else {
			lastResponse = ev.Content.Response
		}
		if lastPrompt != "" && lastResponse != "" {
			out = append(out, Pair{Prompt: lastPrompt, Response: lastResponse})
			lastPrompt, lastResponse = "", ""
		}
	}
	return out
}

// PromptEventID returns the id of the prompt opening the last incomplete
// exchange, or empty when every exchange is terminated.
func PromptEventID(events []*event.Event) string {
	var promptID string
	for _, ev := range events {
		switch ev.Name {
		case event.NameContent:
			if ev.Type == event.TypePrompt {
				promptID = ev.ID
			}
		case event.NameEnd, event.NameError:
			promptID = ""
		}
	}
	return promptID
}
