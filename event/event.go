// Package event defines the session event model and its SSE wire codec.
package event

import (
	"fmt"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
)

// Name identifies the event kind on the wire and in history.
type Name string

const (
	NameContent Name = "content"
	NameEnd     Name = "end"
	NameError   Name = "error"
)

// Type qualifies a content event as carrying a prompt or a response.
type Type string

const (
	TypePrompt   Type = "prompt"
	TypeResponse Type = "response"
)

// ResultCode classifies how a response terminated.
type ResultCode string

const (
	ResultComplete            ResultCode = "COMPLETE"
	ResultIncompleteMaxTokens ResultCode = "INCOMPLETE_MAX_TOKENS"
	ResultIncompleteUnknown   ResultCode = "INCOMPLETE_UNKNOWN"
)

// Content is the payload of a content event. Exactly one of Prompt or
// Response is set, matching Type on the enclosing event.
type Content struct {
	Prompt   string `json:"prompt,omitempty"`
	Response string `json:"response,omitempty"`
}

// End is the payload of an end event.
type End struct {
	Response ResultCode `json:"response"`
}

// Failure is the payload of an error event.
type Failure struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Event is a single session event. Exactly one payload field matching Name
// is non-nil.
type Event struct {
	ID        string
	Timestamp int64 // ms since epoch; assigned on append
	Name      Name
	Type      Type // content events only
	Retry     int  // decoded retry hint in ms, zero when absent
	Content   *Content
	End       *End
	Failure   *Failure
}

// NewID returns a fresh UUIDv4 event id.
func NewID() string {
	return uuid.New().String()
}

// NewPrompt builds a prompt content event.
func NewPrompt(id, prompt string) *Event {
	return &Event{ID: id, Name: NameContent, Type: TypePrompt, Content: &Content{Prompt: prompt}}
}

// NewResponse builds a response content event.
func NewResponse(id, response string) *Event {
	return &Event{ID: id, Name: NameContent, Type: TypeResponse, Content: &Content{Response: response}}
}

// NewEnd builds an end event.
func NewEnd(id string, result ResultCode) *Event {
	return &Event{ID: id, Name: NameEnd, End: &End{Response: result}}
}

// NewFailure builds an error event.
func NewFailure(id, code, message string) *Event {
	return &Event{ID: id, Name: NameError, Failure: &Failure{Code: code, Message: message}}
}

// Data returns the payload matching the event name.
func (e *Event) Data() interface{} {
	switch e.Name {
	case NameContent:
		return e.Content
	case NameEnd:
		return e.End
	case NameError:
		return e.Failure
	}
	return nil
}

// stored is the persisted JSON shape of an event.
type stored struct {
	ID        string          `json:"id"`
	Timestamp int64           `json:"timestamp"`
	Event     Name            `json:"event"`
	Type      Type            `json:"type,omitempty"`
	Data      json.RawMessage `json:"data"`
}

// Marshal serializes the event to its stored JSON form.
func (e *Event) Marshal() ([]byte, error) {
	data, err := json.Marshal(e.Data())
	if err != nil {
		return nil, fmt.Errorf("failed to marshal event %v data: %w", e.ID, err)
	}
	return json.Marshal(&stored{ID: e.ID, Timestamp: e.Timestamp, Event: e.Name, Type: e.Type, Data: data})
}

// Unmarshal restores an event from its stored JSON form.
func Unmarshal(data []byte) (*Event, error) {
	rec := &stored{}
	if err := json.Unmarshal(data, rec); err != nil {
		return nil, fmt.Errorf("failed to unmarshal event: %w", err)
	}
	ev := &Event{ID: rec.ID, Timestamp: rec.Timestamp, Name: rec.Event, Type: rec.Type}
	if err := ev.decodeData(rec.Data); err != nil {
		return nil, err
	}
	return ev, nil
}

func (e *Event) decodeData(data []byte) error {
	if len(data) == 0 {
		data = []byte("{}")
	}
	switch e.Name {
	case NameContent:
		e.Content = &Content{}
		if err := json.Unmarshal(data, e.Content); err != nil {
			return fmt.Errorf("failed to unmarshal content data: %w", err)
		}
		if e.Type == "" {
			if e.Content.Prompt != "" && e.Content.Response == "" {
				e.Type = TypePrompt
			} else {
				e.Type = TypeResponse
			}
		}
	case NameEnd:
		e.End = &End{}
		if err := json.Unmarshal(data, e.End); err != nil {
			return fmt.Errorf("failed to unmarshal end data: %w", err)
		}
	case NameError:
		e.Failure = &Failure{}
		if err := json.Unmarshal(data, e.Failure); err != nil {
			return fmt.Errorf("failed to unmarshal error data: %w", err)
		}
	default:
		return fmt.Errorf("unknown event name: %v", e.Name)
	}
	return nil
}
