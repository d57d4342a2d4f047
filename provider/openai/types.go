package openai

import (
	"github.com/viant/dispatchly/event"
	"github.com/viant/dispatchly/llm"
)

// Request is the chat completions request body.
type Request struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	Temperature *float64  `json:"temperature,omitempty"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
	Stream      bool      `json:"stream,omitempty"`
}

// Message is a single chat turn.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Response is the non-streaming chat completions response body.
type Response struct {
	Choices []Choice  `json:"choices"`
	Error   *APIError `json:"error,omitempty"`
}

// Choice is one completion alternative.
type Choice struct {
	Index        int     `json:"index"`
	Message      Message `json:"message"`
	FinishReason string  `json:"finish_reason"`
}

// StreamResponse is one streamed chunk.
type StreamResponse struct {
	Choices []StreamChoice `json:"choices"`
	Error   *APIError      `json:"error,omitempty"`
}

// StreamChoice carries a delta of one alternative.
type StreamChoice struct {
	Index        int     `json:"index"`
	Delta        Delta   `json:"delta"`
	FinishReason *string `json:"finish_reason"`
}

// Delta is the incremental message content.
type Delta struct {
	Content string `json:"content"`
}

// APIError is the upstream error payload.
type APIError struct {
	Message string `json:"message"`
	Type    string `json:"type"`
	Code    string `json:"code"`
}

// ToRequest converts the adapter inputs to the wire request.
func ToRequest(model, prompt string, options *llm.RequestOptions, stream bool) *Request {
	req := &Request{Model: model, Stream: stream}
	if options != nil {
		if options.Context != "" {
			req.Messages = append(req.Messages, Message{Role: "system", Content: options.Context})
		}
		for _, pair := range options.History {
			req.Messages = append(req.Messages, Message{Role: "user", Content: pair.Prompt})
			req.Messages = append(req.Messages, Message{Role: "assistant", Content: pair.Response})
		}
		req.Temperature = options.Temperature
		req.MaxTokens = options.MaxTokens
	}
	req.Messages = append(req.Messages, Message{Role: "user", Content: prompt})
	return req
}

// toResultCode maps an upstream finish reason to a result code.
func toResultCode(finishReason string) event.ResultCode {
	switch finishReason {
	case "stop":
		return event.ResultComplete
	case "length":
		return event.ResultIncompleteMaxTokens
	default:
		return event.ResultIncompleteUnknown
	}
}
