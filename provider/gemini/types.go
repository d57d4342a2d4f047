package gemini

import (
	"github.com/viant/dispatchly/event"
	"github.com/viant/dispatchly/llm"
)

// Request is the generateContent request body.
type Request struct {
	SystemInstruction *Content          `json:"system_instruction,omitempty"`
	Contents          []Content         `json:"contents"`
	GenerationConfig  *GenerationConfig `json:"generationConfig,omitempty"`
}

// Content is one conversation turn.
type Content struct {
	Role  string `json:"role,omitempty"`
	Parts []Part `json:"parts"`
}

// Part is a text fragment of a turn.
type Part struct {
	Text string `json:"text"`
}

// GenerationConfig tunes the generation.
type GenerationConfig struct {
	Temperature     *float64 `json:"temperature,omitempty"`
	MaxOutputTokens int      `json:"maxOutputTokens,omitempty"`
}

// Response is the generateContent response body; streaming chunks share the
// same shape.
type Response struct {
	Candidates []Candidate `json:"candidates"`
	Error      *APIError   `json:"error,omitempty"`
}

// Candidate is one generated alternative.
type Candidate struct {
	Content      Content `json:"content"`
	FinishReason string  `json:"finishReason"`
}

// APIError is the upstream error payload.
type APIError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Status  string `json:"status"`
}

// ToRequest converts the adapter inputs to the wire request.
func ToRequest(prompt string, options *llm.RequestOptions) *Request {
	req := &Request{}
	if options != nil {
		if options.Context != "" {
			req.SystemInstruction = &Content{Parts: []Part{{Text: options.Context}}}
		}
		for _, pair := range options.History {
			req.Contents = append(req.Contents, Content{Role: "user", Parts: []Part{{Text: pair.Prompt}}})
			req.Contents = append(req.Contents, Content{Role: "model", Parts: []Part{{Text: pair.Response}}})
		}
		if options.Temperature != nil || options.MaxTokens > 0 {
			req.GenerationConfig = &GenerationConfig{Temperature: options.Temperature, MaxOutputTokens: options.MaxTokens}
		}
	}
	req.Contents = append(req.Contents, Content{Role: "user", Parts: []Part{{Text: prompt}}})
	return req
}

// text joins the candidate's parts.
func (c *Candidate) text() string {
	var out string
	for _, part := range c.Content.Parts {
		out += part.Text
	}
	return out
}

// toResultCode maps an upstream finish reason to a result code.
func toResultCode(finishReason string) event.ResultCode {
	switch finishReason {
	case "STOP":
		return event.ResultComplete
	case "MAX_TOKENS":
		return event.ResultIncompleteMaxTokens
	default:
		return event.ResultIncompleteUnknown
	}
}
