package gemini

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/goccy/go-json"
	"github.com/viant/dispatchly/event"
	"github.com/viant/dispatchly/fault"
	"github.com/viant/dispatchly/llm"
)

// Generate implements llm.Adapter for the non-streaming path.
func (c *Client) Generate(ctx context.Context, model, prompt string, options *llm.RequestOptions) (*llm.ContentResponse, error) {
	url := fmt.Sprintf("%s/models/%s:generateContent", c.BaseURL, model)
	respBytes, err := c.post(ctx, url, ToRequest(prompt, options))
	if err != nil {
		return nil, err
	}
	var apiResp Response
	if err := json.Unmarshal(respBytes, &apiResp); err != nil {
		return nil, fault.Wrap(fault.ProviderResponseError, "failed to unmarshal response", err)
	}
	if apiResp.Error != nil {
		return nil, toFault(apiResp.Error)
	}
	if len(apiResp.Candidates) == 0 {
		return nil, fault.New(fault.ProviderResponseNoContent, "response carried no candidates")
	}
	candidate := apiResp.Candidates[0]
	result := toResultCode(candidate.FinishReason)
	text := candidate.text()
	if text == "" {
		if result == event.ResultIncompleteMaxTokens {
			return nil, fault.New(fault.ProviderResponseMaxTokensError, "response truncated before any content")
		}
		return nil, fault.New(fault.ProviderResponseNoContent, "response carried no content")
	}
	return &llm.ContentResponse{Text: text, Result: result}, nil
}

// Stream implements llm.Adapter; Gemini streams response chunks as SSE
// when alt=sse is requested.
func (c *Client) Stream(ctx context.Context, model, prompt string, options *llm.RequestOptions) (llm.Streamer, error) {
	url := fmt.Sprintf("%s/models/%s:streamGenerateContent?alt=sse", c.BaseURL, model)
	resp, err := c.do(ctx, url, ToRequest(prompt, options))
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		respBytes, _ := io.ReadAll(resp.Body)
		return nil, statusFault(resp.StatusCode, respBytes)
	}
	var transform llm.ChunkTransform
	if options != nil {
		transform = options.OnStreamChunk
	}
	return &stream{body: resp.Body, reader: bufio.NewReader(resp.Body), transform: transform}, nil
}

func (c *Client) post(ctx context.Context, url string, request *Request) ([]byte, error) {
	resp, err := c.do(ctx, url, request)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	respBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fault.Wrap(fault.ProviderResponseError, "failed to read response body", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, statusFault(resp.StatusCode, respBytes)
	}
	return respBytes, nil
}

func (c *Client) do(ctx context.Context, url string, request *Request) (*http.Response, error) {
	if c.APIKey == "" {
		return nil, fault.New(fault.ProviderResponseError, "API key is required")
	}
	data, err := json.Marshal(request)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to create HTTP request: %w", err)
	}
	httpReq.Header.Set("x-goog-api-key", c.APIKey)
	httpReq.Header.Set("Content-Type", "application/json")
	resp, err := c.HTTPClient.Do(httpReq)
	if err != nil {
		return nil, fault.Wrap(fault.ProviderResponseError, "failed to send request", err)
	}
	return resp, nil
}

func statusFault(status int, body []byte) error {
	var apiResp Response
	if err := json.Unmarshal(body, &apiResp); err == nil && apiResp.Error != nil {
		return toFault(apiResp.Error)
	}
	if status == http.StatusTooManyRequests {
		return fault.Newf(fault.ProviderRateLimitError, "upstream rate limited (status %v)", status)
	}
	return fault.Newf(fault.ProviderResponseError, "upstream error (status %v): %s", status, body)
}

func toFault(apiErr *APIError) error {
	switch apiErr.Status {
	case "RESOURCE_EXHAUSTED":
		return fault.Newf(fault.ProviderExceededQuotaError, "quota exceeded: %v", apiErr.Message)
	default:
		if apiErr.Code == http.StatusTooManyRequests {
			return fault.Newf(fault.ProviderRateLimitError, "upstream rate limited: %v", apiErr.Message)
		}
		return fault.Newf(fault.ProviderResponseError, "upstream error: %v", apiErr.Message)
	}
}

// stream translates Gemini SSE chunks into the engine's frames.
type stream struct {
	body      io.ReadCloser
	reader    *bufio.Reader
	transform llm.ChunkTransform
	finish    string
	done      bool
	ended     bool
}

// Recv returns the next frame or io.EOF once the upstream is drained. The
// terminating end frame is emitted when the upstream closes; Gemini has no
// explicit DONE marker, the last chunk carries the finish reason.
func (s *stream) Recv() ([]byte, error) {
	for {
		if s.done {
			if !s.ended {
				s.ended = true
				return event.Encode(event.NewEnd("", toResultCode(s.finish)))
			}
			return nil, io.EOF
		}
		line, err := s.reader.ReadString('\n')
		if err != nil {
			s.done = true
			if err != io.EOF {
				return nil, fault.Wrap(fault.ProviderStreamError, "stream read error", err)
			}
		}
		line = strings.TrimSpace(line)
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		frame, err := s.translate(strings.TrimPrefix(line, "data: "))
		if err != nil {
			return nil, err
		}
		if frame == nil {
			continue
		}
		return frame, nil
	}
}

func (s *stream) translate(payload string) ([]byte, error) {
	var chunk Response
	if err := json.Unmarshal([]byte(payload), &chunk); err != nil {
		return nil, fault.Wrap(fault.ProviderStreamError, "failed to unmarshal stream chunk", err)
	}
	if chunk.Error != nil {
		s.done = true
		s.ended = true
		return event.Encode(event.NewFailure("", string(fault.ProviderStreamError), chunk.Error.Message))
	}
	if len(chunk.Candidates) == 0 {
		return nil, nil
	}
	candidate := chunk.Candidates[0]
	if candidate.FinishReason != "" {
		s.finish = candidate.FinishReason
	}
	text := candidate.text()
	if text == "" {
		return nil, nil
	}
	out := []byte(text)
	if s.transform != nil {
		out = s.transform(out)
	}
	return event.Encode(event.NewResponse("", string(out)))
}

// Close implements llm.Streamer.
func (s *stream) Close() error {
	s.done = true
	s.ended = true
	return s.body.Close()
}
