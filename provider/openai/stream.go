package openai

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

// Stream implements llm.Adapter for the streaming path. The returned
// stream emits SSE frames carrying content events and one end terminator.
func (c *Client) Stream(ctx context.Context, model, prompt string, options *llm.RequestOptions) (llm.Streamer, error) {
	if c.APIKey == "" {
		return nil, fault.New(fault.ProviderResponseError, "API key is required")
	}
	data, err := json.Marshal(ToRequest(model, prompt, options, true))
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/chat/completions", bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to create HTTP request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+c.APIKey)
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "text/event-stream")

	resp, err := c.HTTPClient.Do(httpReq)
	if err != nil {
		return nil, fault.Wrap(fault.ProviderResponseError, "failed to send request", err)
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

// stream translates upstream chat completion chunks into the engine's SSE
// frames.
type stream struct {
	body      io.ReadCloser
	reader    *bufio.Reader
	transform llm.ChunkTransform
	finish    string
	done      bool
}

// Recv returns the next frame or io.EOF once the upstream is drained.
func (s *stream) Recv() ([]byte, error) {
	for {
		if s.done {
			return nil, io.EOF
		}
		line, err := s.reader.ReadString('\n')
		if err != nil {
			s.done = true
			if err == io.EOF {
				if line == "" {
					return nil, io.EOF
				}
			} else {
				return nil, fault.Wrap(fault.ProviderStreamError, "stream read error", err)
			}
		}
		line = strings.TrimSpace(line)
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		payload := strings.TrimPrefix(line, "data: ")
		if payload == "[DONE]" {
			s.done = true
			return s.endFrame()
		}
		frame, err := s.translate(payload)
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
	var chunk StreamResponse
	if err := json.Unmarshal([]byte(payload), &chunk); err != nil {
		return nil, fault.Wrap(fault.ProviderStreamError, "failed to unmarshal stream chunk", err)
	}
	if chunk.Error != nil {
		s.done = true
		return event.Encode(event.NewFailure("", string(fault.ProviderStreamError), chunk.Error.Message))
	}
	if len(chunk.Choices) == 0 {
		return nil, nil
	}
	choice := chunk.Choices[0]
	if choice.FinishReason != nil {
		s.finish = *choice.FinishReason
	}
	if choice.Delta.Content == "" {
		return nil, nil
	}
	text := []byte(choice.Delta.Content)
	if s.transform != nil {
		text = s.transform(text)
	}
	return event.Encode(event.NewResponse("", string(text)))
}

func (s *stream) endFrame() ([]byte, error) {
	return event.Encode(event.NewEnd("", toResultCode(s.finish)))
}

// Close implements llm.Streamer.
func (s *stream) Close() error {
	s.done = true
	return s.body.Close()
}
