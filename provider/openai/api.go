package openai

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/goccy/go-json"
	"github.com/viant/dispatchly/event"
	"github.com/viant/dispatchly/fault"
	"github.com/viant/dispatchly/llm"
)

// Generate implements llm.Adapter for the non-streaming path.
func (c *Client) Generate(ctx context.Context, model, prompt string, options *llm.RequestOptions) (*llm.ContentResponse, error) {
	respBytes, err := c.post(ctx, ToRequest(model, prompt, options, false))
	if err != nil {
		return nil, err
	}
	var apiResp Response
	if err := json.Unmarshal(respBytes, &apiResp); err != nil {
		return nil, fault.Wrap(fault.ProviderResponseError, "failed to unmarshal response", err)
	}
	if apiResp.Error != nil {
		return nil, toFault(0, apiResp.Error)
	}
	if len(apiResp.Choices) == 0 {
		return nil, fault.New(fault.ProviderResponseNoContent, "response carried no choices")
	}
	choice := apiResp.Choices[0]
	result := toResultCode(choice.FinishReason)
	if choice.Message.Content == "" {
		if result == event.ResultIncompleteMaxTokens {
			return nil, fault.New(fault.ProviderResponseMaxTokensError, "response truncated before any content")
		}
		return nil, fault.New(fault.ProviderResponseNoContent, "response carried no content")
	}
	return &llm.ContentResponse{Text: choice.Message.Content, Result: result}, nil
}

func (c *Client) post(ctx context.Context, request *Request) ([]byte, error) {
	if c.APIKey == "" {
		return nil, fault.New(fault.ProviderResponseError, "API key is required")
	}
	data, err := json.Marshal(request)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/chat/completions", bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to create HTTP request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+c.APIKey)
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.HTTPClient.Do(httpReq)
	if err != nil {
		return nil, fault.Wrap(fault.ProviderResponseError, "failed to send request", err)
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

// statusFault maps a non-200 upstream status to a fault code.
func statusFault(status int, body []byte) error {
	var apiResp Response
	if err := json.Unmarshal(body, &apiResp); err == nil && apiResp.Error != nil {
		return toFault(status, apiResp.Error)
	}
	if status == http.StatusTooManyRequests {
		return fault.Newf(fault.ProviderRateLimitError, "upstream rate limited (status %v)", status)
	}
	return fault.Newf(fault.ProviderResponseError, "upstream error (status %v): %s", status, body)
}

func toFault(status int, apiErr *APIError) error {
	switch {
	case apiErr.Type == "insufficient_quota" || apiErr.Code == "insufficient_quota":
		return fault.Newf(fault.ProviderExceededQuotaError, "quota exceeded: %v", apiErr.Message)
	case status == http.StatusTooManyRequests:
		return fault.Newf(fault.ProviderRateLimitError, "upstream rate limited: %v", apiErr.Message)
	default:
		return fault.Newf(fault.ProviderResponseError, "upstream error: %v", apiErr.Message)
	}
}
