// Package openai implements the provider adapter for the OpenAI chat
// completions API.
package openai

import (
	"context"
	"os"

	"github.com/viant/dispatchly/provider/base"
)

const openAIEndpoint = "https://api.openai.com/v1"

// ClientOption aliases base.ClientOption so callers keep the
// openai.WithBaseURL(...) spelling.
type ClientOption = base.ClientOption

// WithBaseURL aliases base.WithBaseURL so callers can write
// openai.WithBaseURL(...).
var WithBaseURL = base.WithBaseURL

// WithHTTPClient aliases base.WithHTTPClient so callers can write
// openai.WithHTTPClient(...).
var WithHTTPClient = base.WithHTTPClient

// Client is the OpenAI adapter.
type Client struct {
	base.Config
}

// NewClient creates an OpenAI client with the given API key.
func NewClient(apiKey string, options ...ClientOption) *Client {
	client := &Client{
		Config: base.Config{
			BaseURL:    openAIEndpoint,
			APIKey:     apiKey,
			HTTPClient: base.DefaultHTTPClient(),
		},
	}
	for _, option := range options {
		option(&client.Config)
	}
	if client.APIKey == "" {
		client.APIKey = os.Getenv("OPENAI_API_KEY")
	}
	return client
}

// Init implements llm.Adapter.
func (c *Client) Init(ctx context.Context) error {
	return nil
}

// Close implements llm.Adapter.
func (c *Client) Close() error {
	c.HTTPClient.CloseIdleConnections()
	return nil
}
