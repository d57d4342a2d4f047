// Package gemini implements the provider adapter for the Google Gemini
// generateContent API.
package gemini

import (
	"context"
	"os"

	"github.com/viant/dispatchly/provider/base"
)

const geminiEndpoint = "https://generativelanguage.googleapis.com/v1beta"

// ClientOption aliases base.ClientOption.
type ClientOption = base.ClientOption

// WithBaseURL aliases base.WithBaseURL so callers can write
// gemini.WithBaseURL(...).
var WithBaseURL = base.WithBaseURL

// WithHTTPClient aliases base.WithHTTPClient so callers can write
// gemini.WithHTTPClient(...).
var WithHTTPClient = base.WithHTTPClient

// Client is the Gemini adapter.
type Client struct {
	base.Config
}

// NewClient creates a Gemini client with the given API key.
func NewClient(apiKey string, options ...ClientOption) *Client {
	client := &Client{
		Config: base.Config{
			BaseURL:    geminiEndpoint,
			APIKey:     apiKey,
			HTTPClient: base.DefaultHTTPClient(),
		},
	}
	for _, option := range options {
		option(&client.Config)
	}
	if client.APIKey == "" {
		client.APIKey = os.Getenv("GEMINI_API_KEY")
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
