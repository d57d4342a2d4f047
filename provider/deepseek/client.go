// Package deepseek implements the provider adapter for the DeepSeek API,
// which speaks the OpenAI chat completions wire format on its own endpoint.
package deepseek

import (
	"os"

	"github.com/viant/dispatchly/provider/base"
	"github.com/viant/dispatchly/provider/openai"
)

const deepSeekEndpoint = "https://api.deepseek.com/v1"

// ClientOption aliases base.ClientOption.
type ClientOption = base.ClientOption

// Client is the DeepSeek adapter.
type Client struct {
	*openai.Client
}

// NewClient creates a DeepSeek client with the given API key.
func NewClient(apiKey string, options ...ClientOption) *Client {
	if apiKey == "" {
		apiKey = os.Getenv("DEEPSEEK_API_KEY")
	}
	wrapped := openai.NewClient(apiKey, append([]ClientOption{base.WithBaseURL(deepSeekEndpoint)}, options...)...)
	return &Client{Client: wrapped}
}
