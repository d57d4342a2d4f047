// Package base aggregates common client parameters shared by all provider
// adapters. It is embedded into every concrete client to remove per-package
// boiler-plate.
package base

import (
	"net/http"
	"time"
)

// Config is the shared adapter client configuration.
type Config struct {
	BaseURL    string
	APIKey     string
	HTTPClient *http.Client
}

// ClientOption mutates Config; providers expose it via type alias so that
// users can keep calling e.g. openai.WithBaseURL(...).
type ClientOption func(*Config)

// WithBaseURL overrides the default endpoint of the provider.
func WithBaseURL(baseURL string) ClientOption {
	return func(c *Config) {
		if baseURL != "" {
			c.BaseURL = baseURL
		}
	}
}

// WithHTTPClient injects a custom HTTP client.
func WithHTTPClient(client *http.Client) ClientOption {
	return func(c *Config) {
		if client != nil {
			c.HTTPClient = client
		}
	}
}

// DefaultHTTPClient returns the client adapters use unless overridden. The
// transport timeout is deliberately generous; the engine enforces request
// and inter-chunk deadlines itself.
func DefaultHTTPClient() *http.Client {
	return &http.Client{Timeout: 30 * time.Minute}
}
