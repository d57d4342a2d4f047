package provider

import (
	"github.com/viant/dispatchly/fault"
	"github.com/viant/dispatchly/llm"
	"github.com/viant/dispatchly/provider/base"
	"github.com/viant/dispatchly/provider/deepseek"
	"github.com/viant/dispatchly/provider/gemini"
	"github.com/viant/dispatchly/provider/openai"
)

// Config configures one provider. Client, when set, replaces the built-in
// adapter entirely; it is how tests and custom upstreams plug in.
type Config struct {
	APIKey  string      `yaml:"apiKey" json:"apiKey"`
	BaseURL string      `yaml:"baseUrl,omitempty" json:"baseUrl,omitempty"`
	Client  llm.Adapter `yaml:"-" json:"-"`
}

// New creates an adapter for the named provider.
func New(name string, config *Config) (llm.Adapter, error) {
	if config == nil {
		config = &Config{}
	}
	if config.Client != nil {
		return config.Client, nil
	}
	var options []base.ClientOption
	if config.BaseURL != "" {
		options = append(options, base.WithBaseURL(config.BaseURL))
	}
	switch name {
	case ProviderOpenAI:
		return openai.NewClient(config.APIKey, options...), nil
	case ProviderDeepSeek:
		return deepseek.NewClient(config.APIKey, options...), nil
	case ProviderGemini:
		return gemini.NewClient(config.APIKey, options...), nil
	default:
		return nil, fault.Newf(fault.OptionError, "unsupported provider: %v", name)
	}
}

// Known reports whether the named provider can be constructed.
func Known(name string, config *Config) bool {
	if config != nil && config.Client != nil {
		return true
	}
	switch name {
	case ProviderOpenAI, ProviderDeepSeek, ProviderGemini:
		return true
	}
	return false
}
