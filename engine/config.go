package engine

import (
	"time"

	"github.com/viant/dispatchly/fault"
	"github.com/viant/dispatchly/internal/timewin"
	"github.com/viant/dispatchly/provider"
	"github.com/viant/dispatchly/registry"
)

// Storage types.
const (
	StorageMemory = "memory"
	StorageRedis  = "redis"
)

// Config configures an Engine. It is usable programmatically and loadable
// from yaml.
type Config struct {
	Providers map[string]*provider.Config `yaml:"providers" json:"providers"`
	Models    []*ModelConfig              `yaml:"models" json:"models"`
	Storage   StorageConfig               `yaml:"storage" json:"storage"`
	Limits    Limits                      `yaml:"limits" json:"limits"`
	Restore   RestoreConfig               `yaml:"restore" json:"restore"`
}

// ModelConfig declares one dispatchable model; per-model limits and restore
// windows override the engine-wide ones.
type ModelConfig struct {
	Provider string         `yaml:"provider" json:"provider"`
	Model    string         `yaml:"model" json:"model"`
	Limits   *ModelLimits   `yaml:"limits,omitempty" json:"limits,omitempty"`
	Restore  *RestoreConfig `yaml:"restore,omitempty" json:"restore,omitempty"`
}

// ModelLimits overrides token and rate limits for one model.
type ModelLimits struct {
	MaxTokens int         `yaml:"maxTokens,omitempty" json:"maxTokens,omitempty"`
	Rate      *RateConfig `yaml:"rate,omitempty" json:"rate,omitempty"`
}

// RateConfig is a fixed-window admission limit.
type RateConfig struct {
	Max        int            `yaml:"max" json:"max"`
	TimeWindow timewin.Window `yaml:"timeWindow" json:"timeWindow"`
}

// RetryConfig bounds same-model retries.
type RetryConfig struct {
	Max      int            `yaml:"max" json:"max"`
	Interval timewin.Window `yaml:"interval" json:"interval"`
}

// Limits carries the engine-wide dispatch limits.
type Limits struct {
	MaxTokens         int            `yaml:"maxTokens,omitempty" json:"maxTokens,omitempty"`
	Rate              RateConfig     `yaml:"rate" json:"rate"`
	RequestTimeout    timewin.Window `yaml:"requestTimeout" json:"requestTimeout"`
	Retry             RetryConfig    `yaml:"retry" json:"retry"`
	HistoryExpiration timewin.Window `yaml:"historyExpiration" json:"historyExpiration"`
}

// RestoreConfig carries the minimum delays before an errored model is
// reconsidered, per error reason bucket.
type RestoreConfig struct {
	RateLimit                  timewin.Window `yaml:"rateLimit" json:"rateLimit"`
	Retry                      timewin.Window `yaml:"retry" json:"retry"`
	Timeout                    timewin.Window `yaml:"timeout" json:"timeout"`
	ProviderCommunicationError timewin.Window `yaml:"providerCommunicationError" json:"providerCommunicationError"`
	ProviderExceededError      timewin.Window `yaml:"providerExceededError" json:"providerExceededError"`
}

// StorageConfig selects the store backend.
type StorageConfig struct {
	Type       string `yaml:"type" json:"type"`
	Connection string `yaml:"connection,omitempty" json:"connection,omitempty"`
}

const (
	defaultRateMax           = 200
	defaultRateWindow        = 30 * time.Second
	defaultRequestTimeout    = 30 * time.Second
	defaultRetryMax          = 1
	defaultRetryInterval     = time.Second
	defaultHistoryExpiration = 24 * time.Hour
	defaultRestore           = time.Minute
	defaultRestoreExceeded   = 10 * time.Minute
)

// Init validates the configuration and fills defaults in place.
func (c *Config) Init() error {
	if len(c.Providers) == 0 {
		return fault.New(fault.OptionError, "at least one provider is required")
	}
	if len(c.Models) == 0 {
		return fault.New(fault.OptionError, "at least one model is required")
	}
	for _, model := range c.Models {
		if model.Provider == "" || model.Model == "" {
			return fault.New(fault.OptionError, "model entries require provider and model")
		}
		if _, ok := c.Providers[model.Provider]; !ok {
			return fault.Newf(fault.OptionError, "model %v:%v references an unconfigured provider", model.Provider, model.Model)
		}
		if model.Limits != nil {
			if model.Limits.MaxTokens < 0 {
				return fault.Newf(fault.OptionError, "model %v:%v has negative maxTokens", model.Provider, model.Model)
			}
			if model.Limits.Rate != nil && model.Limits.Rate.Max < 0 {
				return fault.Newf(fault.OptionError, "model %v:%v has negative rate.max", model.Provider, model.Model)
			}
		}
	}
	switch c.Storage.Type {
	case "":
		c.Storage.Type = StorageMemory
	case StorageMemory:
	case StorageRedis:
		if c.Storage.Connection == "" {
			return fault.New(fault.OptionError, "redis storage requires a connection address")
		}
	default:
		return fault.Newf(fault.OptionError, "unsupported storage type: %v", c.Storage.Type)
	}
	// Negative numeric options are invalid rather than silently ignored.
	if c.Limits.MaxTokens < 0 {
		return fault.New(fault.OptionError, "negative maxTokens")
	}
	if c.Limits.Rate.Max < 0 {
		return fault.New(fault.OptionError, "negative rate.max")
	}
	if c.Limits.Retry.Max < 0 {
		return fault.New(fault.OptionError, "negative retry.max")
	}
	if c.Limits.Rate.Max == 0 {
		c.Limits.Rate.Max = defaultRateMax
	}
	if c.Limits.Rate.TimeWindow == 0 {
		c.Limits.Rate.TimeWindow = timewin.Window(defaultRateWindow)
	}
	if c.Limits.RequestTimeout == 0 {
		c.Limits.RequestTimeout = timewin.Window(defaultRequestTimeout)
	}
	if c.Limits.Retry.Max == 0 {
		c.Limits.Retry.Max = defaultRetryMax
	}
	if c.Limits.Retry.Interval == 0 {
		c.Limits.Retry.Interval = timewin.Window(defaultRetryInterval)
	}
	if c.Limits.HistoryExpiration == 0 {
		c.Limits.HistoryExpiration = timewin.Window(defaultHistoryExpiration)
	}
	c.Restore.applyDefaults()
	return nil
}

func (r *RestoreConfig) applyDefaults() {
	if r.RateLimit == 0 {
		r.RateLimit = timewin.Window(defaultRestore)
	}
	if r.Retry == 0 {
		r.Retry = timewin.Window(defaultRestore)
	}
	if r.Timeout == 0 {
		r.Timeout = timewin.Window(defaultRestore)
	}
	if r.ProviderCommunicationError == 0 {
		r.ProviderCommunicationError = timewin.Window(defaultRestore)
	}
	if r.ProviderExceededError == 0 {
		r.ProviderExceededError = timewin.Window(defaultRestoreExceeded)
	}
}

// settings merges engine-wide limits with one model's overrides.
func (c *Config) settings(model *ModelConfig) registry.Settings {
	settings := registry.Settings{
		Rate: registry.Rate{
			Max:    c.Limits.Rate.Max,
			Window: c.Limits.Rate.TimeWindow.Duration(),
		},
	}
	restore := c.Restore
	if model.Restore != nil {
		if model.Restore.RateLimit != 0 {
			restore.RateLimit = model.Restore.RateLimit
		}
		if model.Restore.Retry != 0 {
			restore.Retry = model.Restore.Retry
		}
		if model.Restore.Timeout != 0 {
			restore.Timeout = model.Restore.Timeout
		}
		if model.Restore.ProviderCommunicationError != 0 {
			restore.ProviderCommunicationError = model.Restore.ProviderCommunicationError
		}
		if model.Restore.ProviderExceededError != 0 {
			restore.ProviderExceededError = model.Restore.ProviderExceededError
		}
	}
	settings.Restore = registry.Restore{
		RateLimit:             restore.RateLimit.Duration(),
		Retry:                 restore.Retry.Duration(),
		Timeout:               restore.Timeout.Duration(),
		ProviderCommError:     restore.ProviderCommunicationError.Duration(),
		ProviderExceededError: restore.ProviderExceededError.Duration(),
	}
	if model.Limits != nil {
		if model.Limits.MaxTokens > 0 {
			settings.MaxTokens = model.Limits.MaxTokens
		}
		if model.Limits.Rate != nil {
			if model.Limits.Rate.Max > 0 {
				settings.Rate.Max = model.Limits.Rate.Max
			}
			if model.Limits.Rate.TimeWindow > 0 {
				settings.Rate.Window = model.Limits.Rate.TimeWindow.Duration()
			}
		}
	}
	return settings
}
