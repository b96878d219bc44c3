// internal/dispatch/config.go
package dispatch

import (
	"time"

	"school-notify/internal/common/config"
	"school-notify/internal/models"
)

// ChannelSettings bound one channel's worker pool: distinct gateways have
// distinct rate limits, so pools are per-channel, never global.
type ChannelSettings struct {
	Workers    int
	Timeout    time.Duration
	MaxRetries int
	Backoff    time.Duration
}

// Config holds the dispatcher's per-channel settings.
type Config struct {
	Channels map[models.Channel]ChannelSettings
}

// FromAppConfig maps the application channel configuration onto dispatcher
// settings.
func FromAppConfig(cfg *config.Config) *Config {
	out := &Config{Channels: make(map[models.Channel]ChannelSettings, len(models.AllChannels))}
	for _, ch := range models.AllChannels {
		cc := config.GetChannelConfig(cfg, string(ch))
		out.Channels[ch] = ChannelSettings{
			Workers:    cc.Workers,
			Timeout:    config.GetDuration(cc.TimeoutMs),
			MaxRetries: cc.MaxRetries,
			Backoff:    config.GetDuration(cc.BackoffMs),
		}
	}
	return out
}

// Settings returns the channel's settings with safe fallbacks.
func (c *Config) Settings(ch models.Channel) ChannelSettings {
	if c != nil {
		if s, ok := c.Channels[ch]; ok {
			return applySettingsDefaults(s)
		}
	}
	return applySettingsDefaults(ChannelSettings{})
}

func applySettingsDefaults(s ChannelSettings) ChannelSettings {
	if s.Workers <= 0 {
		s.Workers = 5
	}
	if s.Timeout <= 0 {
		s.Timeout = 10 * time.Second
	}
	if s.MaxRetries < 0 {
		s.MaxRetries = 0
	}
	if s.Backoff <= 0 {
		s.Backoff = 500 * time.Millisecond
	}
	return s
}
