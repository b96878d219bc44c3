// internal/dispatch/config_test.go
package dispatch

import (
	"testing"
	"time"

	"school-notify/internal/common/config"
	"school-notify/internal/models"

	"github.com/stretchr/testify/assert"
)

func TestConfig_SettingsDefaults(t *testing.T) {
	tests := []struct {
		name string
		cfg  *Config
	}{
		{name: "nil config", cfg: nil},
		{name: "empty config", cfg: &Config{}},
		{
			name: "channel not configured",
			cfg:  &Config{Channels: map[models.Channel]ChannelSettings{models.ChannelEmail: {Workers: 2}}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := tt.cfg.Settings(models.ChannelSMS)
			assert.Equal(t, 5, s.Workers)
			assert.Equal(t, 10*time.Second, s.Timeout)
			assert.Equal(t, 0, s.MaxRetries)
			assert.Equal(t, 500*time.Millisecond, s.Backoff)
		})
	}
}

func TestConfig_SettingsConfigured(t *testing.T) {
	cfg := &Config{Channels: map[models.Channel]ChannelSettings{
		models.ChannelEmail: {Workers: 2, Timeout: 3 * time.Second, MaxRetries: 4, Backoff: time.Second},
	}}

	s := cfg.Settings(models.ChannelEmail)
	assert.Equal(t, 2, s.Workers)
	assert.Equal(t, 3*time.Second, s.Timeout)
	assert.Equal(t, 4, s.MaxRetries)
	assert.Equal(t, time.Second, s.Backoff)
}

func TestConfig_SettingsPartialFallback(t *testing.T) {
	cfg := &Config{Channels: map[models.Channel]ChannelSettings{
		models.ChannelPush: {Workers: 8},
	}}

	s := cfg.Settings(models.ChannelPush)
	assert.Equal(t, 8, s.Workers)
	assert.Equal(t, 10*time.Second, s.Timeout)
}

func TestFromAppConfig(t *testing.T) {
	appCfg := &config.Config{
		Channels: map[string]config.ChannelConfig{
			"email": {Enabled: true, Workers: 3, TimeoutMs: 2000, MaxRetries: 2, BackoffMs: 250},
		},
	}

	cfg := FromAppConfig(appCfg)

	email := cfg.Settings(models.ChannelEmail)
	assert.Equal(t, 3, email.Workers)
	assert.Equal(t, 2*time.Second, email.Timeout)
	assert.Equal(t, 2, email.MaxRetries)
	assert.Equal(t, 250*time.Millisecond, email.Backoff)

	// unconfigured channels pick up the loader defaults
	sms := cfg.Settings(models.ChannelSMS)
	assert.Equal(t, 5, sms.Workers)
	assert.Equal(t, 3, sms.MaxRetries)
}
