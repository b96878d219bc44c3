// internal/common/config/config.go
package config

import "fmt"

// Config is the main application configuration struct.
type Config struct {
	App       AppConfig                 `mapstructure:"app"`
	Database  DatabaseConfig            `mapstructure:"database"`
	Channels  map[string]ChannelConfig  `mapstructure:"channels"`
	Email     EmailConfig               `mapstructure:"email"`
	SMS       SMSConfig                 `mapstructure:"sms"`
	Push      PushConfig                `mapstructure:"push"`
	InApp     InAppConfig               `mapstructure:"inapp"`
	Scheduler SchedulerConfig           `mapstructure:"scheduler"`
	Analytics AnalyticsConfig           `mapstructure:"analytics"`
	Logging   LoggingConfig             `mapstructure:"logging"`
	Metrics   MetricsConfig             `mapstructure:"metrics"`
}

// --- Core App/Infrastructure Config ---

type AppConfig struct {
	Name        string `mapstructure:"name"`
	Version     string `mapstructure:"version"`
	Environment string `mapstructure:"environment"`
}

type DatabaseConfig struct {
	Postgres      PostgresConfig      `mapstructure:"postgres"`
	Redis         RedisConfig         `mapstructure:"redis"`
	Elasticsearch ElasticsearchConfig `mapstructure:"elasticsearch"`
}

type PostgresConfig struct {
	Host           string `mapstructure:"host"`
	Port           int    `mapstructure:"port"`
	Database       string `mapstructure:"database"`
	User           string `mapstructure:"user"`
	Password       string `mapstructure:"password"`
	MaxConnections int    `mapstructure:"max_connections"`
	MaxIdle        int    `mapstructure:"max_idle"`
	SSLMode        string `mapstructure:"sslmode"`
}

// GetDSN returns the PostgreSQL connection string.
func (p PostgresConfig) GetDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		p.Host, p.Port, p.User, p.Password, p.Database, p.SSLMode,
	)
}

type RedisConfig struct {
	Address  string `mapstructure:"address"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type ElasticsearchConfig struct {
	Addresses []string `mapstructure:"addresses"`
	Username  string   `mapstructure:"username"`
	Password  string   `mapstructure:"password"`
	Enabled   bool     `mapstructure:"enabled"`
	Index     string   `mapstructure:"index"` // engagement event index
}

// --- Channel Configuration ---

// ChannelConfig holds the dispatch settings applicable to every channel:
// pool size, per-send timeout and the retry budget for failed attempts.
type ChannelConfig struct {
	Enabled    bool `mapstructure:"enabled"`
	Workers    int  `mapstructure:"workers"`
	TimeoutMs  int  `mapstructure:"timeout_ms"`
	MaxRetries int  `mapstructure:"max_retries"`
	BackoffMs  int  `mapstructure:"backoff_ms"`
}

type EmailConfig struct {
	AWSRegion string `mapstructure:"aws_region"`
	FromEmail string `mapstructure:"from_email"`
}

type SMSConfig struct {
	AWSRegion string `mapstructure:"aws_region"`
	SenderID  string `mapstructure:"sender_id"`
}

type PushConfig struct {
	GatewayURL string `mapstructure:"gateway_url"`
	APIKey     string `mapstructure:"api_key"`
}

type InAppConfig struct {
	ChannelPrefix string `mapstructure:"channel_prefix"` // redis pub/sub channel prefix
}

// --- Engine Configuration ---

type SchedulerConfig struct {
	PollIntervalMs int `mapstructure:"poll_interval_ms"`
	BatchSize      int `mapstructure:"batch_size"`
}

type AnalyticsConfig struct {
	// Counting rule for unique views: "lifetime" or "window".
	ViewCounting string `mapstructure:"view_counting"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	Output string `mapstructure:"output"`
}

type MetricsConfig struct {
	Enabled bool `mapstructure:"enabled"`
	Port    int  `mapstructure:"port"`
}
