package config

import "time"

// Config holds relay configuration values.
type Config struct {
	Addr              string        `mapstructure:"addr" yaml:"addr"`
	ReadHeaderTimeout time.Duration `mapstructure:"read_header_timeout" yaml:"read_header_timeout"`
	ShutdownTimeout   time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout"`

	DatabasePath string `mapstructure:"database_path" yaml:"database_path"`

	// AuthKey is the shared secret mailbox tokens are signed with.
	AuthKey       string `mapstructure:"auth_key" yaml:"auth_key"`
	TokenIssuer   string `mapstructure:"token_issuer" yaml:"token_issuer"`
	TokenAudience string `mapstructure:"token_audience" yaml:"token_audience"`
	BcryptCost    int    `mapstructure:"bcrypt_cost" yaml:"bcrypt_cost"`

	LogLevel  string `mapstructure:"log_level" yaml:"log_level"`
	LogFormat string `mapstructure:"log_format" yaml:"log_format"`

	RetryBackoff       time.Duration `mapstructure:"retry_backoff" yaml:"retry_backoff"`
	LongPollTimeout    time.Duration `mapstructure:"long_poll_timeout" yaml:"long_poll_timeout"`
	MaxFramesPerMinute int           `mapstructure:"max_frames_per_minute" yaml:"max_frames_per_minute"`
	MaxFrameBytes      int64         `mapstructure:"max_frame_bytes" yaml:"max_frame_bytes"`
}

// Default returns configuration with reasonable starter defaults.
func Default() Config {
	return Config{
		Addr:               ":50000",
		ReadHeaderTimeout:  5 * time.Second,
		ShutdownTimeout:    5 * time.Second,
		DatabasePath:       "wirerelay.db",
		AuthKey:            "change-me",
		TokenIssuer:        "wirerelay",
		TokenAudience:      "wirerelay-mailbox",
		BcryptCost:         10,
		LogLevel:           "info",
		LogFormat:          "console",
		RetryBackoff:       time.Second,
		LongPollTimeout:    25 * time.Second,
		MaxFramesPerMinute: 600,
		MaxFrameBytes:      64 << 10,
	}
}

// UpdateFrom overwrites non-zero values from other config into receiver.
func (c *Config) UpdateFrom(other Config) {
	if other.Addr != "" {
		c.Addr = other.Addr
	}
	if other.ReadHeaderTimeout != 0 {
		c.ReadHeaderTimeout = other.ReadHeaderTimeout
	}
	if other.ShutdownTimeout != 0 {
		c.ShutdownTimeout = other.ShutdownTimeout
	}
	if other.DatabasePath != "" {
		c.DatabasePath = other.DatabasePath
	}
	if other.AuthKey != "" {
		c.AuthKey = other.AuthKey
	}
	if other.LogLevel != "" {
		c.LogLevel = other.LogLevel
	}
	if other.LogFormat != "" {
		c.LogFormat = other.LogFormat
	}
}
