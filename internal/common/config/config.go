// Package config provides configuration management for the redelivery demo relay.
// It supports loading configuration from environment variables, config files, and defaults.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/gitoutofhere7/japan-post-demo/internal/common/logger"
)

// Config holds all configuration sections.
type Config struct {
	Server   ServerConfig         `mapstructure:"server"`
	Provider ProviderConfig       `mapstructure:"provider"`
	Relay    RelayConfig          `mapstructure:"relay"`
	Events   EventsConfig         `mapstructure:"events"`
	Logging  logger.LoggingConfig `mapstructure:"logging"`
	Tracing  TracingConfig        `mapstructure:"tracing"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host         string `mapstructure:"host"`
	Port         int    `mapstructure:"port"`
	ReadTimeout  int    `mapstructure:"readTimeout"`  // in seconds
	WriteTimeout int    `mapstructure:"writeTimeout"` // in seconds, 0 disables (required for long SSE runs)
}

// ProviderConfig holds the browser-automation provider settings.
type ProviderConfig struct {
	BaseURL        string `mapstructure:"baseUrl"`
	APIKey         string `mapstructure:"apiKey"`
	TargetURL      string `mapstructure:"targetUrl"`
	Mode           string `mapstructure:"mode"`
	TimeoutMS      int    `mapstructure:"timeoutMs"`      // automation budget passed to the provider
	ConnectTimeout int    `mapstructure:"connectTimeout"` // in seconds, time to receive response headers
	MaxFrameBytes  int    `mapstructure:"maxFrameBytes"`  // longest accepted stream line; longer frames are dropped
}

// RelayConfig holds run orchestration settings.
type RelayConfig struct {
	// AbandonAsError makes a provider stream that ends without COMPLETE or ERROR
	// surface as a fatal ERROR event instead of a silent close.
	AbandonAsError    bool `mapstructure:"abandonAsError"`
	MaxConcurrentRuns int  `mapstructure:"maxConcurrentRuns"` // 0 means unlimited
	RunsPerMinute     int  `mapstructure:"runsPerMinute"`     // 0 means unlimited
}

// EventsConfig selects the run lifecycle event bus.
type EventsConfig struct {
	// NATSURL switches from the in-memory bus to NATS when set.
	NATSURL       string `mapstructure:"natsUrl"`
	ClientID      string `mapstructure:"clientId"`
	MaxReconnects int    `mapstructure:"maxReconnects"`
	SubjectPrefix string `mapstructure:"subjectPrefix"`
}

// TracingConfig holds OpenTelemetry settings.
type TracingConfig struct {
	OTLPEndpoint string `mapstructure:"otlpEndpoint"` // empty disables tracing
	ServiceName  string `mapstructure:"serviceName"`
}

// ReadTimeoutDuration returns the read timeout as a time.Duration.
func (s *ServerConfig) ReadTimeoutDuration() time.Duration {
	return time.Duration(s.ReadTimeout) * time.Second
}

// WriteTimeoutDuration returns the write timeout as a time.Duration.
func (s *ServerConfig) WriteTimeoutDuration() time.Duration {
	return time.Duration(s.WriteTimeout) * time.Second
}

// Addr returns the listen address.
func (s *ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// ConnectTimeoutDuration returns the provider connect timeout as a time.Duration.
func (p *ProviderConfig) ConnectTimeoutDuration() time.Duration {
	return time.Duration(p.ConnectTimeout) * time.Second
}

// setDefaults configures default values for all configuration options.
func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 3000)
	v.SetDefault("server.readTimeout", 30)
	v.SetDefault("server.writeTimeout", 0)

	v.SetDefault("provider.baseUrl", "https://agent.tinyfish.ai")
	v.SetDefault("provider.apiKey", "")
	v.SetDefault("provider.targetUrl", "https://trackings.post.japanpost.jp/delivery/deli/firstDeliveryInput/")
	v.SetDefault("provider.mode", "stealth")
	v.SetDefault("provider.timeoutMs", 90000)
	v.SetDefault("provider.connectTimeout", 30)
	v.SetDefault("provider.maxFrameBytes", 16*1024*1024)

	v.SetDefault("relay.abandonAsError", true)
	v.SetDefault("relay.maxConcurrentRuns", 8)
	v.SetDefault("relay.runsPerMinute", 30)

	// Empty URL means use the in-memory event bus
	v.SetDefault("events.natsUrl", "")
	v.SetDefault("events.clientId", "redelivery-relay")
	v.SetDefault("events.maxReconnects", 10)
	v.SetDefault("events.subjectPrefix", "relay")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", logger.DetectFormat())
	v.SetDefault("logging.outputPath", "stdout")
	v.SetDefault("logging.maxSizeMb", 50)
	v.SetDefault("logging.maxBackups", 3)

	v.SetDefault("tracing.otlpEndpoint", "")
	v.SetDefault("tracing.serviceName", "redelivery-relay")
}

// Load reads configuration from environment variables, config file, and defaults.
// Environment variables use the prefix RELAY_ with dots replaced by underscores.
func Load() (*Config, error) {
	return LoadWithPath("")
}

// LoadWithPath reads configuration from the specified path or default locations.
func LoadWithPath(configPath string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetEnvPrefix("RELAY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// AutomaticEnv does not map camelCase keys, bind those explicitly.
	_ = v.BindEnv("provider.apiKey", "RELAY_PROVIDER_API_KEY", "TINYFISH_API_KEY")
	_ = v.BindEnv("provider.baseUrl", "RELAY_PROVIDER_BASE_URL")
	_ = v.BindEnv("provider.targetUrl", "RELAY_PROVIDER_TARGET_URL")
	_ = v.BindEnv("provider.timeoutMs", "RELAY_PROVIDER_TIMEOUT_MS")
	_ = v.BindEnv("provider.maxFrameBytes", "RELAY_PROVIDER_MAX_FRAME_BYTES")
	_ = v.BindEnv("relay.abandonAsError", "RELAY_ABANDON_AS_ERROR")
	_ = v.BindEnv("relay.maxConcurrentRuns", "RELAY_MAX_CONCURRENT_RUNS")
	_ = v.BindEnv("relay.runsPerMinute", "RELAY_RUNS_PER_MINUTE")
	_ = v.BindEnv("events.natsUrl", "RELAY_EVENTS_NATS_URL", "NATS_URL")
	_ = v.BindEnv("tracing.otlpEndpoint", "OTEL_EXPORTER_OTLP_ENDPOINT")

	v.SetConfigName("config")
	v.SetConfigType("yaml")

	if configPath != "" {
		v.AddConfigPath(configPath)
	}
	v.AddConfigPath(".")
	v.AddConfigPath("/etc/redelivery-demo/")

	// Read config file (ignore if not found)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// validate checks that all required configuration fields are set.
// A missing provider API key is not an error here; runs fail with the
// provider's 401 instead, which keeps the demo page usable for smoke tests.
func validate(cfg *Config) error {
	var errs []string

	if cfg.Server.Port <= 0 || cfg.Server.Port > 65535 {
		errs = append(errs, "server.port must be between 1 and 65535")
	}
	if cfg.Server.ReadTimeout < 0 || cfg.Server.WriteTimeout < 0 {
		errs = append(errs, "server timeouts must not be negative")
	}

	if !strings.HasPrefix(cfg.Provider.BaseURL, "http://") && !strings.HasPrefix(cfg.Provider.BaseURL, "https://") {
		errs = append(errs, "provider.baseUrl must be an http(s) URL")
	}
	if cfg.Provider.TargetURL == "" {
		errs = append(errs, "provider.targetUrl is required")
	}
	if cfg.Provider.TimeoutMS <= 0 {
		errs = append(errs, "provider.timeoutMs must be positive")
	}
	if cfg.Provider.ConnectTimeout <= 0 {
		errs = append(errs, "provider.connectTimeout must be positive")
	}
	if cfg.Provider.MaxFrameBytes < 1024 {
		errs = append(errs, "provider.maxFrameBytes must be at least 1024")
	}

	if cfg.Relay.MaxConcurrentRuns < 0 {
		errs = append(errs, "relay.maxConcurrentRuns must not be negative")
	}
	if cfg.Relay.RunsPerMinute < 0 {
		errs = append(errs, "relay.runsPerMinute must not be negative")
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(cfg.Logging.Level)] {
		errs = append(errs, "logging.level must be one of: debug, info, warn, error")
	}
	validFormats := map[string]bool{"json": true, "text": true, "console": true}
	if !validFormats[strings.ToLower(cfg.Logging.Format)] {
		errs = append(errs, "logging.format must be one of: json, text")
	}

	if len(errs) > 0 {
		return fmt.Errorf("%s", strings.Join(errs, "; "))
	}

	return nil
}
