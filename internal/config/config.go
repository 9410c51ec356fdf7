// Package config loads process configuration from the environment via
// viper.AutomaticEnv, SetDefault and BindEnv, and fails fast at startup
// if either processor URL is unset.
package config

import (
	"errors"
	"time"

	"github.com/spf13/viper"
)

// ErrMissingProcessorURL is returned when a required upstream URL is
// unset after all defaults and env bindings have been applied.
var ErrMissingProcessorURL = errors.New("required payment processor URL is not set")

// Config is the full set of runtime knobs for the server.
type Config struct {
	NumWorkers int

	DefaultProcessorURL  string
	FallbackProcessorURL string
	DefaultTimeout       time.Duration
	FallbackTimeout      time.Duration
	UpstreamConcurrency  int64

	HealthSampleInterval time.Duration

	RedisURL string

	PurgeOnStart bool

	TelemetryEnabled bool
	TelemetryService string
	JaegerURL        string

	ServerHost string
	ServerPort int
}

// Load reads configuration from the environment via viper, applying
// defaults and env bindings for every knob before validating.
func Load() (*Config, error) {
	viper.AutomaticEnv()

	viper.SetDefault("num_workers", 8)
	viper.SetDefault("default_timeout_ms", 1000)
	viper.SetDefault("fallback_timeout_ms", 10000)
	viper.SetDefault("upstream_concurrency", 64)
	viper.SetDefault("health_sample_interval_ms", 5000)
	viper.SetDefault("redis_url", "redis://localhost:6379/0")
	viper.SetDefault("purge_on_start", true)
	viper.SetDefault("telemetry_enabled", false)
	viper.SetDefault("telemetry_service_name", "paydispatch")
	viper.SetDefault("jaeger_url", "http://jaeger:14268/api/traces")
	viper.SetDefault("server_host", "0.0.0.0")
	viper.SetDefault("server_port", 9999)

	_ = viper.BindEnv("num_workers", "NUM_WORKERS")
	_ = viper.BindEnv("default_processor_url", "PAYMENT_PROCESSOR_URL")
	_ = viper.BindEnv("fallback_processor_url", "FALLBACK_PAYMENT_PROCESSOR_URL")
	_ = viper.BindEnv("default_timeout_ms", "DEFAULT_PROCESSOR_TIMEOUT_MS")
	_ = viper.BindEnv("fallback_timeout_ms", "FALLBACK_PROCESSOR_TIMEOUT_MS")
	_ = viper.BindEnv("upstream_concurrency", "UPSTREAM_CONCURRENCY")
	_ = viper.BindEnv("health_sample_interval_ms", "HEALTH_SAMPLE_INTERVAL_MS")
	_ = viper.BindEnv("redis_url", "REDIS_URL")
	_ = viper.BindEnv("purge_on_start", "PURGE_ON_START")
	_ = viper.BindEnv("telemetry_enabled", "TELEMETRY_ENABLED")
	_ = viper.BindEnv("telemetry_service_name", "TELEMETRY_SERVICE_NAME")
	_ = viper.BindEnv("jaeger_url", "JAEGER_URL")
	_ = viper.BindEnv("server_host", "SERVER_HOST")
	_ = viper.BindEnv("server_port", "SERVER_PORT")

	cfg := &Config{
		NumWorkers:           viper.GetInt("num_workers"),
		DefaultProcessorURL:  viper.GetString("default_processor_url"),
		FallbackProcessorURL: viper.GetString("fallback_processor_url"),
		DefaultTimeout:       time.Duration(viper.GetInt("default_timeout_ms")) * time.Millisecond,
		FallbackTimeout:      time.Duration(viper.GetInt("fallback_timeout_ms")) * time.Millisecond,
		UpstreamConcurrency:  viper.GetInt64("upstream_concurrency"),
		HealthSampleInterval: time.Duration(viper.GetInt("health_sample_interval_ms")) * time.Millisecond,
		RedisURL:             viper.GetString("redis_url"),
		PurgeOnStart:         viper.GetBool("purge_on_start"),
		TelemetryEnabled:     viper.GetBool("telemetry_enabled"),
		TelemetryService:     viper.GetString("telemetry_service_name"),
		JaegerURL:            viper.GetString("jaeger_url"),
		ServerHost:           viper.GetString("server_host"),
		ServerPort:           viper.GetInt("server_port"),
	}

	if cfg.DefaultProcessorURL == "" || cfg.FallbackProcessorURL == "" {
		return nil, ErrMissingProcessorURL
	}

	return cfg, nil
}
