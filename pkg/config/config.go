// Package config defines the configuration structures for the exporter transport.
package config

import (
	"time"
)

// Config is the canonical configuration consumed by the otlpexport client.
type Config struct {
	Exporter    ExporterConfig    `yaml:"exporter"    json:"exporter"`
	Logging     LoggingConfig     `yaml:"logging"     json:"logging"`
	Diagnostics DiagnosticsConfig `yaml:"diagnostics" json:"diagnostics"`
}

// ExporterConfig describes one OTLP transport, shared by every configured signal.
type ExporterConfig struct {
	Protocol    string        `yaml:"protocol"    json:"protocol"`
	Signals     []string      `yaml:"signals"     json:"signals"`
	Endpoint    string        `yaml:"endpoint"    json:"endpoint"`
	Timeout     time.Duration `yaml:"timeout"     json:"timeout"`
	Compression string        `yaml:"compression" json:"compression"`
	// Headers holds "key=value" pairs. Order is preserved and keys may repeat.
	Headers []string    `yaml:"headers" json:"headers"`
	TLS     TLSConfig   `yaml:"tls"     json:"tls"`
	Retry   RetryConfig `yaml:"retry"   json:"retry"`
}

// RetryConfig specifies the retry policy applied beneath each export call.
type RetryConfig struct {
	Enabled           bool          `yaml:"enabled"            json:"enabled"`
	MaxAttempts       int           `yaml:"max_attempts"       json:"max_attempts"`
	InitialBackoff    time.Duration `yaml:"initial_backoff"    json:"initial_backoff"`
	MaxBackoff        time.Duration `yaml:"max_backoff"        json:"max_backoff"`
	BackoffMultiplier float64       `yaml:"backoff_multiplier" json:"backoff_multiplier"`
}

// TLSConfig carries trusted certificates, either as a file path or inline PEM.
type TLSConfig struct {
	CAFile string `yaml:"ca_file" json:"ca_file"`
	CAPEM  string `yaml:"ca_pem"  json:"ca_pem"`
}

// LoggingConfig controls structured log behavior.
type LoggingConfig struct {
	Level            string        `yaml:"level"             json:"level"`
	Format           string        `yaml:"format"            json:"format"`
	Adapter          string        `yaml:"adapter"           json:"adapter"`
	Output           string        `yaml:"output"            json:"output"`
	SampleRatio      float64       `yaml:"sample_ratio"      json:"sample_ratio"`
	ThrottleBurst    int           `yaml:"throttle_burst"    json:"throttle_burst"`
	ThrottleInterval time.Duration `yaml:"throttle_interval" json:"throttle_interval"`
}

// DiagnosticsConfig toggles self-observation endpoints.
type DiagnosticsConfig struct {
	Enabled   bool   `yaml:"enabled"    json:"enabled"`
	HTTPAddr  string `yaml:"http_addr"  json:"http_addr"`
	AuthToken string `yaml:"auth_token" json:"auth_token"`
}
