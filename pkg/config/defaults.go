package config

import (
	"time"

	"github.com/hyp3rd/otlpexport/internal/constants"
)

const (
	defaultMaxAttempts       = 5
	defaultInitialBackoff    = time.Second
	defaultMaxBackoff        = 5 * time.Second
	defaultBackoffMultiplier = 1.5
	defaultThrottleBurst     = 5
)

// DefaultConfig returns a Config populated with production-safe defaults.
func DefaultConfig() Config {
	return Config{
		Exporter: ExporterConfig{
			Protocol:    "grpc",
			Signals:     []string{"span", "metric", "log"},
			Timeout:     constants.DefaultExportTimeout,
			Compression: "none",
			Retry: RetryConfig{
				Enabled:           false,
				MaxAttempts:       defaultMaxAttempts,
				InitialBackoff:    defaultInitialBackoff,
				MaxBackoff:        defaultMaxBackoff,
				BackoffMultiplier: defaultBackoffMultiplier,
			},
		},
		Logging: LoggingConfig{
			Level:            "info",
			Format:           "json",
			Adapter:          "slog",
			Output:           "stderr",
			SampleRatio:      1.0,
			ThrottleBurst:    defaultThrottleBurst,
			ThrottleInterval: time.Minute,
		},
		Diagnostics: DiagnosticsConfig{
			Enabled:  false,
			HTTPAddr: "127.0.0.1:14271",
		},
	}
}
