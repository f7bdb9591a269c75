package config

import (
	"strings"

	"github.com/hyp3rd/ewrap"
)

// Header is a single parsed "key=value" pair from ExporterConfig.Headers.
type Header struct {
	Key   string
	Value string
}

// Validate asserts that the config meets baseline expectations.
// Endpoint syntax and trust material are checked later, when the exporter is built.
func Validate(cfg Config) error {
	switch strings.ToLower(cfg.Exporter.Protocol) {
	case "grpc", "http":
	default:
		return invalidConfigError("unsupported exporter.protocol %q", cfg.Exporter.Protocol)
	}

	if len(cfg.Exporter.Signals) == 0 {
		return invalidConfigError("exporter.signals must name at least one signal")
	}

	for _, signal := range cfg.Exporter.Signals {
		switch strings.ToLower(signal) {
		case "span", "metric", "log":
		default:
			return invalidConfigError("unsupported signal %q", signal)
		}
	}

	_, err := cfg.Exporter.ParsedHeaders()
	if err != nil {
		return err
	}

	if cfg.Exporter.TLS.CAFile != "" && cfg.Exporter.TLS.CAPEM != "" {
		return invalidConfigError("exporter.tls.ca_file and exporter.tls.ca_pem are mutually exclusive")
	}

	retry := cfg.Exporter.Retry
	if retry.Enabled {
		if retry.MaxAttempts < 1 {
			return invalidConfigError("exporter.retry.max_attempts must be >= 1, got %d", retry.MaxAttempts)
		}

		if retry.BackoffMultiplier < 1 {
			return invalidConfigError("exporter.retry.backoff_multiplier must be >= 1, got %f", retry.BackoffMultiplier)
		}
	}

	return nil
}

// ParsedHeaders splits the "key=value" header entries, preserving order and duplicates.
func (c ExporterConfig) ParsedHeaders() ([]Header, error) {
	if len(c.Headers) == 0 {
		return nil, nil
	}

	out := make([]Header, 0, len(c.Headers))
	for _, raw := range c.Headers {
		key, value, ok := strings.Cut(raw, "=")
		key = strings.TrimSpace(key)

		if !ok || key == "" {
			return nil, invalidConfigError("malformed header %q, expected key=value", raw)
		}

		out = append(out, Header{Key: key, Value: strings.TrimSpace(value)})
	}

	return out, nil
}

func invalidConfigError(format string, args ...any) error {
	return ewrap.Newf("invalid configuration: "+format, args...)
}
