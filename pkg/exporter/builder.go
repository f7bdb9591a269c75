// Package exporter delivers serialized OTLP batches to a collector over gRPC or HTTP.
//
// A Builder validates configuration and produces an Exporter. Export never blocks: it
// returns a completion.Token that resolves once the network call settles. Failures are
// reported through the token and through throttled log lines, never as return values.
package exporter

import (
	"bytes"
	"crypto/tls"
	"net/url"
	"strings"
	"time"

	"github.com/hyp3rd/ewrap"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"

	"github.com/hyp3rd/otlpexport/internal/constants"
	"github.com/hyp3rd/otlpexport/pkg/logging"
	"github.com/hyp3rd/otlpexport/pkg/retry"
	"github.com/hyp3rd/otlpexport/pkg/trust"
)

const compressionGzip = "gzip"

var (
	// ErrInvalidEndpoint is returned for endpoints that are not absolute http or https URIs.
	ErrInvalidEndpoint = ewrap.New("invalid endpoint").WithContext(
		&ewrap.ErrorContext{
			Severity: ewrap.SeverityError,
			Type:     ewrap.ErrorTypeConfiguration,
		},
	)

	// ErrInvalidTrustMaterial is returned when trusted certificates cannot be parsed.
	ErrInvalidTrustMaterial = trust.ErrInvalidTrustMaterial

	// ErrInvalidRetryPolicy is returned when a retry policy is out of bounds.
	ErrInvalidRetryPolicy = retry.ErrInvalidPolicy
)

// Settings is the validated configuration of one exporter. Exporters keep their own
// copy, so changing a Builder after Build does not affect them.
type Settings struct {
	Signal             Signal
	Protocol           Protocol
	Endpoint           string
	Timeout            time.Duration
	CompressionEnabled bool
	Headers            Headers
	TrustedCertificate []byte
	// RetryPolicy is nil when a failed attempt must fail the export immediately.
	RetryPolicy   *retry.Policy
	MeterProvider metric.MeterProvider
	Logger        logging.Adapter
}

func (s Settings) clone() Settings {
	out := s
	out.Headers = s.Headers.clone()

	out.TrustedCertificate = bytes.Clone(s.TrustedCertificate)

	if s.RetryPolicy != nil {
		policy := *s.RetryPolicy
		out.RetryPolicy = &policy
	}

	return out
}

// Builder accumulates exporter settings. Each setter validates its argument and returns
// the same builder; the first failure sticks and is reported by Err and Build.
type Builder struct {
	settings Settings
	err      error
}

// NewBuilder returns a builder for signal over protocol with default settings: the local
// collector endpoint, a 10s timeout, no compression, no retries, no-op metrics.
func NewBuilder(signal Signal, protocol Protocol) *Builder {
	return &Builder{
		settings: Settings{
			Signal:        signal,
			Protocol:      protocol,
			Endpoint:      signal.DefaultEndpoint(protocol),
			Timeout:       constants.DefaultExportTimeout,
			MeterProvider: noop.NewMeterProvider(),
			Logger:        logging.NewNoopAdapter(),
		},
	}
}

// SetProtocol switches the transport. The endpoint resets to the protocol default
// unless one was set explicitly.
func (b *Builder) SetProtocol(protocol Protocol) *Builder {
	if b.settings.Endpoint == b.settings.Signal.DefaultEndpoint(b.settings.Protocol) {
		b.settings.Endpoint = b.settings.Signal.DefaultEndpoint(protocol)
	}

	b.settings.Protocol = protocol

	return b
}

// SetEndpoint validates and stores the collector endpoint.
func (b *Builder) SetEndpoint(endpoint string) *Builder {
	normalized, err := normalizeEndpoint(endpoint)
	if err != nil {
		return b.fail(err)
	}

	b.settings.Endpoint = normalized

	return b
}

// SetTimeout sets the per-call deadline. Zero or negative disables it; the value is kept.
func (b *Builder) SetTimeout(timeout time.Duration) *Builder {
	b.settings.Timeout = timeout

	return b
}

// SetCompression enables gzip when method is "gzip". Any other method disables compression.
func (b *Builder) SetCompression(method string) *Builder {
	b.settings.CompressionEnabled = method == compressionGzip

	return b
}

// AddHeader appends an extra header sent with every request. Repeated keys are all sent.
func (b *Builder) AddHeader(key, value string) *Builder {
	b.settings.Headers.Add(key, value)

	return b
}

// SetTrustedCertificates replaces the system trust store with the given PEM certificates.
// The bytes are parsed by Build.
func (b *Builder) SetTrustedCertificates(pem []byte) *Builder {
	b.settings.TrustedCertificate = bytes.Clone(pem)

	return b
}

// SetRetryPolicy enables retries under policy.
func (b *Builder) SetRetryPolicy(policy retry.Policy) *Builder {
	err := policy.Validate()
	if err != nil {
		return b.fail(err)
	}

	b.settings.RetryPolicy = &policy

	return b
}

// SetMeterProvider sets the provider the export counters are created from.
func (b *Builder) SetMeterProvider(mp metric.MeterProvider) *Builder {
	if mp == nil {
		mp = noop.NewMeterProvider()
	}

	b.settings.MeterProvider = mp

	return b
}

// SetLogger sets the log sink. Build wraps it in a ThrottledAdapter unless it already is one.
func (b *Builder) SetLogger(logger logging.Adapter) *Builder {
	if logger == nil {
		logger = logging.NewNoopAdapter()
	}

	b.settings.Logger = logger

	return b
}

// Err returns the first error recorded by a setter.
func (b *Builder) Err() error {
	return b.err
}

// Settings returns a copy of the accumulated settings.
func (b *Builder) Settings() Settings {
	return b.settings.clone()
}

// Build constructs the exporter for the configured protocol. It performs no network I/O.
func (b *Builder) Build() (Exporter, error) {
	if b.settings.Protocol == ProtocolHTTP {
		exp, err := b.BuildHTTP()
		if err != nil {
			return nil, err
		}

		return exp, nil
	}

	exp, err := b.BuildGRPC()
	if err != nil {
		return nil, err
	}

	return exp, nil
}

func (b *Builder) fail(err error) *Builder {
	if b.err == nil {
		b.err = err
	}

	return b
}

// prepare returns the settings to build from, the parsed endpoint and the TLS config
// (nil when the endpoint is plain http).
func (b *Builder) prepare() (Settings, *url.URL, *tls.Config, error) {
	if b.err != nil {
		return Settings{}, nil, nil, b.err
	}

	settings := b.settings.clone()

	endpoint, err := url.Parse(settings.Endpoint)
	if err != nil {
		return Settings{}, nil, nil, ewrap.Wrapf(ErrInvalidEndpoint, "parse %q: %v", settings.Endpoint, err)
	}

	var tlsConfig *tls.Config

	if settings.TrustedCertificate != nil {
		tlsConfig, err = trust.Build(settings.TrustedCertificate)
		if err != nil {
			return Settings{}, nil, nil, err
		}
	}

	if endpoint.Scheme == "https" && tlsConfig == nil {
		tlsConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}

	if endpoint.Scheme != "https" {
		tlsConfig = nil
	}

	if _, ok := settings.Logger.(*logging.ThrottledAdapter); !ok {
		settings.Logger = logging.NewThrottledAdapter(settings.Logger)
	}

	return settings, endpoint, tlsConfig, nil
}

func normalizeEndpoint(raw string) (string, error) {
	raw = strings.TrimSpace(raw)

	endpoint, err := url.Parse(raw)
	if err != nil {
		return "", ewrap.Wrapf(ErrInvalidEndpoint, "parse %q: %v", raw, err)
	}

	if !endpoint.IsAbs() || endpoint.Host == "" {
		return "", ewrap.Wrapf(ErrInvalidEndpoint, "%q is not an absolute URI", raw)
	}

	if endpoint.Scheme != "http" && endpoint.Scheme != "https" {
		return "", ewrap.Wrapf(ErrInvalidEndpoint, "%q must start with http:// or https://", raw)
	}

	return endpoint.String(), nil
}
