package exporter

import (
	"net/url"

	"github.com/hyp3rd/ewrap"

	"github.com/hyp3rd/otlpexport/pkg/config"
	"github.com/hyp3rd/otlpexport/pkg/retry"
	"github.com/hyp3rd/otlpexport/pkg/trust"
)

// NewBuilderFromConfig returns a builder for signal populated from cfg. Errors are
// recorded on the builder and surface through Err and Build.
func NewBuilderFromConfig(signal Signal, cfg config.ExporterConfig) *Builder {
	protocol, err := ParseProtocol(cfg.Protocol)
	if err != nil {
		return NewBuilder(signal, ProtocolGRPC).fail(err)
	}

	b := NewBuilder(signal, protocol)
	ApplyConfig(b, cfg)

	return b
}

// ApplyConfig copies cfg onto b. The protocol of b is left unchanged.
func ApplyConfig(b *Builder, cfg config.ExporterConfig) {
	if cfg.Endpoint != "" {
		b.SetEndpoint(signalEndpoint(b.settings.Signal, b.settings.Protocol, cfg.Endpoint))
	}

	b.SetTimeout(cfg.Timeout)
	b.SetCompression(cfg.Compression)

	headers, err := cfg.ParsedHeaders()
	if err != nil {
		b.fail(err)

		return
	}

	for _, header := range headers {
		b.AddHeader(header.Key, header.Value)
	}

	switch {
	case cfg.TLS.CAPEM != "":
		b.SetTrustedCertificates([]byte(cfg.TLS.CAPEM))
	case cfg.TLS.CAFile != "":
		pem, err := trust.ReadPEMFile(cfg.TLS.CAFile)
		if err != nil {
			b.fail(ewrap.Wrap(ErrInvalidTrustMaterial, err.Error()))

			return
		}

		b.SetTrustedCertificates(pem)
	}

	if cfg.Retry.Enabled {
		b.SetRetryPolicy(retry.Policy{
			MaxAttempts:       cfg.Retry.MaxAttempts,
			InitialBackoff:    cfg.Retry.InitialBackoff,
			MaxBackoff:        cfg.Retry.MaxBackoff,
			BackoffMultiplier: cfg.Retry.BackoffMultiplier,
		})
	}
}

// signalEndpoint appends the signal path to a bare HTTP base endpoint such as
// "http://collector:4318".
func signalEndpoint(signal Signal, protocol Protocol, endpoint string) string {
	if protocol != ProtocolHTTP {
		return endpoint
	}

	u, err := url.Parse(endpoint)
	if err != nil || !u.IsAbs() {
		return endpoint
	}

	if u.Path == "" || u.Path == "/" {
		u.Path = signal.HTTPPath()
	}

	return u.String()
}
