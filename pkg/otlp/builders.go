// Package otlp provides signal-specific exporters on top of the exporter transport.
// Each exporter accepts typed OTLP requests and counts their items.
package otlp

import "github.com/hyp3rd/otlpexport/pkg/exporter"

// TraceExporterBuilder builds TraceExporters.
type TraceExporterBuilder struct {
	transport *exporter.Builder
}

// NewTraceExporterBuilder returns a builder for span export over protocol.
func NewTraceExporterBuilder(protocol exporter.Protocol) *TraceExporterBuilder {
	return &TraceExporterBuilder{transport: exporter.NewBuilder(exporter.SignalSpan, protocol)}
}

// TransportBuilder implements exporter.DelegatingBuilder.
func (b *TraceExporterBuilder) TransportBuilder() *exporter.Builder {
	return b.transport
}

// Build constructs the exporter.
func (b *TraceExporterBuilder) Build() (*TraceExporter, error) {
	transport, err := b.transport.Build()
	if err != nil {
		return nil, err
	}

	return &TraceExporter{transport: transport}, nil
}

// MetricExporterBuilder builds MetricExporters.
type MetricExporterBuilder struct {
	transport *exporter.Builder
}

// NewMetricExporterBuilder returns a builder for metric export over protocol.
func NewMetricExporterBuilder(protocol exporter.Protocol) *MetricExporterBuilder {
	return &MetricExporterBuilder{transport: exporter.NewBuilder(exporter.SignalMetric, protocol)}
}

// TransportBuilder implements exporter.DelegatingBuilder.
func (b *MetricExporterBuilder) TransportBuilder() *exporter.Builder {
	return b.transport
}

// Build constructs the exporter.
func (b *MetricExporterBuilder) Build() (*MetricExporter, error) {
	transport, err := b.transport.Build()
	if err != nil {
		return nil, err
	}

	return &MetricExporter{transport: transport}, nil
}

// LogExporterBuilder builds LogExporters.
type LogExporterBuilder struct {
	transport *exporter.Builder
}

// NewLogExporterBuilder returns a builder for log export over protocol.
func NewLogExporterBuilder(protocol exporter.Protocol) *LogExporterBuilder {
	return &LogExporterBuilder{transport: exporter.NewBuilder(exporter.SignalLog, protocol)}
}

// TransportBuilder implements exporter.DelegatingBuilder.
func (b *LogExporterBuilder) TransportBuilder() *exporter.Builder {
	return b.transport
}

// Build constructs the exporter.
func (b *LogExporterBuilder) Build() (*LogExporter, error) {
	transport, err := b.transport.Build()
	if err != nil {
		return nil, err
	}

	return &LogExporter{transport: transport}, nil
}

var (
	_ exporter.DelegatingBuilder = (*TraceExporterBuilder)(nil)
	_ exporter.DelegatingBuilder = (*MetricExporterBuilder)(nil)
	_ exporter.DelegatingBuilder = (*LogExporterBuilder)(nil)
)
