package otlp

import (
	"context"

	collogspb "go.opentelemetry.io/proto/otlp/collector/logs/v1"
	colmetricpb "go.opentelemetry.io/proto/otlp/collector/metrics/v1"
	coltracepb "go.opentelemetry.io/proto/otlp/collector/trace/v1"

	"github.com/hyp3rd/otlpexport/pkg/completion"
	"github.com/hyp3rd/otlpexport/pkg/exporter"
	"github.com/hyp3rd/otlpexport/pkg/exportmetrics"
)

// TraceExporter exports span batches.
type TraceExporter struct {
	transport exporter.Exporter
}

// NewTraceExporter wraps an already built transport.
func NewTraceExporter(transport exporter.Exporter) *TraceExporter {
	return &TraceExporter{transport: transport}
}

// Export sends req, counting its spans.
func (e *TraceExporter) Export(ctx context.Context, req *coltracepb.ExportTraceServiceRequest) *completion.Token {
	return e.transport.Export(ctx, req, SpanCount(req))
}

// Shutdown releases the transport.
func (e *TraceExporter) Shutdown(ctx context.Context) *completion.Token {
	return e.transport.Shutdown(ctx)
}

// Status returns the transport totals.
func (e *TraceExporter) Status() exportmetrics.Status {
	return e.transport.Status()
}

// MetricExporter exports metric batches.
type MetricExporter struct {
	transport exporter.Exporter
}

// NewMetricExporter wraps an already built transport.
func NewMetricExporter(transport exporter.Exporter) *MetricExporter {
	return &MetricExporter{transport: transport}
}

// Export sends req, counting its metrics.
func (e *MetricExporter) Export(ctx context.Context, req *colmetricpb.ExportMetricsServiceRequest) *completion.Token {
	return e.transport.Export(ctx, req, MetricCount(req))
}

// Shutdown releases the transport.
func (e *MetricExporter) Shutdown(ctx context.Context) *completion.Token {
	return e.transport.Shutdown(ctx)
}

// Status returns the transport totals.
func (e *MetricExporter) Status() exportmetrics.Status {
	return e.transport.Status()
}

// LogExporter exports log record batches.
type LogExporter struct {
	transport exporter.Exporter
}

// NewLogExporter wraps an already built transport.
func NewLogExporter(transport exporter.Exporter) *LogExporter {
	return &LogExporter{transport: transport}
}

// Export sends req, counting its log records.
func (e *LogExporter) Export(ctx context.Context, req *collogspb.ExportLogsServiceRequest) *completion.Token {
	return e.transport.Export(ctx, req, LogRecordCount(req))
}

// Shutdown releases the transport.
func (e *LogExporter) Shutdown(ctx context.Context) *completion.Token {
	return e.transport.Shutdown(ctx)
}

// Status returns the transport totals.
func (e *LogExporter) Status() exportmetrics.Status {
	return e.transport.Status()
}

// SpanCount returns the number of spans in req.
func SpanCount(req *coltracepb.ExportTraceServiceRequest) int {
	total := 0

	for _, rs := range req.GetResourceSpans() {
		for _, ss := range rs.GetScopeSpans() {
			total += len(ss.GetSpans())
		}
	}

	return total
}

// MetricCount returns the number of metrics in req.
func MetricCount(req *colmetricpb.ExportMetricsServiceRequest) int {
	total := 0

	for _, rm := range req.GetResourceMetrics() {
		for _, sm := range rm.GetScopeMetrics() {
			total += len(sm.GetMetrics())
		}
	}

	return total
}

// LogRecordCount returns the number of log records in req.
func LogRecordCount(req *collogspb.ExportLogsServiceRequest) int {
	total := 0

	for _, rl := range req.GetResourceLogs() {
		for _, sl := range rl.GetScopeLogs() {
			total += len(sl.GetLogRecords())
		}
	}

	return total
}
