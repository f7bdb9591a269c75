package exporter

import (
	"strings"

	"github.com/hyp3rd/ewrap"
	collogspb "go.opentelemetry.io/proto/otlp/collector/logs/v1"
	colmetricpb "go.opentelemetry.io/proto/otlp/collector/metrics/v1"
	coltracepb "go.opentelemetry.io/proto/otlp/collector/trace/v1"
	"google.golang.org/protobuf/proto"
)

// Signal identifies the kind of telemetry an exporter ships. It tags logs and metrics.
type Signal string

const (
	// SignalSpan ships trace spans.
	SignalSpan Signal = "span"
	// SignalMetric ships metric data points.
	SignalMetric Signal = "metric"
	// SignalLog ships log records.
	SignalLog Signal = "log"
)

// Protocol selects the transport an exporter uses.
type Protocol string

const (
	// ProtocolGRPC is OTLP over gRPC.
	ProtocolGRPC Protocol = "grpc"
	// ProtocolHTTP is OTLP over HTTP with protobuf bodies.
	ProtocolHTTP Protocol = "http"
)

const (
	defaultGRPCEndpoint = "http://localhost:4317"
	defaultHTTPBase     = "http://localhost:4318"
)

// ParseSignal converts a configuration string into a Signal.
func ParseSignal(raw string) (Signal, error) {
	switch Signal(strings.ToLower(strings.TrimSpace(raw))) {
	case SignalSpan:
		return SignalSpan, nil
	case SignalMetric:
		return SignalMetric, nil
	case SignalLog:
		return SignalLog, nil
	default:
		return "", ewrap.Newf("unsupported signal %q", raw)
	}
}

// ParseProtocol converts a configuration string into a Protocol.
func ParseProtocol(raw string) (Protocol, error) {
	switch Protocol(strings.ToLower(strings.TrimSpace(raw))) {
	case ProtocolGRPC, "":
		return ProtocolGRPC, nil
	case ProtocolHTTP:
		return ProtocolHTTP, nil
	default:
		return "", ewrap.Newf("unsupported protocol %q", raw)
	}
}

// Plural returns the name used in log lines, e.g. "spans".
func (s Signal) Plural() string {
	return string(s) + "s"
}

// GRPCMethod returns the full method name of the collector's Export RPC for s.
func (s Signal) GRPCMethod() string {
	switch s {
	case SignalMetric:
		return "/opentelemetry.proto.collector.metrics.v1.MetricsService/Export"
	case SignalLog:
		return "/opentelemetry.proto.collector.logs.v1.LogsService/Export"
	default:
		return "/opentelemetry.proto.collector.trace.v1.TraceService/Export"
	}
}

// HTTPPath returns the collector's HTTP path for s.
func (s Signal) HTTPPath() string {
	switch s {
	case SignalMetric:
		return "/v1/metrics"
	case SignalLog:
		return "/v1/logs"
	default:
		return "/v1/traces"
	}
}

// DefaultEndpoint returns the local collector endpoint for s over protocol.
func (s Signal) DefaultEndpoint(protocol Protocol) string {
	if protocol == ProtocolHTTP {
		return defaultHTTPBase + s.HTTPPath()
	}

	return defaultGRPCEndpoint
}

func (s Signal) newResponse() proto.Message {
	switch s {
	case SignalMetric:
		return &colmetricpb.ExportMetricsServiceResponse{}
	case SignalLog:
		return &collogspb.ExportLogsServiceResponse{}
	default:
		return &coltracepb.ExportTraceServiceResponse{}
	}
}

// partialSuccess reports the rejected item count and message carried by a response.
func partialSuccess(resp proto.Message) (int64, string) {
	switch r := resp.(type) {
	case *coltracepb.ExportTraceServiceResponse:
		ps := r.GetPartialSuccess()

		return ps.GetRejectedSpans(), ps.GetErrorMessage()
	case *colmetricpb.ExportMetricsServiceResponse:
		ps := r.GetPartialSuccess()

		return ps.GetRejectedDataPoints(), ps.GetErrorMessage()
	case *collogspb.ExportLogsServiceResponse:
		ps := r.GetPartialSuccess()

		return ps.GetRejectedLogRecords(), ps.GetErrorMessage()
	default:
		return 0, ""
	}
}
