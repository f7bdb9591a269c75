package otlp

import (
	"context"
	"sync"

	"github.com/hyp3rd/ewrap"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace"
	coltracepb "go.opentelemetry.io/proto/otlp/collector/trace/v1"
	tracepb "go.opentelemetry.io/proto/otlp/trace/v1"
)

// TraceClient adapts a TraceExporter to otlptrace.Client so an SDK tracer provider
// can export through it via otlptrace.New.
type TraceClient struct {
	exporter *TraceExporter
	stopOnce sync.Once
}

var _ otlptrace.Client = (*TraceClient)(nil)

// NewTraceClient returns a client uploading through exp.
func NewTraceClient(exp *TraceExporter) *TraceClient {
	return &TraceClient{exporter: exp}
}

// Start implements otlptrace.Client. The transport connects lazily, so it does nothing.
func (*TraceClient) Start(context.Context) error {
	return nil
}

// Stop implements otlptrace.Client by shutting the transport down.
func (c *TraceClient) Stop(ctx context.Context) error {
	var err error

	c.stopOnce.Do(func() {
		err = c.exporter.Shutdown(ctx).Wait(ctx)
	})

	if err != nil {
		return ewrap.Wrap(err, "stop trace client")
	}

	return nil
}

// UploadTraces implements otlptrace.Client. It blocks until the export settles or ctx ends.
func (c *TraceClient) UploadTraces(ctx context.Context, protoSpans []*tracepb.ResourceSpans) error {
	if len(protoSpans) == 0 {
		return nil
	}

	token := c.exporter.Export(ctx, &coltracepb.ExportTraceServiceRequest{ResourceSpans: protoSpans})

	err := token.Wait(ctx)
	if err != nil {
		return ewrap.Wrap(err, "upload traces")
	}

	return nil
}

// NewSpanExporter builds an SDK span exporter backed by exp.
func NewSpanExporter(ctx context.Context, exp *TraceExporter) (*otlptrace.Exporter, error) {
	spanExporter, err := otlptrace.New(ctx, NewTraceClient(exp))
	if err != nil {
		return nil, ewrap.Wrap(err, "create otlptrace exporter")
	}

	return spanExporter, nil
}
