package exporter_test

import (
	"context"
	"errors"
	"net"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	coltracepb "go.opentelemetry.io/proto/otlp/collector/trace/v1"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/hyp3rd/otlpexport/pkg/exporter"
	"github.com/hyp3rd/otlpexport/pkg/exportmetrics"
	"github.com/hyp3rd/otlpexport/pkg/logging/loggingtest"
	"github.com/hyp3rd/otlpexport/pkg/retry"
)

type traceCollector struct {
	coltracepb.UnimplementedTraceServiceServer

	mu       sync.Mutex
	failures []error
	response *coltracepb.ExportTraceServiceResponse
	delay    time.Duration
	metadata metadata.MD
	spans    int

	calls atomic.Int32
}

func (c *traceCollector) Export(
	ctx context.Context,
	req *coltracepb.ExportTraceServiceRequest,
) (*coltracepb.ExportTraceServiceResponse, error) {
	c.calls.Add(1)

	c.mu.Lock()
	c.metadata, _ = metadata.FromIncomingContext(ctx)
	delay := c.delay

	var failure error
	if len(c.failures) > 0 {
		failure = c.failures[0]
		c.failures = c.failures[1:]
	}

	if failure == nil {
		c.spans += countSpans(req)
	}

	response := c.response
	c.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, status.FromContextError(ctx.Err()).Err()
		}
	}

	if failure != nil {
		return nil, failure
	}

	if response == nil {
		response = &coltracepb.ExportTraceServiceResponse{}
	}

	return response, nil
}

func (c *traceCollector) receivedSpans() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.spans
}

func (c *traceCollector) lastMetadata() metadata.MD {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.metadata
}

// startCollector serves collector on a loopback port and returns its endpoint.
func startCollector(t *testing.T, collector *traceCollector) string {
	t.Helper()

	lc := net.ListenConfig{}

	ln, err := lc.Listen(context.Background(), "tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}

	server := grpc.NewServer()
	coltracepb.RegisterTraceServiceServer(server, collector)

	go func() {
		_ = server.Serve(ln)
	}()

	t.Cleanup(server.Stop)

	return "http://" + ln.Addr().String()
}

func newGRPCExporter(t *testing.T, endpoint string, rec *loggingtest.Recorder, configure func(*exporter.Builder)) *exporter.GRPCExporter {
	t.Helper()

	builder := exporter.NewBuilder(exporter.SignalSpan, exporter.ProtocolGRPC).
		SetEndpoint(endpoint).
		SetTimeout(2 * time.Second)
	if rec != nil {
		builder.SetLogger(rec)
	}

	if configure != nil {
		configure(builder)
	}

	exp, err := builder.BuildGRPC()
	if err != nil {
		t.Fatalf("BuildGRPC returned error: %v", err)
	}

	t.Cleanup(func() {
		exp.Shutdown(context.Background())
	})

	return exp
}

func TestGRPCExportSuccess(t *testing.T) {
	t.Parallel()

	collector := &traceCollector{}
	rec := loggingtest.New()
	exp := newGRPCExporter(t, startCollector(t, collector), rec, nil)

	token := exp.Export(context.Background(), spanRequest(3), 3)

	err := await(t, token)
	if err != nil {
		t.Fatalf("expected export to succeed, got %v", err)
	}

	if collector.receivedSpans() != 3 {
		t.Fatalf("expected collector to receive 3 spans, got %d", collector.receivedSpans())
	}

	totals := exp.Status()
	if totals.Seen != 3 || totals.Exported != 3 || totals.Failed != 0 {
		t.Fatalf("unexpected totals: %+v", totals)
	}

	if len(rec.AtLevel(loggingtest.LevelWarn)) != 0 || len(rec.AtLevel(loggingtest.LevelError)) != 0 {
		t.Fatalf("expected no failure logs, got %+v", rec.Entries())
	}
}

func TestGRPCFailureClassification(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name     string
		code     codes.Code
		level    loggingtest.Level
		fragment string
		outcome  retry.Outcome
	}{
		{"unimplemented", codes.Unimplemented, loggingtest.LevelError, "otlp receiver", retry.Fatal},
		{"unavailable", codes.Unavailable, loggingtest.LevelError, "running and reachable", retry.Retryable},
		{"invalid argument", codes.InvalidArgument, loggingtest.LevelWarn, "gRPC status code 3", retry.Fatal},
		{"permission denied", codes.PermissionDenied, loggingtest.LevelWarn, "gRPC status code 7", retry.Fatal},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			collector := &traceCollector{failures: []error{status.Error(tc.code, "nope")}}
			rec := loggingtest.New()
			exp := newGRPCExporter(t, startCollector(t, collector), rec, nil)

			err := await(t, exp.Export(context.Background(), spanRequest(2), 2))

			var exportErr *exporter.ExportError
			if !errors.As(err, &exportErr) {
				t.Fatalf("expected *ExportError, got %v", err)
			}

			if exportErr.Code != tc.code || exportErr.Outcome != tc.outcome || exportErr.Signal != exporter.SignalSpan {
				t.Fatalf("unexpected export error: %+v", exportErr)
			}

			if len(entriesContaining(rec, tc.level, tc.fragment)) != 1 {
				t.Fatalf("expected one %s entry containing %q, got %+v", tc.level, tc.fragment, rec.Entries())
			}

			if len(entriesContaining(rec, loggingtest.LevelDebug, "details follow")) != 1 {
				t.Fatalf("expected a debug detail line, got %+v", rec.Entries())
			}

			totals := exp.Status()
			if totals.Seen != 2 || totals.Failed != 2 || totals.Exported != 0 || totals.LastError == "" {
				t.Fatalf("unexpected totals: %+v", totals)
			}
		})
	}
}

func TestGRPCRetryCountsOnce(t *testing.T) {
	t.Parallel()

	collector := &traceCollector{failures: []error{
		status.Error(codes.Unavailable, "warming up"),
		status.Error(codes.Unavailable, "still warming up"),
	}}

	reader := metric.NewManualReader()
	mp := metric.NewMeterProvider(metric.WithReader(reader))

	exp := newGRPCExporter(t, startCollector(t, collector), nil, func(b *exporter.Builder) {
		b.SetRetryPolicy(fastRetry(3)).SetMeterProvider(mp)
	})

	err := await(t, exp.Export(context.Background(), spanRequest(4), 4))
	if err != nil {
		t.Fatalf("expected final attempt to succeed, got %v", err)
	}

	if collector.calls.Load() != 3 {
		t.Fatalf("expected 3 attempts, got %d", collector.calls.Load())
	}

	var rm metricdata.ResourceMetrics

	err = reader.Collect(context.Background(), &rm)
	if err != nil {
		t.Fatalf("collect metrics: %v", err)
	}

	if got := counterSum(rm, exportmetrics.SeenMetric, nil); got != 4 {
		t.Fatalf("expected seen=4, got %d", got)
	}

	success := attribute.Bool("success", true)
	if got := counterSum(rm, exportmetrics.ExportedMetric, &success); got != 4 {
		t.Fatalf("expected exported success=4, got %d", got)
	}

	failure := attribute.Bool("success", false)
	if got := counterSum(rm, exportmetrics.ExportedMetric, &failure); got != 0 {
		t.Fatalf("expected no failed exports, got %d", got)
	}
}

func TestGRPCWithoutRetryFailsImmediately(t *testing.T) {
	t.Parallel()

	collector := &traceCollector{failures: []error{status.Error(codes.Unavailable, "down")}}
	exp := newGRPCExporter(t, startCollector(t, collector), nil, nil)

	err := await(t, exp.Export(context.Background(), spanRequest(1), 1))
	if err == nil {
		t.Fatal("expected export to fail")
	}

	if collector.calls.Load() != 1 {
		t.Fatalf("expected a single attempt, got %d", collector.calls.Load())
	}
}

func TestGRPCDeadlineIsClassified(t *testing.T) {
	t.Parallel()

	collector := &traceCollector{delay: time.Second}
	rec := loggingtest.New()
	exp := newGRPCExporter(t, startCollector(t, collector), rec, func(b *exporter.Builder) {
		b.SetTimeout(50 * time.Millisecond)
	})

	err := await(t, exp.Export(context.Background(), spanRequest(1), 1))

	var exportErr *exporter.ExportError
	if !errors.As(err, &exportErr) || exportErr.Code != codes.DeadlineExceeded {
		t.Fatalf("expected DeadlineExceeded, got %v", err)
	}

	if len(entriesContaining(rec, loggingtest.LevelWarn, "gRPC status code 4")) != 1 {
		t.Fatalf("expected a warning for the deadline, got %+v", rec.Entries())
	}
}

func TestGRPCCallerCancellationDoesNotCancelExport(t *testing.T) {
	t.Parallel()

	collector := &traceCollector{delay: 50 * time.Millisecond}
	exp := newGRPCExporter(t, startCollector(t, collector), nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	token := exp.Export(ctx, spanRequest(1), 1)
	cancel()

	err := await(t, token)
	if err != nil {
		t.Fatalf("expected export to outlive the caller context, got %v", err)
	}
}

func TestGRPCSendsHeadersAndCompression(t *testing.T) {
	t.Parallel()

	collector := &traceCollector{}
	exp := newGRPCExporter(t, startCollector(t, collector), nil, func(b *exporter.Builder) {
		b.AddHeader("X-Tenant", "a").AddHeader("x-tenant", "b").SetCompression("gzip")
	})

	err := await(t, exp.Export(context.Background(), spanRequest(2), 2))
	if err != nil {
		t.Fatalf("expected export to succeed, got %v", err)
	}

	values := collector.lastMetadata().Get("x-tenant")
	if len(values) != 2 || values[0] != "a" || values[1] != "b" {
		t.Fatalf("expected ordered tenant headers, got %v", values)
	}

	if collector.receivedSpans() != 2 {
		t.Fatalf("expected compressed payload to decode to 2 spans, got %d", collector.receivedSpans())
	}
}

func TestGRPCPartialSuccessStillSucceeds(t *testing.T) {
	t.Parallel()

	collector := &traceCollector{response: &coltracepb.ExportTraceServiceResponse{
		PartialSuccess: &coltracepb.ExportTracePartialSuccess{
			RejectedSpans: 2,
			ErrorMessage:  "spans too old",
		},
	}}
	rec := loggingtest.New()
	exp := newGRPCExporter(t, startCollector(t, collector), rec, nil)

	err := await(t, exp.Export(context.Background(), spanRequest(5), 5))
	if err != nil {
		t.Fatalf("expected partial success to resolve successfully, got %v", err)
	}

	warnings := entriesContaining(rec, loggingtest.LevelWarn, "partial success")
	if len(warnings) != 1 {
		t.Fatalf("expected one partial success warning, got %+v", rec.Entries())
	}

	if rejected, _ := warnings[0].Attr("rejected"); rejected != "2" {
		t.Fatalf("expected rejected=2, got %q", rejected)
	}
}

func TestGRPCShutdownIsIdempotent(t *testing.T) {
	t.Parallel()

	collector := &traceCollector{}
	exp := newGRPCExporter(t, startCollector(t, collector), nil, nil)

	err := await(t, exp.Shutdown(context.Background()))
	if err != nil {
		t.Fatalf("first shutdown failed: %v", err)
	}

	for range 2 {
		token := exp.Shutdown(context.Background())
		if !token.IsSuccess() {
			t.Fatalf("expected already-succeeded token, got %s", token.State())
		}
	}

	err = await(t, exp.Export(context.Background(), spanRequest(1), 1))
	if !errors.Is(err, exporter.ErrExporterShutdown) {
		t.Fatalf("expected ErrExporterShutdown after shutdown, got %v", err)
	}
}

func TestGRPCShutdownDrainsInFlightExports(t *testing.T) {
	t.Parallel()

	collector := &traceCollector{delay: 100 * time.Millisecond}
	exp := newGRPCExporter(t, startCollector(t, collector), nil, nil)

	export := exp.Export(context.Background(), spanRequest(1), 1)
	shutdown := exp.Shutdown(context.Background())

	err := await(t, export)
	if err != nil {
		t.Fatalf("expected in-flight export to complete, got %v", err)
	}

	err = await(t, shutdown)
	if err != nil {
		t.Fatalf("shutdown failed: %v", err)
	}
}

func TestGRPCConcurrentExports(t *testing.T) {
	t.Parallel()

	const calls = 32

	collector := &traceCollector{}
	exp := newGRPCExporter(t, startCollector(t, collector), nil, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var wg sync.WaitGroup

	errs := make(chan error, calls)

	for range calls {
		wg.Add(1)

		go func() {
			defer wg.Done()

			errs <- exp.Export(ctx, spanRequest(1), 1).Wait(ctx)
		}()
	}

	wg.Wait()
	close(errs)

	for err := range errs {
		if err != nil {
			t.Fatalf("concurrent export failed: %v", err)
		}
	}

	totals := exp.Status()
	if totals.Seen != calls || totals.Exported != calls {
		t.Fatalf("unexpected totals: %+v", totals)
	}
}
