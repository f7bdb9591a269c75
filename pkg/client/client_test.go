package client

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	coltracepb "go.opentelemetry.io/proto/otlp/collector/trace/v1"
	tracepb "go.opentelemetry.io/proto/otlp/trace/v1"
	"google.golang.org/protobuf/proto"

	"github.com/hyp3rd/otlpexport/pkg/config"
	"github.com/hyp3rd/otlpexport/pkg/diagnostics"
	"github.com/hyp3rd/otlpexport/pkg/logging/loggingtest"
	"github.com/hyp3rd/otlpexport/pkg/otlp"
)

const configDigestErrorMsg = "configDigest returned error: %v"

func TestConfigDigestStable(t *testing.T) {
	t.Parallel()

	cfg := config.DefaultConfig()

	first, err := configDigest(cfg)
	if err != nil {
		t.Fatalf(configDigestErrorMsg, err)
	}

	second, err := configDigest(cfg)
	if err != nil {
		t.Fatalf(configDigestErrorMsg, err)
	}

	if first != second {
		t.Fatalf("expected stable digest, got %s vs %s", first, second)
	}
}

func TestConfigDigestDiffers(t *testing.T) {
	t.Parallel()

	cfg := config.DefaultConfig()

	initialDigest, err := configDigest(cfg)
	if err != nil {
		t.Fatalf(configDigestErrorMsg, err)
	}

	cfg.Exporter.Endpoint = "http://collector:4318"

	updatedDigest, err := configDigest(cfg)
	if err != nil {
		t.Fatalf(configDigestErrorMsg, err)
	}

	if initialDigest == updatedDigest {
		t.Fatal("expected different digests when config changes")
	}
}

type spanCollector struct {
	spans atomic.Int64
}

func (c *spanCollector) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	raw, err := io.ReadAll(r.Body)
	if err != nil || r.URL.Path != "/v1/traces" {
		w.WriteHeader(http.StatusBadRequest)

		return
	}

	var req coltracepb.ExportTraceServiceRequest

	err = proto.Unmarshal(raw, &req)
	if err != nil {
		w.WriteHeader(http.StatusBadRequest)

		return
	}

	c.spans.Add(int64(otlp.SpanCount(&req)))
	w.WriteHeader(http.StatusOK)
}

func spanBatch(n int) *coltracepb.ExportTraceServiceRequest {
	spans := make([]*tracepb.Span, n)
	for i := range spans {
		spans[i] = &tracepb.Span{Name: "op"}
	}

	return &coltracepb.ExportTraceServiceRequest{
		ResourceSpans: []*tracepb.ResourceSpans{{
			ScopeSpans: []*tracepb.ScopeSpans{{Spans: spans}},
		}},
	}
}

func httpConfig(endpoint string) config.Config {
	cfg := config.DefaultConfig()
	cfg.Exporter.Protocol = "http"
	cfg.Exporter.Signals = []string{"span"}
	cfg.Exporter.Endpoint = endpoint

	return cfg
}

func newTestClient(t *testing.T, opts ...Option) *Client {
	t.Helper()

	opts = append([]Option{WithLogger(loggingtest.New()), WithConfigWatcher(false)}, opts...)

	client, err := Init(context.Background(), opts...)
	if err != nil {
		t.Fatalf("Init returned error: %v", err)
	}

	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		_ = client.Shutdown(ctx)
	})

	return client
}

func TestInitExportsThroughConfiguredSignal(t *testing.T) {
	t.Parallel()

	collector := &spanCollector{}
	server := httptest.NewServer(collector)
	t.Cleanup(server.Close)

	client := newTestClient(t, WithConfig(httpConfig(server.URL)))

	rt := client.Runtime()
	if rt.Metrics() != nil || rt.Logs() != nil {
		t.Fatal("expected only the span exporter to be built")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err := rt.Traces().Export(ctx, spanBatch(3)).Wait(ctx)
	if err != nil {
		t.Fatalf("export failed: %v", err)
	}

	if got := collector.spans.Load(); got != 3 {
		t.Fatalf("expected collector to receive 3 spans, got %d", got)
	}

	statuses := rt.Statuses()
	if len(statuses) != 1 || statuses[0].Exported != 3 {
		t.Fatalf("unexpected statuses: %+v", statuses)
	}
}

func TestInitRejectsInvalidConfig(t *testing.T) {
	t.Parallel()

	cfg := config.DefaultConfig()
	cfg.Exporter.Protocol = "carrier-pigeon"

	_, err := Init(context.Background(), WithConfig(cfg), WithConfigWatcher(false))
	if err == nil {
		t.Fatal("expected Init to fail for an unsupported protocol")
	}
}

func TestInitRejectsInvalidEndpoint(t *testing.T) {
	t.Parallel()

	_, err := Init(context.Background(), WithConfig(httpConfig("collector:4318")), WithConfigWatcher(false))
	if err == nil {
		t.Fatal("expected Init to fail for a relative endpoint")
	}
}

func TestShutdownRejectsLaterExports(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(&spanCollector{})
	t.Cleanup(server.Close)

	client := newTestClient(t, WithConfig(httpConfig(server.URL)))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err := client.Shutdown(ctx)
	if err != nil {
		t.Fatalf("Shutdown returned error: %v", err)
	}

	err = client.Runtime().Traces().Export(ctx, spanBatch(1)).Wait(ctx)
	if err == nil {
		t.Fatal("expected export after shutdown to fail")
	}
}

func writeConfig(t *testing.T, path, endpoint string) {
	t.Helper()

	body := "exporter:\n" +
		"  protocol: http\n" +
		"  signals: [span]\n" +
		"  endpoint: " + endpoint + "\n"

	err := os.WriteFile(path, []byte(body), 0o600)
	if err != nil {
		t.Fatalf("write config: %v", err)
	}
}

func TestReloadRuntimeSwapsOnChange(t *testing.T) {
	t.Parallel()

	first := &spanCollector{}
	firstServer := httptest.NewServer(first)
	t.Cleanup(firstServer.Close)

	second := &spanCollector{}
	secondServer := httptest.NewServer(second)
	t.Cleanup(secondServer.Close)

	path := filepath.Join(t.TempDir(), "otlpexport.yaml")
	writeConfig(t, path, firstServer.URL)

	client := newTestClient(t, WithLoaders(config.FileLoader{Path: path}))
	original := client.Runtime()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	client.reloadRuntime(ctx)

	if client.Runtime() != original {
		t.Fatal("expected unchanged configuration to keep the runtime")
	}

	if client.state.ConfigReloads() != 0 {
		t.Fatalf("expected no reloads, got %d", client.state.ConfigReloads())
	}

	writeConfig(t, path, secondServer.URL)
	client.reloadRuntime(ctx)

	if client.Runtime() == original {
		t.Fatal("expected changed configuration to replace the runtime")
	}

	if client.state.ConfigReloads() != 1 {
		t.Fatalf("expected one reload, got %d", client.state.ConfigReloads())
	}

	err := client.Runtime().Traces().Export(ctx, spanBatch(2)).Wait(ctx)
	if err != nil {
		t.Fatalf("export after reload failed: %v", err)
	}

	if first.spans.Load() != 0 || second.spans.Load() != 2 {
		t.Fatalf("expected spans at the new endpoint only, got first=%d second=%d",
			first.spans.Load(), second.spans.Load())
	}

	err = original.Traces().Export(ctx, spanBatch(1)).Wait(ctx)
	if err == nil {
		t.Fatal("expected the replaced runtime to be shut down")
	}
}

func TestReloadRuntimeKeepsRuntimeOnInvalidConfig(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(&spanCollector{})
	t.Cleanup(server.Close)

	path := filepath.Join(t.TempDir(), "otlpexport.yaml")
	writeConfig(t, path, server.URL)

	rec := loggingtest.New()
	client := newTestClient(t, WithLoaders(config.FileLoader{Path: path}), WithLogger(rec))
	original := client.Runtime()

	err := os.WriteFile(path, []byte("exporter:\n  protocol: smoke\n"), 0o600)
	if err != nil {
		t.Fatalf("write config: %v", err)
	}

	client.reloadRuntime(context.Background())

	if client.Runtime() != original {
		t.Fatal("expected invalid configuration to keep the runtime")
	}

	if len(rec.AtLevel(loggingtest.LevelError)) == 0 {
		t.Fatal("expected the reload failure to be logged")
	}
}

func TestSnapshotServedByDiagnostics(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(&spanCollector{})
	t.Cleanup(server.Close)

	cfg := httpConfig(server.URL)
	cfg.Diagnostics.Enabled = true
	cfg.Diagnostics.HTTPAddr = "127.0.0.1:0"

	client := newTestClient(t, WithConfig(cfg))
	if client.diagServer == nil || client.diagServer.Addr() == nil {
		t.Fatal("expected diagnostics server to be listening")
	}

	url := "http://" + client.diagServer.Addr().String() + diagnostics.StatusPath

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		t.Fatalf("build request: %v", err)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("GET status: %v", err)
	}

	defer func() { _ = resp.Body.Close() }()

	var snap diagnostics.Snapshot

	err = json.NewDecoder(resp.Body).Decode(&snap)
	if err != nil {
		t.Fatalf("decode snapshot: %v", err)
	}

	if snap.Protocol != "http" || len(snap.Exporters) != 1 {
		t.Fatalf("unexpected snapshot: %+v", snap)
	}
}

func TestClientMetricsReportReloadsAndExporters(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(&spanCollector{})
	t.Cleanup(server.Close)

	reader := metric.NewManualReader()
	provider := metric.NewMeterProvider(metric.WithReader(reader))

	client := newTestClient(t, WithConfig(httpConfig(server.URL)), WithMeterProvider(provider))
	client.state.IncrementConfigReloads()

	var rm metricdata.ResourceMetrics

	err := reader.Collect(context.Background(), &rm)
	if err != nil {
		t.Fatalf("collect: %v", err)
	}

	var reloads, enabled int64

	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			switch m.Name {
			case ConfigReloadsMetric:
				if sum, ok := m.Data.(metricdata.Sum[int64]); ok {
					for _, dp := range sum.DataPoints {
						reloads += dp.Value
					}
				}
			case ExporterEnabledMetric:
				if gauge, ok := m.Data.(metricdata.Gauge[int64]); ok {
					for _, dp := range gauge.DataPoints {
						enabled += dp.Value
					}
				}
			}
		}
	}

	if reloads != 1 {
		t.Fatalf("expected 1 reload, got %d", reloads)
	}

	if enabled != 1 {
		t.Fatalf("expected exactly one enabled exporter, got %d", enabled)
	}
}
