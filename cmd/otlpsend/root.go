package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/hyp3rd/ewrap"
	"github.com/spf13/cobra"
	collogspb "go.opentelemetry.io/proto/otlp/collector/logs/v1"
	colmetricpb "go.opentelemetry.io/proto/otlp/collector/metrics/v1"
	coltracepb "go.opentelemetry.io/proto/otlp/collector/trace/v1"
	commonpb "go.opentelemetry.io/proto/otlp/common/v1"
	logspb "go.opentelemetry.io/proto/otlp/logs/v1"
	metricspb "go.opentelemetry.io/proto/otlp/metrics/v1"
	resourcepb "go.opentelemetry.io/proto/otlp/resource/v1"
	tracepb "go.opentelemetry.io/proto/otlp/trace/v1"

	"github.com/hyp3rd/otlpexport/internal/constants"
	"github.com/hyp3rd/otlpexport/pkg/client"
	"github.com/hyp3rd/otlpexport/pkg/completion"
	"github.com/hyp3rd/otlpexport/pkg/config"
	"github.com/hyp3rd/otlpexport/pkg/exporter"
)

const serviceName = "otlpsend"

var errSignalNotConfigured = ewrap.New("signal is not listed in exporter.signals")

type sendOptions struct {
	configPath string
	signal     string
	protocol   string
	endpoint   string
	count      int
	wait       time.Duration
}

func newRootCommand() *cobra.Command {
	opts := sendOptions{}

	command := &cobra.Command{
		Use:          "otlpsend",
		Short:        "send a synthetic OTLP batch to a collector and print the outcome",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return send(cmd.Context(), cmd.OutOrStdout(), opts)
		},
	}

	flags := command.Flags()
	flags.StringVarP(&opts.configPath, "config", "c", config.DefaultFileName, "path to the YAML configuration file")
	flags.StringVarP(&opts.signal, "signal", "s", "span", "signal to send: span, metric or log")
	flags.StringVar(&opts.protocol, "protocol", "", "override exporter.protocol (grpc or http)")
	flags.StringVar(&opts.endpoint, "endpoint", "", "override exporter.endpoint")
	flags.IntVarP(&opts.count, "count", "n", 1, "number of items in the batch")
	flags.DurationVar(&opts.wait, "wait", constants.DefaultShutdownTimeout, "how long to wait for the export to settle")

	return command
}

func (o sendOptions) overrides() config.Loader {
	return config.LoaderFunc(func(context.Context) (map[string]any, error) {
		exporterValues := map[string]any{
			"signals": []any{o.signal},
		}

		if o.protocol != "" {
			exporterValues["protocol"] = o.protocol
		}

		if o.endpoint != "" {
			exporterValues["endpoint"] = o.endpoint
		}

		return map[string]any{"exporter": exporterValues}, nil
	})
}

func send(ctx context.Context, out io.Writer, opts sendOptions) error {
	signal, err := exporter.ParseSignal(opts.signal)
	if err != nil {
		return err
	}

	if opts.count < 1 {
		return ewrap.Newf("count must be >= 1, got %d", opts.count)
	}

	c, err := client.Init(ctx,
		client.WithLoaders(
			config.FileLoader{Path: opts.configPath},
			config.OTelEnvLoader{},
			config.EnvLoader{},
			opts.overrides(),
		),
		client.WithConfigWatcher(false),
	)
	if err != nil {
		return ewrap.Wrap(err, "init client")
	}

	waitCtx, cancel := context.WithTimeout(ctx, opts.wait)
	defer cancel()

	token, err := dispatch(waitCtx, c.Runtime(), signal, opts.count)
	if err != nil {
		_ = c.Shutdown(waitCtx)

		return err
	}

	exportErr := token.Wait(waitCtx)

	report(out, signal, opts.count, exportErr)

	err = json.NewEncoder(out).Encode(c.Runtime().Statuses())
	if err != nil {
		return ewrap.Wrap(err, "encode status")
	}

	shutdownErr := c.Shutdown(waitCtx)
	if exportErr != nil {
		return exportErr
	}

	return shutdownErr
}

func dispatch(ctx context.Context, rt *client.Runtime, signal exporter.Signal, n int) (*completion.Token, error) {
	switch signal {
	case exporter.SignalSpan:
		if rt.Traces() != nil {
			return rt.Traces().Export(ctx, syntheticSpans(n)), nil
		}
	case exporter.SignalMetric:
		if rt.Metrics() != nil {
			return rt.Metrics().Export(ctx, syntheticMetrics(n)), nil
		}
	case exporter.SignalLog:
		if rt.Logs() != nil {
			return rt.Logs().Export(ctx, syntheticLogs(n)), nil
		}
	}

	return nil, ewrap.Wrapf(errSignalNotConfigured, "signal %s", signal)
}

func report(out io.Writer, signal exporter.Signal, n int, err error) {
	if err != nil {
		_, _ = fmt.Fprintf(out, "export of %d %s failed: %v\n", n, signal.Plural(), err)

		return
	}

	_, _ = fmt.Fprintf(out, "exported %d %s\n", n, signal.Plural())
}

func resource() *resourcepb.Resource {
	return &resourcepb.Resource{
		Attributes: []*commonpb.KeyValue{{
			Key:   "service.name",
			Value: &commonpb.AnyValue{Value: &commonpb.AnyValue_StringValue{StringValue: serviceName}},
		}},
	}
}

func syntheticSpans(n int) *coltracepb.ExportTraceServiceRequest {
	now := uint64(time.Now().UnixNano()) //nolint:gosec // wall clock is positive.
	spans := make([]*tracepb.Span, n)

	for i := range spans {
		spans[i] = &tracepb.Span{
			TraceId:           []byte{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14, 15, byte(i + 1)},
			SpanId:            []byte{1, 2, 3, 4, 5, 6, 7, byte(i + 1)},
			Name:              fmt.Sprintf("synthetic-%d", i),
			Kind:              tracepb.Span_SPAN_KIND_INTERNAL,
			StartTimeUnixNano: now,
			EndTimeUnixNano:   now,
		}
	}

	return &coltracepb.ExportTraceServiceRequest{
		ResourceSpans: []*tracepb.ResourceSpans{{
			Resource:   resource(),
			ScopeSpans: []*tracepb.ScopeSpans{{Scope: &commonpb.InstrumentationScope{Name: serviceName}, Spans: spans}},
		}},
	}
}

func syntheticMetrics(n int) *colmetricpb.ExportMetricsServiceRequest {
	now := uint64(time.Now().UnixNano()) //nolint:gosec // wall clock is positive.
	metrics := make([]*metricspb.Metric, n)

	for i := range metrics {
		metrics[i] = &metricspb.Metric{
			Name: fmt.Sprintf("otlpsend.synthetic.%d", i),
			Data: &metricspb.Metric_Gauge{Gauge: &metricspb.Gauge{
				DataPoints: []*metricspb.NumberDataPoint{{
					TimeUnixNano: now,
					Value:        &metricspb.NumberDataPoint_AsInt{AsInt: int64(i)},
				}},
			}},
		}
	}

	return &colmetricpb.ExportMetricsServiceRequest{
		ResourceMetrics: []*metricspb.ResourceMetrics{{
			Resource:     resource(),
			ScopeMetrics: []*metricspb.ScopeMetrics{{Scope: &commonpb.InstrumentationScope{Name: serviceName}, Metrics: metrics}},
		}},
	}
}

func syntheticLogs(n int) *collogspb.ExportLogsServiceRequest {
	now := uint64(time.Now().UnixNano()) //nolint:gosec // wall clock is positive.
	records := make([]*logspb.LogRecord, n)

	for i := range records {
		records[i] = &logspb.LogRecord{
			TimeUnixNano:   now,
			SeverityNumber: logspb.SeverityNumber_SEVERITY_NUMBER_INFO,
			SeverityText:   "INFO",
			Body: &commonpb.AnyValue{Value: &commonpb.AnyValue_StringValue{
				StringValue: fmt.Sprintf("synthetic record %d", i),
			}},
		}
	}

	return &collogspb.ExportLogsServiceRequest{
		ResourceLogs: []*logspb.ResourceLogs{{
			Resource:  resource(),
			ScopeLogs: []*logspb.ScopeLogs{{Scope: &commonpb.InstrumentationScope{Name: serviceName}, LogRecords: records}},
		}},
	}
}
