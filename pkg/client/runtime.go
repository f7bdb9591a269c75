package client

import (
	"context"
	"sync"
	"time"

	"github.com/hyp3rd/ewrap"
	"go.opentelemetry.io/otel/metric"

	"github.com/hyp3rd/otlpexport/pkg/completion"
	"github.com/hyp3rd/otlpexport/pkg/config"
	"github.com/hyp3rd/otlpexport/pkg/exporter"
	"github.com/hyp3rd/otlpexport/pkg/exportmetrics"
	"github.com/hyp3rd/otlpexport/pkg/logging"
	"github.com/hyp3rd/otlpexport/pkg/otlp"
)

// Runtime holds the exporters built from one configuration snapshot.
type Runtime struct {
	cfg       config.Config
	startTime time.Time

	traces  *otlp.TraceExporter
	metrics *otlp.MetricExporter
	logs    *otlp.LogExporter

	once     sync.Once
	shutdown *completion.Token
}

type signalExporter interface {
	Shutdown(ctx context.Context) *completion.Token
	Status() exportmetrics.Status
}

// newRuntime builds one exporter per configured signal. Nothing is dialed here.
func newRuntime(cfg config.Config, logger logging.Adapter, mp metric.MeterProvider) (*Runtime, error) {
	protocol, err := exporter.ParseProtocol(cfg.Exporter.Protocol)
	if err != nil {
		return nil, ewrap.Wrap(err, "parse exporter protocol")
	}

	rt := &Runtime{
		cfg:       cfg,
		startTime: time.Now().UTC(),
	}

	for _, raw := range cfg.Exporter.Signals {
		signal, err := exporter.ParseSignal(raw)
		if err != nil {
			rt.abort()

			return nil, err
		}

		err = rt.build(signal, protocol, cfg.Exporter, logger, mp)
		if err != nil {
			rt.abort()

			return nil, ewrap.Wrapf(err, "build %s exporter", signal)
		}
	}

	return rt, nil
}

func (r *Runtime) build(
	signal exporter.Signal,
	protocol exporter.Protocol,
	cfg config.ExporterConfig,
	logger logging.Adapter,
	mp metric.MeterProvider,
) error {
	apply := func(b *exporter.Builder) {
		exporter.ApplyConfig(b, cfg)
		b.SetLogger(logger).SetMeterProvider(mp)
	}

	var err error

	switch signal {
	case exporter.SignalSpan:
		r.traces, err = exporter.Configure(otlp.NewTraceExporterBuilder(protocol), apply).Build()
	case exporter.SignalMetric:
		r.metrics, err = exporter.Configure(otlp.NewMetricExporterBuilder(protocol), apply).Build()
	case exporter.SignalLog:
		r.logs, err = exporter.Configure(otlp.NewLogExporterBuilder(protocol), apply).Build()
	}

	return err
}

// abort releases exporters built before a later one failed.
func (r *Runtime) abort() {
	r.Shutdown(context.Background())
}

// Config returns the configuration the runtime was built from.
func (r *Runtime) Config() config.Config {
	return r.cfg
}

// Traces returns the span exporter, or nil when spans are not configured.
func (r *Runtime) Traces() *otlp.TraceExporter {
	return r.traces
}

// Metrics returns the metric exporter, or nil when metrics are not configured.
func (r *Runtime) Metrics() *otlp.MetricExporter {
	return r.metrics
}

// Logs returns the log exporter, or nil when logs are not configured.
func (r *Runtime) Logs() *otlp.LogExporter {
	return r.logs
}

func (r *Runtime) active() []signalExporter {
	var out []signalExporter

	if r.traces != nil {
		out = append(out, r.traces)
	}

	if r.metrics != nil {
		out = append(out, r.metrics)
	}

	if r.logs != nil {
		out = append(out, r.logs)
	}

	return out
}

// Statuses returns the totals of every active exporter.
func (r *Runtime) Statuses() []exportmetrics.Status {
	active := r.active()

	out := make([]exportmetrics.Status, 0, len(active))
	for _, exp := range active {
		out = append(out, exp.Status())
	}

	return out
}

// Shutdown shuts every exporter down and joins their tokens. Repeated calls return
// the same token.
func (r *Runtime) Shutdown(ctx context.Context) *completion.Token {
	r.once.Do(func() {
		active := r.active()

		tokens := make([]*completion.Token, 0, len(active))
		for _, exp := range active {
			tokens = append(tokens, exp.Shutdown(ctx))
		}

		r.shutdown = completion.Join(tokens...)
	})

	return r.shutdown
}
