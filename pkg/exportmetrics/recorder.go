// Package exportmetrics records how many telemetry items exporters saw and delivered.
package exportmetrics

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/hyp3rd/ewrap"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

const (
	meterName = "github.com/hyp3rd/otlpexport/exporter"

	// SeenMetric counts items handed to an exporter.
	SeenMetric = "otlp.exporter.seen"
	// ExportedMetric counts items whose export completed, split by the success attribute.
	ExportedMetric = "otlp.exporter.exported"

	attrType      = attribute.Key("type")
	attrTransport = attribute.Key("transport")
	attrSuccess   = attribute.Key("success")
)

// Status is a point-in-time view of a Recorder, served by the diagnostics endpoint.
type Status struct {
	Signal        string    `json:"signal"`
	Transport     string    `json:"transport"`
	Endpoint      string    `json:"endpoint"`
	Seen          int64     `json:"seen"`
	Exported      int64     `json:"exported"`
	Failed        int64     `json:"failed"`
	LastError     string    `json:"last_error,omitempty"`
	LastErrorTime time.Time `json:"last_error_time,omitzero"`
}

type lastError struct {
	message string
	time    time.Time
}

// Recorder emits seen/exported counters for one exporter and keeps running totals.
// A nil *Recorder discards everything.
type Recorder struct {
	signal    string
	transport string

	seenCounter     metric.Int64Counter
	exportedCounter metric.Int64Counter
	seenOpt         metric.AddOption
	successOpt      metric.AddOption
	failedOpt       metric.AddOption

	seen      atomic.Int64
	exported  atomic.Int64
	failed    atomic.Int64
	lastError atomic.Pointer[lastError]
}

// NewRecorder constructs a Recorder. A nil provider falls back to the no-op provider.
func NewRecorder(mp metric.MeterProvider, signal, transport string) (*Recorder, error) {
	if mp == nil {
		mp = noop.NewMeterProvider()
	}

	meter := mp.Meter(meterName)

	seen, err := meter.Int64Counter(
		SeenMetric,
		metric.WithDescription("Number of telemetry items handed to the exporter"),
		metric.WithUnit("{item}"),
	)
	if err != nil {
		return nil, ewrap.Wrap(err, "create seen counter")
	}

	exported, err := meter.Int64Counter(
		ExportedMetric,
		metric.WithDescription("Number of telemetry items whose export completed"),
		metric.WithUnit("{item}"),
	)
	if err != nil {
		return nil, ewrap.Wrap(err, "create exported counter")
	}

	base := []attribute.KeyValue{attrType.String(signal), attrTransport.String(transport)}

	return &Recorder{
		signal:          signal,
		transport:       transport,
		seenCounter:     seen,
		exportedCounter: exported,
		seenOpt:         metric.WithAttributes(base...),
		successOpt:      metric.WithAttributes(append(base, attrSuccess.Bool(true))...),
		failedOpt:       metric.WithAttributes(append(base, attrSuccess.Bool(false))...),
	}, nil
}

// AddSeen records n items entering an export call.
func (r *Recorder) AddSeen(ctx context.Context, n int64) {
	if r == nil || n <= 0 {
		return
	}

	r.seen.Add(n)
	r.seenCounter.Add(ctx, n, r.seenOpt)
}

// AddSuccess records n items delivered.
func (r *Recorder) AddSuccess(ctx context.Context, n int64) {
	if r == nil || n <= 0 {
		return
	}

	r.exported.Add(n)
	r.exportedCounter.Add(ctx, n, r.successOpt)
}

// AddFailed records n items that could not be delivered.
func (r *Recorder) AddFailed(ctx context.Context, n int64) {
	if r == nil || n <= 0 {
		return
	}

	r.failed.Add(n)
	r.exportedCounter.Add(ctx, n, r.failedOpt)
}

// RecordError remembers err as the most recent export failure.
func (r *Recorder) RecordError(err error) {
	if r == nil || err == nil {
		return
	}

	r.lastError.Store(&lastError{
		message: err.Error(),
		time:    time.Now().UTC(),
	})
}

// Status returns the running totals.
func (r *Recorder) Status() Status {
	if r == nil {
		return Status{}
	}

	status := Status{
		Signal:    r.signal,
		Transport: r.transport,
		Seen:      r.seen.Load(),
		Exported:  r.exported.Load(),
		Failed:    r.failed.Load(),
	}
	if last := r.lastError.Load(); last != nil {
		status.LastError = last.message
		status.LastErrorTime = last.time
	}

	return status
}
