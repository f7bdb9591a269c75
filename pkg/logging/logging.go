// Package logging provides the structured logging contract used by the exporters and
// adapters for the common Go logging libraries.
package logging

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"
	"strings"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// Adapter describes the logging contract used within the otlpexport library.
type Adapter interface {
	Debug(ctx context.Context, msg string, attrs ...attribute.KeyValue)
	Info(ctx context.Context, msg string, attrs ...attribute.KeyValue)
	Warn(ctx context.Context, msg string, attrs ...attribute.KeyValue)
	Error(ctx context.Context, err error, msg string, attrs ...attribute.KeyValue)
}

// NoopAdapter discards all logs.
type NoopAdapter struct{}

// NewNoopAdapter returns a logger that drops every log event.
func NewNoopAdapter() Adapter {
	return NoopAdapter{}
}

// Info implements Adapter.
func (NoopAdapter) Info(context.Context, string, ...attribute.KeyValue) {}

// Warn implements Adapter.
func (NoopAdapter) Warn(context.Context, string, ...attribute.KeyValue) {}

// Error implements Adapter.
func (NoopAdapter) Error(context.Context, error, string, ...attribute.KeyValue) {}

// Debug implements Adapter.
func (NoopAdapter) Debug(context.Context, string, ...attribute.KeyValue) {}

// sink writes one resolved line to a concrete back end.
type sink interface {
	write(ctx context.Context, level Level, err error, msg string, attrs []attribute.KeyValue)
}

// sinkAdapter implements Adapter over a sink and adds span correlation attributes.
type sinkAdapter struct {
	sink sink
}

func (a sinkAdapter) Debug(ctx context.Context, msg string, attrs ...attribute.KeyValue) {
	a.sink.write(ctx, LevelDebug, nil, msg, withTrace(ctx, attrs))
}

func (a sinkAdapter) Info(ctx context.Context, msg string, attrs ...attribute.KeyValue) {
	a.sink.write(ctx, LevelInfo, nil, msg, withTrace(ctx, attrs))
}

func (a sinkAdapter) Warn(ctx context.Context, msg string, attrs ...attribute.KeyValue) {
	a.sink.write(ctx, LevelWarn, nil, msg, withTrace(ctx, attrs))
}

func (a sinkAdapter) Error(ctx context.Context, err error, msg string, attrs ...attribute.KeyValue) {
	a.sink.write(ctx, LevelError, err, msg, withTrace(ctx, attrs))
}

type slogSink struct {
	logger *slog.Logger
}

// NewSlogAdapter creates a slog-based adapter. If logger is nil a JSON logger on stderr is used.
func NewSlogAdapter(logger *slog.Logger) Adapter {
	if logger == nil {
		logger = slog.New(slog.NewJSONHandler(os.Stderr, nil))
	}

	return sinkAdapter{sink: slogSink{logger: logger}}
}

func (s slogSink) write(ctx context.Context, level Level, err error, msg string, attrs []attribute.KeyValue) {
	out := make([]slog.Attr, 0, len(attrs)+1)
	for _, attr := range attrs {
		out = append(out, slog.Any(string(attr.Key), attrValue(attr)))
	}

	if err != nil {
		out = append(out, slog.String("error", err.Error()))
	}

	s.logger.LogAttrs(ctx, level.slog(), msg, out...)
}

type zapSink struct {
	logger *zap.Logger
}

// NewZapAdapter creates a zap adapter. A nil logger discards output.
func NewZapAdapter(logger *zap.Logger) Adapter {
	if logger == nil {
		logger = zap.NewNop()
	}

	return sinkAdapter{sink: zapSink{logger: logger}}
}

func (z zapSink) write(_ context.Context, level Level, err error, msg string, attrs []attribute.KeyValue) {
	fields := make([]zap.Field, 0, len(attrs)+1)
	for _, attr := range attrs {
		fields = append(fields, zap.Any(string(attr.Key), attrValue(attr)))
	}

	if err != nil {
		fields = append(fields, zap.Error(err))
	}

	z.logger.Log(level.zap(), msg, fields...)
}

type zerologSink struct {
	logger zerolog.Logger
}

// NewZerologAdapter creates an adapter using zerolog.
func NewZerologAdapter(logger zerolog.Logger) Adapter {
	return sinkAdapter{sink: zerologSink{logger: logger}}
}

func (z zerologSink) write(_ context.Context, level Level, err error, msg string, attrs []attribute.KeyValue) {
	event := z.logger.WithLevel(level.zerolog())
	for _, attr := range attrs {
		event = event.Interface(string(attr.Key), attrValue(attr))
	}

	if err != nil {
		event = event.Err(err)
	}

	event.Msg(msg)
}

type stdSink struct {
	logger *log.Logger
}

// NewStdAdapter creates an adapter around log.Logger. If logger is nil log.Default is used.
func NewStdAdapter(logger *log.Logger) Adapter {
	if logger == nil {
		logger = log.Default()
	}

	return sinkAdapter{sink: stdSink{logger: logger}}
}

func (s stdSink) write(_ context.Context, level Level, err error, msg string, attrs []attribute.KeyValue) {
	builder := strings.Builder{}
	builder.WriteString(strings.ToUpper(level.String()))
	builder.WriteString(" ")
	builder.WriteString(msg)

	for _, attr := range attrs {
		builder.WriteString(" ")
		builder.WriteString(string(attr.Key))
		builder.WriteString("=")
		builder.WriteString(fmt.Sprint(attrValue(attr)))
	}

	if err != nil {
		builder.WriteString(" error=")
		builder.WriteString(err.Error())
	}

	s.logger.Println(builder.String())
}

func withTrace(ctx context.Context, attrs []attribute.KeyValue) []attribute.KeyValue {
	spanCtx := trace.SpanContextFromContext(ctx)
	if !spanCtx.IsValid() {
		return attrs
	}

	out := make([]attribute.KeyValue, 0, len(attrs)+2)
	out = append(out,
		attribute.String("trace_id", spanCtx.TraceID().String()),
		attribute.String("span_id", spanCtx.SpanID().String()),
	)

	return append(out, attrs...)
}

func attrValue(attr attribute.KeyValue) any {
	//nolint:exhaustive // attribute.INVALID falls through to AsInterface.
	switch attr.Value.Type() {
	case attribute.BOOL:
		return attr.Value.AsBool()
	case attribute.INT64:
		return attr.Value.AsInt64()
	case attribute.FLOAT64:
		return attr.Value.AsFloat64()
	case attribute.STRING:
		return attr.Value.AsString()
	default:
		return attr.Value.AsInterface()
	}
}
