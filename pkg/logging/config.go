package logging

import (
	"context"
	"crypto/rand"
	"encoding/binary"
	"io"
	"log"
	"log/slog"
	"math"
	"os"
	"strings"

	"github.com/hyp3rd/ewrap"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/hyp3rd/otlpexport/pkg/config"
)

// FromConfig builds an Adapter from logging configuration. Lines below the configured
// level are dropped and debug/info lines are sampled by SampleRatio.
func FromConfig(cfg config.LoggingConfig) Adapter {
	level := ParseLevel(cfg.Level)
	out := outputWriter(cfg.Output)

	var base Adapter

	switch strings.ToLower(cfg.Adapter) {
	case "none", "noop":
		return NewNoopAdapter()
	case "std":
		base = NewStdAdapter(log.New(out, "", log.LstdFlags))
	case "zap":
		logger, err := newZapLogger(cfg, level)
		if err != nil {
			base = newSlogAdapter(cfg, level, out)

			break
		}

		base = NewZapAdapter(logger)
	case "zerolog":
		base = NewZerologAdapter(zerolog.New(out).Level(level.zerolog()).With().Timestamp().Logger())
	default:
		base = newSlogAdapter(cfg, level, out)
	}

	return applySampling(MinLevel(base, level), cfg.SampleRatio)
}

func outputWriter(name string) io.Writer {
	if strings.EqualFold(name, "stdout") {
		return os.Stdout
	}

	return os.Stderr
}

func newSlogAdapter(cfg config.LoggingConfig, level Level, out io.Writer) Adapter {
	opts := &slog.HandlerOptions{Level: level.slog()}

	if strings.EqualFold(cfg.Format, "text") {
		return NewSlogAdapter(slog.New(slog.NewTextHandler(out, opts)))
	}

	return NewSlogAdapter(slog.New(slog.NewJSONHandler(out, opts)))
}

func newZapLogger(cfg config.LoggingConfig, level Level) (*zap.Logger, error) {
	configZap := zap.NewProductionConfig()
	configZap.Level = zap.NewAtomicLevelAt(level.zap())
	configZap.OutputPaths = []string{outputName(cfg.Output)}
	configZap.ErrorOutputPaths = []string{"stderr"}

	if strings.EqualFold(cfg.Format, "text") {
		configZap.Encoding = "console"
		configZap.EncoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
	}

	zapLogger, err := configZap.Build()
	if err != nil {
		return nil, ewrap.Wrap(err, "build zap logger")
	}

	return zapLogger, nil
}

func outputName(name string) string {
	if strings.EqualFold(name, "stdout") {
		return "stdout"
	}

	return "stderr"
}

// MinLevel drops every line below min before it reaches adapter.
func MinLevel(adapter Adapter, minLevel Level) Adapter {
	if adapter == nil {
		return NewNoopAdapter()
	}

	if minLevel <= LevelDebug {
		return adapter
	}

	return levelFilter{inner: adapter, min: minLevel}
}

type levelFilter struct {
	inner Adapter
	min   Level
}

func (f levelFilter) Debug(ctx context.Context, msg string, attrs ...attribute.KeyValue) {
	if f.min <= LevelDebug {
		f.inner.Debug(ctx, msg, attrs...)
	}
}

func (f levelFilter) Info(ctx context.Context, msg string, attrs ...attribute.KeyValue) {
	if f.min <= LevelInfo {
		f.inner.Info(ctx, msg, attrs...)
	}
}

func (f levelFilter) Warn(ctx context.Context, msg string, attrs ...attribute.KeyValue) {
	if f.min <= LevelWarn {
		f.inner.Warn(ctx, msg, attrs...)
	}
}

func (f levelFilter) Error(ctx context.Context, err error, msg string, attrs ...attribute.KeyValue) {
	f.inner.Error(ctx, err, msg, attrs...)
}

func applySampling(adapter Adapter, ratio float64) Adapter {
	if ratio >= 1 {
		return adapter
	}

	if ratio < 0 {
		ratio = 0
	}

	return &samplingAdapter{inner: adapter, ratio: ratio}
}

// samplingAdapter keeps a ratio of debug and info lines. Warnings and errors always pass.
type samplingAdapter struct {
	inner Adapter
	ratio float64
}

func (s *samplingAdapter) Info(ctx context.Context, msg string, attrs ...attribute.KeyValue) {
	if s.keep() {
		s.inner.Info(ctx, msg, attrs...)
	}
}

func (s *samplingAdapter) Debug(ctx context.Context, msg string, attrs ...attribute.KeyValue) {
	if s.keep() {
		s.inner.Debug(ctx, msg, attrs...)
	}
}

func (s *samplingAdapter) Warn(ctx context.Context, msg string, attrs ...attribute.KeyValue) {
	s.inner.Warn(ctx, msg, attrs...)
}

func (s *samplingAdapter) Error(ctx context.Context, err error, msg string, attrs ...attribute.KeyValue) {
	s.inner.Error(ctx, err, msg, attrs...)
}

func (s *samplingAdapter) keep() bool {
	if s.ratio <= 0 {
		return false
	}

	var randomBytes [8]byte

	_, err := rand.Read(randomBytes[:])
	if err != nil {
		return true
	}

	n := binary.BigEndian.Uint64(randomBytes[:])

	return float64(n)/float64(math.MaxUint64) <= s.ratio
}
