package logging

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
)

// LeveledLogger bridges an Adapter to key/value leveled loggers such as the one
// expected by github.com/hashicorp/go-retryablehttp. Every line is emitted at debug.
type LeveledLogger struct {
	adapter Adapter
}

// NewLeveledLogger returns a LeveledLogger writing through adapter.
func NewLeveledLogger(adapter Adapter) *LeveledLogger {
	if adapter == nil {
		adapter = NewNoopAdapter()
	}

	return &LeveledLogger{adapter: adapter}
}

// Error logs msg at debug.
func (l *LeveledLogger) Error(msg string, keysAndValues ...any) {
	l.adapter.Debug(context.Background(), msg, kvAttrs(keysAndValues)...)
}

// Info logs msg at debug.
func (l *LeveledLogger) Info(msg string, keysAndValues ...any) {
	l.adapter.Debug(context.Background(), msg, kvAttrs(keysAndValues)...)
}

// Debug logs msg at debug.
func (l *LeveledLogger) Debug(msg string, keysAndValues ...any) {
	l.adapter.Debug(context.Background(), msg, kvAttrs(keysAndValues)...)
}

// Warn logs msg at debug.
func (l *LeveledLogger) Warn(msg string, keysAndValues ...any) {
	l.adapter.Debug(context.Background(), msg, kvAttrs(keysAndValues)...)
}

func kvAttrs(keysAndValues []any) []attribute.KeyValue {
	attrs := make([]attribute.KeyValue, 0, len(keysAndValues)/2)

	for i := 0; i+1 < len(keysAndValues); i += 2 {
		key := fmt.Sprint(keysAndValues[i])
		attrs = append(attrs, attribute.String(key, fmt.Sprint(keysAndValues[i+1])))
	}

	return attrs
}
