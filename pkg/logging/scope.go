package logging

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
)

// With returns an adapter that appends attrs to every line written through adapter.
func With(adapter Adapter, attrs ...attribute.KeyValue) Adapter {
	if adapter == nil {
		adapter = NewNoopAdapter()
	}

	if len(attrs) == 0 {
		return adapter
	}

	return scoped{inner: adapter, attrs: append([]attribute.KeyValue(nil), attrs...)}
}

type scoped struct {
	inner Adapter
	attrs []attribute.KeyValue
}

func (s scoped) merge(attrs []attribute.KeyValue) []attribute.KeyValue {
	out := make([]attribute.KeyValue, 0, len(attrs)+len(s.attrs))
	out = append(out, attrs...)

	return append(out, s.attrs...)
}

func (s scoped) Debug(ctx context.Context, msg string, attrs ...attribute.KeyValue) {
	s.inner.Debug(ctx, msg, s.merge(attrs)...)
}

func (s scoped) Info(ctx context.Context, msg string, attrs ...attribute.KeyValue) {
	s.inner.Info(ctx, msg, s.merge(attrs)...)
}

func (s scoped) Warn(ctx context.Context, msg string, attrs ...attribute.KeyValue) {
	s.inner.Warn(ctx, msg, s.merge(attrs)...)
}

func (s scoped) Error(ctx context.Context, err error, msg string, attrs ...attribute.KeyValue) {
	s.inner.Error(ctx, err, msg, s.merge(attrs)...)
}
