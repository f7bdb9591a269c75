package logging

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/time/rate"
)

const (
	defaultThrottleBurst    = 5
	defaultThrottleInterval = time.Minute
	throttleNoticeMessage   = "too many log messages of this kind, throttling further occurrences"
)

// ThrottleOption customizes a ThrottledAdapter.
type ThrottleOption func(*ThrottledAdapter)

// WithThrottleBurst sets how many occurrences of one message pass per interval.
func WithThrottleBurst(n int) ThrottleOption {
	return func(t *ThrottledAdapter) {
		if n > 0 {
			t.burst = n
		}
	}
}

// WithThrottleInterval sets the window over which the burst refills.
func WithThrottleInterval(d time.Duration) ThrottleOption {
	return func(t *ThrottledAdapter) {
		if d > 0 {
			t.interval = d
		}
	}
}

// WithThrottleClock overrides the time source.
func WithThrottleClock(now func() time.Time) ThrottleOption {
	return func(t *ThrottledAdapter) {
		if now != nil {
			t.now = now
		}
	}
}

// ThrottledAdapter rate limits log lines per distinct message. Each message gets its own
// token bucket, so a flood of one failure does not hide a different one. The first time a
// message is suppressed a single warning announces it.
type ThrottledAdapter struct {
	inner    Adapter
	burst    int
	interval time.Duration
	now      func() time.Time

	mu       sync.Mutex
	limiters map[string]*throttleState
}

type throttleState struct {
	limiter   *rate.Limiter
	announced bool
}

// NewThrottledAdapter wraps inner with per-message throttling.
func NewThrottledAdapter(inner Adapter, opts ...ThrottleOption) *ThrottledAdapter {
	if inner == nil {
		inner = NewNoopAdapter()
	}

	t := &ThrottledAdapter{
		inner:    inner,
		burst:    defaultThrottleBurst,
		interval: defaultThrottleInterval,
		now:      time.Now,
		limiters: map[string]*throttleState{},
	}
	for _, opt := range opts {
		opt(t)
	}

	return t
}

// Debug implements Adapter.
func (t *ThrottledAdapter) Debug(ctx context.Context, msg string, attrs ...attribute.KeyValue) {
	if t.allow(ctx, msg) {
		t.inner.Debug(ctx, msg, attrs...)
	}
}

// Info implements Adapter.
func (t *ThrottledAdapter) Info(ctx context.Context, msg string, attrs ...attribute.KeyValue) {
	if t.allow(ctx, msg) {
		t.inner.Info(ctx, msg, attrs...)
	}
}

// Warn implements Adapter.
func (t *ThrottledAdapter) Warn(ctx context.Context, msg string, attrs ...attribute.KeyValue) {
	if t.allow(ctx, msg) {
		t.inner.Warn(ctx, msg, attrs...)
	}
}

// Error implements Adapter.
func (t *ThrottledAdapter) Error(ctx context.Context, err error, msg string, attrs ...attribute.KeyValue) {
	if t.allow(ctx, msg) {
		t.inner.Error(ctx, err, msg, attrs...)
	}
}

func (t *ThrottledAdapter) allow(ctx context.Context, msg string) bool {
	t.mu.Lock()

	state, ok := t.limiters[msg]
	if !ok {
		perEvent := t.interval / time.Duration(t.burst)
		state = &throttleState{limiter: rate.NewLimiter(rate.Every(perEvent), t.burst)}
		t.limiters[msg] = state
	}

	if state.limiter.AllowN(t.now(), 1) {
		state.announced = false
		t.mu.Unlock()

		return true
	}

	announce := !state.announced
	state.announced = true
	t.mu.Unlock()

	if announce {
		t.inner.Warn(ctx, throttleNoticeMessage, attribute.String("throttled_message", msg))
	}

	return false
}
