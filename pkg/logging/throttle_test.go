package logging_test

import (
	"context"
	"testing"
	"time"

	"github.com/hyp3rd/otlpexport/pkg/logging"
	"github.com/hyp3rd/otlpexport/pkg/logging/loggingtest"
)

func TestThrottledAdapterLimitsPerMessage(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	recorder := loggingtest.New()

	adapter := logging.NewThrottledAdapter(recorder,
		logging.WithThrottleBurst(2),
		logging.WithThrottleInterval(time.Minute),
		logging.WithThrottleClock(func() time.Time { return now }),
	)

	for range 5 {
		adapter.Error(ctx, nil, "export failed")
	}

	adapter.Warn(ctx, "other message")

	errorsLogged := recorder.AtLevel(loggingtest.LevelError)
	if len(errorsLogged) != 2 {
		t.Fatalf("expected burst of 2 error lines, got %d", len(errorsLogged))
	}

	warns := recorder.AtLevel(loggingtest.LevelWarn)
	if len(warns) != 2 {
		t.Fatalf("expected one throttle notice and one distinct warning, got %d", len(warns))
	}

	if got, _ := warns[0].Attr("throttled_message"); got != "export failed" {
		t.Fatalf("expected throttle notice for %q, got %q", "export failed", got)
	}

	if warns[1].Message != "other message" {
		t.Fatalf("expected distinct message to pass, got %q", warns[1].Message)
	}
}

func TestThrottledAdapterRefills(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	recorder := loggingtest.New()

	adapter := logging.NewThrottledAdapter(recorder,
		logging.WithThrottleBurst(1),
		logging.WithThrottleInterval(time.Minute),
		logging.WithThrottleClock(func() time.Time { return now }),
	)

	adapter.Debug(ctx, "detail")
	adapter.Debug(ctx, "detail")

	now = now.Add(time.Minute)

	adapter.Debug(ctx, "detail")

	if got := len(recorder.AtLevel(loggingtest.LevelDebug)); got != 2 {
		t.Fatalf("expected limiter to refill after interval, got %d debug lines", got)
	}
}
