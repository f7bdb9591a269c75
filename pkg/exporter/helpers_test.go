package exporter_test

import (
	"context"
	"strings"
	"testing"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	coltracepb "go.opentelemetry.io/proto/otlp/collector/trace/v1"
	tracepb "go.opentelemetry.io/proto/otlp/trace/v1"

	"github.com/hyp3rd/otlpexport/pkg/completion"
	"github.com/hyp3rd/otlpexport/pkg/logging/loggingtest"
	"github.com/hyp3rd/otlpexport/pkg/retry"
)

func spanRequest(n int) *coltracepb.ExportTraceServiceRequest {
	spans := make([]*tracepb.Span, n)
	for i := range spans {
		spans[i] = &tracepb.Span{
			TraceId: []byte{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14, 15, 16},
			SpanId:  []byte{1, 2, 3, 4, 5, 6, 7, byte(i + 1)},
			Name:    "test-span",
		}
	}

	return &coltracepb.ExportTraceServiceRequest{
		ResourceSpans: []*tracepb.ResourceSpans{{
			ScopeSpans: []*tracepb.ScopeSpans{{Spans: spans}},
		}},
	}
}

func countSpans(req *coltracepb.ExportTraceServiceRequest) int {
	total := 0

	for _, rs := range req.GetResourceSpans() {
		for _, ss := range rs.GetScopeSpans() {
			total += len(ss.GetSpans())
		}
	}

	return total
}

func fastRetry(attempts int) retry.Policy {
	return retry.Policy{
		MaxAttempts:       attempts,
		InitialBackoff:    time.Millisecond,
		MaxBackoff:        5 * time.Millisecond,
		BackoffMultiplier: 1.5,
	}
}

func await(t *testing.T, token *completion.Token) error {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	select {
	case <-token.Done():
		return token.Err()
	case <-ctx.Done():
		t.Fatal("token did not resolve in time")

		return nil
	}
}

func entriesContaining(rec *loggingtest.Recorder, level loggingtest.Level, fragment string) []loggingtest.Entry {
	var out []loggingtest.Entry

	for _, entry := range rec.AtLevel(level) {
		if containsFold(entry.Message, fragment) {
			out = append(out, entry)
		}
	}

	return out
}

func containsFold(s, sub string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(sub))
}

func counterSum(rm metricdata.ResourceMetrics, name string, want *attribute.KeyValue) int64 {
	var total int64

	for _, scope := range rm.ScopeMetrics {
		for _, m := range scope.Metrics {
			if m.Name != name {
				continue
			}

			sum, ok := m.Data.(metricdata.Sum[int64])
			if !ok {
				continue
			}

			for _, dp := range sum.DataPoints {
				if want != nil {
					value, found := dp.Attributes.Value(want.Key)
					if !found || value != want.Value {
						continue
					}
				}

				total += dp.Value
			}
		}
	}

	return total
}
