package retry

import (
	"context"
	"errors"
	"strings"

	"github.com/cenkalti/backoff/v5"
	"go.opentelemetry.io/otel/attribute"
	"google.golang.org/grpc"
	"google.golang.org/grpc/status"

	"github.com/hyp3rd/otlpexport/pkg/logging"
)

// UnaryClientInterceptor returns an interceptor that repeats a unary call while
// ClassifyError reports a retryable failure, up to policy.MaxAttempts attempts.
// The caller's context bounds the whole sequence, backoff waits included.
func UnaryClientInterceptor(policy Policy, logger logging.Adapter) grpc.UnaryClientInterceptor {
	if logger == nil {
		logger = logging.NewNoopAdapter()
	}

	return func(ctx context.Context,
		method string, req,
		reply any,
		cc *grpc.ClientConn,
		invoker grpc.UnaryInvoker,
		opts ...grpc.CallOption,
	) error {
		service, rpcMethod := splitFullMethod(method)
		attempt := 0

		operation := func() (struct{}, error) {
			attempt++

			err := invoker(ctx, method, req, reply, cc, opts...)
			if err == nil {
				return struct{}{}, nil
			}

			if ClassifyError(err) != Retryable {
				return struct{}{}, backoff.Permanent(err)
			}

			if attempt >= policy.MaxAttempts {
				return struct{}{}, err
			}

			logger.Debug(ctx, "export attempt failed, retrying",
				attribute.String("rpc.service", service),
				attribute.String("rpc.method", rpcMethod),
				attribute.Int("attempt", attempt),
				attribute.String("code", status.Code(err).String()),
			)

			return struct{}{}, err
		}

		_, err := backoff.Retry(ctx, operation,
			backoff.WithBackOff(policy.newBackOff()),
			backoff.WithMaxTries(uint(policy.MaxAttempts)),
		)
		if err == nil {
			return nil
		}

		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			if _, ok := status.FromError(err); !ok {
				return status.FromContextError(err).Err()
			}
		}

		return err
	}
}

func splitFullMethod(full string) (service, method string) {
	full = strings.TrimPrefix(full, "/")

	service, method, ok := strings.Cut(full, "/")
	if !ok || service == "" {
		return "unknown", "unknown"
	}

	return service, method
}
