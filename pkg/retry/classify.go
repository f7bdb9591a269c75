package retry

import (
	"context"
	"errors"
	"net/http"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// Outcome classifies one export attempt.
type Outcome int

const (
	// Success means the collector accepted the payload.
	Success Outcome = iota
	// Retryable means the failure is transient and the attempt may be repeated.
	Retryable
	// Fatal means repeating the attempt cannot succeed.
	Fatal
)

// String implements fmt.Stringer.
func (o Outcome) String() string {
	switch o {
	case Success:
		return "success"
	case Retryable:
		return "retryable-failure"
	default:
		return "fatal-failure"
	}
}

// Classify maps a status code onto an Outcome. Both transports share this table.
func Classify(code codes.Code) Outcome {
	switch code {
	case codes.OK:
		return Success
	case codes.Canceled,
		codes.DeadlineExceeded,
		codes.ResourceExhausted,
		codes.Aborted,
		codes.OutOfRange,
		codes.Unavailable,
		codes.DataLoss:
		return Retryable
	default:
		return Fatal
	}
}

// ClassifyError classifies a gRPC call error.
func ClassifyError(err error) Outcome {
	if err == nil {
		return Success
	}

	return Classify(CodeOf(err))
}

// CodeOf extracts the status code of err, mapping context errors to their gRPC equivalents.
func CodeOf(err error) codes.Code {
	if err == nil {
		return codes.OK
	}

	if st, ok := status.FromError(err); ok {
		return st.Code()
	}

	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return status.FromContextError(err).Code()
	}

	return codes.Unknown
}

// CodeFromHTTPStatus maps an HTTP status onto the gRPC code a gRPC client would report.
func CodeFromHTTPStatus(httpStatus int) codes.Code {
	if httpStatus >= http.StatusOK && httpStatus < http.StatusMultipleChoices {
		return codes.OK
	}

	switch httpStatus {
	case http.StatusBadRequest:
		return codes.Internal
	case http.StatusUnauthorized:
		return codes.Unauthenticated
	case http.StatusForbidden:
		return codes.PermissionDenied
	case http.StatusNotFound:
		return codes.Unimplemented
	case http.StatusTooManyRequests,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return codes.Unavailable
	default:
		return codes.Unknown
	}
}

// ClassifyHTTP classifies an HTTP attempt. A transport error other than a context
// error is treated as the endpoint being unavailable.
func ClassifyHTTP(resp *http.Response, err error) Outcome {
	if err != nil {
		return Classify(CodeOfTransportError(err))
	}

	if resp == nil {
		return Fatal
	}

	return Classify(CodeFromHTTPStatus(resp.StatusCode))
}

// CodeOfTransportError maps an error from sending an HTTP request onto a status code.
// Context errors keep their own code; anything else means the endpoint was unreachable.
func CodeOfTransportError(err error) codes.Code {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return CodeOf(err)
	}

	return codes.Unavailable
}
