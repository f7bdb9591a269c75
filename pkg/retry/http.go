package retry

import (
	"context"
	"net/http"
	"time"

	"github.com/hashicorp/go-retryablehttp"
)

// NewHTTPClient wraps base so each request is retried while ClassifyHTTP reports a
// retryable outcome. The final response or error of the last attempt is returned
// unchanged so the caller can classify and log it. Request bodies must be rewindable,
// which holds for bodies built from a byte slice.
func NewHTTPClient(base *http.Client, policy Policy, logger retryablehttp.LeveledLogger) *http.Client {
	if base == nil {
		base = &http.Client{}
	}

	client := &retryablehttp.Client{
		HTTPClient:   base,
		Logger:       logger,
		RetryWaitMin: policy.InitialBackoff,
		RetryWaitMax: policy.MaxBackoff,
		RetryMax:     policy.MaxAttempts - 1,
		CheckRetry:   checkRetry,
		Backoff:      policy.httpBackoff,
		ErrorHandler: retryablehttp.PassthroughErrorHandler,
	}

	return client.StandardClient()
}

func checkRetry(ctx context.Context, resp *http.Response, err error) (bool, error) {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return false, ctxErr
	}

	return ClassifyHTTP(resp, err) == Retryable, nil
}

func (p Policy) httpBackoff(minWait, maxWait time.Duration, attemptNum int, resp *http.Response) time.Duration {
	if resp != nil && resp.Header.Get("Retry-After") != "" {
		return retryablehttp.DefaultBackoff(minWait, maxWait, attemptNum, resp)
	}

	return p.delay(attemptNum)
}
