// Package retry wraps single export attempts with bounded retries and exponential backoff.
package retry

import (
	"math"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/hyp3rd/ewrap"
)

const (
	defaultMaxAttempts       = 5
	defaultInitialBackoff    = time.Second
	defaultMaxBackoff        = 5 * time.Second
	defaultBackoffMultiplier = 1.5
	jitterFactor             = 0.2
)

// ErrInvalidPolicy is returned when a Policy cannot drive retries.
var ErrInvalidPolicy = ewrap.New("invalid retry policy").WithContext(
	&ewrap.ErrorContext{
		Severity: ewrap.SeverityError,
		Type:     ewrap.ErrorTypeConfiguration,
	},
)

// Policy bounds the retries performed beneath one export call.
// MaxAttempts counts the first attempt, so 3 allows two retries.
type Policy struct {
	MaxAttempts       int
	InitialBackoff    time.Duration
	MaxBackoff        time.Duration
	BackoffMultiplier float64
}

// DefaultPolicy returns the policy used when retries are enabled without tuning.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts:       defaultMaxAttempts,
		InitialBackoff:    defaultInitialBackoff,
		MaxBackoff:        defaultMaxBackoff,
		BackoffMultiplier: defaultBackoffMultiplier,
	}
}

// Validate checks the policy bounds.
func (p Policy) Validate() error {
	if p.MaxAttempts < 1 || p.MaxAttempts > 100 {
		return ewrap.Wrapf(ErrInvalidPolicy, "max attempts must be within [1,100], got %d", p.MaxAttempts)
	}

	if p.InitialBackoff <= 0 {
		return ewrap.Wrapf(ErrInvalidPolicy, "initial backoff must be positive, got %s", p.InitialBackoff)
	}

	if p.MaxBackoff < p.InitialBackoff {
		return ewrap.Wrapf(ErrInvalidPolicy, "max backoff %s is below initial backoff %s", p.MaxBackoff, p.InitialBackoff)
	}

	if p.BackoffMultiplier < 1 {
		return ewrap.Wrapf(ErrInvalidPolicy, "backoff multiplier must be >= 1, got %f", p.BackoffMultiplier)
	}

	return nil
}

func (p Policy) newBackOff() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.InitialBackoff
	b.MaxInterval = p.MaxBackoff
	b.Multiplier = p.BackoffMultiplier
	b.RandomizationFactor = jitterFactor
	b.Reset()

	return b
}

// delay returns the un-jittered wait before retry number attempt (0-based).
func (p Policy) delay(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}

	d := float64(p.InitialBackoff) * math.Pow(p.BackoffMultiplier, float64(attempt))
	if d > float64(p.MaxBackoff) {
		return p.MaxBackoff
	}

	return time.Duration(d)
}
