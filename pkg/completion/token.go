// Package completion provides the asynchronous result handle returned by export and
// shutdown operations.
package completion

import (
	"context"
	"sync"

	"github.com/hyp3rd/ewrap"
)

// ErrFailed is recorded when a token is failed without an explicit cause.
var ErrFailed = ewrap.New("operation failed")

// State is the observable state of a Token.
type State int32

const (
	// StatePending means the operation has not settled yet.
	StatePending State = iota
	// StateSucceeded means the operation completed successfully.
	StateSucceeded
	// StateFailed means the operation completed with an error.
	StateFailed
)

// String implements fmt.Stringer.
func (s State) String() string {
	switch s {
	case StateSucceeded:
		return "succeeded"
	case StateFailed:
		return "failed"
	default:
		return "pending"
	}
}

// Token is a write-once result cell. Exactly one of Succeed or Fail takes effect;
// later resolution attempts are rejected and never change the outcome.
type Token struct {
	mu        sync.Mutex
	state     State
	err       error
	done      chan struct{}
	callbacks []func()
}

// New returns a pending token.
func New() *Token {
	return &Token{done: make(chan struct{})}
}

// Succeeded returns a token that has already succeeded.
func Succeeded() *Token {
	t := New()
	t.Succeed()

	return t
}

// Failed returns a token that has already failed with err.
func Failed(err error) *Token {
	t := New()
	t.Fail(err)

	return t
}

// Succeed resolves the token successfully. It reports false if the token was already resolved.
func (t *Token) Succeed() bool {
	return t.resolve(StateSucceeded, nil)
}

// Fail resolves the token with err. A nil err is recorded as ErrFailed.
// It reports false if the token was already resolved.
func (t *Token) Fail(err error) bool {
	if err == nil {
		err = ErrFailed
	}

	return t.resolve(StateFailed, err)
}

func (t *Token) resolve(state State, err error) bool {
	t.mu.Lock()

	if t.state != StatePending {
		t.mu.Unlock()

		return false
	}

	t.state = state
	t.err = err
	callbacks := t.callbacks
	t.callbacks = nil
	close(t.done)
	t.mu.Unlock()

	for _, fn := range callbacks {
		fn()
	}

	return true
}

// Done returns a channel closed once the token is resolved.
func (t *Token) Done() <-chan struct{} {
	return t.done
}

// State returns the current state.
func (t *Token) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()

	return t.state
}

// IsDone reports whether the token has been resolved.
func (t *Token) IsDone() bool {
	return t.State() != StatePending
}

// IsSuccess reports whether the token resolved successfully.
func (t *Token) IsSuccess() bool {
	return t.State() == StateSucceeded
}

// Err returns the failure cause, or nil while pending or after success.
func (t *Token) Err() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	return t.err
}

// WhenComplete registers fn to run once the token resolves. If the token is already
// resolved fn runs immediately on the calling goroutine; otherwise it runs on the
// goroutine that resolves the token.
func (t *Token) WhenComplete(fn func()) *Token {
	if fn == nil {
		return t
	}

	t.mu.Lock()

	if t.state == StatePending {
		t.callbacks = append(t.callbacks, fn)
		t.mu.Unlock()

		return t
	}

	t.mu.Unlock()
	fn()

	return t
}

// Wait blocks until the token resolves or ctx is done. It returns the token's error,
// or a wrapped context error if ctx ended first.
func (t *Token) Wait(ctx context.Context) error {
	select {
	case <-t.done:
		return t.Err()
	case <-ctx.Done():
		return ewrap.Wrap(ctx.Err(), "wait for completion")
	}
}
