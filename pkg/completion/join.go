package completion

import (
	"errors"
	"sync"
	"sync/atomic"
)

// Join returns a token that resolves once every child has settled. It succeeds only
// when all children succeeded; otherwise it fails with the children's errors joined.
// Joining no tokens yields an already-succeeded token. Nil children count as succeeded.
func Join(tokens ...*Token) *Token {
	if len(tokens) == 0 {
		return Succeeded()
	}

	parent := New()

	var (
		remaining atomic.Int64
		mu        sync.Mutex
		errs      []error
	)

	remaining.Store(int64(len(tokens)))

	settle := func(child *Token) {
		if child != nil {
			if err := child.Err(); err != nil {
				mu.Lock()
				errs = append(errs, err)
				mu.Unlock()
			}
		}

		if remaining.Add(-1) != 0 {
			return
		}

		mu.Lock()
		joined := errors.Join(errs...)
		mu.Unlock()

		if joined != nil {
			parent.Fail(joined)

			return
		}

		parent.Succeed()
	}

	for _, child := range tokens {
		if child == nil {
			settle(nil)

			continue
		}

		child.WhenComplete(func() { settle(child) })
	}

	return parent
}
