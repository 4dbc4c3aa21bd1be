package geofence

import (
	"context"
	"sync"
)

// Result is an asynchronous outcome that settles exactly once.
//
// The first Resolve or Reject wins. Later calls report false and change
// nothing, so a platform response that arrives after a timeout, or a caller
// that stopped waiting, is safely ignored.
//
// Thread Safety:
//   - All methods are safe for concurrent use.
type Result[T any] struct {
	once  sync.Once
	done  chan struct{}
	value T
	err   error
}

// NewResult returns an unsettled Result.
func NewResult[T any]() *Result[T] {
	return &Result[T]{done: make(chan struct{})}
}

// Resolved returns a Result already settled with v.
func Resolved[T any](v T) *Result[T] {
	r := NewResult[T]()
	r.Resolve(v)
	return r
}

// Rejected returns a Result already settled with err.
func Rejected[T any](err error) *Result[T] {
	r := NewResult[T]()
	r.Reject(err)
	return r
}

// Resolve settles the result with v. It reports whether this call settled it.
func (r *Result[T]) Resolve(v T) bool {
	return r.settle(v, nil)
}

// Reject settles the result with err. A nil err is replaced by ErrUnknown.
// It reports whether this call settled it.
func (r *Result[T]) Reject(err error) bool {
	if err == nil {
		err = ErrUnknown
	}
	var zero T
	return r.settle(zero, err)
}

func (r *Result[T]) settle(v T, err error) bool {
	settled := false
	r.once.Do(func() {
		r.value = v
		r.err = err
		settled = true
		close(r.done)
	})
	return settled
}

// Done is closed once the result settles.
func (r *Result[T]) Done() <-chan struct{} {
	return r.done
}

// Wait blocks until the result settles or ctx is done. Giving up on ctx
// does not settle the result.
func (r *Result[T]) Wait(ctx context.Context) (T, error) {
	select {
	case <-r.done:
		return r.value, r.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// Settled reports whether the result has settled, without blocking.
func (r *Result[T]) Settled() bool {
	select {
	case <-r.done:
		return true
	default:
		return false
	}
}

// Then runs fn on its own goroutine once the result settles.
func (r *Result[T]) Then(fn func(T, error)) {
	go func() {
		<-r.done
		fn(r.value, r.err)
	}()
}

// Map derives a Result[U] from r. Rejections pass through unchanged.
func Map[T, U any](r *Result[T], fn func(T) U) *Result[U] {
	out := NewResult[U]()
	r.Then(func(v T, err error) {
		if err != nil {
			out.Reject(err)
			return
		}
		out.Resolve(fn(v))
	})
	return out
}
