package resilience

import (
	"context"
)

// Future is the handle of a queued call.
type Future[T any] struct {
	done chan struct{}
	val  T
	err  error
}

func newFuture[T any]() *Future[T] {
	return &Future[T]{done: make(chan struct{})}
}

func (f *Future[T]) complete(v T, err error) {
	f.val, f.err = v, err
	close(f.done)
}

// Done is closed once the result is available.
func (f *Future[T]) Done() <-chan struct{} { return f.done }

// Await blocks until the call completes or ctx is done. Cancelling ctx
// does not cancel the call.
func (f *Future[T]) Await(ctx context.Context) (T, error) {
	select {
	case <-f.done:
		return f.val, f.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// mapFuture converts the result of src once it completes.
func mapFuture[T any](src *Future[any], convert func(any) (T, error)) *Future[T] {
	dst := newFuture[T]()
	go func() {
		<-src.done
		if src.err != nil {
			var zero T
			dst.complete(zero, src.err)
			return
		}
		dst.complete(convert(src.val))
	}()
	return dst
}
