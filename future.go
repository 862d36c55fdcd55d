package torcheck

import "context"

// Future holds the outcome of a check started with Go.
type Future[C Doer] struct {
	done   chan struct{}
	client C
	err    error
}

// Go starts the check selected by m on a new goroutine and returns
// immediately. Cancellation is whatever ctx and the client provide.
func Go[C Doer](ctx context.Context, client C, m Method, opts ...Option) *Future[C] {
	f := &Future[C]{done: make(chan struct{})}
	go func() {
		defer close(f.done)
		f.client, f.err = Verify(ctx, client, m, opts...)
	}()
	return f
}

// Done is closed once the check has finished.
func (f *Future[C]) Done() <-chan struct{} {
	return f.done
}

// Wait blocks until the check has finished and returns its outcome.
// It may be called any number of times.
func (f *Future[C]) Wait() (C, error) {
	<-f.done
	return f.client, f.err
}
