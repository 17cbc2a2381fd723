package vfs

import "context"

// watchRequest is one physical watch or unwatch operation.
type watchRequest struct {
	ctx  context.Context
	fn   func(ctx context.Context) error
	done chan error
}

// requestQueue runs watch and unwatch operations strictly one at a time in
// submission order, so the watcher never sees interleaved calls.
type requestQueue struct {
	requests chan watchRequest
	quit     chan struct{}
	done     chan struct{}
}

func newRequestQueue() *requestQueue {
	q := &requestQueue{
		requests: make(chan watchRequest, 64),
		quit:     make(chan struct{}),
		done:     make(chan struct{}),
	}
	go q.run()
	return q
}

func (q *requestQueue) run() {
	defer close(q.done)
	for {
		select {
		case <-q.quit:
			return
		case req := <-q.requests:
			req.done <- req.fn(req.ctx)
		}
	}
}

// do submits fn and waits for its result. Cancelling ctx stops the wait, not
// the operation.
func (q *requestQueue) do(ctx context.Context, fn func(ctx context.Context) error) error {
	req := watchRequest{ctx: context.WithoutCancel(ctx), fn: fn, done: make(chan error, 1)}
	select {
	case q.requests <- req:
	case <-q.quit:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-req.done:
		return err
	case <-q.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (q *requestQueue) close() {
	close(q.quit)
	<-q.done
}
