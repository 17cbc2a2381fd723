package vfs

import (
	"runtime/debug"
	"sync"

	"go.uber.org/zap"
)

// dispatcher runs jobs one at a time, in the order they were posted, on its
// own goroutine. Event delivery, the end of a change bracket and external
// change handling all go through it, which gives them a single order.
type dispatcher struct {
	logger *zap.Logger

	mu     sync.Mutex
	cond   *sync.Cond
	jobs   []func()
	busy   bool
	closed bool
	done   chan struct{}
}

func newDispatcher(logger *zap.Logger) *dispatcher {
	d := &dispatcher{logger: logger, done: make(chan struct{})}
	d.cond = sync.NewCond(&d.mu)
	go d.run()
	return d
}

func (d *dispatcher) post(job func()) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return false
	}
	d.jobs = append(d.jobs, job)
	d.cond.Broadcast()
	return true
}

func (d *dispatcher) run() {
	defer close(d.done)
	d.mu.Lock()
	for {
		for len(d.jobs) == 0 && !d.closed {
			d.cond.Wait()
		}
		if len(d.jobs) == 0 {
			d.mu.Unlock()
			return
		}
		job := d.jobs[0]
		d.jobs[0] = nil
		d.jobs = d.jobs[1:]
		d.busy = true
		d.mu.Unlock()

		d.exec(job)

		d.mu.Lock()
		d.busy = false
		d.cond.Broadcast()
	}
}

func (d *dispatcher) exec(job func()) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("event handler panicked",
				zap.Any("panic", r), zap.ByteString("stack", debug.Stack()))
		}
	}()
	job()
}

// wait blocks until no job is queued or running. It must not be called from
// a job.
func (d *dispatcher) wait() {
	d.mu.Lock()
	defer d.mu.Unlock()
	for len(d.jobs) > 0 || d.busy {
		d.cond.Wait()
	}
}

// close lets queued jobs finish and stops the goroutine.
func (d *dispatcher) close() {
	d.mu.Lock()
	d.closed = true
	d.cond.Broadcast()
	d.mu.Unlock()
	<-d.done
}
