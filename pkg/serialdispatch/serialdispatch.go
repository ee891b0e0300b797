// Package serialdispatch provides a single-consumer task queue. Every function
// handed to a Dispatcher runs on one dedicated goroutine in FIFO order, so state
// touched only from dispatched tasks needs no further locking.
package serialdispatch

import (
	"errors"
	"sync"
)

var ErrClosed = errors.New("serialdispatch: dispatcher closed")

type task struct {
	fn   func() error
	done chan error
}

// Dispatcher owns a single worker goroutine that executes tasks serially.
type Dispatcher struct {
	tasks chan task

	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup
}

// New creates a dispatcher whose queue holds up to buffer pending tasks before
// Dispatch blocks the caller.
func New(buffer int) *Dispatcher {
	d := &Dispatcher{
		tasks: make(chan task, buffer),
	}
	d.wg.Add(1)
	go d.run()
	return d
}

func (d *Dispatcher) run() {
	defer d.wg.Done()
	for t := range d.tasks {
		err := d.execute(t.fn)
		if t.done != nil {
			t.done <- err
		}
	}
}

func (d *Dispatcher) execute(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.Join(err, errorFromPanic(r))
		}
	}()
	return fn()
}

// Dispatch enqueues fn and waits until it has run, returning fn's error.
// Calling Dispatch from inside a dispatched task deadlocks; use DispatchAsync
// for follow-up work scheduled by a task.
func (d *Dispatcher) Dispatch(fn func() error) error {
	done := make(chan error, 1)
	if err := d.enqueue(task{fn: fn, done: done}); err != nil {
		return err
	}
	return <-done
}

// DispatchAsync enqueues fn without waiting for it to run.
func (d *Dispatcher) DispatchAsync(fn func() error) error {
	return d.enqueue(task{fn: fn})
}

func (d *Dispatcher) enqueue(t task) error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return ErrClosed
	}
	// Holding the lock while sending keeps Close from closing the channel
	// under a concurrent enqueue.
	d.tasks <- t
	d.mu.Unlock()
	return nil
}

// Close drains the queue, runs the remaining tasks, and rejects new ones.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	close(d.tasks)
	d.mu.Unlock()
	d.wg.Wait()
}

func errorFromPanic(r any) error {
	if err, ok := r.(error); ok {
		return err
	}
	return errors.New("serialdispatch: task panicked")
}
