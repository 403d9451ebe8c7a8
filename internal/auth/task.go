package auth

import (
	"context"
	"sync/atomic"
)

// Task is the handle of one polling loop.
type Task struct {
	token     string
	ctx       context.Context
	cancel    context.CancelFunc
	cancelled atomic.Bool
	done      chan struct{}
	err       error
}

func newTask(token string) *Task {
	ctx, cancel := context.WithCancel(context.Background())
	return &Task{token: token, ctx: ctx, cancel: cancel, done: make(chan struct{})}
}

// Token returns the challenge polled by the task.
func (t *Task) Token() string { return t.token }

// Cancel stops the loop. A result arriving after Cancel is dropped.
func (t *Task) Cancel() {
	t.cancelled.Store(true)
	t.cancel()
}

// Cancelled reports whether Cancel was called.
func (t *Task) Cancelled() bool { return t.cancelled.Load() }

// Done is closed when the loop has exited.
func (t *Task) Done() <-chan struct{} { return t.done }

// Err returns why the loop exited: nil once authenticated, an AuthExpired
// failure on deadline, context.Canceled when cancelled. Only valid after
// Done is closed.
func (t *Task) Err() error {
	select {
	case <-t.done:
		return t.err
	default:
		return nil
	}
}

// Wait blocks until the loop exits or ctx ends.
func (t *Task) Wait(ctx context.Context) error {
	select {
	case <-t.done:
		return t.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (t *Task) finish(err error) {
	t.err = err
	t.cancel()
	close(t.done)
}
