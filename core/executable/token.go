package executable

import (
	"sync"
	"time"
)

// Token coordinates a worker with the callers that cancel or wait for it.
// The worker polls Cancelled (or selects on Done) and calls Finish exactly
// when it has stopped touching the backend.
type Token struct {
	cancelOnce sync.Once
	finishOnce sync.Once

	cancelled chan struct{}
	finished  chan struct{}
}

func NewToken() *Token {
	return &Token{
		cancelled: make(chan struct{}),
		finished:  make(chan struct{}),
	}
}

func (t *Token) Cancel() {
	t.cancelOnce.Do(func() { close(t.cancelled) })
}

func (t *Token) Cancelled() bool {
	select {
	case <-t.cancelled:
		return true
	default:
	}

	return false
}

// Done is closed once Cancel has been called.
func (t *Token) Done() <-chan struct{} {
	return t.cancelled
}

func (t *Token) Finish() {
	t.finishOnce.Do(func() { close(t.finished) })
}

func (t *Token) Finished() <-chan struct{} {
	return t.finished
}

// Wait blocks until the worker finishes or the timeout elapses.
// It reports whether the worker finished.
func (t *Token) Wait(timeout time.Duration) bool {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-t.finished:
		return true
	case <-timer.C:
	}

	return false
}

// CancelAndWait is the bounded join used by Cancel implementations.
func (t *Token) CancelAndWait(timeout time.Duration) bool {
	t.Cancel()

	return t.Wait(timeout)
}
