// Package executable defines the contract of one command invocation
// and the listener protocol used by asynchronous invocations.
package executable

import (
	"context"
	"time"
)

// DefaultCancelTimeout bounds how long Cancel waits for an invocation
// to observe the cancellation.
const DefaultCancelTimeout = 5 * time.Second

// Executable is one invocation of a command bound to a console.
type Executable interface {
	// Execute runs a synchronous command to completion, or dispatches
	// an asynchronous one and returns.
	Execute(ctx context.Context) error

	IsAsynchronous() bool

	// RequiresOpen reports whether the backend must be mounted/unlocked first.
	RequiresOpen() bool

	// RequiresSync reports whether the backend storage must be committed afterwards.
	RequiresSync() bool

	State() State
}

// Synchronous is an executable whose result is available after Execute returns.
type Synchronous[T any] interface {
	Executable

	// Result is valid only after a successful Execute.
	Result() T
}

// Cancellable is an executable that may be asked to stop early.
type Cancellable interface {
	IsCancellable() bool

	// Cancel requests a cooperative termination and reports whether
	// the invocation ended before the bounded wait elapsed.
	// It is a no-op once the invocation has completed.
	Cancel() bool
}

// Asynchronous is an executable that reports through an AsyncResultListener.
type Asynchronous interface {
	Executable
	Cancellable
}

// Options are the per-invocation attributes shared by every backend.
type Options struct {
	Trace         bool
	BufferSize    int
	CancelTimeout time.Duration
}

func (o Options) WithDefaults() Options {
	if o.BufferSize <= 0 {
		o.BufferSize = 32 << 10
	}
	if o.CancelTimeout <= 0 {
		o.CancelTimeout = DefaultCancelTimeout
	}

	return o
}
