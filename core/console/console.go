// Package console defines the execution channel shared by the shell and
// the secure storage backends, the factory that binds operations to
// executables, and the session that selects the active console.
package console

import (
	"context"
)

// Console owns an execution channel: a shell process or an opened container.
type Console interface {
	// ID returns a unique identifier of the console instance.
	ID() string

	// Kind returns the backend name used in error messages.
	Kind() string

	Alloc(ctx context.Context) error
	Dealloc() error

	// Realloc replaces the underlying channel keeping the console identity.
	Realloc(ctx context.Context) error

	IsActive() bool
	IsPrivileged() bool

	WorkingDirectory() string

	Factory() Factory

	// RealPath and VirtualPath translate between the path namespace seen
	// by callers and the one of the backend. They are identities for
	// the shell console.
	RealPath(virtual string) (string, error)
	VirtualPath(real string) (string, error)
}

// Escalator is implemented by consoles that can swap their channel
// for a privileged one.
type Escalator interface {
	Escalate(ctx context.Context) error
}

// Opener is implemented by consoles whose backend must be opened
// before executables with RequiresOpen run.
type Opener interface {
	Open(ctx context.Context) error
}
