package executable

import (
	"context"

	"github.com/0xef53/phoenix-fm/core"

	log "github.com/sirupsen/logrus"
)

// Program is a synchronous executable backed by a function.
// Backends build their synchronous commands from it.
type Program[T any] struct {
	Lifecycle

	name  string
	trace bool
	open  bool
	sync  bool

	run    func(context.Context) (T, error)
	result T
}

func NewProgram[T any](name string, run func(context.Context) (T, error)) *Program[T] {
	return &Program[T]{
		name: name,
		run:  run,
	}
}

// WithTrace enables debug logging of the invocation.
func (p *Program[T]) WithTrace(v bool) *Program[T] {
	p.trace = v
	return p
}

// WithFlags sets the static RequiresOpen and RequiresSync capabilities.
func (p *Program[T]) WithFlags(requiresOpen, requiresSync bool) *Program[T] {
	p.open = requiresOpen
	p.sync = requiresSync
	return p
}

func (p *Program[T]) Name() string {
	return p.name
}

func (p *Program[T]) Execute(ctx context.Context) error {
	if err := p.Begin(); err != nil {
		return err
	}

	if p.trace {
		log.WithField("command", p.name).Debug("Executing")
	}

	v, err := p.run(ctx)
	if err == nil {
		p.result = v
	}

	state, _ := p.End(err)

	if p.trace {
		log.WithField("command", p.name).Debugf("Finished: %s", state)
	}

	return err
}

func (p *Program[T]) IsAsynchronous() bool {
	return false
}

func (p *Program[T]) RequiresOpen() bool {
	return p.open
}

func (p *Program[T]) RequiresSync() bool {
	return p.sync
}

func (p *Program[T]) Result() T {
	return p.result
}

// Run executes a synchronous executable and returns its result.
func Run[T any](ctx context.Context, exe Synchronous[T]) (T, error) {
	if err := exe.Execute(ctx); err != nil {
		var zero T
		return zero, err
	}

	if exe.State() != StateCompleted {
		var zero T
		return zero, core.ErrNotCompleted
	}

	return exe.Result(), nil
}
