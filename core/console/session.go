package console

import (
	"context"
	"fmt"
	"sync"

	"github.com/0xef53/phoenix-fm/core"
	"github.com/0xef53/phoenix-fm/core/executable"

	log "github.com/sirupsen/logrus"
)

// Builder constructs an executable using the factory of the session console.
type Builder func(Factory) (executable.Executable, error)

// Session holds the consoles used by one caller: the foreground console
// that runs requested operations and an optional background console.
type Session struct {
	mu         sync.RWMutex
	foreground Console
	background Console

	// AutoEscalate allows Run to swap the foreground console for
	// a privileged one and retry an operation refused for permissions.
	AutoEscalate bool
}

func NewSession(fg Console) *Session {
	return &Session{foreground: fg}
}

func (s *Session) Console() Console {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.foreground
}

// SetConsole replaces the foreground console and returns the previous one.
// The caller is responsible for deallocating it.
func (s *Session) SetConsole(c Console) Console {
	s.mu.Lock()
	defer s.mu.Unlock()

	prev := s.foreground
	s.foreground = c

	return prev
}

func (s *Session) Background() Console {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.background
}

func (s *Session) SetBackground(c Console) Console {
	s.mu.Lock()
	defer s.mu.Unlock()

	prev := s.background
	s.background = c

	return prev
}

func (s *Session) Factory() Factory {
	return s.Console().Factory()
}

// Close deallocates both consoles.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var firstErr error

	for _, c := range []Console{s.foreground, s.background} {
		if c == nil {
			continue
		}
		if err := c.Dealloc(); err != nil && firstErr == nil {
			firstErr = err
		}
	}

	s.foreground, s.background = nil, nil

	return firstErr
}

// Execute dispatches the request and runs it like Run.
func (s *Session) Execute(ctx context.Context, r Request) (executable.Executable, error) {
	return s.Run(ctx, func(f Factory) (executable.Executable, error) {
		return Dispatch(f, r)
	})
}

// Run builds an executable on the foreground console and executes it.
//
// A relaunchable failure reallocates the console and relaunches the same
// executable once. When AutoEscalate is set and the console can escalate,
// an insufficient permissions failure escalates the console and runs
// a freshly built executable once more.
func (s *Session) Run(ctx context.Context, build Builder) (executable.Executable, error) {
	c := s.Console()
	if c == nil {
		return nil, core.ErrConsoleNotAllocated
	}

	exe, err := s.run(ctx, c, build)

	if err != nil && s.AutoEscalate && core.IsInsufficientPermissions(err) {
		esc, ok := c.(Escalator)
		if !ok || c.IsPrivileged() {
			return exe, err
		}

		log.WithField("console", c.ID()).Info("Escalating privileges after a permission failure")

		if err := esc.Escalate(ctx); err != nil {
			return exe, fmt.Errorf("escalate: %w", err)
		}

		return s.run(ctx, c, build)
	}

	return exe, err
}

func (s *Session) run(ctx context.Context, c Console, build Builder) (executable.Executable, error) {
	if !c.IsActive() {
		if err := c.Alloc(ctx); err != nil {
			return nil, err
		}
	}

	exe, err := build(c.Factory())
	if err != nil {
		return nil, err
	}

	if exe.RequiresOpen() {
		if o, ok := c.(Opener); ok {
			if err := o.Open(ctx); err != nil {
				return exe, err
			}
		}
	}

	err = exe.Execute(ctx)

	if err != nil && core.IsRelaunchable(err) {
		log.WithField("console", c.ID()).Warnf("Relaunching after a console failure: %s", err)

		if err := c.Realloc(ctx); err != nil {
			return exe, fmt.Errorf("realloc: %w", err)
		}

		err = exe.Execute(ctx)
	}

	return exe, err
}
