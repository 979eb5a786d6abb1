package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/0xef53/phoenix-fm/core/console"
	"github.com/0xef53/phoenix-fm/core/executable"

	log "github.com/sirupsen/logrus"
	"github.com/urfave/cli/v3"
	"golang.org/x/sync/errgroup"
)

var errUsage = errors.New("invalid usage")

type action func(ctx context.Context, c *cli.Command, m *manager) error

func withManager(fn action) cli.ActionFunc {
	return func(ctx context.Context, c *cli.Command) error {
		m, err := newManager(c)
		if err != nil {
			return err
		}
		defer m.Close()

		return fn(ctx, c, m)
	}
}

func withArgs(c *cli.Command, min int) ([]string, error) {
	args := c.Args().Slice()

	if len(args) < min {
		return nil, fmt.Errorf("%w: %s requires at least %d argument(s)", errUsage, c.Name, min)
	}

	return args, nil
}

// runSync executes a synchronous command and returns its result.
func runSync[T any](ctx context.Context, s *console.Session, build func(console.Factory) (executable.Synchronous[T], error)) (T, error) {
	var zero T

	exe, err := s.Run(ctx, func(f console.Factory) (executable.Executable, error) {
		return build(f)
	})
	if err != nil {
		return zero, err
	}

	sync, ok := exe.(executable.Synchronous[T])
	if !ok {
		return zero, fmt.Errorf("unexpected executable type %T", exe)
	}

	if sync.State() != executable.StateCompleted {
		return zero, fmt.Errorf("%w: %s", errCancelled, sync.State())
	}

	return sync.Result(), nil
}

// runAsync dispatches an asynchronous request and waits for its end.
// SIGINT and SIGTERM cancel the command.
func runAsync(ctx context.Context, s *console.Session, r console.Request, onPartial func(any)) error {
	var (
		failure   error
		cancelled bool
		code      int
	)

	done := make(chan struct{})

	r.Listener = &executable.ListenerFuncs{
		Partial: onPartial,
		Error: func(err error) {
			failure = err
		},
		End: func(v bool) {
			cancelled = v
		},
		ExitCode: func(v int) {
			code = v
			close(done)
		},
	}

	exe, err := s.Execute(ctx, r)
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)

	finished := make(chan struct{})

	g.Go(func() error {
		defer close(finished)

		select {
		case <-done:
			return nil
		case <-gctx.Done():
			return gctx.Err()
		}
	})

	g.Go(func() error {
		sigc := make(chan os.Signal, 1)

		signal.Notify(sigc, syscall.SIGTERM, syscall.SIGINT)
		defer signal.Stop(sigc)

		select {
		case sig := <-sigc:
			log.WithField("signal", sig).Info("Cancelling the command ...")

			if c, ok := exe.(executable.Cancellable); ok && c.IsCancellable() {
				if !c.Cancel() {
					return fmt.Errorf("%s: %w: the command did not stop in time", r.Op, errCancelled)
				}
			}
		case <-finished:
		}

		return nil
	})

	if err := g.Wait(); err != nil {
		return err
	}

	switch {
	case failure != nil:
		return failure
	case cancelled:
		return errCancelled
	case code != 0:
		return &commandExitError{code: code}
	}

	return nil
}
