package main

import (
	"errors"
	"fmt"

	"github.com/0xef53/phoenix-fm/core"
	"github.com/0xef53/phoenix-fm/core/console"
)

const (
	exitFailure          = 1
	exitNotFound         = 2
	exitPermissionDenied = 3
	exitUnsupported      = 4
	exitCancelled        = 130
	exitUsage            = 64
)

// commandExitError carries the exit code of a remote command.
type commandExitError struct {
	code int
}

func (e *commandExitError) Error() string {
	return fmt.Sprintf("command exited with code %d", e.code)
}

var errCancelled = errors.New("cancelled")

func exitCode(err error) int {
	var ce *commandExitError

	switch {
	case errors.As(err, &ce):
		return ce.code
	case errors.Is(err, errCancelled):
		return exitCancelled
	case core.IsNotExist(err):
		return exitNotFound
	case core.IsInsufficientPermissions(err):
		return exitPermissionDenied
	case core.IsCommandNotFound(err):
		return exitUnsupported
	case console.IsBadRequest(err), errors.Is(err, errUsage):
		return exitUsage
	}

	return exitFailure
}
