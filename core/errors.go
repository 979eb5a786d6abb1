package core

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrConsoleNotAllocated = errors.New("console is not allocated")
	ErrStorageLocked       = errors.New("secure storage is locked")
	ErrAlreadyStarted      = errors.New("executable has already been started")
	ErrNotCompleted        = errors.New("executable has not completed successfully")
)

// NoSuchFileOrDirectoryError is returned when a required path does not exist.
type NoSuchFileOrDirectoryError struct {
	Path string
}

func (e *NoSuchFileOrDirectoryError) Error() string {
	return "no such file or directory: " + e.Path
}

// ExecutionError is returned when a backend ran but produced an invalid result:
// a non-zero exit code, an unparsable output or a violated precondition.
type ExecutionError struct {
	Op       string
	Path     string
	ExitCode int
	Stderr   string
	Err      error
}

func (e *ExecutionError) Error() string {
	var b strings.Builder

	b.WriteString(e.Op)

	if len(e.Path) > 0 {
		b.WriteString(" ")
		b.WriteString(e.Path)
	}

	b.WriteString(": ")

	switch {
	case e.Err != nil:
		b.WriteString(e.Err.Error())
	case e.ExitCode != 0:
		fmt.Fprintf(&b, "exit code %d", e.ExitCode)
	default:
		b.WriteString("invalid result")
	}

	if s := strings.TrimSpace(e.Stderr); len(s) > 0 {
		b.WriteString(" (")
		b.WriteString(s)
		b.WriteString(")")
	}

	return b.String()
}

func (e *ExecutionError) Unwrap() error {
	return e.Err
}

// InsufficientPermissionsError is returned when the backend refused
// the operation because of privileges. The caller may escalate and retry.
type InsufficientPermissionsError struct {
	Op   string
	Path string
	Err  error
}

func (e *InsufficientPermissionsError) Error() string {
	s := "insufficient permissions: " + e.Op

	if len(e.Path) > 0 {
		s += " " + e.Path
	}
	if e.Err != nil {
		s += ": " + e.Err.Error()
	}

	return s
}

func (e *InsufficientPermissionsError) Unwrap() error {
	return e.Err
}

// RelaunchableError reports a recoverable condition of the console
// (e.g. a dead shell process). Once it is resolved the same executable
// may be launched again.
type RelaunchableError struct {
	Err error
}

func (e *RelaunchableError) Error() string {
	return "relaunchable: " + e.Err.Error()
}

func (e *RelaunchableError) Unwrap() error {
	return e.Err
}

// CommandNotFoundError is returned by a factory when its console
// does not implement the requested operation.
type CommandNotFoundError struct {
	Op      string
	Console string
}

func (e *CommandNotFoundError) Error() string {
	return fmt.Sprintf("command not found: %s is not supported by the %s console", e.Op, e.Console)
}

func IsNotExist(err error) bool {
	var e *NoSuchFileOrDirectoryError
	return errors.As(err, &e)
}

func IsInsufficientPermissions(err error) bool {
	var e *InsufficientPermissionsError
	return errors.As(err, &e)
}

func IsRelaunchable(err error) bool {
	var e *RelaunchableError
	return errors.As(err, &e)
}

func IsCommandNotFound(err error) bool {
	var e *CommandNotFoundError
	return errors.As(err, &e)
}
