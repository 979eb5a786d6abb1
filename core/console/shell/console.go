// Package shell implements a console backed by a persistent interactive
// shell process.
package shell

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path"
	"strings"
	"sync"

	"github.com/0xef53/phoenix-fm/core"
	"github.com/0xef53/phoenix-fm/core/console"
	"github.com/0xef53/phoenix-fm/core/executable"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

const Kind = "shell"

var (
	_ console.Console   = new(Console)
	_ console.Escalator = new(Console)
)

// Console serializes commands on one shell process. Each command is
// followed by a sentinel that carries its exit code, so the output of
// consecutive commands can be told apart.
type Console struct {
	id     string
	config Config

	mu         sync.Mutex
	proc       *process
	privileged bool
	wd         string

	// execMu is held from writing a command until both of its
	// sentinels are read.
	execMu sync.Mutex

	// launchMu serializes process launches.
	launchMu sync.Mutex

	factory *Factory
}

func NewConsole(c *Config) *Console {
	cfg := Config{}
	if c != nil {
		cfg = *c
	}

	cfg = cfg.withDefaults()

	con := Console{
		id:         uuid.New().String(),
		config:     cfg,
		privileged: cfg.Privileged,
		wd:         cfg.InitialDirectory,
	}

	con.factory = &Factory{c: &con}

	return &con
}

func (c *Console) ID() string {
	return c.id
}

func (c *Console) Kind() string {
	return Kind
}

func (c *Console) Factory() console.Factory {
	return c.factory
}

func (c *Console) IsActive() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.proc != nil && c.proc.alive()
}

func (c *Console) IsPrivileged() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.privileged
}

func (c *Console) WorkingDirectory() string {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.wd
}

func (c *Console) setWorkingDirectory(dir string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.wd = dir
}

func (c *Console) RealPath(virtual string) (string, error) {
	return virtual, nil
}

func (c *Console) VirtualPath(real string) (string, error) {
	return real, nil
}

func (c *Console) argv(privileged bool) []string {
	if privileged {
		return c.config.SuCommand
	}

	return []string{c.config.Shell}
}

// Alloc starts the shell process.
func (c *Console) Alloc(ctx context.Context) error {
	c.launchMu.Lock()
	defer c.launchMu.Unlock()

	c.mu.Lock()
	privileged := c.privileged
	active := c.proc != nil && c.proc.alive()
	c.mu.Unlock()

	if active {
		return nil
	}

	return c.launch(ctx, privileged)
}

// Dealloc terminates the shell process.
func (c *Console) Dealloc() error {
	c.mu.Lock()
	p := c.proc
	c.proc = nil
	c.mu.Unlock()

	if p != nil {
		p.kill()
		<-p.exited

		log.WithFields(log.Fields{"console": c.id, "pid": p.pid()}).Debug("Shell process released")
	}

	return nil
}

// Realloc replaces the shell process with a new one of the same privilege.
func (c *Console) Realloc(ctx context.Context) error {
	c.launchMu.Lock()
	defer c.launchMu.Unlock()

	return c.launch(ctx, c.IsPrivileged())
}

// Escalate replaces the shell process with a privileged one.
// In-flight commands of the old process fail with a relaunchable error.
func (c *Console) Escalate(ctx context.Context) error {
	c.launchMu.Lock()
	defer c.launchMu.Unlock()

	return c.launch(ctx, true)
}

func (c *Console) launch(ctx context.Context, privileged bool) error {
	env := c.config.Env
	if env == nil {
		env = os.Environ()
	}

	wd := c.WorkingDirectory()

	if fi, err := os.Stat(wd); err != nil || !fi.IsDir() {
		wd = "/"
	}

	p, err := startProcess(c.argv(privileged), wd, env, c.config.BufferSize)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, c.config.StartTimeout)
	defer cancel()

	// Handshake: the process must accept commands and, when privileged,
	// run them as the superuser.
	res, err := p.invoke(ctx, &invocation{command: "id -u"})
	if err != nil {
		p.kill()
		return fmt.Errorf("shell handshake failed: %w", err)
	}

	if privileged && strings.TrimSpace(string(res.Stdout)) != "0" {
		p.kill()
		return &core.InsufficientPermissionsError{Op: "escalate", Err: fmt.Errorf("unexpected uid %q", strings.TrimSpace(string(res.Stdout)))}
	}

	c.mu.Lock()
	prev := c.proc
	c.proc = p
	c.privileged = privileged
	c.wd = wd
	c.mu.Unlock()

	if prev != nil {
		prev.kill()
	}

	log.WithFields(log.Fields{
		"console":    c.id,
		"pid":        p.pid(),
		"privileged": privileged,
	}).Debug("Shell process started")

	return nil
}

func (c *Console) current() (*process, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.proc == nil {
		return nil, &core.RelaunchableError{Err: core.ErrConsoleNotAllocated}
	}

	if !c.proc.alive() {
		return nil, &core.RelaunchableError{Err: errProcessExited}
	}

	return c.proc, nil
}

// run executes a command and collects its output.
func (c *Console) run(ctx context.Context, command string) (*result, error) {
	return c.invoke(ctx, &invocation{command: command})
}

func (c *Console) invoke(ctx context.Context, inv *invocation) (*result, error) {
	c.execMu.Lock()
	defer c.execMu.Unlock()

	p, err := c.current()
	if err != nil {
		return nil, err
	}

	if c.config.Trace {
		log.WithFields(log.Fields{"console": c.id, "background": inv.background}).Debugf("Invoking: %s", inv.command)
	}

	res, err := p.invoke(ctx, inv)
	if err != nil {
		return nil, err
	}

	if c.config.Trace {
		log.WithFields(log.Fields{"console": c.id, "exit_code": res.ExitCode}).Debug("Invocation finished")
	}

	return res, nil
}

// stream runs a command as a background job of the shell. The job can be
// interrupted through the executable job once its PID is known.
func (c *Console) stream(ctx context.Context, command string, job *executable.Job, onStdout func([]byte)) (*result, error) {
	inv := invocation{
		command:    command,
		background: true,
		onStdout:   onStdout,
		onPID: func(pid int) {
			job.SetInterrupt(func() {
				if err := c.terminate(pid); err != nil {
					log.WithFields(log.Fields{"console": c.id, "pid": pid}).Warnf("Failed to interrupt the command: %s", err)
				}
			})
		},
	}

	return c.invoke(ctx, &inv)
}

// check converts a non-zero exit code into a typed error.
func (c *Console) check(op, p string, res *result) error {
	if res.ExitCode == 0 {
		return nil
	}

	return commandError(op, p, res.ExitCode, res.stderrText())
}

func commandError(op, p string, code int, stderr string) error {
	switch {
	case strings.Contains(stderr, "No such file or directory"):
		return &core.NoSuchFileOrDirectoryError{Path: p}
	case strings.Contains(stderr, "Permission denied"),
		strings.Contains(stderr, "Operation not permitted"),
		strings.Contains(stderr, "Read-only file system"):
		return &core.InsufficientPermissionsError{Op: op, Path: p, Err: errors.New(strings.TrimSpace(stderr))}
	}

	return &core.ExecutionError{Op: op, Path: p, ExitCode: code, Stderr: stderr}
}

// abs resolves p against the working directory of the console.
func (c *Console) abs(p string) string {
	if path.IsAbs(p) {
		return path.Clean(p)
	}

	return path.Join(c.WorkingDirectory(), p)
}
