package shell

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"os/signal"
	"syscall"

	"github.com/creack/pty"
	log "github.com/sirupsen/logrus"
	"golang.org/x/term"
)

// OpenTerminal runs an interactive shell of the console privilege level
// in a pseudo-terminal, starting in the console working directory.
// When stdin is a terminal it is switched to raw mode for the session.
func (c *Console) OpenTerminal(ctx context.Context, stdin *os.File, stdout io.Writer) error {
	argv := c.argv(c.IsPrivileged())

	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)

	cmd.Dir = c.WorkingDirectory()
	cmd.Env = c.config.Env

	if cmd.Env == nil {
		cmd.Env = os.Environ()
	}

	cmd.Env = append(cmd.Env, "HISTFILE=/dev/null")

	ptmx, err := pty.Start(cmd)
	if err != nil {
		return fmt.Errorf("cannot assign a pseudo-terminal: %w", err)
	}
	defer ptmx.Close()

	if term.IsTerminal(int(stdin.Fd())) {
		state, err := term.MakeRaw(int(stdin.Fd()))
		if err != nil {
			return err
		}
		defer term.Restore(int(stdin.Fd()), state)

		winch := make(chan os.Signal, 1)

		signal.Notify(winch, syscall.SIGWINCH)
		defer func() {
			signal.Stop(winch)
			close(winch)
		}()

		go func() {
			for range winch {
				if err := pty.InheritSize(stdin, ptmx); err != nil {
					log.WithField("console", c.id).Debugf("Failed to resize the terminal: %s", err)
				}
			}
		}()

		winch <- syscall.SIGWINCH
	}

	go func() {
		io.Copy(ptmx, stdin)
	}()

	// EIO is the regular end of the session on Linux
	if _, err := io.Copy(stdout, ptmx); err != nil && !errors.Is(err, syscall.EIO) {
		log.WithField("console", c.id).Debugf("Terminal output error: %s", err)
	}

	return cmd.Wait()
}
