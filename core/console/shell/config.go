package shell

import (
	"time"

	"github.com/0xef53/phoenix-fm/core/executable"
)

type Config struct {
	// Shell is the interpreter of an unprivileged console.
	Shell string

	// SuCommand launches a privileged interpreter that reads commands
	// from its standard input. It is also used with "-c" to signal
	// processes the console cannot signal directly.
	SuCommand []string

	Privileged bool

	InitialDirectory string
	Env              []string

	BufferSize    int
	CancelTimeout time.Duration
	StartTimeout  time.Duration

	Trace bool
}

func (c Config) withDefaults() Config {
	if len(c.Shell) == 0 {
		c.Shell = "/bin/sh"
	}
	if len(c.SuCommand) == 0 {
		c.SuCommand = []string{"su"}
	}
	if len(c.InitialDirectory) == 0 {
		c.InitialDirectory = "/"
	}
	if c.StartTimeout <= 0 {
		c.StartTimeout = 10 * time.Second
	}

	opts := c.options()

	c.BufferSize = opts.BufferSize
	c.CancelTimeout = opts.CancelTimeout

	return c
}

func (c Config) options() executable.Options {
	return executable.Options{
		Trace:         c.Trace,
		BufferSize:    c.BufferSize,
		CancelTimeout: c.CancelTimeout,
	}.WithDefaults()
}
