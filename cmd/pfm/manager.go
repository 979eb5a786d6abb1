package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"path"
	"strings"

	"github.com/0xef53/phoenix-fm/core/console"
	"github.com/0xef53/phoenix-fm/core/console/secure"
	"github.com/0xef53/phoenix-fm/core/console/shell"

	log "github.com/sirupsen/logrus"
	"github.com/urfave/cli/v3"
	"golang.org/x/term"
)

var errCrossConsole = errors.New("source and destination belong to different consoles")

// manager routes every path to the session of the console that owns it:
// paths under the secure mount point go to the secure console,
// everything else to the shell console.
type manager struct {
	cfg *Config

	shell  *console.Session
	secure *console.Session

	shellConsole *shell.Console
	mountPoint   string
}

func newManager(c *cli.Command) (*manager, error) {
	cfg, err := loadConfig(c)
	if err != nil {
		return nil, err
	}

	verbose := c.Bool("verbose")

	m := manager{
		cfg:          cfg,
		shellConsole: shell.NewConsole(cfg.shell(verbose)),
	}

	m.shell = console.NewSession(m.shellConsole)
	m.shell.AutoEscalate = cfg.AutoEscalate

	if len(cfg.Secure.Container) > 0 {
		sc := secure.NewConsole(cfg.secure(askPassword, verbose))

		m.secure = console.NewSession(sc)
		m.mountPoint = sc.MountPoint()
	}

	return &m, nil
}

func (m *manager) Close() {
	if m.secure != nil {
		if err := m.secure.Close(); err != nil {
			log.Warnf("Failed to close the secure storage: %s", err)
		}
	}

	if err := m.shell.Close(); err != nil {
		log.Warnf("Failed to close the shell console: %s", err)
	}
}

func (m *manager) isSecure(p string) bool {
	if m.secure == nil || !path.IsAbs(p) {
		return false
	}

	p = path.Clean(p)

	return p == m.mountPoint || strings.HasPrefix(p, m.mountPoint+"/")
}

func (m *manager) route(p string) *console.Session {
	if m.isSecure(p) {
		return m.secure
	}

	return m.shell
}

// routeAll returns the session that owns all the paths.
func (m *manager) routeAll(paths ...string) (*console.Session, error) {
	if len(paths) == 0 {
		return m.shell, nil
	}

	s := m.route(paths[0])

	for _, p := range paths[1:] {
		if m.route(p) != s {
			return nil, errCrossConsole
		}
	}

	return s, nil
}

// askPassword reads the container password from PFM_PASSWORD
// or from the terminal.
func askPassword(_ context.Context) (string, error) {
	if v, ok := os.LookupEnv("PFM_PASSWORD"); ok {
		return v, nil
	}

	return readPassword("Secure storage password: ")
}

func readPassword(prompt string) (string, error) {
	fd := int(os.Stdin.Fd())

	if !term.IsTerminal(fd) {
		line, err := bufio.NewReader(os.Stdin).ReadString('\n')
		if err != nil && len(line) == 0 {
			return "", err
		}
		return strings.TrimRight(line, "\r\n"), nil
	}

	fmt.Fprint(os.Stderr, prompt)

	b, err := term.ReadPassword(fd)

	fmt.Fprintln(os.Stderr)

	if err != nil {
		return "", err
	}

	return string(b), nil
}
