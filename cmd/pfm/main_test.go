package main

import (
	"fmt"
	"syscall"
	"testing"
	"time"

	"github.com/0xef53/phoenix-fm/core"
	"github.com/0xef53/phoenix-fm/core/console"
	"github.com/0xef53/phoenix-fm/core/console/secure"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v2"
)

func TestParseOwner(t *testing.T) {
	user, group := parseOwner("root:1015")
	require.NotNil(t, user)
	require.NotNil(t, group)

	assert.Equal(t, "root", user.Name)
	assert.Equal(t, 1015, group.ID)

	user, group = parseOwner(":media")
	assert.Nil(t, user)
	assert.Equal(t, "media", group.Name)

	user, group = parseOwner("1000")
	assert.Equal(t, 1000, user.ID)
	assert.Nil(t, group)
}

func TestParseSignal(t *testing.T) {
	for in, want := range map[string]syscall.Signal{
		"9":       syscall.SIGKILL,
		"term":    syscall.SIGTERM,
		"SIGHUP":  syscall.SIGHUP,
		"sigusr1": syscall.SIGUSR1,
	} {
		sig, err := parseSignal(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, sig, in)
	}

	_, err := parseSignal("nope")
	assert.ErrorIs(t, err, errUsage)
}

func TestShellJoin(t *testing.T) {
	assert.Equal(t, `'ls' '-la' 'it'"'"'s here'`, shellJoin([]string{"ls", "-la", "it's here"}))
}

func TestExitCode(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{&commandExitError{code: 7}, 7},
		{fmt.Errorf("find: %w", errCancelled), exitCancelled},
		{&core.NoSuchFileOrDirectoryError{Path: "/x"}, exitNotFound},
		{&core.InsufficientPermissionsError{Op: "mount"}, exitPermissionDenied},
		{&core.CommandNotFoundError{Op: "exec", Console: secure.Kind}, exitUnsupported},
		{fmt.Errorf("%w: missing argument", errUsage), exitUsage},
		{fmt.Errorf("boom"), exitFailure},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, exitCode(tt.err), tt.err.Error())
	}
}

func TestManagerRoute(t *testing.T) {
	m := manager{
		shell:      console.NewSession(nil),
		secure:     console.NewSession(nil),
		mountPoint: "/secure",
	}

	assert.Same(t, m.secure, m.route("/secure"))
	assert.Same(t, m.secure, m.route("/secure/docs/../a"))
	assert.Same(t, m.shell, m.route("/securex"))
	assert.Same(t, m.shell, m.route("relative"))

	s, err := m.routeAll("/secure/a", "/secure/b")
	require.NoError(t, err)
	assert.Same(t, m.secure, s)

	_, err = m.routeAll("/secure/a", "/tmp")
	assert.ErrorIs(t, err, errCrossConsole)

	// Without a container everything goes to the shell
	m.secure = nil
	assert.Same(t, m.shell, m.route("/secure/a"))
}

func TestConfigFile(t *testing.T) {
	const doc = `
shell: /system/bin/sh
su_command: [su, -c, sh]
auto_escalate: true
cancel_timeout: 3s
secure:
  container: /data/vault.pfm
  mount_point: /vault
  scrypt_log_n: 16
`

	var cfg Config
	require.NoError(t, yaml.Unmarshal([]byte(doc), &cfg))

	assert.Equal(t, []string{"su", "-c", "sh"}, cfg.SuCommand)
	assert.Equal(t, 3*time.Second, cfg.CancelTimeout)

	sc := cfg.secure(nil, false)
	assert.Equal(t, "/vault", sc.MountPoint)
	assert.Equal(t, uint8(16), sc.Options.LogN)

	shc := cfg.shell(true)
	assert.True(t, shc.Trace)
	assert.Equal(t, "/system/bin/sh", shc.Shell)
}
