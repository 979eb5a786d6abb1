package shell

import (
	"strings"
	"testing"

	"github.com/0xef53/phoenix-fm/core"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStdoutScannerSplitSentinel(t *testing.T) {
	s := stdoutScanner{tok: []byte("@@T@@")}

	var out []byte

	data, _, done, err := s.feed([]byte("hello\n@@"))
	require.NoError(t, err)
	require.False(t, done)
	out = append(out, data...)

	data, code, done, err := s.feed([]byte("T@@ 3\n"))
	require.NoError(t, err)
	require.True(t, done)
	out = append(out, data...)

	assert.Equal(t, "hello\n", string(out))
	assert.Equal(t, 3, code)
}

func TestStdoutScannerSentinelAfterData(t *testing.T) {
	s := stdoutScanner{tok: []byte("@@T@@")}

	// No trailing newline in the output of the command
	data, _, done, err := s.feed([]byte("x@@T@@ 1"))
	require.NoError(t, err)
	assert.False(t, done)
	assert.Equal(t, "x", string(data))

	data, code, done, err := s.feed([]byte("2\n"))
	require.NoError(t, err)
	assert.True(t, done)
	assert.Empty(t, data)
	assert.Equal(t, 12, code)
}

func TestStdoutScannerMalformed(t *testing.T) {
	s := stdoutScanner{tok: []byte("@@T@@")}

	_, _, _, err := s.feed([]byte("@@T@@ abc\n"))
	assert.Error(t, err)
}

func TestInvocationScript(t *testing.T) {
	inv := invocation{command: "ls -la"}

	script := inv.script("@@T@@")
	assert.True(t, strings.HasPrefix(script, "{ ls -la\n} </dev/null\n"))
	assert.Contains(t, script, `echo "@@T@@ $?"`)
	assert.NotContains(t, script, "&\n")

	inv.background = true

	script = inv.script("@@T@@")
	assert.Contains(t, script, "} </dev/null &\n")
	assert.Contains(t, script, `echo "@@T@@:pid $!" >&2`)
	assert.Contains(t, script, "wait $!\n")
}

func TestQuote(t *testing.T) {
	assert.Equal(t, `'plain'`, quote("plain"))
	assert.Equal(t, `'it'\''s'`, quote("it's"))
	assert.Equal(t, `'a b' '$HOME'`, quoteAll([]string{"a b", "$HOME"}))
}

func TestNormalizeCommandLine(t *testing.T) {
	s, err := normalizeCommandLine(`echo "hello world" 'x'`)
	require.NoError(t, err)
	assert.Equal(t, `'echo' 'hello world' 'x'`, s)

	_, err = normalizeCommandLine(`echo "unbalanced`)
	assert.Error(t, err)

	_, err = normalizeCommandLine("   ")
	assert.Error(t, err)
}

func TestCommandError(t *testing.T) {
	err := commandError("ls", "/x", 1, "ls: /x: No such file or directory")
	assert.True(t, core.IsNotExist(err))

	err = commandError("rm", "/x", 1, "rm: /x: Read-only file system")
	assert.True(t, core.IsInsufficientPermissions(err))

	err = commandError("cp", "/x", 2, "cp: disk full")

	var execErr *core.ExecutionError
	require.ErrorAs(t, err, &execErr)
	assert.Equal(t, 2, execErr.ExitCode)
}

func TestCommonParent(t *testing.T) {
	assert.Equal(t, "/a", commonParent([]string{"/a/b", "/a/c"}))
	assert.Equal(t, "", commonParent([]string{"/a/b", "/c/d"}))
}

func TestParentPID(t *testing.T) {
	dir := t.TempDir()

	stat := dir + "/stat"
	require.NoError(t, writeFile(stat, "42 (my (odd) name) S 7 42 42 0 -1\n"))

	ppid, ok := parentPID(stat)
	require.True(t, ok)
	assert.Equal(t, 7, ppid)

	_, ok = parentPID(dir + "/missing")
	assert.False(t, ok)
}
