package core

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueryPatterns(t *testing.T) {
	q := NewQuery("report", " ", "*.PDF", "")

	assert.Equal(t, []string{"*report*", "*.PDF"}, q.Patterns())
	assert.False(t, q.IsEmpty())
	assert.True(t, NewQuery("", "  ").IsEmpty())
}

func TestQueryMatcherAlternatives(t *testing.T) {
	m, err := NewQuery("report", "*.pdf").Compile()
	require.NoError(t, err)

	assert.True(t, m.Match("Annual-Report.txt"))
	assert.True(t, m.Match("SCAN.PDF"))
	assert.False(t, m.Match("notes.txt"))

	_, err = NewQuery("[").Compile()
	assert.Error(t, err)
}

func TestFileSystemObjectFullPath(t *testing.T) {
	obj := FileSystemObject{Type: TypeRegularFile, Name: "a.txt", Parent: "/tmp"}
	assert.Equal(t, "/tmp/a.txt", obj.FullPath())

	up := FileSystemObject{Type: TypeParentDirectory, Name: "..", Parent: "/tmp/dir"}
	assert.Equal(t, "/tmp", up.FullPath())
	assert.True(t, up.IsDirectory())

	link := FileSystemObject{Type: TypeSymlink, Name: "l", LinkRef: &FileSystemObject{Type: TypeDirectory}}
	assert.True(t, link.IsDirectory())

	assert.True(t, (&FileSystemObject{Name: ".hidden"}).IsHidden())
	assert.False(t, (&FileSystemObject{Name: ".."}).IsHidden())
}

func TestCompressionModeByName(t *testing.T) {
	tests := map[string]CompressionMode{
		"a.tar.gz":  CompressionTarGzip,
		"a.tgz":     CompressionTarGzip,
		"a.tar.bz2": CompressionTarBzip2,
		"a.tar":     CompressionTar,
		"a.gz":      CompressionGzip,
		"a.bz2":     CompressionBzip2,
	}

	for name, want := range tests {
		mode, ok := CompressionModeByName(name)
		require.True(t, ok, name)
		assert.Equal(t, want, mode, name)
	}

	_, ok := CompressionModeByName("a.zip")
	assert.False(t, ok)
}

func TestErrorPredicates(t *testing.T) {
	wrapped := fmt.Errorf("list: %w", &NoSuchFileOrDirectoryError{Path: "/x"})
	assert.True(t, IsNotExist(wrapped))
	assert.False(t, IsRelaunchable(wrapped))

	perm := &InsufficientPermissionsError{Op: "open", Err: ErrStorageLocked}
	assert.True(t, IsInsufficientPermissions(perm))
	assert.True(t, errors.Is(perm, ErrStorageLocked))

	rel := &RelaunchableError{Err: ErrConsoleNotAllocated}
	assert.True(t, IsRelaunchable(fmt.Errorf("run: %w", rel)))

	assert.True(t, IsCommandNotFound(&CommandNotFoundError{Op: "exec", Console: "secure"}))

	exec := &ExecutionError{Op: "rm", Path: "/x", ExitCode: 1, Stderr: "busy\n"}
	assert.Equal(t, "rm /x: exit code 1 (busy)", exec.Error())
}

func TestLoadAccounts(t *testing.T) {
	dir := t.TempDir()

	passwd := filepath.Join(dir, "passwd")
	group := filepath.Join(dir, "group")

	require.NoError(t, os.WriteFile(passwd, []byte("root:x:0:0:root:/root:/bin/sh\nbroken\nuser:x:1000:1000::/home/user:/bin/sh\n"), 0644))
	require.NoError(t, os.WriteFile(group, []byte("root:x:0:\nstaff:x:50:user\n"), 0644))

	a, err := LoadAccounts(passwd, group)
	require.NoError(t, err)

	assert.Equal(t, "user", a.User(1000).Name)
	assert.Equal(t, "staff", a.Group(50).Name)
	assert.Equal(t, "4242", a.User(4242).Name)

	a, err = LoadAccounts(filepath.Join(dir, "missing"), filepath.Join(dir, "missing"))
	require.NoError(t, err)
	assert.Equal(t, "0", a.User(0).Name)
}
