package secure

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/0xef53/phoenix-fm/core"
	"github.com/0xef53/phoenix-fm/core/executable"
	"github.com/0xef53/phoenix-fm/internal/container"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig(t *testing.T, file string) *Config {
	missing := filepath.Join(t.TempDir(), "missing")

	return &Config{
		Container:     file,
		Options:       &container.Options{LogN: 4, StagingDir: t.TempDir()},
		PasswdFile:    missing,
		GroupFile:     missing,
		CancelTimeout: 5 * time.Second,
	}
}

// newTestConsole returns a console bound to a new unlocked container.
func newTestConsole(t *testing.T) (*Console, string) {
	t.Helper()

	cfg := testConfig(t, filepath.Join(t.TempDir(), "vault.pfm"))

	store, err := container.Create(cfg.Container, "secret", cfg.Options)
	require.NoError(t, err)

	c := NewConsole(cfg)
	c.AllocContainer(store)

	t.Cleanup(func() {
		c.Dealloc()
	})

	root, err := store.Root()
	require.NoError(t, err)

	return c, root
}

// result executes a synchronous command built by a factory call.
func result[T any](exe executable.Synchronous[T], err error) (T, error) {
	if err != nil {
		var zero T
		return zero, err
	}

	return executable.Run(context.Background(), exe)
}

// succeeds returns a checker for commands that report success as a bool.
func succeeds(t *testing.T) func(executable.Synchronous[bool], error) {
	return func(exe executable.Synchronous[bool], err error) {
		t.Helper()

		ok, err := result(exe, err)
		require.NoError(t, err)
		require.True(t, ok)
	}
}

func TestPathMapping(t *testing.T) {
	tests := []struct {
		virtual string
		real    string
	}{
		{"/secure", "/staging/root"},
		{"/secure/a", "/staging/root/a"},
		{"/secure/a/b c", "/staging/root/a/b c"},
	}

	for _, tt := range tests {
		real, err := realPath("/staging/root", "/secure", tt.virtual)
		require.NoError(t, err)
		assert.Equal(t, tt.real, real)

		virtual, err := virtualPath("/staging/root", "/secure", real)
		require.NoError(t, err)
		assert.Equal(t, tt.virtual, virtual)
	}

	for _, p := range []string{"/securex", "/etc/passwd", "/secure/../etc"} {
		_, err := realPath("/staging/root", "/secure", p)
		assert.ErrorIs(t, err, container.ErrOutsideRoot, p)
	}

	_, err := virtualPath("/staging/root", "/secure", "/staging/other")
	assert.ErrorIs(t, err, container.ErrOutsideRoot)
}

func TestConsoleFileOperations(t *testing.T) {
	c, root := newTestConsole(t)
	f := c.factory
	ok := succeeds(t)

	ok(f.CreateDirectory("/secure/docs"))
	ok(f.CreateFile("/secure/docs/a.txt"))
	ok(f.Copy("/secure/docs/a.txt", "/secure/b.txt"))
	ok(f.Move("/secure/b.txt", "/secure/docs"))

	assert.FileExists(t, filepath.Join(root, "docs", "b.txt"))
	assert.NoFileExists(t, filepath.Join(root, "b.txt"))

	objs, err := result(f.List("/secure/docs"))
	require.NoError(t, err)
	require.Len(t, objs, 3)

	assert.Equal(t, core.TypeParentDirectory, objs[0].Type)
	assert.Equal(t, "/secure", objs[0].FullPath())

	assert.Equal(t, "a.txt", objs[1].Name)
	assert.Equal(t, "/secure/docs", objs[1].Parent)
	assert.True(t, objs[1].Secure)

	ok(f.DeleteFile("/secure/docs/a.txt"))
	ok(f.DeleteDirectory("/secure/docs"))
	assert.NoDirExists(t, filepath.Join(root, "docs"))

	_, err = f.DeleteDirectory("/secure")
	assert.Error(t, err)

	info, err := f.FileInfo("/secure/docs", false)
	require.NoError(t, err)

	_, err = executable.Run(context.Background(), info)
	assert.True(t, core.IsNotExist(err))
}

func TestConsoleChangeCurrentDirectory(t *testing.T) {
	c, root := newTestConsole(t)

	require.NoError(t, os.Mkdir(filepath.Join(root, "sub"), 0700))
	require.NoError(t, os.WriteFile(filepath.Join(root, "file"), nil, 0600))

	ok := succeeds(t)
	ok(c.factory.ChangeCurrentDirectory("sub"))
	assert.Equal(t, "/secure/sub", c.WorkingDirectory())

	real, err := c.RealPath("x")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(root, "sub", "x"), real)

	exe, err := c.factory.ChangeCurrentDirectory("/secure/file")
	require.NoError(t, err)

	_, err = executable.Run(context.Background(), exe)
	assert.Error(t, err)
	assert.Equal(t, "/secure/sub", c.WorkingDirectory())
}

func TestConsoleSymlinkInsideContainer(t *testing.T) {
	c, root := newTestConsole(t)

	require.NoError(t, os.Mkdir(filepath.Join(root, "dir"), 0700))
	require.NoError(t, os.Symlink("dir", filepath.Join(root, "link")))

	obj, err := result(c.factory.FileInfo("/secure/link", false))
	require.NoError(t, err)
	assert.Equal(t, core.TypeSymlink, obj.Type)
	require.NotNil(t, obj.LinkRef)
	assert.Equal(t, "/secure/dir", obj.LinkRef.FullPath())

	target, err := result(c.factory.ResolveLink("/secure/link"))
	require.NoError(t, err)
	assert.Equal(t, "/secure/dir", target.FullPath())
}

func TestMoveToItselfIsNoop(t *testing.T) {
	// No container is needed
	c := NewConsole(nil)

	exe, err := c.factory.Move("/secure/a", "/secure/a")
	require.NoError(t, err)

	assert.True(t, exe.RequiresOpen())
	assert.False(t, exe.RequiresSync())

	ok := succeeds(t)
	ok(exe, nil)
}

func TestUnsupportedOperations(t *testing.T) {
	f := NewConsole(nil).factory

	_, err := f.Exec("ls", nil)
	assert.True(t, core.IsCommandNotFound(err))

	_, err = f.ChangePermissions("/secure/a", core.Permissions{})
	assert.True(t, core.IsCommandNotFound(err))

	_, err = f.SendSignal(1, 0)
	assert.True(t, core.IsCommandNotFound(err))

	_, err = f.Identity()
	assert.True(t, core.IsCommandNotFound(err))
}

func TestLockedContainer(t *testing.T) {
	cfg := testConfig(t, filepath.Join(t.TempDir(), "vault.pfm"))

	store, err := container.Create(cfg.Container, "secret", cfg.Options)
	require.NoError(t, err)
	require.NoError(t, store.Lock())

	c := NewConsole(cfg)
	require.NoError(t, c.Alloc(context.Background()))
	defer c.Dealloc()

	// The mount point is described without the password
	mp, err := result(c.factory.FileInfo("/secure", false))
	require.NoError(t, err)
	assert.Equal(t, "/secure", mp.FullPath())

	exe, err := c.factory.List("/secure")
	require.NoError(t, err)
	assert.True(t, exe.RequiresOpen())

	_, err = executable.Run(context.Background(), exe)
	assert.True(t, core.IsInsufficientPermissions(err))
	assert.ErrorIs(t, err, core.ErrStorageLocked)
}

func TestOpenWithPassword(t *testing.T) {
	cfg := testConfig(t, filepath.Join(t.TempDir(), "vault.pfm"))

	store, err := container.Create(cfg.Container, "secret", cfg.Options)
	require.NoError(t, err)
	require.NoError(t, store.Lock())

	password := "wrong"
	prompts := 0

	cfg.Password = func(context.Context) (string, error) {
		prompts++
		return password, nil
	}

	c := NewConsole(cfg)
	require.NoError(t, c.Alloc(context.Background()))
	defer c.Dealloc()

	err = c.Open(context.Background())
	assert.True(t, core.IsInsufficientPermissions(err))
	assert.ErrorIs(t, err, container.ErrInvalidPassword)

	password = "secret"

	objs, err := result(c.factory.List("/secure"))
	require.NoError(t, err)
	assert.Len(t, objs, 1)

	// Unlocked containers are not asked again
	require.NoError(t, c.Open(context.Background()))
	assert.Equal(t, 2, prompts)
}

func TestPasswordPromptFailure(t *testing.T) {
	cfg := testConfig(t, filepath.Join(t.TempDir(), "vault.pfm"))

	store, err := container.Create(cfg.Container, "secret", cfg.Options)
	require.NoError(t, err)
	require.NoError(t, store.Lock())

	cfg.Password = func(context.Context) (string, error) {
		return "", errors.New("no terminal")
	}

	c := NewConsole(cfg)
	require.NoError(t, c.Alloc(context.Background()))
	defer c.Dealloc()

	col := newCollector()

	exe, err := c.factory.Find("/secure", core.NewQuery("x"), col.listener())
	require.NoError(t, err)

	err = exe.Execute(context.Background())
	assert.True(t, core.IsInsufficientPermissions(err))

	// A failed preparation emits no callbacks
	assert.Empty(t, col.events())
}

// collector gathers the callbacks of one asynchronous invocation.
type collector struct {
	mu       sync.Mutex
	evs      []string
	partials []any

	cancelled bool

	// onPartial runs outside of the lock
	onPartial func(v any)

	ended chan struct{}
}

func newCollector() *collector {
	return &collector{ended: make(chan struct{})}
}

func (c *collector) add(ev string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.evs = append(c.evs, ev)
}

func (c *collector) events() []string {
	c.mu.Lock()
	defer c.mu.Unlock()

	return append([]string(nil), c.evs...)
}

func (c *collector) listener() *executable.ListenerFuncs {
	return &executable.ListenerFuncs{
		Start: func() {
			c.add("start")
		},
		Partial: func(v any) {
			c.mu.Lock()
			c.partials = append(c.partials, v)
			c.mu.Unlock()

			c.add("partial")

			if c.onPartial != nil {
				c.onPartial(v)
			}
		},
		Error: func(error) {
			c.add("error")
		},
		End: func(cancelled bool) {
			c.mu.Lock()
			c.cancelled = cancelled
			c.mu.Unlock()

			c.add("end")
		},
		ExitCode: func(int) {
			c.add("exit")
			close(c.ended)
		},
	}
}

func (c *collector) wait(t *testing.T) {
	t.Helper()

	select {
	case <-c.ended:
	case <-time.After(10 * time.Second):
		t.Fatal("the invocation did not end")
	}
}

func TestFind(t *testing.T) {
	c, root := newTestConsole(t)

	require.NoError(t, os.MkdirAll(filepath.Join(root, "a", "b"), 0700))
	require.NoError(t, os.WriteFile(filepath.Join(root, "a", "b", "Report.PDF"), nil, 0600))
	require.NoError(t, os.WriteFile(filepath.Join(root, "a", "notes.txt"), nil, 0600))

	col := newCollector()

	exe, err := c.factory.Find("/secure", core.NewQuery("report"), col.listener())
	require.NoError(t, err)

	require.NoError(t, exe.Execute(context.Background()))
	col.wait(t)

	assert.Equal(t, []string{"start", "partial", "end", "exit"}, col.events())
	assert.Equal(t, "/secure/a/b/Report.PDF", col.partials[0].(*core.FileSystemObject).FullPath())
	assert.False(t, col.cancelled)

	// Cancelling a completed search is a no-op
	assert.True(t, exe.Cancel())
	assert.Equal(t, executable.StateCompleted, exe.State())

	_, err = c.factory.Find("/secure", core.NewQuery(" "), col.listener())
	assert.Error(t, err)
}

func TestFindCancel(t *testing.T) {
	c, root := newTestConsole(t)

	for _, name := range []string{"1.txt", "2.txt", "3.txt", "4.txt"} {
		require.NoError(t, os.WriteFile(filepath.Join(root, name), nil, 0600))
	}

	first := make(chan struct{})
	release := make(chan struct{})

	var once sync.Once

	col := newCollector()
	col.onPartial = func(any) {
		once.Do(func() {
			close(first)
			<-release
		})
	}

	exe, err := c.factory.Find("/secure", core.NewQuery("*.txt"), col.listener())
	require.NoError(t, err)

	require.NoError(t, exe.Execute(context.Background()))
	<-first

	cancelled := make(chan bool)

	go func() {
		cancelled <- exe.Cancel()
	}()

	require.Eventually(t, func() bool {
		return exe.(*executable.AsyncProgram).CancelRequested()
	}, 5*time.Second, time.Millisecond)

	close(release)

	assert.True(t, <-cancelled)
	col.wait(t)

	assert.True(t, col.cancelled)
	assert.Len(t, col.partials, 1)
	assert.Equal(t, executable.StateCancelled, exe.State())
}

func TestChecksum(t *testing.T) {
	c, root := newTestConsole(t)

	require.NoError(t, os.WriteFile(filepath.Join(root, "empty"), nil, 0600))

	col := newCollector()

	exe, err := c.factory.Checksum("/secure/empty", col.listener())
	require.NoError(t, err)

	require.NoError(t, exe.Execute(context.Background()))
	col.wait(t)

	require.Len(t, col.partials, 2)
	assert.Equal(t, core.Checksum{Type: core.ChecksumMD5, Value: "d41d8cd98f00b204e9800998ecf8427e"}, col.partials[0])
	assert.Equal(t, core.Checksum{Type: core.ChecksumSHA1, Value: "da39a3ee5e6b4b0d3255bfef95601890afd80709"}, col.partials[1])
}

func TestChecksumMissingFile(t *testing.T) {
	c, _ := newTestConsole(t)

	var failure error

	col := newCollector()
	l := col.listener()
	l.Error = func(err error) {
		failure = err
	}

	exe, err := c.factory.Checksum("/secure/missing", l)
	require.NoError(t, err)

	require.NoError(t, exe.Execute(context.Background()))
	col.wait(t)

	assert.True(t, core.IsNotExist(failure))
	assert.Equal(t, executable.StateFailed, exe.State())
}

func TestFolderUsage(t *testing.T) {
	c, root := newTestConsole(t)

	require.NoError(t, os.MkdirAll(filepath.Join(root, "a", "b"), 0700))
	require.NoError(t, os.WriteFile(filepath.Join(root, "a", "f1"), []byte("12345"), 0600))
	require.NoError(t, os.WriteFile(filepath.Join(root, "a", "b", "f2"), []byte("123"), 0600))

	col := newCollector()

	exe, err := c.factory.FolderUsage("/secure", col.listener())
	require.NoError(t, err)

	require.NoError(t, exe.Execute(context.Background()))
	col.wait(t)

	last := col.partials[len(col.partials)-1].(core.FolderUsage)

	assert.Equal(t, core.FolderUsage{Directory: "/secure", Files: 2, Folders: 2, Size: 8}, last)
}

func TestRead(t *testing.T) {
	cfg := testConfig(t, filepath.Join(t.TempDir(), "vault.pfm"))
	cfg.BufferSize = 4

	store, err := container.Create(cfg.Container, "secret", cfg.Options)
	require.NoError(t, err)

	c := NewConsole(cfg)
	c.AllocContainer(store)
	defer c.Dealloc()

	root, err := store.Root()
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(filepath.Join(root, "data"), []byte("0123456789"), 0600))

	col := newCollector()

	exe, err := c.factory.Read("/secure/data", col.listener())
	require.NoError(t, err)

	require.NoError(t, exe.Execute(context.Background()))
	col.wait(t)

	var out []byte
	for _, p := range col.partials {
		out = append(out, p.([]byte)...)
	}

	assert.Equal(t, "0123456789", string(out))
	assert.Len(t, col.partials, 3)
}
