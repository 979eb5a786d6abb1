package console

import (
	"context"
	"errors"
	"testing"

	"github.com/0xef53/phoenix-fm/core"
	"github.com/0xef53/phoenix-fm/core/executable"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// mockFactory implements the operations used by the tests and panics
// on any other (through the embedded nil interface).
type mockFactory struct {
	Factory
	mock.Mock
}

func done(err error) executable.Synchronous[bool] {
	return executable.NewProgram("step", func(context.Context) (bool, error) {
		return err == nil, err
	})
}

func (f *mockFactory) DeleteFile(p string) (executable.Synchronous[bool], error) {
	args := f.Called(p)
	return done(args.Error(0)), nil
}

func (f *mockFactory) DeleteDirectory(p string) (executable.Synchronous[bool], error) {
	args := f.Called(p)
	return done(args.Error(0)), nil
}

func (f *mockFactory) Copy(src, dst string) (executable.Synchronous[bool], error) {
	args := f.Called(src, dst)
	return done(args.Error(0)), nil
}

func (f *mockFactory) Move(src, dst string) (executable.Synchronous[bool], error) {
	args := f.Called(src, dst)
	return done(args.Error(0)), nil
}

func (f *mockFactory) List(dir string) (executable.Synchronous[[]*core.FileSystemObject], error) {
	args := f.Called(dir)

	return executable.NewProgram("ls", func(context.Context) ([]*core.FileSystemObject, error) {
		return args.Get(0).([]*core.FileSystemObject), args.Error(1)
	}), nil
}

func (f *mockFactory) Identity() (executable.Synchronous[*core.Identity], error) {
	return nil, &core.CommandNotFoundError{Op: string(OpIdentity), Console: "mock"}
}

func object(t core.ObjectType, p string) *core.FileSystemObject {
	obj := core.FileSystemObject{Type: t}

	for i := len(p) - 1; i >= 0; i-- {
		if p[i] == '/' {
			obj.Parent, obj.Name = p[:i], p[i+1:]
			break
		}
	}

	if obj.Parent == "" {
		obj.Parent = "/"
	}

	return &obj
}

func TestDeletionOrder(t *testing.T) {
	objs := []*core.FileSystemObject{
		object(core.TypeDirectory, "/a"),
		object(core.TypeRegularFile, "/a/b/c"),
		object(core.TypeDirectory, "/a/b"),
		object(core.TypeRegularFile, "/z"),
	}

	var paths []string
	for _, obj := range DeletionOrder(objs) {
		paths = append(paths, obj.FullPath())
	}

	assert.Equal(t, []string{"/z", "/a/b/c", "/a/b", "/a"}, paths)

	// The input is not reordered
	assert.Equal(t, "/a", objs[0].FullPath())
}

func TestDeleteAll(t *testing.T) {
	f := new(mockFactory)

	var order []string

	record := func(args mock.Arguments) {
		order = append(order, args.String(0))
	}

	f.On("DeleteFile", "/a/b/c").Return(nil).Run(record).Once()
	f.On("DeleteDirectory", "/a/b").Return(nil).Run(record).Once()
	f.On("DeleteDirectory", "/a").Return(nil).Run(record).Once()

	objs := []*core.FileSystemObject{
		object(core.TypeDirectory, "/a"),
		object(core.TypeDirectory, "/a/b"),
		object(core.TypeRegularFile, "/a/b/c"),
		{Type: core.TypeParentDirectory, Name: "..", Parent: "/a"},
	}

	require.NoError(t, DeleteAll(context.Background(), f, objs))

	assert.Equal(t, []string{"/a/b/c", "/a/b", "/a"}, order)
	f.AssertExpectations(t)
}

func TestDeleteAllSkipsVanished(t *testing.T) {
	f := new(mockFactory)

	f.On("DeleteFile", "/b").Return(&core.NoSuchFileOrDirectoryError{Path: "/b"}).Once()
	f.On("DeleteFile", "/a").Return(nil).Once()

	objs := []*core.FileSystemObject{
		object(core.TypeRegularFile, "/a"),
		object(core.TypeRegularFile, "/b"),
	}

	require.NoError(t, DeleteAll(context.Background(), f, objs))
	f.AssertExpectations(t)
}

func TestCopyAllStopsOnFailure(t *testing.T) {
	f := new(mockFactory)

	f.On("Copy", "/a", "/dst").Return(errors.New("disk full")).Once()

	err := CopyAll(context.Background(), f, []Pair{{Src: "/a", Dst: "/dst"}, {Src: "/b", Dst: "/dst"}})

	assert.ErrorContains(t, err, "copy /a: disk full")
	f.AssertNotCalled(t, "Copy", "/b", "/dst")
}

func TestMoveAll(t *testing.T) {
	f := new(mockFactory)

	f.On("Move", "/a", "/dst").Return(nil).Once()
	f.On("Move", "/b", "/dst").Return(nil).Once()

	require.NoError(t, MoveAll(context.Background(), f, []Pair{{Src: "/a", Dst: "/dst"}, {Src: "/b", Dst: "/dst"}}))
	f.AssertExpectations(t)
}

func TestBatchHonoursContext(t *testing.T) {
	f := new(mockFactory)

	f.On("Copy", "/a", "/dst").Return(nil).Maybe()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := CopyAll(ctx, f, []Pair{{Src: "/a", Dst: "/dst"}})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestDispatch(t *testing.T) {
	f := new(mockFactory)

	f.On("List", "/tmp").Return([]*core.FileSystemObject{}, nil)

	exe, err := Dispatch(f, Request{Op: OpList, Path: "/tmp"})
	require.NoError(t, err)
	assert.False(t, exe.IsAsynchronous())

	_, err = Dispatch(f, Request{Op: OpCopy, Path: "/a"})
	assert.True(t, IsBadRequest(err))

	_, err = Dispatch(f, Request{Op: OpSendSignal})
	assert.True(t, IsBadRequest(err))

	_, err = Dispatch(f, Request{Op: "format"})
	assert.True(t, IsBadRequest(err))

	_, err = Dispatch(f, Request{Op: OpIdentity})
	assert.True(t, core.IsCommandNotFound(err))
}

// fakeConsole counts the lifecycle calls of a session.
type fakeConsole struct {
	factory Factory

	active     bool
	privileged bool

	allocs    int
	reallocs  int
	escalates int
	opens     int
}

func (c *fakeConsole) ID() string { return "fake" }

func (c *fakeConsole) Kind() string { return "fake" }

func (c *fakeConsole) IsActive() bool { return c.active }

func (c *fakeConsole) IsPrivileged() bool { return c.privileged }

func (c *fakeConsole) WorkingDirectory() string { return "/" }

func (c *fakeConsole) Factory() Factory { return c.factory }

func (c *fakeConsole) RealPath(p string) (string, error) { return p, nil }

func (c *fakeConsole) VirtualPath(p string) (string, error) { return p, nil }

func (c *fakeConsole) Alloc(context.Context) error {
	c.allocs++
	c.active = true
	return nil
}

func (c *fakeConsole) Dealloc() error {
	c.active = false
	return nil
}

func (c *fakeConsole) Realloc(context.Context) error {
	c.reallocs++
	return nil
}

func (c *fakeConsole) Escalate(context.Context) error {
	c.escalates++
	c.privileged = true
	return nil
}

func (c *fakeConsole) Open(context.Context) error {
	c.opens++
	return nil
}

func TestSessionRelaunch(t *testing.T) {
	c := &fakeConsole{}
	s := NewSession(c)

	calls := 0

	exe, err := s.Run(context.Background(), func(Factory) (executable.Executable, error) {
		return executable.NewProgram("flaky", func(context.Context) (bool, error) {
			calls++
			if calls == 1 {
				return false, &core.RelaunchableError{Err: errors.New("shell died")}
			}
			return true, nil
		}).WithFlags(true, false), nil
	})
	require.NoError(t, err)

	assert.Equal(t, executable.StateCompleted, exe.State())
	assert.Equal(t, 2, calls)
	assert.Equal(t, 1, c.allocs)
	assert.Equal(t, 1, c.reallocs)
	assert.Equal(t, 1, c.opens)
}

func TestSessionEscalate(t *testing.T) {
	c := &fakeConsole{}
	s := NewSession(c)
	s.AutoEscalate = true

	builds := 0

	exe, err := s.Run(context.Background(), func(Factory) (executable.Executable, error) {
		builds++

		return executable.NewProgram("mount", func(context.Context) (bool, error) {
			if !c.privileged {
				return false, &core.InsufficientPermissionsError{Op: "mount"}
			}
			return true, nil
		}), nil
	})
	require.NoError(t, err)

	assert.Equal(t, executable.StateCompleted, exe.State())
	assert.Equal(t, 2, builds)
	assert.Equal(t, 1, c.escalates)
}

func TestSessionWithoutEscalation(t *testing.T) {
	c := &fakeConsole{}
	s := NewSession(c)

	_, err := s.Run(context.Background(), func(Factory) (executable.Executable, error) {
		return executable.NewProgram("mount", func(context.Context) (bool, error) {
			return false, &core.InsufficientPermissionsError{Op: "mount"}
		}), nil
	})

	assert.True(t, core.IsInsufficientPermissions(err))
	assert.Zero(t, c.escalates)
}

func TestSessionConsoles(t *testing.T) {
	fg, bg := &fakeConsole{}, &fakeConsole{}

	s := NewSession(fg)
	assert.Nil(t, s.SetBackground(bg))
	assert.Same(t, bg, s.Background())

	next := &fakeConsole{}
	assert.Same(t, fg, s.SetConsole(next))
	assert.Same(t, next, s.Console())

	require.NoError(t, s.Close())
	assert.Nil(t, s.Console())

	_, err := s.Run(context.Background(), nil)
	assert.ErrorIs(t, err, core.ErrConsoleNotAllocated)
}
