package secure

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"syscall"
	"time"

	"github.com/0xef53/phoenix-fm/core"
	"github.com/0xef53/phoenix-fm/core/console"
	"github.com/0xef53/phoenix-fm/core/executable"
	"github.com/0xef53/phoenix-fm/internal/container"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"
)

var _ console.Factory = new(Factory)

var (
	errNotDirectory = errors.New("not a directory")
	errIsDirectory  = errors.New("is a directory")
)

// Factory builds the executables of a secure console.
type Factory struct {
	c *Console
}

// tree is the unlocked container as seen by one operation.
type tree struct {
	c     *Console
	store *container.Container
	root  string
}

func (t *tree) real(virtual string) (string, error) {
	return realPath(t.root, t.c.config.MountPoint, virtual)
}

func (t *tree) object(real string, fi fs.FileInfo) *core.FileSystemObject {
	return t.c.object(t.root, real, fi)
}

func (c *Console) tree(ctx context.Context, open bool) (*tree, error) {
	if open {
		if err := c.Open(ctx); err != nil {
			return nil, err
		}
	}

	store, err := c.container()
	if err != nil {
		return nil, err
	}

	root, err := c.root()
	if err != nil {
		return nil, err
	}

	return &tree{c: c, store: store, root: root}, nil
}

// newProgram wraps an operation on the unlocked tree. Operations that
// change the tree commit the container after success.
func newProgram[T any](c *Console, op, target string, mutates bool, run func(context.Context, *tree) (T, error)) *executable.Program[T] {
	return executable.NewProgram(op, func(ctx context.Context) (T, error) {
		var zero T

		t, err := c.tree(ctx, true)
		if err != nil {
			return zero, err
		}

		v, err := run(ctx, t)
		if err != nil {
			return zero, mapError(op, target, err)
		}

		if mutates {
			if err := c.sync(); err != nil {
				return zero, mapError(op, target, err)
			}
		}

		return v, nil
	}).WithFlags(true, mutates).WithTrace(c.config.Trace)
}

func (f *Factory) ChangeCurrentDirectory(dir string) (executable.Synchronous[bool], error) {
	dir = f.c.abs(dir)

	return newProgram(f.c, "cd", dir, false, func(_ context.Context, t *tree) (bool, error) {
		real, err := t.real(dir)
		if err != nil {
			return false, err
		}

		err = t.store.Read(func(string) error {
			fi, err := os.Stat(real)
			if err != nil {
				return err
			}
			if !fi.IsDir() {
				return errNotDirectory
			}
			return nil
		})
		if err != nil {
			return false, err
		}

		f.c.setWorkingDirectory(dir)

		return true, nil
	}), nil
}

func (f *Factory) ChangeOwner(string, *core.User, *core.Group) (executable.Synchronous[bool], error) {
	return nil, console.NotFound(console.OpChangeOwner, f.c)
}

func (f *Factory) ChangePermissions(string, core.Permissions) (executable.Synchronous[bool], error) {
	return nil, console.NotFound(console.OpChangePermissions, f.c)
}

func (f *Factory) Compress(core.CompressionMode, string, []string, executable.AsyncResultListener) (executable.Asynchronous, error) {
	return nil, console.NotFound(console.OpCompress, f.c)
}

func (f *Factory) Exec(string, executable.AsyncResultListener) (executable.Asynchronous, error) {
	return nil, console.NotFound(console.OpExec, f.c)
}

func (f *Factory) Identity() (executable.Synchronous[*core.Identity], error) {
	return nil, console.NotFound(console.OpIdentity, f.c)
}

func (f *Factory) Link(string, string) (executable.Synchronous[bool], error) {
	return nil, console.NotFound(console.OpLink, f.c)
}

func (f *Factory) Mount(core.MountPoint, bool) (executable.Synchronous[bool], error) {
	return nil, console.NotFound(console.OpMount, f.c)
}

func (f *Factory) ProcessID(string) (executable.Synchronous[[]int], error) {
	return nil, console.NotFound(console.OpProcessID, f.c)
}

func (f *Factory) SendSignal(int, syscall.Signal) (executable.Synchronous[bool], error) {
	return nil, console.NotFound(console.OpSendSignal, f.c)
}

func (f *Factory) Uncompress(string, string, executable.AsyncResultListener) (executable.Asynchronous, error) {
	return nil, console.NotFound(console.OpUncompress, f.c)
}

func (f *Factory) Copy(src, dst string) (executable.Synchronous[bool], error) {
	src, dst = f.c.abs(src), f.c.abs(dst)

	return newProgram(f.c, "copy", src, true, func(_ context.Context, t *tree) (bool, error) {
		rsrc, err := t.real(src)
		if err != nil {
			return false, err
		}

		rdst, err := t.real(dst)
		if err != nil {
			return false, err
		}

		if err := t.store.Copy(rsrc, rdst); err != nil {
			return false, err
		}

		return true, nil
	}), nil
}

func (f *Factory) CreateDirectory(p string) (executable.Synchronous[bool], error) {
	p = f.c.abs(p)

	return newProgram(f.c, "mkdir", p, true, func(_ context.Context, t *tree) (bool, error) {
		real, err := t.real(p)
		if err != nil {
			return false, err
		}

		err = t.store.Mutate(func(string) error {
			return os.MkdirAll(real, 0700)
		})
		if err != nil {
			return false, err
		}

		return true, nil
	}), nil
}

func (f *Factory) CreateFile(p string) (executable.Synchronous[bool], error) {
	p = f.c.abs(p)

	return newProgram(f.c, "touch", p, true, func(_ context.Context, t *tree) (bool, error) {
		real, err := t.real(p)
		if err != nil {
			return false, err
		}

		err = t.store.Mutate(func(string) error {
			fd, err := os.OpenFile(real, os.O_CREATE|os.O_WRONLY, 0600)
			if err != nil {
				return err
			}

			if err := fd.Close(); err != nil {
				return err
			}

			now := time.Now()

			return os.Chtimes(real, now, now)
		})
		if err != nil {
			return false, err
		}

		return true, nil
	}), nil
}

func (f *Factory) DeleteDirectory(p string) (executable.Synchronous[bool], error) {
	p = f.c.abs(p)

	if f.c.isMountPoint(p) {
		return nil, &core.ExecutionError{Op: "rmdir", Path: p, Err: errors.New("cannot delete the mount point")}
	}

	return newProgram(f.c, "rmdir", p, true, func(_ context.Context, t *tree) (bool, error) {
		real, err := t.real(p)
		if err != nil {
			return false, err
		}

		fi, err := os.Lstat(real)
		if err != nil {
			return false, err
		}
		if !fi.IsDir() {
			return false, errNotDirectory
		}

		if err := t.store.RemoveAll(real); err != nil {
			return false, err
		}

		return true, nil
	}), nil
}

func (f *Factory) DeleteFile(p string) (executable.Synchronous[bool], error) {
	p = f.c.abs(p)

	return newProgram(f.c, "rm", p, true, func(_ context.Context, t *tree) (bool, error) {
		real, err := t.real(p)
		if err != nil {
			return false, err
		}

		err = t.store.Mutate(func(string) error {
			fi, err := os.Lstat(real)
			if err != nil {
				return err
			}
			if fi.IsDir() {
				return errIsDirectory
			}
			return os.Remove(real)
		})
		if err != nil {
			return false, err
		}

		return true, nil
	}), nil
}

func (f *Factory) DiskUsage(string) (executable.Synchronous[[]core.DiskUsage], error) {
	mp := f.c.config.MountPoint

	return newProgram(f.c, "df", mp, false, func(_ context.Context, t *tree) ([]core.DiskUsage, error) {
		var st unix.Statfs_t

		if err := unix.Statfs(t.root, &st); err != nil {
			return nil, err
		}

		bsize := uint64(st.Bsize)

		return []core.DiskUsage{
			{
				MountPoint: mp,
				Total:      st.Blocks * bsize,
				Used:       (st.Blocks - st.Bfree) * bsize,
				Free:       st.Bavail * bsize,
				BlockSize:  bsize,
			},
		}, nil
	}), nil
}

// FileInfo of the mount point does not need the container unlocked.
func (f *Factory) FileInfo(p string, followSymlinks bool) (executable.Synchronous[*core.FileSystemObject], error) {
	p = f.c.abs(p)

	if f.c.isMountPoint(p) {
		return executable.NewProgram("stat", func(ctx context.Context) (*core.FileSystemObject, error) {
			t, err := f.c.tree(ctx, false)
			if err != nil {
				// Locked containers report a placeholder
				return f.c.mountPointObject(), nil
			}

			fi, err := os.Stat(t.root)
			if err != nil {
				return nil, mapError("stat", p, err)
			}

			return t.object(t.root, fi), nil
		}).WithFlags(false, false).WithTrace(f.c.config.Trace), nil
	}

	return newProgram(f.c, "stat", p, false, func(_ context.Context, t *tree) (*core.FileSystemObject, error) {
		real, err := t.real(p)
		if err != nil {
			return nil, err
		}

		var obj *core.FileSystemObject

		err = t.store.Read(func(string) error {
			stat := os.Lstat
			if followSymlinks {
				stat = os.Stat
			}

			fi, err := stat(real)
			if err != nil {
				return err
			}

			obj = t.object(real, fi)

			return nil
		})

		return obj, err
	}), nil
}

func (f *Factory) List(dir string) (executable.Synchronous[[]*core.FileSystemObject], error) {
	dir = f.c.abs(dir)

	return newProgram(f.c, "ls", dir, false, func(_ context.Context, t *tree) ([]*core.FileSystemObject, error) {
		real, err := t.real(dir)
		if err != nil {
			return nil, err
		}

		objs := []*core.FileSystemObject{parentObject(dir)}

		err = t.store.Read(func(string) error {
			fi, err := os.Stat(real)
			if err != nil {
				return err
			}
			if !fi.IsDir() {
				return errNotDirectory
			}

			entries, err := os.ReadDir(real)
			if err != nil {
				return err
			}

			for _, e := range entries {
				fi, err := e.Info()
				if err != nil {
					// Removed in the meantime
					continue
				}

				if obj := t.object(filepath.Join(real, e.Name()), fi); obj != nil {
					objs = append(objs, obj)
				}
			}

			return nil
		})
		if err != nil {
			return nil, err
		}

		return objs, nil
	}), nil
}

func (f *Factory) MountPointInfo() (executable.Synchronous[[]core.MountPoint], error) {
	mp := f.c.config.MountPoint

	return newProgram(f.c, "mounts", mp, false, func(context.Context, *tree) ([]core.MountPoint, error) {
		return []core.MountPoint{
			{
				Device:     f.c.config.Container,
				MountPoint: mp,
				Type:       FilesystemType,
				Options:    "rw,nosuid,nodev",
				Secure:     true,
			},
		}, nil
	}), nil
}

// Move renames src to dst. When the rename is impossible it copies src and
// deletes it afterwards; a failed delete is only logged since the data
// already exists at the destination.
func (f *Factory) Move(src, dst string) (executable.Synchronous[bool], error) {
	src, dst = f.c.abs(src), f.c.abs(dst)

	// Nothing changes, so there is nothing to sync
	if src == dst {
		return executable.NewProgram("move", func(context.Context) (bool, error) {
			return true, nil
		}).WithFlags(true, false).WithTrace(f.c.config.Trace), nil
	}

	return newProgram(f.c, "move", src, true, func(_ context.Context, t *tree) (bool, error) {
		rsrc, err := t.real(src)
		if err != nil {
			return false, err
		}

		rdst, err := t.real(dst)
		if err != nil {
			return false, err
		}

		if _, err := os.Lstat(rsrc); err != nil {
			return false, err
		}

		if fi, err := os.Stat(rdst); err == nil && fi.IsDir() {
			rdst = filepath.Join(rdst, filepath.Base(rsrc))
		}

		if rdst == rsrc {
			return true, nil
		}

		err = t.store.Rename(rsrc, rdst)
		if err == nil {
			return true, nil
		}

		log.WithFields(log.Fields{"src": src, "dst": dst}).Debugf("Rename failed, falling back to copy: %s", err)

		if err := t.store.Copy(rsrc, rdst); err != nil {
			return false, err
		}

		if err := t.store.RemoveAll(rsrc); err != nil {
			log.WithFields(log.Fields{"src": src, "dst": dst}).Warnf("Moved by copy, but failed to delete the source: %s", err)
		}

		return true, nil
	}), nil
}

func (f *Factory) ResolveLink(p string) (executable.Synchronous[*core.FileSystemObject], error) {
	p = f.c.abs(p)

	return newProgram(f.c, "readlink", p, false, func(_ context.Context, t *tree) (*core.FileSystemObject, error) {
		real, err := t.real(p)
		if err != nil {
			return nil, err
		}

		var obj *core.FileSystemObject

		err = t.store.Read(func(root string) error {
			target, err := filepath.EvalSymlinks(real)
			if err != nil {
				return err
			}

			if _, err := virtualPath(root, f.c.config.MountPoint, target); err != nil {
				return err
			}

			fi, err := os.Lstat(target)
			if err != nil {
				return err
			}

			obj = t.object(target, fi)

			return nil
		})

		return obj, err
	}), nil
}
