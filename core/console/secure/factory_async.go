package secure

import (
	"context"
	"crypto/md5"
	"crypto/sha1"
	"encoding/hex"
	"errors"
	"io"
	"os"
	"path/filepath"

	"github.com/0xef53/phoenix-fm/core"
	"github.com/0xef53/phoenix-fm/core/executable"
)

const (
	exitSuccess = 0
	exitFailure = 1
)

// newAsyncProgram runs work on a worker goroutine with the tree under
// the shared lock. The container is unlocked before dispatching.
func newAsyncProgram(c *Console, op, target string, l executable.AsyncResultListener, work func(*executable.Job, *tree) error) executable.Asynchronous {
	var t *tree

	prepare := func(ctx context.Context) error {
		var err error

		t, err = c.tree(ctx, true)

		return err
	}

	worker := func(_ context.Context, job *executable.Job) (int, error) {
		err := t.store.Read(func(string) error {
			return work(job, t)
		})
		if err != nil {
			return exitFailure, mapError(op, target, err)
		}

		return exitSuccess, nil
	}

	return executable.NewAsyncProgram(op, l, worker).
		WithOptions(c.config.options()).
		WithFlags(true, false).
		WithPrepare(prepare)
}

// Checksum computes MD5 and SHA-1 digests in a single pass.
func (f *Factory) Checksum(p string, l executable.AsyncResultListener) (executable.Asynchronous, error) {
	p = f.c.abs(p)

	bufSize := f.c.config.options().BufferSize

	return newAsyncProgram(f.c, "checksum", p, l, func(job *executable.Job, t *tree) error {
		real, err := t.real(p)
		if err != nil {
			return err
		}

		fd, err := os.Open(real)
		if err != nil {
			return err
		}
		defer fd.Close()

		md5h, sha1h := md5.New(), sha1.New()

		w := io.MultiWriter(md5h, sha1h)
		buf := make([]byte, bufSize)

		for {
			if job.Cancelled() {
				return nil
			}

			n, err := fd.Read(buf)
			if n > 0 {
				w.Write(buf[:n])
			}
			if err != nil {
				if errors.Is(err, io.EOF) {
					break
				}
				return err
			}
		}

		job.Partial(core.Checksum{Type: core.ChecksumMD5, Value: hex.EncodeToString(md5h.Sum(nil))})
		job.Partial(core.Checksum{Type: core.ChecksumSHA1, Value: hex.EncodeToString(sha1h.Sum(nil))})

		return nil
	}), nil
}

// Find walks the tree depth-first and reports every object whose name
// matches any slot of the query. Cancellation is checked after each child.
func (f *Factory) Find(dir string, q core.Query, l executable.AsyncResultListener) (executable.Asynchronous, error) {
	dir = f.c.abs(dir)

	if q.IsEmpty() {
		return nil, &core.ExecutionError{Op: "find", Path: dir, Err: errors.New("empty query")}
	}

	m, err := q.Compile()
	if err != nil {
		return nil, &core.ExecutionError{Op: "find", Path: dir, Err: err}
	}

	return newAsyncProgram(f.c, "find", dir, l, func(job *executable.Job, t *tree) error {
		real, err := t.real(dir)
		if err != nil {
			return err
		}

		fi, err := os.Stat(real)
		if err != nil {
			return err
		}
		if !fi.IsDir() {
			return errNotDirectory
		}

		return find(job, t, real, m)
	}), nil
}

var errStopWalk = errors.New("stop walking")

func find(job *executable.Job, t *tree, dir string, m *core.Matcher) error {
	err := walk(job, dir, func(p string, fi os.FileInfo) {
		if m.Match(fi.Name()) {
			if obj := t.object(p, fi); obj != nil {
				job.Partial(obj)
			}
		}
	})

	if errors.Is(err, errStopWalk) {
		return nil
	}

	return err
}

// walk visits the descendants of dir depth-first without following
// symlinks. Unreadable subdirectories are skipped.
func walk(job *executable.Job, dir string, visit func(string, os.FileInfo)) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return err
	}

	for _, e := range entries {
		p := filepath.Join(dir, e.Name())

		if fi, err := e.Info(); err == nil {
			visit(p, fi)

			if fi.IsDir() {
				if err := walk(job, p, visit); err != nil && !errors.Is(err, os.ErrPermission) {
					return err
				}
			}
		}

		if job.Cancelled() {
			return errStopWalk
		}
	}

	return nil
}

// FolderUsage accumulates the number of files and folders and the total
// size of a directory tree. A snapshot is reported after every directory.
func (f *Factory) FolderUsage(dir string, l executable.AsyncResultListener) (executable.Asynchronous, error) {
	dir = f.c.abs(dir)

	return newAsyncProgram(f.c, "du", dir, l, func(job *executable.Job, t *tree) error {
		real, err := t.real(dir)
		if err != nil {
			return err
		}

		usage := core.FolderUsage{Directory: dir}

		err = walk(job, real, func(_ string, fi os.FileInfo) {
			if fi.IsDir() {
				usage.Folders++
				job.Partial(usage)
			} else {
				usage.Files++
				usage.Size += fi.Size()
			}
		})
		if err != nil && !errors.Is(err, errStopWalk) {
			return err
		}

		job.Partial(usage)

		return nil
	}), nil
}

// Read streams the content of a file in chunks of the buffer size.
func (f *Factory) Read(p string, l executable.AsyncResultListener) (executable.Asynchronous, error) {
	p = f.c.abs(p)

	bufSize := f.c.config.options().BufferSize

	return newAsyncProgram(f.c, "read", p, l, func(job *executable.Job, t *tree) error {
		real, err := t.real(p)
		if err != nil {
			return err
		}

		fd, err := os.Open(real)
		if err != nil {
			return err
		}
		defer fd.Close()

		for {
			if job.Cancelled() {
				return nil
			}

			buf := make([]byte, bufSize)

			n, err := fd.Read(buf)
			if n > 0 {
				job.Partial(buf[:n])
			}
			if err != nil {
				if errors.Is(err, io.EOF) {
					return nil
				}
				return err
			}
		}
	}), nil
}
