package container

import (
	"archive/tar"
	"compress/gzip"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// archive writes the tree under root as a gzip'd tar stream.
// Entry names are relative to root.
func archive(w io.Writer, root string) error {
	zw := gzip.NewWriter(w)
	tw := tar.NewWriter(zw)

	err := filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}

		if p == root {
			return nil
		}

		rel, err := filepath.Rel(root, p)
		if err != nil {
			return err
		}

		fi, err := d.Info()
		if err != nil {
			return err
		}

		var link string

		if fi.Mode()&fs.ModeSymlink != 0 {
			if link, err = os.Readlink(p); err != nil {
				return err
			}
		}

		hdr, err := tar.FileInfoHeader(fi, link)
		if err != nil {
			// Sockets and other special files are not stored
			return nil
		}

		hdr.Name = filepath.ToSlash(rel)
		hdr.Uname, hdr.Gname = "", ""

		if fi.IsDir() {
			hdr.Name += "/"
		}

		if err := tw.WriteHeader(hdr); err != nil {
			return err
		}

		if fi.Mode().IsRegular() {
			fd, err := os.Open(p)
			if err != nil {
				return err
			}
			defer fd.Close()

			if _, err := io.Copy(tw, fd); err != nil {
				return err
			}
		}

		return nil
	})
	if err != nil {
		return err
	}

	if err := tw.Close(); err != nil {
		return err
	}

	return zw.Close()
}

// extract unpacks a stream produced by archive into root.
func extract(r io.Reader, root string) error {
	zr, err := gzip.NewReader(r)
	if err != nil {
		return err
	}
	defer zr.Close()

	tr := tar.NewReader(zr)

	type dirTimes struct {
		path  string
		mtime time.Time
	}

	var dirs []dirTimes

	for {
		hdr, err := tr.Next()
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return err
		}

		target, err := within(root, filepath.Join(root, filepath.FromSlash(hdr.Name)))
		if err != nil {
			return fmt.Errorf("%s: %w", hdr.Name, err)
		}

		mode := fs.FileMode(hdr.Mode).Perm()

		switch hdr.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(target, mode|0700); err != nil {
				return err
			}
			dirs = append(dirs, dirTimes{target, hdr.ModTime})
		case tar.TypeReg:
			if err := os.MkdirAll(filepath.Dir(target), 0700); err != nil {
				return err
			}

			fd, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, mode)
			if err != nil {
				return err
			}

			if _, err := io.Copy(fd, tr); err != nil {
				fd.Close()
				return err
			}

			if err := fd.Close(); err != nil {
				return err
			}

			os.Chtimes(target, hdr.AccessTime, hdr.ModTime)
		case tar.TypeSymlink:
			if err := os.Symlink(hdr.Linkname, target); err != nil {
				return err
			}
		}
	}

	// Restored after the content, otherwise creating children updates them
	for _, d := range dirs {
		os.Chtimes(d.path, d.mtime, d.mtime)
	}

	return nil
}

// within checks that p lies inside root (or is root itself).
func within(root, p string) (string, error) {
	p = filepath.Clean(p)

	if p == root || strings.HasPrefix(p, root+string(filepath.Separator)) {
		return p, nil
	}

	return "", ErrOutsideRoot
}
