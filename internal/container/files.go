package container

import (
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// Copy recursively copies src to dst inside the unlocked tree.
// Both are real paths; an existing directory at dst receives src as a child.
func (c *Container) Copy(src, dst string) error {
	return c.Mutate(func(root string) error {
		src, err := within(root, src)
		if err != nil {
			return err
		}

		if dst, err = within(root, dst); err != nil {
			return err
		}

		if fi, err := os.Stat(dst); err == nil && fi.IsDir() {
			dst = filepath.Join(dst, filepath.Base(src))
		}

		if dst == src || isDescendant(src, dst) {
			return fmt.Errorf("cannot copy %s into itself", src)
		}

		return copyTree(src, dst)
	})
}

// Rename moves src to dst inside the unlocked tree. It fails when dst exists.
func (c *Container) Rename(src, dst string) error {
	return c.Mutate(func(root string) error {
		src, err := within(root, src)
		if err != nil {
			return err
		}

		if dst, err = within(root, dst); err != nil {
			return err
		}

		if _, err := os.Lstat(dst); err == nil {
			return &os.LinkError{Op: "rename", Old: src, New: dst, Err: fs.ErrExist}
		}

		return os.Rename(src, dst)
	})
}

// RemoveAll removes p and its children. The tree root itself is never removed.
func (c *Container) RemoveAll(p string) error {
	return c.Mutate(func(root string) error {
		p, err := within(root, p)
		if err != nil {
			return err
		}

		if p == root {
			return fmt.Errorf("cannot remove the container root")
		}

		if _, err := os.Lstat(p); err != nil {
			return err
		}

		return os.RemoveAll(p)
	})
}

func isDescendant(parent, p string) bool {
	rel, err := filepath.Rel(parent, p)
	if err != nil {
		return false
	}

	return rel != "." && rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

func copyTree(src, dst string) error {
	return filepath.WalkDir(src, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}

		rel, err := filepath.Rel(src, p)
		if err != nil {
			return err
		}

		target := filepath.Join(dst, rel)

		fi, err := d.Info()
		if err != nil {
			return err
		}

		switch {
		case fi.IsDir():
			return os.MkdirAll(target, fi.Mode().Perm()|0700)
		case fi.Mode()&fs.ModeSymlink != 0:
			link, err := os.Readlink(p)
			if err != nil {
				return err
			}
			return os.Symlink(link, target)
		case fi.Mode().IsRegular():
			return copyFile(p, target, fi.Mode().Perm())
		}

		return nil
	})
}

func copyFile(src, dst string, perm fs.FileMode) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, perm)
	if err != nil {
		return err
	}

	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}

	return out.Close()
}
