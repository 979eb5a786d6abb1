package secure

import (
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"syscall"
	"time"

	"github.com/0xef53/phoenix-fm/core"

	"golang.org/x/sys/unix"
)

func objectType(m fs.FileMode) core.ObjectType {
	switch {
	case m.IsDir():
		return core.TypeDirectory
	case m&fs.ModeSymlink != 0:
		return core.TypeSymlink
	case m&fs.ModeCharDevice != 0:
		return core.TypeCharacterDevice
	case m&fs.ModeDevice != 0:
		return core.TypeBlockDevice
	case m&fs.ModeNamedPipe != 0:
		return core.TypeNamedPipe
	case m&fs.ModeSocket != 0:
		return core.TypeDomainSocket
	}

	return core.TypeRegularFile
}

// object describes the real file with its virtual name and parent.
// Symlink targets are resolved when they stay inside the container.
func (c *Console) object(root, real string, fi fs.FileInfo) *core.FileSystemObject {
	virtual, err := virtualPath(root, c.config.MountPoint, real)
	if err != nil {
		return nil
	}

	obj := core.FileSystemObject{
		Type:         objectType(fi.Mode()),
		Name:         path.Base(virtual),
		Parent:       path.Dir(virtual),
		Permissions:  core.PermissionsFromFileMode(fi.Mode()),
		LastModified: fi.ModTime(),
		Size:         fi.Size(),
		Secure:       true,
	}

	if st, ok := fi.Sys().(*syscall.Stat_t); ok {
		accounts := c.owners()

		obj.User = accounts.User(st.Uid)
		obj.Group = accounts.Group(st.Gid)

		obj.LastAccessed = time.Unix(st.Atim.Unix())
		obj.LastChanged = time.Unix(st.Ctim.Unix())

		if obj.Type == core.TypeBlockDevice || obj.Type == core.TypeCharacterDevice {
			obj.Major = unix.Major(uint64(st.Rdev))
			obj.Minor = unix.Minor(uint64(st.Rdev))
			obj.Size = 0
		}
	} else {
		obj.LastAccessed = obj.LastModified
		obj.LastChanged = obj.LastModified
	}

	if obj.IsDirectory() {
		obj.Size = 0
	}

	if obj.Type == core.TypeSymlink {
		if target, err := os.Readlink(real); err == nil {
			obj.LinkPath = target

			if !filepath.IsAbs(target) {
				target = filepath.Join(filepath.Dir(real), target)
			}

			if tfi, err := os.Stat(target); err == nil {
				obj.LinkRef = c.object(root, filepath.Clean(target), tfi)
			}
		}
	}

	return &obj
}

// mountPointObject describes the mount point of a locked container.
func (c *Console) mountPointObject() *core.FileSystemObject {
	mp := c.config.MountPoint

	return &core.FileSystemObject{
		Type:        core.TypeDirectory,
		Name:        path.Base(mp),
		Parent:      path.Dir(mp),
		Permissions: core.PermissionsFromFileMode(0700),
		Secure:      true,
	}
}

// parentObject is the ".." entry of a listing of dir.
func parentObject(dir string) *core.FileSystemObject {
	return &core.FileSystemObject{
		Type:   core.TypeParentDirectory,
		Name:   "..",
		Parent: dir,
		Secure: true,
	}
}
