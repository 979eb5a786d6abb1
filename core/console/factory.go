package console

import (
	"syscall"

	"github.com/0xef53/phoenix-fm/core"
	"github.com/0xef53/phoenix-fm/core/executable"
)

// Factory binds an operation to a concrete executable of its console.
// A backend that does not implement an operation returns
// a *core.CommandNotFoundError.
type Factory interface {
	ChangeCurrentDirectory(dir string) (executable.Synchronous[bool], error)
	ChangeOwner(path string, user *core.User, group *core.Group) (executable.Synchronous[bool], error)
	ChangePermissions(path string, perm core.Permissions) (executable.Synchronous[bool], error)
	Checksum(path string, l executable.AsyncResultListener) (executable.Asynchronous, error)
	Compress(mode core.CompressionMode, dst string, srcs []string, l executable.AsyncResultListener) (executable.Asynchronous, error)
	Copy(src, dst string) (executable.Synchronous[bool], error)
	CreateDirectory(path string) (executable.Synchronous[bool], error)
	CreateFile(path string) (executable.Synchronous[bool], error)
	DeleteDirectory(path string) (executable.Synchronous[bool], error)
	DeleteFile(path string) (executable.Synchronous[bool], error)
	DiskUsage(dir string) (executable.Synchronous[[]core.DiskUsage], error)
	Exec(cmdline string, l executable.AsyncResultListener) (executable.Asynchronous, error)
	FileInfo(path string, followSymlinks bool) (executable.Synchronous[*core.FileSystemObject], error)
	Find(dir string, q core.Query, l executable.AsyncResultListener) (executable.Asynchronous, error)
	FolderUsage(dir string, l executable.AsyncResultListener) (executable.Asynchronous, error)
	Identity() (executable.Synchronous[*core.Identity], error)
	Link(src, link string) (executable.Synchronous[bool], error)
	List(dir string) (executable.Synchronous[[]*core.FileSystemObject], error)
	MountPointInfo() (executable.Synchronous[[]core.MountPoint], error)
	Mount(mp core.MountPoint, rw bool) (executable.Synchronous[bool], error)
	Move(src, dst string) (executable.Synchronous[bool], error)
	ProcessID(name string) (executable.Synchronous[[]int], error)
	Read(path string, l executable.AsyncResultListener) (executable.Asynchronous, error)
	ResolveLink(path string) (executable.Synchronous[*core.FileSystemObject], error)
	SendSignal(pid int, sig syscall.Signal) (executable.Synchronous[bool], error)
	Uncompress(src, dst string, l executable.AsyncResultListener) (executable.Asynchronous, error)
}

// NotFound returns the error reported for an unsupported operation.
func NotFound(op Op, c Console) error {
	return &core.CommandNotFoundError{Op: string(op), Console: c.Kind()}
}
