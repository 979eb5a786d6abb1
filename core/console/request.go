package console

import (
	"errors"
	"fmt"
	"syscall"

	"github.com/0xef53/phoenix-fm/core"
	"github.com/0xef53/phoenix-fm/core/executable"
)

type Op string

const (
	OpChangeCurrentDirectory Op = "cd"
	OpChangeOwner            Op = "chown"
	OpChangePermissions      Op = "chmod"
	OpChecksum               Op = "checksum"
	OpCompress               Op = "compress"
	OpCopy                   Op = "copy"
	OpCreateDirectory        Op = "mkdir"
	OpCreateFile             Op = "touch"
	OpDeleteDirectory        Op = "rmdir"
	OpDeleteFile             Op = "rm"
	OpDiskUsage              Op = "df"
	OpExec                   Op = "exec"
	OpFileInfo               Op = "stat"
	OpFind                   Op = "find"
	OpFolderUsage            Op = "du"
	OpIdentity               Op = "id"
	OpLink                   Op = "link"
	OpList                   Op = "ls"
	OpMountPointInfo         Op = "mounts"
	OpMount                  Op = "remount"
	OpMove                   Op = "move"
	OpProcessID              Op = "pidof"
	OpRead                   Op = "read"
	OpResolveLink            Op = "readlink"
	OpSendSignal             Op = "kill"
	OpUncompress             Op = "uncompress"
)

var errBadRequest = errors.New("bad request")

// Request is an operation requested by the presentation layer.
// Only the fields meaningful for Op are consulted.
type Request struct {
	Op Op

	Path   string
	Target string
	Paths  []string

	Query       core.Query
	Permissions core.Permissions
	User        *core.User
	Group       *core.Group

	Signal syscall.Signal
	PID    int
	Name   string

	Mode       core.CompressionMode
	MountPoint core.MountPoint
	ReadWrite  bool

	FollowSymlinks bool

	Listener executable.AsyncResultListener
}

func (r *Request) require(fields ...string) error {
	for _, f := range fields {
		var empty bool

		switch f {
		case "path":
			empty = len(r.Path) == 0
		case "target":
			empty = len(r.Target) == 0
		case "paths":
			empty = len(r.Paths) == 0
		case "name":
			empty = len(r.Name) == 0
		case "pid":
			empty = r.PID <= 0
		}

		if empty {
			return fmt.Errorf("%w: %s requires %s", errBadRequest, r.Op, f)
		}
	}

	return nil
}

// Dispatch builds the executable of the request using the factory.
func Dispatch(f Factory, r Request) (executable.Executable, error) {
	var (
		exe executable.Executable
		err error
	)

	need := func(fields ...string) bool {
		err = r.require(fields...)
		return err == nil
	}

	switch r.Op {
	case OpChangeCurrentDirectory:
		if need("path") {
			exe, err = f.ChangeCurrentDirectory(r.Path)
		}
	case OpChangeOwner:
		if need("path") {
			exe, err = f.ChangeOwner(r.Path, r.User, r.Group)
		}
	case OpChangePermissions:
		if need("path") {
			exe, err = f.ChangePermissions(r.Path, r.Permissions)
		}
	case OpChecksum:
		if need("path") {
			exe, err = f.Checksum(r.Path, r.Listener)
		}
	case OpCompress:
		if need("paths") {
			exe, err = f.Compress(r.Mode, r.Target, r.Paths, r.Listener)
		}
	case OpCopy:
		if need("path", "target") {
			exe, err = f.Copy(r.Path, r.Target)
		}
	case OpCreateDirectory:
		if need("path") {
			exe, err = f.CreateDirectory(r.Path)
		}
	case OpCreateFile:
		if need("path") {
			exe, err = f.CreateFile(r.Path)
		}
	case OpDeleteDirectory:
		if need("path") {
			exe, err = f.DeleteDirectory(r.Path)
		}
	case OpDeleteFile:
		if need("path") {
			exe, err = f.DeleteFile(r.Path)
		}
	case OpDiskUsage:
		exe, err = f.DiskUsage(r.Path)
	case OpExec:
		if need("name") {
			exe, err = f.Exec(r.Name, r.Listener)
		}
	case OpFileInfo:
		if need("path") {
			exe, err = f.FileInfo(r.Path, r.FollowSymlinks)
		}
	case OpFind:
		if need("path") {
			exe, err = f.Find(r.Path, r.Query, r.Listener)
		}
	case OpFolderUsage:
		if need("path") {
			exe, err = f.FolderUsage(r.Path, r.Listener)
		}
	case OpIdentity:
		exe, err = f.Identity()
	case OpLink:
		if need("path", "target") {
			exe, err = f.Link(r.Path, r.Target)
		}
	case OpList:
		if need("path") {
			exe, err = f.List(r.Path)
		}
	case OpMountPointInfo:
		exe, err = f.MountPointInfo()
	case OpMount:
		exe, err = f.Mount(r.MountPoint, r.ReadWrite)
	case OpMove:
		if need("path", "target") {
			exe, err = f.Move(r.Path, r.Target)
		}
	case OpProcessID:
		if need("name") {
			exe, err = f.ProcessID(r.Name)
		}
	case OpRead:
		if need("path") {
			exe, err = f.Read(r.Path, r.Listener)
		}
	case OpResolveLink:
		if need("path") {
			exe, err = f.ResolveLink(r.Path)
		}
	case OpSendSignal:
		if need("pid") {
			exe, err = f.SendSignal(r.PID, r.Signal)
		}
	case OpUncompress:
		if need("path") {
			exe, err = f.Uncompress(r.Path, r.Target, r.Listener)
		}
	default:
		return nil, fmt.Errorf("%w: unknown operation %q", errBadRequest, r.Op)
	}

	if err != nil {
		return nil, err
	}

	return exe, nil
}

// IsBadRequest reports whether the error was caused by an incomplete request.
func IsBadRequest(err error) bool {
	return errors.Is(err, errBadRequest)
}
