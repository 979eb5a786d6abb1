package shell

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strconv"
	"strings"
	"syscall"

	"github.com/0xef53/phoenix-fm/core"
	"github.com/0xef53/phoenix-fm/core/console"
	"github.com/0xef53/phoenix-fm/core/executable"
	"github.com/0xef53/phoenix-fm/core/parser"
)

var _ console.Factory = new(Factory)

// Factory builds the executables of a shell console.
type Factory struct {
	c *Console
}

func newProgram[T any](c *Console, op string, run func(context.Context) (T, error)) *executable.Program[T] {
	return executable.NewProgram(op, run).WithTrace(c.config.Trace)
}

// command builds an executable that succeeds when the command exits with zero.
func (f *Factory) command(op, p, command string) executable.Synchronous[bool] {
	return newProgram(f.c, op, func(ctx context.Context) (bool, error) {
		res, err := f.c.run(ctx, command)
		if err != nil {
			return false, err
		}

		if err := f.c.check(op, p, res); err != nil {
			return false, err
		}

		return true, nil
	})
}

func (f *Factory) ChangeCurrentDirectory(dir string) (executable.Synchronous[bool], error) {
	dir = f.c.abs(dir)

	return newProgram(f.c, "cd", func(ctx context.Context) (bool, error) {
		res, err := f.c.run(ctx, "cd "+quote(dir)+" && pwd")
		if err != nil {
			return false, err
		}

		if err := f.c.check("cd", dir, res); err != nil {
			return false, err
		}

		wd, ok := parser.ParseResolvedPath(string(res.Stdout))
		if !ok {
			wd = dir
		}

		f.c.setWorkingDirectory(wd)

		return true, nil
	}), nil
}

func (f *Factory) ChangeOwner(p string, user *core.User, group *core.Group) (executable.Synchronous[bool], error) {
	if user == nil && group == nil {
		return nil, &core.ExecutionError{Op: "chown", Path: p, Err: errors.New("neither user nor group is specified")}
	}

	var owner string

	if user != nil {
		owner = securityName(user.SecurityIdentifier)
	}
	if group != nil {
		owner += ":" + securityName(group.SecurityIdentifier)
	}

	p = f.c.abs(p)

	return f.command("chown", p, "chown "+quote(owner)+" "+quote(p)), nil
}

func securityName(id core.SecurityIdentifier) string {
	if len(id.Name) > 0 {
		return id.Name
	}

	return strconv.Itoa(id.ID)
}

func (f *Factory) ChangePermissions(p string, perm core.Permissions) (executable.Synchronous[bool], error) {
	p = f.c.abs(p)

	return f.command("chmod", p, "chmod "+perm.Octal()+" "+quote(p)), nil
}

func (f *Factory) Copy(src, dst string) (executable.Synchronous[bool], error) {
	src, dst = f.c.abs(src), f.c.abs(dst)

	return f.command("copy", src, "cp -R "+quote(src)+" "+quote(dst)), nil
}

func (f *Factory) CreateDirectory(p string) (executable.Synchronous[bool], error) {
	p = f.c.abs(p)

	return f.command("mkdir", p, "mkdir -p "+quote(p)), nil
}

func (f *Factory) CreateFile(p string) (executable.Synchronous[bool], error) {
	p = f.c.abs(p)

	return f.command("touch", p, "touch "+quote(p)), nil
}

func (f *Factory) DeleteDirectory(p string) (executable.Synchronous[bool], error) {
	p = f.c.abs(p)

	if p == "/" {
		return nil, &core.ExecutionError{Op: "rmdir", Path: p, Err: errors.New("refusing to delete the root directory")}
	}

	return f.command("rmdir", p, "rm -R "+quote(p)), nil
}

func (f *Factory) DeleteFile(p string) (executable.Synchronous[bool], error) {
	p = f.c.abs(p)

	return f.command("rm", p, "rm "+quote(p)), nil
}

func (f *Factory) DiskUsage(dir string) (executable.Synchronous[[]core.DiskUsage], error) {
	// Toolbox df does not know the POSIX flags
	command := "df -Pk 2>/dev/null || df"

	if len(dir) > 0 {
		dir = f.c.abs(dir)
		command = fmt.Sprintf("df -Pk %[1]s 2>/dev/null || df %[1]s", quote(dir))
	}

	return newProgram(f.c, "df", func(ctx context.Context) ([]core.DiskUsage, error) {
		res, err := f.c.run(ctx, command)
		if err != nil {
			return nil, err
		}

		usage := parser.ParseDiskUsage(string(res.Stdout))

		if len(usage) == 0 {
			if err := f.c.check("df", dir, res); err != nil {
				return nil, err
			}
		}

		return usage, nil
	}), nil
}

func (f *Factory) FileInfo(p string, followSymlinks bool) (executable.Synchronous[*core.FileSystemObject], error) {
	p = f.c.abs(p)

	return newProgram(f.c, "stat", func(ctx context.Context) (*core.FileSystemObject, error) {
		return f.fileInfo(ctx, p, followSymlinks)
	}), nil
}

func (f *Factory) fileInfo(ctx context.Context, p string, followSymlinks bool) (*core.FileSystemObject, error) {
	flags := "-ld"
	if followSymlinks {
		flags = "-ldL"
	}

	res, err := f.c.run(ctx, "LC_ALL=C ls "+flags+" "+quote(p))
	if err != nil {
		return nil, err
	}

	if err := f.c.check("stat", p, res); err != nil {
		return nil, err
	}

	for _, line := range strings.Split(string(res.Stdout), "\n") {
		if parser.IsListingNoise(line) {
			continue
		}

		obj, err := parser.ParseFindLine(line)
		if err != nil {
			continue
		}

		obj.Name, obj.Parent = path.Base(p), path.Dir(p)

		if obj.Type == core.TypeSymlink {
			f.resolveLinks(ctx, []*core.FileSystemObject{obj})
		}

		return obj, nil
	}

	return nil, &core.ExecutionError{Op: "stat", Path: p, Err: parser.ErrMalformedLine}
}

// resolveLinks fills LinkRef of symlinks with the objects they point to.
// Dangling links keep a nil reference.
func (f *Factory) resolveLinks(ctx context.Context, links []*core.FileSystemObject) {
	if len(links) == 0 {
		return
	}

	byPath := make(map[string]*core.FileSystemObject, len(links))
	paths := make([]string, 0, len(links))

	for _, l := range links {
		byPath[l.FullPath()] = l
		paths = append(paths, l.FullPath())
	}

	res, err := f.c.run(ctx, "LC_ALL=C ls -ldL "+quoteAll(paths)+" 2>/dev/null")
	if err != nil {
		return
	}

	for _, line := range strings.Split(string(res.Stdout), "\n") {
		if parser.IsListingNoise(line) {
			continue
		}

		ref, err := parser.ParseFindLine(line)
		if err != nil {
			continue
		}

		link, ok := byPath[ref.FullPath()]
		if !ok {
			continue
		}

		target := link.LinkPath
		if !path.IsAbs(target) {
			target = path.Join(link.Parent, target)
		}

		ref.Name, ref.Parent = path.Base(target), path.Dir(target)

		link.LinkRef = ref
	}
}

func (f *Factory) Identity() (executable.Synchronous[*core.Identity], error) {
	return newProgram(f.c, "id", func(ctx context.Context) (*core.Identity, error) {
		res, err := f.c.run(ctx, "id")
		if err != nil {
			return nil, err
		}

		if err := f.c.check("id", "", res); err != nil {
			return nil, err
		}

		id, err := parser.ParseIdentity(string(res.Stdout))
		if err != nil {
			return nil, &core.ExecutionError{Op: "id", Err: err}
		}

		return id, nil
	}), nil
}

func (f *Factory) Link(src, link string) (executable.Synchronous[bool], error) {
	link = f.c.abs(link)

	return f.command("link", link, "ln -s "+quote(src)+" "+quote(link)), nil
}

func (f *Factory) List(dir string) (executable.Synchronous[[]*core.FileSystemObject], error) {
	dir = f.c.abs(dir)

	// A trailing slash makes ls list the target of a symlinked directory
	arg := dir
	if dir != "/" {
		arg += "/"
	}

	command := fmt.Sprintf(
		"if [ -e %[1]s ] && [ ! -d %[1]s ]; then echo %[2]s >&2; false; else LC_ALL=C ls -la %[3]s; fi",
		quote(dir), quote(dir+": not a directory"), quote(arg),
	)

	return newProgram(f.c, "ls", func(ctx context.Context) ([]*core.FileSystemObject, error) {
		res, err := f.c.run(ctx, command)
		if err != nil {
			return nil, err
		}

		if err := f.c.check("ls", dir, res); err != nil {
			return nil, err
		}

		objs := parser.ParseListing(string(res.Stdout), dir)

		var links []*core.FileSystemObject

		for _, o := range objs {
			if o.Type == core.TypeSymlink {
				links = append(links, o)
			}
		}

		f.resolveLinks(ctx, links)

		return objs, nil
	}), nil
}

func (f *Factory) MountPointInfo() (executable.Synchronous[[]core.MountPoint], error) {
	return newProgram(f.c, "mounts", func(ctx context.Context) ([]core.MountPoint, error) {
		res, err := f.c.run(ctx, "cat /proc/mounts")
		if err != nil {
			return nil, err
		}

		if err := f.c.check("mounts", "/proc/mounts", res); err != nil {
			return nil, err
		}

		return parser.ParseMountTable(string(res.Stdout)), nil
	}), nil
}

func (f *Factory) Mount(mp core.MountPoint, rw bool) (executable.Synchronous[bool], error) {
	if len(mp.MountPoint) == 0 {
		return nil, &core.ExecutionError{Op: "remount", Err: errors.New("mount point is not specified")}
	}

	mode := "ro"
	if rw {
		mode = "rw"
	}

	return f.command("remount", mp.MountPoint, "mount -o remount,"+mode+" "+quote(mp.MountPoint)), nil
}

func (f *Factory) Move(src, dst string) (executable.Synchronous[bool], error) {
	src, dst = f.c.abs(src), f.c.abs(dst)

	if src == dst {
		return newProgram(f.c, "move", func(context.Context) (bool, error) {
			return true, nil
		}), nil
	}

	return f.command("move", src, "mv "+quote(src)+" "+quote(dst)), nil
}

func (f *Factory) ProcessID(name string) (executable.Synchronous[[]int], error) {
	return newProgram(f.c, "pidof", func(ctx context.Context) ([]int, error) {
		res, err := f.c.run(ctx, "pidof "+quote(name))
		if err != nil {
			return nil, err
		}

		pids := parser.ParsePIDs(string(res.Stdout))

		// pidof exits with 1 when nothing is found
		if res.ExitCode != 0 && (res.ExitCode != 1 || len(res.Stderr) > 0) {
			return nil, f.c.check("pidof", name, res)
		}

		return pids, nil
	}), nil
}

func (f *Factory) ResolveLink(p string) (executable.Synchronous[*core.FileSystemObject], error) {
	p = f.c.abs(p)

	return newProgram(f.c, "readlink", func(ctx context.Context) (*core.FileSystemObject, error) {
		res, err := f.c.run(ctx, "readlink -f "+quote(p))
		if err != nil {
			return nil, err
		}

		if err := f.c.check("readlink", p, res); err != nil {
			return nil, err
		}

		target, ok := parser.ParseResolvedPath(string(res.Stdout))
		if !ok {
			return nil, &core.NoSuchFileOrDirectoryError{Path: p}
		}

		return f.fileInfo(ctx, target, false)
	}), nil
}

func (f *Factory) SendSignal(pid int, sig syscall.Signal) (executable.Synchronous[bool], error) {
	if pid <= 0 {
		return nil, &core.ExecutionError{Op: "kill", Err: fmt.Errorf("invalid pid %d", pid)}
	}

	if sig == 0 {
		sig = syscall.SIGTERM
	}

	p := strconv.Itoa(pid)

	return f.command("kill", p, "kill -"+strconv.Itoa(int(sig))+" "+p), nil
}
