package main

import (
	"context"
	"fmt"
	"os"
	"path"
	"slices"
	"strconv"
	"strings"
	"syscall"

	"github.com/0xef53/phoenix-fm/core"
	"github.com/0xef53/phoenix-fm/core/console"
	"github.com/0xef53/phoenix-fm/core/executable"
	"github.com/0xef53/phoenix-fm/core/parser"
	"github.com/0xef53/phoenix-fm/internal/container"

	log "github.com/sirupsen/logrus"
	"github.com/urfave/cli/v3"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sys/unix"
)

func commands() []*cli.Command {
	return []*cli.Command{
		// LISTING
		&cli.Command{
			Name:      "ls",
			Usage:     "list directory contents",
			ArgsUsage: "[DIRECTORY]",
			Flags: []cli.Flag{
				&cli.BoolFlag{Name: "all", Aliases: []string{"a"}, Usage: "do not ignore entries starting with ."},
			},
			Action: withManager(runList),
		},
		&cli.Command{
			Name:      "stat",
			Usage:     "display file status",
			ArgsUsage: "FILE [FILE ...]",
			Flags: []cli.Flag{
				&cli.BoolFlag{Name: "dereference", Aliases: []string{"L"}, Usage: "follow symbolic links"},
			},
			Action: withManager(runStat),
		},
		&cli.Command{
			Name:      "readlink",
			Usage:     "print the resolved symbolic link",
			ArgsUsage: "LINK",
			Action:    withManager(runResolveLink),
		},
		// MODIFICATION
		&cli.Command{
			Name:      "cp",
			Usage:     "copy files and directories",
			ArgsUsage: "SOURCE [SOURCE ...] DEST",
			Action:    withManager(runCopy),
		},
		&cli.Command{
			Name:      "mv",
			Usage:     "move (rename) files",
			ArgsUsage: "SOURCE [SOURCE ...] DEST",
			Action:    withManager(runMove),
		},
		&cli.Command{
			Name:      "rm",
			Usage:     "remove files or directories",
			ArgsUsage: "FILE [FILE ...]",
			Action:    withManager(runDelete),
		},
		&cli.Command{
			Name:      "mkdir",
			Usage:     "make directories",
			ArgsUsage: "DIRECTORY [DIRECTORY ...]",
			Action:    withManager(runCreate(console.OpCreateDirectory)),
		},
		&cli.Command{
			Name:      "touch",
			Usage:     "create files or update their timestamps",
			ArgsUsage: "FILE [FILE ...]",
			Action:    withManager(runCreate(console.OpCreateFile)),
		},
		&cli.Command{
			Name:      "chmod",
			Usage:     "change file mode bits",
			ArgsUsage: "OCTAL-MODE FILE",
			Action:    withManager(runChangePermissions),
		},
		&cli.Command{
			Name:      "chown",
			Usage:     "change file owner and group",
			ArgsUsage: "OWNER[:GROUP] FILE",
			Action:    withManager(runChangeOwner),
		},
		&cli.Command{
			Name:      "ln",
			Usage:     "make a symbolic link",
			ArgsUsage: "TARGET LINK",
			Action:    withManager(runLink),
		},
		// SYSTEM
		&cli.Command{
			Name:      "df",
			Usage:     "report file system disk space usage",
			ArgsUsage: "[PATH]",
			Action:    withManager(runDiskUsage),
		},
		&cli.Command{
			Name:   "mounts",
			Usage:  "print the mount table",
			Action: withManager(runMountPointInfo),
		},
		&cli.Command{
			Name:      "remount",
			Usage:     "remount a file system read-write or read-only",
			ArgsUsage: "MOUNT-POINT",
			Flags: []cli.Flag{
				&cli.BoolFlag{Name: "ro", Usage: "remount read-only instead of read-write"},
			},
			Action: withManager(runMount),
		},
		&cli.Command{
			Name:   "id",
			Usage:  "print the user and group identity of the console",
			Action: withManager(runIdentity),
		},
		&cli.Command{
			Name:      "pidof",
			Usage:     "find the process IDs of a running program",
			ArgsUsage: "NAME",
			Action:    withManager(runProcessID),
		},
		&cli.Command{
			Name:      "kill",
			Usage:     "send a signal to a process",
			ArgsUsage: "PID",
			Flags: []cli.Flag{
				&cli.StringFlag{Name: "signal", Aliases: []string{"s"}, Value: "TERM", Usage: "signal name or number"},
			},
			Action: withManager(runSendSignal),
		},
		// ASYNCHRONOUS
		&cli.Command{
			Name:      "find",
			Usage:     "search for files whose name matches any of the terms",
			ArgsUsage: "DIRECTORY TERM [TERM ...]",
			Action:    withManager(runFind),
		},
		&cli.Command{
			Name:      "checksum",
			Usage:     "print MD5 and SHA-1 checksums of a file",
			ArgsUsage: "FILE",
			Action:    withManager(runChecksum),
		},
		&cli.Command{
			Name:      "du",
			Usage:     "summarize the usage of a directory tree",
			ArgsUsage: "DIRECTORY",
			Action:    withManager(runFolderUsage),
		},
		&cli.Command{
			Name:      "cat",
			Usage:     "print file content",
			ArgsUsage: "FILE",
			Action:    withManager(runRead),
		},
		&cli.Command{
			Name:      "compress",
			Usage:     "pack files into an archive",
			ArgsUsage: "SOURCE [SOURCE ...]",
			Flags: []cli.Flag{
				&cli.StringFlag{Name: "mode", Aliases: []string{"m"}, Value: string(core.CompressionTarGzip), Usage: "tar, tar.gz, tar.bz2, gz or bz2"},
				&cli.StringFlag{Name: "output", Aliases: []string{"o"}, Usage: "archive path"},
			},
			Action: withManager(runCompress),
		},
		&cli.Command{
			Name:      "uncompress",
			Usage:     "unpack an archive",
			ArgsUsage: "ARCHIVE [DEST]",
			Action:    withManager(runUncompress),
		},
		&cli.Command{
			Name:      "exec",
			Usage:     "run a program in the shell console",
			ArgsUsage: "-- COMMAND [ARGUMENT ...]",
			Action:    withManager(runExec),
		},
		// CONSOLES
		&cli.Command{
			Name:   "terminal",
			Usage:  "open an interactive terminal with the console shell",
			Action: withManager(runTerminal),
		},
		&cli.Command{
			Name:      "storage-create",
			Usage:     "create a new secure storage container",
			ArgsUsage: "[CONTAINER]",
			Action:    withManager(runCreateStorage),
		},
	}
}

func runList(ctx context.Context, c *cli.Command, m *manager) error {
	dir := c.Args().First()
	if len(dir) == 0 {
		dir = "."
	}

	objs, err := runSync(ctx, m.route(dir), func(f console.Factory) (executable.Synchronous[[]*core.FileSystemObject], error) {
		return f.List(dir)
	})
	if err != nil {
		return err
	}

	if !c.Bool("all") {
		visible := objs[:0]
		for _, obj := range objs {
			if !obj.IsHidden() {
				visible = append(visible, obj)
			}
		}
		objs = visible
	}

	printObjects(os.Stdout, objs)

	return nil
}

// runStat queries the objects concurrently; objects of different
// consoles are served in parallel.
func runStat(ctx context.Context, c *cli.Command, m *manager) error {
	args, err := withArgs(c, 1)
	if err != nil {
		return err
	}

	follow := c.Bool("dereference")

	objs := make([]*core.FileSystemObject, len(args))

	g, gctx := errgroup.WithContext(ctx)

	for i, p := range args {
		g.Go(func() error {
			obj, err := runSync(gctx, m.route(p), func(f console.Factory) (executable.Synchronous[*core.FileSystemObject], error) {
				return f.FileInfo(p, follow)
			})
			if err != nil {
				return err
			}

			objs[i] = obj

			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return err
	}

	for i, obj := range objs {
		if i > 0 {
			fmt.Println()
		}
		printObject(os.Stdout, obj)
	}

	return nil
}

func runResolveLink(ctx context.Context, c *cli.Command, m *manager) error {
	args, err := withArgs(c, 1)
	if err != nil {
		return err
	}

	obj, err := runSync(ctx, m.route(args[0]), func(f console.Factory) (executable.Synchronous[*core.FileSystemObject], error) {
		return f.ResolveLink(args[0])
	})
	if err != nil {
		return err
	}

	fmt.Println(obj.FullPath())

	return nil
}

func pairs(args []string) ([]console.Pair, error) {
	if len(args) < 2 {
		return nil, fmt.Errorf("%w: a source and a destination are required", errUsage)
	}

	dst := args[len(args)-1]

	var pp []console.Pair

	for _, src := range args[:len(args)-1] {
		pp = append(pp, console.Pair{Src: src, Dst: dst})
	}

	return pp, nil
}

func runCopy(ctx context.Context, c *cli.Command, m *manager) error {
	pp, err := pairs(c.Args().Slice())
	if err != nil {
		return err
	}

	s, err := m.routeAll(c.Args().Slice()...)
	if err != nil {
		return err
	}

	return console.CopyAll(ctx, s.Factory(), pp)
}

func runMove(ctx context.Context, c *cli.Command, m *manager) error {
	pp, err := pairs(c.Args().Slice())
	if err != nil {
		return err
	}

	s, err := m.routeAll(c.Args().Slice()...)
	if err != nil {
		return err
	}

	return console.MoveAll(ctx, s.Factory(), pp)
}

func runDelete(ctx context.Context, c *cli.Command, m *manager) error {
	args, err := withArgs(c, 1)
	if err != nil {
		return err
	}

	s, err := m.routeAll(args...)
	if err != nil {
		return err
	}

	var objs []*core.FileSystemObject

	for _, p := range args {
		obj, err := runSync(ctx, s, func(f console.Factory) (executable.Synchronous[*core.FileSystemObject], error) {
			return f.FileInfo(p, false)
		})
		if err != nil {
			return err
		}

		objs = append(objs, obj)
	}

	return console.DeleteAll(ctx, s.Factory(), objs)
}

func runCreate(op console.Op) action {
	return func(ctx context.Context, c *cli.Command, m *manager) error {
		args, err := withArgs(c, 1)
		if err != nil {
			return err
		}

		for _, p := range args {
			if _, err := m.route(p).Execute(ctx, console.Request{Op: op, Path: p}); err != nil {
				return err
			}
		}

		return nil
	}
}

func runChangePermissions(ctx context.Context, c *cli.Command, m *manager) error {
	args, err := withArgs(c, 2)
	if err != nil {
		return err
	}

	perm, err := core.ParseOctalPermissions(args[0])
	if err != nil {
		return fmt.Errorf("%w: %w", errUsage, err)
	}

	_, err = m.route(args[1]).Execute(ctx, console.Request{
		Op:          console.OpChangePermissions,
		Path:        args[1],
		Permissions: perm,
	})

	return err
}

func parseOwner(s string) (*core.User, *core.Group) {
	ident := func(v string) core.SecurityIdentifier {
		if id, err := strconv.Atoi(v); err == nil {
			return core.SecurityIdentifier{ID: id}
		}
		return core.SecurityIdentifier{ID: -1, Name: v}
	}

	var (
		user  *core.User
		group *core.Group
	)

	u, g, _ := strings.Cut(s, ":")

	if len(u) > 0 {
		user = &core.User{SecurityIdentifier: ident(u)}
	}
	if len(g) > 0 {
		group = &core.Group{SecurityIdentifier: ident(g)}
	}

	return user, group
}

func runChangeOwner(ctx context.Context, c *cli.Command, m *manager) error {
	args, err := withArgs(c, 2)
	if err != nil {
		return err
	}

	user, group := parseOwner(args[0])

	_, err = m.route(args[1]).Execute(ctx, console.Request{
		Op:    console.OpChangeOwner,
		Path:  args[1],
		User:  user,
		Group: group,
	})

	return err
}

func runLink(ctx context.Context, c *cli.Command, m *manager) error {
	args, err := withArgs(c, 2)
	if err != nil {
		return err
	}

	_, err = m.route(args[1]).Execute(ctx, console.Request{
		Op:     console.OpLink,
		Path:   args[0],
		Target: args[1],
	})

	return err
}

func runDiskUsage(ctx context.Context, c *cli.Command, m *manager) error {
	p := c.Args().First()

	items, err := runSync(ctx, m.route(p), func(f console.Factory) (executable.Synchronous[[]core.DiskUsage], error) {
		return f.DiskUsage(p)
	})
	if err != nil {
		return err
	}

	printDiskUsage(os.Stdout, items)

	return nil
}

func mountTable(ctx context.Context, m *manager) ([]core.MountPoint, error) {
	mpoints, err := runSync(ctx, m.shell, func(f console.Factory) (executable.Synchronous[[]core.MountPoint], error) {
		return f.MountPointInfo()
	})
	if err != nil {
		return nil, err
	}

	if m.secure != nil {
		smp, err := runSync(ctx, m.secure, func(f console.Factory) (executable.Synchronous[[]core.MountPoint], error) {
			return f.MountPointInfo()
		})
		if err != nil {
			log.Warnf("Secure storage is not available: %s", err)
		} else {
			mpoints = append(mpoints, smp...)
		}
	}

	return mpoints, nil
}

func runMountPointInfo(ctx context.Context, c *cli.Command, m *manager) error {
	mpoints, err := mountTable(ctx, m)
	if err != nil {
		return err
	}

	for _, mp := range mpoints {
		fmt.Println(mp.String())
	}

	return nil
}

func runMount(ctx context.Context, c *cli.Command, m *manager) error {
	args, err := withArgs(c, 1)
	if err != nil {
		return err
	}

	mpoints, err := mountTable(ctx, m)
	if err != nil {
		return err
	}

	mp, ok := parser.FindMountPoint(mpoints, path.Clean(args[0]))
	if !ok || mp.MountPoint != path.Clean(args[0]) {
		return &core.NoSuchFileOrDirectoryError{Path: args[0]}
	}

	_, err = m.route(mp.MountPoint).Execute(ctx, console.Request{
		Op:         console.OpMount,
		MountPoint: mp,
		ReadWrite:  !c.Bool("ro"),
	})

	return err
}

func runIdentity(ctx context.Context, c *cli.Command, m *manager) error {
	ident, err := runSync(ctx, m.shell, func(f console.Factory) (executable.Synchronous[*core.Identity], error) {
		return f.Identity()
	})
	if err != nil {
		return err
	}

	groups := make([]string, 0, len(ident.Groups))
	for _, g := range ident.Groups {
		groups = append(groups, fmt.Sprintf("%d(%s)", g.ID, g.Name))
	}

	fmt.Printf("uid=%d(%s) gid=%d(%s) groups=%s\n",
		ident.User.ID, ident.User.Name,
		ident.Group.ID, ident.Group.Name,
		strings.Join(groups, ","),
	)

	return nil
}

func runProcessID(ctx context.Context, c *cli.Command, m *manager) error {
	args, err := withArgs(c, 1)
	if err != nil {
		return err
	}

	pids, err := runSync(ctx, m.shell, func(f console.Factory) (executable.Synchronous[[]int], error) {
		return f.ProcessID(args[0])
	})
	if err != nil {
		return err
	}

	if len(pids) == 0 {
		return &commandExitError{code: 1}
	}

	ss := make([]string, 0, len(pids))
	for _, pid := range pids {
		ss = append(ss, strconv.Itoa(pid))
	}

	fmt.Println(strings.Join(ss, " "))

	return nil
}

func parseSignal(s string) (syscall.Signal, error) {
	if n, err := strconv.Atoi(s); err == nil {
		return syscall.Signal(n), nil
	}

	name := strings.ToUpper(s)
	if !strings.HasPrefix(name, "SIG") {
		name = "SIG" + name
	}

	if sig := unix.SignalNum(name); sig != 0 {
		return sig, nil
	}

	return 0, fmt.Errorf("%w: unknown signal %s", errUsage, s)
}

func runSendSignal(ctx context.Context, c *cli.Command, m *manager) error {
	args, err := withArgs(c, 1)
	if err != nil {
		return err
	}

	pid, err := strconv.Atoi(args[0])
	if err != nil {
		return fmt.Errorf("%w: invalid PID %s", errUsage, args[0])
	}

	sig, err := parseSignal(c.String("signal"))
	if err != nil {
		return err
	}

	_, err = m.shell.Execute(ctx, console.Request{
		Op:     console.OpSendSignal,
		PID:    pid,
		Signal: sig,
	})

	return err
}

func runFind(ctx context.Context, c *cli.Command, m *manager) error {
	args, err := withArgs(c, 2)
	if err != nil {
		return err
	}

	return runAsync(ctx, m.route(args[0]), console.Request{
		Op:    console.OpFind,
		Path:  args[0],
		Query: core.NewQuery(args[1:]...),
	}, printPartial)
}

func runChecksum(ctx context.Context, c *cli.Command, m *manager) error {
	args, err := withArgs(c, 1)
	if err != nil {
		return err
	}

	return runAsync(ctx, m.route(args[0]), console.Request{
		Op:   console.OpChecksum,
		Path: args[0],
	}, printPartial)
}

func runFolderUsage(ctx context.Context, c *cli.Command, m *manager) error {
	args, err := withArgs(c, 1)
	if err != nil {
		return err
	}

	var last core.FolderUsage

	err = runAsync(ctx, m.route(args[0]), console.Request{
		Op:   console.OpFolderUsage,
		Path: args[0],
	}, func(v any) {
		if u, ok := v.(core.FolderUsage); ok {
			last = u
			log.WithField("directory", u.Directory).Debugf("%d files, %d folders so far", u.Files, u.Folders)
		}
	})
	if err != nil {
		return err
	}

	printFolderUsage(os.Stdout, last)

	return nil
}

func runRead(ctx context.Context, c *cli.Command, m *manager) error {
	args, err := withArgs(c, 1)
	if err != nil {
		return err
	}

	return runAsync(ctx, m.route(args[0]), console.Request{
		Op:   console.OpRead,
		Path: args[0],
	}, printPartial)
}

func runCompress(ctx context.Context, c *cli.Command, m *manager) error {
	args, err := withArgs(c, 1)
	if err != nil {
		return err
	}

	dst := c.String("output")

	paths := args
	if len(dst) > 0 {
		paths = append(slices.Clone(args), dst)
	}

	s, err := m.routeAll(paths...)
	if err != nil {
		return err
	}

	return runAsync(ctx, s, console.Request{
		Op:     console.OpCompress,
		Mode:   core.CompressionMode(c.String("mode")),
		Target: dst,
		Paths:  args,
	}, printPartial)
}

func runUncompress(ctx context.Context, c *cli.Command, m *manager) error {
	args, err := withArgs(c, 1)
	if err != nil {
		return err
	}

	s, err := m.routeAll(args...)
	if err != nil {
		return err
	}

	r := console.Request{
		Op:   console.OpUncompress,
		Path: args[0],
	}

	if len(args) > 1 {
		r.Target = args[1]
	}

	return runAsync(ctx, s, r, printPartial)
}

func runExec(ctx context.Context, c *cli.Command, m *manager) error {
	args, err := withArgs(c, 1)
	if err != nil {
		return err
	}

	return runAsync(ctx, m.shell, console.Request{
		Op:   console.OpExec,
		Name: shellJoin(args),
	}, printPartial)
}

// shellJoin quotes the arguments so that they are split back unchanged.
func shellJoin(args []string) string {
	quoted := make([]string, 0, len(args))

	for _, a := range args {
		quoted = append(quoted, "'"+strings.ReplaceAll(a, "'", `'"'"'`)+"'")
	}

	return strings.Join(quoted, " ")
}

func runTerminal(ctx context.Context, c *cli.Command, m *manager) error {
	return m.shellConsole.OpenTerminal(ctx, os.Stdin, os.Stdout)
}

func runCreateStorage(ctx context.Context, c *cli.Command, m *manager) error {
	fname := c.Args().First()
	if len(fname) == 0 {
		fname = m.cfg.Secure.Container
	}
	if len(fname) == 0 {
		return fmt.Errorf("%w: the container path is not specified", errUsage)
	}

	password, err := readPassword("New password: ")
	if err != nil {
		return err
	}

	confirm, err := readPassword("Repeat password: ")
	if err != nil {
		return err
	}

	if password != confirm {
		return fmt.Errorf("passwords do not match")
	}

	store, err := container.Create(fname, password, m.cfg.containerOptions())
	if err != nil {
		return err
	}

	log.WithField("container", fname).Info("Secure storage created")

	return store.Close()
}
