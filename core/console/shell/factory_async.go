package shell

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"

	"github.com/0xef53/phoenix-fm/core"
	"github.com/0xef53/phoenix-fm/core/executable"
	"github.com/0xef53/phoenix-fm/core/parser"

	log "github.com/sirupsen/logrus"
)

// stream describes a command that runs as a background job
// and reports its output as partial results.
type stream struct {
	op      string
	path    string
	command string

	// Exactly one of onLine and onData is set
	onLine func(job *executable.Job, line string)
	onData func(job *executable.Job, data []byte)

	// onSuccess runs after a zero exit code, or any exit code
	// of a tolerant stream
	onSuccess func(job *executable.Job)

	// tolerant streams report partial output of a failed command
	// without an exception, e.g. find over unreadable directories.
	tolerant bool

	// dir is a directory that must exist before the command starts.
	// Errors below it are covered by tolerant.
	dir string
}

// directoryCheck fails unless p is an existing directory. The messages
// match what commandError maps to typed errors.
func directoryCheck(p string) string {
	return fmt.Sprintf(
		"if [ -d %[1]s ]; then :; elif [ -e %[1]s ]; then echo %[2]s >&2; false; else echo %[3]s >&2; false; fi",
		quote(p), quote(p+": not a directory"), quote(p+": No such file or directory"),
	)
}

func (f *Factory) async(s *stream, l executable.AsyncResultListener) executable.Asynchronous {
	work := func(ctx context.Context, job *executable.Job) (int, error) {
		if len(s.dir) > 0 {
			res, err := f.c.run(ctx, directoryCheck(s.dir))
			if err != nil {
				return -1, err
			}
			if err := f.c.check(s.op, s.dir, res); err != nil {
				return res.ExitCode, err
			}
		}

		var lines parser.Lines

		res, err := f.c.stream(ctx, s.command, job, func(b []byte) {
			if s.onData != nil {
				s.onData(job, b)
				return
			}
			for _, line := range lines.Write(b) {
				s.onLine(job, line)
			}
		})
		if err != nil {
			return -1, err
		}

		if line, ok := lines.Flush(); ok && s.onLine != nil {
			s.onLine(job, line)
		}

		switch {
		case res.ExitCode == 0:
			if s.onSuccess != nil {
				s.onSuccess(job)
			}
		case job.Cancelled():
		case s.tolerant:
			log.WithFields(log.Fields{"command": s.op, "exit_code": res.ExitCode}).Debugf("Command finished with errors: %s", res.stderrText())

			if s.onSuccess != nil {
				s.onSuccess(job)
			}
		default:
			return res.ExitCode, commandError(s.op, s.path, res.ExitCode, res.stderrText())
		}

		return res.ExitCode, nil
	}

	return executable.NewAsyncProgram(s.op, l, work).
		WithOptions(f.c.config.options()).
		WithPrepare(func(context.Context) error {
			_, err := f.c.current()
			return err
		})
}

func (f *Factory) Checksum(p string, l executable.AsyncResultListener) (executable.Asynchronous, error) {
	p = f.c.abs(p)

	s := stream{
		op:      "checksum",
		path:    p,
		command: fmt.Sprintf("md5sum %[1]s && sha1sum %[1]s", quote(p)),
		onLine: func(job *executable.Job, line string) {
			if sum, err := parser.ParseChecksumLine(line); err == nil {
				job.Partial(sum)
			}
		},
	}

	return f.async(&s, l), nil
}

func (f *Factory) Compress(mode core.CompressionMode, dst string, srcs []string, l executable.AsyncResultListener) (executable.Asynchronous, error) {
	if len(srcs) == 0 {
		return nil, &core.ExecutionError{Op: "compress", Err: errors.New("no sources")}
	}

	abs := make([]string, 0, len(srcs))
	for _, src := range srcs {
		abs = append(abs, f.c.abs(src))
	}
	srcs = abs

	if len(mode) == 0 {
		if m, ok := core.CompressionModeByName(dst); ok {
			mode = m
		} else {
			mode = core.CompressionTarGzip
		}
	}

	s := stream{
		op:     "compress",
		path:   srcs[0],
		onLine: emitLine,
	}

	if mode.IsArchive() {
		parent := commonParent(srcs)

		if len(dst) == 0 {
			dst = path.Join(path.Dir(srcs[0]), path.Base(srcs[0])+mode.Extension())
		}
		dst = f.c.abs(dst)

		flags := "-cvf"
		switch mode {
		case core.CompressionTarGzip:
			flags = "-czvf"
		case core.CompressionTarBzip2:
			flags = "-cjvf"
		}

		if len(parent) > 0 {
			names := make([]string, 0, len(srcs))
			for _, src := range srcs {
				names = append(names, path.Base(src))
			}
			s.command = "tar " + flags + " " + quote(dst) + " -C " + quote(parent) + " " + quoteAll(names)
		} else {
			s.command = "tar " + flags + " " + quote(dst) + " " + quoteAll(srcs)
		}
	} else {
		if len(srcs) != 1 {
			return nil, &core.ExecutionError{Op: "compress", Err: fmt.Errorf("%s compresses a single file", mode)}
		}

		if len(dst) == 0 {
			dst = srcs[0] + mode.Extension()
		}
		dst = f.c.abs(dst)

		tool := "gzip"
		if mode == core.CompressionBzip2 {
			tool = "bzip2"
		}

		s.command = tool + " -c " + quote(srcs[0]) + " > " + quote(dst)
		s.onSuccess = func(job *executable.Job) {
			job.Partial(dst)
		}
	}

	return f.async(&s, l), nil
}

// commonParent returns the directory shared by all paths, or "".
func commonParent(paths []string) string {
	parent := path.Dir(paths[0])

	for _, p := range paths[1:] {
		if path.Dir(p) != parent {
			return ""
		}
	}

	return parent
}

func emitLine(job *executable.Job, line string) {
	if len(strings.TrimSpace(line)) > 0 {
		job.Partial(line)
	}
}

func (f *Factory) Exec(cmdline string, l executable.AsyncResultListener) (executable.Asynchronous, error) {
	command, err := normalizeCommandLine(cmdline)
	if err != nil {
		return nil, err
	}

	s := stream{
		op:      "exec",
		command: command,
		onData: func(job *executable.Job, data []byte) {
			job.Partial(string(data))
		},
		// The exit code is the result
		tolerant: true,
	}

	return f.async(&s, l), nil
}

func (f *Factory) Find(dir string, q core.Query, l executable.AsyncResultListener) (executable.Asynchronous, error) {
	dir = f.c.abs(dir)

	patterns := q.Patterns()
	if len(patterns) == 0 {
		return nil, &core.ExecutionError{Op: "find", Path: dir, Err: errors.New("empty query")}
	}

	expr := make([]string, 0, len(patterns))
	for _, p := range patterns {
		expr = append(expr, "-iname "+quote(p))
	}

	s := stream{
		op:      "find",
		path:    dir,
		command: "LC_ALL=C find " + quote(dir) + " -mindepth 1 \\( " + strings.Join(expr, " -o ") + " \\) -exec ls -ld {} +",
		onLine: func(job *executable.Job, line string) {
			if parser.IsListingNoise(line) {
				return
			}
			if obj, err := parser.ParseFindLine(line); err == nil {
				job.Partial(obj)
			}
		},
		tolerant: true,
		dir:      dir,
	}

	return f.async(&s, l), nil
}

func (f *Factory) FolderUsage(dir string, l executable.AsyncResultListener) (executable.Asynchronous, error) {
	dir = f.c.abs(dir)

	arg := dir
	if dir != "/" {
		arg += "/"
	}

	usage := core.FolderUsage{Directory: dir}
	current := dir
	headers := 0

	s := stream{
		op:      "du",
		path:    dir,
		command: "LC_ALL=C ls -laR " + quote(arg),
		onLine: func(job *executable.Job, line string) {
			if header, ok := parser.ParseRecursiveHeader(line); ok {
				current = header
				// Every header after the first closes a directory
				if headers++; headers > 1 {
					job.Partial(usage)
				}
				return
			}

			if parser.IsListingNoise(line) {
				return
			}

			obj, err := parser.ParseListLine(line, current)
			if err != nil || obj.Name == "." || obj.Type == core.TypeParentDirectory {
				return
			}

			if obj.Type == core.TypeDirectory {
				usage.Folders++
			} else {
				usage.Files++
				usage.Size += obj.Size
			}
		},
		onSuccess: func(job *executable.Job) {
			job.Partial(usage)
		},
		tolerant: true,
		dir:      dir,
	}

	return f.async(&s, l), nil
}

func (f *Factory) Read(p string, l executable.AsyncResultListener) (executable.Asynchronous, error) {
	p = f.c.abs(p)

	s := stream{
		op:      "read",
		path:    p,
		command: "cat " + quote(p),
		onData: func(job *executable.Job, data []byte) {
			job.Partial(data)
		},
	}

	return f.async(&s, l), nil
}

func (f *Factory) Uncompress(src, dst string, l executable.AsyncResultListener) (executable.Asynchronous, error) {
	src = f.c.abs(src)

	mode, ok := core.CompressionModeByName(path.Base(src))
	if !ok {
		return nil, &core.ExecutionError{Op: "uncompress", Path: src, Err: errors.New("unknown compression format")}
	}

	if len(dst) == 0 {
		dst = strings.TrimSuffix(src, mode.Extension())
		if mode == core.CompressionTarGzip && strings.HasSuffix(src, ".tgz") {
			dst = strings.TrimSuffix(src, ".tgz")
		}
		if mode == core.CompressionTarBzip2 && strings.HasSuffix(src, ".tbz2") {
			dst = strings.TrimSuffix(src, ".tbz2")
		}
	}
	dst = f.c.abs(dst)

	s := stream{
		op:     "uncompress",
		path:   src,
		onLine: emitLine,
	}

	switch mode {
	case core.CompressionGzip:
		s.command = "gzip -dc " + quote(src) + " > " + quote(dst)
	case core.CompressionBzip2:
		s.command = "bzip2 -dc " + quote(src) + " > " + quote(dst)
	default:
		flags := "-xvf"
		switch mode {
		case core.CompressionTarGzip:
			flags = "-xzvf"
		case core.CompressionTarBzip2:
			flags = "-xjvf"
		}
		s.command = "mkdir -p " + quote(dst) + " && tar " + flags + " " + quote(src) + " -C " + quote(dst)
	}

	if !mode.IsArchive() {
		s.onSuccess = func(job *executable.Job) {
			job.Partial(dst)
		}
	}

	return f.async(&s, l), nil
}
