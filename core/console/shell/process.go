package shell

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"syscall"

	"github.com/0xef53/phoenix-fm/core"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

var errProcessExited = errors.New("shell process exited")

// process is a running interpreter whose standard streams are
// demultiplexed into stdout chunks and stderr lines.
type process struct {
	cmd   *exec.Cmd
	stdin io.WriteCloser

	stdout chan []byte
	stderr chan string

	exited  chan struct{}
	waitErr error

	closeOnce sync.Once
}

func startProcess(argv []string, dir string, env []string, bufSize int) (*process, error) {
	cmd := exec.Command(argv[0], argv[1:]...)

	cmd.Dir = dir
	cmd.Env = env

	cmd.SysProcAttr = &syscall.SysProcAttr{
		Setsid: true,
	}

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to create stdin pipe: %w", err)
	}

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to create stdout pipe: %w", err)
	}

	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to create stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start %s: %w", argv[0], err)
	}

	p := process{
		cmd:    cmd,
		stdin:  stdin,
		stdout: make(chan []byte, 16),
		stderr: make(chan string, 64),
		exited: make(chan struct{}),
	}

	var wg sync.WaitGroup

	wg.Add(2)

	go func() {
		defer wg.Done()
		defer close(p.stdout)

		buf := make([]byte, bufSize)

		for {
			n, err := stdout.Read(buf)
			if n > 0 {
				p.stdout <- bytes.Clone(buf[:n])
			}
			if err != nil {
				return
			}
		}
	}()

	go func() {
		defer wg.Done()
		defer close(p.stderr)

		r := bufio.NewReaderSize(stderr, bufSize)

		for {
			line, err := r.ReadString('\n')
			if len(line) > 0 {
				p.stderr <- strings.TrimSuffix(line, "\n")
			}
			if err != nil {
				return
			}
		}
	}()

	go func() {
		// Wait must follow the completion of all reads from the pipes
		wg.Wait()

		p.waitErr = cmd.Wait()

		close(p.exited)
	}()

	return &p, nil
}

func (p *process) pid() int {
	return p.cmd.Process.Pid
}

func (p *process) alive() bool {
	select {
	case <-p.exited:
		return false
	default:
	}

	return true
}

// kill terminates the interpreter. Pending reads end with EOF.
func (p *process) kill() {
	p.closeOnce.Do(func() {
		p.stdin.Close()

		if err := p.cmd.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
			log.WithField("pid", p.pid()).Debugf("Failed to kill the shell process: %s", err)
		}
	})
}

// result is the outcome of one invocation.
type result struct {
	ExitCode int
	Stdout   []byte
	Stderr   []string
}

func (r *result) stderrText() string {
	return strings.Join(r.Stderr, "\n")
}

// invocation describes one command written to the interpreter.
type invocation struct {
	command    string
	background bool

	// onStdout receives the command output in order. When it is nil
	// the output is collected into result.Stdout.
	onStdout func([]byte)

	// onPID receives the process ID of a background command.
	onPID func(int)
}

func newSentinel() string {
	return "@@PFM-" + uuid.New().String() + "@@"
}

func (inv *invocation) script(tok string) string {
	var b strings.Builder

	if inv.background {
		fmt.Fprintf(&b, "{ %s\n} </dev/null &\n", inv.command)
		fmt.Fprintf(&b, "echo \"%s:pid $!\" >&2\n", tok)
		b.WriteString("wait $!\n")
	} else {
		fmt.Fprintf(&b, "{ %s\n} </dev/null\n", inv.command)
	}

	fmt.Fprintf(&b, "echo \"%s $?\"\n", tok)
	fmt.Fprintf(&b, "echo \"%s\" >&2\n", tok)

	return b.String()
}

// invoke writes the invocation to the interpreter and consumes its output
// until both sentinels are seen. The caller must serialize invocations.
// A broken interpreter results in a *core.RelaunchableError.
func (p *process) invoke(ctx context.Context, inv *invocation) (*result, error) {
	tok := newSentinel()

	if _, err := io.WriteString(p.stdin, inv.script(tok)); err != nil {
		p.kill()
		return nil, &core.RelaunchableError{Err: fmt.Errorf("write to shell: %w", err)}
	}

	var (
		res     result
		collect bytes.Buffer

		out = stdoutScanner{tok: []byte(tok)}

		stdoutDone bool
		stderrDone bool
	)

	emit := func(data []byte) {
		if len(data) == 0 {
			return
		}
		if inv.onStdout != nil {
			inv.onStdout(data)
		} else {
			collect.Write(data)
		}
	}

	for !stdoutDone || !stderrDone {
		select {
		case chunk, ok := <-p.stdout:
			if !ok {
				return nil, &core.RelaunchableError{Err: errProcessExited}
			}

			if stdoutDone {
				log.Debugf("Unexpected shell output after the end of command: %q", chunk)
				continue
			}

			data, code, done, err := out.feed(chunk)

			emit(data)

			if err != nil {
				p.kill()
				return nil, &core.RelaunchableError{Err: err}
			}
			if done {
				res.ExitCode = code
				stdoutDone = true
			}
		case line, ok := <-p.stderr:
			if !ok {
				return nil, &core.RelaunchableError{Err: errProcessExited}
			}

			idx := strings.Index(line, tok)
			if idx < 0 {
				res.Stderr = append(res.Stderr, line)
				continue
			}

			if idx > 0 {
				res.Stderr = append(res.Stderr, line[:idx])
			}

			rest := line[idx+len(tok):]

			if s, ok := strings.CutPrefix(rest, ":pid "); ok {
				if pid, err := strconv.Atoi(strings.TrimSpace(s)); err == nil && inv.onPID != nil {
					inv.onPID(pid)
				}
				continue
			}

			stderrDone = true
		case <-ctx.Done():
			// The stream can no longer be resynchronized
			p.kill()
			return nil, ctx.Err()
		}
	}

	if inv.onStdout == nil {
		res.Stdout = collect.Bytes()
	}

	return &res, nil
}

// stdoutScanner finds the exit code sentinel in the output stream.
// The sentinel may follow the data on the same line and may be split
// between chunks, so a tail shorter than the sentinel is held back.
type stdoutScanner struct {
	tok     []byte
	pending []byte
}

func (s *stdoutScanner) feed(chunk []byte) (data []byte, code int, done bool, err error) {
	s.pending = append(s.pending, chunk...)

	idx := bytes.Index(s.pending, s.tok)

	if idx < 0 {
		keep := len(s.tok) - 1
		if len(s.pending) <= keep {
			return nil, 0, false, nil
		}

		n := len(s.pending) - keep

		data = bytes.Clone(s.pending[:n])
		s.pending = append(s.pending[:0], s.pending[n:]...)

		return data, 0, false, nil
	}

	data = bytes.Clone(s.pending[:idx])

	rest := s.pending[idx+len(s.tok):]

	nl := bytes.IndexByte(rest, '\n')
	if nl < 0 {
		// Wait for the rest of the sentinel line
		s.pending = append(s.pending[:0], s.pending[idx:]...)
		return data, 0, false, nil
	}

	code, err = strconv.Atoi(strings.TrimSpace(string(rest[:nl])))
	if err != nil {
		return data, 0, false, fmt.Errorf("malformed exit code line: %q", rest[:nl])
	}

	s.pending = nil

	return data, code, true, nil
}
