package shell

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"

	"golang.org/x/sys/unix"
)

// terminate sends SIGTERM to a background job and to all its descendants,
// deepest first. A job started by a privileged shell belongs to the
// superuser, so a refused signal is retried through the su command.
func (c *Console) terminate(pid int) error {
	pids := append(descendants(pid), pid)

	var refused []int

	for _, p := range pids {
		err := unix.Kill(p, unix.SIGTERM)

		switch {
		case err == nil, errors.Is(err, unix.ESRCH):
		case errors.Is(err, unix.EPERM):
			refused = append(refused, p)
		default:
			return fmt.Errorf("kill %d: %w", p, err)
		}
	}

	if len(refused) == 0 {
		return nil
	}

	if !c.IsPrivileged() {
		return fmt.Errorf("kill %v: %w", refused, unix.EPERM)
	}

	return c.privilegedKill(unix.SIGTERM, refused...)
}

// privilegedKill runs a one-shot kill through the su command. The console
// process itself cannot be used while it waits for the job.
func (c *Console) privilegedKill(sig syscall.Signal, pids ...int) error {
	args := make([]string, 0, len(pids)+1)

	args = append(args, "-"+strconv.Itoa(int(sig)))

	for _, p := range pids {
		args = append(args, strconv.Itoa(p))
	}

	argv := append(append([]string{}, c.config.SuCommand...), "-c", "kill "+strings.Join(args, " "))

	out, err := exec.Command(argv[0], argv[1:]...).CombinedOutput()
	if err != nil {
		return fmt.Errorf("%s: %w (%s)", strings.Join(argv, " "), err, bytes.TrimSpace(out))
	}

	return nil
}

// descendants returns the descendant PIDs of pid, deepest first.
func descendants(pid int) []int {
	children := make(map[int][]int)

	entries, err := os.ReadDir("/proc")
	if err != nil {
		return nil
	}

	for _, e := range entries {
		p, err := strconv.Atoi(e.Name())
		if err != nil {
			continue
		}

		if ppid, ok := parentPID(filepath.Join("/proc", e.Name(), "stat")); ok {
			children[ppid] = append(children[ppid], p)
		}
	}

	var walk func(int) []int

	walk = func(p int) []int {
		var res []int

		for _, ch := range children[p] {
			res = append(res, walk(ch)...)
			res = append(res, ch)
		}

		return res
	}

	return walk(pid)
}

func parentPID(statFile string) (int, bool) {
	b, err := os.ReadFile(statFile)
	if err != nil {
		return 0, false
	}

	// The command name is in parentheses and may contain spaces
	idx := bytes.LastIndexByte(b, ')')
	if idx < 0 {
		return 0, false
	}

	fields := strings.Fields(string(b[idx+1:]))
	if len(fields) < 2 {
		return 0, false
	}

	ppid, err := strconv.Atoi(fields[1])
	if err != nil {
		return 0, false
	}

	return ppid, true
}
