package parser

import (
	"bytes"
	"strconv"
	"strings"
)

// ParsePIDs parses a whitespace-separated list of process ids (pidof, pgrep).
// Non-numeric tokens are skipped.
func ParsePIDs(output string) []int {
	pids := make([]int, 0, 1)

	for _, f := range strings.Fields(output) {
		if v, err := strconv.Atoi(f); err == nil && v > 0 {
			pids = append(pids, v)
		}
	}

	return pids
}

// ParseResolvedPath returns the first non-empty line of readlink/pwd output.
func ParseResolvedPath(output string) (string, bool) {
	for _, line := range strings.Split(output, "\n") {
		if line = strings.TrimRight(line, "\r"); len(strings.TrimSpace(line)) > 0 {
			return line, true
		}
	}

	return "", false
}

// Lines splits a stream of output chunks into complete lines.
// The zero value is ready to use.
type Lines struct {
	pending []byte
}

// Write appends a chunk and returns the lines it completed.
func (l *Lines) Write(chunk []byte) []string {
	l.pending = append(l.pending, chunk...)

	lines := make([]string, 0, 4)

	for {
		idx := bytes.IndexByte(l.pending, '\n')
		if idx < 0 {
			break
		}

		lines = append(lines, strings.TrimRight(string(l.pending[:idx]), "\r"))

		l.pending = l.pending[idx+1:]
	}

	return lines
}

// Flush returns the trailing incomplete line, if any.
func (l *Lines) Flush() (string, bool) {
	if len(l.pending) == 0 {
		return "", false
	}

	s := strings.TrimRight(string(l.pending), "\r")

	l.pending = nil

	return s, true
}
