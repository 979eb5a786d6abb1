package shell

import (
	"fmt"
	"strings"

	"github.com/0xef53/phoenix-fm/core"

	"github.com/anmitsu/go-shlex"
)

// quote makes s a single shell word.
func quote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}

func quoteAll(ss []string) string {
	q := make([]string, 0, len(ss))

	for _, s := range ss {
		q = append(q, quote(s))
	}

	return strings.Join(q, " ")
}

// normalizeCommandLine splits a user supplied command line into words
// and joins them back quoted. It rejects unbalanced quotes, so that the
// command cannot swallow the sentinel lines that follow it.
func normalizeCommandLine(cmdline string) (string, error) {
	words, err := shlex.Split(cmdline, true)
	if err != nil {
		return "", &core.ExecutionError{Op: "exec", Err: fmt.Errorf("invalid command line: %w", err)}
	}

	if len(words) == 0 {
		return "", &core.ExecutionError{Op: "exec", Err: fmt.Errorf("empty command line")}
	}

	return quoteAll(words), nil
}
