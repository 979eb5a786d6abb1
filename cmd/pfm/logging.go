package main

import (
	"context"
	"strings"

	"github.com/coreos/go-systemd/v22/journal"
	log "github.com/sirupsen/logrus"
	"github.com/urfave/cli/v3"
)

// journalHook duplicates log entries to the systemd journal.
type journalHook struct{}

func (h *journalHook) Levels() []log.Level {
	return log.AllLevels
}

func (h *journalHook) Fire(e *log.Entry) error {
	vars := make(map[string]string, len(e.Data))

	for k, v := range e.Data {
		if s, ok := v.(string); ok {
			vars["PFM_"+strings.ToUpper(k)] = s
		}
	}

	return journal.Send(e.Message, journalPriority(e.Level), vars)
}

func journalPriority(l log.Level) journal.Priority {
	switch l {
	case log.PanicLevel:
		return journal.PriEmerg
	case log.FatalLevel:
		return journal.PriCrit
	case log.ErrorLevel:
		return journal.PriErr
	case log.WarnLevel:
		return journal.PriWarning
	case log.InfoLevel:
		return journal.PriInfo
	}

	return journal.PriDebug
}

func setupLogging(ctx context.Context, c *cli.Command) (context.Context, error) {
	if c.Bool("verbose") {
		log.SetLevel(log.DebugLevel)
	}

	if journal.Enabled() {
		log.AddHook(new(journalHook))
	}

	return ctx, nil
}
