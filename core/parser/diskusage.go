package parser

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/0xef53/phoenix-fm/core"
)

// ParseDiskUsage parses the output of df. Two layouts are recognized:
//
//	Filesystem               Size     Used     Free   Blksize
//	/dev                   413.1M    64.0K   413.1M   4096
//
//	Filesystem     1024-blocks    Used Available Capacity Mounted on
//	/dev/vda1         10255636 4839564   4875400      50% /
//
// Lines ending in "Permission denied" and malformed lines are dropped.
func ParseDiskUsage(output string) []core.DiskUsage {
	usages := make([]core.DiskUsage, 0, 10)

	posix := false

	for _, line := range strings.Split(output, "\n") {
		line = strings.TrimSpace(line)

		if len(line) == 0 || strings.HasSuffix(line, "Permission denied") {
			continue
		}

		fields := strings.Fields(line)

		if fields[0] == "Filesystem" {
			posix = strings.Contains(line, "Mounted on")
			continue
		}

		var du *core.DiskUsage
		var err error

		switch {
		case posix, len(fields) == 6 && strings.HasSuffix(fields[4], "%"):
			du, err = parsePosixDiskUsage(fields)
		default:
			du, err = parseAndroidDiskUsage(fields)
		}

		if err != nil {
			continue
		}

		usages = append(usages, *du)
	}

	return usages
}

func parseAndroidDiskUsage(fields []string) (*core.DiskUsage, error) {
	if len(fields) < 5 {
		return nil, ErrMalformedLine
	}

	var du core.DiskUsage
	var err error

	du.MountPoint = fields[0]

	if du.Total, err = ParseSize(fields[1]); err != nil {
		return nil, err
	}
	if du.Used, err = ParseSize(fields[2]); err != nil {
		return nil, err
	}
	if du.Free, err = ParseSize(fields[3]); err != nil {
		return nil, err
	}
	if du.BlockSize, err = strconv.ParseUint(fields[4], 10, 64); err != nil {
		return nil, err
	}

	return &du, nil
}

func parsePosixDiskUsage(fields []string) (*core.DiskUsage, error) {
	if len(fields) < 6 {
		return nil, ErrMalformedLine
	}

	n := len(fields)

	var vals [3]uint64

	for i := range vals {
		v, err := strconv.ParseUint(fields[n-5+i], 10, 64)
		if err != nil {
			return nil, err
		}
		vals[i] = v * 1024
	}

	return &core.DiskUsage{
		MountPoint: fields[n-1],
		Total:      vals[0],
		Used:       vals[1],
		Free:       vals[2],
		BlockSize:  1024,
	}, nil
}

// ParseSize parses a size with an optional binary suffix: "4096", "64K", "413.1M", "2G".
func ParseSize(s string) (uint64, error) {
	if len(s) == 0 {
		return 0, fmt.Errorf("empty size")
	}

	var mult float64 = 1

	switch s[len(s)-1] {
	case 'K', 'k':
		mult = 1 << 10
	case 'M', 'm':
		mult = 1 << 20
	case 'G', 'g':
		mult = 1 << 30
	case 'T', 't':
		mult = 1 << 40
	case 'B', 'b':
	default:
		v, err := strconv.ParseUint(s, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("invalid size: %q", s)
		}
		return v, nil
	}

	v, err := strconv.ParseFloat(s[:len(s)-1], 64)
	if err != nil || v < 0 {
		return 0, fmt.Errorf("invalid size: %q", s)
	}

	return uint64(v * mult), nil
}
