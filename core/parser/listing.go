// Package parser turns the textual output of file system commands
// into domain records. All functions are pure; malformed records are
// skipped rather than aborting the whole parse.
package parser

import (
	"errors"
	"fmt"
	"path"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/0xef53/phoenix-fm/core"
)

var (
	ErrMalformedLine = errors.New("malformed line")

	reISODate = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)
	reISOTime = regexp.MustCompile(`^\d{2}:\d{2}(:\d{2}(\.\d+)?)?$`)
	reTZ      = regexp.MustCompile(`^[+-]\d{4}$`)
)

var months = map[string]time.Month{
	"Jan": time.January, "Feb": time.February, "Mar": time.March, "Apr": time.April,
	"May": time.May, "Jun": time.June, "Jul": time.July, "Aug": time.August,
	"Sep": time.September, "Oct": time.October, "Nov": time.November, "Dec": time.December,
}

// field is a whitespace-delimited token and its offset within the line.
type field struct {
	s   string
	off int
}

func splitFields(line string) []field {
	ff := make([]field, 0, 10)

	start := -1

	for i := 0; i < len(line); i++ {
		if line[i] == ' ' || line[i] == '\t' {
			if start >= 0 {
				ff = append(ff, field{line[start:i], start})
				start = -1
			}
			continue
		}
		if start < 0 {
			start = i
		}
	}

	if start >= 0 {
		ff = append(ff, field{line[start:], start})
	}

	return ff
}

// ParseListLine parses one line of a long directory listing:
//
//	-rwsr-sr-t root root 229 2012-05-04 01:51 permission1
//	lrwxrwxrwx 1 root root 11 2012-05-04 01:51 sdcard -> /mnt/sdcard
//	crw-rw-rw- 1 root root 1, 3 Jan  1  2020 null
//
// The link-count column is optional. Dates may be in ISO form (with or without
// seconds and zone) or in the traditional "Mon DD HH:MM|YYYY" form.
// The entry ".." is reported as a ParentDirectory marker.
func ParseListLine(line, parent string) (*core.FileSystemObject, error) {
	line = strings.TrimRight(line, "\r\n")

	ff := splitFields(line)

	if len(ff) < 6 || len(ff[0].s) < 10 {
		return nil, fmt.Errorf("%w: %q", ErrMalformedLine, line)
	}

	otype, ok := core.ParseObjectType(ff[0].s[0])
	if !ok {
		return nil, fmt.Errorf("%w: unknown object type: %q", ErrMalformedLine, line)
	}

	perms, err := core.ParseRawPermissions(ff[0].s[1:])
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrMalformedLine, err)
	}

	// Locate the date column
	di := -1

	for i := 4; i < len(ff); i++ {
		if reISODate.MatchString(ff[i].s) {
			di = i
			break
		}
		if _, ok := months[ff[i].s]; ok && i+2 < len(ff) {
			di = i
			break
		}
	}

	if di < 0 {
		return nil, fmt.Errorf("%w: no date column: %q", ErrMalformedLine, line)
	}

	obj := core.FileSystemObject{
		Type:        otype,
		Parent:      parent,
		Permissions: perms,
	}

	// The columns between the permissions and the date are:
	// [links] owner group size|major, minor
	pre := ff[1:di]

	var nsize int

	switch {
	case otype != core.TypeBlockDevice && otype != core.TypeCharacterDevice:
		nsize = 1
	case len(pre) >= 2 && strings.HasSuffix(pre[len(pre)-2].s, ","):
		nsize = 2
	default:
		nsize = 1
	}

	if len(pre) < nsize+2 {
		return nil, fmt.Errorf("%w: not enough columns: %q", ErrMalformedLine, line)
	}

	sizeToks := make([]string, 0, 2)
	for _, f := range pre[len(pre)-nsize:] {
		sizeToks = append(sizeToks, f.s)
	}

	if err := parseSize(&obj, strings.Join(sizeToks, "")); err != nil {
		return nil, fmt.Errorf("%w: %s: %q", ErrMalformedLine, err, line)
	}

	obj.User = parseUser(pre[len(pre)-nsize-2].s)
	obj.Group = parseGroup(pre[len(pre)-nsize-1].s)

	mtime, ni, err := parseDate(ff, di)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %q", ErrMalformedLine, err, line)
	}

	if ni >= len(ff) {
		return nil, fmt.Errorf("%w: no name column: %q", ErrMalformedLine, line)
	}

	obj.LastModified = mtime
	obj.LastAccessed = mtime
	obj.LastChanged = mtime

	name := line[ff[ni].off:]

	if otype == core.TypeSymlink {
		if idx := strings.Index(name, " -> "); idx >= 0 {
			obj.LinkPath = name[idx+4:]
			name = name[:idx]
		}
	}

	obj.Name = name

	if name == ".." {
		obj.Type = core.TypeParentDirectory
	}

	return &obj, nil
}

// ParseFindLine parses a listing line whose name column holds a full path,
// as produced by "find ... -exec ls -ld {} \;".
func ParseFindLine(line string) (*core.FileSystemObject, error) {
	obj, err := ParseListLine(line, "")
	if err != nil {
		return nil, err
	}

	full := obj.Name

	obj.Parent = path.Dir(full)
	obj.Name = path.Base(full)

	return obj, nil
}

// ParseListing parses the complete output of a long directory listing.
// Summary lines ("total N"), the "." entry and malformed lines are skipped.
func ParseListing(output, parent string) []*core.FileSystemObject {
	objects := make([]*core.FileSystemObject, 0)

	for _, line := range strings.Split(output, "\n") {
		if IsListingNoise(line) {
			continue
		}

		obj, err := ParseListLine(line, parent)
		if err != nil || obj.Name == "." {
			continue
		}

		objects = append(objects, obj)
	}

	return objects
}

// IsListingNoise reports lines of a listing that never describe an object.
func IsListingNoise(line string) bool {
	line = strings.TrimSpace(line)

	return len(line) == 0 || strings.HasPrefix(line, "total ")
}

// ParseRecursiveHeader recognizes the "dir:" section header of "ls -laR".
func ParseRecursiveHeader(line string) (string, bool) {
	line = strings.TrimRight(line, "\r\n")

	if len(line) > 1 && strings.HasSuffix(line, ":") && !strings.Contains(line, " -> ") {
		if _, ok := core.ParseObjectType(line[0]); ok && len(splitFields(line)) >= 6 {
			return "", false
		}
		return strings.TrimSuffix(line, ":"), true
	}

	return "", false
}

func parseSize(obj *core.FileSystemObject, s string) error {
	if i := strings.IndexByte(s, ','); i >= 0 && (obj.Type == core.TypeBlockDevice || obj.Type == core.TypeCharacterDevice) {
		major, err := strconv.ParseUint(s[:i], 10, 32)
		if err != nil {
			return err
		}

		minor, err := strconv.ParseUint(s[i+1:], 10, 32)
		if err != nil {
			return err
		}

		obj.Major = uint32(major)
		obj.Minor = uint32(minor)

		return nil
	}

	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return err
	}

	obj.Size = v

	return nil
}

func parseUser(s string) core.User {
	if id, err := strconv.Atoi(s); err == nil {
		return core.NewUser(id, s)
	}
	return core.NewUser(-1, s)
}

func parseGroup(s string) core.Group {
	if id, err := strconv.Atoi(s); err == nil {
		return core.NewGroup(id, s)
	}
	return core.NewGroup(-1, s)
}

// parseDate parses the date starting at the di-th field and returns
// the index of the first field after it.
func parseDate(ff []field, di int) (time.Time, int, error) {
	if reISODate.MatchString(ff[di].s) {
		if di+1 >= len(ff) || !reISOTime.MatchString(ff[di+1].s) {
			return time.Time{}, 0, fmt.Errorf("invalid time column")
		}

		value := ff[di].s + " " + ff[di+1].s
		layout := "2006-01-02 15:04"

		if len(ff[di+1].s) > 5 {
			layout = "2006-01-02 15:04:05.999999999"
		}

		next := di + 2

		if next < len(ff) && reTZ.MatchString(ff[next].s) {
			value += " " + ff[next].s
			layout += " -0700"
			next++
		}

		t, err := time.ParseInLocation(layout, value, time.Local)
		if err != nil {
			return time.Time{}, 0, err
		}

		return t, next, nil
	}

	// Traditional form: Mon DD HH:MM | Mon DD YYYY
	month := months[ff[di].s]

	day, err := strconv.Atoi(ff[di+1].s)
	if err != nil || day < 1 || day > 31 {
		return time.Time{}, 0, fmt.Errorf("invalid day column")
	}

	now := time.Now()

	if strings.Contains(ff[di+2].s, ":") {
		var hh, mm int

		if _, err := fmt.Sscanf(ff[di+2].s, "%d:%d", &hh, &mm); err != nil {
			return time.Time{}, 0, fmt.Errorf("invalid time column")
		}

		t := time.Date(now.Year(), month, day, hh, mm, 0, 0, time.Local)

		// Recent entries omit the year: a date in the future belongs to the previous year
		if t.After(now.Add(24 * time.Hour)) {
			t = t.AddDate(-1, 0, 0)
		}

		return t, di + 3, nil
	}

	year, err := strconv.Atoi(ff[di+2].s)
	if err != nil {
		return time.Time{}, 0, fmt.Errorf("invalid year column")
	}

	return time.Date(year, month, day, 0, 0, 0, 0, time.Local), di + 3, nil
}
