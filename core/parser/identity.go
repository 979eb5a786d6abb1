package parser

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/0xef53/phoenix-fm/core"
)

var (
	reIDEntry = regexp.MustCompile(`^(\d+)(?:\((.*)\))?$`)
	reIDField = regexp.MustCompile(`(?:^|\s)([a-z]+)=`)
)

// ParseIdentity parses the output of id(1):
//
//	uid=0(root) gid=0(root) groups=0(root),1004(input),1007(log) context=u:r:su:s0
//
// A value runs up to the next key, so names may contain spaces.
// Unknown fields are ignored. A missing uid, gid or groups field is an error.
func ParseIdentity(output string) (*core.Identity, error) {
	var uid, gid, groups string
	var hasUID, hasGID, hasGroups bool

	output = strings.TrimSpace(output)

	fields := reIDField.FindAllStringSubmatchIndex(output, -1)

	for i, m := range fields {
		end := len(output)
		if i+1 < len(fields) {
			end = fields[i+1][0]
		}

		k, v := output[m[2]:m[3]], strings.TrimSpace(output[m[1]:end])

		switch k {
		case "uid":
			uid, hasUID = v, true
		case "gid":
			gid, hasGID = v, true
		case "groups":
			groups, hasGroups = v, true
		}
	}

	if !hasUID || !hasGID || !hasGroups {
		return nil, fmt.Errorf("invalid identity output: %q", output)
	}

	id := core.Identity{}

	if v, err := parseIDEntry(uid); err == nil {
		id.User = core.User{SecurityIdentifier: v}
	} else {
		return nil, err
	}

	if v, err := parseIDEntry(gid); err == nil {
		id.Group = core.Group{SecurityIdentifier: v}
	} else {
		return nil, err
	}

	id.Groups = make([]core.Group, 0, 4)

	for _, g := range strings.Split(groups, ",") {
		if len(g) == 0 {
			continue
		}

		v, err := parseIDEntry(g)
		if err != nil {
			return nil, err
		}

		id.Groups = append(id.Groups, core.Group{SecurityIdentifier: v})
	}

	return &id, nil
}

func parseIDEntry(s string) (core.SecurityIdentifier, error) {
	m := reIDEntry.FindStringSubmatch(s)
	if m == nil {
		return core.SecurityIdentifier{}, fmt.Errorf("invalid id entry: %q", s)
	}

	id, err := strconv.Atoi(m[1])
	if err != nil {
		return core.SecurityIdentifier{}, fmt.Errorf("invalid id entry: %q", s)
	}

	name := m[2]
	if len(name) == 0 {
		name = m[1]
	}

	return core.SecurityIdentifier{ID: id, Name: name}, nil
}
