package core

import (
	"bufio"
	"os"
	"strconv"
	"strings"
)

const (
	DefaultPasswdFile = "/etc/passwd"
	DefaultGroupFile  = "/etc/group"
)

// Accounts resolves numeric owners of file system objects into names.
type Accounts struct {
	users  map[uint32]string
	groups map[uint32]string
}

// LoadAccounts reads the user and group databases. A missing database
// is not an error: the corresponding names are left empty.
func LoadAccounts(passwdFile, groupFile string) (*Accounts, error) {
	a := Accounts{
		users:  make(map[uint32]string),
		groups: make(map[uint32]string),
	}

	if err := readIDFile(passwdFile, 7, a.users); err != nil && !os.IsNotExist(err) {
		return nil, err
	}

	if err := readIDFile(groupFile, 4, a.groups); err != nil && !os.IsNotExist(err) {
		return nil, err
	}

	return &a, nil
}

func (a *Accounts) User(uid uint32) User {
	name, ok := a.users[uid]
	if !ok {
		name = strconv.FormatUint(uint64(uid), 10)
	}

	return NewUser(int(uid), name)
}

func (a *Accounts) Group(gid uint32) Group {
	name, ok := a.groups[gid]
	if !ok {
		name = strconv.FormatUint(uint64(gid), 10)
	}

	return NewGroup(int(gid), name)
}

func readIDFile(fname string, nfields int, ids map[uint32]string) error {
	fd, err := os.Open(fname)
	if err != nil {
		return err
	}
	defer fd.Close()

	scanner := bufio.NewScanner(fd)

	for scanner.Scan() {
		// alice:x:1005:1006::/home/alice:/usr/bin/bash
		// wheel:*:0:root
		parts := strings.SplitN(scanner.Text(), ":", nfields)

		if len(parts) < 3 || parts[0] == "" || parts[0][0] == '+' || parts[0][0] == '-' {
			// NIS compat entries (+foo, -foo) cannot be resolved by name
			continue
		}

		id, err := strconv.ParseUint(parts[2], 10, 32)
		if err != nil {
			continue
		}

		if _, ok := ids[uint32(id)]; !ok {
			ids[uint32(id)] = parts[0]
		}
	}

	return scanner.Err()
}
