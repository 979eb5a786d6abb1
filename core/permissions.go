package core

import (
	"fmt"
	"io/fs"
	"strconv"
)

type Permission struct {
	Read    bool
	Write   bool
	Execute bool
}

func (p Permission) bits() uint32 {
	var v uint32

	if p.Read {
		v |= 4
	}
	if p.Write {
		v |= 2
	}
	if p.Execute {
		v |= 1
	}

	return v
}

func permissionFromBits(v uint32) Permission {
	return Permission{
		Read:    v&4 != 0,
		Write:   v&2 != 0,
		Execute: v&1 != 0,
	}
}

type UserPermission struct {
	Permission
	SetUID bool
}

type GroupPermission struct {
	Permission
	SetGID bool
}

type OthersPermission struct {
	Permission
	Sticky bool
}

// Permissions is the classic permission triad plus the special bits.
type Permissions struct {
	User   UserPermission
	Group  GroupPermission
	Others OthersPermission
}

// ParseRawPermissions parses the 9-character permission part of a long listing
// (e.g. "rwsr-sr-t"). A trailing ACL/SELinux marker ("+" or ".") is allowed.
func ParseRawPermissions(s string) (Permissions, error) {
	if len(s) == 10 && (s[9] == '+' || s[9] == '.' || s[9] == '@') {
		s = s[:9]
	}

	if len(s) != 9 {
		return Permissions{}, fmt.Errorf("invalid raw permissions: %q", s)
	}

	triad := func(t string, special byte) (Permission, bool, error) {
		var p Permission
		var sp bool

		switch t[0] {
		case 'r':
			p.Read = true
		case '-':
		default:
			return p, false, fmt.Errorf("invalid read flag %q in %q", t[0], s)
		}

		switch t[1] {
		case 'w':
			p.Write = true
		case '-':
		default:
			return p, false, fmt.Errorf("invalid write flag %q in %q", t[1], s)
		}

		switch t[2] {
		case 'x':
			p.Execute = true
		case '-':
		case special:
			p.Execute = true
			sp = true
		case special - 'a' + 'A':
			sp = true
		default:
			return p, false, fmt.Errorf("invalid execute flag %q in %q", t[2], s)
		}

		return p, sp, nil
	}

	var perms Permissions
	var err error

	if perms.User.Permission, perms.User.SetUID, err = triad(s[0:3], 's'); err != nil {
		return Permissions{}, err
	}
	if perms.Group.Permission, perms.Group.SetGID, err = triad(s[3:6], 's'); err != nil {
		return Permissions{}, err
	}
	if perms.Others.Permission, perms.Others.Sticky, err = triad(s[6:9], 't'); err != nil {
		return Permissions{}, err
	}

	return perms, nil
}

// Raw returns the 9-character representation used by long listings.
func (p Permissions) Raw() string {
	b := make([]byte, 0, 9)

	triad := func(t Permission, special bool, ch byte) {
		b = append(b, flag(t.Read, 'r'), flag(t.Write, 'w'))

		switch {
		case special && t.Execute:
			b = append(b, ch)
		case special:
			b = append(b, ch-'a'+'A')
		default:
			b = append(b, flag(t.Execute, 'x'))
		}
	}

	triad(p.User.Permission, p.User.SetUID, 's')
	triad(p.Group.Permission, p.Group.SetGID, 's')
	triad(p.Others.Permission, p.Others.Sticky, 't')

	return string(b)
}

func flag(v bool, c byte) byte {
	if v {
		return c
	}
	return '-'
}

// ParseOctalPermissions parses a 3- or 4-digit octal mode such as "755" or "4755".
func ParseOctalPermissions(s string) (Permissions, error) {
	if len(s) < 3 || len(s) > 4 {
		return Permissions{}, fmt.Errorf("invalid octal permissions: %q", s)
	}

	v, err := strconv.ParseUint(s, 8, 32)
	if err != nil {
		return Permissions{}, fmt.Errorf("invalid octal permissions: %q: %w", s, err)
	}

	return permissionsFromBits(uint32(v)), nil
}

// Octal returns the 4-digit octal representation (e.g. "4755").
func (p Permissions) Octal() string {
	return fmt.Sprintf("%04o", p.bits())
}

func (p Permissions) bits() uint32 {
	var special uint32

	if p.User.SetUID {
		special |= 4
	}
	if p.Group.SetGID {
		special |= 2
	}
	if p.Others.Sticky {
		special |= 1
	}

	return special<<9 | p.User.bits()<<6 | p.Group.bits()<<3 | p.Others.bits()
}

func permissionsFromBits(v uint32) Permissions {
	return Permissions{
		User:   UserPermission{Permission: permissionFromBits(v >> 6), SetUID: v&04000 != 0},
		Group:  GroupPermission{Permission: permissionFromBits(v >> 3), SetGID: v&02000 != 0},
		Others: OthersPermission{Permission: permissionFromBits(v), Sticky: v&01000 != 0},
	}
}

// FileMode returns the permission and special bits as an fs.FileMode.
func (p Permissions) FileMode() fs.FileMode {
	m := fs.FileMode(p.bits() & 0777)

	if p.User.SetUID {
		m |= fs.ModeSetuid
	}
	if p.Group.SetGID {
		m |= fs.ModeSetgid
	}
	if p.Others.Sticky {
		m |= fs.ModeSticky
	}

	return m
}

func PermissionsFromFileMode(m fs.FileMode) Permissions {
	v := uint32(m.Perm())

	if m&fs.ModeSetuid != 0 {
		v |= 04000
	}
	if m&fs.ModeSetgid != 0 {
		v |= 02000
	}
	if m&fs.ModeSticky != 0 {
		v |= 01000
	}

	return permissionsFromBits(v)
}

func (p Permissions) String() string {
	return p.Raw()
}
