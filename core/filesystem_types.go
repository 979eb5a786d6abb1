package core

import (
	"path"
	"strings"
	"time"
)

// ObjectType identifies the concrete variant of a FileSystemObject.
// The values match the leading type character of a long listing.
type ObjectType byte

const (
	TypeRegularFile     ObjectType = '-'
	TypeDirectory       ObjectType = 'd'
	TypeSymlink         ObjectType = 'l'
	TypeBlockDevice     ObjectType = 'b'
	TypeCharacterDevice ObjectType = 'c'
	TypeNamedPipe       ObjectType = 'p'
	TypeDomainSocket    ObjectType = 's'

	// TypeParentDirectory marks the ".." entry of a listing.
	TypeParentDirectory ObjectType = '^'
)

func ParseObjectType(c byte) (ObjectType, bool) {
	switch t := ObjectType(c); t {
	case TypeRegularFile, TypeDirectory, TypeSymlink, TypeBlockDevice, TypeCharacterDevice, TypeNamedPipe, TypeDomainSocket:
		return t, true
	}

	return 0, false
}

func (t ObjectType) String() string {
	switch t {
	case TypeRegularFile:
		return "file"
	case TypeDirectory:
		return "directory"
	case TypeSymlink:
		return "symlink"
	case TypeBlockDevice:
		return "block-device"
	case TypeCharacterDevice:
		return "char-device"
	case TypeNamedPipe:
		return "pipe"
	case TypeDomainSocket:
		return "socket"
	case TypeParentDirectory:
		return "parent"
	}

	return "unknown"
}

type SecurityIdentifier struct {
	ID   int
	Name string
}

type User struct {
	SecurityIdentifier
}

type Group struct {
	SecurityIdentifier
}

func NewUser(id int, name string) User {
	return User{SecurityIdentifier{ID: id, Name: name}}
}

func NewGroup(id int, name string) Group {
	return Group{SecurityIdentifier{ID: id, Name: name}}
}

// Identity is the result of an identity query of a console.
type Identity struct {
	User   User
	Group  Group
	Groups []Group
}

// FileSystemObject describes one entry of a file system.
type FileSystemObject struct {
	Type ObjectType

	Name   string
	Parent string

	User        User
	Group       Group
	Permissions Permissions

	LastAccessed time.Time
	LastModified time.Time
	LastChanged  time.Time

	Size int64

	// Device nodes only
	Major uint32
	Minor uint32

	// Symlinks only. LinkPath is the raw target as reported by the backend,
	// LinkRef is the resolved target and may be nil.
	LinkPath string
	LinkRef  *FileSystemObject

	Secure bool
}

func (o *FileSystemObject) FullPath() string {
	switch {
	case o.Type == TypeParentDirectory:
		return path.Dir(o.Parent)
	case o.Parent == "":
		return o.Name
	}

	return path.Join(o.Parent, o.Name)
}

func (o *FileSystemObject) IsDirectory() bool {
	if o.Type == TypeDirectory || o.Type == TypeParentDirectory {
		return true
	}

	return o.Type == TypeSymlink && o.LinkRef != nil && o.LinkRef.Type == TypeDirectory
}

func (o *FileSystemObject) IsHidden() bool {
	return len(o.Name) > 1 && o.Name[0] == '.' && o.Name != ".."
}

func (o *FileSystemObject) String() string {
	s := string(o.Type) + o.Permissions.Raw() + " " + o.User.Name + " " + o.Group.Name + " " + o.FullPath()

	if o.Type == TypeSymlink && len(o.LinkPath) > 0 {
		s += " -> " + o.LinkPath
	}

	return s
}

// MountPoint is one record of a mount table.
type MountPoint struct {
	Device     string
	MountPoint string
	Type       string
	Options    string
	Dump       int
	Pass       int
	Secure     bool
}

func (m *MountPoint) IsReadWrite() bool {
	for _, o := range strings.Split(m.Options, ",") {
		switch o {
		case "rw":
			return true
		case "ro":
			return false
		}
	}

	return false
}

func (m *MountPoint) String() string {
	return m.Device + " on " + m.MountPoint + " type " + m.Type + " (" + m.Options + ")"
}

// DiskUsage describes the space of one mounted file system.
type DiskUsage struct {
	MountPoint string
	Total      uint64
	Used       uint64
	Free       uint64
	BlockSize  uint64
}

// FolderUsage is an accumulated statistic of a directory tree.
type FolderUsage struct {
	Directory string
	Files     int
	Folders   int
	Size      int64
}

type ChecksumType string

const (
	ChecksumMD5    ChecksumType = "md5"
	ChecksumSHA1   ChecksumType = "sha1"
	ChecksumSHA256 ChecksumType = "sha256"
)

type Checksum struct {
	Type  ChecksumType
	Value string
}

type CompressionMode string

const (
	CompressionTar      CompressionMode = "tar"
	CompressionTarGzip  CompressionMode = "tar.gz"
	CompressionTarBzip2 CompressionMode = "tar.bz2"
	CompressionGzip     CompressionMode = "gz"
	CompressionBzip2    CompressionMode = "bz2"
)

// IsArchive reports whether the mode bundles several sources into one file.
func (m CompressionMode) IsArchive() bool {
	switch m {
	case CompressionTar, CompressionTarGzip, CompressionTarBzip2:
		return true
	}

	return false
}

// Extension returns the file name suffix of the mode, e.g. ".tar.gz".
func (m CompressionMode) Extension() string {
	return "." + string(m)
}

func ParseCompressionMode(s string) (CompressionMode, bool) {
	switch m := CompressionMode(s); m {
	case CompressionTar, CompressionTarGzip, CompressionTarBzip2, CompressionGzip, CompressionBzip2:
		return m, true
	case "tgz":
		return CompressionTarGzip, true
	case "tbz2", "tbz":
		return CompressionTarBzip2, true
	case "gzip":
		return CompressionGzip, true
	case "bzip2":
		return CompressionBzip2, true
	}

	return "", false
}

// CompressionModeByName guesses the mode from a file name extension.
func CompressionModeByName(name string) (CompressionMode, bool) {
	suffixes := []struct {
		ext  string
		mode CompressionMode
	}{
		{".tar.gz", CompressionTarGzip},
		{".tgz", CompressionTarGzip},
		{".tar.bz2", CompressionTarBzip2},
		{".tbz2", CompressionTarBzip2},
		{".tar", CompressionTar},
		{".gz", CompressionGzip},
		{".bz2", CompressionBzip2},
	}

	for _, s := range suffixes {
		if len(name) > len(s.ext) && strings.HasSuffix(name, s.ext) {
			return s.mode, true
		}
	}

	return "", false
}
