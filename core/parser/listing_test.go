package parser

import (
	"testing"
	"time"

	"github.com/0xef53/phoenix-fm/core"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseListLineSpecialBits(t *testing.T) {
	obj, err := ParseListLine("-rwsr-sr-t root root 229 2012-05-04 01:51 permission1", "/data")
	require.NoError(t, err)

	assert.Equal(t, core.TypeRegularFile, obj.Type)
	assert.Equal(t, "permission1", obj.Name)
	assert.Equal(t, "/data/permission1", obj.FullPath())
	assert.Equal(t, int64(229), obj.Size)
	assert.Equal(t, "root", obj.User.Name)
	assert.Equal(t, "root", obj.Group.Name)

	p := obj.Permissions

	assert.True(t, p.User.SetUID)
	assert.True(t, p.Group.SetGID)
	assert.True(t, p.Others.Sticky)
	assert.True(t, p.User.Execute)
	assert.True(t, p.Group.Execute)
	assert.True(t, p.Others.Execute)
	assert.False(t, p.Group.Write)

	assert.Equal(t, time.Date(2012, time.May, 4, 1, 51, 0, 0, time.Local), obj.LastModified)
}

func TestParseListLineVariants(t *testing.T) {
	tests := []struct {
		name  string
		line  string
		otype core.ObjectType
		oname string
		link  string
	}{
		{
			name:  "directory with link count",
			line:  "drwxr-xr-x 2 root root 4096 2020-01-02 10:11 etc",
			otype: core.TypeDirectory,
			oname: "etc",
		},
		{
			name:  "symlink",
			line:  "lrwxrwxrwx 1 root root 11 2012-05-04 01:51 sdcard -> /mnt/sdcard",
			otype: core.TypeSymlink,
			oname: "sdcard",
			link:  "/mnt/sdcard",
		},
		{
			name:  "name with spaces",
			line:  "-rw-r--r-- 1 user user 10 2020-01-02 10:11:12.000000000 +0100 my file.txt",
			otype: core.TypeRegularFile,
			oname: "my file.txt",
		},
		{
			name:  "traditional date with year",
			line:  "prw-r--r-- 1 root root 0 Jan  1  2020 fifo",
			otype: core.TypeNamedPipe,
			oname: "fifo",
		},
		{
			name:  "parent directory",
			line:  "drwxr-xr-x 20 root root 4096 2020-01-02 10:11 ..",
			otype: core.TypeParentDirectory,
			oname: "..",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			obj, err := ParseListLine(tt.line, "/")
			require.NoError(t, err)

			assert.Equal(t, tt.otype, obj.Type)
			assert.Equal(t, tt.oname, obj.Name)
			assert.Equal(t, tt.link, obj.LinkPath)
		})
	}
}

func TestParseListLineDevice(t *testing.T) {
	obj, err := ParseListLine("crw-rw-rw- 1 root root 1, 3 Jan  1  2020 null", "/dev")
	require.NoError(t, err)

	assert.Equal(t, core.TypeCharacterDevice, obj.Type)
	assert.Equal(t, uint32(1), obj.Major)
	assert.Equal(t, uint32(3), obj.Minor)
	assert.Equal(t, "null", obj.Name)
}

func TestParseListLineMalformed(t *testing.T) {
	for _, line := range []string{
		"",
		"total 16",
		"xrw-r--r-- 1 root root 0 2020-01-02 10:11 bad-type",
		"-rw-r--r-- root root 12 no-date",
	} {
		_, err := ParseListLine(line, "/")
		assert.ErrorIs(t, err, ErrMalformedLine, line)
	}
}

func TestParseListingSkipsNoise(t *testing.T) {
	output := `total 8
drwxr-xr-x 2 root root 4096 2020-01-02 10:11 .
drwxr-xr-x 20 root root 4096 2020-01-02 10:11 ..
-rw-r--r-- 1 root root 12 2020-01-02 10:11 a.txt
garbage line
`

	objs := ParseListing(output, "/tmp")
	require.Len(t, objs, 2)

	assert.Equal(t, core.TypeParentDirectory, objs[0].Type)
	assert.Equal(t, "/tmp/a.txt", objs[1].FullPath())
}

func TestParseFindLine(t *testing.T) {
	obj, err := ParseFindLine("-rw-r--r-- 1 root root 12 2020-01-02 10:11 /var/log/syslog.1")
	require.NoError(t, err)

	assert.Equal(t, "syslog.1", obj.Name)
	assert.Equal(t, "/var/log", obj.Parent)
}

func TestParseRecursiveHeader(t *testing.T) {
	dir, ok := ParseRecursiveHeader("/var/log:")
	assert.True(t, ok)
	assert.Equal(t, "/var/log", dir)

	_, ok = ParseRecursiveHeader("-rw-r--r-- 1 root root 12 2020-01-02 10:11 a:")
	assert.False(t, ok)
}
