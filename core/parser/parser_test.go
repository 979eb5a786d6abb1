package parser

import (
	"testing"

	"github.com/0xef53/phoenix-fm/core"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseMountTable(t *testing.T) {
	mpoints := ParseMountTable("rootfs / rootfs ro,relatime 0 0\n/dev/x /mnt vfat rw 0 0")
	require.Len(t, mpoints, 2)

	assert.Equal(t, "/", mpoints[0].MountPoint)
	assert.False(t, mpoints[0].IsReadWrite())

	assert.Equal(t, "vfat", mpoints[1].Type)
	assert.Equal(t, "/dev/x", mpoints[1].Device)
	assert.True(t, mpoints[1].IsReadWrite())
}

func TestParseMountTableSkipsMalformed(t *testing.T) {
	output := `/dev/vda / ext4 rw,noatime 0 0
broken line
/dev/vdb /mnt/my\040disk ext4 rw x 0
/dev/vdc /mnt/my\040data xfs ro 0 2
`

	mpoints := ParseMountTable(output)
	require.Len(t, mpoints, 2)

	assert.Equal(t, "/mnt/my data", mpoints[1].MountPoint)
	assert.Equal(t, 2, mpoints[1].Pass)
}

func TestFindMountPoint(t *testing.T) {
	mpoints := []core.MountPoint{
		{MountPoint: "/"},
		{MountPoint: "/mnt"},
		{MountPoint: "/mnt/sdcard"},
	}

	mp, ok := FindMountPoint(mpoints, "/mnt/sdcard/DCIM")
	require.True(t, ok)
	assert.Equal(t, "/mnt/sdcard", mp.MountPoint)

	mp, ok = FindMountPoint(mpoints, "/mnt/sdcard2")
	require.True(t, ok)
	assert.Equal(t, "/mnt", mp.MountPoint)
}

func TestParseDiskUsage(t *testing.T) {
	posix := `Filesystem     1024-blocks    Used Available Capacity Mounted on
/dev/vda1         10255636 4839564   4875400      50% /
tmpfs               102400       0    102400       0% /run/user/1000
`

	items := ParseDiskUsage(posix)
	require.Len(t, items, 2)

	assert.Equal(t, "/", items[0].MountPoint)
	assert.Equal(t, uint64(10255636*1024), items[0].Total)
	assert.Equal(t, uint64(4839564*1024), items[0].Used)
	assert.Equal(t, uint64(4875400*1024), items[0].Free)

	android := `Filesystem               Size     Used     Free   Blksize
/dev                   413.1M    64.0K   413.1M   4096
/mnt/secure: Permission denied
`

	items = ParseDiskUsage(android)
	require.Len(t, items, 1)

	assert.Equal(t, "/dev", items[0].MountPoint)
	assert.Equal(t, uint64(64*1024), items[0].Used)
	assert.Equal(t, uint64(4096), items[0].BlockSize)
}

func TestParseSize(t *testing.T) {
	tests := map[string]uint64{
		"4096": 4096,
		"64K":  64 << 10,
		"2G":   2 << 30,
		"1.5M": 3 << 19,
	}

	for in, want := range tests {
		v, err := ParseSize(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, v, in)
	}

	_, err := ParseSize("12Q")
	assert.Error(t, err)
}

func TestParseIdentity(t *testing.T) {
	id, err := ParseIdentity("uid=0(root) gid=0(root) groups=0(root),1004(input),1007(log) context=u:r:su:s0")
	require.NoError(t, err)

	assert.Equal(t, 0, id.User.ID)
	assert.Equal(t, "root", id.User.Name)
	require.Len(t, id.Groups, 3)
	assert.Equal(t, "log", id.Groups[2].Name)

	id, err = ParseIdentity("uid=1000(jdoe) gid=513(domain users) groups=513(domain users),1001(dev ops) context=unconfined")
	require.NoError(t, err)

	assert.Equal(t, "domain users", id.Group.Name)
	require.Len(t, id.Groups, 2)
	assert.Equal(t, "domain users", id.Groups[0].Name)
	assert.Equal(t, 1001, id.Groups[1].ID)
	assert.Equal(t, "dev ops", id.Groups[1].Name)

	_, err = ParseIdentity("uid=1000(user)")
	assert.Error(t, err)
}

func TestParseChecksums(t *testing.T) {
	output := `d41d8cd98f00b204e9800998ecf8427e  /sdcard/file
da39a3ee5e6b4b0d3255bfef95601890afd80709  /sdcard/file
not a checksum
`

	sums := ParseChecksums(output)
	require.Len(t, sums, 2)

	assert.Equal(t, core.ChecksumMD5, sums[0].Type)
	assert.Equal(t, core.ChecksumSHA1, sums[1].Type)
	assert.Equal(t, "da39a3ee5e6b4b0d3255bfef95601890afd80709", sums[1].Value)
}

func TestParsePIDs(t *testing.T) {
	assert.Equal(t, []int{12, 345}, ParsePIDs("12 345 abc\n"))
	assert.Empty(t, ParsePIDs(""))
}

func TestLines(t *testing.T) {
	var l Lines

	assert.Empty(t, l.Write([]byte("fir")))
	assert.Equal(t, []string{"first", "second"}, l.Write([]byte("st\r\nsecond\nthi")))

	last, ok := l.Flush()
	assert.True(t, ok)
	assert.Equal(t, "thi", last)

	_, ok = l.Flush()
	assert.False(t, ok)
}
