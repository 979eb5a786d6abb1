package parser

import (
	"strconv"
	"strings"

	"github.com/0xef53/phoenix-fm/core"
)

// ParseMountTable parses the content of /proc/mounts (see man 5 fstab):
//
//	/dev/vda / ext4 rw,noatime,errors=remount-ro,data=ordered 0 0
//
// Lines with fewer than four columns or with non-numeric dump/pass
// columns are skipped.
func ParseMountTable(output string) []core.MountPoint {
	mpoints := make([]core.MountPoint, 0, 10)

	for _, line := range strings.Split(output, "\n") {
		parts := strings.Fields(line)

		if len(parts) < 4 {
			continue
		}

		mp := core.MountPoint{
			Device:     unescapeMountField(parts[0]),
			MountPoint: unescapeMountField(parts[1]),
			Type:       parts[2],
			Options:    parts[3],
		}

		if len(parts) > 4 {
			v, err := strconv.Atoi(parts[4])
			if err != nil {
				continue
			}
			mp.Dump = v
		}

		if len(parts) > 5 {
			v, err := strconv.Atoi(parts[5])
			if err != nil {
				continue
			}
			mp.Pass = v
		}

		mpoints = append(mpoints, mp)
	}

	return mpoints
}

// unescapeMountField decodes the octal escapes (\040 for a space, etc.)
// used by the kernel in mount tables.
func unescapeMountField(s string) string {
	if !strings.Contains(s, `\`) {
		return s
	}

	var b strings.Builder

	for i := 0; i < len(s); i++ {
		if s[i] == '\\' && i+3 < len(s) {
			if v, err := strconv.ParseUint(s[i+1:i+4], 8, 8); err == nil {
				b.WriteByte(byte(v))
				i += 3
				continue
			}
		}
		b.WriteByte(s[i])
	}

	return b.String()
}

// FindMountPoint returns the mount point with the longest path that contains p.
func FindMountPoint(mpoints []core.MountPoint, p string) (core.MountPoint, bool) {
	var found core.MountPoint
	var ok bool

	for _, mp := range mpoints {
		mpath := strings.TrimSuffix(mp.MountPoint, "/")

		if p != mp.MountPoint && p != mpath && !strings.HasPrefix(p, mpath+"/") {
			continue
		}

		if !ok || len(mp.MountPoint) > len(found.MountPoint) {
			found, ok = mp, true
		}
	}

	return found, ok
}
