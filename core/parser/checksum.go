package parser

import (
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/0xef53/phoenix-fm/core"
)

// ChecksumTypeByLength matches a hex digest to its algorithm.
func ChecksumTypeByLength(n int) (core.ChecksumType, bool) {
	switch n {
	case 32:
		return core.ChecksumMD5, true
	case 40:
		return core.ChecksumSHA1, true
	case 64:
		return core.ChecksumSHA256, true
	}

	return "", false
}

// ParseChecksumLine parses one line of md5sum/sha1sum/sha256sum output:
//
//	d41d8cd98f00b204e9800998ecf8427e  /sdcard/file
func ParseChecksumLine(line string) (core.Checksum, error) {
	fields := strings.Fields(line)

	if len(fields) == 0 {
		return core.Checksum{}, fmt.Errorf("%w: empty checksum line", ErrMalformedLine)
	}

	value := strings.ToLower(strings.TrimPrefix(fields[0], `\`))

	ctype, ok := ChecksumTypeByLength(len(value))
	if !ok {
		return core.Checksum{}, fmt.Errorf("%w: unknown digest length: %q", ErrMalformedLine, line)
	}

	if _, err := hex.DecodeString(value); err != nil {
		return core.Checksum{}, fmt.Errorf("%w: invalid digest: %q", ErrMalformedLine, line)
	}

	return core.Checksum{Type: ctype, Value: value}, nil
}

// ParseChecksums parses the output of one or more checksum commands.
func ParseChecksums(output string) []core.Checksum {
	sums := make([]core.Checksum, 0, 2)

	for _, line := range strings.Split(output, "\n") {
		if c, err := ParseChecksumLine(line); err == nil {
			sums = append(sums, c)
		}
	}

	return sums
}
