package core

import (
	"io/fs"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPermissionsRoundTrip(t *testing.T) {
	tests := []struct {
		raw   string
		octal string
	}{
		{"rwxr-xr-x", "0755"},
		{"rw-r--r--", "0644"},
		{"rwsr-sr-t", "7755"},
		{"rwSr-Sr-T", "7644"},
		{"---------", "0000"},
		{"rwxrwxrwt", "1777"},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			p, err := ParseRawPermissions(tt.raw)
			require.NoError(t, err)

			assert.Equal(t, tt.octal, p.Octal())
			assert.Equal(t, tt.raw, p.Raw())

			q, err := ParseOctalPermissions(tt.octal)
			require.NoError(t, err)

			assert.Equal(t, p, q)
		})
	}
}

func TestParseRawPermissionsMarkers(t *testing.T) {
	p, err := ParseRawPermissions("rwxr-x---+")
	require.NoError(t, err)
	assert.Equal(t, "0750", p.Octal())

	for _, s := range []string{"rwx", "rwxr-xr-q", "awxr-xr-x"} {
		_, err := ParseRawPermissions(s)
		assert.Error(t, err, s)
	}
}

func TestParseOctalPermissionsInvalid(t *testing.T) {
	for _, s := range []string{"", "7", "89a", "12345"} {
		_, err := ParseOctalPermissions(s)
		assert.Error(t, err, s)
	}
}

func TestPermissionsFileMode(t *testing.T) {
	m := fs.FileMode(0755) | fs.ModeSetuid | fs.ModeSticky

	p := PermissionsFromFileMode(m)

	assert.True(t, p.User.SetUID)
	assert.False(t, p.Group.SetGID)
	assert.True(t, p.Others.Sticky)
	assert.Equal(t, m, p.FileMode())
}
