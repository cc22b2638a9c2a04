package sanitize

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestString(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		minLen  int
		maxLen  int
		want    string
		wantErr bool
	}{
		{name: "plain reference", in: "SAF-2024-000123", maxLen: 64, want: "SAF-2024-000123"},
		{name: "trims whitespace", in: "  abc  ", maxLen: 10, want: "abc"},
		{name: "too long", in: "abcdef", maxLen: 3, wantErr: true},
		{name: "too short", in: "ab", minLen: 3, maxLen: 10, wantErr: true},
		{name: "comment marker double dash", in: "ref--drop", maxLen: 64, wantErr: true},
		{name: "block comment open", in: "ref/*x", maxLen: 64, wantErr: true},
		{name: "statement terminator", in: "ref;", maxLen: 64, wantErr: true},
		{name: "select keyword", in: "1 UNION SELECT password", maxLen: 64, wantErr: true},
		{name: "keyword lowercase", in: "drop table payments", maxLen: 64, wantErr: true},
		{name: "keyword as substring allowed", in: "dropship-order", maxLen: 64, want: "dropship-order"},
		{name: "hex literal", in: "0x1f4b", maxLen: 64, wantErr: true},
		{name: "char call", in: "CHAR(65)", maxLen: 64, wantErr: true},
		{name: "concat call with space", in: "concat (a,b)", maxLen: 64, wantErr: true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := String(tc.in, tc.minLen, tc.maxLen)
			if tc.wantErr {
				require.ErrorIs(t, err, ErrRejected)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestNumber(t *testing.T) {
	got, err := Number(50000, 0, 10_000_000)
	require.NoError(t, err)
	assert.Equal(t, float64(50000), got)

	_, err = Number(-1, 0, 100)
	assert.ErrorIs(t, err, ErrRejected)

	_, err = Number(101, 0, 100)
	assert.ErrorIs(t, err, ErrRejected)
}

func TestUUID(t *testing.T) {
	got, err := UUID(" 6BA7B810-9DAD-11D1-80B4-00C04FD430C8 ")
	require.NoError(t, err)
	assert.Equal(t, "6ba7b810-9dad-11d1-80b4-00c04fd430c8", got)

	_, err = UUID("not-a-uuid")
	assert.ErrorIs(t, err, ErrRejected)
}

func TestEmail(t *testing.T) {
	got, err := Email("rider@example.co.tz")
	require.NoError(t, err)
	assert.Equal(t, "rider@example.co.tz", got)

	for _, bad := range []string{"", "plainaddress", "a@b", "a b@example.com"} {
		_, err := Email(bad)
		assert.ErrorIs(t, err, ErrRejected, "input %q", bad)
	}
}

func TestPhone(t *testing.T) {
	got, err := Phone("+255 754 123-456")
	require.NoError(t, err)
	assert.Equal(t, "+255754123456", got)

	for _, bad := range []string{"", "12345", "call-me-maybe", "+12345678901234567"} {
		_, err := Phone(bad)
		assert.ErrorIs(t, err, ErrRejected, "input %q", bad)
	}
}
