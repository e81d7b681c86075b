package compression

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseType(t *testing.T) {
	tests := []struct {
		name string
		want Type
		ok   bool
	}{
		{"zstd", TypeZstd, true},
		{"", TypeZstd, true},
		{"GZIP", TypeGzip, true},
		{"none", TypeNone, true},
		{"lz4", 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseType(tt.name)
			if !tt.ok {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, got, mustParse(t, got.String()))
		})
	}
}

func mustParse(t *testing.T, name string) Type {
	t.Helper()
	typ, err := ParseType(name)
	require.NoError(t, err)
	return typ
}

func TestSealOpen(t *testing.T) {
	data := bytes.Repeat([]byte("event block payload "), 200)

	for _, typ := range []Type{TypeNone, TypeGzip, TypeZstd} {
		t.Run(typ.String(), func(t *testing.T) {
			c, err := New(typ, LevelFastest)
			require.NoError(t, err)
			defer Close(c)

			sealed, err := Seal(c, data)
			require.NoError(t, err)
			assert.Equal(t, byte(typ), sealed[0])

			// a resolver that was not given the codec still opens it
			opened, err := NewCodecs().Open(sealed)
			require.NoError(t, err)
			assert.Equal(t, data, opened)
		})
	}
}

func TestOpenErrors(t *testing.T) {
	codecs := NewCodecs(NoOpCompressor{})

	_, err := codecs.Open(nil)
	assert.Error(t, err)

	_, err = codecs.Open([]byte{42, 1, 2})
	assert.Error(t, err)

	_, err = codecs.Open([]byte{byte(TypeGzip), 1, 2})
	assert.Error(t, err)
}
