package digest

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseAlgorithm(t *testing.T) {
	tests := []struct {
		in      string
		want    Algorithm
		wantErr bool
	}{
		{in: "sha256", want: SHA256},
		{in: "SHA-256", want: SHA256},
		{in: "SHA512", want: SHA512},
		{in: "sha-1", want: SHA1},
		{in: "md5", want: MD5},
		{in: "blake2", wantErr: true},
		{in: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseAlgorithm(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSumHex(t *testing.T) {
	tests := []struct {
		alg  Algorithm
		want string
	}{
		{MD5, "900150983cd24fb0d6963f7d28e17f72"},
		{SHA1, "a9993e364706816aba3e25717850c26c9cd0d89d"},
		{SHA256, "ba7816bf8f01cfea414140de5dae2223b00361a396177a9cb410ff61f20015ad"},
	}

	for _, tt := range tests {
		t.Run(string(tt.alg), func(t *testing.T) {
			got, err := tt.alg.SumHex([]byte("abc"))
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := Algorithm("CRC32").SumHex([]byte("abc"))
	assert.Error(t, err)
}

func TestCanonicalSHA256_Stable(t *testing.T) {
	a, _, err := CanonicalSHA256(map[string]string{"b": "2", "a": "1"})
	require.NoError(t, err)
	b, raw, err := CanonicalSHA256(map[string]string{"a": "1", "b": "2"})
	require.NoError(t, err)

	assert.Equal(t, a, b)
	assert.Equal(t, `{"a":"1","b":"2"}`, string(raw))
}
