package kdf

import (
	"encoding/hex"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustHex(t *testing.T, s string) []byte {
	t.Helper()
	b, err := hex.DecodeString(s)
	require.NoError(t, err)
	return b
}

func TestDeriveKEKKnownAnswer(t *testing.T) {
	// RFC 7914 section 12, first vector, truncated to 32 bytes.
	kek, err := DeriveKEK("", nil, nil, 16, 1)
	require.NoError(t, err)
	defer kek.Destroy()

	got, err := kek.Encoded()
	require.NoError(t, err)
	assert.Equal(t, mustHex(t, "77d6576238657b203b19ca42c18a0497f16b4844e3074ae8dfdffa3fede21442"), got)
}

func TestDeriveKEKAppendsPepper(t *testing.T) {
	withPepper, err := DeriveKEK("pleaseletmein", []byte("SodiumChloride"), []byte("pepper"), 1024, 8)
	require.NoError(t, err)
	got, _ := withPepper.Encoded()
	assert.Equal(t, mustHex(t, "ad86e9e200b05be640360a1896c4142a7e73f344d1782a3b5e5355af93af28e3"), got)

	// Moving the pepper into the salt gives the same key.
	concatenated, err := DeriveKEK("pleaseletmein", []byte("SodiumChloridepepper"), nil, 1024, 8)
	require.NoError(t, err)
	assert.True(t, withPepper.Equal(concatenated))

	withoutPepper, err := DeriveKEK("pleaseletmein", []byte("SodiumChloride"), nil, 1024, 8)
	require.NoError(t, err)
	assert.False(t, withPepper.Equal(withoutPepper))
}

func TestCheckScryptParams(t *testing.T) {
	tests := []struct {
		name      string
		cost      int
		blockSize int
		wantErr   bool
	}{
		{"Default", DefaultScryptCostParam, DefaultScryptBlockSize, false},
		{"Smallest", 2, 1, false},
		{"One", 1, 8, true},
		{"Zero", 0, 8, true},
		{"Negative", -16, 8, true},
		{"NotPowerOfTwo", 1000, 8, true},
		{"ZeroBlockSize", 1024, 0, true},
		{"Overflow", 1 << 21, 8, true},
		{"JustFits", 1 << 20, 8, false},
		{"MaxInt", math.MaxInt32, 1, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := CheckScryptParams(tt.cost, tt.blockSize)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidArgument)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestDeriveKEKRejectsBadCost(t *testing.T) {
	_, err := DeriveKEK("pw", []byte("salt"), nil, 1000, 8)
	assert.ErrorIs(t, err, ErrInvalidArgument)

	_, err = DeriveKEKWithParams("pw", []byte("salt"), nil, ScryptParams{CostParam: 3, BlockSize: 8})
	assert.ErrorIs(t, err, ErrInvalidArgument)
}

func TestHKDFSHA512KnownAnswer(t *testing.T) {
	salt := make([]byte, 32)
	for i := range salt {
		salt[i] = byte(i)
	}
	ikm := make([]byte, 22)
	for i := range ikm {
		ikm[i] = 0x0b
	}

	got, err := HKDFSHA512(salt, ikm, []byte("fileHeader"), 32)
	require.NoError(t, err)
	assert.Equal(t, mustHex(t, "c82bb6ffc5a9678eed565bc241bab6bb17a0d07352a3be83a895998e0948eb66"), got)

	zero, err := HKDFSHA512(make([]byte, 32), make([]byte, 32), []byte("fileHeader"), 32)
	require.NoError(t, err)
	assert.Equal(t, mustHex(t, "9c9a4b02a29d4573019f629dac46355adf67be213e29520f1efea5b72bd57511"), zero)
}

func TestHKDFSHA512Deterministic(t *testing.T) {
	a, err := HKDFSHA512([]byte("salt"), []byte("ikm"), []byte("ctx"), 64)
	require.NoError(t, err)
	b, err := HKDFSHA512([]byte("salt"), []byte("ikm"), []byte("ctx"), 64)
	require.NoError(t, err)
	c, err := HKDFSHA512([]byte("salt"), []byte("ikm"), []byte("other"), 64)
	require.NoError(t, err)

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)

	short, err := HKDFSHA512([]byte("salt"), []byte("ikm"), []byte("ctx"), 16)
	require.NoError(t, err)
	assert.Equal(t, a[:16], short)
}

func TestHKDFSHA512RejectsLength(t *testing.T) {
	_, err := HKDFSHA512(nil, []byte("ikm"), nil, 0)
	assert.ErrorIs(t, err, ErrInvalidArgument)
	_, err = HKDFSHA512(nil, []byte("ikm"), nil, 255*64+1)
	assert.ErrorIs(t, err, ErrInvalidArgument)
}
