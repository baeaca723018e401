package secret

import (
	"bytes"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewCopiesInput(t *testing.T) {
	raw := []byte{1, 2, 3, 4}
	k, err := New(raw, AlgorithmAES)
	require.NoError(t, err)

	raw[0] = 9
	enc, err := k.Encoded()
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 2, 3, 4}, enc)
}

func TestNewRejectsEmpty(t *testing.T) {
	_, err := New(nil, AlgorithmAES)
	assert.ErrorIs(t, err, ErrEmptyKey)
	_, err = Generate(bytes.NewReader(nil), 0, AlgorithmAES)
	assert.ErrorIs(t, err, ErrEmptyKey)
}

func TestGenerateShortRandom(t *testing.T) {
	_, err := Generate(bytes.NewReader([]byte{1, 2}), 32, AlgorithmAES)
	require.Error(t, err)
}

func TestDestroyZeroesBackingArray(t *testing.T) {
	k, err := Generate(bytes.NewReader(bytes.Repeat([]byte{0xAB}, 32)), 32, AlgorithmHMAC)
	require.NoError(t, err)

	backing := k.key
	k.Destroy()

	assert.True(t, k.IsDestroyed())
	assert.Equal(t, make([]byte, 32), backing)

	// Second destroy is a no-op.
	k.Destroy()
	assert.True(t, k.IsDestroyed())
}

func TestAccessorsFailAfterDestroy(t *testing.T) {
	k, err := New([]byte("0123456789abcdef"), AlgorithmAES)
	require.NoError(t, err)
	require.NoError(t, k.Close())

	_, err = k.Encoded()
	assert.ErrorIs(t, err, ErrDestroyed)
	_, err = k.Algorithm()
	assert.ErrorIs(t, err, ErrDestroyed)
	_, err = k.Len()
	assert.ErrorIs(t, err, ErrDestroyed)
	_, err = k.Copy()
	assert.ErrorIs(t, err, ErrDestroyed)
	err = k.Use(func([]byte) error { return nil })
	assert.ErrorIs(t, err, ErrDestroyed)
	assert.Equal(t, "DestroyableKey(destroyed)", k.String())
}

func TestCopyIsDeep(t *testing.T) {
	k, err := New([]byte("0123456789abcdef"), AlgorithmAES)
	require.NoError(t, err)
	c, err := k.Copy()
	require.NoError(t, err)
	require.True(t, k.Equal(c))

	k.Destroy()
	enc, err := c.Encoded()
	require.NoError(t, err)
	assert.Equal(t, []byte("0123456789abcdef"), enc)
	assert.False(t, k.Equal(c))
}

func TestEqual(t *testing.T) {
	a, _ := New([]byte("aaaa"), AlgorithmAES)
	b, _ := New([]byte("aaaa"), AlgorithmAES)
	c, _ := New([]byte("aaab"), AlgorithmAES)
	d, _ := New([]byte("aaaa"), AlgorithmHMAC)

	assert.True(t, a.Equal(b))
	assert.True(t, a.Equal(a))
	assert.False(t, a.Equal(c))
	assert.False(t, a.Equal(d))
	assert.False(t, a.Equal(nil))
}

func TestUsePropagatesError(t *testing.T) {
	k, _ := New([]byte("aaaa"), AlgorithmAES)
	sentinel := errors.New("boom")
	err := k.Use(func(key []byte) error {
		assert.Equal(t, []byte("aaaa"), key)
		return sentinel
	})
	assert.ErrorIs(t, err, sentinel)
}

func TestStringHidesMaterial(t *testing.T) {
	k, _ := New([]byte("supersecret"), AlgorithmAES)
	assert.NotContains(t, k.String(), "supersecret")
	assert.Equal(t, "DestroyableKey(AES, 11 bytes)", k.String())
}

func TestWipe(t *testing.T) {
	a := []byte{1, 2, 3}
	b := []byte{4, 5}
	Wipe(a, b)
	assert.Equal(t, []byte{0, 0, 0}, a)
	assert.Equal(t, []byte{0, 0}, b)
}
