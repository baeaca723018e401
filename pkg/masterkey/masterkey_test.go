package masterkey

import (
	"bytes"
	"context"
	"crypto/rand"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dd0wney/cluso-vaultcrypt/pkg/secret"
)

func sequence(n int, start byte) []byte {
	b := make([]byte, n)
	for i := range b {
		b[i] = start + byte(i)
	}
	return b
}

func TestFromRawSplitsAt32(t *testing.T) {
	raw := sequence(RawSize, 0)
	mk, err := FromRaw(raw)
	require.NoError(t, err)

	enc, err := mk.EncKey()
	require.NoError(t, err)
	encBytes, _ := enc.Encoded()
	assert.Equal(t, raw[:32], encBytes)

	mac, err := mk.MACKey()
	require.NoError(t, err)
	macBytes, _ := mac.Encoded()
	assert.Equal(t, raw[32:], macBytes)

	out, err := mk.Raw()
	require.NoError(t, err)
	assert.Equal(t, raw, out)
}

func TestFromRawRejectsLength(t *testing.T) {
	for _, n := range []int{0, 32, 63, 65} {
		_, err := FromRaw(make([]byte, n))
		assert.ErrorIs(t, err, ErrInvalidKeyLength, "length %d", n)
	}
}

func TestGenerate(t *testing.T) {
	mk, err := Generate(bytes.NewReader(sequence(RawSize, 1)))
	require.NoError(t, err)
	raw, _ := mk.Raw()
	assert.Equal(t, sequence(RawSize, 1), raw)

	_, err = Generate(bytes.NewReader(make([]byte, 10)))
	assert.Error(t, err)
}

func TestPerpetualEqualAndCopy(t *testing.T) {
	a, _ := FromRaw(sequence(RawSize, 0))
	b, _ := FromRaw(sequence(RawSize, 0))
	c, _ := FromRaw(sequence(RawSize, 1))

	assert.True(t, a.Equal(b))
	assert.False(t, a.Equal(c))
	assert.False(t, a.Equal(nil))

	cp, err := a.Copy()
	require.NoError(t, err)
	a.Destroy()
	assert.True(t, a.IsDestroyed())
	assert.False(t, cp.IsDestroyed())
	assert.True(t, cp.Equal(b))
}

func TestPerpetualDestroy(t *testing.T) {
	mk, _ := FromRaw(sequence(RawSize, 7))
	mk.Destroy()

	_, err := mk.EncKey()
	assert.ErrorIs(t, err, secret.ErrDestroyed)
	_, err = mk.MACKey()
	assert.ErrorIs(t, err, secret.ErrDestroyed)
	_, err = mk.Raw()
	assert.ErrorIs(t, err, secret.ErrDestroyed)
	_, err = mk.Copy()
	assert.ErrorIs(t, err, secret.ErrDestroyed)
}

func newTestRevolving(t *testing.T) *RevolvingMasterkey {
	t.Helper()
	mk, err := NewRevolving(map[int32][]byte{
		1: sequence(32, 0),
		2: sequence(32, 100),
	}, sequence(32, 200), 1, 2)
	require.NoError(t, err)
	return mk
}

func TestSubKeyDeterministic(t *testing.T) {
	mk := newTestRevolving(t)

	a, err := mk.SubKey(1, 32, "fileHeader", secret.AlgorithmAES)
	require.NoError(t, err)
	b, err := mk.SubKey(1, 32, "fileHeader", secret.AlgorithmAES)
	require.NoError(t, err)
	assert.True(t, a.Equal(b))

	otherCtx, err := mk.SubKey(1, 32, "rootDirId", secret.AlgorithmAES)
	require.NoError(t, err)
	assert.False(t, a.Equal(otherCtx))

	otherRev, err := mk.SubKey(2, 32, "fileHeader", secret.AlgorithmAES)
	require.NoError(t, err)
	assert.False(t, a.Equal(otherRev))

	long, err := mk.SubKey(1, 64, "fileHeader", secret.AlgorithmAES)
	require.NoError(t, err)
	longBytes, _ := long.Encoded()
	aBytes, _ := a.Encoded()
	assert.Equal(t, aBytes, longBytes[:32])
}

func TestSubKeyUnknownRevision(t *testing.T) {
	mk := newTestRevolving(t)
	_, err := mk.SubKey(3, 32, "fileHeader", secret.AlgorithmAES)
	assert.ErrorIs(t, err, ErrUnknownRevision)
	_, err = mk.SubKey(0, 32, "fileHeader", secret.AlgorithmAES)
	assert.ErrorIs(t, err, ErrUnknownRevision)
}

func TestRevolvingDestroy(t *testing.T) {
	mk := newTestRevolving(t)
	seed := mk.seeds[1]
	salt := mk.kdfSalt

	mk.Destroy()
	assert.True(t, mk.IsDestroyed())
	assert.Equal(t, make([]byte, 32), seed)
	assert.Equal(t, make([]byte, 32), salt)

	_, err := mk.SubKey(1, 32, "fileHeader", secret.AlgorithmAES)
	assert.ErrorIs(t, err, secret.ErrDestroyed)
	_, err = mk.Rotate(rand.Reader)
	assert.ErrorIs(t, err, secret.ErrDestroyed)
	_, err = mk.MarshalPayload()
	assert.ErrorIs(t, err, secret.ErrDestroyed)
	assert.False(t, mk.HasRevision(1))
	_, err = mk.FirstRevision()
	assert.ErrorIs(t, err, secret.ErrDestroyed)
	_, err = mk.CurrentRevision()
	assert.ErrorIs(t, err, secret.ErrDestroyed)
	_, err = mk.Revisions()
	assert.ErrorIs(t, err, secret.ErrDestroyed)
}

func TestRotateKeepsOldSeeds(t *testing.T) {
	mk, err := GenerateRevolving(rand.Reader)
	require.NoError(t, err)
	assert.Equal(t, int32(1), mustRevision(t, mk.FirstRevision))
	assert.Equal(t, int32(1), mustRevision(t, mk.CurrentRevision))

	before, err := mk.SubKey(1, 32, "fileHeader", secret.AlgorithmAES)
	require.NoError(t, err)

	rev, err := mk.Rotate(rand.Reader)
	require.NoError(t, err)
	assert.Equal(t, int32(2), rev)
	assert.Equal(t, int32(2), mustRevision(t, mk.CurrentRevision))
	assert.Equal(t, int32(1), mustRevision(t, mk.FirstRevision))
	revs, err := mk.Revisions()
	require.NoError(t, err)
	assert.Equal(t, []int32{1, 2}, revs)

	after, err := mk.SubKey(1, 32, "fileHeader", secret.AlgorithmAES)
	require.NoError(t, err)
	assert.True(t, before.Equal(after))
}

func TestNewRevolvingValidates(t *testing.T) {
	seeds := map[int32][]byte{1: sequence(32, 0)}

	_, err := NewRevolving(seeds, sequence(16, 0), 1, 1)
	assert.ErrorIs(t, err, ErrInvalidKeyLength)

	_, err = NewRevolving(seeds, sequence(32, 0), 2, 1)
	assert.ErrorIs(t, err, ErrUnknownRevision)

	_, err = NewRevolving(seeds, sequence(32, 0), 1, 5)
	assert.ErrorIs(t, err, ErrUnknownRevision)

	_, err = NewRevolving(map[int32][]byte{1: sequence(31, 0)}, sequence(32, 0), 1, 1)
	assert.ErrorIs(t, err, ErrInvalidKeyLength)
}

func TestSeedIDEncoding(t *testing.T) {
	assert.Equal(t, "AAAAAQ", EncodeSeedID(1))
	for _, rev := range []int32{0, 1, 2, -1, 1 << 30} {
		got, err := DecodeSeedID(EncodeSeedID(rev))
		require.NoError(t, err)
		assert.Equal(t, rev, got)
	}
	_, err := DecodeSeedID("!!")
	assert.ErrorIs(t, err, ErrInvalidPayload)
	_, err = DecodeSeedID("AAAA")
	assert.ErrorIs(t, err, ErrInvalidPayload)
}

func TestPayloadRoundTrip(t *testing.T) {
	mk := newTestRevolving(t)
	data, err := mk.MarshalPayload()
	require.NoError(t, err)

	var fields map[string]any
	require.NoError(t, json.Unmarshal(data, &fields))
	assert.Equal(t, PayloadFileFormat, fields["fileFormat"])
	assert.Equal(t, "AAAAAQ", fields["initialSeed"])
	assert.Equal(t, "AAAAAg", fields["latestSeed"])

	parsed, err := ParseRevolvingPayload(data)
	require.NoError(t, err)
	revs, err := mk.Revisions()
	require.NoError(t, err)
	parsedRevs, err := parsed.Revisions()
	require.NoError(t, err)
	assert.Equal(t, revs, parsedRevs)
	assert.Equal(t, mustRevision(t, mk.CurrentRevision), mustRevision(t, parsed.CurrentRevision))

	for _, rev := range revs {
		want, _ := mk.SubKey(rev, 32, "fileHeader", secret.AlgorithmAES)
		got, err := parsed.SubKey(rev, 32, "fileHeader", secret.AlgorithmAES)
		require.NoError(t, err)
		assert.True(t, want.Equal(got), "revision %d", rev)
	}
}

func TestParsePayloadRejects(t *testing.T) {
	tests := []struct {
		name    string
		payload string
	}{
		{"NotJSON", `{`},
		{"WrongFormat", `{"fileFormat":"AES-128","kdf":"HKDF-SHA512"}`},
		{"WrongKDF", `{"fileFormat":"AES-256-GCM-32k","kdf":"PBKDF2"}`},
		{"BadInitial", `{"fileFormat":"AES-256-GCM-32k","kdf":"HKDF-SHA512","initialSeed":"x"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseRevolvingPayload([]byte(tt.payload))
			assert.ErrorIs(t, err, ErrInvalidPayload)
		})
	}
}

func TestStaticLoader(t *testing.T) {
	l := NewStaticLoader()
	mk, _ := FromRaw(sequence(RawSize, 0))
	l.Add("main", mk)

	got, err := l.LoadKey(context.Background(), "main")
	require.NoError(t, err)
	assert.Same(t, mk, got)

	_, err = l.LoadKey(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrKeyLoadingFailed)

	mk.Destroy()
	_, err = l.LoadKey(context.Background(), "main")
	assert.ErrorIs(t, err, ErrKeyLoadingFailed)
}

func mustRevision(t *testing.T, fn func() (int32, error)) int32 {
	t.Helper()
	rev, err := fn()
	require.NoError(t, err)
	return rev
}
