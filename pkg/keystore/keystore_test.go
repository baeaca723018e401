package keystore

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dd0wney/cluso-vaultcrypt/pkg/encryption"
	"github.com/dd0wney/cluso-vaultcrypt/pkg/kdf"
	"github.com/dd0wney/cluso-vaultcrypt/pkg/masterkey"
	"github.com/dd0wney/cluso-vaultcrypt/pkg/metrics"
)

// fastScrypt keeps tests quick; real stores use kdf.DefaultScryptParams.
var fastScrypt = kdf.ScryptParams{CostParam: 16, BlockSize: 1}

func openTestStore(t *testing.T, dir string) *Store {
	t.Helper()
	s, err := Open(Config{Dir: dir, Scrypt: fastScrypt})
	require.NoError(t, err)
	return s
}

func TestCreateAndUnlock(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t, t.TempDir())

	for _, kind := range []Kind{KindPerpetual, KindRevolving} {
		t.Run(string(kind), func(t *testing.T) {
			meta, err := s.Create(ctx, kind, "correct horse")
			require.NoError(t, err)
			assert.Equal(t, kind, meta.Kind)
			assert.Equal(t, StatusActive, meta.Status)

			mk, err := s.Unlock(ctx, meta.ID, "correct horse")
			require.NoError(t, err)
			defer mk.Destroy()

			switch kind {
			case KindPerpetual:
				assert.IsType(t, &masterkey.PerpetualMasterkey{}, mk)
			case KindRevolving:
				require.IsType(t, &masterkey.RevolvingMasterkey{}, mk)
				assert.Equal(t, int32(1), meta.Revision)
			}
		})
	}
}

func TestUnlockWrongPassphrase(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t, t.TempDir())
	meta, err := s.Create(ctx, KindPerpetual, "right")
	require.NoError(t, err)

	_, err = s.Unlock(ctx, meta.ID, "wrong")
	require.Error(t, err)
	assert.ErrorIs(t, err, masterkey.ErrKeyLoadingFailed)
	assert.ErrorIs(t, err, encryption.ErrAuthenticationFailed)

	_, err = s.Unlock(ctx, "00000000-0000-0000-0000-000000000000", "right")
	assert.ErrorIs(t, err, ErrKeyNotFound)
}

func TestCreateRejectsEmptyPassphrase(t *testing.T) {
	s := openTestStore(t, t.TempDir())
	_, err := s.Create(context.Background(), KindPerpetual, "")
	assert.ErrorIs(t, err, ErrEmptyPassphrase)
	_, err = s.Create(context.Background(), Kind("quantum"), "x")
	assert.Error(t, err)
}

func TestCanceledContext(t *testing.T) {
	s := openTestStore(t, t.TempDir())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := s.Create(ctx, KindPerpetual, "x")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestReopenLoadsKeys(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	s := openTestStore(t, dir)
	a, err := s.Create(ctx, KindPerpetual, "pw")
	require.NoError(t, err)
	b, err := s.Create(ctx, KindRevolving, "pw")
	require.NoError(t, err)

	original, err := s.Unlock(ctx, a.ID, "pw")
	require.NoError(t, err)
	require.NoError(t, s.Close())

	// stray files are ignored
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0o600))

	reopened := openTestStore(t, dir)
	assert.Len(t, reopened.List(), 2)
	got, err := reopened.Unlock(ctx, a.ID, "pw")
	require.NoError(t, err)
	assert.True(t, original.(*masterkey.PerpetualMasterkey).Equal(got.(*masterkey.PerpetualMasterkey)))

	_, err = reopened.Get(b.ID)
	assert.NoError(t, err)
}

func TestKeyFileLayout(t *testing.T) {
	dir := t.TempDir()
	s := openTestStore(t, dir)
	meta, err := s.Create(context.Background(), KindRevolving, "pw")
	require.NoError(t, err)

	path := filepath.Join(dir, meta.ID+".json")
	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var raw map[string]any
	require.NoError(t, json.Unmarshal(data, &raw))
	for _, field := range []string{"version", "kind", "scrypt_salt", "scrypt_cost_param", "scrypt_block_size", "wrapped_key", "created_at", "status", "revision"} {
		assert.Contains(t, raw, field)
	}
	assert.Equal(t, float64(16), raw["scrypt_cost_param"])
}

func TestWrappedKeyBoundToID(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	s := openTestStore(t, dir)
	a, err := s.Create(ctx, KindPerpetual, "pw")
	require.NoError(t, err)
	b, err := s.Create(ctx, KindPerpetual, "pw")
	require.NoError(t, err)
	require.NoError(t, s.Close())

	// graft a's wrapped key and salt into b's file
	var fa, fb keyFile
	readJSON(t, filepath.Join(dir, a.ID+".json"), &fa)
	readJSON(t, filepath.Join(dir, b.ID+".json"), &fb)
	fb.WrappedKey, fb.ScryptSalt = fa.WrappedKey, fa.ScryptSalt
	writeJSON(t, filepath.Join(dir, b.ID+".json"), &fb)

	reopened := openTestStore(t, dir)
	_, err = reopened.Unlock(ctx, b.ID, "pw")
	assert.ErrorIs(t, err, encryption.ErrAuthenticationFailed)
}

func TestCorruptKeyFile(t *testing.T) {
	dir := t.TempDir()
	id := "7d444840-9dc0-11d1-b245-5ffdce74fad2"
	require.NoError(t, os.WriteFile(filepath.Join(dir, id+".json"), []byte("{not json"), 0o600))
	_, err := Open(Config{Dir: dir, Scrypt: fastScrypt})
	assert.ErrorIs(t, err, ErrCorruptKeyFile)
}

func TestRotateKeepsOldFilesReadable(t *testing.T) {
	ctx := context.Background()
	reg := metrics.NewRegistry()
	s, err := Open(Config{Dir: t.TempDir(), Scrypt: fastScrypt, Metrics: reg})
	require.NoError(t, err)
	meta, err := s.Create(ctx, KindRevolving, "pw")
	require.NoError(t, err)

	before, err := s.Unlock(ctx, meta.ID, "pw")
	require.NoError(t, err)
	ciphertext := encryptWith(t, before, []byte("written at revision one"))

	rev, err := s.Rotate(ctx, meta.ID, "pw")
	require.NoError(t, err)
	assert.Equal(t, int32(2), rev)

	updated, err := s.Get(meta.ID)
	require.NoError(t, err)
	assert.Equal(t, int32(2), updated.Revision)
	require.NotNil(t, updated.RotatedAt)

	after, err := s.Unlock(ctx, meta.ID, "pw")
	require.NoError(t, err)
	rev, err = after.(*masterkey.RevolvingMasterkey).CurrentRevision()
	require.NoError(t, err)
	assert.Equal(t, int32(2), rev)
	assert.Equal(t, "written at revision one", string(decryptWith(t, after, ciphertext)))

	assert.Equal(t, float64(1), testutil.ToFloat64(reg.KeyRotations))
	assert.Equal(t, float64(2), testutil.ToFloat64(reg.ActiveKeyRevision))
	assert.Equal(t, float64(2), testutil.ToFloat64(reg.KeysLoaded.WithLabelValues("success")))
}

func TestRotatePerpetualFails(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t, t.TempDir())
	meta, err := s.Create(ctx, KindPerpetual, "pw")
	require.NoError(t, err)
	_, err = s.Rotate(ctx, meta.ID, "pw")
	assert.ErrorIs(t, err, ErrWrongKind)
}

func TestChangePassphrase(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t, t.TempDir())
	meta, err := s.Create(ctx, KindPerpetual, "old")
	require.NoError(t, err)
	original, err := s.Unlock(ctx, meta.ID, "old")
	require.NoError(t, err)

	assert.Error(t, s.ChangePassphrase(ctx, meta.ID, "guess", "new"))
	assert.ErrorIs(t, s.ChangePassphrase(ctx, meta.ID, "old", ""), ErrEmptyPassphrase)
	require.NoError(t, s.ChangePassphrase(ctx, meta.ID, "old", "new"))

	_, err = s.Unlock(ctx, meta.ID, "old")
	assert.ErrorIs(t, err, masterkey.ErrKeyLoadingFailed)
	got, err := s.Unlock(ctx, meta.ID, "new")
	require.NoError(t, err)
	assert.True(t, original.(*masterkey.PerpetualMasterkey).Equal(got.(*masterkey.PerpetualMasterkey)))
}

func TestRevokeAndDelete(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	s := openTestStore(t, dir)
	meta, err := s.Create(ctx, KindPerpetual, "pw")
	require.NoError(t, err)

	assert.ErrorIs(t, s.Delete(ctx, meta.ID), ErrNotRevoked)
	require.NoError(t, s.Revoke(ctx, meta.ID))
	require.NoError(t, s.Revoke(ctx, meta.ID))

	_, err = s.Unlock(ctx, meta.ID, "pw")
	assert.ErrorIs(t, err, ErrKeyRevoked)
	_, err = s.Rotate(ctx, meta.ID, "pw")
	assert.ErrorIs(t, err, ErrKeyRevoked)

	// revocation survives a reopen
	got, err := openTestStore(t, dir).Get(meta.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusRevoked, got.Status)

	require.NoError(t, s.Delete(ctx, meta.ID))
	_, err = os.Stat(filepath.Join(dir, meta.ID+".json"))
	assert.True(t, os.IsNotExist(err))
	_, err = s.Get(meta.ID)
	assert.ErrorIs(t, err, ErrKeyNotFound)
}

func TestLoadKey(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	s := openTestStore(t, dir)
	meta, err := s.Create(ctx, KindRevolving, "pw")
	require.NoError(t, err)

	_, err = s.LoadKey(ctx, meta.ID)
	assert.ErrorIs(t, err, ErrNoPassphraseFunc)

	loader, err := Open(Config{
		Dir:    dir,
		Scrypt: fastScrypt,
		Passphrase: func(id string) (string, error) {
			if id != meta.ID {
				return "", errors.New("unknown id")
			}
			return "pw", nil
		},
	})
	require.NoError(t, err)

	var l masterkey.Loader = loader
	mk, err := l.LoadKey(ctx, meta.ID)
	require.NoError(t, err)
	assert.False(t, mk.IsDestroyed())

	_, err = l.LoadKey(ctx, "other")
	assert.ErrorIs(t, err, masterkey.ErrKeyLoadingFailed)
}

func TestLoadKeyFailuresAreLoadingFailures(t *testing.T) {
	ctx := context.Background()
	s, err := Open(Config{
		Dir:        t.TempDir(),
		Scrypt:     fastScrypt,
		Passphrase: func(string) (string, error) { return "pw", nil },
	})
	require.NoError(t, err)
	meta, err := s.Create(ctx, KindPerpetual, "pw")
	require.NoError(t, err)

	_, err = s.LoadKey(ctx, "missing")
	assert.ErrorIs(t, err, masterkey.ErrKeyLoadingFailed)
	assert.ErrorIs(t, err, ErrKeyNotFound)

	require.NoError(t, s.Revoke(ctx, meta.ID))
	_, err = s.LoadKey(ctx, meta.ID)
	assert.ErrorIs(t, err, masterkey.ErrKeyLoadingFailed)
	assert.ErrorIs(t, err, ErrKeyRevoked)
}

func TestListAndStatistics(t *testing.T) {
	ctx := context.Background()
	clock := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	s, err := Open(Config{Dir: t.TempDir(), Scrypt: fastScrypt, now: func() time.Time { return clock }})
	require.NoError(t, err)

	first, err := s.Create(ctx, KindPerpetual, "pw")
	require.NoError(t, err)
	clock = clock.Add(time.Hour)
	second, err := s.Create(ctx, KindRevolving, "pw")
	require.NoError(t, err)
	clock = clock.Add(time.Hour)
	_, err = s.Rotate(ctx, second.ID, "pw")
	require.NoError(t, err)
	require.NoError(t, s.Revoke(ctx, first.ID))

	list := s.List()
	require.Len(t, list, 2)
	assert.Equal(t, first.ID, list[0].ID)
	assert.Equal(t, second.ID, list[1].ID)

	stats := s.Statistics()
	assert.Equal(t, 2, stats.TotalKeys)
	assert.Equal(t, 1, stats.ActiveKeys)
	assert.Equal(t, 1, stats.RevokedKeys)
	assert.Equal(t, 1, stats.PerpetualKeys)
	assert.Equal(t, 1, stats.RevolvingKeys)
	assert.Equal(t, int32(2), stats.MaxRevision)
	assert.Equal(t, 2*time.Hour, stats.OldestKeyAge)
	assert.Equal(t, time.Hour, stats.NewestKeyAge)

	rotate, err := s.ShouldRotate(second.ID, 30*time.Minute)
	require.NoError(t, err)
	assert.False(t, rotate)
	clock = clock.Add(time.Hour)
	rotate, err = s.ShouldRotate(second.ID, 30*time.Minute)
	require.NoError(t, err)
	assert.True(t, rotate)

	exported, err := s.ExportMetadata()
	require.NoError(t, err)
	assert.NotContains(t, string(exported), "wrapped_key")
	assert.Contains(t, string(exported), second.ID)
}

func TestKindForScheme(t *testing.T) {
	k, err := KindForScheme(encryption.SchemeGCM)
	require.NoError(t, err)
	assert.Equal(t, KindRevolving, k)
	assert.Equal(t, encryption.SchemeGCM, k.Scheme())

	k, err = KindForScheme(encryption.SchemeCTRHMAC)
	require.NoError(t, err)
	assert.Equal(t, KindPerpetual, k)
	assert.Equal(t, encryption.SchemeCTRHMAC, k.Scheme())
}

func encryptWith(t *testing.T, mk masterkey.Masterkey, pt []byte) []byte {
	t.Helper()
	c, err := encryption.New(encryption.SchemeGCM, mk, nil)
	require.NoError(t, err)
	var out bytes.Buffer
	w, err := encryption.NewEncryptingWriter(&out, c)
	require.NoError(t, err)
	_, err = w.Write(pt)
	require.NoError(t, err)
	require.NoError(t, w.Close())
	return out.Bytes()
}

func decryptWith(t *testing.T, mk masterkey.Masterkey, ct []byte) []byte {
	t.Helper()
	c, err := encryption.New(encryption.SchemeGCM, mk, nil)
	require.NoError(t, err)
	r, err := encryption.NewDecryptingReader(bytes.NewReader(ct), c)
	require.NoError(t, err)
	pt, err := io.ReadAll(r)
	require.NoError(t, err)
	return pt
}

func readJSON(t *testing.T, path string, v any) {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(data, v))
}

func writeJSON(t *testing.T, path string, v any) {
	t.Helper()
	data, err := json.Marshal(v)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, data, 0o600))
}
