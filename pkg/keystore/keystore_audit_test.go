package keystore

import (
	"bufio"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dd0wney/cluso-vaultcrypt/pkg/audit"
)

func TestAuditTrail(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	trailPath := filepath.Join(dir, "audit.jsonl")
	trail, err := audit.OpenFileTrail(trailPath)
	require.NoError(t, err)
	defer trail.Close()

	s, err := Open(Config{Dir: filepath.Join(dir, "keys"), Scrypt: fastScrypt, Audit: trail})
	require.NoError(t, err)

	meta, err := s.Create(ctx, KindRevolving, "pw")
	require.NoError(t, err)
	_, err = s.Unlock(ctx, meta.ID, "wrong")
	require.Error(t, err)
	mk, err := s.Unlock(ctx, meta.ID, "pw")
	require.NoError(t, err)
	mk.Destroy()
	_, err = s.Rotate(ctx, meta.ID, "pw")
	require.NoError(t, err)
	require.NoError(t, s.Revoke(ctx, meta.ID))
	require.NoError(t, s.Delete(ctx, meta.ID))

	n, err := audit.Verify(trailPath)
	require.NoError(t, err)
	assert.Equal(t, int64(6), n)

	f, err := os.Open(trailPath)
	require.NoError(t, err)
	defer f.Close()
	var events []audit.Event
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var e audit.Event
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &e))
		events = append(events, e)
	}
	require.Len(t, events, 6)

	type summary struct {
		action audit.Action
		status audit.Status
		sev    audit.Severity
	}
	want := []summary{
		{audit.ActionCreate, audit.StatusSuccess, audit.SeverityInfo},
		{audit.ActionUnlock, audit.StatusFailure, audit.SeverityWarning},
		{audit.ActionUnlock, audit.StatusSuccess, audit.SeverityInfo},
		{audit.ActionRotate, audit.StatusSuccess, audit.SeverityInfo},
		{audit.ActionRevoke, audit.StatusSuccess, audit.SeverityWarning},
		{audit.ActionDelete, audit.StatusSuccess, audit.SeverityCritical},
	}
	for i, e := range events {
		assert.Equal(t, want[i], summary{e.Action, e.Status, e.Severity}, "event %d", i)
		assert.Equal(t, meta.ID, e.KeyID)
	}
	assert.Equal(t, int32(2), events[3].Revision)
	assert.Contains(t, events[1].ErrorMessage, "wrong passphrase")
}
