package audit

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeEvents(t *testing.T, path string, n int) {
	t.Helper()
	trail, err := OpenFileTrail(path)
	require.NoError(t, err)
	defer trail.Close()
	for i := 0; i < n; i++ {
		require.NoError(t, trail.Record(&Event{Action: ActionUnlock, KeyID: "k", Status: StatusSuccess}))
	}
}

func TestTrailChainsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.jsonl")
	writeEvents(t, path, 3)
	writeEvents(t, path, 2)

	n, err := Verify(path)
	require.NoError(t, err)
	assert.Equal(t, int64(5), n)

	trail, err := OpenFileTrail(path)
	require.NoError(t, err)
	defer trail.Close()
	assert.Equal(t, int64(5), trail.Count())
}

func TestRecordFillsDefaults(t *testing.T) {
	trail, err := OpenFileTrail(filepath.Join(t.TempDir(), "audit.jsonl"))
	require.NoError(t, err)
	defer trail.Close()

	first := &Event{Action: ActionCreate, KeyID: "k", Status: StatusSuccess}
	require.NoError(t, trail.Record(first))
	second := &Event{Action: ActionRevoke, KeyID: "k", Status: StatusSuccess, Severity: SeverityWarning}
	require.NoError(t, trail.Record(second))

	assert.NotEmpty(t, first.ID)
	assert.False(t, first.Timestamp.IsZero())
	assert.Equal(t, SeverityInfo, first.Severity)
	assert.Empty(t, first.PreviousHash)
	assert.Equal(t, first.EventHash, second.PreviousHash)
	assert.Equal(t, SeverityWarning, second.Severity)
}

func TestVerifyDetectsTampering(t *testing.T) {
	tests := []struct {
		name   string
		mutate func([][]byte) [][]byte
	}{
		{"modified", func(lines [][]byte) [][]byte {
			lines[1] = bytes.Replace(lines[1], []byte(`"key_id":"k"`), []byte(`"key_id":"x"`), 1)
			return lines
		}},
		{"removed", func(lines [][]byte) [][]byte {
			return append(lines[:1], lines[2:]...)
		}},
		{"reordered", func(lines [][]byte) [][]byte {
			lines[0], lines[1] = lines[1], lines[0]
			return lines
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "audit.jsonl")
			writeEvents(t, path, 3)
			data, err := os.ReadFile(path)
			require.NoError(t, err)
			lines := bytes.Split(bytes.TrimSpace(data), []byte("\n"))
			lines = tt.mutate(lines)
			require.NoError(t, os.WriteFile(path, append(bytes.Join(lines, []byte("\n")), '\n'), 0o600))

			_, err = Verify(path)
			assert.ErrorIs(t, err, ErrChainBroken)
			_, err = OpenFileTrail(path)
			assert.ErrorIs(t, err, ErrChainBroken)
		})
	}
}

func TestRecordAfterClose(t *testing.T) {
	trail, err := OpenFileTrail(filepath.Join(t.TempDir(), "audit.jsonl"))
	require.NoError(t, err)
	require.NoError(t, trail.Close())
	assert.ErrorIs(t, trail.Record(&Event{}), os.ErrClosed)
}
