package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/LuciaGiagnolini12/FileSystem-to-BoDi-sub001/internal/hasher"
)

var t0 = time.Date(2024, 3, 1, 9, 30, 0, 0, time.UTC)

// createTestStore opens a fresh ledger in a temp directory.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "ledger.db")
	s, err := Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

// beginTestRun records a running run of kind for device.
func beginTestRun(t *testing.T, s *Store, id string, kind Kind, device string, at time.Time) {
	t.Helper()
	_, err := s.BeginRun(context.Background(), Run{
		ID:        id,
		Kind:      kind,
		Device:    device,
		Root:      "/r",
		StartedAt: at,
	})
	require.NoError(t, err, "BeginRun(%s)", id)
}

// hashRun records a succeeded hash run holding recs.
func hashRun(t *testing.T, s *Store, id, device string, at time.Time, recs ...hasher.FileRecord) {
	t.Helper()
	ctx := context.Background()
	beginTestRun(t, s, id, KindHash, device, at)
	require.NoError(t, s.RecordDigests(ctx, id, recs), "RecordDigests(%s)", id)
	require.NoError(t, s.FinishRun(ctx, id, StatusSucceeded, at.Add(time.Minute), nil, nil), "FinishRun(%s)", id)
}

// rec builds a successful file record.
func rec(path, digest string, size int64, mod time.Time) hasher.FileRecord {
	return hasher.FileRecord{Path: path, Digest: &digest, Size: size, ModTime: &mod}
}
