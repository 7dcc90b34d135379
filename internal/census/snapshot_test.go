package census

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/LuciaGiagnolini12/FileSystem-to-BoDi-sub001/internal/fault"
	"github.com/LuciaGiagnolini12/FileSystem-to-BoDi-sub001/internal/testutil"
)

func sampleSnapshot(t *testing.T) *Snapshot {
	t.Helper()
	res, err := NewEngine(abTree(t), Mode{Recursive: true}).Run(context.Background(), "/r")
	require.NoError(t, err)
	return NewSnapshot(res, "run-1", testutil.Epoch, &Archive{Device: "floppy", Description: "Floppy disks"})
}

func TestNewSnapshot(t *testing.T) {
	snap := sampleSnapshot(t)

	assert.Equal(t, "/r", snap.Root)
	assert.Equal(t, 4, snap.TotalFiles)
	assert.True(t, snap.Recursive)
	assert.Equal(t, LabelRegularFiles, snap.CountingMode)
	assert.Equal(t, []SnapshotEntry{
		{Path: "/r/A", FileCount: 3},
		{Path: "/r/B", FileCount: 0},
	}, snap.Directories)
}

func TestWriteReadSnapshot_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "counts.json")
	snap := sampleSnapshot(t)

	require.NoError(t, WriteSnapshot(path, snap))
	got, err := ReadSnapshot(path)
	require.NoError(t, err)
	assert.Equal(t, snap, got)
}

func TestWriteSnapshot_ReplacesAtomically(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "counts.json")
	require.NoError(t, os.WriteFile(path, []byte("old"), 0o644))

	require.NoError(t, WriteSnapshot(path, sampleSnapshot(t)))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1, "no temp files left behind")
	_, err = ReadSnapshot(path)
	require.NoError(t, err)
}

func TestWriteSnapshot_MissingDirectory(t *testing.T) {
	err := WriteSnapshot(filepath.Join(t.TempDir(), "nope", "counts.json"), sampleSnapshot(t))
	require.Error(t, err)
	assert.True(t, fault.Is(err, fault.KindIO))
}

func TestReadSnapshot_Errors(t *testing.T) {
	dir := t.TempDir()

	_, err := ReadSnapshot(filepath.Join(dir, "missing.json"))
	assert.True(t, fault.Is(err, fault.KindIO))

	bad := filepath.Join(dir, "bad.json")
	require.NoError(t, os.WriteFile(bad, []byte(`{"root": "/r", "directories": [`), 0o644))
	_, err = ReadSnapshot(bad)
	assert.True(t, fault.Is(err, fault.KindData))
}

func TestDecodeSnapshot_Validation(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{"missing root", `{"counting_mode": "regular_files_only", "directories": []}`},
		{"missing directories", `{"root": "/r", "counting_mode": "regular_files_only"}`},
		{"unknown counting mode", `{"root": "/r", "counting_mode": "weird", "directories": []}`},
		{"empty path", `{"root": "/r", "directories": [{"path": "", "file_count": 1}]}`},
		{"negative count", `{"root": "/r", "directories": [{"path": "/r/a", "file_count": -1}]}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeSnapshot([]byte(tt.data))
			assert.Error(t, err)
		})
	}
}

func TestDecodeSnapshot_Minimal(t *testing.T) {
	snap, err := DecodeSnapshot([]byte(`{"root": "/r", "total_files": 2, "generated_at": "2024-03-01T09:30:00Z", "directories": [{"path": "/r/a", "file_count": 2}]}`))
	require.NoError(t, err)
	assert.Equal(t, 2, snap.TotalFiles)
	assert.Equal(t, time.Date(2024, 3, 1, 9, 30, 0, 0, time.UTC), snap.GeneratedAt)
	assert.Nil(t, snap.Archive)
}
