package census

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/LuciaGiagnolini12/FileSystem-to-BoDi-sub001/internal/fault"
)

// Archive describes the configured device a census was taken of.
type Archive struct {
	Device      string `json:"device"`
	Description string `json:"description,omitempty"`
	HashFile    string `json:"hash_file,omitempty"`
	BasePath    string `json:"base_path,omitempty"`
}

// SnapshotEntry is one directory line of a census snapshot.
type SnapshotEntry struct {
	Path      string `json:"path"`
	FileCount int    `json:"file_count"`
}

// Snapshot is the persisted form of a census: the ground truth that
// reconciliation compares the graph against.
type Snapshot struct {
	RunID        string          `json:"run_id,omitempty"`
	Root         string          `json:"root"`
	TotalFiles   int             `json:"total_files"`
	Recursive    bool            `json:"recursive"`
	CountingMode string          `json:"counting_mode"`
	GeneratedAt  time.Time       `json:"generated_at"`
	Archive      *Archive        `json:"archive,omitempty"`
	Directories  []SnapshotEntry `json:"directories"`
}

// NewSnapshot converts a census result into its persisted form. The root
// itself is represented by TotalFiles and is not repeated in Directories.
func NewSnapshot(res *Result, runID string, now time.Time, archive *Archive) *Snapshot {
	snap := &Snapshot{
		RunID:        runID,
		Root:         res.Root,
		TotalFiles:   res.Total(),
		Recursive:    res.Mode.Recursive,
		CountingMode: res.Mode.Entries.Label(),
		GeneratedAt:  now.UTC(),
		Archive:      archive,
		Directories:  make([]SnapshotEntry, 0, len(res.Directories)),
	}
	for _, d := range res.Directories {
		if d.Path == res.Root {
			continue
		}
		snap.Directories = append(snap.Directories, SnapshotEntry{
			Path:      d.Path,
			FileCount: d.Count(res.Mode.Recursive),
		})
	}
	return snap
}

// WriteSnapshot persists snap to path atomically: the previous snapshot stays
// in place until the new one is fully written and synced.
func WriteSnapshot(path string, snap *Snapshot) (err error) {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return fault.New(fault.KindIO, "create census snapshot", path, err)
	}
	defer func() {
		if err != nil {
			_ = tmp.Close()
			_ = os.Remove(tmp.Name())
		}
	}()

	enc := json.NewEncoder(tmp)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	if err = enc.Encode(snap); err != nil {
		return fault.New(fault.KindIO, "encode census snapshot", path, err)
	}
	if err = tmp.Sync(); err != nil {
		return fault.New(fault.KindIO, "sync census snapshot", path, err)
	}
	if err = tmp.Close(); err != nil {
		return fault.New(fault.KindIO, "close census snapshot", path, err)
	}
	if err = os.Rename(tmp.Name(), path); err != nil {
		return fault.New(fault.KindIO, "replace census snapshot", path, err)
	}
	return nil
}

// ReadSnapshot loads a census snapshot. Malformed content is a data error.
func ReadSnapshot(path string) (*Snapshot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fault.New(fault.KindIO, "read census snapshot", path, err)
	}
	snap, err := DecodeSnapshot(data)
	if err != nil {
		return nil, fault.New(fault.KindData, "decode census snapshot", path, err)
	}
	return snap, nil
}

// DecodeSnapshot parses and validates snapshot JSON.
func DecodeSnapshot(data []byte) (*Snapshot, error) {
	var raw struct {
		Snapshot
		Directories *[]SnapshotEntry `json:"directories"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, err
	}
	snap := raw.Snapshot
	if snap.Root == "" {
		return nil, errors.New("missing root")
	}
	if raw.Directories == nil {
		return nil, errors.New("missing directories")
	}
	snap.Directories = *raw.Directories
	if _, err := ParseEntryFilter(snap.CountingMode); err != nil {
		return nil, fmt.Errorf("counting_mode: %w", err)
	}
	for i, d := range snap.Directories {
		if d.Path == "" {
			return nil, fmt.Errorf("directories[%d]: missing path", i)
		}
		if d.FileCount < 0 {
			return nil, fmt.Errorf("directories[%d]: negative file_count", i)
		}
	}
	return &snap, nil
}
