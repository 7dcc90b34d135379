package hasher

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/LuciaGiagnolini12/FileSystem-to-BoDi-sub001/internal/fault"
)

// PartialSuffix marks a hash snapshot that is still being written or was
// interrupted.
const PartialSuffix = ".partial"

// ErrIncomplete is wrapped by ReadSnapshot when the snapshot was never
// closed.
var ErrIncomplete = errors.New("hash snapshot is incomplete")

// Header is the leading metadata of a hash snapshot.
type Header struct {
	RunID       string    `json:"run_id,omitempty"`
	Root        string    `json:"root"`
	GeneratedAt time.Time `json:"generated_at"`
	TotalFiles  int       `json:"total_files"`
	HashCommand string    `json:"hash_command"`
	Platform    string    `json:"platform"`
}

// Statistics closes a complete hash snapshot.
type Statistics struct {
	FilesProcessed int `json:"files_processed"`
	Errors         int `json:"errors"`
	Successes      int `json:"successes"`
}

// Snapshot is a fully read hash snapshot.
type Snapshot struct {
	Header
	Files      []FileRecord `json:"files"`
	Statistics *Statistics  `json:"statistics"`
}

// Lookup indexes records by path.
func (s *Snapshot) Lookup() map[string]FileRecord {
	m := make(map[string]FileRecord, len(s.Files))
	for _, f := range s.Files {
		m[f.Path] = f
	}
	return m
}

// StreamWriter appends records to a hash snapshot as they arrive.
//
// Output goes to path+".partial". Finish writes the statistics block that
// closes the JSON document and renames it over path; until then any
// previous snapshot at path is untouched and the partial file does not
// parse.
type StreamWriter struct {
	mu      sync.Mutex
	path    string
	f       *os.File
	w       *bufio.Writer
	stats   Statistics
	written int
	closed  bool
}

// CreateStream starts a snapshot for hdr at path.
func CreateStream(path string, hdr Header) (*StreamWriter, error) {
	partial := path + PartialSuffix
	f, err := os.Create(partial)
	if err != nil {
		return nil, fault.New(fault.KindIO, "create hash snapshot", partial, err)
	}
	sw := &StreamWriter{path: path, f: f, w: bufio.NewWriter(f)}

	head, err := json.MarshalIndent(hdr, "", "  ")
	if err != nil {
		_ = f.Close()
		return nil, fault.New(fault.KindIO, "encode hash snapshot header", partial, err)
	}
	// Reopen the header object so records can follow.
	head = bytes.TrimSuffix(bytes.TrimRight(head, "\n"), []byte("}"))
	head = bytes.TrimRight(head, "\n")
	if _, err := fmt.Fprintf(sw.w, "%s,\n  \"files\": [", head); err != nil {
		_ = f.Close()
		return nil, fault.New(fault.KindIO, "write hash snapshot header", partial, err)
	}
	return sw, nil
}

// Path returns the final snapshot path.
func (sw *StreamWriter) Path() string { return sw.path }

// Write implements RecordSink.
func (sw *StreamWriter) Write(rec FileRecord) error {
	sw.mu.Lock()
	defer sw.mu.Unlock()
	if sw.closed {
		return errors.New("hash snapshot already closed")
	}

	line, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	sep := ",\n    "
	if sw.written == 0 {
		sep = "\n    "
	}
	if _, err := sw.w.WriteString(sep); err != nil {
		return err
	}
	if _, err := sw.w.Write(line); err != nil {
		return err
	}
	sw.written++
	sw.stats.FilesProcessed++
	if rec.OK() {
		sw.stats.Successes++
	} else {
		sw.stats.Errors++
	}
	return nil
}

// Statistics returns the totals written so far.
func (sw *StreamWriter) Statistics() Statistics {
	sw.mu.Lock()
	defer sw.mu.Unlock()
	return sw.stats
}

// Finish closes the document and atomically replaces the final snapshot.
func (sw *StreamWriter) Finish() error {
	sw.mu.Lock()
	defer sw.mu.Unlock()
	if sw.closed {
		return errors.New("hash snapshot already closed")
	}
	sw.closed = true
	partial := sw.path + PartialSuffix

	stats, err := json.MarshalIndent(sw.stats, "  ", "  ")
	if err != nil {
		_ = sw.f.Close()
		return fault.New(fault.KindIO, "encode hash statistics", partial, err)
	}
	closing := "\n  ],\n  \"statistics\": " + string(stats) + "\n}\n"
	if sw.written == 0 {
		closing = "]" + closing[len("\n  ]"):]
	}
	if _, err := sw.w.WriteString(closing); err != nil {
		_ = sw.f.Close()
		return fault.New(fault.KindIO, "write hash statistics", partial, err)
	}
	if err := sw.w.Flush(); err != nil {
		_ = sw.f.Close()
		return fault.New(fault.KindIO, "flush hash snapshot", partial, err)
	}
	if err := sw.f.Sync(); err != nil {
		_ = sw.f.Close()
		return fault.New(fault.KindIO, "sync hash snapshot", partial, err)
	}
	if err := sw.f.Close(); err != nil {
		return fault.New(fault.KindIO, "close hash snapshot", partial, err)
	}
	if err := os.Rename(partial, sw.path); err != nil {
		return fault.New(fault.KindIO, "replace hash snapshot", sw.path, err)
	}
	return nil
}

// Abort flushes what was written and leaves the partial snapshot unclosed.
func (sw *StreamWriter) Abort() error {
	sw.mu.Lock()
	defer sw.mu.Unlock()
	if sw.closed {
		return nil
	}
	sw.closed = true
	partial := sw.path + PartialSuffix
	if err := sw.w.Flush(); err != nil {
		_ = sw.f.Close()
		return fault.New(fault.KindIO, "flush hash snapshot", partial, err)
	}
	if err := sw.f.Close(); err != nil {
		return fault.New(fault.KindIO, "close hash snapshot", partial, err)
	}
	return nil
}

// ReadSnapshot loads a closed hash snapshot. A partial or truncated file
// is a data fault wrapping ErrIncomplete.
func ReadSnapshot(path string) (*Snapshot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fault.New(fault.KindIO, "read hash snapshot", path, err)
	}
	snap, err := DecodeSnapshot(data)
	if err != nil {
		return nil, fault.New(fault.KindData, "decode hash snapshot", path, err)
	}
	return snap, nil
}

// DecodeSnapshot parses and validates hash snapshot JSON.
func DecodeSnapshot(data []byte) (*Snapshot, error) {
	var snap Snapshot
	if err := json.NewDecoder(bytes.NewReader(data)).Decode(&snap); err != nil {
		if errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.EOF) {
			return nil, ErrIncomplete
		}
		return nil, err
	}
	if snap.Statistics == nil {
		return nil, fmt.Errorf("%w: missing statistics", ErrIncomplete)
	}
	if snap.Root == "" {
		return nil, errors.New("missing root")
	}
	for i, f := range snap.Files {
		if f.Path == "" {
			return nil, fmt.Errorf("files[%d]: missing path", i)
		}
	}
	return &snap, nil
}
