package integrity

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/LuciaGiagnolini12/FileSystem-to-BoDi-sub001/internal/fault"
	"github.com/LuciaGiagnolini12/FileSystem-to-BoDi-sub001/internal/graph"
	"github.com/LuciaGiagnolini12/FileSystem-to-BoDi-sub001/internal/hasher"
	"github.com/LuciaGiagnolini12/FileSystem-to-BoDi-sub001/internal/testutil"
)

type fakeQuerier struct {
	triples int
	rows    []graph.HashRow
	err     error
}

func (f *fakeQuerier) GraphTripleCount(context.Context, string) (int, error) { return f.triples, nil }

func (f *fakeQuerier) ListHashes(context.Context, string) ([]graph.HashRow, error) {
	return f.rows, f.err
}

func hashed(p, digest string) hasher.FileRecord {
	return hasher.FileRecord{Path: p, Digest: &digest, Size: 1}
}

func snapshot(files ...hasher.FileRecord) *hasher.Snapshot {
	return &hasher.Snapshot{
		Header:     hasher.Header{Root: "/r"},
		Files:      files,
		Statistics: &hasher.Statistics{FilesProcessed: len(files)},
	}
}

func newTestChecker(q Querier) *Checker {
	c := NewChecker(q, "/r")
	c.Now = testutil.NewStepClock(0).Now
	return c
}

func TestChecker_Run(t *testing.T) {
	snap := snapshot(
		hashed("/r/a", "AAAA"),
		hashed("/r/b", "bbbb"),
		hashed("/r/only-local", "cccc"),
		hashed("/r/x/.DS_Store", "ffff"),
		hasher.FileRecord{Path: "/r/broken", Size: 9, Error: "permission denied"},
	)
	q := &fakeQuerier{triples: 10, rows: []graph.HashRow{
		{Path: "/a", Digest: "aaaa"},
		{Path: "b", Digest: "0000"},
		{Path: "/only-graph", Digest: "dddd"},
		{Path: "/y/.DS_Store", Digest: "eeee"},
	}}

	report, err := newTestChecker(q).Run(context.Background(), snap, "urn:g")
	require.NoError(t, err)

	assert.Equal(t, []Finding{
		{Path: "/r/b", Kind: DigestMismatch, SnapshotDigest: "bbbb", GraphDigest: "0000"},
		{Path: "/r/only-graph", Kind: UnexpectedInGraph, GraphDigest: "dddd"},
		{Path: "/r/only-local", Kind: MissingInGraph, SnapshotDigest: "cccc"},
	}, report.Findings)
	assert.Equal(t, []SnapshotError{{Path: "/r/broken", Size: 9, Error: "permission denied"}}, report.SnapshotErrors)
	assert.Equal(t, Summary{
		SnapshotFiles:     3,
		GraphFiles:        3,
		Matches:           1,
		Mismatches:        1,
		MissingInGraph:    1,
		UnexpectedInGraph: 1,
		SnapshotErrors:    1,
		Ignored:           2,
	}, report.Summary)
	assert.False(t, report.Success)
	assert.Equal(t, testutil.Epoch, report.GeneratedAt)
}

func TestChecker_Run_MissingFilesDoNotFail(t *testing.T) {
	snap := snapshot(hashed("/r/a", "aa"), hashed("/r/b", "bb"))
	q := &fakeQuerier{triples: 1, rows: []graph.HashRow{{Path: "/a", Digest: "aa"}}}

	report, err := newTestChecker(q).Run(context.Background(), snap, "urn:g")
	require.NoError(t, err)
	assert.True(t, report.Success)
	assert.Equal(t, 1, report.Summary.MissingInGraph)
}

func TestChecker_Run_EmptyGraph(t *testing.T) {
	_, err := newTestChecker(&fakeQuerier{}).Run(context.Background(), snapshot(), "urn:g")
	assert.True(t, fault.Is(err, fault.KindStructural))
}

func TestChecker_Run_QueryError(t *testing.T) {
	netErr := fault.Errorf(fault.KindNetwork, "sparql query", "", "down")
	_, err := newTestChecker(&fakeQuerier{triples: 1, err: netErr}).Run(context.Background(), snapshot(), "urn:g")
	assert.ErrorIs(t, err, netErr)
}

func TestChecker_Run_SnapshotPathOutsideBase(t *testing.T) {
	_, err := newTestChecker(&fakeQuerier{triples: 1}).Run(context.Background(), snapshot(hashed("../../etc", "aa")), "urn:g")
	assert.True(t, fault.Is(err, fault.KindData))
}

func TestWriteText(t *testing.T) {
	report := &Report{
		GraphURI: "urn:g",
		Base:     "/r",
		Findings: []Finding{
			{Path: "/r/b", Kind: DigestMismatch, SnapshotDigest: "bbbb", GraphDigest: "0000"},
			{Path: "/r/m1", Kind: MissingInGraph},
			{Path: "/r/m2", Kind: MissingInGraph},
			{Path: "/r/m3", Kind: MissingInGraph},
		},
		SnapshotErrors: []SnapshotError{{Path: "/r/broken", Error: "permission denied"}},
		Summary:        Summary{SnapshotFiles: 1234, Mismatches: 1, MissingInGraph: 3, SnapshotErrors: 1},
	}

	var buf bytes.Buffer
	require.NoError(t, WriteText(&buf, report, 2))
	out := buf.String()

	assert.Contains(t, out, "Digest mismatches (1):\n  /b\n    snapshot bbbb\n    graph    0000\n")
	assert.Contains(t, out, "Missing in graph (3):\n  /m1\n  /m2\n  ... 1 more\n")
	assert.Contains(t, out, "  /r/broken: permission denied\n")
	assert.Contains(t, out, "Files in snapshot:   1,234\n")
	assert.Contains(t, out, "Result: FAILURE")
	assert.NotContains(t, out, "Unexpected in graph (")
}
