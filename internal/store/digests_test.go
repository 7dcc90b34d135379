package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/LuciaGiagnolini12/FileSystem-to-BoDi-sub001/internal/hasher"
)

func TestRecordDigests_RoundTrip(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	beginTestRun(t, s, "h", KindHash, "d", t0)

	failed := hasher.FileRecord{Path: "/r/b", Size: 7, Error: "permission denied"}
	require.NoError(t, s.RecordDigests(ctx, "h", []hasher.FileRecord{
		rec("/r/c", "cc", 3, t0),
		failed,
		rec("/r/a", "aa", 1, t0),
	}))

	got, err := s.ListDigests(ctx, "h")
	require.NoError(t, err)
	require.Len(t, got, 3)

	assert.Equal(t, "/r/a", got[0].Path)
	require.NotNil(t, got[0].Digest)
	assert.Equal(t, "aa", *got[0].Digest)
	require.NotNil(t, got[0].ModTime)
	assert.True(t, got[0].ModTime.Equal(t0))

	assert.Equal(t, "/r/b", got[1].Path)
	assert.Nil(t, got[1].Digest)
	assert.Nil(t, got[1].ModTime)
	assert.Equal(t, int64(7), got[1].Size)
	assert.Equal(t, "permission denied", got[1].Error)

	assert.Equal(t, "/r/c", got[2].Path)
}

func TestRecordDigests_ReplacesPath(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	beginTestRun(t, s, "h", KindHash, "d", t0)

	require.NoError(t, s.RecordDigests(ctx, "h", []hasher.FileRecord{rec("/r/a", "old", 1, t0)}))
	require.NoError(t, s.RecordDigests(ctx, "h", []hasher.FileRecord{rec("/r/a", "new", 2, t0)}))

	got, err := s.ListDigests(ctx, "h")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "new", *got[0].Digest)
	assert.Equal(t, int64(2), got[0].Size)
}

func TestRecordDigests_Empty(t *testing.T) {
	s := createTestStore(t)
	assert.NoError(t, s.RecordDigests(context.Background(), "unknown", nil))
}

func TestRecordDigests_UnknownRun(t *testing.T) {
	s := createTestStore(t)
	err := s.RecordDigests(context.Background(), "unknown", []hasher.FileRecord{rec("/r/a", "aa", 1, t0)})
	assert.Error(t, err)
}

func TestListDigests_EmptyNotNil(t *testing.T) {
	s := createTestStore(t)
	got, err := s.ListDigests(context.Background(), "none")
	require.NoError(t, err)
	assert.NotNil(t, got)
	assert.Empty(t, got)
}

func TestDigestWriter_Batches(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	beginTestRun(t, s, "h", KindHash, "d", t0)

	w := s.NewDigestWriter(ctx, "h", 2)
	var sink hasher.RecordSink = w

	require.NoError(t, sink.Write(rec("/r/a", "aa", 1, t0)))
	assert.Equal(t, 0, w.Written())
	require.NoError(t, sink.Write(rec("/r/b", "bb", 1, t0)))
	assert.Equal(t, 2, w.Written(), "full batch flushed")
	require.NoError(t, sink.Write(rec("/r/c", "cc", 1, t0)))
	assert.Equal(t, 2, w.Written())

	require.NoError(t, w.Flush())
	assert.Equal(t, 3, w.Written())
	require.NoError(t, w.Flush(), "flushing an empty buffer is a no-op")

	got, err := s.ListDigests(ctx, "h")
	require.NoError(t, err)
	assert.Len(t, got, 3)
}

func TestDigestWriter_SurvivesCancellation(t *testing.T) {
	s := createTestStore(t)
	beginTestRun(t, s, "h", KindHash, "d", t0)

	ctx, cancel := context.WithCancel(context.Background())
	w := s.NewDigestWriter(ctx, "h", 0)
	require.NoError(t, w.Write(rec("/r/a", "aa", 1, t0)))
	cancel()
	require.NoError(t, w.Flush())

	got, err := s.ListDigests(context.Background(), "h")
	require.NoError(t, err)
	assert.Len(t, got, 1)
}

func TestFindings_RoundTrip(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	beginTestRun(t, s, "r", KindReconcile, "d", t0)

	short, err := NewFinding("/r/B", "count_mismatch", map[string]int{"expected": 3, "observed": 2})
	require.NoError(t, err)
	require.NoError(t, s.RecordFindings(ctx, "r", []Finding{
		short,
		{Path: "/r/A", Kind: "missing_in_graph"},
		short,
	}))

	got, err := s.ListFindings(ctx, "r")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "/r/A", got[0].Path)
	assert.JSONEq(t, `{}`, string(got[0].Detail))
	assert.Equal(t, "count_mismatch", got[1].Kind)
	assert.JSONEq(t, `{"expected":3,"observed":2}`, string(got[1].Detail))
}

func TestNewFinding_NilDetail(t *testing.T) {
	f, err := NewFinding("/r/a", "match", nil)
	require.NoError(t, err)
	assert.Nil(t, f.Detail)
}
