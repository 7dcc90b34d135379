package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/LuciaGiagnolini12/FileSystem-to-BoDi-sub001/internal/hasher"
)

// DefaultDigestBatch is the number of records buffered per transaction.
const DefaultDigestBatch = 500

// RecordDigests stores file records for a hash run in one transaction.
// Re-recording a path for the same run replaces the earlier row.
func (s *Store) RecordDigests(ctx context.Context, runID string, recs []hasher.FileRecord) error {
	if len(recs) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("record digests: begin tx: %w", err)
	}
	defer tx.Rollback() // No-op if committed

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO file_digests (run_id, path, digest, size, modified, error)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(run_id, path) DO UPDATE SET
			digest = excluded.digest,
			size = excluded.size,
			modified = excluded.modified,
			error = excluded.error
	`)
	if err != nil {
		return fmt.Errorf("record digests: prepare: %w", err)
	}
	defer stmt.Close()

	for _, rec := range recs {
		var digest sql.NullString
		if rec.Digest != nil {
			digest = sql.NullString{String: *rec.Digest, Valid: true}
		}
		if _, err := stmt.ExecContext(ctx, runID, rec.Path, digest, rec.Size, formatNullTime(rec.ModTime), rec.Error); err != nil {
			return fmt.Errorf("record digest %s: %w", rec.Path, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("record digests: commit: %w", err)
	}
	return nil
}

// ListDigests returns the records of a hash run ordered by path.
func (s *Store) ListDigests(ctx context.Context, runID string) ([]hasher.FileRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT path, digest, size, modified, error
		FROM file_digests
		WHERE run_id = ?
		ORDER BY path COLLATE BINARY ASC
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("query digests: %w", err)
	}
	defer rows.Close()

	recs := []hasher.FileRecord{}
	for rows.Next() {
		var (
			rec      hasher.FileRecord
			digest   sql.NullString
			modified sql.NullString
		)
		if err := rows.Scan(&rec.Path, &digest, &rec.Size, &modified, &rec.Error); err != nil {
			return nil, fmt.Errorf("scan digest: %w", err)
		}
		if digest.Valid {
			d := digest.String
			rec.Digest = &d
		}
		if rec.ModTime, err = parseNullTime(modified); err != nil {
			return nil, fmt.Errorf("scan digest %s: modified: %w", rec.Path, err)
		}
		recs = append(recs, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate digests: %w", err)
	}
	return recs, nil
}

// DigestWriter buffers hash records and stores them in batches. It
// implements hasher.RecordSink and, like every sink, is written from a
// single goroutine.
type DigestWriter struct {
	store   *Store
	ctx     context.Context
	runID   string
	size    int
	batch   []hasher.FileRecord
	written int
}

// NewDigestWriter returns a sink recording into runID. Writes are not
// cancelled with ctx so records of files already hashed are kept when a run
// is interrupted. batch <= 0 selects DefaultDigestBatch.
func (s *Store) NewDigestWriter(ctx context.Context, runID string, batch int) *DigestWriter {
	if batch <= 0 {
		batch = DefaultDigestBatch
	}
	return &DigestWriter{
		store: s,
		ctx:   context.WithoutCancel(ctx),
		runID: runID,
		size:  batch,
		batch: make([]hasher.FileRecord, 0, batch),
	}
}

var _ hasher.RecordSink = (*DigestWriter)(nil)

// Write implements hasher.RecordSink.
func (w *DigestWriter) Write(rec hasher.FileRecord) error {
	w.batch = append(w.batch, rec)
	if len(w.batch) >= w.size {
		return w.Flush()
	}
	return nil
}

// Flush stores any buffered records.
func (w *DigestWriter) Flush() error {
	if len(w.batch) == 0 {
		return nil
	}
	if err := w.store.RecordDigests(w.ctx, w.runID, w.batch); err != nil {
		return err
	}
	w.written += len(w.batch)
	w.batch = w.batch[:0]
	return nil
}

// Written returns the number of records stored so far.
func (w *DigestWriter) Written() int {
	return w.written
}
