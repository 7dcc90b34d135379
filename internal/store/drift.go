package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/LuciaGiagnolini12/FileSystem-to-BoDi-sub001/internal/fault"
)

// ErrInsufficientHistory is returned by Drift when a device has fewer than
// two succeeded hash runs.
var ErrInsufficientHistory = errors.New("fewer than two succeeded hash runs")

// ChangeKind classifies a digest change between two hash runs.
type ChangeKind string

const (
	// ChangeModified means size or modification time changed too; the file
	// was most likely rewritten on purpose.
	ChangeModified ChangeKind = "modified"

	// ChangeSuspect means size and modification time are unchanged while
	// the content digest differs: silent corruption.
	ChangeSuspect ChangeKind = "suspect"
)

// Change is one file whose digest differs between two hash runs.
type Change struct {
	Path             string     `json:"path"`
	Kind             ChangeKind `json:"kind"`
	PreviousDigest   string     `json:"previous_digest"`
	CurrentDigest    string     `json:"current_digest"`
	PreviousSize     int64      `json:"previous_size"`
	CurrentSize      int64      `json:"current_size"`
	PreviousModified *time.Time `json:"previous_modified,omitempty"`
	CurrentModified  *time.Time `json:"current_modified,omitempty"`
}

// DriftReport compares the two most recent succeeded hash runs of a device.
type DriftReport struct {
	Device   string   `json:"device"`
	Previous Run      `json:"previous"`
	Current  Run      `json:"current"`
	Compared int      `json:"compared"`
	Added    int      `json:"added"`
	Removed  int      `json:"removed"`
	Changes  []Change `json:"changes"`
}

// Suspects counts changes classified as suspect.
func (r *DriftReport) Suspects() int {
	n := 0
	for _, c := range r.Changes {
		if c.Kind == ChangeSuspect {
			n++
		}
	}
	return n
}

// Drift compares the digests of the two most recent succeeded hash runs of
// device. Only paths hashed successfully in both runs are compared.
func (s *Store) Drift(ctx context.Context, device string) (*DriftReport, error) {
	runs, err := s.ListRuns(ctx, RunFilter{Device: device, Kind: KindHash, Status: StatusSucceeded, Limit: 2})
	if err != nil {
		return nil, err
	}
	if len(runs) < 2 {
		return nil, fault.New(fault.KindData, "drift", device, ErrInsufficientHistory)
	}
	return s.CompareRuns(ctx, runs[1], runs[0])
}

// CompareRuns reports digest changes from prev to cur.
func (s *Store) CompareRuns(ctx context.Context, prev, cur Run) (*DriftReport, error) {
	report := &DriftReport{
		Device:   cur.Device,
		Previous: prev,
		Current:  cur,
		Changes:  []Change{},
	}

	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*)
		FROM file_digests c
		JOIN file_digests p ON p.path = c.path AND p.run_id = ?
		WHERE c.run_id = ? AND c.digest IS NOT NULL AND p.digest IS NOT NULL
	`, prev.ID, cur.ID).Scan(&report.Compared)
	if err != nil {
		return nil, fmt.Errorf("count compared digests: %w", err)
	}

	if report.Added, err = s.countMissingFrom(ctx, cur.ID, prev.ID); err != nil {
		return nil, err
	}
	if report.Removed, err = s.countMissingFrom(ctx, prev.ID, cur.ID); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT c.path, p.digest, c.digest, p.size, c.size, p.modified, c.modified
		FROM file_digests c
		JOIN file_digests p ON p.path = c.path AND p.run_id = ?
		WHERE c.run_id = ?
		  AND c.digest IS NOT NULL AND p.digest IS NOT NULL
		  AND c.digest <> p.digest
		ORDER BY c.path COLLATE BINARY ASC
	`, prev.ID, cur.ID)
	if err != nil {
		return nil, fmt.Errorf("query digest changes: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			ch           Change
			prevModified sql.NullString
			curModified  sql.NullString
		)
		if err := rows.Scan(&ch.Path, &ch.PreviousDigest, &ch.CurrentDigest,
			&ch.PreviousSize, &ch.CurrentSize, &prevModified, &curModified); err != nil {
			return nil, fmt.Errorf("scan digest change: %w", err)
		}
		if ch.PreviousModified, err = parseNullTime(prevModified); err != nil {
			return nil, fmt.Errorf("scan digest change %s: %w", ch.Path, err)
		}
		if ch.CurrentModified, err = parseNullTime(curModified); err != nil {
			return nil, fmt.Errorf("scan digest change %s: %w", ch.Path, err)
		}
		ch.Kind = ChangeModified
		if ch.PreviousSize == ch.CurrentSize && prevModified == curModified {
			ch.Kind = ChangeSuspect
		}
		report.Changes = append(report.Changes, ch)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate digest changes: %w", err)
	}
	return report, nil
}

// countMissingFrom counts paths recorded in run a but not in run b.
func (s *Store) countMissingFrom(ctx context.Context, a, b string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*)
		FROM file_digests x
		WHERE x.run_id = ?
		  AND NOT EXISTS (SELECT 1 FROM file_digests y WHERE y.run_id = ? AND y.path = x.path)
	`, a, b).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count unmatched digests: %w", err)
	}
	return n, nil
}
