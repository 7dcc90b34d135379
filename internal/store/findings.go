package store

import (
	"context"
	"encoding/json"
	"fmt"
)

// Finding is a non-matching path recorded by a reconcile or integrity run.
// Detail holds the kind-specific values (counts or digests) as JSON.
type Finding struct {
	Path   string          `json:"path"`
	Kind   string          `json:"kind"`
	Detail json.RawMessage `json:"detail,omitempty"`
}

// NewFinding builds a finding with detail marshaled to JSON.
func NewFinding(path, kind string, detail any) (Finding, error) {
	f := Finding{Path: path, Kind: kind}
	if detail != nil {
		data, err := json.Marshal(detail)
		if err != nil {
			return Finding{}, fmt.Errorf("marshal finding detail %s: %w", path, err)
		}
		f.Detail = data
	}
	return f, nil
}

// RecordFindings stores findings for a run in one transaction.
// Duplicate (path, kind) pairs are ignored.
func (s *Store) RecordFindings(ctx context.Context, runID string, findings []Finding) error {
	if len(findings) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("record findings: begin tx: %w", err)
	}
	defer tx.Rollback() // No-op if committed

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO findings (run_id, path, kind, detail)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(run_id, path, kind) DO NOTHING
	`)
	if err != nil {
		return fmt.Errorf("record findings: prepare: %w", err)
	}
	defer stmt.Close()

	for _, f := range findings {
		detail := "{}"
		if len(f.Detail) > 0 {
			detail = string(f.Detail)
		}
		if _, err := stmt.ExecContext(ctx, runID, f.Path, f.Kind, detail); err != nil {
			return fmt.Errorf("record finding %s: %w", f.Path, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("record findings: commit: %w", err)
	}
	return nil
}

// ListFindings returns the findings of a run ordered by path then kind.
func (s *Store) ListFindings(ctx context.Context, runID string) ([]Finding, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT path, kind, detail
		FROM findings
		WHERE run_id = ?
		ORDER BY path COLLATE BINARY ASC, kind ASC
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("query findings: %w", err)
	}
	defer rows.Close()

	findings := []Finding{}
	for rows.Next() {
		var (
			f      Finding
			detail string
		)
		if err := rows.Scan(&f.Path, &f.Kind, &detail); err != nil {
			return nil, fmt.Errorf("scan finding: %w", err)
		}
		f.Detail = json.RawMessage(detail)
		findings = append(findings, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate findings: %w", err)
	}
	return findings, nil
}
