package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/LuciaGiagnolini12/FileSystem-to-BoDi-sub001/internal/hasher"
)

// timeLayout is the textual form of every timestamp column, always UTC.
const timeLayout = time.RFC3339Nano

// Kind identifies the command a run recorded.
type Kind string

const (
	KindCensus    Kind = "census"
	KindHash      Kind = "hash"
	KindReconcile Kind = "reconcile"
	KindIntegrity Kind = "integrity"
)

// ParseKind validates a kind name given on the command line.
func ParseKind(s string) (Kind, error) {
	switch k := Kind(s); k {
	case KindCensus, KindHash, KindReconcile, KindIntegrity:
		return k, nil
	default:
		return "", fmt.Errorf("unknown run kind %q (want census, hash, reconcile or integrity)", s)
	}
}

// Status is the outcome of a run.
type Status string

const (
	StatusRunning     Status = "running"
	StatusSucceeded   Status = "succeeded"
	StatusFailed      Status = "failed"
	StatusInterrupted Status = "interrupted"
)

// OutcomeStatus maps a command result to the status recorded for its run.
// Cancellation takes precedence over other errors.
func OutcomeStatus(success bool, err error) Status {
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, hasher.ErrInterrupted):
		return StatusInterrupted
	case err != nil, !success:
		return StatusFailed
	default:
		return StatusSucceeded
	}
}

// ErrNotFound is returned when a run ID is unknown.
var ErrNotFound = errors.New("run not found")

// Run is one ledger entry.
type Run struct {
	Seq        int64           `json:"seq"`
	ID         string          `json:"id"`
	Kind       Kind            `json:"kind"`
	Device     string          `json:"device,omitempty"`
	Root       string          `json:"root"`
	Artifact   string          `json:"artifact,omitempty"`
	StartedAt  time.Time       `json:"started_at"`
	FinishedAt *time.Time      `json:"finished_at,omitempty"`
	Status     Status          `json:"status"`
	Summary    json.RawMessage `json:"summary"`
	Error      string          `json:"error,omitempty"`
}

// BeginRun records the start of a run and returns its sequence number.
// Status is forced to running; FinishRun records the outcome.
func (s *Store) BeginRun(ctx context.Context, run Run) (int64, error) {
	if run.ID == "" {
		return 0, errors.New("begin run: empty run ID")
	}
	if run.StartedAt.IsZero() {
		return 0, errors.New("begin run: zero start time")
	}
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO runs (id, kind, device, root, artifact, started_at, status)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`,
		run.ID,
		string(run.Kind),
		run.Device,
		run.Root,
		run.Artifact,
		run.StartedAt.UTC().Format(timeLayout),
		string(StatusRunning),
	)
	if err != nil {
		return 0, fmt.Errorf("begin run %s: %w", run.ID, err)
	}
	seq, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("begin run %s: last insert id: %w", run.ID, err)
	}
	return seq, nil
}

// FinishRun records the outcome of a running run. summary is stored as JSON;
// nil stores an empty object. A run can only be finished once.
func (s *Store) FinishRun(ctx context.Context, id string, status Status, finishedAt time.Time, summary any, runErr error) error {
	if status == StatusRunning {
		return fmt.Errorf("finish run %s: status must be terminal", id)
	}
	summaryJSON := []byte("{}")
	if summary != nil {
		var err error
		if summaryJSON, err = json.Marshal(summary); err != nil {
			return fmt.Errorf("finish run %s: marshal summary: %w", id, err)
		}
	}
	errText := ""
	if runErr != nil {
		errText = runErr.Error()
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE runs
		SET finished_at = ?, status = ?, summary = ?, error = ?
		WHERE id = ? AND status = 'running'
	`,
		finishedAt.UTC().Format(timeLayout),
		string(status),
		string(summaryJSON),
		errText,
		id,
	)
	if err != nil {
		return fmt.Errorf("finish run %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("finish run %s: rows affected: %w", id, err)
	}
	if n == 1 {
		return nil
	}
	if _, err := s.GetRun(ctx, id); err != nil {
		return fmt.Errorf("finish run %s: %w", id, err)
	}
	return fmt.Errorf("finish run %s: already finished", id)
}

const runColumns = `seq, id, kind, device, root, artifact, started_at, finished_at, status, summary, error`

// GetRun returns one run by ID.
func (s *Store) GetRun(ctx context.Context, id string) (Run, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM runs WHERE id = ?`, id)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Run{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return run, err
}

// RunFilter narrows ListRuns. Zero fields match everything.
type RunFilter struct {
	Device string
	Kind   Kind
	Status Status
	Limit  int
}

// ListRuns returns matching runs, most recent first.
// Returns an empty slice (not nil) when nothing matches.
func (s *Store) ListRuns(ctx context.Context, f RunFilter) ([]Run, error) {
	var (
		where []string
		args  []any
	)
	if f.Device != "" {
		where = append(where, "device = ?")
		args = append(args, f.Device)
	}
	if f.Kind != "" {
		where = append(where, "kind = ?")
		args = append(args, string(f.Kind))
	}
	if f.Status != "" {
		where = append(where, "status = ?")
		args = append(args, string(f.Status))
	}

	query := `SELECT ` + runColumns + ` FROM runs`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY seq DESC`
	if f.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, f.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	runs := []Run{}
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate runs: %w", err)
	}
	return runs, nil
}

// DeleteRun removes a run together with its digests and findings.
func (s *Store) DeleteRun(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM runs WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete run %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("delete run: %w: %s", ErrNotFound, id)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (Run, error) {
	var (
		run      Run
		kind     string
		started  string
		finished sql.NullString
		status   string
		summary  string
	)
	err := row.Scan(&run.Seq, &run.ID, &kind, &run.Device, &run.Root, &run.Artifact,
		&started, &finished, &status, &summary, &run.Error)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Run{}, err
		}
		return Run{}, fmt.Errorf("scan run: %w", err)
	}
	run.Kind = Kind(kind)
	run.Status = Status(status)
	run.Summary = json.RawMessage(summary)

	if run.StartedAt, err = time.Parse(timeLayout, started); err != nil {
		return Run{}, fmt.Errorf("scan run %s: started_at: %w", run.ID, err)
	}
	if run.FinishedAt, err = parseNullTime(finished); err != nil {
		return Run{}, fmt.Errorf("scan run %s: finished_at: %w", run.ID, err)
	}
	return run, nil
}

func parseNullTime(ns sql.NullString) (*time.Time, error) {
	if !ns.Valid {
		return nil, nil
	}
	t, err := time.Parse(timeLayout, ns.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func formatNullTime(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: t.UTC().Format(timeLayout), Valid: true}
}
