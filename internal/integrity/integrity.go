// Package integrity compares the digests of a hash snapshot with the
// digests recorded in a device's structure graph.
package integrity

import (
	"context"
	"io"
	"log/slog"
	"path"
	"sort"
	"strings"
	"time"

	"github.com/LuciaGiagnolini12/FileSystem-to-BoDi-sub001/internal/fault"
	"github.com/LuciaGiagnolini12/FileSystem-to-BoDi-sub001/internal/graph"
	"github.com/LuciaGiagnolini12/FileSystem-to-BoDi-sub001/internal/hasher"
	"github.com/LuciaGiagnolini12/FileSystem-to-BoDi-sub001/internal/pathnorm"
)

// Querier is the graph capability the check needs.
type Querier interface {
	GraphTripleCount(ctx context.Context, graphURI string) (int, error)
	ListHashes(ctx context.Context, graphURI string) ([]graph.HashRow, error)
}

// Kind classifies one file.
type Kind string

const (
	Match             Kind = "match"
	DigestMismatch    Kind = "digest_mismatch"
	MissingInGraph    Kind = "missing_in_graph"
	UnexpectedInGraph Kind = "unexpected_in_graph"
)

// Finding is the outcome for one file path.
type Finding struct {
	Path           string `json:"path"`
	Kind           Kind   `json:"kind"`
	SnapshotDigest string `json:"snapshot_digest,omitempty"`
	GraphDigest    string `json:"graph_digest,omitempty"`
}

// SnapshotError is a snapshot entry that carries no digest.
type SnapshotError struct {
	Path  string `json:"path"`
	Size  int64  `json:"size"`
	Error string `json:"error"`
}

// Summary aggregates a report.
type Summary struct {
	SnapshotFiles     int `json:"snapshot_files"`
	GraphFiles        int `json:"graph_files"`
	Matches           int `json:"matches"`
	Mismatches        int `json:"mismatches"`
	MissingInGraph    int `json:"missing_in_graph"`
	UnexpectedInGraph int `json:"unexpected_in_graph"`
	SnapshotErrors    int `json:"snapshot_errors"`
	Ignored           int `json:"ignored"`
}

// Report is the outcome of one integrity check. Success means no file has
// a digest differing from the one in the graph; missing files are reported
// but do not fail the check.
type Report struct {
	GraphURI       string          `json:"graph_uri"`
	Base           string          `json:"base"`
	GeneratedAt    time.Time       `json:"generated_at"`
	Summary        Summary         `json:"summary"`
	Success        bool            `json:"success"`
	Findings       []Finding       `json:"findings"`
	SnapshotErrors []SnapshotError `json:"snapshot_errors"`
}

// DefaultIgnore lists file names never compared.
var DefaultIgnore = []string{".DS_Store"}

// Checker runs integrity checks.
type Checker struct {
	Querier Querier
	Base    string

	// Ignore lists base names skipped on both sides.
	Ignore []string

	Logger *slog.Logger
	Now    func() time.Time
}

// NewChecker creates a checker normalizing paths against base.
func NewChecker(q Querier, base string) *Checker {
	return &Checker{
		Querier: q,
		Base:    base,
		Ignore:  DefaultIgnore,
		Logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
		Now:     time.Now,
	}
}

// Run checks snap against graphURI. Only non-matching findings are listed;
// matches are counted.
func (c *Checker) Run(ctx context.Context, snap *hasher.Snapshot, graphURI string) (*Report, error) {
	logger := c.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	base, err := pathnorm.Base(c.Base)
	if err != nil {
		return nil, fault.New(fault.KindConfiguration, "integrity check", c.Base, err)
	}

	triples, err := c.Querier.GraphTripleCount(ctx, graphURI)
	if err != nil {
		return nil, err
	}
	if triples == 0 {
		return nil, fault.Errorf(fault.KindStructural, "integrity check", graphURI, "graph is missing or empty")
	}

	report := &Report{GraphURI: graphURI, Base: base}
	sum := &report.Summary

	local := make(map[string]string, len(snap.Files))
	for _, f := range snap.Files {
		if c.ignored(f.Path) {
			sum.Ignored++
			continue
		}
		if !f.OK() {
			report.SnapshotErrors = append(report.SnapshotErrors, SnapshotError{Path: f.Path, Size: f.Size, Error: f.Error})
			continue
		}
		p, err := pathnorm.Normalize(f.Path, base)
		if err != nil {
			return nil, fault.New(fault.KindData, "integrity check", f.Path, err)
		}
		local[p] = strings.ToLower(strings.TrimSpace(*f.Digest))
	}

	rows, err := c.Querier.ListHashes(ctx, graphURI)
	if err != nil {
		return nil, err
	}
	remote := make(map[string]string, len(rows))
	for _, r := range rows {
		if c.ignored(r.Path) {
			sum.Ignored++
			continue
		}
		p, err := pathnorm.Normalize(r.Path, base)
		if err != nil {
			logger.Warn("graph path outside base", "path", r.Path, "base", base)
			continue
		}
		remote[p] = r.Digest
	}

	for p, d := range local {
		g, ok := remote[p]
		switch {
		case !ok:
			report.Findings = append(report.Findings, Finding{Path: p, Kind: MissingInGraph, SnapshotDigest: d})
			sum.MissingInGraph++
		case g != d:
			report.Findings = append(report.Findings, Finding{Path: p, Kind: DigestMismatch, SnapshotDigest: d, GraphDigest: g})
			sum.Mismatches++
		default:
			sum.Matches++
		}
	}
	for p, g := range remote {
		if _, ok := local[p]; !ok {
			report.Findings = append(report.Findings, Finding{Path: p, Kind: UnexpectedInGraph, GraphDigest: g})
			sum.UnexpectedInGraph++
		}
	}
	sort.Slice(report.Findings, func(i, j int) bool { return report.Findings[i].Path < report.Findings[j].Path })

	sum.SnapshotFiles = len(local)
	sum.GraphFiles = len(remote)
	sum.SnapshotErrors = len(report.SnapshotErrors)
	report.Success = sum.Mismatches == 0

	now := time.Now
	if c.Now != nil {
		now = c.Now
	}
	report.GeneratedAt = now().UTC()

	logger.Info("integrity check complete",
		"graph", graphURI,
		"success", report.Success,
		"matches", sum.Matches,
		"mismatches", sum.Mismatches,
		"missing", sum.MissingInGraph,
		"unexpected", sum.UnexpectedInGraph,
		"snapshot_errors", sum.SnapshotErrors)
	return report, nil
}

func (c *Checker) ignored(p string) bool {
	name := path.Base(strings.ReplaceAll(p, `\`, "/"))
	for _, ig := range c.Ignore {
		if name == ig {
			return true
		}
	}
	return false
}
