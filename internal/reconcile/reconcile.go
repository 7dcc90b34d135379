// Package reconcile compares census-derived file counts with the records
// ingested into a device's structure graph.
//
// Counts are compared per directory path. Containment is decided with
// pathnorm.IsTrueSubpath so that /data/foo2 never contributes to /data/foo.
// A device whose graph is missing or empty is a structural fault, reported
// before any classification rather than as a wall of missing paths.
package reconcile

import (
	"context"
	"io"
	"log/slog"
	"sort"
	"time"

	"github.com/LuciaGiagnolini12/FileSystem-to-BoDi-sub001/internal/fault"
	"github.com/LuciaGiagnolini12/FileSystem-to-BoDi-sub001/internal/graph"
	"github.com/LuciaGiagnolini12/FileSystem-to-BoDi-sub001/internal/pathnorm"
)

// Querier is the read-only graph capability reconciliation needs.
// *graph.Client satisfies it.
type Querier interface {
	GraphTripleCount(ctx context.Context, graphURI string) (int, error)
	ListRecords(ctx context.Context, graphURI string) ([]graph.RecordRow, error)
}

// Kind classifies one path.
type Kind string

const (
	Match             Kind = "match"
	MissingInGraph    Kind = "missing_in_graph"
	UnexpectedInGraph Kind = "unexpected_in_graph"
	CountMismatch     Kind = "count_mismatch"

	// BothZero is only reported when Options.IncludeZeroPaths is set.
	BothZero Kind = "both_zero"
)

// Discrepancy is the classification of one path. Diff is observed minus
// expected.
type Discrepancy struct {
	Path     string `json:"path"`
	Kind     Kind   `json:"kind"`
	Expected int    `json:"expected"`
	Observed int    `json:"observed"`
	Diff     int    `json:"diff"`
}

// Summary aggregates a report.
type Summary struct {
	Matches    int `json:"matches"`
	Mismatches int `json:"mismatches"`
	Missing    int `json:"missing"`
	Unexpected int `json:"unexpected"`
	BothZero   int `json:"both_zero,omitempty"`

	RecordSets            int `json:"recordsets"`
	Records               int `json:"records"`
	FalsePositivesAvoided int `json:"false_positives_avoided"`
	OrphanRecords         int `json:"orphan_records"`
	InvalidPaths          int `json:"invalid_paths,omitempty"`
}

// Report is the outcome of one reconciliation run.
type Report struct {
	GraphURI      string        `json:"graph_uri"`
	Base          string        `json:"base"`
	GraphTriples  int           `json:"graph_triples"`
	GeneratedAt   time.Time     `json:"generated_at"`
	Summary       Summary       `json:"summary"`
	Success       bool          `json:"success"`
	Discrepancies []Discrepancy `json:"discrepancies"`
}

// Failures returns the discrepancies that make the run fail.
func (r *Report) Failures() []Discrepancy {
	var out []Discrepancy
	for _, d := range r.Discrepancies {
		if d.Kind == MissingInGraph || d.Kind == CountMismatch {
			out = append(out, d)
		}
	}
	return out
}

// Options tunes classification.
type Options struct {
	// IncludeZeroPaths reports paths with zero expected and zero observed
	// files as BothZero entries instead of dropping them.
	IncludeZeroPaths bool
}

// Engine reconciles one device at a time.
type Engine struct {
	Querier Querier
	Base    string
	Options Options
	Logger  *slog.Logger
	Now     func() time.Time
}

// NewEngine creates an engine normalizing graph paths against base.
func NewEngine(q Querier, base string, opts Options) *Engine {
	return &Engine{
		Querier: q,
		Base:    base,
		Options: opts,
		Logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
		Now:     time.Now,
	}
}

// Run reconciles expected against the records in graphURI.
//
// Network faults from the querier are returned unchanged. A graph with no
// triples is a structural fault. Otherwise the full report is returned and
// Report.Success carries the verdict.
func (e *Engine) Run(ctx context.Context, expected ExpectedState, graphURI string) (*Report, error) {
	logger := e.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	base, err := pathnorm.Base(e.Base)
	if err != nil {
		return nil, fault.New(fault.KindConfiguration, "reconcile", e.Base, err)
	}

	triples, err := e.Querier.GraphTripleCount(ctx, graphURI)
	if err != nil {
		return nil, err
	}
	if triples == 0 {
		return nil, fault.Errorf(fault.KindStructural, "reconcile", graphURI, "graph is missing or empty")
	}
	logger.Info("graph found", "graph", graphURI, "triples", triples)

	rows, err := e.Querier.ListRecords(ctx, graphURI)
	if err != nil {
		return nil, err
	}
	observed, diag, err := Observe(rows, base)
	if err != nil {
		return nil, err
	}
	for _, p := range diag.InvalidPaths {
		logger.Warn("graph path outside base", "path", p, "base", base)
	}
	if diag.FalsePositivesAvoided > 0 {
		logger.Debug("prefix-only matches excluded", "count", diag.FalsePositivesAvoided)
	}

	discrepancies, summary := Classify(expected, observed, e.Options)
	summary.RecordSets = diag.RecordSets
	summary.Records = diag.Records
	summary.FalsePositivesAvoided = diag.FalsePositivesAvoided
	summary.OrphanRecords = diag.OrphanRecords
	summary.InvalidPaths = len(diag.InvalidPaths)

	now := time.Now
	if e.Now != nil {
		now = e.Now
	}
	report := &Report{
		GraphURI:      graphURI,
		Base:          base,
		GraphTriples:  triples,
		GeneratedAt:   now().UTC(),
		Summary:       summary,
		Success:       summary.Mismatches == 0 && summary.Missing == 0,
		Discrepancies: discrepancies,
	}
	logger.Info("reconciliation complete",
		"graph", graphURI,
		"success", report.Success,
		"matches", summary.Matches,
		"mismatches", summary.Mismatches,
		"missing", summary.Missing,
		"unexpected", summary.Unexpected)
	return report, nil
}

// Classify compares the union of expected and observed paths. The result is
// ordered by path.
func Classify(expected ExpectedState, observed ObservedState, opts Options) ([]Discrepancy, Summary) {
	paths := make([]string, 0, len(expected)+len(observed))
	for p := range expected {
		paths = append(paths, p)
	}
	for p := range observed {
		if _, ok := expected[p]; !ok {
			paths = append(paths, p)
		}
	}
	sort.Strings(paths)

	var sum Summary
	out := make([]Discrepancy, 0, len(paths))
	for _, p := range paths {
		exp, obs := expected[p], observed[p]
		d := Discrepancy{Path: p, Expected: exp, Observed: obs, Diff: obs - exp}
		switch {
		case exp == 0 && obs == 0:
			if !opts.IncludeZeroPaths {
				continue
			}
			d.Kind = BothZero
			sum.BothZero++
		case exp == obs:
			d.Kind = Match
			sum.Matches++
		case obs == 0:
			d.Kind = MissingInGraph
			sum.Missing++
		case exp == 0:
			d.Kind = UnexpectedInGraph
			sum.Unexpected++
		default:
			d.Kind = CountMismatch
			sum.Mismatches++
		}
		out = append(out, d)
	}
	return out, sum
}
