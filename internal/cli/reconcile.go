package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/LuciaGiagnolini12/FileSystem-to-BoDi-sub001/internal/census"
	"github.com/LuciaGiagnolini12/FileSystem-to-BoDi-sub001/internal/config"
	"github.com/LuciaGiagnolini12/FileSystem-to-BoDi-sub001/internal/reconcile"
	"github.com/LuciaGiagnolini12/FileSystem-to-BoDi-sub001/internal/store"
)

// GraphOptions are the flags shared by commands that query the graph.
type GraphOptions struct {
	Endpoints []string
	RootID    string
	GraphURI  string
}

func (g *GraphOptions) register(cmd *cobra.Command) {
	cmd.Flags().StringSliceVar(&g.Endpoints, "endpoint", nil, "SPARQL endpoint (repeatable, overrides config)")
	cmd.Flags().StringVar(&g.RootID, "root-id", "", "graph root identifier (overrides device root_id)")
	cmd.Flags().StringVar(&g.GraphURI, "graph-uri", "", "named graph IRI (overrides prefix + root id)")
}

// target returns the named graph to query for dev.
func (g *GraphOptions) target(cfg *config.Config, dev config.Device) (string, error) {
	if g.GraphURI != "" {
		return g.GraphURI, nil
	}
	if g.RootID != "" {
		dev.RootID = g.RootID
	}
	return dev.GraphURI(cfg.Graph.GraphURIPrefix)
}

// ReconcileOptions holds flags for the reconcile command.
type ReconcileOptions struct {
	*RootOptions
	GraphOptions
	Census           string
	ShowMatches      bool
	IncludeZeroPaths bool
}

// NewReconcileCommand creates the reconcile command.
func NewReconcileCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ReconcileOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "reconcile <device|directory>",
		Short: "Compare a census snapshot with the records in the device graph",
		Long: `Compare the per-directory file counts of a census snapshot with the
number of records the device's named graph places under each record set.

A record counts towards a record set when its path is the record set path or
lies below it on a path-separator boundary, so "/data/foo2" never counts
towards "/data/foo".

Exit status is 1 when any directory is missing from the graph or has a
different number of records, 2 when the check could not be run.

Example:
  fixity reconcile floppy
  fixity reconcile floppy --census /tmp/floppy_COUNT.json --show-matches`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReconcile(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Census, "census", "", "census snapshot path (default: device count_output)")
	cmd.Flags().BoolVar(&opts.ShowMatches, "show-matches", false, "list matching paths too")
	cmd.Flags().BoolVar(&opts.IncludeZeroPaths, "include-zero-paths", false, "report paths with zero files on both sides")
	opts.GraphOptions.register(cmd)

	return cmd
}

func runReconcile(opts *ReconcileOptions, arg string, cmd *cobra.Command) error {
	sess, err := newSession(cmd, opts.RootOptions)
	if err != nil {
		return err
	}
	defer sess.Close()

	dev, err := sess.resolveDevice(arg)
	if err != nil {
		return sess.out.Fail("failed to resolve device", err)
	}
	graphURI, err := opts.target(sess.cfg, dev)
	if err != nil {
		return sess.out.Fail("failed to resolve graph", err)
	}
	snapPath := opts.Census
	if snapPath == "" {
		snapPath = dev.CountOutput
	}
	snap, err := census.ReadSnapshot(snapPath)
	if err != nil {
		return sess.out.Fail("failed to read census snapshot", err)
	}
	base := dev.BasePath
	if base == "" {
		base = snap.Root
	}
	expected, err := reconcile.ExpectedFromSnapshot(snap, base)
	if err != nil {
		return sess.out.Fail("invalid census snapshot", err)
	}

	ctx, cancel := sess.signalContext(cmd)
	defer cancel()

	_ = sess.openLedger(false)
	run := sess.beginRun(ctx, store.KindReconcile, dev, base, snapPath)

	qctx, qcancel := context.WithTimeout(ctx, sess.cfg.Graph.QueryTimeout)
	defer qcancel()

	engine := reconcile.NewEngine(sess.graphClient(opts.Endpoints), base, reconcile.Options{
		IncludeZeroPaths: opts.IncludeZeroPaths || sess.cfg.Reconcile.IncludeZeroPaths,
	})
	engine.Logger = sess.logger
	engine.Now = sess.now

	report, err := engine.Run(qctx, expected, graphURI)
	if err != nil {
		run.finish(ctx, false, nil, err)
		return sess.out.Fail("reconciliation could not run", err)
	}

	run.findings(ctx, reconcileFindings(report))
	run.finish(ctx, report.Success, report.Summary, nil)

	if sess.out.Format == "json" {
		if report.Success {
			return sess.out.Success(report)
		}
		msg := fmt.Sprintf("%d paths differ from the graph", len(report.Failures()))
		_ = sess.out.Failed(msg, report)
		return NewExitError(ExitFailure, msg)
	}

	if err := reconcile.WriteText(sess.out.Writer, report, opts.ShowMatches); err != nil {
		return WrapExitError(ExitCommandError, "failed to write report", err)
	}
	if !report.Success {
		return NewExitError(ExitFailure, fmt.Sprintf("%d paths differ from the graph", len(report.Failures())))
	}
	return nil
}

// reconcileFindings converts non-matching discrepancies for the ledger.
func reconcileFindings(r *reconcile.Report) []store.Finding {
	var out []store.Finding
	for _, d := range r.Discrepancies {
		if d.Kind == reconcile.Match {
			continue
		}
		f, err := store.NewFinding(d.Path, string(d.Kind), map[string]int{
			"expected": d.Expected,
			"observed": d.Observed,
			"diff":     d.Diff,
		})
		if err != nil {
			continue
		}
		out = append(out, f)
	}
	return out
}
