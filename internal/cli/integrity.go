package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/LuciaGiagnolini12/FileSystem-to-BoDi-sub001/internal/hasher"
	"github.com/LuciaGiagnolini12/FileSystem-to-BoDi-sub001/internal/integrity"
	"github.com/LuciaGiagnolini12/FileSystem-to-BoDi-sub001/internal/store"
)

// IntegrityOptions holds flags for the integrity command.
type IntegrityOptions struct {
	*RootOptions
	GraphOptions
	Hashes string
	Limit  int
}

// NewIntegrityCommand creates the integrity command.
func NewIntegrityCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &IntegrityOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "integrity <device|directory>",
		Short: "Compare a hash snapshot with the hash codes in the device graph",
		Long: `Compare every digest of a closed hash snapshot with the SHA-256 hash code
recorded for the same path in the device's named graph.

Files whose digest differs fail the check (exit status 1). Files present on
only one side and snapshot entries without a digest are reported but do not
fail it. ".DS_Store" files are ignored on both sides.

Example:
  fixity integrity floppy
  fixity integrity floppy --hashes /tmp/floppy_HASH.json --limit 0`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runIntegrity(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Hashes, "hashes", "", "hash snapshot path (default: device hash_output)")
	cmd.Flags().IntVar(&opts.Limit, "limit", 20, "findings listed per kind in text output (0 = all)")
	opts.GraphOptions.register(cmd)

	return cmd
}

func runIntegrity(opts *IntegrityOptions, arg string, cmd *cobra.Command) error {
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
	snapPath := opts.Hashes
	if snapPath == "" {
		snapPath = dev.HashOutput
	}
	snap, err := hasher.ReadSnapshot(snapPath)
	if err != nil {
		return sess.out.Fail("failed to read hash snapshot", err)
	}
	base := dev.BasePath
	if base == "" {
		base = snap.Root
	}

	ctx, cancel := sess.signalContext(cmd)
	defer cancel()

	_ = sess.openLedger(false)
	run := sess.beginRun(ctx, store.KindIntegrity, dev, base, snapPath)

	qctx, qcancel := context.WithTimeout(ctx, sess.cfg.Graph.QueryTimeout)
	defer qcancel()

	checker := integrity.NewChecker(sess.graphClient(opts.Endpoints), base)
	checker.Logger = sess.logger
	checker.Now = sess.now

	report, err := checker.Run(qctx, snap, graphURI)
	if err != nil {
		run.finish(ctx, false, nil, err)
		return sess.out.Fail("integrity check could not run", err)
	}

	run.findings(ctx, integrityFindings(report))
	run.finish(ctx, report.Success, report.Summary, nil)

	if sess.out.Format == "json" {
		if report.Success {
			return sess.out.Success(report)
		}
		msg := fmt.Sprintf("%d files differ from the graph", report.Summary.Mismatches)
		_ = sess.out.Failed(msg, report)
		return NewExitError(ExitFailure, msg)
	}

	if err := integrity.WriteText(sess.out.Writer, report, opts.Limit); err != nil {
		return WrapExitError(ExitCommandError, "failed to write report", err)
	}
	if !report.Success {
		return NewExitError(ExitFailure, fmt.Sprintf("%d files differ from the graph", report.Summary.Mismatches))
	}
	return nil
}

// integrityFindings converts findings for the ledger.
func integrityFindings(r *integrity.Report) []store.Finding {
	var out []store.Finding
	for _, f := range r.Findings {
		if f.Kind == integrity.Match {
			continue
		}
		sf, err := store.NewFinding(f.Path, string(f.Kind), map[string]string{
			"snapshot_digest": f.SnapshotDigest,
			"graph_digest":    f.GraphDigest,
		})
		if err != nil {
			continue
		}
		out = append(out, sf)
	}
	for _, e := range r.SnapshotErrors {
		sf, err := store.NewFinding(e.Path, "snapshot_error", map[string]string{"error": e.Error})
		if err != nil {
			continue
		}
		out = append(out, sf)
	}
	return out
}
