package cli

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/LuciaGiagnolini12/FileSystem-to-BoDi-sub001/internal/store"
)

// HistoryOptions holds flags for the history command.
type HistoryOptions struct {
	*RootOptions
	Kind   string
	Status string
	Limit  int
}

// RunDetail is the history show output.
type RunDetail struct {
	Run      store.Run       `json:"run"`
	Findings []store.Finding `json:"findings"`
}

// NewHistoryCommand creates the history command and its subcommands.
func NewHistoryCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &HistoryOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "history [device]",
		Short: "List recorded runs",
		Long: `List the runs recorded in the ledger, most recent first.

Example:
  fixity history
  fixity history floppy --kind hash --limit 5`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			device := ""
			if len(args) == 1 {
				device = args[0]
			}
			return runHistory(opts, device, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Kind, "kind", "", "only runs of this kind (census|hash|reconcile|integrity)")
	cmd.Flags().StringVar(&opts.Status, "status", "", "only runs with this status (running|succeeded|failed|interrupted)")
	cmd.Flags().IntVarP(&opts.Limit, "limit", "n", 20, "maximum runs listed (0 = all)")

	cmd.AddCommand(newHistoryShowCommand(rootOpts))
	cmd.AddCommand(newHistoryDriftCommand(rootOpts))

	return cmd
}

// openHistory creates a session with the ledger required.
func openHistory(cmd *cobra.Command, opts *RootOptions) (*session, error) {
	sess, err := newSession(cmd, opts)
	if err != nil {
		return nil, err
	}
	if err := sess.openLedger(true); err != nil {
		sess.Close()
		return nil, sess.out.Fail("failed to open run ledger", err)
	}
	return sess, nil
}

func runHistory(opts *HistoryOptions, device string, cmd *cobra.Command) error {
	sess, err := openHistory(cmd, opts.RootOptions)
	if err != nil {
		return err
	}
	defer sess.Close()

	filter := store.RunFilter{Device: device, Status: store.Status(opts.Status), Limit: opts.Limit}
	if opts.Kind != "" {
		if filter.Kind, err = store.ParseKind(opts.Kind); err != nil {
			_ = sess.out.Error(ErrCodeConfig, err.Error(), nil)
			return WrapExitError(ExitCommandError, "invalid run kind", err)
		}
	}

	runs, err := sess.ledger.ListRuns(commandContext(cmd), filter)
	if err != nil {
		return sess.out.Fail("failed to list runs", err)
	}

	if sess.out.Format == "json" {
		return sess.out.Success(runs)
	}
	if len(runs) == 0 {
		return sess.out.Success("No runs recorded.")
	}
	return writeRuns(sess.out.Writer, runs)
}

func writeRuns(w io.Writer, runs []store.Run) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "SEQ\tRUN ID\tKIND\tDEVICE\tSTATUS\tSTARTED\tDURATION")
	for _, r := range runs {
		duration := "-"
		if r.FinishedAt != nil {
			duration = r.FinishedAt.Sub(r.StartedAt).Round(time.Second).String()
		}
		device := r.Device
		if device == "" {
			device = "-"
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t%s\t%s\n",
			r.Seq, r.ID, r.Kind, device, r.Status,
			r.StartedAt.Local().Format("2006-01-02 15:04:05"), duration)
	}
	return tw.Flush()
}

func newHistoryShowCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "show <run-id>",
		Short:         "Show one run with its findings",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := openHistory(cmd, rootOpts)
			if err != nil {
				return err
			}
			defer sess.Close()

			ctx := commandContext(cmd)
			run, err := sess.ledger.GetRun(ctx, args[0])
			if err != nil {
				_ = sess.out.Error(ErrCodeData, err.Error(), nil)
				return WrapExitError(ExitCommandError, "run not found", err)
			}
			findings, err := sess.ledger.ListFindings(ctx, run.ID)
			if err != nil {
				return sess.out.Fail("failed to list findings", err)
			}

			detail := RunDetail{Run: run, Findings: findings}
			if sess.out.Format == "json" {
				return sess.out.Success(detail)
			}
			return writeRunDetail(sess.out.Writer, detail)
		},
	}
}

func writeRunDetail(w io.Writer, d RunDetail) error {
	r := d.Run
	var b strings.Builder
	fmt.Fprintf(&b, "Run:      %s (#%d)\n", r.ID, r.Seq)
	fmt.Fprintf(&b, "Kind:     %s\n", r.Kind)
	if r.Device != "" {
		fmt.Fprintf(&b, "Device:   %s\n", r.Device)
	}
	fmt.Fprintf(&b, "Root:     %s\n", r.Root)
	if r.Artifact != "" {
		fmt.Fprintf(&b, "Artifact: %s\n", r.Artifact)
	}
	fmt.Fprintf(&b, "Status:   %s\n", r.Status)
	fmt.Fprintf(&b, "Started:  %s\n", r.StartedAt.Format(time.RFC3339))
	if r.FinishedAt != nil {
		fmt.Fprintf(&b, "Finished: %s\n", r.FinishedAt.Format(time.RFC3339))
	}
	if r.Error != "" {
		fmt.Fprintf(&b, "Error:    %s\n", r.Error)
	}
	fmt.Fprintf(&b, "Summary:  %s\n", r.Summary)
	if _, err := io.WriteString(w, b.String()); err != nil {
		return err
	}
	if len(d.Findings) == 0 {
		return nil
	}

	fmt.Fprintf(w, "\nFindings (%d):\n", len(d.Findings))
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	for _, f := range d.Findings {
		fmt.Fprintf(tw, "  %s\t%s\t%s\n", f.Kind, f.Path, f.Detail)
	}
	return tw.Flush()
}

func newHistoryDriftCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "drift <device>",
		Short: "Compare the digests of the last two hash runs of a device",
		Long: `Compare the digests recorded by the two most recent succeeded hash runs of
a device. A file whose digest changed while its size and modification time
did not is reported as suspect (silent corruption); exit status is then 1.

Example:
  fixity history drift floppy`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := openHistory(cmd, rootOpts)
			if err != nil {
				return err
			}
			defer sess.Close()

			ctx := commandContext(cmd)
			report, err := sess.ledger.Drift(ctx, args[0])
			if err != nil {
				return sess.out.Fail("drift comparison failed", err)
			}

			suspects := report.Suspects()
			if sess.out.Format == "json" {
				if suspects == 0 {
					return sess.out.Success(report)
				}
				msg := fmt.Sprintf("%d files changed content without changing size or modification time", suspects)
				_ = sess.out.Failed(msg, report)
				return NewExitError(ExitFailure, msg)
			}
			if err := writeDrift(sess.out.Writer, report); err != nil {
				return WrapExitError(ExitCommandError, "failed to write report", err)
			}
			if suspects > 0 {
				return NewExitError(ExitFailure, fmt.Sprintf("%d suspect files", suspects))
			}
			return nil
		},
	}
}

func writeDrift(w io.Writer, r *store.DriftReport) error {
	var b strings.Builder
	fmt.Fprintf(&b, "Device:   %s\n", r.Device)
	fmt.Fprintf(&b, "Previous: %s (%s)\n", r.Previous.ID, r.Previous.StartedAt.Format(time.RFC3339))
	fmt.Fprintf(&b, "Current:  %s (%s)\n", r.Current.ID, r.Current.StartedAt.Format(time.RFC3339))
	fmt.Fprintf(&b, "Compared: %d files (%d added, %d removed)\n", r.Compared, r.Added, r.Removed)
	if _, err := io.WriteString(w, b.String()); err != nil {
		return err
	}

	if len(r.Changes) == 0 {
		_, err := io.WriteString(w, "\nNo digest changes.\n")
		return err
	}
	fmt.Fprintf(w, "\nChanged (%d, %d suspect):\n", len(r.Changes), r.Suspects())
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	for _, c := range r.Changes {
		fmt.Fprintf(tw, "  %s\t%s\t%s -> %s\n", c.Kind, c.Path, shortDigest(c.PreviousDigest), shortDigest(c.CurrentDigest))
	}
	return tw.Flush()
}

func shortDigest(d string) string {
	if len(d) > 12 {
		return d[:12]
	}
	return d
}
