package cli

import (
	"fmt"
	"runtime"
	"strings"
	"time"

	"github.com/go-git/go-billy/v5/osfs"
	"github.com/spf13/cobra"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/LuciaGiagnolini12/FileSystem-to-BoDi-sub001/internal/config"
	"github.com/LuciaGiagnolini12/FileSystem-to-BoDi-sub001/internal/fault"
	"github.com/LuciaGiagnolini12/FileSystem-to-BoDi-sub001/internal/hasher"
	"github.com/LuciaGiagnolini12/FileSystem-to-BoDi-sub001/internal/store"
)

// HashOptions holds flags for the hash command.
type HashOptions struct {
	*RootOptions
	Output      string
	Workers     int
	FileTimeout time.Duration
	Digester    string
}

// HashResult is the hash command output.
type HashResult struct {
	Device    string       `json:"device"`
	Root      string       `json:"root"`
	Output    string       `json:"output"`
	Digester  string       `json:"digester"`
	Workers   int          `json:"workers"`
	Total     int          `json:"total_files"`
	Successes int          `json:"successes"`
	Errors    int          `json:"errors"`
	Elapsed   string       `json:"elapsed"`
	Failed    []FailedFile `json:"failed,omitempty"`
}

// FailedFile is a file that could not be hashed.
type FailedFile struct {
	Path  string `json:"path"`
	Error string `json:"error"`
}

// NewHashCommand creates the hash command.
func NewHashCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &HashOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "hash <device|directory>",
		Short: "Compute the SHA-256 digest of every file of a device",
		Long: `Enumerate a device root and hash every regular file, largest first.

Records are streamed to "<output>.partial" as files complete; the snapshot is
closed with its statistics block and renamed into place only when every file
has a record. Files that cannot be read, are symbolic links, or exceed the
per-file timeout get an error record instead of a digest.

On interruption no further files are started, files already being hashed
are finished, and the partial snapshot is left unclosed.

Example:
  fixity hash floppy
  fixity hash /media/archive/FloppyDisks --workers 4 --file-timeout 30m`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runHash(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVarP(&opts.Output, "output", "o", "", "hash snapshot path (default: device hash_output)")
	cmd.Flags().IntVarP(&opts.Workers, "workers", "w", 0, "concurrent files (default: config, else CPUs - 2)")
	cmd.Flags().DurationVar(&opts.FileTimeout, "file-timeout", 0, "per-file digest timeout (default: config)")
	cmd.Flags().StringVar(&opts.Digester, "digester", "", "digest implementation (native|command)")

	return cmd
}

func runHash(opts *HashOptions, arg string, cmd *cobra.Command) error {
	sess, err := newSession(cmd, opts.RootOptions)
	if err != nil {
		return err
	}
	defer sess.Close()

	dev, err := sess.resolveDevice(arg)
	if err != nil {
		return sess.out.Fail("failed to resolve device", err)
	}
	settings := sess.cfg.Hash
	if opts.Workers > 0 {
		settings.Workers = opts.Workers
	}
	if opts.FileTimeout > 0 {
		settings.FileTimeout = opts.FileTimeout
	}
	if opts.Digester != "" {
		settings.Digester = opts.Digester
	}
	digester, err := newDigester(settings.Digester)
	if err != nil {
		return sess.out.Fail("invalid hash settings", err)
	}
	output := opts.Output
	if output == "" {
		output = dev.HashOutput
	}

	ctx, cancel := sess.signalContext(cmd)
	defer cancel()

	// The file list comes from a census walk; counts are not needed here.
	fs := osfs.New("/")
	walker, err := newCensusEngine(fs, config.Census{Counter: "native", Secondary: "none", Recursive: true, Entries: "regular"})
	if err != nil {
		return sess.out.Fail("invalid census settings", err)
	}
	walker.Logger = sess.logger
	res, err := walker.Run(ctx, dev.Path)
	if err != nil {
		return sess.out.Fail("failed to enumerate files", err)
	}

	_ = sess.openLedger(false)
	run := sess.beginRun(ctx, store.KindHash, dev, res.Root, output)

	sw, err := hasher.CreateStream(output, hasher.Header{
		RunID:       run.id,
		Root:        res.Root,
		GeneratedAt: sess.now().UTC(),
		TotalFiles:  len(res.Files),
		HashCommand: digester.Name(),
		Platform:    runtime.GOOS,
	})
	if err != nil {
		run.finish(ctx, false, nil, err)
		return sess.out.Fail("failed to create hash snapshot", err)
	}

	var failed []FailedFile
	sinks := []hasher.RecordSink{sw, hasher.SinkFunc(func(rec hasher.FileRecord) error {
		if !rec.OK() {
			failed = append(failed, FailedFile{Path: rec.Path, Error: rec.Error})
		}
		return nil
	})}
	// Ledger failures disable the ledger copy only; the snapshot keeps going.
	var ledgerSink *hasher.BestEffortSink
	digests := run.digestSink(ctx)
	if digests != nil {
		ledgerSink = &hasher.BestEffortSink{Sink: digests, OnError: func(err error) {
			sess.logger.Warn("stopped recording digests in the ledger", "run_id", run.id, "error", err)
		}}
		sinks = append(sinks, ledgerSink)
	}

	h := hasher.New(digester, hasher.Options{
		Workers:          settings.Workers,
		FileTimeout:      settings.FileTimeout,
		ProgressEvery:    settings.ProgressEvery,
		ProgressInterval: settings.ProgressInterval,
		Progress:         progressLogger(sess),
	})
	h.Logger = sess.logger

	sess.logger.Info("hashing started",
		"device", dev.Name,
		"root", res.Root,
		"files", len(res.Files),
		"workers", h.Options.Workers,
		"digester", digester.Name(),
		"run_id", run.id)

	stats, runErr := h.Run(ctx, res.Files, hasher.MultiSink(sinks...))
	if ledgerSink != nil && ledgerSink.Err() == nil {
		if err := digests.Flush(); err != nil {
			sess.logger.Warn("failed to record digests", "run_id", run.id, "error", err)
		}
	}

	result := HashResult{
		Device:   dev.Name,
		Root:     res.Root,
		Output:   output,
		Digester: digester.Name(),
		Workers:  h.Options.Workers,
		Failed:   failed,
	}
	if stats != nil {
		result.Total = stats.Total
		result.Successes = stats.Successes
		result.Errors = stats.Errors
		result.Elapsed = stats.Elapsed.Round(time.Millisecond).String()
	}

	if runErr != nil {
		if err := sw.Abort(); err != nil {
			sess.logger.Warn("failed to flush partial snapshot", "path", sw.Path(), "error", err)
		}
		run.finish(ctx, false, result, runErr)
		return sess.out.Fail(fmt.Sprintf("hashing stopped, partial snapshot left at %s", sw.Path()), runErr)
	}
	if err := sw.Finish(); err != nil {
		run.finish(ctx, false, result, err)
		return sess.out.Fail("failed to finish hash snapshot", err)
	}
	run.finish(ctx, true, result, nil)

	if sess.out.Format == "json" {
		return sess.out.Success(result)
	}
	return sess.out.Success(formatHash(result))
}

// newDigester maps a digester name to an implementation.
func newDigester(name string) (hasher.Digester, error) {
	switch name {
	case "", "native":
		return hasher.SHA256Digester{}, nil
	case "command":
		return hasher.NewCommandDigester(runtime.GOOS), nil
	default:
		return nil, fault.Errorf(fault.KindConfiguration, "hash digester", name, "unknown digester (want native or command)")
	}
}

// progressLogger logs hashing progress at info level.
func progressLogger(sess *session) func(hasher.Progress) {
	return func(p hasher.Progress) {
		sess.logger.Info("hash progress",
			"completed", p.Completed,
			"total", p.Total,
			"percent", fmt.Sprintf("%.1f", p.Percent()),
			"errors", p.Errors,
			"elapsed", p.Elapsed.Round(time.Second).String(),
			"eta", p.ETA.Round(time.Second).String())
	}
}

func formatHash(r HashResult) string {
	p := message.NewPrinter(language.English)
	var b strings.Builder
	p.Fprintf(&b, "Hashed %s", r.Root)
	if r.Device != "" {
		p.Fprintf(&b, " (device %s)", r.Device)
	}
	b.WriteString("\n")
	p.Fprintf(&b, "  Files:     %d\n", r.Total)
	p.Fprintf(&b, "  Succeeded: %d\n", r.Successes)
	p.Fprintf(&b, "  Errors:    %d\n", r.Errors)
	p.Fprintf(&b, "  Elapsed:   %s\n", r.Elapsed)
	p.Fprintf(&b, "  Snapshot:  %s\n", r.Output)
	for _, f := range r.Failed {
		fmt.Fprintf(&b, "  Failed %s: %s\n", f.Path, f.Error)
	}
	return strings.TrimSuffix(b.String(), "\n")
}
