package cli

import (
	"fmt"
	"strings"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/osfs"
	"github.com/spf13/cobra"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/LuciaGiagnolini12/FileSystem-to-BoDi-sub001/internal/census"
	"github.com/LuciaGiagnolini12/FileSystem-to-BoDi-sub001/internal/config"
	"github.com/LuciaGiagnolini12/FileSystem-to-BoDi-sub001/internal/fault"
	"github.com/LuciaGiagnolini12/FileSystem-to-BoDi-sub001/internal/pathnorm"
	"github.com/LuciaGiagnolini12/FileSystem-to-BoDi-sub001/internal/store"
)

// CensusOptions holds flags for the census command.
type CensusOptions struct {
	*RootOptions
	Output    string
	Direct    bool
	Entries   string
	Counter   string
	Secondary string
	Tree      bool
}

// CensusResult is the census command output.
type CensusResult struct {
	Device       string           `json:"device"`
	Root         string           `json:"root"`
	Output       string           `json:"output"`
	TotalFiles   int              `json:"total_files"`
	Directories  int              `json:"directories"`
	Recursive    bool             `json:"recursive"`
	CountingMode string           `json:"counting_mode"`
	Counter      string           `json:"counter"`
	Warnings     []CensusWarning  `json:"warnings,omitempty"`
	Recounts     []census.Recount `json:"recounts,omitempty"`
}

// CensusWarning is a directory skipped during the census.
type CensusWarning struct {
	Path  string `json:"path"`
	Error string `json:"error"`
}

// NewCensusCommand creates the census command.
func NewCensusCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &CensusOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "census <device|directory>",
		Short: "Count the files of every directory of a device",
		Long: `Walk a device root and record the number of files in every directory.

The census snapshot is the ground truth that "fixity reconcile" compares the
graph against. It is replaced atomically; an interrupted census leaves the
previous snapshot in place.

A zero count for a directory that visibly has entries is re-checked with the
secondary counter and the corrected value is kept.

Example:
  fixity census floppy
  fixity census /media/archive/FloppyDisks -o floppy_COUNT.json --direct
  fixity census floppy --tree`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCensus(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVarP(&opts.Output, "output", "o", "", "census snapshot path (default: device count_output)")
	cmd.Flags().BoolVar(&opts.Direct, "direct", false, "count direct children only instead of all descendants")
	cmd.Flags().StringVar(&opts.Entries, "entries", "", "entries counted as files (regular|non-directory)")
	cmd.Flags().StringVar(&opts.Counter, "counter", "", "primary counter (native|find)")
	cmd.Flags().StringVar(&opts.Secondary, "secondary", "", "counter re-checking suspicious zeros (native|find|none)")
	cmd.Flags().BoolVar(&opts.Tree, "tree", false, "draw the directory tree with counts (text output)")

	return cmd
}

func runCensus(opts *CensusOptions, arg string, cmd *cobra.Command) error {
	sess, err := newSession(cmd, opts.RootOptions)
	if err != nil {
		return err
	}
	defer sess.Close()

	dev, err := sess.resolveDevice(arg)
	if err != nil {
		return sess.out.Fail("failed to resolve device", err)
	}
	settings := sess.cfg.Census
	if opts.Direct {
		settings.Recursive = false
	}
	if opts.Entries != "" {
		settings.Entries = opts.Entries
	}
	if opts.Counter != "" {
		settings.Counter = opts.Counter
	}
	if opts.Secondary != "" {
		settings.Secondary = opts.Secondary
	}
	output := opts.Output
	if output == "" {
		output = dev.CountOutput
	}

	fs := osfs.New("/")
	engine, err := newCensusEngine(fs, settings)
	if err != nil {
		return sess.out.Fail("invalid census settings", err)
	}
	engine.Logger = sess.logger

	ctx, cancel := sess.signalContext(cmd)
	defer cancel()

	_ = sess.openLedger(false)
	run := sess.beginRun(ctx, store.KindCensus, dev, dev.Path, output)

	sess.logger.Info("census started", "device", dev.Name, "root", dev.Path, "run_id", run.id)
	res, err := engine.Run(ctx, dev.Path)
	if err != nil {
		run.finish(ctx, false, nil, err)
		return sess.out.Fail("census failed", err)
	}

	archive := &census.Archive{
		Device:      dev.Name,
		Description: dev.Description,
		HashFile:    dev.HashOutput,
		BasePath:    dev.BasePath,
	}
	snap := census.NewSnapshot(res, run.id, sess.now(), archive)
	if err := census.WriteSnapshot(output, snap); err != nil {
		run.finish(ctx, false, nil, err)
		return sess.out.Fail("failed to write census snapshot", err)
	}

	result := CensusResult{
		Device:       dev.Name,
		Root:         res.Root,
		Output:       output,
		TotalFiles:   res.Total(),
		Directories:  len(res.Directories),
		Recursive:    res.Mode.Recursive,
		CountingMode: res.Mode.Entries.Label(),
		Counter:      engine.Primary.Name(),
		Recounts:     res.Recounts,
	}
	for _, w := range res.Warnings {
		result.Warnings = append(result.Warnings, CensusWarning{Path: w.Path, Error: w.Err.Error()})
	}
	run.finish(ctx, true, result, nil)

	if sess.out.Format == "json" {
		return sess.out.Success(result)
	}
	text := formatCensus(result)
	if opts.Tree {
		text += "\n\n" + strings.TrimSuffix(census.RenderTree(snap), "\n")
	}
	return sess.out.Success(text)
}

// newCensusEngine builds an engine from census settings.
func newCensusEngine(fs billy.Filesystem, settings config.Census) (*census.Engine, error) {
	entries, err := census.ParseEntryFilter(settings.Entries)
	if err != nil {
		return nil, fault.New(fault.KindConfiguration, "census entries", settings.Entries, err)
	}
	primary, err := newCounter(fs, settings.Counter)
	if err != nil {
		return nil, err
	}
	if primary == nil {
		return nil, fault.Errorf(fault.KindConfiguration, "census counter", settings.Counter, "primary counter is required")
	}
	secondary, err := newCounter(fs, settings.Secondary)
	if err != nil {
		return nil, err
	}
	engine := census.NewEngine(fs, census.Mode{Recursive: settings.Recursive, Entries: entries})
	engine.Primary = primary
	engine.Secondary = secondary
	return engine, nil
}

// newCounter maps a counter name to an implementation; "none" yields nil.
func newCounter(fs billy.Filesystem, name string) (census.Counter, error) {
	switch name {
	case "", "native":
		return census.NewWalkCounter(fs), nil
	case "find":
		return &census.FindCounter{}, nil
	case "none":
		return nil, nil
	default:
		return nil, fault.Errorf(fault.KindConfiguration, "census counter", name, "unknown counter (want native, find or none)")
	}
}

func formatCensus(r CensusResult) string {
	p := message.NewPrinter(language.English)
	var b strings.Builder
	mode := "recursive"
	if !r.Recursive {
		mode = "direct"
	}
	p.Fprintf(&b, "Census of %s", r.Root)
	if r.Device != "" {
		p.Fprintf(&b, " (device %s)", r.Device)
	}
	b.WriteString("\n")
	p.Fprintf(&b, "  Files:       %d (%s, %s)\n", r.TotalFiles, r.CountingMode, mode)
	p.Fprintf(&b, "  Directories: %d\n", r.Directories)
	p.Fprintf(&b, "  Snapshot:    %s\n", r.Output)
	for _, rc := range r.Recounts {
		fmt.Fprintf(&b, "  Recounted %s: %d -> %d (%s)\n", pathnorm.Relative(rc.Path, r.Root), rc.Primary, rc.Corrected, rc.Reason)
	}
	for _, w := range r.Warnings {
		fmt.Fprintf(&b, "  Skipped %s: %s\n", pathnorm.Relative(w.Path, r.Root), w.Error)
	}
	return strings.TrimSuffix(b.String(), "\n")
}
