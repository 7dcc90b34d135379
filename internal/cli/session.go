package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/exp/zapslog"
	"go.uber.org/zap/zapcore"
	"golang.org/x/term"

	"github.com/LuciaGiagnolini12/FileSystem-to-BoDi-sub001/internal/config"
	"github.com/LuciaGiagnolini12/FileSystem-to-BoDi-sub001/internal/fault"
	"github.com/LuciaGiagnolini12/FileSystem-to-BoDi-sub001/internal/graph"
	"github.com/LuciaGiagnolini12/FileSystem-to-BoDi-sub001/internal/runid"
	"github.com/LuciaGiagnolini12/FileSystem-to-BoDi-sub001/internal/store"
)

// session is the resolved state shared by one command invocation.
type session struct {
	opts   *RootOptions
	cfg    *config.Config
	logger *slog.Logger
	out    *OutputFormatter
	ledger *store.Store
	ids    runid.Generator
	now    func() time.Time

	syncLog func()
}

// newSession resolves configuration and logging for cmd. Errors are already
// reported through the returned formatter's writer.
func newSession(cmd *cobra.Command, opts *RootOptions) (*session, error) {
	s := &session{
		opts: opts,
		out: &OutputFormatter{
			Format:    opts.Format,
			Writer:    cmd.OutOrStdout(),
			ErrWriter: cmd.ErrOrStderr(),
			Verbose:   opts.Verbose,
		},
		ids:     opts.IDs,
		now:     opts.Now,
		logger:  opts.Logger,
		syncLog: func() {},
	}
	if s.ids == nil {
		s.ids = runid.UUIDv7Generator{}
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.logger == nil {
		logger, sync, err := newLogger(opts)
		if err != nil {
			return nil, s.out.Fail("failed to initialize logger", err)
		}
		s.logger, s.syncLog = logger, sync
	}

	wd, err := os.Getwd()
	if err != nil {
		return nil, s.out.Fail("failed to resolve working directory", fault.New(fault.KindIO, "getwd", "", err))
	}
	cfg, err := config.Resolve(opts.Config, wd)
	if err != nil {
		return nil, s.out.Fail("failed to load configuration", err)
	}
	s.cfg = cfg
	if cfg.Source != "" {
		s.logger.Debug("configuration loaded", "source", cfg.Source, "devices", len(cfg.Devices))
	} else {
		s.logger.Debug("no configuration file found, using defaults")
	}
	return s, nil
}

// newLogger builds the zap-backed slog logger written to stderr.
func newLogger(opts *RootOptions) (*slog.Logger, func(), error) {
	zcfg := zap.NewProductionConfig()
	zcfg.Sampling = nil
	if opts.LogFormat != "json" {
		zcfg.Encoding = "console"
		zcfg.EncoderConfig = zap.NewDevelopmentEncoderConfig()
		if term.IsTerminal(int(os.Stderr.Fd())) {
			zcfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		}
	}
	if opts.Verbose {
		zcfg.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	}
	zl, err := zcfg.Build()
	if err != nil {
		return nil, nil, fmt.Errorf("build logger: %w", err)
	}
	return slog.New(zapslog.NewHandler(zl.Core())), func() { _ = zl.Sync() }, nil
}

// Close releases the ledger and flushes the logger.
func (s *session) Close() {
	if s.ledger != nil {
		if err := s.ledger.Close(); err != nil {
			s.logger.Error("error closing ledger", "error", err)
		}
	}
	s.syncLog()
}

// ledgerPath returns the ledger database path, "" when recording is off.
func (s *session) ledgerPath() string {
	if s.opts.NoLedger {
		return ""
	}
	if s.opts.Ledger != "" {
		return s.opts.Ledger
	}
	if s.cfg.Ledger.Disabled {
		return ""
	}
	return s.cfg.Ledger.Path
}

// openLedger opens the ledger if recording is enabled. With required unset a
// ledger that cannot be opened is logged and skipped.
func (s *session) openLedger(required bool) error {
	if s.ledger != nil {
		return nil
	}
	path := s.ledgerPath()
	if path == "" {
		if required {
			return fault.Errorf(fault.KindConfiguration, "open ledger", "", "ledger is disabled")
		}
		return nil
	}
	st, err := store.Open(path)
	if err != nil {
		if required {
			return err
		}
		s.logger.Warn("run ledger unavailable, continuing without it", "path", path, "error", err)
		return nil
	}
	s.ledger = st
	return nil
}

// resolveDevice accepts a configured device name or a directory path. A
// directory that matches no device becomes an ad hoc device named after it
// whose snapshots are written to the working directory.
func (s *session) resolveDevice(arg string) (config.Device, error) {
	if d, ok := s.cfg.Devices[arg]; ok {
		return d, nil
	}
	info, err := os.Stat(arg)
	if err != nil || !info.IsDir() {
		return s.cfg.Device(arg)
	}
	abs, err := filepath.Abs(arg)
	if err != nil {
		return config.Device{}, fault.New(fault.KindConfiguration, "resolve device", arg, err)
	}
	if d, ok := s.cfg.DeviceForPath(abs); ok {
		return d, nil
	}
	name := filepath.Base(abs)
	return config.Device{
		Name:        name,
		Path:        abs,
		BasePath:    abs,
		CountOutput: name + "_COUNT.json",
		HashOutput:  name + "_HASH.json",
	}, nil
}

// graphClient creates a SPARQL client over the configured endpoints, or
// over override when non-empty.
func (s *session) graphClient(override []string) *graph.Client {
	endpoints := s.cfg.Graph.Endpoints
	if len(override) > 0 {
		endpoints = override
	}
	return graph.NewClient(endpoints,
		graph.WithProbeTimeout(s.cfg.Graph.ProbeTimeout),
		graph.WithLogger(s.logger))
}

// signalContext returns a context cancelled on SIGINT or SIGTERM.
func (s *session) signalContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(commandContext(cmd))

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		select {
		case sig := <-sigChan:
			s.logger.Warn("received signal, stopping", "signal", sig.String())
			cancel()
		case <-ctx.Done():
		}
	}()

	return ctx, func() {
		signal.Stop(sigChan)
		cancel()
	}
}

// commandContext returns the command's context, Background if unset.
func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

// ledgerRun is one run being recorded. A nil ledger makes every method a
// no-op so commands do not branch on whether recording is enabled.
type ledgerRun struct {
	s  *session
	id string
	on bool
}

// beginRun starts a ledger run. Ledger errors never fail the command.
func (s *session) beginRun(ctx context.Context, kind store.Kind, dev config.Device, root, artifact string) *ledgerRun {
	r := &ledgerRun{s: s, id: s.ids.Generate()}
	s.out.RunID = r.id
	if s.ledger == nil {
		return r
	}
	_, err := s.ledger.BeginRun(ctx, store.Run{
		ID:        r.id,
		Kind:      kind,
		Device:    dev.Name,
		Root:      root,
		Artifact:  artifact,
		StartedAt: s.now(),
	})
	if err != nil {
		s.logger.Warn("failed to record run start", "run_id", r.id, "error", err)
		return r
	}
	r.on = true
	return r
}

// findings records non-matching paths of the run.
func (r *ledgerRun) findings(ctx context.Context, fs []store.Finding) {
	if !r.on || len(fs) == 0 {
		return
	}
	if err := r.s.ledger.RecordFindings(context.WithoutCancel(ctx), r.id, fs); err != nil {
		r.s.logger.Warn("failed to record findings", "run_id", r.id, "error", err)
	}
}

// finish records the run outcome.
func (r *ledgerRun) finish(ctx context.Context, success bool, summary any, runErr error) {
	if !r.on {
		return
	}
	status := store.OutcomeStatus(success, runErr)
	err := r.s.ledger.FinishRun(context.WithoutCancel(ctx), r.id, status, r.s.now(), summary, runErr)
	if err != nil {
		r.s.logger.Warn("failed to record run outcome", "run_id", r.id, "error", err)
		return
	}
	r.s.logger.Debug("run recorded", "run_id", r.id, "status", string(status))
}

// digestSink returns the ledger sink for a hash run, nil when not recording.
func (r *ledgerRun) digestSink(ctx context.Context) *store.DigestWriter {
	if !r.on {
		return nil
	}
	return r.s.ledger.NewDigestWriter(ctx, r.id, 0)
}
