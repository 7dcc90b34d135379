// Package hasher computes content digests for a census file list with a
// bounded worker pool and streams one record per file to a single sink.
//
// Every submitted file yields exactly one FileRecord: failures (unreadable,
// symbolic link, timeout) are recorded in FileRecord.Error and never abort
// the batch. Workers hand records to one collector goroutine, which is the
// only writer to the sink and the only place progress is reported from.
package hasher

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"runtime"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/LuciaGiagnolini12/FileSystem-to-BoDi-sub001/internal/census"
	"github.com/LuciaGiagnolini12/FileSystem-to-BoDi-sub001/internal/fault"
)

// ErrInterrupted is returned when a run is cancelled before every file was
// hashed. Records already written remain valid.
var ErrInterrupted = errors.New("hashing interrupted")

// FileRecord is the terminal result for one file.
type FileRecord struct {
	Path    string     `json:"path"`
	Digest  *string    `json:"sha256"`
	Size    int64      `json:"size"`
	ModTime *time.Time `json:"modified"`
	Error   string     `json:"error,omitempty"`
}

// OK reports whether the record carries a digest.
func (r FileRecord) OK() bool {
	return r.Error == "" && r.Digest != nil
}

// RecordSink receives records from the collector goroutine, one at a time.
type RecordSink interface {
	Write(FileRecord) error
}

// SinkFunc adapts a function to RecordSink.
type SinkFunc func(FileRecord) error

// Write implements RecordSink.
func (f SinkFunc) Write(r FileRecord) error { return f(r) }

// MultiSink writes each record to every sink in order and stops at the
// first error.
func MultiSink(sinks ...RecordSink) RecordSink {
	return SinkFunc(func(r FileRecord) error {
		for _, s := range sinks {
			if err := s.Write(r); err != nil {
				return err
			}
		}
		return nil
	})
}

// BestEffortSink forwards records to an optional sink whose failure must not
// stop the run. The first error goes to OnError and the sink receives
// nothing afterwards; Write always returns nil.
type BestEffortSink struct {
	Sink    RecordSink
	OnError func(error)

	err error
}

// Write implements RecordSink.
func (b *BestEffortSink) Write(r FileRecord) error {
	if b.err != nil {
		return nil
	}
	if err := b.Sink.Write(r); err != nil {
		b.err = err
		if b.OnError != nil {
			b.OnError(err)
		}
	}
	return nil
}

// Err returns the error that disabled the sink, if any.
func (b *BestEffortSink) Err() error { return b.err }

// Progress is a point-in-time view of a running batch.
type Progress struct {
	Completed int
	Total     int
	Errors    int
	Elapsed   time.Duration
	ETA       time.Duration
}

// Percent returns completion as a percentage.
func (p Progress) Percent() float64 {
	if p.Total == 0 {
		return 100
	}
	return float64(p.Completed) * 100 / float64(p.Total)
}

// Options configures a Hasher.
type Options struct {
	// Workers bounds the number of files hashed concurrently.
	Workers int

	// FileTimeout bounds a single digest, including one stuck in a read.
	// Zero means no limit.
	FileTimeout time.Duration

	// Progress is reported every ProgressEvery completions or every
	// ProgressInterval, whichever comes first.
	ProgressEvery    int
	ProgressInterval time.Duration
	Progress         func(Progress)
}

// DefaultWorkers leaves two CPUs to the host.
func DefaultWorkers() int {
	return max(runtime.NumCPU()-2, 1)
}

// DefaultOptions returns the standard pool size and progress cadence.
func DefaultOptions() Options {
	return Options{
		Workers:          DefaultWorkers(),
		ProgressEvery:    10,
		ProgressInterval: 3 * time.Second,
	}
}

// Stats summarizes a run.
type Stats struct {
	Total     int
	Completed int
	Errors    int
	Successes int
	Elapsed   time.Duration
}

// Hasher runs digest batches.
type Hasher struct {
	Digester Digester
	Options  Options
	Logger   *slog.Logger

	now func() time.Time
}

// New creates a Hasher.
func New(d Digester, opts Options) *Hasher {
	if opts.Workers <= 0 {
		opts.Workers = DefaultWorkers()
	}
	return &Hasher{
		Digester: d,
		Options:  opts,
		Logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
		now:      time.Now,
	}
}

// Run hashes files and writes one record per file to sink.
//
// Files are processed largest first. When ctx is cancelled no further files
// are started, in-flight files run to completion or timeout, and Run
// returns the partial Stats with an error wrapping ErrInterrupted. A sink
// failure is an I/O fault; remaining records are still drained.
func (h *Hasher) Run(ctx context.Context, files []census.FileEntry, sink RecordSink) (*Stats, error) {
	queue := append([]census.FileEntry(nil), files...)
	census.SortBySizeDesc(queue)

	logger := h.logger()
	workers := h.Options.Workers
	if workers <= 0 {
		workers = DefaultWorkers()
	}
	now := h.now
	if now == nil {
		now = time.Now
	}
	start := now()
	stats := &Stats{Total: len(queue)}

	logger.Info("hashing started",
		"files", len(queue),
		"workers", workers,
		"digester", h.Digester.Name())

	results := make(chan FileRecord, workers)
	var sinkErr error
	done := make(chan struct{})
	go func() {
		defer close(done)
		lastReport := start
		for rec := range results {
			if sinkErr == nil {
				if err := sink.Write(rec); err != nil {
					sinkErr = err
					logger.Error("writing record failed", "path", rec.Path, "error", err)
				}
			}
			stats.Completed++
			if rec.OK() {
				stats.Successes++
			} else {
				stats.Errors++
				logger.Warn("file not hashed", "path", rec.Path, "error", rec.Error)
			}

			t := now()
			every := h.Options.ProgressEvery
			interval := h.Options.ProgressInterval
			due := (every > 0 && stats.Completed%every == 0) ||
				(interval > 0 && t.Sub(lastReport) >= interval) ||
				stats.Completed == stats.Total
			if due {
				lastReport = t
				h.report(stats, t.Sub(start))
			}
		}
	}()

	g := new(errgroup.Group)
	g.SetLimit(workers)
	for _, f := range queue {
		if ctx.Err() != nil {
			break
		}
		f := f
		g.Go(func() error {
			// A slot may free up after cancellation; do not start new work.
			if ctx.Err() != nil {
				return nil
			}
			results <- h.hashOne(ctx, f)
			return nil
		})
	}
	_ = g.Wait()
	close(results)
	<-done

	stats.Elapsed = now().Sub(start)
	if sinkErr != nil {
		return stats, fault.New(fault.KindIO, "write hash record", "", sinkErr)
	}
	if stats.Completed < stats.Total {
		logger.Warn("hashing interrupted", "completed", stats.Completed, "total", stats.Total)
		return stats, fmt.Errorf("%w: %d of %d files completed: %w", ErrInterrupted, stats.Completed, stats.Total, ctx.Err())
	}
	logger.Info("hashing complete",
		"files", stats.Total,
		"successes", stats.Successes,
		"errors", stats.Errors,
		"elapsed", stats.Elapsed)
	return stats, nil
}

// hashOne produces the terminal record for one file. In-flight units are
// detached from cancellation so they drain; only FileTimeout stops them.
func (h *Hasher) hashOne(ctx context.Context, f census.FileEntry) FileRecord {
	rec := FileRecord{Path: f.Path, Size: f.Size}

	info, err := os.Lstat(f.Path)
	if err != nil {
		rec.Error = err.Error()
		return rec
	}
	rec.Size = info.Size()
	switch {
	case info.Mode()&os.ModeSymlink != 0:
		rec.Error = "symbolic link not hashed"
		return rec
	case !info.Mode().IsRegular():
		rec.Error = "not a regular file"
		return rec
	}

	uctx := context.WithoutCancel(ctx)
	cancel := func() {}
	if h.Options.FileTimeout > 0 {
		uctx, cancel = context.WithTimeout(uctx, h.Options.FileTimeout)
	}
	defer cancel()

	digest, err := h.digest(uctx, f.Path)
	if err != nil {
		if errors.Is(uctx.Err(), context.DeadlineExceeded) {
			rec.Error = fmt.Sprintf("timed out after %s", h.Options.FileTimeout)
		} else {
			rec.Error = err.Error()
		}
		return rec
	}
	mtime := info.ModTime().UTC()
	rec.Digest = &digest
	rec.ModTime = &mtime
	return rec
}

// digest runs the digester but returns as soon as ctx expires, so a read
// blocked in the kernel (hung network or USB mount) cannot hold the worker
// slot. The abandoned call finishes in the background.
func (h *Hasher) digest(ctx context.Context, path string) (string, error) {
	type result struct {
		digest string
		err    error
	}
	ch := make(chan result, 1)
	go func() {
		d, err := h.Digester.Digest(ctx, path)
		ch <- result{d, err}
	}()
	select {
	case r := <-ch:
		return r.digest, r.err
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func (h *Hasher) report(s *Stats, elapsed time.Duration) {
	if h.Options.Progress == nil {
		return
	}
	p := Progress{
		Completed: s.Completed,
		Total:     s.Total,
		Errors:    s.Errors,
		Elapsed:   elapsed,
	}
	if s.Completed > 0 && s.Completed < s.Total {
		p.ETA = time.Duration(float64(elapsed) / float64(s.Completed) * float64(s.Total-s.Completed))
	}
	h.Options.Progress(p)
}

func (h *Hasher) logger() *slog.Logger {
	if h.Logger == nil {
		return slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return h.Logger
}
