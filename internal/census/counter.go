package census

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"path"

	"github.com/go-git/go-billy/v5"
)

// Counter counts the entries of one directory.
//
// Two independent implementations exist so that a suspicious result from one
// can be double-checked with the other: WalkCounter runs in-process over a
// billy filesystem, FindCounter delegates to the host's find(1).
type Counter interface {
	// Count returns the number of entries under dir matching filter, either
	// direct children only or all descendants.
	Count(ctx context.Context, dir string, recursive bool, filter EntryFilter) (int, error)

	// Name identifies the counter in logs and snapshots.
	Name() string
}

// WalkCounter counts by listing directories through a billy.Filesystem.
type WalkCounter struct {
	FS billy.Filesystem
}

// NewWalkCounter creates a counter over fs.
func NewWalkCounter(fs billy.Filesystem) *WalkCounter {
	return &WalkCounter{FS: fs}
}

// Name implements Counter.
func (c *WalkCounter) Name() string { return "walk" }

// Count implements Counter.
// Unreadable subdirectories below dir are skipped; an unreadable dir itself
// is an error.
func (c *WalkCounter) Count(ctx context.Context, dir string, recursive bool, filter EntryFilter) (int, error) {
	entries, err := c.FS.ReadDir(dir)
	if err != nil {
		return 0, err
	}

	count := 0
	for _, e := range entries {
		if filter.Matches(e.Mode()) {
			count++
		}
		if recursive && e.IsDir() {
			if err := ctx.Err(); err != nil {
				return 0, err
			}
			sub, err := c.Count(ctx, path.Join(dir, e.Name()), true, filter)
			if err != nil {
				continue
			}
			count += sub
		}
	}
	return count, nil
}

// FindCounter counts with the host's find(1). Arguments are passed as argv,
// never through a shell, and output is NUL-separated so names containing
// newlines are counted once.
type FindCounter struct {
	// Binary is the find executable; "find" when empty.
	Binary string
}

// Name implements Counter.
func (c *FindCounter) Name() string { return "find" }

// Args returns the find(1) argument list for one count.
func (c *FindCounter) Args(dir string, recursive bool, filter EntryFilter) []string {
	args := []string{dir, "-mindepth", "1"}
	if !recursive {
		args = append(args, "-maxdepth", "1")
	}
	if filter == NonDirectories {
		args = append(args, "!", "-type", "d")
	} else {
		args = append(args, "-type", "f")
	}
	return append(args, "-print0")
}

// Count implements Counter.
func (c *FindCounter) Count(ctx context.Context, dir string, recursive bool, filter EntryFilter) (int, error) {
	bin := c.Binary
	if bin == "" {
		bin = "find"
	}
	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, bin, c.Args(dir, recursive, filter)...)
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err != nil {
		// find exits non-zero when a nested directory is unreadable but still
		// prints everything it could reach.
		if _, ok := err.(*exec.ExitError); !ok || len(out) == 0 {
			return 0, fmt.Errorf("%s %s: %w: %s", bin, dir, err, bytes.TrimSpace(stderr.Bytes()))
		}
	}
	return bytes.Count(out, []byte{0}), nil
}
