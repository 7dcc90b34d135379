// Package census enumerates an archival root and produces authoritative
// per-directory file counts plus the list of files to hash.
//
// The traversal is single-threaded and completes before any hashing starts.
// Counting goes through a Counter; when the primary counter reports zero for
// a directory that visibly has entries, the engine recounts with an
// independent secondary counter and keeps the corrected value. The recount
// is logged and listed in Result.Recounts, never silent.
package census

import (
	"context"
	"io"
	"log/slog"
	"path"
	"sort"

	"github.com/go-git/go-billy/v5"

	"github.com/LuciaGiagnolini12/FileSystem-to-BoDi-sub001/internal/fault"
	"github.com/LuciaGiagnolini12/FileSystem-to-BoDi-sub001/internal/pathnorm"
)

// DirectoryCount is the census result for one directory.
type DirectoryCount struct {
	// Path is the normalized absolute directory path.
	Path string

	// Direct counts matching entries directly inside the directory.
	Direct int

	// Recursive counts matching entries anywhere beneath the directory,
	// its own direct entries included.
	Recursive int
}

// Count returns the value reported under the given mode.
func (d DirectoryCount) Count(recursive bool) int {
	if recursive {
		return d.Recursive
	}
	return d.Direct
}

// FileEntry is a regular file discovered during the census.
type FileEntry struct {
	Path string
	Size int64
}

// Warning records a directory that could not be read.
type Warning struct {
	Path string
	Err  error
}

// Recount records a low-confidence zero that was re-checked.
type Recount struct {
	Path      string `json:"path"`
	Primary   int    `json:"primary"`
	Corrected int    `json:"corrected"`
	Reason    string `json:"reason"`
}

// Result is the output of one census run.
type Result struct {
	Root        string
	Mode        Mode
	Directories []DirectoryCount // sorted by path, root first
	Files       []FileEntry      // regular files, largest first
	Warnings    []Warning
	Recounts    []Recount
}

// Total returns the recursive count of the root.
func (r *Result) Total() int {
	if len(r.Directories) == 0 {
		return 0
	}
	return r.Directories[0].Recursive
}

// Lookup returns the count for a normalized directory path.
func (r *Result) Lookup(p string) (DirectoryCount, bool) {
	i := sort.Search(len(r.Directories), func(i int) bool { return r.Directories[i].Path >= p })
	if i < len(r.Directories) && r.Directories[i].Path == p {
		return r.Directories[i], true
	}
	return DirectoryCount{}, false
}

// Engine runs censuses.
type Engine struct {
	// FS is the filesystem traversed; paths are absolute within it.
	FS billy.Filesystem

	// Primary computes per-directory counts.
	Primary Counter

	// Secondary re-checks suspicious zero counts. Nil disables recounting.
	Secondary Counter

	Mode   Mode
	Logger *slog.Logger
}

// NewEngine creates an engine over fs with the pure walk counter as primary
// and no secondary counter.
func NewEngine(fs billy.Filesystem, mode Mode) *Engine {
	return &Engine{
		FS:      fs,
		Primary: NewWalkCounter(fs),
		Mode:    mode,
		Logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
}

type dirNode struct {
	path     string
	entries  int // raw entries seen by ReadDir, any type
	direct   int
	children []string
}

// Run censuses root. Only an unreadable root is fatal; unreadable
// subdirectories are recorded as warnings and skipped.
func (e *Engine) Run(ctx context.Context, root string) (*Result, error) {
	root, err := pathnorm.Base(root)
	if err != nil {
		return nil, fault.New(fault.KindConfiguration, "census", root, err)
	}
	logger := e.logger()
	res := &Result{Root: root, Mode: e.Mode}

	rootInfo, err := e.FS.Stat(root)
	if err != nil {
		return nil, fault.New(fault.KindIO, "stat census root", root, err)
	}
	if !rootInfo.IsDir() {
		return nil, fault.Errorf(fault.KindIO, "census", root, "not a directory")
	}

	// Pass 1: enumerate every directory.
	nodes := make(map[string]*dirNode)
	var order []string
	stack := []string{root}
	for len(stack) > 0 {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		dir := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		entries, err := e.FS.ReadDir(dir)
		if err != nil {
			if dir == root {
				return nil, fault.New(fault.KindIO, "read census root", root, err)
			}
			logger.Warn("skipping unreadable directory", "path", dir, "error", err)
			res.Warnings = append(res.Warnings, Warning{Path: dir, Err: fault.New(fault.KindIO, "read directory", dir, err)})
			continue
		}

		node := &dirNode{path: dir, entries: len(entries)}
		nodes[dir] = node
		order = append(order, dir)
		for _, ent := range entries {
			p := path.Join(dir, ent.Name())
			switch {
			case ent.IsDir():
				node.children = append(node.children, p)
				stack = append(stack, p)
			case ent.Mode().IsRegular():
				res.Files = append(res.Files, FileEntry{Path: p, Size: ent.Size()})
			}
		}
	}

	// Pass 2: count each directory with the configured counter.
	for _, dir := range order {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		nodes[dir].direct = e.count(ctx, nodes[dir], res)
	}

	// Pass 3: aggregate bottom-up. Children always sort after their parent.
	sort.Strings(order)
	recursive := make(map[string]int, len(order))
	for i := len(order) - 1; i >= 0; i-- {
		n := nodes[order[i]]
		total := n.direct
		for _, c := range n.children {
			total += recursive[c]
		}
		recursive[n.path] = total
	}

	res.Directories = make([]DirectoryCount, 0, len(order))
	for _, dir := range order {
		res.Directories = append(res.Directories, DirectoryCount{
			Path:      dir,
			Direct:    nodes[dir].direct,
			Recursive: recursive[dir],
		})
	}
	SortBySizeDesc(res.Files)

	logger.Info("census complete",
		"root", root,
		"directories", len(res.Directories),
		"total", res.Total(),
		"warnings", len(res.Warnings),
		"recounts", len(res.Recounts))
	return res, nil
}

// count returns the direct count of one directory, recounting with the
// secondary counter when the primary result is a low-confidence zero.
func (e *Engine) count(ctx context.Context, n *dirNode, res *Result) int {
	logger := e.logger()
	filter := e.Mode.Entries

	primary, err := e.Primary.Count(ctx, n.path, false, filter)
	if err == nil && (primary > 0 || n.entries == 0) {
		return primary
	}
	if e.Secondary == nil {
		if err != nil {
			logger.Warn("count failed", "path", n.path, "counter", e.Primary.Name(), "error", err)
		}
		return primary
	}

	reason := "primary counter returned zero for a non-empty directory"
	if err != nil {
		reason = "primary counter failed: " + err.Error()
	}
	corrected, serr := e.Secondary.Count(ctx, n.path, false, filter)
	if serr != nil {
		logger.Warn("recount failed", "path", n.path, "counter", e.Secondary.Name(), "error", serr)
		return primary
	}
	if corrected == primary {
		logger.Debug("recount confirmed zero", "path", n.path, "entries", n.entries, "counter", e.Secondary.Name())
		return primary
	}

	logger.Warn("recount corrected low-confidence count",
		"path", n.path,
		"primary", primary,
		"primary_counter", e.Primary.Name(),
		"corrected", corrected,
		"secondary_counter", e.Secondary.Name(),
		"reason", reason)
	res.Recounts = append(res.Recounts, Recount{
		Path:      n.path,
		Primary:   primary,
		Corrected: corrected,
		Reason:    reason,
	})
	return corrected
}

func (e *Engine) logger() *slog.Logger {
	if e.Logger == nil {
		return slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return e.Logger
}

// SortBySizeDesc orders files largest first, ties broken by path so the
// order is deterministic.
func SortBySizeDesc(files []FileEntry) {
	sort.SliceStable(files, func(i, j int) bool {
		if files[i].Size != files[j].Size {
			return files[i].Size > files[j].Size
		}
		return files[i].Path < files[j].Path
	})
}
