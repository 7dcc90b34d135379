package reconcile

import (
	"sort"
	"strings"

	"github.com/RoaringBitmap/roaring"

	"github.com/LuciaGiagnolini12/FileSystem-to-BoDi-sub001/internal/census"
	"github.com/LuciaGiagnolini12/FileSystem-to-BoDi-sub001/internal/fault"
	"github.com/LuciaGiagnolini12/FileSystem-to-BoDi-sub001/internal/graph"
	"github.com/LuciaGiagnolini12/FileSystem-to-BoDi-sub001/internal/pathnorm"
)

// ExpectedState maps normalized directory paths to the file counts a census
// found there.
type ExpectedState map[string]int

// ObservedState maps normalized recordset paths to the number of records the
// graph holds at or beneath them. It is computed per run and never persisted.
type ObservedState map[string]int

// ExpectedFromSnapshot builds the ground truth for one reconciliation: the
// census root carries the snapshot total and every directory entry its
// recursive file count. Snapshots taken in direct mode store per-directory
// counts, which are summed up the tree here so they compare against the
// recursive observed state.
func ExpectedFromSnapshot(snap *census.Snapshot, base string) (ExpectedState, error) {
	b, err := pathnorm.Base(base)
	if err != nil {
		return nil, fault.New(fault.KindConfiguration, "expected state", base, err)
	}
	root, err := pathnorm.Normalize(snap.Root, b)
	if err != nil {
		return nil, fault.New(fault.KindData, "expected state", snap.Root, err)
	}

	expected := make(ExpectedState, len(snap.Directories)+1)
	direct := make(map[string]int, len(snap.Directories))
	for _, d := range snap.Directories {
		p, err := pathnorm.Normalize(d.Path, b)
		if err != nil {
			return nil, fault.New(fault.KindData, "expected state", d.Path, err)
		}
		if p == root {
			continue
		}
		if snap.Recursive {
			expected[p] = d.FileCount
			continue
		}
		expected[p] = 0
		direct[p] += d.FileCount
	}

	// Ancestors missing from the snapshot (unreadable during the census) are
	// skipped; the root total already includes everything below it.
	for p, n := range direct {
		expected[p] += n
		for q := pathnorm.Parent(p); q != "" && q != root && pathnorm.IsTrueSubpath(q, root); q = pathnorm.Parent(q) {
			if _, ok := expected[q]; ok {
				expected[q] += n
			}
		}
	}
	expected[root] = snap.TotalFiles
	return expected, nil
}

// Diagnostics are non-fatal observations made while building ObservedState.
type Diagnostics struct {
	RecordSets int
	Records    int

	// FalsePositivesAvoided counts record/recordset pairs that shared a
	// string prefix without true containment, e.g. /data/foo2/x against
	// /data/foo.
	FalsePositivesAvoided int

	// OrphanRecords counts records contained in no recordset.
	OrphanRecords int

	// InvalidPaths lists graph labels that could not be normalized under
	// the base.
	InvalidPaths []string
}

type record struct {
	path string
	id   string
}

// Observe aggregates graph rows into recursive record counts per recordset.
//
// A record counts toward every recordset whose path it is a true subpath of.
// Records are identified by (IRI, path); a record listed under several
// recordsets is counted once per containing path.
func Observe(rows []graph.RecordRow, base string) (ObservedState, Diagnostics, error) {
	var diag Diagnostics
	b, err := pathnorm.Base(base)
	if err != nil {
		return nil, diag, fault.New(fault.KindConfiguration, "observe", base, err)
	}

	sets := make(map[string]struct{})
	seen := make(map[record]struct{})
	var records []record
	for _, row := range rows {
		rs, err := pathnorm.Normalize(row.RecordSetPath, b)
		if err != nil {
			diag.InvalidPaths = append(diag.InvalidPaths, row.RecordSetPath)
			continue
		}
		sets[rs] = struct{}{}

		if row.RecordPath == "" {
			continue
		}
		rp, err := pathnorm.Normalize(row.RecordPath, b)
		if err != nil {
			diag.InvalidPaths = append(diag.InvalidPaths, row.RecordPath)
			continue
		}
		r := record{path: rp, id: row.Record}
		if _, dup := seen[r]; dup {
			continue
		}
		seen[r] = struct{}{}
		records = append(records, r)
	}
	sort.Slice(records, func(i, j int) bool {
		if records[i].path != records[j].path {
			return records[i].path < records[j].path
		}
		return records[i].id < records[j].id
	})

	observed := make(ObservedState, len(sets))
	contained := roaring.New()
	for rs := range sets {
		members := roaring.New()
		// Records sharing the string prefix are contiguous in sorted order.
		start := sort.Search(len(records), func(i int) bool { return records[i].path >= rs })
		for i := start; i < len(records) && strings.HasPrefix(records[i].path, rs); i++ {
			if pathnorm.IsTrueSubpath(records[i].path, rs) {
				members.Add(uint32(i))
			} else {
				diag.FalsePositivesAvoided++
			}
		}
		observed[rs] = int(members.GetCardinality())
		contained.Or(members)
	}

	diag.RecordSets = len(sets)
	diag.Records = len(records)
	diag.OrphanRecords = len(records) - int(contained.GetCardinality())
	return observed, diag, nil
}
