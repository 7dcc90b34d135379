package census

import (
	"fmt"
	"io/fs"
)

// EntryFilter selects which directory entries count as "files".
type EntryFilter int

const (
	// RegularFiles counts regular files only. Symbolic links, devices,
	// sockets and pipes are ignored.
	RegularFiles EntryFilter = iota

	// NonDirectories counts every entry that is not a directory,
	// symbolic links included.
	NonDirectories
)

// Snapshot labels for each filter.
const (
	LabelRegularFiles   = "regular_files_only"
	LabelNonDirectories = "non_directories"
)

// Label returns the counting-mode label persisted in census snapshots.
func (f EntryFilter) Label() string {
	if f == NonDirectories {
		return LabelNonDirectories
	}
	return LabelRegularFiles
}

func (f EntryFilter) String() string {
	return f.Label()
}

// Matches reports whether an entry with the given mode is counted.
func (f EntryFilter) Matches(mode fs.FileMode) bool {
	if f == NonDirectories {
		return !mode.IsDir()
	}
	return mode.IsRegular()
}

// ParseEntryFilter accepts both snapshot labels and the short config names
// "regular" and "non-directory".
func ParseEntryFilter(s string) (EntryFilter, error) {
	switch s {
	case "", "regular", LabelRegularFiles:
		return RegularFiles, nil
	case "non-directory", LabelNonDirectories:
		return NonDirectories, nil
	default:
		return RegularFiles, fmt.Errorf("unknown entry filter %q", s)
	}
}

// Mode configures what a census counts.
type Mode struct {
	// Recursive reports each directory's full descendant count instead of
	// its direct children only.
	Recursive bool

	// Entries selects the entry types that are counted.
	Entries EntryFilter
}
