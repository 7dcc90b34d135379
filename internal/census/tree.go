package census

import (
	"fmt"
	"path"
	"sort"

	"github.com/disiqueira/gotree/v3"
)

// RenderTree draws the directories of snap as a tree, each labelled with its
// file count. Directories whose parent is not in the snapshot (skipped as
// unreadable) hang off their nearest listed ancestor with a relative label.
func RenderTree(snap *Snapshot) string {
	root := gotree.New(fmt.Sprintf("%s (%d)", snap.Root, snap.TotalFiles))
	nodes := map[string]gotree.Tree{snap.Root: root}

	entries := append([]SnapshotEntry(nil), snap.Directories...)
	sort.Slice(entries, func(i, j int) bool { return entries[i].Path < entries[j].Path })

	for _, d := range entries {
		parent, rel := root, d.Path
		for dir := path.Dir(d.Path); ; dir = path.Dir(dir) {
			if n, ok := nodes[dir]; ok {
				parent = n
				rel = d.Path[len(dir):]
				if dir != "/" {
					rel = rel[1:]
				}
				break
			}
			if dir == "/" || dir == "." {
				break
			}
		}
		nodes[d.Path] = parent.Add(fmt.Sprintf("%s (%d)", rel, d.FileCount))
	}
	return root.Print()
}
