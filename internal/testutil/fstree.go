// Package testutil provides deterministic clocks and in-memory archive trees
// shared by package tests.
package testutil

import (
	"path"
	"sort"
	"strings"
	"testing"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/memfs"
	"github.com/go-git/go-billy/v5/util"
)

// Tree describes an archive layout relative to its root.
//
// Keys ending in "/" are directories; keys starting with "@" are symbolic
// links whose value is the link target; every other key is a regular file
// whose value is its content.
type Tree map[string]string

// MemTree creates a memfs holding tree under root and returns it.
func MemTree(t testing.TB, root string, tree Tree) billy.Filesystem {
	t.Helper()
	fs := memfs.New()
	WriteTree(t, fs, root, tree)
	return fs
}

// WriteTree materializes tree under root in fs.
func WriteTree(t testing.TB, fs billy.Filesystem, root string, tree Tree) {
	t.Helper()
	if err := fs.MkdirAll(root, 0o755); err != nil {
		t.Fatalf("mkdir %s: %v", root, err)
	}

	keys := make([]string, 0, len(tree))
	for k := range tree {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		switch {
		case strings.HasSuffix(k, "/"):
			if err := fs.MkdirAll(path.Join(root, k), 0o755); err != nil {
				t.Fatalf("mkdir %s: %v", k, err)
			}
		case strings.HasPrefix(k, "@"):
			link := path.Join(root, k[1:])
			if err := fs.MkdirAll(path.Dir(link), 0o755); err != nil {
				t.Fatalf("mkdir %s: %v", path.Dir(link), err)
			}
			if err := fs.Symlink(tree[k], link); err != nil {
				t.Fatalf("symlink %s: %v", link, err)
			}
		default:
			p := path.Join(root, k)
			if err := util.WriteFile(fs, p, []byte(tree[k]), 0o644); err != nil {
				t.Fatalf("write %s: %v", p, err)
			}
		}
	}
}
