package census

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"testing"

	"github.com/go-git/go-billy/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/LuciaGiagnolini12/FileSystem-to-BoDi-sub001/internal/fault"
	"github.com/LuciaGiagnolini12/FileSystem-to-BoDi-sub001/internal/testutil"
)

func abTree(t *testing.T) billy.Filesystem {
	return testutil.MemTree(t, "/r", testutil.Tree{
		"A/1.txt":  "one",
		"A/2.txt":  "two",
		"A/3.txt":  "three",
		"B/":       "",
		"root.txt": "r",
	})
}

func TestEngine_Run_RootAggregatesSubdirectories(t *testing.T) {
	eng := NewEngine(abTree(t), Mode{Recursive: true})

	res, err := eng.Run(context.Background(), "/r/")
	require.NoError(t, err)

	assert.Equal(t, "/r", res.Root)
	assert.Equal(t, 4, res.Total())

	a, ok := res.Lookup("/r/A")
	require.True(t, ok)
	assert.Equal(t, 3, a.Direct)
	assert.Equal(t, 3, a.Recursive)

	b, ok := res.Lookup("/r/B")
	require.True(t, ok)
	assert.Equal(t, 0, b.Recursive)

	root, ok := res.Lookup("/r")
	require.True(t, ok)
	assert.Equal(t, 1, root.Direct)

	assert.Len(t, res.Files, 4)
	assert.Empty(t, res.Warnings)
	assert.Empty(t, res.Recounts)
}

func TestEngine_Run_TreeConsistency(t *testing.T) {
	fs := testutil.MemTree(t, "/arch", testutil.Tree{
		"a/1":       "x",
		"a/b/2":     "xx",
		"a/b/3":     "xxx",
		"a/b/c/4":   "x",
		"a/b/c/d/":  "",
		"e/5":       "x",
		"e/f/6":     "x",
		"e/f/g/h/7": "x",
		"8":         "x",
	})
	res, err := NewEngine(fs, Mode{Recursive: true}).Run(context.Background(), "/arch")
	require.NoError(t, err)

	children := make(map[string][]string)
	for _, d := range res.Directories {
		if d.Path == res.Root {
			continue
		}
		parent := d.Path[:len(d.Path)-len("/"+lastSegment(d.Path))]
		children[parent] = append(children[parent], d.Path)
	}
	for _, d := range res.Directories {
		sum := d.Direct
		for _, c := range children[d.Path] {
			cc, ok := res.Lookup(c)
			require.True(t, ok)
			sum += cc.Recursive
		}
		assert.Equal(t, d.Recursive, sum, d.Path)
	}
	assert.Equal(t, 8, res.Total())
}

func lastSegment(p string) string {
	for i := len(p) - 1; i >= 0; i-- {
		if p[i] == '/' {
			return p[i+1:]
		}
	}
	return p
}

func TestEngine_Run_DirectoriesSortedRootFirst(t *testing.T) {
	res, err := NewEngine(abTree(t), Mode{}).Run(context.Background(), "/r")
	require.NoError(t, err)

	var paths []string
	for _, d := range res.Directories {
		paths = append(paths, d.Path)
	}
	assert.Equal(t, []string{"/r", "/r/A", "/r/B"}, paths)
}

func TestEngine_Run_SymlinksFollowEntryFilter(t *testing.T) {
	tree := testutil.Tree{
		"d/file":  "content",
		"@d/link": "/r/d/file",
	}

	regular, err := NewEngine(testutil.MemTree(t, "/r", tree), Mode{Entries: RegularFiles}).Run(context.Background(), "/r")
	require.NoError(t, err)
	d, _ := regular.Lookup("/r/d")
	assert.Equal(t, 1, d.Direct)
	assert.Len(t, regular.Files, 1, "symlinks never reach the hasher")

	all, err := NewEngine(testutil.MemTree(t, "/r", tree), Mode{Entries: NonDirectories}).Run(context.Background(), "/r")
	require.NoError(t, err)
	d, _ = all.Lookup("/r/d")
	assert.Equal(t, 2, d.Direct)
	assert.Len(t, all.Files, 1)
}

func TestEngine_Run_FilesLargestFirst(t *testing.T) {
	fs := testutil.MemTree(t, "/r", testutil.Tree{
		"small": "a",
		"big":   "aaaaaaaaaa",
		"mid":   "aaaaa",
		"mid2":  "aaaaa",
	})
	res, err := NewEngine(fs, Mode{}).Run(context.Background(), "/r")
	require.NoError(t, err)

	var got []string
	for _, f := range res.Files {
		got = append(got, f.Path)
	}
	assert.Equal(t, []string{"/r/big", "/r/mid", "/r/mid2", "/r/small"}, got)
}

type zeroCounter struct{ calls int }

func (c *zeroCounter) Name() string { return "zero" }

func (c *zeroCounter) Count(context.Context, string, bool, EntryFilter) (int, error) {
	c.calls++
	return 0, nil
}

func TestEngine_Run_RecountsLowConfidenceZero(t *testing.T) {
	fs := abTree(t)
	primary := &zeroCounter{}
	eng := NewEngine(fs, Mode{Recursive: true})
	eng.Primary = primary
	eng.Secondary = NewWalkCounter(fs)

	res, err := eng.Run(context.Background(), "/r")
	require.NoError(t, err)

	assert.Equal(t, 4, res.Total(), "corrected counts are kept")
	require.Len(t, res.Recounts, 2)
	assert.Equal(t, "/r", res.Recounts[0].Path)
	assert.Equal(t, 1, res.Recounts[0].Corrected)
	assert.Equal(t, "/r/A", res.Recounts[1].Path)
	assert.Equal(t, 0, res.Recounts[1].Primary)
	assert.Equal(t, 3, res.Recounts[1].Corrected)
	assert.NotEmpty(t, res.Recounts[1].Reason)

	b, _ := res.Lookup("/r/B")
	assert.Equal(t, 0, b.Direct, "genuinely empty directory stays zero")
}

func TestEngine_Run_ZeroWithoutSecondaryIsKept(t *testing.T) {
	eng := NewEngine(abTree(t), Mode{Recursive: true})
	eng.Primary = &zeroCounter{}

	res, err := eng.Run(context.Background(), "/r")
	require.NoError(t, err)
	assert.Equal(t, 0, res.Total())
	assert.Empty(t, res.Recounts)
}

func TestEngine_Run_SkipsEmptyDirectoriesForRecount(t *testing.T) {
	fs := testutil.MemTree(t, "/r", testutil.Tree{"empty/": ""})
	secondary := &zeroCounter{}
	eng := NewEngine(fs, Mode{})
	eng.Secondary = secondary

	_, err := eng.Run(context.Background(), "/r")
	require.NoError(t, err)
	// The root holds a directory, so it is re-checked; "empty" has no entries.
	assert.Equal(t, 1, secondary.calls)
}

type failingDirFS struct {
	billy.Filesystem
	fail string
}

func (f failingDirFS) ReadDir(p string) ([]os.FileInfo, error) {
	if p == f.fail {
		return nil, os.ErrPermission
	}
	return f.Filesystem.ReadDir(p)
}

func TestEngine_Run_UnreadableSubdirectoryIsWarning(t *testing.T) {
	fs := failingDirFS{Filesystem: abTree(t), fail: "/r/A"}

	res, err := NewEngine(fs, Mode{Recursive: true}).Run(context.Background(), "/r")
	require.NoError(t, err)

	require.Len(t, res.Warnings, 1)
	assert.Equal(t, "/r/A", res.Warnings[0].Path)
	assert.True(t, fault.Is(res.Warnings[0].Err, fault.KindIO))
	assert.ErrorIs(t, res.Warnings[0].Err, os.ErrPermission)

	_, ok := res.Lookup("/r/A")
	assert.False(t, ok)
	assert.Equal(t, 1, res.Total())
}

func TestEngine_Run_UnreadableRootIsFatal(t *testing.T) {
	fs := failingDirFS{Filesystem: abTree(t), fail: "/r"}

	_, err := NewEngine(fs, Mode{}).Run(context.Background(), "/r")
	require.Error(t, err)
	assert.True(t, fault.Is(err, fault.KindIO))
}

func TestEngine_Run_MissingRoot(t *testing.T) {
	_, err := NewEngine(abTree(t), Mode{}).Run(context.Background(), "/nope")
	require.Error(t, err)
	assert.True(t, fault.Is(err, fault.KindIO))
}

func TestEngine_Run_EmptyRoot(t *testing.T) {
	_, err := NewEngine(abTree(t), Mode{}).Run(context.Background(), "")
	require.Error(t, err)
	assert.True(t, fault.Is(err, fault.KindConfiguration))
}

func TestEngine_Run_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewEngine(abTree(t), Mode{}).Run(ctx, "/r")
	assert.True(t, errors.Is(err, context.Canceled))
}

func TestWalkCounter_Count(t *testing.T) {
	fs := testutil.MemTree(t, "/r", testutil.Tree{
		"a":     "x",
		"d/b":   "x",
		"d/e/c": "x",
		"@l":    "/r/a",
	})
	c := NewWalkCounter(fs)
	ctx := context.Background()

	direct, err := c.Count(ctx, "/r", false, RegularFiles)
	require.NoError(t, err)
	assert.Equal(t, 1, direct)

	all, err := c.Count(ctx, "/r", true, RegularFiles)
	require.NoError(t, err)
	assert.Equal(t, 3, all)

	nonDirs, err := c.Count(ctx, "/r", false, NonDirectories)
	require.NoError(t, err)
	assert.Equal(t, 2, nonDirs)

	_, err = c.Count(ctx, "/missing", false, RegularFiles)
	assert.Error(t, err)
}

func TestFindCounter_Args(t *testing.T) {
	c := &FindCounter{}
	assert.Equal(t,
		[]string{"/r", "-mindepth", "1", "-maxdepth", "1", "-type", "f", "-print0"},
		c.Args("/r", false, RegularFiles))
	assert.Equal(t,
		[]string{"/r", "-mindepth", "1", "!", "-type", "d", "-print0"},
		c.Args("/r", true, NonDirectories))
}

func TestFindCounter_CountOnDisk(t *testing.T) {
	if _, err := exec.LookPath("find"); err != nil {
		t.Skip("find not available")
	}
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(dir+"/a", []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(dir+"/with\nnewline", []byte("x"), 0o644))
	require.NoError(t, os.Mkdir(dir+"/sub", 0o755))
	require.NoError(t, os.WriteFile(dir+"/sub/b", []byte("x"), 0o644))

	c := &FindCounter{}
	direct, err := c.Count(context.Background(), dir, false, RegularFiles)
	require.NoError(t, err)
	assert.Equal(t, 2, direct)

	all, err := c.Count(context.Background(), dir, true, RegularFiles)
	require.NoError(t, err)
	assert.Equal(t, 3, all)
}

func TestParseEntryFilter(t *testing.T) {
	for in, want := range map[string]EntryFilter{
		"":                   RegularFiles,
		"regular":            RegularFiles,
		"regular_files_only": RegularFiles,
		"non-directory":      NonDirectories,
		"non_directories":    NonDirectories,
	} {
		got, err := ParseEntryFilter(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
	_, err := ParseEntryFilter("everything")
	assert.Error(t, err)
}

func TestEntryFilter_Matches(t *testing.T) {
	assert.True(t, RegularFiles.Matches(0o644))
	assert.False(t, RegularFiles.Matches(os.ModeSymlink))
	assert.True(t, NonDirectories.Matches(os.ModeSymlink))
	assert.False(t, NonDirectories.Matches(os.ModeDir))
}
