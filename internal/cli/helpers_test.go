package cli

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-git/go-billy/v5/osfs"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/require"

	"github.com/LuciaGiagnolini12/FileSystem-to-BoDi-sub001/internal/config"
	"github.com/LuciaGiagnolini12/FileSystem-to-BoDi-sub001/internal/runid"
	"github.com/LuciaGiagnolini12/FileSystem-to-BoDi-sub001/internal/store"
	"github.com/LuciaGiagnolini12/FileSystem-to-BoDi-sub001/internal/testutil"
)

// abTree is the census example: A holds three files, B is empty.
var abTree = testutil.Tree{
	"A/1.txt":  "one",
	"A/2.txt":  "two",
	"A/3.txt":  "three",
	"B/":       "",
	"root.txt": "root",
}

func sha(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}

// fixture is an archive on disk with a config file describing it as the
// device "floppy".
type fixture struct {
	dir    string // config directory
	root   string // device root
	config string
	ledger string
	clock  *testutil.StepClock
	ids    *runid.FixedGenerator
}

func newFixture(t *testing.T, tree testutil.Tree, endpoints ...string) *fixture {
	t.Helper()
	dir := t.TempDir()
	root := filepath.Join(dir, "FloppyDisks")
	require.NoError(t, os.MkdirAll(root, 0o755))
	testutil.WriteTree(t, osfs.New(root), "/", tree)

	var eps strings.Builder
	for _, ep := range endpoints {
		fmt.Fprintf(&eps, "    - %s\n", ep)
	}
	if eps.Len() == 0 {
		eps.WriteString("    - http://127.0.0.1:1/sparql\n")
	}
	cfg := fmt.Sprintf(`devices:
  floppy:
    path: %s
    description: Floppy disk images
    root_id: floppy
graph:
  endpoints:
%s  graph_uri_prefix: http://example.org/structure
  query_timeout: 10s
  probe_timeout: 2s
census:
  secondary: none
hash:
  workers: 2
ledger:
  path: ledger.db
`, root, eps.String())
	cfgPath := filepath.Join(dir, "fixity.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte(cfg), 0o644))

	ids := make([]string, 20)
	for i := range ids {
		ids[i] = fmt.Sprintf("run-%02d", i+1)
	}
	return &fixture{
		dir:    dir,
		root:   root,
		config: cfgPath,
		ledger: filepath.Join(dir, "ledger.db"),
		clock:  testutil.NewStepClock(time.Second),
		ids:    runid.NewFixedGenerator(ids...),
	}
}

func (f *fixture) options(format string) *RootOptions {
	return &RootOptions{
		Format: format,
		Config: f.config,
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
		IDs:    f.ids,
		Now:    f.clock.Now,
	}
}

func (f *fixture) path(name string) string {
	return filepath.Join(f.dir, name)
}

// execute runs cmd with args and returns what it wrote to stdout.
func execute(t *testing.T, cmd *cobra.Command, args ...string) (string, error) {
	t.Helper()
	stdout, stderr := &bytes.Buffer{}, &bytes.Buffer{}
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return stdout.String(), err
}

// decodeResponse parses a JSON CLI response, decoding Data into data.
func decodeResponse(t *testing.T, out string, data any) CLIResponse {
	t.Helper()
	var raw struct {
		CLIResponse
		Data json.RawMessage `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &raw), out)
	if data != nil && len(raw.Data) > 0 {
		require.NoError(t, json.Unmarshal(raw.Data, data))
	}
	return raw.CLIResponse
}

// openLedger opens the fixture ledger for assertions.
func (f *fixture) openLedger(t *testing.T) *store.Store {
	t.Helper()
	st, err := store.Open(f.ledger)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	return st
}

// sparqlGraph is an in-memory device graph served over the SPARQL
// protocol.
type sparqlGraph struct {
	mu      sync.Mutex
	triples int
	records [][3]string // recordset path, record path, record IRI
	hashes  map[string]string
}

func binding(vars map[string]string) string {
	parts := make([]string, 0, len(vars))
	for k, v := range vars {
		parts = append(parts, fmt.Sprintf(`%q:{"type":"literal","value":%q}`, k, v))
	}
	return "{" + strings.Join(parts, ",") + "}"
}

func results(rows []string) string {
	return `{"head":{"vars":[]},"results":{"bindings":[` + strings.Join(rows, ",") + `]}}`
}

func (g *sparqlGraph) serve(t *testing.T) string {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		q := r.PostForm.Get("query")
		g.mu.Lock()
		defer g.mu.Unlock()

		var rows []string
		switch {
		case strings.Contains(q, "?recordset_path"):
			for _, rec := range g.records {
				vars := map[string]string{"recordset_path": rec[0]}
				if rec[1] != "" {
					vars["record_path"] = rec[1]
					vars["record"] = rec[2]
				}
				rows = append(rows, binding(vars))
			}
		case strings.Contains(q, "bodi:hasHashCode"):
			for p, h := range g.hashes {
				rows = append(rows, binding(map[string]string{"path": p, "hash": h}))
			}
		case strings.Contains(q, "GRAPH <"):
			rows = append(rows, binding(map[string]string{"count": fmt.Sprint(g.triples)}))
		default:
			rows = append(rows, binding(map[string]string{"count": "5000"}))
		}
		w.Header().Set("Content-Type", "application/sparql-results+json")
		fmt.Fprint(w, results(rows))
	}))
	t.Cleanup(srv.Close)
	return srv.URL
}

// abGraph describes abTree completely: every file is a record of the root
// record set and of its directory's record set.
func abGraph() *sparqlGraph {
	g := &sparqlGraph{triples: 120, hashes: map[string]string{}}
	files := []string{"/A/1.txt", "/A/2.txt", "/A/3.txt", "/root.txt"}
	for i, f := range files {
		iri := fmt.Sprintf("http://example.org/record/%d", i+1)
		g.records = append(g.records, [3]string{"/", f, iri})
		if strings.HasPrefix(f, "/A/") {
			g.records = append(g.records, [3]string{"/A", f, iri})
		}
	}
	g.records = append(g.records, [3]string{"/B", "", ""})
	for p, content := range map[string]string{"/A/1.txt": "one", "/A/2.txt": "two", "/A/3.txt": "three", "/root.txt": "root"} {
		g.hashes[p] = sha(content)
	}
	return g
}

// dropRecord removes every record row for path.
func (g *sparqlGraph) dropRecord(path string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	kept := g.records[:0]
	for _, r := range g.records {
		if r[1] != path {
			kept = append(kept, r)
		}
	}
	g.records = kept
}

func deadURL(t *testing.T) string {
	t.Helper()
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()
	return url
}

// writeConfig writes an alternative config file into dir.
func writeConfig(t *testing.T, dir, content string) string {
	t.Helper()
	p := filepath.Join(dir, "alt.yaml")
	require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	return p
}

// mustField extracts one top-level field of a JSON object.
func mustField(t *testing.T, obj json.RawMessage, name string) json.RawMessage {
	t.Helper()
	var m map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(obj, &m))
	v, ok := m[name]
	require.True(t, ok, "field %q missing in %s", name, obj)
	return v
}

// loadConfig loads the fixture configuration.
func loadConfig(t *testing.T, f *fixture) *config.Config {
	t.Helper()
	cfg, err := config.Load(f.config)
	require.NoError(t, err)
	return cfg
}

// captureOutput redirects cmd's stdout into the returned buffer.
func captureOutput(cmd *cobra.Command) *bytes.Buffer {
	buf := &bytes.Buffer{}
	cmd.SetOut(buf)
	cmd.SetErr(io.Discard)
	return buf
}
