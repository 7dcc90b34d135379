// Package config loads fixity.yaml: the device table and the settings of
// every component. The file is validated against an embedded CUE schema
// before it is decoded, and the result is resolved once at startup and
// passed explicitly to each component.
package config

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"gopkg.in/yaml.v3"

	"github.com/LuciaGiagnolini12/FileSystem-to-BoDi-sub001/internal/fault"
	"github.com/LuciaGiagnolini12/FileSystem-to-BoDi-sub001/internal/graph"
)

// FileName is the configuration file searched for by Find.
const FileName = "fixity.yaml"

// searchDepth is how many parent directories Find climbs.
const searchDepth = 3

//go:embed schema.cue
var schemaSource string

// Device is one archival root.
type Device struct {
	Name        string `yaml:"-" json:"-"`
	Path        string `yaml:"path" json:"path"`
	BasePath    string `yaml:"base_path,omitempty" json:"base_path,omitempty"`
	Description string `yaml:"description,omitempty" json:"description,omitempty"`
	RootID      string `yaml:"root_id,omitempty" json:"root_id,omitempty"`
	CountOutput string `yaml:"count_output,omitempty" json:"count_output,omitempty"`
	HashOutput  string `yaml:"hash_output,omitempty" json:"hash_output,omitempty"`
}

// GraphURI returns the named graph holding the device structure.
func (d Device) GraphURI(prefix string) (string, error) {
	if d.RootID == "" {
		return "", fault.Errorf(fault.KindConfiguration, "graph uri", d.Name, "device has no root_id")
	}
	return graph.GraphURI(prefix, d.RootID), nil
}

// Graph configures the SPARQL client.
type Graph struct {
	Endpoints      []string      `yaml:"endpoints" json:"endpoints"`
	GraphURIPrefix string        `yaml:"graph_uri_prefix" json:"graph_uri_prefix"`
	QueryTimeout   time.Duration `yaml:"query_timeout" json:"query_timeout"`
	ProbeTimeout   time.Duration `yaml:"probe_timeout" json:"probe_timeout"`
}

// Census configures directory counting.
type Census struct {
	Counter   string `yaml:"counter" json:"counter"`
	Secondary string `yaml:"secondary" json:"secondary"`
	Recursive bool   `yaml:"recursive" json:"recursive"`
	Entries   string `yaml:"entries" json:"entries"`
}

// Hash configures the hasher.
type Hash struct {
	Digester         string        `yaml:"digester" json:"digester"`
	Workers          int           `yaml:"workers" json:"workers"`
	FileTimeout      time.Duration `yaml:"file_timeout" json:"file_timeout"`
	ProgressEvery    int           `yaml:"progress_every" json:"progress_every"`
	ProgressInterval time.Duration `yaml:"progress_interval" json:"progress_interval"`
}

// Reconcile configures classification.
type Reconcile struct {
	IncludeZeroPaths bool `yaml:"include_zero_paths" json:"include_zero_paths"`
}

// Ledger configures the run history database.
type Ledger struct {
	Path     string `yaml:"path" json:"path"`
	Disabled bool   `yaml:"disabled" json:"disabled"`
}

// Config is the resolved configuration.
type Config struct {
	Devices   map[string]Device `yaml:"devices" json:"devices"`
	Graph     Graph             `yaml:"graph" json:"graph"`
	Census    Census            `yaml:"census" json:"census"`
	Hash      Hash              `yaml:"hash" json:"hash"`
	Reconcile Reconcile         `yaml:"reconcile" json:"reconcile"`
	Ledger    Ledger            `yaml:"ledger" json:"ledger"`

	// Source is the file the configuration was read from, "" for defaults.
	Source string `yaml:"-" json:"source,omitempty"`
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	return &Config{
		Devices: map[string]Device{},
		Graph: Graph{
			Endpoints:      append([]string(nil), graph.DefaultEndpoints...),
			GraphURIPrefix: graph.DefaultGraphURIPrefix,
			QueryTimeout:   5 * time.Minute,
			ProbeTimeout:   10 * time.Second,
		},
		Census: Census{
			Counter:   "native",
			Secondary: "find",
			Recursive: true,
			Entries:   "regular",
		},
		Hash: Hash{
			Digester:         "native",
			FileTimeout:      time.Hour,
			ProgressEvery:    10,
			ProgressInterval: 3 * time.Second,
		},
		Ledger: Ledger{Path: "fixity.db"},
	}
}

// Find looks for FileName in dir and up to three of its parents.
// It returns "" without error when no file exists.
func Find(dir string) (string, error) {
	dir, err := filepath.Abs(dir)
	if err != nil {
		return "", err
	}
	for i := 0; i <= searchDepth; i++ {
		p := filepath.Join(dir, FileName)
		if _, err := os.Stat(p); err == nil {
			return p, nil
		} else if !errors.Is(err, os.ErrNotExist) {
			return "", err
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	return "", nil
}

// Load reads and validates the file at path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fault.New(fault.KindConfiguration, "read config", path, err)
	}
	cfg, err := Parse(data)
	if err != nil {
		return nil, fault.New(fault.KindConfiguration, "load config", path, err)
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		abs = path
	}
	cfg.Source = abs
	cfg.resolvePaths(filepath.Dir(abs))
	return cfg, nil
}

// Resolve loads explicit when set, otherwise the file found from dir,
// otherwise the defaults.
func Resolve(explicit, dir string) (*Config, error) {
	if explicit != "" {
		return Load(explicit)
	}
	found, err := Find(dir)
	if err != nil {
		return nil, fault.New(fault.KindConfiguration, "find config", dir, err)
	}
	if found == "" {
		return Default(), nil
	}
	return Load(found)
}

// Parse validates YAML against the schema and decodes it over the defaults.
func Parse(data []byte) (*Config, error) {
	if err := Validate(data); err != nil {
		return nil, err
	}
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("decode: %w", err)
	}
	if cfg.Devices == nil {
		cfg.Devices = map[string]Device{}
	}
	for name, d := range cfg.Devices {
		d.Name = name
		if d.BasePath == "" {
			d.BasePath = d.Path
		}
		if d.CountOutput == "" {
			d.CountOutput = name + "_COUNT.json"
		}
		if d.HashOutput == "" {
			d.HashOutput = name + "_HASH.json"
		}
		cfg.Devices[name] = d
	}
	return cfg, nil
}

// Validate checks YAML against the embedded CUE schema.
func Validate(data []byte) error {
	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("parse yaml: %w", err)
	}
	if raw == nil {
		raw = map[string]any{}
	}

	ctx := cuecontext.New()
	schema := ctx.CompileString(schemaSource, cue.Filename("schema.cue")).LookupPath(cue.ParsePath("#Config"))
	if err := schema.Err(); err != nil {
		return fmt.Errorf("compile schema: %w", err)
	}
	v := schema.Unify(ctx.Encode(raw))
	if err := v.Validate(cue.Concrete(true)); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// resolvePaths makes output paths relative to the config file directory.
func (c *Config) resolvePaths(dir string) {
	abs := func(p string) string {
		if p == "" || filepath.IsAbs(p) {
			return p
		}
		return filepath.Join(dir, p)
	}
	for name, d := range c.Devices {
		d.CountOutput = abs(d.CountOutput)
		d.HashOutput = abs(d.HashOutput)
		c.Devices[name] = d
	}
	c.Ledger.Path = abs(c.Ledger.Path)
}

// Device returns the named device.
func (c *Config) Device(name string) (Device, error) {
	d, ok := c.Devices[name]
	if !ok {
		known := c.DeviceNames()
		if len(known) == 0 {
			return Device{}, fault.Errorf(fault.KindConfiguration, "resolve device", name, "unknown device (no devices configured)")
		}
		return Device{}, fault.Errorf(fault.KindConfiguration, "resolve device", name,
			"unknown device (available: %s)", strings.Join(known, ", "))
	}
	return d, nil
}

// DeviceForPath returns the device whose path equals dir after cleaning.
func (c *Config) DeviceForPath(dir string) (Device, bool) {
	want := filepath.Clean(dir)
	for _, name := range c.DeviceNames() {
		d := c.Devices[name]
		if filepath.Clean(d.Path) == want {
			return d, true
		}
	}
	return Device{}, false
}

// DeviceNames returns configured device names in sorted order.
func (c *Config) DeviceNames() []string {
	names := make([]string, 0, len(c.Devices))
	for name := range c.Devices {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Marshal renders the resolved configuration as YAML.
func (c *Config) Marshal() ([]byte, error) {
	return yaml.Marshal(c)
}
