// Package config loads the workspace configuration from <root>/config.yaml.
//
// The file is optional. Values present in it override Default; relative
// paths resolve against the workspace root. Before decoding, the raw YAML
// is checked against an embedded CUE schema so typos and out-of-range
// weights fail loudly instead of silently falling back to defaults.
package config

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueyaml "cuelang.org/go/encoding/yaml"
	"github.com/felixgeelhaar/bolt/v3"
	"gopkg.in/yaml.v3"

	"github.com/roach88/workgraph/internal/attribution"
	"github.com/roach88/workgraph/internal/observe"
)

// FileName is the config file looked up under the workspace root.
const FileName = "config.yaml"

//go:embed schema.cue
var schemaSource string

// Config is the full workspace configuration.
type Config struct {
	Log         LogConfig          `yaml:"log"`
	Nodes       NodesConfig        `yaml:"nodes"`
	Events      EventsConfig       `yaml:"events"`
	Index       IndexConfig        `yaml:"index"`
	Attribution attribution.Config `yaml:"attribution"`

	// Root is the workspace directory the config was loaded for.
	Root string `yaml:"-"`
}

// LogConfig selects the log level and handler.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // "console" | "json"
}

// NodesConfig tunes the node store. Documents always live under
// <root>/nodes.
type NodesConfig struct {
	LoadWorkers int `yaml:"load_workers"`
}

// EventsConfig locates the event log.
type EventsConfig struct {
	Dir string `yaml:"dir"`
}

// IndexConfig locates the secondary index and sets its freshness rules.
type IndexConfig struct {
	Path          string        `yaml:"path"`
	StaleAfter    time.Duration `yaml:"stale_after"`
	WatchDebounce time.Duration `yaml:"watch_debounce"`
}

// Default returns the configuration used when no file is present.
func Default() Config {
	return Config{
		Log:         LogConfig{Level: "info", Format: "console"},
		Nodes:       NodesConfig{LoadWorkers: 8},
		Events:      EventsConfig{Dir: "events"},
		Index:       IndexConfig{Path: "index.db", StaleAfter: 5 * time.Minute, WatchDebounce: 500 * time.Millisecond},
		Attribution: attribution.DefaultConfig(),
	}
}

// Load reads <root>/config.yaml over Default. A missing file is not an
// error.
func Load(root string) (Config, error) {
	data, err := os.ReadFile(filepath.Join(root, FileName))
	if errors.Is(err, fs.ErrNotExist) {
		return Default().resolve(root), nil
	}
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	return Parse(root, data)
}

// Parse validates data against the schema and decodes it over Default.
func Parse(root string, data []byte) (Config, error) {
	if err := Validate(data); err != nil {
		return Config{}, err
	}
	cfg := Default()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	return cfg.resolve(root), nil
}

// Validate checks raw YAML against the embedded schema. Unknown keys are
// rejected.
func Validate(data []byte) error {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	ctx := cuecontext.New()
	schema := ctx.CompileString(schemaSource, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return fmt.Errorf("config schema: %w", err)
	}

	file, err := cueyaml.Extract(FileName, data)
	if err != nil {
		return fmt.Errorf("parse config: %w", err)
	}
	doc := ctx.BuildFile(file)
	if err := doc.Err(); err != nil {
		return fmt.Errorf("parse config: %w", err)
	}

	def := schema.LookupPath(cue.ParsePath("#Config"))
	if err := def.Unify(doc).Validate(cue.Concrete(true)); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

func (c Config) resolve(root string) Config {
	c.Root = root
	c.Events.Dir = under(root, c.Events.Dir)
	c.Index.Path = under(root, c.Index.Path)
	return c
}

func under(root, p string) string {
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(root, p)
}

// Logger builds the configured logger writing to out.
func (c Config) Logger(out io.Writer) (*bolt.Logger, error) {
	var (
		o   *observe.Observer
		err error
	)
	if c.Log.Format == "json" {
		o, err = observe.NewJSON(out, c.Log.Level)
	} else {
		o, err = observe.New(out, c.Log.Level)
	}
	if err != nil {
		return nil, err
	}
	return o.Log(), nil
}
