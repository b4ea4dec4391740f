// Package config loads docsync configuration.
//
// Precedence, lowest first: Default(), the YAML config file, command-line
// flags (applied by the cli package).
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/natefinch/atomic"
	"gopkg.in/yaml.v3"

	"github.com/roach88/docsync/internal/docstore"
	"github.com/roach88/docsync/internal/query"
	"github.com/roach88/docsync/internal/remote"
	"github.com/roach88/docsync/internal/schema"
	"github.com/roach88/docsync/internal/syncstore"
)

// DefaultPath is the config file looked up when none is given.
const DefaultPath = "docsync.yaml"

// Config is the on-disk configuration.
type Config struct {
	Name   string `yaml:"name"`
	Dir    string `yaml:"dir"`
	Engine string `yaml:"engine"`

	// ClientID seeds the identity of a new store. Leave empty to generate.
	ClientID string `yaml:"client_id,omitempty"`

	Remote     Remote     `yaml:"remote"`
	Projection Projection `yaml:"projection"`

	// Schema is the path of an optional CUE payload schema.
	Schema string `yaml:"schema,omitempty"`
}

// Remote configures remote sync.
type Remote struct {
	Enabled      bool          `yaml:"enabled"`
	URL          string        `yaml:"url"`
	Timeout      time.Duration `yaml:"timeout"`
	BatchSize    int           `yaml:"batch_size"`
	BatchesLimit int           `yaml:"batches_limit"`
	RetryMin     time.Duration `yaml:"retry_min"`
	RetryMax     time.Duration `yaml:"retry_max"`
}

// Projection configures the in-memory projection.
type Projection struct {
	Enabled     bool   `yaml:"enabled"`
	SingletonID string `yaml:"singleton_id,omitempty"`
	// Sort is a comma-separated field list, "-" prefix for descending.
	Sort string `yaml:"sort,omitempty"`
	// Filter is an expr-lang expression over the flattened document.
	Filter string `yaml:"filter,omitempty"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Dir:    ".docsync",
		Engine: docstore.EngineSQLite,
		Remote: Remote{
			Timeout:      remote.DefaultProbeTimeout,
			BatchSize:    syncstore.DefaultBatchSize,
			BatchesLimit: syncstore.DefaultBatchesLimit,
			RetryMin:     time.Second,
			RetryMax:     time.Minute,
		},
		Projection: Projection{Enabled: true},
	}
}

// Load reads path over the defaults. Unknown keys are rejected.
func Load(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}

	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}

// LoadOptional is Load, except a missing file yields the defaults.
func LoadOptional(path string) (Config, error) {
	cfg, err := Load(path)
	if errors.Is(err, os.ErrNotExist) {
		return Default(), nil
	}
	return cfg, err
}

// Validate checks the fields that have no usable default.
func (c Config) Validate() error {
	if c.Name == "" {
		return fmt.Errorf("name is required")
	}
	switch c.Engine {
	case docstore.EngineSQLite, docstore.EngineMemory:
	default:
		return fmt.Errorf("engine must be %q or %q, got %q", docstore.EngineSQLite, docstore.EngineMemory, c.Engine)
	}
	if c.Remote.Enabled && c.Remote.URL == "" {
		return fmt.Errorf("remote.url is required when remote.enabled is true")
	}
	if c.Remote.BatchSize < 0 || c.Remote.BatchesLimit < 0 {
		return fmt.Errorf("remote batch settings must not be negative")
	}
	return nil
}

// Marshal renders c as YAML.
func (c Config) Marshal() ([]byte, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(c); err != nil {
		return nil, fmt.Errorf("encode config: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("encode config: %w", err)
	}
	return buf.Bytes(), nil
}

// Write stores c at path atomically.
func (c Config) Write(path string) error {
	data, err := c.Marshal()
	if err != nil {
		return err
	}
	if err := atomic.WriteFile(path, bytes.NewReader(data)); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

// StoreOptions converts c into store options, compiling the projection
// query and loading the schema file.
func (c Config) StoreOptions() (syncstore.Options, error) {
	if err := c.Validate(); err != nil {
		return syncstore.Options{}, err
	}

	opts := syncstore.Options{
		Name:     c.Name,
		Engine:   c.Engine,
		Dir:      c.Dir,
		ClientID: c.ClientID,
		Remote: syncstore.RemoteOptions{
			Enabled:      c.Remote.Enabled,
			URL:          c.Remote.URL,
			Timeout:      c.Remote.Timeout,
			BatchSize:    c.Remote.BatchSize,
			BatchesLimit: c.Remote.BatchesLimit,
			RetryMin:     c.Remote.RetryMin,
			RetryMax:     c.Remote.RetryMax,
		},
		Projection: syncstore.ProjectionOptions{
			Disabled:    !c.Projection.Enabled,
			SingletonID: c.Projection.SingletonID,
		},
	}

	if c.Projection.Sort != "" || c.Projection.Filter != "" {
		fields, err := query.ParseSort(c.Projection.Sort)
		if err != nil {
			return syncstore.Options{}, fmt.Errorf("projection.sort: %w", err)
		}
		q, err := query.Compile(query.Query{Filter: c.Projection.Filter, Sort: fields})
		if err != nil {
			return syncstore.Options{}, fmt.Errorf("projection.filter: %w", err)
		}
		if len(fields) > 0 {
			opts.Projection.Compare = q.Compare
		}
		if c.Projection.Filter != "" {
			opts.Projection.Filter = q.Predicate()
		}
	}

	if c.Schema != "" {
		s, err := schema.Load(c.Schema)
		if err != nil {
			return syncstore.Options{}, err
		}
		opts.Schema = s
	}
	return opts, nil
}
