package tooldef

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/oriys/pulsar/executor"
)

// Manifest is the optional YAML file tuning a deployed tool's executor
// without rebuilding the binary.
type Manifest struct {
	Name        string `yaml:"name,omitempty"`
	Description string `yaml:"description,omitempty"`

	// Durations use Go syntax, e.g. "5s", "90m".
	MaxWait         string `yaml:"maxWait,omitempty"`
	RefreshInterval string `yaml:"refreshInterval,omitempty"`
	Retention       string `yaml:"retention,omitempty"`

	MaxConcurrent int `yaml:"maxConcurrent,omitempty"`
	MaxCachedJobs int `yaml:"maxCachedJobs,omitempty"`
}

// LoadManifest parses a tool manifest file.
func LoadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read manifest: %w", err)
	}
	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse manifest %s: %w", path, err)
	}
	return &m, nil
}

// Apply merges the manifest into a tool's metadata.
func (m *Manifest) Apply(t *Tool) {
	if m.Name != "" {
		t.Name = m.Name
	}
	if m.Description != "" {
		t.Description = m.Description
	}
}

// ExecutorOptions translates the manifest into executor options.
func (m *Manifest) ExecutorOptions() ([]executor.Option, error) {
	var opts []executor.Option

	parse := func(field, v string) (time.Duration, error) {
		d, err := time.ParseDuration(v)
		if err != nil {
			return 0, fmt.Errorf("manifest %s: %w", field, err)
		}
		return d, nil
	}

	if m.MaxWait != "" {
		d, err := parse("maxWait", m.MaxWait)
		if err != nil {
			return nil, err
		}
		opts = append(opts, executor.WithMaxWait(d))
	}
	if m.RefreshInterval != "" {
		d, err := parse("refreshInterval", m.RefreshInterval)
		if err != nil {
			return nil, err
		}
		opts = append(opts, executor.WithRefreshInterval(d))
	}
	if m.Retention != "" {
		d, err := parse("retention", m.Retention)
		if err != nil {
			return nil, err
		}
		opts = append(opts, executor.WithRetention(d))
	}
	if m.MaxConcurrent > 0 {
		opts = append(opts, executor.WithMaxConcurrent(m.MaxConcurrent))
	}
	if m.MaxCachedJobs > 0 {
		opts = append(opts, executor.WithMaxEntries(m.MaxCachedJobs))
	}
	return opts, nil
}
