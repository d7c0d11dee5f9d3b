package suite

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/roach88/sfwa/internal/harness"
)

// Manifest lists the targets a suite checks.
//
//	name: storefront
//	timeout: 500ms
//	targets:
//	  - name: counter
//	    contract: contracts/counter.abi.json
//	    html: apps/counter/**/*.html
//	    mode: all
type Manifest struct {
	Name        string   `yaml:"name"`
	Description string   `yaml:"description,omitempty"`
	Timeout     string   `yaml:"timeout,omitempty"`
	Targets     []Target `yaml:"targets"`

	// Dir is the directory contract and html paths are resolved against.
	Dir string `yaml:"-"`
}

// Target pairs one contract with every HTML file its glob matches.
type Target struct {
	Name        string `yaml:"name"`
	Contract    string `yaml:"contract"`
	HTML        string `yaml:"html"`
	Mode        string `yaml:"mode,omitempty"`
	InitialHash string `yaml:"initial_hash,omitempty"`
}

// LoadManifest reads and validates a suite manifest. Unknown fields are
// rejected so typos surface immediately.
func LoadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read manifest file: %w", err)
	}

	var m Manifest
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&m); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve manifest path: %w", err)
	}
	m.Dir = filepath.Dir(abs)

	if err := validateManifest(&m); err != nil {
		return nil, fmt.Errorf("invalid manifest: %w", err)
	}
	return &m, nil
}

// TimeoutDuration returns the per-script budget, or 0 when unset.
func (m *Manifest) TimeoutDuration() time.Duration {
	d, _ := time.ParseDuration(m.Timeout)
	return d
}

// resolve returns p relative to the manifest directory unless it is absolute.
func (m *Manifest) resolve(p string) string {
	if filepath.IsAbs(p) || m.Dir == "" {
		return p
	}
	return filepath.Join(m.Dir, p)
}

func validateManifest(m *Manifest) error {
	if m.Name == "" {
		return fmt.Errorf("name is required")
	}
	if m.Timeout != "" {
		d, err := time.ParseDuration(m.Timeout)
		if err != nil {
			return fmt.Errorf("timeout: %w", err)
		}
		if d <= 0 {
			return fmt.Errorf("timeout must be positive, got %s", m.Timeout)
		}
	}
	if len(m.Targets) == 0 {
		return fmt.Errorf("targets list is required and must be non-empty")
	}

	seen := make(map[string]bool, len(m.Targets))
	for i, t := range m.Targets {
		if t.Name == "" {
			return fmt.Errorf("targets[%d]: name is required", i)
		}
		if seen[t.Name] {
			return fmt.Errorf("targets[%d]: duplicate name %q", i, t.Name)
		}
		seen[t.Name] = true
		if t.Contract == "" {
			return fmt.Errorf("targets[%d]: contract is required", i)
		}
		if t.HTML == "" {
			return fmt.Errorf("targets[%d]: html is required", i)
		}
		if _, err := harness.ParseMode(t.Mode); err != nil {
			return fmt.Errorf("targets[%d]: %w", i, err)
		}
	}
	return nil
}
