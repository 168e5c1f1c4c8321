package config

import (
	"bytes"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultManifestFile is the manifest name looked up in the working
// directory when no --file flag is given.
const DefaultManifestFile = "relo.yaml"

// DefaultServeAddr is the listen address used when the manifest does not
// configure one.
const DefaultServeAddr = "127.0.0.1:5500"

// Duration wraps time.Duration with YAML support for strings like
// "750ms" or "2s".
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var raw string
	if err := node.Decode(&raw); err != nil {
		return fmt.Errorf("debounce must be a duration string: %w", err)
	}

	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("invalid debounce %q: %w", raw, err)
	}

	if parsed < 0 {
		return fmt.Errorf("invalid debounce %q: must not be negative", raw)
	}

	*d = Duration(parsed)

	return nil
}

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// RuleConfig is one watch rule in the manifest: when a file matching
// Pattern changes, Run is executed through the shell. Rules fire in
// manifest order.
type RuleConfig struct {
	// Pattern is a glob or exact path, relative to the watch root.
	Pattern string `yaml:"pattern"`

	// Run is the shell command to execute.
	Run string `yaml:"run"`

	// Output optionally captures the command's stdout into a file
	// instead of the console (e.g. run `lessc style.less` with
	// output `site/style.css`).
	Output string `yaml:"output,omitempty"`

	// Debounce overrides the default quiet period for this rule.
	Debounce Duration `yaml:"debounce,omitempty"`
}

// ServeConfig configures the static file server.
type ServeConfig struct {
	// Dir is the directory to serve. Defaults to the watch root.
	Dir string `yaml:"dir,omitempty"`

	// Addr is the listen address. Defaults to DefaultServeAddr.
	Addr string `yaml:"addr,omitempty"`
}

// Manifest is a project's relo.yaml: the watch root, the serve settings,
// and the ordered watch rules.
type Manifest struct {
	// Root is the source directory to watch. Defaults to ".".
	Root string `yaml:"root,omitempty"`

	// Serve configures the static file server.
	Serve ServeConfig `yaml:"serve,omitempty"`

	// Watch is the ordered rule list.
	Watch []RuleConfig `yaml:"watch"`
}

// LoadManifest reads and validates a manifest file. Unknown keys are
// rejected so typos surface at startup instead of silently dropping a
// rule.
func LoadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading manifest %q: %w", path, err)
	}

	var m Manifest

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	if err := dec.Decode(&m); err != nil {
		return nil, fmt.Errorf("parsing manifest %q: %w", path, err)
	}

	m.applyDefaults()

	if err := m.Validate(); err != nil {
		return nil, fmt.Errorf("manifest %q: %w", path, err)
	}

	return &m, nil
}

// applyDefaults fills in unset optional fields.
func (m *Manifest) applyDefaults() {
	if m.Root == "" {
		m.Root = "."
	}

	if m.Serve.Dir == "" {
		m.Serve.Dir = m.Root
	}

	if m.Serve.Addr == "" {
		m.Serve.Addr = DefaultServeAddr
	}
}

// Validate checks the manifest for structural errors. Pattern syntax is
// checked later, when rules are compiled into the registry.
func (m *Manifest) Validate() error {
	if len(m.Watch) == 0 {
		return fmt.Errorf("no watch rules defined")
	}

	for i, rule := range m.Watch {
		if rule.Pattern == "" {
			return fmt.Errorf("watch rule %d: pattern is empty", i+1)
		}

		if rule.Run == "" {
			return fmt.Errorf("watch rule %d (%s): run command is empty", i+1, rule.Pattern)
		}
	}

	return nil
}
