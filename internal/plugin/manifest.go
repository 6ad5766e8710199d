package plugin

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/dshills/imgc/internal/processor"
)

// Manifest describes a plugin's identity and configuration schema.
type Manifest struct {
	// Identity
	Name        string `yaml:"name"`        // Unique identifier (e.g., "document-analyzer")
	Version     string `yaml:"version"`     // Semver (e.g., "1.2.0")
	Description string `yaml:"description"` // Short description
	Author      string `yaml:"author"`      // Author name or org

	// Priority orders the plugin within the chain; lower runs first.
	// Zero means unset and falls back to the default priority.
	Priority int `yaml:"priority"`

	// Namespace overrides the configuration namespace derived from the
	// name.
	Namespace string `yaml:"namespace"`

	// Main is the entry script relative to the plugin directory. Empty
	// means init.lua, falling back to plugin.lua.
	Main string `yaml:"main"`

	// Extensions the plugin claims (e.g., ".txt"). A plugin may instead
	// declare a matches function in its script.
	Extensions []string `yaml:"extensions"`

	// Options is the configuration schema, keyed by option name.
	Options map[string]OptionSpec `yaml:"options"`

	// Internal: path to the plugin directory
	path string
}

// OptionSpec describes a configuration option.
type OptionSpec struct {
	Type        string   `yaml:"type"`        // string, int, float, bool
	Default     any      `yaml:"default"`     // Default value
	Description string   `yaml:"description"` // Option description
	Enum        []any    `yaml:"enum"`        // Allowed values
	Minimum     *float64 `yaml:"min"`         // Minimum for numeric types
	Maximum     *float64 `yaml:"max"`         // Maximum for numeric types
}

// Validation errors.
var (
	ErrMissingName      = errors.New("manifest: name is required")
	ErrInvalidName      = errors.New("manifest: name must be lowercase alphanumeric with hyphens")
	ErrInvalidVersion   = errors.New("manifest: version must be valid semver")
	ErrInvalidNamespace = errors.New("manifest: namespace must be lowercase alphanumeric with hyphens")
	ErrInvalidMain      = errors.New("manifest: main must be a .lua file")
	ErrInvalidOption    = errors.New("manifest: invalid option")
)

// namePattern validates plugin names and namespaces.
var namePattern = regexp.MustCompile(`^[a-z0-9][a-z0-9-]*$`)

// optionNamePattern validates option names.
var optionNamePattern = regexp.MustCompile(`^[a-z0-9][a-z0-9_-]*$`)

// semverPattern validates version strings (simplified semver).
var semverPattern = regexp.MustCompile(`^\d+\.\d+\.\d+(-[a-zA-Z0-9.-]+)?(\+[a-zA-Z0-9.-]+)?$`)

// manifestNames are the recognized manifest file names, checked in order.
var manifestNames = []string{"plugin.yaml", "plugin.yml", "plugin.json"}

// LoadManifest loads and validates a plugin manifest from a file.
// JSON manifests parse with the same decoder since YAML is a superset.
func LoadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read manifest: %w", err)
	}

	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("failed to parse manifest: %w", err)
	}

	m.path = filepath.Dir(path)
	m.applyDefaults()

	if err := m.Validate(); err != nil {
		return nil, err
	}

	return &m, nil
}

// FindManifest locates the manifest file in a plugin directory.
func FindManifest(dir string) (string, bool) {
	for _, name := range manifestNames {
		path := filepath.Join(dir, name)
		if info, err := os.Stat(path); err == nil && !info.IsDir() {
			return path, true
		}
	}
	return "", false
}

// applyDefaults sets default values for optional fields.
func (m *Manifest) applyDefaults() {
	if m.Version == "" {
		m.Version = "0.0.0"
	}
}

// Validate checks that the manifest is valid.
func (m *Manifest) Validate() error {
	if m.Name == "" {
		return ErrMissingName
	}
	if !namePattern.MatchString(m.Name) {
		return fmt.Errorf("%w: %s", ErrInvalidName, m.Name)
	}

	if !semverPattern.MatchString(m.Version) {
		return fmt.Errorf("%w: %s", ErrInvalidVersion, m.Version)
	}

	if m.Namespace != "" && !namePattern.MatchString(m.Namespace) {
		return fmt.Errorf("%w: %s", ErrInvalidNamespace, m.Namespace)
	}

	if m.Main != "" && filepath.Ext(m.Main) != ".lua" {
		return fmt.Errorf("%w: %s", ErrInvalidMain, m.Main)
	}

	for name, spec := range m.Options {
		if !optionNamePattern.MatchString(name) {
			return fmt.Errorf("%w: %s.%s has invalid name", ErrInvalidOption, m.Name, name)
		}
		if _, err := spec.option(name); err != nil {
			return fmt.Errorf("%w: %s.%s: %v", ErrInvalidOption, m.Name, name, err)
		}
	}

	return nil
}

// Path returns the plugin directory the manifest was loaded from.
func (m *Manifest) Path() string {
	return m.path
}

// Descriptor converts the manifest into a processor descriptor. Options
// are ordered by name so flag registration stays deterministic.
func (m *Manifest) Descriptor() (processor.Descriptor, error) {
	desc := processor.Descriptor{
		Name:       m.Name,
		Version:    m.Version,
		Priority:   m.Priority,
		Namespace:  m.Namespace,
		Extensions: normalizeExtensions(m.Extensions),
	}

	names := make([]string, 0, len(m.Options))
	for name := range m.Options {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		opt, err := m.Options[name].option(name)
		if err != nil {
			return desc, fmt.Errorf("%w: %s.%s: %v", ErrInvalidOption, m.Name, name, err)
		}
		desc.Options = append(desc.Options, opt)
	}

	return desc, nil
}

// option converts an OptionSpec into a typed option and checks that the
// declared default satisfies the option's own constraints.
func (s OptionSpec) option(name string) (processor.Option, error) {
	typ := processor.OptionString
	if s.Type != "" {
		var err error
		typ, err = processor.ParseOptionType(s.Type)
		if err != nil {
			return processor.Option{}, err
		}
	}

	opt := processor.Option{
		Name:        name,
		Type:        typ,
		Description: s.Description,
		Minimum:     s.Minimum,
		Maximum:     s.Maximum,
	}
	opt.Default = normalizeOptionValue(typ, s.Default)
	for _, e := range s.Enum {
		opt.Enum = append(opt.Enum, normalizeOptionValue(typ, e))
	}

	if opt.Default != nil {
		if err := opt.Validate(opt.Default); err != nil {
			return processor.Option{}, fmt.Errorf("default %v: %v", opt.Default, err)
		}
	}

	return opt, nil
}

// normalizeOptionValue converts decoded YAML numbers into the Go types the
// option type expects, so comparisons against resolved values hold.
func normalizeOptionValue(typ processor.OptionType, v any) any {
	if v == nil {
		return nil
	}
	switch typ {
	case processor.OptionInt:
		switch n := v.(type) {
		case int:
			return n
		case int64:
			return int(n)
		case uint64:
			return int(n)
		case float64:
			if n == float64(int(n)) {
				return int(n)
			}
		}
	case processor.OptionFloat:
		switch n := v.(type) {
		case int:
			return float64(n)
		case int64:
			return float64(n)
		case uint64:
			return float64(n)
		case float64:
			return n
		}
	}
	return v
}

// normalizeExtensions lowercases extensions and ensures a leading dot.
func normalizeExtensions(exts []string) []string {
	if len(exts) == 0 {
		return nil
	}
	out := make([]string, 0, len(exts))
	for _, e := range exts {
		e = strings.ToLower(strings.TrimSpace(e))
		if e == "" {
			continue
		}
		if !strings.HasPrefix(e, ".") {
			e = "." + e
		}
		out = append(out, e)
	}
	return out
}
