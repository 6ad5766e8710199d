package plugin

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ErrEntryMissing reports a plugin directory whose entry script does not
// exist.
var ErrEntryMissing = errors.New("plugin: entry script not found")

// Candidate is one discovered plugin source, not yet loaded.
type Candidate struct {
	// Name is the best-known name before loading: the manifest name, or
	// the file stem for single-file plugins.
	Name string

	// Dir is the plugin directory. Empty for single-file plugins.
	Dir string

	// Script is the path to the entry script.
	Script string

	// Manifest is nil for single-file plugins; their descriptor comes
	// from the script itself.
	Manifest *Manifest

	// Err records a discovery-time failure (unreadable manifest, missing
	// entry script). The candidate is still listed so the failure is
	// visible; it will never load.
	Err error
}

// Loader discovers plugin candidates in a set of directories.
//
// Each search directory may contain plugin directories (a manifest plus an
// entry script) and bare single-file plugins (<name>.lua). Directories
// without a manifest are not plugins and are skipped. A bad candidate never
// stops discovery of its siblings.
type Loader struct {
	paths []string
}

// NewLoader creates a loader over the given search paths, checked in order.
func NewLoader(paths ...string) *Loader {
	return &Loader{paths: paths}
}

// Paths returns the configured search paths.
func (l *Loader) Paths() []string {
	return l.paths
}

// Discover finds all plugin candidates. Candidates appear in search-path
// order, then directory-entry order within each path, which fixes the
// registration order for priority ties. Missing search paths are skipped.
func (l *Loader) Discover() []Candidate {
	var out []Candidate
	for _, base := range l.paths {
		out = append(out, l.discoverIn(base)...)
	}
	return out
}

func (l *Loader) discoverIn(base string) []Candidate {
	entries, err := os.ReadDir(base)
	if err != nil {
		return nil
	}

	var out []Candidate
	for _, entry := range entries {
		if entry.IsDir() {
			if c, ok := inspectDir(filepath.Join(base, entry.Name()), entry.Name()); ok {
				out = append(out, c)
			}
			continue
		}
		if filepath.Ext(entry.Name()) == ".lua" {
			out = append(out, Candidate{
				Name:   strings.TrimSuffix(entry.Name(), ".lua"),
				Script: filepath.Join(base, entry.Name()),
			})
		}
	}
	return out
}

// inspectDir examines one subdirectory. It returns false when the directory
// carries no manifest and is therefore not a plugin.
func inspectDir(dir, name string) (Candidate, bool) {
	manifestPath, ok := FindManifest(dir)
	if !ok {
		return Candidate{}, false
	}

	c := Candidate{Name: name, Dir: dir}

	m, err := LoadManifest(manifestPath)
	if err != nil {
		c.Err = err
		return c, true
	}
	c.Name = m.Name
	c.Manifest = m

	script, err := resolveEntry(dir, m.Main)
	if err != nil {
		c.Err = err
		return c, true
	}
	c.Script = script
	return c, true
}

// resolveEntry locates the entry script. An explicit main must exist; the
// default is init.lua with plugin.lua as fallback.
func resolveEntry(dir, main string) (string, error) {
	if main != "" {
		path := filepath.Join(dir, main)
		if fileExists(path) {
			return path, nil
		}
		return "", fmt.Errorf("%w: %s", ErrEntryMissing, path)
	}

	for _, name := range []string{"init.lua", "plugin.lua"} {
		path := filepath.Join(dir, name)
		if fileExists(path) {
			return path, nil
		}
	}
	return "", fmt.Errorf("%w: no init.lua or plugin.lua in %s", ErrEntryMissing, dir)
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
