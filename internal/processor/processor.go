package processor

import (
	"path/filepath"
	"strings"
)

// DefaultPriority is assigned when a descriptor leaves Priority at zero.
// Lower priorities run first.
const DefaultPriority = 100

// Processor is the contract between the dispatch engine and any piece of
// processing logic, built-in or externally supplied.
//
// Process receives the file path and the shared per-run context. It returns
// an Outcome describing what happened, or an error when the step itself
// broke. Errors are caught by the chain and converted to failed outcomes;
// they never propagate past a single step.
type Processor interface {
	// Descriptor returns the processor's identity. It must be stable for
	// the lifetime of the processor; the registry copies it at
	// registration time.
	Descriptor() Descriptor

	// Process runs the processor against path. The context carries values
	// contributed by earlier steps in the same chain run.
	Process(ctx *Context, path string) (*Outcome, error)
}

// Matcher is an optional refinement of Processor. When implemented, it
// replaces the default extension-membership test with custom logic such as
// size limits or tool availability checks.
type Matcher interface {
	Matches(path string) bool
}

// Configurable is an optional refinement of Processor. When implemented,
// the resolved option values for the processor's namespace are delivered
// once at startup, after binding and before any Process call.
type Configurable interface {
	Configure(values map[string]any) error
}

// Descriptor is the immutable identity of a registered processor.
type Descriptor struct {
	// Name is the display name (e.g. "Image Compressor").
	Name string

	// Version is informational and may be empty.
	Version string

	// Priority orders chain execution; lower runs first. Zero means
	// DefaultPriority. Ties are broken by registration order.
	Priority int

	// Namespace overrides the derived configuration namespace. Empty
	// means derive from Name.
	Namespace string

	// Extensions lists the file extensions the processor applies to
	// (with leading dot, e.g. ".jpg"). Ignored when the processor
	// implements Matcher.
	Extensions []string

	// Options declares the configuration the processor accepts.
	Options []Option
}

// EffectivePriority returns Priority, substituting DefaultPriority for zero.
func (d Descriptor) EffectivePriority() int {
	if d.Priority == 0 {
		return DefaultPriority
	}
	return d.Priority
}

// ConfigNamespace returns the namespace under which the processor's options
// are exposed: the explicit override when set, otherwise derived from Name.
func (d Descriptor) ConfigNamespace() string {
	if d.Namespace != "" {
		return d.Namespace
	}
	return DeriveNamespace(d.Name)
}

// DeriveNamespace converts a display name into a configuration namespace:
// lowercased, with spaces and underscores replaced by hyphens.
// "Image Compressor" becomes "image-compressor".
func DeriveNamespace(name string) string {
	ns := strings.ToLower(strings.TrimSpace(name))
	ns = strings.ReplaceAll(ns, " ", "-")
	ns = strings.ReplaceAll(ns, "_", "-")
	return ns
}

// MatchesExtension reports whether path's extension is a case-insensitive
// member of exts. This is the default applicability predicate for
// processors that do not implement Matcher.
func MatchesExtension(exts []string, path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	if ext == "" {
		return false
	}
	for _, e := range exts {
		if strings.ToLower(e) == ext {
			return true
		}
	}
	return false
}
