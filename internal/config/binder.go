package config

import (
	"fmt"
	"os"
	"sort"

	"github.com/dshills/imgc/internal/processor"
)

// CoreNamespace is the reserved namespace for the watcher's own options.
// Its flags are unprefixed (--root, --workers) and its environment
// variables drop the namespace segment (IMGC_ROOT, not IMGC_CORE_ROOT).
const CoreNamespace = "core"

// Binder accumulates the configuration options declared by registered
// processors and resolves their values from flags, environment variables,
// a config file, and declared defaults.
//
// Binder is not safe for concurrent use; registration and resolution
// happen during single-threaded startup.
type Binder struct {
	prefix     string
	namespaces map[string]map[string]processor.Option // namespace -> canonical key -> option
	order      map[string][]string                    // namespace -> canonical keys in registration order
	nsOrder    []string
}

// NewBinder creates a binder using the given environment prefix
// (e.g. "IMGC_").
func NewBinder(prefix string) *Binder {
	return &Binder{
		prefix:     prefix,
		namespaces: make(map[string]map[string]processor.Option),
		order:      make(map[string][]string),
	}
}

// Register adds a processor's options under a namespace. Two processors may
// share a namespace with disjoint option names; a second declaration of the
// same option key in the same namespace is a *CollisionError. A declared
// default that does not satisfy the option's own constraints is rejected.
//
// Registration is atomic: when any option in the batch is rejected, none of
// them are kept, so the offending plugin can be excluded without poisoning
// resolution.
func (b *Binder) Register(namespace string, opts []processor.Option) error {
	if namespace == "" {
		return fmt.Errorf("config: empty namespace")
	}

	staged := make(map[string]processor.Option, len(opts))
	keys := make([]string, 0, len(opts))
	for _, opt := range opts {
		if opt.Name == "" {
			return fmt.Errorf("config: namespace %q declares an unnamed option", namespace)
		}
		key := CanonicalKey(opt.Name)
		if _, dup := b.namespaces[namespace][key]; dup {
			return &CollisionError{Namespace: namespace, Option: key}
		}
		if _, dup := staged[key]; dup {
			return &CollisionError{Namespace: namespace, Option: key}
		}
		if opt.Default != nil {
			if err := opt.Validate(opt.Default); err != nil {
				return fmt.Errorf("config: %s.%s default: %w", namespace, opt.Name, err)
			}
		}
		staged[key] = opt
		keys = append(keys, key)
	}

	ns, exists := b.namespaces[namespace]
	if !exists {
		ns = make(map[string]processor.Option)
		b.namespaces[namespace] = ns
		b.nsOrder = append(b.nsOrder, namespace)
	}
	for _, key := range keys {
		ns[key] = staged[key]
	}
	b.order[namespace] = append(b.order[namespace], keys...)
	return nil
}

// Namespaces returns registered namespaces in registration order.
func (b *Binder) Namespaces() []string {
	out := make([]string, len(b.nsOrder))
	copy(out, b.nsOrder)
	return out
}

// Options returns the options of a namespace in registration order.
func (b *Binder) Options(namespace string) []processor.Option {
	keys := b.order[namespace]
	out := make([]processor.Option, 0, len(keys))
	for _, k := range keys {
		out = append(out, b.namespaces[namespace][k])
	}
	return out
}

// FlagName returns the CLI flag name for an option: "<namespace>-<option>"
// with underscores hyphenated, or the bare option name for the core
// namespace.
func (b *Binder) FlagName(namespace, option string) string {
	key := CanonicalKey(option)
	if namespace == CoreNamespace {
		return key
	}
	return namespace + "-" + key
}

// EnvName returns the environment variable for an option:
// <PREFIX><NAMESPACE>_<OPTION>, or <PREFIX><OPTION> for the core namespace.
func (b *Binder) EnvName(namespace, option string) string {
	if namespace == CoreNamespace {
		return b.prefix + envSegment(option)
	}
	return b.prefix + envSegment(namespace) + "_" + envSegment(option)
}

// Resolve computes the final value of every registered option.
//
// flags maps flag names (as returned by FlagName) to raw values for flags
// explicitly set on the command line. file holds config-file tables keyed
// by namespace. Missing sources simply defer to the next precedence level.
//
// Resolution never fails on bad values: a value that cannot be coerced or
// violates the option's constraints produces a Warning and the option
// falls back through the remaining precedence levels.
func (b *Binder) Resolve(flags map[string]string, file map[string]map[string]any) *Resolved {
	r := &Resolved{values: make(map[string]map[string]any)}

	for _, namespace := range b.nsOrder {
		vals := make(map[string]any, len(b.order[namespace]))
		for _, key := range b.order[namespace] {
			opt := b.namespaces[namespace][key]
			vals[opt.Name] = b.resolveOption(r, namespace, key, opt, flags, file)
		}
		r.values[namespace] = vals
	}
	return r
}

func (b *Binder) resolveOption(r *Resolved, namespace, key string, opt processor.Option, flags map[string]string, file map[string]map[string]any) any {
	if raw, ok := flags[b.FlagName(namespace, opt.Name)]; ok {
		if v, err := coerceAndValidate(opt, raw); err == nil {
			return v
		} else {
			r.warn(namespace, opt.Name, "flag", raw, err)
		}
	}

	if raw, ok := os.LookupEnv(b.EnvName(namespace, opt.Name)); ok {
		if v, err := coerceAndValidate(opt, raw); err == nil {
			return v
		} else {
			r.warn(namespace, opt.Name, "env", raw, err)
		}
	}

	if table, ok := file[namespace]; ok {
		if fv, ok := lookupFileValue(table, key); ok {
			if v, err := normalizeAndValidate(opt, fv); err == nil {
				return v
			} else {
				r.warn(namespace, opt.Name, "config file", fmt.Sprintf("%v", fv), err)
			}
		}
	}

	return opt.Default
}

// lookupFileValue finds a table entry whose canonicalized key matches,
// so TOML files may spell "jpeg_quality" or "jpeg-quality".
func lookupFileValue(table map[string]any, key string) (any, bool) {
	for k, v := range table {
		if CanonicalKey(k) == key {
			return v, true
		}
	}
	return nil, false
}

func coerceAndValidate(opt processor.Option, raw string) (any, error) {
	v, err := opt.Coerce(raw)
	if err != nil {
		return nil, err
	}
	if err := opt.Validate(v); err != nil {
		return nil, err
	}
	return v, nil
}

// normalizeAndValidate converts a config-file value (already typed by the
// TOML parser) into the option's declared type.
func normalizeAndValidate(opt processor.Option, value any) (any, error) {
	v, err := normalizeValue(opt, value)
	if err != nil {
		return nil, err
	}
	if err := opt.Validate(v); err != nil {
		return nil, err
	}
	return v, nil
}

func normalizeValue(opt processor.Option, value any) (any, error) {
	switch opt.Type {
	case processor.OptionInt:
		switch v := value.(type) {
		case int:
			return v, nil
		case int64:
			return int(v), nil
		case float64:
			if v == float64(int(v)) {
				return int(v), nil
			}
			return nil, fmt.Errorf("%v is not an integer", v)
		}
	case processor.OptionFloat:
		switch v := value.(type) {
		case float64:
			return v, nil
		case int:
			return float64(v), nil
		case int64:
			return float64(v), nil
		}
	case processor.OptionBool:
		if v, ok := value.(bool); ok {
			return v, nil
		}
	case processor.OptionString:
		if v, ok := value.(string); ok {
			return v, nil
		}
	}
	if raw, ok := value.(string); ok {
		return opt.Coerce(raw)
	}
	return nil, fmt.Errorf("expected %s, got %T", opt.Type, value)
}

// Resolved holds the outcome of Resolve: per-namespace value maps keyed by
// the options' declared names, plus any warnings produced on the way.
type Resolved struct {
	values   map[string]map[string]any
	warnings []Warning
}

// Namespace returns a copy of the resolved values for a namespace.
func (r *Resolved) Namespace(namespace string) map[string]any {
	src := r.values[namespace]
	out := make(map[string]any, len(src))
	for k, v := range src {
		out[k] = v
	}
	return out
}

// Warnings returns the warnings produced during resolution.
func (r *Resolved) Warnings() []Warning {
	out := make([]Warning, len(r.warnings))
	copy(out, r.warnings)
	return out
}

func (r *Resolved) warn(namespace, option, source, raw string, err error) {
	r.warnings = append(r.warnings, Warning{
		Namespace: namespace,
		Option:    option,
		Source:    source,
		Raw:       raw,
		Reason:    err.Error(),
	})
}

// Warning records a value that was ignored during resolution.
type Warning struct {
	Namespace string
	Option    string
	Source    string
	Raw       string
	Reason    string
}

// String formats the warning for logging.
func (w Warning) String() string {
	return fmt.Sprintf("%s.%s: ignoring %s value %q (%s), using default",
		w.Namespace, w.Option, w.Source, w.Raw, w.Reason)
}

// SortedKeys returns the sorted keys of a resolved value map, for
// deterministic logging.
func SortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
