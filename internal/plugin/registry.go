package plugin

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/dshills/imgc/internal/plugin/lua"
	"github.com/dshills/imgc/internal/processor"
)

// ErrContractUnsatisfied reports a loaded script that does not amount to a
// usable processor.
var ErrContractUnsatisfied = errors.New("plugin: contract unsatisfied")

// Failure records one plugin that could not be loaded or configured.
type Failure struct {
	Name string
	Path string
	Err  error
}

// Stats summarizes the registry's contents.
type Stats struct {
	Loaded     int
	Failed     int
	Identities []string // "name version", in registration order
}

type entry struct {
	proc processor.Processor
	path string // entry script path, or "builtin"
}

// Registry holds processors in registration order. Built-ins are
// registered before any directory scan, so they win ties at equal
// priority. Duplicate names are admitted; the registry identifies
// processors by instance.
type Registry struct {
	mu       sync.Mutex
	entries  []entry
	failures []Failure
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// Register adds a processor built into the host program.
func (r *Registry) Register(p processor.Processor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, entry{proc: p, path: "builtin"})
}

// Deregister drops a processor and records why. Used when a processor
// turns out to be unusable after registration, for example when its
// declared options cannot be bound.
func (r *Registry) Deregister(p processor.Processor, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	kept := r.entries[:0]
	for _, e := range r.entries {
		if e.proc != p {
			kept = append(kept, e)
			continue
		}
		d := p.Descriptor()
		r.failures = append(r.failures, Failure{Name: d.Name, Path: e.path, Err: err})
		closeProcessor(p)
	}
	r.entries = kept
}

// LoadFrom discovers and loads every candidate the loader finds. Each
// candidate is isolated: one failure is recorded and never aborts the
// rest.
func (r *Registry) LoadFrom(l *Loader, host *lua.Host) {
	for _, c := range l.Discover() {
		r.load(c, host)
	}
}

func (r *Registry) load(c Candidate, host *lua.Host) {
	path := c.Script
	if path == "" {
		path = c.Dir
	}

	if c.Err != nil {
		r.fail(c.Name, path, c.Err)
		return
	}

	var desc processor.Descriptor
	if c.Manifest != nil {
		var err error
		desc, err = c.Manifest.Descriptor()
		if err != nil {
			r.fail(c.Name, path, err)
			return
		}
	}

	p, err := lua.Load(c.Script, desc, host)
	if err != nil {
		r.fail(c.Name, path, err)
		return
	}

	d := p.Descriptor()
	if d.Name == "" {
		p.Close()
		r.fail(c.Name, path, fmt.Errorf("%w: script declares no name", ErrContractUnsatisfied))
		return
	}
	if !namePattern.MatchString(d.Name) {
		p.Close()
		r.fail(c.Name, path, fmt.Errorf("%w: %s", ErrInvalidName, d.Name))
		return
	}

	r.mu.Lock()
	r.entries = append(r.entries, entry{proc: p, path: c.Script})
	r.mu.Unlock()
}

func (r *Registry) fail(name, path string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failures = append(r.failures, Failure{Name: name, Path: path, Err: err})
}

// ConfigureAll delivers resolved option values to every processor that
// accepts configuration. values is keyed lookup by configuration
// namespace. A processor whose Configure fails is dropped and recorded as
// a failure; the others keep their registration order.
func (r *Registry) ConfigureAll(values func(namespace string) map[string]any) {
	r.mu.Lock()
	defer r.mu.Unlock()

	kept := r.entries[:0]
	for _, e := range r.entries {
		cfg, ok := e.proc.(processor.Configurable)
		if !ok {
			kept = append(kept, e)
			continue
		}

		d := e.proc.Descriptor()
		if err := cfg.Configure(values(d.ConfigNamespace())); err != nil {
			r.failures = append(r.failures, Failure{Name: d.Name, Path: e.path, Err: err})
			closeProcessor(e.proc)
			continue
		}
		kept = append(kept, e)
	}
	r.entries = kept
}

// Processors returns the registered processors in registration order.
func (r *Registry) Processors() []processor.Processor {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]processor.Processor, len(r.entries))
	for i, e := range r.entries {
		out[i] = e.proc
	}
	return out
}

// Failures returns the recorded load and configuration failures.
func (r *Registry) Failures() []Failure {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Failure(nil), r.failures...)
}

// Stats returns counts and identities for logging.
func (r *Registry) Stats() Stats {
	r.mu.Lock()
	defer r.mu.Unlock()

	s := Stats{
		Loaded: len(r.entries),
		Failed: len(r.failures),
	}
	for _, e := range r.entries {
		d := e.proc.Descriptor()
		s.Identities = append(s.Identities, strings.TrimSpace(d.Name+" "+d.Version))
	}
	return s
}

// Close releases every processor that holds resources.
func (r *Registry) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range r.entries {
		closeProcessor(e.proc)
	}
	r.entries = nil
}

func closeProcessor(p processor.Processor) {
	if c, ok := p.(interface{ Close() }); ok {
		c.Close()
	}
}
