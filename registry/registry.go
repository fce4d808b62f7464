// Package registry memoizes renderer resolution over a static renderer.Table.
//
// The first Resolve of a type name validates and instantiates it; later calls
// return the same instance without touching the factory. Failures are
// remembered too: a type that is missing or invalid keeps failing with the
// same reason until Clear or ClearType.
package registry

import (
	"fmt"
	"slices"
	"sync"
	"sync/atomic"

	jerrors "github.com/jmgilman/go/errors"

	"github.com/unkn0wn-root/blockcache/renderer"
)

var (
	// ErrNotFound: no factory registered under the type name.
	ErrNotFound = jerrors.New(jerrors.CodeNotFound, "renderer type not registered")
	// ErrInvalid: the factory failed or produced a renderer that breaks its
	// own descriptor (nil instance, name mismatch, Preloads without Preloader).
	ErrInvalid = jerrors.New(jerrors.CodeInvalidConfig, "renderer type invalid")
)

type entry struct {
	r    renderer.Renderer
	desc renderer.Descriptor
	err  error
}

// Registry is safe for concurrent use.
type Registry struct {
	table renderer.Table

	mu      sync.RWMutex
	entries map[string]*entry

	builds atomic.Int64
}

// Stats counts memoized entries.
type Stats struct {
	Cached  int // entries held (valid + failed)
	Valid   int
	Invalid int // failed validation
	Errors  int // failed resolution (not registered)
}

// New builds a registry over a copy of table.
func New(table renderer.Table) *Registry {
	return &Registry{
		table:   renderer.Table{}.Merge(table),
		entries: make(map[string]*entry),
	}
}

// Resolve returns the memoized renderer for name.
func (r *Registry) Resolve(name string) (renderer.Renderer, error) {
	e := r.lookup(name)
	return e.r, e.err
}

// Descriptor returns the resolved renderer's descriptor, normalised so Name
// is always set.
func (r *Registry) Descriptor(name string) (renderer.Descriptor, error) {
	e := r.lookup(name)
	return e.desc, e.err
}

// ErrorFor returns the remembered failure for name, nil when name resolved
// fine or was never resolved.
func (r *Registry) ErrorFor(name string) error {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if e, ok := r.entries[name]; ok {
		return e.err
	}
	return nil
}

// Clear drops every memoized entry.
func (r *Registry) Clear() {
	r.mu.Lock()
	clear(r.entries)
	r.mu.Unlock()
}

// ClearType drops the memoized entry for one type name.
func (r *Registry) ClearType(name string) {
	r.mu.Lock()
	delete(r.entries, name)
	r.mu.Unlock()
}

// Names lists the registered type names, sorted.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.table))
	for n := range r.table {
		names = append(names, n)
	}
	slices.Sort(names)
	return names
}

func (r *Registry) Stats() Stats {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s := Stats{Cached: len(r.entries)}
	for _, e := range r.entries {
		switch {
		case e.err == nil:
			s.Valid++
		case jerrors.Is(e.err, ErrInvalid):
			s.Invalid++
		default:
			s.Errors++
		}
	}
	return s
}

// Builds reports how many times resolution ran a lookup in the table
// (memo misses).
func (r *Registry) Builds() int64 { return r.builds.Load() }

func (r *Registry) lookup(name string) *entry {
	r.mu.RLock()
	if e, ok := r.entries[name]; ok {
		r.mu.RUnlock()
		return e
	}
	r.mu.RUnlock()

	r.mu.Lock()
	defer r.mu.Unlock()

	// another goroutine may have resolved it meanwhile
	if e, ok := r.entries[name]; ok {
		return e
	}
	e := r.build(name)
	r.entries[name] = e
	return e
}

func (r *Registry) build(name string) (e *entry) {
	r.builds.Add(1)

	f, ok := r.table[name]
	if !ok || f == nil {
		return &entry{err: jerrors.WithContext(
			jerrors.Wrap(ErrNotFound, jerrors.CodeNotFound, fmt.Sprintf("renderer %q", name)),
			"type", name)}
	}

	invalid := func(reason string, cause error) *entry {
		msg := fmt.Sprintf("renderer %q: %s", name, reason)
		if cause != nil {
			msg += ": " + cause.Error()
		}
		return &entry{err: jerrors.WithContext(
			jerrors.Wrap(ErrInvalid, jerrors.CodeInvalidConfig, msg), "type", name)}
	}

	defer func() {
		if p := recover(); p != nil {
			e = invalid("factory panicked", fmt.Errorf("%v", p))
		}
	}()

	inst, err := f()
	if err != nil {
		return invalid("factory failed", err)
	}
	if inst == nil {
		return invalid("factory returned nil", nil)
	}
	desc := inst.Descriptor()
	if desc.Name == "" {
		desc.Name = name
	}
	if desc.Name != name {
		return invalid(fmt.Sprintf("descriptor names %q", desc.Name), nil)
	}
	if desc.Preloads {
		if _, ok := inst.(renderer.Preloader); !ok {
			return invalid("declares preloading without implementing Preloader", nil)
		}
	}
	return &entry{r: inst, desc: desc}
}
