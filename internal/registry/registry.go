// Package registry implements spec §3's "Open Instance Registry Entry":
// within a process, every caller opening the same file path shares one
// underlying handle. It is the same mutex-guarded map-of-handles shape as a
// page-cache handle table, scoped to path instead of page ID.
package registry

import "sync"

// Entry is anything Open can hand back and Close can release — the root
// package stores its *Handle as the Entry's value.
type Entry struct {
	Path     string
	refcount int
	value    any
}

// Value returns the payload stored when this entry was first created.
func (e *Entry) Value() any { return e.value }

// Registry maps an absolute file path to its single shared Entry.
type Registry struct {
	mu      sync.Mutex
	entries map[string]*Entry
}

// New constructs an empty registry. A process typically keeps exactly one,
// package-level instance (spec §3: "within a process").
func New() *Registry {
	return &Registry{entries: make(map[string]*Entry)}
}

// Acquire returns the existing entry for path with its refcount
// incremented, or calls create to build a new one if this is the first
// caller for that path. create runs with the registry lock held, so two
// concurrent Acquire calls for the same new path never race to open the
// file twice.
func (r *Registry) Acquire(path string, create func() (any, error)) (*Entry, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if e, ok := r.entries[path]; ok {
		e.refcount++
		return e, false, nil
	}

	value, err := create()
	if err != nil {
		return nil, false, err
	}
	e := &Entry{Path: path, refcount: 1, value: value}
	r.entries[path] = e
	return e, true, nil
}

// Release decrements the entry's refcount and reports whether it reached
// zero — the caller is then responsible for the physical close (spec §3:
// "physical close happens at refcount 0").
func (r *Registry) Release(path string) (last bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[path]
	if !ok {
		return false
	}
	e.refcount--
	if e.refcount <= 0 {
		delete(r.entries, path)
		return true
	}
	return false
}

// RefCount reports the current share count for path, or 0 if unopened.
// Exposed for tests and diagnostics only.
func (r *Registry) RefCount(path string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.entries[path]; ok {
		return e.refcount
	}
	return 0
}
