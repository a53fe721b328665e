package core

import (
	"math"
	"sort"
)

// SharedHandle identifies one run's membership in a registry entry.
type SharedHandle struct {
	Name string
	Run  string
}

type sharedRef struct {
	run   string
	apply func(float64)
}

type sharedEntry struct {
	flag  *Cell[bool]
	value float64
	refs  []sharedRef
}

// SharedRegistry owns the shared flag and shared initial value of every
// parameter name in a session. Parameter sets hold handles into it and never
// own the entries themselves.
type SharedRegistry struct {
	entries map[string]*sharedEntry
}

// NewSharedRegistry constructs an empty registry.
func NewSharedRegistry() *SharedRegistry {
	return &SharedRegistry{entries: make(map[string]*sharedEntry)}
}

func (r *SharedRegistry) entry(name string) *sharedEntry {
	e, ok := r.entries[name]
	if !ok {
		e = &sharedEntry{flag: NewCell(false), value: math.NaN()}
		r.entries[name] = e
	}
	return e
}

// Acquire registers run as a referrer of name. apply receives shared initial
// values written through SetSharedValue. Acquiring twice replaces the
// callback.
func (r *SharedRegistry) Acquire(name, run string, apply func(float64)) SharedHandle {
	e := r.entry(name)
	for i := range e.refs {
		if e.refs[i].run == run {
			e.refs[i].apply = apply
			return SharedHandle{Name: name, Run: run}
		}
	}
	e.refs = append(e.refs, sharedRef{run: run, apply: apply})
	return SharedHandle{Name: name, Run: run}
}

// Release drops a referrer. The entry is removed once nobody refers to it.
func (r *SharedRegistry) Release(h SharedHandle) {
	e, ok := r.entries[h.Name]
	if !ok {
		return
	}
	for i := range e.refs {
		if e.refs[i].run == h.Run {
			e.refs = append(e.refs[:i], e.refs[i+1:]...)
			break
		}
	}
	if len(e.refs) == 0 {
		delete(r.entries, h.Name)
	}
}

// Toggle returns the shared flag for name. Every run with a parameter of that
// name observes the same cell. A name nobody has acquired gets a detached cell
// and no entry, so the registry only holds referenced names.
func (r *SharedRegistry) Toggle(name string) *Cell[bool] {
	if e, ok := r.entries[name]; ok {
		return e.flag
	}
	return NewCell(false)
}

// IsShared reports the flag without creating an entry.
func (r *SharedRegistry) IsShared(name string) bool {
	e, ok := r.entries[name]
	return ok && e.flag.Get()
}

// SetSharedValue writes v as the initial value of every run referring to
// name. It is a no-op returning false unless the name is flagged shared.
func (r *SharedRegistry) SetSharedValue(name string, v float64) bool {
	e, ok := r.entries[name]
	if !ok || !e.flag.Get() {
		return false
	}
	e.value = v
	refs := make([]sharedRef, len(e.refs))
	copy(refs, e.refs)
	for _, ref := range refs {
		if ref.apply != nil {
			ref.apply(v)
		}
	}
	return true
}

// SharedValue returns the last value written through SetSharedValue.
func (r *SharedRegistry) SharedValue(name string) (float64, bool) {
	e, ok := r.entries[name]
	if !ok || math.IsNaN(e.value) {
		return math.NaN(), false
	}
	return e.value, true
}

// Names returns every registered name, sorted.
func (r *SharedRegistry) Names() []string {
	out := make([]string, 0, len(r.entries))
	for name := range r.entries {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// RefCount returns the number of runs referring to name.
func (r *SharedRegistry) RefCount(name string) int {
	if e, ok := r.entries[name]; ok {
		return len(e.refs)
	}
	return 0
}

// Runs returns the referring runs of name in acquisition order.
func (r *SharedRegistry) Runs(name string) []string {
	e, ok := r.entries[name]
	if !ok {
		return nil
	}
	out := make([]string, len(e.refs))
	for i, ref := range e.refs {
		out[i] = ref.run
	}
	return out
}
