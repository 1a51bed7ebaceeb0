// Package ffi implements the dynamic-library table (spec.md §4.4) and the
// CallDynamic marshaling rules (spec.md §4.3, §4.9): opening shared objects
// with purego (cgo-free dlopen/dlsym), resolving named symbols, and calling
// through them with spsl's fixed Int/String marshaling convention.
package ffi

import (
	"fmt"
	"sync"

	"github.com/dolthub/swiss"
	"github.com/ebitengine/purego"
)

// tableInitSize is the initial capacity hint handed to swiss.NewMap; symbol
// tables for spsl programs are small (a handful of Import'd functions), so
// this is a starting point, not a cap.
const tableInitSize = 8

// Table holds every symbol resolved so far, across every Import opcode
// executed by a VM instance. Symbols stay bound for as long as the table is
// in use (spec.md §4.4's "no hot-unloading" policy). Library handles are
// never closed: discarding the table does not dlclose the libraries it
// opened. Backed by swiss.Map rather than a plain Go map, matching the
// teacher's lang/machine.Map (SPEC_FULL.md §2).
type Table struct {
	mu      sync.Mutex
	byName  *swiss.Map[string, uintptr]
	handles *swiss.Map[string, uintptr] // path -> dlopen handle, for Loaded and re-binding
}

// NewTable returns an empty symbol table.
func NewTable() *Table {
	return &Table{
		byName:  swiss.NewMap[string, uintptr](tableInitSize),
		handles: swiss.NewMap[string, uintptr](tableInitSize),
	}
}

// Loaded reports whether path has already been dlopen'd by this table, so a
// second Import of the same library re-binds its symbols without opening a
// second handle (SPEC_FULL.md §4.11).
func (t *Table) Loaded(path string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.handles.Get(path)
	return ok
}

// Load opens path with lazy binding and resolves each of symbolNames against
// it, storing name -> raw pointer. An unresolved symbol is a fatal error
// (spec.md §4.9's UndefinedSymbol).
func (t *Table) Load(path string, symbolNames []string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	handle, ok := t.handles.Get(path)
	if !ok {
		h, err := purego.Dlopen(path, purego.RTLD_LAZY|purego.RTLD_GLOBAL)
		if err != nil {
			return fmt.Errorf("spsl: load library %q: %w", path, err)
		}
		handle = h
		t.handles.Put(path, handle)
	}

	for _, name := range symbolNames {
		if _, ok := t.byName.Get(name); ok {
			continue
		}
		sym, err := purego.Dlsym(handle, name)
		if err != nil {
			return fmt.Errorf("%w: %s in %s: %s", ErrUndefinedSymbol, name, path, err)
		}
		t.byName.Put(name, sym)
	}
	return nil
}

// Get is a pure lookup of a previously resolved symbol.
func (t *Table) Get(name string) (uintptr, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.byName.Get(name)
}
