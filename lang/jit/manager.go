// Package jit implements the tracing, template-style x86-64 JIT (spec.md
// §4.7-4.8): a profiler that watches interpreted calls for a stable
// monomorphic shape, a translator that lowers a hot function's bytecode
// into native code over the compile-time stack (lang/jit/cstack) and
// encoder (lang/jit/asm), and a loader trampoline that lets the interpreter
// invoke any compiled function uniformly. Grounded on the
// other_examples tracing-JIT shape (launix-de/memcp's scm-jit_amd64.go
// profiles call sites and compiles on a hotness threshold the same way);
// the teacher repo carries no native backend to draw the overall
// Manager/profiler/translator split from directly.
package jit

import (
	"encoding/binary"
	"fmt"
	"unsafe"

	"github.com/dolthub/swiss"
	"github.com/ebitengine/purego"

	"github.com/Hell0XD/spsl/lang/image"
	"github.com/Hell0XD/spsl/lang/jit/arena"
)

// entriesInitSize is the initial capacity hint for the compiled-function
// table; most programs JIT compile a handful of hot functions.
const entriesInitSize = 8

// NativeEntry is an installed JIT function record (spec.md §3): the shape it
// was compiled for and the address of its native code.
type NativeEntry struct {
	Addr     uintptr
	ArgTypes []image.ArgType
	RetType  image.ArgType
}

// Manager owns the executable arena, the loader trampoline, the per-function
// profiler state and every installed native entry. One Manager serves one
// running program; it is not safe for concurrent use (SPEC_FULL.md §5 — the
// VM is single-threaded).
type Manager struct {
	chain      *arena.Chain
	trampoline uintptr
	profiler   *profiler
	entries    *swiss.Map[uint32, NativeEntry]
}

// NewManager allocates the JIT's executable arena (arenaSize bytes per
// chain link, or arena.DefaultSize if arenaSize <= 0) and installs the
// loader trampoline as the first thing written to it.
func NewManager(arenaSize int) (*Manager, error) {
	chain, err := arena.NewChain(arenaSize)
	if err != nil {
		return nil, err
	}
	trampolineAddr, err := chain.Append(buildLoaderTrampoline())
	if err != nil {
		return nil, fmt.Errorf("spsl: jit: installing loader trampoline: %w", err)
	}
	return &Manager{
		chain:      chain,
		trampoline: trampolineAddr,
		profiler:   newProfiler(),
		entries:    swiss.NewMap[uint32, NativeEntry](entriesInitSize),
	}, nil
}

// Lookup returns the installed native entry for funcIndex, if any.
func (m *Manager) Lookup(funcIndex uint32) (NativeEntry, bool) {
	return m.entries.Get(funcIndex)
}

// RecordCall registers one interpreted call to funcIndex under shape and
// reports whether the function just crossed the hotness threshold; the
// caller (lang/machine) should then call Compile.
func (m *Manager) RecordCall(funcIndex uint32, shape Shape) (becameHot bool, hotShape Shape) {
	return m.profiler.Record(funcIndex, shape)
}

// Compile attempts to JIT-compile function funcIndex from prog under shape.
// Failure is always non-fatal (spec.md §4.8/§7): the caller should simply
// continue interpreting. The profiler is told not to retry this function
// once Compile has been attempted, successfully or not.
func (m *Manager) Compile(prog *image.Program, funcIndex uint32, shape Shape) error {
	defer m.profiler.MarkCompiled(funcIndex)

	if _, already := m.entries.Get(funcIndex); already {
		return nil
	}
	fn := prog.Functions[funcIndex]

	resolve := func(i uint32) (uintptr, bool) {
		e, ok := m.entries.Get(i)
		return e.Addr, ok
	}

	code, patches, err := translateFunction(fn, prog.Constants, shape, resolve, prog.Functions)
	if err != nil {
		return err
	}

	base, err := m.chain.Append(code)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrArenaExhausted, err)
	}

	for _, p := range patches {
		rel := int32(p.target - (base + uintptr(p.bufOffset) + 4))
		var relBytes [4]byte
		binary.LittleEndian.PutUint32(relBytes[:], uint32(rel))
		if err := m.chain.WriteAt(base+uintptr(p.bufOffset), relBytes[:]); err != nil {
			return fmt.Errorf("spsl: jit: patching call site: %w", err)
		}
	}

	m.entries.Put(funcIndex, NativeEntry{Addr: base, ArgTypes: shape.Args, RetType: shape.Ret})
	return nil
}

// Invoke calls a natively-compiled function through the loader trampoline,
// marshaling args as 64-bit integers (the only shape this JIT subset
// compiles) and returning the raw 64-bit result.
func (m *Manager) Invoke(entry NativeEntry, args []int64) int64 {
	var ptr uintptr
	if len(args) > 0 {
		ptr = uintptr(unsafe.Pointer(&args[0]))
	}
	r1, _, _ := purego.SyscallN(m.trampoline, ptr, uintptr(len(args)), entry.Addr)
	return int64(r1)
}

// Release tears down the arena backing every compiled function.
func (m *Manager) Release() error {
	return m.chain.Release()
}
