package jit

import (
	"github.com/dolthub/swiss"

	"github.com/Hell0XD/spsl/lang/image"
)

// profilerInitSize is the initial capacity hint for the per-function shape
// history table.
const profilerInitSize = 8

// HotThreshold is the number of consecutive calls under one stable
// monomorphic shape before a function becomes a JIT compilation candidate
// (spec.md §4.8, glossary "Hot function").
const HotThreshold = 5

// Shape is the argument/return type signature a function was observed being
// called with.
type Shape struct {
	Args []image.ArgType
	Ret  image.ArgType
}

func (s Shape) equal(o Shape) bool {
	if s.Ret != o.Ret || len(s.Args) != len(o.Args) {
		return false
	}
	for i := range s.Args {
		if s.Args[i] != o.Args[i] {
			return false
		}
	}
	return true
}

// FunctionShape tracks one function's call history for the profiler:
// {observed_args, observed_return, call_count}. A call under a different
// shape than the last resets the count rather than accumulating across
// polymorphic call sites.
type FunctionShape struct {
	shape     Shape
	callCount int
	compiled  bool
}

// profiler is the set of per-function shape histories, keyed by function
// index. Not safe for concurrent use, matching the VM's single-threaded
// execution model (SPEC_FULL.md §5). Backed by swiss.Map, matching the
// teacher's lang/machine.Map (SPEC_FULL.md §2).
type profiler struct {
	byFunc *swiss.Map[uint32, *FunctionShape]
}

func newProfiler() *profiler {
	return &profiler{byFunc: swiss.NewMap[uint32, *FunctionShape](profilerInitSize)}
}

// Record registers one completed interpreted call to funcIndex under shape.
// It returns true exactly once per function: the call that first crosses
// HotThreshold under a stable shape, signaling the caller to attempt
// compilation.
func (p *profiler) Record(funcIndex uint32, shape Shape) (becameHot bool, hotShape Shape) {
	fs, ok := p.byFunc.Get(funcIndex)
	if !ok {
		fs = &FunctionShape{shape: shape}
		p.byFunc.Put(funcIndex, fs)
	}
	if fs.compiled {
		return false, Shape{}
	}
	if !fs.shape.equal(shape) {
		fs.shape = shape
		fs.callCount = 0
	}
	fs.callCount++
	if fs.callCount >= HotThreshold {
		return true, fs.shape
	}
	return false, Shape{}
}

// MarkCompiled stops the profiler from re-signaling hotness for funcIndex
// once a native entry has been installed (or compilation permanently failed
// for this shape and should not be retried every call).
func (p *profiler) MarkCompiled(funcIndex uint32) {
	if fs, ok := p.byFunc.Get(funcIndex); ok {
		fs.compiled = true
	}
}
