// Package machine implements the spsl virtual machine: a fetch-decode-
// execute loop over the bytecode tables (lang/bytecode, lang/image), value
// model (lang/types), dynamic-library bridge (lang/ffi) and optional x86-64
// JIT (lang/jit). Grounded on the teacher's lang/machine package: same
// Thread/Frame split, same fetch-decode-execute skeleton, replumbed for
// spsl's closed-sum value model and structural (label-free) control flow.
package machine

import (
	"fmt"
	"io"
	"os"

	"github.com/Hell0XD/spsl/lang/bytecode"
	"github.com/Hell0XD/spsl/lang/ffi"
	"github.com/Hell0XD/spsl/lang/image"
	"github.com/Hell0XD/spsl/lang/jit"
	"github.com/Hell0XD/spsl/lang/types"
)

// Thread runs one spsl program. Unlike the teacher's Thread, it carries no
// context.Context: spec.md §5 rules out cancellation and timeouts for this
// VM, so that piece of the teacher's ambient machinery is deliberately not
// generalized here (see DESIGN.md).
type Thread struct {
	// Name is an optional name used for debugging/diagnostics.
	Name string

	// Stdout and Stderr back the Print opcode and diagnostic output,
	// respectively. Nil means os.Stdout / os.Stderr.
	Stdout io.Writer
	Stderr io.Writer

	// JIT enables the x86-64 tracing JIT (spec.md §4.8). Off by default: a
	// Thread with JIT false runs purely interpreted.
	JIT bool

	// JITArenaSize overrides the executable arena's per-link size; <= 0
	// means arena.DefaultSize (spec.md §4.5).
	JITArenaSize int

	// DebugJIT, when true and JIT is enabled, asks callers driving this
	// Thread (the CLI) to report why a hot function failed to compile; the
	// Thread itself only needs to preserve the translator's error for that
	// purpose (see LastJITFailure).
	DebugJIT bool

	prog    *image.Program
	decoded map[uint32][]bytecode.Instr
	ffi     *ffi.Table
	jitMgr  *jit.Manager
	stdout  io.Writer
	stderr  io.Writer

	// lastJITFailure records the most recent non-fatal compile rejection,
	// surfaced to --debug-jit callers; it is not part of program semantics.
	lastJITFailure error
}

// LastJITFailure returns the reason the most recent hot-function compile
// attempt was rejected, or nil if every attempted compile succeeded (or none
// was attempted yet).
func (th *Thread) LastJITFailure() error { return th.lastJITFailure }

// JITCompiled reports whether funcIndex currently has an installed native
// entry (spec.md §4.8's "hot function"): dispatchCall routes every later
// Call of funcIndex through it instead of the interpreter.
func (th *Thread) JITCompiled(funcIndex uint32) bool {
	if th.jitMgr == nil {
		return false
	}
	_, ok := th.jitMgr.Lookup(funcIndex)
	return ok
}

func (th *Thread) init() {
	if th.Stdout != nil {
		th.stdout = th.Stdout
	} else {
		th.stdout = os.Stdout
	}
	if th.Stderr != nil {
		th.stderr = th.Stderr
	} else {
		th.stderr = os.Stderr
	}
	th.decoded = make(map[uint32][]bytecode.Instr)
	th.ffi = ffi.NewTable()
}

// RunProgram deserializes nothing itself (that is lang/image's job); it
// takes an already-decoded Program and runs it from its entry function with
// no arguments, per spec.md §6.3's CLI contract.
func (th *Thread) RunProgram(prog *image.Program) (types.Value, error) {
	th.init()
	th.prog = prog
	if th.JIT {
		mgr, err := jit.NewManager(th.JITArenaSize)
		if err != nil {
			return nil, fmt.Errorf("spsl: starting JIT: %w", err)
		}
		th.jitMgr = mgr
	}
	return th.call(prog.EntryIndex, nil)
}

// Close releases the Thread's JIT executable arena, if one was allocated.
func (th *Thread) Close() error {
	if th.jitMgr == nil {
		return nil
	}
	return th.jitMgr.Release()
}

func (th *Thread) decode(funcIndex uint32) (image.Function, []bytecode.Instr, error) {
	if int(funcIndex) >= len(th.prog.Functions) {
		return image.Function{}, nil, fmt.Errorf("%w: %d", ErrUnknownFunction, funcIndex)
	}
	fn := th.prog.Functions[funcIndex]
	if instrs, ok := th.decoded[funcIndex]; ok {
		return fn, instrs, nil
	}
	instrs, err := bytecode.DecodeAll(fn.Code)
	if err != nil {
		return image.Function{}, nil, fmt.Errorf("spsl: decoding function %d: %w", funcIndex, err)
	}
	th.decoded[funcIndex] = instrs
	return fn, instrs, nil
}

// call recursively invokes the interpreter on funcIndex with args (spec.md
// §4.9's "interpreted call"): a genuinely new Go call (and therefore host
// stack frame) per invocation, unlike CallRet which never calls this.
func (th *Thread) call(funcIndex uint32, args []types.Value) (types.Value, error) {
	fn, instrs, err := th.decode(funcIndex)
	if err != nil {
		return nil, err
	}
	if len(args) != int(fn.ArgCount) {
		return nil, fmt.Errorf("%w: function %d wants %d args, got %d", ErrArityMismatch, funcIndex, fn.ArgCount, len(args))
	}
	locals := make([]types.Value, fn.NumLocals())
	copy(locals, args)
	for i := len(args); i < len(locals); i++ {
		locals[i] = types.Nil
	}
	fr := &Frame{instrs: instrs, locals: locals, fn: fn, funcIndex: funcIndex}
	return th.run(fr)
}
