// Package cstack tracks, at compile time, where each VM stack value and
// local currently lives in the native frame being built by the translator
// (spec.md §4.7): a register, a stack spill slot, or a known immediate.
// Grounded on the "simulated operand stack" idiom shown in the
// other_examples amd64 JIT encoders (launix-de/memcp's scm-jit_amd64.go
// compiles against exactly this kind of shadow stack); the teacher repo has
// no native compiler to draw the pattern from directly.
package cstack

import "github.com/Hell0XD/spsl/lang/jit/asm"

// LocationKind distinguishes where a Cell's value currently lives.
type LocationKind uint8

const (
	InRegister LocationKind = iota
	InSpill
	AsImmediate
)

// Location is the physical home of one value.
type Location struct {
	Kind   LocationKind
	Reg    asm.Register // valid when Kind == InRegister
	Offset int32        // valid when Kind == InSpill: offset from RBP
	Imm    int32        // valid when Kind == AsImmediate
}

func Reg(r asm.Register) Location { return Location{Kind: InRegister, Reg: r} }
func Spill(off int32) Location    { return Location{Kind: InSpill, Offset: off} }
func Immediate(v int32) Location  { return Location{Kind: AsImmediate, Imm: v} }

// Cell is one compile-time operand-stack entry: a location plus whether it
// may be mutated in place (an immediate, or a register/slot shared with a
// local or another live cell, is not directly writable until materialized).
type Cell struct {
	Loc      Location
	Writable bool
}

// argRegisters holds the first four System V integer argument registers.
// Arguments beyond the fourth arrive on the caller's stack above the return
// address and saved frame pointer, at +16, +24, ...
var argRegisters = []asm.Register{asm.RDI, asm.RSI, asm.RDX, asm.RCX}

const firstStackArgOffset = 16

// extraLocalPool is the fixed set of callee-saved registers locals beyond
// the argument count are assigned to. RBP is excluded even though it is
// callee-saved: it is committed as this translator's frame-pointer base for
// every Mem{Base: RBP, ...} spill reference, so handing it to a local would
// corrupt every other local/spill access in the same function.
var extraLocalPool = []asm.Register{asm.RBX, asm.R12, asm.R13, asm.R14, asm.R15}

// freeRegPool is the translator's scratch register pool for operand-stack
// temporaries, consumed and returned LIFO. All five are caller-saved
// (clobbered by a `call`), which is exactly why the translator must spill
// any of them still live across a Call/CallRet bytecode. R12-R15 are
// deliberately excluded here: extraLocalPool (above) hands them to locals,
// and a register cannot simultaneously be a local's permanent home and a
// transient scratch slot.
var freeRegPool = []asm.Register{asm.RAX, asm.R8, asm.R9, asm.R10, asm.R11}

// Stack is the compile-time operand stack plus local-variable assignment
// table for one function being translated.
type Stack struct {
	cells  []Cell
	free   []asm.Register
	locals []Location
}

// New builds a Stack for a function with argCount arguments and localCount
// total locals (argCount <= localCount). The first four arguments live in
// RDI/RSI/RDX/RCX, further arguments at positive RBP offsets, and locals
// beyond argCount are assigned from extraLocalPool. The second return value
// is false if localCount-argCount exceeds the pool, signaling the caller to
// abandon this function's compilation (it stays interpreted).
func New(argCount, localCount int) (*Stack, bool) {
	s := &Stack{locals: make([]Location, localCount)}
	stackArgs := 0
	extraUsed := 0
	for i := 0; i < localCount; i++ {
		switch {
		case i < argCount && i < len(argRegisters):
			s.locals[i] = Reg(argRegisters[i])
		case i < argCount:
			s.locals[i] = Spill(int32(firstStackArgOffset + 8*stackArgs))
			stackArgs++
		default:
			if extraUsed >= len(extraLocalPool) {
				return nil, false
			}
			s.locals[i] = Reg(extraLocalPool[extraUsed])
			extraUsed++
		}
	}
	s.free = append([]asm.Register(nil), freeRegPool...)
	return s, true
}

// LocalLocation returns where local idx lives.
func (s *Stack) LocalLocation(idx int) Location { return s.locals[idx] }

// Push adds a new cell to the top of the operand stack.
func (s *Stack) Push(loc Location, writable bool) {
	s.cells = append(s.cells, Cell{Loc: loc, Writable: writable})
}

// Pop removes and returns the top cell. It panics on an empty stack: the
// translator's lowering table is built so this never happens for valid
// bytecode (an invalid image would have already failed decoding).
func (s *Stack) Pop() Cell {
	n := len(s.cells) - 1
	c := s.cells[n]
	s.cells = s.cells[:n]
	return c
}

// Peek returns the cell at depth (0 = top) without removing it.
func (s *Stack) Peek(depth int) Cell {
	return s.cells[len(s.cells)-1-depth]
}

// Depth returns the number of live cells.
func (s *Stack) Depth() int { return len(s.cells) }

// AllocReg pops a register off the free pool. The second return is false
// when the pool is empty, the signal for the translator to abandon
// compilation of this function (ErrRegisterExhausted) rather than fail at
// runtime.
func (s *Stack) AllocReg() (asm.Register, bool) {
	n := len(s.free) - 1
	if n < 0 {
		return 0, false
	}
	r := s.free[n]
	s.free = s.free[:n]
	return r, true
}

// FreeReg returns a register to the pool.
func (s *Stack) FreeReg(r asm.Register) {
	s.free = append(s.free, r)
}

// Reserve removes r from the free pool ahead of time if present, returning
// whether it was free to begin with. IfEq uses this to hold RAX aside for
// the branch's merged result for the duration of the If/Else/End block.
func (s *Stack) Reserve(r asm.Register) bool {
	for i, f := range s.free {
		if f == r {
			s.free = append(s.free[:i], s.free[i+1:]...)
			return true
		}
	}
	return false
}

// ToWritable ensures the cell at depth lives in a register it alone owns,
// emitting a mov through emit if it must move the value there first. It
// returns the register the value now lives in and false if the free
// register pool was exhausted (the translator must then abort compilation
// of this function with ErrRegisterExhausted).
func (s *Stack) ToWritable(depth int, emit func(instr []byte)) (asm.Register, bool) {
	idx := len(s.cells) - 1 - depth
	c := s.cells[idx]
	if c.Writable && c.Loc.Kind == InRegister {
		return c.Loc.Reg, true
	}

	dst, ok := s.AllocReg()
	if !ok {
		return 0, false
	}
	dstOp := asm.Reg{R: dst, Size: asm.Qword}
	switch c.Loc.Kind {
	case InRegister:
		emit(asm.Mov(dstOp, asm.Reg{R: c.Loc.Reg, Size: asm.Qword}))
	case InSpill:
		emit(asm.Mov(dstOp, asm.Mem{Base: asm.RBP, Disp: c.Loc.Offset}))
	case AsImmediate:
		emit(asm.Mov(dstOp, asm.Imm32(c.Loc.Imm)))
	}
	s.cells[idx] = Cell{Loc: Reg(dst), Writable: true}
	return dst, true
}

// Swap exchanges the entire operand-stack contents (not the locals table or
// free pool) of s and other. The translator's If/Else lowering uses this to
// save the then-branch's final stack shape while compiling the else branch
// against a fresh copy of the pre-If shape, then restores it to reconcile
// the two branches at EndIf (spec.md §4.8).
func (s *Stack) Swap(other *Stack) {
	s.cells, other.cells = other.cells, s.cells
}

// Clone returns a copy of the operand-stack contents and free-register pool,
// independent of s, sharing the same locals table (locals are fixed once
// assigned by New and never change during translation of one function).
func (s *Stack) Clone() *Stack {
	return &Stack{
		cells:  append([]Cell(nil), s.cells...),
		free:   append([]asm.Register(nil), s.free...),
		locals: s.locals,
	}
}
