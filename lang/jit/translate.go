package jit

import (
	"fmt"

	"github.com/Hell0XD/spsl/lang/bytecode"
	"github.com/Hell0XD/spsl/lang/image"
	"github.com/Hell0XD/spsl/lang/jit/asm"
	"github.com/Hell0XD/spsl/lang/jit/cstack"
	"github.com/Hell0XD/spsl/lang/types"
)

// callPatch records a direct call/tail-call site whose target address is
// already known (the callee was natively compiled before this function) but
// whose final relative displacement can only be computed once this
// function's own code has a home in the arena.
type callPatch struct {
	bufOffset int // offset of the 4-byte rel32 field within the translated buffer
	target    uintptr
}

// resolveCallFunc looks up the native entry address for a function index,
// returning ok=false if it has not been compiled yet.
type resolveCallFunc func(funcIndex uint32) (addr uintptr, ok bool)

// translateFunction lowers one function's bytecode to native code under the
// given call shape (spec.md §4.8). Only the bytecodes in the table below are
// supported; anything else yields ErrUnsupportedBytecode and the function
// stays interpreted.
func translateFunction(fn image.Function, constants []types.Value, shape Shape, resolve resolveCallFunc, functions []image.Function) ([]byte, []callPatch, error) {
	if shape.Ret != image.ArgInt {
		return nil, nil, fmt.Errorf("%w: non-Int return shape", ErrUnsupportedBytecode)
	}
	for _, a := range shape.Args {
		if a != image.ArgInt {
			return nil, nil, fmt.Errorf("%w: non-Int argument shape", ErrUnsupportedBytecode)
		}
	}

	instrs, err := bytecode.DecodeAll(fn.Code)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrUnsupportedBytecode, err)
	}

	stk, ok := cstack.New(int(fn.ArgCount), fn.NumLocals())
	if !ok {
		return nil, nil, ErrRegisterExhausted
	}

	tr := &translator{
		stack:     stk,
		constants: constants,
		resolve:   resolve,
		functions: functions,
	}

	var buf asm.Buffer
	buf.Emit(asm.Push(asm.Reg{R: asm.RBP, Size: asm.Qword}))
	buf.Emit(asm.Mov(asm.Reg{R: asm.RBP, Size: asm.Qword}, asm.Reg{R: asm.RSP, Size: asm.Qword}))

	for _, in := range instrs {
		if err := tr.lower(&buf, in); err != nil {
			return nil, nil, err
		}
	}
	if len(tr.patchStack) != 0 {
		return nil, nil, ErrUnbalancedControlFlow
	}

	return buf.Bytes(), tr.callPatches, nil
}

// patchFrame tracks one open If/IfEq block.
type patchFrame struct {
	jnePatchAt     int
	elseJmpPatchAt int
	hasElse        bool
	savedStack     *cstack.Stack
	reserveResult  bool
	raxWasFree     bool
}

type translator struct {
	stack      *cstack.Stack
	constants  []types.Value
	resolve    resolveCallFunc
	functions  []image.Function
	patchStack []patchFrame
	callPatches []callPatch
}

func emitJnePlaceholder(buf *asm.Buffer) int {
	buf.Emit([]byte{0x0F, 0x85, 0, 0, 0, 0})
	return buf.Len() - 4
}

func emitJmpPlaceholder(buf *asm.Buffer) int {
	buf.Emit([]byte{0xE9, 0, 0, 0, 0})
	return buf.Len() - 4
}

func patchForward(buf *asm.Buffer, patchAt int) {
	target := buf.Len()
	rel := int32(target - (patchAt + 4))
	buf.PatchRel32(patchAt, rel)
}

func (t *translator) lower(buf *asm.Buffer, in bytecode.Instr) error {
	switch in.Op {
	case bytecode.LocalGet:
		t.stack.Push(t.stack.LocalLocation(int(in.A)), false)

	case bytecode.ConstantGet:
		idx := int(in.A)
		if idx >= len(t.constants) {
			return fmt.Errorf("%w: constant index %d out of range", ErrUnsupportedBytecode, idx)
		}
		v, ok := t.constants[idx].(types.Int)
		if !ok {
			return fmt.Errorf("%w: constant_get of a non-Int constant", ErrUnsupportedBytecode)
		}
		t.stack.Push(cstack.Immediate(int32(v)), false)

	case bytecode.Add:
		rhs := t.stack.Pop()
		dst, ok := t.stack.ToWritable(0, func(instr []byte) { buf.Emit(instr) })
		if !ok {
			return ErrRegisterExhausted
		}
		srcOp, err := t.operandOf(buf, rhs)
		if err != nil {
			return err
		}
		buf.Emit(asm.Add(asm.Reg{R: dst, Size: asm.Qword}, srcOp))
		t.stack.Pop()
		t.stack.Push(cstack.Reg(dst), true)

	case bytecode.If:
		cond := t.stack.Pop()
		condOp, err := t.operandOf(buf, cond)
		if err != nil {
			return err
		}
		condReg, ok := t.stack.AllocReg()
		if !ok {
			return ErrRegisterExhausted
		}
		buf.Emit(asm.Mov(asm.Reg{R: condReg, Size: asm.Qword}, condOp))
		t.stack.FreeReg(condReg)
		buf.Emit(asm.Cmp(asm.Reg{R: condReg, Size: asm.Qword}, asm.Imm32(1)))
		patchAt := emitJnePlaceholder(buf)
		t.patchStack = append(t.patchStack, patchFrame{
			jnePatchAt: patchAt,
			savedStack: t.stack.Clone(),
		})

	case bytecode.IfEq:
		b := t.stack.Pop()
		a := t.stack.Pop()
		aReg, ok := t.stack.AllocReg()
		if !ok {
			return ErrRegisterExhausted
		}
		aOp, err := t.operandOf(buf, a)
		if err != nil {
			return err
		}
		buf.Emit(asm.Mov(asm.Reg{R: aReg, Size: asm.Qword}, aOp))
		bOp, err := t.operandOf(buf, b)
		if err != nil {
			t.stack.FreeReg(aReg)
			return err
		}
		buf.Emit(asm.Cmp(asm.Reg{R: aReg, Size: asm.Qword}, bOp))
		t.stack.FreeReg(aReg)
		raxWasFree := t.stack.Reserve(asm.RAX)
		patchAt := emitJnePlaceholder(buf)
		t.patchStack = append(t.patchStack, patchFrame{
			jnePatchAt:    patchAt,
			savedStack:    t.stack.Clone(),
			reserveResult: true,
			raxWasFree:    raxWasFree,
		})

	case bytecode.Else:
		if len(t.patchStack) == 0 {
			return ErrUnbalancedControlFlow
		}
		fr := &t.patchStack[len(t.patchStack)-1]
		if t.stack.Depth() > 0 {
			if _, ok := t.stack.ToWritable(0, func(instr []byte) { buf.Emit(instr) }); !ok {
				return ErrRegisterExhausted
			}
		}
		fr.elseJmpPatchAt = emitJmpPlaceholder(buf)
		fr.hasElse = true
		patchForward(buf, fr.jnePatchAt)
		t.stack.Swap(fr.savedStack)

	case bytecode.End:
		if len(t.patchStack) == 0 {
			return ErrUnbalancedControlFlow
		}
		fr := t.patchStack[len(t.patchStack)-1]
		t.patchStack = t.patchStack[:len(t.patchStack)-1]
		if fr.reserveResult {
			if t.stack.Depth() > 0 {
				cur, ok := t.stack.ToWritable(0, func(instr []byte) { buf.Emit(instr) })
				if !ok {
					return ErrRegisterExhausted
				}
				if cur != asm.RAX {
					buf.Emit(asm.Mov(asm.Reg{R: asm.RAX, Size: asm.Qword}, asm.Reg{R: cur, Size: asm.Qword}))
					t.stack.FreeReg(cur)
					t.stack.Pop()
					t.stack.Push(cstack.Reg(asm.RAX), true)
				}
			} else if fr.raxWasFree {
				t.stack.FreeReg(asm.RAX)
			}
		}
		if fr.hasElse {
			patchForward(buf, fr.elseJmpPatchAt)
		} else {
			patchForward(buf, fr.jnePatchAt)
		}

	case bytecode.Call:
		if err := t.lowerCall(buf, int(in.B), false); err != nil {
			return err
		}

	case bytecode.CallRet:
		if err := t.lowerCall(buf, int(in.B), true); err != nil {
			return err
		}

	case bytecode.Ret:
		if t.stack.Depth() == 0 {
			return fmt.Errorf("%w: ret with empty stack", ErrUnbalancedControlFlow)
		}
		top := t.stack.Pop()
		topOp, err := t.operandOf(buf, top)
		if err != nil {
			return err
		}
		if r, isReg := asRegOperand(topOp); !isReg || r != asm.RAX {
			buf.Emit(asm.Mov(asm.Reg{R: asm.RAX, Size: asm.Qword}, topOp))
		}
		buf.Emit(asm.Mov(asm.Reg{R: asm.RSP, Size: asm.Qword}, asm.Reg{R: asm.RBP, Size: asm.Qword}))
		buf.Emit(asm.Pop(asm.Reg{R: asm.RBP, Size: asm.Qword}))
		buf.Emit(asm.Ret())

	case bytecode.Remove:
		t.stack.Pop()

	default:
		return fmt.Errorf("%w: %s", ErrUnsupportedBytecode, in.Op)
	}
	return nil
}

func asRegOperand(op asm.Operand) (asm.Register, bool) {
	r, ok := op.(asm.Reg)
	return r.R, ok
}

// operandOf converts a compile-time cell's location to an asm.Operand,
// materializing nothing (Add/Cmp accept immediate and memory operands
// directly where the encoder supports it).
func (t *translator) operandOf(buf *asm.Buffer, c cstack.Cell) (asm.Operand, error) {
	switch c.Loc.Kind {
	case cstack.InRegister:
		return asm.Reg{R: c.Loc.Reg, Size: asm.Qword}, nil
	case cstack.InSpill:
		return asm.Mem{Base: asm.RBP, Disp: c.Loc.Offset}, nil
	case cstack.AsImmediate:
		return asm.Imm32(c.Loc.Imm), nil
	default:
		return nil, fmt.Errorf("%w: unknown operand location", ErrUnsupportedBytecode)
	}
}

// argRegs mirrors cstack's own first-four-argument convention; kept local so
// the translator does not need an exported accessor on cstack.Stack for it.
var argRegs = [...]asm.Register{asm.RDI, asm.RSI, asm.RDX, asm.RCX}

func (t *translator) lowerCall(buf *asm.Buffer, funcIndex int, tailCall bool) error {
	if funcIndex < 0 || funcIndex >= len(t.functions) {
		return fmt.Errorf("%w: call to out-of-range function %d", ErrUnsupportedBytecode, funcIndex)
	}
	target, ok := t.resolve(uint32(funcIndex))
	if !ok {
		return fmt.Errorf("%w: callee %d has no native entry yet", ErrUnsupportedBytecode, funcIndex)
	}
	argc := int(t.functions[funcIndex].ArgCount)
	if t.stack.Depth() < argc {
		return fmt.Errorf("%w: call stack underflow", ErrUnbalancedControlFlow)
	}

	// Collect the argument cells (bottom to top = arg0..argN-1) without
	// mutating the stack yet, so remainingLive below is computed correctly.
	argCells := make([]cstack.Cell, argc)
	for i := 0; i < argc; i++ {
		argCells[argc-1-i] = t.stack.Peek(i)
	}

	var spilled []asm.Register
	if !tailCall {
		for d := argc; d < t.stack.Depth(); d++ {
			c := t.stack.Peek(d)
			if c.Loc.Kind == cstack.InRegister {
				buf.Emit(asm.Push(asm.Reg{R: c.Loc.Reg, Size: asm.Qword}))
				spilled = append(spilled, c.Loc.Reg)
			}
		}
	}

	for i := 0; i < argc; i++ {
		t.stack.Pop()
	}

	extra := argc - len(argRegs)
	if extra < 0 {
		extra = 0
	}
	for i := len(argCells) - 1; i >= len(argRegs); i-- {
		op, err := t.operandOf(buf, argCells[i])
		if err != nil {
			return err
		}
		if reg, isReg := op.(asm.Reg); isReg {
			buf.Emit(asm.Push(reg))
		} else if imm, isImm := op.(asm.Imm32); isImm {
			buf.Emit(asm.Push(imm))
		} else {
			buf.Emit(asm.Mov(asm.Reg{R: asm.RAX, Size: asm.Qword}, op))
			buf.Emit(asm.Push(asm.Reg{R: asm.RAX, Size: asm.Qword}))
		}
	}
	for i := 0; i < argc && i < len(argRegs); i++ {
		op, err := t.operandOf(buf, argCells[i])
		if err != nil {
			return err
		}
		buf.Emit(asm.Mov(asm.Reg{R: argRegs[i], Size: asm.Qword}, op))
	}

	if tailCall {
		buf.Emit(asm.Mov(asm.Reg{R: asm.RSP, Size: asm.Qword}, asm.Reg{R: asm.RBP, Size: asm.Qword}))
		buf.Emit(asm.Pop(asm.Reg{R: asm.RBP, Size: asm.Qword}))
		patchAt := emitJmpPlaceholder(buf)
		t.callPatches = append(t.callPatches, callPatch{bufOffset: patchAt, target: target})
		return nil
	}

	patchAt := emitCallPlaceholder(buf)
	t.callPatches = append(t.callPatches, callPatch{bufOffset: patchAt, target: target})

	if extra > 0 {
		buf.Emit(asm.Add(asm.Reg{R: asm.RSP, Size: asm.Qword}, asm.Imm32(int32(8*extra))))
	}

	resultReg, ok := t.stack.AllocReg()
	if !ok {
		return ErrRegisterExhausted
	}
	if resultReg != asm.RAX {
		buf.Emit(asm.Mov(asm.Reg{R: resultReg, Size: asm.Qword}, asm.Reg{R: asm.RAX, Size: asm.Qword}))
	}

	for i := len(spilled) - 1; i >= 0; i-- {
		buf.Emit(asm.Pop(asm.Reg{R: spilled[i], Size: asm.Qword}))
	}

	t.stack.Push(cstack.Reg(resultReg), true)
	return nil
}

func emitCallPlaceholder(buf *asm.Buffer) int {
	buf.Emit([]byte{0xE8, 0, 0, 0, 0})
	return buf.Len() - 4
}
