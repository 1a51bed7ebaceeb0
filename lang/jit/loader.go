package jit

import "github.com/Hell0XD/spsl/lang/jit/asm"

// buildLoaderTrampoline assembles the fixed prelude that adapts a generic
// argument slice to the System V register-passing convention so any JITed
// function can be invoked uniformly from the interpreter (spec.md §4.8,
// glossary "Loader trampoline"). Signature as called through purego.SyscallN:
//
//	trampoline(ptr *int64, argc int64, calleeAddr uintptr) int64
//
// ptr/argc/calleeAddr arrive in RDI/RSI/RDX. The first four slice elements
// go into RDI/RSI/RDX/RCX (clobbering the inputs once they've been copied to
// scratch registers); anything beyond that is pushed onto the native stack
// right-to-left, matching the callee's own System V expectations. Assembled
// programmatically (rather than transcribed as a literal byte table) so the
// encoding stays in lock-step with the same typed builders the translator
// uses; the resulting bytes are fixed once built and appended to the arena
// exactly once per Manager.
func buildLoaderTrampoline() []byte {
	var buf asm.Buffer

	rax := asm.Reg{R: asm.RAX, Size: asm.Qword}
	rdi := asm.Reg{R: asm.RDI, Size: asm.Qword}
	rsi := asm.Reg{R: asm.RSI, Size: asm.Qword}
	rdx := asm.Reg{R: asm.RDX, Size: asm.Qword}
	rcx := asm.Reg{R: asm.RCX, Size: asm.Qword}
	r8 := asm.Reg{R: asm.R8, Size: asm.Qword}
	r9 := asm.Reg{R: asm.R9, Size: asm.Qword}
	r10 := asm.Reg{R: asm.R10, Size: asm.Qword}
	r12 := asm.Reg{R: asm.R12, Size: asm.Qword}
	rbp := asm.Reg{R: asm.RBP, Size: asm.Qword}
	rsp := asm.Reg{R: asm.RSP, Size: asm.Qword}

	buf.Emit(asm.Push(rbp))
	buf.Emit(asm.Mov(rbp, rsp))

	buf.Emit(asm.Mov(rax, rdi)) // rax = cursor into the argument slice
	buf.Emit(asm.Mov(r8, rsi))  // r8 = remaining args to scan
	buf.Emit(asm.Mov(r9, rdx))  // r9 = callee address
	buf.Emit(asm.Mov(r10, asm.Imm32(0)))
	buf.Emit(asm.Mov(r12, asm.Imm32(0))) // r12 = count of args beyond the first four

	pass1Top := buf.Len()
	buf.Emit(asm.Cmp(r8, asm.Imm32(0)))
	bodyPatch := emitJnePlaceholder(&buf)
	donePatch := emitJmpPlaceholder(&buf)
	patchForward(&buf, bodyPatch)

	buf.Emit(asm.Cmp(r10, asm.Imm32(0)))
	check1Patch := emitJnePlaceholder(&buf)
	buf.Emit(asm.Mov(rdi, asm.Mem{Base: asm.RAX, Disp: 0}))
	cont0 := emitJmpPlaceholder(&buf)
	patchForward(&buf, check1Patch)

	buf.Emit(asm.Cmp(r10, asm.Imm32(1)))
	check2Patch := emitJnePlaceholder(&buf)
	buf.Emit(asm.Mov(rsi, asm.Mem{Base: asm.RAX, Disp: 0}))
	cont1 := emitJmpPlaceholder(&buf)
	patchForward(&buf, check2Patch)

	buf.Emit(asm.Cmp(r10, asm.Imm32(2)))
	check3Patch := emitJnePlaceholder(&buf)
	buf.Emit(asm.Mov(rdx, asm.Mem{Base: asm.RAX, Disp: 0}))
	cont2 := emitJmpPlaceholder(&buf)
	patchForward(&buf, check3Patch)

	buf.Emit(asm.Cmp(r10, asm.Imm32(3)))
	extraPatch := emitJnePlaceholder(&buf)
	buf.Emit(asm.Mov(rcx, asm.Mem{Base: asm.RAX, Disp: 0}))
	cont3 := emitJmpPlaceholder(&buf)
	patchForward(&buf, extraPatch)

	// index >= 4: not loaded into a register this pass, just counted.
	buf.Emit(asm.Add(r12, asm.Imm32(1)))

	patchForward(&buf, cont0)
	patchForward(&buf, cont1)
	patchForward(&buf, cont2)
	patchForward(&buf, cont3)

	buf.Emit(asm.Add(rax, asm.Imm32(8)))
	buf.Emit(asm.Add(r10, asm.Imm32(1)))
	buf.Emit(asm.Add(r8, asm.Imm32(-1)))
	backRel := int32(pass1Top - buf.Len())
	buf.Emit(asm.Jmp(asm.Rel32(backRel)))

	patchForward(&buf, donePatch)

	// Pass 2: push the r12 extra arguments in reverse (right-to-left) order.
	pass2Top := buf.Len()
	buf.Emit(asm.Cmp(r12, asm.Imm32(0)))
	pushPatch := emitJnePlaceholder(&buf)
	pass2DonePatch := emitJmpPlaceholder(&buf)
	patchForward(&buf, pushPatch)

	buf.Emit(asm.Add(rax, asm.Imm32(-8)))
	buf.Emit(asm.Push(asm.Mem{Base: asm.RAX, Disp: 0}))
	buf.Emit(asm.Add(r12, asm.Imm32(-1)))
	back2Rel := int32(pass2Top - buf.Len())
	buf.Emit(asm.Jmp(asm.Rel32(back2Rel)))

	patchForward(&buf, pass2DonePatch)

	buf.Emit(asm.Call(asm.Reg{R: asm.R9, Size: asm.Qword}))

	buf.Emit(asm.Mov(rsp, rbp))
	buf.Emit(asm.Pop(rbp))
	buf.Emit(asm.Ret())

	return buf.Bytes()
}
