package asm

// Operand is a typed x86-64 instruction operand (spec.md §4.6). The
// instruction builders below accept combinations of these rather than raw
// bytes, so a translator mistake shows up as a Go type error instead of a
// hand-encoded mistake at runtime.
type Operand interface {
	isOperand()
}

// Reg is a plain register operand of the given width.
type Reg struct {
	R    Register
	Size Size
}

func (Reg) isOperand() {}

// Mem is a [base+disp32] memory operand (RBP-relative locals/spills in
// translated code, the argument slice via RAX in the loader trampoline). No
// SIB-scaled index is modeled.
type Mem struct {
	Base Register
	Disp int32
}

func (Mem) isOperand() {}

// Imm32 is a 32-bit sign-extended immediate.
type Imm32 int32

func (Imm32) isOperand() {}

// Imm64 is a full 64-bit immediate, only legal as the source of a
// register-sized mov (there is no 64-bit immediate form for add/cmp).
type Imm64 int64

func (Imm64) isOperand() {}

// Rel32 is a control-flow target expressed as a byte offset from the start
// of the branch instruction to the start of the target instruction. The
// encoder compensates for its own final length (2 bytes short form, 5 or 6
// bytes long form) when turning this into the wire displacement, so callers
// always pass the same "start to start" distance regardless of which form
// ends up chosen.
type Rel32 int32

func (Rel32) isOperand() {}
