// Package asm encodes a small, fixed subset of x86-64 System V instructions
// used by the JIT translator (spec.md §4.6): register/immediate/memory moves,
// add/cmp, push/pop, call/ret and short conditional jumps. Grounded on the
// REX/ModR-M/SIB conventions shown in the other_examples amd64 encoders
// (launix-de/memcp's scm-jit_amd64.go and tetratelabs/wazero's amd64
// backend) — the teacher repo has no native-code backend of its own.
package asm

const (
	modReg   = 0xC0 // mod=11: register-direct addressing
	modDisp8 = 0x40 // mod=01: [base + disp8]
	modDisp4 = 0x80 // mod=10: [base + disp32]
)

func rexByte(w, r, x, b bool) (byte, bool) {
	if !w && !r && !x && !b {
		return 0, false
	}
	rex := byte(0x40)
	if w {
		rex |= 0x08
	}
	if r {
		rex |= 0x04
	}
	if x {
		rex |= 0x02
	}
	if b {
		rex |= 0x01
	}
	return rex, true
}

func modrm(mod, reg, rm byte) byte {
	return mod | ((reg & 0x7) << 3) | (rm & 0x7)
}

// memEncoding appends the ModR/M (+ SIB, if the base aliases RSP/R12) and
// disp32 bytes addressing [base+disp] with the given reg field. Displacement
// is always encoded as disp32 for simplicity: spsl frames are small but a
// narrower disp8 form buys nothing a fixed-size translator needs.
func memEncoding(buf []byte, regField byte, base Register, disp int32) []byte {
	buf = append(buf, modrm(modDisp4, regField, base.low3()))
	if base.low3() == RSP.low3() {
		buf = append(buf, 0x24) // SIB: scale=0,index=none,base=RSP/R12
	}
	buf = append(buf, byte(disp), byte(disp>>8), byte(disp>>16), byte(disp>>24))
	return buf
}

func fitsInt8(v int32) bool { return v >= -128 && v <= 127 }

// Ret encodes `ret`.
func Ret() []byte { return []byte{0xC3} }

// Push encodes `push <arg>`, arg a register, a [base+disp] memory operand, or
// a 32-bit immediate.
func Push(arg Operand) []byte {
	switch a := arg.(type) {
	case Reg:
		buf := []byte{}
		if rex, ok := rexByte(false, false, false, a.R.extended()); ok {
			buf = append(buf, rex)
		}
		return append(buf, 0x50+a.R.low3())
	case Mem:
		buf := []byte{}
		if rex, ok := rexByte(false, false, false, a.Base.extended()); ok {
			buf = append(buf, rex)
		}
		buf = append(buf, 0xFF)
		return memEncoding(buf, 6, a.Base, a.Disp)
	case Imm32:
		if fitsInt8(int32(a)) {
			return []byte{0x6A, byte(int8(a))}
		}
		v := int32(a)
		return []byte{0x68, byte(v), byte(v >> 8), byte(v >> 16), byte(v >> 24)}
	default:
		panic("asm: push: unsupported operand")
	}
}

// Pop encodes `pop <reg>`.
func Pop(r Reg) []byte {
	buf := []byte{}
	if rex, ok := rexByte(false, false, false, r.R.extended()); ok {
		buf = append(buf, rex)
	}
	return append(buf, 0x58+r.R.low3())
}

// Mov encodes `mov dst, src` for the register/memory/immediate combinations
// the translator needs: reg<-imm, reg<-reg, reg<-mem, mem<-reg.
func Mov(dst, src Operand) []byte {
	switch d := dst.(type) {
	case Reg:
		switch s := src.(type) {
		case Imm32:
			if d.Size == Qword {
				// sign-extending mov r/m64, imm32 (0xC7 /0)
				buf := []byte{}
				rex, _ := rexByte(true, false, false, d.R.extended())
				buf = append(buf, rex, 0xC7, modrm(modReg, 0, d.R.low3()))
				v := int32(s)
				return append(buf, byte(v), byte(v>>8), byte(v>>16), byte(v>>24))
			}
			buf := []byte{}
			if rex, ok := rexByte(false, false, false, d.R.extended()); ok {
				buf = append(buf, rex)
			}
			buf = append(buf, 0xB8+d.R.low3())
			v := int32(s)
			return append(buf, byte(v), byte(v>>8), byte(v>>16), byte(v>>24))
		case Imm64:
			buf := []byte{}
			rex, _ := rexByte(true, false, false, d.R.extended())
			buf = append(buf, rex, 0xB8+d.R.low3())
			v := uint64(s)
			for i := 0; i < 8; i++ {
				buf = append(buf, byte(v>>(8*i)))
			}
			return buf
		case Reg:
			buf := []byte{}
			if rex, ok := rexByte(d.Size == Qword, s.R.extended(), false, d.R.extended()); ok {
				buf = append(buf, rex)
			}
			return append(buf, 0x89, modrm(modReg, s.R.low3(), d.R.low3()))
		case Mem:
			buf := []byte{}
			if rex, ok := rexByte(d.Size == Qword, d.R.extended(), false, s.Base.extended()); ok {
				buf = append(buf, rex)
			}
			buf = append(buf, 0x8B)
			return memEncoding(buf, d.R.low3(), s.Base, s.Disp)
		}
	case Mem:
		s, ok := src.(Reg)
		if !ok {
			panic("asm: mov: memory destination requires a register source")
		}
		buf := []byte{}
		if rex, ok := rexByte(s.Size == Qword, s.R.extended(), false, d.Base.extended()); ok {
			buf = append(buf, rex)
		}
		buf = append(buf, 0x89)
		return memEncoding(buf, s.R.low3(), d.Base, d.Disp)
	}
	panic("asm: mov: unsupported operand combination")
}

// Add encodes `add dst, src` for dst a register and src a register or
// 32-bit immediate (spilling to/from memory is not needed by the
// translator's lowering of Add, spec.md §4.8).
func Add(dst Reg, src Operand) []byte {
	switch s := src.(type) {
	case Reg:
		buf := []byte{}
		if rex, ok := rexByte(dst.Size == Qword, s.R.extended(), false, dst.R.extended()); ok {
			buf = append(buf, rex)
		}
		return append(buf, 0x01, modrm(modReg, s.R.low3(), dst.R.low3()))
	case Imm32:
		buf := []byte{}
		if rex, ok := rexByte(dst.Size == Qword, false, false, dst.R.extended()); ok {
			buf = append(buf, rex)
		}
		v := int32(s)
		if fitsInt8(v) {
			return append(buf, 0x83, modrm(modReg, 0, dst.R.low3()), byte(int8(v)))
		}
		buf = append(buf, 0x81, modrm(modReg, 0, dst.R.low3()))
		return append(buf, byte(v), byte(v>>8), byte(v>>16), byte(v>>24))
	default:
		panic("asm: add: unsupported operand")
	}
}

// Cmp encodes `cmp a, b` for a a register and b a register or 32-bit
// immediate.
func Cmp(a Reg, b Operand) []byte {
	switch v := b.(type) {
	case Reg:
		buf := []byte{}
		if rex, ok := rexByte(a.Size == Qword, v.R.extended(), false, a.R.extended()); ok {
			buf = append(buf, rex)
		}
		return append(buf, 0x39, modrm(modReg, v.R.low3(), a.R.low3()))
	case Imm32:
		buf := []byte{}
		if rex, ok := rexByte(a.Size == Qword, false, false, a.R.extended()); ok {
			buf = append(buf, rex)
		}
		imm := int32(v)
		if fitsInt8(imm) {
			return append(buf, 0x83, modrm(modReg, 7, a.R.low3()), byte(int8(imm)))
		}
		buf = append(buf, 0x81, modrm(modReg, 7, a.R.low3()))
		return append(buf, byte(imm), byte(imm>>8), byte(imm>>16), byte(imm>>24))
	default:
		panic("asm: cmp: unsupported operand")
	}
}

// Jmp encodes an unconditional jump. rel is the byte distance from the start
// of this instruction to the start of the target; the short (2-byte) form is
// used when that distance, compensated for the instruction's own length,
// fits in a signed 8-bit displacement, otherwise the 5-byte near form.
func Jmp(rel Rel32) []byte {
	r := int32(rel)
	if d := r - 2; fitsInt8(d) {
		return []byte{0xEB, byte(int8(d))}
	}
	d := r - 5
	return []byte{0xE9, byte(d), byte(d >> 8), byte(d >> 16), byte(d >> 24)}
}

// Jne encodes a "jump if not equal" (ZF=0) using the same short/long
// selection as Jmp; the long form is 6 bytes (0F 85 + disp32).
func Jne(rel Rel32) []byte {
	r := int32(rel)
	if d := r - 2; fitsInt8(d) {
		return []byte{0x75, byte(int8(d))}
	}
	d := r - 6
	return []byte{0x0F, 0x85, byte(d), byte(d >> 8), byte(d >> 16), byte(d >> 24)}
}

// Call encodes a call to either a fixed relative target (Rel32, always the
// 5-byte near form — there is no short call) or a register holding an
// absolute address (call r/m64, 0xFF /2).
func Call(arg Operand) []byte {
	switch a := arg.(type) {
	case Rel32:
		d := int32(a) - 5
		return []byte{0xE8, byte(d), byte(d >> 8), byte(d >> 16), byte(d >> 24)}
	case Reg:
		buf := []byte{}
		if rex, ok := rexByte(false, false, false, a.R.extended()); ok {
			buf = append(buf, rex)
		}
		return append(buf, 0xFF, modrm(modReg, 2, a.R.low3()))
	default:
		panic("asm: call: unsupported operand")
	}
}
