package bytecode

import (
	"fmt"
	"io"
)

// Disassemble writes one line per instruction in code to w, in the form
// "offset: MNEMONIC operand", mirroring the teacher's Opcode.String() naming
// and the asm-text idiom of lang/compiler/asm.go (SPEC_FULL.md §4.10). The
// CLI does not call it; --debug-jit prints only the compile failure reason.
func Disassemble(w io.Writer, code []byte) error {
	pc := 0
	for pc < len(code) {
		in, next, err := DecodeAt(code, pc)
		if err != nil {
			return err
		}
		if _, err := io.WriteString(w, formatInstr(in)); err != nil {
			return err
		}
		pc = next
	}
	return nil
}

func formatInstr(in Instr) string {
	switch ImmediateWidth(in.Op) {
	case WidthNone:
		return fmt.Sprintf("%4d: %s\n", in.PC, in.Op)
	case WidthU8:
		return fmt.Sprintf("%4d: %s %d\n", in.PC, in.Op, in.A)
	case WidthU32:
		return fmt.Sprintf("%4d: %s %d\n", in.PC, in.Op, in.B)
	case WidthU8U32:
		return fmt.Sprintf("%4d: %s %d, %d\n", in.PC, in.Op, in.A, in.B)
	case WidthU32U8:
		return fmt.Sprintf("%4d: %s %d, %d\n", in.PC, in.Op, in.B, in.A)
	default:
		return fmt.Sprintf("%4d: %s\n", in.PC, in.Op)
	}
}
