package bytecode

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// ErrUnknownOpcode is returned (wrapped) when decoding encounters a byte that
// does not correspond to a known opcode. A corrupt or version-skewed image
// produces this.
var ErrUnknownOpcode = errors.New("spsl: unknown opcode")

// ErrTruncated is returned (wrapped) when the code buffer ends in the middle
// of an instruction's immediate operand.
var ErrTruncated = errors.New("spsl: truncated bytecode")

// Instr is one decoded instruction together with the byte offset (PC) it
// starts at.
type Instr struct {
	PC int
	Op Opcode
	A  uint8  // small operand (LocalGet/LocalSet/ConstantGet index, NewLambda capture count, LocalArrayGet local)
	B  uint32 // wide operand (Call/CallRet target, Atom tag, NewArray count, NewLambda func index, Import/CallDynamic index, ...)
}

// Append encodes op (with operands a, b as required by its immediate width)
// onto buf and returns the extended slice. Single-pass, no intermediate
// allocation beyond what append needs.
func Append(buf []byte, op Opcode, a uint8, b uint32) []byte {
	buf = append(buf, byte(op))
	switch ImmediateWidth(op) {
	case WidthU8:
		buf = append(buf, a)
	case WidthU32:
		buf = appendU32(buf, b)
	case WidthU8U32:
		buf = append(buf, a)
		buf = appendU32(buf, b)
	case WidthU32U8:
		buf = appendU32(buf, b)
		buf = append(buf, a)
	}
	return buf
}

func appendU32(buf []byte, v uint32) []byte {
	var tmp [4]byte
	binary.LittleEndian.PutUint32(tmp[:], v)
	return append(buf, tmp[:]...)
}

// DecodeAt decodes a single instruction at code[pc:] and returns it along
// with the PC of the next instruction. It is the primitive the interpreter's
// fetch-decode step and the JIT translator both use.
func DecodeAt(code []byte, pc int) (Instr, int, error) {
	if pc < 0 || pc >= len(code) {
		return Instr{}, pc, fmt.Errorf("%w: pc %d out of range (len %d)", ErrTruncated, pc, len(code))
	}
	op := Opcode(code[pc])
	if int(op) > int(opcodeMax) || names[op] == "" {
		return Instr{}, pc, fmt.Errorf("%w: 0x%02x at pc %d", ErrUnknownOpcode, code[pc], pc)
	}
	in := Instr{PC: pc, Op: op}
	next := pc + 1

	width := ImmediateWidth(op)
	switch width {
	case WidthNone:
	case WidthU8:
		if next >= len(code) {
			return Instr{}, pc, fmt.Errorf("%w: opcode %s at pc %d", ErrTruncated, op, pc)
		}
		in.A = code[next]
		next++
	case WidthU32:
		v, n, err := readU32(code, next)
		if err != nil {
			return Instr{}, pc, fmt.Errorf("%w: opcode %s at pc %d", ErrTruncated, op, pc)
		}
		in.B = v
		next = n
	case WidthU8U32:
		if next >= len(code) {
			return Instr{}, pc, fmt.Errorf("%w: opcode %s at pc %d", ErrTruncated, op, pc)
		}
		in.A = code[next]
		next++
		v, n, err := readU32(code, next)
		if err != nil {
			return Instr{}, pc, fmt.Errorf("%w: opcode %s at pc %d", ErrTruncated, op, pc)
		}
		in.B = v
		next = n
	case WidthU32U8:
		v, n, err := readU32(code, next)
		if err != nil {
			return Instr{}, pc, fmt.Errorf("%w: opcode %s at pc %d", ErrTruncated, op, pc)
		}
		in.B = v
		next = n
		if next >= len(code) {
			return Instr{}, pc, fmt.Errorf("%w: opcode %s at pc %d", ErrTruncated, op, pc)
		}
		in.A = code[next]
		next++
	}
	return in, next, nil
}

func readU32(code []byte, at int) (uint32, int, error) {
	if at+4 > len(code) {
		return 0, at, ErrTruncated
	}
	return binary.LittleEndian.Uint32(code[at : at+4]), at + 4, nil
}

// DecodeAll decodes every instruction in code, used by the disassembler and
// by round-trip tests. It fails on the first unknown opcode or truncation.
func DecodeAll(code []byte) ([]Instr, error) {
	var out []Instr
	pc := 0
	for pc < len(code) {
		in, next, err := DecodeAt(code, pc)
		if err != nil {
			return nil, err
		}
		out = append(out, in)
		pc = next
	}
	return out, nil
}
