// Package bytecode defines the opcode set shared by the image deserializer,
// the interpreter and the JIT, and the codec that encodes/decodes it to and
// from the on-disk bytecode format.
package bytecode

import "fmt"

// Opcode is a single spsl instruction. Each opcode's immediate width is given
// by its entry in widths; opcodes without an entry take no immediate.
type Opcode uint8

const ( //nolint:revive
	LocalGet Opcode = iota
	LocalSet
	ConstantGet
	Add
	Sub
	Mul
	Div
	Eq
	Lt
	Gt
	Lte
	Gte
	If
	Else
	End
	Call
	CallRet
	Ret
	Remove
	ConstantNil
	CallLambda
	_reserved21
	Nop
	Atom
	Print
	NewPair
	NewArray
	NewLambda
	NewArrayDyn
	_reserved29
	PairLeft
	PairRight
	ArrayGet
	LocalArrayGet
	ArraySet
	ArrayLen
	StringLen
	_reserved37
	_reserved38
	_reserved39
	IfEq
	IfLt
	IfGt
	IfLte
	IfGte
	_reserved45
	_reserved46
	_reserved47
	_reserved48
	_reserved49
	Import
	CallDynamic

	opcodeMax = CallDynamic
)

// Width describes the shape of an opcode's immediate operand.
type Width int

const (
	WidthNone   Width = iota // no immediate
	WidthU8                  // one byte
	WidthU32                 // one little-endian uint32
	WidthU8U32               // one byte followed by one uint32 (LocalArrayGet: local, index)
	WidthU32U8               // one uint32 followed by one byte (NewLambda: func index, capture count)
)

var widths = [...]Width{
	LocalGet:      WidthU8,
	LocalSet:      WidthU8,
	ConstantGet:   WidthU8,
	Call:          WidthU32,
	CallRet:       WidthU32,
	Atom:          WidthU32,
	NewArray:      WidthU32,
	NewLambda:     WidthU32U8,
	LocalArrayGet: WidthU8U32,
	Import:        WidthU32,
	CallDynamic:   WidthU32,
}

// ImmediateWidth returns the encoded shape of op's immediate operand. Opcodes
// not present in the widths table take no immediate.
func ImmediateWidth(op Opcode) Width {
	if int(op) < len(widths) {
		return widths[op]
	}
	return WidthNone
}

// EncodedLen returns the number of bytes op (with its immediate, if any)
// occupies in the bytecode stream: one opcode byte plus the immediate width.
func EncodedLen(op Opcode) int {
	switch ImmediateWidth(op) {
	case WidthU8:
		return 2
	case WidthU32:
		return 5
	case WidthU8U32, WidthU32U8:
		return 6
	default:
		return 1
	}
}

var names = [...]string{
	LocalGet:      "local_get",
	LocalSet:      "local_set",
	ConstantGet:   "constant_get",
	Add:           "add",
	Sub:           "sub",
	Mul:           "mul",
	Div:           "div",
	Eq:            "eq",
	Lt:            "lt",
	Gt:            "gt",
	Lte:           "lte",
	Gte:           "gte",
	If:            "if",
	Else:          "else",
	End:           "end",
	Call:          "call",
	CallRet:       "call_ret",
	Ret:           "ret",
	Remove:        "remove",
	ConstantNil:   "constant_nil",
	CallLambda:    "call_lambda",
	Nop:           "nop",
	Atom:          "atom",
	Print:         "print",
	NewPair:       "new_pair",
	NewArray:      "new_array",
	NewLambda:     "new_lambda",
	NewArrayDyn:   "new_array_dyn",
	PairLeft:      "pair_left",
	PairRight:     "pair_right",
	ArrayGet:      "array_get",
	LocalArrayGet: "local_array_get",
	ArraySet:      "array_set",
	ArrayLen:      "array_len",
	StringLen:     "string_len",
	IfEq:          "if_eq",
	IfLt:          "if_lt",
	IfGt:          "if_gt",
	IfLte:         "if_lte",
	IfGte:         "if_gte",
	Import:        "import",
	CallDynamic:   "call_dynamic",
}

func (op Opcode) String() string {
	if int(op) <= int(opcodeMax) {
		if n := names[op]; n != "" {
			return n
		}
	}
	return fmt.Sprintf("illegal opcode (%d)", op)
}

// IsConditional reports whether op is one of the If/If* family that consumes
// operands and opens a structured conditional block.
func IsConditional(op Opcode) bool {
	switch op {
	case If, IfEq, IfLt, IfGt, IfLte, IfGte:
		return true
	default:
		return false
	}
}

var reverseNames = func() map[string]Opcode {
	m := make(map[string]Opcode, len(names))
	for op, n := range names {
		if n != "" {
			m[n] = Opcode(op)
		}
	}
	return m
}()

// Lookup returns the opcode named by s, the inverse of Opcode.String.
func Lookup(s string) (Opcode, bool) {
	op, ok := reverseNames[s]
	return op, ok
}
