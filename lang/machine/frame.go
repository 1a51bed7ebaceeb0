package machine

import (
	"github.com/Hell0XD/spsl/lang/bytecode"
	"github.com/Hell0XD/spsl/lang/image"
	"github.com/Hell0XD/spsl/lang/types"
)

// dataStackCapacity is the fixed per-frame operand stack size (spec.md
// §4.9/§5: "a data stack of fixed capacity 256 Values... an ungrown arena").
const dataStackCapacity = 256

// Frame is one interpreter activation: the decoded instruction stream for
// the function currently bound to it, its locals vector, and its own
// operand stack. CallRet rebinds a Frame's instrs/locals/fn in place rather
// than pushing a new one, which is how tail calls avoid growing the host
// call stack (spec.md §4.9).
type Frame struct {
	instrs    []bytecode.Instr
	locals    []types.Value
	fn        image.Function
	funcIndex uint32

	stack [dataStackCapacity]types.Value
	sp    int
}

func (fr *Frame) push(v types.Value) error {
	if fr.sp >= dataStackCapacity {
		return ErrStackOverflow
	}
	fr.stack[fr.sp] = v
	fr.sp++
	return nil
}

func (fr *Frame) pop() (types.Value, error) {
	if fr.sp == 0 {
		return nil, ErrStackUnderflow
	}
	fr.sp--
	v := fr.stack[fr.sp]
	fr.stack[fr.sp] = nil
	return v, nil
}

// discard pops the top of the data stack and releases the reference it held
// (spec.md §9's ownership model: a value that moves to a new owner gets
// retained there before discard runs, a value that is simply dropped does
// not). Opcodes whose result is "pop one value and never look at it again"
// (Remove, Print, If's condition, NewArrayDyn's size, ArrayLen/StringLen's
// operand) use discard instead of pop so their operand's refcount actually
// comes down; the arithmetic/comparison opcodes pop and then call
// types.Release themselves.
func (fr *Frame) discard() (types.Value, error) {
	v, err := fr.pop()
	if err != nil {
		return nil, err
	}
	types.Release(v)
	return v, nil
}
