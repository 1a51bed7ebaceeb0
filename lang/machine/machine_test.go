package machine_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Hell0XD/spsl/lang/bytecode"
	"github.com/Hell0XD/spsl/lang/image"
	"github.com/Hell0XD/spsl/lang/machine"
	"github.com/Hell0XD/spsl/lang/types"
)

func code(ops ...func([]byte) []byte) []byte {
	var buf []byte
	for _, op := range ops {
		buf = op(buf)
	}
	return buf
}

func op(o bytecode.Opcode, a uint8, b uint32) func([]byte) []byte {
	return func(buf []byte) []byte { return bytecode.Append(buf, o, a, b) }
}

// TestConstantAdd covers spec scenario 1: ConstI32 4; ConstI32 6; Add; Ret.
func TestConstantAdd(t *testing.T) {
	prog := &image.Program{
		Constants: []types.Value{types.Int(4), types.Int(6)},
		Functions: []image.Function{{
			ArgCount: 0,
			Code: code(
				op(bytecode.ConstantGet, 0, 0),
				op(bytecode.ConstantGet, 1, 0),
				op(bytecode.Add, 0, 0),
				op(bytecode.Ret, 0, 0),
			),
		}},
	}
	var th machine.Thread
	res, err := th.RunProgram(prog)
	require.NoError(t, err)
	assert.Equal(t, types.Int(10), res)
}

// TestArgumentUse covers spec scenario 2: f(x) = x + x; f(7) = 14, via a
// wrapper entry function that calls f with a constant argument.
func TestArgumentUse(t *testing.T) {
	prog := &image.Program{
		Constants: []types.Value{types.Int(7)},
		Functions: []image.Function{
			{ // entry: call f(7); ret
				ArgCount: 0,
				Code: code(
					op(bytecode.ConstantGet, 0, 0),
					op(bytecode.Call, 0, 1),
					op(bytecode.Ret, 0, 0),
				),
			},
			{ // f(x) = x + x
				ArgCount: 1,
				Code: code(
					op(bytecode.LocalGet, 0, 0),
					op(bytecode.LocalGet, 0, 0),
					op(bytecode.Add, 0, 0),
					op(bytecode.Ret, 0, 0),
				),
			},
		},
	}
	var th machine.Thread
	res, err := th.RunProgram(prog)
	require.NoError(t, err)
	assert.Equal(t, types.Int(14), res)
}

// TestTailRecursionDoesNotGrowHostStack covers spec scenario 3:
// count(n) = if n=0 then 0 else count(n-1), via IfEq/Else/End and CallRet.
// count(1_000_000) must return Int(0) without host call-stack growth, which
// this test exercises simply by not stack-overflowing.
func TestTailRecursionDoesNotGrowHostStack(t *testing.T) {
	prog := &image.Program{
		Constants: []types.Value{types.Int(1_000_000), types.Int(0), types.Int(1)},
		Functions: []image.Function{
			{ // entry: call count(1_000_000); ret
				ArgCount: 0,
				Code: code(
					op(bytecode.ConstantGet, 0, 0),
					op(bytecode.Call, 0, 1),
					op(bytecode.Ret, 0, 0),
				),
			},
			{ // count(n): if_eq n, 0 { n } else { count(n-1) }
				ArgCount: 1,
				Code: code(
					op(bytecode.LocalGet, 0, 0),
					op(bytecode.ConstantGet, 1, 0),
					op(bytecode.IfEq, 0, 0),
					op(bytecode.LocalGet, 0, 0),
					op(bytecode.Else, 0, 0),
					op(bytecode.LocalGet, 0, 0),
					op(bytecode.ConstantGet, 2, 0),
					op(bytecode.Sub, 0, 0),
					op(bytecode.CallRet, 0, 1),
					op(bytecode.End, 0, 0),
					op(bytecode.Ret, 0, 0),
				),
			},
		},
	}
	var th machine.Thread
	res, err := th.RunProgram(prog)
	require.NoError(t, err)
	assert.Equal(t, types.Int(0), res)
}

// TestPairRoundTrip covers spec scenario 5.
func TestPairRoundTrip(t *testing.T) {
	mkProg := func(tail bytecode.Opcode) *image.Program {
		return &image.Program{
			Constants: []types.Value{types.Int(3), types.Int(4)},
			Functions: []image.Function{{
				ArgCount: 0,
				Code: code(
					op(bytecode.ConstantGet, 0, 0),
					op(bytecode.ConstantGet, 1, 0),
					op(bytecode.NewPair, 0, 0),
					op(tail, 0, 0),
					op(bytecode.Ret, 0, 0),
				),
			}},
		}
	}

	var th machine.Thread
	res, err := th.RunProgram(mkProg(bytecode.PairLeft))
	require.NoError(t, err)
	assert.Equal(t, types.Int(3), res)

	var th2 machine.Thread
	res, err = th2.RunProgram(mkProg(bytecode.PairRight))
	require.NoError(t, err)
	assert.Equal(t, types.Int(4), res)
}

// TestNewArrayDynZeroAndOutOfRangeGet covers the explicit boundary cases:
// NewArrayDyn 0 has length zero, and ArrayGet out of range yields Nil.
func TestNewArrayDynZeroAndOutOfRangeGet(t *testing.T) {
	prog := &image.Program{
		Constants: []types.Value{types.Int(0), types.Int(5)},
		Functions: []image.Function{{
			ArgCount: 0,
			Code: code(
				op(bytecode.ConstantGet, 0, 0), // size 0
				op(bytecode.NewArrayDyn, 0, 0),
				op(bytecode.ConstantGet, 1, 0), // index 5, out of range
				op(bytecode.ArrayGet, 0, 0),
				op(bytecode.Ret, 0, 0),
			),
		}},
	}
	var th machine.Thread
	res, err := th.RunProgram(prog)
	require.NoError(t, err)
	assert.Equal(t, types.Nil, res)
}

// TestArraySetChains verifies ArraySet returns the array itself.
func TestArraySetChains(t *testing.T) {
	prog := &image.Program{
		Constants: []types.Value{types.Int(2), types.Int(0), types.Int(9)},
		Functions: []image.Function{{
			ArgCount: 0,
			Code: code(
				op(bytecode.ConstantGet, 0, 0), // size 2
				op(bytecode.NewArrayDyn, 0, 0),
				op(bytecode.ConstantGet, 1, 0), // index 0
				op(bytecode.ConstantGet, 2, 0), // value 9
				op(bytecode.ArraySet, 0, 0),
				op(bytecode.ConstantGet, 1, 0), // index 0 again
				op(bytecode.ArrayGet, 0, 0),
				op(bytecode.Ret, 0, 0),
			),
		}},
	}
	var th machine.Thread
	res, err := th.RunProgram(prog)
	require.NoError(t, err)
	assert.Equal(t, types.Int(9), res)
}

// TestLambdaCapture exercises NewLambda/CallLambda and LocalArrayGet's
// immediate-indexed capture access.
func TestLambdaCapture(t *testing.T) {
	prog := &image.Program{
		Constants: []types.Value{types.Int(100)},
		Functions: []image.Function{
			{ // entry: make a lambda capturing 100, call it, ret
				ArgCount: 0,
				Code: code(
					op(bytecode.ConstantGet, 0, 0),
					op(bytecode.NewLambda, 1, 1), // func index 1, 1 capture
					op(bytecode.CallLambda, 0, 0),
					op(bytecode.Ret, 0, 0),
				),
			},
			{ // adder(captures) = captures[0] + captures[0]; arg_count=1 (captures only)
				ArgCount: 1,
				Code: code(
					op(bytecode.LocalArrayGet, 0, 0),
					op(bytecode.LocalArrayGet, 0, 0),
					op(bytecode.Add, 0, 0),
					op(bytecode.Ret, 0, 0),
				),
			},
		},
	}
	var th machine.Thread
	res, err := th.RunProgram(prog)
	require.NoError(t, err)
	assert.Equal(t, types.Int(200), res)
}

// TestHotFunctionRoutesThroughJITOnSixthCall covers spec scenario 4: a
// monomorphic Int function called repeatedly through ordinary (non-tail)
// Call opcodes becomes hot after HotThreshold interpreted calls and the
// call that follows is routed through the JIT instead of the interpreter.
// inc(n) = n + 1 is called six times in a row, threading its own result
// back in as the next call's argument; by the profiler's count, call 5
// crosses HotThreshold and triggers a compile, so call 6 must find a
// native entry already installed.
func TestHotFunctionRoutesThroughJITOnSixthCall(t *testing.T) {
	const incFuncIndex = 1
	prog := &image.Program{
		Constants: []types.Value{types.Int(1)},
		Functions: []image.Function{
			{ // entry: x := 1; call inc(x) six times in a row; ret x
				ArgCount: 0,
				Code: code(
					op(bytecode.ConstantGet, 0, 0),
					op(bytecode.Call, 0, incFuncIndex),
					op(bytecode.Call, 0, incFuncIndex),
					op(bytecode.Call, 0, incFuncIndex),
					op(bytecode.Call, 0, incFuncIndex),
					op(bytecode.Call, 0, incFuncIndex),
					op(bytecode.Call, 0, incFuncIndex),
					op(bytecode.Ret, 0, 0),
				),
			},
			{ // inc(n) = n + 1
				ArgCount: 1,
				Code: code(
					op(bytecode.LocalGet, 0, 0),
					op(bytecode.ConstantGet, 0, 0),
					op(bytecode.Add, 0, 0),
					op(bytecode.Ret, 0, 0),
				),
			},
		},
	}

	th := &machine.Thread{JIT: true}
	res, err := th.RunProgram(prog)
	require.NoError(t, err)
	assert.Equal(t, types.Int(7), res)
	assert.NoError(t, th.LastJITFailure())
	assert.True(t, th.JITCompiled(incFuncIndex), "inc should have compiled after crossing HotThreshold on its 5th call")
}

// TestArityMismatchIsFatal checks that a Call opcode invoking a function
// that takes more arguments than the caller's stack holds reports
// ErrStackUnderflow rather than panicking or silently truncating.
func TestArityMismatchIsFatal(t *testing.T) {
	prog := &image.Program{
		Functions: []image.Function{
			{ArgCount: 0, Code: code(op(bytecode.Call, 0, 1), op(bytecode.Ret, 0, 0))},
			{ArgCount: 1, Code: code(op(bytecode.LocalGet, 0, 0), op(bytecode.Ret, 0, 0))},
		},
	}
	var th machine.Thread
	_, err := th.RunProgram(prog)
	require.ErrorIs(t, err, machine.ErrStackUnderflow)
}
