package jit

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Hell0XD/spsl/lang/bytecode"
	"github.com/Hell0XD/spsl/lang/image"
	"github.com/Hell0XD/spsl/lang/types"
)

func intShape(n int) Shape {
	args := make([]image.ArgType, n)
	for i := range args {
		args[i] = image.ArgInt
	}
	return Shape{Args: args, Ret: image.ArgInt}
}

func noResolve(uint32) (uintptr, bool) { return 0, false }

// sum(a, b) = a + b; a minimal monomorphic-Int function, the shape JIT
// support is scoped to (spec.md §4.8's lowering table).
func sumFunction() image.Function {
	code := bytecode.Append(nil, bytecode.LocalGet, 0, 0)
	code = bytecode.Append(code, bytecode.LocalGet, 1, 0)
	code = bytecode.Append(code, bytecode.Add, 0, 0)
	code = bytecode.Append(code, bytecode.Ret, 0, 0)
	return image.Function{ArgCount: 2, Code: code}
}

func TestTranslateFunctionSumProducesCodeAndNoPatches(t *testing.T) {
	fn := sumFunction()
	code, patches, err := translateFunction(fn, nil, intShape(2), noResolve, []image.Function{fn})
	require.NoError(t, err)
	assert.NotEmpty(t, code)
	assert.Empty(t, patches)
	// prologue: push rbp (1 byte); mov rbp, rsp (3 bytes REX.W 89 e5)
	assert.Equal(t, byte(0x55), code[0])
}

func TestTranslateFunctionRejectsNonIntReturnShape(t *testing.T) {
	fn := sumFunction()
	shape := Shape{Args: []image.ArgType{image.ArgInt, image.ArgInt}, Ret: image.ArgStr}
	_, _, err := translateFunction(fn, nil, shape, noResolve, []image.Function{fn})
	assert.ErrorIs(t, err, ErrUnsupportedBytecode)
}

func TestTranslateFunctionRejectsNonIntArgShape(t *testing.T) {
	fn := sumFunction()
	shape := Shape{Args: []image.ArgType{image.ArgInt, image.ArgStr}, Ret: image.ArgInt}
	_, _, err := translateFunction(fn, nil, shape, noResolve, []image.Function{fn})
	assert.ErrorIs(t, err, ErrUnsupportedBytecode)
}

func TestTranslateFunctionRejectsUnsupportedOpcode(t *testing.T) {
	code := bytecode.Append(nil, bytecode.LocalGet, 0, 0)
	code = bytecode.Append(code, bytecode.LocalSet, 0, 0)
	code = bytecode.Append(code, bytecode.Ret, 0, 0)
	fn := image.Function{ArgCount: 1, Code: code}
	_, _, err := translateFunction(fn, nil, intShape(1), noResolve, []image.Function{fn})
	assert.ErrorIs(t, err, ErrUnsupportedBytecode)
}

func TestTranslateFunctionRejectsUnbalancedIf(t *testing.T) {
	code := bytecode.Append(nil, bytecode.LocalGet, 0, 0)
	code = bytecode.Append(code, bytecode.If, 0, 0)
	code = bytecode.Append(code, bytecode.LocalGet, 0, 0)
	code = bytecode.Append(code, bytecode.Ret, 0, 0) // missing End
	fn := image.Function{ArgCount: 1, Code: code}
	_, _, err := translateFunction(fn, nil, intShape(1), noResolve, []image.Function{fn})
	assert.ErrorIs(t, err, ErrUnbalancedControlFlow)
}

// branch(n) = if n then 1 else 2; exercises If/Else/End lowering and checks
// that it translates without error, produces code, and records no call
// patches.
func TestTranslateFunctionIfElseBalancesPatches(t *testing.T) {
	code := bytecode.Append(nil, bytecode.LocalGet, 0, 0)
	code = bytecode.Append(code, bytecode.If, 0, 0)
	code = bytecode.Append(code, bytecode.ConstantGet, 0, 0)
	code = bytecode.Append(code, bytecode.Else, 0, 0)
	code = bytecode.Append(code, bytecode.ConstantGet, 1, 0)
	code = bytecode.Append(code, bytecode.End, 0, 0)
	code = bytecode.Append(code, bytecode.Ret, 0, 0)
	fn := image.Function{ArgCount: 1, Code: code}
	constants := []types.Value{types.Int(1), types.Int(2)}
	out, patches, err := translateFunction(fn, constants, intShape(1), noResolve, []image.Function{fn})
	require.NoError(t, err)
	assert.Empty(t, patches)
	assert.NotEmpty(t, out)
}

// Calling a function with no native entry yet aborts the whole translation
// (spec.md §4.8: compilation only proceeds when every direct callee already
// has a native address, so the caller falls back to interpreted execution
// rather than emitting an unresolved call site).
func TestTranslateFunctionRejectsCallToUnresolvedCallee(t *testing.T) {
	callee := sumFunction()
	code := bytecode.Append(nil, bytecode.LocalGet, 0, 0)
	code = bytecode.Append(code, bytecode.LocalGet, 0, 0)
	code = bytecode.Append(code, bytecode.Call, 0, 1)
	code = bytecode.Append(code, bytecode.Ret, 0, 0)
	caller := image.Function{ArgCount: 1, Code: code}

	resolve := func(i uint32) (uintptr, bool) {
		if i == 1 {
			return 0, false
		}
		return 0, false
	}
	_, _, err := translateFunction(caller, nil, intShape(1), resolve, []image.Function{caller, callee})
	assert.ErrorIs(t, err, ErrUnsupportedBytecode)
}

func TestTranslateFunctionCallRetTailCallPatches(t *testing.T) {
	callee := sumFunction()
	code := bytecode.Append(nil, bytecode.LocalGet, 0, 0)
	code = bytecode.Append(code, bytecode.LocalGet, 0, 0)
	code = bytecode.Append(code, bytecode.CallRet, 0, 1)
	caller := image.Function{ArgCount: 1, Code: code}

	const calleeAddr = uintptr(0x1000)
	resolve := func(i uint32) (uintptr, bool) {
		if i == 1 {
			return calleeAddr, true
		}
		return 0, false
	}
	out, patches, err := translateFunction(caller, nil, intShape(1), resolve, []image.Function{caller, callee})
	require.NoError(t, err)
	require.Len(t, patches, 1)
	assert.Equal(t, calleeAddr, patches[0].target)
	assert.Less(t, patches[0].bufOffset, len(out))
}
