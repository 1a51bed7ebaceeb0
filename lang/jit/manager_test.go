package jit_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Hell0XD/spsl/lang/bytecode"
	"github.com/Hell0XD/spsl/lang/image"
	"github.com/Hell0XD/spsl/lang/jit"
)

func sumProgram() *image.Program {
	code := bytecode.Append(nil, bytecode.LocalGet, 0, 0)
	code = bytecode.Append(code, bytecode.LocalGet, 1, 0)
	code = bytecode.Append(code, bytecode.Add, 0, 0)
	code = bytecode.Append(code, bytecode.Ret, 0, 0)
	return &image.Program{
		Functions: []image.Function{{ArgCount: 2, Code: code}},
	}
}

func intShape(args ...image.ArgType) jit.Shape {
	return jit.Shape{Args: args, Ret: image.ArgInt}
}

// TestManagerCompileAndInvoke covers spec scenario 4's tail: once a shape is
// recorded as hot and compiled, Invoke through the loader trampoline returns
// the same result the interpreter would, for a two-argument function whose
// arguments are passed in registers.
func TestManagerCompileAndInvoke(t *testing.T) {
	mgr, err := jit.NewManager(0)
	require.NoError(t, err)
	defer mgr.Release()

	prog := sumProgram()
	shape := intShape(image.ArgInt, image.ArgInt)
	require.NoError(t, mgr.Compile(prog, 0, shape))

	entry, ok := mgr.Lookup(0)
	require.True(t, ok)
	assert.Equal(t, image.ArgInt, entry.RetType)

	got := mgr.Invoke(entry, []int64{4, 6})
	assert.Equal(t, int64(10), got)

	got = mgr.Invoke(entry, []int64{-3, 3})
	assert.Equal(t, int64(0), got)
}

// TestManagerCompileIsIdempotent checks that compiling an already-compiled
// function index a second time is a no-op that keeps the first entry.
func TestManagerCompileIsIdempotent(t *testing.T) {
	mgr, err := jit.NewManager(0)
	require.NoError(t, err)
	defer mgr.Release()

	prog := sumProgram()
	shape := intShape(image.ArgInt, image.ArgInt)
	require.NoError(t, mgr.Compile(prog, 0, shape))
	first, _ := mgr.Lookup(0)

	require.NoError(t, mgr.Compile(prog, 0, shape))
	second, _ := mgr.Lookup(0)
	assert.Equal(t, first.Addr, second.Addr)
}

// TestManagerCompileNonFatalFailure checks that a function using a bytecode
// the JIT does not lower (here, LocalSet) is rejected without touching the
// entries table, leaving the function interpreted (spec.md §4.8/§7: JIT
// failure is never fatal to the program).
func TestManagerCompileNonFatalFailure(t *testing.T) {
	mgr, err := jit.NewManager(0)
	require.NoError(t, err)
	defer mgr.Release()

	code := bytecode.Append(nil, bytecode.LocalGet, 0, 0)
	code = bytecode.Append(code, bytecode.LocalSet, 0, 0)
	code = bytecode.Append(code, bytecode.Ret, 0, 0)
	prog := &image.Program{Functions: []image.Function{{ArgCount: 1, Code: code}}}

	err = mgr.Compile(prog, 0, intShape(image.ArgInt))
	assert.ErrorIs(t, err, jit.ErrUnsupportedBytecode)
	_, ok := mgr.Lookup(0)
	assert.False(t, ok)
}

// TestManagerResolvesEarlierCompiledCallee exercises the callPatch path: a
// caller compiled after its callee is already native gets its call site
// patched to the callee's real arena address, and invoking the caller
// produces the composed result.
func TestManagerResolvesEarlierCompiledCallee(t *testing.T) {
	mgr, err := jit.NewManager(0)
	require.NoError(t, err)
	defer mgr.Release()

	calleeCode := bytecode.Append(nil, bytecode.LocalGet, 0, 0)
	calleeCode = bytecode.Append(calleeCode, bytecode.LocalGet, 1, 0)
	calleeCode = bytecode.Append(calleeCode, bytecode.Add, 0, 0)
	calleeCode = bytecode.Append(calleeCode, bytecode.Ret, 0, 0)

	callerCode := bytecode.Append(nil, bytecode.LocalGet, 0, 0)
	callerCode = bytecode.Append(callerCode, bytecode.LocalGet, 0, 0)
	callerCode = bytecode.Append(callerCode, bytecode.CallRet, 0, 1)

	prog := &image.Program{
		Functions: []image.Function{
			{ArgCount: 1, Code: callerCode}, // double(n) = sum(n, n), tail call
			{ArgCount: 2, Code: calleeCode}, // sum(a, b)
		},
	}

	require.NoError(t, mgr.Compile(prog, 1, intShape(image.ArgInt, image.ArgInt)))
	require.NoError(t, mgr.Compile(prog, 0, intShape(image.ArgInt)))

	entry, ok := mgr.Lookup(0)
	require.True(t, ok)
	got := mgr.Invoke(entry, []int64{21})
	assert.Equal(t, int64(42), got)
}
