package ffi_test

import (
	"testing"

	"github.com/Hell0XD/spsl/lang/ffi"
	"github.com/Hell0XD/spsl/lang/image"
	"github.com/Hell0XD/spsl/lang/types"
	"github.com/stretchr/testify/require"
)

func TestCallDynamicRejectsHighArity(t *testing.T) {
	tbl := ffi.NewTable()
	sig := image.Signature{
		Name:       "f3",
		ArgTypes:   []image.ArgType{image.ArgInt, image.ArgInt, image.ArgInt},
		ReturnType: image.ArgInt,
	}
	_, err := tbl.CallDynamic(sig, []types.Value{types.Int(1), types.Int(2), types.Int(3)})
	require.ErrorIs(t, err, ffi.ErrUnsupportedArity)
}

func TestCallDynamicUndefinedSymbol(t *testing.T) {
	tbl := ffi.NewTable()
	sig := image.Signature{Name: "does_not_exist", ReturnType: image.ArgInt}
	_, err := tbl.CallDynamic(sig, nil)
	require.ErrorIs(t, err, ffi.ErrUndefinedSymbol)
}

func TestLoadedFalseBeforeLoad(t *testing.T) {
	tbl := ffi.NewTable()
	require.False(t, tbl.Loaded("/nonexistent/lib.so"))
}

// TestCallDynamicAgainstLibcAbs exercises the full Import+CallDynamic path
// against a real shared library's real exported symbol: libc's abs(int)
// stands in for a user-supplied library here, since this repository has no
// purpose-built .so to ship or build at test time (see DESIGN.md's
// test-coverage limitation note on spec.md §8 scenario 6).
func TestCallDynamicAgainstLibcAbs(t *testing.T) {
	tbl := ffi.NewTable()
	require.False(t, tbl.Loaded(testLibcPath))
	require.NoError(t, tbl.Load(testLibcPath, []string{"abs"}))
	require.True(t, tbl.Loaded(testLibcPath))

	sig := image.Signature{Name: "abs", ArgTypes: []image.ArgType{image.ArgInt}, ReturnType: image.ArgInt}
	result, err := tbl.CallDynamic(sig, []types.Value{types.Int(-42)})
	require.NoError(t, err)
	require.Equal(t, types.Int(42), result)

	// a second Load of the same path is a no-op re-bind, not a second dlopen.
	require.NoError(t, tbl.Load(testLibcPath, []string{"abs"}))
}
