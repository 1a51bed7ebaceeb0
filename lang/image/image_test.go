package image_test

import (
	"testing"

	"github.com/Hell0XD/spsl/lang/bytecode"
	"github.com/Hell0XD/spsl/lang/image"
	"github.com/Hell0XD/spsl/lang/types"
	"github.com/stretchr/testify/require"
)

func sampleProgram() *image.Program {
	var code []byte
	code = bytecode.Append(code, bytecode.ConstantGet, 0, 0)
	code = bytecode.Append(code, bytecode.ConstantGet, 1, 0)
	code = bytecode.Append(code, bytecode.Add, 0, 0)
	code = bytecode.Append(code, bytecode.Ret, 0, 0)

	return &image.Program{
		EntryIndex: 0,
		Constants:  []types.Value{types.Int(4), types.Int(6)},
		Functions: []image.Function{
			{ArgCount: 0, LocalCount: 0, Code: code},
		},
		Signatures: []image.Signature{
			{Name: "sum", ArgTypes: []image.ArgType{image.ArgInt, image.ArgInt}, ReturnType: image.ArgInt},
		},
		Groups: [][]uint32{{0}},
	}
}

func TestRoundTrip(t *testing.T) {
	p := sampleProgram()
	b, err := image.Serialize(p)
	require.NoError(t, err)

	got, err := image.Deserialize(b)
	require.NoError(t, err)

	require.Equal(t, p.EntryIndex, got.EntryIndex)
	require.Equal(t, p.Constants, got.Constants)
	require.Len(t, got.Functions, 1)
	require.Equal(t, p.Functions[0].Code, got.Functions[0].Code)
	require.Equal(t, p.Signatures, got.Signatures)
	require.Equal(t, p.Groups, got.Groups)
}

func TestBadMagic(t *testing.T) {
	_, err := image.Deserialize([]byte("XXXX"))
	require.ErrorIs(t, err, image.ErrBadMagic)
}

func TestTruncated(t *testing.T) {
	b, err := image.Serialize(sampleProgram())
	require.NoError(t, err)
	_, err = image.Deserialize(b[:len(b)-2])
	require.ErrorIs(t, err, image.ErrTruncated)
}
