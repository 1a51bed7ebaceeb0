package bytecode_test

import (
	"testing"

	"github.com/Hell0XD/spsl/lang/bytecode"
	"github.com/stretchr/testify/require"
)

func TestRoundTrip(t *testing.T) {
	var buf []byte
	want := []bytecode.Instr{
		{Op: bytecode.LocalGet, A: 3},
		{Op: bytecode.ConstantGet, A: 255},
		{Op: bytecode.Add},
		{Op: bytecode.Call, B: 1_000_000},
		{Op: bytecode.NewLambda, B: 7, A: 2},
		{Op: bytecode.LocalArrayGet, A: 0, B: 9},
		{Op: bytecode.Ret},
	}
	for _, in := range want {
		buf = bytecode.Append(buf, in.Op, in.A, in.B)
	}

	got, err := bytecode.DecodeAll(buf)
	require.NoError(t, err)
	require.Len(t, got, len(want))
	for i, w := range want {
		require.Equal(t, w.Op, got[i].Op, "instr %d", i)
		require.Equal(t, w.A, got[i].A, "instr %d", i)
		require.Equal(t, w.B, got[i].B, "instr %d", i)
	}
}

func TestDecodeUnknownOpcode(t *testing.T) {
	_, err := bytecode.DecodeAll([]byte{0xfe})
	require.ErrorIs(t, err, bytecode.ErrUnknownOpcode)
}

func TestDecodeTruncated(t *testing.T) {
	_, err := bytecode.DecodeAll([]byte{byte(bytecode.Call), 1, 2})
	require.ErrorIs(t, err, bytecode.ErrTruncated)
}

func TestEncodedLenMatchesAppend(t *testing.T) {
	for _, op := range []bytecode.Opcode{
		bytecode.LocalGet, bytecode.Add, bytecode.Call, bytecode.NewLambda, bytecode.LocalArrayGet,
	} {
		buf := bytecode.Append(nil, op, 1, 2)
		require.Len(t, buf, bytecode.EncodedLen(op))
	}
}
