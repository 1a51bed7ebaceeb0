package asm_test

import (
	"testing"

	"github.com/Hell0XD/spsl/lang/jit/asm"
	"github.com/stretchr/testify/require"
)

func TestRetEncoding(t *testing.T) {
	require.Equal(t, []byte{0xC3}, asm.Ret())
}

func TestPushRegisterNeedsRexForExtended(t *testing.T) {
	require.Equal(t, []byte{0x50}, asm.Push(asm.Reg{R: asm.RAX, Size: asm.Qword}))
	require.Equal(t, []byte{0x41, 0x50}, asm.Push(asm.Reg{R: asm.R8, Size: asm.Qword}))
}

func TestPushImmShortVsLong(t *testing.T) {
	require.Equal(t, []byte{0x6A, 0x7F}, asm.Push(asm.Imm32(127)))
	require.Equal(t, []byte{0x68, 0x80, 0x00, 0x00, 0x00}, asm.Push(asm.Imm32(128)))
}

func TestMovRegImm32(t *testing.T) {
	got := asm.Mov(asm.Reg{R: asm.RAX, Size: asm.Dword}, asm.Imm32(10))
	require.Equal(t, []byte{0xB8, 0x0A, 0x00, 0x00, 0x00}, got)
}

func TestMovRegImm64(t *testing.T) {
	got := asm.Mov(asm.Reg{R: asm.RAX, Size: asm.Qword}, asm.Imm64(1))
	require.Equal(t, byte(0x48), got[0]) // REX.W
	require.Equal(t, byte(0xB8), got[1])
	require.Len(t, got, 10)
}

func TestMovRegReg(t *testing.T) {
	got := asm.Mov(asm.Reg{R: asm.RBX, Size: asm.Qword}, asm.Reg{R: asm.RAX, Size: asm.Qword})
	require.Equal(t, []byte{0x48, 0x89, 0xC3}, got)
}

func TestMovMemRoundTrip(t *testing.T) {
	store := asm.Mov(asm.Mem{Base: asm.RBP, Disp: -8}, asm.Reg{R: asm.RAX, Size: asm.Qword})
	require.Equal(t, []byte{0x48, 0x89, 0x85, 0xF8, 0xFF, 0xFF, 0xFF}, store)

	load := asm.Mov(asm.Reg{R: asm.RCX, Size: asm.Qword}, asm.Mem{Base: asm.RBP, Disp: -8})
	require.Equal(t, []byte{0x48, 0x8B, 0x8D, 0xF8, 0xFF, 0xFF, 0xFF}, load)
}

func TestMovMemBaseRspNeedsSib(t *testing.T) {
	got := asm.Mov(asm.Reg{R: asm.RAX, Size: asm.Qword}, asm.Mem{Base: asm.RSP, Disp: 0})
	require.Equal(t, []byte{0x48, 0x8B, 0x84, 0x24, 0x00, 0x00, 0x00, 0x00}, got)
}

func TestAddRegReg(t *testing.T) {
	got := asm.Add(asm.Reg{R: asm.RAX, Size: asm.Qword}, asm.Reg{R: asm.RBX, Size: asm.Qword})
	require.Equal(t, []byte{0x48, 0x01, 0xD8}, got)
}

func TestAddImmShortVsLong(t *testing.T) {
	short := asm.Add(asm.Reg{R: asm.RAX, Size: asm.Qword}, asm.Imm32(1))
	require.Equal(t, []byte{0x48, 0x83, 0xC0, 0x01}, short)

	long := asm.Add(asm.Reg{R: asm.RAX, Size: asm.Qword}, asm.Imm32(1000))
	require.Equal(t, byte(0x81), long[1])
	require.Len(t, long, 7)
}

func TestCmpRegImm(t *testing.T) {
	got := asm.Cmp(asm.Reg{R: asm.RAX, Size: asm.Qword}, asm.Imm32(0))
	require.Equal(t, []byte{0x48, 0x83, 0xF8, 0x00}, got)
}

func TestJmpShortLongBoundary(t *testing.T) {
	// rel-2 must fit in int8: rel=129 -> disp8=127 (fits), rel=130 -> disp8=128 (doesn't).
	short := asm.Jmp(asm.Rel32(129))
	require.Len(t, short, 2)
	require.Equal(t, byte(0xEB), short[0])
	require.Equal(t, byte(127), short[1])

	long := asm.Jmp(asm.Rel32(130))
	require.Len(t, long, 5)
	require.Equal(t, byte(0xE9), long[0])
}

func TestJneShortLongBoundary(t *testing.T) {
	short := asm.Jne(asm.Rel32(129))
	require.Len(t, short, 2)
	require.Equal(t, byte(0x75), short[0])

	long := asm.Jne(asm.Rel32(130))
	require.Len(t, long, 6)
	require.Equal(t, []byte{0x0F, 0x85}, long[:2])
}

func TestCallRelAndReg(t *testing.T) {
	rel := asm.Call(asm.Rel32(5))
	require.Equal(t, []byte{0xE8, 0x00, 0x00, 0x00, 0x00}, rel)

	reg := asm.Call(asm.Reg{R: asm.R10, Size: asm.Qword})
	require.Equal(t, []byte{0x41, 0xFF, 0xD2}, reg)
}

func TestBufferPatchRel32(t *testing.T) {
	var buf asm.Buffer
	buf.Emit(asm.Jne(asm.Rel32(1000))) // placeholder, long form since rel=1000 does not fit a disp8
	patchAt := buf.Len() - 4
	buf.PatchRel32(patchAt, 42)
	b := buf.Bytes()
	require.Equal(t, int32(42), int32(b[patchAt])|int32(b[patchAt+1])<<8|int32(b[patchAt+2])<<16|int32(b[patchAt+3])<<24)
}
