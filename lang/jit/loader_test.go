package jit

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

// TestBuildLoaderTrampolineShape checks the structural properties Manager
// relies on: the trampoline starts with the standard frame prologue, ends
// with a plain ret, and contains exactly one indirect call (to the callee
// address carried in R9) — everything in between is self-contained argument
// shuffling with no outstanding patch left unresolved (buildLoaderTrampoline
// returns a single, already-fully-patched byte slice).
func TestBuildLoaderTrampolineShape(t *testing.T) {
	code := buildLoaderTrampoline()
	require := assert.New(t)
	require.NotEmpty(code)
	require.Equal(byte(0x55), code[0], "expected push rbp as the first byte")
	require.Equal(byte(0xC3), code[len(code)-1], "expected ret as the last byte")

	callCount := 0
	for i := 0; i < len(code)-1; i++ {
		if code[i] == 0xFF && (code[i+1]&0x38) == 0x10 {
			callCount++
		}
	}
	require.Equal(1, callCount, "expected exactly one indirect call instruction")
}
