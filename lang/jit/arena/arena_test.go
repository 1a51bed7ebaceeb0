package arena_test

import (
	"os"
	"testing"

	"github.com/Hell0XD/spsl/lang/jit/arena"
	"github.com/stretchr/testify/require"
)

func TestZeroLengthFails(t *testing.T) {
	_, err := arena.New(0)
	require.Error(t, err)
}

func TestAppendRoundTrip(t *testing.T) {
	a, err := arena.New(64)
	require.NoError(t, err)
	defer a.Release()

	code := []byte{0xC3} // ret
	addr, err := a.Append(code)
	require.NoError(t, err)
	require.Equal(t, a.Base(), addr)
	require.Equal(t, 1, a.Len())
}

func TestAppendExhausted(t *testing.T) {
	a, err := arena.New(1)
	require.NoError(t, err)
	defer a.Release()

	big := make([]byte, a.Cap()+1)
	_, err = a.Append(big)
	require.ErrorIs(t, err, arena.ErrExhausted)
}

func TestChainOpensNewArena(t *testing.T) {
	page := os.Getpagesize()
	c, err := arena.NewChain(page)
	require.NoError(t, err)
	defer c.Release()

	_, err = c.Append(make([]byte, page-8))
	require.NoError(t, err)
	// 16 bytes do not fit in the 8 left in the first (one-page) arena, so
	// the chain opens a second arena for them
	_, err = c.Append(make([]byte, 16))
	require.NoError(t, err)
}
