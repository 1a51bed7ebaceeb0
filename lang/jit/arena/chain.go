package arena

import "fmt"

// Chain links successive Arenas so the JIT never has to refuse compilation
// just because one fixed-size arena filled up (SPEC_FULL.md §9). A single
// function's code is always written to one arena — Chain.Append opens a new
// arena first if code would not fit in the current one, it never splits a
// function's code across two arenas.
type Chain struct {
	size    int
	arenas  []*Arena
	current *Arena
}

// NewChain starts a chain whose arenas are each sized arenaSize (or
// DefaultSize if arenaSize <= 0).
func NewChain(arenaSize int) (*Chain, error) {
	if arenaSize <= 0 {
		arenaSize = DefaultSize
	}
	first, err := New(arenaSize)
	if err != nil {
		return nil, err
	}
	return &Chain{size: arenaSize, arenas: []*Arena{first}, current: first}, nil
}

// Append writes code to the chain's current arena, opening a new one first
// if code would not fit in the remaining space. It fails only if code is
// larger than a whole fresh arena.
func (c *Chain) Append(code []byte) (uintptr, error) {
	if len(code) > c.size {
		return 0, fmt.Errorf("%w: function body of %d bytes exceeds arena size %d", ErrExhausted, len(code), c.size)
	}
	if len(code) > c.current.Remaining() {
		next, err := New(c.size)
		if err != nil {
			return 0, err
		}
		c.arenas = append(c.arenas, next)
		c.current = next
	}
	return c.current.Append(code)
}

// WriteAt finds the arena owning addr and patches bytes already written
// there (see Arena.WriteAt).
func (c *Chain) WriteAt(addr uintptr, data []byte) error {
	for _, a := range c.arenas {
		if addr >= a.Base() && addr < a.Base()+uintptr(a.Cap()) {
			return a.WriteAt(addr, data)
		}
	}
	return fmt.Errorf("%w: address not owned by this chain", ErrExhausted)
}

// Release unmaps every arena in the chain.
func (c *Chain) Release() error {
	var firstErr error
	for _, a := range c.arenas {
		if err := a.Release(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
