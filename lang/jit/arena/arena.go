// Package arena implements the JIT's executable-memory arena (spec.md §4.5):
// a page-rounded RWX mapping that the translator appends native code to
// sequentially. Grounded on the mmap-a-region idiom of
// SnellerInc/sneller's vm/malloc_linux.go, adapted from a read-write VM
// memory region to a read-write-execute code region.
package arena

import (
	"errors"
	"fmt"
	"unsafe"

	"golang.org/x/sys/unix"
)

// DefaultSize is the arena size used when the JIT does not request a
// specific length (spec.md §4.5: "default 1 KiB ≈ 0x400").
const DefaultSize = 0x400

// ErrExhausted is returned by Append when the requested bytes would not fit
// in the arena's remaining space. The caller (lang/jit) is expected to open
// a new Arena and link it in (SPEC_FULL.md §9's arena-growth resolution)
// rather than treat this as fatal.
var ErrExhausted = errors.New("spsl: jit arena exhausted")

// Arena is one RWX mapping. Code is appended sequentially from the base;
// the only rewrite is WriteAt patching bytes already appended. No
// synchronization is required (spec.md §5 — single-threaded, one writer).
type Arena struct {
	mem    []byte
	cursor int
}

// New reserves a RWX region at least minLen bytes long, rounded up to the
// system page size. A zero-length request fails (spec.md §4.5).
func New(minLen int) (*Arena, error) {
	if minLen <= 0 {
		return nil, fmt.Errorf("spsl: jit arena: requested length must be > 0, got %d", minLen)
	}
	pageSize := unix.Getpagesize()
	rounded := ((minLen + pageSize - 1) / pageSize) * pageSize

	mem, err := unix.Mmap(-1, 0, rounded, unix.PROT_READ|unix.PROT_WRITE|unix.PROT_EXEC, unix.MAP_PRIVATE|unix.MAP_ANON)
	if err != nil {
		return nil, fmt.Errorf("spsl: jit arena: mmap %d bytes: %w", rounded, err)
	}
	return &Arena{mem: mem}, nil
}

// Base returns the arena's base address as it will be seen by code jumping
// into it (call/jmp targets are computed relative to this).
func (a *Arena) Base() uintptr { return uintptr(unsafe.Pointer(&a.mem[0])) }

// Len returns how many bytes have been written so far.
func (a *Arena) Len() int { return a.cursor }

// Cap returns the arena's total capacity.
func (a *Arena) Cap() int { return len(a.mem) }

// Remaining returns how many bytes are left before Append would fail.
func (a *Arena) Remaining() int { return len(a.mem) - a.cursor }

// Append writes code at the current cursor and returns the address it was
// written at. It fails with ErrExhausted (non-fatal, per spec.md §4.5/§9) if
// code does not fit in the remaining space.
func (a *Arena) Append(code []byte) (uintptr, error) {
	if len(code) > a.Remaining() {
		return 0, fmt.Errorf("%w: need %d, have %d", ErrExhausted, len(code), a.Remaining())
	}
	addr := a.Base() + uintptr(a.cursor)
	copy(a.mem[a.cursor:], code)
	a.cursor += len(code)
	return addr, nil
}

// WriteAt overwrites already-written bytes at the given previously-returned
// address, used to backpatch a call-site displacement once the caller
// learns the absolute address its own code ended up at. addr must lie
// within bytes already committed by Append.
func (a *Arena) WriteAt(addr uintptr, data []byte) error {
	base := a.Base()
	if addr < base || addr+uintptr(len(data)) > base+uintptr(a.cursor) {
		return fmt.Errorf("spsl: jit arena: WriteAt out of written range")
	}
	off := int(addr - base)
	copy(a.mem[off:], data)
	return nil
}

// Release unmaps the arena. The JIT owns the arena for its own lifetime
// (spec.md §4.5); callers should only call this when tearing down the VM.
func (a *Arena) Release() error {
	if a.mem == nil {
		return nil
	}
	err := unix.Munmap(a.mem)
	a.mem = nil
	return err
}
