package ffi

import (
	"fmt"
	"runtime"
	"sync"
	"unsafe"

	"github.com/ebitengine/purego"

	"github.com/Hell0XD/spsl/lang/image"
	"github.com/Hell0XD/spsl/lang/types"
)

// marshalOut converts a spsl Value to the uintptr spsl passes across the FFI
// boundary: Int zero-extends its 32-bit value to 64 bits, String passes a
// pointer to its nul-terminated bytes (spec.md §4.3). The returned keepAlive
// value must be kept alive (runtime.KeepAlive) until the call returns.
func marshalOut(v types.Value) (arg uintptr, keepAlive any, err error) {
	switch x := v.(type) {
	case types.Int:
		return uintptr(uint32(int32(x))), nil, nil
	case types.String:
		buf := make([]byte, len(x)+1)
		copy(buf, x)
		return uintptr(unsafe.Pointer(&buf[0])), buf, nil
	default:
		return 0, nil, fmt.Errorf("%w: %s", ErrNotMarshalable, v.Type())
	}
}

var (
	libcOnce sync.Once
	libcFree uintptr
	libcErr  error
)

func freeSymbol() (uintptr, error) {
	libcOnce.Do(func() {
		h, err := purego.Dlopen(libcPath, purego.RTLD_NOW|purego.RTLD_GLOBAL)
		if err != nil {
			libcErr = fmt.Errorf("spsl: load libc for FFI string returns: %w", err)
			return
		}
		sym, err := purego.Dlsym(h, "free")
		if err != nil {
			libcErr = fmt.Errorf("spsl: resolve libc free: %w", err)
			return
		}
		libcFree = sym
	})
	return libcFree, libcErr
}

// CallDynamic invokes the symbol bound under sig.Name through the table,
// marshaling args in and the return value out per spec.md §4.9. Only arity 0,
// 1 and 2 are implemented; this mirrors spec.md's "fixed arity table".
func (t *Table) CallDynamic(sig image.Signature, args []types.Value) (types.Value, error) {
	if len(args) != len(sig.ArgTypes) {
		return nil, fmt.Errorf("spsl: FFI call to %s: want %d args, got %d", sig.Name, len(sig.ArgTypes), len(args))
	}
	if len(args) > 2 {
		return nil, fmt.Errorf("%w: %s takes %d arguments", ErrUnsupportedArity, sig.Name, len(args))
	}

	fn, ok := t.Get(sig.Name)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUndefinedSymbol, sig.Name)
	}

	cargs := make([]uintptr, len(args))
	keep := make([]any, len(args))
	for i, a := range args {
		v, ka, err := marshalOut(a)
		if err != nil {
			return nil, fmt.Errorf("spsl: FFI call to %s: %w", sig.Name, err)
		}
		cargs[i] = v
		keep[i] = ka
	}

	r1, _, errno := purego.SyscallN(fn, cargs...)
	runtime.KeepAlive(keep)
	if errno != 0 {
		return nil, fmt.Errorf("spsl: FFI call to %s: errno %d", sig.Name, errno)
	}

	switch sig.ReturnType {
	case image.ArgInt:
		return types.Int(int32(uint32(r1))), nil
	case image.ArgStr:
		s, err := copyAndFreeCString(r1)
		if err != nil {
			return nil, fmt.Errorf("spsl: FFI call to %s: %w", sig.Name, err)
		}
		return types.String(s), nil
	default:
		return nil, fmt.Errorf("spsl: FFI call to %s: unknown return type %d", sig.Name, sig.ReturnType)
	}
}

// copyAndFreeCString copies the nul-terminated C string at ptr into owned Go
// memory, then releases ptr with the C allocator's free (spec.md §4.9,
// §5's FFI resource policy). Callees that return static (non-heap) strings
// will break this, as documented by the spec: that is the library's
// responsibility, not ours.
func copyAndFreeCString(ptr uintptr) ([]byte, error) {
	if ptr == 0 {
		return nil, nil
	}
	var out []byte
	for i := uintptr(0); ; i++ {
		b := *(*byte)(unsafe.Pointer(ptr + i))
		if b == 0 {
			break
		}
		out = append(out, b)
	}

	free, err := freeSymbol()
	if err != nil {
		return nil, err
	}
	_, _, _ = purego.SyscallN(free, ptr)
	return out, nil
}
