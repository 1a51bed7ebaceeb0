package jit

import "errors"

// ErrUnsupportedBytecode is returned by the translator when a function's
// body uses a bytecode the initial JIT subset does not lower (spec.md §4.8:
// LocalSet, non-Int constants, Sub/Mul/... and anything not in the lowering
// table). The caller must treat this as non-fatal and leave the function
// interpreted.
var ErrUnsupportedBytecode = errors.New("spsl: jit: unsupported bytecode")

// ErrRegisterExhausted is returned when the free-register pool or the
// extra-local register pool runs out mid-translation.
var ErrRegisterExhausted = errors.New("spsl: jit: register pool exhausted")

// ErrArenaExhausted is returned when the compiled function's code does not
// fit in the executable arena; the arena's own error text is included in the
// message but not wrapped.
var ErrArenaExhausted = errors.New("spsl: jit: arena exhausted")

// ErrUnbalancedControlFlow is returned when a function's If/Else/End tree is
// not balanced at translation time (bytecode decoding checks each
// instruction but not the If/Else/End nesting, so the translator checks it).
var ErrUnbalancedControlFlow = errors.New("spsl: jit: unbalanced control flow")
