package machine

import "errors"

// ErrStackOverflow is returned when a frame's fixed 256-cell data stack
// would grow past capacity (spec.md §4.9, §5 — "an ungrown arena, overflow
// is undefined"; this implementation turns the undefined case into a fatal
// error instead of silently corrupting memory).
var ErrStackOverflow = errors.New("spsl: data stack overflow")

// ErrStackUnderflow is returned when an opcode pops more values than the
// frame currently holds.
var ErrStackUnderflow = errors.New("spsl: data stack underflow")

// ErrArityMismatch is returned when a call supplies a different argument
// count than the callee's declared arg_count (spec.md §7).
var ErrArityMismatch = errors.New("spsl: arity mismatch")

// ErrUnknownFunction is returned when a Call/CallRet/CallLambda/Import/
// CallDynamic refers to a function, group or signature index outside the
// program's tables.
var ErrUnknownFunction = errors.New("spsl: unknown function index")
