package ffi

import "errors"

var (
	// ErrUndefinedSymbol is returned when a signature's symbol cannot be
	// resolved against a just-loaded library (spec.md §7).
	ErrUndefinedSymbol = errors.New("spsl: undefined FFI symbol")
	// ErrUnsupportedArity is returned by CallDynamic for a signature with more
	// than two arguments; the fixed dispatch table only covers 0, 1 and 2
	// (spec.md §4.9).
	ErrUnsupportedArity = errors.New("spsl: FFI call arity not supported")
	// ErrNotMarshalable is returned when a value other than Int or String is
	// passed as an FFI argument (spec.md §4.3).
	ErrNotMarshalable = errors.New("spsl: value not marshalable across FFI")
)
