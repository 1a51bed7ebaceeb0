// Package types implements the spsl value model: a closed sum of Int, Atom,
// Nil, Pair, Array, String and Lambda, with reference counting for the
// shared-owner kinds (Pair, Array, Lambda). Cycles are not collected, the
// same documented limitation the language as a whole carries.
package types

import "fmt"

// Value is implemented by every spsl runtime value.
type Value interface {
	// Type is the short display name used by error messages ("int", "atom",
	// "nil", "pair", "array", "string", "lambda").
	Type() string
	// String returns the human-readable display form (spec.md §6.4).
	String() string
}

// Int is a 32-bit signed integer value.
type Int int32

func (Int) Type() string     { return "int" }
func (i Int) String() string { return fmt.Sprintf("%d", int32(i)) }

// Atom is an opaque 32-bit unsigned tag, the runtime analogue of an interned
// symbol. Two Atoms are equal iff their tags are equal; spsl assigns no other
// meaning to the value.
type Atom uint32

func (Atom) Type() string     { return "atom" }
func (a Atom) String() string { return fmt.Sprintf("atom(%d)", uint32(a)) }

// nilValue is the sole inhabitant of Nil.
type nilValue struct{}

func (nilValue) Type() string   { return "nil" }
func (nilValue) String() string { return "nil" }

// Nil is the empty/absent value, returned by out-of-range array access and
// non-pair PairLeft/PairRight.
var Nil Value = nilValue{}

// IsNil reports whether v is the Nil value.
func IsNil(v Value) bool {
	_, ok := v.(nilValue)
	return ok
}

// String is a spsl string value: a byte string that is nul-terminated on the
// wire but does not carry the trailing nul in Go memory.
type String []byte

func (String) Type() string     { return "string" }
func (s String) String() string { return string(s) }
