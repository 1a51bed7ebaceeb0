// Package image implements the bytecode image format (spec.md §6.1): the
// on-disk container that the (external, out of scope) front-end produces and
// that this package turns into the in-memory Program the VM and JIT consume.
package image

import "github.com/Hell0XD/spsl/lang/types"

// Magic is the 4-byte file header every spsl image begins with.
const Magic = "SPSL"

// ArgType is the primitive shape of one FFI argument or return value.
type ArgType uint8

const (
	ArgInt ArgType = 0
	ArgStr ArgType = 1
)

func (t ArgType) String() string {
	if t == ArgStr {
		return "str"
	}
	return "int"
}

// Function is one compiled function: its declared shape and its bytecode
// (spec.md §3). local_count is the number of locals *beyond* arg_count; the
// VM and JIT both allocate arg_count+local_count slots.
type Function struct {
	ArgCount   uint8
	LocalCount uint8
	Code       []byte
}

// NumLocals returns the total number of local slots (arguments + declared
// locals) this function's frame needs.
func (f Function) NumLocals() int { return int(f.ArgCount) + int(f.LocalCount) }

// Signature describes one FFI-importable symbol (spec.md §3, §4.2).
type Signature struct {
	Name       string
	ArgTypes   []ArgType
	ReturnType ArgType
}

// Program is the fully decoded contents of a bytecode image.
type Program struct {
	EntryIndex uint32
	Constants  []types.Value
	Functions  []Function
	Signatures []Signature
	// Groups[i] holds the indices into Signatures that make up FFI signature
	// group i; an Import opcode refers to one group index.
	Groups [][]uint32
}
