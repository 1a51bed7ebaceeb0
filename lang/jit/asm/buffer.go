package asm

// Buffer is a small scratch accumulator the translator assembles one
// function's native code into before handing it to the arena in a single
// Append call (spec.md §4.6).
type Buffer struct {
	b []byte
}

// Emit appends an already-encoded instruction (the result of one of the
// builder functions above) to the buffer.
func (buf *Buffer) Emit(instr []byte) { buf.b = append(buf.b, instr...) }

// Len returns the number of bytes emitted so far, i.e. the offset the next
// instruction will start at. Translators use this to compute Rel32 operands
// for forward branches once the target offset is known.
func (buf *Buffer) Len() int { return len(buf.b) }

// Bytes returns the accumulated code.
func (buf *Buffer) Bytes() []byte { return buf.b }

// PatchRel32 overwrites the 4-byte little-endian displacement at byte offset
// patchAt (as returned by Len() right before the placeholder's opcode bytes
// were emitted, plus the opcode width) with rel, which the caller computes
// relative to the end of the displacement field.
// Used to backpatch forward jumps whose target was not yet known at emit
// time (spec.md §4.8's If/Else/End forward scan).
func (buf *Buffer) PatchRel32(patchAt int, rel int32) {
	buf.b[patchAt] = byte(rel)
	buf.b[patchAt+1] = byte(rel >> 8)
	buf.b[patchAt+2] = byte(rel >> 16)
	buf.b[patchAt+3] = byte(rel >> 24)
}
