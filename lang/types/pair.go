package types

import "fmt"

// Pair is a shared owner of two values (spec.md §3). It is created by
// NewPair and never mutated in place.
type Pair struct {
	left, right Value
	refcount    int32
}

var _ Owner = (*Pair)(nil)

// NewPair returns a new Pair with a reference count of one, retaining left
// and right on its own behalf.
func NewPair(left, right Value) *Pair {
	Retain(left)
	Retain(right)
	return &Pair{left: left, right: right, refcount: 1}
}

func (p *Pair) Type() string   { return "pair" }
func (p *Pair) String() string { return fmt.Sprintf("{%s;%s}", dispOf(p.left), dispOf(p.right)) }

func (p *Pair) Left() Value  { return p.left }
func (p *Pair) Right() Value { return p.right }

func (p *Pair) Retain() { p.refcount++ }

func (p *Pair) Release() {
	p.refcount--
	if p.refcount > 0 {
		return
	}
	Release(p.left)
	Release(p.right)
}

// dispOf renders a nested value for the outer {l;r} display form; exists
// only so pair.go and array.go share the exact same nested-string behavior.
func dispOf(v Value) string {
	if v == nil {
		return "nil"
	}
	return v.String()
}
