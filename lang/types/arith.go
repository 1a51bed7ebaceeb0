package types

import "fmt"

// TypeError reports an operation attempted on a value of the wrong kind. It
// is always fatal in the VM (spec.md §4.3, §7).
type TypeError struct {
	Op      string
	Operand string
}

func (e *TypeError) Error() string {
	return fmt.Sprintf("type error: %s does not apply to %s", e.Op, e.Operand)
}

func typeErr(op string, v Value) error { return &TypeError{Op: op, Operand: v.Type()} }

// Add, Sub, Mul, Div implement spsl's four arithmetic operators. They are
// defined only on Int x Int; any other combination is a *TypeError.
func Add(x, y Value) (Value, error) { return arith("+", x, y, func(a, b int32) int32 { return a + b }) }
func Sub(x, y Value) (Value, error) { return arith("-", x, y, func(a, b int32) int32 { return a - b }) }
func Mul(x, y Value) (Value, error) { return arith("*", x, y, func(a, b int32) int32 { return a * b }) }

func Div(x, y Value) (Value, error) {
	xi, ok := x.(Int)
	if !ok {
		return nil, typeErr("/", x)
	}
	yi, ok := y.(Int)
	if !ok {
		return nil, typeErr("/", y)
	}
	if yi == 0 {
		return nil, fmt.Errorf("division by zero")
	}
	return Int(int32(xi) / int32(yi)), nil
}

func arith(op string, x, y Value, fn func(a, b int32) int32) (Value, error) {
	xi, ok := x.(Int)
	if !ok {
		return nil, typeErr(op, x)
	}
	yi, ok := y.(Int)
	if !ok {
		return nil, typeErr(op, y)
	}
	return Int(fn(int32(xi), int32(yi))), nil
}

// Equal implements structural equality for Int/Atom/Nil/String, and
// recursive content comparison for Pair/Array. Cross-kind comparisons are
// always false, matching spec.md §4.3.
func Equal(x, y Value) bool {
	switch a := x.(type) {
	case Int:
		b, ok := y.(Int)
		return ok && a == b
	case Atom:
		b, ok := y.(Atom)
		return ok && a == b
	case String:
		b, ok := y.(String)
		return ok && string(a) == string(b)
	case nilValue:
		return IsNil(y)
	case *Pair:
		b, ok := y.(*Pair)
		return ok && Equal(a.left, b.left) && Equal(a.right, b.right)
	case *Array:
		b, ok := y.(*Array)
		if !ok || len(a.elems) != len(b.elems) {
			return false
		}
		for i := range a.elems {
			if !Equal(a.elems[i], b.elems[i]) {
				return false
			}
		}
		return true
	default:
		return x == y
	}
}

// Less implements the ordering used by Lt/Gt/Lte/Gte: pointwise for Int,
// lexicographic for String. Ordering across other kinds, or across mismatched
// kinds, is unspecified by the spec and reported as a TypeError here.
func Less(x, y Value) (bool, error) {
	switch a := x.(type) {
	case Int:
		b, ok := y.(Int)
		if !ok {
			return false, typeErr("<", y)
		}
		return a < b, nil
	case String:
		b, ok := y.(String)
		if !ok {
			return false, typeErr("<", y)
		}
		return string(a) < string(b), nil
	default:
		return false, typeErr("<", x)
	}
}
