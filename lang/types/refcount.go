package types

// Owner is implemented by the three shared-ownership value kinds: Pair,
// Array and Lambda. Retain/Release implement simple reference counting; a
// value graph containing a cycle will never reach zero and leaks, which is a
// documented limitation (spec.md §9) rather than a bug to fix here.
type Owner interface {
	Value
	Retain()
	Release()
}

// Retain increments v's reference count if v is a shared-owner kind; other
// kinds are immediate/immutable values and ignore it.
func Retain(v Value) {
	if o, ok := v.(Owner); ok {
		o.Retain()
	}
}

// Release decrements v's reference count if v is a shared-owner kind,
// recursively releasing its children once the count reaches zero.
func Release(v Value) {
	if o, ok := v.(Owner); ok {
		o.Release()
	}
}
