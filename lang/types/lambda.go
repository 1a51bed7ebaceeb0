package types

// Lambda is a shared owner of a function index and its captured values
// (spec.md §3, §4.9). The captures are exposed to the callee as a synthetic
// Array addressed via LocalArrayGet(0, i).
type Lambda struct {
	FuncIndex uint32
	Captures  *Array
	refcount  int32
}

var _ Owner = (*Lambda)(nil)

// NewLambda returns a new Lambda with a reference count of one, retaining
// captures on its own behalf.
func NewLambda(funcIndex uint32, captures *Array) *Lambda {
	Retain(captures)
	return &Lambda{FuncIndex: funcIndex, Captures: captures, refcount: 1}
}

func (*Lambda) Type() string     { return "lambda" }
func (*Lambda) String() string   { return "lambda" }
func (l *Lambda) Retain()        { l.refcount++ }
func (l *Lambda) Release() {
	l.refcount--
	if l.refcount > 0 {
		return
	}
	Release(l.Captures)
}
