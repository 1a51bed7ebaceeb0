package machine

import (
	"fmt"

	"github.com/Hell0XD/spsl/lang/bytecode"
	"github.com/Hell0XD/spsl/lang/image"
	"github.com/Hell0XD/spsl/lang/jit"
	"github.com/Hell0XD/spsl/lang/types"
)

// run is the fetch-decode-execute loop for one Frame (spec.md §4.9). A
// CallRet rebinds fr in place and resets ip to 0 instead of calling run
// again, so tail recursion never grows the Go call stack.
func (th *Thread) run(fr *Frame) (types.Value, error) {
	ip := 0
	for ip < len(fr.instrs) {
		in := fr.instrs[ip]

		switch in.Op {
		case bytecode.Nop:
			ip++

		case bytecode.LocalGet:
			if err := fr.push(fr.locals[in.A]); err != nil {
				return nil, err
			}
			ip++

		case bytecode.LocalSet:
			v, err := fr.pop()
			if err != nil {
				return nil, err
			}
			old := fr.locals[in.A]
			fr.locals[in.A] = v
			types.Release(old)
			ip++

		case bytecode.ConstantGet:
			if int(in.A) >= len(th.prog.Constants) {
				return nil, fmt.Errorf("spsl: constant index %d out of range", in.A)
			}
			if err := fr.push(th.prog.Constants[in.A]); err != nil {
				return nil, err
			}
			ip++

		case bytecode.ConstantNil:
			if err := fr.push(types.Nil); err != nil {
				return nil, err
			}
			ip++

		case bytecode.Add, bytecode.Sub, bytecode.Mul, bytecode.Div:
			y, err := fr.pop()
			if err != nil {
				return nil, err
			}
			x, err := fr.pop()
			if err != nil {
				return nil, err
			}
			z, err := binOp(in.Op, x, y)
			if err != nil {
				return nil, err
			}
			types.Release(x)
			types.Release(y)
			if err := fr.push(z); err != nil {
				return nil, err
			}
			ip++

		case bytecode.Eq, bytecode.Lt, bytecode.Gt, bytecode.Lte, bytecode.Gte:
			y, err := fr.pop()
			if err != nil {
				return nil, err
			}
			x, err := fr.pop()
			if err != nil {
				return nil, err
			}
			ok, err := compare(in.Op, x, y)
			if err != nil {
				return nil, err
			}
			types.Release(x)
			types.Release(y)
			if err := fr.push(boolInt(ok)); err != nil {
				return nil, err
			}
			ip++

		case bytecode.If, bytecode.IfEq, bytecode.IfLt, bytecode.IfGt, bytecode.IfLte, bytecode.IfGte:
			ok, err := evalCond(fr, in.Op)
			if err != nil {
				return nil, err
			}
			if ok {
				ip++
				continue
			}
			target := findElseOrEnd(fr.instrs, ip+1)
			ip = target + 1

		case bytecode.Else:
			target := findEnd(fr.instrs, ip+1)
			ip = target + 1

		case bytecode.End:
			ip++

		case bytecode.Call:
			result, err := th.dispatchCall(in.B, fr)
			if err != nil {
				return nil, err
			}
			if err := fr.push(result); err != nil {
				return nil, err
			}
			ip++

		case bytecode.CallRet:
			if err := th.tailCall(in.B, fr); err != nil {
				return nil, err
			}
			ip = 0
			continue

		case bytecode.Ret:
			return fr.pop()

		case bytecode.Remove:
			if _, err := fr.discard(); err != nil {
				return nil, err
			}
			ip++

		case bytecode.Atom:
			if err := fr.push(types.Atom(in.B)); err != nil {
				return nil, err
			}
			ip++

		case bytecode.Print:
			v, err := fr.discard()
			if err != nil {
				return nil, err
			}
			fmt.Fprintln(th.stdout, v.String())
			if err := fr.push(types.Nil); err != nil {
				return nil, err
			}
			ip++

		case bytecode.NewPair:
			right, err := fr.pop()
			if err != nil {
				return nil, err
			}
			left, err := fr.pop()
			if err != nil {
				return nil, err
			}
			pair := types.NewPair(left, right)
			types.Release(left)
			types.Release(right)
			if err := fr.push(pair); err != nil {
				return nil, err
			}
			ip++

		case bytecode.NewArray:
			n := int(in.B)
			elems := make([]types.Value, n)
			for i := n - 1; i >= 0; i-- {
				v, err := fr.pop()
				if err != nil {
					return nil, err
				}
				elems[i] = v
			}
			arr := types.NewArray(elems)
			for _, e := range elems {
				types.Release(e)
			}
			if err := fr.push(arr); err != nil {
				return nil, err
			}
			ip++

		case bytecode.NewArrayDyn:
			sizeV, err := fr.discard()
			if err != nil {
				return nil, err
			}
			size, ok := sizeV.(types.Int)
			if !ok {
				return nil, typeErr("new_array_dyn", sizeV)
			}
			if err := fr.push(types.NewArrayDyn(int(size))); err != nil {
				return nil, err
			}
			ip++

		case bytecode.NewLambda:
			captureCount := int(in.A)
			elems := make([]types.Value, captureCount)
			for i := captureCount - 1; i >= 0; i-- {
				v, err := fr.pop()
				if err != nil {
					return nil, err
				}
				elems[i] = v
			}
			captures := types.NewArray(elems)
			for _, e := range elems {
				types.Release(e)
			}
			lam := types.NewLambda(in.B, captures)
			types.Release(captures)
			if err := fr.push(lam); err != nil {
				return nil, err
			}
			ip++

		case bytecode.CallLambda:
			result, err := th.callLambda(fr)
			if err != nil {
				return nil, err
			}
			if err := fr.push(result); err != nil {
				return nil, err
			}
			ip++

		case bytecode.PairLeft:
			v, err := fr.pop()
			if err != nil {
				return nil, err
			}
			result := types.Value(types.Nil)
			if p, ok := v.(*types.Pair); ok {
				result = p.Left()
			}
			// result's own retain must happen before v (its former owner) is
			// released, else a refcount-1 pair releasing itself could drop
			// result's count through zero before it gains its new owner (the
			// data stack).
			types.Retain(result)
			types.Release(v)
			if err := fr.push(result); err != nil {
				return nil, err
			}
			ip++

		case bytecode.PairRight:
			v, err := fr.pop()
			if err != nil {
				return nil, err
			}
			result := types.Value(types.Nil)
			if p, ok := v.(*types.Pair); ok {
				result = p.Right()
			}
			types.Retain(result)
			types.Release(v)
			if err := fr.push(result); err != nil {
				return nil, err
			}
			ip++

		case bytecode.ArrayGet:
			idxV, err := fr.pop()
			if err != nil {
				return nil, err
			}
			arrV, err := fr.pop()
			if err != nil {
				return nil, err
			}
			v, err := arrayGet(arrV, idxV)
			if err != nil {
				return nil, err
			}
			types.Retain(v)
			types.Release(arrV)
			types.Release(idxV)
			if err := fr.push(v); err != nil {
				return nil, err
			}
			ip++

		case bytecode.LocalArrayGet:
			// Both the local slot and the array index are immediates encoded
			// in the instruction (spec.md §4.9's lambda capture access
			// LocalArrayGet(0, i)), unlike ArrayGet which indexes an array
			// popped off the stack with an index also popped off the stack.
			arr, ok := fr.locals[in.A].(*types.Array)
			if !ok {
				return nil, typeErr("local_array_get", fr.locals[in.A])
			}
			if err := fr.push(arr.Get(int(in.B))); err != nil {
				return nil, err
			}
			ip++

		case bytecode.ArraySet:
			v, err := fr.pop()
			if err != nil {
				return nil, err
			}
			idxV, err := fr.pop()
			if err != nil {
				return nil, err
			}
			arrV, err := fr.pop()
			if err != nil {
				return nil, err
			}
			arr, ok := arrV.(*types.Array)
			if !ok {
				return nil, typeErr("array_set", arrV)
			}
			idx, ok := idxV.(types.Int)
			if !ok {
				return nil, typeErr("array_set index", idxV)
			}
			if int(idx) < 0 || int(idx) >= arr.Len() {
				return nil, fmt.Errorf("spsl: array_set index %d out of range (len %d)", idx, arr.Len())
			}
			// arr.Set retains v itself (and releases whatever it replaces), so
			// the stack's own hold on v is released once Set has taken over.
			arr.Set(int(idx), v)
			types.Release(v)
			types.Release(idxV)
			if err := fr.push(arr); err != nil {
				return nil, err
			}
			ip++

		case bytecode.ArrayLen:
			v, err := fr.discard()
			if err != nil {
				return nil, err
			}
			arr, ok := v.(*types.Array)
			if !ok {
				return nil, typeErr("array_len", v)
			}
			if err := fr.push(types.Int(arr.Len())); err != nil {
				return nil, err
			}
			ip++

		case bytecode.StringLen:
			v, err := fr.discard()
			if err != nil {
				return nil, err
			}
			s, ok := v.(types.String)
			if !ok {
				return nil, typeErr("string_len", v)
			}
			if err := fr.push(types.Int(len(s))); err != nil {
				return nil, err
			}
			ip++

		case bytecode.Import:
			if err := th.doImport(in.B, fr); err != nil {
				return nil, err
			}
			ip++

		case bytecode.CallDynamic:
			result, err := th.callDynamic(in.B, fr)
			if err != nil {
				return nil, err
			}
			if err := fr.push(result); err != nil {
				return nil, err
			}
			ip++

		default:
			return nil, fmt.Errorf("%w: %s", bytecode.ErrUnknownOpcode, in.Op)
		}
	}
	return nil, fmt.Errorf("spsl: function %d fell off the end without ret", fr.funcIndex)
}

func evalCond(fr *Frame, op bytecode.Opcode) (bool, error) {
	if op == bytecode.If {
		v, err := fr.discard()
		if err != nil {
			return false, err
		}
		i, ok := v.(types.Int)
		if !ok {
			return false, typeErr("if", v)
		}
		return int32(i) == 1, nil
	}
	y, err := fr.pop()
	if err != nil {
		return false, err
	}
	x, err := fr.pop()
	if err != nil {
		return false, err
	}
	defer func() {
		types.Release(x)
		types.Release(y)
	}()
	switch op {
	case bytecode.IfEq:
		return types.Equal(x, y), nil
	case bytecode.IfLt:
		return types.Less(x, y)
	case bytecode.IfGt:
		return types.Less(y, x)
	case bytecode.IfLte:
		lt, err := types.Less(y, x)
		return !lt, err
	case bytecode.IfGte:
		lt, err := types.Less(x, y)
		return !lt, err
	default:
		return false, fmt.Errorf("spsl: not a conditional opcode: %s", op)
	}
}

func compare(op bytecode.Opcode, x, y types.Value) (bool, error) {
	switch op {
	case bytecode.Eq:
		return types.Equal(x, y), nil
	case bytecode.Lt:
		return types.Less(x, y)
	case bytecode.Gt:
		return types.Less(y, x)
	case bytecode.Lte:
		lt, err := types.Less(y, x)
		return !lt, err
	case bytecode.Gte:
		lt, err := types.Less(x, y)
		return !lt, err
	default:
		return false, fmt.Errorf("spsl: not a comparison opcode: %s", op)
	}
}

func boolInt(b bool) types.Value {
	if b {
		return types.Int(1)
	}
	return types.Int(0)
}

func binOp(op bytecode.Opcode, x, y types.Value) (types.Value, error) {
	switch op {
	case bytecode.Add:
		return types.Add(x, y)
	case bytecode.Sub:
		return types.Sub(x, y)
	case bytecode.Mul:
		return types.Mul(x, y)
	case bytecode.Div:
		return types.Div(x, y)
	default:
		return nil, fmt.Errorf("spsl: not an arithmetic opcode: %s", op)
	}
}

func typeErr(op string, v types.Value) error {
	return &types.TypeError{Op: op, Operand: v.Type()}
}

func arrayGet(arrV, idxV types.Value) (types.Value, error) {
	arr, ok := arrV.(*types.Array)
	if !ok {
		return nil, typeErr("array_get", arrV)
	}
	idx, ok := idxV.(types.Int)
	if !ok {
		return nil, typeErr("array_get index", idxV)
	}
	return arr.Get(int(idx)), nil
}

// dispatchCall implements spec.md §4.9's three-step Call(i): a native-entry
// fast path, a hotness-triggered compile kicked off after an interpreted
// call returns, and the interpreted call itself.
func (th *Thread) dispatchCall(funcIndex uint32, fr *Frame) (types.Value, error) {
	if int(funcIndex) >= len(th.prog.Functions) {
		return nil, fmt.Errorf("%w: %d", ErrUnknownFunction, funcIndex)
	}
	fn := th.prog.Functions[funcIndex]
	argc := int(fn.ArgCount)
	args, err := popArgs(fr, argc)
	if err != nil {
		return nil, err
	}

	if th.jitMgr != nil {
		if entry, ok := th.jitMgr.Lookup(funcIndex); ok {
			return th.invokeNative(entry, args)
		}
	}

	result, err := th.call(funcIndex, args)
	if err != nil {
		return nil, err
	}

	if th.jitMgr != nil {
		if shape, ok := shapeOf(args, result); ok {
			becameHot, hotShape := th.jitMgr.RecordCall(funcIndex, shape)
			if becameHot {
				if cerr := th.jitMgr.Compile(th.prog, funcIndex, hotShape); cerr != nil {
					th.lastJITFailure = cerr
				}
			}
		}
	}
	return result, nil
}

// tailCall implements CallRet(i): reuse fr's locals vector and reset its
// program counter instead of recursing (spec.md §4.9, invariant 3).
func (th *Thread) tailCall(funcIndex uint32, fr *Frame) error {
	fn, instrs, err := th.decode(funcIndex)
	if err != nil {
		return err
	}
	args, err := popArgs(fr, int(fn.ArgCount))
	if err != nil {
		return err
	}
	// Anything still on the old frame's data stack below the call's own
	// arguments is being thrown away by the fr.sp reset below, same as the
	// old locals vector is about to be overwritten in place.
	for i := 0; i < fr.sp; i++ {
		types.Release(fr.stack[i])
		fr.stack[i] = nil
	}
	for _, old := range fr.locals {
		types.Release(old)
	}
	nlocals := fn.NumLocals()
	var locals []types.Value
	if cap(fr.locals) >= nlocals {
		locals = fr.locals[:nlocals]
	} else {
		locals = make([]types.Value, nlocals)
	}
	copy(locals, args)
	for i := len(args); i < nlocals; i++ {
		locals[i] = types.Nil
	}
	fr.locals = locals
	fr.instrs = instrs
	fr.fn = fn
	fr.funcIndex = funcIndex
	fr.sp = 0
	return nil
}

func popArgs(fr *Frame, argc int) ([]types.Value, error) {
	if fr.sp < argc {
		return nil, ErrStackUnderflow
	}
	args := make([]types.Value, argc)
	for i := argc - 1; i >= 0; i-- {
		v, err := fr.pop()
		if err != nil {
			return nil, err
		}
		args[i] = v
	}
	return args, nil
}

func (th *Thread) callLambda(fr *Frame) (types.Value, error) {
	callable, err := fr.pop()
	if err != nil {
		return nil, err
	}
	lam, ok := callable.(*types.Lambda)
	if !ok {
		return nil, typeErr("call_lambda", callable)
	}
	if int(lam.FuncIndex) >= len(th.prog.Functions) {
		return nil, fmt.Errorf("%w: %d", ErrUnknownFunction, lam.FuncIndex)
	}
	fn := th.prog.Functions[lam.FuncIndex]
	argc := int(fn.ArgCount) - 1
	if argc < 0 {
		argc = 0
	}
	args, err := popArgs(fr, argc)
	if err != nil {
		return nil, err
	}
	// Captures gains a second owner (this call's locals[0]) before callable
	// (the Lambda holding the first owner) is released below.
	types.Retain(lam.Captures)
	full := make([]types.Value, 0, argc+1)
	full = append(full, lam.Captures)
	full = append(full, args...)
	types.Release(callable)
	return th.call(lam.FuncIndex, full)
}

func (th *Thread) doImport(groupIndex uint32, fr *Frame) error {
	if int(groupIndex) >= len(th.prog.Groups) {
		return fmt.Errorf("%w: signature group %d", ErrUnknownFunction, groupIndex)
	}
	pathV, err := fr.pop()
	if err != nil {
		return err
	}
	path, ok := pathV.(types.String)
	if !ok {
		return typeErr("import", pathV)
	}
	group := th.prog.Groups[groupIndex]
	names := make([]string, len(group))
	for i, sigIdx := range group {
		if int(sigIdx) >= len(th.prog.Signatures) {
			return fmt.Errorf("spsl: signature index %d out of range", sigIdx)
		}
		names[i] = th.prog.Signatures[sigIdx].Name
	}
	return th.ffi.Load(string(path), names)
}

func (th *Thread) callDynamic(sigIndex uint32, fr *Frame) (types.Value, error) {
	if int(sigIndex) >= len(th.prog.Signatures) {
		return nil, fmt.Errorf("%w: signature %d", ErrUnknownFunction, sigIndex)
	}
	sig := th.prog.Signatures[sigIndex]
	args, err := popArgs(fr, len(sig.ArgTypes))
	if err != nil {
		return nil, err
	}
	return th.ffi.CallDynamic(sig, args)
}

func (th *Thread) invokeNative(entry jit.NativeEntry, args []types.Value) (types.Value, error) {
	ints := make([]int64, len(args))
	for i, a := range args {
		iv, ok := a.(types.Int)
		if !ok {
			return nil, typeErr("native call argument", a)
		}
		ints[i] = int64(int32(iv))
	}
	r := th.jitMgr.Invoke(entry, ints)
	switch entry.RetType {
	case image.ArgInt:
		return types.Int(int32(r)), nil
	default:
		return nil, fmt.Errorf("spsl: native call returned unsupported type %s", entry.RetType)
	}
}

func shapeOf(args []types.Value, result types.Value) (jit.Shape, bool) {
	argTypes := make([]image.ArgType, len(args))
	for i, a := range args {
		t, ok := argTypeOf(a)
		if !ok {
			return jit.Shape{}, false
		}
		argTypes[i] = t
	}
	ret, ok := argTypeOf(result)
	if !ok {
		return jit.Shape{}, false
	}
	return jit.Shape{Args: argTypes, Ret: ret}, true
}

func argTypeOf(v types.Value) (image.ArgType, bool) {
	switch v.(type) {
	case types.Int:
		return image.ArgInt, true
	case types.String:
		return image.ArgStr, true
	default:
		return 0, false
	}
}
