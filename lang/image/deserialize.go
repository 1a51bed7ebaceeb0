package image

import (
	"encoding/binary"
	"fmt"

	"github.com/Hell0XD/spsl/lang/bytecode"
	"github.com/Hell0XD/spsl/lang/types"
)

// Deserialize parses a bytecode image per spec.md §6.1 (little-endian
// throughout). It validates structural well-formedness (magic, declared
// lengths, known tags, each function's bytecode) but does not validate
// cross-references such as constant/function indices used by opcodes — those
// are checked lazily by the interpreter/JIT at execution time.
func Deserialize(b []byte) (*Program, error) {
	r := &reader{buf: b}

	magic, err := r.bytes(4)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrTruncated, err)
	}
	if string(magic) != Magic {
		return nil, fmt.Errorf("%w: got %q", ErrBadMagic, magic)
	}

	entry, err := r.u32()
	if err != nil {
		return nil, fmt.Errorf("%w: entry index: %w", ErrTruncated, err)
	}

	p := &Program{EntryIndex: entry}

	if p.Constants, err = r.constants(); err != nil {
		return nil, err
	}
	if p.Functions, err = r.functions(); err != nil {
		return nil, err
	}
	if p.Signatures, err = r.signatures(); err != nil {
		return nil, err
	}
	if p.Groups, err = r.groups(); err != nil {
		return nil, err
	}
	if r.off != len(r.buf) {
		return nil, fmt.Errorf("%w: %d trailing bytes", ErrTruncated, len(r.buf)-r.off)
	}
	return p, nil
}

type reader struct {
	buf []byte
	off int
}

func (r *reader) u8() (uint8, error) {
	if r.off+1 > len(r.buf) {
		return 0, ErrTruncated
	}
	v := r.buf[r.off]
	r.off++
	return v, nil
}

func (r *reader) u32() (uint32, error) {
	if r.off+4 > len(r.buf) {
		return 0, ErrTruncated
	}
	v := binary.LittleEndian.Uint32(r.buf[r.off:])
	r.off += 4
	return v, nil
}

func (r *reader) bytes(n int) ([]byte, error) {
	if r.off+n > len(r.buf) {
		return nil, ErrTruncated
	}
	v := r.buf[r.off : r.off+n]
	r.off += n
	return v, nil
}

// cstring reads a nul-terminated byte string, returning its contents without
// the trailing nul.
func (r *reader) cstring() ([]byte, error) {
	start := r.off
	for r.off < len(r.buf) {
		if r.buf[r.off] == 0 {
			s := r.buf[start:r.off]
			r.off++
			return s, nil
		}
		r.off++
	}
	return nil, ErrTruncated
}

func (r *reader) constants() ([]types.Value, error) {
	n, err := r.u32()
	if err != nil {
		return nil, fmt.Errorf("%w: constant count: %w", ErrTruncated, err)
	}
	out := make([]types.Value, 0, n)
	for i := uint32(0); i < n; i++ {
		tag, err := r.u8()
		if err != nil {
			return nil, fmt.Errorf("%w: constant %d tag: %w", ErrTruncated, i, err)
		}
		switch tag {
		case 0:
			v, err := r.u32()
			if err != nil {
				return nil, fmt.Errorf("%w: int constant %d: %w", ErrTruncated, i, err)
			}
			out = append(out, types.Int(int32(v)))
		case 1:
			s, err := r.cstring()
			if err != nil {
				return nil, fmt.Errorf("%w: string constant %d: %w", ErrTruncated, i, err)
			}
			out = append(out, types.String(append([]byte(nil), s...)))
		default:
			return nil, fmt.Errorf("%w: constant %d tag %d", ErrUnknownTag, i, tag)
		}
	}
	return out, nil
}

func (r *reader) functions() ([]Function, error) {
	n, err := r.u32()
	if err != nil {
		return nil, fmt.Errorf("%w: function count: %w", ErrTruncated, err)
	}
	out := make([]Function, 0, n)
	for i := uint32(0); i < n; i++ {
		argc, err := r.u8()
		if err != nil {
			return nil, fmt.Errorf("%w: function %d arg_count: %w", ErrTruncated, i, err)
		}
		localc, err := r.u8()
		if err != nil {
			return nil, fmt.Errorf("%w: function %d local_count: %w", ErrTruncated, i, err)
		}
		codeLen, err := r.u32()
		if err != nil {
			return nil, fmt.Errorf("%w: function %d code_len: %w", ErrTruncated, i, err)
		}
		code, err := r.bytes(int(codeLen))
		if err != nil {
			return nil, fmt.Errorf("%w: function %d code: %w", ErrTruncated, i, err)
		}
		if _, err := bytecode.DecodeAll(code); err != nil {
			return nil, fmt.Errorf("function %d: %w", i, err)
		}
		out = append(out, Function{
			ArgCount:   argc,
			LocalCount: localc,
			Code:       append([]byte(nil), code...),
		})
	}
	return out, nil
}

func (r *reader) signatures() ([]Signature, error) {
	n, err := r.u32()
	if err != nil {
		return nil, fmt.Errorf("%w: signature count: %w", ErrTruncated, err)
	}
	out := make([]Signature, 0, n)
	for i := uint32(0); i < n; i++ {
		name, err := r.cstring()
		if err != nil {
			return nil, fmt.Errorf("%w: signature %d name: %w", ErrTruncated, i, err)
		}
		argc, err := r.u8()
		if err != nil {
			return nil, fmt.Errorf("%w: signature %d argc: %w", ErrTruncated, i, err)
		}
		args := make([]ArgType, argc)
		for j := range args {
			t, err := r.u8()
			if err != nil {
				return nil, fmt.Errorf("%w: signature %d arg %d: %w", ErrTruncated, i, j, err)
			}
			if t != uint8(ArgInt) && t != uint8(ArgStr) {
				return nil, fmt.Errorf("%w: signature %d arg %d type %d", ErrUnknownTag, i, j, t)
			}
			args[j] = ArgType(t)
		}
		ret, err := r.u8()
		if err != nil {
			return nil, fmt.Errorf("%w: signature %d return type: %w", ErrTruncated, i, err)
		}
		if ret != uint8(ArgInt) && ret != uint8(ArgStr) {
			return nil, fmt.Errorf("%w: signature %d return type %d", ErrUnknownTag, i, ret)
		}
		out = append(out, Signature{Name: string(name), ArgTypes: args, ReturnType: ArgType(ret)})
	}
	return out, nil
}

func (r *reader) groups() ([][]uint32, error) {
	n, err := r.u32()
	if err != nil {
		return nil, fmt.Errorf("%w: group count: %w", ErrTruncated, err)
	}
	out := make([][]uint32, 0, n)
	for i := uint32(0); i < n; i++ {
		cnt, err := r.u32()
		if err != nil {
			return nil, fmt.Errorf("%w: group %d count: %w", ErrTruncated, i, err)
		}
		refs := make([]uint32, cnt)
		for j := range refs {
			v, err := r.u32()
			if err != nil {
				return nil, fmt.Errorf("%w: group %d ref %d: %w", ErrTruncated, i, j, err)
			}
			refs[j] = v
		}
		out = append(out, refs)
	}
	return out, nil
}
