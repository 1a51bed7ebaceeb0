package image

import (
	"encoding/binary"
	"fmt"

	"github.com/Hell0XD/spsl/lang/types"
)

// Serialize encodes p back to the binary image format. It is the inverse of
// Deserialize and is used by round-trip tests (spec.md §8:
// deserialize(serialize(p)) == p).
func Serialize(p *Program) ([]byte, error) {
	var buf []byte
	buf = append(buf, Magic...)
	buf = appendU32(buf, p.EntryIndex)

	buf = appendU32(buf, uint32(len(p.Constants)))
	for _, c := range p.Constants {
		switch v := c.(type) {
		case types.Int:
			buf = append(buf, 0)
			buf = appendU32(buf, uint32(int32(v)))
		case types.String:
			buf = append(buf, 1)
			buf = append(buf, []byte(v)...)
			buf = append(buf, 0)
		default:
			return nil, fmt.Errorf("spsl: constant of kind %s cannot be serialized", c.Type())
		}
	}

	buf = appendU32(buf, uint32(len(p.Functions)))
	for _, fn := range p.Functions {
		buf = append(buf, fn.ArgCount, fn.LocalCount)
		buf = appendU32(buf, uint32(len(fn.Code)))
		buf = append(buf, fn.Code...)
	}

	buf = appendU32(buf, uint32(len(p.Signatures)))
	for _, sig := range p.Signatures {
		buf = append(buf, []byte(sig.Name)...)
		buf = append(buf, 0)
		buf = append(buf, uint8(len(sig.ArgTypes)))
		for _, t := range sig.ArgTypes {
			buf = append(buf, uint8(t))
		}
		buf = append(buf, uint8(sig.ReturnType))
	}

	buf = appendU32(buf, uint32(len(p.Groups)))
	for _, g := range p.Groups {
		buf = appendU32(buf, uint32(len(g)))
		for _, ref := range g {
			buf = appendU32(buf, ref)
		}
	}

	return buf, nil
}

func appendU32(buf []byte, v uint32) []byte {
	var tmp [4]byte
	binary.LittleEndian.PutUint32(tmp[:], v)
	return append(buf, tmp[:]...)
}
