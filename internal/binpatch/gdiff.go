package binpatch

import (
	"encoding/binary"
	"fmt"
)

const (
	gdiffMagic   = 0xD1FFD1FF
	gdiffVersion = 4
)

// gdiff opcodes
const (
	opEOF        = 0
	opDataMax    = 246
	opDataU16    = 247
	opDataI32    = 248
	opCopyU16U8  = 249
	opCopyU16U16 = 250
	opCopyU16I32 = 251
	opCopyI32U8  = 252
	opCopyI32U16 = 253
	opCopyI32I32 = 254
)

type cursor struct {
	b   []byte
	off int
}

func (c *cursor) take(n int) ([]byte, error) {
	if n < 0 || c.off+n > len(c.b) {
		return nil, fmt.Errorf("gdiff truncated at offset %d", c.off)
	}
	v := c.b[c.off : c.off+n]
	c.off += n
	return v, nil
}

func (c *cursor) uint(n int) (uint64, error) {
	b, err := c.take(n)
	if err != nil {
		return 0, err
	}
	var v uint64
	for _, x := range b {
		v = v<<8 | uint64(x)
	}
	return v, nil
}

func (c *cursor) sint(n int) (int64, error) {
	v, err := c.uint(n)
	if err != nil {
		return 0, err
	}
	switch n {
	case 4:
		return int64(int32(uint32(v))), nil
	case 8:
		return int64(v), nil
	}
	return int64(v), nil
}

// ApplyGDIFF applies a GDIFF version 4 delta to source.
func ApplyGDIFF(source, delta []byte) ([]byte, error) {
	c := &cursor{b: delta}
	hdr, err := c.take(5)
	if err != nil {
		return nil, err
	}
	if binary.BigEndian.Uint32(hdr) != gdiffMagic {
		return nil, fmt.Errorf("gdiff: bad magic %#x", binary.BigEndian.Uint32(hdr))
	}
	if hdr[4] != gdiffVersion {
		return nil, fmt.Errorf("gdiff: unsupported version %d", hdr[4])
	}
	out := make([]byte, 0, len(source))
	for {
		opb, err := c.take(1)
		if err != nil {
			return nil, fmt.Errorf("gdiff: missing EOF: %w", err)
		}
		op := int(opb[0])
		if op == opEOF {
			return out, nil
		}

		if op <= opDataI32 {
			n := int64(op)
			switch op {
			case opDataU16:
				v, err := c.sint(2)
				if err != nil {
					return nil, err
				}
				n = v
			case opDataI32:
				v, err := c.sint(4)
				if err != nil {
					return nil, err
				}
				n = v
			}
			data, err := c.take(int(n))
			if err != nil {
				return nil, err
			}
			out = append(out, data...)
			continue
		}

		offWidth, lenWidth := copyWidths(op)
		off, err := c.sint(offWidth)
		if err != nil {
			return nil, err
		}
		length, err := c.sint(lenWidth)
		if err != nil {
			return nil, err
		}
		if off < 0 || length < 0 || off > int64(len(source)) || length > int64(len(source))-off {
			return nil, fmt.Errorf("gdiff: copy [%d,+%d) outside source of %d bytes", off, length, len(source))
		}
		out = append(out, source[off:off+length]...)
	}
}

func copyWidths(op int) (offset, length int) {
	switch op {
	case opCopyU16U8:
		return 2, 1
	case opCopyU16U16:
		return 2, 2
	case opCopyU16I32:
		return 2, 4
	case opCopyI32U8:
		return 4, 1
	case opCopyI32U16:
		return 4, 2
	case opCopyI32I32:
		return 4, 4
	}
	return 8, 4
}
