package classfile

import (
	"fmt"
	"strings"
)

// Constant pool tags.
const (
	TagUtf8               uint8 = 1
	TagInteger            uint8 = 3
	TagFloat              uint8 = 4
	TagLong               uint8 = 5
	TagDouble             uint8 = 6
	TagClass              uint8 = 7
	TagString             uint8 = 8
	TagFieldref           uint8 = 9
	TagMethodref          uint8 = 10
	TagInterfaceMethodref uint8 = 11
	TagNameAndType        uint8 = 12
	TagMethodHandle       uint8 = 15
	TagMethodType         uint8 = 16
	TagDynamic            uint8 = 17
	TagInvokeDynamic      uint8 = 18
	TagModule             uint8 = 19
	TagPackage            uint8 = 20
)

// Constant is one constant pool slot. Which fields are meaningful depends on
// Tag: Utf8 holds the raw modified UTF-8 text, Bytes holds numeric payloads
// (4 bytes for Integer/Float, 8 for Long/Double), A and B hold pool or
// bootstrap references, Kind holds a method handle reference kind.
// The slot following a Long or Double has Tag 0.
type Constant struct {
	Tag   uint8
	Utf8  string
	Bytes [8]byte
	Kind  uint8
	A, B  uint16
}

func (c Constant) key() string {
	var b strings.Builder
	b.WriteByte(c.Tag)
	b.WriteByte(c.Kind)
	b.WriteByte(byte(c.A >> 8))
	b.WriteByte(byte(c.A))
	b.WriteByte(byte(c.B >> 8))
	b.WriteByte(byte(c.B))
	b.Write(c.Bytes[:])
	b.WriteString(c.Utf8)
	return b.String()
}

func wide(tag uint8) bool { return tag == TagLong || tag == TagDouble }

// Pool is a class file constant pool. Index 0 is unused.
type Pool struct {
	entries []Constant
	index   map[string]uint16
}

// NewPool returns an empty pool.
func NewPool() *Pool {
	return &Pool{entries: make([]Constant, 1)}
}

// Count is the constant_pool_count value: one more than the highest index.
func (p *Pool) Count() int { return len(p.entries) }

// Get returns the constant at i.
func (p *Pool) Get(i uint16) (Constant, error) {
	if i == 0 || int(i) >= len(p.entries) || p.entries[i].Tag == 0 {
		return Constant{}, malformed("invalid constant pool index %d", i)
	}
	return p.entries[i], nil
}

func (p *Pool) expect(i uint16, tag uint8) (Constant, error) {
	c, err := p.Get(i)
	if err != nil {
		return c, err
	}
	if c.Tag != tag {
		return c, malformed("constant %d has tag %d, want %d", i, c.Tag, tag)
	}
	return c, nil
}

// Utf8 resolves a CONSTANT_Utf8 index.
func (p *Pool) Utf8(i uint16) (string, error) {
	c, err := p.expect(i, TagUtf8)
	return c.Utf8, err
}

// ClassName resolves a CONSTANT_Class index to its internal name.
func (p *Pool) ClassName(i uint16) (string, error) {
	c, err := p.expect(i, TagClass)
	if err != nil {
		return "", err
	}
	return p.Utf8(c.A)
}

// NameAndType resolves a CONSTANT_NameAndType index.
func (p *Pool) NameAndType(i uint16) (name, desc string, err error) {
	c, err := p.expect(i, TagNameAndType)
	if err != nil {
		return "", "", err
	}
	if name, err = p.Utf8(c.A); err != nil {
		return "", "", err
	}
	desc, err = p.Utf8(c.B)
	return name, desc, err
}

func (p *Pool) lookup() map[string]uint16 {
	if p.index == nil {
		p.index = make(map[string]uint16, len(p.entries))
		for i := 1; i < len(p.entries); i++ {
			c := p.entries[i]
			if c.Tag == 0 {
				continue
			}
			if _, ok := p.index[c.key()]; !ok {
				p.index[c.key()] = uint16(i)
			}
		}
	}
	return p.index
}

// Add returns the index of c, appending it when no equal constant exists.
func (p *Pool) Add(c Constant) (uint16, error) {
	idx := p.lookup()
	k := c.key()
	if i, ok := idx[k]; ok {
		return i, nil
	}
	slots := 1
	if wide(c.Tag) {
		slots = 2
	}
	if len(p.entries)+slots > 0xFFFF {
		return 0, malformed("constant pool overflow")
	}
	i := uint16(len(p.entries))
	p.entries = append(p.entries, c)
	if slots == 2 {
		p.entries = append(p.entries, Constant{})
	}
	idx[k] = i
	return i, nil
}

// AddUtf8 interns a CONSTANT_Utf8.
func (p *Pool) AddUtf8(s string) (uint16, error) {
	return p.Add(Constant{Tag: TagUtf8, Utf8: s})
}

// AddClass interns a CONSTANT_Class for an internal name.
func (p *Pool) AddClass(name string) (uint16, error) {
	n, err := p.AddUtf8(name)
	if err != nil {
		return 0, err
	}
	return p.Add(Constant{Tag: TagClass, A: n})
}

func parsePool(r *reader) (*Pool, error) {
	count := int(r.u16())
	if count == 0 {
		return nil, malformed("constant_pool_count is zero")
	}
	p := &Pool{entries: make([]Constant, 1, count)}
	for len(p.entries) < count && r.err == nil {
		c := Constant{Tag: r.u8()}
		switch c.Tag {
		case TagUtf8:
			n := int(r.u16())
			c.Utf8 = string(r.bytes(n))
		case TagInteger, TagFloat:
			copy(c.Bytes[:4], r.bytes(4))
		case TagLong, TagDouble:
			copy(c.Bytes[:], r.bytes(8))
		case TagClass, TagString, TagMethodType, TagModule, TagPackage:
			c.A = r.u16()
		case TagFieldref, TagMethodref, TagInterfaceMethodref, TagNameAndType, TagDynamic, TagInvokeDynamic:
			c.A = r.u16()
			c.B = r.u16()
		case TagMethodHandle:
			c.Kind = r.u8()
			c.A = r.u16()
		default:
			if r.err == nil {
				return nil, malformed("unknown constant pool tag %d at index %d", c.Tag, len(p.entries))
			}
		}
		p.entries = append(p.entries, c)
		if wide(c.Tag) {
			p.entries = append(p.entries, Constant{})
		}
	}
	if r.err != nil {
		return nil, r.err
	}
	if len(p.entries) != count {
		return nil, malformed("wide constant overruns constant_pool_count %d", count)
	}
	return p, nil
}

func (p *Pool) write(w *writer) {
	w.u16(uint16(len(p.entries)))
	for i := 1; i < len(p.entries); i++ {
		c := p.entries[i]
		if c.Tag == 0 {
			continue
		}
		w.u8(c.Tag)
		switch c.Tag {
		case TagUtf8:
			w.u16(uint16(len(c.Utf8)))
			w.raw([]byte(c.Utf8))
		case TagInteger, TagFloat:
			w.raw(c.Bytes[:4])
		case TagLong, TagDouble:
			w.raw(c.Bytes[:])
		case TagClass, TagString, TagMethodType, TagModule, TagPackage:
			w.u16(c.A)
		case TagMethodHandle:
			w.u8(c.Kind)
			w.u16(c.A)
		default:
			w.u16(c.A)
			w.u16(c.B)
		}
	}
}

// Describe renders constant i in a stable textual form with references
// resolved. It is used for diagnostics.
func (p *Pool) Describe(i uint16) string {
	c, err := p.Get(i)
	if err != nil {
		return fmt.Sprintf("#%d?", i)
	}
	switch c.Tag {
	case TagUtf8:
		return fmt.Sprintf("%q", c.Utf8)
	case TagInteger:
		return fmt.Sprintf("int %x", c.Bytes[:4])
	case TagFloat:
		return fmt.Sprintf("float %x", c.Bytes[:4])
	case TagLong:
		return fmt.Sprintf("long %x", c.Bytes[:])
	case TagDouble:
		return fmt.Sprintf("double %x", c.Bytes[:])
	case TagClass:
		return "class " + p.Describe(c.A)
	case TagString:
		return "string " + p.Describe(c.A)
	case TagMethodType:
		return "methodtype " + p.Describe(c.A)
	case TagModule:
		return "module " + p.Describe(c.A)
	case TagPackage:
		return "package " + p.Describe(c.A)
	case TagFieldref, TagMethodref, TagInterfaceMethodref:
		return fmt.Sprintf("ref%d %s.%s", c.Tag, p.Describe(c.A), p.Describe(c.B))
	case TagNameAndType:
		return fmt.Sprintf("%s:%s", p.Describe(c.A), p.Describe(c.B))
	case TagMethodHandle:
		return fmt.Sprintf("handle%d %s", c.Kind, p.Describe(c.A))
	case TagDynamic, TagInvokeDynamic:
		return fmt.Sprintf("indy%d bsm%d %s", c.Tag, c.A, p.Describe(c.B))
	}
	return fmt.Sprintf("#%d tag%d", i, c.Tag)
}
