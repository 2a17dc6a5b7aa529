// Package classfile reads and writes JVM class files at the structural level
// needed by the patch pipeline.
//
// Goals:
//   - Byte-identical round trip: Parse followed by Bytes reproduces the input
//     for any well-formed class.
//   - Attributes stay opaque byte blobs unless a caller asks for a structured
//     view (annotations, parameter annotations, inner classes, bootstrap
//     methods).
//   - Members can be copied between classes with every constant pool reference
//     rewritten, including references inside bytecode.
package classfile

import (
	"bytes"
)

const magic = 0xCAFEBABE

// Access flags used by the pipeline.
const (
	AccPublic    uint16 = 0x0001
	AccPrivate   uint16 = 0x0002
	AccProtected uint16 = 0x0004
	AccStatic    uint16 = 0x0008
	AccFinal     uint16 = 0x0010
	AccInterface uint16 = 0x0200
	AccEnum      uint16 = 0x4000
)

// Attribute names.
const (
	AttrCode                                 = "Code"
	AttrConstantValue                        = "ConstantValue"
	AttrExceptions                           = "Exceptions"
	AttrSignature                            = "Signature"
	AttrInnerClasses                         = "InnerClasses"
	AttrBootstrapMethods                     = "BootstrapMethods"
	AttrStackMapTable                        = "StackMapTable"
	AttrLocalVariableTable                   = "LocalVariableTable"
	AttrLocalVariableTypeTable               = "LocalVariableTypeTable"
	AttrAnnotationDefault                    = "AnnotationDefault"
	AttrMethodParameters                     = "MethodParameters"
	AttrRuntimeVisibleAnnotations            = "RuntimeVisibleAnnotations"
	AttrRuntimeInvisibleAnnotations          = "RuntimeInvisibleAnnotations"
	AttrRuntimeVisibleParameterAnnotations   = "RuntimeVisibleParameterAnnotations"
	AttrRuntimeInvisibleParameterAnnotations = "RuntimeInvisibleParameterAnnotations"
	AttrRuntimeVisibleTypeAnnotations        = "RuntimeVisibleTypeAnnotations"
	AttrRuntimeInvisibleTypeAnnotations      = "RuntimeInvisibleTypeAnnotations"
)

// Attribute is a raw attribute: a name index and its payload.
type Attribute struct {
	Name uint16
	Info []byte
}

// Member is a field or method.
type Member struct {
	Access     uint16
	Name       uint16
	Desc       uint16
	Attributes []*Attribute
}

// ClassFile is a parsed class.
type ClassFile struct {
	Minor, Major uint16
	Pool         *Pool
	Access       uint16
	This, Super  uint16
	Interfaces   []uint16
	Fields       []*Member
	Methods      []*Member
	Attributes   []*Attribute
}

// Parse decodes a class file.
func Parse(data []byte) (*ClassFile, error) {
	r := newReader(data)
	if m := r.u32(); r.err == nil && m != magic {
		return nil, malformed("bad magic %#x", m)
	}
	cf := &ClassFile{}
	cf.Minor = r.u16()
	cf.Major = r.u16()
	if r.err != nil {
		return nil, r.err
	}
	pool, err := parsePool(r)
	if err != nil {
		return nil, err
	}
	cf.Pool = pool
	cf.Access = r.u16()
	cf.This = r.u16()
	cf.Super = r.u16()
	n := int(r.u16())
	for i := 0; i < n && r.err == nil; i++ {
		cf.Interfaces = append(cf.Interfaces, r.u16())
	}
	cf.Fields = parseMembers(r)
	cf.Methods = parseMembers(r)
	cf.Attributes = parseAttributes(r)
	if r.err != nil {
		return nil, r.err
	}
	if r.remaining() != 0 {
		return nil, malformed("%d trailing bytes", r.remaining())
	}
	if _, err := cf.Pool.ClassName(cf.This); err != nil {
		return nil, err
	}
	return cf, nil
}

func parseMembers(r *reader) []*Member {
	n := int(r.u16())
	out := make([]*Member, 0, n)
	for i := 0; i < n && r.err == nil; i++ {
		m := &Member{Access: r.u16(), Name: r.u16(), Desc: r.u16()}
		m.Attributes = parseAttributes(r)
		out = append(out, m)
	}
	return out
}

func parseAttributes(r *reader) []*Attribute {
	n := int(r.u16())
	out := make([]*Attribute, 0, n)
	for i := 0; i < n && r.err == nil; i++ {
		a := &Attribute{Name: r.u16()}
		a.Info = r.bytes(int(r.u32()))
		out = append(out, a)
	}
	return out
}

// Bytes encodes the class.
func (cf *ClassFile) Bytes() ([]byte, error) {
	if cf.Pool.Count() > 0xFFFF {
		return nil, malformed("constant pool overflow")
	}
	w := &writer{}
	w.u32(magic)
	w.u16(cf.Minor)
	w.u16(cf.Major)
	cf.Pool.write(w)
	w.u16(cf.Access)
	w.u16(cf.This)
	w.u16(cf.Super)
	w.u16(uint16(len(cf.Interfaces)))
	for _, i := range cf.Interfaces {
		w.u16(i)
	}
	writeMembers(w, cf.Fields)
	writeMembers(w, cf.Methods)
	writeAttributes(w, cf.Attributes)
	return w.Bytes(), nil
}

func writeMembers(w *writer, ms []*Member) {
	w.u16(uint16(len(ms)))
	for _, m := range ms {
		w.u16(m.Access)
		w.u16(m.Name)
		w.u16(m.Desc)
		writeAttributes(w, m.Attributes)
	}
}

func writeAttributes(w *writer, as []*Attribute) {
	w.u16(uint16(len(as)))
	for _, a := range as {
		w.u16(a.Name)
		w.u32(uint32(len(a.Info)))
		w.raw(a.Info)
	}
}

// Name returns the internal name of the class.
func (cf *ClassFile) Name() string {
	n, _ := cf.Pool.ClassName(cf.This)
	return n
}

// InterfaceNames resolves the direct superinterfaces.
func (cf *ClassFile) InterfaceNames() ([]string, error) {
	out := make([]string, 0, len(cf.Interfaces))
	for _, i := range cf.Interfaces {
		n, err := cf.Pool.ClassName(i)
		if err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, nil
}

// MemberName resolves the name and descriptor of m.
func (cf *ClassFile) MemberName(m *Member) (name, desc string, err error) {
	if name, err = cf.Pool.Utf8(m.Name); err != nil {
		return "", "", err
	}
	desc, err = cf.Pool.Utf8(m.Desc)
	return name, desc, err
}

// AttrName resolves the name of a.
func (cf *ClassFile) AttrName(a *Attribute) string {
	n, _ := cf.Pool.Utf8(a.Name)
	return n
}

// FindAttribute returns the first attribute in list called name, or -1.
func (cf *ClassFile) FindAttribute(list []*Attribute, name string) (int, *Attribute) {
	for i, a := range list {
		if cf.AttrName(a) == name {
			return i, a
		}
	}
	return -1, nil
}

// SetAttribute replaces the first attribute called name, appends it when
// absent, and removes it when info is nil.
func (cf *ClassFile) SetAttribute(list []*Attribute, name string, info []byte) ([]*Attribute, error) {
	i, a := cf.FindAttribute(list, name)
	if info == nil {
		if i < 0 {
			return list, nil
		}
		return append(list[:i:i], list[i+1:]...), nil
	}
	if a != nil {
		if bytes.Equal(a.Info, info) {
			return list, nil
		}
		out := append([]*Attribute(nil), list...)
		out[i] = &Attribute{Name: a.Name, Info: info}
		return out, nil
	}
	n, err := cf.Pool.AddUtf8(name)
	if err != nil {
		return nil, err
	}
	return append(list, &Attribute{Name: n, Info: info}), nil
}
