// Package classfiletest assembles small class files for tests.
package classfiletest

import (
	"jarforge/internal/classfile"
)

// Enum is an enum-valued annotation element called "value".
type Enum struct {
	Type, Const string
}

// Ann is an annotation with an optional enum "value" element.
type Ann struct {
	Type  string
	Value *Enum
}

// Member describes a field or a method. Methods get a Code attribute unless
// Abstract is set; LdcString makes the body load that string constant.
type Member struct {
	Access               uint16
	Name, Desc           string
	Abstract             bool
	LdcString            string
	InvokeStatic         [3]string
	Annotations          []Ann
	InvisibleAnnotations []Ann
	ParamAnnotations     [][]Ann
}

// Inner is an InnerClasses entry.
type Inner struct {
	Inner, Outer, Name string
	Access             uint16
}

// Class describes a class to assemble.
type Class struct {
	Name                 string
	Super                string
	Access               uint16
	Interfaces           []string
	Fields               []Member
	Methods              []Member
	Annotations          []Ann
	InvisibleAnnotations []Ann
	InnerClasses         []Inner
	// Filler adds unused string constants, growing the pool.
	Filler []string
}

type builder struct {
	cf  *classfile.ClassFile
	err error
}

func (b *builder) utf8(s string) uint16 {
	if b.err != nil {
		return 0
	}
	i, err := b.cf.Pool.AddUtf8(s)
	b.err = err
	return i
}

func (b *builder) class(s string) uint16 {
	if b.err != nil || s == "" {
		return 0
	}
	i, err := b.cf.Pool.AddClass(s)
	b.err = err
	return i
}

func (b *builder) add(c classfile.Constant) uint16 {
	if b.err != nil {
		return 0
	}
	i, err := b.cf.Pool.Add(c)
	b.err = err
	return i
}

func (b *builder) annotations(list []Ann) []classfile.Annotation {
	out := make([]classfile.Annotation, 0, len(list))
	for _, a := range list {
		ann := classfile.Annotation{Type: b.utf8(a.Type)}
		if a.Value != nil {
			ann.Elements = append(ann.Elements, classfile.ElementPair{
				Name: b.utf8("value"),
				Value: classfile.ElementValue{
					Tag:       'e',
					EnumType:  b.utf8(a.Value.Type),
					EnumConst: b.utf8(a.Value.Const),
				},
			})
		}
		out = append(out, ann)
	}
	return out
}

func (b *builder) annotationAttrs(visible, invisible []Ann) []*classfile.Attribute {
	var attrs []*classfile.Attribute
	if len(visible) > 0 {
		info := classfile.EncodeAnnotations(b.annotations(visible))
		attrs = append(attrs, &classfile.Attribute{Name: b.utf8(classfile.AttrRuntimeVisibleAnnotations), Info: info})
	}
	if len(invisible) > 0 {
		info := classfile.EncodeAnnotations(b.annotations(invisible))
		attrs = append(attrs, &classfile.Attribute{Name: b.utf8(classfile.AttrRuntimeInvisibleAnnotations), Info: info})
	}
	return attrs
}

func (b *builder) member(m Member, method bool) *classfile.Member {
	out := &classfile.Member{Access: m.Access, Name: b.utf8(m.Name), Desc: b.utf8(m.Desc)}
	if method && !m.Abstract {
		var code []byte
		stack := uint16(0)
		if m.LdcString != "" {
			s := b.add(classfile.Constant{Tag: classfile.TagString, A: b.utf8(m.LdcString)})
			if s > 0xFF {
				panic("classfiletest: ldc constant beyond index 255")
			}
			code = append(code, 0x12, byte(s), 0x57)
			stack = 1
		}
		if m.InvokeStatic[0] != "" {
			nt := b.add(classfile.Constant{Tag: classfile.TagNameAndType, A: b.utf8(m.InvokeStatic[1]), B: b.utf8(m.InvokeStatic[2])})
			ref := b.add(classfile.Constant{Tag: classfile.TagMethodref, A: b.class(m.InvokeStatic[0]), B: nt})
			code = append(code, 0xb8, byte(ref>>8), byte(ref))
		}
		code = append(code, 0xb1)
		info := []byte{byte(stack >> 8), byte(stack), 0, 8}
		info = append(info, byte(len(code)>>24), byte(len(code)>>16), byte(len(code)>>8), byte(len(code)))
		info = append(info, code...)
		info = append(info, 0, 0, 0, 0)
		out.Attributes = append(out.Attributes, &classfile.Attribute{Name: b.utf8(classfile.AttrCode), Info: info})
	}
	out.Attributes = append(out.Attributes, b.annotationAttrs(m.Annotations, m.InvisibleAnnotations)...)
	if m.ParamAnnotations != nil {
		params := make([][]classfile.Annotation, len(m.ParamAnnotations))
		for i, p := range m.ParamAnnotations {
			params[i] = b.annotations(p)
		}
		out.Attributes = append(out.Attributes, &classfile.Attribute{
			Name: b.utf8(classfile.AttrRuntimeVisibleParameterAnnotations),
			Info: classfile.EncodeParameterAnnotations(params),
		})
	}
	return out
}

// Build assembles c. It panics on error, which only happens for pools that
// overflow.
func Build(c Class) []byte {
	b := &builder{cf: &classfile.ClassFile{Major: 52, Pool: classfile.NewPool(), Access: c.Access | classfile.AccPublic}}
	b.cf.This = b.class(c.Name)
	super := c.Super
	if super == "" {
		super = "java/lang/Object"
	}
	b.cf.Super = b.class(super)
	for _, s := range c.Filler {
		b.add(classfile.Constant{Tag: classfile.TagString, A: b.utf8(s)})
	}
	for _, i := range c.Interfaces {
		b.cf.Interfaces = append(b.cf.Interfaces, b.class(i))
	}
	for _, f := range c.Fields {
		b.cf.Fields = append(b.cf.Fields, b.member(f, false))
	}
	for _, m := range c.Methods {
		b.cf.Methods = append(b.cf.Methods, b.member(m, true))
	}
	b.cf.Attributes = b.annotationAttrs(c.Annotations, c.InvisibleAnnotations)
	if len(c.InnerClasses) > 0 {
		list := make([]classfile.InnerClass, 0, len(c.InnerClasses))
		for _, ic := range c.InnerClasses {
			e := classfile.InnerClass{Inner: b.class(ic.Inner), Outer: b.class(ic.Outer), Access: ic.Access}
			if ic.Name != "" {
				e.Name = b.utf8(ic.Name)
			}
			list = append(list, e)
		}
		b.cf.Attributes = append(b.cf.Attributes, &classfile.Attribute{
			Name: b.utf8(classfile.AttrInnerClasses),
			Info: classfile.EncodeInnerClasses(list),
		})
	}
	if b.err != nil {
		panic(b.err)
	}
	out, err := b.cf.Bytes()
	if err != nil {
		panic(err)
	}
	return out
}
