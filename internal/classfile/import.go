package classfile

import "encoding/binary"

// Importer copies members and constants from one class into another, giving
// them indices in the destination constant pool. One Importer serves any
// number of members from the same source; call Finish once afterwards so the
// destination's BootstrapMethods attribute reflects imported invokedynamic
// call sites.
type Importer struct {
	dst, src *ClassFile

	memo   map[uint16]uint16
	active map[uint16]bool

	srcBSM   []BootstrapMethod
	srcBSMOK bool
	dstBSM   []BootstrapMethod
	dstBSMOK bool
	bsmMemo  map[uint16]uint16
	bsmDirty bool
}

// NewImporter prepares an import from src into dst.
func NewImporter(dst, src *ClassFile) *Importer {
	return &Importer{
		dst:     dst,
		src:     src,
		memo:    make(map[uint16]uint16),
		active:  make(map[uint16]bool),
		bsmMemo: make(map[uint16]uint16),
	}
}

// Constant returns the destination index for source constant i. Index 0
// maps to 0.
func (im *Importer) Constant(i uint16) (uint16, error) {
	if i == 0 {
		return 0, nil
	}
	if v, ok := im.memo[i]; ok {
		return v, nil
	}
	if im.active[i] {
		return 0, malformed("constant %d refers to itself", i)
	}
	im.active[i] = true
	defer delete(im.active, i)

	c, err := im.src.Pool.Get(i)
	if err != nil {
		return 0, err
	}
	switch c.Tag {
	case TagUtf8, TagInteger, TagFloat, TagLong, TagDouble:
	case TagClass, TagString, TagMethodType, TagModule, TagPackage, TagMethodHandle:
		if c.A, err = im.Constant(c.A); err != nil {
			return 0, err
		}
	case TagDynamic, TagInvokeDynamic:
		if c.A, err = im.bootstrap(c.A); err != nil {
			return 0, err
		}
		if c.B, err = im.Constant(c.B); err != nil {
			return 0, err
		}
	default:
		if c.A, err = im.Constant(c.A); err != nil {
			return 0, err
		}
		if c.B, err = im.Constant(c.B); err != nil {
			return 0, err
		}
	}
	j, err := im.dst.Pool.Add(c)
	if err != nil {
		return 0, err
	}
	im.memo[i] = j
	return j, nil
}

func (im *Importer) loadBootstrap() error {
	if !im.srcBSMOK {
		if _, a := im.src.FindAttribute(im.src.Attributes, AttrBootstrapMethods); a != nil {
			list, err := ParseBootstrapMethods(a.Info)
			if err != nil {
				return err
			}
			im.srcBSM = list
		}
		im.srcBSMOK = true
	}
	if !im.dstBSMOK {
		if _, a := im.dst.FindAttribute(im.dst.Attributes, AttrBootstrapMethods); a != nil {
			list, err := ParseBootstrapMethods(a.Info)
			if err != nil {
				return err
			}
			im.dstBSM = list
		}
		im.dstBSMOK = true
	}
	return nil
}

func (im *Importer) bootstrap(i uint16) (uint16, error) {
	if v, ok := im.bsmMemo[i]; ok {
		return v, nil
	}
	if err := im.loadBootstrap(); err != nil {
		return 0, err
	}
	if int(i) >= len(im.srcBSM) {
		return 0, malformed("bootstrap method %d out of range (%d)", i, len(im.srcBSM))
	}
	src := im.srcBSM[i]
	var b BootstrapMethod
	var err error
	if b.Ref, err = im.Constant(src.Ref); err != nil {
		return 0, err
	}
	for _, a := range src.Args {
		na, err := im.Constant(a)
		if err != nil {
			return 0, err
		}
		b.Args = append(b.Args, na)
	}
	for j, have := range im.dstBSM {
		if have.equal(b) {
			im.bsmMemo[i] = uint16(j)
			return uint16(j), nil
		}
	}
	j := uint16(len(im.dstBSM))
	im.dstBSM = append(im.dstBSM, b)
	im.bsmDirty = true
	im.bsmMemo[i] = j
	return j, nil
}

// Finish writes back the destination BootstrapMethods attribute when imports
// extended it.
func (im *Importer) Finish() error {
	if !im.bsmDirty {
		return nil
	}
	attrs, err := im.dst.SetAttribute(im.dst.Attributes, AttrBootstrapMethods, EncodeBootstrapMethods(im.dstBSM))
	if err != nil {
		return err
	}
	im.dst.Attributes = attrs
	im.bsmDirty = false
	return nil
}

// Member imports a field or method.
func (im *Importer) Member(m *Member) (*Member, error) {
	out := &Member{Access: m.Access}
	var err error
	if out.Name, err = im.Constant(m.Name); err != nil {
		return nil, err
	}
	if out.Desc, err = im.Constant(m.Desc); err != nil {
		return nil, err
	}
	if out.Attributes, err = im.Attributes(m.Attributes); err != nil {
		return nil, err
	}
	return out, nil
}

// Attributes imports a list of attributes.
func (im *Importer) Attributes(list []*Attribute) ([]*Attribute, error) {
	out := make([]*Attribute, 0, len(list))
	for _, a := range list {
		na, err := im.attribute(a)
		if err != nil {
			return nil, err
		}
		out = append(out, na)
	}
	return out, nil
}

// Annotation imports a single annotation.
func (im *Importer) Annotation(a Annotation) (Annotation, error) {
	out := Annotation{}
	var err error
	if out.Type, err = im.Constant(a.Type); err != nil {
		return out, err
	}
	for _, e := range a.Elements {
		name, err := im.Constant(e.Name)
		if err != nil {
			return out, err
		}
		v, err := im.elementValue(e.Value)
		if err != nil {
			return out, err
		}
		out.Elements = append(out.Elements, ElementPair{Name: name, Value: v})
	}
	return out, nil
}

func (im *Importer) elementValue(v ElementValue) (ElementValue, error) {
	out := ElementValue{Tag: v.Tag}
	var err error
	switch v.Tag {
	case 'e':
		if out.EnumType, err = im.Constant(v.EnumType); err != nil {
			return out, err
		}
		out.EnumConst, err = im.Constant(v.EnumConst)
	case '@':
		a, aerr := im.Annotation(*v.Annotation)
		out.Annotation, err = &a, aerr
	case '[':
		out.Array = make([]ElementValue, 0, len(v.Array))
		for _, e := range v.Array {
			ne, err := im.elementValue(e)
			if err != nil {
				return out, err
			}
			out.Array = append(out.Array, ne)
		}
	default:
		out.Const, err = im.Constant(v.Const)
	}
	return out, err
}

func (im *Importer) annotations(list []Annotation) ([]Annotation, error) {
	out := make([]Annotation, 0, len(list))
	for _, a := range list {
		na, err := im.Annotation(a)
		if err != nil {
			return nil, err
		}
		out = append(out, na)
	}
	return out, nil
}

func (im *Importer) attribute(a *Attribute) (*Attribute, error) {
	name, err := im.src.Pool.Utf8(a.Name)
	if err != nil {
		return nil, err
	}
	out := &Attribute{}
	if out.Name, err = im.Constant(a.Name); err != nil {
		return nil, err
	}
	switch name {
	case AttrConstantValue, AttrSignature:
		if len(a.Info) != 2 {
			return nil, malformed("%s attribute has length %d", name, len(a.Info))
		}
		idx, err := im.Constant(binary.BigEndian.Uint16(a.Info))
		if err != nil {
			return nil, err
		}
		out.Info = binary.BigEndian.AppendUint16(nil, idx)
	case AttrExceptions:
		out.Info, err = im.indexList(a.Info)
	case AttrCode:
		out.Info, err = im.code(a.Info)
	case AttrMethodParameters:
		out.Info, err = im.methodParameters(a.Info)
	case AttrAnnotationDefault:
		var v ElementValue
		if v, err = ParseElementValue(a.Info); err == nil {
			if v, err = im.elementValue(v); err == nil {
				out.Info = EncodeElementValue(v)
			}
		}
	case AttrRuntimeVisibleAnnotations, AttrRuntimeInvisibleAnnotations:
		var list []Annotation
		if list, err = ParseAnnotations(a.Info); err == nil {
			if list, err = im.annotations(list); err == nil {
				out.Info = EncodeAnnotations(list)
			}
		}
	case AttrRuntimeVisibleParameterAnnotations, AttrRuntimeInvisibleParameterAnnotations:
		var params [][]Annotation
		if params, err = ParseParameterAnnotations(a.Info); err == nil {
			for i := range params {
				if params[i], err = im.annotations(params[i]); err != nil {
					break
				}
			}
			out.Info = EncodeParameterAnnotations(params)
		}
	case AttrRuntimeVisibleTypeAnnotations, AttrRuntimeInvisibleTypeAnnotations:
		var list []TypeAnnotation
		if list, err = ParseTypeAnnotations(a.Info); err == nil {
			for i := range list {
				if list[i].Annotation, err = im.Annotation(list[i].Annotation); err != nil {
					break
				}
			}
			out.Info = EncodeTypeAnnotations(list)
		}
	case AttrStackMapTable:
		out.Info, err = remapStackMap(a.Info, im.Constant)
	case AttrLocalVariableTable, AttrLocalVariableTypeTable:
		out.Info, err = remapLocalVariables(a.Info, im.Constant)
	default:
		out.Info = append([]byte(nil), a.Info...)
	}
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (im *Importer) indexList(info []byte) ([]byte, error) {
	r := newReader(info)
	w := &writer{}
	n := int(r.u16())
	w.u16(uint16(n))
	for i := 0; i < n && r.err == nil; i++ {
		idx, err := im.Constant(r.u16())
		if err != nil {
			return nil, err
		}
		w.u16(idx)
	}
	if r.err != nil {
		return nil, r.err
	}
	return w.Bytes(), nil
}

func (im *Importer) methodParameters(info []byte) ([]byte, error) {
	r := newReader(info)
	w := &writer{}
	n := int(r.u8())
	w.u8(uint8(n))
	for i := 0; i < n && r.err == nil; i++ {
		idx, err := im.Constant(r.u16())
		if err != nil {
			return nil, err
		}
		w.u16(idx)
		w.u16(r.u16())
	}
	if r.err != nil {
		return nil, r.err
	}
	return w.Bytes(), nil
}

func (im *Importer) code(info []byte) ([]byte, error) {
	r := newReader(info)
	w := &writer{}
	w.u16(r.u16()) // max_stack
	w.u16(r.u16()) // max_locals
	code := r.bytes(int(r.u32()))
	if r.err != nil {
		return nil, r.err
	}
	code, err := remapInstructions(code, im.Constant)
	if err != nil {
		return nil, err
	}
	w.u32(uint32(len(code)))
	w.raw(code)

	n := int(r.u16())
	w.u16(uint16(n))
	for i := 0; i < n && r.err == nil; i++ {
		w.u16(r.u16())
		w.u16(r.u16())
		w.u16(r.u16())
		catch, err := im.Constant(r.u16())
		if err != nil {
			return nil, err
		}
		w.u16(catch)
	}
	attrs := parseAttributes(r)
	if r.err != nil {
		return nil, r.err
	}
	if r.remaining() != 0 {
		return nil, malformed("code attribute has %d trailing bytes", r.remaining())
	}
	attrs, err = im.Attributes(attrs)
	if err != nil {
		return nil, err
	}
	writeAttributes(w, attrs)
	return w.Bytes(), nil
}
