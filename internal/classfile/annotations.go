package classfile

// Annotation is a parsed annotation structure. Indices refer to the
// constant pool of the class it was read from.
type Annotation struct {
	Type     uint16
	Elements []ElementPair
}

// ElementPair is one name=value element of an annotation.
type ElementPair struct {
	Name  uint16
	Value ElementValue
}

// ElementValue is a tagged annotation element value.
//
// Const holds const_value_index for the primitive and 's' tags and
// class_info_index for 'c'. EnumType/EnumConst are set for 'e'.
type ElementValue struct {
	Tag        byte
	Const      uint16
	EnumType   uint16
	EnumConst  uint16
	Annotation *Annotation
	Array      []ElementValue
}

// TypeAnnotation is a type_annotation entry. Target info and type path carry
// no constant pool references and are kept raw.
type TypeAnnotation struct {
	TargetType byte
	TargetInfo []byte
	TypePath   []byte
	Annotation Annotation
}

// ParseAnnotations decodes a Runtime(In)VisibleAnnotations payload.
func ParseAnnotations(info []byte) ([]Annotation, error) {
	r := newReader(info)
	out := readAnnotationList(r)
	if r.err != nil {
		return nil, r.err
	}
	if r.remaining() != 0 {
		return nil, malformed("annotations attribute has %d trailing bytes", r.remaining())
	}
	return out, nil
}

// EncodeAnnotations is the inverse of ParseAnnotations.
func EncodeAnnotations(list []Annotation) []byte {
	w := &writer{}
	writeAnnotationList(w, list)
	return w.Bytes()
}

// ParseParameterAnnotations decodes a Runtime(In)VisibleParameterAnnotations
// payload into one annotation list per parameter slot.
func ParseParameterAnnotations(info []byte) ([][]Annotation, error) {
	r := newReader(info)
	n := int(r.u8())
	out := make([][]Annotation, 0, n)
	for i := 0; i < n && r.err == nil; i++ {
		out = append(out, readAnnotationList(r))
	}
	if r.err != nil {
		return nil, r.err
	}
	if r.remaining() != 0 {
		return nil, malformed("parameter annotations attribute has %d trailing bytes", r.remaining())
	}
	return out, nil
}

// EncodeParameterAnnotations is the inverse of ParseParameterAnnotations.
func EncodeParameterAnnotations(params [][]Annotation) []byte {
	w := &writer{}
	w.u8(uint8(len(params)))
	for _, p := range params {
		writeAnnotationList(w, p)
	}
	return w.Bytes()
}

// ParseElementValue decodes an AnnotationDefault payload.
func ParseElementValue(info []byte) (ElementValue, error) {
	r := newReader(info)
	v := readElementValue(r, 0)
	if r.err != nil {
		return ElementValue{}, r.err
	}
	return v, nil
}

// EncodeElementValue is the inverse of ParseElementValue.
func EncodeElementValue(v ElementValue) []byte {
	w := &writer{}
	writeElementValue(w, v)
	return w.Bytes()
}

// ParseTypeAnnotations decodes a Runtime(In)VisibleTypeAnnotations payload.
func ParseTypeAnnotations(info []byte) ([]TypeAnnotation, error) {
	r := newReader(info)
	n := int(r.u16())
	out := make([]TypeAnnotation, 0, n)
	for i := 0; i < n && r.err == nil; i++ {
		ta := TypeAnnotation{TargetType: r.u8()}
		start := r.off
		switch {
		case ta.TargetType == 0x00 || ta.TargetType == 0x01 || ta.TargetType == 0x16:
			r.u8()
		case ta.TargetType == 0x10 || ta.TargetType == 0x17 || (ta.TargetType >= 0x42 && ta.TargetType <= 0x46):
			r.u16()
		case ta.TargetType == 0x11 || ta.TargetType == 0x12:
			r.u8()
			r.u8()
		case ta.TargetType >= 0x13 && ta.TargetType <= 0x15:
		case ta.TargetType == 0x40 || ta.TargetType == 0x41:
			k := int(r.u16())
			r.bytes(k * 6)
		case ta.TargetType >= 0x47 && ta.TargetType <= 0x4B:
			r.u16()
			r.u8()
		default:
			return nil, malformed("unknown type annotation target %#x", ta.TargetType)
		}
		if r.err != nil {
			break
		}
		ta.TargetInfo = append([]byte(nil), info[start:r.off]...)
		pathLen := int(r.u8())
		ta.TypePath = r.bytes(pathLen * 2)
		ta.Annotation = readAnnotation(r, 0)
		out = append(out, ta)
	}
	if r.err != nil {
		return nil, r.err
	}
	return out, nil
}

// EncodeTypeAnnotations is the inverse of ParseTypeAnnotations.
func EncodeTypeAnnotations(list []TypeAnnotation) []byte {
	w := &writer{}
	w.u16(uint16(len(list)))
	for _, ta := range list {
		w.u8(ta.TargetType)
		w.raw(ta.TargetInfo)
		w.u8(uint8(len(ta.TypePath) / 2))
		w.raw(ta.TypePath)
		writeAnnotation(w, ta.Annotation)
	}
	return w.Bytes()
}

const maxAnnotationDepth = 64

func readAnnotationList(r *reader) []Annotation {
	n := int(r.u16())
	out := make([]Annotation, 0, n)
	for i := 0; i < n && r.err == nil; i++ {
		out = append(out, readAnnotation(r, 0))
	}
	return out
}

func readAnnotation(r *reader, depth int) Annotation {
	a := Annotation{Type: r.u16()}
	n := int(r.u16())
	for i := 0; i < n && r.err == nil; i++ {
		name := r.u16()
		a.Elements = append(a.Elements, ElementPair{Name: name, Value: readElementValue(r, depth+1)})
	}
	return a
}

func readElementValue(r *reader, depth int) ElementValue {
	if depth > maxAnnotationDepth && r.err == nil {
		r.err = malformed("annotation nesting too deep")
	}
	v := ElementValue{Tag: r.u8()}
	if r.err != nil {
		return v
	}
	switch v.Tag {
	case 'B', 'C', 'D', 'F', 'I', 'J', 'S', 'Z', 's', 'c':
		v.Const = r.u16()
	case 'e':
		v.EnumType = r.u16()
		v.EnumConst = r.u16()
	case '@':
		a := readAnnotation(r, depth+1)
		v.Annotation = &a
	case '[':
		n := int(r.u16())
		v.Array = make([]ElementValue, 0, n)
		for i := 0; i < n && r.err == nil; i++ {
			v.Array = append(v.Array, readElementValue(r, depth+1))
		}
	default:
		r.err = malformed("unknown element value tag %q", v.Tag)
	}
	return v
}

func writeAnnotationList(w *writer, list []Annotation) {
	w.u16(uint16(len(list)))
	for _, a := range list {
		writeAnnotation(w, a)
	}
}

func writeAnnotation(w *writer, a Annotation) {
	w.u16(a.Type)
	w.u16(uint16(len(a.Elements)))
	for _, e := range a.Elements {
		w.u16(e.Name)
		writeElementValue(w, e.Value)
	}
}

func writeElementValue(w *writer, v ElementValue) {
	w.u8(v.Tag)
	switch v.Tag {
	case 'e':
		w.u16(v.EnumType)
		w.u16(v.EnumConst)
	case '@':
		writeAnnotation(w, *v.Annotation)
	case '[':
		w.u16(uint16(len(v.Array)))
		for _, e := range v.Array {
			writeElementValue(w, e)
		}
	default:
		w.u16(v.Const)
	}
}
