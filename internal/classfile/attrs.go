package classfile

// InnerClass is one InnerClasses attribute entry.
type InnerClass struct {
	Inner, Outer, Name uint16
	Access             uint16
}

// ParseInnerClasses decodes an InnerClasses payload.
func ParseInnerClasses(info []byte) ([]InnerClass, error) {
	r := newReader(info)
	n := int(r.u16())
	out := make([]InnerClass, 0, n)
	for i := 0; i < n && r.err == nil; i++ {
		out = append(out, InnerClass{Inner: r.u16(), Outer: r.u16(), Name: r.u16(), Access: r.u16()})
	}
	if r.err != nil {
		return nil, r.err
	}
	return out, nil
}

// EncodeInnerClasses is the inverse of ParseInnerClasses.
func EncodeInnerClasses(list []InnerClass) []byte {
	w := &writer{}
	w.u16(uint16(len(list)))
	for _, ic := range list {
		w.u16(ic.Inner)
		w.u16(ic.Outer)
		w.u16(ic.Name)
		w.u16(ic.Access)
	}
	return w.Bytes()
}

// BootstrapMethod is one BootstrapMethods attribute entry.
type BootstrapMethod struct {
	Ref  uint16
	Args []uint16
}

func (b BootstrapMethod) equal(o BootstrapMethod) bool {
	if b.Ref != o.Ref || len(b.Args) != len(o.Args) {
		return false
	}
	for i := range b.Args {
		if b.Args[i] != o.Args[i] {
			return false
		}
	}
	return true
}

// ParseBootstrapMethods decodes a BootstrapMethods payload.
func ParseBootstrapMethods(info []byte) ([]BootstrapMethod, error) {
	r := newReader(info)
	n := int(r.u16())
	out := make([]BootstrapMethod, 0, n)
	for i := 0; i < n && r.err == nil; i++ {
		b := BootstrapMethod{Ref: r.u16()}
		k := int(r.u16())
		for j := 0; j < k && r.err == nil; j++ {
			b.Args = append(b.Args, r.u16())
		}
		out = append(out, b)
	}
	if r.err != nil {
		return nil, r.err
	}
	return out, nil
}

// EncodeBootstrapMethods is the inverse of ParseBootstrapMethods.
func EncodeBootstrapMethods(list []BootstrapMethod) []byte {
	w := &writer{}
	w.u16(uint16(len(list)))
	for _, b := range list {
		w.u16(b.Ref)
		w.u16(uint16(len(b.Args)))
		for _, a := range b.Args {
			w.u16(a)
		}
	}
	return w.Bytes()
}
