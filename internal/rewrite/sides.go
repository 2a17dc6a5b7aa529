package rewrite

import (
	"jarforge/internal/classfile"
)

// Side marker annotation descriptors. The Environment family is what the jar
// merger emits; SideOnly is the canonical form the runtime reads.
const (
	EnvironmentDesc           = "Lnet/fabricmc/api/Environment;"
	EnvTypeDesc               = "Lnet/fabricmc/api/EnvType;"
	EnvironmentInterfaceDesc  = "Lnet/fabricmc/api/EnvironmentInterface;"
	EnvironmentInterfacesDesc = "Lnet/fabricmc/api/EnvironmentInterfaces;"
	SideOnlyDesc              = "Lnet/minecraftforge/fml/relauncher/SideOnly;"
	SideDesc                  = "Lnet/minecraftforge/fml/relauncher/Side;"
)

func isSideMarker(desc string) bool {
	return desc == EnvironmentDesc || desc == SideOnlyDesc
}

// MergeSideAnnotations collapses side markers on the class and each member to
// a single visible SideOnly annotation. The first marker found (visible list
// first, then invisible) wins and is retyped; any later marker is dropped.
// Elements without a marker are left alone.
func MergeSideAnnotations(path string, data []byte) ([]byte, error) {
	cf, err := classfile.Parse(data)
	if err != nil {
		return nil, err
	}
	changed := false
	attrs, c, err := mergeSides(cf, cf.Attributes)
	if err != nil {
		return nil, err
	}
	cf.Attributes, changed = attrs, c
	for _, list := range [][]*classfile.Member{cf.Fields, cf.Methods} {
		for _, m := range list {
			attrs, c, err := mergeSides(cf, m.Attributes)
			if err != nil {
				return nil, err
			}
			m.Attributes = attrs
			changed = changed || c
		}
	}
	if !changed {
		return data, nil
	}
	return cf.Bytes()
}

func mergeSides(cf *classfile.ClassFile, attrs []*classfile.Attribute) ([]*classfile.Attribute, bool, error) {
	_, va := cf.FindAttribute(attrs, classfile.AttrRuntimeVisibleAnnotations)
	_, ia := cf.FindAttribute(attrs, classfile.AttrRuntimeInvisibleAnnotations)
	if va == nil && ia == nil {
		return attrs, false, nil
	}
	var visible, invisible []classfile.Annotation
	var err error
	if va != nil {
		if visible, err = classfile.ParseAnnotations(va.Info); err != nil {
			return nil, false, err
		}
	}
	if ia != nil {
		if invisible, err = classfile.ParseAnnotations(ia.Info); err != nil {
			return nil, false, err
		}
	}

	seen, changed := false, false
	var keptVisible, keptInvisible []classfile.Annotation
	for _, a := range visible {
		desc, err := cf.Pool.Utf8(a.Type)
		if err != nil {
			return nil, false, err
		}
		if !isSideMarker(desc) {
			keptVisible = append(keptVisible, a)
			continue
		}
		if seen {
			changed = true
			continue
		}
		seen = true
		na, c, err := canonicalSide(cf, a)
		if err != nil {
			return nil, false, err
		}
		changed = changed || c
		keptVisible = append(keptVisible, na)
	}
	for _, a := range invisible {
		desc, err := cf.Pool.Utf8(a.Type)
		if err != nil {
			return nil, false, err
		}
		if !isSideMarker(desc) {
			keptInvisible = append(keptInvisible, a)
			continue
		}
		changed = true
		if seen {
			continue
		}
		seen = true
		na, _, err := canonicalSide(cf, a)
		if err != nil {
			return nil, false, err
		}
		keptVisible = append(keptVisible, na)
	}
	if !changed {
		return attrs, false, nil
	}
	if attrs, err = cf.SetAttribute(attrs, classfile.AttrRuntimeVisibleAnnotations, encodeOrNil(keptVisible)); err != nil {
		return nil, false, err
	}
	if attrs, err = cf.SetAttribute(attrs, classfile.AttrRuntimeInvisibleAnnotations, encodeOrNil(keptInvisible)); err != nil {
		return nil, false, err
	}
	return attrs, true, nil
}

func encodeOrNil(list []classfile.Annotation) []byte {
	if len(list) == 0 {
		return nil
	}
	return classfile.EncodeAnnotations(list)
}

// canonicalSide retypes a side marker and its enum values to the SideOnly
// family. Values already in canonical form are not touched.
func canonicalSide(cf *classfile.ClassFile, a classfile.Annotation) (classfile.Annotation, bool, error) {
	changed := false
	desc, err := cf.Pool.Utf8(a.Type)
	if err != nil {
		return a, false, err
	}
	if desc != SideOnlyDesc {
		if a.Type, err = cf.Pool.AddUtf8(SideOnlyDesc); err != nil {
			return a, false, err
		}
		changed = true
	}
	elems := make([]classfile.ElementPair, len(a.Elements))
	for i, e := range a.Elements {
		v, c, err := canonicalEnum(cf, e.Value)
		if err != nil {
			return a, false, err
		}
		elems[i] = classfile.ElementPair{Name: e.Name, Value: v}
		changed = changed || c
	}
	a.Elements = elems
	return a, changed, nil
}

func canonicalEnum(cf *classfile.ClassFile, v classfile.ElementValue) (classfile.ElementValue, bool, error) {
	switch v.Tag {
	case 'e':
		desc, err := cf.Pool.Utf8(v.EnumType)
		if err != nil {
			return v, false, err
		}
		if desc != EnvTypeDesc {
			return v, false, nil
		}
		if v.EnumType, err = cf.Pool.AddUtf8(SideDesc); err != nil {
			return v, false, err
		}
		return v, true, nil
	case '[':
		changed := false
		arr := make([]classfile.ElementValue, len(v.Array))
		for i, e := range v.Array {
			ne, c, err := canonicalEnum(cf, e)
			if err != nil {
				return v, false, err
			}
			arr[i] = ne
			changed = changed || c
		}
		v.Array = arr
		return v, changed, nil
	}
	return v, false, nil
}
