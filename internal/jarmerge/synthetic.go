package jarmerge

import (
	"jarforge/internal/classfile"
)

var paramAnnotationAttrs = []string{
	classfile.AttrRuntimeVisibleParameterAnnotations,
	classfile.AttrRuntimeInvisibleParameterAnnotations,
}

// syntheticParams returns the number of leading constructor parameters the
// compiler adds: name and ordinal for enums, the outer instance for member
// classes that are not static.
func syntheticParams(cf *classfile.ClassFile) (int, error) {
	if cf.Access&classfile.AccEnum != 0 {
		return 2, nil
	}
	_, a := cf.FindAttribute(cf.Attributes, classfile.AttrInnerClasses)
	if a == nil {
		return 0, nil
	}
	list, err := classfile.ParseInnerClasses(a.Info)
	if err != nil {
		return 0, err
	}
	self := cf.Name()
	for _, ic := range list {
		if ic.Outer == 0 || ic.Access&classfile.AccStatic != 0 {
			continue
		}
		n, err := cf.Pool.ClassName(ic.Inner)
		if err != nil {
			return 0, err
		}
		if n == self {
			return 1, nil
		}
	}
	return 0, nil
}

// alignConstructorParams rewrites constructor parameter annotation tables
// to span the full descriptor. A table that only covers declared parameters
// is shifted right past the synthetic ones, so client and server versions
// compare equal whichever convention produced them.
func alignConstructorParams(cf *classfile.ClassFile) error {
	synthetic, err := syntheticParams(cf)
	if err != nil || synthetic == 0 {
		return err
	}
	for _, m := range cf.Methods {
		name, desc, err := cf.MemberName(m)
		if err != nil {
			return err
		}
		if name != "<init>" {
			continue
		}
		n, err := classfile.ParamCount(desc)
		if err != nil {
			return err
		}
		for _, attr := range paramAnnotationAttrs {
			i, a := cf.FindAttribute(m.Attributes, attr)
			if a == nil {
				continue
			}
			params, err := classfile.ParseParameterAnnotations(a.Info)
			if err != nil {
				return err
			}
			aligned, ok := realign(params, n, synthetic)
			if !ok {
				continue
			}
			m.Attributes[i] = &classfile.Attribute{Name: a.Name, Info: classfile.EncodeParameterAnnotations(aligned)}
		}
	}
	return nil
}

// realign resizes params to n entries. A table of n-synthetic entries is
// shifted right; any other short table is padded at the end, and a long one
// loses empty trailing entries. ok is false when nothing changes.
func realign(params [][]classfile.Annotation, n, synthetic int) ([][]classfile.Annotation, bool) {
	switch {
	case len(params) == n:
		return params, false
	case len(params) == n-synthetic:
		out := make([][]classfile.Annotation, synthetic, n)
		return append(out, params...), true
	case len(params) < n:
		out := append([][]classfile.Annotation(nil), params...)
		for len(out) < n {
			out = append(out, nil)
		}
		return out, true
	}
	for _, p := range params[n:] {
		if len(p) > 0 {
			return params, false
		}
	}
	return params[:n], true
}
