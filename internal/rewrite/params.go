package rewrite

import (
	"fmt"

	"jarforge/internal/classfile"
)

var parameterAnnotationAttrs = []string{
	classfile.AttrRuntimeVisibleParameterAnnotations,
	classfile.AttrRuntimeInvisibleParameterAnnotations,
}

// FixParameterCounts recomputes num_parameters of constructor parameter
// annotation tables from the method descriptor. Binary patches emit tables
// whose stored count excludes synthetic leading parameters, which strict
// verifiers reject. Existing entries keep their index; missing ones are
// padded with empty annotation lists.
func FixParameterCounts(path string, data []byte) ([]byte, error) {
	cf, err := classfile.Parse(data)
	if err != nil {
		return nil, err
	}
	changed := false
	for _, m := range cf.Methods {
		name, desc, err := cf.MemberName(m)
		if err != nil {
			return nil, err
		}
		if name != "<init>" {
			continue
		}
		n, err := classfile.ParamCount(desc)
		if err != nil {
			return nil, fmt.Errorf("constructor %s: %w", desc, err)
		}
		for _, attr := range parameterAnnotationAttrs {
			i, a := cf.FindAttribute(m.Attributes, attr)
			if a == nil {
				continue
			}
			params, err := classfile.ParseParameterAnnotations(a.Info)
			if err != nil {
				return nil, err
			}
			if len(params) == n {
				continue
			}
			if len(params) > n {
				for j := n; j < len(params); j++ {
					if len(params[j]) > 0 {
						return nil, fmt.Errorf("constructor %s: %s annotates parameter %d beyond descriptor", desc, attr, j)
					}
				}
				params = params[:n]
			}
			for len(params) < n {
				params = append(params, nil)
			}
			m.Attributes[i] = &classfile.Attribute{Name: a.Name, Info: classfile.EncodeParameterAnnotations(params)}
			changed = true
		}
	}
	if !changed {
		return data, nil
	}
	return cf.Bytes()
}
