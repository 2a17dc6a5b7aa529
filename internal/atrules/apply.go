package atrules

import (
	"strings"

	"jarforge/internal/classfile"
)

const visibilityMask = classfile.AccPublic | classfile.AccPrivate | classfile.AccProtected

func (a Access) flag() uint16 {
	switch a {
	case Public:
		return classfile.AccPublic
	case Protected:
		return classfile.AccProtected
	case Private:
		return classfile.AccPrivate
	}
	return 0
}

// rank orders visibilities from private (0) to public (3).
func rank(flag uint16) int {
	switch flag {
	case classfile.AccPrivate:
		return 0
	case 0:
		return 1
	case classfile.AccProtected:
		return 2
	}
	return 3
}

// memberAccess widens flags toward r. Visibility is never narrowed; the final
// bit is set or cleared as requested.
func (r Rule) memberAccess(flags uint16) uint16 {
	cur := flags & visibilityMask
	want := r.Access.flag()
	out := flags
	if rank(want) > rank(cur) {
		out = out&^visibilityMask | want
	}
	switch r.Final {
	case FinalAdd:
		out |= classfile.AccFinal
	case FinalRemove:
		out &^= classfile.AccFinal
	}
	return out
}

// classAccess is memberAccess for class flags, where only public and package
// visibility exist. Protected requests make a class public.
func (r Rule) classAccess(flags uint16) uint16 {
	cr := r
	if cr.Access == Protected {
		cr.Access = Public
	}
	return cr.memberAccess(flags)
}

type classRules struct {
	class   []Rule
	fields  map[string][]Rule
	methods map[string][]Rule
	all     []Rule
}

// Applier applies a rule set to class files. It is safe for concurrent use.
type Applier struct {
	byClass map[string]*classRules
}

// NewApplier indexes s by class.
func NewApplier(s *Set) *Applier {
	a := &Applier{byClass: make(map[string]*classRules)}
	for _, r := range s.Rules {
		cr := a.byClass[r.Target.Class]
		if cr == nil {
			cr = &classRules{fields: map[string][]Rule{}, methods: map[string][]Rule{}}
			a.byClass[r.Target.Class] = cr
		}
		switch r.Kind {
		case KindClass:
			cr.class = append(cr.class, r)
		case KindField:
			cr.fields[r.Target.Name] = append(cr.fields[r.Target.Name], r)
		case KindMethod:
			k := r.Target.Name + r.Target.Desc
			cr.methods[k] = append(cr.methods[k], r)
		default:
			cr.all = append(cr.all, r)
		}
	}
	return a
}

// Classes returns the number of classes with at least one rule.
func (a *Applier) Classes() int { return len(a.byClass) }

// Transform rewrites the access flags of the class at path. Classes without
// rules are returned as is.
func (a *Applier) Transform(path string, data []byte) ([]byte, error) {
	cr := a.byClass[strings.TrimSuffix(path, ".class")]
	if cr == nil {
		return data, nil
	}
	cf, err := classfile.Parse(data)
	if err != nil {
		return nil, err
	}
	changed := false
	for _, r := range cr.class {
		if acc := r.classAccess(cf.Access); acc != cf.Access {
			cf.Access, changed = acc, true
		}
	}
	if len(cr.class) > 0 {
		ok, err := a.innerClassAccess(cf, cr.class)
		if err != nil {
			return nil, err
		}
		changed = changed || ok
	}
	for _, f := range cf.Fields {
		name, _, err := cf.MemberName(f)
		if err != nil {
			return nil, err
		}
		changed = applyMember(f, cr.fields[name], cr.all, KindAllFields) || changed
	}
	for _, m := range cf.Methods {
		name, desc, err := cf.MemberName(m)
		if err != nil {
			return nil, err
		}
		changed = applyMember(m, cr.methods[name+desc], cr.all, KindAllMethods) || changed
	}
	if !changed {
		return data, nil
	}
	return cf.Bytes()
}

func applyMember(m *classfile.Member, direct, wildcards []Rule, kind Kind) bool {
	acc := m.Access
	for _, r := range wildcards {
		if r.Kind == kind {
			acc = r.memberAccess(acc)
		}
	}
	for _, r := range direct {
		acc = r.memberAccess(acc)
	}
	if acc == m.Access {
		return false
	}
	m.Access = acc
	return true
}

// innerClassAccess mirrors class rules onto the InnerClasses entry that
// describes cf itself.
func (a *Applier) innerClassAccess(cf *classfile.ClassFile, rules []Rule) (bool, error) {
	i, attr := cf.FindAttribute(cf.Attributes, classfile.AttrInnerClasses)
	if attr == nil {
		return false, nil
	}
	list, err := classfile.ParseInnerClasses(attr.Info)
	if err != nil {
		return false, err
	}
	self := cf.Name()
	changed := false
	for j := range list {
		n, err := cf.Pool.ClassName(list[j].Inner)
		if err != nil {
			return false, err
		}
		if n != self {
			continue
		}
		acc := list[j].Access
		for _, r := range rules {
			acc = r.memberAccess(acc)
		}
		if acc != list[j].Access {
			list[j].Access, changed = acc, true
		}
	}
	if changed {
		cf.Attributes[i] = &classfile.Attribute{Name: attr.Name, Info: classfile.EncodeInnerClasses(list)}
	}
	return changed, nil
}
