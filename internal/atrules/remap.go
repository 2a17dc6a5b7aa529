package atrules

import "fmt"

// SymbolMap translates qualified names between two naming schemes. Lookup
// of a class passes a name with only Class set; fields have no descriptor.
// Constructors and static initializers are looked up by their special names
// and come back with the class and descriptor translated.
type SymbolMap interface {
	Lookup(q QualifiedName) (QualifiedName, bool)
}

// UnknownSymbolError reports a rule target missing from the symbol map.
type UnknownSymbolError struct {
	Symbol QualifiedName
}

func (e *UnknownSymbolError) Error() string {
	return fmt.Sprintf("symbol %s is not in the mapping table", e.Symbol)
}

// Remap returns a copy of s with every target translated through m. Order,
// modifiers and comments are kept.
func Remap(s *Set, m SymbolMap) (*Set, error) {
	out := &Set{Rules: make([]Rule, 0, len(s.Rules))}
	for _, r := range s.Rules {
		q := r.Target
		if r.Kind != KindField && r.Kind != KindMethod {
			q = QualifiedName{Class: r.Target.Class}
		}
		mapped, ok := m.Lookup(q)
		if !ok {
			return nil, &UnknownSymbolError{Symbol: q}
		}
		r.Target = mapped
		out.Rules = append(out.Rules, r)
	}
	return out, nil
}
