package mapping

import (
	lru "github.com/hashicorp/golang-lru/v2"

	"jarforge/internal/atrules"
	"jarforge/internal/classfile"
)

const descCacheSize = 4096

// Table translates names from one namespace of a Tree to another. It
// implements atrules.SymbolMap and is safe for concurrent use.
type Table struct {
	From, To string

	classes map[string]string
	fields  map[string]string // owner.name
	methods map[string]string // owner.name+desc
	descs   *lru.Cache[string, string]
}

var _ atrules.SymbolMap = (*Table)(nil)

// Table builds the from → to table. Member descriptors are keyed in the
// from namespace.
func (t *Tree) Table(from, to string) (*Table, error) {
	fi, err := t.Namespace(from)
	if err != nil {
		return nil, err
	}
	ti, err := t.Namespace(to)
	if err != nil {
		return nil, err
	}
	cache, err := lru.New[string, string](descCacheSize)
	if err != nil {
		return nil, err
	}
	tab := &Table{
		From:    from,
		To:      to,
		classes: make(map[string]string, len(t.Classes)),
		fields:  make(map[string]string),
		methods: make(map[string]string),
		descs:   cache,
	}
	// descriptors are stored in the first namespace
	first := make(map[string]string, len(t.Classes))
	for _, c := range t.Classes {
		tab.classes[name(c.Names, fi)] = name(c.Names, ti)
		first[c.Names[0]] = name(c.Names, fi)
	}
	toFrom := func(n string) string {
		if v, ok := first[n]; ok {
			return v
		}
		return n
	}
	for _, c := range t.Classes {
		owner := name(c.Names, fi)
		for _, f := range c.Fields {
			tab.fields[owner+"."+name(f.Names, fi)] = name(f.Names, ti)
		}
		for _, m := range c.Methods {
			desc := m.Desc
			if fi != 0 {
				desc = classfile.MapDescriptor(desc, toFrom)
			}
			tab.methods[owner+"."+name(m.Names, fi)+desc] = name(m.Names, ti)
		}
	}
	return tab, nil
}

// Classes returns the number of classes in the table.
func (t *Table) Classes() int { return len(t.classes) }

func (t *Table) class(n string) string {
	if v, ok := t.classes[n]; ok {
		return v
	}
	return n
}

// Descriptor maps every class type in desc. Unknown classes pass through.
func (t *Table) Descriptor(desc string) string {
	if v, ok := t.descs.Get(desc); ok {
		return v
	}
	out := classfile.MapDescriptor(desc, t.class)
	t.descs.Add(desc, out)
	return out
}

// Lookup implements atrules.SymbolMap.
func (t *Table) Lookup(q atrules.QualifiedName) (atrules.QualifiedName, bool) {
	owner, ok := t.classes[q.Class]
	if !ok {
		return atrules.QualifiedName{}, false
	}
	out := atrules.QualifiedName{Class: owner}
	switch {
	case q.Name == "":
		return out, true
	case q.Name == "<init>" || q.Name == "<clinit>":
		out.Name, out.Desc = q.Name, t.Descriptor(q.Desc)
		return out, true
	case q.Desc == "":
		n, ok := t.fields[q.Class+"."+q.Name]
		if !ok {
			return atrules.QualifiedName{}, false
		}
		out.Name = n
		return out, true
	}
	n, ok := t.methods[q.Class+"."+q.Name+q.Desc]
	if !ok {
		return atrules.QualifiedName{}, false
	}
	out.Name, out.Desc = n, t.Descriptor(q.Desc)
	return out, true
}

// Identity maps every name to itself.
type Identity struct{}

// Lookup implements atrules.SymbolMap.
func (Identity) Lookup(q atrules.QualifiedName) (atrules.QualifiedName, bool) {
	return q, true
}
