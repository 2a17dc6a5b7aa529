package jarmerge

import (
	"fmt"

	"jarforge/internal/classfile"
	"jarforge/internal/diff"
	"jarforge/internal/rewrite"
	"jarforge/internal/ziputil"
)

// MergeClass merges the client and server versions of one class. The client
// class is the base; server-only members, interfaces and inner class entries
// are imported into it.
func (m *Merger) MergeClass(clientData, serverData []byte) ([]byte, error) {
	cc, err := classfile.Parse(clientData)
	if err != nil {
		return nil, err
	}
	sc, err := classfile.Parse(serverData)
	if err != nil {
		return nil, err
	}
	if cc.Name() != sc.Name() {
		return nil, fmt.Errorf("client class %s and server class %s share a path", cc.Name(), sc.Name())
	}
	if m.SyntheticParamsOffset {
		if err := alignConstructorParams(cc); err != nil {
			return nil, err
		}
		if err := alignConstructorParams(sc); err != nil {
			return nil, err
		}
	}

	im := classfile.NewImporter(cc, sc)
	sided, err := mergeInterfaces(cc, sc)
	if err != nil {
		return nil, err
	}
	if cc.Fields, err = m.mergeMembers(cc, sc, im, cc.Fields, sc.Fields); err != nil {
		return nil, err
	}
	if cc.Methods, err = m.mergeMembers(cc, sc, im, cc.Methods, sc.Methods); err != nil {
		return nil, err
	}
	if err := mergeInnerClasses(cc, sc, im); err != nil {
		return nil, err
	}
	if len(sided) > 0 {
		if cc.Attributes, err = addEnvironmentInterfaces(cc, sided); err != nil {
			return nil, err
		}
	}
	if err := im.Finish(); err != nil {
		return nil, err
	}
	return cc.Bytes()
}

func memberKey(cf *classfile.ClassFile, m *classfile.Member) (string, error) {
	name, desc, err := cf.MemberName(m)
	if err != nil {
		return "", err
	}
	return name + desc, nil
}

// mergeMembers keeps client order and slots server-only members in before
// the next shared member that follows them on the server side.
func (m *Merger) mergeMembers(cc, sc *classfile.ClassFile, im *classfile.Importer, client, server []*classfile.Member) ([]*classfile.Member, error) {
	clientKeys := make(map[string]bool, len(client))
	for _, c := range client {
		k, err := memberKey(cc, c)
		if err != nil {
			return nil, err
		}
		clientKeys[k] = true
	}
	serverKeys := make([]string, len(server))
	serverPos := make(map[string]int, len(server))
	for i, s := range server {
		k, err := memberKey(sc, s)
		if err != nil {
			return nil, err
		}
		serverKeys[i] = k
		serverPos[k] = i
	}

	out := make([]*classfile.Member, 0, len(client)+len(server))
	j := 0
	serverOnlyUpTo := func(limit int) error {
		for ; j < limit; j++ {
			if clientKeys[serverKeys[j]] {
				continue
			}
			imported, err := im.Member(server[j])
			if err != nil {
				return err
			}
			if imported.Attributes, err = addEnvironment(cc, imported.Attributes, ziputil.SideServer); err != nil {
				return err
			}
			out = append(out, imported)
		}
		return nil
	}

	for _, c := range client {
		k, _ := memberKey(cc, c)
		pos, shared := serverPos[k]
		if !shared {
			attrs, err := addEnvironment(cc, c.Attributes, ziputil.SideClient)
			if err != nil {
				return nil, err
			}
			c.Attributes = attrs
			out = append(out, c)
			continue
		}
		if err := serverOnlyUpTo(pos); err != nil {
			return nil, err
		}
		if j <= pos {
			j = pos + 1
		}
		if err := m.compare(cc, sc, c, server[pos]); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	if err := serverOnlyUpTo(len(server)); err != nil {
		return nil, err
	}
	return out, nil
}

func (m *Merger) compare(cc, sc *classfile.ClassFile, c, s *classfile.Member) error {
	fc, err := classfile.Fingerprint(cc, c)
	if err != nil {
		return err
	}
	fs, err := classfile.Fingerprint(sc, s)
	if err != nil {
		return err
	}
	if fc == fs {
		return nil
	}
	name, desc, _ := cc.MemberName(c)
	dc, err := classfile.Dump(cc, c)
	if err != nil {
		return err
	}
	ds, err := classfile.Dump(sc, s)
	if err != nil {
		return err
	}
	body, _ := diff.Unified("client/"+cc.Name(), "server/"+sc.Name(), dc, ds, diff.Options{MaxBytes: m.DiffMaxBytes})
	return &UnmergeableMemberError{Class: cc.Name(), Member: name, Desc: desc, Diff: body}
}

type sidedInterface struct {
	name string
	side ziputil.Side
}

// mergeInterfaces unions the interface lists and returns the interfaces
// implemented on one side only.
func mergeInterfaces(cc, sc *classfile.ClassFile) ([]sidedInterface, error) {
	ci, err := cc.InterfaceNames()
	if err != nil {
		return nil, err
	}
	si, err := sc.InterfaceNames()
	if err != nil {
		return nil, err
	}
	inServer := make(map[string]bool, len(si))
	for _, n := range si {
		inServer[n] = true
	}
	inClient := make(map[string]bool, len(ci))
	var sided []sidedInterface
	for _, n := range ci {
		inClient[n] = true
		if !inServer[n] {
			sided = append(sided, sidedInterface{n, ziputil.SideClient})
		}
	}
	for _, n := range si {
		if inClient[n] {
			continue
		}
		idx, err := cc.Pool.AddClass(n)
		if err != nil {
			return nil, err
		}
		cc.Interfaces = append(cc.Interfaces, idx)
		sided = append(sided, sidedInterface{n, ziputil.SideServer})
	}
	return sided, nil
}

// stickyPool interns constants and remembers the first failure.
type stickyPool struct {
	cf  *classfile.ClassFile
	err error
}

func (p *stickyPool) utf8(s string) uint16 {
	if p.err != nil {
		return 0
	}
	i, err := p.cf.Pool.AddUtf8(s)
	p.err = err
	return i
}

// addEnvironmentInterfaces records one-side interfaces as
// @EnvironmentInterfaces({@EnvironmentInterface(value=..., itf=...)}).
func addEnvironmentInterfaces(cf *classfile.ClassFile, sided []sidedInterface) ([]*classfile.Attribute, error) {
	p := &stickyPool{cf: cf}
	items := make([]classfile.ElementValue, 0, len(sided))
	for _, s := range sided {
		v, err := envValue(cf, s.side)
		if err != nil {
			return nil, err
		}
		inner := &classfile.Annotation{
			Type: p.utf8(rewrite.EnvironmentInterfaceDesc),
			Elements: []classfile.ElementPair{
				{Name: p.utf8("value"), Value: v},
				{Name: p.utf8("itf"), Value: classfile.ElementValue{Tag: 'c', Const: p.utf8("L" + s.name + ";")}},
			},
		}
		items = append(items, classfile.ElementValue{Tag: '@', Annotation: inner})
	}
	ann := classfile.Annotation{
		Type:     p.utf8(rewrite.EnvironmentInterfacesDesc),
		Elements: []classfile.ElementPair{{Name: p.utf8("value"), Value: classfile.ElementValue{Tag: '[', Array: items}}},
	}
	if p.err != nil {
		return nil, p.err
	}
	return appendVisible(cf, cf.Attributes, ann)
}

// mergeInnerClasses adds server InnerClasses entries whose inner class the
// client does not list.
func mergeInnerClasses(cc, sc *classfile.ClassFile, im *classfile.Importer) error {
	_, sa := sc.FindAttribute(sc.Attributes, classfile.AttrInnerClasses)
	if sa == nil {
		return nil
	}
	serverList, err := classfile.ParseInnerClasses(sa.Info)
	if err != nil {
		return err
	}
	var clientList []classfile.InnerClass
	if _, ca := cc.FindAttribute(cc.Attributes, classfile.AttrInnerClasses); ca != nil {
		if clientList, err = classfile.ParseInnerClasses(ca.Info); err != nil {
			return err
		}
	}
	known := make(map[string]bool, len(clientList))
	for _, ic := range clientList {
		n, err := cc.Pool.ClassName(ic.Inner)
		if err != nil {
			return err
		}
		known[n] = true
	}
	added := false
	for _, ic := range serverList {
		n, err := sc.Pool.ClassName(ic.Inner)
		if err != nil {
			return err
		}
		if known[n] {
			continue
		}
		e := classfile.InnerClass{Access: ic.Access}
		if e.Inner, err = im.Constant(ic.Inner); err != nil {
			return err
		}
		if e.Outer, err = im.Constant(ic.Outer); err != nil {
			return err
		}
		if e.Name, err = im.Constant(ic.Name); err != nil {
			return err
		}
		clientList = append(clientList, e)
		known[n] = true
		added = true
	}
	if !added {
		return nil
	}
	cc.Attributes, err = cc.SetAttribute(cc.Attributes, classfile.AttrInnerClasses, classfile.EncodeInnerClasses(clientList))
	return err
}
