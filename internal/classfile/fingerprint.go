package classfile

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
)

// canonical imports m into an empty class so its constant references no
// longer depend on the layout of the pool it came from.
func canonical(cf *ClassFile, m *Member) (*ClassFile, *Member, error) {
	scratch := &ClassFile{Pool: NewPool()}
	im := NewImporter(scratch, cf)
	out, err := im.Member(m)
	if err != nil {
		return nil, nil, err
	}
	if err := im.Finish(); err != nil {
		return nil, nil, err
	}
	return scratch, out, nil
}

// Fingerprint returns a digest of m that is equal for two members exactly
// when their content matches after constant pool normalization.
func Fingerprint(cf *ClassFile, m *Member) (string, error) {
	scratch, cm, err := canonical(cf, m)
	if err != nil {
		return "", err
	}
	w := &writer{}
	scratch.Pool.write(w)
	writeMembers(w, []*Member{cm})
	writeAttributes(w, scratch.Attributes)
	sum := sha256.Sum256(w.Bytes())
	return hex.EncodeToString(sum[:]), nil
}

// Dump renders m as text for diagnostics: header, attributes with hex
// payloads, then the constants it references.
func Dump(cf *ClassFile, m *Member) (string, error) {
	scratch, cm, err := canonical(cf, m)
	if err != nil {
		return "", err
	}
	var b strings.Builder
	name, desc, _ := scratch.MemberName(cm)
	fmt.Fprintf(&b, "member %s %s access=%#04x\n", name, desc, cm.Access)
	dumpAttributes(&b, scratch, cm.Attributes, "")
	for _, a := range scratch.Attributes {
		fmt.Fprintf(&b, "class attribute %s\n", scratch.AttrName(a))
		dumpHex(&b, a.Info, "  ")
	}
	for i := 1; i < scratch.Pool.Count(); i++ {
		if c := scratch.Pool.entries[i]; c.Tag != 0 {
			fmt.Fprintf(&b, "#%d = %s\n", i, scratch.Pool.Describe(uint16(i)))
		}
	}
	return b.String(), nil
}

func dumpAttributes(b *strings.Builder, cf *ClassFile, attrs []*Attribute, indent string) {
	for _, a := range attrs {
		fmt.Fprintf(b, "%sattribute %s (%d bytes)\n", indent, cf.AttrName(a), len(a.Info))
		dumpHex(b, a.Info, indent+"  ")
	}
}

func dumpHex(b *strings.Builder, data []byte, indent string) {
	for off := 0; off < len(data); off += 16 {
		end := min(off+16, len(data))
		fmt.Fprintf(b, "%s%04x: %s\n", indent, off, hex.EncodeToString(data[off:end]))
	}
}
