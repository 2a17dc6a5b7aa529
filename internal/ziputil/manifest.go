package ziputil

import (
	"bytes"
	"fmt"
	"path"
	"strings"

	"jarforge/internal/textutil"
)

const manifestLineLimit = 72

// Attribute is one manifest header.
type Attribute struct {
	Key, Value string
}

// Section is a per-entry manifest section introduced by "Name:".
type Section struct {
	Name  string
	Attrs []Attribute
}

// Manifest is a parsed JAR manifest. Attribute order is preserved.
type Manifest struct {
	Main     []Attribute
	Sections []Section
}

// ParseManifest decodes manifest bytes. Continuation lines (leading single
// space) are joined to the previous header.
func ParseManifest(data []byte) (*Manifest, error) {
	m := &Manifest{}
	inMain := true
	var pending []Attribute
	flush := func() {
		if !inMain && len(pending) > 0 {
			name := ""
			var attrs []Attribute
			for _, a := range pending {
				if strings.EqualFold(a.Key, "Name") && name == "" {
					name = a.Value
					continue
				}
				attrs = append(attrs, a)
			}
			m.Sections = append(m.Sections, Section{Name: name, Attrs: attrs})
		}
		pending = nil
	}
	for i, line := range textutil.Lines(data) {
		if line == "" {
			if inMain {
				inMain = false
			} else {
				flush()
			}
			continue
		}
		target := &m.Main
		if !inMain {
			target = &pending
		}
		if strings.HasPrefix(line, " ") {
			if len(*target) == 0 {
				return nil, fmt.Errorf("manifest line %d: continuation without header", i+1)
			}
			(*target)[len(*target)-1].Value += line[1:]
			continue
		}
		k, v, ok := strings.Cut(line, ":")
		if !ok || k == "" {
			return nil, fmt.Errorf("manifest line %d: missing ':'", i+1)
		}
		*target = append(*target, Attribute{Key: k, Value: strings.TrimPrefix(v, " ")})
	}
	flush()
	return m, nil
}

// Get returns a main attribute.
func (m *Manifest) Get(key string) (string, bool) {
	for _, a := range m.Main {
		if strings.EqualFold(a.Key, key) {
			return a.Value, true
		}
	}
	return "", false
}

// Set replaces or appends a main attribute.
func (m *Manifest) Set(key, value string) {
	for i, a := range m.Main {
		if strings.EqualFold(a.Key, key) {
			m.Main[i].Value = value
			return
		}
	}
	m.Main = append(m.Main, Attribute{Key: key, Value: value})
}

// Bytes encodes the manifest with CRLF line endings and 72-byte lines.
func (m *Manifest) Bytes() []byte {
	var b bytes.Buffer
	main := m.Main
	if _, ok := m.Get("Manifest-Version"); !ok {
		main = append([]Attribute{{Key: "Manifest-Version", Value: "1.0"}}, main...)
	}
	for _, a := range main {
		writeHeader(&b, a.Key, a.Value)
	}
	b.WriteString("\r\n")
	for _, s := range m.Sections {
		writeHeader(&b, "Name", s.Name)
		for _, a := range s.Attrs {
			writeHeader(&b, a.Key, a.Value)
		}
		b.WriteString("\r\n")
	}
	return b.Bytes()
}

func writeHeader(b *bytes.Buffer, key, value string) {
	line := key + ": " + value
	first := true
	for len(line) > 0 {
		limit := manifestLineLimit
		if !first {
			limit--
			b.WriteByte(' ')
		}
		n := min(limit, len(line))
		b.WriteString(line[:n])
		b.WriteString("\r\n")
		line = line[n:]
		first = false
	}
}

// Manifest returns the parsed manifest entry, or an empty manifest when the
// archive has none.
func (a *Archive) Manifest() (*Manifest, error) {
	e, ok := a.Get(ManifestPath)
	if !ok {
		return &Manifest{}, nil
	}
	return ParseManifest(e.Data)
}

// SetManifest stores m as the manifest entry.
func (a *Archive) SetManifest(m *Manifest) {
	a.Put(&Entry{Name: ManifestPath, Data: m.Bytes()})
}

// IsSignatureFile reports whether p is JAR signing metadata.
func IsSignatureFile(p string) bool {
	dir, base := path.Split(p)
	if dir != "META-INF/" {
		return false
	}
	upper := strings.ToUpper(base)
	if strings.HasPrefix(upper, "SIG-") {
		return true
	}
	switch path.Ext(upper) {
	case ".SF", ".DSA", ".RSA", ".EC":
		return true
	}
	return false
}

// StripSignatures removes signing metadata and per-entry digest attributes
// so a modified archive does not fail verification. It returns the number of
// removed signature files.
func StripSignatures(a *Archive) (int, error) {
	n := 0
	for _, p := range a.Paths() {
		if IsSignatureFile(p) {
			a.Delete(p)
			n++
		}
	}
	if _, ok := a.Get(ManifestPath); !ok {
		return n, nil
	}
	m, err := a.Manifest()
	if err != nil {
		return n, err
	}
	var kept []Section
	for _, s := range m.Sections {
		var attrs []Attribute
		for _, at := range s.Attrs {
			if strings.HasSuffix(strings.ToLower(at.Key), "-digest") || strings.EqualFold(at.Key, "Magic") {
				continue
			}
			attrs = append(attrs, at)
		}
		if len(attrs) > 0 {
			kept = append(kept, Section{Name: s.Name, Attrs: attrs})
		}
	}
	m.Sections = kept
	a.SetManifest(m)
	return n, nil
}
