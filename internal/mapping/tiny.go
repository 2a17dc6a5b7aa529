// Package mapping reads tiny v2 mapping files and exposes them as symbol
// tables between two of their namespaces.
//
// Only the parts needed to translate class, field and method names are kept;
// parameter, local variable and comment lines are skipped.
package mapping

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"
)

// Member is a field or method. Desc is in the first namespace.
type Member struct {
	Names []string
	Desc  string
}

// Class holds the names of one class and its members.
type Class struct {
	Names   []string
	Fields  []*Member
	Methods []*Member
}

// Tree is a parsed mapping file.
type Tree struct {
	Namespaces []string
	Classes    []*Class
}

// FormatError reports a line that does not follow the tiny v2 grammar.
type FormatError struct {
	Line int
	Msg  string
}

func (e *FormatError) Error() string {
	return fmt.Sprintf("tiny mappings line %d: %s", e.Line, e.Msg)
}

// Namespace returns the index of ns.
func (t *Tree) Namespace(ns string) (int, error) {
	for i, n := range t.Namespaces {
		if n == ns {
			return i, nil
		}
	}
	return -1, fmt.Errorf("namespace %q not in mappings %v", ns, t.Namespaces)
}

// name returns names[i], falling back to the first namespace when the
// column is empty.
func name(names []string, i int) string {
	if i < len(names) && names[i] != "" {
		return names[i]
	}
	return names[0]
}

// Load reads the tiny v2 file at path.
func Load(path string) (*Tree, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	t, err := ReadTiny(f)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return t, nil
}

// ReadTiny parses a tiny v2 file.
func ReadTiny(r io.Reader) (*Tree, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	if !sc.Scan() {
		if err := sc.Err(); err != nil {
			return nil, err
		}
		return nil, &FormatError{Line: 1, Msg: "empty file"}
	}
	header := strings.Split(strings.TrimRight(sc.Text(), "\r"), "\t")
	if len(header) < 5 || header[0] != "tiny" || header[1] != "2" {
		return nil, &FormatError{Line: 1, Msg: "not a tiny v2 header"}
	}
	t := &Tree{Namespaces: header[3:]}
	nsCount := len(t.Namespaces)
	escaped := false
	inHeader := true
	var cur *Class
	line := 1
	for sc.Scan() {
		line++
		text := strings.TrimRight(sc.Text(), "\r")
		if text == "" {
			continue
		}
		depth := 0
		for depth < len(text) && text[depth] == '\t' {
			depth++
		}
		cols := strings.Split(text[depth:], "\t")
		if inHeader && depth == 1 {
			if cols[0] == "escaped-names" {
				escaped = true
			}
			continue
		}
		inHeader = false
		names := func(from int) ([]string, error) {
			if len(cols) < from+nsCount {
				return nil, &FormatError{Line: line, Msg: fmt.Sprintf("want %d names, got %d columns", nsCount, len(cols))}
			}
			out := cols[from : from+nsCount]
			if escaped {
				for i, n := range out {
					out[i] = unescape(n)
				}
			}
			if out[0] == "" {
				return nil, &FormatError{Line: line, Msg: "empty name in first namespace"}
			}
			return out, nil
		}
		switch {
		case depth == 0 && cols[0] == "c":
			n, err := names(1)
			if err != nil {
				return nil, err
			}
			cur = &Class{Names: n}
			t.Classes = append(t.Classes, cur)
		case depth == 1 && (cols[0] == "f" || cols[0] == "m"):
			if cur == nil {
				return nil, &FormatError{Line: line, Msg: "member outside of a class"}
			}
			if len(cols) < 2 {
				return nil, &FormatError{Line: line, Msg: "missing descriptor"}
			}
			n, err := names(2)
			if err != nil {
				return nil, err
			}
			m := &Member{Names: n, Desc: cols[1]}
			if cols[0] == "f" {
				cur.Fields = append(cur.Fields, m)
			} else {
				cur.Methods = append(cur.Methods, m)
			}
		case depth == 0:
			return nil, &FormatError{Line: line, Msg: "unknown section " + cols[0]}
		}
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return t, nil
}

func unescape(s string) string {
	if !strings.Contains(s, `\`) {
		return s
	}
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c != '\\' || i+1 == len(s) {
			b.WriteByte(c)
			continue
		}
		i++
		switch s[i] {
		case 'n':
			b.WriteByte('\n')
		case 'r':
			b.WriteByte('\r')
		case 't':
			b.WriteByte('\t')
		case '0':
			b.WriteByte(0)
		default:
			b.WriteByte(s[i])
		}
	}
	return b.String()
}
