package classfile

import (
	"fmt"
	"strings"
)

// ParamCount returns the number of parameters declared by a method descriptor.
func ParamCount(desc string) (int, error) {
	if !strings.HasPrefix(desc, "(") {
		return 0, fmt.Errorf("method descriptor %q does not start with '('", desc)
	}
	n := 0
	i := 1
	for i < len(desc) && desc[i] != ')' {
		end, err := skipType(desc, i)
		if err != nil {
			return 0, err
		}
		i = end
		n++
	}
	if i >= len(desc) {
		return 0, fmt.Errorf("method descriptor %q is unterminated", desc)
	}
	if _, err := skipType(desc, i+1); err != nil && desc[i+1:] != "V" {
		return 0, err
	}
	return n, nil
}

func skipType(desc string, i int) (int, error) {
	for i < len(desc) && desc[i] == '[' {
		i++
	}
	if i >= len(desc) {
		return 0, fmt.Errorf("descriptor %q ends inside a type", desc)
	}
	switch desc[i] {
	case 'B', 'C', 'D', 'F', 'I', 'J', 'S', 'Z':
		return i + 1, nil
	case 'L':
		end := strings.IndexByte(desc[i:], ';')
		if end < 0 {
			return 0, fmt.Errorf("descriptor %q has unterminated class type", desc)
		}
		return i + end + 1, nil
	}
	return 0, fmt.Errorf("descriptor %q has bad type char %q at %d", desc, desc[i], i)
}

// MapDescriptor rewrites every class type inside a field or method
// descriptor through fn. Malformed input is returned unchanged.
func MapDescriptor(desc string, fn func(internalName string) string) string {
	if !strings.ContainsRune(desc, 'L') {
		return desc
	}
	var b strings.Builder
	b.Grow(len(desc))
	for i := 0; i < len(desc); {
		c := desc[i]
		if c != 'L' {
			b.WriteByte(c)
			i++
			continue
		}
		end := strings.IndexByte(desc[i:], ';')
		if end < 0 {
			return desc
		}
		b.WriteByte('L')
		b.WriteString(fn(desc[i+1 : i+end]))
		b.WriteByte(';')
		i += end + 1
	}
	return b.String()
}
