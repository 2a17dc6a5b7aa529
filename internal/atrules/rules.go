// Package atrules reads, remaps and applies access-transformer rule files.
//
// The format is the FML one, a rule per line:
//
//	public net.minecraft.item.Item field_77777_bU # maxStackSize
//	protected-f net.minecraft.client.Minecraft func_71407_l()V
//	public net.minecraft.world.World *
//	public net.minecraft.world.World *()
//	public net.minecraft.block.Block
//
// Class names are written with dots; inside a Set they are kept in internal
// form (slashes). Comment lines and blank lines are not retained.
package atrules

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"jarforge/internal/textutil"
)

// Access is the requested visibility.
type Access int

const (
	Public Access = iota
	Protected
	Default
	Private
)

var accessTokens = [...]string{"public", "protected", "default", "private"}

func (a Access) String() string {
	if a < 0 || int(a) >= len(accessTokens) {
		return fmt.Sprintf("access(%d)", int(a))
	}
	return accessTokens[a]
}

// Final is the requested change to the final modifier.
type Final int

const (
	FinalKeep Final = iota
	FinalRemove
	FinalAdd
)

// Kind says what a rule targets.
type Kind int

const (
	KindClass Kind = iota
	KindField
	KindMethod
	KindAllFields
	KindAllMethods
)

// QualifiedName names a class (Name empty), a field (Desc empty) or a
// method, all in internal form.
type QualifiedName struct {
	Class string
	Name  string
	Desc  string
}

func (q QualifiedName) String() string {
	if q.Name == "" {
		return q.Class
	}
	return q.Class + "." + q.Name + q.Desc
}

// Rule is one line of a rule file.
type Rule struct {
	Access  Access
	Final   Final
	Target  QualifiedName
	Kind    Kind
	Comment string
}

// Modifier renders the access token with its final suffix.
func (r Rule) Modifier() string {
	switch r.Final {
	case FinalRemove:
		return r.Access.String() + "-f"
	case FinalAdd:
		return r.Access.String() + "+f"
	}
	return r.Access.String()
}

func (r Rule) String() string {
	var b strings.Builder
	b.WriteString(r.Modifier())
	b.WriteByte(' ')
	b.WriteString(strings.ReplaceAll(r.Target.Class, "/", "."))
	switch r.Kind {
	case KindAllFields:
		b.WriteString(" *")
	case KindAllMethods:
		b.WriteString(" *()")
	case KindField, KindMethod:
		b.WriteByte(' ')
		b.WriteString(r.Target.Name)
		b.WriteString(r.Target.Desc)
	}
	if r.Comment != "" {
		b.WriteString(" # ")
		b.WriteString(r.Comment)
	}
	return b.String()
}

// Set is an ordered rule list.
type Set struct {
	Rules []Rule
}

// Len returns the number of rules.
func (s *Set) Len() int { return len(s.Rules) }

// ParseError reports a line that is not a valid rule.
type ParseError struct {
	Line int
	Text string
	Msg  string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("access transformer line %d: %s: %q", e.Line, e.Msg, e.Text)
}

// Parse reads a rule file.
func Parse(r io.Reader) (*Set, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	s := &Set{}
	for i, line := range textutil.Lines(data) {
		body, comment := textutil.SplitComment(line, "#")
		if body == "" {
			continue
		}
		rule, msg := parseRule(body)
		if msg != "" {
			return nil, &ParseError{Line: i + 1, Text: line, Msg: msg}
		}
		rule.Comment = comment
		s.Rules = append(s.Rules, rule)
	}
	return s, nil
}

// ParseString is Parse over a string.
func ParseString(s string) (*Set, error) {
	return Parse(strings.NewReader(s))
}

func parseRule(body string) (Rule, string) {
	fields := strings.Fields(body)
	if len(fields) < 2 || len(fields) > 3 {
		return Rule{}, "expected <access> <class> [member]"
	}
	var r Rule
	mod := fields[0]
	switch {
	case strings.HasSuffix(mod, "-f"):
		r.Final = FinalRemove
		mod = strings.TrimSuffix(mod, "-f")
	case strings.HasSuffix(mod, "+f"):
		r.Final = FinalAdd
		mod = strings.TrimSuffix(mod, "+f")
	}
	found := false
	for i, tok := range accessTokens {
		if mod == tok {
			r.Access, found = Access(i), true
			break
		}
	}
	if !found {
		return Rule{}, "unknown access modifier " + fields[0]
	}
	r.Target.Class = strings.ReplaceAll(fields[1], ".", "/")
	if len(fields) == 2 {
		r.Kind = KindClass
		return r, ""
	}
	member := fields[2]
	switch {
	case member == "*":
		r.Kind = KindAllFields
	case member == "*()":
		r.Kind = KindAllMethods
	case strings.Contains(member, "("):
		i := strings.IndexByte(member, '(')
		if i == 0 || !strings.Contains(member[i:], ")") {
			return Rule{}, "malformed method " + member
		}
		r.Kind = KindMethod
		r.Target.Name, r.Target.Desc = member[:i], member[i:]
	default:
		r.Kind = KindField
		r.Target.Name = member
	}
	return r, ""
}

// WriteTo serializes s in rule order.
func (s *Set) WriteTo(w io.Writer) (int64, error) {
	bw := bufio.NewWriter(w)
	var n int64
	for _, r := range s.Rules {
		k, err := bw.WriteString(r.String() + "\n")
		n += int64(k)
		if err != nil {
			return n, err
		}
	}
	return n, bw.Flush()
}

// String returns the serialized rule file.
func (s *Set) String() string {
	var b strings.Builder
	_, _ = s.WriteTo(&b)
	return b.String()
}
