// Package jarmerge combines a client and a server archive into one.
//
// Entries present on both sides with equal bytes are copied once. Classes
// that differ are merged member by member: shared members must be identical
// after constant pool normalization, one-side members are carried over with
// an Environment marker. Entries found on one side only keep a side marker on
// the entry, and classes additionally get the marker annotation.
package jarmerge

import (
	"bytes"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"jarforge/internal/classfile"
	"jarforge/internal/rewrite"
	"jarforge/internal/ziputil"
)

// UnmergeableMemberError reports a member present on both sides whose
// content differs.
type UnmergeableMemberError struct {
	Class  string
	Member string
	Desc   string
	Diff   string
}

func (e *UnmergeableMemberError) Error() string {
	return fmt.Sprintf("cannot merge %s.%s%s: client and server versions differ\n%s", e.Class, e.Member, e.Desc, e.Diff)
}

// Merger merges client and server archives.
type Merger struct {
	// SyntheticParamsOffset aligns constructor parameter annotation tables of
	// enums and inner classes before members are compared.
	SyntheticParamsOffset bool
	// DiffMaxBytes caps the member dump diff in UnmergeableMemberError.
	DiffMaxBytes int
	Logger       *zap.Logger
}

// Stats summarizes one Merge call.
type Stats struct {
	Identical  int
	Merged     int
	ClientOnly int
	ServerOnly int
	Conflicts  int
}

func (m *Merger) log() *zap.Logger {
	if m.Logger == nil {
		return zap.NewNop()
	}
	return m.Logger
}

// MergeFiles merges the archives at clientPath and serverPath into outPath.
func (m *Merger) MergeFiles(clientPath, serverPath, outPath string) error {
	client, err := ziputil.Open(clientPath)
	if err != nil {
		return err
	}
	server, err := ziputil.Open(serverPath)
	if err != nil {
		return err
	}
	merged, _, err := m.Merge(client, server)
	if err != nil {
		return err
	}
	return merged.WriteFile(outPath)
}

// Merge returns the merged archive. Neither input is modified.
func (m *Merger) Merge(client, server *ziputil.Archive) (*ziputil.Archive, Stats, error) {
	log := m.log()
	out := ziputil.New()
	var st Stats
	err := ziputil.WalkPair(client, server, func(p string, c, s *ziputil.Entry) error {
		switch {
		case c != nil && s != nil:
			if bytes.Equal(c.Data, s.Data) {
				out.Put(&ziputil.Entry{Name: p, Data: c.Data, Comment: c.Comment})
				st.Identical++
				return nil
			}
			if !c.IsClass() {
				log.Warn("resource differs between sides, keeping client copy", zap.String("path", p))
				out.Put(&ziputil.Entry{Name: p, Data: c.Data, Comment: c.Comment})
				st.Conflicts++
				return nil
			}
			data, err := m.MergeClass(c.Data, s.Data)
			if err != nil {
				return entryError(p, err)
			}
			out.Put(&ziputil.Entry{Name: p, Data: data, Comment: c.Comment})
			st.Merged++
		case c != nil:
			e, err := sideOnly(c, ziputil.SideClient)
			if err != nil {
				return err
			}
			out.Put(e)
			st.ClientOnly++
		default:
			e, err := sideOnly(s, ziputil.SideServer)
			if err != nil {
				return err
			}
			out.Put(e)
			st.ServerOnly++
		}
		return nil
	})
	if err != nil {
		return nil, Stats{}, err
	}
	log.Info("merged archives",
		zap.Int("identical", st.Identical),
		zap.Int("merged", st.Merged),
		zap.Int("client_only", st.ClientOnly),
		zap.Int("server_only", st.ServerOnly),
		zap.Int("resource_conflicts", st.Conflicts))
	return out, st, nil
}

// entryError attaches the entry path. Malformed classes carry it in the
// error type, anything else gets it as a prefix.
func entryError(p string, err error) error {
	var mce *classfile.MalformedClassError
	if errors.As(err, &mce) {
		return classfile.WithPath(p, err)
	}
	return fmt.Errorf("%s: %w", p, err)
}

func sideOnly(e *ziputil.Entry, side ziputil.Side) (*ziputil.Entry, error) {
	out := &ziputil.Entry{Name: e.Name, Data: e.Data, Side: side, Comment: e.Comment}
	if !e.IsClass() {
		return out, nil
	}
	cf, err := classfile.Parse(e.Data)
	if err != nil {
		return nil, classfile.WithPath(e.Name, err)
	}
	if cf.Attributes, err = addEnvironment(cf, cf.Attributes, side); err != nil {
		return nil, classfile.WithPath(e.Name, err)
	}
	if out.Data, err = cf.Bytes(); err != nil {
		return nil, classfile.WithPath(e.Name, err)
	}
	return out, nil
}

func envTypeConst(side ziputil.Side) string {
	if side == ziputil.SideServer {
		return "SERVER"
	}
	return "CLIENT"
}

func envValue(cf *classfile.ClassFile, side ziputil.Side) (classfile.ElementValue, error) {
	t, err := cf.Pool.AddUtf8(rewrite.EnvTypeDesc)
	if err != nil {
		return classfile.ElementValue{}, err
	}
	c, err := cf.Pool.AddUtf8(envTypeConst(side))
	if err != nil {
		return classfile.ElementValue{}, err
	}
	return classfile.ElementValue{Tag: 'e', EnumType: t, EnumConst: c}, nil
}

// addEnvironment appends @Environment(EnvType.<side>) to the visible
// annotations in attrs.
func addEnvironment(cf *classfile.ClassFile, attrs []*classfile.Attribute, side ziputil.Side) ([]*classfile.Attribute, error) {
	typ, err := cf.Pool.AddUtf8(rewrite.EnvironmentDesc)
	if err != nil {
		return nil, err
	}
	name, err := cf.Pool.AddUtf8("value")
	if err != nil {
		return nil, err
	}
	v, err := envValue(cf, side)
	if err != nil {
		return nil, err
	}
	ann := classfile.Annotation{Type: typ, Elements: []classfile.ElementPair{{Name: name, Value: v}}}
	return appendVisible(cf, attrs, ann)
}

func appendVisible(cf *classfile.ClassFile, attrs []*classfile.Attribute, ann classfile.Annotation) ([]*classfile.Attribute, error) {
	var list []classfile.Annotation
	if _, a := cf.FindAttribute(attrs, classfile.AttrRuntimeVisibleAnnotations); a != nil {
		var err error
		if list, err = classfile.ParseAnnotations(a.Info); err != nil {
			return nil, err
		}
	}
	list = append(list, ann)
	return cf.SetAttribute(attrs, classfile.AttrRuntimeVisibleAnnotations, classfile.EncodeAnnotations(list))
}
