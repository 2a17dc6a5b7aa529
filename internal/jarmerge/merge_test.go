package jarmerge

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"jarforge/internal/classfile"
	"jarforge/internal/classfile/classfiletest"
	"jarforge/internal/rewrite"
	"jarforge/internal/ziputil"
)

func archive(entries map[string][]byte) *ziputil.Archive {
	a := ziputil.New()
	for p, d := range entries {
		a.Put(&ziputil.Entry{Name: p, Data: d})
	}
	return a
}

// markers returns the resolved side annotation constants on attrs.
func markers(t *testing.T, cf *classfile.ClassFile, attrs []*classfile.Attribute) []string {
	t.Helper()
	_, a := cf.FindAttribute(attrs, classfile.AttrRuntimeVisibleAnnotations)
	if a == nil {
		return nil
	}
	list, err := classfile.ParseAnnotations(a.Info)
	require.NoError(t, err)
	var out []string
	for _, ann := range list {
		typ, _ := cf.Pool.Utf8(ann.Type)
		if typ != rewrite.EnvironmentDesc {
			continue
		}
		c, _ := cf.Pool.Utf8(ann.Elements[0].Value.EnumConst)
		out = append(out, c)
	}
	return out
}

func memberNames(t *testing.T, cf *classfile.ClassFile, ms []*classfile.Member) []string {
	t.Helper()
	var out []string
	for _, m := range ms {
		n, _, err := cf.MemberName(m)
		require.NoError(t, err)
		out = append(out, n)
	}
	return out
}

func TestMergeIdenticalArchivesHasNoMarkers(t *testing.T) {
	cls := classfiletest.Build(classfiletest.Class{Name: "a/A", Methods: []classfiletest.Member{{Name: "run", Desc: "()V"}}})
	entries := map[string][]byte{"a/A.class": cls, "common.txt": []byte("hi")}
	out, st, err := (&Merger{}).Merge(archive(entries), archive(entries))
	require.NoError(t, err)
	assert.Equal(t, Stats{Identical: 2}, st)
	for _, p := range out.Paths() {
		e, _ := out.Get(p)
		assert.Equal(t, ziputil.SideNone, e.Side, p)
		assert.Equal(t, entries[p], e.Data, p)
	}
}

func TestMergeOneSideEntries(t *testing.T) {
	a := classfiletest.Build(classfiletest.Class{Name: "A"})
	b := classfiletest.Build(classfiletest.Class{Name: "B"})
	client := archive(map[string][]byte{"A.class": a, "common.txt": []byte("same")})
	server := archive(map[string][]byte{"B.class": b, "common.txt": []byte("same"), "server.properties": []byte("x")})

	out, st, err := (&Merger{}).Merge(client, server)
	require.NoError(t, err)
	assert.Equal(t, Stats{Identical: 1, ClientOnly: 1, ServerOnly: 2}, st)
	assert.Equal(t, []string{"A.class", "B.class", "common.txt", "server.properties"}, out.Paths())

	ea, _ := out.Get("A.class")
	assert.Equal(t, ziputil.SideClient, ea.Side)
	cf, err := classfile.Parse(ea.Data)
	require.NoError(t, err)
	assert.Equal(t, []string{"CLIENT"}, markers(t, cf, cf.Attributes))

	eb, _ := out.Get("B.class")
	assert.Equal(t, ziputil.SideServer, eb.Side)
	cf, err = classfile.Parse(eb.Data)
	require.NoError(t, err)
	assert.Equal(t, []string{"SERVER"}, markers(t, cf, cf.Attributes))

	ec, _ := out.Get("common.txt")
	assert.Equal(t, ziputil.SideNone, ec.Side)
	er, _ := out.Get("server.properties")
	assert.Equal(t, ziputil.SideServer, er.Side)
}

func TestMergeDifferingResourceKeepsClient(t *testing.T) {
	client := archive(map[string][]byte{"lang.json": []byte("client")})
	server := archive(map[string][]byte{"lang.json": []byte("server")})
	out, st, err := (&Merger{}).Merge(client, server)
	require.NoError(t, err)
	assert.Equal(t, 1, st.Conflicts)
	e, _ := out.Get("lang.json")
	assert.Equal(t, "client", string(e.Data))
}

func TestMergeClassMembers(t *testing.T) {
	shared := classfiletest.Member{Access: classfile.AccPublic, Name: "shared", Desc: "()V", LdcString: "same"}
	client := classfiletest.Build(classfiletest.Class{
		Name:       "a/Mixed",
		Interfaces: []string{"java/lang/Runnable", "a/ClientItf"},
		Fields:     []classfiletest.Member{{Name: "both", Desc: "I"}, {Name: "renderer", Desc: "La/R;"}},
		Methods: []classfiletest.Member{
			{Name: "render", Desc: "()V", LdcString: "draw"},
			shared,
			{Name: "tail", Desc: "()V"},
		},
	})
	server := classfiletest.Build(classfiletest.Class{
		Name:       "a/Mixed",
		Filler:     []string{"pad1", "pad2", "pad3"},
		Interfaces: []string{"java/lang/Runnable", "a/ServerItf"},
		Fields:     []classfiletest.Member{{Name: "both", Desc: "I"}},
		Methods: []classfiletest.Member{
			{Name: "tickServer", Desc: "()V", LdcString: "tick", InvokeStatic: [3]string{"a/Util", "log", "()V"}},
			shared,
			{Name: "stop", Desc: "()V"},
		},
		InnerClasses: []classfiletest.Inner{{Inner: "a/Mixed$Task", Outer: "a/Mixed", Name: "Task", Access: classfile.AccStatic}},
	})

	out, err := (&Merger{}).MergeClass(client, server)
	require.NoError(t, err)
	cf, err := classfile.Parse(out)
	require.NoError(t, err)

	assert.Equal(t, []string{"both", "renderer"}, memberNames(t, cf, cf.Fields))
	assert.Equal(t, []string{"render", "tickServer", "shared", "tail", "stop"}, memberNames(t, cf, cf.Methods))
	assert.Equal(t, []string{"CLIENT"}, markers(t, cf, cf.Methods[0].Attributes))
	assert.Equal(t, []string{"SERVER"}, markers(t, cf, cf.Methods[1].Attributes))
	assert.Nil(t, markers(t, cf, cf.Methods[2].Attributes))
	assert.Nil(t, markers(t, cf, cf.Fields[0].Attributes))
	assert.Equal(t, []string{"CLIENT"}, markers(t, cf, cf.Fields[1].Attributes))

	itfs, err := cf.InterfaceNames()
	require.NoError(t, err)
	assert.Equal(t, []string{"java/lang/Runnable", "a/ClientItf", "a/ServerItf"}, itfs)

	_, va := cf.FindAttribute(cf.Attributes, classfile.AttrRuntimeVisibleAnnotations)
	require.NotNil(t, va)
	anns, err := classfile.ParseAnnotations(va.Info)
	require.NoError(t, err)
	require.Len(t, anns, 1)
	typ, _ := cf.Pool.Utf8(anns[0].Type)
	assert.Equal(t, rewrite.EnvironmentInterfacesDesc, typ)
	assert.Len(t, anns[0].Elements[0].Value.Array, 2)

	_, ic := cf.FindAttribute(cf.Attributes, classfile.AttrInnerClasses)
	require.NotNil(t, ic)
	inner, err := classfile.ParseInnerClasses(ic.Info)
	require.NoError(t, err)
	require.Len(t, inner, 1)
	n, _ := cf.Pool.ClassName(inner[0].Inner)
	assert.Equal(t, "a/Mixed$Task", n)

	// the imported server method still resolves its constants
	dump, err := classfile.Dump(cf, cf.Methods[1])
	require.NoError(t, err)
	assert.Contains(t, dump, `string "tick"`)
	assert.Contains(t, dump, `"a/Util"`)
}

func TestMergeConflictingMember(t *testing.T) {
	client := classfiletest.Build(classfiletest.Class{Name: "a/C", Methods: []classfiletest.Member{{Name: "run", Desc: "()V", LdcString: "hello"}}})
	server := classfiletest.Build(classfiletest.Class{Name: "a/C", Methods: []classfiletest.Member{{Name: "run", Desc: "()V", LdcString: "howdy"}}})
	in := map[string][]byte{"a/C.class": client}
	_, _, err := (&Merger{}).Merge(archive(in), archive(map[string][]byte{"a/C.class": server}))
	var ume *UnmergeableMemberError
	require.True(t, errors.As(err, &ume), "got %v", err)
	assert.Equal(t, "a/C", ume.Class)
	assert.Equal(t, "run", ume.Member)
	assert.Equal(t, "()V", ume.Desc)
	assert.Contains(t, ume.Diff, `"hello"`)
	assert.Contains(t, ume.Diff, `"howdy"`)
}

func innerWithCtor(params [][]classfiletest.Ann, extra string) []byte {
	c := classfiletest.Class{
		Name:         "a/Outer$Inner",
		Methods:      []classfiletest.Member{{Name: "<init>", Desc: "(La/Outer;I)V", ParamAnnotations: params}},
		InnerClasses: []classfiletest.Inner{{Inner: "a/Outer$Inner", Outer: "a/Outer", Name: "Inner"}},
	}
	if extra != "" {
		c.Methods = append(c.Methods, classfiletest.Member{Name: extra, Desc: "()V"})
	}
	return classfiletest.Build(c)
}

func TestSyntheticParamsOffset(t *testing.T) {
	nonnull := []classfiletest.Ann{{Type: "Ljavax/annotation/Nonnull;"}}
	client := innerWithCtor([][]classfiletest.Ann{nonnull}, "clientOnly")
	server := innerWithCtor([][]classfiletest.Ann{{}, nonnull}, "")

	_, err := (&Merger{}).MergeClass(client, server)
	var ume *UnmergeableMemberError
	require.ErrorAs(t, err, &ume)
	assert.Equal(t, "<init>", ume.Member)

	out, err := (&Merger{SyntheticParamsOffset: true}).MergeClass(client, server)
	require.NoError(t, err)
	cf, err := classfile.Parse(out)
	require.NoError(t, err)
	_, a := cf.FindAttribute(cf.Methods[0].Attributes, classfile.AttrRuntimeVisibleParameterAnnotations)
	require.NotNil(t, a)
	params, err := classfile.ParseParameterAnnotations(a.Info)
	require.NoError(t, err)
	require.Len(t, params, 2)
	assert.Empty(t, params[0])
	assert.Len(t, params[1], 1)
}

func TestSyntheticParamsCount(t *testing.T) {
	enum, _ := classfile.Parse(classfiletest.Build(classfiletest.Class{Name: "a/E", Access: classfile.AccEnum}))
	n, err := syntheticParams(enum)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	static, _ := classfile.Parse(classfiletest.Build(classfiletest.Class{
		Name:         "a/O$S",
		InnerClasses: []classfiletest.Inner{{Inner: "a/O$S", Outer: "a/O", Name: "S", Access: classfile.AccStatic}},
	}))
	n, err = syntheticParams(static)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestMergeFiles(t *testing.T) {
	dir := t.TempDir()
	client := archive(map[string][]byte{"A.class": classfiletest.Build(classfiletest.Class{Name: "A"})})
	server := archive(map[string][]byte{"B.class": classfiletest.Build(classfiletest.Class{Name: "B"})})
	cp, sp, op := filepath.Join(dir, "c.jar"), filepath.Join(dir, "s.jar"), filepath.Join(dir, "m.jar")
	require.NoError(t, client.WriteFile(cp))
	require.NoError(t, server.WriteFile(sp))
	require.NoError(t, (&Merger{}).MergeFiles(cp, sp, op))
	out, err := ziputil.Open(op)
	require.NoError(t, err)
	assert.Equal(t, []string{"A.class", "B.class"}, out.Paths())
	e, _ := out.Get("B.class")
	assert.Equal(t, ziputil.SideServer, e.Side)
}
