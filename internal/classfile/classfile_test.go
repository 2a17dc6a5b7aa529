package classfile_test

import (
	"encoding/binary"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"jarforge/internal/classfile"
	"jarforge/internal/classfile/classfiletest"
)

func sample() classfiletest.Class {
	return classfiletest.Class{
		Name:       "a/B",
		Interfaces: []string{"java/lang/Runnable"},
		Fields: []classfiletest.Member{
			{Access: classfile.AccPrivate, Name: "count", Desc: "I"},
		},
		Methods: []classfiletest.Member{
			{Access: classfile.AccPublic, Name: "<init>", Desc: "()V"},
			{Access: classfile.AccPublic, Name: "run", Desc: "()V", LdcString: "hello", InvokeStatic: [3]string{"a/C", "go", "()V"}},
		},
		Annotations: []classfiletest.Ann{{Type: "Ljava/lang/Deprecated;"}},
	}
}

func TestRoundTripIsByteIdentical(t *testing.T) {
	data := classfiletest.Build(sample())
	cf, err := classfile.Parse(data)
	require.NoError(t, err)
	assert.Equal(t, "a/B", cf.Name())
	out, err := cf.Bytes()
	require.NoError(t, err)
	assert.Equal(t, data, out)
}

func TestParseRejectsMalformedInput(t *testing.T) {
	data := classfiletest.Build(sample())
	cases := map[string][]byte{
		"empty":     nil,
		"bad magic": append([]byte{0xCA, 0xFE, 0xBA, 0xBF}, data[4:]...),
		"truncated": data[:len(data)-3],
		"trailing":  append(append([]byte(nil), data...), 0),
	}
	for name, in := range cases {
		in := in
		t.Run(name, func(t *testing.T) {
			_, err := classfile.Parse(in)
			var mce *classfile.MalformedClassError
			require.True(t, errors.As(err, &mce), "got %v", err)
		})
	}
}

func TestWithPathFillsPath(t *testing.T) {
	_, err := classfile.Parse([]byte{1, 2, 3})
	err = classfile.WithPath("x/Y.class", err)
	var mce *classfile.MalformedClassError
	require.ErrorAs(t, err, &mce)
	assert.Equal(t, "x/Y.class", mce.Path)
	assert.Contains(t, err.Error(), "x/Y.class")
}

func codeOf(t *testing.T, cf *classfile.ClassFile, m *classfile.Member) []byte {
	t.Helper()
	_, a := cf.FindAttribute(m.Attributes, classfile.AttrCode)
	require.NotNil(t, a)
	n := binary.BigEndian.Uint32(a.Info[4:])
	return a.Info[8 : 8+n]
}

func TestImporterRemapsBytecodeConstants(t *testing.T) {
	src, err := classfile.Parse(classfiletest.Build(sample()))
	require.NoError(t, err)
	dst, err := classfile.Parse(classfiletest.Build(classfiletest.Class{
		Name:   "a/B",
		Filler: []string{"x", "y", "z", "w"},
	}))
	require.NoError(t, err)

	im := classfile.NewImporter(dst, src)
	m, err := im.Member(src.Methods[1])
	require.NoError(t, err)
	require.NoError(t, im.Finish())
	dst.Methods = append(dst.Methods, m)

	data, err := dst.Bytes()
	require.NoError(t, err)
	reparsed, err := classfile.Parse(data)
	require.NoError(t, err)
	got := reparsed.Methods[len(reparsed.Methods)-1]
	name, desc, err := reparsed.MemberName(got)
	require.NoError(t, err)
	assert.Equal(t, "run", name)
	assert.Equal(t, "()V", desc)

	code := codeOf(t, reparsed, got)
	require.Equal(t, byte(0x12), code[0])
	c, err := reparsed.Pool.Get(uint16(code[1]))
	require.NoError(t, err)
	require.Equal(t, classfile.TagString, c.Tag)
	s, err := reparsed.Pool.Utf8(c.A)
	require.NoError(t, err)
	assert.Equal(t, "hello", s)

	require.Equal(t, byte(0xb8), code[3])
	ref, err := reparsed.Pool.Get(binary.BigEndian.Uint16(code[4:]))
	require.NoError(t, err)
	owner, err := reparsed.Pool.ClassName(ref.A)
	require.NoError(t, err)
	mn, md, err := reparsed.Pool.NameAndType(ref.B)
	require.NoError(t, err)
	assert.Equal(t, []string{"a/C", "go", "()V"}, []string{owner, mn, md})
}

func TestFingerprintIgnoresPoolLayout(t *testing.T) {
	plain, err := classfile.Parse(classfiletest.Build(sample()))
	require.NoError(t, err)
	padded := sample()
	padded.Filler = []string{"p", "q"}
	shifted, err := classfile.Parse(classfiletest.Build(padded))
	require.NoError(t, err)

	a, err := classfile.Fingerprint(plain, plain.Methods[1])
	require.NoError(t, err)
	b, err := classfile.Fingerprint(shifted, shifted.Methods[1])
	require.NoError(t, err)
	assert.Equal(t, a, b)

	other := sample()
	other.Methods[1].LdcString = "goodbye"
	changed, err := classfile.Parse(classfiletest.Build(other))
	require.NoError(t, err)
	c, err := classfile.Fingerprint(changed, changed.Methods[1])
	require.NoError(t, err)
	assert.NotEqual(t, a, c)

	dump, err := classfile.Dump(changed, changed.Methods[1])
	require.NoError(t, err)
	assert.Contains(t, dump, `"goodbye"`)
}

func TestParamCount(t *testing.T) {
	cases := map[string]int{
		"()V":                      0,
		"(I)V":                     1,
		"(IJ[Ljava/lang/String;)V": 3,
		"([[DLa/B;Z)La/C;":         3,
	}
	for desc, want := range cases {
		got, err := classfile.ParamCount(desc)
		require.NoError(t, err, desc)
		assert.Equal(t, want, got, desc)
	}
	for _, bad := range []string{"", "I", "(I", "(Q)V", "(La/B)V"} {
		_, err := classfile.ParamCount(bad)
		assert.Error(t, err, bad)
	}
}

func TestMapDescriptor(t *testing.T) {
	m := map[string]string{"a": "net/Foo", "b": "net/Bar"}
	fn := func(n string) string {
		if v, ok := m[n]; ok {
			return v
		}
		return n
	}
	assert.Equal(t, "(Lnet/Foo;I[Lnet/Bar;)Ljava/lang/String;", classfile.MapDescriptor("(La;I[Lb;)Ljava/lang/String;", fn))
	assert.Equal(t, "I", classfile.MapDescriptor("I", fn))
}

func TestRoundTripProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		names := rapid.SliceOfNDistinct(rapid.StringMatching(`[a-z][a-z0-9]{0,6}`), 0, 20, rapid.ID[string]).Draw(t, "names")
		c := classfiletest.Class{Name: "p/Gen"}
		for i, n := range names {
			m := classfiletest.Member{Name: n, Desc: "()V"}
			if i%2 == 0 {
				m.LdcString = n + "!"
			}
			c.Methods = append(c.Methods, m)
			c.Fields = append(c.Fields, classfiletest.Member{Name: n, Desc: "J"})
		}
		data := classfiletest.Build(c)
		cf, err := classfile.Parse(data)
		if err != nil {
			t.Fatalf("parse: %v", err)
		}
		out, err := cf.Bytes()
		if err != nil {
			t.Fatalf("bytes: %v", err)
		}
		if string(out) != string(data) {
			t.Fatalf("round trip changed bytes")
		}
	})
}
