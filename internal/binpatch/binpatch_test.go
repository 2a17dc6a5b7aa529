package binpatch

import (
	"bytes"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ulikunitz/xz/lzma"

	"jarforge/internal/ziputil"
)

func header() []byte { return []byte{0xD1, 0xFF, 0xD1, 0xFF, 4} }

// replaceDelta keeps source[:keep] and appends tail.
func replaceDelta(keep int, tail []byte) []byte {
	d := header()
	if keep > 0 {
		d = append(d, opCopyU16U8, 0, 0, byte(keep))
	}
	if len(tail) > 0 {
		d = append(d, opDataU16, byte(len(tail)>>8), byte(len(tail)))
		d = append(d, tail...)
	}
	return append(d, opEOF)
}

func TestApplyGDIFF(t *testing.T) {
	src := []byte("hello, world")
	cases := []struct {
		name  string
		delta []byte
		want  string
	}{
		{"inline data", append(header(), 3, 'a', 'b', 'c', 0), "abc"},
		{"copy u16/u8", append(header(), opCopyU16U8, 0, 7, 5, 0), "world"},
		{"copy i32/i32", append(header(), opCopyI32I32, 0, 0, 0, 0, 0, 0, 0, 5, 0), "hello"},
		{"copy i64/i32", append(header(), 255, 0, 0, 0, 0, 0, 0, 0, 5, 0, 0, 0, 2, 0), ", "},
		{"data u16 then copy", append(header(), opDataU16, 0, 2, 'o', 'h', opCopyU16U16, 0, 5, 0, 7, 0), "oh, world"},
		{"empty", append(header(), 0), ""},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			got, err := ApplyGDIFF(src, tc.delta)
			require.NoError(t, err)
			assert.Equal(t, tc.want, string(got))
		})
	}
}

func TestApplyGDIFFRejectsBadInput(t *testing.T) {
	src := []byte("abc")
	for name, delta := range map[string][]byte{
		"bad magic":   {0, 0, 0, 0, 4, 0},
		"bad version": {0xD1, 0xFF, 0xD1, 0xFF, 5, 0},
		"no eof":      append(header(), 1, 'x'),
		"copy range":  append(header(), opCopyU16U8, 0, 2, 5, 0),
		"short data":  append(header(), 9, 'x'),
		"copy wraps":  append(header(), 255, 0x7f, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xf0, 0, 0, 0, 0x20, 0),
	} {
		delta := delta
		t.Run(name, func(t *testing.T) {
			_, err := ApplyGDIFF(src, delta)
			assert.Error(t, err)
		})
	}
}

func TestReplaceDeltaHelper(t *testing.T) {
	out, err := ApplyGDIFF([]byte("abcdef"), replaceDelta(3, []byte("XYZ")))
	require.NoError(t, err)
	assert.Equal(t, "abcXYZ", string(out))
}

func TestPatchRecordRoundTrip(t *testing.T) {
	p := &Patch{Name: "abc", SourceClass: "net.minecraft.A", TargetClass: "net.minecraft.A", Exists: true, Checksum: 0xDEADBEEF, Diff: []byte{1, 2, 3}}
	got, err := DecodePatch(p.Encode())
	require.NoError(t, err)
	assert.Equal(t, p, got)
	assert.Equal(t, "abc.class", got.Path())

	n := &Patch{Name: "a.b.New", Diff: []byte{}}
	got, err = DecodePatch(n.Encode())
	require.NoError(t, err)
	assert.False(t, got.Exists)
	assert.Equal(t, "a/b/New.class", got.Path())

	_, err = DecodePatch(p.Encode()[:10])
	assert.Error(t, err)
}

func patchArchive(t *testing.T, patches map[string]*Patch) []byte {
	t.Helper()
	a := ziputil.New()
	for name, p := range patches {
		a.Put(&ziputil.Entry{Name: name, Data: p.Encode()})
	}
	a.Put(&ziputil.Entry{Name: "binpatch/client/readme.txt", Data: []byte("ignored")})
	data, err := a.Bytes()
	require.NoError(t, err)
	return data
}

func TestReadSetPlainAndLZMA(t *testing.T) {
	data := patchArchive(t, map[string]*Patch{
		"binpatch/client/abc.binpatch": {Name: "abc", Exists: true, Diff: []byte{1}},
		"binpatch/server/abd.binpatch": {Name: "abd", Exists: true, Diff: []byte{2}},
	})
	s, err := ReadSet(data, ziputil.SideClient)
	require.NoError(t, err)
	assert.Equal(t, []string{"abc.class"}, s.Paths())

	var buf bytes.Buffer
	w, err := lzma.NewWriter(&buf)
	require.NoError(t, err)
	_, err = w.Write(data)
	require.NoError(t, err)
	require.NoError(t, w.Close())
	s, err = ReadSet(buf.Bytes(), ziputil.SideServer)
	require.NoError(t, err)
	assert.Equal(t, []string{"abd.class"}, s.Paths())

	_, err = ReadSet(data, ziputil.SideNone)
	assert.Error(t, err)
}

func cleanArchive() *ziputil.Archive {
	a := ziputil.New()
	a.Put(&ziputil.Entry{Name: "a.class", Data: []byte("class-a")})
	a.Put(&ziputil.Entry{Name: "b.class", Data: []byte("class-b")})
	a.Put(&ziputil.Entry{Name: "assets/lang.json", Data: []byte("{}")})
	return a
}

func TestApplyEmptySetCopiesEverything(t *testing.T) {
	clean := cleanArchive()
	out, err := (&Applier{}).Apply(clean, NewSet(ziputil.SideClient))
	require.NoError(t, err)
	want, err := clean.Bytes()
	require.NoError(t, err)
	got, err := out.Bytes()
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestApplyPatchesAndCreates(t *testing.T) {
	clean := cleanArchive()
	set := NewSet(ziputil.SideClient)
	set.Add(&Patch{Name: "a", Exists: true, Checksum: Checksum([]byte("class-a")), Diff: replaceDelta(6, []byte("A!"))})
	set.Add(&Patch{Name: "n.New", Diff: replaceDelta(0, []byte("fresh"))})

	ap := &Applier{}
	out, err := ap.Apply(clean, set)
	require.NoError(t, err)
	e, _ := out.Get("a.class")
	assert.Equal(t, "class-A!", string(e.Data))
	e, _ = out.Get("b.class")
	assert.Equal(t, "class-b", string(e.Data))
	e, _ = out.Get("n/New.class")
	assert.Equal(t, "fresh", string(e.Data))
	e, _ = out.Get("assets/lang.json")
	assert.Equal(t, "{}", string(e.Data))

	again, err := ap.Apply(clean, set)
	require.NoError(t, err)
	x, _ := out.Bytes()
	y, _ := again.Bytes()
	assert.Equal(t, x, y)

	orig, _ := clean.Get("a.class")
	assert.Equal(t, "class-a", string(orig.Data))
}

func TestApplyStaleBaseline(t *testing.T) {
	set := NewSet(ziputil.SideServer)
	set.Add(&Patch{Name: "a", Exists: true, Checksum: 1, Diff: replaceDelta(1, nil)})
	_, err := (&Applier{}).Apply(cleanArchive(), set)
	var pae *PatchApplicationError
	require.True(t, errors.As(err, &pae))
	assert.Equal(t, "a.class", pae.Path)
	assert.Equal(t, Checksum([]byte("class-a")), pae.Got)

	set = NewSet(ziputil.SideServer)
	set.Add(&Patch{Name: "gone", Exists: true, Checksum: 1, Diff: replaceDelta(1, nil)})
	_, err = (&Applier{}).Apply(cleanArchive(), set)
	require.ErrorAs(t, err, &pae)
	assert.True(t, pae.Missing)
}
