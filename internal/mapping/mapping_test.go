package mapping

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"jarforge/internal/atrules"
)

const tiny = "tiny\t2\t0\tofficial\tsrg\tnamed\n" +
	"\tescaped-names\n" +
	"c\ta\tnet/minecraft/block/Block\tnet/minecraft/block/Block\n" +
	"\tf\tI\tb\tfield_149782_v\thardness\n" +
	"\tm\t(La;Lc;)V\tc\tfunc_149674_a\tupdateTick\n" +
	"\t\tp\t1\t\t\tworld\n" +
	"\tm\t(La;)V\t<init>\t<init>\t<init>\n" +
	"c\tc\tnet/minecraft/world/World\t\n" +
	"\tc\ta world\n" +
	"c\td\tnet/minecraft/util/Odd\\tName\tnet/minecraft/util/Odd\n"

func readSample(t *testing.T) *Tree {
	t.Helper()
	tree, err := ReadTiny(strings.NewReader(tiny))
	require.NoError(t, err)
	return tree
}

func TestReadTiny(t *testing.T) {
	tree := readSample(t)
	assert.Equal(t, []string{"official", "srg", "named"}, tree.Namespaces)
	require.Len(t, tree.Classes, 3)
	block := tree.Classes[0]
	assert.Equal(t, []string{"a", "net/minecraft/block/Block", "net/minecraft/block/Block"}, block.Names)
	require.Len(t, block.Fields, 1)
	require.Len(t, block.Methods, 2)
	assert.Equal(t, "(La;Lc;)V", block.Methods[0].Desc)
	assert.Equal(t, "net/minecraft/util/Odd\tName", tree.Classes[2].Names[1])
}

func TestReadTinyErrors(t *testing.T) {
	for name, in := range map[string]string{
		"empty":       "",
		"v1 header":   "v1\tofficial\tnamed\n",
		"short class": "tiny\t2\t0\ta\tb\nc\tx\n",
		"no desc":     "tiny\t2\t0\ta\tb\nc\tx\ty\n\tf\n",
		"unknown":     "tiny\t2\t0\ta\tb\nq\tx\ty\n",
	} {
		in := in
		t.Run(name, func(t *testing.T) {
			_, err := ReadTiny(strings.NewReader(in))
			var fe *FormatError
			assert.True(t, errors.As(err, &fe), "got %v", err)
		})
	}
}

func TestTableLookup(t *testing.T) {
	tab, err := readSample(t).Table("srg", "official")
	require.NoError(t, err)
	assert.Equal(t, 3, tab.Classes())

	got, ok := tab.Lookup(atrules.QualifiedName{Class: "net/minecraft/block/Block"})
	require.True(t, ok)
	assert.Equal(t, atrules.QualifiedName{Class: "a"}, got)

	got, ok = tab.Lookup(atrules.QualifiedName{Class: "net/minecraft/block/Block", Name: "field_149782_v"})
	require.True(t, ok)
	assert.Equal(t, atrules.QualifiedName{Class: "a", Name: "b"}, got)

	got, ok = tab.Lookup(atrules.QualifiedName{
		Class: "net/minecraft/block/Block",
		Name:  "func_149674_a",
		Desc:  "(Lnet/minecraft/block/Block;Lnet/minecraft/world/World;)V",
	})
	require.True(t, ok)
	assert.Equal(t, atrules.QualifiedName{Class: "a", Name: "c", Desc: "(La;Lc;)V"}, got)

	got, ok = tab.Lookup(atrules.QualifiedName{Class: "net/minecraft/block/Block", Name: "<init>", Desc: "(Lnet/minecraft/block/Block;Ljava/lang/String;)V"})
	require.True(t, ok)
	assert.Equal(t, atrules.QualifiedName{Class: "a", Name: "<init>", Desc: "(La;Ljava/lang/String;)V"}, got)

	_, ok = tab.Lookup(atrules.QualifiedName{Class: "net/minecraft/block/Block", Name: "func_0_missing", Desc: "()V"})
	assert.False(t, ok)
	_, ok = tab.Lookup(atrules.QualifiedName{Class: "java/lang/Object"})
	assert.False(t, ok)
}

func TestTableEmptyColumnFallsBack(t *testing.T) {
	tab, err := readSample(t).Table("official", "named")
	require.NoError(t, err)
	got, ok := tab.Lookup(atrules.QualifiedName{Class: "c"})
	require.True(t, ok)
	assert.Equal(t, "c", got.Class)
}

func TestTableUnknownNamespace(t *testing.T) {
	_, err := readSample(t).Table("srg", "mojang")
	assert.ErrorContains(t, err, "mojang")
}

func TestRemapRulesThroughTable(t *testing.T) {
	tab, err := readSample(t).Table("srg", "official")
	require.NoError(t, err)
	set, err := atrules.ParseString("public net.minecraft.block.Block field_149782_v # hardness\n" +
		"public net.minecraft.block.Block func_149674_a(Lnet/minecraft/block/Block;Lnet/minecraft/world/World;)V\n")
	require.NoError(t, err)
	out, err := atrules.Remap(set, tab)
	require.NoError(t, err)
	assert.Equal(t, "public a b # hardness\npublic a c(La;Lc;)V\n", out.String())

	same, err := atrules.Remap(set, Identity{})
	require.NoError(t, err)
	assert.Equal(t, set, same)
}

func TestLoad(t *testing.T) {
	p := filepath.Join(t.TempDir(), "mappings.tiny")
	require.NoError(t, os.WriteFile(p, []byte(tiny), 0o644))
	tree, err := Load(p)
	require.NoError(t, err)
	assert.Len(t, tree.Classes, 3)

	_, err = Load(filepath.Join(t.TempDir(), "missing.tiny"))
	assert.True(t, errors.Is(err, os.ErrNotExist))
}
