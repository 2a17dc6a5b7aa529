package cache

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newStore(t *testing.T) *Store {
	t.Helper()
	s, err := NewStore(filepath.Join(t.TempDir(), "cache"))
	require.NoError(t, err)
	return s
}

func TestInstallRenamesIntoPlace(t *testing.T) {
	s := newStore(t)
	require.NoError(t, s.InstallBytes("a.jar", []byte("v1")))
	ok, err := s.Exists("a.jar")
	require.NoError(t, err)
	assert.True(t, ok)

	b, err := os.ReadFile(s.Path("a.jar"))
	require.NoError(t, err)
	assert.Equal(t, "v1", string(b))

	left, err := s.Leftovers()
	require.NoError(t, err)
	assert.Empty(t, left)
}

func TestInstallFailureKeepsPreviousArtifact(t *testing.T) {
	s := newStore(t)
	boom := errors.New("boom")

	err := s.Install("fresh.jar", func(tmp string) error {
		require.NoError(t, os.WriteFile(tmp, []byte("partial"), 0o644))
		return boom
	})
	require.ErrorIs(t, err, boom)
	ok, err := s.Exists("fresh.jar")
	require.NoError(t, err)
	assert.False(t, ok, "failed install must not leave an artifact")

	require.NoError(t, s.InstallBytes("old.jar", []byte("good")))
	err = s.Install("old.jar", func(tmp string) error {
		require.NoError(t, os.WriteFile(tmp, []byte("half"), 0o644))
		return boom
	})
	require.ErrorIs(t, err, boom)
	b, err := os.ReadFile(s.Path("old.jar"))
	require.NoError(t, err)
	assert.Equal(t, "good", string(b))

	left, err := s.Leftovers()
	require.NoError(t, err)
	assert.Empty(t, left)
}

func TestSweepLeftovers(t *testing.T) {
	s := newStore(t)
	require.NoError(t, s.InstallBytes("a.jar", []byte("1")))
	require.NoError(t, os.WriteFile(s.Path(".tmp-b.jar-123"), []byte("half"), 0o644))

	swept, err := s.SweepLeftovers()
	require.NoError(t, err)
	assert.Equal(t, []string{".tmp-b.jar-123"}, swept)

	left, err := s.Leftovers()
	require.NoError(t, err)
	assert.Empty(t, left)
	ok, err := s.Exists("a.jar")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestRemoveIgnoresMissing(t *testing.T) {
	s := newStore(t)
	require.NoError(t, s.InstallBytes("a", []byte("1")))
	require.NoError(t, s.Remove("a", "b"))
	ok, _ := s.Exists("a")
	assert.False(t, ok)
}

func TestSnapshotRoundTrip(t *testing.T) {
	s := newStore(t)
	snap, err := s.Load()
	require.NoError(t, err)
	assert.Nil(t, snap)

	require.NoError(t, s.InstallBytes("a.jar", []byte("abc")))
	snap, err = s.Capture("run-1", "3", []string{"a.jar", "missing.jar"})
	require.NoError(t, err)
	require.Len(t, snap.Artifacts, 1)
	assert.Equal(t, Artifact{
		Name: "a.jar",
		Hash: "ba7816bf8f01cfea414140de5dae2223b00361a396177a9cb410ff61f20015ad",
		Size: 3,
	}, snap.Artifacts[0])

	require.NoError(t, s.Save(snap))
	got, err := s.Load()
	require.NoError(t, err)
	assert.Equal(t, snap, got)
	assert.Equal(t, FormatVersion, got.FormatVersion)
	a, ok := got.Find("a.jar")
	assert.True(t, ok)
	assert.Equal(t, int64(3), a.Size)
}

func TestLoadCorruptSnapshot(t *testing.T) {
	s := newStore(t)
	require.NoError(t, os.WriteFile(s.Path(indexFileName), []byte("{"), 0o644))
	_, err := s.Load()
	assert.ErrorContains(t, err, indexFileName)
}

func TestClear(t *testing.T) {
	s := newStore(t)
	require.NoError(t, s.InstallBytes("a", []byte("1")))
	require.NoError(t, os.WriteFile(filepath.Join(s.Dir(), ".tmp-b-123"), nil, 0o644))
	require.NoError(t, s.Clear())
	entries, err := os.ReadDir(s.Dir())
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestBuildDelta(t *testing.T) {
	prev := &Snapshot{Artifacts: []Artifact{
		{Name: "a", Hash: "1"},
		{Name: "b", Hash: "2"},
		{Name: "c", Hash: "3"},
	}}
	curr := &Snapshot{Artifacts: []Artifact{
		{Name: "a", Hash: "1"},
		{Name: "c", Hash: "4"},
		{Name: "d", Hash: "5"},
	}}
	d := BuildDelta(prev, curr)
	assert.Equal(t, []Artifact{{Name: "d", Hash: "5"}}, d.Added)
	assert.Equal(t, []Artifact{{Name: "b", Hash: "2"}}, d.Removed)
	assert.Equal(t, []Change{{Name: "c", HashBefore: "3", HashAfter: "4"}}, d.Changed)
	assert.False(t, d.Empty())

	assert.True(t, BuildDelta(curr, curr).Empty())
	first := BuildDelta(nil, curr)
	assert.Len(t, first.Added, 3)
	gone := BuildDelta(prev, nil)
	assert.Len(t, gone.Removed, 3)
}
