package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"jarforge/internal/classfile/classfiletest"
	"jarforge/internal/ziputil"
)

const tiny = "tiny\t2\t0\tofficial\tsrg\n" +
	"c\ta\tnet/minecraft/block/Block\n" +
	"\tf\tI\tb\tfield_149782_v\n"

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func writeJar(t *testing.T, path string, entries map[string][]byte) {
	t.Helper()
	a := ziputil.New()
	for p, d := range entries {
		a.Put(&ziputil.Entry{Name: p, Data: d})
	}
	require.NoError(t, a.WriteFile(path))
}

// workspace writes a client-only setup with an empty patch set.
func workspace(t *testing.T) (dir, configPath string) {
	t.Helper()
	dir = t.TempDir()
	writeJar(t, filepath.Join(dir, "client.jar"), map[string][]byte{
		"a/Main.class": classfiletest.Build(classfiletest.Class{Name: "a/Main"}),
		"hello.txt":    []byte("hi"),
	})
	writeJar(t, filepath.Join(dir, "patches.jar"), map[string][]byte{"readme.txt": []byte("no patches")})
	configPath = filepath.Join(dir, "jarforge.yaml")
	writeFile(t, configPath, `cache_dir: cache
type: client
inputs:
  client_jar: client.jar
  patches: patches.jar
metrics:
  textfile: metrics.prom
logging:
  level: error
`)
	return dir, configPath
}

func TestVersion(t *testing.T) {
	out, err := execute(t, "--config", filepath.Join(t.TempDir(), "none.yaml"), "version")
	require.NoError(t, err)
	assert.Equal(t, "jarforge dev (pipeline 1)\n", out)
}

func TestRunThenStatus(t *testing.T) {
	dir, cfg := workspace(t)

	out, err := execute(t, "--config", cfg, "run")
	require.NoError(t, err)
	final := filepath.Join(dir, "cache", "client-final.jar")
	assert.Contains(t, out, "ran 4 stage(s), skipped 0")
	assert.Contains(t, out, final)
	_, err = os.Stat(final)
	require.NoError(t, err)
	prom, err := os.ReadFile(filepath.Join(dir, "metrics.prom"))
	require.NoError(t, err)
	assert.Contains(t, string(prom), "jarforge_stage_runs_total")

	out, err = execute(t, "--config", cfg, "run")
	require.NoError(t, err)
	assert.Contains(t, out, "ran 0 stage(s), skipped 4")

	out, err = execute(t, "--config", cfg, "status")
	require.NoError(t, err)
	assert.Contains(t, out, "final jar "+final)
	assert.Contains(t, out, "pipeline 1, java 8, 3 entries, 1 classes")

	require.NoError(t, os.Remove(final))
	out, err = execute(t, "--config", cfg, "status")
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 4)
	assert.Contains(t, lines[0], "skip")
	assert.Contains(t, lines[3], "side-fix-and-finalize")
	assert.Contains(t, lines[3], "run")
	assert.Contains(t, lines[3], "missing")

	out, err = execute(t, "--config", cfg, "run", "--refresh")
	require.NoError(t, err)
	assert.Contains(t, out, "cache invalidated (refresh)")
}

func TestRunRejectsInvalidConfig(t *testing.T) {
	dir := t.TempDir()
	cfg := filepath.Join(dir, "jarforge.yaml")
	writeFile(t, cfg, "type: forge\ninputs:\n  client_jar: missing.jar\n")

	_, err := execute(t, "--config", cfg, "run")
	require.Error(t, err)
	msg := err.Error()
	assert.Contains(t, msg, "type must be one of")
	assert.Contains(t, msg, "inputs.patches must be set")
	assert.Contains(t, msg, "does not exist")
}

func TestClean(t *testing.T) {
	dir, cfg := workspace(t)
	_, err := execute(t, "--config", cfg, "run")
	require.NoError(t, err)

	_, err = execute(t, "--config", cfg, "clean")
	require.NoError(t, err)
	entries, err := os.ReadDir(filepath.Join(dir, "cache"))
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestRemapAT(t *testing.T) {
	dir := t.TempDir()
	mappings := filepath.Join(dir, "m.tiny")
	writeFile(t, mappings, tiny)
	rules := filepath.Join(dir, "at.cfg")
	writeFile(t, rules, "public-f net.minecraft.block.Block field_149782_v # hardness\n")
	cfg := filepath.Join(dir, "none.yaml")

	out, err := execute(t, "--config", cfg, "remap-at", "--mappings", mappings, rules)
	require.NoError(t, err)
	assert.Equal(t, "public-f a b # hardness\n", out)

	dst := filepath.Join(dir, "out.cfg")
	_, err = execute(t, "--config", cfg, "remap-at", "--mappings", mappings, "-o", dst, rules)
	require.NoError(t, err)
	b, err := os.ReadFile(dst)
	require.NoError(t, err)
	assert.Equal(t, "public-f a b # hardness\n", string(b))

	writeFile(t, rules, "public net.minecraft.block.Block field_0_unknown\n")
	_, err = execute(t, "--config", cfg, "remap-at", "--mappings", mappings, rules)
	assert.ErrorContains(t, err, "not in the mapping table")
}

func TestRemapATNeedsMappings(t *testing.T) {
	dir := t.TempDir()
	rules := filepath.Join(dir, "at.cfg")
	writeFile(t, rules, "public a.B\n")
	_, err := execute(t, "--config", filepath.Join(dir, "none.yaml"), "remap-at", rules)
	assert.ErrorContains(t, err, "--mappings is required")
}
