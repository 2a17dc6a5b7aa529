package validate

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"jarforge/internal/atrules"
	"jarforge/internal/config"
)

func touch(t *testing.T, dir, name string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	if err := os.WriteFile(p, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	return p
}

func validConfig(t *testing.T) *config.Config {
	dir := t.TempDir()
	c := config.DefaultConfig()
	c.CacheDir = filepath.Join(dir, "cache")
	c.Inputs.ClientJar = touch(t, dir, "client.jar")
	c.Inputs.ServerJar = touch(t, dir, "server.jar")
	c.Inputs.Patches = touch(t, dir, "binpatches.pack.lzma")
	return c
}

func TestConfigOK(t *testing.T) {
	if err := Config(validConfig(t)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestConfigAggregatesIssues(t *testing.T) {
	c := validConfig(t)
	c.Type = "both"
	c.Invalidation = "lazy"
	c.Workers = -1
	c.Inputs.Patches = ""
	c.Inputs.Universal = filepath.Join(t.TempDir(), "missing.jar")
	c.Mappings.Path = c.Inputs.ClientJar
	c.Mappings.To = c.Mappings.From
	c.Logging.Format = "xml"

	err := Config(c)
	if err == nil {
		t.Fatal("expected error")
	}
	for _, want := range []string{
		"type must be one of",
		"invalidation must be resume or strict",
		"workers must be >= 0",
		"inputs.patches must be set",
		"inputs.universal:",
		"mappings.from and mappings.to must differ",
		"logging.format",
	} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error missing %q:\n%v", want, err)
		}
	}
}

func TestConfigSideInputs(t *testing.T) {
	c := validConfig(t)
	c.Type = config.TypeClient
	c.Inputs.ServerJar = ""
	if err := Config(c); err != nil {
		t.Fatalf("client builds need no server jar: %v", err)
	}
	c.Inputs.ClientJar = filepath.Dir(c.Inputs.ClientJar)
	err := Config(c)
	if err == nil || !strings.Contains(err.Error(), "is a directory") {
		t.Fatalf("expected directory error, got %v", err)
	}
}

func TestRules(t *testing.T) {
	s, err := atrules.ParseString(`public a.B
public+f a.B f
public-f a.B *
public a.B m(I)V
`)
	if err != nil {
		t.Fatal(err)
	}
	if err := Rules(s); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	bad, err := atrules.ParseString(`public+f a.B f
private-f a.B f
public a.B m(Q)V
`)
	if err != nil {
		t.Fatal(err)
	}
	bad.Rules = append(bad.Rules, atrules.Rule{Target: atrules.QualifiedName{Class: "La;"}})
	err = Rules(bad)
	if err == nil {
		t.Fatal("expected error")
	}
	for _, want := range []string{"conflicting final modifiers for a/B.f", "malformed method descriptor", "not a valid internal name"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error missing %q:\n%v", want, err)
		}
	}
}
