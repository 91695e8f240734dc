package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
)

func TestParseConfig(t *testing.T) {
	got, err := parseConfig(`
session = true
timeout = "5s"
names = ["org.example.A", "org.example.B"]
`)
	if err != nil {
		t.Fatal(err)
	}
	want := &config{
		Session: true,
		Timeout: "5s",
		Names:   []string{"org.example.A", "org.example.B"},
	}
	if diff := cmp.Diff(got, want, cmpopts.IgnoreUnexported(config{})); diff != "" {
		t.Errorf("wrong config (-got+want):\n%s", diff)
	}
	if got.timeout != 5*time.Second {
		t.Errorf("timeout = %v, want 5s", got.timeout)
	}
}

func TestParseConfigErrors(t *testing.T) {
	tests := []string{
		`session = "yes"`,
		`timeout = "soon"`,
		`colour = "blue"`,
		`session = `,
	}
	for _, in := range tests {
		if _, err := parseConfig(in); err == nil {
			t.Errorf("parseConfig(%q) succeeded, want error", in)
		}
	}
}

func TestReadConfig(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	t.Setenv("HOME", t.TempDir())

	cfg, err := readConfig("")
	if err != nil {
		t.Fatalf("reading missing default config: %v", err)
	}
	if diff := cmp.Diff(cfg, &config{}, cmpopts.IgnoreUnexported(config{})); diff != "" {
		t.Errorf("missing default config is not empty:\n%s", diff)
	}

	path := filepath.Join(t.TempDir(), "nope.toml")
	if _, err := readConfig(path); err == nil {
		t.Error("reading missing explicit config succeeded, want error")
	}

	if err := os.WriteFile(path, []byte("verbose = true\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	cfg, err = readConfig(path)
	if err != nil {
		t.Fatal(err)
	}
	if !cfg.Verbose {
		t.Error("config file setting verbose was not applied")
	}
}
