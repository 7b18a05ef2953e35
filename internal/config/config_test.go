package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

type sample struct {
	Language string `yaml:"language"`
	Listen   string `yaml:"listen"`
	Voice    struct {
		Rate float64 `yaml:"rate"`
	} `yaml:"voice"`
}

func TestLoadYAMLKeepsDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "ecotrack.yaml")
	if err := os.WriteFile(path, []byte("language: en-US\nvoice:\n  rate: 1.25\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	s := sample{Language: "th-TH", Listen: ":8080"}
	if err := LoadYAML(path, &s); err != nil {
		t.Fatalf("LoadYAML() error = %v", err)
	}
	if s.Language != "en-US" {
		t.Errorf("Language = %q, want en-US", s.Language)
	}
	if s.Listen != ":8080" {
		t.Errorf("Listen = %q, want default kept", s.Listen)
	}
	if s.Voice.Rate != 1.25 {
		t.Errorf("Voice.Rate = %v, want 1.25", s.Voice.Rate)
	}
}

func TestLoadYAMLErrors(t *testing.T) {
	if err := LoadYAML("", &sample{}); err != nil {
		t.Errorf("empty path should be a no-op, got %v", err)
	}
	if err := LoadYAML(filepath.Join(t.TempDir(), "missing.yaml"), &sample{}); err == nil {
		t.Error("expected error for missing file")
	}

	bad := filepath.Join(t.TempDir(), "bad.yaml")
	os.WriteFile(bad, []byte("language: [unterminated"), 0o600)
	if err := LoadYAML(bad, &sample{}); err == nil {
		t.Error("expected parse error")
	}
}

func TestLoadDotEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	os.WriteFile(path, []byte("ECOTRACK_TEST_DOTENV=from-file\nECOTRACK_TEST_PRESET=from-file\n"), 0o600)

	t.Setenv("ECOTRACK_TEST_PRESET", "from-env")
	t.Setenv("ECOTRACK_TEST_DOTENV", "")
	os.Unsetenv("ECOTRACK_TEST_DOTENV")

	if err := LoadDotEnv(path, filepath.Join(dir, "absent.env")); err != nil {
		t.Fatalf("LoadDotEnv() error = %v", err)
	}
	if got := os.Getenv("ECOTRACK_TEST_DOTENV"); got != "from-file" {
		t.Errorf("ECOTRACK_TEST_DOTENV = %q, want from-file", got)
	}
	if got := os.Getenv("ECOTRACK_TEST_PRESET"); got != "from-env" {
		t.Errorf("existing variable overridden: %q", got)
	}
}

func TestEnvHelpers(t *testing.T) {
	t.Setenv("ECOTRACK_T_STR", "  value ")
	t.Setenv("ECOTRACK_T_INT", "42")
	t.Setenv("ECOTRACK_T_BADINT", "x")
	t.Setenv("ECOTRACK_T_FLOAT", "0.4")
	t.Setenv("ECOTRACK_T_BOOL", "true")
	t.Setenv("ECOTRACK_T_DUR", "250ms")

	if got := String("ECOTRACK_T_STR", "def"); got != "value" {
		t.Errorf("String = %q", got)
	}
	if got := String("ECOTRACK_T_UNSET", "def"); got != "def" {
		t.Errorf("String default = %q", got)
	}
	if got := Int("ECOTRACK_T_INT", 1); got != 42 {
		t.Errorf("Int = %d", got)
	}
	if got := Int("ECOTRACK_T_BADINT", 7); got != 7 {
		t.Errorf("Int malformed = %d, want default", got)
	}
	if got := Float("ECOTRACK_T_FLOAT", 0); got != 0.4 {
		t.Errorf("Float = %v", got)
	}
	if got := Bool("ECOTRACK_T_BOOL", false); !got {
		t.Error("Bool = false")
	}
	if got := Duration("ECOTRACK_T_DUR", time.Second); got != 250*time.Millisecond {
		t.Errorf("Duration = %v", got)
	}
}
