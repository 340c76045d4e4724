package secrets

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"parley/internal/domain"
)

func TestResolveLiteral(t *testing.T) {
	got, err := Resolve("sk-plain-key")
	if err != nil {
		t.Fatal(err)
	}
	if got != "sk-plain-key" {
		t.Errorf("got %q", got)
	}
}

func TestResolveEmpty(t *testing.T) {
	got, err := Resolve("")
	if err != nil || got != "" {
		t.Errorf("Resolve(\"\") = %q, %v; want empty, nil", got, err)
	}
}

func TestResolveEnv(t *testing.T) {
	t.Setenv("PARLEY_TEST_KEY", "sk-from-env")
	got, err := Resolve("env:PARLEY_TEST_KEY")
	if err != nil {
		t.Fatal(err)
	}
	if got != "sk-from-env" {
		t.Errorf("got %q", got)
	}
}

func TestResolveEnvMissing(t *testing.T) {
	_, err := Resolve("env:PARLEY_TEST_KEY_DOES_NOT_EXIST")
	if !errors.Is(err, domain.ErrSecretResolve) {
		t.Errorf("want ErrSecretResolve, got %v", err)
	}
}

func TestResolveFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "key")
	if err := os.WriteFile(path, []byte("  sk-from-file\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	got, err := Resolve("file:" + path)
	if err != nil {
		t.Fatal(err)
	}
	if got != "sk-from-file" {
		t.Errorf("got %q, want trimmed contents", got)
	}
}

func TestResolveFileMissing(t *testing.T) {
	_, err := Resolve("file:" + filepath.Join(t.TempDir(), "nope"))
	if !errors.Is(err, domain.ErrSecretResolve) {
		t.Errorf("want ErrSecretResolve, got %v", err)
	}
}
