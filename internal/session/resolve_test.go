package session

import (
	"os"
	"path/filepath"
	"testing"
)

func TestResolve(t *testing.T) {
	home := t.TempDir()
	t.Setenv("ACHAT_HOME", home)
	t.Setenv("ACHAT_SESSION", "")
	chdirForTest(t, t.TempDir())

	if got := Resolve("work"); got != "work" {
		t.Errorf("flag: Resolve = %q, want work", got)
	}
	if got := Resolve(""); got != DefaultSessionName {
		t.Errorf("no config: Resolve = %q, want %q", got, DefaultSessionName)
	}

	if err := os.WriteFile(filepath.Join(home, "config.toml"), []byte("default_session = \"home\"\n"), 0600); err != nil {
		t.Fatal(err)
	}
	if got := Resolve(""); got != "home" {
		t.Errorf("config: Resolve = %q, want home", got)
	}

	t.Setenv("ACHAT_SESSION", "envsess")
	if got := Resolve(""); got != "envsess" {
		t.Errorf("env: Resolve = %q, want envsess", got)
	}
}

// chdirForTest mirrors testing.T.Chdir (Go 1.24+) for older toolchains.
func chdirForTest(t *testing.T, dir string) {
	t.Helper()
	prev, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() {
		if err := os.Chdir(prev); err != nil {
			t.Fatal(err)
		}
	})
}
