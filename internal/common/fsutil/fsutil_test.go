package fsutil

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"
)

func setHome(t *testing.T) string {
	t.Helper()
	home := t.TempDir()
	t.Setenv("HOME", home)
	if runtime.GOOS == "windows" {
		t.Setenv("USERPROFILE", home)
	}
	return home
}

func TestExpandHome(t *testing.T) {
	home := setHome(t)
	if got, err := ExpandHome("/tmp"); err != nil || got != "/tmp" {
		t.Fatalf("got %q err=%v", got, err)
	}
	if got, err := ExpandHome(""); err != nil || got != "" {
		t.Fatalf("got %q err=%v", got, err)
	}
	p, err := ExpandHome("~")
	if err != nil || p != home {
		t.Fatalf("expected %q, got %q err=%v", home, p, err)
	}
	exp, err := ExpandHome("~/workflows")
	if err != nil {
		t.Fatalf("err: %v", err)
	}
	if filepath.Base(exp) != "workflows" {
		t.Fatalf("unexpected expanded path: %q", exp)
	}
}

func TestReadUserFile(t *testing.T) {
	home := setHome(t)
	if err := os.WriteFile(filepath.Join(home, "wf.json"), []byte(`{}`), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	b, err := ReadUserFile("~/wf.json")
	if err != nil || string(b) != "{}" {
		t.Fatalf("got %q err=%v", b, err)
	}
	if _, err := ReadUserFile("~/missing.json"); err == nil {
		t.Fatalf("expected error for missing file")
	}
	if _, err := ReadUserFile(home); err == nil {
		t.Fatalf("expected error for directory")
	}
}
