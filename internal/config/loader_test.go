package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeTempFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return p
}

func TestLoadYAML(t *testing.T) {
	d := t.TempDir()
	p := writeTempFile(t, d, "cfg.yaml", "addr: :9999\nmodel:\n  id: m1\n  backend: sdapi\n  sdapi_url: http://gpu:7860\nprovision:\n  enabled: true\n  timeout_seconds: 60\n")
	cfg, err := Load(p)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Addr != ":9999" || cfg.Model.ID != "m1" || cfg.Model.Backend != "sdapi" || cfg.Model.SDAPIURL != "http://gpu:7860" {
		t.Fatalf("unexpected cfg: %+v", cfg)
	}
	if !cfg.Provision.Enabled || cfg.Provision.TimeoutSeconds != 60 {
		t.Fatalf("unexpected provision: %+v", cfg.Provision)
	}
	// Unspecified fields keep their defaults.
	if cfg.Model.Device != "auto" || !cfg.Model.AttentionSlicing || cfg.Provision.IndexURL != DefaultIndexURL {
		t.Fatalf("defaults lost: %+v", cfg)
	}
}

func TestLoadJSON(t *testing.T) {
	d := t.TempDir()
	p := writeTempFile(t, d, "cfg.json", `{"addr":":7070","model":{"id":"m2","device":"cpu"},"cors":{"allowed_origins":["http://a"]}}`)
	cfg, err := Load(p)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Addr != ":7070" || cfg.Model.ID != "m2" || cfg.Model.Device != "cpu" {
		t.Fatalf("unexpected cfg: %+v", cfg)
	}
	if len(cfg.CORS.AllowedOrigins) != 1 || cfg.CORS.AllowedOrigins[0] != "http://a" {
		t.Fatalf("unexpected cors: %+v", cfg.CORS)
	}
}

func TestLoadTOML(t *testing.T) {
	d := t.TempDir()
	p := writeTempFile(t, d, "cfg.toml", "addr=\":8081\"\n[model]\nid=\"m3\"\nbackend=\"comfyui\"\ncomfy_port=9000\n")
	cfg, err := Load(p)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Addr != ":8081" || cfg.Model.ID != "m3" || cfg.Model.Backend != "comfyui" || cfg.Model.ComfyPort != 9000 {
		t.Fatalf("unexpected cfg: %+v", cfg)
	}
}

func TestLoadErrors(t *testing.T) {
	if _, err := Load(""); err == nil {
		t.Fatalf("expected error on empty path")
	}
	d := t.TempDir()
	p := writeTempFile(t, d, "cfg.txt", "not supported")
	if _, err := Load(p); err == nil {
		t.Fatalf("expected unsupported extension error")
	}
}
