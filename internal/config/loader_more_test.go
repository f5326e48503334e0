package config

import (
	"testing"
)

func TestLoad_NonexistentFile(t *testing.T) {
	if _, err := Load("/definitely/not/a/real/file-12345.yaml"); err == nil {
		t.Fatalf("expected error for nonexistent file")
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	d := t.TempDir()
	p := writeTempFile(t, d, "bad.yaml", "addr: :8080\n: broken\n")
	if _, err := Load(p); err == nil {
		t.Fatalf("expected YAML unmarshal error")
	}
}

func TestLoad_InvalidJSON(t *testing.T) {
	d := t.TempDir()
	p := writeTempFile(t, d, "bad.json", `{ "addr": ":8080", "model": }`)
	if _, err := Load(p); err == nil {
		t.Fatalf("expected JSON unmarshal error")
	}
}

func TestLoad_InvalidTOML(t *testing.T) {
	d := t.TempDir()
	p := writeTempFile(t, d, "bad.toml", "addr=:8080\nmodel\n")
	if _, err := Load(p); err == nil {
		t.Fatalf("expected TOML unmarshal error")
	}
}

func TestApplyEnv(t *testing.T) {
	t.Setenv("ARTIFYD_ADDR", ":1234")
	t.Setenv("ARTIFYD_BACKEND", "synthetic")
	t.Setenv("ARTIFYD_ATTENTION_SLICING", "false")
	t.Setenv("ARTIFYD_PROVISION", "1")
	t.Setenv("ARTIFYD_PROVISION_PACKAGES", "torch, torchvision")
	t.Setenv("ARTIFYD_CORS_ORIGINS", "http://x,http://y")
	cfg := Defaults()
	if err := ApplyEnv(&cfg); err != nil {
		t.Fatalf("apply env: %v", err)
	}
	if cfg.Addr != ":1234" || cfg.Model.Backend != "synthetic" || cfg.Model.AttentionSlicing {
		t.Fatalf("unexpected cfg: %+v", cfg)
	}
	if !cfg.Provision.Enabled || len(cfg.Provision.Packages) != 2 || cfg.Provision.Packages[1] != "torchvision" {
		t.Fatalf("unexpected provision: %+v", cfg.Provision)
	}
	if len(cfg.CORS.AllowedOrigins) != 2 {
		t.Fatalf("unexpected origins: %v", cfg.CORS.AllowedOrigins)
	}
}

func TestApplyEnv_BadValues(t *testing.T) {
	t.Setenv("ARTIFYD_COMFY_PORT", "eighty")
	t.Setenv("ARTIFYD_PROVISION", "maybe")
	cfg := Defaults()
	if err := ApplyEnv(&cfg); err == nil {
		t.Fatalf("expected error for malformed env values")
	}
}

func TestDefaults_UseRealBackend(t *testing.T) {
	cfg := Defaults()
	if cfg.Model.Backend != "sdapi" || cfg.Model.ID != DefaultModelID || cfg.Model.SDAPIURL == "" {
		t.Fatalf("defaults must point at a model server, got %+v", cfg.Model)
	}
}

func TestValidate(t *testing.T) {
	if err := Defaults().Validate(); err != nil {
		t.Fatalf("defaults should validate: %v", err)
	}
	cases := map[string]func(*Config){
		"empty addr":       func(c *Config) { c.Addr = " " },
		"unknown backend":  func(c *Config) { c.Model.Backend = "onnx" },
		"unknown device":   func(c *Config) { c.Model.Device = "tpu" },
		"comfy workflows":  func(c *Config) { c.Model.Backend = "comfyui" },
		"negative timeout": func(c *Config) { c.Provision.TimeoutSeconds = -1 },
	}
	for name, mutate := range cases {
		cfg := Defaults()
		mutate(&cfg)
		if err := cfg.Validate(); err == nil {
			t.Fatalf("%s: expected validation error", name)
		}
	}
}

func TestSplitCSV(t *testing.T) {
	cases := []struct {
		in   string
		want []string
	}{
		{"a,b,c", []string{"a", "b", "c"}},
		{" a , b , c ", []string{"a", "b", "c"}},
		{"a,,c", []string{"a", "c"}},
		{"", nil},
	}
	for _, c := range cases {
		got := SplitCSV(c.in)
		if len(got) != len(c.want) {
			t.Fatalf("%q -> %v, want %v", c.in, got, c.want)
		}
		for i := range got {
			if got[i] != c.want[i] {
				t.Fatalf("%q -> %v, want %v", c.in, got, c.want)
			}
		}
	}
}
