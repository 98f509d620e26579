package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestDefault_Valid(t *testing.T) {
	cfg := Default()
	cfg.Target = "example.com"
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
	if cfg.Ports != "1-1024" || cfg.Timeout != time.Second {
		t.Fatalf("unexpected defaults: ports=%q timeout=%v", cfg.Ports, cfg.Timeout)
	}
	if cfg.AnyModule() {
		t.Fatalf("no module should be enabled by default")
	}
}

func TestLoad_OverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "recon.yaml")
	body := `
target: example.org
scan: true
services: true
ports: "22,80,443"
timeout: 250ms
concurrency: 50
dns_types: [A, NS]
`
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Target != "example.org" || !cfg.Scan || !cfg.Services {
		t.Fatalf("module fields not loaded: %+v", cfg)
	}
	if cfg.Ports != "22,80,443" || cfg.Timeout != 250*time.Millisecond || cfg.Concurrency != 50 {
		t.Fatalf("scan fields not loaded: %+v", cfg)
	}
	if len(cfg.DNSTypes) != 2 || cfg.DNSTypes[1] != "NS" {
		t.Fatalf("dns types = %v", cfg.DNSTypes)
	}
	// untouched keys keep their defaults
	if cfg.MaxPages != 5 || cfg.Output != "output" {
		t.Fatalf("defaults lost: %+v", cfg)
	}
}

func TestLoad_Errors(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatalf("expected error for missing file")
	}
	path := filepath.Join(t.TempDir(), "bad.yaml")
	_ = os.WriteFile(path, []byte("timeout: [not a duration"), 0o644)
	if _, err := Load(path); err == nil {
		t.Fatalf("expected parse error")
	}
}

func TestValidate_ReportsEveryProblem(t *testing.T) {
	cfg := Default()
	cfg.Timeout = 0
	cfg.Concurrency = -1
	err := cfg.Validate()
	if err == nil {
		t.Fatalf("expected validation error")
	}
	msg := err.Error()
	for _, want := range []string{"target", "timeout", "concurrency"} {
		if !strings.Contains(msg, want) {
			t.Errorf("error %q does not mention %s", msg, want)
		}
	}
}
