package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadExplicitMissingFile(t *testing.T) {
	t.Setenv("PAGENODE_CONFIG", filepath.Join(t.TempDir(), "missing.yaml"))

	// An explicitly named but missing file is an error.
	if _, err := Load(nil); err == nil {
		t.Fatalf("Load() = nil error, want failure for missing explicit config")
	}
}

func TestLoadYAMLThenEnvOverride(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "pagenode.yaml")
	raw := []byte(`
server:
  port: "9000"
chunker:
  target_chars: 1500
  overlap_chars: 150
uploads:
  dir: /var/lib/pagenode
`)
	if err := os.WriteFile(path, raw, 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("PAGENODE_CONFIG", path)
	t.Setenv("CHUNK_TARGET_CHARS", "1800")

	cfg, err := Load(nil)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Port != "9000" {
		t.Fatalf("port = %q, want 9000 (from yaml)", cfg.Server.Port)
	}
	if cfg.Chunker.TargetChars != 1800 {
		t.Fatalf("target chars = %d, want 1800 (env wins over yaml)", cfg.Chunker.TargetChars)
	}
	if cfg.Chunker.OverlapChars != 150 {
		t.Fatalf("overlap chars = %d, want 150", cfg.Chunker.OverlapChars)
	}
	if cfg.Uploads.Dir != "/var/lib/pagenode" {
		t.Fatalf("uploads dir = %q", cfg.Uploads.Dir)
	}
}

func TestLoadRejectsOverlapAtLeastTarget(t *testing.T) {
	t.Setenv("CHUNK_TARGET_CHARS", "100")
	t.Setenv("CHUNK_OVERLAP_CHARS", "100")

	if _, err := Load(nil); err == nil {
		t.Fatalf("Load() accepted overlap >= target")
	}
}

func TestLoadCORSOriginsFromEnv(t *testing.T) {
	t.Setenv("CORS_ORIGINS", "https://a.example, https://b.example ,")

	cfg, err := Load(nil)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	want := []string{"https://a.example", "https://b.example"}
	if len(cfg.Server.CORSOrigins) != len(want) {
		t.Fatalf("origins = %v, want %v", cfg.Server.CORSOrigins, want)
	}
	for i := range want {
		if cfg.Server.CORSOrigins[i] != want[i] {
			t.Fatalf("origins[%d] = %q, want %q", i, cfg.Server.CORSOrigins[i], want[i])
		}
	}
}
