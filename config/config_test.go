package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadCreatesDefaultConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.ListenAddress != ":8082" {
		t.Fatalf("unexpected listen address %q", cfg.ListenAddress)
	}
	if cfg.VaultKeystorePath == "" {
		t.Fatal("expected keystore path to be set")
	}
	if _, err := os.Stat(cfg.VaultKeystorePath); err != nil {
		t.Fatalf("expected keystore file: %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("expected config file persisted: %v", err)
	}
	if err := Validate(cfg); err != nil {
		t.Fatalf("default config should validate: %v", err)
	}
}

func TestLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	keystore := filepath.Join(dir, "vault.keystore")
	raw := `
ListenAddress = ":9000"
DataDir = "` + filepath.ToSlash(dir) + `"
PolicyFile = "custom-policy.yaml"
VaultKeystorePath = "` + filepath.ToSlash(keystore) + `"

[RateLimit]
RequestsPerMinute = 120
Burst = 10

[Pauses]
Treasury = true
`
	if err := os.WriteFile(path, []byte(raw), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.ListenAddress != ":9000" {
		t.Fatalf("unexpected listen address %q", cfg.ListenAddress)
	}
	if cfg.PolicyFile != "custom-policy.yaml" {
		t.Fatalf("unexpected policy file %q", cfg.PolicyFile)
	}
	if cfg.RateLimit.RequestsPerMinute != 120 || cfg.RateLimit.Burst != 10 {
		t.Fatalf("unexpected rate limit %+v", cfg.RateLimit)
	}
	if !cfg.Pauses.Treasury {
		t.Fatal("expected treasury pause set")
	}
	if _, err := os.Stat(keystore); err != nil {
		t.Fatalf("expected keystore created: %v", err)
	}
}

func TestLoadAppliesDefaultsToSparseConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	if err := os.WriteFile(path, []byte("ListenAddress = \":7000\"\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.DataDir != "./trvault-data" {
		t.Fatalf("unexpected data dir %q", cfg.DataDir)
	}
	if cfg.AuditDatabasePath != filepath.Join("./trvault-data", "audit.db") {
		t.Fatalf("unexpected audit path %q", cfg.AuditDatabasePath)
	}
	if cfg.RateLimit.RequestsPerMinute != 600 {
		t.Fatalf("unexpected rate limit %d", cfg.RateLimit.RequestsPerMinute)
	}
}

func TestValidateRejectsBadConfig(t *testing.T) {
	cases := []struct {
		name string
		cfg  *Config
	}{
		{"nil", nil},
		{"missing listen", &Config{DataDir: "d", RateLimit: RateLimit{RequestsPerMinute: 1, Burst: 1}}},
		{"missing datadir", &Config{ListenAddress: ":1", RateLimit: RateLimit{RequestsPerMinute: 1, Burst: 1}}},
		{"zero rate", &Config{ListenAddress: ":1", DataDir: "d", RateLimit: RateLimit{Burst: 1}}},
		{"zero burst", &Config{ListenAddress: ":1", DataDir: "d", RateLimit: RateLimit{RequestsPerMinute: 1}}},
	}
	for _, tc := range cases {
		if err := Validate(tc.cfg); err == nil {
			t.Fatalf("%s: expected validation error", tc.name)
		}
	}
}
