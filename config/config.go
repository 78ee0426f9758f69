package config

import (
	"os"
	"path/filepath"
	"strings"

	"trvault/crypto"

	"github.com/BurntSushi/toml"
)

type Config struct {
	ListenAddress     string    `toml:"ListenAddress"`
	DataDir           string    `toml:"DataDir"`
	PolicyFile        string    `toml:"PolicyFile"`
	VaultKeystorePath string    `toml:"VaultKeystorePath"`
	AuditDatabasePath string    `toml:"AuditDatabasePath"`
	RateLimit         RateLimit `toml:"RateLimit"`
	Pauses            Pauses    `toml:"Pauses"`
}

// Load loads the daemon configuration from the given path, creating a default
// config file and a fresh vault keystore on first run.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return createDefault(path)
	}

	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, err
	}
	applyDefaults(cfg)
	if err := ensureKeystore(path, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyDefaults(cfg *Config) {
	if strings.TrimSpace(cfg.ListenAddress) == "" {
		cfg.ListenAddress = ":8082"
	}
	if strings.TrimSpace(cfg.DataDir) == "" {
		cfg.DataDir = "./trvault-data"
	}
	if strings.TrimSpace(cfg.PolicyFile) == "" {
		cfg.PolicyFile = "policy.yaml"
	}
	if strings.TrimSpace(cfg.AuditDatabasePath) == "" {
		cfg.AuditDatabasePath = filepath.Join(cfg.DataDir, "audit.db")
	}
	if cfg.RateLimit.RequestsPerMinute <= 0 {
		cfg.RateLimit.RequestsPerMinute = 600
	}
	if cfg.RateLimit.Burst <= 0 {
		cfg.RateLimit.Burst = 60
	}
}

func ensureKeystore(configPath string, cfg *Config) error {
	keystorePath := cfg.VaultKeystorePath
	if keystorePath == "" {
		keystorePath = defaultKeystorePath(configPath)
	}

	if _, err := os.Stat(keystorePath); os.IsNotExist(err) {
		key, genErr := crypto.GeneratePrivateKey()
		if genErr != nil {
			return genErr
		}
		if err := crypto.SaveToKeystore(keystorePath, key, ""); err != nil {
			return err
		}
	} else if err != nil {
		return err
	}

	if cfg.VaultKeystorePath != keystorePath {
		cfg.VaultKeystorePath = keystorePath
		return persist(configPath, cfg)
	}
	return nil
}

// createDefault creates and saves a default configuration file alongside a
// fresh vault keystore.
func createDefault(path string) (*Config, error) {
	key, err := crypto.GeneratePrivateKey()
	if err != nil {
		return nil, err
	}

	keystorePath := defaultKeystorePath(path)
	if err := crypto.SaveToKeystore(keystorePath, key, ""); err != nil {
		return nil, err
	}

	cfg := &Config{VaultKeystorePath: keystorePath}
	applyDefaults(cfg)

	if err := persist(path, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func persist(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_TRUNC|os.O_CREATE, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	return toml.NewEncoder(f).Encode(cfg)
}

func defaultKeystorePath(configPath string) string {
	dir := filepath.Dir(configPath)
	if dir == "." || dir == "" {
		dir = ""
	}
	return filepath.Join(dir, "vault.keystore")
}
