// Package config loads the vault's YAML configuration.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/dd0wney/cluso-vaultcrypt/pkg/kdf"
	"github.com/dd0wney/cluso-vaultcrypt/pkg/validation"
)

const (
	BackendLocal = "local"
	BackendS3    = "s3"
)

// Config is the top-level configuration file.
type Config struct {
	Scheme        string           `yaml:"scheme" validate:"required,scheme"`
	KeyDir        string           `yaml:"key_dir" validate:"required"`
	KeyID         string           `yaml:"key_id" validate:"omitempty,uuid"`
	AuditLog      string           `yaml:"audit_log"`
	LegacyPadding bool             `yaml:"legacy_padding"`
	LogLevel      string           `yaml:"log_level" validate:"omitempty,oneof=debug info warn error"`
	MetricsFile   string           `yaml:"metrics_file"`
	Scrypt        kdf.ScryptParams `yaml:"scrypt"`
	Backend       BackendConfig    `yaml:"backend"`
}

// BackendConfig selects and configures where ciphertext is stored.
type BackendConfig struct {
	Type  string      `yaml:"type" validate:"required,oneof=local s3"`
	Local LocalConfig `yaml:"local"`
	S3    S3Config    `yaml:"s3"`
}

type LocalConfig struct {
	Root string `yaml:"root"`
}

type S3Config struct {
	Bucket    string `yaml:"bucket"`
	Region    string `yaml:"region"`
	Endpoint  string `yaml:"endpoint" validate:"omitempty,url"`
	Prefix    string `yaml:"prefix"`
	PathStyle bool   `yaml:"path_style"`
}

// Default returns a configuration for a local vault under ./vault.
func Default() *Config {
	return &Config{
		Scheme:   "UVF_GCM",
		KeyDir:   "vault/keys",
		LogLevel: "info",
		Scrypt:   kdf.DefaultScryptParams(),
		Backend: BackendConfig{
			Type:  BackendLocal,
			Local: LocalConfig{Root: "vault/data"},
		},
	}
}

// Load reads path over the defaults, applies environment overrides, and
// validates the result.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	return Parse(data)
}

// Parse is Load for an in-memory document.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	cfg.ApplyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// ApplyEnv overrides fields from VAULT_* environment variables.
func (c *Config) ApplyEnv() {
	if v := os.Getenv("VAULT_SCHEME"); v != "" {
		c.Scheme = v
	}
	if v := os.Getenv("VAULT_KEY_DIR"); v != "" {
		c.KeyDir = v
	}
	if v := os.Getenv("VAULT_KEY_ID"); v != "" {
		c.KeyID = v
	}
	if v := os.Getenv("VAULT_LOG_LEVEL"); v != "" {
		c.LogLevel = strings.ToLower(v)
	}
}

// Validate checks struct tags first, then rules spanning several fields.
func (c *Config) Validate() error {
	if err := validation.Struct(c); err != nil {
		return err
	}
	return validation.NewConfigValidator("config").
		Custom("scrypt", func() error {
			return kdf.CheckScryptParams(c.Scrypt.CostParam, c.Scrypt.BlockSize)
		}).
		When(c.Backend.Type == BackendLocal, func(cv *validation.ConfigValidator) {
			cv.Required("backend.local.root", c.Backend.Local.Root)
		}).
		When(c.Backend.Type == BackendS3, func(cv *validation.ConfigValidator) {
			cv.Required("backend.s3.bucket", c.Backend.S3.Bucket)
			cv.Required("backend.s3.region", c.Backend.S3.Region)
		}).
		Validate()
}

// AuditPath returns the key lifecycle trail, key_dir/audit.jsonl unless
// audit_log is set.
func (c *Config) AuditPath() string {
	if c.AuditLog != "" {
		return c.AuditLog
	}
	return filepath.Join(c.KeyDir, "audit.jsonl")
}

// Marshal renders the configuration as YAML.
func (c *Config) Marshal() ([]byte, error) {
	return yaml.Marshal(c)
}
