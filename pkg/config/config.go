// Package config handles loading and validating the agent configuration.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration for the agent.
type Config struct {
	Vault           VaultConfig    `yaml:"vault"`
	KVSecret        KVConfig       `yaml:"kv_secret"`
	DatabaseDynamic DatabaseConfig `yaml:"database_dynamic"`
	DatabaseStatic  DatabaseConfig `yaml:"database_static"`
	Status          StatusConfig   `yaml:"status"`
	Probe           ProbeConfig    `yaml:"probe"`
}

// VaultConfig holds the Vault server connection and AppRole settings.
type VaultConfig struct {
	Entity         string `yaml:"entity"`    // Mount prefix: secrets live under <entity>-kv and <entity>-database.
	URL            string `yaml:"url"`       // Override: VAULT_URL env var.
	Namespace      string `yaml:"namespace"` // Optional. Override: VAULT_NAMESPACE env var.
	RoleID         string `yaml:"role_id"`   // Override: VAULT_ROLE_ID env var.
	SecretID       string `yaml:"secret_id"` // Override: VAULT_SECRET_ID env var.
	TimeoutSeconds int    `yaml:"timeout_seconds"`
}

// Timeout returns the per-request timeout with a default of 10s.
func (v VaultConfig) Timeout() time.Duration {
	if v.TimeoutSeconds > 0 {
		return time.Duration(v.TimeoutSeconds) * time.Second
	}
	return 10 * time.Second
}

// KVMount returns the KV v2 mount path derived from the entity.
func (v VaultConfig) KVMount() string {
	return v.Entity + "-kv"
}

// DatabaseMount returns the database secret engine mount path derived from the entity.
func (v VaultConfig) DatabaseMount() string {
	return v.Entity + "-database"
}

// KVConfig configures the KV secret refresh loop.
type KVConfig struct {
	Enabled                bool   `yaml:"enabled"`
	Path                   string `yaml:"path"` // Override: VAULT_KV_PATH env var.
	RefreshIntervalSeconds int    `yaml:"refresh_interval_seconds"`
}

// RefreshInterval returns the KV refresh cadence with a default of 60s.
func (k KVConfig) RefreshInterval() time.Duration {
	if k.RefreshIntervalSeconds > 0 {
		return time.Duration(k.RefreshIntervalSeconds) * time.Second
	}
	return 60 * time.Second
}

// DatabaseConfig configures a database credential refresh loop.
type DatabaseConfig struct {
	Enabled bool   `yaml:"enabled"`
	Role    string `yaml:"role"`
}

// StatusConfig configures the local HTTP status endpoint.
type StatusConfig struct {
	Enabled    bool   `yaml:"enabled"`
	ListenAddr string `yaml:"listen_addr"` // Default: ":8080".
}

// Addr returns the listen address with a default of ":8080".
func (s StatusConfig) Addr() string {
	if s.ListenAddr != "" {
		return s.ListenAddr
	}
	return ":8080"
}

// ProbeConfig configures the PostgreSQL connection probe that verifies
// dynamically issued credentials against a live database.
type ProbeConfig struct {
	Enabled bool   `yaml:"enabled"`
	Host    string `yaml:"host"`
	Port    string `yaml:"port"` // Default: "5432".
	DBName  string `yaml:"dbname"`
}

// Load reads a YAML config file, applies environment variable overrides, and
// returns a validated Config. Environment variables take precedence over file
// values, following the VAULT_<KEY> naming convention.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}

	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}

func (c *Config) applyEnvOverrides() {
	overrides := []struct {
		key  string
		dest *string
	}{
		{"VAULT_ENTITY", &c.Vault.Entity},
		{"VAULT_URL", &c.Vault.URL},
		{"VAULT_NAMESPACE", &c.Vault.Namespace},
		{"VAULT_ROLE_ID", &c.Vault.RoleID},
		{"VAULT_SECRET_ID", &c.Vault.SecretID},
		{"VAULT_KV_PATH", &c.KVSecret.Path},
		{"VAULT_DB_DYNAMIC_ROLE", &c.DatabaseDynamic.Role},
		{"VAULT_DB_STATIC_ROLE", &c.DatabaseStatic.Role},
	}
	for _, o := range overrides {
		if v := os.Getenv(o.key); v != "" {
			*o.dest = v
		}
	}
}

// Validate checks that required settings are present. A validation failure is
// the only error class that should abort process startup.
func (c *Config) Validate() error {
	if c.Vault.URL == "" {
		return fmt.Errorf("vault.url is required (set VAULT_URL env var)")
	}
	if c.Vault.Entity == "" {
		return fmt.Errorf("vault.entity is required (set VAULT_ENTITY env var)")
	}
	if c.Vault.RoleID == "" {
		return fmt.Errorf("vault.role_id is required (set VAULT_ROLE_ID env var)")
	}
	if c.Vault.SecretID == "" {
		return fmt.Errorf("vault.secret_id is required (set VAULT_SECRET_ID env var)")
	}
	if c.Vault.TimeoutSeconds < 0 {
		return fmt.Errorf("vault.timeout_seconds must not be negative")
	}
	if c.KVSecret.Enabled && c.KVSecret.Path == "" {
		return fmt.Errorf("kv_secret.path is required when kv_secret is enabled")
	}
	if c.KVSecret.RefreshIntervalSeconds < 0 {
		return fmt.Errorf("kv_secret.refresh_interval_seconds must not be negative")
	}
	if c.DatabaseDynamic.Enabled && c.DatabaseDynamic.Role == "" {
		return fmt.Errorf("database_dynamic.role is required when database_dynamic is enabled")
	}
	if c.DatabaseStatic.Enabled && c.DatabaseStatic.Role == "" {
		return fmt.Errorf("database_static.role is required when database_static is enabled")
	}
	if c.Probe.Enabled {
		if !c.DatabaseDynamic.Enabled {
			return fmt.Errorf("probe requires database_dynamic to be enabled")
		}
		if c.Probe.Host == "" || c.Probe.DBName == "" {
			return fmt.Errorf("probe.host and probe.dbname are required when probe is enabled")
		}
	}
	return nil
}
