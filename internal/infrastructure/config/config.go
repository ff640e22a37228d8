// Package config provides configuration loading and management.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/ersonp/chronicle/internal/domain/services"
)

const (
	// DefaultConfigDir is the directory name for chronicle configuration.
	DefaultConfigDir = ".chronicle"
	// DefaultConfigFile is the default config file name.
	DefaultConfigFile = "config.yaml"
	// DefaultSchemaFile is the default audit schema file name.
	DefaultSchemaFile = "schema.yaml"
)

// Config holds static infrastructure configuration (read-only after init).
type Config struct {
	Database DatabaseConfig `yaml:"database,omitempty"`
	Audit    AuditConfig    `yaml:"audit,omitempty"`
}

// DatabaseConfig selects and configures the backing store.
type DatabaseConfig struct {
	// Driver is "sqlite" or "postgres".
	Driver   string         `yaml:"driver,omitempty"`
	SQLite   SQLiteConfig   `yaml:"sqlite,omitempty"`
	Postgres PostgresConfig `yaml:"postgres,omitempty"`
}

// SQLiteConfig holds configuration for the SQLite store.
type SQLiteConfig struct {
	// Path is the file path to the SQLite database.
	Path string `yaml:"path,omitempty"`
}

// PostgresConfig holds configuration for the PostgreSQL store.
type PostgresConfig struct {
	DSN string `yaml:"dsn,omitempty"`
}

// AuditConfig holds the shadow-table naming scheme and association loading
// behavior. All names are opaque strings passed through to queries.
type AuditConfig struct {
	TableSuffix        string `yaml:"table_suffix,omitempty"`
	RevisionColumn     string `yaml:"revision_column,omitempty"`
	RevisionTypeColumn string `yaml:"revision_type_column,omitempty"`
	RevisionTable      string `yaml:"revision_table,omitempty"`

	LoadAuditedRelations *bool `yaml:"load_audited_relations,omitempty"`
	LoadNativeRelations  *bool `yaml:"load_native_relations,omitempty"`

	// Schema is the path to the audit schema file describing the audited
	// types, relative to the config directory when not absolute.
	Schema string `yaml:"schema,omitempty"`
}

// Default returns a Config with default values.
func Default() *Config {
	naming := services.DefaultNaming()
	return &Config{
		Database: DatabaseConfig{
			Driver: "sqlite",
			SQLite: SQLiteConfig{Path: filepath.Join(DefaultConfigDir, "chronicle.db")},
		},
		Audit: AuditConfig{
			TableSuffix:        naming.TableSuffix,
			RevisionColumn:     naming.RevisionColumn,
			RevisionTypeColumn: naming.RevisionTypeColumn,
			RevisionTable:      naming.RevisionTable,
			Schema:             DefaultSchemaFile,
		},
	}
}

// Load loads configuration from the .chronicle directory in the given path.
func Load(basePath string) (*Config, error) {
	configFile := filepath.Join(basePath, DefaultConfigDir, DefaultConfigFile)

	data, err := os.ReadFile(configFile)
	if os.IsNotExist(err) {
		return nil, fmt.Errorf("config file not found: %s (run 'chronicle init' first)", configFile)
	}
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	// Start with defaults
	cfg := Default()

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	// Apply environment variable overrides
	cfg.applyEnvOverrides()

	return cfg, nil
}

// applyEnvOverrides applies environment variable overrides.
func (c *Config) applyEnvOverrides() {
	if dsn := os.Getenv("CHRONICLE_POSTGRES_DSN"); dsn != "" && c.Database.Postgres.DSN == "" {
		c.Database.Postgres.DSN = dsn
	}
}

// Naming returns the shadow-table naming scheme, falling back to the default
// for any name left empty.
func (c *AuditConfig) Naming() services.Naming {
	naming := services.DefaultNaming()
	if c.TableSuffix != "" {
		naming.TableSuffix = c.TableSuffix
	}
	if c.RevisionColumn != "" {
		naming.RevisionColumn = c.RevisionColumn
	}
	if c.RevisionTypeColumn != "" {
		naming.RevisionTypeColumn = c.RevisionTypeColumn
	}
	if c.RevisionTable != "" {
		naming.RevisionTable = c.RevisionTable
	}
	return naming
}

// LoadPolicy returns the association loading policy.
func (c *AuditConfig) LoadPolicy() services.LoadPolicy {
	policy := services.DefaultLoadPolicy()
	if c.LoadAuditedRelations != nil {
		policy.LoadAudited = *c.LoadAuditedRelations
	}
	if c.LoadNativeRelations != nil {
		policy.LoadNative = *c.LoadNativeRelations
	}
	return policy
}

// SchemaPath resolves the audit schema file path against the config directory.
func (c *Config) SchemaPath(basePath string) string {
	if filepath.IsAbs(c.Audit.Schema) {
		return c.Audit.Schema
	}
	return filepath.Join(basePath, DefaultConfigDir, c.Audit.Schema)
}

// SQLitePath resolves the SQLite database path against the base path.
func (c *Config) SQLitePath(basePath string) string {
	if filepath.IsAbs(c.Database.SQLite.Path) {
		return c.Database.SQLite.Path
	}
	return filepath.Join(basePath, c.Database.SQLite.Path)
}

// ConfigDir returns the path to the .chronicle config directory.
func ConfigDir(basePath string) string {
	return filepath.Join(basePath, DefaultConfigDir)
}

// ConfigFilePath returns the path to the config file.
func ConfigFilePath(basePath string) string {
	return filepath.Join(basePath, DefaultConfigDir, DefaultConfigFile)
}

// Exists checks if a chronicle config exists in the given path.
func Exists(basePath string) bool {
	configFile := filepath.Join(basePath, DefaultConfigDir, DefaultConfigFile)
	_, err := os.Stat(configFile)
	return err == nil
}
