// Package config defines firstd's on-disk configuration: a YAML file with
// an embedded example and an upgrade path for fields added across releases,
// the way the teacher's connector config is structured (pkg/connector/config.go).
package config

import (
	_ "embed"
	"fmt"
	"os"

	up "go.mau.fi/util/configupgrade"
	"gopkg.in/yaml.v3"
)

//go:embed example-config.yaml
var ExampleConfig string

// Config is firstd's top-level configuration.
type Config struct {
	Listen      ListenConfig      `yaml:"listen"`
	Database    DatabaseConfig    `yaml:"database"`
	Limits      LimitsConfig      `yaml:"limits"`
	Logging     LoggingConfig     `yaml:"logging"`
	Maintenance MaintenanceConfig `yaml:"maintenance"`
}

// ListenConfig configures the RPC facade's HTTP listener.
type ListenConfig struct {
	Address string `yaml:"address"`
}

// DatabaseConfig selects the store's SQL backend.
type DatabaseConfig struct {
	Driver       string `yaml:"driver"` // sqlite3 or postgres
	URI          string `yaml:"uri"`
	MaxOpenConns int    `yaml:"max_open_conns"`
}

// LimitsConfig holds request-shape limits. They are loaded but not consulted:
// the facade's validators enforce a fixed batch limit of 20 and no opcode
// size limit.
type LimitsConfig struct {
	MaxBatchSize   int `yaml:"max_batch_size"`
	MaxOpcodeBytes int `yaml:"max_opcode_bytes"`
}

// LoggingConfig configures zerolog's level and, optionally, rotation of a
// log file via lumberjack.
type LoggingConfig struct {
	Level      string `yaml:"level"`
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
}

// MaintenanceConfig configures the cron-driven background sweep.
type MaintenanceConfig struct {
	Cron string `yaml:"cron"`
}

// upgradeConfig copies every known field from an existing config file into
// the upgraded one, the way every mautrix-derived config package's
// upgradeConfig does (spec's AMBIENT STACK §2.2, grounded on
// pkg/connector/config.go's upgradeConfig). Unknown fields in the user's
// file are preserved verbatim; missing ones fall back to ExampleConfig.
func upgradeConfig(helper up.Helper) {
	helper.Copy(up.Str, "listen", "address")

	helper.Copy(up.Str, "database", "driver")
	helper.Copy(up.Str, "database", "uri")
	helper.Copy(up.Int, "database", "max_open_conns")

	helper.Copy(up.Int, "limits", "max_batch_size")
	helper.Copy(up.Int, "limits", "max_opcode_bytes")

	helper.Copy(up.Str, "logging", "level")
	helper.Copy(up.Str, "logging", "file")
	helper.Copy(up.Int, "logging", "max_size_mb")
	helper.Copy(up.Int, "logging", "max_backups")
	helper.Copy(up.Int, "logging", "max_age_days")

	helper.Copy(up.Str, "maintenance", "cron")
}

// Upgrader is the configupgrade.Upgrader firstd registers its fields with.
var Upgrader = up.SimpleUpgrader(upgradeConfig)

// Load reads the config file at path, upgrading it in place against
// ExampleConfig (writing the upgraded file back to disk when fields were
// added), and unmarshals the result.
func Load(path string) (*Config, error) {
	upgraded, _, err := up.Do(path, true, Upgrader)
	if err != nil {
		return nil, fmt.Errorf("config: upgrade %s: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(upgraded, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	return &cfg, nil
}

// WriteDefault writes ExampleConfig to path if no file exists there yet.
func WriteDefault(path string) error {
	if _, err := os.Stat(path); err == nil {
		return nil
	}
	return os.WriteFile(path, []byte(ExampleConfig), 0o644)
}
