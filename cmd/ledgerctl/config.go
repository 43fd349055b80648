package main

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

const (
	BackendBolt    = "bolt"
	BackendLevelDB = "leveldb"
)

// Config is the ledgerctl configuration file.
type Config struct {
	Backend   string `yaml:"backend"` // bolt, leveldb
	Path      string `yaml:"path"`
	CommitLog string `yaml:"commit_log,omitempty"`
	Verbose   bool   `yaml:"verbose"`
	Encoding  string `yaml:"encoding"` // json, msgpack
}

func DefaultConfig() *Config {
	return &Config{
		Backend:  BackendBolt,
		Path:     "ledger.db",
		Encoding: "json",
	}
}

// LoadConfig reads the YAML config at path. A missing file yields the
// defaults. LEDGER_BACKEND, LEDGER_PATH and LEDGER_COMMIT_LOG override the
// file.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		if err == nil {
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
			}
		}
	}

	cfg.applyEnvOverrides()
	return cfg, cfg.Validate()
}

func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("LEDGER_BACKEND"); v != "" {
		c.Backend = v
	}
	if v := os.Getenv("LEDGER_PATH"); v != "" {
		c.Path = v
	}
	if v := os.Getenv("LEDGER_COMMIT_LOG"); v != "" {
		c.CommitLog = v
	}
}

func (c *Config) Validate() error {
	switch c.Backend {
	case BackendBolt, BackendLevelDB:
	default:
		return fmt.Errorf("invalid backend %q, wanted %s or %s", c.Backend, BackendBolt, BackendLevelDB)
	}
	if c.Path == "" {
		return fmt.Errorf("path is required")
	}
	switch c.Encoding {
	case "json", "msgpack":
	default:
		return fmt.Errorf("invalid encoding %q, wanted json or msgpack", c.Encoding)
	}
	return nil
}
