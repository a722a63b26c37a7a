// Package config handles the two configuration layers: the bootstrap server
// config read from YAML and environment at startup, and the user-editable
// runtime settings persisted with encrypted secrets.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// ServerConfig is the bootstrap configuration. It is fixed for the life of
// the process; the user-editable backend settings live in SettingsStore.
type ServerConfig struct {
	ListenAddr string `yaml:"listen_addr"`
	DataDir    string `yaml:"data_dir"`
	ActivityDB string `yaml:"activity_db"`

	// Jobs bounds asynchronous processing across all modules.
	Jobs JobsConfig `yaml:"jobs"`
}

type JobsConfig struct {
	MaxInFlight int64         `yaml:"max_in_flight"`
	Timeout     time.Duration `yaml:"timeout"`
}

// DefaultServerConfig returns the configuration used when no file is given.
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		ListenAddr: ":8080",
		DataDir:    "./data",
		ActivityDB: "./data/activity.db",
		Jobs: JobsConfig{
			MaxInFlight: 8,
			Timeout:     120 * time.Second,
		},
	}
}

// LoadServerConfig reads the YAML file at path (optional) and applies
// environment overrides: COMIA_LISTEN_ADDR, COMIA_DATA_DIR,
// COMIA_ACTIVITY_DB, COMIA_MAX_IN_FLIGHT, COMIA_JOB_TIMEOUT.
func LoadServerConfig(path string) (ServerConfig, error) {
	cfg := DefaultServerConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return ServerConfig{}, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return ServerConfig{}, fmt.Errorf("yaml parse: %w", err)
		}
	}

	if v := os.Getenv("COMIA_LISTEN_ADDR"); v != "" {
		cfg.ListenAddr = v
	}
	if v := os.Getenv("COMIA_DATA_DIR"); v != "" {
		cfg.DataDir = v
	}
	if v := os.Getenv("COMIA_ACTIVITY_DB"); v != "" {
		cfg.ActivityDB = v
	}
	if v := os.Getenv("COMIA_MAX_IN_FLIGHT"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return ServerConfig{}, fmt.Errorf("invalid COMIA_MAX_IN_FLIGHT: %w", err)
		}
		cfg.Jobs.MaxInFlight = n
	}
	if v := os.Getenv("COMIA_JOB_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return ServerConfig{}, fmt.Errorf("invalid COMIA_JOB_TIMEOUT: %w", err)
		}
		cfg.Jobs.Timeout = d
	}

	if cfg.Jobs.MaxInFlight <= 0 {
		cfg.Jobs.MaxInFlight = 8
	}
	if cfg.Jobs.Timeout <= 0 {
		cfg.Jobs.Timeout = 120 * time.Second
	}

	return cfg, nil
}
