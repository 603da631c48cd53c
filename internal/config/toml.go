// Package config provides configuration helpers and TOML parsing.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

// Store drivers.
const (
	DriverSQLite = "sqlite"
	DriverMoodle = "moodle"
)

// FileConfig represents the TOML configuration file.
type FileConfig struct {
	Report ReportConfig `toml:"report"`
	Store  StoreConfig  `toml:"store"`
	Log    LogConfig    `toml:"log"`
	Serve  ServeConfig  `toml:"serve"`
}

// ReportConfig maps session thresholds and the day boundary.
type ReportConfig struct {
	Limit    *int64  `toml:"limit"`
	Ignore   *int64  `toml:"ignore"`
	Timezone *string `toml:"timezone"`
}

// StoreConfig selects where log events are read from.
type StoreConfig struct {
	Driver *string `toml:"driver"`
	Path   *string `toml:"path"`
	DSN    *string `toml:"dsn"`
	Prefix *string `toml:"prefix"`
}

// LogConfig maps logger settings.
type LogConfig struct {
	Level  *string `toml:"level"`
	Format *string `toml:"format"`
}

// ServeConfig maps HTTP server settings.
type ServeConfig struct {
	Addr *string `toml:"addr"`
}

// LoadConfig reads a TOML config from the given path. Missing file is not an error.
func LoadConfig(path string) (FileConfig, error) {
	if path == "" {
		return FileConfig{}, fmt.Errorf("config path is empty")
	}
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return FileConfig{}, nil
		}
		return FileConfig{}, fmt.Errorf("failed to stat config: %w", err)
	}
	var cfg FileConfig
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return FileConfig{}, fmt.Errorf("failed to decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return FileConfig{}, err
	}
	return cfg, nil
}

// Validate checks values that cannot be deferred to flag parsing.
func (c FileConfig) Validate() error {
	if c.Store.Driver != nil {
		switch strings.ToLower(*c.Store.Driver) {
		case DriverSQLite, DriverMoodle:
		default:
			return fmt.Errorf("unknown store driver %q (use %s or %s)", *c.Store.Driver, DriverSQLite, DriverMoodle)
		}
	}
	if c.Report.Timezone != nil {
		if _, err := LoadLocation(*c.Report.Timezone); err != nil {
			return err
		}
	}
	return nil
}

// LoadLocation resolves a timezone name; empty means UTC and "Local" the host zone.
func LoadLocation(name string) (*time.Location, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("invalid timezone %q: %w", name, err)
	}
	return loc, nil
}
