// Copyright 2023 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

package config

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Load reads the configuration file at path, applies defaults and validates
// the result. Relative paths in the file are resolved against its directory.
func Load(path string) (*Config, error) {
	cfg, err := load(path)
	if err != nil {
		return nil, err
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadWithEnvOverrides is like Load but lets SQLMAPPER_* environment
// variables override the file before validation.
func LoadWithEnvOverrides(path string) (*Config, error) {
	cfg, err := load(path)
	if err != nil {
		return nil, err
	}
	ApplyEnvOverrides(cfg, os.LookupEnv)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// load reads and parses the file at path without validating it.
func load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "cannot read configuration file %q", path)
	}
	cfg, err := Parse(data, filepath.Ext(path))
	if err != nil {
		return nil, errors.Wrapf(err, "cannot parse configuration file %q", path)
	}
	cfg.resolvePaths(filepath.Dir(path))
	return cfg, nil
}

// Parse decodes a configuration. ext selects TOML when it is ".toml" and
// YAML otherwise. Defaults are applied, paths are left as written.
func Parse(data []byte, ext string) (*Config, error) {
	var cfg Config
	if strings.EqualFold(ext, ".toml") {
		if err := toml.Unmarshal(data, &cfg); err != nil {
			return nil, err
		}
	} else {
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, err
		}
	}
	ApplyDefaults(&cfg)
	return &cfg, nil
}

func (c *Config) resolvePaths(dir string) {
	for i, m := range c.Mappers {
		if m != "" && !filepath.IsAbs(m) {
			c.Mappers[i] = filepath.Join(dir, m)
		}
	}
	if c.CacheDir != "" && !filepath.IsAbs(c.CacheDir) {
		c.CacheDir = filepath.Join(dir, c.CacheDir)
	}
}

// ApplyEnvOverrides overrides cfg from SQLMAPPER_* variables found by
// lookup. Values that do not parse are ignored.
func ApplyEnvOverrides(cfg *Config, lookup func(string) (string, bool)) {
	str := func(name string, dst *string) {
		if v, ok := lookup(name); ok && v != "" {
			*dst = v
		}
	}
	boolean := func(name string, dst *bool) {
		if v, ok := lookup(name); ok {
			if b, err := strconv.ParseBool(v); err == nil {
				*dst = b
			}
		}
	}

	str("SQLMAPPER_DATA_SOURCE_DRIVER", &cfg.DataSource.Driver)
	str("SQLMAPPER_DATA_SOURCE_DSN", &cfg.DataSource.DSN)
	str("SQLMAPPER_CACHE_DIR", &cfg.CacheDir)
	str("SQLMAPPER_LOG_LEVEL", &cfg.Log.Level)
	str("SQLMAPPER_LOG_FORMAT", &cfg.Log.Format)
	str("SQLMAPPER_METRICS_NAMESPACE", &cfg.Metrics.Namespace)
	boolean("SQLMAPPER_METRICS_ENABLED", &cfg.Metrics.Enabled)
	boolean("SQLMAPPER_WATCH_ENABLED", &cfg.Watch.Enabled)

	// An empty prefix is meaningful.
	if v, ok := lookup("SQLMAPPER_PARAMETER_PREFIX"); ok {
		cfg.ParamPrefix = &v
	}
	if v, ok := lookup("SQLMAPPER_WATCH_DEBOUNCE"); ok {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Watch.Debounce = d
		}
	}
	if v, ok := lookup("SQLMAPPER_MAPPERS"); ok && v != "" {
		cfg.Mappers = filepath.SplitList(v)
	}
}
