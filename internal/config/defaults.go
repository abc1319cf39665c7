// Copyright 2023 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

package config

import (
	"time"
)

const (
	DefaultDriver           = "sqlite3"
	DefaultParamPrefix      = ":"
	DefaultLogLevel         = "info"
	DefaultLogFormat        = "text"
	DefaultMetricsNamespace = "sqlmapper"
	DefaultWatchDebounce    = 100 * time.Millisecond
)

// Default returns a configuration with every default applied.
func Default() *Config {
	cfg := &Config{}
	ApplyDefaults(cfg)
	return cfg
}

// ApplyDefaults fills in the unset fields of cfg.
func ApplyDefaults(cfg *Config) {
	if cfg.DataSource.Driver == "" {
		cfg.DataSource.Driver = DefaultDriver
	}
	if cfg.ParamPrefix == nil {
		prefix := DefaultParamPrefix
		cfg.ParamPrefix = &prefix
	}
	if cfg.MethodCalls.Mode == "" {
		cfg.MethodCalls.Mode = MethodsOpen
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = DefaultLogLevel
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = DefaultLogFormat
	}
	if cfg.Metrics.Namespace == "" {
		cfg.Metrics.Namespace = DefaultMetricsNamespace
	}
	if cfg.Watch.Debounce == 0 {
		cfg.Watch.Debounce = DefaultWatchDebounce
	}
}

// Prefix returns the configured bind parameter prefix.
func (c *Config) Prefix() string {
	if c.ParamPrefix == nil {
		return DefaultParamPrefix
	}
	return *c.ParamPrefix
}
