// Copyright 2023 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

// Package config loads the process configuration of a mapper: its data
// source, its mapper documents, the compiled cache and the ambient settings.
//
// Files are YAML unless their extension is .toml. Loading applies defaults,
// then SQLMAPPER_* environment overrides, then validation.
package config

import (
	"strings"
	"time"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/canonical/sqlmapper/internal/expr"
)

// Config is the configuration of a mapper process.
type Config struct {
	DataSource DataSource `yaml:"data_source" toml:"data_source"`
	// Mappers lists mapper documents. Relative paths are resolved against
	// the directory of the configuration file.
	Mappers []string `yaml:"mappers" toml:"mappers"`
	// CacheDir holds compiled mapper artifacts. Empty disables the cache.
	CacheDir string `yaml:"cache_dir" toml:"cache_dir"`
	// ParamPrefix starts bind parameter names. Unset means ":", and an
	// empty string selects positional "?" parameters.
	ParamPrefix *string     `yaml:"parameter_prefix" toml:"parameter_prefix"`
	MethodCalls MethodCalls `yaml:"method_calls" toml:"method_calls"`
	Log         Log         `yaml:"log" toml:"log"`
	Metrics     Metrics     `yaml:"metrics" toml:"metrics"`
	Watch       Watch       `yaml:"watch" toml:"watch"`
}

// DataSource names the database/sql driver and its data source name.
type DataSource struct {
	Driver string `yaml:"driver" toml:"driver"`
	DSN    string `yaml:"dsn" toml:"dsn"`
}

type Log struct {
	Level  string `yaml:"level" toml:"level"`
	Format string `yaml:"format" toml:"format"`
}

type Metrics struct {
	Enabled   bool   `yaml:"enabled" toml:"enabled"`
	Namespace string `yaml:"namespace" toml:"namespace"`
}

// Watch configures reloading mapper documents when they change.
type Watch struct {
	Enabled  bool          `yaml:"enabled" toml:"enabled"`
	Debounce time.Duration `yaml:"debounce" toml:"debounce"`
}

// Method call modes.
const (
	MethodsOpen  = "open"
	MethodsNone  = "none"
	MethodsAllow = "allow"
)

// MethodCalls restricts the methods expressions may call. It is written
// either as "open", as "none", or as the list of allowed method names.
type MethodCalls struct {
	Mode  string
	Allow []string
}

// Filter returns the expression method filter for m.
func (m MethodCalls) Filter() expr.MethodFilter {
	switch m.Mode {
	case MethodsNone:
		return expr.DenyAllMethods
	case MethodsAllow:
		return expr.AllowMethods(m.Allow...)
	}
	return expr.AllowAllMethods
}

func (m *MethodCalls) set(v any) error {
	switch v := v.(type) {
	case string:
		mode := strings.ToLower(strings.TrimSpace(v))
		if mode != MethodsOpen && mode != MethodsNone {
			return errors.Errorf("method_calls: expected %q, %q or a list of names, got %q", MethodsOpen, MethodsNone, v)
		}
		*m = MethodCalls{Mode: mode}
	case []any:
		names := make([]string, 0, len(v))
		for _, item := range v {
			name, ok := item.(string)
			if !ok {
				return errors.Errorf("method_calls: expected method name, got %v", item)
			}
			names = append(names, name)
		}
		*m = MethodCalls{Mode: MethodsAllow, Allow: names}
	default:
		return errors.Errorf("method_calls: expected %q, %q or a list of names, got %v", MethodsOpen, MethodsNone, v)
	}
	return nil
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (m *MethodCalls) UnmarshalYAML(n *yaml.Node) error {
	var v any
	if err := n.Decode(&v); err != nil {
		return err
	}
	return m.set(v)
}

// MarshalYAML implements yaml.Marshaler.
func (m MethodCalls) MarshalYAML() (any, error) {
	if m.Mode == MethodsAllow {
		return m.Allow, nil
	}
	if m.Mode == "" {
		return MethodsOpen, nil
	}
	return m.Mode, nil
}

// UnmarshalTOML implements toml.Unmarshaler.
func (m *MethodCalls) UnmarshalTOML(v any) error {
	return m.set(v)
}
