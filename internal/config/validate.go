// Copyright 2023 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

package config

import (
	"fmt"
	"strings"
)

// FieldError is a validation failure of one configuration field.
type FieldError struct {
	// Field is the dotted path of the field, such as "log.level".
	Field   string
	Message string
}

func (e FieldError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationError holds every validation failure of a configuration.
type ValidationError struct {
	Errors []FieldError
}

func (e *ValidationError) Error() string {
	if len(e.Errors) == 1 {
		return "invalid configuration: " + e.Errors[0].Error()
	}
	msgs := make([]string, len(e.Errors))
	for i, fe := range e.Errors {
		msgs[i] = fe.Error()
	}
	return fmt.Sprintf("invalid configuration: %d errors: %s", len(e.Errors), strings.Join(msgs, "; "))
}

var (
	logLevels  = []string{"debug", "info", "warn", "error"}
	logFormats = []string{"text", "json"}
)

// Validate checks cfg and reports every invalid field at once.
func Validate(cfg *Config) error {
	var errs []FieldError
	if cfg.DataSource.Driver == "" {
		errs = append(errs, FieldError{"data_source.driver", "must not be empty"})
	}
	for i, m := range cfg.Mappers {
		if strings.TrimSpace(m) == "" {
			errs = append(errs, FieldError{fmt.Sprintf("mappers[%d]", i), "must not be empty"})
		}
	}
	if !oneOf(strings.ToLower(cfg.Log.Level), logLevels) {
		errs = append(errs, FieldError{"log.level", fmt.Sprintf("must be one of %s, got %q", strings.Join(logLevels, ", "), cfg.Log.Level)})
	}
	if !oneOf(strings.ToLower(cfg.Log.Format), logFormats) {
		errs = append(errs, FieldError{"log.format", fmt.Sprintf("must be one of %s, got %q", strings.Join(logFormats, ", "), cfg.Log.Format)})
	}
	if cfg.MethodCalls.Mode == MethodsAllow && len(cfg.MethodCalls.Allow) == 0 {
		errs = append(errs, FieldError{"method_calls", `an empty allow list is written "none"`})
	}
	if cfg.Watch.Debounce < 0 {
		errs = append(errs, FieldError{"watch.debounce", "must not be negative"})
	}
	if len(errs) > 0 {
		return &ValidationError{Errors: errs}
	}
	return nil
}

func oneOf(v string, options []string) bool {
	for _, o := range options {
		if v == o {
			return true
		}
	}
	return false
}
