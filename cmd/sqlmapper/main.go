// Copyright 2023 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

// Sqlmapper renders and runs the statements of mapper documents.
//
// Usage:
//
//	# Print the SQL and bind parameters of a statement
//	sqlmapper render person.find --params params.yaml
//
//	# Compile every configured mapper document and report errors
//	sqlmapper check
//
//	# Run a statement against the configured data source
//	sqlmapper exec person.add --params person.yaml
//
//	# Reload mapper documents as they change, serving metrics
//	sqlmapper watch --metrics-addr :9464
//
//	# Remove compiled mapper artifacts
//	sqlmapper cache clear
//
// The configuration file, sqlmapper.yaml by default, may be YAML or TOML.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
