// Copyright 2023 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

package main

import (
	"log/slog"
	"os"
	"slices"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/canonical/sqlmapper"
	"github.com/canonical/sqlmapper/internal/config"
	"github.com/canonical/sqlmapper/internal/logging"
	"github.com/canonical/sqlmapper/internal/metrics"
)

// globals holds the persistent flags.
type globals struct {
	cfgFile string
	verbose bool
}

func newRootCmd() *cobra.Command {
	g := &globals{}
	cmd := &cobra.Command{
		Use:   "sqlmapper",
		Short: "Render and run the SQL statements of mapper documents",
		Long: `Sqlmapper renders the dynamic SQL statements declared in mapper documents
against parameters read from YAML files, and runs them on the configured
data source.`,
		SilenceUsage: true,
	}
	cmd.PersistentFlags().StringVarP(&g.cfgFile, "config", "c", "sqlmapper.yaml", "config file path")
	cmd.PersistentFlags().BoolVarP(&g.verbose, "verbose", "v", false, "log at debug level")

	cmd.AddCommand(
		newRenderCmd(g),
		newCheckCmd(g),
		newExecCmd(g),
		newWatchCmd(g),
		newCacheCmd(g),
	)
	return cmd
}

// loadConfig reads the configuration file with environment overrides. When
// optional is set a missing file yields the defaults.
func (g *globals) loadConfig(optional bool) (*config.Config, error) {
	if optional {
		if _, err := os.Stat(g.cfgFile); os.IsNotExist(err) {
			cfg := config.Default()
			config.ApplyEnvOverrides(cfg, os.LookupEnv)
			return cfg, config.Validate(cfg)
		}
	}
	cfg, err := config.LoadWithEnvOverrides(g.cfgFile)
	if err != nil {
		return nil, errors.Wrap(err, "cannot load configuration")
	}
	return cfg, nil
}

func (g *globals) logger(cmd *cobra.Command, cfg *config.Config) (*slog.Logger, error) {
	level := cfg.Log.Level
	if g.verbose {
		level = "debug"
	}
	return logging.New(logging.Config{
		Level:  level,
		Format: cfg.Log.Format,
		Writer: cmd.ErrOrStderr(),
	})
}

// mapperOptions turns the configuration into mapper options. The metrics
// are nil unless enabled.
func mapperOptions(cfg *config.Config, logger *slog.Logger) ([]sqlmapper.Option, *metrics.Metrics) {
	opts := []sqlmapper.Option{
		sqlmapper.WithLogger(logger),
		sqlmapper.WithParamPrefix(cfg.Prefix()),
		sqlmapper.WithMethods(cfg.MethodCalls.Filter()),
		sqlmapper.WithCacheDir(cfg.CacheDir),
		sqlmapper.WithWatchDebounce(cfg.Watch.Debounce),
	}
	var m *metrics.Metrics
	if cfg.Metrics.Enabled {
		m = metrics.New(cfg.Metrics.Namespace, nil)
		opts = append(opts, sqlmapper.WithMetrics(m))
	}
	return opts, m
}

// loadMappers loads every configured mapper document.
func loadMappers(m *sqlmapper.Mapper, cfg *config.Config) error {
	if len(cfg.Mappers) == 0 {
		return errors.New("no mappers configured")
	}
	for _, path := range cfg.Mappers {
		if err := m.Load(path); err != nil {
			return err
		}
	}
	return nil
}

// statementCategories is the order in which categories are searched for an
// id given without a category.
var statementCategories = []sqlmapper.Category{
	sqlmapper.CategorySelect,
	sqlmapper.CategoryInsert,
	sqlmapper.CategoryUpdate,
	sqlmapper.CategoryDelete,
	sqlmapper.CategoryFragment,
}

// findCategory returns the category id is registered under.
func findCategory(m *sqlmapper.Mapper, id string) (sqlmapper.Category, error) {
	for _, c := range statementCategories {
		if slices.Contains(m.IDs(c), id) {
			return c, nil
		}
	}
	return "", errors.Wrapf(sqlmapper.ErrNotFound, "cannot find statement %q", id)
}
