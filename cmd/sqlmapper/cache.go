// Copyright 2023 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

package main

import (
	"fmt"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/canonical/sqlmapper"
)

func newCacheCmd(g *globals) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Manage the compiled mapper cache",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "clear",
		Short: "Remove every compiled mapper from the cache directory",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := g.loadConfig(false)
			if err != nil {
				return err
			}
			if cfg.CacheDir == "" {
				return errors.New("no cache_dir configured")
			}
			logger, err := g.logger(cmd, cfg)
			if err != nil {
				return err
			}
			m := sqlmapper.New(sqlmapper.WithCacheDir(cfg.CacheDir), sqlmapper.WithLogger(logger))
			n, err := m.ClearCache()
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "removed %d compiled mappers from %s\n", n, cfg.CacheDir)
			return nil
		},
	})
	return cmd
}
